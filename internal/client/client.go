// Package client is the reader's HTTP client for the feedz server API.
// Every request carries a signed Authorization header and is retried
// with backoff on transient failures.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	v1 "github.com/privkeyio/Nostr-Feedz-sub000/api/feedz/v1"
	fzerrs "github.com/privkeyio/Nostr-Feedz-sub000/errors"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/backoff"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
)

type Client struct {
	baseURL string
	httpc   *http.Client
	signer  nostr.Signer
	retry   backoff.Config
}

// New builds a client for the server at baseURL. A nil signer is valid
// and leaves the client unauthenticated; requests will then be rejected
// by the server, which callers detect through [Client.Authenticated]
// before going to the network.
func New(baseURL string, signer nostr.Signer) *Client {
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: 5 * time.Second,
		},
		signer: signer,
		retry:  backoff.DefaultConfig,
	}
}

func (c *Client) Authenticated() bool {
	return c.signer != nil
}

// do runs one API call through the retry wrapper. The auth event is
// rebuilt per attempt so its timestamp stays inside the server's
// acceptance window.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var byts []byte
	if body != nil {
		var err error
		if byts, err = json.Marshal(body); err != nil {
			return fmt.Errorf("error marshaling request body: %s", err)
		}
	}

	return backoff.Do(ctx, c.retry, func(ctx context.Context) error {
		u := c.baseURL + path

		var reader *bytes.Reader
		if byts != nil {
			reader = bytes.NewReader(byts)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return fmt.Errorf("error creating request: %s", err)
		}
		req.Header.Set("Content-Type", "application/json")

		if c.signer != nil {
			ev, err := nostr.BuildAuthEvent(ctx, u, method, c.signer)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("error building auth event: %w", err))
			}
			header, err := nostr.AuthHeader(ev)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("error encoding auth header: %s", err))
			}
			req.Header.Set("Authorization", header)
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			return fmt.Errorf("error calling %s %s: %s", method, path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server error from %s %s: %d", method, path, resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			// The server rejected the request outright; retrying the same
			// call cannot change the outcome.
			sErr := &fzerrs.Error{}
			if err := json.NewDecoder(resp.Body).Decode(sErr); err != nil {
				return backoff.Permanent(fmt.Errorf("unexpected status from %s %s: %d", method, path, resp.StatusCode))
			}
			return backoff.Permanent(sErr)
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("error decoding response: %s", err)
		}

		return nil
	})
}

// Feeds lists the caller's subscribed feeds.
func (c *Client) Feeds(ctx context.Context) ([]feedz.Feed, error) {
	var resp v1.FeedsResponse
	if err := c.do(ctx, http.MethodGet, "/api/feeds", nil, &resp); err != nil {
		return nil, err
	}

	feeds := make([]feedz.Feed, 0, len(resp.Feeds))
	for _, f := range resp.Feeds {
		feeds = append(feeds, domainFeed(f))
	}

	return feeds, nil
}

// Items lists the most recent items across the caller's feeds.
func (c *Client) Items(ctx context.Context, limit int) ([]feedz.FeedItem, error) {
	var resp v1.ItemsResponse
	path := fmt.Sprintf("/api/items?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	items := make([]feedz.FeedItem, 0, len(resp.Items))
	for _, it := range resp.Items {
		items = append(items, feedz.FeedItem{
			ID:          it.ID,
			FeedID:      it.FeedID,
			GUID:        it.GUID,
			Title:       it.Title,
			Content:     it.Content,
			Author:      it.Author,
			Link:        it.Link,
			MediaURL:    it.MediaURL,
			PublishedAt: it.PublishedAt,
			CreatedAt:   it.CreatedAt,
		})
	}

	return items, nil
}

// MarkRead records a read mark server-side.
func (c *Client) MarkRead(ctx context.Context, itemID string) error {
	return c.do(ctx, http.MethodPut, "/api/items/"+itemID+"/read", nil, nil)
}

// Refresh asks the server to refresh the caller's feeds now.
func (c *Client) Refresh(ctx context.Context, force bool) (v1.RefreshResponse, error) {
	var resp v1.RefreshResponse
	err := c.do(ctx, http.MethodPost, "/api/refresh", v1.RefreshRequest{Force: force}, &resp)

	return resp, err
}

func domainFeed(f v1.Feed) feedz.Feed {
	feed := feedz.Feed{
		ID:            f.ID,
		Type:          feedz.FeedType(f.Type),
		Source:        f.Source,
		LastFetchedAt: f.LastFetchedAt,
	}
	if f.Title != "" {
		title := f.Title
		feed.Title = &title
	}
	if f.Description != "" {
		desc := f.Description
		feed.Description = &desc
	}

	return feed
}
