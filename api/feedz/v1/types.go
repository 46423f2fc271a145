// Package v1 holds the wire types for the feedz HTTP API, shared by the
// server handlers and the reader's client.
package v1

import (
	"net/http"
	"time"

	fzerrs "github.com/privkeyio/Nostr-Feedz-sub000/errors"
)

const (
	SubscriptionKindRSS   = "rss"
	SubscriptionKindNostr = "nostr"
)

type (
	Feed struct {
		ID            string     `json:"id"`
		Type          string     `json:"type"`
		Source        string     `json:"source"`
		Title         string     `json:"title"`
		Description   string     `json:"description"`
		LastFetchedAt *time.Time `json:"last_fetched_at"`
	}

	Item struct {
		ID          string     `json:"id"`
		FeedID      string     `json:"feed_id"`
		GUID        string     `json:"guid"`
		Title       string     `json:"title"`
		Content     string     `json:"content"`
		Author      string     `json:"author"`
		Link        string     `json:"link"`
		MediaURL    string     `json:"media_url,omitempty"`
		PublishedAt *time.Time `json:"published_at"`
		CreatedAt   time.Time  `json:"created_at"`
	}

	Subscription struct {
		ID        string    `json:"id"`
		FeedID    string    `json:"feed_id"`
		Tags      []string  `json:"tags,omitempty"`
		CreatedAt time.Time `json:"created_at"`
		Feed      Feed      `json:"feed"`
	}

	// SubscriptionList is the portable snapshot form of a user's
	// subscriptions, also used as the content of the published sync
	// event.
	SubscriptionList struct {
		RSS   []string            `json:"rss"`
		Nostr []string            `json:"nostr"`
		Tags  map[string][]string `json:"tags,omitempty"`
	}

	Addition struct {
		Kind   string   `json:"kind"`
		Source string   `json:"source"`
		Tags   []string `json:"tags,omitempty"`
	}
)

type (
	CreateSubscriptionRequest struct {
		// Kind is "rss" for a feed URL or "nostr" for an author key
		// (hex or npub).
		Kind   string   `json:"kind"`
		Source string   `json:"source"`
		Tags   []string `json:"tags,omitempty"`
	}

	RefreshRequest struct {
		Force bool `json:"force"`
	}

	SyncApplyRequest struct {
		Additions []Addition `json:"additions"`
	}

	ImportOPMLRequest struct {
		OPML string `json:"opml"`
	}
)

func (r CreateSubscriptionRequest) Validate() error {
	var errs []fzerrs.Detail
	if r.Kind != SubscriptionKindRSS && r.Kind != SubscriptionKindNostr {
		errs = append(errs, fzerrs.Detail{Field: "kind", Error: "must be rss or nostr"})
	}
	if r.Source == "" {
		errs = append(errs, fzerrs.Detail{Field: "source", Error: "required"})
	}
	if len(errs) > 0 {
		return fzerrs.E("invalid request", http.StatusBadRequest, errs)
	}

	return nil
}

func (r RefreshRequest) Validate() error {
	return nil
}

func (r SyncApplyRequest) Validate() error {
	var errs []fzerrs.Detail
	for _, add := range r.Additions {
		if add.Kind != SubscriptionKindRSS && add.Kind != SubscriptionKindNostr {
			errs = append(errs, fzerrs.Detail{Field: "additions", Error: "unknown kind"})
			break
		}
		if add.Source == "" {
			errs = append(errs, fzerrs.Detail{Field: "additions", Error: "missing source"})
			break
		}
	}
	if len(errs) > 0 {
		return fzerrs.E("invalid request", http.StatusBadRequest, errs)
	}

	return nil
}

func (r ImportOPMLRequest) Validate() error {
	if r.OPML == "" {
		return fzerrs.E("invalid request", http.StatusBadRequest, fzerrs.Detail{Field: "opml", Error: "required"})
	}

	return nil
}

type (
	FeedsResponse struct {
		Feeds []Feed `json:"feeds"`
	}

	ItemsResponse struct {
		Items []Item `json:"items"`
	}

	SubscriptionsResponse struct {
		Subscriptions []Subscription `json:"subscriptions"`
	}

	UnreadResponse struct {
		Count int `json:"count"`
	}

	RefreshResponse struct {
		Total     int      `json:"total"`
		Refreshed int      `json:"refreshed"`
		Skipped   int      `json:"skipped"`
		NewItems  int      `json:"new_items"`
		Errors    []string `json:"errors,omitempty"`
	}

	ReaderItemResponse struct {
		Item          Item   `json:"item"`
		ReaderContent string `json:"reader_content"`
	}

	SyncDiffResponse struct {
		ToAdd     []Addition `json:"to_add"`
		LocalOnly []string   `json:"local_only,omitempty"`
	}

	SyncApplyResponse struct {
		Added int `json:"added"`
	}

	ImportOPMLResponse struct {
		Added int `json:"added"`
	}
)
