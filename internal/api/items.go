package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	readability "github.com/go-shiori/go-readability"
	"github.com/gorilla/mux"
	"github.com/sym01/htmlsanitizer"

	v1 "github.com/privkeyio/Nostr-Feedz-sub000/api/feedz/v1"
	fzerrs "github.com/privkeyio/Nostr-Feedz-sub000/errors"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/server"
)

const (
	defaultItemLimit = 50
	maxItemLimit     = 200
)

func (s Server) getItems(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx     = r.Context()
		userKey = server.UserKey(ctx)
	)

	limit := defaultItemLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return fzerrs.E("limit must be a positive integer", http.StatusBadRequest)
		}
		limit = min(parsed, maxItemLimit)
	}

	feeds, err := s.repo.SubscribedFeeds(ctx, userKey)
	if err != nil {
		return err
	}
	resp := v1.ItemsResponse{Items: []v1.Item{}}
	if len(feeds) == 0 {
		return server.WriteJSON(w, http.StatusOK, resp)
	}

	feedIDs := make([]string, 0, len(feeds))
	for _, feed := range feeds {
		feedIDs = append(feedIDs, feed.ID)
	}

	items, err := s.repo.Items(ctx, feedz.ItemFilter{
		FeedIDs:    feedIDs,
		UnreadOnly: r.URL.Query().Get("unread_only") == "true",
		UserKey:    userKey,
		Limit:      limit,
	})
	if err != nil {
		return err
	}

	for _, it := range items {
		resp.Items = append(resp.Items, apiItem(it))
	}

	return server.WriteJSON(w, http.StatusOK, resp)
}

// getItem returns one item with its readable article content extracted
// from the source page.
func (s Server) getItem(w http.ResponseWriter, r *http.Request) error {
	var (
		ctx    = r.Context()
		itemID = mux.Vars(r)["itemID"]
	)

	item, err := s.repo.Item(ctx, itemID)
	if err != nil {
		return fzerrs.FromDomain(err)
	}

	// Cache results for less processing and prevent refetches
	if resp, ok := s.readerCache.Get(itemID); ok {
		return server.WriteJSON(w, http.StatusOK, resp)
	}

	ret := v1.ReaderItemResponse{Item: apiItem(item)}

	// Protocol items already carry their full content; only web links
	// need extraction.
	if item.Link == "" {
		ret.ReaderContent = item.Content
		s.readerCache.Add(itemID, ret)
		return server.WriteJSON(w, http.StatusOK, ret)
	}

	u, err := url.Parse(item.Link)
	if err != nil {
		return fmt.Errorf("error with the item's url: %s", err)
	}

	resp, err := s.fetchClient.Get(item.Link)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Strip it for readability and sanitize
	parser := readability.NewParser()
	article, err := parser.Parse(resp.Body, u)
	if err != nil {
		return err
	}

	sanitizer := htmlsanitizer.NewHTMLSanitizer()
	contents, err := sanitizer.SanitizeString(article.Content)
	if err != nil {
		return err
	}

	ret.ReaderContent = contents
	// Add to the cache for next time
	s.readerCache.Add(itemID, ret)

	return server.WriteJSON(w, http.StatusOK, ret)
}

func (s Server) putRead(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	if err := s.repo.MarkRead(ctx, server.UserKey(ctx), mux.Vars(r)["itemID"]); err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s Server) deleteRead(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	if err := s.repo.UnmarkRead(ctx, server.UserKey(ctx), mux.Vars(r)["itemID"]); err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s Server) putFavorite(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	if err := s.repo.MarkFavorite(ctx, server.UserKey(ctx), mux.Vars(r)["itemID"]); err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s Server) deleteFavorite(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	if err := s.repo.UnmarkFavorite(ctx, server.UserKey(ctx), mux.Vars(r)["itemID"]); err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, struct{}{})
}

func (s Server) getUnread(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	count, err := s.repo.UnreadCount(ctx, server.UserKey(ctx))
	if err != nil {
		return err
	}

	return server.WriteJSON(w, http.StatusOK, v1.UnreadResponse{Count: count})
}
