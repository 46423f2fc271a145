// Package api serves the feedz HTTP API consumed by the reader process.
// Every route is scoped to the authenticated caller's pubkey.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"

	v1 "github.com/privkeyio/Nostr-Feedz-sub000/api/feedz/v1"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/fetch"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/refresh"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/server"
)

type (
	Server struct {
		*http.Server

		repo    feedz.Repository
		engine  *refresh.Engine
		rss     *fetch.RSSFetcher
		authors *fetch.NostrSource
		pool    *nostr.Pool

		fetchClient *http.Client
		readerCache *lru.Cache[string, v1.ReaderItemResponse]
	}

	Config struct {
		Port       int
		CorsOrigin string
		// AuthWindow is how far an auth event's timestamp may drift.
		AuthWindow time.Duration
	}
)

func NewServer(cfg Config, repo feedz.Repository, engine *refresh.Engine, rss *fetch.RSSFetcher, authors *fetch.NostrSource, pool *nostr.Pool) *Server {
	if cfg.AuthWindow == 0 {
		cfg.AuthWindow = time.Minute
	}

	var (
		r        = server.ErrRouter{Router: mux.NewRouter()}
		cache, _ = lru.New[string, v1.ReaderItemResponse](1024)
	)

	srvr := Server{
		repo:    repo,
		engine:  engine,
		rss:     rss,
		authors: authors,
		pool:    pool,
		fetchClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		readerCache: cache,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{cfg.CorsOrigin}),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type", "authorization"}),
			)(r),
		},
	}

	r.Use(server.AccessLogMiddleware)

	authed := server.ErrRouter{Router: r.NewRoute().Subrouter()}
	authed.Use(server.RequireAuthMiddleware(cfg.AuthWindow))

	// Subscription management
	authed.HandleFuncE("/api/subscriptions", srvr.postSubscriptions).Methods(http.MethodPost)
	authed.HandleFuncE("/api/subscriptions", srvr.getSubscriptions).Methods(http.MethodGet)
	authed.HandleFuncE("/api/subscriptions/{feedID}", srvr.deleteSubscription).Methods(http.MethodDelete)
	authed.HandleFuncE("/api/feeds", srvr.getFeeds).Methods(http.MethodGet)

	// Items and marks
	authed.HandleFuncE("/api/items", srvr.getItems).Methods(http.MethodGet)
	authed.HandleFuncE("/api/items/{itemID}", srvr.getItem).Methods(http.MethodGet)
	authed.HandleFuncE("/api/items/{itemID}/read", srvr.putRead).Methods(http.MethodPut)
	authed.HandleFuncE("/api/items/{itemID}/read", srvr.deleteRead).Methods(http.MethodDelete)
	authed.HandleFuncE("/api/items/{itemID}/favorite", srvr.putFavorite).Methods(http.MethodPut)
	authed.HandleFuncE("/api/items/{itemID}/favorite", srvr.deleteFavorite).Methods(http.MethodDelete)
	authed.HandleFuncE("/api/unread", srvr.getUnread).Methods(http.MethodGet)

	// Refresh and portability
	authed.HandleFuncE("/api/refresh", srvr.postRefresh).Methods(http.MethodPost)
	authed.HandleFuncE("/api/sync/list", srvr.getSyncList).Methods(http.MethodGet)
	authed.HandleFuncE("/api/sync/diff", srvr.getSyncDiff).Methods(http.MethodGet)
	authed.HandleFuncE("/api/sync/apply", srvr.postSyncApply).Methods(http.MethodPost)
	authed.HandleFuncE("/api/opml", srvr.getOPML).Methods(http.MethodGet)
	authed.HandleFuncE("/api/opml", srvr.postOPML).Methods(http.MethodPost)

	return &srvr
}

func apiFeed(f feedz.Feed) v1.Feed {
	var (
		title string
		desc  string
	)
	if f.Title != nil {
		title = *f.Title
	}
	if f.Description != nil {
		desc = *f.Description
	}

	return v1.Feed{
		ID:            f.ID,
		Type:          string(f.Type),
		Source:        f.Source,
		Title:         title,
		Description:   desc,
		LastFetchedAt: f.LastFetchedAt,
	}
}

func apiItem(it feedz.FeedItem) v1.Item {
	return v1.Item{
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
	}
}
