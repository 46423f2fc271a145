// Package reader drives the client side of the system: a polling
// scheduler that pulls the caller's feeds and items from the server,
// mirrors them into a local cache, and surfaces new items as
// notifications and an unread badge.
//
// Refresh never hard-fails. Anything that goes wrong degrades to
// serving the last good cache with a soft error flag.
package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

const (
	DefaultInterval        = 5 * time.Minute
	MinInterval            = time.Minute
	DefaultInitialDelay    = time.Minute
	DefaultCooldown        = 5 * time.Minute
	DefaultNotifyThreshold = 3
	DefaultSeenLimit       = 1000
	DefaultFetchLimit      = 100

	// How long a notification key suppresses re-delivery.
	dedupTTL = time.Minute
)

type (
	// API is the slice of the server client the reader needs.
	API interface {
		Authenticated() bool
		Feeds(ctx context.Context) ([]feedz.Feed, error)
		Items(ctx context.Context, limit int) ([]feedz.FeedItem, error)
		MarkRead(ctx context.Context, itemID string) error
	}

	// Store is the local cache the reader serves from between refreshes.
	Store interface {
		UpsertFeed(ctx context.Context, feed feedz.Feed) error
		InsertSubscription(ctx context.Context, userKey, feedID, tags string) (feedz.Subscription, error)
		InsertItems(ctx context.Context, items []feedz.FeedItem) (int, error)
		UnreadItemIDs(ctx context.Context, userKey string, itemIDs []string) ([]string, error)
		SeenItems(ctx context.Context) ([]string, error)
		AddSeenItems(ctx context.Context, ids []string, max int) error
		UnreadCount(ctx context.Context, userKey string) (int, error)
		MarkRead(ctx context.Context, userKey, itemID string) error
	}

	Config struct {
		// UserKey is the hex pubkey the local cache is scoped to.
		UserKey string
		// Interval between background refreshes. Clamped to MinInterval.
		Interval time.Duration
		// InitialDelay before the first background refresh.
		InitialDelay time.Duration
		// Cooldown between unforced refreshes.
		Cooldown time.Duration
		// NotifyThreshold is the largest batch still notified per item.
		NotifyThreshold int
		// SeenLimit bounds the persisted seen-item cache.
		SeenLimit int
		// FetchLimit caps how many recent items one refresh pulls.
		FetchLimit int
	}

	// Outcome summarizes one refresh for the caller. It is always
	// returned, even when the refresh was skipped or failed softly.
	Outcome struct {
		NewItems         int
		Unread           int
		CooldownActive   bool
		NotAuthenticated bool
		SyncError        bool
	}

	Reader struct {
		api      API
		store    Store
		notifier Notifier
		cfg      Config

		mu          sync.Mutex
		lastRefresh time.Time
		syncErr     bool

		settings chan time.Duration
		dedup    *expirable.LRU[string, struct{}]
		now      func() time.Time
	}
)

func New(api API, store Store, notifier Notifier, cfg Config) *Reader {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < MinInterval {
		cfg.Interval = MinInterval
	}
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.NotifyThreshold == 0 {
		cfg.NotifyThreshold = DefaultNotifyThreshold
	}
	if cfg.SeenLimit == 0 {
		cfg.SeenLimit = DefaultSeenLimit
	}
	if cfg.FetchLimit == 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}

	return &Reader{
		api:      api,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		settings: make(chan time.Duration, 1),
		dedup:    expirable.NewLRU[string, struct{}](256, nil, dedupTTL),
		now:      time.Now,
	}
}

// Refresh pulls the latest state from the server. Unforced calls are
// subject to the cooldown; force is reserved for explicit user actions
// and the background loop never sets it.
func (r *Reader) Refresh(ctx context.Context, force bool) Outcome {
	now := r.now()

	// Check-and-advance under one lock so overlapping calls can't both
	// slip past the cooldown.
	r.mu.Lock()
	if !force && !r.lastRefresh.IsZero() && now.Sub(r.lastRefresh) < r.cfg.Cooldown {
		r.mu.Unlock()
		return r.serveCache(ctx, Outcome{CooldownActive: true})
	}
	if !r.api.Authenticated() {
		r.mu.Unlock()
		return r.serveCache(ctx, Outcome{NotAuthenticated: true})
	}
	r.lastRefresh = now
	r.mu.Unlock()

	// Feed list and recent items come down concurrently; the client
	// retries each on its own.
	var (
		feeds []feedz.Feed
		items []feedz.FeedItem
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		feeds, err = r.api.Feeds(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = r.api.Items(gctx, r.cfg.FetchLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Error("refresh fetch failed, serving cache", "error", err)
		r.setSyncError(true)
		return r.serveCache(ctx, Outcome{SyncError: true})
	}

	if err := r.persist(ctx, feeds, items); err != nil {
		slog.Error("refresh persist failed, serving cache", "error", err)
		r.setSyncError(true)
		return r.serveCache(ctx, Outcome{SyncError: true})
	}

	fresh, err := r.detectNew(ctx, items)
	if err != nil {
		slog.Error("new-item detection failed", "error", err)
		r.setSyncError(true)
		return r.serveCache(ctx, Outcome{SyncError: true})
	}
	r.notify(fresh)
	r.setSyncError(false)

	out := Outcome{NewItems: len(fresh)}
	unread, err := r.store.UnreadCount(ctx, r.cfg.UserKey)
	if err != nil {
		slog.Error("error counting unread items", "error", err)
		return out
	}
	out.Unread = unread
	r.notifier.SetBadge(unread)

	return out
}

// MarkRead records the read mark remotely and in the local cache, then
// recomputes the badge.
func (r *Reader) MarkRead(ctx context.Context, itemID string) error {
	if r.api.Authenticated() {
		if err := r.api.MarkRead(ctx, itemID); err != nil {
			return fmt.Errorf("error marking item read remotely: %s", err)
		}
	}
	if err := r.store.MarkRead(ctx, r.cfg.UserKey, itemID); err != nil {
		return err
	}

	unread, err := r.store.UnreadCount(ctx, r.cfg.UserKey)
	if err != nil {
		return err
	}
	r.notifier.SetBadge(unread)

	return nil
}

// serveCache fills the outcome from the local cache only.
func (r *Reader) serveCache(ctx context.Context, out Outcome) Outcome {
	r.mu.Lock()
	out.SyncError = out.SyncError || r.syncErr
	r.mu.Unlock()

	unread, err := r.store.UnreadCount(ctx, r.cfg.UserKey)
	if err != nil {
		slog.Error("error counting unread items from cache", "error", err)
		return out
	}
	out.Unread = unread
	r.notifier.SetBadge(unread)

	return out
}

func (r *Reader) persist(ctx context.Context, feeds []feedz.Feed, items []feedz.FeedItem) error {
	for _, feed := range feeds {
		if err := r.store.UpsertFeed(ctx, feed); err != nil {
			return err
		}
		// Mirror the subscription so unread counting scopes correctly.
		if _, err := r.store.InsertSubscription(ctx, r.cfg.UserKey, feed.ID, ""); err != nil && !errors.Is(err, feedz.ErrConflict) {
			return err
		}
	}
	if _, err := r.store.InsertItems(ctx, items); err != nil {
		return err
	}

	return nil
}

// detectNew applies the new-item rule: an item is new iff it is unread
// and its id is not in the seen cache. Everything not yet seen is then
// recorded so the next refresh stays quiet about it.
func (r *Reader) detectNew(ctx context.Context, items []feedz.FeedItem) ([]feedz.FeedItem, error) {
	seen, err := r.store.SeenItems(ctx)
	if err != nil {
		return nil, err
	}
	seenSet := make(map[string]bool, len(seen))
	for _, id := range seen {
		seenSet[id] = true
	}

	var unseen []feedz.FeedItem
	for _, it := range items {
		if !seenSet[it.ID] {
			unseen = append(unseen, it)
		}
	}
	if len(unseen) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(unseen))
	for _, it := range unseen {
		ids = append(ids, it.ID)
	}
	unreadIDs, err := r.store.UnreadItemIDs(ctx, r.cfg.UserKey, ids)
	if err != nil {
		return nil, err
	}
	unreadSet := make(map[string]bool, len(unreadIDs))
	for _, id := range unreadIDs {
		unreadSet[id] = true
	}

	var fresh []feedz.FeedItem
	for _, it := range unseen {
		if unreadSet[it.ID] {
			fresh = append(fresh, it)
		}
	}

	if err := r.store.AddSeenItems(ctx, ids, r.cfg.SeenLimit); err != nil {
		return nil, err
	}

	return fresh, nil
}

func (r *Reader) setSyncError(v bool) {
	r.mu.Lock()
	r.syncErr = v
	r.mu.Unlock()
}

func (r *Reader) interval() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.Interval
}

// SetInterval changes the background polling period. The running loop
// tears down its timer and starts a fresh one with the new period.
func (r *Reader) SetInterval(d time.Duration) {
	if d < MinInterval {
		d = MinInterval
	}

	r.mu.Lock()
	r.cfg.Interval = d
	r.mu.Unlock()

	select {
	case r.settings <- d:
	default:
	}
}

// Run is the background polling loop: one refresh after the initial
// delay, then one per interval until the context ends.
func (r *Reader) Run(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-r.settings:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer = time.NewTimer(d)
			slog.Info("polling interval changed", "interval", d)
		case <-timer.C:
			out := r.Refresh(ctx, false)
			slog.Info("background refresh",
				"new_items", out.NewItems,
				"unread", out.Unread,
				"cooldown", out.CooldownActive,
				"unauthenticated", out.NotAuthenticated,
				"sync_error", out.SyncError,
			)
			timer.Reset(r.interval())
		}
	}
}
