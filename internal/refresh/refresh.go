// Package refresh implements the server-side batch refresh engine: it
// fetches every subscribed source without redundant refetches across
// concurrent users and without unbounded concurrency.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/backoff"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/fetch"
)

const (
	// DefaultCooldown is the minimum spacing between refreshes of the
	// same feed.
	DefaultCooldown = 5 * time.Minute
	// DefaultChunkSize caps how many feeds are fetched at once.
	DefaultChunkSize = 5
)

type (
	// RSSSource parses one RSS/Atom feed into candidate items.
	RSSSource interface {
		Parse(ctx context.Context, feedID, feedURL string) (fetch.ParsedFeed, error)
	}

	// ProtocolSource queries an author's streams from relays.
	ProtocolSource interface {
		Articles(ctx context.Context, feedID, authorKey string, since *time.Time) ([]feedz.FeedItem, error)
		Videos(ctx context.Context, feedID, authorKey string, since *time.Time) ([]feedz.FeedItem, error)
	}

	Config struct {
		Cooldown  time.Duration
		ChunkSize int
		Retry     backoff.Config
	}

	// Engine refreshes batches of feeds.
	Engine struct {
		repo     feedz.Repository
		rss      RSSSource
		protocol ProtocolSource
		cfg      Config
	}

	// Result summarizes one batch run. A feed inside its cooldown window
	// counts as refreshed (it is considered up to date); Skipped records
	// how many of those there were so callers can tell the difference.
	Result struct {
		Total     int      `json:"total"`
		Refreshed int      `json:"refreshed"`
		Skipped   int      `json:"skipped"`
		NewItems  int      `json:"new_items"`
		Errors    []string `json:"errors"`
	}
)

func NewEngine(repo feedz.Repository, rss RSSSource, protocol ProtocolSource, cfg Config) *Engine {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = backoff.DefaultConfig
	}

	return &Engine{repo: repo, rss: rss, protocol: protocol, cfg: cfg}
}

// RefreshAll refreshes every feed any user is subscribed to.
func (e *Engine) RefreshAll(ctx context.Context, force bool) (Result, error) {
	feeds, err := e.repo.AllSubscribedFeeds(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("error listing subscribed feeds: %s", err)
	}

	return e.refreshFeeds(ctx, feeds, force), nil
}

// RefreshUser refreshes the feeds one user is subscribed to.
func (e *Engine) RefreshUser(ctx context.Context, userKey string, force bool) (Result, error) {
	feeds, err := e.repo.SubscribedFeeds(ctx, userKey)
	if err != nil {
		return Result{}, fmt.Errorf("error listing subscribed feeds: %s", err)
	}

	return e.refreshFeeds(ctx, feeds, force), nil
}

func (e *Engine) refreshFeeds(ctx context.Context, feeds []feedz.Feed, force bool) Result {
	// Deduplicate by feed identity; overlapping subscriptions must not
	// cause redundant fetches.
	seen := map[string]bool{}
	distinct := feeds[:0]
	for _, f := range feeds {
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		distinct = append(distinct, f)
	}

	result := Result{Total: len(distinct)}

	// Chunks run strictly after one another; feeds within a chunk run
	// concurrently.
	var mu sync.Mutex
	for start := 0; start < len(distinct); start += e.cfg.ChunkSize {
		end := min(start+e.cfg.ChunkSize, len(distinct))

		var wg sync.WaitGroup
		for _, feed := range distinct[start:end] {
			wg.Add(1)
			go func(feed feedz.Feed) {
				defer wg.Done()

				newItems, skipped, err := e.refreshFeed(ctx, feed, force)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					// One failing source never aborts the batch.
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", feed.Source, err))
					return
				}
				result.Refreshed++
				result.NewItems += newItems
				if skipped {
					result.Skipped++
				}
			}(feed)
		}
		wg.Wait()
	}

	return result
}

// refreshFeed fetches one feed if it is outside its cooldown window.
// The skipped return is true when the feed was within cooldown and
// considered already up to date.
func (e *Engine) refreshFeed(ctx context.Context, feed feedz.Feed, force bool) (int, bool, error) {
	cooldown := e.cfg.Cooldown
	if force {
		cooldown = 0
	}

	// Claiming advances last_fetched_at atomically, so overlapping runs
	// can't both fetch the same feed. Losing the claim means someone
	// else refreshed it recently enough.
	since := feed.LastFetchedAt
	won, err := e.repo.MarkFetched(ctx, feed.ID, time.Now(), cooldown)
	if err != nil {
		return 0, false, err
	}
	if !won {
		return 0, true, nil
	}

	var items []feedz.FeedItem
	fetchErr := backoff.Do(ctx, e.cfg.Retry, func(ctx context.Context) error {
		var err error
		items, err = e.fetchFeed(ctx, feed, since)
		return err
	})
	if fetchErr != nil {
		return 0, false, fetchErr
	}

	inserted, err := e.repo.InsertItems(ctx, items)
	if err != nil {
		return 0, false, err
	}

	slog.Debug("refreshed feed", "feed_id", feed.ID, "type", feed.Type, "new_items", inserted)

	return inserted, false, nil
}

func (e *Engine) fetchFeed(ctx context.Context, feed feedz.Feed, since *time.Time) ([]feedz.FeedItem, error) {
	switch feed.Type {
	case feedz.FeedTypeRSS:
		parsed, err := e.rss.Parse(ctx, feed.ID, feed.Source)
		if err != nil {
			return nil, err
		}
		// Carry forward source metadata when it changes.
		if err := e.repo.UpdateFeed(ctx, feed.ID, feedz.UpdateFeedArgs{
			Title:       parsed.Title,
			Description: parsed.Description,
		}); err != nil {
			slog.Warn("error updating feed metadata", "feed_id", feed.ID, "error", err)
		}
		return parsed.Items, nil
	case feedz.FeedTypeArticles:
		return e.protocol.Articles(ctx, feed.ID, feed.Source, since)
	case feedz.FeedTypeVideos:
		return e.protocol.Videos(ctx, feed.ID, feed.Source, since)
	default:
		return nil, fmt.Errorf("unknown feed type: %s", feed.Type)
	}
}
