// Package feedz holds the domain types shared between the server daemon
// and the reader process.
package feedz

import (
	"context"
	"errors"
	"time"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")
)

// FeedType distinguishes where a feed's items come from.
type FeedType string

const (
	// FeedTypeRSS is a plain RSS or Atom feed fetched over HTTP.
	FeedTypeRSS FeedType = "rss"
	// FeedTypeArticles is a nostr author's long-form article stream.
	FeedTypeArticles FeedType = "nostr_articles"
	// FeedTypeVideos is a nostr author's video stream.
	FeedTypeVideos FeedType = "nostr_videos"
)

type (
	// Feed represents one subscribable source. For RSS feeds Source is
	// the feed URL; for nostr feeds it is the author's hex pubkey.
	Feed struct {
		ID            string     `db:"id"`
		Type          FeedType   `db:"type"`
		Source        string     `db:"source"`
		Title         *string    `db:"title"`
		Description   *string    `db:"description"`
		LastFetchedAt *time.Time `db:"last_fetched_at"`
		CreatedAt     time.Time  `db:"created_at"`
		UpdatedAt     time.Time  `db:"updated_at"`
	}

	// FeedItem represents one article, post, or video in a feed.
	//
	// (FeedID, GUID) is the sole de-duplication key for ingestion.
	FeedItem struct {
		ID          string     `db:"id"`
		FeedID      string     `db:"feed_id"`
		GUID        string     `db:"guid"`
		Title       string     `db:"title"`
		Content     string     `db:"content"`
		Author      string     `db:"author"`
		Link        string     `db:"link"`
		MediaURL    string     `db:"media_url"`
		PublishedAt *time.Time `db:"published_at"`
		CreatedAt   time.Time  `db:"created_at"`
	}

	// Subscription binds a user (hex pubkey) to a feed.
	Subscription struct {
		ID        string    `db:"id"`
		UserKey   string    `db:"user_key"`
		FeedID    string    `db:"feed_id"`
		Tags      string    `db:"tags"` // comma separated
		CreatedAt time.Time `db:"created_at"`
	}

	// ItemFilter narrows item listings.
	ItemFilter struct {
		FeedIDs    []string
		UnreadOnly bool
		UserKey    string // required when UnreadOnly is set
		Limit      int
	}

	// Holds the optional fields for updating a feed.
	UpdateFeedArgs struct {
		Title       string
		Description string
	}

	Repository interface {
		Feed(ctx context.Context, id string) (Feed, error)
		FeedBySource(ctx context.Context, typ FeedType, source string) (Feed, error)
		InsertFeed(ctx context.Context, typ FeedType, source string) (Feed, error)
		UpdateFeed(ctx context.Context, id string, args UpdateFeedArgs) error
		// MarkFetched sets last_fetched_at only when the feed is outside the
		// cooldown window, returning whether the caller won the claim.
		MarkFetched(ctx context.Context, id string, at time.Time, cooldown time.Duration) (bool, error)
		SubscribedFeeds(ctx context.Context, userKey string) ([]Feed, error)
		AllSubscribedFeeds(ctx context.Context) ([]Feed, error)

		InsertItems(ctx context.Context, items []FeedItem) (int, error)
		Item(ctx context.Context, id string) (FeedItem, error)
		Items(ctx context.Context, filter ItemFilter) ([]FeedItem, error)
		UnreadCount(ctx context.Context, userKey string) (int, error)

		Subscriptions(ctx context.Context, userKey string) ([]Subscription, error)
		InsertSubscription(ctx context.Context, userKey, feedID, tags string) (Subscription, error)
		DeleteSubscription(ctx context.Context, userKey, feedID string) error

		MarkRead(ctx context.Context, userKey, itemID string) error
		UnmarkRead(ctx context.Context, userKey, itemID string) error
		MarkFavorite(ctx context.Context, userKey, itemID string) error
		UnmarkFavorite(ctx context.Context, userKey, itemID string) error
	}
)

// SubscriptionList is the portable snapshot of a user's subscriptions,
// carried as the content of a replaceable nostr event so it can follow
// the user across installations.
type SubscriptionList struct {
	RSS   []string            `json:"rss"`
	Nostr []string            `json:"nostr"`
	Tags  map[string][]string `json:"tags,omitempty"`
}
