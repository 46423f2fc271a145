package refresh

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/backoff"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/fetch"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/migrations"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/sqlite"
)

type stubRSS struct {
	parse func(feedID, feedURL string) (fetch.ParsedFeed, error)
}

func (s stubRSS) Parse(ctx context.Context, feedID, feedURL string) (fetch.ParsedFeed, error) {
	return s.parse(feedID, feedURL)
}

type stubProtocol struct {
	articles func(feedID, authorKey string, since *time.Time) ([]feedz.FeedItem, error)
}

func (s stubProtocol) Articles(ctx context.Context, feedID, authorKey string, since *time.Time) ([]feedz.FeedItem, error) {
	if s.articles == nil {
		return nil, nil
	}
	return s.articles(feedID, authorKey, since)
}

func (s stubProtocol) Videos(ctx context.Context, feedID, authorKey string, since *time.Time) ([]feedz.FeedItem, error) {
	return nil, nil
}

func testRepo(t *testing.T) sqlite.Repo {
	t.Helper()

	dbx, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	dbx.SetMaxOpenConns(1)

	require.NoError(t, migrations.Run(dbx))

	return sqlite.New(dbx)
}

// Retry config that doesn't slow the tests down.
var fastRetry = backoff.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

func subscribeRSSFeeds(t *testing.T, repo feedz.Repository, n int) []feedz.Feed {
	t.Helper()

	ctx := context.Background()
	feeds := make([]feedz.Feed, 0, n)
	for i := 0; i < n; i++ {
		feed, err := repo.InsertFeed(ctx, feedz.FeedTypeRSS, fmt.Sprintf("https://example.com/feed-%d", i))
		require.NoError(t, err)
		_, err = repo.InsertSubscription(ctx, "user-1", feed.ID, "")
		require.NoError(t, err)
		feeds = append(feeds, feed)
	}

	return feeds
}

func TestRefreshAll_IngestionIdempotence(t *testing.T) {
	repo := testRepo(t)
	subscribeRSSFeeds(t, repo, 1)

	rss := stubRSS{parse: func(feedID, feedURL string) (fetch.ParsedFeed, error) {
		return fetch.ParsedFeed{
			Title: "Stable Feed",
			Items: []feedz.FeedItem{
				{FeedID: feedID, GUID: "a", Title: "first"},
				{FeedID: feedID, GUID: "b", Title: "second"},
			},
		}, nil
	}}

	engine := NewEngine(repo, rss, stubProtocol{}, Config{Retry: fastRetry})

	result, err := engine.RefreshAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Refreshed)
	assert.Equal(t, 2, result.NewItems)

	// Second run against an unchanged remote source: forced past the
	// cooldown, but ingestion stays idempotent.
	result, err = engine.RefreshAll(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Refreshed)
	assert.Equal(t, 0, result.NewItems)

	items, err := repo.Items(context.Background(), feedz.ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRefreshAll_CooldownSkips(t *testing.T) {
	repo := testRepo(t)
	subscribeRSSFeeds(t, repo, 1)

	var calls int
	rss := stubRSS{parse: func(feedID, feedURL string) (fetch.ParsedFeed, error) {
		calls++
		return fetch.ParsedFeed{}, nil
	}}

	engine := NewEngine(repo, rss, stubProtocol{}, Config{Retry: fastRetry})

	_, err := engine.RefreshAll(context.Background(), false)
	require.NoError(t, err)

	// Within the cooldown window: no real work, but the feed still
	// counts as refreshed.
	result, err := engine.RefreshAll(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Refreshed)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, calls)
	assert.Empty(t, result.Errors)
}

func TestRefreshAll_PartialFailureIsolation(t *testing.T) {
	repo := testRepo(t)
	feeds := subscribeRSSFeeds(t, repo, 5)
	failing := feeds[2].Source

	rss := stubRSS{parse: func(feedID, feedURL string) (fetch.ParsedFeed, error) {
		if feedURL == failing {
			return fetch.ParsedFeed{}, errors.New("connection refused")
		}
		return fetch.ParsedFeed{
			Items: []feedz.FeedItem{{FeedID: feedID, GUID: feedURL + "-item"}},
		}, nil
	}}

	engine := NewEngine(repo, rss, stubProtocol{}, Config{Retry: fastRetry})

	result, err := engine.RefreshAll(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 4, result.Refreshed)
	assert.Equal(t, 4, result.NewItems)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], failing)

	// The other feeds' items made it in.
	items, err := repo.Items(context.Background(), feedz.ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 4)
}

func TestRefreshAll_ProtocolSinceWindow(t *testing.T) {
	repo := testRepo(t)

	ctx := context.Background()
	feed, err := repo.InsertFeed(ctx, feedz.FeedTypeArticles, "authorpubkey")
	require.NoError(t, err)
	_, err = repo.InsertSubscription(ctx, "user-1", feed.ID, "")
	require.NoError(t, err)

	var gotSince []*time.Time
	protocol := stubProtocol{articles: func(feedID, authorKey string, since *time.Time) ([]feedz.FeedItem, error) {
		gotSince = append(gotSince, since)
		return []feedz.FeedItem{{FeedID: feedID, GUID: "ev1"}}, nil
	}}

	engine := NewEngine(repo, stubRSS{}, protocol, Config{Retry: fastRetry})

	_, err = engine.RefreshAll(ctx, false)
	require.NoError(t, err)
	_, err = engine.RefreshAll(ctx, true)
	require.NoError(t, err)

	require.Len(t, gotSince, 2)
	// First fetch is unbounded; the second starts at the previous fetch.
	assert.Nil(t, gotSince[0])
	assert.NotNil(t, gotSince[1])
}

func TestRefreshUser_OnlyTheirFeeds(t *testing.T) {
	repo := testRepo(t)
	subscribeRSSFeeds(t, repo, 2)

	ctx := context.Background()
	other, err := repo.InsertFeed(ctx, feedz.FeedTypeRSS, "https://other.example.com/feed")
	require.NoError(t, err)
	_, err = repo.InsertSubscription(ctx, "user-2", other.ID, "")
	require.NoError(t, err)

	rss := stubRSS{parse: func(feedID, feedURL string) (fetch.ParsedFeed, error) {
		return fetch.ParsedFeed{}, nil
	}}
	engine := NewEngine(repo, rss, stubProtocol{}, Config{Retry: fastRetry})

	result, err := engine.RefreshUser(ctx, "user-1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}
