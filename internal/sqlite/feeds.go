package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

const (
	feedNamespace = "-fd"
	itemNamespace = "-itm"
	subNamespace  = "-sub"
)

func (r Repo) Feed(ctx context.Context, id string) (feedz.Feed, error) {
	const q = `SELECT * FROM feeds WHERE id = ?;`

	var feed feedz.Feed
	err := r.db.GetContext(ctx, &feed, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedz.Feed{}, feedz.ErrNotFound
	}
	if err != nil {
		return feedz.Feed{}, fmt.Errorf("error fetching feed: %s", err)
	}

	return feed, nil
}

func (r Repo) FeedBySource(ctx context.Context, typ feedz.FeedType, source string) (feedz.Feed, error) {
	const q = `SELECT * FROM feeds WHERE type = ? AND source = ?;`

	var feed feedz.Feed
	err := r.db.GetContext(ctx, &feed, q, typ, source)
	if errors.Is(err, sql.ErrNoRows) {
		return feedz.Feed{}, feedz.ErrNotFound
	}
	if err != nil {
		return feedz.Feed{}, fmt.Errorf("error fetching feed: %s", err)
	}

	return feed, nil
}

func (r Repo) InsertFeed(ctx context.Context, typ feedz.FeedType, source string) (feedz.Feed, error) {
	const q = `INSERT INTO feeds (id, type, source) VALUES (:id, :type, :source);`
	f := feedz.Feed{
		ID:     fmt.Sprintf("%s%s", uuid.NewString(), feedNamespace),
		Type:   typ,
		Source: source,
	}
	_, err := r.db.NamedExecContext(ctx, q, f)
	if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == 2067 {
		return feedz.Feed{}, fmt.Errorf("feed already exists: %w", feedz.ErrConflict)
	}
	if err != nil {
		return feedz.Feed{}, fmt.Errorf("error inserting feed: %s", err)
	}

	return r.Feed(ctx, f.ID)
}

// UpsertFeed writes a feed under a caller-provided id. The reader cache
// uses this to mirror server feeds locally without minting new ids.
func (r Repo) UpsertFeed(ctx context.Context, feed feedz.Feed) error {
	const q = `INSERT INTO feeds (id, type, source, title, description, last_fetched_at)
	VALUES (:id, :type, :source, :title, :description, :last_fetched_at)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		last_fetched_at = excluded.last_fetched_at,
		updated_at = CURRENT_TIMESTAMP;`

	if _, err := r.db.NamedExecContext(ctx, q, feed); err != nil {
		return fmt.Errorf("error upserting feed: %s", err)
	}

	return nil
}

func (r Repo) UpdateFeed(ctx context.Context, id string, args feedz.UpdateFeedArgs) error {
	q := sq.Update("feeds")
	if args.Title != "" {
		q = q.Set("title", args.Title)
	}
	if args.Description != "" {
		q = q.Set("description", args.Description)
	}
	q = q.Set("updated_at", time.Now().UTC())
	q = q.Where(sq.Eq{"id": id})

	query, qArgs, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}
	if _, err := r.db.ExecContext(ctx, query, qArgs...); err != nil {
		return fmt.Errorf("error executing feed update: %s", err)
	}

	return nil
}

// MarkFetched claims the feed for fetching: last_fetched_at is advanced
// only when the feed is outside the cooldown window, and the affected
// row count says whether this caller won. The conditional update makes
// check-and-act atomic under overlapping refresh runs.
func (r Repo) MarkFetched(ctx context.Context, id string, at time.Time, cooldown time.Duration) (bool, error) {
	const q = `UPDATE feeds SET last_fetched_at = ?
	WHERE id = ? AND (last_fetched_at IS NULL OR last_fetched_at < ?);`

	res, err := r.db.ExecContext(ctx, q, at.UTC(), id, at.Add(-cooldown).UTC())
	if err != nil {
		return false, fmt.Errorf("error marking feed fetched: %s", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %s", err)
	}

	return n > 0, nil
}

// SubscribedFeeds retrieves the distinct feeds reachable through one
// user's subscriptions.
func (r Repo) SubscribedFeeds(ctx context.Context, userKey string) ([]feedz.Feed, error) {
	const q = `SELECT f.* FROM feeds f
	JOIN subscriptions s ON s.feed_id = f.id
	WHERE s.user_key = ?;`

	var feeds []feedz.Feed
	if err := r.db.SelectContext(ctx, &feeds, q, userKey); err != nil {
		return nil, fmt.Errorf("error selecting subscribed feeds: %s", err)
	}

	return feeds, nil
}

// AllSubscribedFeeds retrieves the distinct feeds reachable through any
// user's subscriptions.
func (r Repo) AllSubscribedFeeds(ctx context.Context) ([]feedz.Feed, error) {
	const q = `SELECT DISTINCT f.* FROM feeds f
	JOIN subscriptions s ON s.feed_id = f.id;`

	var feeds []feedz.Feed
	if err := r.db.SelectContext(ctx, &feeds, q); err != nil {
		return nil, fmt.Errorf("error selecting subscribed feeds: %s", err)
	}

	return feeds, nil
}
