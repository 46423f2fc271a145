package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

func (r Repo) Item(ctx context.Context, id string) (feedz.FeedItem, error) {
	const q = `SELECT * FROM feed_items WHERE id = ?;`

	var item feedz.FeedItem
	err := r.db.GetContext(ctx, &item, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return feedz.FeedItem{}, feedz.ErrNotFound
	}
	if err != nil {
		return feedz.FeedItem{}, fmt.Errorf("error fetching item: %s", err)
	}

	return item, nil
}

// InsertItems bulk-inserts candidate items with skip-on-conflict
// semantics keyed by (feed_id, guid), which makes ingestion idempotent:
// replaying the same fetch never creates duplicates. Returns how many
// rows were actually new.
func (r Repo) InsertItems(ctx context.Context, items []feedz.FeedItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	// Create id's for the items. The reader cache passes items that
	// already carry their server-side id, which must be preserved so the
	// seen cache and read marks line up across refreshes.
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = fmt.Sprintf("%s%s", uuid.NewString(), itemNamespace)
		}
	}

	const q = `INSERT INTO feed_items (id, feed_id, guid, title, content, author, link, media_url, published_at)
	VALUES (:id, :feed_id, :guid, :title, :content, :author, :link, :media_url, :published_at)
	ON CONFLICT(feed_id, guid) DO NOTHING;`
	res, err := r.db.NamedExecContext(ctx, q, items)
	if err != nil {
		return 0, fmt.Errorf("error inserting items: %s", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading rows affected: %s", err)
	}

	return int(n), nil
}

func (r Repo) Items(ctx context.Context, filter feedz.ItemFilter) ([]feedz.FeedItem, error) {
	q := sq.Select("feed_items.*").From("feed_items").OrderBy("published_at DESC, created_at DESC")
	if len(filter.FeedIDs) > 0 {
		q = q.Where(sq.Eq{"feed_id": filter.FeedIDs})
	}
	if filter.UnreadOnly {
		q = q.Where("NOT EXISTS (SELECT 1 FROM read_marks WHERE read_marks.item_id = feed_items.id AND read_marks.user_key = ?)", filter.UserKey)
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var items []feedz.FeedItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("error fetching items: %s", err)
	}

	return items, nil
}

// UnreadItemIDs filters the given ids down to those without a read mark
// for the user.
func (r Repo) UnreadItemIDs(ctx context.Context, userKey string, itemIDs []string) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	q := sq.Select("id").From("feed_items").
		Where(sq.Eq{"id": itemIDs}).
		Where("NOT EXISTS (SELECT 1 FROM read_marks WHERE read_marks.item_id = feed_items.id AND read_marks.user_key = ?)", userKey)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting unread ids: %s", err)
	}

	return ids, nil
}

// UnreadCount counts items in the user's subscribed feeds without a
// read mark, which backs the badge.
func (r Repo) UnreadCount(ctx context.Context, userKey string) (int, error) {
	const q = `SELECT COUNT(*) FROM feed_items i
	JOIN subscriptions s ON s.feed_id = i.feed_id AND s.user_key = ?
	WHERE NOT EXISTS (SELECT 1 FROM read_marks m WHERE m.item_id = i.id AND m.user_key = ?);`

	var count int
	if err := r.db.GetContext(ctx, &count, q, userKey, userKey); err != nil {
		return 0, fmt.Errorf("error counting unread items: %s", err)
	}

	return count, nil
}
