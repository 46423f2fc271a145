package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"modernc.org/sqlite"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/feedz"
)

func (r Repo) Subscriptions(ctx context.Context, userKey string) ([]feedz.Subscription, error) {
	const q = `SELECT * FROM subscriptions WHERE user_key = ?;`

	var subs []feedz.Subscription
	if err := r.db.SelectContext(ctx, &subs, q, userKey); err != nil {
		return nil, fmt.Errorf("error selecting subscriptions: %s", err)
	}

	return subs, nil
}

func (r Repo) InsertSubscription(ctx context.Context, userKey, feedID, tags string) (feedz.Subscription, error) {
	const q = `INSERT INTO subscriptions (id, user_key, feed_id, tags)
	VALUES (:id, :user_key, :feed_id, :tags);`
	s := feedz.Subscription{
		ID:      fmt.Sprintf("%s%s", uuid.NewString(), subNamespace),
		UserKey: userKey,
		FeedID:  feedID,
		Tags:    tags,
	}
	_, err := r.db.NamedExecContext(ctx, q, s)
	if sqliteErr := (&sqlite.Error{}); errors.As(err, &sqliteErr) && sqliteErr.Code() == 2067 {
		return feedz.Subscription{}, fmt.Errorf("subscription already exists: %w", feedz.ErrConflict)
	}
	if err != nil {
		return feedz.Subscription{}, fmt.Errorf("error inserting subscription: %s", err)
	}

	return s, nil
}

func (r Repo) DeleteSubscription(ctx context.Context, userKey, feedID string) error {
	const q = `DELETE FROM subscriptions WHERE user_key = ? AND feed_id = ?;`

	if _, err := r.db.ExecContext(ctx, q, userKey, feedID); err != nil {
		return fmt.Errorf("error deleting subscription: %s", err)
	}

	return nil
}
