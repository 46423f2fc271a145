package sqlite

import (
	"context"
	"fmt"
)

// Read and favorite marks are created and deleted idempotently: marking
// twice is a no-op, unmarking something absent succeeds.

func (r Repo) MarkRead(ctx context.Context, userKey, itemID string) error {
	const q = `INSERT INTO read_marks (user_key, item_id) VALUES (?, ?)
	ON CONFLICT(user_key, item_id) DO NOTHING;`

	if _, err := r.db.ExecContext(ctx, q, userKey, itemID); err != nil {
		return fmt.Errorf("error marking item read: %s", err)
	}

	return nil
}

func (r Repo) UnmarkRead(ctx context.Context, userKey, itemID string) error {
	const q = `DELETE FROM read_marks WHERE user_key = ? AND item_id = ?;`

	if _, err := r.db.ExecContext(ctx, q, userKey, itemID); err != nil {
		return fmt.Errorf("error unmarking item read: %s", err)
	}

	return nil
}

func (r Repo) MarkFavorite(ctx context.Context, userKey, itemID string) error {
	const q = `INSERT INTO favorites (user_key, item_id) VALUES (?, ?)
	ON CONFLICT(user_key, item_id) DO NOTHING;`

	if _, err := r.db.ExecContext(ctx, q, userKey, itemID); err != nil {
		return fmt.Errorf("error marking favorite: %s", err)
	}

	return nil
}

func (r Repo) UnmarkFavorite(ctx context.Context, userKey, itemID string) error {
	const q = `DELETE FROM favorites WHERE user_key = ? AND item_id = ?;`

	if _, err := r.db.ExecContext(ctx, q, userKey, itemID); err != nil {
		return fmt.Errorf("error unmarking favorite: %s", err)
	}

	return nil
}
