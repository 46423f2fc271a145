package sqlite

import (
	"context"
	"fmt"
)

// The seen-item cache records which item ids the reader has already
// raised notifications for. It is bounded: AddSeenItems appends and then
// trims to the newest max entries, evicting oldest-first, so the table
// survives restarts without growing with the feed history.

func (r Repo) SeenItems(ctx context.Context) ([]string, error) {
	const q = `SELECT item_id FROM seen_items ORDER BY pos ASC;`

	var ids []string
	if err := r.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, fmt.Errorf("error selecting seen items: %s", err)
	}

	return ids, nil
}

func (r Repo) AddSeenItems(ctx context.Context, ids []string, max int) error {
	if len(ids) == 0 {
		return nil
	}

	const insert = `INSERT INTO seen_items (item_id) VALUES (?)
	ON CONFLICT(item_id) DO NOTHING;`
	for _, id := range ids {
		if _, err := r.db.ExecContext(ctx, insert, id); err != nil {
			return fmt.Errorf("error inserting seen item: %s", err)
		}
	}

	const trim = `DELETE FROM seen_items WHERE pos NOT IN (
		SELECT pos FROM seen_items ORDER BY pos DESC LIMIT ?
	);`
	if _, err := r.db.ExecContext(ctx, trim, max); err != nil {
		return fmt.Errorf("error trimming seen items: %s", err)
	}

	return nil
}
