package refresh

import (
	"context"
	"log/slog"
	"time"
)

// Runner drives the engine on a fixed interval until its context is
// canceled.
type Runner struct {
	engine   *Engine
	interval time.Duration
}

func NewRunner(engine *Engine, interval time.Duration) *Runner {
	return &Runner{engine: engine, interval: interval}
}

// Run refreshes immediately, then on every tick. A failed batch is
// logged and the loop continues; only context cancellation stops it.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		result, err := r.engine.RefreshAll(ctx, false)
		if err != nil {
			slog.Error("error running batch refresh", "error", err)
		} else {
			slog.Info("batch refresh complete",
				"total", result.Total,
				"refreshed", result.Refreshed,
				"skipped", result.Skipped,
				"new_items", result.NewItems,
				"errors", len(result.Errors),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
