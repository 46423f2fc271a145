// Feedzd is the feed aggregation daemon.
//
// It refreshes the RSS feeds and nostr author streams users subscribe
// to, and serves the HTTP API the reader process consumes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/api"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/fetch"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/migrations"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/refresh"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/sqlite"
	"github.com/privkeyio/Nostr-Feedz-sub000/logger"
)

type config struct {
	Port     int    `env:"PORT, default=4444"`
	Database string `env:"DATABASE, required"`

	// Relay endpoints queried for nostr author streams.
	Relays []string `env:"RELAYS, default=wss://relay.damus.io,wss://nos.lol"`

	// How often the batch refresh loop runs.
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL, default=1m"`

	CorsOrigin string `env:"CORS_ORIGIN, default=*"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Parse the config
	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	logger.Setup(cfg.LoggerFormat)

	// Start the application
	if err := run(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config) error {
	slog.Info("running", "config", cfg)

	// Connect to the db
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL", cfg.Database))
	if err != nil {
		return fmt.Errorf("error opening database: %s", err)
	}

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	var (
		repo    = sqlite.New(dbx)
		pool    = nostr.NewPool(cfg.Relays)
		rss     = fetch.NewRSSFetcher()
		authors = fetch.NewNostrSource(pool)
	)
	engine := refresh.NewEngine(repo, rss, authors, refresh.Config{})
	runner := refresh.NewRunner(engine, cfg.RefreshInterval)
	srvr := api.NewServer(api.Config{Port: cfg.Port, CorsOrigin: cfg.CorsOrigin}, repo, engine, rss, authors, pool)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Start the server
		if err := srvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error listening: %s", err)
		}

		return nil
	})
	g.Go(func() error {
		// Block from shutting down until the group is canceled
		<-gCtx.Done()

		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srvr.Shutdown(downCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		return nil
	})

	g.Go(func() error {
		// Start the batch refresh loop
		if err := runner.Run(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("error running refresh loop: %s", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}
