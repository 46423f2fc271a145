// Reader is the client-side process: it polls the feedzd server for the
// user's feeds and items, mirrors them into a local cache so the data
// survives being offline, and raises notifications for new items.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/run"
	"github.com/sethvargo/go-envconfig"
	_ "golang.org/x/crypto/x509roots/fallback"
	_ "modernc.org/sqlite"

	"github.com/privkeyio/Nostr-Feedz-sub000/internal/client"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/migrations"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/nostr"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/reader"
	"github.com/privkeyio/Nostr-Feedz-sub000/internal/sqlite"
	"github.com/privkeyio/Nostr-Feedz-sub000/logger"
)

type config struct {
	ServerURL string `env:"SERVER_URL, default=http://localhost:4444"`

	// Cache is the path of the local sqlite database.
	Cache string `env:"CACHE, required"`

	// NSec is the user's bech32 secret key. Without it the reader runs
	// unauthenticated and serves whatever the cache already holds.
	NSec string `env:"NSEC"`
	// Pubkey (npub or hex) scopes the cache when no secret key is set.
	Pubkey string `env:"PUBKEY"`

	PollInterval time.Duration `env:"POLL_INTERVAL, default=5m"`

	// Which format to use for logging: either text or json
	LoggerFormat string `env:"LOGGER_FORMAT, default=text"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	logger.Setup(cfg.LoggerFormat)

	if err := runReader(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func runReader(ctx context.Context, cfg config) error {
	dbx, err := sqlx.Open("sqlite", fmt.Sprintf("%s?_journal_mode=WAL", cfg.Cache))
	if err != nil {
		return fmt.Errorf("error opening cache database: %s", err)
	}

	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating cache: %s", err)
	}
	store := sqlite.New(dbx)

	var (
		signer  nostr.Signer
		userKey string
	)
	switch {
	case cfg.NSec != "":
		privHex, ok := nostr.DecodeNsec(cfg.NSec)
		if !ok {
			return errors.New("NSEC is not a valid secret key")
		}
		local, err := nostr.NewLocalSigner(privHex)
		if err != nil {
			return fmt.Errorf("error building signer: %s", err)
		}
		signer = local
		if userKey, err = local.PublicKey(ctx); err != nil {
			return err
		}
	case cfg.Pubkey != "":
		userKey = cfg.Pubkey
		if hexKey, ok := nostr.DecodeNpub(cfg.Pubkey); ok {
			userKey = hexKey
		}
		slog.Info("no secret key configured, running from cache only")
	default:
		return errors.New("either NSEC or PUBKEY must be set")
	}

	cli := client.New(cfg.ServerURL, signer)
	rdr := reader.New(cli, store, reader.LogNotifier{}, reader.Config{
		UserKey:  userKey,
		Interval: cfg.PollInterval,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		return rdr.Run(runCtx)
	}, func(error) {
		cancel()
	})
	g.Add(run.SignalHandler(runCtx, syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	sigErr := &run.SignalError{}
	if errors.As(err, sigErr) || errors.Is(err, context.Canceled) {
		slog.Info("shutting down")
		return nil
	}

	return err
}
