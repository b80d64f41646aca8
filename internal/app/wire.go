package app

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/curvelab/monbot/internal/api"
	s3blob "github.com/curvelab/monbot/internal/blob/s3"
	"github.com/curvelab/monbot/internal/cache/redis"
	"github.com/curvelab/monbot/internal/config"
	"github.com/curvelab/monbot/internal/crypto"
	"github.com/curvelab/monbot/internal/domain"
	"github.com/curvelab/monbot/internal/engine"
	"github.com/curvelab/monbot/internal/exchange"
	"github.com/curvelab/monbot/internal/feed"
	"github.com/curvelab/monbot/internal/notify"
	"github.com/curvelab/monbot/internal/precision"
	"github.com/curvelab/monbot/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to
// operate. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Chain and engines (trade and monitor modes).
	Backend     *exchange.Backend
	Engines     map[string]*engine.Engine
	Normalizers map[string]*precision.Normalizer
	Feed        *feed.Client
	Indexer     *api.Client

	// Persistence
	OrderStore domain.OrderStore
	BookCache  domain.BookCache

	// Blob storage (archive mode).
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsChain returns true for modes that talk to the chain and the feed.
func needsChain(mode string) bool {
	return mode == "trade" || mode == "monitor"
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	return mode == "archive"
}

// Wire constructs all concrete dependency implementations from the
// given configuration and returns them together with a cleanup function
// that should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}
	deps.OrderStore = postgres.NewOrderStore(pgClient)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.States, logger)

	// --- Redis book mirror (chain modes only) ---
	if needsChain(cfg.Mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.BookCache = redis.NewBookCache(redisClient)
	}

	// --- Chain backend, engines, and feed ---
	if needsChain(cfg.Mode) {
		key, err := signingKey(cfg)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signing key: %w", err)
		}

		markets := make(map[string]string, len(cfg.Markets))
		for _, m := range cfg.Markets {
			markets[m.Symbol] = m.Address
		}

		backend, err := exchange.NewBackend(ctx, exchange.BackendConfig{
			RPCURL:         cfg.Chain.RPCURL,
			Markets:        markets,
			ReceiptPoll:    cfg.Chain.ReceiptPoll.Duration,
			ReceiptTimeout: cfg.Chain.ReceiptTimeout.Duration,
			GasLimitBump:   uint64(cfg.Chain.GasLimitBump),
		}, key, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain backend: %w", err)
		}
		closers = append(closers, func() { _ = backend.Close() })
		deps.Backend = backend

		deps.Engines = make(map[string]*engine.Engine, len(cfg.Markets))
		deps.Normalizers = make(map[string]*precision.Normalizer, len(cfg.Markets))
		deps.Feed = feed.NewClient(cfg.Feed.WsURL, logger)

		for _, m := range cfg.Markets {
			params, err := backend.FetchMarketParams(ctx, m.Symbol)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: market params %s: %w", m.Symbol, err)
			}
			norm, err := precision.New(params)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: normalizer %s: %w", m.Symbol, err)
			}
			deps.Normalizers[m.Symbol] = norm

			eng := engine.New(m.Symbol, norm, backend, backend, logger, engine.Options{
				InboxSize:  m.InboxSize,
				OnTerminal: terminalHook(deps.OrderStore, deps.Notifier, logger),
			})
			deps.Engines[m.Symbol] = eng

			// Warm the book from the last mirrored snapshot; it stays
			// stale until the first live resync.
			if deps.BookCache != nil {
				if snap, err := deps.BookCache.LoadSnapshot(ctx, m.Symbol); err == nil {
					eng.Warm(snap)
				}
			}

			// Feed payloads are keyed by market address.
			deps.Feed.Register(m.Address, eng)
		}
	}

	// --- Indexer REST client (optional) ---
	if cfg.Indexer.APIURL != "" {
		deps.Indexer = api.NewClient(cfg.Indexer.APIURL)
	}

	// --- S3 blob storage (archive mode) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		archiver := s3blob.NewArchiver(deps.BlobWriter, deps.OrderStore, logger)
		archiver.Prune = cfg.Archive.Prune
		if cfg.Archive.BatchLimit > 0 {
			archiver.BatchLimit = cfg.Archive.BatchLimit
		}
		deps.Archiver = archiver
	}

	return deps, cleanup, nil
}

// signingKey resolves the transaction signing key. Monitor mode never
// sends transactions, so it runs on an ephemeral throwaway key when no
// wallet is configured.
func signingKey(cfg *config.Config) (*ecdsa.PrivateKey, error) {
	if cfg.Wallet.PrivateKey == "" && cfg.Wallet.EncryptedKeyPath == "" {
		if cfg.Mode == "trade" {
			return nil, fmt.Errorf("no wallet configured for trade mode")
		}
		return ethcrypto.GenerateKey()
	}
	return crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
}

// terminalHook persists and alerts on orders reaching a terminal state.
// It runs off the engine goroutine so slow sinks never stall event
// application.
func terminalHook(store domain.OrderStore, notifier *notify.Notifier, logger *slog.Logger) func(domain.ClientOrder) {
	return func(order domain.ClientOrder) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := store.Upsert(ctx, order); err != nil {
				logger.Error("persist terminal order failed",
					slog.String("cloid", order.Cloid),
					slog.String("error", err.Error()))
			}
			if err := notifier.NotifyOrder(ctx, order); err != nil {
				logger.Warn("order notification failed",
					slog.String("cloid", order.Cloid),
					slog.String("error", err.Error()))
			}
		}()
	}
}
