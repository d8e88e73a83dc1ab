package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/convictiond/internal/blob/s3"
	"github.com/alanyoungcy/convictiond/internal/cache/redis"
	"github.com/alanyoungcy/convictiond/internal/config"
	"github.com/alanyoungcy/convictiond/internal/domain"
	"github.com/alanyoungcy/convictiond/internal/enclave"
	"github.com/alanyoungcy/convictiond/internal/notify"
	"github.com/alanyoungcy/convictiond/internal/service"
	"github.com/alanyoungcy/convictiond/internal/store/memory"
	"github.com/alanyoungcy/convictiond/internal/store/postgres"
	"github.com/alanyoungcy/convictiond/internal/treasury"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Markets domain.MarketStore
	Votes   domain.VoteStore
	Claims  domain.ClaimStore

	// Redis-backed coordination; all nil in dev mode.
	Cache     domain.MarketCache
	Locks     domain.LockManager
	Projector domain.Projector
	Bus       *redis.ProjectionBus

	// External services
	Enclave  domain.Enclave
	Treasury domain.Treasury
	Archiver service.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	dev := strings.ToLower(cfg.Mode) == "dev"

	// --- Stores ---
	if dev {
		markets := memory.NewMarketStore()
		deps.Markets = markets
		deps.Votes = memory.NewVoteStore(markets)
		deps.Claims = memory.NewClaimStore()
	} else {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Database.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Markets = postgres.NewMarketStore(pool)
		deps.Votes = postgres.NewVoteStore(pool)
		deps.Claims = postgres.NewClaimStore(pool)
	}

	// --- Redis (serve mode only) ---
	if !dev {
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

		deps.Cache = redis.NewMarketCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		bus := redis.NewProjectionBus(redisClient)
		deps.Bus = bus
		deps.Projector = bus
	}

	// --- Enclave ---
	if dev && cfg.Enclave.URL == "" {
		deps.Enclave = enclave.NewStub([]byte(cfg.Enclave.StubKey))
	} else {
		deps.Enclave = enclave.NewClient(cfg.Enclave.URL, cfg.Enclave.ApiKey, cfg.Enclave.Timeout.Duration)
	}

	// --- Treasury ---
	if cfg.Treasury.RelayerURL == "" {
		deps.Treasury = treasury.Nop{}
		if !dev {
			logger.WarnContext(ctx, "wire: no relayer configured, payouts are no-ops")
		}
	} else {
		keyHex, err := treasury.LoadKey(treasury.KeyConfig{
			RawPrivateKey:    cfg.Treasury.PrivateKey,
			EncryptedKeyPath: cfg.Treasury.EncryptedKeyPath,
			KeyPassword:      cfg.Treasury.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury key: %w", err)
		}
		signer, err := treasury.NewSigner(keyHex, cfg.Treasury.ChainID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: treasury signer: %w", err)
		}
		deps.Treasury = treasury.New(signer, cfg.Treasury.RelayerURL, cfg.Treasury.RequestTimeout.Duration, logger)
	}

	// --- S3 settlement report archival ---
	if cfg.S3.Enabled {
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
		deps.Archiver = s3blob.NewArchiver(s3Client)
	}

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
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
