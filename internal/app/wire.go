package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/derivbot/internal/blob/s3"
	"github.com/alanyoungcy/derivbot/internal/cache/redis"
	"github.com/alanyoungcy/derivbot/internal/config"
	"github.com/alanyoungcy/derivbot/internal/domain"
	"github.com/alanyoungcy/derivbot/internal/feed"
	"github.com/alanyoungcy/derivbot/internal/history"
	"github.com/alanyoungcy/derivbot/internal/notify"
	"github.com/alanyoungcy/derivbot/internal/platform/binance"
	"github.com/alanyoungcy/derivbot/internal/platform/bybit"
	"github.com/alanyoungcy/derivbot/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application
// modes need. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	// Stores
	OpportunityStore domain.OpportunityStore

	// Archiver is nil when cold storage is disabled.
	Archiver domain.RecordArchiver

	// Caches
	RateCache   domain.RateCache
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Market data
	Feed   domain.MarketDataFeed
	Venues []domain.Venue
	Depths map[domain.VenueID]float64

	// Mark price stream warmers, one per venue with a configured ws URL.
	Streams []*binance.WSClient

	// Shared between detector and API server.
	History *history.History

	// Notifications
	Notifier *notify.Notifier
}

// symbols converts the configured symbol strings.
func symbols(cfg *config.Config) []domain.Symbol {
	out := make([]domain.Symbol, 0, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		out = append(out, domain.Symbol(s))
	}
	return out
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

	deps := &Dependencies{
		Depths: make(map[domain.VenueID]float64),
	}

	// --- PostgreSQL: the durable opportunity record sink ---
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
	deps.OpportunityStore = postgres.NewOpportunityStore(pgClient.Pool())

	// --- Cold storage for pruned records ---
	if cfg.Archive.Enabled {
		blobClient, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.Endpoint,
			Region:         cfg.Archive.Region,
			Bucket:         cfg.Archive.Bucket,
			AccessKey:      cfg.Archive.AccessKey,
			SecretKey:      cfg.Archive.SecretKey,
			UseSSL:         cfg.Archive.UseSSL,
			ForcePathStyle: cfg.Archive.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: archive storage: %w", err)
		}
		closers = append(closers, func() { _ = blobClient.Close() })
		deps.Archiver = s3blob.NewArchiver(blobClient, deps.OpportunityStore, logger)
	}

	// --- Redis ---
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

	rateCache := redis.NewRateCache(redisClient)
	deps.RateCache = rateCache
	deps.SignalBus = redis.NewSignalBus(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient,
		cfg.Detection.VenueRateLimit,
		cfg.Detection.VenueRateLimitWindow.Duration,
	)

	// --- Venue adapters ---
	syms := symbols(cfg)
	adapters := make(map[domain.VenueID]feed.VenueAdapter, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		venueID := domain.VenueID(vc.ID)

		switch strings.ToLower(vc.Driver) {
		case "binance":
			adapters[venueID] = binance.NewClient(binance.Config{
				FuturesURL: vc.RestURL,
				Timeout:    cfg.Detection.FetchTimeout.Duration,
				Limiter:    deps.RateLimiter,
			})
			if vc.WsURL != "" {
				stream := binance.NewWSClient(vc.WsURL, syms)
				stream.OnMarkPrice(func(symbol domain.Symbol, q domain.FundingRateQuote) {
					if err := rateCache.SetFundingRate(context.Background(), venueID, symbol, q); err != nil {
						logger.Warn("wire: stream cache write failed",
							slog.String("venue", vc.ID),
							slog.String("symbol", string(symbol)),
							slog.String("error", err.Error()),
						)
					}
				})
				deps.Streams = append(deps.Streams, stream)
			}
		case "bybit":
			adapters[venueID] = bybit.NewClient(bybit.Config{
				BaseURL: vc.RestURL,
				Timeout: cfg.Detection.FetchTimeout.Duration,
				Limiter: deps.RateLimiter,
			})
		default:
			cleanup()
			return nil, nil, fmt.Errorf("wire: venue %s: unknown driver %q", vc.ID, vc.Driver)
		}

		deps.Venues = append(deps.Venues, domain.Venue{
			ID: venueID,
			Fees: domain.FeeSchedule{
				SpotMaker:    vc.SpotMakerFee,
				SpotTaker:    vc.SpotTakerFee,
				FuturesMaker: vc.FuturesMakerFee,
				FuturesTaker: vc.FuturesTakerFee,
			},
			Reliability: vc.Reliability,
		})
		deps.Depths[venueID] = vc.DepthNotionalUSD
	}

	composite := feed.NewComposite(adapters)
	deps.Feed = feed.NewCached(composite, deps.RateCache, cfg.Detection.StalenessWindow.Duration, logger)

	// --- In-memory history window ---
	deps.History = history.New(history.Config{
		MaxRecords: cfg.History.MaxRecords,
		MaxAge:     cfg.History.MaxAge.Duration,
	})

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
