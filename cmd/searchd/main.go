package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bookbridge/searchd/internal/catalog"
	"github.com/bookbridge/searchd/internal/index"
	"github.com/bookbridge/searchd/internal/search"
	"github.com/bookbridge/searchd/internal/search/cache"
	"github.com/bookbridge/searchd/internal/server"
	syncpkg "github.com/bookbridge/searchd/internal/sync"
	"github.com/bookbridge/searchd/pkg/config"
	"github.com/bookbridge/searchd/pkg/health"
	"github.com/bookbridge/searchd/pkg/kafka"
	"github.com/bookbridge/searchd/pkg/logger"
	"github.com/bookbridge/searchd/pkg/metrics"
	"github.com/bookbridge/searchd/pkg/postgres"
	pkgredis "github.com/bookbridge/searchd/pkg/redis"
	"github.com/bookbridge/searchd/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting searchd",
		"port", cfg.Server.Port,
		"shards", cfg.Index.Shards,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	store, err := catalog.NewPostgresStore(ctx, pg)
	if err != nil {
		slog.Error("catalog store init failed", "error", err)
		os.Exit(1)
	}
	cursors := catalog.NewPostgresCursorStore(pg, "index")

	idx := index.New(cfg.Index)
	builder := index.NewBuilder(cfg.Index)
	watermark := syncpkg.NewWatermark()

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if !cfg.Cache.Enabled {
		slog.Info("query cache disabled by config")
	} else if redisClient, err = pkgredis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, using in-process cache", "error", err)
		redisClient = nil
		queryCache = cache.New(cache.NewLRU(cfg.Cache.MaxEntries), idx, cfg.Cache.TTL, m)
	} else {
		defer redisClient.Close()
		breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
		queryCache = cache.New(cache.NewRedis(redisClient, breaker), idx, cfg.Cache.TTL, m)
		slog.Info("redis cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Cache.TTL)
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentsChanged)
	defer producer.Close()
	notifier := syncpkg.NewNotifier(producer, cfg.Sync.NotifyBufferSize, cfg.Sync.NotifyFlushEntries)

	// Change events from peer replicas invalidate this replica's cached
	// results ahead of the revision check noticing. Without a cache there
	// is nothing to invalidate, so no consumer is started.
	var changeConsumer *kafka.Consumer
	if queryCache != nil {
		changeConsumer = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentsChanged,
			func(ctx context.Context, key, value []byte) error {
				event, err := kafka.DecodeJSON[syncpkg.ChangeEvent](value)
				if err != nil {
					slog.Warn("dropping malformed change event", "error", err)
					return nil
				}
				queryCache.InvalidateDocs(ctx, []string{event.DocumentID})
				return nil
			})
	}

	syncOpts := syncpkg.Options{Notifier: notifier, Metrics: m}
	if queryCache != nil {
		syncOpts.Invalidator = queryCache
	}
	syncer := syncpkg.New(store, cursors, idx, builder, watermark, cfg.Sync, syncOpts)
	reconciler := syncpkg.NewReconciler(store, cursors, idx, builder, watermark, cfg.Sync, m)

	if err := syncer.Bootstrap(ctx); err != nil {
		slog.Error("index bootstrap failed", "error", err)
		os.Exit(1)
	}
	slog.Info("index bootstrapped", "documents", idx.DocCount(), "cursor", watermark.Cursor())

	searcher := search.New(idx, cfg.Search, cfg.Index, search.Options{
		Staleness:      watermark,
		StalenessBound: cfg.Sync.StalenessBound,
		Metrics:        m,
	})

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := pg.DB.PingContext(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		staleness := watermark.Staleness()
		if staleness > 2*cfg.Sync.StalenessBound {
			return health.ComponentHealth{
				Status:  health.StatusDegraded,
				Message: fmt.Sprintf("index %s behind catalog", staleness.Truncate(time.Second)),
			}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents", idx.DocCount()),
		}
	})

	handler := server.New(searcher, store, queryCache, watermark, idx, cfg.Search)
	srv := server.NewServer(handler, checker, m, cfg.Server)

	var metricsShutdown func(context.Context) error
	if cfg.Metrics.Enabled {
		metricsShutdown = metrics.StartServer(cfg.Metrics.Port)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(groupCtx) })
	group.Go(func() error { return syncer.Run(groupCtx) })
	group.Go(func() error { return reconciler.Run(groupCtx) })
	group.Go(func() error { return notifier.Run(groupCtx) })
	if changeConsumer != nil {
		group.Go(func() error { return changeConsumer.Start(groupCtx) })
	}

	err = group.Wait()
	if metricsShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsShutdown(shutdownCtx)
		cancel()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("searchd exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("searchd stopped")
}
