package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ryanbastic/go-slotgrid/internal/api"
	"github.com/ryanbastic/go-slotgrid/internal/cache"
	"github.com/ryanbastic/go-slotgrid/internal/circuitbreaker"
	"github.com/ryanbastic/go-slotgrid/internal/config"
	"github.com/ryanbastic/go-slotgrid/internal/index"
	"github.com/ryanbastic/go-slotgrid/internal/metrics"
	"github.com/ryanbastic/go-slotgrid/internal/notify"
	"github.com/ryanbastic/go-slotgrid/internal/reminder"
	"github.com/ryanbastic/go-slotgrid/internal/shard"
	"github.com/ryanbastic/go-slotgrid/internal/storage"
)

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shardCfg, err := config.LoadShardConfig(cfg.ShardConfigPath, cfg.NumShards)
	if err != nil {
		logger.Error("failed to load shard config", "error", err)
		os.Exit(1)
	}
	scoring, err := config.LoadScoringConfig(cfg.ScoringConfigPath)
	if err != nil {
		logger.Error("failed to load scoring config", "error", err)
		os.Exit(1)
	}
	if scoring.PenaltyBelowMaxLevel() {
		logger.Warn("penalty weight is below the worst level; non-responders will outrank weak availability",
			"penalty_weight", scoring.PenaltyWeight, "max_level", scoring.MaxLevel)
	}

	// Connect to every backend and migrate its shard range.
	router := shard.NewRouter(cfg.NumShards)
	indexRegistry := index.NewRegistry(cfg.NumShards)
	pools := make(map[string]*pgxpool.Pool, len(shardCfg.Backends))
	health := make(map[string]api.Pinger, len(shardCfg.Backends)+1)
	for _, b := range shardCfg.Backends {
		pool, err := pgxpool.New(ctx, b.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to backend", "backend", b.Name, "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Error("failed to ping backend", "backend", b.Name, "error", err)
			os.Exit(1)
		}
		if err := storage.RunMigrationsForPool(ctx, pool, b.ShardStart, b.ShardEnd); err != nil {
			logger.Error("failed to run migrations", "backend", b.Name, "error", err)
			os.Exit(1)
		}
		if err := index.CreateTablesRange(ctx, pool, b.ShardStart, b.ShardEnd); err != nil {
			logger.Error("failed to create index tables", "backend", b.Name, "error", err)
			os.Exit(1)
		}
		for i := b.ShardStart; i <= b.ShardEnd; i++ {
			router.Register(shard.ID(i), storage.NewPostgresStore(pool, i, cfg.QueryTimeout))
		}
		indexRegistry.RegisterRange(pool, b.ShardStart, b.ShardEnd)

		pools[b.Name] = pool
		health["postgres:"+b.Name] = pool
		logger.Info("backend ready", "backend", b.Name, "shard_start", b.ShardStart, "shard_end", b.ShardEnd)
	}
	prometheus.MustRegister(metrics.NewPoolCollector(pools))

	// Plugins and watcher checkpoints live on the backend that owns shard 0.
	primary, _ := shardCfg.BackendFor(0)
	controlPool := pools[primary.Name]
	if err := notify.EnsureSchema(ctx, controlPool); err != nil {
		logger.Error("failed to create notification tables", "error", err)
		os.Exit(1)
	}

	var heatmapCache cache.HeatmapCache = cache.Nop{}
	if cfg.RedisAddr != "" {
		rc, err := cache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.HeatmapCacheTTL)
		if err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		heatmapCache = rc
		health["redis"] = rc
		logger.Info("heatmap cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.HeatmapCacheTTL)
	}

	// Notifications
	plugins := notify.NewPluginRegistry(notify.NewPostgresPluginStore(controlPool, cfg.QueryTimeout))
	if err := plugins.Load(ctx); err != nil {
		logger.Error("failed to load plugins", "error", err)
		os.Exit(1)
	}
	breakers := circuitbreaker.NewSet(circuitbreaker.Settings{
		MaxFailures:  cfg.BreakerMaxFailures,
		ResetTimeout: cfg.BreakerResetTimeout,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn("plugin circuit changed state", "endpoint", name, "from", from, "to", to)
		},
	})
	pluginClient := notify.NewPluginClient(cfg.NotifyRetryMax, cfg.NotifyRetryBackoff, cfg.NotifyRPCTimeout)
	notifier := notify.NewNotifier(plugins, pluginClient, breakers, logger)
	logger.Info("plugins loaded", "count", len(plugins.List()))

	watcher := notify.NewWatcher(router, notify.NewPostgresCheckpoint(controlPool), cfg.WatchPollInterval, cfg.WatchBatchSize, logger)
	watcher.Handle("heatmap-cache", func(ctx context.Context, _ shard.ID, r storage.StoredResponse) error {
		return heatmapCache.InvalidateEvent(ctx, r.EventID)
	})
	watcher.Handle("response-notify", notify.PublishSubmitted(notifier))
	watcher.Start(ctx)
	logger.Info("response watcher started", "poll_interval", cfg.WatchPollInterval)

	reminders := reminder.New(router, notifier, logger)
	if cfg.ReminderCron != "" {
		if err := reminders.Start(ctx, cfg.ReminderCron); err != nil {
			logger.Error("invalid reminder schedule", "spec", cfg.ReminderCron, "error", err)
			os.Exit(1)
		}
		logger.Info("reminders scheduled", "spec", cfg.ReminderCron)
	}

	handler := api.NewServer(api.Deps{
		Logger:     logger,
		Router:     router,
		Index:      indexRegistry,
		Plugins:    plugins,
		Publisher:  notifier,
		Cache:      heatmapCache,
		Scoring:    scoring.Params(),
		Thresholds: scoring.Thresholds(),
		Health:     health,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Port, "shards", cfg.NumShards)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}

	// Stop producers before waiting on in-flight deliveries.
	reminders.Stop()
	cancel()
	watcher.Wait()
	notifier.Wait()

	logger.Info("shutdown complete")
}
