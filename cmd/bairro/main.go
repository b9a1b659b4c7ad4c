package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bairro/internal/auth"
	"bairro/internal/cache"
	"bairro/internal/config"
	"bairro/internal/directory"
	"bairro/internal/events"
	"bairro/internal/export"
	"bairro/internal/logging"
	"bairro/internal/metrics"
	"bairro/internal/remote"
	"bairro/internal/store"
	syncer "bairro/internal/sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var exportOnce = flag.Bool("export", false, "export the directory to Excel and exit")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := store.New(cfg.Storage.Path)
	if err != nil {
		logger.Error().Err(err).Msg("opening local store failed")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	responseCache := initCache(ctx, cfg, &logger)

	session := auth.NewSession(db, cfg.Auth, &logger)
	client := remote.NewClient(cfg.API, session, &logger)
	session.SetAPI(client)
	if err := session.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("restoring stored session failed")
	}

	eventBus := events.NewEventBus()
	subscribeSyncEvents(eventBus, &logger)

	coordinator := syncer.NewCoordinator(
		client, db, db, db, responseCache, session, eventBus,
		cfg.Sync, cfg.Auth, &logger,
	)
	go coordinator.Run(ctx)

	reads := directory.NewService(client, responseCache, db, coordinator, cfg.API, &logger)

	if *exportOnce {
		exporter := export.NewExporter(reads, cfg.Exports, &logger)
		path, xerr := exporter.ExportDirectory(ctx)
		if xerr != nil {
			return xerr
		}
		logger.Info().Str("file_path", path).Msg("directory exported")
		return nil
	}

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	logger.Info().
		Str("api", cfg.API.BaseURL).
		Str("storage", cfg.Storage.Path).
		Msg("bairro started")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, err
	}
	logger := baseLogger.With().Str("component", "main").Logger()
	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("creating storage directory failed")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("creating export directory failed")
		return err
	}
	return nil
}

// initCache builds the cache tiers: redis fronted by a memory fallback
// when redis is configured, plain memory otherwise.
func initCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *cache.KeyedCache {
	memory := cache.NewMemoryStore()
	if !cfg.Redis.Enabled {
		return cache.New(memory, cfg.Cache.MaxAge.Std(), logger)
	}

	client := cache.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cache.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Msg("redis unreachable at startup, failover will retry")
	}

	tiered := cache.NewFailoverStore(cache.NewRedisStore(client), memory, logger)
	return cache.New(tiered, cfg.Cache.MaxAge.Std(), logger)
}

func subscribeSyncEvents(bus *events.EventBus, logger *zerolog.Logger) {
	bus.Subscribe(events.EventOperationFailed, func(event *events.Event) error {
		logger.Error().
			RawJSON("payload", event.Payload).
			Msg("queued operation permanently failed")
		return nil
	})
	bus.Subscribe(events.EventSessionExpired, func(event *events.Event) error {
		logger.Warn().Msg("session expired, sign-in required")
		return nil
	})
	bus.Subscribe(events.EventQueueBoundReached, func(event *events.Event) error {
		logger.Warn().
			RawJSON("payload", event.Payload).
			Msg("pending queue past configured bound")
		return nil
	})
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
