package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docsync/internal/api"
	"docsync/internal/config"
	"docsync/internal/connectivity"
	"docsync/internal/database"
	"docsync/internal/domain"
	"docsync/internal/events"
	"docsync/internal/logging"
	"docsync/internal/metrics"
	"docsync/internal/models"
	"docsync/internal/repository"
	"docsync/internal/syncer"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
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
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init cache database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()
	subscribeEventLog(eventBus, &logger)

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}
	remote := initRemoteStore(cfg, redisClient, &logger)

	monitor := connectivity.NewMonitor(&logger, eventBus)
	if src := connectivitySource(cfg, redisClient, &logger); src != nil {
		go monitor.Run(ctx, src)
	}

	engine, err := syncer.New(
		syncer.Options{
			Location: models.Location{Collection: cfg.Sync.Collection, DocID: cfg.Sync.DocID},
			CacheKey: cfg.Sync.CacheKey,
		},
		remote, db, monitor,
		syncer.WithLogger(&logger),
		syncer.WithEvents(eventBus),
	)
	if err != nil {
		return fmt.Errorf("init sync engine: %w", err)
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)
	go runPullLoop(ctx, engine, cfg.Sync.PullInterval, &logger)

	return serve(ctx, engine, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "docsync-main").Logger()

	return cfg, logger, closer, nil
}

// initRedis returns nil when no address is configured. An unreachable server
// at startup is not fatal: the probe reports it offline until it comes up.
func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), cfg.Connectivity.ProbeTimeout)
	defer cancel()
	if err := repository.Ping(pingCtx, client); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Redis.Address).Msg("redis not reachable yet")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func initRemoteStore(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.RemoteStore {
	if client == nil {
		logger.Warn().Msg("redis address not configured, using in-memory remote store")
		return repository.NewMemoryRemoteStore()
	}
	return repository.NewRedisRemoteStore(client, cfg.Redis.KeyPrefix)
}

// connectivitySource picks what drives the monitor. Without one the monitor
// stays online.
func connectivitySource(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) connectivity.Source {
	switch {
	case cfg.Connectivity.StateFile != "":
		return connectivity.NewFileSource(cfg.Connectivity.StateFile, logger)
	case client != nil && cfg.Connectivity.ProbeEnabled:
		return connectivity.NewProbeSource(connectivity.RedisPing(client), cfg.Connectivity, logger)
	default:
		return nil
	}
}

func subscribeEventLog(bus *events.EventBus, logger *zerolog.Logger) {
	l := logger.With().Str("component", "events").Logger()
	bus.SubscribeAll(func(ev *events.Event) error {
		l.Debug().
			Str("event", ev.Type).
			RawJSON("payload", ev.Payload).
			Time("at", ev.CreatedAt).
			Msg("sync event")
		return nil
	})
}

func runPullLoop(ctx context.Context, engine *syncer.Engine, interval time.Duration, logger *zerolog.Logger) {
	pull := func() {
		if res := engine.Pull(ctx); !res.Success {
			logger.Warn().Str("error", res.ErrorMessage).Msg("pull failed")
		}
	}

	pull()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pull()
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, engine *syncer.Engine, cfg *config.Config, logger *zerolog.Logger) error {
	var httpServer *api.HTTPServer
	if cfg.API.Enabled && cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, engine, logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Str("collection", cfg.Sync.Collection).
		Str("doc_id", cfg.Sync.DocID).
		Bool("http", httpServer != nil).
		Msg("docsync started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	if err := engine.Flush(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("pending writes did not finish before shutdown")
	}
	if n := engine.Status().QueueLength; n > 0 {
		logger.Warn().Int("queue_length", n).Msg("dropping queued writes on exit")
	}

	logger.Info().Msg("docsync stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
