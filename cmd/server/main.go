package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/openshorten/openshorten/internal/admin"
	"github.com/openshorten/openshorten/internal/api"
	"github.com/openshorten/openshorten/internal/config"
	"github.com/openshorten/openshorten/internal/db"
	"github.com/openshorten/openshorten/internal/events"
	"github.com/openshorten/openshorten/internal/geoip"
	"github.com/openshorten/openshorten/internal/limiter"
	"github.com/openshorten/openshorten/internal/links"
	"github.com/openshorten/openshorten/internal/moderation"
	"github.com/openshorten/openshorten/internal/observability"
	"github.com/openshorten/openshorten/internal/settings"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLogger(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TracingEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	// Redis is an accelerator, not a dependency: without it every component
	// falls back to its failure policy against the durable store.
	cache, err := db.InitRedis(cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, running without cache", zap.Error(err))
		cache = nil
	}
	defer cache.Close()

	metricsRegistry := observability.NewPrometheusRegistry()

	var sink events.EventService
	if cfg.EventsEnabled {
		chSink, err := events.InitClickHouse(cfg.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("failed to connect clickhouse: %w", err)
		}
		defer chSink.Close()
		sink = chSink
	} else {
		sink = events.NewMockEvents()
	}

	var geo *geoip.GeoIP
	if cfg.GeoIPDB != "" {
		geo, err = geoip.Init(cfg.GeoIPDB)
		if err != nil {
			return fmt.Errorf("failed to load geoip db: %w", err)
		}
		defer func() { _ = geo.Close() }()
	}

	panicMode := settings.NewPanicMode(pg, cache, metricsRegistry, logger, cfg.PanicLocalTTL, cfg.PanicCacheTTL)
	blocker := moderation.NewIPBlocker(pg, cache, metricsRegistry, logger, cfg.MinBlockHours, cfg.MaxBlockHours)
	reports := moderation.NewReports(pg, cache, metricsRegistry, logger,
		cfg.DuplicateReportWindow, cfg.AutoFlagReportCount, cfg.AutoFlagMinUniqueIPs)
	appeals := moderation.NewAppeals(pg, cache, blocker, metricsRegistry, logger)
	rateLimiter := limiter.New(cache, metricsRegistry, logger)
	linkSvc := links.NewService(pg, cache, sink, geo, metricsRegistry, logger, links.Options{
		BaseURL:         cfg.BaseURL,
		LinkCacheTTL:    cfg.LinkCacheTTL,
		AnalyticsTTL:    cfg.AnalyticsCacheTTL,
		DuplicateWindow: cfg.DuplicateLinkWindow,
		MaxURLLength:    cfg.MaxURLLength,
		CodeLength:      cfg.ShortCodeLength,
	})
	adminSvc := admin.NewService(pg, panicMode, logger, cfg.AdminKey, cfg.MinAdminKeyLength)

	srv := api.NewServer(logger, cfg, metricsRegistry, linkSvc, rateLimiter,
		panicMode, blocker, reports, appeals, adminSvc)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("shortener running", zap.String("addr", httpSrv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	if cfg.CleanupInterval > 0 {
		go linkSvc.RunCleanup(ctx, cfg.CleanupInterval, cfg.CleanupMaxAge)
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}
