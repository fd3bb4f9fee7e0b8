package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	crudobs "github.com/Apurer/go-gin-crud-server/internal/crud/adapters/observability"
	catalogapp "github.com/Apurer/go-gin-crud-server/internal/domains/catalog/application"
	"github.com/Apurer/go-gin-crud-server/internal/domains/catalog/domain"
	"github.com/Apurer/go-gin-crud-server/internal/platform/migrations"
	platformobservability "github.com/Apurer/go-gin-crud-server/internal/platform/observability"
	platformpostgres "github.com/Apurer/go-gin-crud-server/internal/platform/postgres"
)

// Run boots the catalog HTTP API and blocks until ctx is cancelled or the
// server fails. Cancellation triggers a graceful shutdown.
func Run(ctx context.Context) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	instruments, shutdown, err := platformobservability.Init(ctx, platformobservability.Settings{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		LogLevel:    cfg.SlogLevel(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			instruments.Logger.Error("failed to shutdown observability", slog.String("error", err.Error()))
		}
	}()
	logger := instruments.Logger

	db, cleanupDB := platformpostgres.ConnectOrFallback(ctx, cfg.PostgresDSN, logger)
	defer cleanupDB()

	stores := catalogapp.NewMemoryStores()
	if db != nil {
		if cfg.AutoMigrate {
			if err := migrations.Run(ctx, db); err != nil {
				return err
			}
			logger.Info("catalog schema migrated")
		}
		stores = catalogapp.NewPostgresStores(db)
	}

	services := catalogapp.NewServices(stores, catalogapp.Decorator{
		Bands: func(s catalogapp.BandService) catalogapp.BandService {
			return crudobs.New[domain.Band, domain.BandCreate, domain.BandUpdate](s, observabilityOptions(instruments, "internal.catalog.bands")...)
		},
		Songs: func(s catalogapp.SongService) catalogapp.SongService {
			return crudobs.New[domain.Song, domain.SongCreate, domain.SongUpdate](s, observabilityOptions(instruments, "internal.catalog.songs")...)
		},
	})

	router := NewRouter(RouterDeps{
		Services:    services,
		DB:          db,
		Logger:      logger,
		ServiceName: cfg.ServiceName,
	})

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("catalog API listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("catalog API server exited", slog.String("addr", server.Addr), slog.String("error", err.Error()))
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down catalog API", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func observabilityOptions(instruments *platformobservability.Instruments, scope string) []crudobs.Option {
	return []crudobs.Option{
		crudobs.WithLogger(instruments.Logger),
		crudobs.WithTracer(instruments.Tracer(scope)),
		crudobs.WithMeter(instruments.Meter(scope)),
	}
}
