package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/punchamoorthee/finance-ledger/internal/api"
	"github.com/punchamoorthee/finance-ledger/internal/config"
	"github.com/punchamoorthee/finance-ledger/internal/logger"
	"github.com/punchamoorthee/finance-ledger/internal/service"
	"github.com/punchamoorthee/finance-ledger/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("error", false)
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	log.Info().Str("environment", cfg.Env).Str("store", cfg.StoreDriver).Msg("Starting finance ledger")

	ctx := context.Background()
	ledgerStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to open store")
	}
	defer ledgerStore.Close()

	// Initialize Layers
	ledger := service.NewLedgerService(ledgerStore, service.LogInvalidator{Log: log}, log)
	handler := api.NewHandler(ledger, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server exited")
}

type migrator interface {
	Migrate(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, error) {
	var s store.Store
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pg, err := store.NewPostgres(ctx, cfg.DBSource)
		if err != nil {
			return nil, err
		}
		s = pg
	case config.DriverMySQL:
		my, err := store.NewMySQL(store.MySQLConfig{
			DSN:             cfg.DBSource,
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			LogLevel:        cfg.MySQL.LogLevel,
		})
		if err != nil {
			return nil, err
		}
		s = my
	default:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	}

	if m, ok := s.(migrator); ok && cfg.AutoMigrate {
		if err := m.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		log.Info().Str("store", cfg.StoreDriver).Msg("Schema migrated")
	}
	return s, nil
}
