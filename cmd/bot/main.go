package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitos/stake_leveling/internal/config"
	"github.com/vitos/stake_leveling/internal/domain"
	"github.com/vitos/stake_leveling/internal/infrastructure/logger"
	"github.com/vitos/stake_leveling/internal/infrastructure/metrics"
	"github.com/vitos/stake_leveling/internal/infrastructure/storage"
	"github.com/vitos/stake_leveling/internal/usecase"
	"github.com/vitos/stake_leveling/internal/web"
	"go.uber.org/zap"
)

type store interface {
	domain.StateStore
	domain.TradeRepository
}

func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pg, err := storage.NewPostgresStore(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		lite, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return lite, func() { _ = lite.Close() }, nil
	}
}

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}

	// 3. Init Storage
	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer closeStore()

	// 4. Init Services
	hub := web.NewHub(log)
	registry := usecase.NewAccountRegistry(cfg.Staking, st, log,
		usecase.WithPersistTimeout(cfg.Storage.PersistTimeout),
		usecase.WithStateListener(hub.Publish),
	)
	trades := usecase.NewTradeService(registry, st, log)

	log.Info("Staking engine configured",
		zap.Float64("entry_percentage", cfg.Staking.EntryPercentage),
		zap.Int("wins_to_level_up", cfg.Staking.WinsToLevelUp),
		zap.Int("loss_compensation", cfg.Staking.LossCompensation),
		zap.Float64("minimum_stake", cfg.Staking.MinimumStake),
		zap.String("storage", cfg.Storage.Driver))

	// 5. Start Web Server
	srv := web.NewServer(cfg.Server.Port, registry, trades, hub, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal("Web server failed", zap.Error(err))
		}
	}()

	// 6. Wait for Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
