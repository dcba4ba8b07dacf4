package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meditrust/config"
	"meditrust/config/database"
	ledgerRepository "meditrust/internal/ledger/repository"
	ledgerService "meditrust/internal/ledger/service"
	"meditrust/internal/storage"
	"meditrust/pkg/logger"
	"meditrust/router"
	"meditrust/socket"
)

func main() {
	cfg, envLoaded, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Log.Sync()
	if !envLoaded {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	db := database.Connect(cfg.DatabaseURL())
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		logger.Sugar.Fatalf("Could not migrate database: %v", err)
	}

	store, err := storage.Open(cfg.StoragePath, cfg.StorageSecret)
	if err != nil {
		logger.Sugar.Fatalf("Could not open content store: %v", err)
	}
	defer store.Close()

	ledger := ledgerService.NewLedgerService(ledgerRepository.NewLedgerRepository(db))
	stopWorker := make(chan struct{})
	go ledger.VerifyWorker(cfg.LedgerVerifyInterval, stopWorker)

	hub := socket.NewHub()
	go hub.Run()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Setup(cfg, db, hub, store, ledger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Sugar.Infof("MediTrust backend listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Sugar.Info("Shutting down")
	close(stopWorker)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Sugar.Errorf("Graceful shutdown failed: %v", err)
	}
}
