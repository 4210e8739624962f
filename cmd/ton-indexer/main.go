package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdfund-ton/backend/internal/app"
	"github.com/crowdfund-ton/backend/internal/cache"
	"github.com/crowdfund-ton/backend/internal/config"
	"github.com/crowdfund-ton/backend/internal/indexer"
	"github.com/crowdfund-ton/backend/internal/logger"
	"go.uber.org/zap"
)

const (
	cursorKey    = "ton-indexer:cursor"
	pollInterval = 5 * time.Second
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.Fatal("failed to start engine", zap.Error(err))
	}
	defer engine.Close()

	ix := indexer.New(
		engine.Ledger,
		cache.NewCursorStore(engine.Redis, cursorKey),
		engine.Identifiers,
		engine.Publisher,
		log,
	)

	log.Info("TON indexer started",
		zap.String("registry", engine.Ledger.Registry()),
		zap.String("network", cfg.TONNetwork),
	)

	if _, err := ix.Poll(ctx); err != nil {
		log.Error("initial poll failed", zap.Error(err))
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			n, err := ix.Poll(ctx)
			if err != nil {
				log.Error("poll cycle failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("registry events processed", zap.Int("count", n))
			}
		case <-sigCh:
			log.Info("shutting down TON indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}
