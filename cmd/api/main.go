package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/crowdfund-ton/backend/internal/app"
	"github.com/crowdfund-ton/backend/internal/config"
	"github.com/crowdfund-ton/backend/internal/events"
	apphttp "github.com/crowdfund-ton/backend/internal/http"
	"github.com/crowdfund-ton/backend/internal/http/dto"
	"github.com/crowdfund-ton/backend/internal/http/handlers"
	"github.com/crowdfund-ton/backend/internal/logger"
	"github.com/crowdfund-ton/backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := app.New(ctx, cfg, log, app.Options{Postgres: true, Migrate: true})
	if err != nil {
		log.Fatal("failed to start engine", zap.Error(err))
	}
	defer engine.Close()

	// Handlers
	campaignHandler := handlers.NewCampaignHandler(engine.Campaigns, log)
	receiptHandler := handlers.NewReceiptHandler(engine.Campaigns, log)
	diagnosticsHandler := handlers.NewDiagnosticsHandler(engine.Audit, engine.Reports, log)
	wsHub := handlers.NewWSHub(cfg, events.NewRedisSubscriber(engine.Redis, log), log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	fiberApp := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(dto.ErrorResponse{Error: err.Error(), RequestID: middleware.GetRequestID(c)})
		},
	})

	apphttp.SetupRouter(fiberApp, cfg, log, engine.Redis, engine.Registry, campaignHandler, receiptHandler, diagnosticsHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = fiberApp.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server",
		zap.String("addr", addr),
		zap.String("signer", engine.Ledger.Signer()),
		zap.String("registry", engine.Ledger.Registry()),
	)
	if err := fiberApp.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
