package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crowdfund-ton/backend/internal/app"
	"github.com/crowdfund-ton/backend/internal/config"
	"github.com/crowdfund-ton/backend/internal/logger"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/sweep"
	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine, err := app.New(ctx, cfg, log, app.Options{Postgres: true})
	if err != nil {
		log.Fatal("failed to start engine", zap.Error(err))
	}
	defer engine.Close()

	sweeper := sweep.New(
		engine.Ledger,
		engine.Builder,
		engine.Reports,
		engine.Publisher,
		cfg.ResolverScanLimit,
		cfg.SweepConcurrency,
		engine.Metrics,
		log,
	)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal("failed to create scheduler", zap.Error(err))
	}

	register := func(name string, every time.Duration, run func(context.Context)) {
		_, err := scheduler.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(func() {
				jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
				defer cancel()
				run(jobCtx)
			}),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			log.Fatal("failed to register job", zap.String("job", name), zap.Error(err))
		}
	}

	register("campaign_cache_warm", cfg.CacheWarmInterval, func(ctx context.Context) {
		items, err := engine.Campaigns.List(ctx, models.ListingFilter{IncludeArchived: true})
		if err != nil {
			log.Error("cache warm failed", zap.Error(err))
			return
		}
		log.Info("campaign cache warmed", zap.Int("campaigns", len(items)))
	})

	register("ledger_reconciliation_sweep", cfg.SweepInterval, func(ctx context.Context) {
		if _, err := sweeper.Run(ctx); err != nil {
			log.Error("reconciliation sweep failed", zap.Error(err))
		}
	})

	scheduler.Start()
	log.Info("worker started",
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.Duration("cache_warm_interval", cfg.CacheWarmInterval),
	)

	metricsApp := fiber.New(fiber.Config{DisableStartupMessage: true})
	metricsApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	metricsApp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(engine.Registry, promhttp.HandlerOpts{})))

	go func() {
		addr := fmt.Sprintf(":%s", cfg.WorkerPort)
		if err := metricsApp.Listen(addr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cancel()
	if err := scheduler.Shutdown(); err != nil {
		log.Error("failed to shutdown scheduler", zap.Error(err))
	}
	_ = metricsApp.Shutdown()
}
