package http

import (
	"time"

	"github.com/crowdfund-ton/backend/internal/config"
	"github.com/crowdfund-ton/backend/internal/http/handlers"
	"github.com/crowdfund-ton/backend/internal/middleware"
	"github.com/crowdfund-ton/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	gatherer prometheus.Gatherer,
	campaignHandler *handlers.CampaignHandler,
	receiptHandler *handlers.ReceiptHandler,
	diagnosticsHandler *handlers.DiagnosticsHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, middleware.RateLimit{
		Reads:  cfg.RateLimit,
		Writes: cfg.WriteRateLimit,
		Window: time.Minute,
	}))

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	can := middleware.RequirePermission

	// Campaigns
	protected.Get("/campaigns", can(rbac.PermView), campaignHandler.ListCampaigns)
	protected.Post("/campaigns", can(rbac.PermCreate), campaignHandler.CreateCampaign)
	protected.Get("/campaigns/resolve/:identifier", can(rbac.PermView), campaignHandler.Resolve)
	protected.Get("/campaigns/:id", can(rbac.PermView), campaignHandler.GetCampaign)
	protected.Get("/campaigns/:id/ledger", can(rbac.PermView), campaignHandler.GetLedger)
	protected.Post("/campaigns/:id/donate", can(rbac.PermDonate), campaignHandler.Donate)
	protected.Post("/campaigns/:id/finalize", can(rbac.PermFinalize), campaignHandler.Finalize)
	protected.Post("/campaigns/:id/withdraw", can(rbac.PermWithdraw), campaignHandler.Withdraw)
	protected.Post("/campaigns/:id/force-succeed", can(rbac.PermForceSucceed), campaignHandler.ForceSucceed)
	protected.Post("/campaigns/:id/cancel", can(rbac.PermCancel), campaignHandler.Cancel)
	protected.Put("/campaigns/:id/archive", can(rbac.PermArchive), campaignHandler.Archive)
	protected.Delete("/campaigns/:id/archive", can(rbac.PermArchive), campaignHandler.Unarchive)

	// Owner display names
	protected.Put("/names/:address", can(rbac.PermArchive), campaignHandler.SetDisplayName)

	// Receipts
	protected.Get("/receipts", can(rbac.PermView), receiptHandler.ListReceipts)
	protected.Get("/receipts/:id", can(rbac.PermView), receiptHandler.GetReceipt)
	protected.Post("/receipts/:id/refund", can(rbac.PermRefund), receiptHandler.Refund)

	// Diagnostics
	protected.Get("/campaigns/:id/audit", can(rbac.PermView), diagnosticsHandler.GetAuditTrail)
	protected.Get("/campaigns/:id/report", can(rbac.PermView), diagnosticsHandler.GetReport)
	protected.Get("/reports", can(rbac.PermView), diagnosticsHandler.ListReports)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
