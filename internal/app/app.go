// Package app wires the campaign engine from configuration. Every binary
// builds the same graph and differs only in what it serves.
package app

import (
	"context"
	"fmt"

	"github.com/crowdfund-ton/backend/internal/cache"
	"github.com/crowdfund-ton/backend/internal/config"
	"github.com/crowdfund-ton/backend/internal/db"
	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/fundsflow"
	"github.com/crowdfund-ton/backend/internal/metrics"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/reconcile"
	"github.com/crowdfund-ton/backend/internal/repositories"
	"github.com/crowdfund-ton/backend/internal/resolver"
	"github.com/crowdfund-ton/backend/internal/services"
	"github.com/crowdfund-ton/backend/internal/ton"
	"github.com/crowdfund-ton/backend/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/xssnick/tonutils-go/tlb"
	"go.uber.org/zap"
)

type Options struct {
	// Postgres enables the audit log and report repositories. Without it
	// audit entries go to the logger.
	Postgres bool
	// Migrate runs the embedded migrations after connecting.
	Migrate bool
}

type Engine struct {
	Config      *config.Config
	Log         *zap.Logger
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Ledger      *ton.Service
	Registry    *prometheus.Registry
	Metrics     *metrics.Metrics
	Builder     *fundsflow.Builder
	Reconciler  *reconcile.Reconciler
	Resolver    *resolver.Resolver
	Identifiers *cache.IdentifierStore
	Names       *cache.NameStore
	Publisher   events.Publisher
	Audit       *repositories.AuditRepo
	Reports     *repositories.ReportRepo
	Campaigns   *services.CampaignService
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*Engine, error) {
	e := &Engine{Config: cfg, Log: log}

	if opts.Postgres {
		pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
		if err != nil {
			return nil, err
		}
		e.Pool = pool
		if opts.Migrate {
			if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
				e.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		e.Audit = repositories.NewAuditRepo(pool)
		e.Reports = repositories.NewReportRepo(pool)
	}

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.Redis = rdb

	if err := e.connectLedger(ctx); err != nil {
		e.Close()
		return nil, err
	}

	e.Registry = prometheus.NewRegistry()
	e.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	e.Metrics = metrics.New(e.Registry)

	e.Publisher = events.NewRedisPublisher(rdb, log)
	e.Identifiers = cache.NewIdentifierStore(rdb, cfg.IdentifierCacheTTL)
	e.Names = cache.NewNameStore(rdb)

	e.Builder = fundsflow.NewBuilder(e.Ledger, cfg.EventPageSize, e.Metrics, log)
	e.Reconciler = reconcile.New(e.Ledger, e.Builder, reconcile.RetryPolicy{
		SettleDelay: cfg.WithdrawSettleDelay,
		MaxAttempts: cfg.WithdrawConfirmAttempts,
		Delay:       cfg.WithdrawConfirmDelay,
	}, e.Metrics, log)
	e.Resolver = resolver.New(e.Ledger, e.Identifiers, ton.CanonicalID, cfg.ResolverScanLimit, e.Metrics, log)

	var auditor services.Auditor = LogAuditor{Logger: log}
	if e.Audit != nil {
		auditor = e.Audit
	}

	e.Campaigns = services.NewCampaignService(
		e.Ledger,
		e.Reconciler,
		e.Builder,
		e.Resolver,
		auditor,
		e.Publisher,
		cache.NewArchiveStore(rdb),
		e.Names,
		services.Identity{Signer: e.Ledger.Signer(), Registry: e.Ledger.Registry()},
		cfg.ResolverScanLimit,
		e.Metrics,
		log,
	)
	return e, nil
}

func (e *Engine) connectLedger(ctx context.Context) error {
	if e.Config.RegistryAddress == "" {
		return fmt.Errorf("REGISTRY_ADDRESS is required")
	}
	registry, err := ton.ParseAddress(e.Config.RegistryAddress)
	if err != nil {
		return fmt.Errorf("parse REGISTRY_ADDRESS: %w", err)
	}
	gas, err := tlb.FromTON(e.Config.GasAmountTON)
	if err != nil {
		return fmt.Errorf("parse GAS_AMOUNT_TON: %w", err)
	}

	api, err := ton.Connect(ctx, e.Config, e.Log)
	if err != nil {
		return err
	}
	w, err := ton.OpenWallet(api, e.Config, e.Log)
	if err != nil {
		return err
	}

	e.Ledger = ton.NewService(api, w, registry, ton.Options{
		GasAmount:           gas,
		MaxScanTransactions: e.Config.MaxScanTransactions,
		FinalityAttempts:    e.Config.FinalityAttempts,
		FinalityDelay:       e.Config.FinalityDelay,
		FinalityWindow:      e.Config.FinalityWindow,
	}, e.Log)
	return nil
}

func (e *Engine) Close() {
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
}

// LogAuditor writes audit entries to the logger when no database is
// configured.
type LogAuditor struct {
	Logger *zap.Logger
}

func (a LogAuditor) Log(_ context.Context, entry models.AuditLog) error {
	a.Logger.Info("audit",
		zap.String("action", entry.Action),
		zap.String("actor_type", entry.ActorType),
		zap.String("entity_type", entry.EntityType),
		zap.String("entity_id", entry.EntityID),
		zap.Any("meta", entry.Meta),
	)
	return nil
}
