// Package sweep runs the periodic reconciliation pass that replays every
// recent campaign's funds flow and records raised/donated mismatches.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/fundsflow"
	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/metrics"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// ReportStore keeps mismatch reports across sweeps.
type ReportStore interface {
	Observe(ctx context.Context, rep models.ReconciliationReport) (*models.ReconciliationReport, error)
	Clear(ctx context.Context, campaignID string) error
}

type Summary struct {
	Checked    int
	Mismatched int
	Persistent int
	Failed     int
}

type Sweeper struct {
	svc         ledger.Service
	builder     *fundsflow.Builder
	reports     ReportStore
	publisher   events.Publisher
	metrics     *metrics.Metrics
	scanLimit   int
	concurrency int
	log         *zap.Logger
}

func New(svc ledger.Service, builder *fundsflow.Builder, reports ReportStore, publisher events.Publisher, scanLimit, concurrency int, m *metrics.Metrics, log *zap.Logger) *Sweeper {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Sweeper{
		svc:         svc,
		builder:     builder,
		reports:     reports,
		publisher:   publisher,
		metrics:     m,
		scanLimit:   scanLimit,
		concurrency: concurrency,
		log:         log,
	}
}

// Run checks every campaign in the recent creation window. Per-campaign
// failures are counted and logged; only a failed campaign listing aborts.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	created, err := s.svc.QueryEvents(ctx, models.EventCampaignCreated, ledger.EventQuery{
		Limit: s.scanLimit,
		Order: ledger.Descending,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("list campaigns: %w", err)
	}

	pool, err := ants.NewPool(s.concurrency)
	if err != nil {
		return Summary{}, fmt.Errorf("create sweep pool: %w", err)
	}
	defer pool.Release()

	var wg sync.WaitGroup
	var checked, mismatched, persistent, fail atomic.Int64
	seen := map[string]bool{}
	for _, ev := range created {
		id := ev.CampaignID
		if seen[id] {
			continue
		}
		seen[id] = true

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			mismatch, persisted, err := s.check(ctx, id)
			if err != nil {
				fail.Add(1)
				s.log.Warn("sweep check failed", zap.String("campaign_id", id), zap.Error(err))
				return
			}
			checked.Add(1)
			if mismatch {
				mismatched.Add(1)
			}
			if persisted {
				persistent.Add(1)
			}
		})
		if err != nil {
			wg.Done()
			fail.Add(1)
			s.log.Error("failed to submit sweep task", zap.String("campaign_id", id), zap.Error(err))
		}
	}
	wg.Wait()

	sum := Summary{
		Checked:    int(checked.Load()),
		Mismatched: int(mismatched.Load()),
		Persistent: int(persistent.Load()),
		Failed:     int(fail.Load()),
	}
	s.log.Info("reconciliation sweep finished",
		zap.Int("checked", sum.Checked),
		zap.Int("mismatched", sum.Mismatched),
		zap.Int("persistent", sum.Persistent),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

func (s *Sweeper) check(ctx context.Context, id string) (mismatch, persistent bool, err error) {
	c, err := s.svc.GetObject(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return false, false, s.reports.Clear(ctx, id)
	}
	if err != nil {
		return false, false, err
	}

	l := s.builder.Build(ctx, id)
	audit := fundsflow.Verify(l, c)
	if !audit.Mismatch {
		return false, false, s.reports.Clear(ctx, id)
	}

	rep, err := s.reports.Observe(ctx, models.ReconciliationReport{
		CampaignID:      id,
		Raised:          audit.Raised,
		TotalDonated:    audit.TotalDonated,
		CurrentBalance:  audit.CurrentBalance,
		ObjectWithdrawn: c.Withdrawn,
		EventWithdrawn:  l.HasWithdrawal(),
	})
	if err != nil {
		return true, false, fmt.Errorf("record mismatch: %w", err)
	}
	if !rep.Persistent() {
		return true, false, nil
	}

	s.metrics.LedgerMismatch()
	s.log.Warn("persistent ledger mismatch",
		zap.String("campaign_id", id),
		zap.Uint64("raised", rep.Raised),
		zap.Uint64("total_donated", rep.TotalDonated),
		zap.Int("observations", rep.Observations),
	)
	_ = s.publisher.Publish(ctx, events.ChannelCampaigns, events.Event{
		Type: events.EventLedgerMismatch,
		Payload: map[string]any{
			"campaign_id":   id,
			"raised":        rep.Raised,
			"total_donated": rep.TotalDonated,
			"observations":  rep.Observations,
			"detail":        audit.Detail,
		},
	})
	return true, true, nil
}
