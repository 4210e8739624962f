package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/fundsflow"
	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/ledger/ledgertest"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memReports struct {
	mu      sync.Mutex
	reports map[string]*models.ReconciliationReport
	cleared []string
}

func newMemReports() *memReports {
	return &memReports{reports: map[string]*models.ReconciliationReport{}}
}

func (m *memReports) Observe(_ context.Context, rep models.ReconciliationReport) (*models.ReconciliationReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.reports[rep.CampaignID]; ok {
		rep.Observations = prev.Observations + 1
	} else {
		rep.Observations = 1
	}
	m.reports[rep.CampaignID] = &rep
	cp := rep
	return &cp, nil
}

func (m *memReports) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.reports, id)
	m.cleared = append(m.cleared, id)
	return nil
}

type mismatchCounter struct {
	mu sync.Mutex
	n  int
}

func (c *mismatchCounter) Publish(_ context.Context, _ string, ev events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Type == events.EventLedgerMismatch {
		c.n++
	}
	return nil
}

func seed(t *testing.T) *ledgertest.Fake {
	t.Helper()
	f := ledgertest.New()
	deadline := time.Now().Add(24 * time.Hour)
	f.Put(models.Campaign{ID: "0:01", Goal: 100, Raised: 80, DeadlineAt: deadline})
	f.Put(models.Campaign{ID: "0:02", Goal: 100, Raised: 90, DeadlineAt: deadline})
	f.Emit(
		models.LedgerEvent{Kind: models.EventCampaignCreated, CampaignID: "0:01", Sequence: 1},
		models.LedgerEvent{Kind: models.EventCampaignCreated, CampaignID: "0:02", Sequence: 2},
		models.LedgerEvent{Kind: models.EventDonated, CampaignID: "0:01", Amount: 80, Sequence: 3},
		models.LedgerEvent{Kind: models.EventDonated, CampaignID: "0:02", Amount: 50, Sequence: 4},
	)
	return f
}

func TestSweepPersistentMismatchPublishedOnSecondPass(t *testing.T) {
	f := seed(t)
	reports := newMemReports()
	pub := &mismatchCounter{}
	s := New(f, fundsflow.NewBuilder(f, 50, nil, zap.NewNop()), reports, pub, 50, 4, nil, zap.NewNop())

	first, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 2, Mismatched: 1}, first)
	assert.Zero(t, pub.n)

	second, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 2, Mismatched: 1, Persistent: 1}, second)
	assert.Equal(t, 1, pub.n)
	assert.Equal(t, 2, reports.reports["0:02"].Observations)
	assert.Contains(t, reports.cleared, "0:01")
}

func TestSweepClearsResolvedMismatch(t *testing.T) {
	f := seed(t)
	reports := newMemReports()
	s := New(f, fundsflow.NewBuilder(f, 50, nil, zap.NewNop()), reports, events.NopPublisher{}, 50, 2, nil, zap.NewNop())

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Contains(t, reports.reports, "0:02")

	f.Emit(models.LedgerEvent{Kind: models.EventDonated, CampaignID: "0:02", Amount: 40, Sequence: 5})
	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Mismatched)
	assert.NotContains(t, reports.reports, "0:02")
}

func TestSweepDegradedDonationsAreNotMismatches(t *testing.T) {
	f := seed(t)
	f.QueryEventsFn = func(ctx context.Context, kind models.EventKind, q ledger.EventQuery) ([]models.LedgerEvent, error) {
		if kind == models.EventDonated {
			return nil, errors.New("indexer unavailable")
		}
		var out []models.LedgerEvent
		for _, ev := range f.Events {
			if ev.Kind == kind {
				out = append(out, ev)
			}
		}
		return out, nil
	}
	reports := newMemReports()
	s := New(f, fundsflow.NewBuilder(f, 50, nil, zap.NewNop()), reports, events.NopPublisher{}, 50, 2, nil, zap.NewNop())

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Checked)
	assert.Zero(t, sum.Mismatched)
	assert.Empty(t, reports.reports)
}

func TestSweepCountsUnreadableCampaigns(t *testing.T) {
	f := seed(t)
	f.GetObjectFn = func(ctx context.Context, id string) (*models.Campaign, error) {
		return nil, errors.New("liteserver timeout")
	}
	s := New(f, fundsflow.NewBuilder(f, 50, nil, zap.NewNop()), newMemReports(), events.NopPublisher{}, 50, 2, nil, zap.NewNop())

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Failed)
	assert.Zero(t, sum.Checked)
}

func TestSweepFailsWhenListingFails(t *testing.T) {
	f := ledgertest.New()
	f.QueryEventsFn = func(context.Context, models.EventKind, ledger.EventQuery) ([]models.LedgerEvent, error) {
		return nil, errors.New("boom")
	}
	s := New(f, fundsflow.NewBuilder(f, 50, nil, zap.NewNop()), newMemReports(), events.NopPublisher{}, 50, 2, nil, zap.NewNop())

	_, err := s.Run(context.Background())
	require.Error(t, err)
}

func TestSweepTruncatedDonationsAreNotMismatches(t *testing.T) {
	tests := []struct {
		name           string
		pageSize       int
		wantMismatched int
	}{
		{"full history", 50, 1},
		{"donations fill the page", 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := seed(t)
			reports := newMemReports()
			s := New(f, fundsflow.NewBuilder(f, tt.pageSize, nil, zap.NewNop()), reports, events.NopPublisher{}, 50, 2, nil, zap.NewNop())

			sum, err := s.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 2, sum.Checked)
			assert.Equal(t, tt.wantMismatched, sum.Mismatched)
			assert.Len(t, reports.reports, tt.wantMismatched)
		})
	}
}
