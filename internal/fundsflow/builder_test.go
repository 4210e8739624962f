package fundsflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/ledger/ledgertest"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func ev(kind models.EventKind, campaign string, amount uint64, offset time.Duration, seq uint64) models.LedgerEvent {
	return models.LedgerEvent{Kind: kind, CampaignID: campaign, Amount: amount, Timestamp: t0.Add(offset), Sequence: seq}
}

func TestBuildDonationsThenWithdrawal(t *testing.T) {
	fake := ledgertest.New()
	fake.Emit(
		ev(models.EventCampaignCreated, "c1", 0, 0, 1),
		ev(models.EventDonated, "c1", 50, time.Minute, 2),
		ev(models.EventDonated, "c1", 30, 2*time.Minute, 3),
		ev(models.EventWithdrawn, "c1", 80, 3*time.Minute, 4),
		ev(models.EventDonated, "other", 999, time.Minute, 5),
	)

	l := NewBuilder(fake, 50, nil, zap.NewNop()).Build(context.Background(), "c1")

	assert.Equal(t, models.ReconciledBalance{TotalDonated: 80, TotalWithdrawn: 80, CurrentBalance: 0}, l.Balance)
	assert.True(t, l.HasWithdrawal())
	assert.Empty(t, l.Degraded)
	require.Len(t, l.Events, 4)
	for _, e := range l.Events {
		assert.Equal(t, "c1", e.CampaignID)
	}
	assert.Equal(t, models.EventWithdrawn, l.Events[3].Kind)
	assert.Equal(t, len(models.FundsFlowKinds), fake.Calls("QueryEvents"))
}

func TestBuildOrdersByTimestampThenSequence(t *testing.T) {
	fake := ledgertest.New()
	fake.Emit(
		ev(models.EventWithdrawn, "c1", 10, time.Minute, 9),
		ev(models.EventDonated, "c1", 10, time.Minute, 3),
		ev(models.EventDonated, "c1", 5, 0, 7),
		ev(models.EventFinalized, "c1", 0, time.Minute, 5),
	)

	l := NewBuilder(fake, 50, nil, zap.NewNop()).Build(context.Background(), "c1")

	var seqs []uint64
	for _, e := range l.Events {
		seqs = append(seqs, e.Sequence)
	}
	assert.Equal(t, []uint64{7, 3, 5, 9}, seqs)
}

func TestKindEventsSurfacesQueryError(t *testing.T) {
	fake := ledgertest.New()
	fake.QueryEventsFn = func(context.Context, models.EventKind, ledger.EventQuery) ([]models.LedgerEvent, error) {
		return nil, errors.New("rpc unavailable")
	}

	b := NewBuilder(fake, 50, nil, zap.NewNop())
	_, err := b.KindEvents(context.Background(), "c1", models.EventWithdrawn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "withdrawn")
}

func TestBuildNeverFailsWhenKindUnavailable(t *testing.T) {
	fake := ledgertest.New()
	stored := []models.LedgerEvent{
		ev(models.EventDonated, "c1", 50, 0, 1),
		ev(models.EventWithdrawn, "c1", 50, time.Minute, 2),
	}
	fake.QueryEventsFn = func(_ context.Context, kind models.EventKind, _ ledger.EventQuery) ([]models.LedgerEvent, error) {
		if kind == models.EventWithdrawn {
			return nil, errors.New("rpc unavailable")
		}
		var out []models.LedgerEvent
		for _, e := range stored {
			if e.Kind == kind {
				out = append(out, e)
			}
		}
		return out, nil
	}

	l := NewBuilder(fake, 50, nil, zap.NewNop()).Build(context.Background(), "c1")

	assert.Equal(t, []models.EventKind{models.EventWithdrawn}, l.Degraded)
	assert.True(t, l.IsDegraded(models.EventWithdrawn))
	assert.False(t, l.HasWithdrawal())
	assert.Equal(t, uint64(50), l.Balance.TotalDonated)
	assert.Equal(t, int64(50), l.Balance.CurrentBalance)
}

func TestBuildPassesPageSize(t *testing.T) {
	fake := ledgertest.New()
	var seen []ledger.EventQuery
	fake.QueryEventsFn = func(_ context.Context, _ models.EventKind, q ledger.EventQuery) ([]models.LedgerEvent, error) {
		seen = append(seen, q)
		return nil, nil
	}

	NewBuilder(fake, 0, nil, zap.NewNop()).Build(context.Background(), "c1")

	require.NotEmpty(t, seen)
	for _, q := range seen {
		assert.Equal(t, ledger.EventQuery{Limit: 50, Order: ledger.Ascending}, q)
	}
}

func TestTotalsSumsDuplicateWithdrawals(t *testing.T) {
	b := Totals([]models.LedgerEvent{
		ev(models.EventDonated, "c1", 100, 0, 1),
		ev(models.EventWithdrawn, "c1", 60, time.Minute, 2),
		ev(models.EventWithdrawn, "c1", 60, time.Minute, 2),
	})
	assert.Equal(t, uint64(120), b.TotalWithdrawn)
	assert.Equal(t, int64(-20), b.CurrentBalance)
}

func TestTotalsConservation(t *testing.T) {
	kinds := []models.EventKind{models.EventDonated, models.EventWithdrawn, models.EventRefunded, models.EventFinalized, models.EventCampaignCreated}
	var events []models.LedgerEvent
	for i := 0; i < 40; i++ {
		events = append(events, ev(kinds[i%len(kinds)], "c1", uint64(i*7+1), time.Duration(i)*time.Second, uint64(i)))
	}
	b := Totals(events)
	assert.Equal(t, int64(b.TotalDonated)-int64(b.TotalWithdrawn)-int64(b.TotalRefunded), b.CurrentBalance)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		ledger   *Ledger
		raised   uint64
		mismatch bool
		detail   bool
	}{
		{"consistent", &Ledger{Balance: models.NewReconciledBalance(80, 0, 0)}, 80, false, false},
		{"mismatch", &Ledger{Balance: models.NewReconciledBalance(50, 0, 0)}, 80, true, true},
		{"degraded donations", &Ledger{Balance: models.NewReconciledBalance(0, 0, 0), Degraded: []models.EventKind{models.EventDonated}}, 80, false, true},
		{"truncated shortfall", &Ledger{Balance: models.NewReconciledBalance(50, 0, 0), Truncated: []models.EventKind{models.EventDonated}}, 80, false, true},
		{"truncated excess", &Ledger{Balance: models.NewReconciledBalance(90, 0, 0), Truncated: []models.EventKind{models.EventDonated}}, 80, true, true},
		{"truncated consistent", &Ledger{Balance: models.NewReconciledBalance(80, 0, 0), Truncated: []models.EventKind{models.EventDonated}}, 80, false, false},
		{"truncated withdrawals only", &Ledger{Balance: models.NewReconciledBalance(50, 0, 0), Truncated: []models.EventKind{models.EventWithdrawn}}, 80, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Verify(tt.ledger, &models.Campaign{Raised: tt.raised})
			assert.Equal(t, tt.mismatch, a.Mismatch)
			assert.Equal(t, tt.detail, a.Detail != "")
			assert.Equal(t, tt.raised, a.Raised)
		})
	}
}

func TestBuildMarksFullPagesTruncated(t *testing.T) {
	fake := ledgertest.New()
	fake.Emit(
		ev(models.EventDonated, "other", 5, 0, 1),
		ev(models.EventDonated, "other", 5, time.Second, 2),
		ev(models.EventDonated, "c1", 30, 2*time.Second, 3),
		ev(models.EventWithdrawn, "c1", 10, 3*time.Second, 4),
	)

	l := NewBuilder(fake, 2, nil, zap.NewNop()).Build(context.Background(), "c1")

	assert.Equal(t, []models.EventKind{models.EventDonated}, l.Truncated)
	assert.True(t, l.IsTruncated(models.EventDonated))
	assert.False(t, l.IsTruncated(models.EventWithdrawn))
	assert.Zero(t, l.Balance.TotalDonated)

	a := Verify(l, &models.Campaign{Raised: 30})
	assert.False(t, a.Mismatch)
	assert.Contains(t, a.Detail, "truncated")
}
