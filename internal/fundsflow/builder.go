// Package fundsflow reconstructs a campaign's funds flow from its event
// history and cross-checks it against the live object.
package fundsflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/metrics"
	"github.com/crowdfund-ton/backend/internal/models"
	"go.uber.org/zap"
)

// Ledger is the ordered event history of one campaign and its totals.
// Degraded lists the kinds whose query failed and contributed nothing.
// Truncated lists the kinds whose query filled a whole page, so older
// events of this campaign may be missing from the replay.
type Ledger struct {
	CampaignID string                   `json:"campaign_id"`
	Events     []models.LedgerEvent     `json:"events"`
	Balance    models.ReconciledBalance `json:"balance"`
	Degraded   []models.EventKind       `json:"degraded,omitempty"`
	Truncated  []models.EventKind       `json:"truncated,omitempty"`
}

func (l *Ledger) IsDegraded(kind models.EventKind) bool {
	return containsKind(l.Degraded, kind)
}

func (l *Ledger) IsTruncated(kind models.EventKind) bool {
	return containsKind(l.Truncated, kind)
}

func containsKind(kinds []models.EventKind, kind models.EventKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// HasWithdrawal reports whether any Withdrawn event was replayed.
func (l *Ledger) HasWithdrawal() bool {
	for _, ev := range l.Events {
		if ev.Kind == models.EventWithdrawn {
			return true
		}
	}
	return false
}

// Audit is the result of comparing a replay with the live object.
type Audit struct {
	Raised         uint64 `json:"raised"`
	TotalDonated   uint64 `json:"total_donated"`
	CurrentBalance int64  `json:"current_balance"`
	Mismatch       bool   `json:"mismatch"`
	Detail         string `json:"detail,omitempty"`
}

type Builder struct {
	svc      ledger.Service
	pageSize int
	metrics  *metrics.Metrics
	log      *zap.Logger
}

func NewBuilder(svc ledger.Service, pageSize int, m *metrics.Metrics, log *zap.Logger) *Builder {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &Builder{svc: svc, pageSize: pageSize, metrics: m, log: log}
}

// KindEvents returns the events of one kind for a campaign in ascending
// order. Unlike Build it surfaces query failures.
func (b *Builder) KindEvents(ctx context.Context, campaignID string, kind models.EventKind) ([]models.LedgerEvent, error) {
	out, _, err := b.kindEvents(ctx, campaignID, kind)
	return out, err
}

// kindEvents also reports whether the registry query returned a full page.
func (b *Builder) kindEvents(ctx context.Context, campaignID string, kind models.EventKind) ([]models.LedgerEvent, bool, error) {
	events, err := b.svc.QueryEvents(ctx, kind, ledger.EventQuery{Limit: b.pageSize, Order: ledger.Ascending})
	if err != nil {
		return nil, false, fmt.Errorf("query %s events: %w", kind, err)
	}
	var out []models.LedgerEvent
	for _, ev := range events {
		if ev.CampaignID == campaignID && ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out, len(events) >= b.pageSize, nil
}

// Build queries every funds-flow kind independently. A failing kind is
// logged and recorded in Degraded; Build itself never fails.
func (b *Builder) Build(ctx context.Context, campaignID string) *Ledger {
	l := &Ledger{CampaignID: campaignID}

	for _, kind := range models.FundsFlowKinds {
		events, full, err := b.kindEvents(ctx, campaignID, kind)
		if err != nil {
			b.log.Warn("funds-flow kind unavailable",
				zap.String("campaign_id", campaignID),
				zap.String("kind", string(kind)),
				zap.Error(err),
			)
			b.metrics.DegradedQuery(string(kind))
			l.Degraded = append(l.Degraded, kind)
			continue
		}
		if full {
			l.Truncated = append(l.Truncated, kind)
		}
		l.Events = append(l.Events, events...)
	}

	sortEvents(l.Events)
	l.Balance = Totals(l.Events)
	return l
}

func sortEvents(events []models.LedgerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].Sequence < events[j].Sequence
	})
}

// Totals folds events into a balance. Every Withdrawn event counts, so
// duplicates are summed rather than deduplicated.
func Totals(events []models.LedgerEvent) models.ReconciledBalance {
	var donated, withdrawn, refunded uint64
	for _, ev := range events {
		switch ev.Kind {
		case models.EventDonated:
			donated += ev.Amount
		case models.EventWithdrawn:
			withdrawn += ev.Amount
		case models.EventRefunded:
			refunded += ev.Amount
		}
	}
	return models.NewReconciledBalance(donated, withdrawn, refunded)
}

// Verify compares the replayed donations with the object's raised amount.
// A degraded Donated query makes the comparison meaningless and is
// reported as such instead of as a mismatch. A truncated Donated query can
// only under-count, so a shortfall is reported as partial history while an
// excess is still a mismatch.
func Verify(l *Ledger, c *models.Campaign) Audit {
	a := Audit{
		Raised:         c.Raised,
		TotalDonated:   l.Balance.TotalDonated,
		CurrentBalance: l.Balance.CurrentBalance,
	}
	switch {
	case l.IsDegraded(models.EventDonated):
		a.Detail = "donation history unavailable"
	case l.IsTruncated(models.EventDonated) && c.Raised > l.Balance.TotalDonated:
		a.Detail = fmt.Sprintf("donation history truncated: replayed %d of raised %d", l.Balance.TotalDonated, c.Raised)
	case c.Raised != l.Balance.TotalDonated:
		a.Mismatch = true
		a.Detail = fmt.Sprintf("raised %d differs from replayed donations %d", c.Raised, l.Balance.TotalDonated)
	}
	return a
}
