// Package reconcile decides whether a campaign's funds have been withdrawn
// from two independently lagging signals: the object's withdrawn flag and
// the Withdrawn event history.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/crowdfund-ton/backend/internal/fundsflow"
	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/metrics"
	"github.com/crowdfund-ton/backend/internal/models"
	"go.uber.org/zap"
)

type Verdict string

const (
	Withdrawn    Verdict = "withdrawn"
	NotWithdrawn Verdict = "not_withdrawn"
	Unconfirmed  Verdict = "unconfirmed"
)

// RetryPolicy bounds the post-withdrawal confirmation loop.
type RetryPolicy struct {
	SettleDelay time.Duration
	MaxAttempts int
	Delay       time.Duration
}

// EventSource returns the events of one kind for one campaign.
type EventSource interface {
	KindEvents(ctx context.Context, campaignID string, kind models.EventKind) ([]models.LedgerEvent, error)
}

// Signals is the observed state of both withdrawal signals. A nil pointer
// means the signal was unavailable.
type Signals struct {
	Object *bool
	Events *bool
}

type Result struct {
	CampaignID string  `json:"campaign_id"`
	Verdict    Verdict `json:"verdict"`
	Object     *bool   `json:"object_withdrawn,omitempty"`
	Events     *bool   `json:"event_withdrawn,omitempty"`
	Conflict   bool    `json:"conflict"`
	Partial    bool    `json:"partial"`
}

type Reconciler struct {
	svc     ledger.Service
	events  EventSource
	policy  RetryPolicy
	metrics *metrics.Metrics
	log     *zap.Logger

	mu          sync.Mutex
	latched     map[string]bool
	unconfirmed map[string]bool
}

func New(svc ledger.Service, events EventSource, policy RetryPolicy, m *metrics.Metrics, log *zap.Logger) *Reconciler {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 5
	}
	if policy.Delay <= 0 {
		policy.Delay = time.Second
	}
	return &Reconciler{
		svc:         svc,
		events:      events,
		policy:      policy,
		metrics:     m,
		log:         log,
		latched:     make(map[string]bool),
		unconfirmed: make(map[string]bool),
	}
}

func boolPtr(b bool) *bool { return &b }

// Reconcile fetches both signals and decides.
func (r *Reconciler) Reconcile(ctx context.Context, campaignID string) Result {
	return r.Decide(campaignID, r.fetch(ctx, campaignID))
}

// Observe decides from data the caller already fetched. A nil campaign or
// a ledger whose Withdrawn query degraded counts as an unavailable signal.
func (r *Reconciler) Observe(c *models.Campaign, l *fundsflow.Ledger) Result {
	var s Signals
	if c != nil {
		s.Object = boolPtr(c.Withdrawn)
	}
	if l != nil && !l.IsDegraded(models.EventWithdrawn) {
		s.Events = boolPtr(l.HasWithdrawal())
	}
	id := ""
	if c != nil {
		id = c.ID
	} else if l != nil {
		id = l.CampaignID
	}
	return r.Decide(id, s)
}

func (r *Reconciler) fetch(ctx context.Context, campaignID string) Signals {
	var s Signals
	if c, err := r.svc.GetObject(ctx, campaignID); err != nil {
		r.log.Warn("withdrawn flag unavailable", zap.String("campaign_id", campaignID), zap.Error(err))
	} else {
		s.Object = boolPtr(c.Withdrawn)
	}
	if evs, err := r.events.KindEvents(ctx, campaignID, models.EventWithdrawn); err != nil {
		r.log.Warn("withdrawal history unavailable", zap.String("campaign_id", campaignID), zap.Error(err))
	} else {
		s.Events = boolPtr(len(evs) > 0)
	}
	return s
}

// Decide applies the OR rule. Once a campaign is seen withdrawn it stays
// withdrawn for the life of the reconciler. A zero balance is never taken
// as evidence either way.
func (r *Reconciler) Decide(campaignID string, s Signals) Result {
	res := Result{CampaignID: campaignID, Object: s.Object, Events: s.Events}
	a := s.Object != nil && *s.Object
	b := s.Events != nil && *s.Events

	if s.Object != nil && s.Events != nil && a != b {
		res.Conflict = true
		r.metrics.WithdrawnConflict()
		r.log.Warn("withdrawn signals disagree",
			zap.String("campaign_id", campaignID),
			zap.Bool("object_withdrawn", a),
			zap.Bool("event_withdrawn", b),
		)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case a || b || r.latched[campaignID]:
		r.latched[campaignID] = true
		delete(r.unconfirmed, campaignID)
		res.Verdict = Withdrawn
	case s.Object == nil && s.Events == nil:
		res.Verdict = Unconfirmed
	case r.unconfirmed[campaignID]:
		res.Verdict = Unconfirmed
	default:
		res.Partial = s.Object == nil || s.Events == nil
		res.Verdict = NotWithdrawn
	}
	return res
}

// IsLatched reports whether the campaign has been seen withdrawn.
func (r *Reconciler) IsLatched(campaignID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latched[campaignID]
}

// MarkUnconfirmed records a withdrawal whose effect has not been observed.
// Until either signal turns up, Decide answers Unconfirmed instead of
// NotWithdrawn. A latched campaign is left alone.
func (r *Reconciler) MarkUnconfirmed(campaignID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.latched[campaignID] {
		r.unconfirmed[campaignID] = true
	}
}

// ConfirmWithdrawal runs after a withdrawal reached finality. It waits the
// settle delay, then re-reads both signals up to MaxAttempts times. When the
// budget runs out the campaign stays Unconfirmed until a later read sees
// either signal.
func (r *Reconciler) ConfirmWithdrawal(ctx context.Context, campaignID string) (Verdict, error) {
	r.MarkUnconfirmed(campaignID)

	if err := sleep(ctx, r.policy.SettleDelay); err != nil {
		return Unconfirmed, err
	}

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		res := r.Reconcile(ctx, campaignID)
		if res.Verdict == Withdrawn {
			r.log.Info("withdrawal confirmed",
				zap.String("campaign_id", campaignID),
				zap.Int("attempt", attempt),
			)
			return Withdrawn, nil
		}
		if attempt == r.policy.MaxAttempts {
			break
		}
		if err := sleep(ctx, r.policy.Delay); err != nil {
			return Unconfirmed, err
		}
	}

	r.log.Warn("withdrawal not confirmed within retry budget",
		zap.String("campaign_id", campaignID),
		zap.Int("attempts", r.policy.MaxAttempts),
	)
	return Unconfirmed, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
