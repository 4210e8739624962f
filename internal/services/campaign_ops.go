package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/executor"
	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/metadata"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/reconcile"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateCampaignInput struct {
	Goal        uint64
	DeadlineAt  time.Time
	Title       string
	Description string
	ImageURL    string
}

// CreateResult carries the new campaign id when it could be resolved
// right after finality. An empty id means the registry has not indexed it
// yet; the campaign becomes resolvable by slug later.
type CreateResult struct {
	Outcome    *executor.Outcome `json:"outcome"`
	CampaignID string            `json:"campaign_id,omitempty"`
	Slug       string            `json:"slug"`
}

func (s *CampaignService) requireSigner() error {
	if s.identity.Signer == "" {
		return ErrReadOnly
	}
	return nil
}

func call(target string, op models.Operation) executor.Builder {
	return func() (*ledger.Transaction, error) {
		return &ledger.Transaction{Calls: []ledger.Call{{Target: target, Function: op}}}, nil
	}
}

func (s *CampaignService) Create(ctx context.Context, in CreateCampaignInput, actorID *uuid.UUID) (*CreateResult, error) {
	if err := s.requireSigner(); err != nil {
		return nil, err
	}
	if in.Goal == 0 {
		return nil, ErrInvalidAmount
	}
	if !in.DeadlineAt.After(s.nowFn()) {
		return nil, fmt.Errorf("deadline must be in the future")
	}
	blob, err := metadata.Encode(strings.TrimSpace(in.Title), in.Description, in.ImageURL)
	if err != nil {
		return nil, err
	}

	result := &CreateResult{Slug: metadata.Slugify(in.Title)}
	result.Outcome = s.executor.Execute(ctx, string(models.OpCreateCampaign), func() (*ledger.Transaction, error) {
		return &ledger.Transaction{Calls: []ledger.Call{{
			Target:   s.identity.Registry,
			Function: models.OpCreateCampaign,
			Create: &ledger.CreateParams{
				Goal:       in.Goal,
				DeadlineAt: in.DeadlineAt,
				Metadata:   blob,
			},
		}}}, nil
	}, func(ctx context.Context, _ *ledger.Submission) {
		res, err := s.resolver.Resolve(ctx, result.Slug)
		if err != nil {
			s.log.Info("new campaign not resolvable yet", zap.String("slug", result.Slug), zap.Error(err))
			return
		}
		result.CampaignID = res.CampaignID
	})

	if result.Outcome.Succeeded() {
		s.record(ctx, result.CampaignID, actorID, result.Outcome, map[string]any{
			"goal":     in.Goal,
			"deadline": in.DeadlineAt,
			"slug":     result.Slug,
		})
	}
	return result, nil
}

func (s *CampaignService) Donate(ctx context.Context, campaignID string, amount uint64, actorID *uuid.UUID) (*executor.Outcome, error) {
	if amount == 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.requireSigner(); err != nil {
		return nil, err
	}
	if err := s.acquire(campaignID, models.OpDonate); err != nil {
		return nil, err
	}
	defer s.release(campaignID)

	c, err := s.current(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.State != models.CampaignStateActive {
		return nil, ErrInvalidState
	}

	out := s.executor.Execute(ctx, string(models.OpDonate), func() (*ledger.Transaction, error) {
		return &ledger.Transaction{Calls: []ledger.Call{{
			Target:   campaignID,
			Function: models.OpDonate,
			Amount:   amount,
		}}}, nil
	}, nil)
	if out.Succeeded() {
		s.record(ctx, campaignID, actorID, out, map[string]any{"amount": amount})
	}
	return out, nil
}

// Finalize settles an Active campaign once its deadline has passed. The
// contract decides Succeeded or Failed from raised and goal.
func (s *CampaignService) Finalize(ctx context.Context, campaignID string, actorID *uuid.UUID) (*executor.Outcome, error) {
	if err := s.requireSigner(); err != nil {
		return nil, err
	}
	if err := s.acquire(campaignID, models.OpFinalize); err != nil {
		return nil, err
	}
	defer s.release(campaignID)

	c, err := s.current(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.State != models.CampaignStateActive {
		return nil, ErrInvalidState
	}
	if !c.DeadlinePassed(s.nowFn()) {
		return nil, ErrDeadlineNotReached
	}

	out := s.executor.Execute(ctx, string(models.OpFinalize), call(campaignID, models.OpFinalize), nil)
	if out.Succeeded() {
		s.recordSettlement(ctx, campaignID, actorID, out)
	}
	return out, nil
}

// ForceSucceed is the owner override that settles an Active campaign as
// Succeeded regardless of goal and deadline. When the deployed contract
// lacks the function the executor falls back to a regular finalize.
func (s *CampaignService) ForceSucceed(ctx context.Context, campaignID string, actorID *uuid.UUID) (*executor.Outcome, error) {
	if err := s.requireSigner(); err != nil {
		return nil, err
	}
	if err := s.acquire(campaignID, models.OpForceSucceeded); err != nil {
		return nil, err
	}
	defer s.release(campaignID)

	c, err := s.current(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.State != models.CampaignStateActive {
		return nil, ErrInvalidState
	}
	if !c.IsOwner(s.identity.Signer) {
		return nil, ErrNotOwner
	}

	out := s.executor.Execute(ctx, "force_succeed", call(campaignID, models.OpForceSucceeded), nil)
	if !out.Succeeded() {
		return out, nil
	}

	if out.Fallback != nil {
		s.log.Warn("force succeed unsupported, campaign finalized instead", zap.String("campaign_id", campaignID))
		s.recordSettlement(ctx, campaignID, actorID, out)
		return out, nil
	}

	s.record(ctx, campaignID, actorID, out, nil)
	_ = s.publisher.Publish(ctx, events.ChannelCampaigns, events.Event{
		Type: events.EventForceSucceeded,
		Payload: map[string]any{
			"campaign_id": campaignID,
			"owner":       c.Owner,
			"raised":      c.Raised,
			"goal":        c.Goal,
			"digest":      out.Digest,
		},
	})
	return out, nil
}

// Withdraw moves the treasury of a Succeeded campaign to its owner. It is
// refused before submission unless the reconciler says not withdrawn, and
// after finality it waits for either signal to confirm.
func (s *CampaignService) Withdraw(ctx context.Context, campaignID string, actorID *uuid.UUID) (*executor.Outcome, error) {
	if err := s.requireSigner(); err != nil {
		return nil, err
	}
	if err := s.acquire(campaignID, models.OpWithdraw); err != nil {
		return nil, err
	}
	defer s.release(campaignID)

	c, err := s.current(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.State != models.CampaignStateSucceeded {
		return nil, ErrInvalidState
	}
	if !c.IsOwner(s.identity.Signer) {
		return nil, ErrNotOwner
	}
	if c.Withdrawn || s.reconciler.IsLatched(campaignID) {
		return nil, ErrAlreadyWithdrawn
	}

	switch s.reconciler.Reconcile(ctx, campaignID).Verdict {
	case reconcile.Withdrawn:
		return nil, ErrAlreadyWithdrawn
	case reconcile.Unconfirmed:
		return nil, ErrWithdrawalUnconfirmed
	}

	verdict := reconcile.Unconfirmed
	out := s.executor.Execute(ctx, string(models.OpWithdraw), call(campaignID, models.OpWithdraw), func(ctx context.Context, _ *ledger.Submission) {
		v, err := s.reconciler.ConfirmWithdrawal(ctx, campaignID)
		if err != nil {
			s.log.Warn("withdrawal confirmation interrupted", zap.String("campaign_id", campaignID), zap.Error(err))
		}
		verdict = v
	})

	switch {
	case out.Succeeded():
		if verdict != reconcile.Withdrawn {
			out.Final().Status = executor.StatusUnconfirmed
		}
	case out.Final().Status == executor.StatusUnconfirmed:
		// Submitted but never observed: the transfer may still land.
		s.reconciler.MarkUnconfirmed(campaignID)
	default:
		return out, nil
	}
	s.record(ctx, campaignID, actorID, out, map[string]any{
		"raised":  c.Raised,
		"verdict": string(verdict),
	})
	return out, nil
}

// Refund returns one donation of a Failed campaign and destroys its
// receipt. campaignID may be empty, in which case the receipt's is used.
func (s *CampaignService) Refund(ctx context.Context, receiptID, campaignID string, actorID *uuid.UUID) (*executor.Outcome, error) {
	if err := s.requireSigner(); err != nil {
		return nil, err
	}
	r, err := s.GetReceipt(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if campaignID == "" {
		campaignID = r.CampaignID
	}
	if r.CampaignID != campaignID {
		return nil, fmt.Errorf("receipt %s belongs to campaign %s: %w", receiptID, r.CampaignID, ErrInvalidState)
	}

	if err := s.acquire(campaignID, models.OpRefund); err != nil {
		return nil, err
	}
	defer s.release(campaignID)

	c, err := s.current(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.State != models.CampaignStateFailed {
		return nil, ErrInvalidState
	}

	out := s.executor.Execute(ctx, string(models.OpRefund), func() (*ledger.Transaction, error) {
		return &ledger.Transaction{Calls: []ledger.Call{{
			Target:    campaignID,
			Function:  models.OpRefund,
			ReceiptID: receiptID,
		}}}, nil
	}, nil)
	if out.Succeeded() {
		s.record(ctx, campaignID, actorID, out, map[string]any{
			"receipt_id": receiptID,
			"amount":     r.Amount,
			"donor":      r.DonorID,
		})
	}
	return out, nil
}

// Cancel deletes an Active campaign that has received nothing.
func (s *CampaignService) Cancel(ctx context.Context, campaignID string, actorID *uuid.UUID) (*executor.Outcome, error) {
	if err := s.requireSigner(); err != nil {
		return nil, err
	}
	if err := s.acquire(campaignID, models.OpCancel); err != nil {
		return nil, err
	}
	defer s.release(campaignID)

	c, err := s.current(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.State != models.CampaignStateActive {
		return nil, ErrInvalidState
	}
	if !c.IsOwner(s.identity.Signer) {
		return nil, ErrNotOwner
	}
	if c.Raised > 0 {
		return nil, ErrHasDonations
	}

	out := s.executor.Execute(ctx, string(models.OpCancel), call(campaignID, models.OpCancel), nil)
	if out.Succeeded() {
		s.record(ctx, campaignID, actorID, out, nil)
	}
	return out, nil
}

// recordSettlement audits a finalize with the state the refreshed snapshot
// reports. Terminal states are checked against the transition table.
func (s *CampaignService) recordSettlement(ctx context.Context, campaignID string, actorID *uuid.UUID, out *executor.Outcome) {
	meta := map[string]any{}
	if c, ok := s.cached(campaignID); ok {
		meta["state"] = c.State.String()
		meta["raised"] = c.Raised
		meta["goal"] = c.Goal
		if !models.IsValidTransition(models.CampaignStateActive, c.State) {
			s.log.Warn("finalized campaign still reads as active",
				zap.String("campaign_id", campaignID),
				zap.String("state", c.State.String()),
			)
		}
	}
	s.record(ctx, campaignID, actorID, out, meta)
}

// record writes the audit entry of a successful operation and publishes
// campaign activity.
func (s *CampaignService) record(ctx context.Context, campaignID string, actorID *uuid.UUID, out *executor.Outcome, meta map[string]any) {
	final := out.Final()
	if meta == nil {
		meta = map[string]any{}
	}
	meta["digest"] = final.Digest
	meta["status"] = string(final.Status)
	if id := models.RequestIDFromContext(ctx); id != "" {
		meta["request_id"] = id
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorID:    actorID,
		ActorType:  actorType(actorID),
		Action:     "campaign_" + final.Operation,
		EntityType: models.EntityCampaign,
		EntityID:   campaignID,
		Meta:       meta,
	})

	if err := s.publisher.Publish(ctx, events.ChannelCampaigns, events.Event{
		Type: events.EventCampaignActivity,
		Payload: map[string]any{
			"campaign_id": campaignID,
			"operation":   final.Operation,
			"status":      string(final.Status),
			"digest":      final.Digest,
		},
	}); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("campaign activity not published", zap.String("campaign_id", campaignID), zap.Error(err))
	}
}
