package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/executor"
	"github.com/crowdfund-ton/backend/internal/fundsflow"
	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/metadata"
	"github.com/crowdfund-ton/backend/internal/metrics"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/reconcile"
	"github.com/crowdfund-ton/backend/internal/resolver"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Auditor records who did what. Failures are ignored by callers.
type Auditor interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// ArchiveTags hides campaigns from default listings.
type ArchiveTags interface {
	Archive(ctx context.Context, campaignID string) error
	Unarchive(ctx context.Context, campaignID string) error
	Archived(ctx context.Context) (map[string]bool, error)
}

// NameDirectory maps owner addresses to display names.
type NameDirectory interface {
	SetName(ctx context.Context, addr, name string) error
	Names(ctx context.Context, addrs ...string) (map[string]string, error)
}

// Identity is the signing wallet the service acts as.
type Identity struct {
	Signer   string
	Registry string
}

type CampaignService struct {
	svc        ledger.Service
	executor   *executor.Executor
	reconciler *reconcile.Reconciler
	builder    *fundsflow.Builder
	resolver   *resolver.Resolver
	audit      Auditor
	publisher  events.Publisher
	archive    ArchiveTags
	names      NameDirectory
	identity   Identity
	scanLimit  int
	metrics    *metrics.Metrics
	log        *zap.Logger
	nowFn      func() time.Time

	mu        sync.Mutex
	pending   map[string]models.Operation
	snapshots map[string]*models.Campaign
}

func NewCampaignService(
	svc ledger.Service,
	reconciler *reconcile.Reconciler,
	builder *fundsflow.Builder,
	res *resolver.Resolver,
	audit Auditor,
	publisher events.Publisher,
	archive ArchiveTags,
	names NameDirectory,
	identity Identity,
	scanLimit int,
	m *metrics.Metrics,
	log *zap.Logger,
) *CampaignService {
	if scanLimit <= 0 {
		scanLimit = 50
	}
	s := &CampaignService{
		svc:        svc,
		reconciler: reconciler,
		builder:    builder,
		resolver:   res,
		audit:      audit,
		publisher:  publisher,
		archive:    archive,
		names:      names,
		identity:   identity,
		scanLimit:  scanLimit,
		metrics:    m,
		log:        log,
		nowFn:      time.Now,
		pending:    make(map[string]models.Operation),
		snapshots:  make(map[string]*models.Campaign),
	}
	s.executor = executor.New(svc, s, NewOperationNotifier(publisher, log), m, log)
	return s
}

// acquire takes the pending slot of a campaign for op.
func (s *CampaignService) acquire(campaignID string, op models.Operation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running, ok := s.pending[campaignID]; ok {
		s.log.Debug("operation rejected, slot busy",
			zap.String("campaign_id", campaignID),
			zap.String("operation", string(op)),
			zap.String("running", string(running)),
		)
		return ErrOperationInProgress
	}
	s.pending[campaignID] = op
	return nil
}

func (s *CampaignService) release(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, campaignID)
}

// PendingOperation returns the operation in flight for a campaign, if any.
func (s *CampaignService) PendingOperation(campaignID string) (models.Operation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.pending[campaignID]
	return op, ok
}

func (s *CampaignService) store(c *models.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.snapshots[c.ID] = &cp
}

func (s *CampaignService) cached(campaignID string) (*models.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.snapshots[campaignID]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

func (s *CampaignService) forget(campaignID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, campaignID)
}

// Refresh re-reads the campaigns touched by a finalized transaction. A
// campaign that no longer exists (cancelled) is dropped from the cache.
func (s *CampaignService) Refresh(ctx context.Context, ids []string) error {
	var errs []error
	for _, id := range ids {
		if id == s.identity.Registry {
			continue
		}
		c, err := s.svc.GetObject(ctx, id)
		if errors.Is(err, ledger.ErrNotFound) {
			s.forget(id)
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("refresh %s: %w", id, err))
			continue
		}
		s.store(c)
	}
	return errors.Join(errs...)
}

// current returns the cached snapshot, reading it once when absent.
func (s *CampaignService) current(ctx context.Context, campaignID string) (*models.Campaign, error) {
	if c, ok := s.cached(campaignID); ok {
		return c, nil
	}
	return s.fetch(ctx, campaignID)
}

func (s *CampaignService) fetch(ctx context.Context, campaignID string) (*models.Campaign, error) {
	c, err := s.svc.GetObject(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	s.store(c)
	return c, nil
}

// ReconciledView is everything the verification panel shows for one
// campaign. Every field is provisional while an operation is pending.
type ReconciledView struct {
	Campaign         *models.Campaign         `json:"campaign"`
	Metadata         metadata.Record          `json:"metadata"`
	Slug             string                   `json:"slug"`
	Balance          models.ReconciledBalance `json:"balance"`
	Audit            fundsflow.Audit          `json:"audit"`
	Withdrawn        reconcile.Result         `json:"withdrawn"`
	Degraded         []models.EventKind       `json:"degraded,omitempty"`
	Truncated        []models.EventKind       `json:"truncated,omitempty"`
	Actions          []models.Operation       `json:"actions"`
	PendingOperation models.Operation         `json:"pending_operation,omitempty"`
}

// ResolveAndOpen resolves identifier and loads its reconciled view.
func (s *CampaignService) ResolveAndOpen(ctx context.Context, identifier string) (*ReconciledView, error) {
	res, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	view, err := s.GetReconciledView(ctx, res.CampaignID)
	if err != nil && res.Path == resolver.PathCache && errors.Is(err, ledger.ErrNotFound) {
		s.log.Warn("cached identifier is stale",
			zap.String("identifier", identifier),
			zap.String("campaign_id", res.CampaignID),
		)
	}
	return view, err
}

func (s *CampaignService) GetReconciledView(ctx context.Context, campaignID string) (*ReconciledView, error) {
	c, err := s.fetch(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	meta := metadata.Decode(c.MetadataBlob)
	l := s.builder.Build(ctx, campaignID)
	audit := fundsflow.Verify(l, c)
	if audit.Mismatch {
		s.metrics.LedgerMismatch()
		s.log.Warn("replayed donations differ from raised",
			zap.String("campaign_id", campaignID),
			zap.Uint64("raised", audit.Raised),
			zap.Uint64("total_donated", audit.TotalDonated),
		)
	}
	withdrawn := s.reconciler.Observe(c, l)

	view := &ReconciledView{
		Campaign:  c,
		Metadata:  meta,
		Slug:      meta.Slug(),
		Balance:   l.Balance,
		Audit:     audit,
		Withdrawn: withdrawn,
		Degraded:  l.Degraded,
		Truncated: l.Truncated,
	}
	if op, ok := s.PendingOperation(campaignID); ok {
		view.PendingOperation = op
		view.Actions = []models.Operation{}
	} else {
		view.Actions = s.availableActions(c, withdrawn.Verdict)
	}

	s.resolver.Remember(ctx, view.Slug, c.ID)
	return view, nil
}

// availableActions lists the operations the signer may offer for c.
func (s *CampaignService) availableActions(c *models.Campaign, verdict reconcile.Verdict) []models.Operation {
	actions := []models.Operation{}
	if s.identity.Signer == "" {
		return actions
	}
	owner := c.IsOwner(s.identity.Signer)
	switch c.State {
	case models.CampaignStateActive:
		actions = append(actions, models.OpDonate)
		if c.DeadlinePassed(s.nowFn()) {
			actions = append(actions, models.OpFinalize)
		}
		if owner {
			actions = append(actions, models.OpForceSucceeded)
			if c.Raised == 0 {
				actions = append(actions, models.OpCancel)
			}
		}
	case models.CampaignStateSucceeded:
		if owner && verdict == reconcile.NotWithdrawn {
			actions = append(actions, models.OpWithdraw)
		}
	case models.CampaignStateFailed:
		actions = append(actions, models.OpRefund)
	}
	return actions
}

// List loads the most recent campaigns, joins metadata and local
// annotations and applies the filter. Every listed slug is cached.
func (s *CampaignService) List(ctx context.Context, filter models.ListingFilter) ([]models.CampaignListing, error) {
	created, err := s.svc.QueryEvents(ctx, models.EventCampaignCreated, ledger.EventQuery{
		Limit: s.scanLimit,
		Order: ledger.Descending,
	})
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	archived, err := s.archive.Archived(ctx)
	if err != nil {
		s.log.Warn("archive tags unavailable", zap.Error(err))
		archived = map[string]bool{}
	}

	seen := make(map[string]bool, len(created))
	items := make([]models.CampaignListing, 0, len(created))
	owners := make([]string, 0, len(created))
	for _, ev := range created {
		if seen[ev.CampaignID] {
			continue
		}
		seen[ev.CampaignID] = true

		c, err := s.fetch(ctx, ev.CampaignID)
		if err != nil {
			s.log.Debug("skipping unreadable campaign", zap.String("campaign_id", ev.CampaignID), zap.Error(err))
			continue
		}
		meta := metadata.Decode(c.MetadataBlob)
		item := models.CampaignListing{
			Campaign:    *c,
			Title:       meta.Title,
			Description: meta.PlainDescription(),
			ImageURL:    meta.ImageURL,
			Slug:        meta.Slug(),
			Archived:    archived[c.ID],
			ProgressPct: c.Progress(),
		}
		s.resolver.Remember(ctx, item.Slug, c.ID)
		items = append(items, item)
		owners = append(owners, c.Owner)
	}

	names, err := s.names.Names(ctx, owners...)
	if err != nil {
		s.log.Warn("display names unavailable", zap.Error(err))
	}
	for i := range items {
		items[i].OwnerName = names[items[i].Owner]
	}

	return models.ApplyListingFilter(items, filter), nil
}

func (s *CampaignService) GetLedger(ctx context.Context, campaignID string) (*fundsflow.Ledger, error) {
	if _, err := s.current(ctx, campaignID); err != nil {
		return nil, err
	}
	return s.builder.Build(ctx, campaignID), nil
}

func (s *CampaignService) GetReceipt(ctx context.Context, receiptID string) (*models.DonationReceipt, error) {
	r, err := s.svc.GetReceipt(ctx, receiptID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrReceiptNotFound
	}
	return r, err
}

// ListReceipts returns the live donation receipts of donor, newest first.
// Only the latest scanLimit donations on the registry are considered.
// Receipts destroyed by a refund are skipped.
func (s *CampaignService) ListReceipts(ctx context.Context, donor string) ([]models.DonationReceipt, error) {
	evs, err := s.svc.QueryEvents(ctx, models.EventDonated, ledger.EventQuery{Limit: s.scanLimit, Order: ledger.Descending})
	if err != nil {
		return nil, fmt.Errorf("query donations: %w", err)
	}

	seen := make(map[string]bool)
	out := []models.DonationReceipt{}
	for _, ev := range evs {
		if ev.Actor != donor || ev.ReceiptID == "" || seen[ev.ReceiptID] {
			continue
		}
		seen[ev.ReceiptID] = true

		r, err := s.svc.GetReceipt(ctx, ev.ReceiptID)
		if errors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get receipt %s: %w", ev.ReceiptID, err)
		}
		out = append(out, *r)
	}
	return out, nil
}

// SetArchived tags or untags a campaign in the local archive set.
func (s *CampaignService) SetArchived(ctx context.Context, campaignID string, archived bool, actorID *uuid.UUID) error {
	var err error
	action := "campaign_archived"
	if archived {
		err = s.archive.Archive(ctx, campaignID)
	} else {
		action = "campaign_unarchived"
		err = s.archive.Unarchive(ctx, campaignID)
	}
	if err != nil {
		return fmt.Errorf("update archive tag: %w", err)
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorID:    actorID,
		ActorType:  actorType(actorID),
		Action:     action,
		EntityType: models.EntityCampaign,
		EntityID:   campaignID,
	})
	return nil
}

const maxDisplayName = 64

// SetDisplayName labels an owner address in listings. An empty name clears
// the label. addr must already be canonical.
func (s *CampaignService) SetDisplayName(ctx context.Context, addr, name string, actorID *uuid.UUID) error {
	name = strings.TrimSpace(name)
	printable := strings.IndexFunc(name, func(r rune) bool { return !unicode.IsPrint(r) }) < 0
	if !printable || utf8.RuneCountInString(name) > maxDisplayName {
		return ErrInvalidName
	}
	if err := s.names.SetName(ctx, addr, name); err != nil {
		return fmt.Errorf("update display name: %w", err)
	}

	action := "display_name_set"
	if name == "" {
		action = "display_name_cleared"
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorID:    actorID,
		ActorType:  actorType(actorID),
		Action:     action,
		EntityType: models.EntityOwner,
		EntityID:   addr,
		Meta:       map[string]any{"name": name},
	})
	return nil
}

func actorType(actorID *uuid.UUID) string {
	if actorID == nil {
		return models.ActorSystem
	}
	return models.ActorOperator
}
