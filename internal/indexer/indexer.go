// Package indexer tails the registry event log, republishes events on the
// campaigns channel and keeps the identifier cache warm.
package indexer

import (
	"context"
	"fmt"

	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/metadata"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/crowdfund-ton/backend/internal/ton"
	"go.uber.org/zap"
)

// Source yields registry events after a cursor.
type Source interface {
	EventsSince(ctx context.Context, cursor ton.Cursor) ([]models.LedgerEvent, ton.Cursor, error)
	GetObject(ctx context.Context, id string) (*models.Campaign, error)
}

type CursorStore interface {
	Load(ctx context.Context) (uint64, []byte, error)
	Save(ctx context.Context, lt uint64, hash []byte) error
}

// SlugStore receives slug to campaign mappings of new campaigns.
type SlugStore interface {
	Remember(ctx context.Context, key, campaignID string) error
}

type Indexer struct {
	source    Source
	cursor    CursorStore
	slugs     SlugStore
	publisher events.Publisher
	log       *zap.Logger
}

func New(source Source, cursor CursorStore, slugs SlugStore, publisher events.Publisher, log *zap.Logger) *Indexer {
	return &Indexer{source: source, cursor: cursor, slugs: slugs, publisher: publisher, log: log}
}

// Poll runs one cycle: read events past the cursor, handle them in order
// and advance the cursor. It returns the number of events handled.
func (ix *Indexer) Poll(ctx context.Context) (int, error) {
	lt, hash, err := ix.cursor.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	}

	evs, next, err := ix.source.EventsSince(ctx, ton.Cursor{LT: lt, Hash: hash})
	if err != nil {
		return 0, fmt.Errorf("read registry events: %w", err)
	}

	for _, ev := range evs {
		ix.handle(ctx, ev)
	}

	if next.LT != lt {
		if err := ix.cursor.Save(ctx, next.LT, next.Hash); err != nil {
			return len(evs), fmt.Errorf("save cursor: %w", err)
		}
		if lt == 0 {
			ix.log.Info("cursor initialized at registry head", zap.Uint64("lt", next.LT))
		}
	}
	return len(evs), nil
}

func (ix *Indexer) handle(ctx context.Context, ev models.LedgerEvent) {
	payload := map[string]any{
		"campaign_id": ev.CampaignID,
		"kind":        string(ev.Kind),
		"timestamp":   ev.Timestamp,
		"sequence":    ev.Sequence,
		"tx_digest":   ev.TxDigest,
	}
	if ev.Kind.CarriesAmount() {
		payload["amount"] = ev.Amount
		payload["amount_ton"] = models.FormatTON(ev.Amount)
	}
	if ev.FinalState != nil {
		payload["final_state"] = ev.FinalState.String()
	}
	if ev.Actor != "" {
		payload["donor"] = ev.Actor
		payload["receipt_id"] = ev.ReceiptID
	}

	eventType := events.EventCampaignActivity
	if ev.Kind == models.EventForceSucceeded {
		eventType = events.EventForceSucceeded
	}
	_ = ix.publisher.Publish(ctx, events.ChannelCampaigns, events.Event{Type: eventType, Payload: payload})

	if ev.Kind == models.EventCampaignCreated {
		ix.rememberSlug(ctx, ev.CampaignID)
	}
}

func (ix *Indexer) rememberSlug(ctx context.Context, campaignID string) {
	c, err := ix.source.GetObject(ctx, campaignID)
	if err != nil {
		ix.log.Warn("new campaign not readable yet", zap.String("campaign_id", campaignID), zap.Error(err))
		return
	}
	slug := metadata.Decode(c.MetadataBlob).Slug()
	if slug == "" {
		return
	}
	if err := ix.slugs.Remember(ctx, slug, campaignID); err != nil {
		ix.log.Warn("identifier cache write failed", zap.String("slug", slug), zap.Error(err))
		return
	}
	ix.log.Info("campaign indexed", zap.String("campaign_id", campaignID), zap.String("slug", slug))
}
