package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Audit actor types
const (
	ActorOperator = "operator"
	ActorSystem   = "system"
)

// Audit entity types
const (
	EntityCampaign = "campaign"
	EntityOwner    = "owner"
)

type requestIDKey struct{}

// WithRequestID tags ctx with the id of the API request that caused the work.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	ActorID    *uuid.UUID `json:"actor_id,omitempty"`
	ActorType  string     `json:"actor_type"`
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Meta       any        `json:"meta,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ReconciliationReport is a diagnostic record of a raised/donated mismatch
// seen by the worker sweep. It is never read back as campaign state.
type ReconciliationReport struct {
	CampaignID      string    `json:"campaign_id"`
	Raised          uint64    `json:"raised"`
	TotalDonated    uint64    `json:"total_donated"`
	CurrentBalance  int64     `json:"current_balance"`
	ObjectWithdrawn bool      `json:"object_withdrawn"`
	EventWithdrawn  bool      `json:"event_withdrawn"`
	Observations    int       `json:"observations"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

// Persistent reports a mismatch seen in consecutive sweeps.
func (r *ReconciliationReport) Persistent() bool {
	return r.Observations >= 2
}
