package events

import "context"

// Channels
const (
	ChannelOperations = "events:operations"
	ChannelCampaigns  = "events:campaigns"
)

// Event types
const (
	EventOperationStatus  = "operation_status"
	EventCampaignActivity = "campaign_activity"
	EventForceSucceeded   = "campaign_force_succeeded"
	EventLedgerMismatch   = "ledger_mismatch"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler func(Event)) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, Event) error { return nil }
