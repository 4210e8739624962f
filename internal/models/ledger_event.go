package models

import "time"

// EventKind names a contract event type.
type EventKind string

const (
	EventCampaignCreated EventKind = "campaign_created"
	EventDonated         EventKind = "donated"
	EventWithdrawn       EventKind = "withdrawn"
	EventRefunded        EventKind = "refunded"
	EventFinalized       EventKind = "finalized"
	EventForceSucceeded  EventKind = "force_succeeded"
)

// FundsFlowKinds are the kinds replayed into the funds-flow ledger.
var FundsFlowKinds = []EventKind{
	EventCampaignCreated,
	EventDonated,
	EventWithdrawn,
	EventRefunded,
	EventFinalized,
}

// CarriesAmount reports whether events of this kind move funds.
func (k EventKind) CarriesAmount() bool {
	switch k {
	case EventDonated, EventWithdrawn, EventRefunded:
		return true
	}
	return false
}

// LedgerEvent is one immutable entry of a campaign's event history.
// Sequence breaks ties between events sharing a timestamp.
type LedgerEvent struct {
	Kind       EventKind      `json:"kind"`
	CampaignID string         `json:"campaign_id"`
	Amount     uint64         `json:"amount,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	ReceiptID  string         `json:"receipt_id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Sequence   uint64         `json:"sequence"`
	TxDigest   string         `json:"tx_digest,omitempty"`
	FinalState *CampaignState `json:"final_state,omitempty"`
}

// Operation is a contract entry function name.
type Operation string

const (
	OpCreateCampaign Operation = "create_campaign"
	OpDonate         Operation = "donate"
	OpFinalize       Operation = "finalize"
	OpWithdraw       Operation = "withdraw"
	OpRefund         Operation = "refund"
	OpForceSucceeded Operation = "force_succeeded"
	OpCancel         Operation = "cancel_campaign"
)

// Mutates reports whether the operation acts on an existing campaign and
// therefore takes the per-campaign pending slot.
func (o Operation) Mutates() bool {
	return o != OpCreateCampaign
}
