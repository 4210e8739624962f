package models

import (
	"time"
)

// CampaignState mirrors the on-chain state byte of a campaign contract.
type CampaignState uint8

const (
	CampaignStateActive    CampaignState = 0
	CampaignStateSucceeded CampaignState = 1
	CampaignStateFailed    CampaignState = 2
)

func (s CampaignState) String() string {
	switch s {
	case CampaignStateActive:
		return "active"
	case CampaignStateSucceeded:
		return "succeeded"
	case CampaignStateFailed:
		return "failed"
	}
	return "unknown"
}

func ParseCampaignState(s string) (CampaignState, bool) {
	switch s {
	case "active":
		return CampaignStateActive, true
	case "succeeded":
		return CampaignStateSucceeded, true
	case "failed":
		return CampaignStateFailed, true
	}
	return 0, false
}

func (s CampaignState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Valid state transitions: from -> []to. Succeeded and Failed are terminal.
var ValidCampaignTransitions = map[CampaignState][]CampaignState{
	CampaignStateActive:    {CampaignStateSucceeded, CampaignStateFailed},
	CampaignStateSucceeded: {},
	CampaignStateFailed:    {},
}

func IsValidTransition(from, to CampaignState) bool {
	allowed, ok := ValidCampaignTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// FinalizeOutcome is the state an Active campaign moves to on finalize.
func FinalizeOutcome(raised, goal uint64) CampaignState {
	if raised >= goal {
		return CampaignStateSucceeded
	}
	return CampaignStateFailed
}

// Campaign is a snapshot of the remote campaign object. It is never
// authoritative: every read may be stale.
type Campaign struct {
	ID           string        `json:"id"`
	Owner        string        `json:"owner"`
	Goal         uint64        `json:"goal"`
	Raised       uint64        `json:"raised"`
	DeadlineAt   time.Time     `json:"deadline_at"`
	State        CampaignState `json:"state"`
	Withdrawn    bool          `json:"withdrawn"`
	MetadataBlob []byte        `json:"-"`
}

func (c *Campaign) IsOwner(addr string) bool {
	return c.Owner != "" && c.Owner == addr
}

// DeadlinePassed reports whether the countdown has run out at now.
func (c *Campaign) DeadlinePassed(now time.Time) bool {
	return !now.Before(c.DeadlineAt)
}

// Progress returns raised/goal as a percentage capped at 100.
func (c *Campaign) Progress() float64 {
	if c.Goal == 0 {
		return 0
	}
	p := float64(c.Raised) / float64(c.Goal) * 100
	if p > 100 {
		return 100
	}
	return p
}

// DonationReceipt proves a donation and is the handle for refunds.
type DonationReceipt struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	DonorID    string    `json:"donor_id"`
	Amount     uint64    `json:"amount"`
	Timestamp  time.Time `json:"timestamp"`
}

// ReconciledBalance is derived from the event replay of a single campaign.
type ReconciledBalance struct {
	TotalDonated   uint64 `json:"total_donated"`
	TotalWithdrawn uint64 `json:"total_withdrawn"`
	TotalRefunded  uint64 `json:"total_refunded"`
	CurrentBalance int64  `json:"current_balance"`
}

func NewReconciledBalance(donated, withdrawn, refunded uint64) ReconciledBalance {
	return ReconciledBalance{
		TotalDonated:   donated,
		TotalWithdrawn: withdrawn,
		TotalRefunded:  refunded,
		CurrentBalance: int64(donated) - int64(withdrawn) - int64(refunded),
	}
}
