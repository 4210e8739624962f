// Package ledger defines the boundary between the campaign engine and the
// remote ledger that stores campaign objects, emits events and executes
// transactions. Reads are eventually consistent.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/crowdfund-ton/backend/internal/models"
)

var (
	ErrNotFound         = errors.New("ledger: object not found")
	ErrFinalityTimeout  = errors.New("ledger: transaction not observed before finality deadline")
	ErrEmptyTransaction = errors.New("ledger: transaction has no valid calls")
)

// Order of an event query.
type Order int

const (
	Ascending Order = iota
	Descending
)

type EventQuery struct {
	Limit int
	Order Order
}

// CreateParams carries the arguments of create_campaign.
type CreateParams struct {
	Goal       uint64
	DeadlineAt time.Time
	Metadata   []byte
}

// Call is one contract invocation inside a transaction.
type Call struct {
	Target    string
	Function  models.Operation
	Amount    uint64
	ReceiptID string
	Create    *CreateParams
}

type Transaction struct {
	Calls []Call
}

// Validate rejects transactions that must never reach the remote.
func (t *Transaction) Validate() error {
	if t == nil || len(t.Calls) == 0 {
		return ErrEmptyTransaction
	}
	for _, c := range t.Calls {
		if c.Target == "" || c.Function == "" {
			return ErrEmptyTransaction
		}
		if c.Function == models.OpCreateCampaign && c.Create == nil {
			return ErrEmptyTransaction
		}
	}
	return nil
}

// Targets returns the distinct call targets in call order.
func (t *Transaction) Targets() []string {
	seen := make(map[string]bool, len(t.Calls))
	var out []string
	for _, c := range t.Calls {
		if !seen[c.Target] {
			seen[c.Target] = true
			out = append(out, c.Target)
		}
	}
	return out
}

// Submission identifies a submitted transaction until finality is observed.
type Submission struct {
	Digest      string
	QueryID     uint64
	Targets     []string
	SubmittedAt time.Time
}

// Service is the remote ledger consumed by the engine.
type Service interface {
	GetObject(ctx context.Context, id string) (*models.Campaign, error)
	GetReceipt(ctx context.Context, id string) (*models.DonationReceipt, error)
	QueryEvents(ctx context.Context, kind models.EventKind, q EventQuery) ([]models.LedgerEvent, error)
	SubmitTransaction(ctx context.Context, tx *Transaction) (*Submission, error)
	AwaitFinality(ctx context.Context, sub *Submission) error
}
