// Package ledgertest provides an in-memory ledger.Service for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/models"
)

// Fake is a ledger.Service whose behaviour is set per method through the
// func fields. Unset fields fall back to the in-memory Objects, Receipts
// and Events. Every call is counted.
type Fake struct {
	GetObjectFn         func(ctx context.Context, id string) (*models.Campaign, error)
	GetReceiptFn        func(ctx context.Context, id string) (*models.DonationReceipt, error)
	QueryEventsFn       func(ctx context.Context, kind models.EventKind, q ledger.EventQuery) ([]models.LedgerEvent, error)
	SubmitTransactionFn func(ctx context.Context, tx *ledger.Transaction) (*ledger.Submission, error)
	AwaitFinalityFn     func(ctx context.Context, sub *ledger.Submission) error

	mu        sync.Mutex
	Objects   map[string]*models.Campaign
	Receipts  map[string]*models.DonationReceipt
	Events    []models.LedgerEvent
	Submitted []*ledger.Transaction
	calls     map[string]int
}

var _ ledger.Service = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Objects:  map[string]*models.Campaign{},
		Receipts: map[string]*models.DonationReceipt{},
		calls:    map[string]int{},
	}
}

func (f *Fake) count(method string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[method]++
}

// Calls returns how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// RemoteCalls returns the total number of calls of any method.
func (f *Fake) RemoteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *Fake) Put(c models.Campaign) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Objects[c.ID] = &c
}

func (f *Fake) Emit(events ...models.LedgerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = append(f.Events, events...)
}

func (f *Fake) GetObject(ctx context.Context, id string) (*models.Campaign, error) {
	f.count("GetObject")
	if f.GetObjectFn != nil {
		return f.GetObjectFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.Objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	cp := *c
	return &cp, nil
}

func (f *Fake) GetReceipt(ctx context.Context, id string) (*models.DonationReceipt, error) {
	f.count("GetReceipt")
	if f.GetReceiptFn != nil {
		return f.GetReceiptFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.Receipts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

// QueryEvents returns the stored events of kind in emission order, or
// reversed for a descending query, truncated to the limit.
func (f *Fake) QueryEvents(ctx context.Context, kind models.EventKind, q ledger.EventQuery) ([]models.LedgerEvent, error) {
	f.count("QueryEvents")
	if f.QueryEventsFn != nil {
		return f.QueryEventsFn(ctx, kind, q)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.LedgerEvent
	for _, ev := range f.Events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	if q.Order == ledger.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (f *Fake) SubmitTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.Submission, error) {
	f.count("SubmitTransaction")
	f.mu.Lock()
	f.Submitted = append(f.Submitted, tx)
	n := len(f.Submitted)
	f.mu.Unlock()
	if f.SubmitTransactionFn != nil {
		return f.SubmitTransactionFn(ctx, tx)
	}
	return &ledger.Submission{Digest: fmt.Sprintf("tx-%d", n), QueryID: uint64(n), Targets: tx.Targets()}, nil
}

func (f *Fake) AwaitFinality(ctx context.Context, sub *ledger.Submission) error {
	f.count("AwaitFinality")
	if f.AwaitFinalityFn != nil {
		return f.AwaitFinalityFn(ctx, sub)
	}
	return nil
}

// LastSubmitted returns the most recent submitted transaction or nil.
func (f *Fake) LastSubmitted() *ledger.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Submitted) == 0 {
		return nil
	}
	return f.Submitted[len(f.Submitted)-1]
}
