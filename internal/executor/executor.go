// Package executor submits ledger operations, waits for finality, refreshes
// the affected snapshots and runs the function fallback chain.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/metrics"
	"github.com/crowdfund-ton/backend/internal/models"
	"go.uber.org/zap"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusUnconfirmed Status = "unconfirmed"
)

// Outcome is the user-visible result of one Execute call. Abort and Reason
// describe a classified contract abort and never affect control flow.
type Outcome struct {
	Operation string           `json:"operation"`
	Status    Status           `json:"status"`
	Targets   []string         `json:"targets,omitempty"`
	Digest    string           `json:"digest,omitempty"`
	Error     string           `json:"error,omitempty"`
	Abort     ledger.AbortCode `json:"abort_code,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Fallback  *Outcome         `json:"fallback,omitempty"`
	Err       error            `json:"-"`
}

// Final returns the outcome that decided the result: the fallback's when a
// fallback ran.
func (o *Outcome) Final() *Outcome {
	if o.Fallback != nil {
		return o.Fallback.Final()
	}
	return o
}

func (o *Outcome) Succeeded() bool {
	return o.Final().Status == StatusSucceeded
}

// Builder produces the transaction to submit.
type Builder func() (*ledger.Transaction, error)

// SuccessFunc runs after finality and refresh.
type SuccessFunc func(ctx context.Context, sub *ledger.Submission)

// Refresher re-reads the snapshots affected by a finalized transaction.
type Refresher interface {
	Refresh(ctx context.Context, ids []string) error
}

// Notifier is told about every status change.
type Notifier interface {
	Notify(ctx context.Context, o Outcome)
}

// DefaultFallbacks maps a contract function to the function to retry with
// when the target does not expose it.
var DefaultFallbacks = map[models.Operation]models.Operation{
	models.OpForceSucceeded: models.OpFinalize,
}

type Executor struct {
	svc       ledger.Service
	refresher Refresher
	notifier  Notifier
	fallbacks map[models.Operation]models.Operation
	metrics   *metrics.Metrics
	log       *zap.Logger
	nowFn     func() time.Time
}

func New(svc ledger.Service, refresher Refresher, notifier Notifier, m *metrics.Metrics, log *zap.Logger) *Executor {
	return &Executor{
		svc:       svc,
		refresher: refresher,
		notifier:  notifier,
		fallbacks: DefaultFallbacks,
		metrics:   m,
		log:       log,
		nowFn:     time.Now,
	}
}

// Execute builds, submits and awaits one transaction. A function-not-found
// rejection whose function has a fallback is retried exactly once under
// the name "<name>_fallback"; the fallback itself never falls back.
func (e *Executor) Execute(ctx context.Context, name string, build Builder, onSuccess SuccessFunc) *Outcome {
	return e.execute(ctx, name, build, onSuccess, true)
}

func (e *Executor) execute(ctx context.Context, name string, build Builder, onSuccess SuccessFunc, allowFallback bool) *Outcome {
	start := e.nowFn()
	out := &Outcome{Operation: name, Status: StatusPending}
	e.notify(ctx, out)

	tx, err := build()
	if err == nil {
		err = tx.Validate()
	}
	if err != nil {
		return e.finish(ctx, out, StatusFailed, err, start)
	}
	out.Targets = tx.Targets()

	sub, err := e.svc.SubmitTransaction(ctx, tx)
	if err == nil {
		out.Digest = sub.Digest
		err = e.svc.AwaitFinality(ctx, sub)
	}

	if err != nil {
		if allowFallback && ledger.IsFunctionNotFound(err) {
			if fb, ok := e.rewrite(tx); ok {
				e.log.Warn("function not found, running fallback",
					zap.String("operation", name),
					zap.Error(err),
				)
				e.finish(ctx, out, StatusFailed, err, start)
				e.metrics.Fallback(name)
				out.Fallback = e.execute(ctx, name+"_fallback", func() (*ledger.Transaction, error) { return fb, nil }, onSuccess, false)
				return out
			}
		}
		if errors.Is(err, ledger.ErrFinalityTimeout) {
			return e.finish(ctx, out, StatusUnconfirmed, err, start)
		}
		return e.finish(ctx, out, StatusFailed, err, start)
	}

	if e.refresher != nil {
		if err := e.refresher.Refresh(ctx, sub.Targets); err != nil {
			e.log.Warn("post-finality refresh failed", zap.String("operation", name), zap.Error(err))
		}
	}
	if onSuccess != nil {
		onSuccess(ctx, sub)
	}
	return e.finish(ctx, out, StatusSucceeded, nil, start)
}

// rewrite swaps every call whose function has a fallback. ok is false when
// no call could be rewritten.
func (e *Executor) rewrite(tx *ledger.Transaction) (*ledger.Transaction, bool) {
	fb := &ledger.Transaction{Calls: make([]ledger.Call, len(tx.Calls))}
	changed := false
	for i, c := range tx.Calls {
		if to, ok := e.fallbacks[c.Function]; ok {
			c.Function = to
			changed = true
		}
		fb.Calls[i] = c
	}
	return fb, changed
}

func (e *Executor) finish(ctx context.Context, out *Outcome, status Status, err error, start time.Time) *Outcome {
	out.Status = status
	out.Err = err
	if err != nil {
		out.Error = err.Error()
		if code, ok := ledger.AbortOf(err); ok {
			out.Abort = code
			out.Reason = code.Reason()
			if out.Reason == "" {
				out.Reason = "unknown abort"
			}
			e.metrics.Abort(out.Reason)
		}
	}

	fields := []zap.Field{
		zap.String("operation", out.Operation),
		zap.String("status", string(status)),
		zap.String("digest", out.Digest),
	}
	switch {
	case err == nil:
		e.log.Info("operation finished", fields...)
	case out.Abort != 0:
		e.log.Warn("operation aborted", append(fields, zap.Uint32("abort_code", uint32(out.Abort)), zap.String("reason", out.Reason))...)
	default:
		e.log.Warn("operation failed", append(fields, zap.Error(err))...)
	}

	e.metrics.Operation(out.Operation, string(status), e.nowFn().Sub(start).Seconds())
	e.notify(ctx, out)
	return out
}

func (e *Executor) notify(ctx context.Context, o *Outcome) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, *o)
	}
}
