package executor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/ledger/ledgertest"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingRefresher struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (r *recordingRefresher) Refresh(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ids)
	return r.err
}

type recordingNotifier struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (n *recordingNotifier) Notify(_ context.Context, o Outcome) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, o)
}

func (n *recordingNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, o := range n.outcomes {
		out = append(out, o.Operation+":"+string(o.Status))
	}
	return out
}

func call(fn models.Operation) Builder {
	return func() (*ledger.Transaction, error) {
		return &ledger.Transaction{Calls: []ledger.Call{{Target: "c1", Function: fn}}}, nil
	}
}

func newExecutor(fake *ledgertest.Fake) (*Executor, *recordingRefresher, *recordingNotifier) {
	ref := &recordingRefresher{}
	note := &recordingNotifier{}
	return New(fake, ref, note, nil, zap.NewNop()), ref, note
}

func TestExecuteSuccess(t *testing.T) {
	fake := ledgertest.New()
	e, ref, note := newExecutor(fake)

	var successCalls int
	out := e.Execute(context.Background(), "finalize", call(models.OpFinalize), func(context.Context, *ledger.Submission) {
		successCalls++
	})

	assert.Equal(t, StatusSucceeded, out.Status)
	assert.True(t, out.Succeeded())
	assert.Equal(t, "tx-1", out.Digest)
	assert.Equal(t, 1, successCalls)
	assert.Equal(t, [][]string{{"c1"}}, ref.calls)
	assert.Equal(t, []string{"finalize:pending", "finalize:succeeded"}, note.statuses())
}

func TestExecuteEmptyTransactionNeverSubmits(t *testing.T) {
	tests := []struct {
		name  string
		build Builder
	}{
		{"nil", func() (*ledger.Transaction, error) { return nil, nil }},
		{"no calls", func() (*ledger.Transaction, error) { return &ledger.Transaction{}, nil }},
		{"builder error", func() (*ledger.Transaction, error) { return nil, errors.New("bad input") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := ledgertest.New()
			e, _, _ := newExecutor(fake)

			out := e.Execute(context.Background(), "donate", tt.build, nil)
			assert.Equal(t, StatusFailed, out.Status)
			assert.Error(t, out.Err)
			assert.Zero(t, fake.RemoteCalls())
		})
	}
}

func TestExecuteClassifiesAbortWithoutChangingFlow(t *testing.T) {
	fake := ledgertest.New()
	fake.AwaitFinalityFn = func(context.Context, *ledger.Submission) error {
		return &ledger.Error{Code: ledger.CodeAborted, Abort: ledger.AbortDeadlineNotReached}
	}
	e, ref, _ := newExecutor(fake)

	out := e.Execute(context.Background(), "finalize", call(models.OpFinalize), func(context.Context, *ledger.Submission) {
		t.Fatal("onSuccess must not run on abort")
	})

	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, ledger.AbortDeadlineNotReached, out.Abort)
	assert.Equal(t, "deadline not reached", out.Reason)
	assert.Nil(t, out.Fallback)
	assert.Empty(t, ref.calls)
	assert.Equal(t, 1, fake.Calls("SubmitTransaction"))
}

func TestExecuteUnknownAbortCode(t *testing.T) {
	fake := ledgertest.New()
	fake.SubmitTransactionFn = func(context.Context, *ledger.Transaction) (*ledger.Submission, error) {
		return nil, &ledger.Error{Code: ledger.CodeAborted, Abort: 99}
	}
	e, _, _ := newExecutor(fake)

	out := e.Execute(context.Background(), "donate", call(models.OpDonate), nil)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "unknown abort", out.Reason)
}

func TestExecuteFinalityTimeoutIsUnconfirmed(t *testing.T) {
	fake := ledgertest.New()
	fake.AwaitFinalityFn = func(context.Context, *ledger.Submission) error {
		return ledger.ErrFinalityTimeout
	}
	e, _, _ := newExecutor(fake)

	out := e.Execute(context.Background(), "withdraw", call(models.OpWithdraw), nil)
	assert.Equal(t, StatusUnconfirmed, out.Status)
	assert.Equal(t, "tx-1", out.Digest)
}

func TestExecuteFallbackRunsOnce(t *testing.T) {
	fake := ledgertest.New()
	fake.SubmitTransactionFn = func(_ context.Context, tx *ledger.Transaction) (*ledger.Submission, error) {
		if tx.Calls[0].Function == models.OpForceSucceeded {
			return nil, &ledger.Error{Code: ledger.CodeFunctionNotFound, Detail: "force_succeeded"}
		}
		return &ledger.Submission{Digest: "fb", Targets: tx.Targets()}, nil
	}
	e, _, note := newExecutor(fake)

	successCalls := 0
	out := e.Execute(context.Background(), "force_succeed", call(models.OpForceSucceeded), func(context.Context, *ledger.Submission) {
		successCalls++
	})

	require.NotNil(t, out.Fallback)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, "force_succeed_fallback", out.Fallback.Operation)
	assert.Equal(t, StatusSucceeded, out.Fallback.Status)
	assert.True(t, out.Succeeded())
	assert.Equal(t, 1, successCalls)
	assert.Equal(t, 2, fake.Calls("SubmitTransaction"))
	assert.Equal(t, models.OpFinalize, fake.LastSubmitted().Calls[0].Function)
	assert.Equal(t, []string{
		"force_succeed:pending",
		"force_succeed:failed",
		"force_succeed_fallback:pending",
		"force_succeed_fallback:succeeded",
	}, note.statuses())
}

func TestExecuteFallbackNeverChains(t *testing.T) {
	fake := ledgertest.New()
	fake.AwaitFinalityFn = func(context.Context, *ledger.Submission) error {
		return &ledger.Error{Code: ledger.CodeFunctionNotFound}
	}
	e, _, _ := newExecutor(fake)
	e.fallbacks = map[models.Operation]models.Operation{
		models.OpForceSucceeded: models.OpFinalize,
		models.OpFinalize:       models.OpForceSucceeded,
	}

	out := e.Execute(context.Background(), "force_succeed", call(models.OpForceSucceeded), nil)

	require.NotNil(t, out.Fallback)
	assert.Nil(t, out.Fallback.Fallback)
	assert.Equal(t, StatusFailed, out.Final().Status)
	assert.Equal(t, 2, fake.Calls("SubmitTransaction"))
}

func TestExecuteNoFallbackForOtherErrors(t *testing.T) {
	fake := ledgertest.New()
	fake.SubmitTransactionFn = func(context.Context, *ledger.Transaction) (*ledger.Submission, error) {
		return nil, &ledger.Error{Code: ledger.CodeTransport, Err: errors.New("EntryFunctionNotFound in message text")}
	}
	e, _, _ := newExecutor(fake)

	out := e.Execute(context.Background(), "force_succeed", call(models.OpForceSucceeded), nil)
	assert.Nil(t, out.Fallback)
	assert.Equal(t, 1, fake.Calls("SubmitTransaction"))
}

func TestExecuteNoFallbackForUnmappedFunction(t *testing.T) {
	fake := ledgertest.New()
	fake.SubmitTransactionFn = func(context.Context, *ledger.Transaction) (*ledger.Submission, error) {
		return nil, &ledger.Error{Code: ledger.CodeFunctionNotFound}
	}
	e, _, _ := newExecutor(fake)

	out := e.Execute(context.Background(), "withdraw", call(models.OpWithdraw), nil)
	assert.Nil(t, out.Fallback)
	assert.Equal(t, StatusFailed, out.Status)
}

func TestExecuteRefreshFailureDoesNotFail(t *testing.T) {
	fake := ledgertest.New()
	e, ref, _ := newExecutor(fake)
	ref.err = errors.New("object read failed")

	out := e.Execute(context.Background(), "donate", call(models.OpDonate), nil)
	assert.Equal(t, StatusSucceeded, out.Status)
}
