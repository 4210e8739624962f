package ton

import (
	"fmt"
	"time"

	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// Inbound operation codes understood by the registry and campaign contracts.
const (
	opCreateCampaign uint64 = 0x43a1c001
	opDonate         uint64 = 0x43a1c002
	opFinalize       uint64 = 0x43a1c003
	opWithdraw       uint64 = 0x43a1c004
	opRefund         uint64 = 0x43a1c005
	opForceSucceeded uint64 = 0x43a1c006
	opCancel         uint64 = 0x43a1c007
)

var callOps = map[models.Operation]uint64{
	models.OpCreateCampaign: opCreateCampaign,
	models.OpDonate:         opDonate,
	models.OpFinalize:       opFinalize,
	models.OpWithdraw:       opWithdraw,
	models.OpRefund:         opRefund,
	models.OpForceSucceeded: opForceSucceeded,
	models.OpCancel:         opCancel,
}

// Log tags of the external-out messages emitted by the registry.
const (
	logCampaignCreated uint64 = 0x9c5e0001
	logDonated         uint64 = 0x9c5e0002
	logWithdrawn       uint64 = 0x9c5e0003
	logRefunded        uint64 = 0x9c5e0004
	logFinalized       uint64 = 0x9c5e0005
	logForceSucceeded  uint64 = 0x9c5e0006
)

var logKinds = map[uint64]models.EventKind{
	logCampaignCreated: models.EventCampaignCreated,
	logDonated:         models.EventDonated,
	logWithdrawn:       models.EventWithdrawn,
	logRefunded:        models.EventRefunded,
	logFinalized:       models.EventFinalized,
	logForceSucceeded:  models.EventForceSucceeded,
}

// Contract exit codes at or above abortBase carry an abort code.
const (
	abortBase         = 1000
	exitUnknownOp     = 0xffff
	exitAlternativeOK = 1
)

// encodeCall builds the body of the internal message for one call:
// op:uint32 query_id:uint64 followed by the operation arguments.
func encodeCall(c ledger.Call, queryID uint64) (*cell.Cell, error) {
	op, ok := callOps[c.Function]
	if !ok {
		return nil, &ledger.Error{Code: ledger.CodeFunctionNotFound, Detail: string(c.Function)}
	}

	b := cell.BeginCell().
		MustStoreUInt(op, 32).
		MustStoreUInt(queryID, 64)

	switch c.Function {
	case models.OpCreateCampaign:
		if c.Create == nil {
			return nil, ledger.ErrEmptyTransaction
		}
		meta := cell.BeginCell().MustStoreBinarySnake(c.Create.Metadata).EndCell()
		b.MustStoreCoins(c.Create.Goal).
			MustStoreUInt(uint64(c.Create.DeadlineAt.UnixMilli()), 64).
			MustStoreRef(meta)
	case models.OpRefund:
		receipt, err := ParseAddress(c.ReceiptID)
		if err != nil {
			return nil, fmt.Errorf("parse receipt address %q: %w", c.ReceiptID, err)
		}
		b.MustStoreAddr(receipt)
	}

	return b.EndCell(), nil
}

// decodedCall is the op and query id at the head of an inbound body.
type decodedCall struct {
	Op      uint64
	QueryID uint64
}

func decodeCallHeader(body *cell.Cell) (decodedCall, bool) {
	if body == nil {
		return decodedCall{}, false
	}
	s := body.BeginParse()
	if s.BitsLeft() < 96 {
		return decodedCall{}, false
	}
	op, err := s.LoadUInt(32)
	if err != nil {
		return decodedCall{}, false
	}
	qid, err := s.LoadUInt(64)
	if err != nil {
		return decodedCall{}, false
	}
	return decodedCall{Op: op, QueryID: qid}, true
}

// encodeLog builds a registry log body. Used by tests and local tooling.
func encodeLog(ev models.LedgerEvent, campaign *address.Address) (*cell.Cell, error) {
	var tag uint64
	for t, k := range logKinds {
		if k == ev.Kind {
			tag = t
		}
	}
	if tag == 0 {
		return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	b := cell.BeginCell().
		MustStoreUInt(tag, 32).
		MustStoreAddr(campaign).
		MustStoreCoins(ev.Amount).
		MustStoreUInt(uint64(ev.Timestamp.UnixMilli()), 64)

	if ev.Kind == models.EventFinalized {
		state := models.CampaignStateFailed
		if ev.FinalState != nil {
			state = *ev.FinalState
		}
		b.MustStoreUInt(uint64(state), 8)
	}
	if ev.Kind == models.EventDonated {
		donor, err := ParseAddress(ev.Actor)
		if err != nil {
			return nil, fmt.Errorf("donor address: %w", err)
		}
		receipt, err := ParseAddress(ev.ReceiptID)
		if err != nil {
			return nil, fmt.Errorf("receipt address: %w", err)
		}
		b.MustStoreRef(cell.BeginCell().MustStoreAddr(donor).MustStoreAddr(receipt).EndCell())
	}
	return b.EndCell(), nil
}

// decodeLog parses a registry log body. ok is false for bodies that are not
// registry logs.
func decodeLog(body *cell.Cell) (ev models.LedgerEvent, ok bool, err error) {
	if body == nil {
		return ev, false, nil
	}
	s := body.BeginParse()
	if s.BitsLeft() < 32 {
		return ev, false, nil
	}
	tag, err := s.LoadUInt(32)
	if err != nil {
		return ev, false, nil
	}
	kind, known := logKinds[tag]
	if !known {
		return ev, false, nil
	}

	campaign, err := s.LoadAddr()
	if err != nil {
		return ev, true, fmt.Errorf("load campaign address: %w", err)
	}
	amount, err := s.LoadCoins()
	if err != nil {
		return ev, true, fmt.Errorf("load amount: %w", err)
	}
	ts, err := s.LoadUInt(64)
	if err != nil {
		return ev, true, fmt.Errorf("load timestamp: %w", err)
	}

	ev = models.LedgerEvent{
		Kind:       kind,
		CampaignID: campaign.StringRaw(),
		Timestamp:  time.UnixMilli(int64(ts)).UTC(),
	}
	if kind.CarriesAmount() {
		ev.Amount = amount
	}
	if kind == models.EventFinalized {
		st, err := s.LoadUInt(8)
		if err != nil {
			return ev, true, fmt.Errorf("load final state: %w", err)
		}
		state := models.CampaignState(st)
		ev.FinalState = &state
	}
	if kind == models.EventDonated {
		ref, err := s.LoadRef()
		if err != nil {
			return ev, true, fmt.Errorf("load donation ref: %w", err)
		}
		donor, err := ref.LoadAddr()
		if err != nil {
			return ev, true, fmt.Errorf("load donor address: %w", err)
		}
		receipt, err := ref.LoadAddr()
		if err != nil {
			return ev, true, fmt.Errorf("load receipt address: %w", err)
		}
		ev.Actor = donor.StringRaw()
		ev.ReceiptID = receipt.StringRaw()
	}
	return ev, true, nil
}

// classifyExitCode maps a compute-phase exit code to nil or a structured
// rejection.
func classifyExitCode(code int32) error {
	switch {
	case code == 0 || code == exitAlternativeOK:
		return nil
	case code == exitUnknownOp:
		return &ledger.Error{Code: ledger.CodeFunctionNotFound, Detail: fmt.Sprintf("exit code %d", code)}
	case code >= abortBase:
		return &ledger.Error{Code: ledger.CodeAborted, Abort: ledger.AbortCode(code - abortBase)}
	}
	return &ledger.Error{Code: ledger.CodeRejected, Detail: fmt.Sprintf("exit code %d", code)}
}
