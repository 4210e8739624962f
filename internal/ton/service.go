package ton

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/crowdfund-ton/backend/internal/ledger"
	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"go.uber.org/zap"
)

const (
	getCampaignData = "get_campaign_data"
	getReceiptData  = "get_receipt_data"
	txBatchSize     = 100
)

type Options struct {
	GasAmount           tlb.Coins
	MaxScanTransactions int
	FinalityAttempts    int
	FinalityDelay       time.Duration
	FinalityWindow      int
}

// Service implements ledger.Service on top of a TON lite client. Campaigns
// and receipts are contracts addressed by their raw address; events are
// external-out logs of the registry contract.
type Service struct {
	api      ton.APIClientWrapped
	wallet   *wallet.Wallet
	registry *address.Address
	opts     Options
	log      *zap.Logger
	nowFn    func() time.Time
}

var _ ledger.Service = (*Service)(nil)

func NewService(api ton.APIClientWrapped, w *wallet.Wallet, registry *address.Address, opts Options, log *zap.Logger) *Service {
	if opts.MaxScanTransactions <= 0 {
		opts.MaxScanTransactions = 1000
	}
	if opts.FinalityAttempts <= 0 {
		opts.FinalityAttempts = 30
	}
	if opts.FinalityDelay <= 0 {
		opts.FinalityDelay = 2 * time.Second
	}
	if opts.FinalityWindow <= 0 {
		opts.FinalityWindow = 16
	}
	return &Service{api: api, wallet: w, registry: registry, opts: opts, log: log, nowFn: time.Now}
}

// Signer returns the raw address of the signing wallet, or "" when the
// service is read-only.
func (s *Service) Signer() string {
	if s.wallet == nil {
		return ""
	}
	return s.wallet.WalletAddress().StringRaw()
}

func (s *Service) Registry() string {
	return s.registry.StringRaw()
}

// activeAccount loads the account at the current masterchain block and
// returns ledger.ErrNotFound for missing or uninitialized contracts.
func (s *Service) activeAccount(ctx context.Context, id string) (*ton.BlockIDExt, *address.Address, *tlb.Account, error) {
	addr, err := ParseAddress(id)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}

	block, err := s.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get master block: %w", err)
	}

	account, err := s.api.GetAccount(ctx, block, addr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get account %s: %w", id, err)
	}
	if account == nil || !account.IsActive {
		return nil, nil, nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, id)
	}
	return block, addr, account, nil
}

func (s *Service) GetObject(ctx context.Context, id string) (*models.Campaign, error) {
	block, addr, _, err := s.activeAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.api.RunGetMethod(ctx, block, addr, getCampaignData)
	if err != nil {
		return nil, fmt.Errorf("run %s on %s: %w", getCampaignData, id, err)
	}

	owner, err := res.Slice(0)
	if err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}
	ownerAddr, err := owner.LoadAddr()
	if err != nil {
		return nil, fmt.Errorf("decode owner: %w", err)
	}

	ints := make([]*big.Int, 5)
	for i := range ints {
		v, err := res.Int(uint(i + 1))
		if err != nil {
			return nil, fmt.Errorf("decode %s field %d: %w", getCampaignData, i+1, err)
		}
		ints[i] = v
	}

	c := &models.Campaign{
		ID:         addr.StringRaw(),
		Owner:      ownerAddr.StringRaw(),
		Goal:       ints[0].Uint64(),
		Raised:     ints[1].Uint64(),
		DeadlineAt: time.UnixMilli(ints[2].Int64()).UTC(),
		State:      models.CampaignState(ints[3].Uint64()),
		Withdrawn:  ints[4].Sign() != 0,
	}

	meta, err := res.Cell(6)
	if err != nil {
		s.log.Warn("campaign metadata cell missing", zap.String("campaign_id", c.ID), zap.Error(err))
		return c, nil
	}
	blob, err := meta.BeginParse().LoadBinarySnake()
	if err != nil {
		s.log.Warn("campaign metadata unreadable", zap.String("campaign_id", c.ID), zap.Error(err))
		return c, nil
	}
	c.MetadataBlob = blob
	return c, nil
}

func (s *Service) GetReceipt(ctx context.Context, id string) (*models.DonationReceipt, error) {
	block, addr, _, err := s.activeAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := s.api.RunGetMethod(ctx, block, addr, getReceiptData)
	if err != nil {
		return nil, fmt.Errorf("run %s on %s: %w", getReceiptData, id, err)
	}

	var addrs [2]*address.Address
	for i := range addrs {
		sl, err := res.Slice(uint(i))
		if err != nil {
			return nil, fmt.Errorf("decode %s field %d: %w", getReceiptData, i, err)
		}
		if addrs[i], err = sl.LoadAddr(); err != nil {
			return nil, fmt.Errorf("decode %s field %d: %w", getReceiptData, i, err)
		}
	}
	amount, err := res.Int(2)
	if err != nil {
		return nil, fmt.Errorf("decode receipt amount: %w", err)
	}
	ts, err := res.Int(3)
	if err != nil {
		return nil, fmt.Errorf("decode receipt timestamp: %w", err)
	}

	return &models.DonationReceipt{
		ID:         addr.StringRaw(),
		CampaignID: addrs[0].StringRaw(),
		DonorID:    addrs[1].StringRaw(),
		Amount:     amount.Uint64(),
		Timestamp:  time.UnixMilli(ts.Int64()).UTC(),
	}, nil
}

// QueryEvents scans the registry history newest first and returns at most
// q.Limit events of the given kind, i.e. the most recent window, in the
// requested order.
func (s *Service) QueryEvents(ctx context.Context, kind models.EventKind, q ledger.EventQuery) ([]models.LedgerEvent, error) {
	block, err := s.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("get master block: %w", err)
	}
	account, err := s.api.GetAccount(ctx, block, s.registry)
	if err != nil {
		return nil, fmt.Errorf("get registry account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return nil, nil
	}

	var out []models.LedgerEvent
	err = s.walkBack(ctx, s.registry, account.LastTxLT, account.LastTxHash, 0, func(tx *tlb.Transaction) bool {
		evs := RegistryEvents(tx, s.log)
		// Within one transaction logs are newest last.
		for i := len(evs) - 1; i >= 0; i-- {
			if evs[i].Kind != kind {
				continue
			}
			out = append(out, evs[i])
			if q.Limit > 0 && len(out) >= q.Limit {
				return false
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	if q.Order == ledger.Ascending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

// Cursor is a position in the registry's transaction history.
type Cursor struct {
	LT   uint64
	Hash []byte
}

// EventsSince returns every registry event emitted after cursor in
// emission order, plus the cursor to resume from. A zero cursor starts at
// the current head without replaying history.
func (s *Service) EventsSince(ctx context.Context, cursor Cursor) ([]models.LedgerEvent, Cursor, error) {
	block, err := s.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return nil, cursor, fmt.Errorf("get master block: %w", err)
	}
	account, err := s.api.GetAccount(ctx, block, s.registry)
	if err != nil {
		return nil, cursor, fmt.Errorf("get registry account: %w", err)
	}
	if account == nil || !account.IsActive || account.LastTxLT == 0 {
		return nil, cursor, nil
	}
	head := Cursor{LT: account.LastTxLT, Hash: account.LastTxHash}
	if cursor.LT == 0 || head.LT <= cursor.LT {
		return nil, head, nil
	}

	var txs []*tlb.Transaction
	err = s.walkBack(ctx, s.registry, head.LT, head.Hash, cursor.LT, func(tx *tlb.Transaction) bool {
		txs = append(txs, tx)
		return true
	})
	if err != nil {
		return nil, cursor, err
	}

	var out []models.LedgerEvent
	for i := len(txs) - 1; i >= 0; i-- {
		out = append(out, RegistryEvents(txs[i], s.log)...)
	}
	return out, head, nil
}

// walkBack visits transactions of addr from (lt, hash) towards older ones
// until visit returns false, a transaction at or below stopLT is reached,
// or the scan budget is spent.
func (s *Service) walkBack(ctx context.Context, addr *address.Address, lt uint64, hash []byte, stopLT uint64, visit func(*tlb.Transaction) bool) error {
	scanned := 0
	for scanned < s.opts.MaxScanTransactions {
		txs, err := s.api.ListTransactions(ctx, addr, uint32(txBatchSize), lt, hash)
		if err != nil {
			if errors.Is(err, ton.ErrNoTransactionsWereFound) {
				return nil
			}
			return fmt.Errorf("list transactions (lt=%d): %w", lt, err)
		}
		if len(txs) == 0 {
			return nil
		}

		// ListTransactions returns oldest first.
		for i := len(txs) - 1; i >= 0; i-- {
			if txs[i].LT <= stopLT {
				return nil
			}
			scanned++
			if !visit(txs[i]) {
				return nil
			}
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 || len(txs) < txBatchSize {
			return nil
		}
		lt, hash = oldest.PrevTxLT, oldest.PrevTxHash
	}
	s.log.Warn("transaction scan budget exhausted",
		zap.String("address", addr.StringRaw()),
		zap.Int("scanned", scanned),
	)
	return nil
}

// RegistryEvents decodes the registry logs emitted by one transaction.
// Sequence orders events by logical time, then by emission order.
func RegistryEvents(tx *tlb.Transaction, log *zap.Logger) []models.LedgerEvent {
	if tx.IO.Out == nil {
		return nil
	}
	msgs, err := tx.IO.Out.ToSlice()
	if err != nil {
		log.Warn("failed to read out messages", zap.Uint64("lt", tx.LT), zap.Error(err))
		return nil
	}

	digest := hex.EncodeToString(tx.Hash)
	var out []models.LedgerEvent
	for i, m := range msgs {
		ext, ok := m.Msg.(*tlb.ExternalMessageOut)
		if !ok || ext == nil {
			continue
		}
		ev, ok, err := decodeLog(ext.Body)
		if !ok {
			continue
		}
		if err != nil {
			log.Warn("malformed registry log", zap.Uint64("lt", tx.LT), zap.Int("index", i), zap.Error(err))
			continue
		}
		ev.Sequence = tx.LT<<8 | uint64(i&0xff)
		ev.TxDigest = digest
		out = append(out, ev)
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Sequence < out[b].Sequence })
	return out
}

func newQueryID() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.BigEndian.Uint64(b[:])
}

func (s *Service) SubmitTransaction(ctx context.Context, tx *ledger.Transaction) (*ledger.Submission, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if s.wallet == nil {
		return nil, &ledger.Error{Code: ledger.CodeRejected, Detail: "no signing wallet configured"}
	}

	queryID := newQueryID()
	msgs := make([]*wallet.Message, 0, len(tx.Calls))
	for _, c := range tx.Calls {
		dst, err := ParseAddress(c.Target)
		if err != nil {
			return nil, &ledger.Error{Code: ledger.CodeRejected, Detail: fmt.Sprintf("invalid target %q", c.Target), Err: err}
		}
		body, err := encodeCall(c, queryID)
		if err != nil {
			return nil, err
		}
		amount := s.opts.GasAmount
		if c.Function == models.OpDonate {
			amount = tlb.FromNanoTON(new(big.Int).Add(s.opts.GasAmount.Nano(), new(big.Int).SetUint64(c.Amount)))
		}
		msgs = append(msgs, &wallet.Message{
			Mode: wallet.PayGasSeparately + wallet.IgnoreErrors,
			InternalMessage: &tlb.InternalMessage{
				IHRDisabled: true,
				Bounce:      true,
				DstAddr:     dst,
				Amount:      amount,
				Body:        body,
			},
		})
	}

	if err := s.wallet.SendMany(ctx, msgs); err != nil {
		return nil, &ledger.Error{Code: ledger.CodeTransport, Err: err}
	}

	sub := &ledger.Submission{
		Digest:      fmt.Sprintf("%s/%016x", s.wallet.WalletAddress().StringRaw(), queryID),
		QueryID:     queryID,
		Targets:     tx.Targets(),
		SubmittedAt: s.nowFn(),
	}
	s.log.Info("transaction submitted",
		zap.String("digest", sub.Digest),
		zap.Int("calls", len(tx.Calls)),
	)
	return sub, nil
}

// AwaitFinality polls every target until the transaction carrying the
// submission's query id is observed, and classifies its exit code.
func (s *Service) AwaitFinality(ctx context.Context, sub *ledger.Submission) error {
	pending := make(map[string]bool, len(sub.Targets))
	for _, t := range sub.Targets {
		pending[t] = true
	}

	for attempt := 0; attempt < s.opts.FinalityAttempts; attempt++ {
		for target := range pending {
			found, err := s.findCallResult(ctx, target, sub.QueryID)
			if err != nil {
				var le *ledger.Error
				if errors.As(err, &le) {
					return err
				}
				s.log.Debug("finality check failed", zap.String("target", target), zap.Error(err))
				continue
			}
			if found {
				delete(pending, target)
			}
		}
		if len(pending) == 0 {
			return nil
		}

		timer := time.NewTimer(s.opts.FinalityDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return ledger.ErrFinalityTimeout
}

// findCallResult looks at the most recent transactions of target for the
// inbound message from our wallet carrying queryID.
func (s *Service) findCallResult(ctx context.Context, target string, queryID uint64) (bool, error) {
	block, addr, account, err := s.activeAccount(ctx, target)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	txs, err := s.api.ListTransactions(ctx, addr, uint32(s.opts.FinalityWindow), account.LastTxLT, account.LastTxHash)
	if err != nil {
		if errors.Is(err, ton.ErrNoTransactionsWereFound) {
			return false, nil
		}
		return false, fmt.Errorf("list transactions at block %d: %w", block.SeqNo, err)
	}

	for _, tx := range txs {
		if tx.IO.In == nil {
			continue
		}
		in, ok := tx.IO.In.Msg.(*tlb.InternalMessage)
		if !ok || in == nil {
			continue
		}
		hdr, ok := decodeCallHeader(in.Body)
		if !ok || hdr.QueryID != queryID {
			continue
		}
		code, ok := computeExitCode(tx)
		if !ok {
			return true, &ledger.Error{Code: ledger.CodeRejected, Detail: "compute phase skipped"}
		}
		return true, classifyExitCode(code)
	}
	return false, nil
}

// computeExitCode extracts the TVM exit code of an ordinary transaction.
func computeExitCode(tx *tlb.Transaction) (int32, bool) {
	var phase any
	switch d := tx.Description.(type) {
	case tlb.TransactionDescriptionOrdinary:
		phase = d.ComputePhase.Phase
	case *tlb.TransactionDescriptionOrdinary:
		phase = d.ComputePhase.Phase
	default:
		return 0, false
	}

	switch vm := phase.(type) {
	case tlb.ComputePhaseVM:
		return vm.Details.ExitCode, true
	case *tlb.ComputePhaseVM:
		return vm.Details.ExitCode, true
	}
	return 0, false
}
