package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"bankchain/core/events"
	"bankchain/core/state"
	"bankchain/core/types"
	"bankchain/native/bank"
	nativecommon "bankchain/native/common"
	"bankchain/observability/logging"
	telemetry "bankchain/observability/otel"
)

var (
	ErrInvalidChainID = errors.New("core: invalid chain id")
	ErrBadSignature   = errors.New("core: invalid signature")
	ErrBadNonce       = errors.New("core: nonce mismatch")
	ErrUnknownTxType  = errors.New("core: unknown transaction type")
	ErrInvalidValue   = errors.New("core: value does not fit in 256 bits")
	ErrInvalidTarget  = errors.New("core: invalid target address")
)

var (
	noncePrefix = []byte("core/nonce/")
	quotaPrefix = []byte("core/quota/bank/")
)

// Receipt describes an applied transaction and the events it produced.
type Receipt struct {
	TxHash common.Hash    `json:"txHash"`
	From   common.Address `json:"from"`
	Type   string         `json:"type"`
	Nonce  uint64         `json:"nonce"`
	Events []*types.Event `json:"events"`
}

// Executor applies signed transactions to the bank one at a time. It owns the
// state manager: every transaction runs in one outermost scope, so the nonce
// bump, quota counters and the bank operation commit together or not at all.
type Executor struct {
	mu       sync.Mutex
	chainID  string
	state    *state.Manager
	bank     bank.Service
	quota    nativecommon.Quota
	now      func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder *events.Recorder
}

// ExecutorOption customises an Executor.
type ExecutorOption func(*Executor)

// WithQuota enforces per-sender request and value limits.
func WithQuota(q nativecommon.Quota) ExecutorOption {
	return func(e *Executor) { e.quota = q }
}

// WithClock overrides the time source used for quota epochs.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

func WithExecutorLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l.With("component", "executor")
		}
	}
}

// NewExecutor wires an executor. Committed events are forwarded to each of
// downstream after they have been captured for the receipt.
func NewExecutor(chainID string, st *state.Manager, svc bank.Service, downstream []events.Emitter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		chainID:  chainID,
		state:    st,
		bank:     svc,
		now:      time.Now,
		logger:   slog.Default().With("component", "executor"),
		tracer:   telemetry.Tracer("bankchain/core"),
		recorder: &events.Recorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	fanout := events.Multi{e.recorder}
	fanout = append(fanout, downstream...)
	st.SetEmitter(fanout)
	return e
}

// ChainID returns the chain identifier transactions must carry.
func (e *Executor) ChainID() string { return e.chainID }

// Apply validates tx and executes it against the bank.
func (e *Executor) Apply(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("core: nil transaction")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "bank.apply", trace.WithAttributes(
		attribute.String("tx.type", tx.Type.String()),
		attribute.Int64("tx.nonce", int64(tx.Nonce)),
	))
	defer span.End()

	receipt, err := e.apply(ctx, tx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Debug("transaction rejected",
			slog.String("type", tx.Type.String()),
			logging.MaskField("signature", signatureHex(tx)),
			slog.Any("error", err))
		return nil, err
	}
	e.logger.Info("transaction applied",
		"tx_hash", receipt.TxHash.Hex(),
		"type", receipt.Type,
		"from", receipt.From.Hex(),
		"events", len(receipt.Events))
	return receipt, nil
}

func signatureHex(tx *types.Transaction) string {
	if tx.R == nil || tx.S == nil {
		return ""
	}
	return tx.R.Text(16) + tx.S.Text(16)
}

func (e *Executor) apply(ctx context.Context, tx *types.Transaction) (*Receipt, error) {
	if tx.ChainID != e.chainID {
		return nil, fmt.Errorf("%w: got %q want %q", ErrInvalidChainID, tx.ChainID, e.chainID)
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	from, err := tx.From()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	amount := new(uint256.Int)
	if tx.Value != nil {
		var overflow bool
		if amount, overflow = uint256.FromBig(tx.Value); overflow {
			return nil, ErrInvalidValue
		}
	}

	e.recorder.Reset()
	err = e.state.Atomic(func() error {
		if err := e.consumeNonce(from, tx.Nonce); err != nil {
			return err
		}
		if err := e.consumeQuota(from, tx.Type, amount); err != nil {
			return err
		}
		return e.dispatch(ctx, from, tx, amount)
	})
	if err != nil {
		e.recorder.Reset()
		return nil, err
	}

	receipt := &Receipt{
		TxHash: common.BytesToHash(hash),
		From:   from,
		Type:   tx.Type.String(),
		Nonce:  tx.Nonce,
	}
	for _, ev := range e.recorder.Events() {
		receipt.Events = append(receipt.Events, ev.Event())
	}
	e.recorder.Reset()
	return receipt, nil
}

func (e *Executor) dispatch(ctx context.Context, from common.Address, tx *types.Transaction, amount *uint256.Int) error {
	switch tx.Type {
	case types.TxTypeDeposit:
		_, err := e.bank.Deposit(ctx, from, amount)
		return err
	case types.TxTypeWithdraw:
		return e.bank.Withdraw(ctx, from, amount)
	case types.TxTypeSetAdmin:
		if len(tx.To) != common.AddressLength {
			return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidTarget, common.AddressLength, len(tx.To))
		}
		return e.bank.SetAdmin(ctx, from, common.BytesToAddress(tx.To))
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTxType, tx.Type)
	}
}

func nonceKey(addr common.Address) []byte {
	return append(append([]byte(nil), noncePrefix...), addr.Bytes()...)
}

func quotaKey(addr common.Address) []byte {
	return append(append([]byte(nil), quotaPrefix...), addr.Bytes()...)
}

func (e *Executor) nonce(addr common.Address) (uint64, error) {
	var n uint64
	if _, err := e.state.KVGet(nonceKey(addr), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (e *Executor) consumeNonce(from common.Address, got uint64) error {
	expected, err := e.nonce(from)
	if err != nil {
		return err
	}
	if got != expected {
		return fmt.Errorf("%w: expected %d, got %d", ErrBadNonce, expected, got)
	}
	return e.state.KVPut(nonceKey(from), expected+1)
}

func (e *Executor) consumeQuota(from common.Address, txType types.TxType, amount *uint256.Int) error {
	if !e.quota.Enabled() {
		return nil
	}
	var prev nativecommon.QuotaNow
	if _, err := e.state.KVGet(quotaKey(from), &prev); err != nil {
		return err
	}
	counted, err := e.countsValue(from, txType)
	if err != nil {
		return err
	}
	value := uint64(0)
	if counted {
		value = math.MaxUint64
		if amount.IsUint64() {
			value = amount.Uint64()
		}
	}
	next, err := nativecommon.CheckQuota(e.quota, e.quota.EpochAt(e.now().Unix()), prev, 1, value)
	if err != nil {
		return err
	}
	return e.state.KVPut(quotaKey(from), &next)
}

// countsValue reports whether the tx value moves funds. An admin withdraw
// sweeps the ledger and ignores its nominal value, so only its request counts.
func (e *Executor) countsValue(from common.Address, txType types.TxType) (bool, error) {
	switch txType {
	case types.TxTypeDeposit:
		return true, nil
	case types.TxTypeWithdraw:
		admin, err := e.bank.Admin()
		if err != nil {
			return false, err
		}
		return admin != from, nil
	default:
		return false, nil
	}
}

// Nonce returns the next nonce expected from addr.
func (e *Executor) Nonce(addr common.Address) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonce(addr)
}

// Balance returns the bank balance of addr.
func (e *Executor) Balance(addr common.Address) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Balance(addr)
}

// Admin returns the current bank admin.
func (e *Executor) Admin() (common.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Admin()
}

// Top returns the bank leaderboard.
func (e *Executor) Top() ([bank.TopK]bank.Slot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bank.Top()
}
