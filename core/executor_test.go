package core

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"bankchain/core/events"
	"bankchain/core/state"
	"bankchain/core/types"
	"bankchain/crypto"
	"bankchain/native/bank"
	nativecommon "bankchain/native/common"
	"bankchain/storage"
)

const testChainID = "bankchain-test"

type harness struct {
	exec  *Executor
	bank  *bank.Bank
	admin *crypto.PrivateKey
	rec   *events.Recorder
}

func newHarness(t *testing.T, opts ...ExecutorOption) *harness {
	t.Helper()
	st := state.NewManager(storage.NewMemDB())
	admin := mustKey(t)
	b := bank.New(st)
	if err := b.Genesis(admin.PubKey().Address().Common()); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	rec := &events.Recorder{}
	exec := NewExecutor(testChainID, st, b, []events.Emitter{rec}, opts...)
	return &harness{exec: exec, bank: b, admin: admin, rec: rec}
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func signed(t *testing.T, key *crypto.PrivateKey, txType types.TxType, nonce uint64, value int64, to []byte) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		ChainID: testChainID,
		Type:    txType,
		Nonce:   nonce,
		To:      to,
		Value:   big.NewInt(value),
	}
	if err := tx.Sign(key.PrivateKey); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tx
}

func TestExecutorAppliesDeposit(t *testing.T) {
	h := newHarness(t)
	key := mustKey(t)
	from := key.PubKey().Address().Common()

	receipt, err := h.exec.Apply(context.Background(), signed(t, key, types.TxTypeDeposit, 0, 100, nil))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if receipt.From != from || receipt.Type != "deposit" || receipt.Nonce != 0 {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if len(receipt.Events) != 1 || receipt.Events[0].Type != events.TypeDeposit {
		t.Fatalf("unexpected receipt events: %+v", receipt.Events)
	}
	if receipt.Events[0].Attributes["total"] != "100" {
		t.Fatalf("unexpected total: %v", receipt.Events[0].Attributes)
	}
	if len(h.rec.Events()) != 1 {
		t.Fatalf("downstream emitter missed the event")
	}
	bal, _ := h.exec.Balance(from)
	if bal.Uint64() != 100 {
		t.Fatalf("expected balance 100, got %s", bal)
	}
	if n, _ := h.exec.Nonce(from); n != 1 {
		t.Fatalf("expected nonce 1, got %d", n)
	}
}

func TestExecutorRejectsReplayAndGaps(t *testing.T) {
	h := newHarness(t)
	key := mustKey(t)
	ctx := context.Background()

	tx := signed(t, key, types.TxTypeDeposit, 0, 10, nil)
	if _, err := h.exec.Apply(ctx, tx); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := h.exec.Apply(ctx, tx); !errors.Is(err, ErrBadNonce) {
		t.Fatalf("expected ErrBadNonce on replay, got %v", err)
	}
	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxTypeDeposit, 5, 10, nil)); !errors.Is(err, ErrBadNonce) {
		t.Fatalf("expected ErrBadNonce on gap, got %v", err)
	}
	bal, _ := h.exec.Balance(key.PubKey().Address().Common())
	if bal.Uint64() != 10 {
		t.Fatalf("replay changed balance: %s", bal)
	}
}

func TestExecutorFailedOperationKeepsNonce(t *testing.T) {
	h := newHarness(t)
	key := mustKey(t)
	from := key.PubKey().Address().Common()
	ctx := context.Background()

	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxTypeWithdraw, 0, 10, nil)); !errors.Is(err, bank.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if n, _ := h.exec.Nonce(from); n != 0 {
		t.Fatalf("failed tx must not consume the nonce, got %d", n)
	}
	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxTypeDeposit, 0, 10, nil)); err != nil {
		t.Fatalf("nonce 0 should still be usable: %v", err)
	}
}

func TestExecutorValidation(t *testing.T) {
	h := newHarness(t)
	key := mustKey(t)
	ctx := context.Background()

	wrongChain := &types.Transaction{ChainID: "other", Type: types.TxTypeDeposit, Value: big.NewInt(1)}
	if err := wrongChain.Sign(key.PrivateKey); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := h.exec.Apply(ctx, wrongChain); !errors.Is(err, ErrInvalidChainID) {
		t.Fatalf("expected ErrInvalidChainID, got %v", err)
	}

	unsigned := &types.Transaction{ChainID: testChainID, Type: types.TxTypeDeposit, Value: big.NewInt(1)}
	if _, err := h.exec.Apply(ctx, unsigned); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	huge := new(big.Int).Lsh(big.NewInt(1), 300)
	tooBig := &types.Transaction{ChainID: testChainID, Type: types.TxTypeDeposit, Value: huge}
	if err := tooBig.Sign(key.PrivateKey); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := h.exec.Apply(ctx, tooBig); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}

	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxType(0x7f), 0, 1, nil)); !errors.Is(err, ErrUnknownTxType) {
		t.Fatalf("expected ErrUnknownTxType, got %v", err)
	}
	if _, err := h.exec.Apply(ctx, nil); err == nil {
		t.Fatalf("expected error for nil transaction")
	}
}

func TestExecutorAdminFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := mustKey(t)
	next := mustKey(t)
	userAddr := user.PubKey().Address().Common()
	nextAddr := next.PubKey().Address().Common()

	if _, err := h.exec.Apply(ctx, signed(t, user, types.TxTypeDeposit, 0, 70, nil)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := h.exec.Apply(ctx, signed(t, user, types.TxTypeSetAdmin, 1, 0, nextAddr.Bytes())); !errors.Is(err, bank.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := h.exec.Apply(ctx, signed(t, h.admin, types.TxTypeSetAdmin, 0, 0, []byte{1, 2})); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	receipt, err := h.exec.Apply(ctx, signed(t, h.admin, types.TxTypeSetAdmin, 0, 0, nextAddr.Bytes()))
	if err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if receipt.Events[0].Type != events.TypeAdminChanged {
		t.Fatalf("unexpected events: %+v", receipt.Events)
	}
	if admin, _ := h.exec.Admin(); admin != nextAddr {
		t.Fatalf("admin not rotated")
	}

	receipt, err = h.exec.Apply(ctx, signed(t, next, types.TxTypeWithdraw, 0, 0, nil))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if receipt.Events[0].Type != events.TypeSweep || receipt.Events[0].Attributes["total"] != "70" {
		t.Fatalf("unexpected sweep receipt: %+v", receipt.Events)
	}
	if bal, _ := h.exec.Balance(userAddr); !bal.IsZero() {
		t.Fatalf("sweep left %s", bal)
	}
	top, _ := h.exec.Top()
	for i, slot := range top {
		if !slot.Empty() {
			t.Fatalf("slot %d not cleared", i)
		}
	}
}

func TestExecutorQuota(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newHarness(t,
		WithQuota(nativecommon.Quota{MaxRequestsPerEpoch: 2, MaxValuePerEpoch: 100, EpochSeconds: 60}),
		WithClock(func() time.Time { return now }),
	)
	key := mustKey(t)
	ctx := context.Background()

	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxTypeDeposit, 0, 60, nil)); err != nil {
		t.Fatalf("first deposit: %v", err)
	}
	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxTypeDeposit, 1, 50, nil)); !errors.Is(err, nativecommon.ErrQuotaValueCapExceeded) {
		t.Fatalf("expected value cap, got %v", err)
	}
	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxTypeDeposit, 1, 40, nil)); err != nil {
		t.Fatalf("second deposit: %v", err)
	}
	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxTypeDeposit, 2, 1, nil)); !errors.Is(err, nativecommon.ErrQuotaRequestsExceeded) {
		t.Fatalf("expected request cap, got %v", err)
	}

	now = now.Add(time.Minute)
	if _, err := h.exec.Apply(ctx, signed(t, key, types.TxTypeDeposit, 2, 1, nil)); err != nil {
		t.Fatalf("new epoch should reset the quota: %v", err)
	}
}

func TestExecutorQuotaIgnoresSweepValue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := newHarness(t,
		WithQuota(nativecommon.Quota{MaxRequestsPerEpoch: 5, MaxValuePerEpoch: 100, EpochSeconds: 60}),
		WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	user := mustKey(t)
	adminAddr := h.admin.PubKey().Address().Common()

	if _, err := h.exec.Apply(ctx, signed(t, user, types.TxTypeDeposit, 0, 80, nil)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	receipt, err := h.exec.Apply(ctx, signed(t, h.admin, types.TxTypeWithdraw, 0, 1_000_000, nil))
	if err != nil {
		t.Fatalf("sweep with large nominal value should pass the value cap: %v", err)
	}
	if receipt.Events[0].Type != events.TypeSweep || receipt.Events[0].Attributes["total"] != "80" {
		t.Fatalf("unexpected sweep receipt: %+v", receipt.Events)
	}

	var usage nativecommon.QuotaNow
	if _, err := h.exec.state.KVGet(quotaKey(adminAddr), &usage); err != nil {
		t.Fatalf("read quota: %v", err)
	}
	if usage.ReqCount != 1 || usage.ValueUsed != 0 {
		t.Fatalf("sweep should count one request and no value, got %+v", usage)
	}

	if _, err := h.exec.Apply(ctx, signed(t, user, types.TxTypeDeposit, 1, 30, nil)); !errors.Is(err, nativecommon.ErrQuotaValueCapExceeded) {
		t.Fatalf("user value cap still applies, got %v", err)
	}
}

func TestExecutorSerialisesConcurrentSenders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	keys := make([]*crypto.PrivateKey, 6)
	for i := range keys {
		keys[i] = mustKey(t)
	}
	const perSender = 10

	var wg sync.WaitGroup
	errs := make(chan error, len(keys)*perSender)
	for _, key := range keys {
		wg.Add(1)
		go func(key *crypto.PrivateKey) {
			defer wg.Done()
			for n := uint64(0); n < perSender; n++ {
				tx := &types.Transaction{ChainID: testChainID, Type: types.TxTypeDeposit, Nonce: n, Value: big.NewInt(1)}
				if err := tx.Sign(key.PrivateKey); err != nil {
					errs <- err
					return
				}
				if _, err := h.exec.Apply(ctx, tx); err != nil {
					errs <- err
				}
			}
		}(key)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("apply: %v", err)
	}

	for _, key := range keys {
		addr := key.PubKey().Address().Common()
		bal, _ := h.exec.Balance(addr)
		if bal.Uint64() != perSender {
			t.Fatalf("expected %d for %x, got %s", perSender, addr, bal)
		}
	}
	active, err := h.bank.ActiveAccounts()
	if err != nil || active != uint64(len(keys)) {
		t.Fatalf("expected %d active accounts, got %d (%v)", len(keys), active, err)
	}
	var zero common.Address
	if top, _ := h.exec.Top(); top[0].Account == zero {
		t.Fatalf("leaderboard empty after deposits")
	}
}
