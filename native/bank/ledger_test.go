package bank

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestLedgerCreditDebit(t *testing.T) {
	st := newTestState(t)
	ledger := NewLedger(st)
	a := addr(1)

	mustAtomic(t, st, func() error {
		total, err := ledger.Credit(a, u(100))
		if err != nil {
			return err
		}
		if total.Uint64() != 100 {
			t.Fatalf("expected 100, got %s", total)
		}
		total, err = ledger.Debit(a, u(40))
		if err != nil {
			return err
		}
		if total.Uint64() != 60 {
			t.Fatalf("expected 60, got %s", total)
		}
		return nil
	})

	balance, err := ledger.BalanceOf(a)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Uint64() != 60 {
		t.Fatalf("expected committed balance 60, got %s", balance)
	}
	unknown, err := ledger.BalanceOf(addr(9))
	if err != nil || !unknown.IsZero() {
		t.Fatalf("unknown account should read zero, got %v %v", unknown, err)
	}
}

func TestLedgerRejectsInvalidInput(t *testing.T) {
	st := newTestState(t)
	ledger := NewLedger(st)

	err := st.Atomic(func() error {
		if _, err := ledger.Credit(common.Address{}, u(1)); !errors.Is(err, ErrZeroAddress) {
			t.Fatalf("expected ErrZeroAddress, got %v", err)
		}
		if _, err := ledger.Credit(addr(1), u(0)); !errors.Is(err, ErrZeroAmount) {
			t.Fatalf("expected ErrZeroAmount, got %v", err)
		}
		if _, err := ledger.Credit(addr(1), nil); !errors.Is(err, ErrZeroAmount) {
			t.Fatalf("expected ErrZeroAmount for nil, got %v", err)
		}
		if _, err := ledger.Debit(addr(1), u(0)); !errors.Is(err, ErrZeroAmount) {
			t.Fatalf("expected ErrZeroAmount on debit, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("atomic: %v", err)
	}
}

func TestLedgerOverflow(t *testing.T) {
	st := newTestState(t)
	ledger := NewLedger(st)
	max := new(uint256.Int).SetAllOne()

	mustAtomic(t, st, func() error {
		_, err := ledger.Credit(addr(1), max)
		return err
	})
	err := st.Atomic(func() error {
		_, err := ledger.Credit(addr(1), u(1))
		return err
	})
	if !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	balance, _ := ledger.BalanceOf(addr(1))
	if !balance.Eq(max) {
		t.Fatalf("balance changed after overflow: %s", balance)
	}
}

func TestLedgerInsufficientBalanceCarriesAmounts(t *testing.T) {
	st := newTestState(t)
	ledger := NewLedger(st)

	mustAtomic(t, st, func() error {
		_, err := ledger.Credit(addr(1), u(50))
		return err
	})
	err := st.Atomic(func() error {
		_, err := ledger.Debit(addr(1), u(80))
		return err
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	var detail *InsufficientBalanceError
	if !errors.As(err, &detail) {
		t.Fatalf("expected *InsufficientBalanceError, got %T", err)
	}
	if detail.Requested.Uint64() != 80 || detail.Available.Uint64() != 50 || detail.Account != addr(1) {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}

func TestLedgerDrain(t *testing.T) {
	st := newTestState(t)
	ledger := NewLedger(st)

	mustAtomic(t, st, func() error {
		if _, err := ledger.Credit(addr(1), u(70)); err != nil {
			return err
		}
		drained, err := ledger.Drain(addr(1))
		if err != nil {
			return err
		}
		if drained.Uint64() != 70 {
			t.Fatalf("expected 70 drained, got %s", drained)
		}
		again, err := ledger.Drain(addr(1))
		if err != nil {
			return err
		}
		if !again.IsZero() {
			t.Fatalf("second drain should be zero, got %s", again)
		}
		return nil
	})
}
