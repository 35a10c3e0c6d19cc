package bank

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Ledger maps accounts to balances. It only touches the balance records;
// membership and ranking are kept in step by the Bank.
type Ledger struct {
	store stateStore
}

func NewLedger(store stateStore) *Ledger {
	return &Ledger{store: store}
}

// BalanceOf returns the stored balance, zero for unknown accounts.
func (l *Ledger) BalanceOf(account common.Address) (*uint256.Int, error) {
	balance := new(uint256.Int)
	if _, err := l.store.KVGet(accountKey(balancePrefix, account), balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// Credit adds amount to the account and returns the new total.
func (l *Ledger) Credit(account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if account == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	current, err := l.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return nil, ErrOverflow
	}
	if err := l.set(account, total); err != nil {
		return nil, err
	}
	return total, nil
}

// Debit subtracts amount from the account and returns the new total, which may
// be zero.
func (l *Ledger) Debit(account common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if account == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if amount == nil || amount.IsZero() {
		return nil, ErrZeroAmount
	}
	current, err := l.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	if current.Lt(amount) {
		return nil, &InsufficientBalanceError{
			Account:   account,
			Requested: new(uint256.Int).Set(amount),
			Available: current,
		}
	}
	total := new(uint256.Int).Sub(current, amount)
	if err := l.set(account, total); err != nil {
		return nil, err
	}
	return total, nil
}

// Drain zeroes the account and returns what it held.
func (l *Ledger) Drain(account common.Address) (*uint256.Int, error) {
	current, err := l.BalanceOf(account)
	if err != nil {
		return nil, err
	}
	if current.IsZero() {
		return current, nil
	}
	if err := l.set(account, new(uint256.Int)); err != nil {
		return nil, err
	}
	return current, nil
}

func (l *Ledger) set(account common.Address, balance *uint256.Int) error {
	return l.store.KVPut(accountKey(balancePrefix, account), balance)
}
