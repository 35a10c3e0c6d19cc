package bank

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrZeroAddress         = errors.New("bank: zero address")
	ErrZeroAmount          = errors.New("bank: amount must be positive")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
	ErrOverflow            = errors.New("bank: balance overflow")
	ErrUnauthorized        = errors.New("bank: caller is not admin")
	ErrReentrant           = errors.New("bank: reentrant call")
	ErrTransferFailed      = errors.New("bank: transfer failed")
	ErrBelowMinimum        = errors.New("bank: deposit below policy minimum")
)

// InsufficientBalanceError carries the amounts of a rejected debit. It matches
// ErrInsufficientBalance under errors.Is.
type InsufficientBalanceError struct {
	Account   common.Address
	Requested *uint256.Int
	Available *uint256.Int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("bank: insufficient balance for %s: requested %s, available %s",
		e.Account.Hex(), e.Requested.Dec(), e.Available.Dec())
}

// Is implements errors.Is support.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// ErrAlreadyInitialized is returned by Genesis once an admin exists.
var ErrAlreadyInitialized = errors.New("bank: admin already initialised")
