package bank

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Wallet moves value out of the ledger to an external party. Implementations
// may call back into the bank; such calls see the already-applied effects of
// the operation that triggered the transfer and are rejected with ErrReentrant
// if they try to mutate.
type Wallet interface {
	Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (string, error)
}

// FuncWallet adapts a callback to the Wallet interface.
type FuncWallet func(ctx context.Context, to common.Address, amount *uint256.Int) (string, error)

// Transfer delegates to the callback.
func (f FuncWallet) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (string, error) {
	if f == nil {
		return "", nil
	}
	return f(ctx, to, amount)
}

// TransferGateway performs the outbound transfer that ends a withdrawal or a
// sweep. It must be the last step of an operation.
type TransferGateway struct {
	wallet Wallet
}

func NewTransferGateway(wallet Wallet) *TransferGateway {
	return &TransferGateway{wallet: wallet}
}

// Send transfers amount to the recipient and returns the wallet's reference.
func (g *TransferGateway) Send(ctx context.Context, to common.Address, amount *uint256.Int) (string, error) {
	if to == (common.Address{}) {
		return "", ErrZeroAddress
	}
	if g == nil || g.wallet == nil {
		return "", fmt.Errorf("%w: no wallet configured", ErrTransferFailed)
	}
	ref, err := g.wallet.Transfer(ctx, to, new(uint256.Int).Set(amount))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return ref, nil
}
