package bank

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Payout is the record VaultWallet keeps for every outbound transfer.
type Payout struct {
	Seq    uint64
	To     common.Address
	Amount *uint256.Int
}

// VaultWallet is the default custody wallet. Outbound transfers are credited
// to per-recipient holdings kept in the same state as the ledger, so a payout
// commits or rolls back together with the operation that produced it.
type VaultWallet struct {
	store stateStore
	newID func() string
}

func NewVaultWallet(store stateStore) *VaultWallet {
	return &VaultWallet{store: store, newID: uuid.NewString}
}

// Transfer implements Wallet.
func (v *VaultWallet) Transfer(ctx context.Context, to common.Address, amount *uint256.Int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amount == nil || amount.IsZero() {
		return "", fmt.Errorf("vault: zero payout")
	}
	holdings, err := v.Holdings(to)
	if err != nil {
		return "", err
	}
	nextHoldings, overflow := new(uint256.Int).AddOverflow(holdings, amount)
	if overflow {
		return "", ErrOverflow
	}
	total, err := v.Total()
	if err != nil {
		return "", err
	}
	nextTotal, overflow := new(uint256.Int).AddOverflow(total, amount)
	if overflow {
		return "", ErrOverflow
	}
	var seq uint64
	if _, err := v.store.KVGet(vaultSeqKey, &seq); err != nil {
		return "", err
	}
	seq++

	id := v.newID()
	if err := v.store.KVPut(stringKey(vaultPayoutPrefix, id), &Payout{Seq: seq, To: to, Amount: new(uint256.Int).Set(amount)}); err != nil {
		return "", err
	}
	if err := v.store.KVPut(accountKey(vaultHoldPrefix, to), nextHoldings); err != nil {
		return "", err
	}
	if err := v.store.KVPut(vaultTotalKey, nextTotal); err != nil {
		return "", err
	}
	if err := v.store.KVPut(vaultSeqKey, seq); err != nil {
		return "", err
	}
	return id, nil
}

// Holdings returns everything paid out to addr so far.
func (v *VaultWallet) Holdings(addr common.Address) (*uint256.Int, error) {
	out := new(uint256.Int)
	if _, err := v.store.KVGet(accountKey(vaultHoldPrefix, addr), out); err != nil {
		return nil, err
	}
	return out, nil
}

// Total returns the sum of all payouts.
func (v *VaultWallet) Total() (*uint256.Int, error) {
	out := new(uint256.Int)
	if _, err := v.store.KVGet(vaultTotalKey, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Payout looks up a payout by the reference returned from Transfer.
func (v *VaultWallet) Payout(id string) (*Payout, bool, error) {
	p := new(Payout)
	ok, err := v.store.KVGet(stringKey(vaultPayoutPrefix, id), p)
	if err != nil || !ok {
		return nil, ok, err
	}
	return p, true, nil
}
