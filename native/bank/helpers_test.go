package bank

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"bankchain/core/state"
	"bankchain/storage"
)

func newTestState(t *testing.T) *state.Manager {
	t.Helper()
	return state.NewManager(storage.NewMemDB())
}

func mustAtomic(t *testing.T, st *state.Manager, fn func() error) {
	t.Helper()
	if err := st.Atomic(fn); err != nil {
		t.Fatalf("atomic: %v", err)
	}
}

func addr(b byte) common.Address {
	var a common.Address
	a[0] = 0xaa
	a[common.AddressLength-1] = b
	return a
}

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }
