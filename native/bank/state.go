package bank

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"bankchain/core/events"
)

// stateStore is the keyed storage every bank component reads and writes.
// Implemented by *state.Manager.
type stateStore interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

type engineState interface {
	stateStore
	AddEvent(events.Event)
	Atomic(fn func() error) error
}

var (
	balancePrefix     = []byte("bank/balance/")
	memberIndexPrefix = []byte("bank/members/index/")
	memberSlotPrefix  = []byte("bank/members/slot/")
	memberCountKey    = []byte("bank/members/count")
	leaderboardKey    = []byte("bank/top3")
	adminKey          = []byte("bank/admin")
	vaultPayoutPrefix = []byte("bank/vault/payout/")
	vaultHoldPrefix   = []byte("bank/vault/holdings/")
	vaultTotalKey     = []byte("bank/vault/total")
	vaultSeqKey       = []byte("bank/vault/seq")
)

func accountKey(prefix []byte, addr common.Address) []byte {
	buf := make([]byte, len(prefix)+common.AddressLength)
	copy(buf, prefix)
	copy(buf[len(prefix):], addr.Bytes())
	return buf
}

func positionKey(pos uint64) []byte {
	buf := make([]byte, len(memberSlotPrefix)+8)
	copy(buf, memberSlotPrefix)
	binary.BigEndian.PutUint64(buf[len(memberSlotPrefix):], pos)
	return buf
}

func stringKey(prefix []byte, id string) []byte {
	buf := make([]byte, len(prefix)+len(id))
	copy(buf, prefix)
	copy(buf[len(prefix):], id)
	return buf
}
