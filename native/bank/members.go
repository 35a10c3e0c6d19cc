package bank

import (
	"fmt"
	"iter"

	"github.com/ethereum/go-ethereum/common"
)

// MembershipSet is the set of accounts holding a nonzero balance. Members live
// in a dense positional array (slot 0..count-1) with a reverse index, so add,
// remove and lookup are O(1). Removal moves the last member into the freed
// position; enumeration follows position order.
//
// The set never looks at balances. Callers keep it in step with the ledger.
type MembershipSet struct {
	store stateStore
}

func NewMembershipSet(store stateStore) *MembershipSet {
	return &MembershipSet{store: store}
}

// Len returns the number of members.
func (s *MembershipSet) Len() (uint64, error) {
	var count uint64
	if _, err := s.store.KVGet(memberCountKey, &count); err != nil {
		return 0, err
	}
	return count, nil
}

// position returns the 1-based position of account, 0 when absent.
func (s *MembershipSet) position(account common.Address) (uint64, error) {
	var pos uint64
	if _, err := s.store.KVGet(accountKey(memberIndexPrefix, account), &pos); err != nil {
		return 0, err
	}
	return pos, nil
}

func (s *MembershipSet) Contains(account common.Address) (bool, error) {
	pos, err := s.position(account)
	return pos != 0, err
}

// Ensure adds account if it is not already a member.
func (s *MembershipSet) Ensure(account common.Address) error {
	pos, err := s.position(account)
	if err != nil || pos != 0 {
		return err
	}
	count, err := s.Len()
	if err != nil {
		return err
	}
	if err := s.store.KVPut(positionKey(count), account); err != nil {
		return err
	}
	if err := s.store.KVPut(accountKey(memberIndexPrefix, account), count+1); err != nil {
		return err
	}
	return s.store.KVPut(memberCountKey, count+1)
}

// RemoveIfPresent drops account from the set; absent accounts are ignored.
func (s *MembershipSet) RemoveIfPresent(account common.Address) error {
	pos, err := s.position(account)
	if err != nil || pos == 0 {
		return err
	}
	count, err := s.Len()
	if err != nil {
		return err
	}
	idx, last := pos-1, count-1
	if idx != last {
		moved, err := s.at(last)
		if err != nil {
			return err
		}
		if err := s.store.KVPut(positionKey(idx), moved); err != nil {
			return err
		}
		if err := s.store.KVPut(accountKey(memberIndexPrefix, moved), idx+1); err != nil {
			return err
		}
	}
	if err := s.store.KVDelete(positionKey(last)); err != nil {
		return err
	}
	if err := s.store.KVDelete(accountKey(memberIndexPrefix, account)); err != nil {
		return err
	}
	return s.store.KVPut(memberCountKey, last)
}

func (s *MembershipSet) at(pos uint64) (common.Address, error) {
	var account common.Address
	ok, err := s.store.KVGet(positionKey(pos), &account)
	if err != nil {
		return common.Address{}, err
	}
	if !ok {
		return common.Address{}, fmt.Errorf("bank: membership slot %d missing", pos)
	}
	return account, nil
}

// All yields every member in position order. Each call starts a fresh pass.
// The set must not be modified while a pass is running. A read error is
// yielded once and ends the pass.
func (s *MembershipSet) All() iter.Seq2[common.Address, error] {
	return func(yield func(common.Address, error) bool) {
		count, err := s.Len()
		if err != nil {
			yield(common.Address{}, err)
			return
		}
		for pos := uint64(0); pos < count; pos++ {
			account, err := s.at(pos)
			if err != nil {
				yield(common.Address{}, err)
				return
			}
			if !yield(account, nil) {
				return
			}
		}
	}
}

// Clear removes every member.
func (s *MembershipSet) Clear() error {
	count, err := s.Len()
	if err != nil {
		return err
	}
	for pos := uint64(0); pos < count; pos++ {
		account, err := s.at(pos)
		if err != nil {
			return err
		}
		if err := s.store.KVDelete(accountKey(memberIndexPrefix, account)); err != nil {
			return err
		}
		if err := s.store.KVDelete(positionKey(pos)); err != nil {
			return err
		}
	}
	return s.store.KVPut(memberCountKey, uint64(0))
}
