package bank

import (
	"iter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// TopK is the number of ranked accounts.
const TopK = 3

// Slot is one leaderboard position. An empty slot has the zero account and a
// zero balance.
type Slot struct {
	Account common.Address
	Balance *uint256.Int
}

// Empty reports whether the slot is unoccupied.
func (s Slot) Empty() bool { return s.Account == (common.Address{}) }

type rank struct {
	account common.Address
	balance uint256.Int
}

func (r *rank) empty() bool { return r.account == (common.Address{}) }

// Leaderboard keeps the TopK accounts by balance, highest first. Updates are
// incremental: credits only ever promote, and a debit only rescans the
// membership set when it leaves a slot vacant.
//
// Ties keep the current occupant: every promotion uses a strict comparison.
type Leaderboard struct {
	slots [TopK]rank
}

// NewLeaderboard returns an empty leaderboard.
func NewLeaderboard() *Leaderboard { return &Leaderboard{} }

// LeaderboardFromSlots rebuilds a leaderboard from its persisted form.
func LeaderboardFromSlots(slots []Slot) *Leaderboard {
	l := NewLeaderboard()
	for i := 0; i < TopK && i < len(slots); i++ {
		l.slots[i].account = slots[i].Account
		if slots[i].Balance != nil {
			l.slots[i].balance.Set(slots[i].Balance)
		}
	}
	return l
}

// Slots returns a copy of the ranking, highest balance first.
func (l *Leaderboard) Slots() [TopK]Slot {
	var out [TopK]Slot
	for i := range l.slots {
		out[i] = Slot{Account: l.slots[i].account, Balance: new(uint256.Int).Set(&l.slots[i].balance)}
	}
	return out
}

// Clear resets every slot to empty.
func (l *Leaderboard) Clear() {
	l.slots = [TopK]rank{}
}

func (l *Leaderboard) indexOf(account common.Address) int {
	if account == (common.Address{}) {
		return -1
	}
	for i := range l.slots {
		if l.slots[i].account == account {
			return i
		}
	}
	return -1
}

// remove deletes slot i and pulls the slots below it up, leaving the last slot
// empty.
func (l *Leaderboard) remove(i int) {
	for j := i; j < TopK-1; j++ {
		l.slots[j] = l.slots[j+1]
	}
	l.slots[TopK-1] = rank{}
}

// insertAt places account at slot i and pushes the slots below it down. The
// previous occupant of the last slot drops out of the ranking.
func (l *Leaderboard) insertAt(i int, account common.Address, balance *uint256.Int) {
	for j := TopK - 1; j > i; j-- {
		l.slots[j] = l.slots[j-1]
	}
	l.slots[i] = rank{account: account}
	l.slots[i].balance.Set(balance)
}

// OnIncrease records that account now holds total after a credit.
func (l *Leaderboard) OnIncrease(account common.Address, total *uint256.Int) {
	if account == (common.Address{}) || total == nil || total.IsZero() {
		return
	}
	if i := l.indexOf(account); i >= 0 {
		l.remove(i)
	}
	for i := 0; i < TopK; i++ {
		if l.slots[i].balance.Lt(total) {
			l.insertAt(i, account, total)
			return
		}
	}
}

// OnDecrease records that account now holds total after a debit. When a slot
// ends up vacant, every member is scanned once and ranked by its current
// balance as reported by balanceOf.
func (l *Leaderboard) OnDecrease(
	account common.Address,
	total *uint256.Int,
	members iter.Seq2[common.Address, error],
	balanceOf func(common.Address) (*uint256.Int, error),
) error {
	i := l.indexOf(account)
	if i < 0 {
		return nil
	}
	if total == nil {
		total = new(uint256.Int)
	}
	self := rank{account: account}
	self.balance.Set(total)

	switch i {
	case 0:
		second, third := l.slots[1].balance, l.slots[2].balance
		switch {
		case !total.Lt(&second):
			l.slots[0] = self
		case total.Gt(&third):
			l.slots[0] = l.slots[1]
			l.slots[1] = self
		case total.Eq(&third):
			l.slots[0] = l.slots[1]
			l.slots[1] = l.slots[2]
			l.slots[2] = self
		default:
			l.slots[0] = l.slots[1]
			l.slots[1] = l.slots[2]
			l.slots[2] = rank{}
		}
	case 1:
		third := l.slots[2].balance
		if !total.Lt(&third) {
			l.slots[1] = self
		} else {
			l.slots[1] = l.slots[2]
			l.slots[2] = rank{}
		}
	default:
		l.slots[2] = rank{}
	}

	// A drained account never holds a rank.
	for j := 0; j < TopK; {
		if !l.slots[j].empty() && l.slots[j].balance.IsZero() {
			l.remove(j)
			continue
		}
		j++
	}

	if !l.slots[TopK-1].empty() {
		return nil
	}
	return l.refill(members, balanceOf)
}

// refill scans members once and fills vacant slots. Accounts already in the
// first two slots are skipped; a candidate must strictly beat the last slot.
func (l *Leaderboard) refill(
	members iter.Seq2[common.Address, error],
	balanceOf func(common.Address) (*uint256.Int, error),
) error {
	if members == nil || balanceOf == nil {
		return nil
	}
	for candidate, err := range members {
		if err != nil {
			return err
		}
		if candidate == (common.Address{}) || candidate == l.slots[0].account || candidate == l.slots[1].account {
			continue
		}
		balance, err := balanceOf(candidate)
		if err != nil {
			return err
		}
		if !balance.Gt(&l.slots[2].balance) {
			continue
		}
		switch {
		case balance.Gt(&l.slots[0].balance):
			l.insertAt(0, candidate, balance)
		case balance.Gt(&l.slots[1].balance):
			l.insertAt(1, candidate, balance)
		default:
			l.slots[2] = rank{account: candidate}
			l.slots[2].balance.Set(balance)
		}
	}
	return nil
}
