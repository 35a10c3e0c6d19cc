package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"bankchain/core/types"
	"bankchain/crypto"
)

const (
	// TypeDeposit is emitted when an account balance is credited.
	TypeDeposit = "bank.deposit"
	// TypeWithdrawal is emitted when an account withdraws part of its balance.
	TypeWithdrawal = "bank.withdraw"
	// TypeSweep is emitted when the admin collects every active balance.
	TypeSweep = "bank.sweep"
	// TypeAdminChanged is emitted when the admin role moves to a new account.
	TypeAdminChanged = "bank.admin_changed"
	// TypePolicyDeposit is the additional record written by the deposit policy layer.
	TypePolicyDeposit = "bank.policy.deposit"
)

type Deposit struct {
	Account common.Address
	Amount  *uint256.Int
	Total   *uint256.Int
}

func (Deposit) EventType() string { return TypeDeposit }

func (e Deposit) Event() *types.Event {
	return &types.Event{Type: TypeDeposit, Attributes: map[string]string{
		"account": formatAccount(e.Account),
		"amount":  formatAmount(e.Amount),
		"total":   formatAmount(e.Total),
	}}
}

type Withdrawal struct {
	Account common.Address
	Amount  *uint256.Int
	Total   *uint256.Int
}

func (Withdrawal) EventType() string { return TypeWithdrawal }

func (e Withdrawal) Event() *types.Event {
	return &types.Event{Type: TypeWithdrawal, Attributes: map[string]string{
		"account": formatAccount(e.Account),
		"amount":  formatAmount(e.Amount),
		"total":   formatAmount(e.Total),
	}}
}

// Sweep records the admin bulk withdrawal. Accounts is the number of active
// balances that were zeroed.
type Sweep struct {
	Admin    common.Address
	Total    *uint256.Int
	Accounts int
}

func (Sweep) EventType() string { return TypeSweep }

func (e Sweep) Event() *types.Event {
	return &types.Event{Type: TypeSweep, Attributes: map[string]string{
		"admin":    formatAccount(e.Admin),
		"total":    formatAmount(e.Total),
		"accounts": strconv.Itoa(e.Accounts),
	}}
}

type AdminChanged struct {
	Previous common.Address
	Next     common.Address
}

func (AdminChanged) EventType() string { return TypeAdminChanged }

func (e AdminChanged) Event() *types.Event {
	return &types.Event{Type: TypeAdminChanged, Attributes: map[string]string{
		"previous": formatAccount(e.Previous),
		"next":     formatAccount(e.Next),
	}}
}

// PolicyDeposit is emitted next to Deposit when a deposit passes the policy
// threshold.
type PolicyDeposit struct {
	Account common.Address
	Amount  *uint256.Int
	Minimum *uint256.Int
}

func (PolicyDeposit) EventType() string { return TypePolicyDeposit }

func (e PolicyDeposit) Event() *types.Event {
	return &types.Event{Type: TypePolicyDeposit, Attributes: map[string]string{
		"account": formatAccount(e.Account),
		"amount":  formatAmount(e.Amount),
		"minimum": formatAmount(e.Minimum),
	}}
}

func formatAccount(addr common.Address) string {
	return crypto.FromCommon(addr).String()
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
