package bank

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"bankchain/core/events"
	nativecommon "bankchain/native/common"
)

// Policy holds the deposit rules layered over the base bank and the per-sender
// quota enforced by the executor.
type Policy struct {
	// MinDeposit rejects smaller deposits with ErrBelowMinimum. Zero disables
	// the threshold.
	MinDeposit *uint256.Int
	// EmitRecords adds a bank.policy.deposit event to every accepted deposit.
	EmitRecords bool
	Quota       nativecommon.Quota
}

// policyFile mirrors the YAML representation of the policy.
type policyFile struct {
	MinDeposit  string `yaml:"min_deposit"`
	EmitRecords bool   `yaml:"emit_records"`
	Quota       struct {
		MaxRequestsPerEpoch uint32 `yaml:"max_requests_per_epoch"`
		MaxValuePerEpoch    uint64 `yaml:"max_value_per_epoch"`
		EpochSeconds        uint32 `yaml:"epoch_seconds"`
	} `yaml:"quota"`
}

// DefaultPolicy accepts every positive deposit and emits no extra records.
func DefaultPolicy() Policy {
	return Policy{MinDeposit: new(uint256.Int)}
}

// LoadPolicy reads the policy from the provided YAML file on disk.
func LoadPolicy(path string) (Policy, error) {
	file, err := os.Open(path)
	if err != nil {
		return Policy{}, fmt.Errorf("open policy: %w", err)
	}
	defer file.Close()
	var entry policyFile
	if err := yaml.NewDecoder(file).Decode(&entry); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	policy := DefaultPolicy()
	if raw := strings.TrimSpace(entry.MinDeposit); raw != "" {
		min, err := uint256.FromDecimal(raw)
		if err != nil {
			return Policy{}, fmt.Errorf("min_deposit: %w", err)
		}
		policy.MinDeposit = min
	}
	policy.EmitRecords = entry.EmitRecords
	policy.Quota = nativecommon.Quota{
		MaxRequestsPerEpoch: entry.Quota.MaxRequestsPerEpoch,
		MaxValuePerEpoch:    entry.Quota.MaxValuePerEpoch,
		EpochSeconds:        entry.Quota.EpochSeconds,
	}
	limited := policy.Quota.MaxRequestsPerEpoch > 0 || policy.Quota.MaxValuePerEpoch > 0
	if limited && policy.Quota.EpochSeconds == 0 {
		return Policy{}, fmt.Errorf("quota: epoch_seconds must be positive")
	}
	return policy, nil
}

// PolicyBank decorates a Bank with the deposit policy. Withdrawals, admin
// changes and reads pass straight through to the embedded Bank.
type PolicyBank struct {
	*Bank
	policy Policy
}

// NewPolicyBank wraps base with policy.
func NewPolicyBank(base *Bank, policy Policy) *PolicyBank {
	if policy.MinDeposit == nil {
		policy.MinDeposit = new(uint256.Int)
	}
	return &PolicyBank{Bank: base, policy: policy}
}

// Policy returns the active policy.
func (p *PolicyBank) Policy() Policy { return p.policy }

// Deposit applies the threshold before crediting.
func (p *PolicyBank) Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.Bank.credit(ctx, "deposit", caller, amount, p.check)
}

// Receive applies the same rules as Deposit.
func (p *PolicyBank) Receive(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.Bank.credit(ctx, "receive", caller, amount, p.check)
}

func (p *PolicyBank) check(caller common.Address, amount *uint256.Int) ([]events.Event, error) {
	if amount != nil && !amount.IsZero() && amount.Lt(p.policy.MinDeposit) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimum, amount.Dec(), p.policy.MinDeposit.Dec())
	}
	if !p.policy.EmitRecords {
		return nil, nil
	}
	return []events.Event{events.PolicyDeposit{
		Account: caller,
		Amount:  new(uint256.Int).Set(amountOrZero(amount)),
		Minimum: new(uint256.Int).Set(p.policy.MinDeposit),
	}}, nil
}

func amountOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
