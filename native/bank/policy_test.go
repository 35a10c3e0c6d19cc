package bank

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"bankchain/core/events"
)

func TestPolicyBankMinimumDeposit(t *testing.T) {
	f := newFixture(t)
	p := NewPolicyBank(f.bank, Policy{MinDeposit: u(10), EmitRecords: true})
	ctx := context.Background()

	if _, err := p.Deposit(ctx, addr(1), u(9)); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum, got %v", err)
	}
	if _, err := p.Receive(ctx, addr(1), u(1)); !errors.Is(err, ErrBelowMinimum) {
		t.Fatalf("expected ErrBelowMinimum from Receive, got %v", err)
	}
	if len(f.rec.Events()) != 0 {
		t.Fatalf("rejected deposits emitted events")
	}
	if _, err := p.Deposit(ctx, addr(1), u(0)); !errors.Is(err, ErrZeroAmount) {
		t.Fatalf("zero amount should still be ErrZeroAmount, got %v", err)
	}

	total, err := p.Deposit(ctx, addr(1), u(10))
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if total.Uint64() != 10 {
		t.Fatalf("expected 10, got %s", total)
	}
	recorded := f.rec.Events()
	if len(recorded) != 2 || recorded[0].EventType() != events.TypeDeposit || recorded[1].EventType() != events.TypePolicyDeposit {
		t.Fatalf("unexpected events: %v", recorded)
	}
	if recorded[1].Event().Attributes["minimum"] != "10" {
		t.Fatalf("unexpected policy record: %v", recorded[1].Event().Attributes)
	}

	// withdrawals are not subject to the minimum
	if err := p.Withdraw(ctx, addr(1), u(3)); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	var svc Service = p
	if bal, _ := svc.Balance(addr(1)); bal.Uint64() != 7 {
		t.Fatalf("expected 7, got %s", bal)
	}
}

func TestPolicyBankWithoutRecords(t *testing.T) {
	f := newFixture(t)
	p := NewPolicyBank(f.bank, Policy{})
	if _, err := p.Deposit(context.Background(), addr(1), u(1)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(f.rec.Events()) != 1 {
		t.Fatalf("expected only the deposit event, got %v", f.rec.Events())
	}
}

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writePolicy(t, `
min_deposit: "1000000000000000000000"
emit_records: true
quota:
  max_requests_per_epoch: 5
  max_value_per_epoch: 1000
  epoch_seconds: 60
`)
	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if policy.MinDeposit.Dec() != "1000000000000000000000" || !policy.EmitRecords {
		t.Fatalf("unexpected policy: %+v", policy)
	}
	if policy.Quota.MaxRequestsPerEpoch != 5 || policy.Quota.EpochSeconds != 60 {
		t.Fatalf("unexpected quota: %+v", policy.Quota)
	}

	empty, err := LoadPolicy(writePolicy(t, "emit_records: false\n"))
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if !empty.MinDeposit.IsZero() || empty.Quota.Enabled() {
		t.Fatalf("expected defaults, got %+v", empty)
	}
}

func TestLoadPolicyErrors(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := LoadPolicy(writePolicy(t, "min_deposit: \"-5\"\n")); err == nil {
		t.Fatalf("expected error for negative minimum")
	}
	if _, err := LoadPolicy(writePolicy(t, "quota:\n  max_requests_per_epoch: 3\n")); err == nil {
		t.Fatalf("expected error for quota without epoch length")
	}
}
