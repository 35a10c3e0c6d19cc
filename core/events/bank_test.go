package events

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"bankchain/crypto"
)

func TestDepositEventAttributes(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	evt := Deposit{Account: account, Amount: uint256.NewInt(40), Total: uint256.NewInt(140)}.Event()
	if evt.Type != TypeDeposit {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["account"] != crypto.FromCommon(account).String() {
		t.Fatalf("unexpected account attr: %s", evt.Attributes["account"])
	}
	if evt.Attributes["amount"] != "40" || evt.Attributes["total"] != "140" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestSweepEventNilTotal(t *testing.T) {
	evt := Sweep{Accounts: 3}.Event()
	if evt.Attributes["total"] != "0" {
		t.Fatalf("nil total should render as 0, got %s", evt.Attributes["total"])
	}
	if evt.Attributes["accounts"] != "3" {
		t.Fatalf("unexpected accounts attr: %s", evt.Attributes["accounts"])
	}
}

func TestMultiAndRecorder(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	fan := Multi{first, nil, second}
	fan.Emit(AdminChanged{})
	fan.Emit(Deposit{})
	if len(first.Events()) != 2 || len(second.Events()) != 2 {
		t.Fatalf("expected both recorders to see 2 events")
	}
	if first.Events()[1].EventType() != TypeDeposit {
		t.Fatalf("events out of order")
	}
	first.Reset()
	if len(first.Events()) != 0 {
		t.Fatalf("reset should clear events")
	}
}
