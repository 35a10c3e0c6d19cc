package bank

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"bankchain/core/events"
	nativecommon "bankchain/native/common"
	"bankchain/observability"
)

// Service is the set of operations exposed by the bank module. Both *Bank and
// *PolicyBank implement it.
type Service interface {
	Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error)
	Receive(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error)
	Withdraw(ctx context.Context, caller common.Address, amount *uint256.Int) error
	SetAdmin(ctx context.Context, caller, next common.Address) error
	Balance(account common.Address) (*uint256.Int, error)
	Admin() (common.Address, error)
	Top() ([TopK]Slot, error)
}

// Bank is the ledger engine. Every mutating call runs under the reentrancy
// guard inside one state scope: either all of its effects, events and the
// outbound transfer land, or none do.
//
// Bank is not safe for concurrent use; callers serialise access (see
// core.Executor).
type Bank struct {
	state   engineState
	ledger  *Ledger
	members *MembershipSet
	access  *AccessController
	gateway *TransferGateway
	guard   ReentrancyGuard
	pauses  nativecommon.PauseView
	logger  *slog.Logger
	metrics *observability.BankMetrics
}

// Option customises a Bank at construction.
type Option func(*Bank)

// WithWallet routes outbound transfers to w instead of the built-in vault.
func WithWallet(w Wallet) Option {
	return func(b *Bank) { b.gateway = NewTransferGateway(w) }
}

func WithPauses(p nativecommon.PauseView) Option {
	return func(b *Bank) { b.pauses = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bank) {
		if l != nil {
			b.logger = l.With("component", "bank")
		}
	}
}

func WithMetrics(m *observability.BankMetrics) Option {
	return func(b *Bank) { b.metrics = m }
}

// New wires a bank on top of st. Without WithWallet payouts are recorded by a
// VaultWallet in the same state.
func New(st engineState, opts ...Option) *Bank {
	b := &Bank{
		state:   st,
		ledger:  NewLedger(st),
		members: NewMembershipSet(st),
		access:  NewAccessController(st),
		gateway: NewTransferGateway(NewVaultWallet(st)),
		logger:  slog.Default().With("component", "bank"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Genesis installs the first admin. Calling it again with the same admin is a
// no-op; any other account fails with ErrAlreadyInitialized. It shares the
// reentrancy guard with every other mutating call but ignores the pause switch
// so a paused node can still restart.
func (b *Bank) Genesis(admin common.Address) error {
	if admin == (common.Address{}) {
		return ErrZeroAddress
	}
	release, err := b.guard.Enter()
	if err != nil {
		b.metrics.RecordReentrancy("genesis")
		b.logger.Warn("rejected reentrant call", "op", "genesis")
		return err
	}
	defer release()
	return b.state.Atomic(func() error {
		current, err := b.access.Admin()
		if err != nil {
			return err
		}
		if current == admin {
			return nil
		}
		if current != (common.Address{}) {
			return ErrAlreadyInitialized
		}
		if err := b.access.setAdmin(admin); err != nil {
			return err
		}
		b.state.AddEvent(events.AdminChanged{Next: admin})
		return nil
	})
}

// run executes one mutating operation: pause check, reentrancy guard, then fn
// inside a state scope.
func (b *Bank) run(ctx context.Context, op string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		b.metrics.ObserveOperation(op, time.Since(start), err, ErrTransferFailed)
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := nativecommon.Guard(b.pauses, nativecommon.ModuleBank); err != nil {
		return err
	}
	release, err := b.guard.Enter()
	if err != nil {
		b.metrics.RecordReentrancy(op)
		b.logger.Warn("rejected reentrant call", "op", op)
		return err
	}
	defer release()
	if err := b.state.Atomic(fn); err != nil {
		return err
	}
	if n, lerr := b.members.Len(); lerr == nil {
		b.metrics.SetActiveAccounts(n)
	}
	return nil
}

// depositHook runs at the start of a credit, inside the operation's scope. The
// events it returns are emitted after the deposit event.
type depositHook func(caller common.Address, amount *uint256.Int) ([]events.Event, error)

// Deposit credits amount to caller and returns the new balance.
func (b *Bank) Deposit(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return b.credit(ctx, "deposit", caller, amount, nil)
}

// Receive handles value sent without an explicit call. It behaves exactly like
// Deposit.
func (b *Bank) Receive(ctx context.Context, caller common.Address, amount *uint256.Int) (*uint256.Int, error) {
	return b.credit(ctx, "receive", caller, amount, nil)
}

func (b *Bank) credit(ctx context.Context, op string, caller common.Address, amount *uint256.Int, hook depositHook) (*uint256.Int, error) {
	var total *uint256.Int
	err := b.run(ctx, op, func() error {
		var extra []events.Event
		if hook != nil {
			var err error
			if extra, err = hook(caller, amount); err != nil {
				return err
			}
		}
		next, err := b.ledger.Credit(caller, amount)
		if err != nil {
			return err
		}
		board, err := b.loadBoard()
		if err != nil {
			return err
		}
		board.OnIncrease(caller, next)
		if err := b.storeBoard(board); err != nil {
			return err
		}
		if err := b.members.Ensure(caller); err != nil {
			return err
		}
		b.state.AddEvent(events.Deposit{Account: caller, Amount: new(uint256.Int).Set(amount), Total: next})
		for _, e := range extra {
			b.state.AddEvent(e)
		}
		total = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.logger.Debug("deposit applied", "account", caller.Hex(), "amount", amount.Dec(), "total", total.Dec())
	return new(uint256.Int).Set(total), nil
}

// Withdraw debits amount from caller and transfers it out. When caller is the
// admin the call sweeps every active balance to the admin instead and amount
// is ignored.
func (b *Bank) Withdraw(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	swept := false
	err := b.run(ctx, "withdraw", func() error {
		if caller == (common.Address{}) {
			return ErrZeroAddress
		}
		admin, err := b.access.IsAdmin(caller)
		if err != nil {
			return err
		}
		if admin {
			swept = true
			return b.sweep(ctx, caller)
		}
		return b.withdraw(ctx, caller, amount)
	})
	if err == nil && swept {
		b.metrics.RecordSweep()
	}
	return err
}

func (b *Bank) withdraw(ctx context.Context, caller common.Address, amount *uint256.Int) error {
	total, err := b.ledger.Debit(caller, amount)
	if err != nil {
		return err
	}
	board, err := b.loadBoard()
	if err != nil {
		return err
	}
	if err := board.OnDecrease(caller, total, b.members.All(), b.ledger.BalanceOf); err != nil {
		return err
	}
	if err := b.storeBoard(board); err != nil {
		return err
	}
	if total.IsZero() {
		if err := b.members.RemoveIfPresent(caller); err != nil {
			return err
		}
	}
	b.state.AddEvent(events.Withdrawal{Account: caller, Amount: new(uint256.Int).Set(amount), Total: total})
	ref, err := b.gateway.Send(ctx, caller, amount)
	if err != nil {
		b.logger.Error("withdrawal transfer failed", "account", caller.Hex(), "amount", amount.Dec(), "error", err)
		return err
	}
	b.logger.Info("withdrawal applied", "account", caller.Hex(), "amount", amount.Dec(), "total", total.Dec(), "ref", ref)
	return nil
}

// sweep zeroes every active balance and pays the sum to admin in one transfer.
func (b *Bank) sweep(ctx context.Context, admin common.Address) error {
	sum := new(uint256.Int)
	accounts := 0
	for account, err := range b.members.All() {
		if err != nil {
			return err
		}
		drained, err := b.ledger.Drain(account)
		if err != nil {
			return err
		}
		if _, overflow := sum.AddOverflow(sum, drained); overflow {
			return ErrOverflow
		}
		accounts++
	}
	board, err := b.loadBoard()
	if err != nil {
		return err
	}
	board.Clear()
	if err := b.storeBoard(board); err != nil {
		return err
	}
	if err := b.members.Clear(); err != nil {
		return err
	}
	b.state.AddEvent(events.Sweep{Admin: admin, Total: new(uint256.Int).Set(sum), Accounts: accounts})
	b.logger.Warn("admin sweep", "admin", admin.Hex(), "total", sum.Dec(), "accounts", accounts)
	if sum.IsZero() {
		return nil
	}
	_, err = b.gateway.Send(ctx, admin, sum)
	return err
}

// SetAdmin hands the admin role to next. Only the current admin may call it.
func (b *Bank) SetAdmin(ctx context.Context, caller, next common.Address) error {
	return b.run(ctx, "set_admin", func() error {
		if err := b.access.RequireAdmin(caller); err != nil {
			return err
		}
		if err := b.access.setAdmin(next); err != nil {
			return err
		}
		b.state.AddEvent(events.AdminChanged{Previous: caller, Next: next})
		b.logger.Info("admin changed", "previous", caller.Hex(), "next", next.Hex())
		return nil
	})
}

// Balance returns the balance held by account.
func (b *Bank) Balance(account common.Address) (*uint256.Int, error) {
	if account == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	return b.ledger.BalanceOf(account)
}

// Admin returns the current admin.
func (b *Bank) Admin() (common.Address, error) {
	return b.access.Admin()
}

// Top returns the leaderboard, highest balance first.
func (b *Bank) Top() ([TopK]Slot, error) {
	board, err := b.loadBoard()
	if err != nil {
		return [TopK]Slot{}, err
	}
	return board.Slots(), nil
}

// ActiveAccounts returns the number of accounts with a nonzero balance.
func (b *Bank) ActiveAccounts() (uint64, error) {
	return b.members.Len()
}

func (b *Bank) loadBoard() (*Leaderboard, error) {
	var slots []Slot
	if _, err := b.state.KVGet(leaderboardKey, &slots); err != nil {
		return nil, err
	}
	return LeaderboardFromSlots(slots), nil
}

func (b *Bank) storeBoard(board *Leaderboard) error {
	slots := board.Slots()
	return b.state.KVPut(leaderboardKey, slots[:])
}
