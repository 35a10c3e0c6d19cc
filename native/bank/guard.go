package bank

import "sync/atomic"

// ReentrancyGuard is a single held/not-held flag shared by every mutating bank
// operation. Entering while it is held fails immediately instead of blocking,
// so a call that re-enters the bank from inside an outbound transfer is
// rejected rather than deadlocked.
type ReentrancyGuard struct {
	held atomic.Bool
}

// Enter acquires the guard. The returned release func must be called on every
// exit path, typically via defer.
func (g *ReentrancyGuard) Enter() (release func(), err error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, ErrReentrant
	}
	return func() { g.held.Store(false) }, nil
}

// Held reports whether an operation is in flight.
func (g *ReentrancyGuard) Held() bool { return g.held.Load() }
