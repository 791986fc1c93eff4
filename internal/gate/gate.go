// Package gate implements the single-shot confirmation that decides whether
// an export proceeds to drawing.
package gate

import (
	"context"
	"sync"
	"time"
)

// Decision is the latched outcome of a gate.
type Decision int

const (
	Pending Decision = iota
	AutoConfirmed
	Confirmed
	Cancelled
	TimedOut
	// Closed is latched when the owner stops waiting without a decision.
	Closed
)

func (d Decision) String() string {
	switch d {
	case AutoConfirmed:
		return "auto-confirmed"
	case Confirmed:
		return "confirmed"
	case Cancelled:
		return "cancelled"
	case TimedOut:
		return "timed out"
	case Closed:
		return "closed"
	default:
		return "pending"
	}
}

// Proceed reports whether the decision allows the export to continue.
func (d Decision) Proceed() bool {
	return d == AutoConfirmed || d == Confirmed
}

const (
	DefaultTimeout  = 20 * time.Second
	DefaultInterval = 2 * time.Second
)

// Option configures a Gate.
type Option func(*Gate)

// WithReminder sets a callback invoked with the remaining time when the
// countdown starts and on every tick while the gate is pending.
func WithReminder(fn func(remaining time.Duration)) Option {
	return func(g *Gate) { g.remind = fn }
}

// WithInterval overrides the reminder interval.
func WithInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.interval = d
		}
	}
}

// Gate resolves once, by Confirm, Cancel, timeout or context cancellation.
// Confirm and Cancel report false once the gate has resolved; signals
// arriving after resolution have no effect.
type Gate struct {
	timeout  time.Duration
	interval time.Duration
	remind   func(time.Duration)

	mu       sync.Mutex
	decision Decision
	done     chan struct{}
}

// New creates a pending gate that times out after timeout.
func New(timeout time.Duration, opts ...Option) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	g := &Gate{
		timeout:  timeout,
		interval: DefaultInterval,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Auto returns a gate that is already resolved as AutoConfirmed.
func Auto() *Gate {
	g := New(DefaultTimeout)
	g.resolve(AutoConfirmed)
	return g
}

// Confirm latches Confirmed if the gate is still pending.
func (g *Gate) Confirm() bool { return g.resolve(Confirmed) }

// Cancel latches Cancelled if the gate is still pending.
func (g *Gate) Cancel() bool { return g.resolve(Cancelled) }

// Close tears the gate down if it is still pending, so that later
// Confirm and Cancel calls report false.
func (g *Gate) Close() bool { return g.resolve(Closed) }

// Pending reports whether the gate still accepts signals.
func (g *Gate) Pending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision == Pending
}

// Decision returns the latched decision, or Pending.
func (g *Gate) Decision() Decision {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decision
}

// Done is closed when the gate resolves.
func (g *Gate) Done() <-chan struct{} { return g.done }

func (g *Gate) resolve(d Decision) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.decision != Pending {
		return false
	}
	g.decision = d
	close(g.done)
	return true
}

// Await blocks until the gate resolves and returns the decision. The
// countdown runs in steps of the reminder interval; when it reaches zero
// the gate resolves as TimedOut.
func (g *Gate) Await(ctx context.Context) Decision {
	if d := g.Decision(); d != Pending {
		return d
	}

	remaining := g.timeout
	g.notify(remaining)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.done:
			return g.Decision()
		case <-ctx.Done():
			g.resolve(Cancelled)
			return g.Decision()
		case <-ticker.C:
			remaining -= g.interval
			if remaining > 0 {
				if g.Pending() {
					g.notify(remaining)
				}
				continue
			}
			g.resolve(TimedOut)
			return g.Decision()
		}
	}
}

func (g *Gate) notify(remaining time.Duration) {
	if g.remind != nil {
		g.remind(remaining)
	}
}
