//go:build loro_debug

package lockorder

import "fmt"

// Guard tracks the chain of lock levels currently held by the calling
// goroutine, panicking if a caller tries to acquire a level at or before
// one it already holds — the fixed order only allows strictly increasing
// acquisition (Txn -> OpLog -> DocState -> DiffCalculator).
type Guard struct {
	held []Level
}

// NewGuard returns an empty Guard. One Guard is meant to be stored per
// goroutine-local context (e.g. threaded through a Txn), not shared.
func NewGuard() *Guard { return &Guard{} }

// Acquire records that level is about to be locked, panicking if doing so
// would violate the fixed order.
func (g *Guard) Acquire(level Level) {
	if len(g.held) > 0 && g.held[len(g.held)-1] >= level {
		panic(fmt.Sprintf("lockorder: acquiring %s after %s violates fixed lock order", level, g.held[len(g.held)-1]))
	}
	g.held = append(g.held, level)
}

// Release pops the most recently acquired level, panicking if it doesn't
// match (acquire/release must nest like a stack).
func (g *Guard) Release(level Level) {
	if len(g.held) == 0 || g.held[len(g.held)-1] != level {
		panic(fmt.Sprintf("lockorder: release %s does not match innermost held lock", level))
	}
	g.held = g.held[:len(g.held)-1]
}
