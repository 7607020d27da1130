package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrAbandoned is returned by Do when its context ended before the gate was
// acquired. The callable did not run.
var ErrAbandoned = errors.New("gate acquisition abandoned")

// Gate serializes execution of host-visible callables.
type Gate interface {
	// Do acquires the gate, runs fn and releases the gate on every exit path,
	// including a panic in fn. If ctx is done while Do is still waiting, Do
	// gives up its place in line and returns an error wrapping ErrAbandoned
	// without running fn.
	//
	// The context passed to fn records that the gate is held, so a nested Do
	// with that context runs fn without re-acquiring. That context must not
	// escape fn's goroutine: a goroutine started by fn that calls Do with it
	// would skip the gate while fn is still running.
	Do(ctx context.Context, fn func(ctx context.Context)) error
}

type heldKey struct {
	g Gate
}

// Held reports whether ctx was produced by g.Do, meaning the caller already
// holds g. The answer is only meaningful on the goroutine running the Do
// callable that produced ctx.
func Held(ctx context.Context, g Gate) bool {
	if ctx == nil || g == nil {
		return false
	}
	return ctx.Value(heldKey{g: g}) != nil
}

// Mutex is a FIFO-fair gate: goroutines acquire it in the order they asked
// for it. The zero value is ready to use.
type Mutex struct {
	mu        sync.Mutex
	cond      *sync.Cond
	next      uint64              // next ticket to hand out
	serving   uint64              // ticket currently allowed to run
	abandoned map[uint64]struct{} // tickets whose waiters gave up
}

// NewMutex returns a new FIFO-fair gate.
func NewMutex() *Mutex {
	return &Mutex{}
}

// Do implements Gate.
func (g *Mutex) Do(ctx context.Context, fn func(ctx context.Context)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if Held(ctx, g) {
		fn(ctx)
		return nil
	}

	if err := g.acquire(ctx); err != nil {
		return err
	}
	defer g.release()

	fn(context.WithValue(ctx, heldKey{g: g}, struct{}{}))
	return nil
}

// acquire waits for a ticket's turn. A free gate is taken even when ctx is
// already done.
func (g *Mutex) acquire(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cond == nil {
		g.cond = sync.NewCond(&g.mu)
	}

	ticket := g.next
	g.next++
	if ticket == g.serving {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.cond.Broadcast()
	})
	defer stop()

	for ticket != g.serving {
		if ctx.Err() != nil {
			if g.abandoned == nil {
				g.abandoned = make(map[uint64]struct{})
			}
			g.abandoned[ticket] = struct{}{}
			return fmt.Errorf("%w: %w", ErrAbandoned, context.Cause(ctx))
		}
		g.cond.Wait()
	}
	return nil
}

// release hands the gate to the next waiter still in line.
func (g *Mutex) release() {
	g.mu.Lock()
	g.serving++
	for {
		if _, ok := g.abandoned[g.serving]; !ok {
			break
		}
		delete(g.abandoned, g.serving)
		g.serving++
	}
	g.mu.Unlock()
	g.cond.Broadcast()
}

// Noop is a gate that imposes no serialization.
type Noop struct{}

// Do implements Gate. It always runs fn.
func (Noop) Do(ctx context.Context, fn func(ctx context.Context)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	fn(ctx)
	return nil
}

// Ensure implementations satisfy Gate
var (
	_ Gate = (*Mutex)(nil)
	_ Gate = Noop{}
)
