package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tracecore/internal/gate"
)

// Func is the body of a task or of its shutdown hook.
type Func func(ctx context.Context) error

// Task is a named unit of work that runs whenever its interval has elapsed
// since its last run. Once registered with a Scheduler, only the scheduler
// loop updates its last run time.
type Task struct {
	id         uuid.UUID
	name       string
	body       Func
	onShutdown Func
	interval   time.Duration

	mu      sync.Mutex
	lastRun time.Time
	gate    gate.Gate
	logger  *slog.Logger
	now     func() time.Time
}

// TaskOption configures a Task.
type TaskOption func(*Task)

// WithShutdownHook sets the function run once when the owning Scheduler stops.
func WithShutdownHook(fn Func) TaskOption {
	return func(t *Task) {
		t.onShutdown = fn
	}
}

// WithTaskGate sets the gate the task body runs under. Tasks without a gate
// adopt the gate of the Scheduler they are registered with.
func WithTaskGate(g gate.Gate) TaskOption {
	return func(t *Task) {
		t.gate = g
	}
}

// WithTaskLogger sets the logger used to report task failures. Tasks without
// a logger adopt the logger of the Scheduler they are registered with.
func WithTaskLogger(logger *slog.Logger) TaskOption {
	return func(t *Task) {
		t.logger = logger
	}
}

// WithTaskClock replaces time.Now when initialising the last run time.
func WithTaskClock(now func() time.Time) TaskOption {
	return func(t *Task) {
		if now != nil {
			t.now = now
		}
	}
}

// New creates a Task that runs body every interval. The interval is rounded to
// the millisecond; a zero (or negative) interval runs on every scheduler tick.
// The first run happens once interval has elapsed from construction.
func New(name string, interval time.Duration, body Func, opts ...TaskOption) *Task {
	if interval < 0 {
		interval = 0
	}

	t := &Task{
		id:       uuid.New(),
		name:     name,
		body:     body,
		interval: interval.Round(time.Millisecond),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.lastRun = t.now()
	return t
}

// ID returns the task's unique identifier.
func (t *Task) ID() uuid.UUID { return t.id }

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Interval returns the (millisecond-rounded) interval.
func (t *Task) Interval() time.Duration { return t.interval }

// LastRun returns the time the task last ran, or its construction time.
func (t *Task) LastRun() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastRun
}

// RunIfDue runs the body if at least one interval has elapsed between the
// last run and now. The last run time moves to now whether or not the body
// fails. If ctx ends before the gate is acquired the body is skipped and the
// last run time is left alone. It reports whether the body ran.
func (t *Task) RunIfDue(ctx context.Context, now time.Time) bool {
	t.mu.Lock()
	due := now.Sub(t.lastRun) >= t.interval
	t.mu.Unlock()

	if !due {
		return false
	}

	if !t.invoke(ctx, "run", t.body) {
		return false
	}

	t.mu.Lock()
	t.lastRun = now
	t.mu.Unlock()
	return true
}

// Run runs the body immediately without touching the last run time.
func (t *Task) Run(ctx context.Context) {
	t.invoke(ctx, "run", t.body)
}

// Shutdown runs the shutdown hook, if any. Failures are logged and swallowed.
func (t *Task) Shutdown(ctx context.Context) {
	if t.onShutdown == nil {
		return
	}
	t.invoke(ctx, "shutdown", t.onShutdown)
}

// bind fills in the gate and logger from the scheduler when the task has none.
func (t *Task) bind(g gate.Gate, logger *slog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.gate == nil {
		t.gate = g
	}
	if t.logger == nil {
		t.logger = logger
	}
}

func (t *Task) deps() (gate.Gate, *slog.Logger) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, logger := t.gate, t.logger
	if g == nil {
		g = gate.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return g, logger
}

// invoke runs fn under the gate. Errors and panics are logged, never returned.
// It reports false only when the gate was not acquired.
func (t *Task) invoke(ctx context.Context, phase string, fn Func) bool {
	if fn == nil {
		return true
	}
	if ctx == nil {
		ctx = context.Background()
	}
	g, logger := t.deps()

	err := g.Do(ctx, func(ctx context.Context) {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("task panicked",
					"task_id", t.id,
					"task_name", t.name,
					"phase", phase,
					"panic", fmt.Sprint(p),
					"stack", string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			logger.Error("task execution failed",
				"task_id", t.id,
				"task_name", t.name,
				"phase", phase,
				"error", err)
		}
	})
	if err != nil {
		logger.Debug("task skipped, gate not acquired",
			"task_id", t.id,
			"task_name", t.name,
			"phase", phase,
			"error", err)
		return false
	}
	return true
}
