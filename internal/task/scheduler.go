package task

import (
	"context"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/tracecore/internal/gate"
)

// DefaultTick is how often the scheduler loop checks for due tasks.
const DefaultTick = 100 * time.Millisecond

// Scheduler owns a background loop that runs due tasks once per tick.
// All methods are safe for concurrent use.
type Scheduler struct {
	core *schedulerCore
}

// schedulerCore is the state shared with the loop goroutine. The loop never
// references the Scheduler itself, so an unreachable running Scheduler can be
// finalized and its loop torn down.
type schedulerCore struct {
	mu    sync.Mutex // guards tasks
	tasks []*Task

	current atomic.Pointer[loopState] // nil until Start, cleared by halt

	tick      time.Duration
	gate      gate.Gate
	interrupt func() error
	now       func() time.Time
	logger    *slog.Logger
}

// loopState belongs to a single loop goroutine. A restarted scheduler gets a
// fresh one, so an old loop still finishing its current task never sees the
// new loop's running flag.
type loopState struct {
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerConfig)

type schedulerConfig struct {
	autoStart bool
	tick      time.Duration
	gate      gate.Gate
	interrupt func() error
	now       func() time.Time
}

// WithAutoStart starts the loop as soon as the scheduler is constructed.
func WithAutoStart(autoStart bool) SchedulerOption {
	return func(c *schedulerConfig) {
		c.autoStart = autoStart
	}
}

// WithTick overrides DefaultTick. Non-positive values are ignored.
func WithTick(tick time.Duration) SchedulerOption {
	return func(c *schedulerConfig) {
		if tick > 0 {
			c.tick = tick
		}
	}
}

// WithGate sets the gate task bodies and shutdown hooks run under, for tasks
// that do not carry their own. Defaults to gate.Noop.
func WithGate(g gate.Gate) SchedulerOption {
	return func(c *schedulerConfig) {
		if g != nil {
			c.gate = g
		}
	}
}

// WithInterruptCheck installs a check consulted at the top of every tick.
// When it returns an error the loop stops itself, as if the host had asked
// for cancellation. Shutdown hooks still only run on Stop.
func WithInterruptCheck(check func() error) SchedulerOption {
	return func(c *schedulerConfig) {
		c.interrupt = check
	}
}

// WithClock replaces time.Now for due-time computations.
func WithClock(now func() time.Time) SchedulerOption {
	return func(c *schedulerConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// NewScheduler creates a stopped Scheduler, or a running one with
// WithAutoStart(true). A nil logger falls back to slog.Default().
func NewScheduler(logger *slog.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := schedulerConfig{
		tick: DefaultTick,
		gate: gate.Noop{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Scheduler{
		core: &schedulerCore{
			tick:      cfg.tick,
			gate:      cfg.gate,
			interrupt: cfg.interrupt,
			now:       cfg.now,
			logger:    logger.With("component", "task_scheduler"),
		},
	}
	runtime.SetFinalizer(s, func(s *Scheduler) {
		s.core.halt(context.Background())
	})

	if cfg.autoStart {
		s.Start()
	}
	return s
}

// RegisterTask adds t to the end of the task list. Registering a task that is
// already present is a no-op. A task without its own gate or logger adopts
// the scheduler's.
func (s *Scheduler) RegisterTask(t *Task) {
	if t == nil {
		return
	}
	c := s.core

	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.Contains(c.tasks, t) {
		return
	}
	t.bind(c.gate, c.logger)
	c.tasks = append(c.tasks, t)
	c.logger.Debug("registered task",
		"task_id", t.id,
		"task_name", t.name,
		"interval", t.interval,
		"task_count", len(c.tasks))
}

// UnregisterTask removes t from the task list. It is a no-op if t is absent.
func (s *Scheduler) UnregisterTask(t *Task) {
	c := s.core

	c.mu.Lock()
	defer c.mu.Unlock()

	before := len(c.tasks)
	c.tasks = slices.DeleteFunc(c.tasks, func(x *Task) bool { return x == t })
	if len(c.tasks) != before {
		c.logger.Debug("unregistered task",
			"task_id", t.id,
			"task_name", t.name,
			"task_count", len(c.tasks))
	}
}

// Schedule creates a task and registers it.
func (s *Scheduler) Schedule(name string, interval time.Duration, body Func, opts ...TaskOption) *Task {
	opts = append([]TaskOption{WithTaskClock(s.core.now)}, opts...)
	t := New(name, interval, body, opts...)
	s.RegisterTask(t)
	return t
}

// Tasks returns the registered tasks in registration order.
func (s *Scheduler) Tasks() []*Task {
	return s.core.snapshot()
}

// Running reports whether the loop is running.
func (s *Scheduler) Running() bool {
	l := s.core.current.Load()
	return l != nil && l.running.Load()
}

// Start launches the loop goroutine. It is a no-op if the loop was already
// started and has not been stopped since.
func (s *Scheduler) Start() {
	c := s.core

	ctx, cancel := context.WithCancel(context.Background())
	l := &loopState{cancel: cancel, done: make(chan struct{})}
	l.running.Store(true)
	if !c.current.CompareAndSwap(nil, l) {
		cancel()
		return
	}

	go c.loop(context.WithValue(ctx, loopKey{loop: l}, struct{}{}), l)
	c.logger.Info("scheduler started", "tick", c.tick)
}

// Stop signals the loop to exit, waits for it, and then runs every task's
// shutdown hook once, in registration order. It is a no-op if the scheduler
// is not started. ctx is passed to the shutdown hooks.
//
// Called from a task body, Stop does not wait for the loop (which is the
// caller); the loop exits once the current task returns. Called while
// holding the scheduler's gate, Stop makes the loop give up any pending
// acquisition so the join cannot deadlock.
func (s *Scheduler) Stop(ctx context.Context) {
	c := s.core
	if ctx == nil {
		ctx = context.Background()
	}

	if !c.halt(ctx) {
		return
	}

	for _, t := range c.snapshot() {
		t.Shutdown(ctx)
	}
	c.logger.Info("scheduler stopped")
}

// Close signals the loop to exit and waits for it without running shutdown
// hooks. It is the teardown path for hosts that are finalizing and can no
// longer run host logic. It always returns nil.
func (s *Scheduler) Close() error {
	if s.core.halt(context.Background()) {
		s.core.logger.Debug("scheduler closed without shutdown hooks")
	}
	return nil
}

type loopKey struct {
	loop *loopState
}

// halt detaches the current loop, clears its running flag, cancels its
// context and joins it unless ctx belongs to that loop. It reports whether a
// loop had been started. The join happens after the loop is detached, so a
// task body may Start a new loop while the old one is being reaped.
func (c *schedulerCore) halt(ctx context.Context) bool {
	l := c.current.Swap(nil)
	if l == nil {
		return false
	}

	l.running.Store(false)
	l.cancel()

	if ctx.Value(loopKey{loop: l}) == nil {
		<-l.done
	}
	return true
}

func (c *schedulerCore) snapshot() []*Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.tasks)
}

func (c *schedulerCore) loop(ctx context.Context, l *loopState) {
	defer close(l.done)

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for l.running.Load() {
		if c.interrupt != nil {
			if err := c.interrupt(); err != nil {
				l.running.Store(false)
				c.logger.Info("scheduler loop interrupted", "error", err)
				return
			}
		}

		now := c.now()
		for _, t := range c.snapshot() {
			if !l.running.Load() {
				break
			}
			t.RunIfDue(ctx, now)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
