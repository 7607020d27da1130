package task

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/tracecore/internal/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTick = 5 * time.Millisecond

func newTestScheduler(opts ...SchedulerOption) *Scheduler {
	opts = append([]SchedulerOption{WithTick(testTick)}, opts...)
	return NewScheduler(setupTestLogger(), opts...)
}

func TestNewScheduler(t *testing.T) {
	s := NewScheduler(nil)
	assert.False(t, s.Running())
	assert.Equal(t, DefaultTick, s.core.tick)
	assert.Empty(t, s.Tasks())

	auto := newTestScheduler(WithAutoStart(true))
	defer auto.Stop(context.Background())
	assert.True(t, auto.Running())
}

func TestScheduler_RegisterTask(t *testing.T) {
	s := newTestScheduler()
	a := New("a", time.Second, nil)
	b := New("b", time.Second, nil)

	s.RegisterTask(a)
	s.RegisterTask(b)
	s.RegisterTask(a)
	s.RegisterTask(nil)
	assert.Equal(t, []*Task{a, b}, s.Tasks())

	s.UnregisterTask(a)
	s.UnregisterTask(a)
	assert.Equal(t, []*Task{b}, s.Tasks())
}

func TestScheduler_RegisterTask_BindsGate(t *testing.T) {
	g := gate.NewMutex()
	s := newTestScheduler(WithGate(g))

	own := gate.NewMutex()
	withOwn := New("own", 0, nil, WithTaskGate(own))
	plain := New("plain", 0, nil)

	s.RegisterTask(withOwn)
	s.RegisterTask(plain)

	gotOwn, _ := withOwn.deps()
	gotPlain, _ := plain.deps()
	assert.Same(t, own, gotOwn)
	assert.Same(t, g, gotPlain)
}

func TestScheduler_Schedule(t *testing.T) {
	s := newTestScheduler(WithAutoStart(true))

	ran := make(chan struct{}, 1)
	task := s.Schedule("heartbeat", 0, func(ctx context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	})

	assert.Equal(t, []*Task{task}, s.Tasks())

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never ran")
	}
	s.Stop(context.Background())
}

func TestScheduler_StartStopIdempotent(t *testing.T) {
	s := newTestScheduler()

	// Stop before Start is a no-op.
	var hooks atomic.Int32
	s.Schedule("t", time.Hour, nil, WithShutdownHook(func(ctx context.Context) error {
		hooks.Add(1)
		return nil
	}))
	s.Stop(context.Background())
	assert.Equal(t, int32(0), hooks.Load())

	s.Start()
	first := s.core.current.Load()
	s.Start()
	assert.Same(t, first, s.core.current.Load(), "second Start does not spawn another loop")
	assert.True(t, s.Running())

	s.Stop(context.Background())
	s.Stop(context.Background())
	assert.False(t, s.Running())
	assert.Equal(t, int32(1), hooks.Load(), "hooks run once per effective Stop")

	// A stopped scheduler can be started again.
	s.Start()
	assert.True(t, s.Running())
	s.Stop(context.Background())
	assert.Equal(t, int32(2), hooks.Load())
}

func TestScheduler_IntervalCadence(t *testing.T) {
	clock := newFakeClock()
	s := newTestScheduler(WithClock(clock.Now))

	var mu sync.Mutex
	var runTimes []time.Time
	task := s.Schedule("rollup", time.Second, func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		runTimes = append(runTimes, clock.Now())
		return nil
	})
	registered := task.LastRun()

	s.Start()
	defer s.Stop(context.Background())

	runs := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(runTimes)
	}

	// Let several ticks pass without advancing the clock: nothing is due.
	time.Sleep(10 * testTick)
	assert.Equal(t, 0, runs())

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Second)
		require.Eventually(t, func() bool { return runs() == i }, time.Second, testTick)
		// More ticks at the same instant never run it twice.
		time.Sleep(5 * testTick)
		assert.Equal(t, i, runs())
	}

	mu.Lock()
	defer mu.Unlock()
	for i, at := range runTimes {
		assert.Equal(t, registered.Add(time.Duration(i+1)*time.Second), at)
	}
}

func TestScheduler_RegistrationOrder(t *testing.T) {
	s := newTestScheduler()

	var mu sync.Mutex
	var order []string
	record := func(name string) Func {
		return func(ctx context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	s.Schedule("first", 0, record("first"))
	s.Schedule("second", 0, record("second"))
	s.Schedule("third", 0, record("third"))

	s.Start()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) >= 3
	}, time.Second, testTick)
	s.Stop(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, order[:3])
}

func TestScheduler_FailingTaskDoesNotStopOthers(t *testing.T) {
	s := newTestScheduler()

	var healthy atomic.Int32
	s.Schedule("panics", 0, func(ctx context.Context) error { panic("boom") })
	s.Schedule("errors", 0, func(ctx context.Context) error { return errors.New("failed") })
	s.Schedule("healthy", 0, func(ctx context.Context) error {
		healthy.Add(1)
		return nil
	})

	s.Start()
	require.Eventually(t, func() bool { return healthy.Load() >= 3 }, time.Second, testTick)
	assert.True(t, s.Running(), "the loop survives failing tasks")
	s.Stop(context.Background())
}

func TestScheduler_StopJoinsLoopThenRunsHooks(t *testing.T) {
	s := newTestScheduler()

	started := make(chan struct{})
	var once sync.Once
	var finished atomic.Bool

	var mu sync.Mutex
	var events []string
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	s.Schedule("slow", 0, func(ctx context.Context) error {
		once.Do(func() { close(started) })
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		record("body")
		return nil
	}, WithShutdownHook(func(ctx context.Context) error {
		record("hook:slow")
		return nil
	}))
	s.Schedule("other", time.Hour, nil, WithShutdownHook(func(ctx context.Context) error {
		record("hook:other")
		return nil
	}))

	s.Start()
	<-started
	s.Stop(context.Background())

	assert.True(t, finished.Load(), "Stop returns only after the running body finished")
	assert.False(t, s.Running())

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, []string{"hook:slow", "hook:other"}, events[len(events)-2:],
		"each hook runs once, in registration order, after the loop exited")
}

func TestScheduler_StopFromTaskBody(t *testing.T) {
	s := newTestScheduler()

	var hooks atomic.Int32
	stopped := make(chan struct{})
	s.Schedule("stopper", 0, func(ctx context.Context) error {
		s.Stop(ctx)
		close(stopped)
		return nil
	}, WithShutdownHook(func(ctx context.Context) error {
		hooks.Add(1)
		return nil
	}))

	s.Start()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop from a task body deadlocked")
	}

	assert.False(t, s.Running())
	assert.Equal(t, int32(1), hooks.Load())
}

func TestScheduler_RestartFromTaskBody(t *testing.T) {
	s := newTestScheduler()

	var restarted atomic.Bool
	s.Schedule("restarter", 0, func(ctx context.Context) error {
		if restarted.CompareAndSwap(false, true) {
			s.Stop(ctx)
			s.Start()
		}
		return nil
	})

	var active, maxActive, runs atomic.Int32
	s.Schedule("slow", 0, func(ctx context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(4 * testTick)
		active.Add(-1)
		runs.Add(1)
		return nil
	})

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 5 }, 5*time.Second, testTick)

	assert.True(t, restarted.Load())
	assert.True(t, s.Running())
	s.Stop(context.Background())
	assert.Equal(t, int32(1), maxActive.Load(), "the replaced loop must not keep running tasks")
}

func TestScheduler_StopWhileHoldingGate(t *testing.T) {
	g := gate.NewMutex()
	s := newTestScheduler(WithGate(g))

	var runs, hooks atomic.Int32
	s.Schedule("heartbeat", 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, WithShutdownHook(func(ctx context.Context) error {
		hooks.Add(1)
		return nil
	}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() > 0 }, time.Second, testTick)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		g.Do(context.Background(), func(ctx context.Context) {
			// Give the loop time to queue up on the gate behind us.
			time.Sleep(4 * testTick)
			s.Stop(ctx)
		})
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop called while holding the gate never returned")
	}
	assert.False(t, s.Running())
	assert.Equal(t, int32(1), hooks.Load())

	// The loop's abandoned place in line does not wedge the gate.
	free := make(chan struct{})
	go g.Do(context.Background(), func(ctx context.Context) { close(free) })
	select {
	case <-free:
	case <-time.After(time.Second):
		t.Fatal("gate stuck after Stop")
	}
}

func TestScheduler_Close(t *testing.T) {
	s := newTestScheduler()

	var hooks, runs atomic.Int32
	s.Schedule("t", 0, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, WithShutdownHook(func(ctx context.Context) error {
		hooks.Add(1)
		return nil
	}))

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() > 0 }, time.Second, testTick)

	done := s.core.current.Load().done
	require.NoError(t, s.Close())

	select {
	case <-done:
	default:
		t.Fatal("Close returned before the loop exited")
	}
	assert.False(t, s.Running())
	assert.Equal(t, int32(0), hooks.Load(), "implicit teardown skips shutdown hooks")

	after := runs.Load()
	time.Sleep(5 * testTick)
	assert.Equal(t, after, runs.Load())

	// Stop after Close is a no-op.
	s.Stop(context.Background())
	assert.Equal(t, int32(0), hooks.Load())
}

// startUnreferenced starts a scheduler and returns only its loop state, so the
// Scheduler itself becomes unreachable.
func startUnreferenced(hooks *atomic.Int32) (*schedulerCore, chan struct{}) {
	s := newTestScheduler()
	s.Schedule("t", 0, func(ctx context.Context) error { return nil },
		WithShutdownHook(func(ctx context.Context) error {
			hooks.Add(1)
			return nil
		}))
	s.Start()
	return s.core, s.core.current.Load().done
}

func TestScheduler_FinalizerStopsLoop(t *testing.T) {
	var hooks atomic.Int32
	core, done := startUnreferenced(&hooks)

	require.Eventually(t, func() bool {
		runtime.GC()
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond, "loop of an unreachable scheduler should be torn down")

	assert.Nil(t, core.current.Load())
	assert.Equal(t, int32(0), hooks.Load())
}

func TestScheduler_InterruptCheck(t *testing.T) {
	var checks atomic.Int32
	interrupted := errors.New("keyboard interrupt")

	var hooks atomic.Int32
	s := newTestScheduler(WithInterruptCheck(func() error {
		if checks.Add(1) >= 3 {
			return interrupted
		}
		return nil
	}))
	s.Schedule("t", 0, nil, WithShutdownHook(func(ctx context.Context) error {
		hooks.Add(1)
		return nil
	}))

	s.Start()
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, testTick)
	assert.Equal(t, int32(0), hooks.Load(), "an interrupted loop does not run hooks by itself")

	// Start stays a no-op until Stop reaps the exited loop.
	s.Start()
	assert.False(t, s.Running())

	s.Stop(context.Background())
	assert.Equal(t, int32(1), hooks.Load())
}

func TestScheduler_ConcurrentRegistration(t *testing.T) {
	s := newTestScheduler(WithAutoStart(true))
	defer s.Stop(context.Background())

	var runs atomic.Int64
	body := func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				task := New("churn", 0, body)
				s.RegisterTask(task)
				if j%10 == 0 {
					time.Sleep(time.Millisecond)
				}
				s.UnregisterTask(task)
				_ = s.Tasks()
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, s.Tasks())
	assert.True(t, s.Running())
}

func TestScheduler_TaskMayRegisterTasks(t *testing.T) {
	s := newTestScheduler()

	var childRuns atomic.Int32
	var once sync.Once
	s.Schedule("parent", 0, func(ctx context.Context) error {
		once.Do(func() {
			s.Schedule("child", 0, func(ctx context.Context) error {
				childRuns.Add(1)
				return nil
			})
		})
		return nil
	})

	s.Start()
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return childRuns.Load() > 0 }, time.Second, testTick)
	assert.Len(t, s.Tasks(), 2)
}

func TestScheduler_GateSerializesWithOtherCallers(t *testing.T) {
	g := gate.NewMutex()
	s := newTestScheduler(WithGate(g))

	var active, maxActive atomic.Int32
	enter := func() {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
	}

	s.Schedule("t", 0, func(ctx context.Context) error {
		enter()
		return nil
	})
	s.Start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				g.Do(context.Background(), func(ctx context.Context) { enter() })
			}
		}()
	}
	wg.Wait()
	s.Stop(context.Background())

	assert.Equal(t, int32(1), maxActive.Load())
}
