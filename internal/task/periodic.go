package task

import (
	"context"
	"sync"
	"time"
)

// PeriodicService runs a periodic function on a Scheduler between Start and
// Stop. Its shutdown hook runs when the scheduler itself stops.
type PeriodicService struct {
	scheduler *Scheduler
	task      *Task

	mu      sync.Mutex
	started bool
}

// NewPeriodicService creates a stopped service named name that runs periodic
// every interval once started.
func NewPeriodicService(s *Scheduler, name string, interval time.Duration, periodic Func, opts ...TaskOption) *PeriodicService {
	opts = append([]TaskOption{WithTaskClock(s.core.now)}, opts...)
	t := New(name, interval, periodic, opts...)
	t.bind(s.core.gate, s.core.logger)

	return &PeriodicService{
		scheduler: s,
		task:      t,
	}
}

// Start registers the service's task with the scheduler.
func (p *PeriodicService) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.scheduler.RegisterTask(p.task)
	p.started = true
}

// Stop unregisters the service's task. Its shutdown hook is not run.
func (p *PeriodicService) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.scheduler.UnregisterTask(p.task)
	p.started = false
}

// Started reports whether the service is registered with its scheduler.
func (p *PeriodicService) Started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Interval returns the service's interval.
func (p *PeriodicService) Interval() time.Duration {
	return p.task.Interval()
}

// Task returns the task backing the service.
func (p *PeriodicService) Task() *Task {
	return p.task
}

// AwakeablePeriodicService is a PeriodicService whose function can also be run
// on demand.
type AwakeablePeriodicService struct {
	*PeriodicService
}

// NewAwakeablePeriodicService creates a stopped awakeable service.
func NewAwakeablePeriodicService(s *Scheduler, name string, interval time.Duration, periodic Func, opts ...TaskOption) *AwakeablePeriodicService {
	return &AwakeablePeriodicService{
		PeriodicService: NewPeriodicService(s, name, interval, periodic, opts...),
	}
}

// Awake runs the periodic function immediately on the calling goroutine,
// under the gate. It does not reset the interval.
func (a *AwakeablePeriodicService) Awake(ctx context.Context) {
	a.task.Run(ctx)
}
