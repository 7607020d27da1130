package task

import (
	"log/slog"
	"sync"

	"github.com/phrazzld/tracecore/internal/gate"
)

var (
	defaultScheduler     *Scheduler
	defaultSchedulerOnce sync.Once
)

// DefaultScheduler returns the process-wide Scheduler, constructing and
// starting it on first use. Task bodies run under gate.Process().
func DefaultScheduler() *Scheduler {
	defaultSchedulerOnce.Do(func() {
		defaultScheduler = NewScheduler(slog.Default(),
			WithGate(gate.Process()),
			WithAutoStart(true))
	})
	return defaultScheduler
}

// RegisterTask registers t with the default scheduler.
func RegisterTask(t *Task) { DefaultScheduler().RegisterTask(t) }

// UnregisterTask unregisters t from the default scheduler.
func UnregisterTask(t *Task) { DefaultScheduler().UnregisterTask(t) }
