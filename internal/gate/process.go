package gate

import "sync"

var (
	processGate     *Mutex
	processGateOnce sync.Once
)

// Process returns the process-wide host gate shared by the default hub and
// the default scheduler.
func Process() *Mutex {
	processGateOnce.Do(func() {
		processGate = NewMutex()
	})
	return processGate
}
