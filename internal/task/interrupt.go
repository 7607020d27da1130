package task

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
)

// SignalInterrupt returns an interrupt check for WithInterruptCheck that
// fails once the process has received one of sigs (os.Interrupt when none are
// given), plus a function that stops watching the signals.
func SignalInterrupt(sigs ...os.Signal) (check func() error, stop func()) {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	var (
		mu       sync.Mutex
		received os.Signal
	)

	check = func() error {
		mu.Lock()
		defer mu.Unlock()

		if received == nil {
			select {
			case sig := <-ch:
				received = sig
			default:
				return nil
			}
		}
		return fmt.Errorf("%w: received %s", ErrInterrupted, received)
	}

	var once sync.Once
	stop = func() {
		once.Do(func() { signal.Stop(ch) })
	}
	return check, stop
}
