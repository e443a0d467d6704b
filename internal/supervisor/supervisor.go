// Package supervisor runs the sender's long-lived background goroutines
// (the telemetry reader; the loopback watchdog is started by
// internal/audio on a plain goroutine of its own) under a single wait group
// so a panic in any of them surfaces the same way a panicking main would,
// instead of silently wedging the process.
package supervisor

import (
	"github.com/ColonelBlimp/audiosender/internal/recovery"
	"github.com/sourcegraph/conc"
)

// Supervisor wraps a conc.WaitGroup; Go panics are converted into a fatal
// exit via internal/recovery instead of being re-raised on Wait, since
// there is no caller left to usefully observe them by the time Wait runs.
type Supervisor struct {
	wg conc.WaitGroup
}

// New returns an empty Supervisor.
func New() *Supervisor {
	return &Supervisor{}
}

// Go runs fn on a new goroutine supervised by s.
func (s *Supervisor) Go(fn func()) {
	s.wg.Go(func() {
		defer recovery.HandlePanic()
		fn()
	})
}

// Wait blocks until every supervised goroutine has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}
