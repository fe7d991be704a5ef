package kernel

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrPanicRecovered marks errors produced from a recovered handler or hook panic.
var ErrPanicRecovered = errors.New("kernel: panic recovered")

// runSafely executes fn and converts panics into returned errors tagged with scope.
// It is used at goroutine and lifecycle boundaries to prevent process-wide crashes.
func runSafely(scope string, fn func() error) (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = fmt.Errorf("%s: %w: %v\n%s", scope, ErrPanicRecovered, recovered, debug.Stack())
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", scope, err)
	}

	return nil
}
