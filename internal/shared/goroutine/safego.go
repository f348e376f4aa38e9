// Package goroutine launches background work that must not crash the server.
package goroutine

import (
	"fmt"
	"runtime/debug"

	"github.com/skyguide-inc/skyguide/internal/shared/logger"
)

// SafeGo runs fn in a new goroutine and logs a recovered panic with its stack.
func SafeGo(log logger.Interface, name string, fn func()) {
	go func() {
		defer recoverAndLog(log, name)
		fn()
	}()
}

// SafeGoDone is SafeGo with a channel closed when fn returns or panics.
func SafeGoDone(log logger.Interface, name string, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer recoverAndLog(log, name)
		fn()
	}()
	return done
}

func recoverAndLog(log logger.Interface, name string) {
	if r := recover(); r != nil {
		log.Errorw("goroutine panicked",
			"goroutine", name,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)
	}
}
