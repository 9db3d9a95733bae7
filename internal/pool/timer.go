// Package pool holds sync.Pool backed allocators for timers and read buffers.
package pool

import (
	"sync"
	"time"
)

var timerPool sync.Pool

// GetTimer returns a stopped-and-reset timer firing after d.
// Return it with PutTimer once the caller no longer selects on its channel.
func GetTimer(d time.Duration) *time.Timer {
	t, ok := timerPool.Get().(*time.Timer)
	if !ok {
		return time.NewTimer(d)
	}

	t.Reset(d)

	return t
}

// PutTimer stops t and puts it back to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if t == nil {
		return
	}

	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	timerPool.Put(t)
}
