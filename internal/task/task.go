// Package task manages the goroutines owned by a transport or a simulated device.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harp-tech/go-harp/logger"
)

// ErrStopped is returned when starting a task on a stopped Manager.
var ErrStopped = errors.New("task: manager already stopped")

// startTimeout bounds how long Start waits for the goroutine to begin.
const startTimeout = 5 * time.Second

// LoopFunc is one iteration of a looping task.
// It returns true to run again, or false to end the task.
type LoopFunc func() bool

// RunFunc is the body of a one-shot task. It must return once ctx is done.
type RunFunc func(ctx context.Context)

// ExitFunc is called after a task ends, whatever the reason.
type ExitFunc func()

// Manager manages the lifecycle of goroutines. Every task observes the
// manager context; Stop cancels it and Wait blocks until all tasks returned.
//
// Example:
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.StartLoop("reader", func() bool {
//	    return readOnce() == nil
//	}, nil)
//
//	mgr.Stop()
//	mgr.Wait()
type Manager struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // guards wg.Add against Wait
}

// NewManager creates a Manager whose tasks are cancelled with ctx.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	mgr := &Manager{logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// StartLoop starts a goroutine calling fn until it returns false or the
// manager is stopped. onExit, when not nil, runs after the loop ends.
func (mgr *Manager) StartLoop(name string, fn LoopFunc, onExit ExitFunc) error {
	return mgr.start(name, func() {
		if onExit != nil {
			defer onExit()
		}

		mgr.callWithRecover(name, func() {
			for {
				select {
				case <-mgr.ctx.Done():
					return
				default:
				}
				if !fn() {
					return
				}
			}
		})
	})
}

// Start starts a goroutine running fn once with the manager context.
func (mgr *Manager) Start(name string, fn RunFunc) error {
	return mgr.start(name, func() {
		mgr.callWithRecover(name, func() { fn(mgr.ctx) })
	})
}

// Stop signals all running goroutines to end.
func (mgr *Manager) Stop() {
	mgr.cancel()
}

// Wait waits for all goroutines to terminate.
func (mgr *Manager) Wait() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	mgr.wg.Wait()
}

// WaitTimeout waits for all goroutines up to d and reports whether they ended.
func (mgr *Manager) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

// TaskCount returns the number of currently running goroutines.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) start(name string, body func()) error {
	mgr.logger.Debug("start task", "name", name)

	if mgr.ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrStopped, name)
	}

	mgr.mu.RLock()
	mgr.wg.Add(1)
	mgr.mu.RUnlock()

	started := make(chan struct{})
	go func() {
		defer mgr.wg.Done()

		mgr.count.Add(1)
		close(started)

		defer func() {
			mgr.count.Add(-1)
			mgr.logger.Debug("task terminated", "name", name, "task_count", mgr.TaskCount())
		}()

		body()
	}()

	select {
	case <-started:
		return nil
	case <-time.After(startTimeout):
		return fmt.Errorf("task: timeout waiting for %s to start", name)
	}
}

func (mgr *Manager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}
