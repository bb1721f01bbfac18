package node

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/memsync/pkg/log"
)

// Common lifecycle errors.
var (
	ErrNotRunning      = errors.New("memsync: not running")
	ErrAlreadyRunning  = errors.New("memsync: already running")
	ErrShutdownTimeout = errors.New("memsync: shutdown timeout")
)

// DefaultShutdownTimeout is the default maximum time to wait for graceful
// shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// State represents the lifecycle state of a node.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// lifecycle manages the node's state machine and its worker goroutines.
type lifecycle struct {
	mu     sync.RWMutex
	state  State
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger log.Logger
}

func newLifecycle(logger log.Logger) *lifecycle {
	return &lifecycle{state: StateStopped, logger: logger}
}

// State returns the current lifecycle state.
func (l *lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// transitionTo attempts to transition to a new state.
// Returns an error if the transition is not valid.
func (l *lifecycle) transitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	switch oldState {
	case StateStopped:
		if newState != StateStarting {
			l.mu.Unlock()
			return ErrNotRunning
		}
	case StateStarting:
		if newState != StateRunning && newState != StateCrashed {
			l.mu.Unlock()
			return ErrAlreadyRunning
		}
	case StateRunning:
		if newState != StateStopping && newState != StateCrashed {
			l.mu.Unlock()
			return ErrAlreadyRunning
		}
	case StateStopping:
		if newState != StateStopped && newState != StateCrashed {
			l.mu.Unlock()
			return ErrAlreadyRunning
		}
	case StateCrashed:
		if newState != StateStarting {
			l.mu.Unlock()
			return ErrNotRunning
		}
	}

	l.state = newState
	l.mu.Unlock()

	l.logger.Info("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

// setCancel stores the cancel function for graceful shutdown.
func (l *lifecycle) setCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// stop triggers graceful shutdown.
func (l *lifecycle) stop() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// addWorker increments the worker count.
func (l *lifecycle) addWorker() {
	l.wg.Add(1)
}

// workerDone decrements the worker count.
func (l *lifecycle) workerDone() {
	l.wg.Done()
}

// waitWithTimeout waits for all workers to finish with a timeout.
// Returns ErrShutdownTimeout if the timeout expires.
func (l *lifecycle) waitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, forcing exit", log.Duration("timeout", timeout))
		return ErrShutdownTimeout
	}
}
