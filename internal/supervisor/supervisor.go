// Package supervisor spawns the daemon's long-running tasks and logs their terminal status.
package supervisor

import (
	"context"

	"github.com/nwaters/catchmail/lalog"
)

// Task is a long-running function a Supervisor can spawn. It should run until ctx is cancelled or
// it encounters a fatal error, and return that error (nil on ordinary cancellation).
type Task func(ctx context.Context) error

// Handle refers to a task spawned by Spawn.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Wait blocks until the spawned task returns, and yields the error it terminated with.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

// Supervisor spawns named tasks and logs their outcome. There is no cancellation or retry: the
// process terminates when main exits, and a task that panics propagates the panic to the caller of
// the goroutine runtime, crashing the process.
type Supervisor struct {
	logger lalog.Logger
}

// New constructs a Supervisor.
func New() *Supervisor {
	return &Supervisor{logger: lalog.Logger{ComponentName: "supervisor.Supervisor"}}
}

// Spawn starts task in its own goroutine under name, logging "<name> completed" on success or
// "<name>: <error>" on failure. The error is swallowed — callers that need to react to task failure
// should block on the returned Handle's Wait.
func (s *Supervisor) Spawn(ctx context.Context, name string, task Task) *Handle {
	h := &Handle{name: name, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		err := task(ctx)
		h.err = err
		if err != nil {
			s.logger.Info(name, nil, "%s: %v", name, err)
		} else {
			s.logger.Info(name, nil, "%s completed", name)
		}
	}()
	return h
}
