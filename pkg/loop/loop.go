// Package loop runs a Body repeatedly on its own goroutine until stopped.
//
// A Runner owns the lifecycle explicitly: Start spawns exactly one worker,
// Stop requests a cooperative exit after the current iteration, and ForceStop
// additionally cancels the iteration context and invokes an interrupt hook so
// that bodies blocked on I/O return promptly.
package loop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cbodonnell/tickrelay/pkg/log"
)

// ErrStop can be returned by a Body to end the loop without logging an error.
var ErrStop = errors.New("loop stopped")

// Body is one iteration of work. It is invoked repeatedly until the Runner
// is stopped or it returns a non-nil error.
type Body interface {
	Loop(ctx context.Context) error
}

// BodyFunc adapts a function to the Body interface.
type BodyFunc func(ctx context.Context) error

func (f BodyFunc) Loop(ctx context.Context) error {
	return f(ctx)
}

// Runner drives a Body on a dedicated goroutine.
type Runner struct {
	name      string
	body      Body
	interrupt func()
	registry  *Registry
	logger    *log.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopped   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	handle Handle
}

// Option configures a Runner.
type Option func(*Runner)

// WithInterrupt sets a hook called by ForceStop to unblock a body that is
// waiting on I/O, e.g. closing a socket or listener.
func WithInterrupt(interrupt func()) Option {
	return func(r *Runner) {
		r.interrupt = interrupt
	}
}

// WithRegistry records the running loop in the given registry.
func WithRegistry(registry *Registry) Option {
	return func(r *Runner) {
		r.registry = registry
	}
}

// WithLogger sets the logger used for loop lifecycle events.
func WithLogger(logger *log.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// New creates a Runner for the given body. It does not start it.
func New(name string, body Body, opts ...Option) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		name:   name,
		body:   body,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.With("loop", name)
	}
	return r
}

// Start spawns the worker goroutine. Calling Start more than once, or after
// the Runner was stopped, is a no-op that returns the original handle.
func (r *Runner) Start() Handle {
	r.startOnce.Do(func() {
		if r.stopped.Load() {
			close(r.done)
			return
		}
		r.started.Store(true)
		if r.registry != nil {
			r.handle = r.registry.add(r.name)
		} else {
			r.handle = Handle{Name: r.name}
		}
		go r.run()
	})
	return r.handle
}

// Stop requests the loop to exit after its current iteration. It succeeds
// promptly only if the body is not blocked.
func (r *Runner) Stop() {
	if r.stopped.CompareAndSwap(false, true) {
		r.logger.Trace("Stop requested for loop %s", r.name)
	}
	r.closeIfNeverStarted()
}

// ForceStop requests the loop to exit and interrupts a blocked body by
// cancelling the iteration context and calling the interrupt hook.
func (r *Runner) ForceStop() {
	r.stopped.Store(true)
	r.stopOnce.Do(func() {
		r.logger.Trace("Force stop requested for loop %s", r.name)
		r.cancel()
		if r.interrupt != nil {
			r.interrupt()
		}
	})
	r.closeIfNeverStarted()
}

func (r *Runner) closeIfNeverStarted() {
	// A Runner stopped before Start never spawns a worker, so Done must still close.
	r.startOnce.Do(func() {
		close(r.done)
	})
}

// Stopped reports whether a stop has been requested.
func (r *Runner) Stopped() bool {
	return r.stopped.Load()
}

// Active reports whether the loop has been started and not yet asked to stop.
func (r *Runner) Active() bool {
	return r.started.Load() && !r.stopped.Load()
}

// Done is closed once the worker goroutine has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the worker goroutine has exited or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Name returns the loop name.
func (r *Runner) Name() string {
	return r.name
}

func (r *Runner) run() {
	defer func() {
		if r.registry != nil {
			r.registry.remove(r.handle.ID)
		}
		r.cancel()
		close(r.done)
	}()

	r.logger.Debug("Loop %s started", r.name)
	for !r.stopped.Load() {
		if err := r.iterate(); err != nil {
			if !errors.Is(err, ErrStop) {
				r.logger.Error("Loop %s exited: %v", r.name, err)
			}
			r.stopped.Store(true)
			break
		}
	}
	r.logger.Debug("Loop %s stopped", r.name)
}

// iterate runs the body once, converting a panic into an error so that a
// failing body ends only its own loop.
func (r *Runner) iterate() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in loop body: %v", p)
		}
	}()
	return r.body.Loop(r.ctx)
}
