package network

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/loop"
	"github.com/cbodonnell/tickrelay/pkg/messages"
	"golang.org/x/sync/errgroup"
)

// Owner is the side of a Communicator an Acceptor needs.
type Owner interface {
	Sink
	// IsOpen reports whether another connection may be registered.
	IsOpen() bool
	// TryAddSocket registers a connection for broadcasts unless the owner
	// is full or stopped, and reports whether it did.
	TryAddSocket(conn *Connection) bool
}

// Acceptor accepts inbound streams on a Listener until the owner is full
// or it is stopped. Each stream is wrapped in a Connection, registered with
// the owner and started from a bounded worker pool.
type Acceptor struct {
	listener Listener
	owner    Owner
	codec    *messages.Codec
	registry *loop.Registry
	timeout  time.Duration
	pool     *errgroup.Group
	runner   *loop.Runner
	logger   *log.Logger

	// poolLock orders pool submissions before the final Wait.
	poolLock sync.Mutex
	closing  atomic.Bool
	stopOnce sync.Once
	accepted atomic.Int64
}

// AcceptorOptions configures an Acceptor.
type AcceptorOptions struct {
	Codec    *messages.Codec
	Registry *loop.Registry

	// SendTimeout is passed to every accepted Connection.
	SendTimeout time.Duration
	// PoolSize bounds concurrent connection setup. Zero means a quarter of
	// the available CPUs, at least one.
	PoolSize    int
}

// DefaultPoolSize returns a quarter of the available CPUs, at least one.
func DefaultPoolSize() int {
	n := runtime.NumCPU() / 4
	if n < 1 {
		return 1
	}
	return n
}

func NewAcceptor(listener Listener, owner Owner, opts AcceptorOptions) *Acceptor {
	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = DefaultPoolSize()
	}
	pool := &errgroup.Group{}
	pool.SetLimit(poolSize)

	a := &Acceptor{
		listener: listener,
		owner:    owner,
		codec:    opts.Codec,
		registry: opts.Registry,
		timeout:  opts.SendTimeout,
		pool:     pool,
		logger:   log.With("acceptor", listener.Addr()),
	}
	a.runner = loop.New("acceptor-"+listener.Addr(), a,
		loop.WithRegistry(opts.Registry),
		loop.WithLogger(a.logger),
		loop.WithInterrupt(func() {
			a.listener.Close()
		}),
	)
	return a
}

// Start begins accepting on its own goroutine.
func (a *Acceptor) Start() loop.Handle {
	a.logger.Info("Accepting connections on %s", a.listener.Addr())
	return a.runner.Start()
}

// Done is closed once the accept loop has exited.
func (a *Acceptor) Done() <-chan struct{} {
	return a.runner.Done()
}

// Active reports whether the accept loop is running.
func (a *Acceptor) Active() bool {
	return a.runner.Active()
}

// Accepted returns how many connections have been registered.
func (a *Acceptor) Accepted() int64 {
	return a.accepted.Load()
}

// Addr returns the listener address.
func (a *Acceptor) Addr() string {
	return a.listener.Addr()
}

// Loop accepts at most one connection per iteration.
func (a *Acceptor) Loop(ctx context.Context) error {
	if !a.owner.IsOpen() {
		a.logger.Info("Connection capacity reached, no longer accepting on %s", a.listener.Addr())
		a.Stop()
		return nil
	}

	stream, err := a.listener.Accept(ctx)
	if err != nil {
		if errors.Is(err, ErrListenerClosed) || a.runner.Stopped() {
			a.runner.Stop()
			return nil
		}
		a.logger.Error("Failed to accept connection: %v", err)
		return nil
	}

	if a.closing.Load() || !a.owner.IsOpen() {
		a.logger.Debug("Rejecting connection from %s", stream.RemoteAddr())
		stream.Close()
		return nil
	}

	conn, err := NewConnection(a.owner, stream, ConnectionOptions{
		Codec:       a.codec,
		Registry:    a.registry,
		SendTimeout: a.timeout,
	})
	if err != nil {
		stream.Close()
		return fmt.Errorf("failed to wrap accepted stream: %v", err)
	}
	if !a.owner.TryAddSocket(conn) {
		// another acceptor on the same owner took the last slot
		a.logger.Info("Connection capacity reached, no longer accepting on %s", a.listener.Addr())
		conn.Stop()
		a.Stop()
		return nil
	}
	a.accepted.Add(1)
	a.logger.Debug("Accepted connection %d from %s", conn.ID(), stream.RemoteAddr())

	a.poolLock.Lock()
	defer a.poolLock.Unlock()
	if a.closing.Load() {
		conn.Stop()
		return nil
	}
	a.pool.Go(func() error {
		conn.Start()
		return nil
	})
	return nil
}

// Stop stops accepting new work, force-stops the accept loop and closes
// the listener. It is idempotent and safe to call from the accept loop.
func (a *Acceptor) Stop() {
	a.stopOnce.Do(func() {
		a.poolLock.Lock()
		a.closing.Store(true)
		a.poolLock.Unlock()
		a.runner.ForceStop()
		if err := a.listener.Close(); err != nil {
			a.logger.Trace("Failed to close listener %s: %v", a.listener.Addr(), err)
		}
		// Connections already handed to the pool start quickly; wait for them
		// so none is left half started.
		a.pool.Wait()
	})
}
