// Package communicator implements the fixed-rate tick engine that owns a
// published state, applies envelopes received from its connections, runs
// queued commands and broadcasts the resulting state.
//
// Only the tick goroutine mutates the state and anything handlers own.
// Every other goroutine contributes by queueing envelopes and commands.
package communicator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/loop"
	"github.com/cbodonnell/tickrelay/pkg/messages"
	"github.com/cbodonnell/tickrelay/pkg/network"
	"github.com/cbodonnell/tickrelay/pkg/queue"
	"github.com/cbodonnell/tickrelay/pkg/state"
)

const (
	// DefaultTickRate is used when Options.TickRate is not set.
	DefaultTickRate = 20
	// DefaultMaxConnections is used when Options.MaxConnections is not set.
	DefaultMaxConnections = 10
)

// ErrStopped is returned when queueing work on a stopped communicator.
var ErrStopped = errors.New("communicator stopped")

// Options configures a Communicator. All hooks run on the tick goroutine
// except OnStop, which runs on the goroutine that calls Stop.
type Options[S any] struct {
	Name string
	// TickRate is the number of ticks per second.
	TickRate int
	// MaxConnections caps registered connections. Negative means unlimited.
	MaxConnections int
	// Authoritative communicators broadcast their state every tick.
	Authoritative bool
	Handlers      *CommandTable[S]
	Registry      *loop.Registry
	Codec         *messages.Codec
	Logger        *log.Logger

	// OnEnvelope runs after an inbound envelope has been applied.
	OnEnvelope func(c *Communicator[S], env *messages.Envelope)
	// BeforeCommands runs every tick after the inbound queue is drained and
	// before queued commands execute. Framework commands are enqueued here.
	BeforeCommands func(c *Communicator[S])
	// Publish builds the snapshot to publish after commands execute. The
	// snapshot is skipped when ok is false.
	Publish func(c *Communicator[S]) (snapshot S, ok bool)
	// OnDisconnect runs when a registered connection went away.
	OnDisconnect func(c *Communicator[S], connectionID int64)
	// OnStop runs once when the communicator is stopped.
	OnStop func(c *Communicator[S])
}

// Communicator is the tick engine.
type Communicator[S any] struct {
	*state.Subject[S]

	name           string
	tickRate       int
	tickPeriod     time.Duration
	maxConnections int
	authoritative  bool
	handlers       *CommandTable[S]
	registry       *loop.Registry
	codec          *messages.Codec
	logger         *log.Logger
	hooks          Options[S]

	receivedPackets *queue.InMemoryQueue[*messages.Envelope]
	commands        *queue.InMemoryQueue[*messages.Command]
	releases        *queue.InMemoryQueue[int64]

	socketsLock sync.RWMutex
	sockets     map[int64]*network.Connection

	runner   *loop.Runner
	ticks    atomic.Uint64
	stopped  atomic.Bool
	stopOnce sync.Once
}

// New creates a Communicator publishing initial. It does not start ticking.
func New[S any](initial S, opts Options[S]) *Communicator[S] {
	tickRate := opts.TickRate
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	maxConnections := opts.MaxConnections
	if maxConnections == 0 {
		maxConnections = DefaultMaxConnections
	}
	handlers := opts.Handlers
	if handlers == nil {
		handlers = NewCommandTable[S]()
	}
	name := opts.Name
	if name == "" {
		name = "communicator"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.With("communicator", name)
	}

	c := &Communicator[S]{
		Subject:         state.NewSubject(initial),
		name:            name,
		tickRate:        tickRate,
		tickPeriod:      time.Second / time.Duration(tickRate),
		maxConnections:  maxConnections,
		authoritative:   opts.Authoritative,
		handlers:        handlers,
		registry:        opts.Registry,
		codec:           opts.Codec,
		logger:          logger,
		hooks:           opts,
		receivedPackets: queue.NewInMemoryQueue[*messages.Envelope](0),
		commands:        queue.NewInMemoryQueue[*messages.Command](0),
		releases:        queue.NewInMemoryQueue[int64](0),
		sockets:         make(map[int64]*network.Connection),
	}
	c.runner = loop.New(name, c,
		loop.WithRegistry(opts.Registry),
		loop.WithLogger(logger),
	)
	return c
}

// Name returns the communicator name.
func (c *Communicator[S]) Name() string {
	return c.name
}

// TickRate returns the configured ticks per second.
func (c *Communicator[S]) TickRate() int {
	return c.tickRate
}

// TickPeriod returns the duration of one tick.
func (c *Communicator[S]) TickPeriod() time.Duration {
	return c.tickPeriod
}

// Ticks returns the number of completed ticks.
func (c *Communicator[S]) Ticks() uint64 {
	return c.ticks.Load()
}

// Handlers returns the command table.
func (c *Communicator[S]) Handlers() *CommandTable[S] {
	return c.handlers
}

// Codec returns the codec connections created for this communicator should use.
func (c *Communicator[S]) Codec() *messages.Codec {
	return c.codec
}

// Registry returns the loop registry, which may be nil.
func (c *Communicator[S]) Registry() *loop.Registry {
	return c.registry
}

// Logger returns the communicator's logger.
func (c *Communicator[S]) Logger() *log.Logger {
	return c.logger
}

// Start begins ticking on its own goroutine.
func (c *Communicator[S]) Start() loop.Handle {
	c.logger.Info("Starting %s at %d ticks per second", c.name, c.tickRate)
	return c.runner.Start()
}

// Done is closed once the tick loop has exited.
func (c *Communicator[S]) Done() <-chan struct{} {
	return c.runner.Done()
}

// Stopped reports whether Stop has been called.
func (c *Communicator[S]) Stopped() bool {
	return c.stopped.Load()
}

// Loop runs one tick and sleeps for the remainder of the tick period. An
// overrun tick proceeds immediately without accumulating a backlog.
func (c *Communicator[S]) Loop(ctx context.Context) error {
	start := time.Now()
	c.ProcessTick()
	remaining := c.tickPeriod - time.Since(start)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return loop.ErrStop
	}
}

// ProcessTick runs one tick synchronously: drain inbound envelopes, handle
// released connections, run the BeforeCommands hook, drain queued commands,
// publish and broadcast. It is called by the tick loop and must not be called
// concurrently with it.
//
// Releases are handled after the envelopes a connection queued before it
// went away, so OnDisconnect always observes their effects.
func (c *Communicator[S]) ProcessTick() {
	c.ticks.Add(1)

	changed := c.processReceivedPackets()
	c.processReleases()

	if c.hooks.BeforeCommands != nil && !c.stopped.Load() {
		c.hooks.BeforeCommands(c)
	}

	c.ExecuteAllCommands()

	if c.hooks.Publish != nil && !c.stopped.Load() {
		if snapshot, ok := c.hooks.Publish(c); ok {
			c.SetState(snapshot)
			changed = true
		}
	}

	if changed {
		c.NotifyObservers()
	}

	if c.authoritative && !c.stopped.Load() {
		c.broadcastState()
	}
}

func (c *Communicator[S]) processReleases() {
	ids, err := c.releases.ReadAllMessages()
	if err != nil {
		c.logger.Error("Failed to read released connections: %v", err)
		return
	}
	for _, id := range ids {
		if c.stopped.Load() {
			return
		}
		c.logger.Debug("Connection %d released", id)
		if c.hooks.OnDisconnect != nil {
			c.hooks.OnDisconnect(c, id)
		}
	}
}

// processReceivedPackets applies every queued envelope in arrival order and
// reports whether any carried a state.
func (c *Communicator[S]) processReceivedPackets() bool {
	pending, err := c.receivedPackets.ReadAllMessages()
	if err != nil {
		c.logger.Error("Failed to read received packets: %v", err)
		return false
	}

	changed := false
	for _, env := range pending {
		if c.stopped.Load() {
			return changed
		}
		if env.HasState() {
			var s S
			if err := json.Unmarshal(env.State, &s); err != nil {
				c.logger.Warn("Failed to decode state from connection %d: %v", env.ReceiverID, err)
			} else {
				c.SetState(s)
				changed = true
			}
		}
		if env.Command != nil {
			c.execute(env, env.Command)
		}
		if c.hooks.OnEnvelope != nil {
			c.hooks.OnEnvelope(c, env)
		}
	}
	return changed
}

func (c *Communicator[S]) execute(env *messages.Envelope, cmd *messages.Command) {
	if err := c.handlers.Execute(c, env, cmd); err != nil {
		c.logger.Warn("Failed to execute command %s: %v", cmd.Kind, err)
	}
}

func (c *Communicator[S]) broadcastState() {
	env, err := messages.NewStateEnvelope(c.GetState(), nil)
	if err != nil {
		c.logger.Error("Failed to build state envelope: %v", err)
		return
	}
	c.SendAllSockets(env)
}

// Deliver queues an envelope received by one of the connections.
func (c *Communicator[S]) Deliver(env *messages.Envelope) {
	if c.stopped.Load() {
		return
	}
	if err := c.receivedPackets.Enqueue(env); err != nil {
		c.logger.Error("Failed to enqueue received packet: %v", err)
	}
}

// GetReceivedPackets returns the inbound queue.
func (c *Communicator[S]) GetReceivedPackets() queue.Queue[*messages.Envelope] {
	return c.receivedPackets
}

// AddCommand queues a command to run during the next command drain.
func (c *Communicator[S]) AddCommand(cmd *messages.Command) error {
	if c.stopped.Load() {
		return ErrStopped
	}
	return c.commands.Enqueue(cmd)
}

// ExecuteAllCommands runs every command queued before the call, in order.
// Commands queued while running are kept for the next drain.
func (c *Communicator[S]) ExecuteAllCommands() {
	pending, err := c.commands.ReadAllMessages()
	if err != nil {
		c.logger.Error("Failed to read queued commands: %v", err)
		return
	}
	for _, cmd := range pending {
		if c.stopped.Load() {
			return
		}
		c.execute(nil, cmd)
	}
}

// PendingCommands returns the number of queued commands.
func (c *Communicator[S]) PendingCommands() int {
	return c.commands.Size()
}

// AddSocket registers a connection for broadcasts. Connections added after
// Stop are stopped immediately.
func (c *Communicator[S]) AddSocket(conn *network.Connection) {
	c.socketsLock.Lock()
	if c.stopped.Load() {
		c.socketsLock.Unlock()
		conn.Stop()
		return
	}
	c.sockets[conn.ID()] = conn
	c.socketsLock.Unlock()
	c.logger.Debug("Connection %d registered", conn.ID())
}

// TryAddSocket registers a connection if the communicator is running and below
// capacity, and reports whether it did. The check and the insert happen under
// one lock so concurrent acceptors cannot exceed MaxConnections.
func (c *Communicator[S]) TryAddSocket(conn *network.Connection) bool {
	c.socketsLock.Lock()
	if c.stopped.Load() || !c.hasCapacityLocked() {
		c.socketsLock.Unlock()
		return false
	}
	c.sockets[conn.ID()] = conn
	c.socketsLock.Unlock()
	c.logger.Debug("Connection %d registered", conn.ID())
	return true
}

// RemoveSocket deregisters a connection without stopping it and reports
// whether it was registered.
func (c *Communicator[S]) RemoveSocket(id int64) bool {
	c.socketsLock.Lock()
	defer c.socketsLock.Unlock()
	if _, ok := c.sockets[id]; !ok {
		return false
	}
	delete(c.sockets, id)
	return true
}

// CloseSocket deregisters and stops a connection.
func (c *Communicator[S]) CloseSocket(id int64) {
	c.socketsLock.RLock()
	conn, ok := c.sockets[id]
	c.socketsLock.RUnlock()
	if ok {
		conn.Stop()
	}
}

// Release is called by a connection that stopped. The connection is
// deregistered at once and OnDisconnect runs on the next tick.
func (c *Communicator[S]) Release(id int64) {
	if !c.RemoveSocket(id) {
		return
	}
	if c.stopped.Load() {
		return
	}
	if err := c.releases.Enqueue(id); err != nil {
		c.logger.Error("Failed to enqueue release of connection %d: %v", id, err)
	}
}

// HasSocket reports whether the connection with the given id is registered.
func (c *Communicator[S]) HasSocket(id int64) bool {
	c.socketsLock.RLock()
	defer c.socketsLock.RUnlock()
	_, ok := c.sockets[id]
	return ok
}

// connections returns a copy of the registry so callers can iterate while
// other goroutines add and remove.
func (c *Communicator[S]) connections() []*network.Connection {
	c.socketsLock.RLock()
	defer c.socketsLock.RUnlock()
	conns := make([]*network.Connection, 0, len(c.sockets))
	for _, conn := range c.sockets {
		conns = append(conns, conn)
	}
	return conns
}

// ConnectionIDs returns the registered connection ids in ascending order.
func (c *Communicator[S]) ConnectionIDs() []int64 {
	conns := c.connections()
	ids := make([]int64, 0, len(conns))
	for _, conn := range conns {
		ids = append(ids, conn.ID())
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ConnectionCount returns the number of registered connections.
func (c *Communicator[S]) ConnectionCount() int {
	c.socketsLock.RLock()
	defer c.socketsLock.RUnlock()
	return len(c.sockets)
}

// IsOpen reports whether another connection may be registered.
func (c *Communicator[S]) IsOpen() bool {
	if c.stopped.Load() {
		return false
	}
	c.socketsLock.RLock()
	defer c.socketsLock.RUnlock()
	return c.hasCapacityLocked()
}

func (c *Communicator[S]) hasCapacityLocked() bool {
	return c.maxConnections < 0 || len(c.sockets) < c.maxConnections
}

// SendAllSockets sends env once to every registered connection and returns
// how many sends succeeded. A connection removed while the broadcast is in
// progress is skipped. Failures are left to the next tick's broadcast.
func (c *Communicator[S]) SendAllSockets(env *messages.Envelope) int {
	sent := 0
	for _, conn := range c.connections() {
		if !c.HasSocket(conn.ID()) {
			continue
		}
		if err := conn.Send(env); err != nil {
			c.logger.Trace("Broadcast to connection %d failed: %v", conn.ID(), err)
			continue
		}
		sent++
	}
	return sent
}

// SendUnique sends env to the connection with the given id.
func (c *Communicator[S]) SendUnique(id int64, env *messages.Envelope) error {
	c.socketsLock.RLock()
	conn, ok := c.sockets[id]
	c.socketsLock.RUnlock()
	if !ok {
		return fmt.Errorf("connection %d is not registered", id)
	}
	return conn.Send(env)
}

// Stop ends ticking after the current iteration, clears both queues and stops
// every connection. It is idempotent and may be called from any goroutine,
// including a handler running on the tick goroutine.
func (c *Communicator[S]) Stop() {
	c.stopOnce.Do(func() {
		c.logger.Info("Stopping %s", c.name)
		c.stopped.Store(true)
		c.runner.Stop()
		c.receivedPackets.ClearQueue()
		c.commands.ClearQueue()

		c.socketsLock.Lock()
		conns := make([]*network.Connection, 0, len(c.sockets))
		for _, conn := range c.sockets {
			conns = append(conns, conn)
		}
		c.sockets = make(map[int64]*network.Connection)
		c.socketsLock.Unlock()

		for _, conn := range conns {
			conn.Stop()
		}
		c.releases.ClearQueue()

		if c.hooks.OnStop != nil {
			c.hooks.OnStop(c)
		}
	})
}

// Wait blocks until the tick loop has exited or ctx is done.
func (c *Communicator[S]) Wait(ctx context.Context) error {
	return c.runner.Wait(ctx)
}
