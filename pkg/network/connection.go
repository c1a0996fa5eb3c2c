package network

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/loop"
	"github.com/cbodonnell/tickrelay/pkg/messages"
)

// DefaultSendTimeout bounds a single write so a stalled peer holds a broadcast
// for at most this long. Owners ticking faster pass their tick period instead.
const DefaultSendTimeout = 100 * time.Millisecond

// Sink receives what a Connection reads and learns when it goes away.
// It is implemented by the owning Communicator; connections refer to their
// owner only through this interface and their own id.
type Sink interface {
	// Deliver queues a received, stamped envelope.
	Deliver(env *messages.Envelope)
	// Release asks the owner to forget the connection with the given id.
	Release(id int64)
}

// Connection is one peer link. It owns exactly one Stream and runs a read
// loop that decodes one envelope per iteration and delivers it to the Sink.
type Connection struct {
	id          int64
	stream      Stream
	sink        Sink
	codec       *messages.Codec
	runner      *loop.Runner
	sendTimeout time.Duration
	logger      *log.Logger

	sendLock sync.Mutex
	active   atomic.Bool
	stopOnce sync.Once

	// now is replaceable in tests.
	now func() time.Time
}

// ConnectionOptions configures a Connection.
type ConnectionOptions struct {
	Codec       *messages.Codec
	Registry    *loop.Registry
	SendTimeout time.Duration
	// ID overrides the random identity. Zero means generate one.
	ID int64
}

// NewConnection wraps an established stream. It does not start reading and
// does not register with the owner; callers add it to the owner's registry
// and then call Start.
func NewConnection(sink Sink, stream Stream, opts ConnectionOptions) (*Connection, error) {
	codec := opts.Codec
	if codec == nil {
		var err error
		codec, err = messages.DefaultCodec()
		if err != nil {
			return nil, fmt.Errorf("failed to create codec: %v", err)
		}
	}
	id := opts.ID
	if id == 0 {
		id = NewConnectionID()
	}
	sendTimeout := opts.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}

	c := &Connection{
		id:          id,
		stream:      stream,
		sink:        sink,
		codec:       codec,
		sendTimeout: sendTimeout,
		logger:      log.With("connection", id, "remote", stream.RemoteAddr()),
		now:         time.Now,
	}
	c.active.Store(true)
	c.runner = loop.New(fmt.Sprintf("connection-%d", id), c,
		loop.WithRegistry(opts.Registry),
		loop.WithLogger(c.logger),
		loop.WithInterrupt(func() {
			c.stream.Close()
		}),
	)
	return c, nil
}

// Dial actively connects to a TCP address and wraps the stream.
// A DNS or connect failure is returned and nothing is left running.
func Dial(ctx context.Context, sink Sink, addr string, opts ConnectionOptions) (*Connection, error) {
	stream, err := DialTCP(ctx, addr)
	if err != nil {
		return nil, err
	}
	c, err := NewConnection(sink, stream, opts)
	if err != nil {
		stream.Close()
		return nil, err
	}
	return c, nil
}

// NewConnectionID returns a random non-negative 63-bit identity. Collisions
// are possible but not expected in practice.
func NewConnectionID() int64 {
	for {
		if id := rand.Int64(); id != 0 {
			return id
		}
	}
}

// ID returns the connection identity.
func (c *Connection) ID() int64 {
	return c.id
}

// Active reports whether the connection has not been stopped.
func (c *Connection) Active() bool {
	return c.active.Load()
}

// Start begins the read loop on its own goroutine.
func (c *Connection) Start() loop.Handle {
	return c.runner.Start()
}

// Done is closed once the read loop has exited.
func (c *Connection) Done() <-chan struct{} {
	return c.runner.Done()
}

// Send stamps a copy of env with this connection's identity and the send
// time, encodes it and writes it. Errors are returned to the caller, which
// decides whether the next tick's re-broadcast is enough of a retry.
func (c *Connection) Send(env *messages.Envelope) error {
	if !c.active.Load() {
		return &messages.ErrConnectionClosed{}
	}
	out := env.Clone()
	out.StampOutgoing(c.id, c.now())
	b, err := c.codec.SerializeEnvelope(out)
	if err != nil {
		return err
	}

	c.sendLock.Lock()
	defer c.sendLock.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), c.sendTimeout)
	defer cancel()
	if err := c.stream.WriteFrame(ctx, b); err != nil {
		return fmt.Errorf("failed to send envelope on connection %d: %v", c.id, err)
	}
	return nil
}

// Loop reads exactly one envelope. Any read or decode failure while active
// is treated as the peer going away.
func (c *Connection) Loop(ctx context.Context) error {
	b, err := c.stream.ReadFrame(ctx)
	if err != nil {
		if c.active.Load() {
			if messages.IsConnectionClosed(err) {
				c.logger.Debug("Peer closed connection %d", c.id)
			} else {
				c.logger.Debug("Read failed on connection %d: %v", c.id, err)
			}
			c.Stop()
		}
		return nil
	}

	env, err := c.codec.DeserializeEnvelope(b)
	if err != nil {
		if c.active.Load() {
			c.logger.Warn("Dropping connection %d after undecodable envelope: %v", c.id, err)
			c.Stop()
		}
		return nil
	}
	env.StampIncoming(c.id, c.now())
	c.sink.Deliver(env)
	return nil
}

// Stop ends the read loop, asks the owner to forget this connection and
// closes the stream. It is idempotent.
func (c *Connection) Stop() {
	c.stopOnce.Do(func() {
		c.active.Store(false)
		c.runner.Stop()
		c.sink.Release(c.id)
		if err := c.stream.Close(); err != nil {
			c.logger.Trace("Failed to close stream for connection %d: %v", c.id, err)
		}
	})
}

// Equal reports whether both connections wrap the same stream.
func (c *Connection) Equal(other *Connection) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.stream == other.stream
}
