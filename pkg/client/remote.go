// Package client joins a hosted arena session. A RemoteChannel owns a
// non-authoritative communicator with a single connection to the host and
// turns player intents into commands on the wire.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/communicator"
	"github.com/cbodonnell/tickrelay/pkg/game"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/loop"
	"github.com/cbodonnell/tickrelay/pkg/messages"
	"github.com/cbodonnell/tickrelay/pkg/network"
	"github.com/cbodonnell/tickrelay/pkg/server"
	"github.com/cbodonnell/tickrelay/pkg/state"
)

const (
	// DefaultTickRate is the client communicator rate. Clients tick faster
	// than the server so received snapshots are applied promptly.
	DefaultTickRate = 120
	// DefaultDisconnectGrace is how long Disconnect waits for the host to
	// acknowledge before stopping locally.
	DefaultDisconnectGrace = time.Second
)

// Options configures a RemoteChannel.
type Options struct {
	Name string
	// Host marks this player as the session host. The session shuts down
	// when the host leaves.
	Host            bool
	TickRate        int
	Registry        *loop.Registry
	Codec           *messages.Codec
	DisconnectGrace time.Duration
}

// RemoteChannel is the entry point game code uses to talk to a host.
type RemoteChannel struct {
	comm    *game.ClientCommunicator
	session *game.ClientSession
	conn    *network.Connection
	cache   *state.Cache[types.GameState]
	grace   time.Duration
	logger  *log.Logger

	disconnectOnce sync.Once
}

// Join dials addr, starts the client communicator and sends the connect
// command. Addresses starting with ws:// or wss:// are dialed as WebSocket
// URLs, anything else as TCP. Nothing is left running when Join fails.
func Join(ctx context.Context, addr string, opts Options) (*RemoteChannel, error) {
	tickRate := opts.TickRate
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	grace := opts.DisconnectGrace
	if grace <= 0 {
		grace = DefaultDisconnectGrace
	}
	codec := opts.Codec
	if codec == nil {
		var err error
		codec, err = messages.DefaultCodec()
		if err != nil {
			return nil, fmt.Errorf("failed to create codec: %v", err)
		}
	}

	stream, err := dial(ctx, addr)
	if err != nil {
		return nil, err
	}

	session := game.NewClientSession()
	r := &RemoteChannel{
		session: session,
		grace:   grace,
		logger:  log.With("remote", addr),
	}
	r.comm = communicator.New(types.GameState{}, communicator.Options[types.GameState]{
		Name:           "client-game",
		TickRate:       tickRate,
		MaxConnections: 1,
		Handlers:       session.Handlers(),
		Registry:       opts.Registry,
		Codec:          codec,
		Logger:         r.logger,
		OnDisconnect: func(c *game.ClientCommunicator, connectionID int64) {
			session.MarkEnded("connection lost")
			c.Stop()
		},
		OnStop: func(c *game.ClientCommunicator) {
			session.MarkEnded("stopped")
		},
	})
	r.cache = state.NewCache[types.GameState](r.comm)
	r.comm.AttachObserver(r.cache)

	conn, err := network.NewConnection(r.comm, stream, network.ConnectionOptions{
		Codec:       codec,
		Registry:    opts.Registry,
		SendTimeout: r.comm.TickPeriod(),
	})
	if err != nil {
		stream.Close()
		return nil, err
	}
	r.conn = conn
	r.comm.AddSocket(conn)
	conn.Start()
	r.comm.Start()

	connect, err := messages.NewCommand(types.CommandConnect, types.ConnectPayload{
		Name: opts.Name,
		Host: opts.Host,
	})
	if err != nil {
		r.comm.Stop()
		return nil, err
	}
	if err := r.SendCommand(connect); err != nil {
		r.comm.Stop()
		return nil, fmt.Errorf("failed to send connect to %s: %v", addr, err)
	}
	r.logger.Info("Joined %s", addr)
	return r, nil
}

func dial(ctx context.Context, addr string) (network.Stream, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return network.DialWebSocket(ctx, addr)
	}
	return network.DialTCP(ctx, addr)
}

// SendCommand sends cmd to the host without a state.
func (r *RemoteChannel) SendCommand(cmd *messages.Command) error {
	if r.comm.Stopped() {
		return communicator.ErrStopped
	}
	return r.conn.Send(messages.NewEnvelope(nil, cmd))
}

// Move asks the host to move this player's tank one step.
func (r *RemoteChannel) Move(dir types.Direction) error {
	cmd, err := messages.NewCommand(types.CommandMoveUnit, types.MoveUnitPayload{Direction: dir})
	if err != nil {
		return err
	}
	return r.SendCommand(cmd)
}

// Fire asks the host to fire this player's tank.
func (r *RemoteChannel) Fire() error {
	return r.SendCommand(&messages.Command{Kind: types.CommandFire})
}

// WaitJoined blocks until the host has sent the map, the session ended or
// ctx is done.
func (r *RemoteChannel) WaitJoined(ctx context.Context) error {
	select {
	case <-r.session.Joined():
		return nil
	case <-r.session.Ended():
		return fmt.Errorf("session ended before joining: %s", r.session.EndReason())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the latest snapshot received from the host.
func (r *RemoteChannel) State() types.GameState {
	return r.cache.Get()
}

// Cache returns the observer holding the local copy of the published state.
func (r *RemoteChannel) Cache() *state.Cache[types.GameState] {
	return r.cache
}

// Session returns what the client learned about its session.
func (r *RemoteChannel) Session() *game.ClientSession {
	return r.session
}

// Communicator returns the client tick engine.
func (r *RemoteChannel) Communicator() *game.ClientCommunicator {
	return r.comm
}

// Disconnect tells the host this player is leaving, waits up to the grace
// period for the host to close the link and stops. It is idempotent.
func (r *RemoteChannel) Disconnect() {
	r.disconnectOnce.Do(func() {
		if err := r.SendCommand(&messages.Command{Kind: types.CommandDisconnect}); err != nil {
			r.logger.Debug("Failed to send disconnect: %v", err)
		} else {
			timer := time.NewTimer(r.grace)
			select {
			case <-r.session.Ended():
			case <-timer.C:
			}
			timer.Stop()
		}
		r.comm.Stop()
	})
}

// Done is closed once the client tick loop has exited.
func (r *RemoteChannel) Done() <-chan struct{} {
	return r.comm.Done()
}

// HostAndJoin hosts a session and joins it locally as the host player.
func HostAndJoin(ctx context.Context, hostOpts server.Options, joinOpts Options) (*server.Session, *RemoteChannel, error) {
	session, err := server.Host(hostOpts)
	if err != nil {
		return nil, nil, err
	}
	joinOpts.Host = true
	if joinOpts.Registry == nil {
		joinOpts.Registry = session.Registry()
	}
	remote, err := Join(ctx, localAddr(session.Addr()), joinOpts)
	if err != nil {
		session.Stop()
		return nil, nil, err
	}
	return session, remote, nil
}

// localAddr turns a wildcard listen address into one that can be dialed.
func localAddr(addr string) string {
	if strings.HasPrefix(addr, "[::]:") {
		return "127.0.0.1:" + strings.TrimPrefix(addr, "[::]:")
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		return "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	}
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return addr
}
