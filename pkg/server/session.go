// Package server hosts an arena session: an authoritative communicator fed
// by a TCP acceptor and, optionally, a WebSocket acceptor.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/game"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/loop"
	"github.com/cbodonnell/tickrelay/pkg/messages"
	"github.com/cbodonnell/tickrelay/pkg/network"
	"github.com/cbodonnell/tickrelay/pkg/workers"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// DefaultPort is the TCP port sessions listen on by default.
const DefaultPort = 18000

// WebSocketPath is the route browser peers upgrade on.
const WebSocketPath = "/ws"

// Options configures a hosted session.
type Options struct {
	// SessionID defaults to a random UUID.
	SessionID string
	// Addr is the TCP listen address. Port 0 picks a free port.
	Addr string
	// WebSocketAddr enables the WebSocket acceptor when set.
	WebSocketAddr  string
	MapName        string
	Mode           game.Mode
	TickRate       int
	MaxConnections int
	PoolSize       int
	Registry       *loop.Registry
	Codec          *messages.Codec
	ResultsChan    chan<- workers.SaveMatchResultRequest
}

// Session is a running authoritative host.
type Session struct {
	id        string
	game      *game.GameManager
	acceptors []*network.Acceptor
	wsServer  *http.Server
	wsAddr    string
	registry  *loop.Registry
	startedAt time.Time
	logger    *log.Logger

	stopAcceptorsOnce sync.Once
}

// Host binds the listeners, starts the communicator and starts accepting.
// On failure every component already started is stopped again.
func Host(opts Options) (*Session, error) {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	addr := opts.Addr
	if addr == "" {
		addr = fmt.Sprintf(":%d", DefaultPort)
	}
	registry := opts.Registry
	if registry == nil {
		registry = loop.NewRegistry()
	}
	codec := opts.Codec
	if codec == nil {
		var err error
		codec, err = messages.DefaultCodec()
		if err != nil {
			return nil, fmt.Errorf("failed to create codec: %v", err)
		}
	}

	s := &Session{
		id:       sessionID,
		registry: registry,
		logger:   log.With("session", sessionID),
	}

	gm, err := game.NewGameManager(game.NewGameManagerOptions{
		SessionID:      sessionID,
		MapName:        opts.MapName,
		Mode:           opts.Mode,
		TickRate:       opts.TickRate,
		MaxConnections: opts.MaxConnections,
		Registry:       registry,
		Codec:          codec,
		ResultsChan:    opts.ResultsChan,
		OnShutdown:     s.stopAcceptors,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create game: %v", err)
	}
	s.game = gm
	comm := gm.Communicator()
	acceptorOpts := network.AcceptorOptions{
		Codec:       codec,
		Registry:    registry,
		SendTimeout: comm.TickPeriod(),
		PoolSize:    opts.PoolSize,
	}

	tcpListener, err := network.ListenTCP(addr)
	if err != nil {
		return nil, err
	}
	s.acceptors = append(s.acceptors, network.NewAcceptor(tcpListener, comm, acceptorOpts))

	if opts.WebSocketAddr != "" {
		wsListener, err := s.listenWebSocket(opts.WebSocketAddr)
		if err != nil {
			tcpListener.Close()
			return nil, err
		}
		s.acceptors = append(s.acceptors, network.NewAcceptor(wsListener, comm, acceptorOpts))
	}

	s.startedAt = time.Now()
	comm.Start()
	for _, a := range s.acceptors {
		a.Start()
	}
	s.logger.Info("Hosting session %s on %s", sessionID, tcpListener.Addr())
	return s, nil
}

func (s *Session) listenWebSocket(addr string) (*network.WebSocketListener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on WebSocket address %s: %v", addr, err)
	}
	s.wsAddr = ln.Addr().String()
	wsListener := network.NewWebSocketListener(s.wsAddr)

	router := mux.NewRouter()
	router.Handle(WebSocketPath, wsListener).Methods(http.MethodGet)
	s.wsServer = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := s.wsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("WebSocket server error: %v", err)
		}
	}()
	s.logger.Info("WebSocket listener bound on %s%s", s.wsAddr, WebSocketPath)
	return wsListener, nil
}

// stopAcceptors runs on the tick goroutine during shutdown.
func (s *Session) stopAcceptors() {
	s.stopAcceptorsOnce.Do(func() {
		for _, a := range s.acceptors {
			a.Stop()
		}
		if s.wsServer != nil {
			if err := s.wsServer.Close(); err != nil {
				s.logger.Trace("Failed to close WebSocket server: %v", err)
			}
		}
	})
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Addr returns the bound TCP address.
func (s *Session) Addr() string {
	return s.acceptors[0].Addr()
}

// WebSocketURL returns the ws:// URL peers dial, or "" when disabled.
func (s *Session) WebSocketURL() string {
	if s.wsAddr == "" {
		return ""
	}
	return "ws://" + s.wsAddr + WebSocketPath
}

// Game returns the game manager.
func (s *Session) Game() *game.GameManager {
	return s.game
}

// State returns the latest published snapshot.
func (s *Session) State() types.GameState {
	return s.game.Communicator().GetState()
}

// Registry returns the loop registry shared by every component of the session.
func (s *Session) Registry() *loop.Registry {
	return s.registry
}

// Stop broadcasts the shutdown, stops accepting and stops the communicator.
// It is idempotent.
func (s *Session) Stop() {
	s.game.Shutdown()
}

// Done is closed once the communicator's tick loop has exited.
func (s *Session) Done() <-chan struct{} {
	return s.game.Communicator().Done()
}

// Wait blocks until the session has stopped or ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	return s.game.Communicator().Wait(ctx)
}

// Status is a point-in-time summary of a session.
type Status struct {
	SessionID   string        `json:"session_id"`
	Addr        string        `json:"addr"`
	WebSocket   string        `json:"websocket,omitempty"`
	MapName     string        `json:"map_name"`
	Mode        string        `json:"mode"`
	TickRate    int           `json:"tick_rate"`
	Ticks       uint64        `json:"ticks"`
	Connections int           `json:"connections"`
	Open        bool          `json:"open"`
	Accepting   bool          `json:"accepting"`
	Stopped     bool          `json:"stopped"`
	GameOver    bool          `json:"game_over"`
	UptimeMs    int64         `json:"uptime_ms"`
	Loops       []loop.Handle `json:"loops"`
}

// Status summarizes the session. It is safe to call from any goroutine.
func (s *Session) Status() Status {
	comm := s.game.Communicator()
	state := comm.GetState()
	accepting := false
	for _, a := range s.acceptors {
		accepting = accepting || a.Active()
	}
	return Status{
		SessionID:   s.id,
		Addr:        s.Addr(),
		WebSocket:   s.WebSocketURL(),
		MapName:     state.MapName,
		Mode:        state.Mode,
		TickRate:    comm.TickRate(),
		Ticks:       comm.Ticks(),
		Connections: comm.ConnectionCount(),
		Open:        comm.IsOpen(),
		Accepting:   accepting,
		Stopped:     comm.Stopped(),
		GameOver:    state.GameOver,
		UptimeMs:    time.Since(s.startedAt).Milliseconds(),
		Loops:       s.registry.Active(),
	}
}
