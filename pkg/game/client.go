package game

import (
	"sync"

	"github.com/cbodonnell/tickrelay/pkg/communicator"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/messages"
)

// ClientCommunicator is the non-authoritative tick engine on a client.
type ClientCommunicator = communicator.Communicator[types.GameState]

// ClientSession holds what a client learns about its session beyond the
// published state. Handlers write it on the tick goroutine and any goroutine
// may read it.
type ClientSession struct {
	lock     sync.RWMutex
	playerID int64
	mapName  string
	tickRate int
	gameOver bool
	winner   int64

	joined     chan struct{}
	joinOnce   sync.Once
	ended      chan struct{}
	endOnce    sync.Once
	endReason  string
	reasonLock sync.Mutex
}

func NewClientSession() *ClientSession {
	return &ClientSession{
		joined: make(chan struct{}),
		ended:  make(chan struct{}),
	}
}

// Handlers returns the command table for a client communicator.
func (s *ClientSession) Handlers() *communicator.CommandTable[types.GameState] {
	handlers := communicator.NewCommandTable[types.GameState]()
	handlers.Register(types.CommandLoadMap, s.handleLoadMap)
	handlers.Register(types.CommandGameOver, s.handleGameOver)
	handlers.Register(types.CommandServerShutdown, s.handleServerShutdown)
	return handlers
}

func (s *ClientSession) handleLoadMap(c *ClientCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	var payload types.LoadMapPayload
	if err := cmd.Decode(&payload); err != nil {
		return err
	}
	s.lock.Lock()
	s.playerID = payload.PlayerID
	s.mapName = payload.MapName
	s.tickRate = payload.TickRate
	s.lock.Unlock()
	log.Info("Joined map %s as player %d", payload.MapName, payload.PlayerID)
	s.joinOnce.Do(func() { close(s.joined) })
	return nil
}

func (s *ClientSession) handleGameOver(c *ClientCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	var payload types.GameOverPayload
	if err := cmd.Decode(&payload); err != nil {
		return err
	}
	s.lock.Lock()
	s.gameOver = true
	s.winner = payload.Winner
	s.lock.Unlock()
	log.Info("Game over, winner %d", payload.Winner)
	return nil
}

func (s *ClientSession) handleServerShutdown(c *ClientCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	s.MarkEnded("server shut down")
	c.Stop()
	return nil
}

// MarkEnded records that the session is over. Only the first reason is kept.
func (s *ClientSession) MarkEnded(reason string) {
	s.endOnce.Do(func() {
		s.reasonLock.Lock()
		s.endReason = reason
		s.reasonLock.Unlock()
		log.Info("Session ended: %s", reason)
		close(s.ended)
	})
}

// Joined is closed once the server has sent the map.
func (s *ClientSession) Joined() <-chan struct{} {
	return s.joined
}

// Ended is closed once the session is over.
func (s *ClientSession) Ended() <-chan struct{} {
	return s.ended
}

// EndReason returns why the session ended, or "" while it is running.
func (s *ClientSession) EndReason() string {
	s.reasonLock.Lock()
	defer s.reasonLock.Unlock()
	return s.endReason
}

// PlayerID returns the id the server assigned, or zero before joining.
func (s *ClientSession) PlayerID() int64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.playerID
}

func (s *ClientSession) MapName() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.mapName
}

// ServerTickRate returns the server tick rate announced on join.
func (s *ClientSession) ServerTickRate() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tickRate
}

// GameOver reports whether the server announced the end of the match.
func (s *ClientSession) GameOver() (bool, int64) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.gameOver, s.winner
}
