// Package game implements a tank arena on top of the communicator: the
// authoritative server handlers that own a World, and the client handlers
// that follow the published GameState.
package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/cbodonnell/tickrelay/pkg/communicator"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/loop"
	"github.com/cbodonnell/tickrelay/pkg/messages"
	"github.com/cbodonnell/tickrelay/pkg/repositories/models"
	"github.com/cbodonnell/tickrelay/pkg/workers"
)

// ServerCommunicator is the authoritative tick engine for the arena.
type ServerCommunicator = communicator.Communicator[types.GameState]

// GameManager wires a World into an authoritative communicator.
type GameManager struct {
	world        *World
	comm         *ServerCommunicator
	resultsChan  chan<- workers.SaveMatchResultRequest
	onShutdown   func()
	shutdownOnce sync.Once
	logger       *log.Logger
}

// NewGameManagerOptions contains options for creating a new GameManager.
type NewGameManagerOptions struct {
	SessionID      string
	MapName        string
	Mode           Mode
	TickRate       int
	MaxConnections int
	Registry       *loop.Registry
	Codec          *messages.Codec
	// ResultsChan receives the match result when the game ends. Sends never
	// block the tick; a full channel drops the result.
	ResultsChan chan<- workers.SaveMatchResultRequest
	// OnShutdown runs on the tick goroutine when the server shuts down, before
	// the communicator stops. Acceptors are stopped here.
	OnShutdown func()
}

func NewGameManager(opts NewGameManagerOptions) (*GameManager, error) {
	mapName := opts.MapName
	if mapName == "" {
		mapName = DefaultMapName
	}
	gameMap, err := LoadMap(mapName)
	if err != nil {
		return nil, err
	}

	gm := &GameManager{
		resultsChan: opts.ResultsChan,
		onShutdown:  opts.OnShutdown,
		logger:      log.With("session", opts.SessionID),
	}
	gm.world = NewWorld(WorldOptions{
		SessionID: opts.SessionID,
		Map:       gameMap,
		Mode:      opts.Mode,
		TickRate:  opts.TickRate,
	})

	handlers := communicator.NewCommandTable[types.GameState]()
	handlers.Register(types.CommandConnect, gm.handleConnect)
	handlers.Register(types.CommandDisconnect, gm.handleDisconnect)
	handlers.Register(types.CommandMoveUnit, gm.handleMoveUnit)
	handlers.Register(types.CommandFire, gm.handleFire)
	handlers.Register(types.CommandMoveShell, gm.handleMoveShell)
	handlers.Register(types.CommandCheckGameOver, gm.handleCheckGameOver)
	handlers.Register(types.CommandSpawnEntities, gm.handleSpawnEntities)
	handlers.Register(types.CommandShutdownServer, gm.handleShutdownServer)

	gm.comm = communicator.New(gm.world.Snapshot(), communicator.Options[types.GameState]{
		Name:           "server-game",
		TickRate:       opts.TickRate,
		MaxConnections: opts.MaxConnections,
		Authoritative:  true,
		Handlers:       handlers,
		Registry:       opts.Registry,
		Codec:          opts.Codec,
		Logger:         gm.logger,
		OnEnvelope:     gm.recordPing,
		BeforeCommands: gm.queueFrameworkCommands,
		Publish:        gm.publish,
		OnDisconnect:   gm.handleConnectionLost,
	})
	return gm, nil
}

// Communicator returns the authoritative tick engine.
func (gm *GameManager) Communicator() *ServerCommunicator {
	return gm.comm
}

// World returns the arena. It must only be used from the tick goroutine or
// while the communicator is not running.
func (gm *GameManager) World() *World {
	return gm.world
}

func (gm *GameManager) queueFrameworkCommands(c *ServerCommunicator) {
	gm.world.Advance()
	for _, kind := range []messages.CommandKind{types.CommandCheckGameOver, types.CommandSpawnEntities} {
		if err := c.AddCommand(&messages.Command{Kind: kind}); err != nil {
			gm.logger.Warn("Failed to queue %s: %v", kind, err)
		}
	}
}

func (gm *GameManager) publish(c *ServerCommunicator) (types.GameState, bool) {
	return gm.world.Snapshot(), true
}

func (gm *GameManager) recordPing(c *ServerCommunicator, env *messages.Envelope) {
	if ping := env.Ping(); ping != messages.Unstamped {
		gm.world.SetPing(env.ReceiverID, ping)
	}
}

func requireEnvelope(env *messages.Envelope, cmd *messages.Command) error {
	if env == nil {
		return fmt.Errorf("%s must arrive from a connection", cmd.Kind)
	}
	return nil
}

// handleConnect adds the sending connection as a player and sends it the map.
func (gm *GameManager) handleConnect(c *ServerCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	if err := requireEnvelope(env, cmd); err != nil {
		return err
	}
	var payload types.ConnectPayload
	if len(cmd.Payload) > 0 {
		if err := cmd.Decode(&payload); err != nil {
			return err
		}
	}

	playerID := env.ReceiverID
	if !c.HasSocket(playerID) {
		// the connection dropped after queueing this; its release has been
		// handled or is about to be, so joining would leave a ghost player
		gm.logger.Debug("Ignoring connect from closed connection %d", playerID)
		if _, hosted := gm.world.Host(); payload.Host && !hosted {
			gm.hostLeft(c)
		}
		return nil
	}
	if _, ok := gm.world.Player(playerID); !ok {
		p, err := gm.world.AddPlayer(playerID, payload.Name, payload.Host)
		if err != nil {
			return err
		}
		gm.logger.Info("Player %s joined as %d (host: %t)", p.Stats.Name, playerID, p.Stats.Host)
	}

	loadMap, err := messages.NewCommand(types.CommandLoadMap, types.LoadMapPayload{
		MapName:  gm.world.Map().Name,
		PlayerID: playerID,
		TickRate: c.TickRate(),
	})
	if err != nil {
		return err
	}
	if err := c.SendUnique(playerID, messages.NewEnvelope(nil, loadMap)); err != nil {
		return fmt.Errorf("failed to send map to player %d: %v", playerID, err)
	}
	return nil
}

// handleDisconnect removes the player and closes its connection.
func (gm *GameManager) handleDisconnect(c *ServerCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	if err := requireEnvelope(env, cmd); err != nil {
		return err
	}
	gm.removePlayer(c, env.ReceiverID)
	c.CloseSocket(env.ReceiverID)
	return nil
}

func (gm *GameManager) handleConnectionLost(c *ServerCommunicator, connectionID int64) {
	gm.removePlayer(c, connectionID)
}

// removePlayer removes a player. Losing the host shuts the server down.
func (gm *GameManager) removePlayer(c *ServerCommunicator, playerID int64) {
	p, ok := gm.world.RemovePlayer(playerID)
	if !ok {
		return
	}
	gm.logger.Info("Player %s (%d) left", p.Stats.Name, playerID)
	if p.Stats.Host {
		gm.hostLeft(c)
	}
}

func (gm *GameManager) hostLeft(c *ServerCommunicator) {
	gm.logger.Info("Host left, shutting down")
	if err := c.AddCommand(&messages.Command{Kind: types.CommandShutdownServer}); err != nil {
		gm.logger.Warn("Failed to queue shutdown: %v", err)
	}
}

func (gm *GameManager) handleMoveUnit(c *ServerCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	if err := requireEnvelope(env, cmd); err != nil {
		return err
	}
	var payload types.MoveUnitPayload
	if err := cmd.Decode(&payload); err != nil {
		return err
	}
	return gm.world.MoveTank(env.ReceiverID, payload.Direction)
}

func (gm *GameManager) handleFire(c *ServerCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	if err := requireEnvelope(env, cmd); err != nil {
		return err
	}
	shellID, fired, err := gm.world.Fire(env.ReceiverID)
	if err != nil || !fired {
		return err
	}
	return c.AddCommand(messages.MustCommand(types.CommandMoveShell, types.MoveShellPayload{ShellID: shellID}))
}

// handleMoveShell advances a shell and re-queues itself for the next tick
// while the shell is in flight.
func (gm *GameManager) handleMoveShell(c *ServerCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	var payload types.MoveShellPayload
	if err := cmd.Decode(&payload); err != nil {
		return err
	}
	if gm.world.MoveShell(payload.ShellID) {
		return c.AddCommand(cmd)
	}
	return nil
}

func (gm *GameManager) handleSpawnEntities(c *ServerCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	gm.world.SpawnAll()
	return nil
}

// handleCheckGameOver announces the end of the match once and hands the
// result to the results worker.
func (gm *GameManager) handleCheckGameOver(c *ServerCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	ended, winner := gm.world.CheckGameOver()
	if !ended {
		return nil
	}
	gm.logger.Info("Game over, winner %d", winner)

	gameOver, err := messages.NewCommand(types.CommandGameOver, types.GameOverPayload{Winner: winner})
	if err != nil {
		return err
	}
	out, err := messages.NewStateEnvelope(gm.world.Snapshot(), gameOver)
	if err != nil {
		return err
	}
	c.SendAllSockets(out)

	result := gm.matchResult(time.Now())
	if gm.resultsChan != nil && !workers.TrySubmit(gm.resultsChan, workers.SaveMatchResultRequest{Result: result}) {
		gm.logger.Warn("Dropped match result for session %s, results queue is full", result.SessionID)
	}
	return nil
}

// handleShutdownServer tells every peer the session ended, stops accepting
// and stops the communicator.
func (gm *GameManager) handleShutdownServer(c *ServerCommunicator, env *messages.Envelope, cmd *messages.Command) error {
	gm.Shutdown()
	return nil
}

// Shutdown is idempotent and safe to call from any goroutine.
func (gm *GameManager) Shutdown() {
	gm.shutdownOnce.Do(func() {
		c := gm.comm
		out := messages.NewEnvelope(nil, &messages.Command{Kind: types.CommandServerShutdown})
		c.SendAllSockets(out)
		if gm.onShutdown != nil {
			gm.onShutdown()
		}
		c.Stop()
	})
}

func (gm *GameManager) matchResult(endedAt time.Time) *models.MatchResult {
	result := &models.MatchResult{
		SessionID: gm.world.SessionID(),
		Mode:      gm.world.Mode().Name(),
		MapName:   gm.world.Map().Name,
		Winner:    gm.world.Winner(),
		EndedAt:   endedAt.UnixMilli(),
		Players:   []models.PlayerResult{},
	}
	for _, p := range gm.world.Players() {
		if p.Stats.PlayerID == result.Winner {
			result.WinnerName = p.Stats.Name
		}
		result.Players = append(result.Players, models.PlayerResult{
			PlayerID: p.Stats.PlayerID,
			Name:     p.Stats.Name,
			Score:    p.Stats.Score,
			Kills:    p.Stats.Kills,
			Deaths:   p.Stats.Deaths,
			Host:     p.Stats.Host,
		})
	}
	return result
}
