package game

import (
	"fmt"
	"sort"

	"github.com/cbodonnell/tickrelay/pkg/game/constants"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/solarlune/resolv"
)

// Tank is a player's unit. It is in the collision space only while alive.
type Tank struct {
	ID        uint32
	PlayerID  int64
	Health    int
	Direction types.Direction
	Object    *resolv.Object

	nextFireTick uint64
	spawned      bool
}

func (t *Tank) rect() Rect {
	return objectRect(t.Object)
}

// Shell is a projectile in flight.
type Shell struct {
	ID        uint32
	PlayerID  int64
	Direction types.Direction
	Damage    float64
	Object    *resolv.Object
}

type Player struct {
	Stats types.PlayerStats
	Tank  *Tank
}

// World is the authoritative arena. It is owned by the server tick goroutine
// and is not safe for concurrent use.
type World struct {
	sessionID string
	gameMap   *Map
	mode      Mode
	tickRate  int
	space     *resolv.Space

	players      map[int64]*Player
	order        []int64
	tanksByObj   map[*resolv.Object]*Tank
	shells       map[uint32]*Shell
	spawnIndex   int
	nextEntityID uint32

	tick     uint64
	gameOver bool
	winner   int64
}

type WorldOptions struct {
	SessionID string
	Map       *Map
	Mode      Mode
	TickRate  int
}

func NewWorld(opts WorldOptions) *World {
	tickRate := opts.TickRate
	if tickRate <= 0 {
		tickRate = 20
	}
	mode := opts.Mode
	if mode == nil {
		mode = NewDeathMatch()
	}
	return &World{
		sessionID:  opts.SessionID,
		gameMap:    opts.Map,
		mode:       mode,
		tickRate:   tickRate,
		space:      NewCollisionSpace(opts.Map),
		players:    make(map[int64]*Player),
		tanksByObj: make(map[*resolv.Object]*Tank),
		shells:     make(map[uint32]*Shell),
	}
}

func (w *World) SessionID() string { return w.sessionID }
func (w *World) Map() *Map         { return w.gameMap }
func (w *World) Mode() Mode        { return w.mode }
func (w *World) Tick() uint64      { return w.tick }
func (w *World) GameOver() bool    { return w.gameOver }
func (w *World) Winner() int64     { return w.winner }

// Advance moves the world clock forward by one tick.
func (w *World) Advance() {
	w.tick++
}

func (w *World) newEntityID() uint32 {
	w.nextEntityID++
	return w.nextEntityID
}

// Players returns the players in join order.
func (w *World) Players() []*Player {
	players := make([]*Player, 0, len(w.order))
	for _, id := range w.order {
		players = append(players, w.players[id])
	}
	return players
}

func (w *World) Player(id int64) (*Player, bool) {
	p, ok := w.players[id]
	return p, ok
}

// Host returns the player holding the host role, if any.
func (w *World) Host() (*Player, bool) {
	for _, id := range w.order {
		if p := w.players[id]; p.Stats.Host {
			return p, true
		}
	}
	return nil, false
}

// AddPlayer adds a player and spawns its tank at the next spawn point.
// Only the first host claim is granted; later claimants join as guests so a
// peer cannot take over the host role and its shutdown on leave.
func (w *World) AddPlayer(id int64, name string, host bool) (*Player, error) {
	if _, ok := w.players[id]; ok {
		return nil, fmt.Errorf("player %d already joined", id)
	}
	if host {
		if _, taken := w.Host(); taken {
			host = false
		}
	}
	if name == "" {
		name = fmt.Sprintf("player-%d", len(w.order)+1)
	}
	p := &Player{
		Stats: types.PlayerStats{
			PlayerID: id,
			Name:     name,
			Ping:     -1,
			Host:     host,
		},
		Tank: &Tank{
			ID:        w.newEntityID(),
			PlayerID:  id,
			Direction: types.DirectionNorth,
			Object:    resolv.NewObject(0, 0, constants.TankWidth, constants.TankHeight, types.CollisionSpaceTagTank),
		},
	}
	w.tanksByObj[p.Tank.Object] = p.Tank
	w.players[id] = p
	w.order = append(w.order, id)
	w.spawn(p, false)
	return p, nil
}

// RemovePlayer removes a player and its tank. Shells it fired keep flying.
func (w *World) RemovePlayer(id int64) (*Player, bool) {
	p, ok := w.players[id]
	if !ok {
		return nil, false
	}
	w.despawn(p.Tank)
	delete(w.tanksByObj, p.Tank.Object)
	delete(w.players, id)
	for i, existing := range w.order {
		if existing == id {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return p, true
}

// nextSpawnPoint cycles through the map's spawn points.
func (w *World) nextSpawnPoint() types.Position {
	points := w.gameMap.SpawnPoints
	point := points[w.spawnIndex%len(points)]
	w.spawnIndex = (w.spawnIndex + 1) % len(points)
	return point
}

// spawn places the tank at the next spawn point. With check set, only a dead
// tank whose player has lives left is respawned.
func (w *World) spawn(p *Player, check bool) {
	if check && (p.Tank.Health > 0 || p.Stats.Deaths >= w.mode.Lives()) {
		return
	}
	point := w.nextSpawnPoint()
	inset := (w.gameMap.CellSize - constants.TankWidth) / 2
	p.Tank.Object.Position.X = point.X + inset
	p.Tank.Object.Position.Y = point.Y + inset
	p.Tank.Health = w.mode.PlayerHealth()
	p.Tank.Direction = types.DirectionNorth
	if !p.Tank.spawned {
		w.space.Add(p.Tank.Object)
		p.Tank.spawned = true
	}
	p.Tank.Object.Update()
}

func (w *World) despawn(t *Tank) {
	if !t.spawned {
		return
	}
	w.space.Remove(t.Object)
	t.spawned = false
}

// SpawnAll respawns every dead tank whose player has lives left.
func (w *World) SpawnAll() {
	for _, p := range w.Players() {
		w.spawn(p, true)
	}
}

// MoveTank turns the player's tank to face direction and moves it one step
// unless that would overlap a wall or another tank.
func (w *World) MoveTank(id int64, direction types.Direction) error {
	p, ok := w.players[id]
	if !ok {
		return fmt.Errorf("unknown player %d", id)
	}
	if !direction.Valid() {
		return fmt.Errorf("invalid direction %d", direction)
	}
	t := p.Tank
	if t.Health <= 0 {
		return nil
	}
	t.Direction = direction

	ux, uy := direction.Unit()
	dx, dy := ux*constants.TankSpeed, uy*constants.TankSpeed
	moved := t.rect()
	moved.X += dx
	moved.Y += dy
	if !insideCanvas(moved) {
		return nil
	}
	if len(contacts(t.Object, dx, dy, types.CollisionSpaceTagWall, types.CollisionSpaceTagTank)) > 0 {
		return nil
	}
	t.Object.Position.X += dx
	t.Object.Position.Y += dy
	t.Object.Update()
	return nil
}

// Fire launches a shell from the player's tank and returns its id. It
// reports false when the tank is dead or still cooling down.
func (w *World) Fire(id int64) (uint32, bool, error) {
	p, ok := w.players[id]
	if !ok {
		return 0, false, fmt.Errorf("unknown player %d", id)
	}
	t := p.Tank
	if t.Health <= 0 || w.tick < t.nextFireTick {
		return 0, false, nil
	}

	r := t.rect()
	cx, cy := r.X+r.W/2, r.Y+r.H/2
	ux, uy := t.Direction.Unit()
	cx += ux * constants.ShellMuzzleOffset
	cy += uy * constants.ShellMuzzleOffset

	s := &Shell{
		ID:        w.newEntityID(),
		PlayerID:  id,
		Direction: t.Direction,
		Damage:    constants.ShellDamage,
		Object: resolv.NewObject(cx-constants.ShellSize/2, cy-constants.ShellSize/2,
			constants.ShellSize, constants.ShellSize, types.CollisionSpaceTagShell),
	}
	w.space.Add(s.Object)
	w.shells[s.ID] = s
	t.nextFireTick = w.tick + w.fireCooldownTicks()
	return s.ID, true, nil
}

func (w *World) fireCooldownTicks() uint64 {
	ticks := (constants.FireCooldownMs*int64(w.tickRate) + 999) / 1000
	if ticks < 1 {
		ticks = 1
	}
	return uint64(ticks)
}

// MoveShell advances a shell by one tick of travel. It reports whether the
// shell is still in flight. A shell that touches a wall or tank is destroyed;
// a tank it touches takes damage.
func (w *World) MoveShell(id uint32) bool {
	s, ok := w.shells[id]
	if !ok {
		return false
	}

	distance := constants.ShellSpeed / float64(w.tickRate)
	ux, uy := s.Direction.Unit()
	// Step at most one shell length at a time so thin walls are never skipped.
	for travelled := 0.0; ; {
		step := distance - travelled
		if step > constants.ShellSize {
			step = constants.ShellSize
		}
		if hits := contacts(s.Object, 0, 0, types.CollisionSpaceTagWall, types.CollisionSpaceTagTank); len(hits) > 0 {
			w.impact(s, hits[0])
			return false
		}
		if step <= 0 {
			return true
		}

		moved := objectRect(s.Object)
		moved.X += ux * step
		moved.Y += uy * step
		if !insideCanvas(moved) {
			w.destroyShell(s)
			return false
		}
		s.Object.Position.X = moved.X
		s.Object.Position.Y = moved.Y
		s.Object.Update()
		travelled += step
	}
}

func (w *World) impact(s *Shell, hit *resolv.Object) {
	defer w.destroyShell(s)

	t, ok := w.tanksByObj[hit]
	if !ok || t.Health <= 0 {
		return
	}
	t.Health = int(float64(t.Health) - s.Damage*constants.TankArmor)
	if t.Health > 0 {
		return
	}

	w.despawn(t)
	if victim, ok := w.players[t.PlayerID]; ok {
		victim.Stats.Deaths++
	}
	if killer, ok := w.players[s.PlayerID]; ok && s.PlayerID != t.PlayerID {
		killer.Stats.Kills++
		killer.Stats.Score += w.mode.KillPoints()
	}
}

func (w *World) destroyShell(s *Shell) {
	w.space.Remove(s.Object)
	delete(w.shells, s.ID)
}

// Shell returns an in-flight shell.
func (w *World) Shell(id uint32) (*Shell, bool) {
	s, ok := w.shells[id]
	return s, ok
}

// CheckGameOver marks the game over the first time the mode says it is and
// reports whether that happened on this call.
func (w *World) CheckGameOver() (bool, int64) {
	if w.gameOver {
		return false, 0
	}
	over, winner := w.mode.IsOver(w)
	if !over {
		return false, 0
	}
	w.gameOver = true
	w.winner = winner
	return true, winner
}

// SetPing records the latest latency observed for a player.
func (w *World) SetPing(id int64, ping int64) {
	if p, ok := w.players[id]; ok {
		p.Stats.Ping = ping
	}
}

// Snapshot builds the immutable published view of the world.
func (w *World) Snapshot() types.GameState {
	state := types.NewGameState(w.sessionID, w.gameMap.Name, w.mode.Name())
	state.Tick = w.tick
	state.GameOver = w.gameOver
	state.Winner = w.winner

	for _, p := range w.Players() {
		state.Players = append(state.Players, p.Stats)
		if !p.Tank.spawned {
			continue
		}
		r := p.Tank.rect()
		state.Entities = append(state.Entities, types.EntityState{
			ID:        p.Tank.ID,
			Kind:      types.EntityKindTank,
			PlayerID:  p.Tank.PlayerID,
			Position:  types.Position{X: r.X, Y: r.Y},
			Width:     r.W,
			Height:    r.H,
			Health:    p.Tank.Health,
			Direction: p.Tank.Direction,
		})
	}

	shellIDs := make([]uint32, 0, len(w.shells))
	for id := range w.shells {
		shellIDs = append(shellIDs, id)
	}
	sort.Slice(shellIDs, func(i, j int) bool { return shellIDs[i] < shellIDs[j] })
	for _, id := range shellIDs {
		s := w.shells[id]
		r := objectRect(s.Object)
		state.Entities = append(state.Entities, types.EntityState{
			ID:        s.ID,
			Kind:      types.EntityKindShell,
			PlayerID:  s.PlayerID,
			Position:  types.Position{X: r.X, Y: r.Y},
			Width:     r.W,
			Height:    r.H,
			Direction: s.Direction,
		})
	}
	return state
}
