package types

// GameState is the snapshot the server publishes every tick.
type GameState struct {
	SessionID string `json:"sessionId"`
	// Tick is the server tick that produced the snapshot
	Tick     uint64 `json:"tick"`
	MapName  string `json:"mapName"`
	Mode     string `json:"mode"`
	GameOver bool   `json:"gameOver"`
	// Winner is the winning player id once the game is over, zero otherwise
	Winner   int64         `json:"winner,omitempty"`
	Entities []EntityState `json:"entities"`
	Players  []PlayerStats `json:"players"`
}

func NewGameState(sessionID, mapName, mode string) GameState {
	return GameState{
		SessionID: sessionID,
		MapName:   mapName,
		Mode:      mode,
		Entities:  []EntityState{},
		Players:   []PlayerStats{},
	}
}

// Copy returns a deep copy of the game state
func (g GameState) Copy() GameState {
	out := g
	out.Entities = append([]EntityState(nil), g.Entities...)
	out.Players = append([]PlayerStats(nil), g.Players...)
	return out
}

// Player returns the stats for the given player id.
func (g GameState) Player(id int64) (PlayerStats, bool) {
	for _, p := range g.Players {
		if p.PlayerID == id {
			return p, true
		}
	}
	return PlayerStats{}, false
}

// Tank returns the tank owned by the given player id.
func (g GameState) Tank(playerID int64) (EntityState, bool) {
	for _, e := range g.Entities {
		if e.Kind == EntityKindTank && e.PlayerID == playerID {
			return e, true
		}
	}
	return EntityState{}, false
}

// Count returns the number of entities of the given kind.
func (g GameState) Count(kind EntityKind) int {
	n := 0
	for _, e := range g.Entities {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
