package game

import (
	"fmt"
	"math"
)

// Mode holds the rules of a match.
type Mode interface {
	Name() string
	PlayerHealth() int
	// Lives is the number of deaths after which a player no longer respawns.
	Lives() int
	KillPoints() int
	// KillLimit ends the match when reached, or is negative when unused.
	KillLimit() int
	// IsOver reports whether the match has ended and who won. The winner is
	// zero when nobody did.
	IsOver(w *World) (over bool, winner int64)
}

type rules struct {
	name         string
	playerHealth int
	lives        int
	killPoints   int
	killLimit    int
}

func (r rules) Name() string      { return r.name }
func (r rules) PlayerHealth() int { return r.playerHealth }
func (r rules) Lives() int        { return r.lives }
func (r rules) KillPoints() int   { return r.killPoints }
func (r rules) KillLimit() int    { return r.killLimit }

// DeathMatch respawns players indefinitely and ends when a player reaches
// the kill limit.
type DeathMatch struct {
	rules
}

func NewDeathMatch() *DeathMatch {
	return &DeathMatch{rules{
		name:         "deathmatch",
		playerHealth: 100,
		lives:        math.MaxInt,
		killPoints:   100,
		killLimit:    10,
	}}
}

func (m *DeathMatch) IsOver(w *World) (bool, int64) {
	if m.killLimit < 0 {
		return false, 0
	}
	for _, p := range w.Players() {
		if p.Stats.Kills >= m.killLimit {
			return true, p.Stats.PlayerID
		}
	}
	return false, 0
}

// OneLife gives each player a single life and ends when more than one
// player joined and fewer than two are alive.
type OneLife struct {
	rules
}

func NewOneLife() *OneLife {
	return &OneLife{rules{
		name:         "onelife",
		playerHealth: 100,
		lives:        1,
		killPoints:   100,
		killLimit:    -1,
	}}
}

func (m *OneLife) IsOver(w *World) (bool, int64) {
	players := w.Players()
	var alive []*Player
	for _, p := range players {
		if p.Tank.Health > 0 {
			alive = append(alive, p)
		}
	}
	if len(players) > 1 && len(alive) < 2 {
		if len(alive) == 1 {
			return true, alive[0].Stats.PlayerID
		}
		return true, 0
	}
	return false, 0
}

// ParseMode returns the mode with the given name.
func ParseMode(name string) (Mode, error) {
	switch name {
	case "deathmatch", "":
		return NewDeathMatch(), nil
	case "onelife":
		return NewOneLife(), nil
	default:
		return nil, fmt.Errorf("unknown game mode %q", name)
	}
}
