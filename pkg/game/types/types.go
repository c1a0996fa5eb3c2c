package types

import "fmt"

const (
	CollisionSpaceTagWall  string = "wall"
	CollisionSpaceTagTank  string = "tank"
	CollisionSpaceTagShell string = "shell"
)

type Direction uint8

const (
	DirectionNorth Direction = iota
	DirectionEast
	DirectionSouth
	DirectionWest
)

func (d Direction) String() string {
	switch d {
	case DirectionNorth:
		return "north"
	case DirectionEast:
		return "east"
	case DirectionSouth:
		return "south"
	case DirectionWest:
		return "west"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection accepts the names returned by Direction.String and the
// single letters n, e, s and w.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "north", "n", "N":
		return DirectionNorth, nil
	case "east", "e", "E":
		return DirectionEast, nil
	case "south", "s", "S":
		return DirectionSouth, nil
	case "west", "w", "W":
		return DirectionWest, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

// Valid reports whether d is one of the four compass directions.
func (d Direction) Valid() bool {
	return d <= DirectionWest
}

// Unit returns the unit step for d in screen coordinates (y grows south).
func (d Direction) Unit() (dx, dy float64) {
	switch d {
	case DirectionNorth:
		return 0, -1
	case DirectionEast:
		return 1, 0
	case DirectionSouth:
		return 0, 1
	case DirectionWest:
		return -1, 0
	default:
		return 0, 0
	}
}

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type EntityKind string

const (
	EntityKindTank  EntityKind = "tank"
	EntityKindShell EntityKind = "shell"
)

// EntityState is the published view of a tank or shell.
type EntityState struct {
	ID        uint32     `json:"id"`
	Kind      EntityKind `json:"kind"`
	PlayerID  int64      `json:"playerId"`
	Position  Position   `json:"position"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`
	Health    int        `json:"health"`
	Direction Direction  `json:"direction"`
}
