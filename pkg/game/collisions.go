package game

import (
	"github.com/cbodonnell/tickrelay/pkg/game/constants"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/solarlune/resolv"
)

// NewCollisionSpace creates a space covering the canvas with one wall object
// per wall tile of m.
func NewCollisionSpace(m *Map) *resolv.Space {
	size := int(constants.CanvasSize)
	space := resolv.NewSpace(size, size, constants.CollisionCellSize, constants.CollisionCellSize)
	for _, wall := range m.Walls {
		space.Add(resolv.NewObject(wall.X, wall.Y, wall.W, wall.H, types.CollisionSpaceTagWall))
	}
	return space
}

func objectRect(obj *resolv.Object) Rect {
	return Rect{X: obj.Position.X, Y: obj.Position.Y, W: obj.Size.X, H: obj.Size.Y}
}

// contacts returns the objects carrying any of tags that obj would overlap
// after moving by dx, dy. resolv narrows the search to shared cells and the
// rectangle test discards objects that only share a cell.
func contacts(obj *resolv.Object, dx, dy float64, tags ...string) []*resolv.Object {
	collision := obj.Check(dx, dy, tags...)
	if collision == nil {
		return nil
	}
	moved := objectRect(obj)
	moved.X += dx
	moved.Y += dy

	var hits []*resolv.Object
	for _, other := range collision.Objects {
		if other == obj {
			continue
		}
		if moved.Overlaps(objectRect(other)) {
			hits = append(hits, other)
		}
	}
	return hits
}

func insideCanvas(r Rect) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.W <= constants.CanvasSize && r.Y+r.H <= constants.CanvasSize
}
