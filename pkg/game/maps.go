package game

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/cbodonnell/tickrelay/pkg/game/constants"
	"github.com/cbodonnell/tickrelay/pkg/game/types"
)

//go:embed maps/*.txt
var mapFS embed.FS

// DefaultMapName is hosted when no map is requested.
const DefaultMapName = "arena"

// Rect is an axis-aligned rectangle in arena coordinates.
type Rect struct {
	X, Y, W, H float64
}

// Overlaps reports whether r and o share any area. Touching edges do not count.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && r.X+r.W > o.X && r.Y < o.Y+o.H && r.Y+r.H > o.Y
}

// Map is a square grid layout. In the source file 0 is open floor, 1 is a
// wall and 2 is a spawn point.
type Map struct {
	Name        string
	Size        int
	CellSize    float64
	Walls       []Rect
	SpawnPoints []types.Position
}

// MapNames returns the embedded map names in lexical order.
func MapNames() []string {
	entries, err := mapFS.ReadDir("maps")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".txt"))
	}
	sort.Strings(names)
	return names
}

// LoadMap loads an embedded map by name.
func LoadMap(name string) (*Map, error) {
	b, err := mapFS.ReadFile(path.Join("maps", name+".txt"))
	if err != nil {
		return nil, fmt.Errorf("unknown map %q", name)
	}
	return ParseMap(name, b)
}

// ParseMap parses a square grid layout scaled to the arena canvas.
func ParseMap(name string, layout []byte) (*Map, error) {
	var rows []string
	scanner := bufio.NewScanner(bytes.NewReader(layout))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rows = append(rows, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read map %s: %v", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("map %s is empty", name)
	}

	size := len(rows[0])
	if len(rows) != size {
		return nil, fmt.Errorf("map %s has %d rows, want %d", name, len(rows), size)
	}

	m := &Map{
		Name:     name,
		Size:     size,
		CellSize: constants.CanvasSize / float64(size),
	}
	for i, row := range rows {
		if len(row) != size {
			return nil, fmt.Errorf("map %s row %d has %d cells, want %d", name, i, len(row), size)
		}
		for j, cell := range row {
			x, y := float64(j)*m.CellSize, float64(i)*m.CellSize
			switch cell {
			case '0':
			case '1':
				m.Walls = append(m.Walls, Rect{X: x, Y: y, W: m.CellSize, H: m.CellSize})
			case '2':
				m.SpawnPoints = append(m.SpawnPoints, types.Position{X: x, Y: y})
			default:
				return nil, fmt.Errorf("map %s has unknown cell %q at row %d column %d", name, cell, i, j)
			}
		}
	}
	if len(m.SpawnPoints) == 0 {
		return nil, fmt.Errorf("map %s has no spawn points", name)
	}
	return m, nil
}
