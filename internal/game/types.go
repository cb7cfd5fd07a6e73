package game

import "math"

// CellKind is the kind of one grid square.
type CellKind uint8

const (
	Empty CellKind = iota
	SolidWall
	BreakableBlock
	PlayerSpawn // walkable, remembered for placement
	EnemySpawn  // walkable, remembered for placement
)

func (k CellKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case SolidWall:
		return "wall"
	case BreakableBlock:
		return "block"
	case PlayerSpawn:
		return "player_spawn"
	case EnemySpawn:
		return "enemy_spawn"
	}
	return "unknown"
}

// GridPos is a coordinate on the map grid.
type GridPos struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

// Add returns p shifted by d steps in direction dir.
func (p GridPos) Add(dir Direction, d int) GridPos {
	dx, dy := dir.Delta()
	return GridPos{X: p.X + dx*d, Y: p.Y + dy*d}
}

// Manhattan returns the grid distance between two positions.
func Manhattan(a, b GridPos) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Direction represents a cardinal movement direction.
type Direction uint8

const (
	DirNone Direction = iota
	DirUp
	DirDown
	DirLeft
	DirRight
)

// Cardinals lists the four movement directions in explosion walk order.
var Cardinals = [4]Direction{DirUp, DirDown, DirLeft, DirRight}

// Delta returns the unit grid step for the direction.
func (d Direction) Delta() (int, int) {
	switch d {
	case DirUp:
		return 0, -1
	case DirDown:
		return 0, 1
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	}
	return 0, 0
}

func (d Direction) String() string {
	switch d {
	case DirUp:
		return "up"
	case DirDown:
		return "down"
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	}
	return "none"
}

// Vec is a 2D float vector in cell units.
type Vec struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Len returns the length of the vector.
func (v Vec) Len() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// DirectionOf maps a vector onto its dominant cardinal direction.
func DirectionOf(v Vec) Direction {
	if v.X == 0 && v.Y == 0 {
		return DirNone
	}
	if math.Abs(v.X) >= math.Abs(v.Y) {
		if v.X < 0 {
			return DirLeft
		}
		return DirRight
	}
	if v.Y < 0 {
		return DirUp
	}
	return DirDown
}

// Clamp restricts v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
