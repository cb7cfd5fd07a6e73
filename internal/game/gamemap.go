package game

// CellChange records one mutated grid cell.
type CellChange struct {
	X    int      `json:"x" msgpack:"x"`
	Y    int      `json:"y" msgpack:"y"`
	Kind CellKind `json:"k" msgpack:"k"`
}

// Map is the grid of one session. Out-of-bounds coordinates are SolidWall.
type Map struct {
	Width   int
	Height  int
	Version int

	grid    [][]CellKind
	changes []CellChange

	PlayerSpawns []GridPos
	EnemySpawns  []GridPos
}

// NewMap returns an all-empty map of the given size.
func NewMap(width, height int) *Map {
	grid := make([][]CellKind, height)
	for y := range grid {
		grid[y] = make([]CellKind, width)
	}
	return &Map{Width: width, Height: height, grid: grid}
}

// InBounds reports whether (x,y) is on the grid.
func (m *Map) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < m.Width && y < m.Height
}

// Cell returns the kind at (x,y).
func (m *Map) Cell(x, y int) CellKind {
	if !m.InBounds(x, y) {
		return SolidWall
	}
	return m.grid[y][x]
}

// set writes a cell without recording a change; used during generation only.
func (m *Map) set(x, y int, k CellKind) {
	if m.InBounds(x, y) {
		m.grid[y][x] = k
	}
}

// IsWall reports whether (x,y) is an indestructible wall.
func (m *Map) IsWall(x, y int) bool {
	return m.Cell(x, y) == SolidWall
}

// IsBreakableBlock reports whether (x,y) holds a destructible block.
func (m *Map) IsBreakableBlock(x, y int) bool {
	return m.Cell(x, y) == BreakableBlock
}

// IsSolid reports whether (x,y) blocks movement.
func (m *Map) IsSolid(x, y int) bool {
	k := m.Cell(x, y)
	return k == SolidWall || k == BreakableBlock
}

// IsWalkable is the inverse of IsSolid; spawn cells count as empty.
func (m *Map) IsWalkable(x, y int) bool {
	return !m.IsSolid(x, y)
}

// DestroyBlock turns a breakable block into empty floor and records the change.
// Any other cell is left untouched. Returns true when a block was destroyed.
func (m *Map) DestroyBlock(x, y int) bool {
	if !m.IsBreakableBlock(x, y) {
		return false
	}
	m.grid[y][x] = Empty
	m.changes = append(m.changes, CellChange{X: x, Y: y, Kind: Empty})
	return true
}

// GetChanges returns the cell changes since the previous call and clears them.
func (m *Map) GetChanges() []CellChange {
	out := m.changes
	m.changes = nil
	return out
}

// Grid returns a copy of the full grid.
func (m *Map) Grid() [][]CellKind {
	out := make([][]CellKind, m.Height)
	for y := range out {
		out[y] = make([]CellKind, m.Width)
		copy(out[y], m.grid[y])
	}
	return out
}

// Rows renders the grid in template notation.
func (m *Map) Rows() []string {
	rows := make([]string, m.Height)
	for y := 0; y < m.Height; y++ {
		b := make([]byte, m.Width)
		for x := 0; x < m.Width; x++ {
			b[x] = templateGlyph(m.grid[y][x])
		}
		rows[y] = string(b)
	}
	return rows
}

// emptyCells lists walkable non-spawn cells in row-major order.
func (m *Map) emptyCells() []GridPos {
	var out []GridPos
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.grid[y][x] == Empty {
				out = append(out, GridPos{X: x, Y: y})
			}
		}
	}
	return out
}
