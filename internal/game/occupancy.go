package game

// cellIndex maps grid cells to the ids of weapons whose footprint covers them.
// It is rebuilt from the live weapon set whenever that set changes.
type cellIndex struct {
	cells map[GridPos][]string
}

func newCellIndex() *cellIndex {
	return &cellIndex{cells: make(map[GridPos][]string)}
}

// Clear empties every cell; the per-cell slices are reused on the next rebuild.
func (ix *cellIndex) Clear() {
	for k, v := range ix.cells {
		ix.cells[k] = v[:0]
	}
}

// Insert adds a weapon id at the given cell
func (ix *cellIndex) Insert(c GridPos, id string) {
	ix.cells[c] = append(ix.cells[c], id)
}

// Query returns the weapon ids at c.
func (ix *cellIndex) Query(c GridPos) []string {
	return ix.cells[c]
}
