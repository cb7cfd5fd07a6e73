package game

import "math"

const spanEpsilon = 1e-6

// Entity holds the attributes shared by everything that lives on the grid.
// (X, Y) is the top-left corner of the bounding box in cell units.
type Entity struct {
	ID                string
	X, Y              float64
	W, H              float64
	Lives             int
	Invulnerable      bool
	InvulnerableTimer float64
	AI                bool
}

func newEntity(id string, cell GridPos, size float64, lives int) Entity {
	e := Entity{ID: id, W: size, H: size, Lives: lives}
	e.PlaceAt(cell)
	return e
}

// PlaceAt centers the entity in the given cell.
func (e *Entity) PlaceAt(c GridPos) {
	e.X = float64(c.X) + (1-e.W)/2
	e.Y = float64(c.Y) + (1-e.H)/2
}

// Center returns the center point of the bounding box.
func (e *Entity) Center() Vec {
	return Vec{X: e.X + e.W/2, Y: e.Y + e.H/2}
}

// Cell returns the grid cell containing the entity's center.
func (e *Entity) Cell() GridPos {
	c := e.Center()
	return GridPos{X: int(math.Floor(c.X)), Y: int(math.Floor(c.Y))}
}

// Alive reports whether the entity has lives left.
func (e *Entity) Alive() bool {
	return e.Lives > 0
}

// Overlaps reports whether two bounding boxes intersect.
func (e *Entity) Overlaps(o *Entity) bool {
	return e.X < o.X+o.W && o.X < e.X+e.W &&
		e.Y < o.Y+o.H && o.Y < e.Y+e.H
}

// OverlapsCell reports whether the bounding box touches cell c.
func (e *Entity) OverlapsCell(c GridPos) bool {
	return e.span(e.X, e.Y).contains(c)
}

// TickInvulnerability counts the invulnerability window down by dt.
func (e *Entity) TickInvulnerability(dt float64) {
	if !e.Invulnerable {
		return
	}
	e.InvulnerableTimer -= dt
	if e.InvulnerableTimer <= 0 {
		e.InvulnerableTimer = 0
		e.Invulnerable = false
	}
}

// Grant makes the entity invulnerable for d seconds, extending any shorter window.
func (e *Entity) Grant(d float64) {
	if d <= 0 {
		return
	}
	e.Invulnerable = true
	if d > e.InvulnerableTimer {
		e.InvulnerableTimer = d
	}
}

// takeHit removes one life unless the entity is invulnerable or already down.
// A surviving entity is granted the invulnerability window.
func (e *Entity) takeHit(window float64) bool {
	if e.Invulnerable || e.Lives <= 0 {
		return false
	}
	e.Lives--
	if e.Lives > 0 {
		e.Grant(window)
	}
	return true
}

// cellSpan is the inclusive range of grid cells covered by a bounding box.
type cellSpan struct {
	x0, y0, x1, y1 int
}

func (e *Entity) span(x, y float64) cellSpan {
	return cellSpan{
		x0: int(math.Floor(x)),
		y0: int(math.Floor(y)),
		x1: int(math.Floor(x + e.W - spanEpsilon)),
		y1: int(math.Floor(y + e.H - spanEpsilon)),
	}
}

func (s cellSpan) contains(c GridPos) bool {
	return c.X >= s.x0 && c.X <= s.x1 && c.Y >= s.y0 && c.Y <= s.y1
}

func (s cellSpan) each(fn func(GridPos) bool) bool {
	for y := s.y0; y <= s.y1; y++ {
		for x := s.x0; x <= s.x1; x++ {
			if !fn(GridPos{X: x, Y: y}) {
				return false
			}
		}
	}
	return true
}
