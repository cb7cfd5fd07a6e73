package game

import "math"

// maxMoveStep bounds one movement sub-step so fast entities cannot tunnel through a cell.
const maxMoveStep = 0.25

// blocker reports whether something other than the map occupies cell c.
type blocker func(c GridPos) bool

// moveResult reports what happened during moveEntity.
type moveResult struct {
	moved   bool
	blocked bool
}

// moveEntity moves e by delta, X axis first then Y axis. Each axis is rejected
// on its own when the destination span would enter a solid cell, or a cell
// flagged by blocked that the entity did not already overlap. A rejected axis
// leaves the entity flush against the obstacle and lets it slide around
// corners it is nearly aligned with.
func moveEntity(e *Entity, m *Map, delta Vec, blocked blocker) moveResult {
	var res moveResult
	dist := math.Max(math.Abs(delta.X), math.Abs(delta.Y))
	if dist == 0 {
		return res
	}
	steps := int(math.Ceil(dist / maxMoveStep))
	sx, sy := delta.X/float64(steps), delta.Y/float64(steps)
	x0, y0 := e.X, e.Y
	for i := 0; i < steps; i++ {
		if sx != 0 && !stepAxis(e, m, sx, 0, blocked) {
			res.blocked = true
			if sy == 0 {
				assist(e, m, sx, 0, blocked)
			}
		}
		if sy != 0 && !stepAxis(e, m, 0, sy, blocked) {
			res.blocked = true
			if sx == 0 {
				assist(e, m, 0, sy, blocked)
			}
		}
	}
	res.moved = e.X != x0 || e.Y != y0
	return res
}

func canOccupy(e *Entity, m *Map, x, y float64, blocked blocker) bool {
	before := e.span(e.X, e.Y)
	return e.span(x, y).each(func(c GridPos) bool {
		if m.IsSolid(c.X, c.Y) {
			return false
		}
		if blocked != nil && !before.contains(c) && blocked(c) {
			return false
		}
		return true
	})
}

// stepAxis applies one sub-step on a single axis. On rejection the entity is
// moved flush against the edge of its current cell span.
func stepAxis(e *Entity, m *Map, dx, dy float64, blocked blocker) bool {
	nx, ny := e.X+dx, e.Y+dy
	if canOccupy(e, m, nx, ny, blocked) {
		e.X, e.Y = nx, ny
		return true
	}
	s := e.span(e.X, e.Y)
	switch {
	case dx > 0:
		e.X = math.Max(e.X, float64(s.x1+1)-e.W)
	case dx < 0:
		e.X = math.Min(e.X, float64(s.x0))
	case dy > 0:
		e.Y = math.Max(e.Y, float64(s.y1+1)-e.H)
	case dy < 0:
		e.Y = math.Min(e.Y, float64(s.y0))
	}
	return false
}

// assist nudges a blocked entity on the perpendicular axis toward the lane of
// its center cell when the cell ahead of that lane is open.
func assist(e *Entity, m *Map, dx, dy float64, blocked blocker) {
	c := e.Cell()
	ahead := GridPos{X: c.X + sign(dx), Y: c.Y + sign(dy)}
	if m.IsSolid(ahead.X, ahead.Y) || (blocked != nil && blocked(ahead)) {
		return
	}
	amount := math.Abs(dx) + math.Abs(dy)
	if dx != 0 {
		target := float64(c.Y) + (1-e.H)/2
		ny := approach(e.Y, target, amount)
		if canOccupy(e, m, e.X, ny, blocked) {
			e.Y = ny
		}
		return
	}
	target := float64(c.X) + (1-e.W)/2
	nx := approach(e.X, target, amount)
	if canOccupy(e, m, nx, e.Y, blocked) {
		e.X = nx
	}
}

func approach(v, target, amount float64) float64 {
	if v < target {
		return math.Min(v+amount, target)
	}
	return math.Max(v-amount, target)
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
