package game

import (
	"math"
	"math/rand/v2"
)

// EnemyTier determines an enemy's starting lives and speed.
type EnemyTier uint8

const (
	EnemyBasic EnemyTier = iota
	EnemyTough
	EnemyElite
)

func (t EnemyTier) String() string {
	switch t {
	case EnemyTough:
		return "tough"
	case EnemyElite:
		return "elite"
	}
	return "basic"
}

// EnemyTierDef holds the stats for an enemy tier
type EnemyTierDef struct {
	Lives int
	Speed float64
}

var EnemyTiers = [3]EnemyTierDef{
	{Lives: 1, Speed: 2.0}, // basic
	{Lives: 2, Speed: 1.6}, // tough: slow, takes two hits
	{Lives: 3, Speed: 2.4}, // elite
}

// GetTierDef returns the definition for an enemy tier
func GetTierDef(t EnemyTier) EnemyTierDef {
	if int(t) >= len(EnemyTiers) {
		return EnemyTiers[EnemyBasic]
	}
	return EnemyTiers[t]
}

const (
	turnMin = 1.0
	turnMax = 3.0
)

// rollTier picks a tier; higher difficulty shifts the odds toward tougher enemies.
func rollTier(difficulty int, rng *rand.Rand) EnemyTier {
	elite := math.Min(0.05*float64(difficulty), 0.3)
	tough := math.Min(0.15+0.1*float64(difficulty), 0.5)
	r := rng.Float64()
	switch {
	case r < elite:
		return EnemyElite
	case r < elite+tough:
		return EnemyTough
	}
	return EnemyBasic
}

// Enemy is a hostile unit driven by a wander routine or, when AI is set, by inference.
type Enemy struct {
	Entity
	Tier         EnemyTier
	Speed        float64
	Dir          Direction
	DirTimer     float64
	Destroyed    bool
	DestroyTimer float64
	KilledBy     string
}

func newEnemy(id string, tier EnemyTier, cell GridPos, size float64) *Enemy {
	def := GetTierDef(tier)
	return &Enemy{
		Entity: newEntity(id, cell, size, def.Lives),
		Tier:   tier,
		Speed:  def.Speed,
	}
}

// destroy starts the destroy animation.
func (e *Enemy) destroy(by string, duration float64) {
	e.Destroyed = true
	e.DestroyTimer = duration
	e.KilledBy = by
	e.Dir = DirNone
}

// Update advances the enemy by dt and reports whether it should be purged.
func (e *Enemy) Update(dt float64, m *Map, blocked blocker, rng *rand.Rand) bool {
	if e.Destroyed {
		e.DestroyTimer -= dt
		return e.DestroyTimer <= 0
	}
	e.TickInvulnerability(dt)

	if !e.AI {
		e.DirTimer -= dt
		if e.Dir == DirNone || e.DirTimer <= 0 {
			e.turn(m, blocked, rng)
		}
	}
	if e.Dir == DirNone {
		return false
	}
	dx, dy := e.Dir.Delta()
	res := moveEntity(&e.Entity, m, Vec{X: float64(dx) * e.Speed * dt, Y: float64(dy) * e.Speed * dt}, blocked)
	if res.blocked && !res.moved && !e.AI {
		e.turn(m, blocked, rng)
	}
	return false
}

// steer points an AI-driven enemy in a new direction.
func (e *Enemy) steer(d Direction) {
	if d != e.Dir && d != DirNone {
		e.snap(d)
	}
	e.Dir = d
}

// turn picks a random open direction and resets the re-roll timer.
func (e *Enemy) turn(m *Map, blocked blocker, rng *rand.Rand) {
	c := e.Cell()
	open := make([]Direction, 0, len(Cardinals))
	for _, d := range Cardinals {
		n := c.Add(d, 1)
		if m.IsSolid(n.X, n.Y) || (blocked != nil && blocked(n)) {
			continue
		}
		open = append(open, d)
	}
	e.DirTimer = turnMin + rng.Float64()*(turnMax-turnMin)
	if len(open) == 0 {
		e.Dir = DirNone
		return
	}
	d := open[rng.IntN(len(open))]
	if d != e.Dir {
		e.snap(d)
	}
	e.Dir = d
}

// snap aligns the enemy with its cell center on the axis perpendicular to d.
func (e *Enemy) snap(d Direction) {
	c := e.Cell()
	switch d {
	case DirUp, DirDown:
		e.X = float64(c.X) + (1-e.W)/2
	case DirLeft, DirRight:
		e.Y = float64(c.Y) + (1-e.H)/2
	}
}
