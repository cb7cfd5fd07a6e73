package game

import "math"

// WeaponKind is the closed set of weapon variants.
type WeaponKind uint8

const (
	WeaponNone WeaponKind = iota
	WeaponBomb
	WeaponMine
	WeaponBullet
)

func (k WeaponKind) String() string {
	switch k {
	case WeaponBomb:
		return "bomb"
	case WeaponMine:
		return "mine"
	case WeaponBullet:
		return "bullet"
	}
	return "none"
}

// ParseWeaponKind maps a weapon name to its kind.
func ParseWeaponKind(s string) (WeaponKind, bool) {
	for k := WeaponBomb; k <= WeaponBullet; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return WeaponNone, false
}

// IsArea reports whether the kind blasts a cross-shaped area.
func (k WeaponKind) IsArea() bool {
	return k == WeaponBomb || k == WeaponMine
}

const (
	bulletSize     = 0.3
	bulletMaxStep  = 0.5
	areaWeaponSize = 1.0
)

// Weapon is a placed hazard. Kind selects the variant; the remaining fields
// are the variant payload (Power for area weapons, Dir/Speed/Life for bullets).
type Weapon struct {
	Entity
	Kind    WeaponKind
	OwnerID string
	Power   int

	Activated       bool
	ExplosionCells  []GridPos
	DestroyedBlocks []GridPos

	Fuse        float64 // bomb: time to detonation; mine: delay after trigger
	Triggered   bool
	TriggeredBy string

	Dir    Direction
	Speed  float64
	Life   float64
	HitID  string
	impact *GridPos

	Display float64 // remaining post-explosion display time

	onExplode func(w *Weapon)
}

// weaponWorld is what a weapon needs from its session while updating.
type weaponWorld interface {
	grid() *Map
	// mineTrigger returns a living non-owner entity overlapping the mine cell.
	mineTrigger(w *Weapon) string
	// bulletTarget returns a living non-owner entity overlapping the bullet and its cell.
	bulletTarget(w *Weapon) (string, GridPos)
}

func newWeapon(kind WeaponKind, id, owner string, cell GridPos, power int, cfg *Config) *Weapon {
	w := &Weapon{
		Entity:  newEntity(id, cell, areaWeaponSize, 1),
		Kind:    kind,
		OwnerID: owner,
		Power:   power,
		Display: cfg.ExplosionDisplay,
	}
	switch kind {
	case WeaponBomb:
		w.Fuse = cfg.BombFuse
	case WeaponMine:
		w.Fuse = cfg.MineDelay
	}
	return w
}

func newBullet(id, owner string, from Vec, dir Direction, cfg *Config) *Weapon {
	w := &Weapon{
		Entity:  Entity{ID: id, W: bulletSize, H: bulletSize, Lives: 1},
		Kind:    WeaponBullet,
		OwnerID: owner,
		Power:   1,
		Dir:     dir,
		Speed:   cfg.BulletSpeed,
		Life:    cfg.BulletLifetime,
		Display: cfg.BulletDisplay,
	}
	w.X = from.X - bulletSize/2
	w.Y = from.Y - bulletSize/2
	return w
}

// Footprint is the cell a weapon occupies for chain reactions and placement.
func (w *Weapon) Footprint() GridPos {
	return w.Cell()
}

// Activate detonates the weapon. It is idempotent: the first call computes the
// damage area and invokes the explosion handler once; later calls do nothing.
func (w *Weapon) Activate(m *Map) bool {
	if w.Activated {
		return false
	}
	// set before the handler runs so chain reactions cannot re-enter
	w.Activated = true
	switch w.Kind {
	case WeaponBomb, WeaponMine:
		w.ExplosionCells, w.DestroyedBlocks = blastArea(m, w.Footprint(), w.Power)
	case WeaponBullet:
		c := w.Footprint()
		if w.impact != nil {
			c = *w.impact
		}
		if m.DestroyBlock(c.X, c.Y) {
			w.DestroyedBlocks = []GridPos{c}
		}
		w.ExplosionCells = []GridPos{c}
	}
	if w.onExplode != nil {
		w.onExplode(w)
	}
	return true
}

// blastArea walks outward from origin in each cardinal direction up to power
// cells. Walls stop the walk; a breakable block is destroyed, included, and
// stops the walk.
func blastArea(m *Map, origin GridPos, power int) (cells, destroyed []GridPos) {
	cells = []GridPos{origin}
	for _, d := range Cardinals {
		for i := 1; i <= power; i++ {
			c := origin.Add(d, i)
			if m.IsWall(c.X, c.Y) {
				break
			}
			if m.DestroyBlock(c.X, c.Y) {
				cells = append(cells, c)
				destroyed = append(destroyed, c)
				break
			}
			cells = append(cells, c)
		}
	}
	return cells, destroyed
}

// Update advances the weapon by dt and reports whether it should be purged.
func (w *Weapon) Update(dt float64, wd weaponWorld) bool {
	if w.Activated {
		w.Display -= dt
		return w.Display <= 0
	}
	switch w.Kind {
	case WeaponBomb:
		w.Fuse -= dt
		if w.Fuse <= 0 {
			w.Activate(wd.grid())
		}
	case WeaponMine:
		if !w.Triggered {
			if id := wd.mineTrigger(w); id != "" {
				w.Triggered = true
				w.TriggeredBy = id
			}
			return false
		}
		w.Fuse -= dt
		if w.Fuse <= 0 {
			w.Activate(wd.grid())
		}
	case WeaponBullet:
		return w.fly(dt, wd)
	}
	return false
}

// fly moves a bullet in sub-steps of at most half a cell, activating on the
// first solid cell or entity. An expired bullet is purged without exploding.
func (w *Weapon) fly(dt float64, wd weaponWorld) bool {
	m := wd.grid()
	dx, dy := w.Dir.Delta()
	dist := w.Speed * dt
	steps := int(math.Ceil(dist / bulletMaxStep))
	step := dist / float64(max(steps, 1))
	for i := 0; i < steps; i++ {
		prev := w.Cell()
		w.X += float64(dx) * step
		w.Y += float64(dy) * step
		c := w.Cell()
		switch m.Cell(c.X, c.Y) {
		case SolidWall:
			w.impact = &prev
			w.X -= float64(dx) * step
			w.Y -= float64(dy) * step
			w.Activate(m)
			return false
		case BreakableBlock:
			w.impact = &c
			w.Activate(m)
			return false
		}
		if id, cell := wd.bulletTarget(w); id != "" {
			w.HitID = id
			w.impact = &cell
			w.Activate(m)
			return false
		}
	}
	w.Life -= dt
	return w.Life <= 0
}
