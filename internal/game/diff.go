package game

import "slices"

// Fields is a sparse set of entity fields keyed by short names.
type Fields map[string]any

// EntityDiff holds the changes of one entity collection.
type EntityDiff struct {
	Changed map[string]Fields `json:"c,omitempty" msgpack:"c,omitempty"`
	Removed []string          `json:"r,omitempty" msgpack:"r,omitempty"`
}

// MapState is the full grid in template notation.
type MapState struct {
	Width   int      `json:"w" msgpack:"w"`
	Height  int      `json:"h" msgpack:"h"`
	Version int      `json:"v" msgpack:"v"`
	Rows    []string `json:"rows" msgpack:"rows"`
}

// Scalars are the session-level fields, sent with every diff.
type Scalars struct {
	State     string      `json:"state" msgpack:"st"`
	Mode      string      `json:"mode" msgpack:"mo"`
	Level     int         `json:"level" msgpack:"lv"`
	Round     int         `json:"round" msgpack:"rd"`
	Score     int         `json:"score" msgpack:"sc"`
	Teams     map[int]int `json:"teams,omitempty" msgpack:"tm,omitempty"`
	Elapsed   float64     `json:"elapsed" msgpack:"el"`
	Remaining float64     `json:"remaining" msgpack:"rm"`
	Active    bool        `json:"active" msgpack:"ac"`
	Over      bool        `json:"over" msgpack:"ov"`
	Result    *Result     `json:"result,omitempty" msgpack:"res,omitempty"`
}

// StateDiff is one broadcast payload. With Full set it is a snapshot:
// every entity in full and the whole map.
type StateDiff struct {
	Full     bool         `json:"full" msgpack:"full"`
	Map      *MapState    `json:"map,omitempty" msgpack:"map,omitempty"`
	Cells    []CellChange `json:"cells,omitempty" msgpack:"cells,omitempty"`
	Players  EntityDiff   `json:"players" msgpack:"p"`
	Enemies  EntityDiff   `json:"enemies" msgpack:"e"`
	Weapons  EntityDiff   `json:"weapons" msgpack:"w"`
	PowerUps EntityDiff   `json:"powerups" msgpack:"u"`
	Events   []Event      `json:"events,omitempty" msgpack:"ev,omitempty"`
	Scalars  Scalars      `json:"scalars" msgpack:"s"`
}

type diffTracker struct {
	players, enemies, weapons, powerUps map[string]Fields
	mapVersion                          int
}

func newDiffTracker() diffTracker {
	return diffTracker{
		players:  make(map[string]Fields),
		enemies:  make(map[string]Fields),
		weapons:  make(map[string]Fields),
		powerUps: make(map[string]Fields),
	}
}

func playerFields(p *Player) Fields {
	return Fields{
		"x":  round2(p.X),
		"y":  round2(p.Y),
		"n":  p.Name,
		"u":  p.Unit,
		"l":  p.Lives,
		"i":  p.Invulnerable,
		"tm": p.TeamID,
		"c":  p.Color,
		"f":  p.Facing.String(),
		"sp": p.Speed,
		"sc": p.Score,
		"lo": p.Loadout,
		"d":  p.Disconnected,
		"ai": p.AI,
		"rs": p.RespawnTimer > 0,
	}
}

func enemyFields(e *Enemy) Fields {
	return Fields{
		"x":  round2(e.X),
		"y":  round2(e.Y),
		"t":  e.Tier.String(),
		"l":  e.Lives,
		"i":  e.Invulnerable,
		"dr": e.Dir.String(),
		"ds": e.Destroyed,
		"ai": e.AI,
	}
}

func weaponFields(w *Weapon) Fields {
	f := Fields{
		"k": w.Kind.String(),
		"o": w.OwnerID,
		"x": round2(w.X),
		"y": round2(w.Y),
		"p": w.Power,
		"a": w.Activated,
	}
	if w.Kind == WeaponMine {
		f["tr"] = w.Triggered
	}
	if w.Activated {
		f["ec"] = w.ExplosionCells
	}
	return f
}

func powerUpFields(u *PowerUp) Fields {
	c := u.Cell()
	return Fields{"k": u.Kind.String(), "x": c.X, "y": c.Y}
}

// fieldEqual compares field values; cell lists are compared element-wise.
func fieldEqual(a, b any) bool {
	if ca, ok := a.([]GridPos); ok {
		cb, ok := b.([]GridPos)
		return ok && slices.Equal(ca, cb)
	}
	return a == b
}

// diffCollection computes the delta from last to cur and returns the new baseline.
func diffCollection(last, cur map[string]Fields) EntityDiff {
	var d EntityDiff
	for id, f := range cur {
		prev, ok := last[id]
		if !ok {
			if d.Changed == nil {
				d.Changed = make(map[string]Fields)
			}
			d.Changed[id] = f
			continue
		}
		var delta Fields
		for k, v := range f {
			if pv, ok := prev[k]; !ok || !fieldEqual(pv, v) {
				if delta == nil {
					delta = make(Fields)
				}
				delta[k] = v
			}
		}
		if delta != nil {
			if d.Changed == nil {
				d.Changed = make(map[string]Fields)
			}
			d.Changed[id] = delta
		}
	}
	for id := range last {
		if _, ok := cur[id]; !ok {
			d.Removed = append(d.Removed, id)
		}
	}
	slices.Sort(d.Removed)
	return d
}

func collect[T any](src map[string]T, fn func(T) Fields) map[string]Fields {
	out := make(map[string]Fields, len(src))
	for id, v := range src {
		out[id] = fn(v)
	}
	return out
}

func (s *Session) mapState() *MapState {
	if s.m == nil {
		return nil
	}
	return &MapState{Width: s.m.Width, Height: s.m.Height, Version: s.m.Version, Rows: s.m.Rows()}
}

func (s *Session) scalars() Scalars {
	sc := Scalars{
		State:     s.state.String(),
		Mode:      s.cfg.Mode.String(),
		Level:     s.level,
		Round:     s.round,
		Teams:     s.teams.Scores(),
		Elapsed:   round2(s.elapsed),
		Remaining: round2(s.remaining),
		Active:    s.state == StateActive,
		Over:      s.state == StateOver,
		Result:    s.result,
	}
	for _, v := range sc.Teams {
		sc.Score += v
	}
	return sc
}

// Snapshot returns the full state without consuming pending changes or events.
func (s *Session) Snapshot() StateDiff {
	full := func(m map[string]Fields) EntityDiff {
		if len(m) == 0 {
			return EntityDiff{}
		}
		return EntityDiff{Changed: m}
	}
	return StateDiff{
		Full:     true,
		Map:      s.mapState(),
		Players:  full(collect(s.players, playerFields)),
		Enemies:  full(collect(s.enemies, enemyFields)),
		Weapons:  full(collect(s.weapons, weaponFields)),
		PowerUps: full(collect(s.powerUps, powerUpFields)),
		Scalars:  s.scalars(),
	}
}

// Diff returns what changed since the previous Diff and drains cell changes
// and events. A replaced map is sent whole.
func (s *Session) Diff() StateDiff {
	d := StateDiff{Scalars: s.scalars(), Events: s.drainEvents()}
	if s.m != nil {
		cells := s.m.GetChanges()
		if s.m.Version != s.tracker.mapVersion {
			d.Map = s.mapState()
			s.tracker.mapVersion = s.m.Version
		} else {
			d.Cells = cells
		}
	}

	players := collect(s.players, playerFields)
	enemies := collect(s.enemies, enemyFields)
	weapons := collect(s.weapons, weaponFields)
	powerUps := collect(s.powerUps, powerUpFields)
	d.Players = diffCollection(s.tracker.players, players)
	d.Enemies = diffCollection(s.tracker.enemies, enemies)
	d.Weapons = diffCollection(s.tracker.weapons, weapons)
	d.PowerUps = diffCollection(s.tracker.powerUps, powerUps)
	s.tracker.players, s.tracker.enemies = players, enemies
	s.tracker.weapons, s.tracker.powerUps = weapons, powerUps
	return d
}
