package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Pattern selects the interior wall layout of a generated map.
type Pattern int

const (
	PatternCheckerboard Pattern = iota
	PatternSnake
)

const (
	breakableBase          = 0.30
	breakablePerDifficulty = 0.05
	breakableMax           = 0.70
	minMapSide             = 5
)

// Template is raw grid data returned by the map store.
type Template struct {
	ID   string
	Name string
	Rows []string
}

// MapStore is the external lookup service for map templates.
type MapStore interface {
	Template(ctx context.Context, id string) (Template, error)
	Chain(ctx context.Context, id string) ([]string, error)
	Group(ctx context.Context, id string) ([]string, error)
}

// Source identifies where a session's map comes from. The zero value is procedural.
type Source struct {
	TemplateID string `json:"template,omitempty"`
	ChainID    string `json:"chain,omitempty"`
	LevelIndex int    `json:"level,omitempty"`
	GroupID    string `json:"group,omitempty"`
}

// Procedural reports whether the source needs no store lookup.
func (s Source) Procedural() bool {
	return s.TemplateID == "" && s.ChainID == "" && s.GroupID == ""
}

// ForLevel returns the source for the given 1-based level; only chains change.
func (s Source) ForLevel(level int) Source {
	if s.ChainID != "" {
		s.LevelIndex = level - 1
	}
	return s
}

// GenOptions parameterizes procedural generation.
type GenOptions struct {
	Width            int
	Height           int
	Difficulty       int
	Pattern          Pattern
	MaxPlayers       int
	EnemyCount       int
	MinEnemyDistance int
	AllowEnemyNear   bool
}

func (o GenOptions) normalized() GenOptions {
	if o.Width < minMapSide {
		o.Width = minMapSide
	}
	if o.Height < minMapSide {
		o.Height = minMapSide
	}
	o.MaxPlayers = max(1, min(o.MaxPlayers, MaxPlayersLimit))
	if o.Difficulty < 0 {
		o.Difficulty = 0
	}
	return o
}

// BreakableChance returns the per-cell block probability for a difficulty.
func BreakableChance(difficulty int) float64 {
	p := breakableBase + breakablePerDifficulty*float64(difficulty)
	if p > breakableMax {
		return breakableMax
	}
	return p
}

// MapService generates maps and loads templates through the map store.
type MapService struct {
	store   MapStore
	timeout time.Duration
	log     logrus.FieldLogger
}

// NewMapService creates a MapService. A nil store makes every load procedural.
func NewMapService(store MapStore, timeout time.Duration, log logrus.FieldLogger) *MapService {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MapService{store: store, timeout: timeout, log: log}
}

// Generate builds a procedural map.
//
// Layout rules:
//   - Border is all SolidWall
//   - Interior pillars where both X and Y are even; the snake pattern also walls
//     every fourth row leaving a single gap that alternates ends
//   - Player spawns: corners, edge midpoints, then most distant empty cells
//   - Breakable blocks at a difficulty-scaled density, never on or next to a player spawn
//   - Enemy spawns sampled away from player spawns
func (ms *MapService) Generate(opts GenOptions, rng *rand.Rand) *Map {
	return Generate(opts, rng)
}

// Generate is MapService.Generate without a service.
func Generate(opts GenOptions, rng *rand.Rand) *Map {
	opts = opts.normalized()
	w, h := opts.Width, opts.Height
	m := NewMap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			switch {
			case x == 0 || y == 0 || x == w-1 || y == h-1:
				m.set(x, y, SolidWall)
			case x%2 == 0 && y%2 == 0:
				m.set(x, y, SolidWall)
			}
		}
	}
	if opts.Pattern == PatternSnake {
		carveSnake(m)
	}

	m.PlayerSpawns = pickPlayerSpawns(m, opts.MaxPlayers)
	for _, sp := range m.PlayerSpawns {
		m.set(sp.X, sp.Y, PlayerSpawn)
	}

	safe := makeSafeSet(m.PlayerSpawns)
	chance := BreakableChance(opts.Difficulty)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			if m.grid[y][x] != Empty || safe[GridPos{X: x, Y: y}] {
				continue
			}
			if rng.Float64() < chance {
				m.set(x, y, BreakableBlock)
			}
		}
	}

	m.EnemySpawns = pickEnemySpawns(m, opts, rng)
	for _, sp := range m.EnemySpawns {
		m.set(sp.X, sp.Y, EnemySpawn)
	}
	return m
}

// carveSnake walls rows y ≡ 2 (mod 4) except one gap, forming serpentine corridors.
// The gap sits on an odd column so it never lands on a pillar.
func carveSnake(m *Map) {
	right := m.Width - 2
	if right%2 == 0 {
		right--
	}
	for y := 2; y < m.Height-2; y += 4 {
		gap := right
		if (y/4)%2 == 1 {
			gap = 1
		}
		for x := 1; x < m.Width-1; x++ {
			if x != gap {
				m.set(x, y, SolidWall)
			}
		}
		m.set(gap, y, Empty)
	}
}

// makeSafeSet returns the spawn cells plus their four neighbours.
func makeSafeSet(spawns []GridPos) map[GridPos]bool {
	safe := make(map[GridPos]bool, len(spawns)*5)
	for _, sp := range spawns {
		safe[sp] = true
		for _, d := range Cardinals {
			safe[sp.Add(d, 1)] = true
		}
	}
	return safe
}

func pickPlayerSpawns(m *Map, n int) []GridPos {
	w, h := m.Width, m.Height
	candidates := []GridPos{
		{X: 1, Y: 1},         // top-left
		{X: w - 2, Y: 1},     // top-right
		{X: 1, Y: h - 2},     // bottom-left
		{X: w - 2, Y: h - 2}, // bottom-right
		{X: w / 2, Y: 1},     // top-mid
		{X: w / 2, Y: h - 2}, // bottom-mid
		{X: 1, Y: h / 2},     // left-mid
		{X: w - 2, Y: h / 2}, // right-mid
	}
	chosen := make([]GridPos, 0, n)
	taken := make(map[GridPos]bool, n)
	for _, c := range candidates {
		if len(chosen) >= n {
			return chosen
		}
		if p, ok := nearestEmpty(m, c, taken); ok {
			chosen = append(chosen, p)
			taken[p] = true
		}
	}
	cells := m.emptyCells()
	for len(chosen) < n {
		best, bestDist := GridPos{}, -1
		for _, c := range cells {
			if taken[c] {
				continue
			}
			if d := minDistance(c, chosen); d > bestDist {
				best, bestDist = c, d
			}
		}
		if bestDist < 0 {
			break
		}
		chosen = append(chosen, best)
		taken[best] = true
	}
	return chosen
}

// nearestEmpty returns p if it is free floor, else the closest free floor cell.
func nearestEmpty(m *Map, p GridPos, taken map[GridPos]bool) (GridPos, bool) {
	free := func(c GridPos) bool {
		return m.InBounds(c.X, c.Y) && m.grid[c.Y][c.X] == Empty && !taken[c]
	}
	if free(p) {
		return p, true
	}
	maxD := m.Width + m.Height
	for d := 1; d <= maxD; d++ {
		for y := p.Y - d; y <= p.Y+d; y++ {
			for x := p.X - d; x <= p.X+d; x++ {
				c := GridPos{X: x, Y: y}
				if Manhattan(c, p) == d && free(c) {
					return c, true
				}
			}
		}
	}
	return GridPos{}, false
}

func minDistance(c GridPos, others []GridPos) int {
	best := -1
	for _, o := range others {
		if d := Manhattan(c, o); best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return 1 << 30
	}
	return best
}

func pickEnemySpawns(m *Map, opts GenOptions, rng *rand.Rand) []GridPos {
	if opts.EnemyCount <= 0 {
		return nil
	}
	var far, near []GridPos
	for _, c := range m.emptyCells() {
		if opts.AllowEnemyNear || minDistance(c, m.PlayerSpawns) >= opts.MinEnemyDistance {
			far = append(far, c)
		} else {
			near = append(near, c)
		}
	}
	rng.Shuffle(len(far), func(i, j int) { far[i], far[j] = far[j], far[i] })
	out := far
	if len(out) > opts.EnemyCount {
		out = out[:opts.EnemyCount]
	}
	if len(out) < opts.EnemyCount {
		// not enough distant cells: fall back to the farthest of the rest
		sort.SliceStable(near, func(i, j int) bool {
			return minDistance(near[i], m.PlayerSpawns) > minDistance(near[j], m.PlayerSpawns)
		})
		for _, c := range near {
			if len(out) >= opts.EnemyCount {
				break
			}
			if minDistance(c, m.PlayerSpawns) == 0 {
				continue
			}
			out = append(out, c)
		}
	}
	return out
}

func templateGlyph(k CellKind) byte {
	switch k {
	case SolidWall:
		return '#'
	case BreakableBlock:
		return 'B'
	case PlayerSpawn:
		return 'P'
	case EnemySpawn:
		return 'E'
	}
	return '.'
}

// ParseTemplate converts template rows into a map. Spawn markers are kept;
// missing player or enemy spawns are filled in from opts.
func ParseTemplate(rows []string, opts GenOptions, rng *rand.Rand) (*Map, error) {
	if len(rows) < 3 || len(rows[0]) < 3 {
		return nil, fmt.Errorf("template too small: %d rows", len(rows))
	}
	w := len(rows[0])
	m := NewMap(w, len(rows))
	var players []GridPos
	for y, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("template row %d has width %d, want %d", y, len(row), w)
		}
		for x := 0; x < w; x++ {
			switch row[x] {
			case '#':
				m.set(x, y, SolidWall)
			case 'B':
				m.set(x, y, BreakableBlock)
			case '.', ' ':
			case 'P':
				m.set(x, y, PlayerSpawn)
				players = append(players, GridPos{X: x, Y: y})
			case 'E':
				m.set(x, y, EnemySpawn)
				m.EnemySpawns = append(m.EnemySpawns, GridPos{X: x, Y: y})
			default:
				return nil, fmt.Errorf("template cell (%d,%d): unknown glyph %q", x, y, row[x])
			}
		}
	}

	if len(players) > 0 {
		corners := []GridPos{{X: 0, Y: 0}, {X: w - 1, Y: 0}, {X: 0, Y: m.Height - 1}, {X: w - 1, Y: m.Height - 1}}
		sort.SliceStable(players, func(i, j int) bool {
			return minDistance(players[i], corners) < minDistance(players[j], corners)
		})
		m.PlayerSpawns = players
	} else {
		m.PlayerSpawns = pickPlayerSpawns(m, opts.normalized().MaxPlayers)
		for _, sp := range m.PlayerSpawns {
			m.set(sp.X, sp.Y, PlayerSpawn)
		}
	}
	if len(m.EnemySpawns) == 0 && opts.EnemyCount > 0 {
		m.EnemySpawns = pickEnemySpawns(m, opts, rng)
		for _, sp := range m.EnemySpawns {
			m.set(sp.X, sp.Y, EnemySpawn)
		}
	}
	return m, nil
}

type loadResult struct {
	m   *Map
	err error
}

// Load resolves src through the store within the service timeout. Any failure
// falls back to procedural generation, so Load always returns a map.
func (ms *MapService) Load(ctx context.Context, src Source, opts GenOptions, rng *rand.Rand) *Map {
	if src.Procedural() || ms.store == nil {
		return Generate(opts, rng)
	}
	ctx, cancel := context.WithTimeout(ctx, ms.timeout)
	defer cancel()

	// the fetch gets its own generator so a late result never races the caller's
	fetchRng := rand.New(rand.NewPCG(rng.Uint64(), rng.Uint64()))
	done := make(chan loadResult, 1)
	go func() {
		m, err := ms.fetch(ctx, src, opts, fetchRng)
		done <- loadResult{m: m, err: err}
	}()

	var res loadResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}
	if res.err != nil {
		ms.log.WithFields(logrus.Fields{
			"template": src.TemplateID,
			"chain":    src.ChainID,
			"level":    src.LevelIndex,
			"group":    src.GroupID,
		}).WithError(res.err).Warn("map lookup failed, generating procedurally")
		return Generate(opts, rng)
	}
	return res.m
}

// LoadAsync runs Load in the background and delivers exactly one map. A
// procedural source is delivered before LoadAsync returns.
func (ms *MapService) LoadAsync(ctx context.Context, src Source, opts GenOptions, seed uint64) <-chan *Map {
	out := make(chan *Map, 1)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	if src.Procedural() || ms.store == nil {
		out <- Generate(opts, rng)
		return out
	}
	go func() {
		out <- ms.Load(ctx, src, opts, rng)
	}()
	return out
}

func (ms *MapService) fetch(ctx context.Context, src Source, opts GenOptions, rng *rand.Rand) (*Map, error) {
	id := src.TemplateID
	switch {
	case src.ChainID != "":
		ids, err := ms.store.Chain(ctx, src.ChainID)
		if err != nil {
			return nil, fmt.Errorf("chain %s: %w", src.ChainID, err)
		}
		if src.LevelIndex < 0 || src.LevelIndex >= len(ids) {
			return nil, fmt.Errorf("chain %s level %d: %w", src.ChainID, src.LevelIndex, ErrTemplateNotFound)
		}
		id = ids[src.LevelIndex]
	case src.GroupID != "":
		ids, err := ms.store.Group(ctx, src.GroupID)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", src.GroupID, err)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("group %s is empty: %w", src.GroupID, ErrTemplateNotFound)
		}
		id = ids[rng.IntN(len(ids))]
	}

	tpl, err := ms.store.Template(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}
	return ParseTemplate(tpl.Rows, opts, rng)
}
