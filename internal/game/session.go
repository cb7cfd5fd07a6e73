package game

import (
	"context"
	"fmt"
	"maps"
	"math/rand/v2"
	"slices"

	"github.com/sirupsen/logrus"
)

// State is the lifecycle phase of a session.
type State uint8

const (
	StateInitializing State = iota
	StateActive
	StateLevelTransition
	StateOver
)

func (st State) String() string {
	switch st {
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateLevelTransition:
		return "level_transition"
	case StateOver:
		return "over"
	}
	return "unknown"
}

// Unit types accepted by Join.
const (
	UnitHuman = "human"
	UnitAI    = "ai"
)

// Session owns all mutable state of one match and advances it one step at a
// time. It is not safe for concurrent use; the caller serializes access.
type Session struct {
	ID string

	cfg   Config
	log   logrus.FieldLogger
	rng   *rand.Rand
	maps  *MapService
	mode  Mode
	teams *TeamService
	ai    *aiController

	ctx    context.Context
	cancel context.CancelFunc

	state   State
	m       *Map
	pending <-chan *Map

	players  map[string]*Player
	enemies  map[string]*Enemy
	weapons  map[string]*Weapon
	powerUps map[string]*PowerUp
	bombIdx  *cellIndex
	taken    map[string]bool // power-ups consumed this tick

	purge struct {
		enemies  []string
		weapons  []string
		powerUps []string
	}

	level          int
	round          int
	elapsed        float64
	remaining      float64
	enemiesSpawned int
	joined         int // players seen since the match (re)started
	seq            int
	result         *Result

	events  []Event
	tracker diffTracker
}

// Option configures a Session.
type Option func(*Session)

// WithMapService sets the service used to build maps.
func WithMapService(ms *MapService) Option {
	return func(s *Session) { s.maps = ms }
}

// WithInferencer enables inference-driven AI entities.
func WithInferencer(inf Inferencer) Option {
	return func(s *Session) {
		if inf != nil {
			s.ai = newAIController(inf, s.cfg.AIActionInterval, s.cfg.AITimeout)
		}
	}
}

// WithContext sets the parent context for collaborator calls.
func WithContext(ctx context.Context) Option {
	return func(s *Session) { s.ctx = ctx }
}

// NewSession creates a session and starts loading its first map. A procedural
// map is ready immediately and the session starts Active.
func NewSession(id string, cfg Config, opts ...Option) *Session {
	if cfg.Mode == ModeTeams {
		cfg.EnemiesEnabled = false
	}
	cfg.MaxPlayers = max(1, min(cfg.MaxPlayers, MaxPlayersLimit))
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	s := &Session{
		ID:       id,
		cfg:      cfg,
		rng:      rand.New(rand.NewPCG(seed, seed>>1|1)),
		mode:     NewMode(cfg.Mode),
		teams:    NewTeamService(cfg.MaxPerTeam),
		ctx:      context.Background(),
		state:    StateInitializing,
		players:  make(map[string]*Player),
		enemies:  make(map[string]*Enemy),
		weapons:  make(map[string]*Weapon),
		powerUps: make(map[string]*PowerUp),
		bombIdx:  newCellIndex(),
		taken:    make(map[string]bool),
		level:    1,
		round:    1,
		tracker:  newDiffTracker(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = cfg.logger().WithFields(logrus.Fields{"session": id, "mode": cfg.Mode.String()})
	if s.maps == nil {
		s.maps = NewMapService(nil, cfg.MapTimeout, s.log)
	}
	s.ctx, s.cancel = context.WithCancel(s.ctx)
	s.remaining = s.mode.TimeBudget(&s.cfg)
	s.mode.SetupTeams(s)
	s.beginMapLoad(cfg.Source.ForLevel(1))
	return s
}

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Mode returns the active mode.
func (s *Session) Mode() Mode { return s.mode }

// Level returns the current level (campaign) starting at 1.
func (s *Session) Level() int { return s.level }

// Round returns the current round (training) starting at 1.
func (s *Session) Round() int { return s.round }

// Elapsed returns session time in seconds.
func (s *Session) Elapsed() float64 { return s.elapsed }

// Remaining returns the countdown of the mode, or 0 when it has none.
func (s *Session) Remaining() float64 { return s.remaining }

// Result returns the final result once the session is over.
func (s *Session) Result() *Result { return s.result }

// Map returns the current map, nil while the first map is loading.
func (s *Session) Map() *Map { return s.m }

// Teams returns the team bookkeeping.
func (s *Session) Teams() *TeamService { return s.teams }

// Player returns a player by id.
func (s *Session) Player(id string) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Enemy returns an enemy by id.
func (s *Session) Enemy(id string) (*Enemy, bool) {
	e, ok := s.enemies[id]
	return e, ok
}

// Weapon returns a weapon by id.
func (s *Session) Weapon(id string) (*Weapon, bool) {
	w, ok := s.weapons[id]
	return w, ok
}

// PlayerCount returns the number of joined players.
func (s *Session) PlayerCount() int { return len(s.players) }

// Close cancels in-flight collaborator calls. The session does not advance afterwards.
func (s *Session) Close() {
	s.cancel()
}

func (s *Session) closed() bool {
	return s.ctx.Err() != nil
}

func (s *Session) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s%d", prefix, s.seq)
}

func sortedIDs[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// beginMapLoad requests a map and installs it at once when it is already available.
func (s *Session) beginMapLoad(src Source) {
	s.pending = s.maps.LoadAsync(s.ctx, src, s.cfg.genOptions(), s.rng.Uint64())
	s.pollMap()
}

func (s *Session) pollMap() bool {
	if s.pending == nil {
		return true
	}
	select {
	case m := <-s.pending:
		s.installMap(m)
		return true
	default:
		return false
	}
}

// installMap replaces the grid, moves every player to its spawn cell and
// seeds the enemies for the new level or round.
func (s *Session) installMap(m *Map) {
	version := 1
	if s.m != nil {
		version = s.m.Version + 1
	}
	m.Version = version
	s.m = m
	s.pending = nil
	s.bombIdx.Clear()
	for _, p := range s.playersBySlot() {
		p.relocate(s.spawnFor(p.Slot))
	}
	s.spawnEnemies()
	if s.state != StateOver {
		s.state = StateActive
	}
}

func (s *Session) spawnFor(slot int) GridPos {
	if s.m == nil || len(s.m.PlayerSpawns) == 0 {
		return GridPos{X: 1, Y: 1}
	}
	return s.m.PlayerSpawns[slot%len(s.m.PlayerSpawns)]
}

func (s *Session) spawnEnemies() {
	s.enemiesSpawned = 0
	if !s.cfg.EnemiesEnabled {
		return
	}
	aiDriven := s.cfg.Mode == ModeTraining && s.cfg.TrainTarget == TrainEnemy && s.ai != nil
	for i, cell := range s.m.EnemySpawns {
		if i >= s.cfg.EnemyCount {
			break
		}
		e := newEnemy(s.nextID("e"), rollTier(s.cfg.Difficulty, s.rng), cell, s.cfg.EntitySize)
		if aiDriven {
			e.AI = true
			e.DirTimer = 0
		}
		s.enemies[e.ID] = e
		s.enemiesSpawned++
	}
}

func (s *Session) playersBySlot() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b *Player) int { return a.Slot - b.Slot })
	return out
}

func (s *Session) freeSlot() int {
	used := make(map[int]bool, len(s.players))
	for _, p := range s.players {
		used[p.Slot] = true
	}
	for i := 0; ; i++ {
		if !used[i] {
			return i
		}
	}
}

// clearField removes weapons, power-ups and enemies ahead of a new map.
func (s *Session) clearField() {
	clear(s.weapons)
	clear(s.powerUps)
	clear(s.enemies)
	s.bombIdx.Clear()
}

// Join adds a player. Re-joining a disconnected player inside the grace
// window reattaches it.
func (s *Session) Join(id, unit string) error {
	if id == "" {
		return reject(ReasonInvalid, "player id required")
	}
	if s.state == StateOver {
		return ErrOver
	}
	if p, ok := s.players[id]; ok {
		if p.Disconnected {
			p.Disconnected = false
			return nil
		}
		return ErrDuplicate
	}
	if len(s.players) >= s.cfg.MaxPlayers {
		return ErrFull
	}
	if unit == "" {
		unit = UnitHuman
	}
	slot := s.freeSlot()
	p := newPlayer(id, unit, slot, s.spawnFor(slot), &s.cfg)
	p.AI = unit == UnitAI
	if err := s.mode.AddPlayer(s, p); err != nil {
		return err
	}
	s.players[id] = p
	s.syncTeam(p)
	s.joined++
	return nil
}

// Leave removes a player immediately.
func (s *Session) Leave(id string) error {
	if _, ok := s.players[id]; !ok {
		return ErrNotFound
	}
	s.removePlayer(id)
	return nil
}

func (s *Session) removePlayer(id string) {
	delete(s.players, id)
	s.teams.RemovePlayer(id)
	if s.ai != nil {
		s.ai.forget(id)
	}
}

// Disconnect marks a player as gone; it is removed after the grace period.
func (s *Session) Disconnect(id string) error {
	p, ok := s.players[id]
	if !ok {
		return ErrNotFound
	}
	if !p.Disconnected {
		p.Disconnected = true
		p.DisconnectedAt = s.elapsed
		p.Input = Vec{}
	}
	return nil
}

// SetInput stores a player's movement vector.
func (s *Session) SetInput(id string, v Vec) error {
	if s.state == StateOver {
		return ErrOver
	}
	p, ok := s.players[id]
	if !ok {
		return ErrNotFound
	}
	p.SetInput(v)
	return nil
}

// PlaceWeapon places the weapon of the given loadout slot at the player's cell.
func (s *Session) PlaceWeapon(id string, slot int) (string, error) {
	switch s.state {
	case StateOver:
		return "", ErrOver
	case StateActive:
	default:
		return "", ErrNotActive
	}
	p, ok := s.players[id]
	if !ok {
		return "", ErrNotFound
	}
	return s.placeWeapon(p, slot)
}

func (s *Session) placeWeapon(p *Player, slot int) (string, error) {
	if slot != SlotPrimary && slot != SlotSecondary {
		return "", reject(ReasonInvalid, "unknown weapon slot %d", slot)
	}
	if !p.Alive() {
		return "", ErrDead
	}
	lo := p.Loadout[slot]
	if lo.Kind == WeaponNone {
		return "", reject(ReasonInvalid, "slot %d is empty", slot)
	}
	if s.liveWeapons(p.ID, lo.Kind) >= lo.Max {
		return "", reject(ReasonLimit, "%s limit of %d reached", lo.Kind, lo.Max)
	}

	var w *Weapon
	if lo.Kind == WeaponBullet {
		w = newBullet(s.nextID("w"), p.ID, p.Center(), p.Facing, &s.cfg)
	} else {
		cell := p.Cell()
		if s.m.IsSolid(cell.X, cell.Y) {
			return "", reject(ReasonBlocked, "cell (%d,%d) is solid", cell.X, cell.Y)
		}
		for _, wid := range s.bombIdx.Query(cell) {
			if o := s.weapons[wid]; o != nil && !o.Activated {
				return "", reject(ReasonOccupied, "cell (%d,%d) already holds %s", cell.X, cell.Y, o.Kind)
			}
		}
		w = newWeapon(lo.Kind, s.nextID("w"), p.ID, cell, lo.Power, &s.cfg)
		s.bombIdx.Insert(cell, w.ID)
	}
	w.onExplode = s.onExplode
	s.weapons[w.ID] = w
	return w.ID, nil
}

// liveWeapons counts un-exploded weapons of kind owned by owner.
func (s *Session) liveWeapons(owner string, kind WeaponKind) int {
	n := 0
	for _, w := range s.weapons {
		if w.OwnerID == owner && w.Kind == kind && !w.Activated {
			n++
		}
	}
	return n
}

// Restart starts a rematch: scores reset, teams redistributed, level 1.
func (s *Session) Restart() {
	s.teams.SetupDefaultTeams(s.cfg.Mode, s.cfg.TeamCount)
	s.teams.ResetScores()
	s.level, s.round = 1, 1
	s.elapsed = 0
	s.remaining = s.mode.TimeBudget(&s.cfg)
	s.result = nil
	s.joined = 0
	s.clearField()
	s.state = StateInitializing
	players := s.playersBySlot()
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	if err := s.teams.AutoDistributePlayers(ids, s.cfg.Mode == ModeFreeForAll); err != nil {
		s.log.WithError(err).Warn("rematch team distribution failed, assigning one by one")
		for _, p := range players {
			if _, ok := s.teams.GetPlayerTeam(p.ID); ok {
				continue
			}
			if err := s.mode.AddPlayer(s, p); err != nil {
				s.log.WithField("player", p.ID).WithError(err).Warn("rematch team assignment failed")
			}
		}
	}
	for _, p := range players {
		s.syncTeam(p)
		p.Score = 0
		p.respawnAt(s.spawnFor(p.Slot), &s.cfg)
		s.joined++
	}
	s.beginMapLoad(s.cfg.Source.ForLevel(1))
}

// syncTeam copies the TeamService membership of p into p.TeamID.
func (s *Session) syncTeam(p *Player) {
	if t, ok := s.teams.GetPlayerTeam(p.ID); ok {
		p.TeamID = t.ID
		return
	}
	p.TeamID = 0
}

// Update advances the session by dt seconds.
func (s *Session) Update(dt float64) {
	if s.closed() || s.state == StateOver || dt <= 0 {
		return
	}
	if !s.pollMap() || s.state != StateActive {
		return
	}
	s.elapsed += dt
	if s.ai != nil {
		s.ai.apply(s)
	}
	s.reapDisconnected()

	s.rebuildIndex()
	for _, id := range sortedIDs(s.players) {
		if p := s.players[id]; p != nil {
			s.safely("player", id, func() { s.updatePlayer(p, dt) })
		}
	}
	for _, id := range sortedIDs(s.enemies) {
		if e := s.enemies[id]; e != nil {
			s.safely("enemy", id, func() { s.updateEnemy(e, dt) })
		}
	}
	s.rebuildIndex()
	for _, id := range sortedIDs(s.weapons) {
		if w := s.weapons[id]; w != nil {
			s.safely("weapon", id, func() {
				if w.Update(dt, s) {
					s.purge.weapons = append(s.purge.weapons, id)
				}
			})
		}
	}
	s.flushPurge()

	s.mode.Tick(s, dt)
	if s.state == StateActive && s.mode.IsOver(s) {
		s.mode.OnGameOver(s)
	}
	if s.ai != nil && s.state == StateActive {
		s.ai.request(s)
	}
}

// safely runs fn, logging and swallowing a panic so one entity cannot abort the tick.
func (s *Session) safely(kind, id string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithFields(logrus.Fields{"entity": id, "kind": kind, "panic": r}).
				Error("entity update failed, skipped for this tick")
		}
	}()
	fn()
}

func (s *Session) flushPurge() {
	for _, id := range s.purge.enemies {
		delete(s.enemies, id)
		if s.ai != nil {
			s.ai.forget(id)
		}
	}
	for _, id := range s.purge.weapons {
		delete(s.weapons, id)
	}
	for _, id := range s.purge.powerUps {
		delete(s.powerUps, id)
	}
	s.purge.enemies = s.purge.enemies[:0]
	s.purge.weapons = s.purge.weapons[:0]
	s.purge.powerUps = s.purge.powerUps[:0]
	clear(s.taken)
}

func (s *Session) rebuildIndex() {
	s.bombIdx.Clear()
	for id, w := range s.weapons {
		if w.Kind.IsArea() && !w.Activated {
			s.bombIdx.Insert(w.Footprint(), id)
		}
	}
}

func (s *Session) reapDisconnected() {
	for _, id := range sortedIDs(s.players) {
		p := s.players[id]
		if p.Disconnected && s.elapsed-p.DisconnectedAt >= s.cfg.DisconnectFor {
			s.log.WithField("player", id).Info("disconnect grace expired, removing player")
			s.removePlayer(id)
		}
	}
}

// blockerFor reports cells holding an un-exploded bomb that mover does not own.
func (s *Session) blockerFor(mover string) blocker {
	return func(c GridPos) bool {
		for _, wid := range s.bombIdx.Query(c) {
			w := s.weapons[wid]
			if w != nil && w.Kind == WeaponBomb && !w.Activated && w.OwnerID != mover {
				return true
			}
		}
		return false
	}
}

func (s *Session) updatePlayer(p *Player, dt float64) {
	p.TickInvulnerability(dt)
	if !p.Alive() {
		if p.RespawnTimer > 0 {
			p.RespawnTimer -= dt
			if p.RespawnTimer <= 0 {
				p.respawnAt(s.spawnFor(p.Slot), &s.cfg)
			}
		}
		return
	}
	for _, slot := range p.drainFire() {
		if _, err := s.placeWeapon(p, slot); err != nil {
			s.log.WithFields(logrus.Fields{"entity": p.ID, "reason": ReasonOf(err)}).Debug("ai weapon request rejected")
		}
	}

	v := p.velocity()
	res := moveEntity(&p.Entity, s.m, Vec{X: v.X * dt, Y: v.Y * dt}, s.blockerFor(p.ID))
	if p.AI && s.mode.ReportsRewards() {
		if res.moved {
			s.emit(Event{Kind: EventMoved, Entity: p.ID})
		} else {
			s.emit(Event{Kind: EventIdle, Entity: p.ID})
		}
	}

	for _, id := range sortedIDs(s.powerUps) {
		u := s.powerUps[id]
		if s.taken[id] || !p.Overlaps(&u.Entity) {
			continue
		}
		s.taken[id] = true
		s.purge.powerUps = append(s.purge.powerUps, id)
		u.Apply(p)
		s.emit(Event{Kind: EventPickup, Entity: p.ID, Source: u.Kind.String()})
	}

	if !p.Invulnerable {
		for _, id := range sortedIDs(s.enemies) {
			e := s.enemies[id]
			if !e.Destroyed && p.Overlaps(&e.Entity) {
				s.handlePlayerHit(p, e.ID)
				break
			}
		}
	}
}

func (s *Session) updateEnemy(e *Enemy, dt float64) {
	wasDestroyed := e.Destroyed
	x, y := e.X, e.Y
	if e.Update(dt, s.m, s.blockerFor(e.ID), s.rng) {
		s.purge.enemies = append(s.purge.enemies, e.ID)
		return
	}
	if e.AI && !wasDestroyed && s.mode.ReportsRewards() {
		if e.X != x || e.Y != y {
			s.emit(Event{Kind: EventMoved, Entity: e.ID})
		} else {
			s.emit(Event{Kind: EventIdle, Entity: e.ID})
		}
	}
}

// handlePlayerHit applies one hit from attacker. No-op while invulnerable.
func (s *Session) handlePlayerHit(p *Player, attacker string) {
	if !p.takeHit(s.cfg.Invulnerable) {
		return
	}
	if attacker == p.ID {
		s.emit(Event{Kind: EventSelfHit, Entity: p.ID, Source: attacker})
	} else {
		s.emit(Event{Kind: EventHit, Entity: p.ID, Source: attacker})
		if a, ok := s.players[attacker]; ok && a.TeamID != p.TeamID {
			a.Score += s.cfg.PlayerKillScore
			s.teams.AddScoreToPlayerTeam(attacker, s.cfg.PlayerKillScore)
		}
	}
	if p.Lives == 0 {
		p.Input = Vec{}
		s.emit(Event{Kind: EventDestroyed, Entity: p.ID, Source: attacker})
		s.mode.OnPlayerDown(s, p)
	}
}

// handleEnemyHit applies one hit from attacker. No-op while invulnerable.
func (s *Session) handleEnemyHit(e *Enemy, attacker string) {
	if e.Destroyed || !e.takeHit(s.cfg.Invulnerable) {
		return
	}
	s.emit(Event{Kind: EventHit, Entity: e.ID, Source: attacker})
	if e.Lives > 0 {
		return
	}
	e.destroy(attacker, s.cfg.DestroyDuration)
	s.emit(Event{Kind: EventDestroyed, Entity: e.ID, Source: attacker})
	if a, ok := s.players[attacker]; ok {
		a.Score += s.cfg.EnemyKillScore
		s.teams.AddScoreToPlayerTeam(attacker, s.cfg.EnemyKillScore)
		s.emit(Event{Kind: EventEnemyKilled, Entity: attacker, Source: e.ID, Value: s.cfg.EnemyKillScore})
	}
}

// onExplode resolves hits in the blast, drops power-ups from destroyed blocks
// and activates every other live weapon whose footprint is in the blast.
func (s *Session) onExplode(w *Weapon) {
	cells := make(map[GridPos]bool, len(w.ExplosionCells))
	for _, c := range w.ExplosionCells {
		cells[c] = true
	}
	for _, id := range sortedIDs(s.players) {
		if w.Kind == WeaponBullet && id == w.OwnerID {
			continue // a shooter is never hit by its own bullet
		}
		if p := s.players[id]; p.Alive() && cells[p.Cell()] {
			s.handlePlayerHit(p, w.OwnerID)
		}
	}
	for _, id := range sortedIDs(s.enemies) {
		if e := s.enemies[id]; !e.Destroyed && cells[e.Cell()] {
			s.handleEnemyHit(e, w.OwnerID)
		}
	}
	for _, c := range w.DestroyedBlocks {
		if s.rng.Float64() < s.cfg.PowerUpDropChance {
			u := newPowerUp(s.nextID("u"), randomPowerUpKind(s.rng), c)
			s.powerUps[u.ID] = u
		}
	}
	for _, id := range sortedIDs(s.weapons) {
		o := s.weapons[id]
		if o != w && !o.Activated && cells[o.Footprint()] {
			o.Activate(s.m)
		}
	}
}

func (s *Session) grid() *Map { return s.m }

func (s *Session) mineTrigger(w *Weapon) string {
	cell := w.Footprint()
	for _, id := range sortedIDs(s.players) {
		p := s.players[id]
		if id != w.OwnerID && p.Alive() && p.OverlapsCell(cell) {
			return id
		}
	}
	for _, id := range sortedIDs(s.enemies) {
		e := s.enemies[id]
		if !e.Destroyed && e.OverlapsCell(cell) {
			return id
		}
	}
	return ""
}

func (s *Session) bulletTarget(w *Weapon) (string, GridPos) {
	for _, id := range sortedIDs(s.players) {
		p := s.players[id]
		if id != w.OwnerID && p.Alive() && w.Overlaps(&p.Entity) {
			return id, p.Cell()
		}
	}
	for _, id := range sortedIDs(s.enemies) {
		e := s.enemies[id]
		if !e.Destroyed && w.Overlaps(&e.Entity) {
			return id, e.Cell()
		}
	}
	return "", GridPos{}
}

// alivePlayers returns the players with lives left, in id order.
func (s *Session) alivePlayers() []*Player {
	var out []*Player
	for _, id := range sortedIDs(s.players) {
		if p := s.players[id]; p.Alive() {
			out = append(out, p)
		}
	}
	return out
}

// allPlayersDown reports whether at least one player joined and none has lives left.
func (s *Session) allPlayersDown() bool {
	return len(s.players) > 0 && len(s.alivePlayers()) == 0
}

func (s *Session) liveEnemies() int {
	n := 0
	for _, e := range s.enemies {
		if !e.Destroyed {
			n++
		}
	}
	return n
}

// enemiesCleared reports whether this level had enemies and all are destroyed.
func (s *Session) enemiesCleared() bool {
	return s.cfg.EnemiesEnabled && s.enemiesSpawned > 0 && s.liveEnemies() == 0
}

// advanceLevel credits the level bonus and loads the next map.
func (s *Session) advanceLevel() {
	for _, t := range s.teams.Teams() {
		s.teams.AddScore(t.ID, s.cfg.LevelBonus)
	}
	s.level++
	s.emit(Event{Kind: EventLevelUp, Value: s.level})
	s.log.WithField("level", s.level).Info("level complete")
	s.state = StateLevelTransition
	s.clearField()
	s.beginMapLoad(s.cfg.Source.ForLevel(s.level))
}

// resetRound restores every player and loads a fresh map for the next round.
func (s *Session) resetRound() {
	s.round++
	s.remaining = s.mode.TimeBudget(&s.cfg)
	s.state = StateLevelTransition
	s.clearField()
	for _, p := range s.playersBySlot() {
		p.respawnAt(s.spawnFor(p.Slot), &s.cfg)
	}
	s.beginMapLoad(s.cfg.Source)
}

func (s *Session) finish(outcome Outcome, winner int, reason string) {
	s.state = StateOver
	s.result = &Result{Outcome: outcome, WinnerTeam: winner, Reason: reason}
	kind := EventDraw
	switch outcome {
	case OutcomeWin:
		kind = EventWin
	case OutcomeLoss:
		kind = EventLoss
	}
	s.emit(Event{Kind: kind, Team: winner, Source: reason})
	s.log.WithFields(logrus.Fields{"outcome": outcome, "winner": winner, "reason": reason}).Info("session over")
}
