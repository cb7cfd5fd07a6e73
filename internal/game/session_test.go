package game

import (
	"errors"
	"testing"
)

func newTestSession(t *testing.T, cfg Config, rows ...string) *Session {
	t.Helper()
	cfg.Logger = quietLogger()
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	s := NewSession("s1", cfg)
	if s.State() != StateActive {
		t.Fatalf("procedural session should start active, got %v", s.State())
	}
	if len(rows) > 0 {
		m, err := ParseTemplate(rows, GenOptions{MaxPlayers: cfg.MaxPlayers}, testRNG())
		if err != nil {
			t.Fatalf("parse template: %v", err)
		}
		s.clearField()
		s.installMap(m)
	}
	return s
}

func mustJoin(t *testing.T, s *Session, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := s.Join(id, UnitHuman); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
}

func plant(s *Session, kind WeaponKind, owner string, cell GridPos, power int) *Weapon {
	w := newWeapon(kind, s.nextID("w"), owner, cell, power, &s.cfg)
	w.onExplode = s.onExplode
	s.weapons[w.ID] = w
	s.rebuildIndex()
	return w
}

var openRoom = []string{
	"#########",
	"#P.....P#",
	"#.......#",
	"#.......#",
	"#.......#",
	"#P.....P#",
	"#########",
}

func TestJoinCampaignSpawnsAndFull(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeCampaign))
	mustJoin(t, s, "p1", "p2")

	p1, _ := s.Player("p1")
	p2, _ := s.Player("p2")
	if p1.Cell() != (GridPos{X: 1, Y: 1}) {
		t.Errorf("p1 spawn = %v, want top-left corner", p1.Cell())
	}
	if p2.Cell() != (GridPos{X: 13, Y: 1}) {
		t.Errorf("p2 spawn = %v, want top-right corner", p2.Cell())
	}

	mustJoin(t, s, "p3", "p4")
	err := s.Join("p5", UnitHuman)
	if !errors.Is(err, ErrFull) {
		t.Fatalf("fifth join err = %v, want full", err)
	}
	if ReasonOf(err) != ReasonFull {
		t.Errorf("reason = %q", ReasonOf(err))
	}
	if s.PlayerCount() != 4 {
		t.Errorf("player count = %d after rejected join", s.PlayerCount())
	}
	if _, ok := s.teams.GetPlayerTeam("p5"); ok {
		t.Error("rejected join must not touch teams")
	}
	if !errors.Is(s.Join("p1", UnitHuman), ErrDuplicate) {
		t.Error("joining twice should be rejected")
	}
}

func TestPlaceWeaponLimits(t *testing.T) {
	cfg := DefaultConfig(ModeFreeForAll)
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "p1")
	p, _ := s.Player("p1")

	if _, err := s.PlaceWeapon("p1", SlotPrimary); err != nil {
		t.Fatalf("first bomb: %v", err)
	}
	if _, err := s.PlaceWeapon("p1", SlotPrimary); !errors.Is(err, ErrLimit) {
		t.Fatalf("second bomb err = %v, want limit", err)
	}

	p.Loadout[SlotPrimary].Max = 2
	if _, err := s.PlaceWeapon("p1", SlotPrimary); !errors.Is(err, ErrOccupied) {
		t.Fatalf("bomb on a bomb err = %v, want occupied", err)
	}
	p.PlaceAt(GridPos{X: 3, Y: 3})
	if _, err := s.PlaceWeapon("p1", SlotPrimary); err != nil {
		t.Fatalf("second bomb elsewhere: %v", err)
	}
	p.PlaceAt(GridPos{X: 5, Y: 3})
	if _, err := s.PlaceWeapon("p1", SlotPrimary); !errors.Is(err, ErrLimit) {
		t.Fatalf("third bomb err = %v, want limit", err)
	}
	if s.liveWeapons("p1", WeaponBomb) != 2 {
		t.Errorf("live bombs = %d, want 2", s.liveWeapons("p1", WeaponBomb))
	}

	if _, err := s.PlaceWeapon("ghost", SlotPrimary); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown player err = %v", err)
	}
	if _, err := s.PlaceWeapon("p1", 7); !errors.Is(err, ErrInvalid) {
		t.Errorf("bad slot err = %v", err)
	}
	p.Lives = 0
	if _, err := s.PlaceWeapon("p1", SlotSecondary); !errors.Is(err, ErrDead) {
		t.Errorf("dead player err = %v", err)
	}
}

func TestExplodedWeaponFreesSlot(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeFreeForAll), openRoom...)
	mustJoin(t, s, "p1")
	id, err := s.PlaceWeapon("p1", SlotPrimary)
	if err != nil {
		t.Fatal(err)
	}
	w, _ := s.Weapon(id)
	w.Activate(s.m)
	p, _ := s.Player("p1")
	p.PlaceAt(GridPos{X: 4, Y: 3})
	if _, err := s.PlaceWeapon("p1", SlotPrimary); err != nil {
		t.Errorf("exploded bomb should not count against the limit: %v", err)
	}
}

func TestChainReaction(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeFreeForAll), openRoom...)
	a := plant(s, WeaponBomb, "p1", GridPos{X: 2, Y: 3}, 2)
	b := plant(s, WeaponBomb, "p2", GridPos{X: 4, Y: 3}, 2) // overlaps a both ways
	c := plant(s, WeaponMine, "p3", GridPos{X: 6, Y: 3}, 1) // reached only by b
	far := plant(s, WeaponBomb, "p4", GridPos{X: 7, Y: 1}, 1)

	a.Activate(s.m)
	for _, w := range []*Weapon{a, b, c} {
		if !w.Activated {
			t.Errorf("%s should be activated by the chain", w.ID)
		}
		if len(w.ExplosionCells) == 0 {
			t.Errorf("%s has no explosion cells", w.ID)
		}
	}
	if far.Activated {
		t.Error("weapon outside every blast must stay live")
	}
}

func TestEnemyInvulnerabilityWindow(t *testing.T) {
	cfg := DefaultConfig(ModeCampaign)
	s := newTestSession(t, cfg, openRoom...)
	e := newEnemy("e1", EnemyTough, GridPos{X: 4, Y: 3}, cfg.EntitySize)
	s.enemies[e.ID] = e

	s.handleEnemyHit(e, "p1")
	if e.Lives != 1 || !e.Invulnerable || e.InvulnerableTimer != cfg.Invulnerable {
		t.Fatalf("after first hit: lives=%d inv=%v timer=%v", e.Lives, e.Invulnerable, e.InvulnerableTimer)
	}
	for i := 0; i < 10; i++ {
		e.TickInvulnerability(cfg.Invulnerable / 20)
		s.handleEnemyHit(e, "p1")
	}
	if e.Lives != 1 || e.Destroyed {
		t.Fatalf("hits inside the window must not land: lives=%d", e.Lives)
	}

	e.TickInvulnerability(cfg.Invulnerable)
	if e.Invulnerable {
		t.Fatal("window should have expired")
	}
	s.handleEnemyHit(e, "p1")
	if e.Lives != 0 || !e.Destroyed {
		t.Fatalf("lethal hit: lives=%d destroyed=%v", e.Lives, e.Destroyed)
	}
	if e.DestroyTimer != cfg.DestroyDuration {
		t.Errorf("destroy timer = %v", e.DestroyTimer)
	}
}

func TestDestroyedEnemyPurgedAfterAnimation(t *testing.T) {
	cfg := DefaultConfig(ModeCampaign)
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "p1")
	clear(s.enemies)
	e := newEnemy("e1", EnemyBasic, GridPos{X: 4, Y: 3}, cfg.EntitySize)
	other := newEnemy("e2", EnemyBasic, GridPos{X: 4, Y: 5}, cfg.EntitySize)
	s.enemies[e.ID], s.enemies[other.ID] = e, other
	s.enemiesSpawned = 2

	s.handleEnemyHit(e, "p1")
	s.Update(cfg.DestroyDuration / 2)
	if _, ok := s.Enemy("e1"); !ok {
		t.Fatal("enemy removed before its animation finished")
	}
	s.Update(cfg.DestroyDuration)
	if _, ok := s.Enemy("e1"); ok {
		t.Fatal("enemy should be purged after its animation")
	}
}

func TestPlayerRepeatedHitsInsideWindow(t *testing.T) {
	cfg := DefaultConfig(ModeCampaign)
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "p1")
	p, _ := s.Player("p1")

	s.handlePlayerHit(p, "e1")
	lives := p.Lives
	for elapsed := 0.0; elapsed < cfg.Invulnerable-0.1; elapsed += 0.1 {
		p.TickInvulnerability(0.1)
		s.handlePlayerHit(p, "e1")
	}
	if p.Lives != lives {
		t.Errorf("lives dropped from %d to %d inside the window", lives, p.Lives)
	}
}

func TestCampaignLevelUp(t *testing.T) {
	cfg := DefaultConfig(ModeCampaign)
	s := newTestSession(t, cfg)
	mustJoin(t, s, "p1", "p2")
	if len(s.enemies) == 0 {
		t.Fatal("campaign should spawn enemies")
	}

	p1, _ := s.Player("p1")
	p1.PlaceAt(GridPos{X: 3, Y: 1})
	plant(s, WeaponBomb, "p1", GridPos{X: 3, Y: 1}, 1).Fuse = 100
	s.powerUps["u1"] = newPowerUp("u1", PowerSpeed, GridPos{X: 5, Y: 1})

	for _, e := range s.enemies {
		for !e.Destroyed {
			e.Invulnerable = false
			s.handleEnemyHit(e, "")
		}
	}
	before := s.Map()
	s.Update(0.016)

	if s.Level() != 2 {
		t.Fatalf("level = %d, want 2", s.Level())
	}
	if s.State() != StateActive {
		t.Errorf("state = %v after level up", s.State())
	}
	if s.Map() == before || s.Map().Version != before.Version+1 {
		t.Error("map should be regenerated")
	}
	if len(s.weapons) != 0 || len(s.powerUps) != 0 {
		t.Errorf("weapons=%d powerups=%d, want cleared", len(s.weapons), len(s.powerUps))
	}
	for _, p := range s.players {
		if p.Cell() != s.Map().PlayerSpawns[p.Slot] {
			t.Errorf("%s at %v, want spawn %v", p.ID, p.Cell(), s.Map().PlayerSpawns[p.Slot])
		}
	}
	team, _ := s.teams.GetPlayerTeam("p1")
	if team.Score != cfg.LevelBonus {
		t.Errorf("team score = %d, want level bonus %d", team.Score, cfg.LevelBonus)
	}
	if s.liveEnemies() == 0 {
		t.Error("next level should have fresh enemies")
	}
}

func TestCampaignLossWhenAllDown(t *testing.T) {
	cfg := DefaultConfig(ModeCampaign)
	s := newTestSession(t, cfg)
	mustJoin(t, s, "p1")
	p, _ := s.Player("p1")
	p.Lives = 0
	s.Update(0.016)
	if s.State() != StateOver || s.Result().Outcome != OutcomeLoss {
		t.Fatalf("state=%v result=%+v", s.State(), s.Result())
	}
	if !errors.Is(s.Join("late", UnitHuman), ErrOver) {
		t.Error("join after game over should fail")
	}
}

func TestFreeForAllLastStanding(t *testing.T) {
	cfg := DefaultConfig(ModeFreeForAll)
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "p1", "p2", "p3")
	p1, _ := s.Player("p1")
	p2, _ := s.Player("p2")
	p3, _ := s.Player("p3")
	p2.Lives, p3.Lives = 1, 1
	p2.PlaceAt(GridPos{X: 4, Y: 2})
	p3.PlaceAt(GridPos{X: 4, Y: 4})

	plant(s, WeaponBomb, "p1", GridPos{X: 4, Y: 3}, 1).Fuse = 0.01
	s.Update(0.05)

	if s.State() != StateOver {
		t.Fatalf("state = %v, want over", s.State())
	}
	res := s.Result()
	if res.Outcome != OutcomeWin || res.WinnerTeam != p1.TeamID {
		t.Fatalf("result = %+v, want p1's team %d", res, p1.TeamID)
	}
	team, _ := s.teams.GetPlayerTeam("p1")
	if want := cfg.WinBonus + 2*cfg.PlayerKillScore; team.Score != want {
		t.Errorf("winner team score = %d, want %d", team.Score, want)
	}
}

func TestFreeForAllSinglePlayerNotOver(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeFreeForAll), openRoom...)
	mustJoin(t, s, "p1")
	s.Update(0.1)
	if s.State() != StateActive {
		t.Error("a lone player should not win immediately")
	}
}

func TestTeamModeScoreLimitAndRespawn(t *testing.T) {
	cfg := DefaultConfig(ModeTeams)
	cfg.ScoreLimit = 2
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "a", "b")
	a, _ := s.Player("a")
	b, _ := s.Player("b")
	if a.TeamID == b.TeamID || a.TeamID == 0 {
		t.Fatalf("players should be on different teams: %d %d", a.TeamID, b.TeamID)
	}
	if len(s.enemies) != 0 {
		t.Error("team mode has no enemies")
	}

	b.Lives = 1
	s.handlePlayerHit(b, "a")
	if b.Alive() || b.RespawnTimer != cfg.RespawnDelay {
		t.Fatalf("b should be waiting to respawn: lives=%d timer=%v", b.Lives, b.RespawnTimer)
	}
	for i := 0; i < 4; i++ {
		s.Update(1)
	}
	if b.Lives != cfg.PlayerLives {
		t.Errorf("b lives after respawn = %d", b.Lives)
	}
	if s.State() != StateActive {
		t.Fatalf("state = %v after one point", s.State())
	}

	b.Invulnerable = false
	b.Lives = 1
	s.handlePlayerHit(b, "a")
	s.Update(0.016)
	if s.State() != StateOver || s.Result().WinnerTeam != a.TeamID {
		t.Fatalf("state=%v result=%+v", s.State(), s.Result())
	}
}

func TestTeamModeTimeoutDraw(t *testing.T) {
	cfg := DefaultConfig(ModeTeams)
	cfg.TimeLimit = 1
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "a", "b")
	for i := 0; i < 3; i++ {
		s.Update(0.5)
	}
	if s.State() != StateOver || s.Result().Outcome != OutcomeDraw {
		t.Fatalf("state=%v result=%+v", s.State(), s.Result())
	}
}

func TestTrainingTimeoutRounds(t *testing.T) {
	cfg := DefaultConfig(ModeTraining)
	cfg.RoundTime = 1
	cfg.MaxRounds = 2
	cfg.EnemyCount = 1
	s := newTestSession(t, cfg)
	mustJoin(t, s, "p1")
	s.Diff()

	for i := 0; i < 6 && s.Round() == 1; i++ {
		s.Update(0.25)
	}
	if s.Round() != 2 {
		t.Fatalf("round = %d, want 2", s.Round())
	}
	var timeout *Event
	d := s.Diff()
	for i, ev := range d.Events {
		if ev.Kind == EventTimeout {
			timeout = &d.Events[i]
		}
	}
	if timeout == nil || timeout.Side != SideEnemy {
		t.Fatalf("expected timeout credited to the enemy side, events=%v", d.Events)
	}
	if s.Remaining() != cfg.RoundTime {
		t.Errorf("remaining = %v, want reset", s.Remaining())
	}

	for i := 0; i < 6 && s.State() != StateOver; i++ {
		s.Update(0.25)
	}
	if s.State() != StateOver {
		t.Fatal("session should end after the last round")
	}
}

func TestTrainingSelfHitEvent(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeTraining), openRoom...)
	mustJoin(t, s, "p1")
	p, _ := s.Player("p1")
	s.Diff()
	s.handlePlayerHit(p, "p1")
	evs := s.Diff().Events
	if len(evs) != 1 || evs[0].Kind != EventSelfHit {
		t.Errorf("events = %v, want one self_hit", evs)
	}
}

func TestPlayerPicksUpPowerUp(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeFreeForAll), openRoom...)
	mustJoin(t, s, "p1", "p2")
	p, _ := s.Player("p1")
	s.powerUps["u1"] = newPowerUp("u1", PowerLife, p.Cell())
	lives := p.Lives
	s.Update(0.016)
	if p.Lives != lives+1 {
		t.Errorf("lives = %d, want %d", p.Lives, lives+1)
	}
	if len(s.powerUps) != 0 {
		t.Error("power-up should be consumed")
	}
}

func TestEnemyContactDamagesPlayer(t *testing.T) {
	cfg := DefaultConfig(ModeCampaign)
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "p1")
	p, _ := s.Player("p1")
	e := newEnemy("e9", EnemyBasic, p.Cell(), cfg.EntitySize)
	s.enemies[e.ID] = e
	s.enemiesSpawned++
	lives := p.Lives
	s.Update(0.016)
	if p.Lives != lives-1 || !p.Invulnerable {
		t.Errorf("lives=%d inv=%v after contact", p.Lives, p.Invulnerable)
	}
}

func TestDisconnectGrace(t *testing.T) {
	cfg := DefaultConfig(ModeFreeForAll)
	cfg.DisconnectFor = 1
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "p1", "p2")

	if err := s.Disconnect("p1"); err != nil {
		t.Fatal(err)
	}
	s.Update(0.5)
	if err := s.Join("p1", UnitHuman); err != nil {
		t.Fatalf("rejoin inside grace: %v", err)
	}
	p, _ := s.Player("p1")
	if p.Disconnected {
		t.Error("rejoin should reattach")
	}

	s.Disconnect("p1")
	for i := 0; i < 5; i++ {
		s.Update(0.5)
	}
	if _, ok := s.Player("p1"); ok {
		t.Error("player should be removed after the grace period")
	}
	if _, ok := s.teams.GetPlayerTeam("p1"); ok {
		t.Error("removed player should leave its team")
	}
}

func TestEntityFaultIsolated(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeFreeForAll), openRoom...)
	bad := plant(s, WeaponBomb, "p1", GridPos{X: 2, Y: 2}, 1)
	bad.Fuse = 0.001
	bad.onExplode = func(*Weapon) { panic("boom") }
	good := plant(s, WeaponBomb, "p2", GridPos{X: 6, Y: 4}, 1)
	good.Fuse = 0.001

	s.Update(0.016)
	if !good.Activated {
		t.Error("a fault in one weapon must not stop the others")
	}
	if s.Elapsed() == 0 {
		t.Error("tick should complete")
	}
}

func TestRestartResetsScores(t *testing.T) {
	cfg := DefaultConfig(ModeTeams)
	s := newTestSession(t, cfg, openRoom...)
	mustJoin(t, s, "a", "b", "c")
	s.teams.AddScoreToPlayerTeam("a", 5)
	s.Restart()
	for _, team := range s.teams.Teams() {
		if team.Score != 0 {
			t.Errorf("team %s score = %d after restart", team.Name, team.Score)
		}
	}
	if s.Level() != 1 || s.State() != StateActive {
		t.Errorf("level=%d state=%v", s.Level(), s.State())
	}
	for _, id := range []string{"a", "b", "c"} {
		p, _ := s.Player(id)
		if p.TeamID == 0 {
			t.Errorf("%s has no team after restart", id)
		}
	}
}

func TestCloseStopsUpdates(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeFreeForAll), openRoom...)
	s.Close()
	s.Update(1)
	if s.Elapsed() != 0 {
		t.Error("closed session must not advance")
	}
}

func TestBulletIntoAdjacentWallSparesShooter(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeTeams), openRoom...)
	mustJoin(t, s, "a", "b")
	a, _ := s.Player("a")
	a.PlaceAt(GridPos{X: 1, Y: 1})
	a.Facing = DirUp
	a.Invulnerable, a.InvulnerableTimer = false, 0

	id, err := s.PlaceWeapon("a", SlotSecondary)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		s.Update(0.016)
	}
	if a.Lives != s.cfg.PlayerLives {
		t.Errorf("shooter lives = %d, want %d", a.Lives, s.cfg.PlayerLives)
	}
	if _, ok := s.weapons[id]; ok {
		t.Error("bullet should be purged after impact")
	}
}

func TestRestartRedistributesTeams(t *testing.T) {
	s := newTestSession(t, DefaultConfig(ModeTeams), openRoom...)
	mustJoin(t, s, "a", "b", "c", "d")
	s.Restart()
	counts := map[int]int{}
	for _, id := range []string{"a", "b", "c", "d"} {
		p, _ := s.Player(id)
		counts[p.TeamID]++
	}
	if len(counts) != 2 || counts[1] != 2 || counts[2] != 2 {
		t.Errorf("team sizes after restart = %v", counts)
	}

	ffa := newTestSession(t, DefaultConfig(ModeFreeForAll), openRoom...)
	mustJoin(t, ffa, "x", "y")
	ffa.Restart()
	x, _ := ffa.Player("x")
	y, _ := ffa.Player("y")
	if x.TeamID == 0 || x.TeamID == y.TeamID || len(ffa.teams.Teams()) != 2 {
		t.Errorf("free-for-all teams after restart: x=%d y=%d teams=%d", x.TeamID, y.TeamID, len(ffa.teams.Teams()))
	}
}
