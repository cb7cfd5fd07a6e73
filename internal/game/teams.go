package game

// teamMode is team-score play without enemies: downed players respawn, and the
// match ends at the score limit or when the countdown runs out.
type teamMode struct{}

func (teamMode) Kind() ModeKind { return ModeTeams }

func (teamMode) SetupTeams(s *Session) {
	s.teams.SetupDefaultTeams(ModeTeams, s.cfg.TeamCount)
}

func (teamMode) AddPlayer(s *Session, p *Player) error {
	id := s.teams.SmallestTeam()
	if id == 0 {
		return reject(ReasonFull, "all teams are full")
	}
	return s.teams.AddPlayerToTeam(p.ID, id)
}

func (teamMode) Tick(s *Session, dt float64) {
	if s.cfg.TimeLimit > 0 {
		s.remaining = max(s.remaining-dt, 0)
	}
}

func (teamMode) IsOver(s *Session) bool {
	if s.cfg.ScoreLimit > 0 {
		for _, t := range s.teams.Teams() {
			if t.Score >= s.cfg.ScoreLimit {
				return true
			}
		}
	}
	return s.cfg.TimeLimit > 0 && s.remaining <= 0
}

func (teamMode) OnGameOver(s *Session) {
	reason := "score limit reached"
	if s.cfg.TimeLimit > 0 && s.remaining <= 0 {
		reason = "time expired"
	}
	if id := leadingTeam(s.teams); id != 0 {
		s.finish(OutcomeWin, id, reason)
		return
	}
	s.finish(OutcomeDraw, 0, reason)
}

func (teamMode) OnPlayerDown(s *Session, p *Player) {
	if s.cfg.RespawnDelay <= 0 {
		p.respawnAt(s.spawnFor(p.Slot), &s.cfg)
		return
	}
	p.RespawnTimer = s.cfg.RespawnDelay
}

func (teamMode) ReportsRewards() bool { return false }

func (teamMode) TimeBudget(cfg *Config) float64 { return cfg.TimeLimit }
