package game

// freeForAll gives every player a team of its own; the last one standing wins.
type freeForAll struct{}

func (freeForAll) Kind() ModeKind { return ModeFreeForAll }

func (freeForAll) SetupTeams(s *Session) {
	s.teams.SetupDefaultTeams(ModeFreeForAll, 0)
}

func (freeForAll) AddPlayer(s *Session, p *Player) error {
	if t, ok := s.teams.GetPlayerTeam(p.ID); ok {
		p.TeamID = t.ID
		return nil
	}
	t := s.teams.CreateTeam(p.ID)
	return s.teams.AddPlayerToTeam(p.ID, t.ID)
}

func (freeForAll) Tick(*Session, float64) {}

// IsOver needs two players to have taken part, so a lone joiner does not win at once.
func (freeForAll) IsOver(s *Session) bool {
	return s.joined >= 2 && len(s.alivePlayers()) <= 1
}

func (freeForAll) OnGameOver(s *Session) {
	alive := s.alivePlayers()
	if len(alive) != 1 {
		s.finish(OutcomeDraw, 0, "no survivors")
		return
	}
	winner := alive[0]
	winner.Score += s.cfg.WinBonus
	s.teams.AddScoreToPlayerTeam(winner.ID, s.cfg.WinBonus)
	s.finish(OutcomeWin, winner.TeamID, "last player standing")
}

func (freeForAll) OnPlayerDown(*Session, *Player) {}

func (freeForAll) ReportsRewards() bool { return false }

func (freeForAll) TimeBudget(*Config) float64 { return 0 }
