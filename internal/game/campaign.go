package game

// campaign is cooperative play on one team: clear every enemy to advance a
// level, lose when every player is out of lives.
type campaign struct{}

func (campaign) Kind() ModeKind { return ModeCampaign }

func (campaign) SetupTeams(s *Session) {
	s.teams.SetupDefaultTeams(ModeCampaign, 1)
}

func (campaign) AddPlayer(s *Session, p *Player) error {
	return joinFirstTeam(s, p)
}

func (campaign) Tick(*Session, float64) {}

func (campaign) IsOver(s *Session) bool {
	return s.allPlayersDown() || s.enemiesCleared()
}

func (campaign) OnGameOver(s *Session) {
	if s.allPlayersDown() {
		s.finish(OutcomeLoss, 0, "all players down")
		return
	}
	if s.cfg.MaxLevel > 0 && s.level >= s.cfg.MaxLevel {
		for _, t := range s.teams.Teams() {
			s.teams.AddScore(t.ID, s.cfg.LevelBonus)
		}
		s.finish(OutcomeWin, leadingTeam(s.teams), "final level cleared")
		return
	}
	s.advanceLevel()
}

func (campaign) OnPlayerDown(*Session, *Player) {}

func (campaign) ReportsRewards() bool { return false }

func (campaign) TimeBudget(*Config) float64 { return 0 }
