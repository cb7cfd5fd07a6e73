package game

// training plays campaign-style rounds for AI training. Each resolution
// (players down, enemies cleared, or round timeout) ends the round with an
// outcome event for one side, then the field resets.
type training struct{}

func (training) Kind() ModeKind { return ModeTraining }

func (training) SetupTeams(s *Session) {
	s.teams.SetupDefaultTeams(ModeTraining, 1)
}

func (training) AddPlayer(s *Session, p *Player) error {
	return joinFirstTeam(s, p)
}

func (training) Tick(s *Session, dt float64) {
	if s.cfg.RoundTime > 0 {
		s.remaining = max(s.remaining-dt, 0)
	}
}

func (training) IsOver(s *Session) bool {
	if s.allPlayersDown() || s.enemiesCleared() {
		return true
	}
	return s.cfg.RoundTime > 0 && s.remaining <= 0
}

func (training) OnGameOver(s *Session) {
	var winner string
	switch {
	case s.allPlayersDown():
		winner = SideEnemy
	case s.enemiesCleared():
		winner = SidePlayer
	default:
		// nobody resolved the round; the trainee is charged with the timeout
		winner = SidePlayer
		if s.cfg.TrainTarget == TrainPlayer {
			winner = SideEnemy
		}
		s.emit(Event{Kind: EventTimeout, Side: winner, Value: s.round})
	}
	loser := SidePlayer
	if winner == SidePlayer {
		loser = SideEnemy
	}
	s.emit(Event{Kind: EventWin, Side: winner, Value: s.round})
	s.emit(Event{Kind: EventLoss, Side: loser, Value: s.round})
	if winner == SidePlayer {
		for _, team := range s.teams.Teams() {
			s.teams.AddScore(team.ID, s.cfg.LevelBonus)
		}
	}
	s.emit(Event{Kind: EventRoundEnd, Side: winner, Value: s.round})

	if s.cfg.MaxRounds > 0 && s.round >= s.cfg.MaxRounds {
		outcome := OutcomeLoss
		if winner == SidePlayer {
			outcome = OutcomeWin
		}
		s.finish(outcome, 0, "final round "+winner)
		return
	}
	s.resetRound()
}

func (training) OnPlayerDown(*Session, *Player) {}

func (training) ReportsRewards() bool { return true }

func (training) TimeBudget(cfg *Config) float64 { return cfg.RoundTime }
