package game

// Mode is the win/lose/progression policy plugged into the shared tick.
type Mode interface {
	Kind() ModeKind
	// SetupTeams creates the initial team set.
	SetupTeams(s *Session)
	// AddPlayer assigns a joining player to a team. An error rejects the join.
	AddPlayer(s *Session, p *Player) error
	// Tick runs mode timers after the entity phases.
	Tick(s *Session, dt float64)
	IsOver(s *Session) bool
	// OnGameOver ends the session or advances it to the next level or round.
	OnGameOver(s *Session)
	// OnPlayerDown runs when a player's lives reach zero.
	OnPlayerDown(s *Session, p *Player)
	// ReportsRewards enables per-tick reward events for AI entities.
	ReportsRewards() bool
	// TimeBudget is the countdown a match or round starts with, 0 for none.
	TimeBudget(cfg *Config) float64
}

// NewMode returns the policy for kind.
func NewMode(kind ModeKind) Mode {
	switch kind {
	case ModeFreeForAll:
		return freeForAll{}
	case ModeTeams:
		return teamMode{}
	case ModeTraining:
		return training{}
	}
	return campaign{}
}

// joinFirstTeam puts p into the first team; used by the single-team modes.
func joinFirstTeam(s *Session, p *Player) error {
	teams := s.teams.Teams()
	if len(teams) == 0 {
		return reject(ReasonInvalid, "no team to join")
	}
	return s.teams.AddPlayerToTeam(p.ID, teams[0].ID)
}

// leadingTeam returns the highest scoring team, or 0 on a tie.
func leadingTeam(ts *TeamService) int {
	best, bestScore, tie := 0, -1, false
	for _, t := range ts.Teams() {
		switch {
		case t.Score > bestScore:
			best, bestScore, tie = t.ID, t.Score, false
		case t.Score == bestScore:
			tie = true
		}
	}
	if tie {
		return 0
	}
	return best
}
