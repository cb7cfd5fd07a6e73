package game

import "fmt"

// Team is a scoring group of players.
type Team struct {
	ID      int      `json:"id" msgpack:"id"`
	Name    string   `json:"name" msgpack:"name"`
	Score   int      `json:"score" msgpack:"score"`
	Players []string `json:"players" msgpack:"players"`
}

func (t *Team) has(pid string) bool {
	for _, id := range t.Players {
		if id == pid {
			return true
		}
	}
	return false
}

func (t *Team) remove(pid string) {
	for i, id := range t.Players {
		if id == pid {
			t.Players = append(t.Players[:i], t.Players[i+1:]...)
			return
		}
	}
}

var teamNames = [...]string{"Red", "Blue", "Green", "Yellow"}

// TeamService tracks team membership and score. A player is in at most one team.
type TeamService struct {
	teams      []*Team
	maxPerTeam int // 0 = unlimited
	nextID     int
}

// NewTeamService creates an empty service.
func NewTeamService(maxPerTeam int) *TeamService {
	return &TeamService{maxPerTeam: maxPerTeam, nextID: 1}
}

// CreateTeam adds a new team with the next id.
func (ts *TeamService) CreateTeam(name string) *Team {
	t := &Team{ID: ts.nextID, Name: name}
	ts.nextID++
	ts.teams = append(ts.teams, t)
	return t
}

// Team looks a team up by id.
func (ts *TeamService) Team(id int) (*Team, bool) {
	for _, t := range ts.teams {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Teams returns the teams in creation order.
func (ts *TeamService) Teams() []*Team {
	return ts.teams
}

// AddPlayerToTeam moves pid into team id, leaving any previous team first.
func (ts *TeamService) AddPlayerToTeam(pid string, id int) error {
	t, ok := ts.Team(id)
	if !ok {
		return reject(ReasonNotFound, "team %d not found", id)
	}
	if t.has(pid) {
		return nil
	}
	if ts.maxPerTeam > 0 && len(t.Players) >= ts.maxPerTeam {
		return reject(ReasonFull, "team %s is full", t.Name)
	}
	ts.RemovePlayer(pid)
	t.Players = append(t.Players, pid)
	return nil
}

// RemovePlayer drops pid from whatever team holds it.
func (ts *TeamService) RemovePlayer(pid string) {
	for _, t := range ts.teams {
		t.remove(pid)
	}
}

// GetPlayerTeam returns the team holding pid.
func (ts *TeamService) GetPlayerTeam(pid string) (*Team, bool) {
	for _, t := range ts.teams {
		if t.has(pid) {
			return t, true
		}
	}
	return nil, false
}

// AddScoreToPlayerTeam credits pid's team. No-op when pid has no team.
func (ts *TeamService) AddScoreToPlayerTeam(pid string, delta int) bool {
	t, ok := ts.GetPlayerTeam(pid)
	if !ok {
		return false
	}
	return ts.AddScore(t.ID, delta)
}

// AddScore credits team id. Non-positive deltas are ignored so scores never decrease.
func (ts *TeamService) AddScore(id, delta int) bool {
	if delta <= 0 {
		return false
	}
	t, ok := ts.Team(id)
	if !ok {
		return false
	}
	t.Score += delta
	return true
}

// ResetScores zeroes every team score; it is the only way a score goes down.
func (ts *TeamService) ResetScores() {
	for _, t := range ts.teams {
		t.Score = 0
	}
}

// Clear removes every team.
func (ts *TeamService) Clear() {
	ts.teams = nil
	ts.nextID = 1
}

// SmallestTeam returns the id of the team with the fewest players, or 0 when
// every team is full.
func (ts *TeamService) SmallestTeam() int {
	best := 0
	bestN := -1
	for _, t := range ts.teams {
		if ts.maxPerTeam > 0 && len(t.Players) >= ts.maxPerTeam {
			continue
		}
		if bestN < 0 || len(t.Players) < bestN {
			best, bestN = t.ID, len(t.Players)
		}
	}
	return best
}

// AutoDistributePlayers assigns ids to teams. With perPlayer every player gets
// a team of its own, replacing all existing teams; otherwise ids are dealt
// round-robin over the existing teams, skipping full ones.
func (ts *TeamService) AutoDistributePlayers(ids []string, perPlayer bool) error {
	if perPlayer {
		ts.Clear()
		for _, id := range ids {
			t := ts.CreateTeam(id)
			t.Players = append(t.Players, id)
		}
		return nil
	}
	if len(ts.teams) == 0 {
		return fmt.Errorf("distribute %d players: no teams", len(ids))
	}
	for _, t := range ts.teams {
		t.Players = nil
	}
	next := 0
	for _, id := range ids {
		placed := false
		for tries := 0; tries < len(ts.teams); tries++ {
			t := ts.teams[(next+tries)%len(ts.teams)]
			if ts.maxPerTeam > 0 && len(t.Players) >= ts.maxPerTeam {
				continue
			}
			t.Players = append(t.Players, id)
			next = (next + tries + 1) % len(ts.teams)
			placed = true
			break
		}
		if !placed {
			return reject(ReasonFull, "no team has room for %s", id)
		}
	}
	return nil
}

// SetupDefaultTeams replaces the team set with the one a mode starts with:
// none for free-for-all (teams are created per player), TeamCount colored
// teams for team mode, and a single team otherwise.
func (ts *TeamService) SetupDefaultTeams(mode ModeKind, teamCount int) {
	ts.Clear()
	switch mode {
	case ModeFreeForAll:
	case ModeTeams:
		n := min(max(teamCount, 2), len(teamNames))
		for i := 0; i < n; i++ {
			ts.CreateTeam(teamNames[i])
		}
	default:
		ts.CreateTeam("Players")
	}
}

// Scores returns team id to score.
func (ts *TeamService) Scores() map[int]int {
	out := make(map[int]int, len(ts.teams))
	for _, t := range ts.teams {
		out[t.ID] = t.Score
	}
	return out
}
