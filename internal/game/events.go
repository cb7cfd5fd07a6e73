package game

// EventKind names a gameplay event surfaced to clients and reward consumers.
type EventKind string

const (
	EventMoved       EventKind = "moved"
	EventIdle        EventKind = "idle"
	EventHit         EventKind = "hit"
	EventSelfHit     EventKind = "self_hit"
	EventDestroyed   EventKind = "destroyed"
	EventEnemyKilled EventKind = "enemy_killed"
	EventPickup      EventKind = "pickup"
	EventLevelUp     EventKind = "level_up"
	EventRoundEnd    EventKind = "round_end"
	EventTimeout     EventKind = "timeout"
	EventWin         EventKind = "win"
	EventLoss        EventKind = "loss"
	EventDraw        EventKind = "draw"
)

// Sides credited by outcome events.
const (
	SidePlayer = "player"
	SideEnemy  = "enemy"
)

const maxPendingEvents = 4096

// Event is one thing that happened during a tick.
type Event struct {
	Kind   EventKind `json:"kind" msgpack:"k"`
	Entity string    `json:"entity,omitempty" msgpack:"e,omitempty"`
	Source string    `json:"source,omitempty" msgpack:"s,omitempty"`
	Side   string    `json:"side,omitempty" msgpack:"sd,omitempty"`
	Team   int       `json:"team,omitempty" msgpack:"tm,omitempty"`
	Value  int       `json:"value,omitempty" msgpack:"v,omitempty"`
	Time   float64   `json:"time" msgpack:"t"`
}

// Outcome is the final or per-round result of play.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

// Result describes how a session ended.
type Result struct {
	Outcome    Outcome `json:"outcome" msgpack:"o"`
	WinnerTeam int     `json:"winner_team,omitempty" msgpack:"w,omitempty"`
	Reason     string  `json:"reason,omitempty" msgpack:"r,omitempty"`
}

func (s *Session) emit(ev Event) {
	ev.Time = round2(s.elapsed)
	if len(s.events) >= maxPendingEvents {
		// nobody is draining; keep the newest
		copy(s.events, s.events[1:])
		s.events = s.events[:len(s.events)-1]
	}
	s.events = append(s.events, ev)
}

func (s *Session) drainEvents() []Event {
	out := s.events
	s.events = nil
	return out
}
