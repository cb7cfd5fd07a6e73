package game

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Action is the discrete action space of inference-driven entities.
type Action uint8

const (
	ActionIdle Action = iota
	ActionUp
	ActionDown
	ActionLeft
	ActionRight
	ActionPrimary
	ActionSecondary
	ActionInteract
)

var actionNames = [...]string{"idle", "up", "down", "left", "right", "primary", "secondary", "interact"}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// ParseAction maps an action name to its value.
func ParseAction(s string) (Action, bool) {
	for i, n := range actionNames {
		if n == s {
			return Action(i), true
		}
	}
	return ActionIdle, false
}

// Direction returns the movement direction of a move action.
func (a Action) Direction() Direction {
	switch a {
	case ActionUp:
		return DirUp
	case ActionDown:
		return DirDown
	case ActionLeft:
		return DirLeft
	case ActionRight:
		return DirRight
	}
	return DirNone
}

// ObservationRadius is the half-width of the observation window.
const ObservationRadius = 3

// Observation is what an inference-driven entity sees.
type Observation struct {
	Kind         string       `json:"kind" msgpack:"kind"`
	Cell         GridPos      `json:"cell" msgpack:"cell"`
	Lives        int          `json:"lives" msgpack:"lives"`
	Invulnerable bool         `json:"inv" msgpack:"inv"`
	Window       [][]CellKind `json:"window" msgpack:"window"`
	Danger       []GridPos    `json:"danger" msgpack:"danger"`
	Opponents    []GridPos    `json:"opponents" msgpack:"opponents"`
	Elapsed      float64      `json:"elapsed" msgpack:"elapsed"`
}

// Inferencer chooses an action for an AI-controlled entity.
type Inferencer interface {
	InferAction(ctx context.Context, sessionID, entityID string, obs Observation) (Action, error)
}

type aiResult struct {
	id     string
	action Action
	err    error
}

// aiController throttles inference calls per entity and hands results back
// to the tick. No call ever blocks Update.
type aiController struct {
	inf      Inferencer
	interval float64
	timeout  time.Duration
	last     map[string]float64 // session clock of the last request
	inflight map[string]bool
	results  chan aiResult
}

func newAIController(inf Inferencer, interval float64, timeout time.Duration) *aiController {
	if timeout <= 0 {
		timeout = 100 * time.Millisecond
	}
	return &aiController{
		inf:      inf,
		interval: interval,
		timeout:  timeout,
		last:     make(map[string]float64),
		inflight: make(map[string]bool),
		results:  make(chan aiResult, 64),
	}
}

// ready reports whether id may request a new action at session time now.
func (c *aiController) ready(id string, now float64) bool {
	if c.inflight[id] {
		return false
	}
	last, ok := c.last[id]
	return !ok || now-last >= c.interval
}

func (c *aiController) forget(id string) {
	delete(c.last, id)
	delete(c.inflight, id)
}

// request starts an inference call for every AI entity whose interval elapsed.
func (c *aiController) request(s *Session) {
	for _, id := range s.aiEntities() {
		if !c.ready(id, s.elapsed) {
			continue
		}
		obs, ok := s.observe(id)
		if !ok {
			continue
		}
		c.inflight[id] = true
		c.last[id] = s.elapsed
		go c.call(s.ctx, s.ID, id, obs)
	}
}

func (c *aiController) call(parent context.Context, sessionID, id string, obs Observation) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	done := make(chan aiResult, 1)
	go func() {
		a, err := c.inf.InferAction(ctx, sessionID, id, obs)
		done <- aiResult{id: id, action: a, err: err}
	}()

	var r aiResult
	select {
	case r = <-done:
	case <-ctx.Done():
		r = aiResult{id: id, err: ctx.Err()}
	}
	select {
	case c.results <- r:
	case <-parent.Done():
	}
}

// apply drains finished calls and applies their actions.
func (c *aiController) apply(s *Session) {
	for {
		select {
		case r := <-c.results:
			delete(c.inflight, r.id)
			if r.err != nil {
				s.log.WithFields(logrus.Fields{"entity": r.id}).WithError(r.err).Debug("inference failed, action skipped")
				continue
			}
			s.applyAction(r.id, r.action)
		default:
			return
		}
	}
}

// aiEntities lists living AI-controlled players and enemies.
func (s *Session) aiEntities() []string {
	var out []string
	for _, id := range sortedIDs(s.players) {
		if p := s.players[id]; p.AI && p.Alive() && !p.Disconnected {
			out = append(out, id)
		}
	}
	for _, id := range sortedIDs(s.enemies) {
		if e := s.enemies[id]; e.AI && !e.Destroyed {
			out = append(out, id)
		}
	}
	return out
}

func (s *Session) applyAction(id string, a Action) {
	if p, ok := s.players[id]; ok {
		switch a {
		case ActionIdle:
			p.SetInput(Vec{})
		case ActionUp, ActionDown, ActionLeft, ActionRight:
			dx, dy := a.Direction().Delta()
			p.SetInput(Vec{X: float64(dx), Y: float64(dy)})
		case ActionPrimary:
			p.requestFire(SlotPrimary)
		case ActionSecondary:
			p.requestFire(SlotSecondary)
		}
		return
	}
	if e, ok := s.enemies[id]; ok && !e.Destroyed {
		switch a {
		case ActionIdle, ActionUp, ActionDown, ActionLeft, ActionRight:
			e.steer(a.Direction())
		}
	}
}

// observe builds the observation for entity id.
func (s *Session) observe(id string) (Observation, bool) {
	var obs Observation
	var ent *Entity
	if p, ok := s.players[id]; ok {
		obs.Kind = SidePlayer
		ent = &p.Entity
		for _, oid := range sortedIDs(s.enemies) {
			if e := s.enemies[oid]; !e.Destroyed {
				obs.Opponents = append(obs.Opponents, e.Cell())
			}
		}
		for _, oid := range sortedIDs(s.players) {
			if o := s.players[oid]; oid != id && o.Alive() && o.TeamID != p.TeamID {
				obs.Opponents = append(obs.Opponents, o.Cell())
			}
		}
	} else if e, ok := s.enemies[id]; ok {
		obs.Kind = SideEnemy
		ent = &e.Entity
		for _, oid := range sortedIDs(s.players) {
			if o := s.players[oid]; o.Alive() {
				obs.Opponents = append(obs.Opponents, o.Cell())
			}
		}
	} else {
		return obs, false
	}

	obs.Cell = ent.Cell()
	obs.Lives = ent.Lives
	obs.Invulnerable = ent.Invulnerable
	obs.Elapsed = round2(s.elapsed)
	obs.Window = make([][]CellKind, 2*ObservationRadius+1)
	for dy := -ObservationRadius; dy <= ObservationRadius; dy++ {
		row := make([]CellKind, 2*ObservationRadius+1)
		for dx := -ObservationRadius; dx <= ObservationRadius; dx++ {
			row[dx+ObservationRadius] = s.m.Cell(obs.Cell.X+dx, obs.Cell.Y+dy)
		}
		obs.Window[dy+ObservationRadius] = row
	}
	for _, wid := range sortedIDs(s.weapons) {
		w := s.weapons[wid]
		if w.Activated {
			obs.Danger = append(obs.Danger, w.ExplosionCells...)
		} else {
			obs.Danger = append(obs.Danger, w.Footprint())
		}
	}
	return obs, true
}
