package main

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"arena-server/internal/game"
)

const (
	DefaultMaxSessions = 100
	maxSessionNameLen  = 30
	maxMapSide         = 63
)

var errTooManySessions = &game.RejectError{Reason: game.ReasonLimit, Message: "too many active sessions"}

// Session represents a game session that players can join
type Session struct {
	ID         string
	Name       string
	Mode       game.ModeKind
	MaxPlayers int
	Game       *Game
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	maps          *game.MapService
	inf           game.Inferencer
	journal       *Journal
	log           logrus.FieldLogger
	maxSessions   int
	tickRate      int
	broadcastRate int
	idleTimeout   time.Duration
	aiTimeout     time.Duration
}

// ManagerOptions are the host settings applied to every new session.
type ManagerOptions struct {
	MaxSessions   int
	TickRate      int
	BroadcastRate int
	IdleTimeout   time.Duration
	AITimeout     time.Duration
}

// NewSessionManager creates a new SessionManager. inf and journal may be nil.
func NewSessionManager(opts ManagerOptions, maps *game.MapService, inf game.Inferencer, journal *Journal, log logrus.FieldLogger) *SessionManager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if maps == nil {
		maps = game.NewMapService(nil, 0, log)
	}
	return &SessionManager{
		sessions:      make(map[string]*Session),
		maps:          maps,
		inf:           inf,
		journal:       journal,
		log:           log,
		maxSessions:   opts.MaxSessions,
		tickRate:      opts.TickRate,
		broadcastRate: opts.BroadcastRate,
		idleTimeout:   opts.IdleTimeout,
		aiTimeout:     opts.AITimeout,
	}
}

// sessionConfig builds the core config of a create request.
func sessionConfig(msg CreateMsg) (game.Config, error) {
	mode := game.ModeCampaign
	if msg.Mode != "" {
		m, ok := game.ParseModeKind(msg.Mode)
		if !ok {
			return game.Config{}, &game.RejectError{Reason: game.ReasonInvalid, Message: "unknown mode " + msg.Mode}
		}
		mode = m
	}
	cfg := game.DefaultConfig(mode)
	if msg.Width > 0 {
		cfg.Width = min(msg.Width, maxMapSide)
	}
	if msg.Height > 0 {
		cfg.Height = min(msg.Height, maxMapSide)
	}
	if msg.Difficulty > 0 {
		cfg.Difficulty = msg.Difficulty
	}
	if msg.MaxPlayers > 0 {
		cfg.MaxPlayers = min(msg.MaxPlayers, game.MaxPlayersLimit)
	}
	if msg.Snake {
		cfg.Pattern = game.PatternSnake
	}
	cfg.Source = game.Source{TemplateID: msg.Template, ChainID: msg.Chain, GroupID: msg.Group}
	switch msg.Target {
	case "", "player":
	case "enemy":
		cfg.TrainTarget = game.TrainEnemy
	default:
		return game.Config{}, &game.RejectError{Reason: game.ReasonInvalid, Message: "unknown training target " + msg.Target}
	}
	cfg.Seed = msg.Seed
	return cfg, nil
}

// CreateSession creates a new game session and starts its loop.
func (sm *SessionManager) CreateSession(msg CreateMsg) (*Session, error) {
	cfg, err := sessionConfig(msg)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		name = "Arena"
	}
	if len(name) > maxSessionNameLen {
		name = name[:maxSessionNameLen]
	}

	if sm.Count() >= sm.maxSessions {
		return nil, errTooManySessions
	}

	// map generation runs outside sm.mu so list and join stay responsive
	id := uuid.NewString()
	log := sm.log.WithField("session", id)
	cfg.Logger = sm.log
	if sm.aiTimeout > 0 {
		cfg.AITimeout = sm.aiTimeout
	}
	opts := []game.Option{game.WithMapService(sm.maps)}
	if sm.inf != nil {
		opts = append(opts, game.WithInferencer(sm.inf))
	}
	core := game.NewSession(id, cfg, opts...)

	g := NewGame(core, sm.tickRate, sm.broadcastRate, sm.idleTimeout, sm.journal, log)
	g.onIdle = func() { sm.remove(id) }
	sess := &Session{ID: id, Name: name, Mode: cfg.Mode, MaxPlayers: cfg.MaxPlayers, Game: g}

	sm.mu.Lock()
	if len(sm.sessions) >= sm.maxSessions {
		sm.mu.Unlock()
		core.Close()
		return nil, errTooManySessions
	}
	sm.sessions[id] = sess
	sm.mu.Unlock()
	go g.Run()

	log.WithFields(logrus.Fields{"name": name, "mode": cfg.Mode.String()}).Info("session created")
	return sess, nil
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

func (sm *SessionManager) remove(id string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Count returns the number of live sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ListSessions returns info about all active sessions, ordered by name
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	list := make([]SessionInfo, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		list = append(list, SessionInfo{
			ID:      sess.ID,
			Name:    sess.Name,
			Mode:    sess.Mode.String(),
			State:   sess.Game.State().String(),
			Players: sess.Game.PlayerCount(),
			Max:     sess.MaxPlayers,
		})
	}
	sm.mu.RUnlock()

	slices.SortFunc(list, func(a, b SessionInfo) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return list
}

// StopAll stops every session loop.
func (sm *SessionManager) StopAll() {
	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for id, sess := range sm.sessions {
		sessions = append(sessions, sess)
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	for _, sess := range sessions {
		sess.Game.Stop()
	}
}
