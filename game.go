package main

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"

	"arena-server/internal/game"
)

const (
	DefaultTickRate      = 60 // simulation ticks per second
	DefaultBroadcastRate = 20 // diff broadcasts per second
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg any)
	SendBinary(data []byte)
}

// Game drives one simulation session. The tick loop and every command share
// mu, so the core only ever sees one caller at a time.
type Game struct {
	mu      sync.Mutex
	sess    *game.Session
	clients map[string]Broadcaster // playerID -> client
	journal *Journal
	log     logrus.FieldLogger

	tickRate       int
	broadcastEvery uint64
	idleTimeout    time.Duration
	tick           uint64
	idleSince      time.Time

	stop     chan struct{}
	stopOnce sync.Once
	onIdle   func()
}

// NewGame wraps sess. The loop does not start until Run.
func NewGame(sess *game.Session, tickRate, broadcastRate int, idleTimeout time.Duration, journal *Journal, log logrus.FieldLogger) *Game {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	if broadcastRate <= 0 || broadcastRate > tickRate {
		broadcastRate = min(DefaultBroadcastRate, tickRate)
	}
	return &Game{
		sess:           sess,
		clients:        make(map[string]Broadcaster),
		journal:        journal,
		log:            log,
		tickRate:       tickRate,
		broadcastEvery: uint64(tickRate / broadcastRate),
		idleTimeout:    idleTimeout,
		idleSince:      time.Now(),
		stop:           make(chan struct{}),
	}
}

// Run starts the game loop. It returns when Stop is called or the session
// has been idle for the idle timeout; in the latter case onIdle runs.
func (g *Game) Run() {
	ticker := time.NewTicker(time.Second / time.Duration(g.tickRate))
	defer ticker.Stop()

	idleCheck := time.NewTicker(max(g.idleTimeout/4, 10*time.Millisecond))
	defer idleCheck.Stop()

	for {
		select {
		case <-ticker.C:
			g.update()
		case now := <-idleCheck.C:
			if g.idle(now) {
				g.log.Info("session idle, closing")
				g.Stop()
				if g.onIdle != nil {
					g.onIdle()
				}
				return
			}
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the game loop and abandons in-flight collaborator calls.
func (g *Game) Stop() {
	g.stopOnce.Do(func() { close(g.stop) })
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sess.Close()
}

func (g *Game) idle(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.clients) > 0 {
		return false
	}
	if g.sess.State() == game.StateOver {
		return true
	}
	return g.idleTimeout > 0 && now.Sub(g.idleSince) >= g.idleTimeout
}

// update runs one game tick
func (g *Game) update() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sess.Update(1.0 / float64(g.tickRate))
	g.tick++
	if g.tick%g.broadcastEvery == 0 {
		g.broadcastDiff()
	}
}

func (g *Game) broadcastDiff() {
	d := g.sess.Diff()
	if g.journal != nil && len(d.Events) > 0 && g.sess.Mode().ReportsRewards() {
		g.journal.Track(g.sess.ID, g.sess.Round(), d.Events)
	}
	data, err := msgpack.Marshal(Frame{T: MsgDiff, D: d})
	if err != nil {
		g.log.WithError(err).Error("encode diff")
		return
	}
	for _, c := range g.clients {
		c.SendBinary(data)
	}
}

func (g *Game) snapshotFrame() []byte {
	data, err := msgpack.Marshal(Frame{T: MsgSnapshot, D: g.sess.Snapshot()})
	if err != nil {
		g.log.WithError(err).Error("encode snapshot")
		return nil
	}
	return data
}

// Join adds a player and sends the joining client a full snapshot.
func (g *Game) Join(playerID, unit string, c Broadcaster) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.sess.Join(playerID, unit); err != nil {
		return err
	}
	if c != nil {
		g.clients[playerID] = c
		if data := g.snapshotFrame(); data != nil {
			c.SendBinary(data)
		}
	}
	return nil
}

// Leave removes a player immediately.
func (g *Game) Leave(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detach(playerID)
	return g.sess.Leave(playerID)
}

// Disconnect starts the reconnect grace period of a player.
func (g *Game) Disconnect(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.detach(playerID)
	if err := g.sess.Disconnect(playerID); err != nil {
		g.log.WithField("player", playerID).WithError(err).Debug("disconnect of unknown player")
	}
}

func (g *Game) detach(playerID string) {
	delete(g.clients, playerID)
	if len(g.clients) == 0 {
		g.idleSince = time.Now()
	}
}

// Input stores a movement vector.
func (g *Game) Input(playerID string, v game.Vec) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.SetInput(playerID, v)
}

// Place places the weapon of slot and returns the weapon id.
func (g *Game) Place(playerID string, slot int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.PlaceWeapon(playerID, slot)
}

// Rematch restarts the session with all current players.
func (g *Game) Rematch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sess.Restart()
}

// Snapshot returns the encoded full state.
func (g *Game) Snapshot() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotFrame()
}

// HasPlayer reports whether playerID is in the session.
func (g *Game) HasPlayer(playerID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.sess.Player(playerID)
	return ok
}

// PlayerCount returns the number of players
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.PlayerCount()
}

// State returns the lifecycle state of the session.
func (g *Game) State() game.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sess.State()
}
