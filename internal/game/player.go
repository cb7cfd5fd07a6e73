package game

// Loadout is one weapon slot: the kind placed, how many may be live at once,
// and the blast radius.
type Loadout struct {
	Kind  WeaponKind `json:"kind"`
	Max   int        `json:"max"`
	Power int        `json:"power"`
}

const (
	SlotPrimary   = 0
	SlotSecondary = 1
)

// Player is a joined participant, human or AI-controlled.
type Player struct {
	Entity
	Name    string
	Unit    string
	Slot    int
	Color   int
	TeamID  int
	Loadout [2]Loadout
	Speed   float64
	Facing  Direction
	Input   Vec
	Score   int

	Disconnected   bool
	DisconnectedAt float64 // session clock

	RespawnTimer float64
	spawn        GridPos
	fire         []int // slots requested by the AI controller
}

func newPlayer(id, unit string, slot int, cell GridPos, cfg *Config) *Player {
	return &Player{
		Entity:  newEntity(id, cell, cfg.EntitySize, cfg.PlayerLives),
		Name:    id,
		Unit:    unit,
		Slot:    slot,
		Color:   slot,
		Loadout: cfg.DefaultLoad,
		Speed:   cfg.PlayerSpeed,
		Facing:  DirDown,
		spawn:   cell,
	}
}

// SetInput stores a movement vector. Components are clamped to [-1, 1] and a
// diagonal longer than 1 is normalized, so no direction moves faster than an axis.
func (p *Player) SetInput(v Vec) {
	v.X = Clamp(v.X, -1, 1)
	v.Y = Clamp(v.Y, -1, 1)
	if l := v.Len(); l > 1 {
		v.X /= l
		v.Y /= l
	}
	p.Input = v
	if d := DirectionOf(v); d != DirNone {
		p.Facing = d
	}
}

func (p *Player) velocity() Vec {
	return Vec{X: p.Input.X * p.Speed, Y: p.Input.Y * p.Speed}
}

// respawnAt restores the player at cell with full lives and a fresh shield.
func (p *Player) respawnAt(cell GridPos, cfg *Config) {
	p.Lives = cfg.PlayerLives
	p.RespawnTimer = 0
	p.Input = Vec{}
	p.spawn = cell
	p.PlaceAt(cell)
	p.Grant(cfg.Invulnerable)
}

// relocate moves the player to a spawn cell without touching lives.
func (p *Player) relocate(cell GridPos) {
	p.spawn = cell
	p.Input = Vec{}
	p.PlaceAt(cell)
}

// requestFire queues a weapon placement from an AI decision.
func (p *Player) requestFire(slot int) {
	p.fire = append(p.fire, slot)
}

func (p *Player) drainFire() []int {
	out := p.fire
	p.fire = nil
	return out
}
