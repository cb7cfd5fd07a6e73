package game

import (
	"time"

	"github.com/sirupsen/logrus"
)

// ModeKind selects the win/lose/progression policy of a session.
type ModeKind int

const (
	ModeCampaign ModeKind = iota
	ModeFreeForAll
	ModeTeams
	ModeTraining
)

func (k ModeKind) String() string {
	switch k {
	case ModeCampaign:
		return "campaign"
	case ModeFreeForAll:
		return "ffa"
	case ModeTeams:
		return "teams"
	case ModeTraining:
		return "training"
	}
	return "unknown"
}

// ParseModeKind maps a mode name to its kind.
func ParseModeKind(s string) (ModeKind, bool) {
	for k := ModeCampaign; k <= ModeTraining; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return ModeCampaign, false
}

// TrainTarget selects which side a TrainingAI session trains.
type TrainTarget int

const (
	TrainPlayer TrainTarget = iota
	TrainEnemy
)

// MaxPlayersLimit bounds the players of one session and the spawns generated for it.
const MaxPlayersLimit = 16

// Config holds the tunables of one session. Durations are seconds of session time.
type Config struct {
	Mode ModeKind

	Width      int
	Height     int
	Difficulty int
	Pattern    Pattern
	Source     Source // template/chain/group; zero value means procedural

	MaxPlayers    int
	MaxPerTeam    int
	TeamCount     int
	PlayerLives   int
	PlayerSpeed   float64
	EntitySize    float64
	DefaultLoad   [2]Loadout // primary, secondary
	Invulnerable  float64
	RespawnDelay  float64
	DisconnectFor float64 // grace period before a disconnected player is removed

	EnemiesEnabled   bool
	EnemyCount       int
	MinEnemyDistance int
	AllowEnemyNear   bool
	DestroyDuration  float64

	BombFuse          float64
	MineDelay         float64
	BulletSpeed       float64
	BulletLifetime    float64
	ExplosionDisplay  float64
	BulletDisplay     float64
	PowerUpDropChance float64

	EnemyKillScore  int
	PlayerKillScore int
	LevelBonus      int
	WinBonus        int
	ScoreLimit      int
	TimeLimit       float64
	MaxLevel        int

	TrainTarget TrainTarget
	RoundTime   float64
	MaxRounds   int

	AIActionInterval float64
	AITimeout        time.Duration
	MapTimeout       time.Duration

	Seed   uint64 // 0 picks a random seed
	Logger logrus.FieldLogger
}

// DefaultConfig returns default config for the given mode
func DefaultConfig(mode ModeKind) Config {
	cfg := Config{
		Mode:       mode,
		Width:      15,
		Height:     13,
		Difficulty: 1,
		Pattern:    PatternCheckerboard,

		MaxPlayers:  4,
		TeamCount:   1,
		PlayerLives: 3,
		PlayerSpeed: 3.0,
		EntitySize:  0.8,
		DefaultLoad: [2]Loadout{
			{Kind: WeaponBomb, Max: 1, Power: 2},
			{Kind: WeaponMine, Max: 1, Power: 1},
		},
		Invulnerable:  2.0,
		RespawnDelay:  3.0,
		DisconnectFor: 15.0,

		EnemyCount:       4,
		MinEnemyDistance: 4,
		DestroyDuration:  1.0,

		BombFuse:          3.0,
		MineDelay:         0.5,
		BulletSpeed:       8.0,
		BulletLifetime:    2.0,
		ExplosionDisplay:  0.5,
		BulletDisplay:     0.1,
		PowerUpDropChance: 0.3,

		EnemyKillScore:  100,
		PlayerKillScore: 1,
		LevelBonus:      500,
		WinBonus:        1000,

		AIActionInterval: 0.2,
		AITimeout:        100 * time.Millisecond,
		MapTimeout:       2 * time.Second,
	}

	switch mode {
	case ModeCampaign:
		cfg.EnemiesEnabled = true
	case ModeFreeForAll:
		cfg.TeamCount = 0
	case ModeTeams:
		cfg.Width, cfg.Height = 19, 15
		cfg.MaxPlayers = 8
		cfg.TeamCount = 2
		cfg.MaxPerTeam = 4
		cfg.ScoreLimit = 10
		cfg.TimeLimit = 300
		cfg.DefaultLoad[1] = Loadout{Kind: WeaponBullet, Max: 3, Power: 1}
	case ModeTraining:
		cfg.Width, cfg.Height = 11, 11
		cfg.MaxPlayers = 2
		cfg.EnemiesEnabled = true
		cfg.EnemyCount = 2
		cfg.RoundTime = 60
	}
	return cfg
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}

func (c Config) genOptions() GenOptions {
	enemies := 0
	if c.EnemiesEnabled {
		enemies = c.EnemyCount
	}
	return GenOptions{
		Width:            c.Width,
		Height:           c.Height,
		Difficulty:       c.Difficulty,
		Pattern:          c.Pattern,
		MaxPlayers:       c.MaxPlayers,
		EnemyCount:       enemies,
		MinEnemyDistance: c.MinEnemyDistance,
		AllowEnemyNear:   c.AllowEnemyNear,
	}
}
