package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Config holds the server's runtime settings. Environment variables seed the
// values and command-line flags override them.
type Config struct {
	Addr             string        `env:"ARENA_ADDR" envDefault:":8080"`
	DBPath           string        `env:"ARENA_DB"`
	TickRate         int           `env:"ARENA_TICK_RATE" envDefault:"60"`
	BroadcastRate    int           `env:"ARENA_BROADCAST_RATE" envDefault:"20"`
	MaxSessions      int           `env:"ARENA_MAX_SESSIONS" envDefault:"100"`
	SessionIdle      time.Duration `env:"ARENA_SESSION_IDLE" envDefault:"2m"`
	MapTimeout       time.Duration `env:"ARENA_MAP_TIMEOUT" envDefault:"2s"`
	TicketSecret     string        `env:"ARENA_TICKET_SECRET"`
	InferenceURL     string        `env:"ARENA_INFERENCE_URL"`
	InferenceTimeout time.Duration `env:"ARENA_INFERENCE_TIMEOUT" envDefault:"150ms"`
	OTelEndpoint     string        `env:"ARENA_OTEL_ENDPOINT"`
	LogLevel         string        `env:"ARENA_LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"ARENA_LOG_FORMAT" envDefault:"text"`
}

// ParseConfig parses environment variables and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite path for map templates and reward journal (empty: in-memory maps only)")
	fs.IntVar(&cfg.TickRate, "tick-rate", cfg.TickRate, "Simulation ticks per second")
	fs.IntVar(&cfg.BroadcastRate, "broadcast-rate", cfg.BroadcastRate, "State broadcasts per second")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", cfg.MaxSessions, "Maximum concurrent sessions")
	fs.DurationVar(&cfg.SessionIdle, "session-idle", cfg.SessionIdle, "Remove sessions without clients after this long")
	fs.DurationVar(&cfg.MapTimeout, "map-timeout", cfg.MapTimeout, "Timeout for map template lookups")
	fs.StringVar(&cfg.InferenceURL, "inference-url", cfg.InferenceURL, "Inference service URL for AI-controlled entities")
	fs.DurationVar(&cfg.InferenceTimeout, "inference-timeout", cfg.InferenceTimeout, "Per-request inference timeout")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP trace endpoint URL")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (text or json)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if cfg.TickRate <= 0 {
		return Config{}, fmt.Errorf("tick rate must be positive, got %d", cfg.TickRate)
	}
	if cfg.BroadcastRate <= 0 || cfg.BroadcastRate > cfg.TickRate {
		return Config{}, fmt.Errorf("broadcast rate must be in 1..%d, got %d", cfg.TickRate, cfg.BroadcastRate)
	}
	return cfg, nil
}

// NewLogger builds the process logger from the log settings.
func NewLogger(cfg Config, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	if out == nil {
		out = os.Stderr
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	switch cfg.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.LogFormat)
	}
	return log, nil
}
