package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Winner field shapes for session_finished
const (
	WinnerBySide   = "side"
	WinnerByPlayer = "player"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds server settings
type Config struct {
	Host               string        `env:"DUELHALL_HOST" envDefault:"localhost"`
	Port               int           `env:"DUELHALL_PORT" envDefault:"8080"`
	Engine             string        `env:"DUELHALL_ENGINE" envDefault:"chess"`
	ArchiveDir         string        `env:"DUELHALL_ARCHIVE_DIR"`
	WinnerField        string        `env:"DUELHALL_WINNER_FIELD" envDefault:"side"`
	DistinctDisconnect bool          `env:"DUELHALL_DISTINCT_DISCONNECT" envDefault:"false"`
	MaxNameLength      int           `env:"DUELHALL_MAX_NAME_LENGTH" envDefault:"32"`
	StatsInterval      time.Duration `env:"DUELHALL_STATS_INTERVAL" envDefault:"1m"`
	Debug              bool          `env:"DUELHALL_DEBUG" envDefault:"false"`

	// OTelEndpoint is an OTLP/HTTP collector URL; empty disables tracing.
	OTelEndpoint string `env:"DUELHALL_OTEL_ENDPOINT"`

	Ngrok NgrokConfig
}

// NgrokConfig controls the optional public tunnel
type NgrokConfig struct {
	Enabled   bool   `env:"NGROK_ENABLED" envDefault:"false"`
	AuthToken string `env:"NGROK_AUTHTOKEN"`
	Domain    string `env:"NGROK_DOMAIN"`
}

// Load reads the given .env files, if present, and then the environment.
// With no files it tries ".env" in the working directory.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Ngrok.AuthToken == "" {
		cfg.Ngrok.AuthToken = os.Getenv("NGROK_AUTH_TOKEN")
	}
	return cfg, nil
}

// BindFlags registers command-line overrides on fs. Current values become
// the flag defaults, so a flag only wins when it is given.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Host, "host", c.Host, "HTTP server host")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP server port")
	fs.StringVar(&c.Engine, "engine", c.Engine, "Rules engine every session plays")
	fs.StringVar(&c.ArchiveDir, "archive-dir", c.ArchiveDir, "Directory for finished match records (empty disables)")
	fs.StringVar(&c.WinnerField, "winner-field", c.WinnerField, "Winner shape in session_finished: side or player")
	fs.BoolVar(&c.DistinctDisconnect, "distinct-disconnect", c.DistinctDisconnect, "Report disconnects as abandoned rather than resignation")
	fs.IntVar(&c.MaxNameLength, "max-name-length", c.MaxNameLength, "Maximum display name length in characters")
	fs.DurationVar(&c.StatsInterval, "stats-interval", c.StatsInterval, "Interval between lobby stats log lines (0 disables)")
	fs.BoolVar(&c.Debug, "debug", c.Debug, "Enable debug logging")
	fs.StringVar(&c.OTelEndpoint, "otel-endpoint", c.OTelEndpoint, "OTLP/HTTP trace collector URL (empty disables tracing)")
	fs.BoolVar(&c.Ngrok.Enabled, "ngrok", c.Ngrok.Enabled, "Enable ngrok tunnel")
	fs.StringVar(&c.Ngrok.AuthToken, "ngrok-auth", c.Ngrok.AuthToken, "Ngrok auth token (or use NGROK_AUTHTOKEN env var)")
	fs.StringVar(&c.Ngrok.Domain, "ngrok-domain", c.Ngrok.Domain, "Custom ngrok domain (optional)")
}

// Validate checks the settings for consistency
func (c *Config) Validate() error {
	var problems []string

	if c.Port < 0 || c.Port > 65535 {
		problems = append(problems, fmt.Sprintf("port %d out of range", c.Port))
	}
	if strings.TrimSpace(c.Engine) == "" {
		problems = append(problems, "engine must be set")
	}
	switch c.WinnerField {
	case WinnerBySide, WinnerByPlayer:
	default:
		problems = append(problems, fmt.Sprintf("winner field %q must be %q or %q", c.WinnerField, WinnerBySide, WinnerByPlayer))
	}
	if c.MaxNameLength <= 0 {
		problems = append(problems, fmt.Sprintf("max name length %d must be positive", c.MaxNameLength))
	}
	if c.StatsInterval < 0 {
		problems = append(problems, "stats interval must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the host:port listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
