// Package config loads the server configuration from a YAML file, with
// CARDLAB_* environment variables taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CARDLAB_"

// Config is the whole server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" envPrefix:"SERVER_"`
	Logging LoggingConfig `mapstructure:"logging" envPrefix:"LOG_"`
	Duel    DuelConfig    `mapstructure:"duel" envPrefix:"DUEL_"`
	Match   MatchConfig   `mapstructure:"match" envPrefix:"MATCH_"`
	Packs   PacksConfig   `mapstructure:"packs" envPrefix:"PACKS_"`
	Storage StorageConfig `mapstructure:"storage" envPrefix:"STORAGE_"`
	Journal JournalConfig `mapstructure:"journal" envPrefix:"JOURNAL_"`
}

type ServerConfig struct {
	WebSocket WebSocketConfig `mapstructure:"websocket" envPrefix:"WS_"`
	Admin     AdminConfig     `mapstructure:"admin" envPrefix:"ADMIN_"`
}

type WebSocketConfig struct {
	Address        string        `mapstructure:"address" env:"ADDRESS"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT"`
	PongTimeout    time.Duration `mapstructure:"pong_timeout" env:"PONG_TIMEOUT"`
	ReadLimit      int64         `mapstructure:"read_limit" env:"READ_LIMIT"`
	SendBuffer     int           `mapstructure:"send_buffer" env:"SEND_BUFFER"`
	Compression    bool          `mapstructure:"compression" env:"COMPRESSION"`
}

// AdminConfig configures the admin gRPC endpoint. An empty address
// disables it.
type AdminConfig struct {
	Address string `mapstructure:"address" env:"ADDRESS"`
	// PasswordHash is a bcrypt hash; when empty admin calls are refused.
	PasswordHash string `mapstructure:"password_hash" env:"PASSWORD_HASH"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LEVEL"`
	Format string `mapstructure:"format" env:"FORMAT"`
}

// DuelConfig holds the rules of new duels.
type DuelConfig struct {
	MaxCoreHealth  int           `mapstructure:"max_core_health" env:"MAX_CORE_HEALTH"`
	MaxEnergy      int           `mapstructure:"max_energy" env:"MAX_ENERGY"`
	SecondsPerTurn int           `mapstructure:"seconds_per_turn" env:"SECONDS_PER_TURN"`
	StartCards     int           `mapstructure:"start_cards" env:"START_CARDS"`
	UnitsX         int           `mapstructure:"units_x" env:"UNITS_X"`
	UnitsY         int           `mapstructure:"units_y" env:"UNITS_Y"`
	MaxCardsInHand int           `mapstructure:"max_cards_in_hand" env:"MAX_CARDS_IN_HAND"`
	PauseMax       time.Duration `mapstructure:"pause_max" env:"PAUSE_MAX"`
	FragmentCap    int           `mapstructure:"fragment_cap" env:"FRAGMENT_CAP"`
}

type MatchConfig struct {
	MaxDuels       int           `mapstructure:"max_duels" env:"MAX_DUELS"`
	JoinTokenTTL   time.Duration `mapstructure:"join_token_ttl" env:"JOIN_TOKEN_TTL"`
	EndedRetention time.Duration `mapstructure:"ended_retention" env:"ENDED_RETENTION"`
	DefaultDeck    string        `mapstructure:"default_deck" env:"DEFAULT_DECK"`
}

type PacksConfig struct {
	Paths []string `mapstructure:"paths" env:"PATHS"`
}

// Storage drivers.
const (
	DriverNone     = "none"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type StorageConfig struct {
	Driver          string        `mapstructure:"driver" env:"DRIVER"`
	DSN             string        `mapstructure:"dsn" env:"DSN"`
	MaxConns        int32         `mapstructure:"max_conns" env:"MAX_CONNS"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" env:"MAX_CONN_LIFETIME"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled" env:"ENABLED"`
	Dir     string `mapstructure:"dir" env:"DIR"`
	// Level is the zstd encoder level, 1 (fastest) to 4 (best).
	Level int `mapstructure:"level" env:"LEVEL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.websocket.address", ":8080")
	v.SetDefault("server.websocket.allowed_origins", []string{})
	v.SetDefault("server.websocket.write_timeout", 10*time.Second)
	v.SetDefault("server.websocket.pong_timeout", 60*time.Second)
	v.SetDefault("server.websocket.read_limit", 64*1024)
	v.SetDefault("server.websocket.send_buffer", 64)
	v.SetDefault("server.websocket.compression", false)
	v.SetDefault("server.admin.address", "127.0.0.1:9090")
	v.SetDefault("server.admin.password_hash", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("duel.max_core_health", duel.DefaultMaxCoreHealth)
	v.SetDefault("duel.max_energy", duel.DefaultMaxEnergy)
	v.SetDefault("duel.seconds_per_turn", duel.DefaultSecondsPerTurn)
	v.SetDefault("duel.start_cards", duel.DefaultStartCards)
	v.SetDefault("duel.units_x", duel.DefaultUnitsX)
	v.SetDefault("duel.units_y", duel.DefaultUnitsY)
	v.SetDefault("duel.max_cards_in_hand", duel.DefaultMaxCardsInHand)
	v.SetDefault("duel.pause_max", duel.DefaultPauseMax)
	v.SetDefault("duel.fragment_cap", duel.DefaultFragmentCap)

	v.SetDefault("match.max_duels", 256)
	v.SetDefault("match.join_token_ttl", 10*time.Minute)
	v.SetDefault("match.ended_retention", 5*time.Minute)
	v.SetDefault("match.default_deck", "starter")

	v.SetDefault("packs.paths", []string{"packs"})

	v.SetDefault("storage.driver", DriverNone)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.max_conn_lifetime", time.Hour)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.dir", "journal")
	v.SetDefault("journal.level", 2)
}

// Load reads the configuration at path. A missing file leaves the
// defaults in place; environment overrides are applied last.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that cannot be fixed at runtime.
func (c *Config) Validate() error {
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Logging.Format)
	}
	switch c.Storage.Driver {
	case DriverNone:
	case DriverPostgres, DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage driver %s needs a dsn", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return errors.New("config: journal enabled without a directory")
	}
	if c.Journal.Level < 1 || c.Journal.Level > 4 {
		return fmt.Errorf("config: journal level %d out of range", c.Journal.Level)
	}
	if c.Match.MaxDuels <= 0 {
		return fmt.Errorf("config: max duels must be positive, got %d", c.Match.MaxDuels)
	}
	if len(c.Packs.Paths) == 0 {
		return errors.New("config: no card pack path")
	}
	if c.Duel.SecondsPerTurn < 0 {
		return fmt.Errorf("config: negative seconds per turn %d", c.Duel.SecondsPerTurn)
	}
	return nil
}

// DuelSettings returns the rules of a new duel, without cards or decks.
func (c *Config) DuelSettings() duel.Settings {
	s := duel.DefaultSettings()
	s.MaxCoreHealth = c.Duel.MaxCoreHealth
	s.MaxEnergy = c.Duel.MaxEnergy
	s.SecondsPerTurn = c.Duel.SecondsPerTurn
	s.StartCards = c.Duel.StartCards
	s.UnitsX = c.Duel.UnitsX
	s.UnitsY = c.Duel.UnitsY
	s.MaxCardsInHand = c.Duel.MaxCardsInHand
	s.PauseMax = c.Duel.PauseMax
	s.FragmentCap = c.Duel.FragmentCap
	return s
}
