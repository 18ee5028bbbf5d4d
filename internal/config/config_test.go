package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.WebSocket.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.WebSocket.WriteTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DriverNone, cfg.Storage.Driver)
	assert.Equal(t, []string{"packs"}, cfg.Packs.Paths)

	s := cfg.DuelSettings()
	assert.Equal(t, duel.DefaultSettings(), s)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: console
duel:
  seconds_per_turn: 0
  units_x: 3
  pause_max: 10s
storage:
  driver: sqlite
  dsn: "file::memory:"
packs:
  paths: [a, b]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 0, cfg.Duel.SecondsPerTurn)
	assert.Equal(t, 3, cfg.Duel.UnitsX)
	assert.Equal(t, duel.DefaultUnitsY, cfg.Duel.UnitsY, "unset keys keep their default")
	assert.Equal(t, 10*time.Second, cfg.Duel.PauseMax)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, []string{"a", "b"}, cfg.Packs.Paths)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: debug\n")
	t.Setenv("CARDLAB_LOG_LEVEL", "warn")
	t.Setenv("CARDLAB_SERVER_WS_ADDRESS", ":9999")
	t.Setenv("CARDLAB_DUEL_START_CARDS", "3")
	t.Setenv("CARDLAB_PACKS_PATHS", "x,y")
	t.Setenv("CARDLAB_MATCH_JOIN_TOKEN_TTL", "1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ":9999", cfg.Server.WebSocket.Address)
	assert.Equal(t, 3, cfg.Duel.StartCards)
	assert.Equal(t, []string{"x", "y"}, cfg.Packs.Paths)
	assert.Equal(t, time.Minute, cfg.Match.JoinTokenTTL)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "storage:\n  driver: mongo\n"},
		{"driver without dsn", "storage:\n  driver: postgres\n"},
		{"unknown format", "logging:\n  format: xml\n"},
		{"journal level", "journal:\n  level: 9\n"},
		{"malformed yaml", "duel: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.True(t, cfg.Journal.Enabled)
}
