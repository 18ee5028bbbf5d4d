package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardpack"
	"github.com/ChuechTeam/CardLab-sub000/internal/config"
)

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "cardlab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func intPtr(v int) *int { return &v }

// storeSuite runs the same checks against any backend.
func storeSuite(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("results", func(t *testing.T) {
		first := DuelResult{
			DuelID:      "d1",
			StartedAt:   base,
			EndedAt:     base.Add(10 * time.Minute),
			Turns:       12,
			Iterations:  40,
			PlayerNames: [2]string{"alice", "bob"},
			Winner:      intPtr(1),
			Checksum:    "abc",
		}
		second := first
		second.DuelID = "d2"
		second.EndedAt = base.Add(20 * time.Minute)
		second.Winner = nil

		require.NoError(t, s.SaveResult(ctx, first))
		require.NoError(t, s.SaveResult(ctx, second))

		got, err := s.Result(ctx, "d1")
		require.NoError(t, err)
		assert.Equal(t, first.PlayerNames, got.PlayerNames)
		require.NotNil(t, got.Winner)
		assert.Equal(t, 1, *got.Winner)
		assert.True(t, first.EndedAt.Equal(got.EndedAt))

		recent, err := s.RecentResults(ctx, 10)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "d2", recent[0].DuelID)
		assert.Nil(t, recent[0].Winner)

		_, err = s.Result(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save result twice updates it", func(t *testing.T) {
		r := DuelResult{DuelID: "d3", StartedAt: base, EndedAt: base, Turns: 1}
		require.NoError(t, s.SaveResult(ctx, r))
		r.Turns = 7
		require.NoError(t, s.SaveResult(ctx, r))
		got, err := s.Result(ctx, "d3")
		require.NoError(t, err)
		assert.Equal(t, 7, got.Turns)
	})

	t.Run("packs", func(t *testing.T) {
		db, err := cardpack.Load(filepath.Join("..", "..", "packs"))
		require.NoError(t, err)
		pack := db.Packs()[0]

		require.NoError(t, s.SavePack(ctx, pack))
		// importing again replaces the catalog
		require.NoError(t, s.SavePack(ctx, pack))

		packs, err := s.Packs(ctx)
		require.NoError(t, err)
		require.Len(t, packs, 1)
		assert.Equal(t, pack.ID.String(), packs[0].PackID)
		assert.Equal(t, len(pack.Cards), packs[0].Cards)
	})
}

func TestSQLiteStore(t *testing.T) {
	storeSuite(t, openSQLite(t))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CARDLAB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CARDLAB_TEST_POSTGRES_DSN not set")
	}
	s, err := OpenPostgres(context.Background(), config.StorageConfig{DSN: dsn})
	require.NoError(t, err)
	defer s.Close()
	_, err = s.pool.Exec(context.Background(), `TRUNCATE duel_results, card_packs CASCADE`)
	require.NoError(t, err)
	storeSuite(t, s)
}

func TestOpen(t *testing.T) {
	logger := zaptest.NewLogger(t)

	s, err := Open(context.Background(), config.StorageConfig{Driver: config.DriverNone}, logger)
	require.NoError(t, err)
	assert.IsType(t, Nop{}, s)
	_, err = s.Result(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)

	s, err = Open(context.Background(), config.StorageConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "x.db"),
	}, logger)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(context.Background(), config.StorageConfig{Driver: "mongo"}, logger)
	assert.Error(t, err)
}
