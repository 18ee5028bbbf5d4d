package journal

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel/dueltest"
)

// playShortGame starts a duel recording into sink and plays a few turns.
func playShortGame(t *testing.T, id string, sink duel.MutationSink) {
	t.Helper()
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	settings := dueltest.Settings(db)
	settings.Player1Deck = dueltest.Repeat(grunt, 10)
	settings.Player2Deck = dueltest.Repeat(grunt, 10)

	h := dueltest.NewWith(t, db, settings, duel.Options{ID: id, Sink: sink})
	h.Start()
	h.PlayUnit(h.Current(), "Grunt", 0, 0)
	h.SkipTurns(3)
}

func TestJournal_RecordAndLoad(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, 2, zaptest.NewLogger(t))
	require.NoError(t, err)

	playShortGame(t, "duel-a", j)
	sum, err := j.Finish("duel-a")
	require.NoError(t, err)
	assert.NotEmpty(t, sum)

	hdr, entries, err := Load(dir, "duel-a")
	require.NoError(t, err)
	assert.Equal(t, Version, hdr.Version)
	assert.Equal(t, "duel-a", hdr.DuelID)

	// game start, one card played, three turn switches
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, i+1, e.Iteration)
		assert.NotEmpty(t, e.Deltas)
	}

	var first struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(entries[0].Deltas[0], &first))
	assert.NotEmpty(t, first.Type)

	verified, err := Verify(entries)
	require.NoError(t, err)
	assert.Equal(t, sum, verified)
}

func TestJournal_FinishUnknownDuel(t *testing.T) {
	j, err := New(t.TempDir(), 1, zaptest.NewLogger(t))
	require.NoError(t, err)
	sum, err := j.Finish("nothing")
	assert.NoError(t, err)
	assert.Empty(t, sum)

	_, _, err = Load(t.TempDir(), "nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJournal_CloseFinishesEverything(t *testing.T) {
	dir := t.TempDir()
	j, err := New(dir, 4, zaptest.NewLogger(t))
	require.NoError(t, err)
	playShortGame(t, "one", j)
	playShortGame(t, "two", j)
	require.NoError(t, j.Close())

	for _, id := range []string{"one", "two"} {
		_, entries, err := Load(dir, id)
		require.NoError(t, err)
		assert.NotEmpty(t, entries)
	}
}

func TestVerify_DetectsTampering(t *testing.T) {
	m := NewMemory()
	playShortGame(t, "x", m)
	entries := m.Entries("x")
	require.NotEmpty(t, entries)

	_, err := Verify(entries)
	require.NoError(t, err)

	entries[1].Deltas = entries[1].Deltas[:len(entries[1].Deltas)-1]
	_, err = Verify(entries)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestMemory_SameSeedSameChecksum(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	playShortGame(t, "d", a)
	playShortGame(t, "d", b)
	assert.Equal(t, a.Checksum("d"), b.Checksum("d"))
	assert.NotEmpty(t, a.Checksum("d"))
}

func TestRead_Errors(t *testing.T) {
	t.Run("not zstd", func(t *testing.T) {
		_, _, err := Read(bytes.NewReader([]byte("plain text\n")))
		assert.Error(t, err)
	})

	t.Run("wrong version", func(t *testing.T) {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = enc.Write([]byte(`{"version":99,"duelId":"x"}` + "\n"))
		require.NoError(t, err)
		require.NoError(t, enc.Close())

		_, _, err = Read(&buf)
		assert.ErrorContains(t, err, "unsupported journal version")
	})
}
