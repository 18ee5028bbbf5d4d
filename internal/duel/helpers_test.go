package duel_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel/dueltest"
)

// started builds a started duel where both players use deck.
func started(t *testing.T, db *dueltest.CardDB, deck []duel.QualCardRef, tweak func(s *duel.Settings)) *dueltest.Harness {
	t.Helper()
	settings := dueltest.Settings(db)
	settings.Player1Deck = deck
	settings.Player2Deck = deck
	if tweak != nil {
		tweak(&settings)
	}
	h := dueltest.New(t, db, settings, nil)
	h.Start()
	return h
}

// spawn places a unit of ref on the board of p, outside of any card play.
func spawn(t *testing.T, h *dueltest.Harness, p duel.PlayerIndex, ref duel.QualCardRef, x, y int) *duel.Unit {
	t.Helper()
	card, err := h.Duel.MakeCard(ref, true)
	require.NoError(t, err)

	f := duel.NewFragSpawnVirtualUnit(p, card, dueltest.Slot(p, x, y))
	h.Duel.Mutate(func(m *duel.Mutation) bool {
		return m.ApplyFrag(f) == duel.FragSuccess
	})
	require.Equal(t, duel.FragSuccess, f.Result)

	u := h.Duel.State.FindUnit(f.UnitID, false)
	require.NotNil(t, u)
	return u
}

// apply runs f alone in a new mutation.
func apply(h *dueltest.Harness, f duel.Fragment) *duel.Mutation {
	return h.Duel.Mutate(func(m *duel.Mutation) bool {
		return m.ApplyFrag(f) == duel.FragSuccess
	})
}

func health(u *duel.Unit) int {
	return u.Attribs().GetActual(duel.AttrHealth)
}

func coreHealth(h *dueltest.Harness, p duel.PlayerIndex) int {
	return h.Player(p).Attribs().GetActual(duel.AttrCoreHealth)
}

// deltasOf returns the deltas of type T, in order.
func deltasOf[T duel.Delta](deltas []duel.Delta) []T {
	var out []T
	for _, dl := range deltas {
		if v, ok := dl.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func indexOf(deltas []duel.Delta, match func(dl duel.Delta) bool) int {
	for i, dl := range deltas {
		if match(dl) {
			return i
		}
	}
	return -1
}

// recorder is a MutationSink keeping the full encoding of every delta.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) RecordMutation(_ string, iteration int, deltas []duel.Delta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dl := range deltas {
		raw, err := duel.EncodeDeltaFull(dl)
		if err != nil {
			return err
		}
		r.lines = append(r.lines, string(raw))
	}
	return nil
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// scriptFunc adapts a function to duel.ScriptFactory.
type scriptFunc func(d *duel.Duel, e duel.Entity) duel.Script

func (f scriptFunc) CreateScript(d *duel.Duel, e duel.Entity, _ *duel.ScriptSpec) (duel.Script, error) {
	return f(d, e), nil
}

// wireDelta is the part of an encoded delta the tests look at.
type wireDelta struct {
	Type          string `json:"type"`
	EntityID      int    `json:"entityId"`
	RevealedCards []struct {
		ID int `json:"id"`
	} `json:"revealedCards"`
	HiddenCards []int `json:"hiddenCards"`
}

func decodeWire(t *testing.T, raw json.RawMessage) wireDelta {
	t.Helper()
	var w wireDelta
	require.NoError(t, json.Unmarshal(raw, &w))
	return w
}
