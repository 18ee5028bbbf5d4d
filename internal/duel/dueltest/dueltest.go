// Package dueltest provides an in-memory card database, recording sockets
// and a harness to drive duels from tests.
package dueltest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// PackID is the pack of every card added to a CardDB.
var PackID = uuid.MustParse("6f1c1e52-0000-4000-8000-00000000c4d1")

// CardDB is an in-memory duel.CardDatabase.
type CardDB struct {
	refs []duel.QualCardRef
	defs map[duel.QualCardRef]*duel.CardDefinition
}

func NewCardDB() *CardDB {
	return &CardDB{defs: make(map[duel.QualCardRef]*duel.CardDefinition)}
}

// Add registers def and returns its reference.
func (db *CardDB) Add(def duel.CardDefinition) duel.QualCardRef {
	ref := duel.QualCardRef{PackID: PackID, CardID: uint32(len(db.refs) + 1)}
	db.refs = append(db.refs, ref)
	db.defs[ref] = &def
	return ref
}

func (db *CardDB) Card(ref duel.QualCardRef) (*duel.CardDefinition, bool) {
	def, ok := db.defs[ref]
	return def, ok
}

func (db *CardDB) Refs() []duel.QualCardRef {
	return append([]duel.QualCardRef(nil), db.refs...)
}

// Unit returns the definition of a vanilla unit card.
func Unit(name string, cost, attack, health int) duel.CardDefinition {
	return duel.CardDefinition{Name: name, Type: duel.CardUnit, Cost: cost, Attack: attack, Health: health}
}

// Spell returns the definition of a spell card.
func Spell(name string, cost int, req duel.CardRequirement, script *duel.ScriptSpec) duel.CardDefinition {
	return duel.CardDefinition{Name: name, Type: duel.CardSpell, Requirement: req, Cost: cost, Script: script}
}

// Repeat returns a deck of n copies of ref.
func Repeat(ref duel.QualCardRef, n int) []duel.QualCardRef {
	out := make([]duel.QualCardRef, n)
	for i := range out {
		out[i] = ref
	}
	return out
}

// Socket records the messages sent to a player.
type Socket struct {
	mu   sync.Mutex
	msgs []duel.Message
}

func (s *Socket) Send(msg duel.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (s *Socket) Messages() []duel.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]duel.Message(nil), s.msgs...)
}

// Reset forgets the recorded messages.
func (s *Socket) Reset() {
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
}

// Of returns the recorded messages of type T.
func Of[T duel.Message](s *Socket) []T {
	var out []T
	for _, m := range s.Messages() {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Harness drives a duel with recording sockets.
type Harness struct {
	T       testing.TB
	DB      *CardDB
	Duel    *duel.Duel
	Sockets [2]*Socket
}

// Settings returns test settings: no turn timer and a fixed seed.
func Settings(db *CardDB) duel.Settings {
	s := duel.DefaultSettings()
	s.SecondsPerTurn = 0
	s.Seed = 42
	s.Cards = db
	s.PlayerNames = [2]string{"alice", "bob"}
	return s
}

// New builds a duel and connects both players, without starting it.
func New(t testing.TB, db *CardDB, settings duel.Settings, scripts duel.ScriptFactory) *Harness {
	t.Helper()
	return NewWith(t, db, settings, duel.Options{Scripts: scripts})
}

// NewWith is New with every option. Missing ids and loggers are filled in.
func NewWith(t testing.TB, db *CardDB, settings duel.Settings, opts duel.Options) *Harness {
	t.Helper()
	if opts.ID == "" {
		opts.ID = "test-duel"
	}
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	d, err := duel.New(settings, opts)
	require.NoError(t, err)

	h := &Harness{T: t, DB: db, Duel: d, Sockets: [2]*Socket{{}, {}}}
	for p := duel.P1; p <= duel.P2; p++ {
		require.NoError(t, d.Connect(p, h.Sockets[p]))
	}
	t.Cleanup(d.Close)
	return h
}

// Start reports both players ready, which runs the game start.
func (h *Harness) Start() {
	h.T.Helper()
	require.NoError(h.T, h.Duel.ReportReady(duel.P1))
	require.NoError(h.T, h.Duel.ReportReady(duel.P2))
	require.Equal(h.T, duel.StatusPlaying, h.Duel.State.Status)
}

// Current returns the player whose turn it is.
func (h *Harness) Current() duel.PlayerIndex {
	return h.Duel.State.WhoseTurn
}

// Player returns the state of p.
func (h *Harness) Player(p duel.PlayerIndex) *duel.Player {
	return h.Duel.State.Player(p)
}

// HandCard returns the first card named name in the hand of p.
func (h *Harness) HandCard(p duel.PlayerIndex, name string) *duel.Card {
	h.T.Helper()
	for _, c := range h.Duel.State.HandCards(p) {
		if c.Def.Name == name {
			return c
		}
	}
	h.T.Fatalf("no card %q in the hand of %s", name, p)
	return nil
}

// Slot returns the arena position of slot (x, y) on the side of p.
func Slot(p duel.PlayerIndex, x, y int) duel.ArenaPosition {
	return duel.ArenaPosition{Player: p, Vec: duel.GridVec{X: x, Y: y}}
}

// PlayUnit plays the named unit card of p at slot (x, y) and returns the
// spawned unit.
func (h *Harness) PlayUnit(p duel.PlayerIndex, name string, x, y int) *duel.Unit {
	h.T.Helper()
	c := h.HandCard(p, name)
	require.NoError(h.T, h.Duel.PlayCard(p, c.ID, []duel.ArenaPosition{Slot(p, x, y)}, nil))
	id := h.Player(p).Units[h.Duel.Settings.VecIndex(duel.GridVec{X: x, Y: y})]
	u := h.Duel.State.FindUnit(id, false)
	require.NotNil(h.T, u, "unit %s not on the board", name)
	return u
}

// EndTurn ends the turn of the current player.
func (h *Harness) EndTurn() {
	h.T.Helper()
	require.NoError(h.T, h.Duel.EndTurn(h.Current()))
}

// SkipTurns ends n turns.
func (h *Harness) SkipTurns(n int) {
	h.T.Helper()
	for i := 0; i < n; i++ {
		h.EndTurn()
	}
}

// Ready gives the unit its action, as if it had waited a turn.
func (h *Harness) Ready(u *duel.Unit) {
	u.Attribs().Set(duel.AttrInactionTurns, 0)
	u.Attribs().Set(duel.AttrActionsLeft, 1)
	u.Attribs().ClearPrevVals()
}

func (h *Harness) String() string {
	st := h.Duel.State
	return fmt.Sprintf("turn %d of %s, iteration %d", st.Turn, st.WhoseTurn, h.Duel.StateIteration)
}
