package duel_test

import (
	"encoding/json"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel/dueltest"
)

func TestNew_InvalidSettings(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))

	for name, tweak := range map[string]func(s *duel.Settings){
		"no database":   func(s *duel.Settings) { s.Cards = nil },
		"empty grid":    func(s *duel.Settings) { s.UnitsX = 0 },
		"no core":       func(s *duel.Settings) { s.MaxCoreHealth = 0 },
		"fragment cap":  func(s *duel.Settings) { s.FragmentCap = 1 << 16 },
		"unknown card":  func(s *duel.Settings) { s.Player2Deck = []duel.QualCardRef{{CardID: 404}} },
		"no hand space": func(s *duel.Settings) { s.MaxCardsInHand = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			settings := dueltest.Settings(db)
			settings.Player1Deck = dueltest.Repeat(grunt, 3)
			tweak(&settings)
			_, err := duel.New(settings, duel.Options{})
			assert.Error(t, err)
		})
	}
}

func TestDuel_WelcomeAndStart(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	settings := dueltest.Settings(db)
	settings.Player1Deck = dueltest.Repeat(grunt, 10)
	settings.Player2Deck = dueltest.Repeat(grunt, 10)
	h := dueltest.New(t, db, settings, nil)

	for p := duel.P1; p <= duel.P2; p++ {
		welcome := dueltest.Of[*duel.WelcomeMessage](h.Sockets[p])
		require.Len(t, welcome, 1)
		assert.Equal(t, p, welcome[0].Player)
		assert.Equal(t, 0, welcome[0].Iteration)
		assert.Equal(t, duel.StatusAwaitingConnection, welcome[0].State.Status)
		assert.Equal(t, [2]string{"alice", "bob"}, welcome[0].PlayerNames)
		assert.Equal(t, 10, welcome[0].State.Players[p].DeckSize)
		assert.Len(t, welcome[0].State.HiddenCards, 20)
		assert.Empty(t, welcome[0].State.Cards)
	}

	require.NoError(t, h.Duel.ReportReady(duel.P1))
	assert.Equal(t, duel.StatusAwaitingConnection, h.Duel.State.Status)
	require.NoError(t, h.Duel.ReportReady(duel.P1))
	assert.Equal(t, duel.StatusAwaitingConnection, h.Duel.State.Status, "one player twice is not enough")

	require.NoError(t, h.Duel.ReportReady(duel.P2))
	assert.Equal(t, duel.StatusPlaying, h.Duel.State.Status)
	assert.Equal(t, 1, h.Duel.State.Turn)
	assert.Equal(t, 1, h.Duel.StateIteration)
	for p := duel.P1; p <= duel.P2; p++ {
		assert.Len(t, h.Player(p).Hand, 5)
		assert.Len(t, h.Player(p).Deck, 5)

		msgs := h.Sockets[p].Messages()
		status := slices.IndexFunc(msgs, func(m duel.Message) bool { _, ok := m.(*duel.StatusChangedMessage); return ok })
		mutated := slices.IndexFunc(msgs, func(m duel.Message) bool { _, ok := m.(*duel.MutatedMessage); return ok })
		require.NotEqual(t, -1, status)
		assert.Less(t, status, mutated, "status change is announced before the first mutation")
	}

	require.NoError(t, h.Duel.ReportReady(duel.P2), "late ready is ignored")
	assert.Equal(t, 1, h.Duel.StateIteration)
}

func TestDuel_Determinism(t *testing.T) {
	db := dueltest.NewCardDB()
	a := db.Add(dueltest.Unit("A", 1, 2, 3))
	b := db.Add(dueltest.Unit("B", 1, 3, 2))
	deck := make([]duel.QualCardRef, 0, 20)
	for i := 0; i < 10; i++ {
		deck = append(deck, a, b)
	}

	play := func(seed int64) (duel.PlayerIndex, []string) {
		rec := &recorder{}
		settings := dueltest.Settings(db)
		settings.Player1Deck = deck
		settings.Player2Deck = deck
		settings.Seed = seed
		h := dueltest.NewWith(t, db, settings, duel.Options{Sink: rec})
		h.Start()
		first := h.Current()
		h.PlayUnit(first, "A", 0, 0)
		h.SkipTurns(2)
		h.PlayUnit(first, "B", 1, 0)
		h.SkipTurns(3)
		return first, rec.Lines()
	}

	first1, lines1 := play(7)
	first2, lines2 := play(7)
	assert.Equal(t, first1, first2)
	assert.Equal(t, lines1, lines2)
	assert.NotEmpty(t, lines1)

	firsts := map[duel.PlayerIndex]bool{}
	for seed := int64(1); seed <= 20; seed++ {
		first, _ := play(seed)
		firsts[first] = true
	}
	assert.Len(t, firsts, 2, "the first player depends on the seed")
}

func TestDuel_Requests(t *testing.T) {
	h, _ := gruntDuel(t)
	p := h.Current()
	sock := h.Sockets[p]

	send := func(player duel.PlayerIndex, format string, args ...any) {
		t.Helper()
		require.NoError(t, h.Duel.HandleMessage(player, []byte(fmt.Sprintf(format, args...))))
	}

	t.Run("iteration mismatch", func(t *testing.T) {
		sock.Reset()
		send(p, `{"type":"duelEndTurn","header":{"requestId":7,"iteration":%d}}`, h.Duel.StateIteration-1)
		failed := dueltest.Of[*duel.RequestFailedMessage](sock)
		require.Len(t, failed, 1)
		assert.Equal(t, duel.RequestFailedMessage{RequestID: 7, Reason: "Iteration mismatch"}, *failed[0])
		assert.Equal(t, p, h.Current())
	})

	t.Run("not your turn", func(t *testing.T) {
		other := h.Sockets[p.Other()]
		other.Reset()
		send(p.Other(), `{"type":"duelEndTurn","header":{"requestId":8,"iteration":%d}}`, h.Duel.StateIteration)
		failed := dueltest.Of[*duel.RequestFailedMessage](other)
		require.Len(t, failed, 1)
		assert.Equal(t, "Not your turn", failed[0].Reason)
	})

	t.Run("not allowed", func(t *testing.T) {
		sock.Reset()
		send(p, `{"type":"duelUseUnitProposition","header":{"requestId":9,"iteration":%d},"unitId":%d,"chosenEntityId":%d}`,
			h.Duel.StateIteration, duel.MakeID(duel.KindUnit, 50), p.Other().ID())
		failed := dueltest.Of[*duel.RequestFailedMessage](sock)
		require.Len(t, failed, 1)
		assert.Equal(t, "Action not allowed", failed[0].Reason)
	})

	t.Run("ack before mutation", func(t *testing.T) {
		sock.Reset()
		iteration := h.Duel.StateIteration
		send(p, `{"type":"duelEndTurn","header":{"requestId":10,"iteration":%d}}`, iteration)

		msgs := sock.Messages()
		require.Len(t, msgs, 2)
		assert.Equal(t, &duel.RequestAckMessage{RequestID: 10}, msgs[0])
		mutated, ok := msgs[1].(*duel.MutatedMessage)
		require.True(t, ok)
		assert.Equal(t, iteration+1, mutated.Iteration)
		assert.Equal(t, p.Other(), mutated.WhoseTurn)
		assert.Equal(t, p.Other(), h.Current())
	})

	t.Run("malformed", func(t *testing.T) {
		assert.ErrorIs(t, h.Duel.HandleMessage(p, []byte(`{"type":"duelCheat"}`)), duel.ErrUnknownRequest)
		assert.Error(t, h.Duel.HandleMessage(p, []byte(`not json`)))
	})
}

func TestDuel_MutatedMessagesAreSanitized(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	settings := dueltest.Settings(db)
	settings.Player1Deck = dueltest.Repeat(grunt, 10)
	settings.Player2Deck = dueltest.Repeat(grunt, 10)
	h := dueltest.New(t, db, settings, nil)
	h.Start()

	for p := duel.P1; p <= duel.P2; p++ {
		own := h.Player(p).Hand
		for _, msg := range dueltest.Of[*duel.MutatedMessage](h.Sockets[p]) {
			for _, raw := range msg.Deltas {
				w := decodeWire(t, raw)
				switch w.Type {
				case "revealCards":
					for _, c := range w.RevealedCards {
						assert.Contains(t, own, c.ID, "%s sees a card it does not hold", p)
					}
				case "updateEntityAttribs":
					if kind, _ := duel.KindOf(w.EntityID); kind == duel.KindCard {
						assert.Contains(t, own, w.EntityID)
					}
				}
			}
		}
	}
}

func TestDuel_SanitizedState(t *testing.T) {
	h, _ := gruntDuel(t)

	secret := h.Player(duel.P1).Hand[0]
	own := h.Duel.SanitizedState(duel.P1)
	theirs := h.Duel.SanitizedState(duel.P2)

	cardIDs := func(cards []duel.CardSnapshot) []int {
		ids := make([]int, len(cards))
		for i, c := range cards {
			ids[i] = c.ID
		}
		return ids
	}
	assert.Contains(t, cardIDs(own.Cards), secret)
	assert.NotContains(t, own.HiddenCards, secret)
	assert.NotContains(t, cardIDs(theirs.Cards), secret)
	assert.Contains(t, theirs.HiddenCards, secret)
	assert.Equal(t, h.Player(duel.P1).Hand, theirs.Players[duel.P1].Hand, "hand ids are public")

	raw, err := json.Marshal(theirs)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "cardsPlayedThisTurn", "internal attributes stay on the server")

	reveal := &duel.RevealCardsDelta{Reveal: []int{secret}, Players: duel.RevealTo(duel.P1)}
	require.NoError(t, reveal.Apply(h.Duel))
	_, ok := h.Duel.SanitizeDelta(reveal, duel.P2)
	assert.False(t, ok)
	out, ok := h.Duel.SanitizeDelta(reveal, duel.P1)
	require.True(t, ok)
	assert.NotSame(t, reveal, out, "shared deltas are copied")
	require.Len(t, out.(*duel.RevealCardsDelta).RevealedCards, 1)

	update := &duel.UpdateEntityAttribsDelta{EntityID: secret}
	_, ok = h.Duel.SanitizeDelta(update, duel.P2)
	assert.False(t, ok)
	_, ok = h.Duel.SanitizeDelta(update, duel.P1)
	assert.True(t, ok)
}

func TestDuel_DiscardedCardsLeaveTheView(t *testing.T) {
	h, _ := gruntDuel(t)
	p := h.Current()
	u := h.PlayUnit(p, "Grunt", 0, 0)

	for _, viewer := range []duel.PlayerIndex{duel.P1, duel.P2} {
		st := h.Duel.SanitizedState(viewer)
		for _, c := range st.Cards {
			assert.NotEqual(t, u.OriginCardID, c.ID)
		}
		assert.NotContains(t, st.HiddenCards, u.OriginCardID)
		require.Len(t, st.Units, 1)
		assert.Equal(t, u.ID, st.Units[0].ID)
	}
}

// targetScript only allows targeting cards in the opponent's hand.
type targetScript struct {
	duel.BaseScript
	played []int
}

func (s *targetScript) CardCanPlay(_ duel.Fragment, p duel.PlayerIndex, _ []duel.ArenaPosition, entities []int) bool {
	c := s.State().FindCard(entities[0])
	return c != nil && c.Location == duel.HandLocation(p.Other())
}

func (s *targetScript) CardOnPlay(_ duel.Fragment, _ duel.PlayerIndex, _ []duel.ArenaPosition, entities []int) {
	s.played = append(s.played, entities...)
}

func TestPropositions_SingleEntityAgreesWithVerify(t *testing.T) {
	db := dueltest.NewCardDB()
	snipe := db.Add(dueltest.Spell("Snipe", 0, duel.RequireSingleEntity, &duel.ScriptSpec{Lua: "snipe"}))
	settings := dueltest.Settings(db)
	settings.Player1Deck = dueltest.Repeat(snipe, 10)
	settings.Player2Deck = dueltest.Repeat(snipe, 10)

	var scripts []*targetScript
	factory := scriptFunc(func(d *duel.Duel, e duel.Entity) duel.Script {
		s := &targetScript{BaseScript: duel.NewBaseScript(d, e)}
		scripts = append(scripts, s)
		return s
	})
	h := dueltest.New(t, db, settings, factory)
	h.Start()

	p := h.Current()
	props := h.Duel.Propositions(p)
	require.Len(t, props.Card, len(h.Player(p).Hand))
	assert.Empty(t, h.Duel.Propositions(p.Other()).Card, "not their turn")

	candidates := []int{duel.Player1ID, duel.Player2ID}
	candidates = append(candidates, h.Player(duel.P1).Hand...)
	candidates = append(candidates, h.Player(duel.P2).Hand...)
	for _, prop := range props.Card {
		assert.Equal(t, duel.RequireSingleEntity, prop.Requirement)
		assert.ElementsMatch(t, h.Player(p.Other()).Hand, prop.AllowedEntities)
		assert.Empty(t, prop.AllowedSlots)
		for _, id := range candidates {
			canDo := duel.ActPlayCard(p, prop.CardID, nil, []int{id}).CanDo(h.Duel)
			assert.Equal(t, slices.Contains(prop.AllowedEntities, id), canDo, "card %d on entity %d", prop.CardID, id)
		}
	}

	card := props.Card[0]
	err := h.Duel.PlayCard(p, card.CardID, nil, []int{h.Player(p).Hand[1]})
	assert.Error(t, err)

	target := card.AllowedEntities[0]
	require.NoError(t, h.Duel.PlayCard(p, card.CardID, nil, []int{target}))
	var played []int
	for _, s := range scripts {
		played = append(played, s.played...)
	}
	assert.Equal(t, []int{target}, played)
}

func TestPropositions_Units(t *testing.T) {
	h, grunt := gruntDuel(t)
	p := h.Current()
	u := spawn(t, h, p, grunt, 0, 0)
	enemy := spawn(t, h, p.Other(), grunt, 0, 0)

	assert.Empty(t, h.Duel.Propositions(p).Unit, "units wait a turn before acting")

	h.Ready(u)
	props := h.Duel.Propositions(p)
	require.Len(t, props.Unit, 1)
	assert.Equal(t, u.ID, props.Unit[0].UnitID)
	assert.Equal(t, []int{enemy.ID, p.Other().ID()}, props.Unit[0].AllowedEntities)

	for _, slot := range h.Duel.Propositions(p).Card[0].AllowedSlots {
		assert.NotEqual(t, dueltest.Slot(p, 0, 0), slot, "occupied slots are not proposed")
	}

	assert.False(t, duel.ActUseUnitAttack(p, enemy.ID, p.ID()).CanDo(h.Duel), "enemy units cannot be ordered")
	require.NoError(t, h.Duel.UseUnitAttack(p, u.ID, enemy.ID))
	assert.Empty(t, h.Duel.Propositions(p).Unit, "the action was spent")
}

func TestDuel_GameEnds(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 5, 3))
	settings := dueltest.Settings(db)
	settings.Player1Deck = dueltest.Repeat(grunt, 10)
	settings.Player2Deck = dueltest.Repeat(grunt, 10)
	settings.MaxCoreHealth = 4

	var ended []*duel.PlayerIndex
	h := dueltest.NewWith(t, db, settings, duel.Options{
		OnEnded: func(_ *duel.Duel, winner *duel.PlayerIndex) { ended = append(ended, winner) },
	})
	h.Start()

	p := h.Current()
	u := spawn(t, h, p, grunt, 0, 0)
	h.Ready(u)
	require.NoError(t, h.Duel.UseUnitAttack(p, u.ID, p.Other().ID()))

	assert.Equal(t, duel.StatusEnded, h.Duel.State.Status)
	require.Len(t, ended, 1)
	require.NotNil(t, ended[0])
	assert.Equal(t, p, *ended[0])
	for _, sock := range h.Sockets {
		status := dueltest.Of[*duel.StatusChangedMessage](sock)
		require.NotEmpty(t, status)
		last := status[len(status)-1]
		assert.Equal(t, duel.StatusEnded, last.Status)
		assert.Equal(t, p, *last.Winner)
	}

	var reqErr *duel.RequestError
	require.ErrorAs(t, h.Duel.EndTurn(p), &reqErr)
	assert.Equal(t, "Duel not running", reqErr.Reason)

	summary := h.Duel.Summary()
	assert.Equal(t, duel.StatusEnded, summary.Status)
	assert.Equal(t, [2]bool{true, true}, summary.Connected)
}

func TestDuel_CloseAndDisconnect(t *testing.T) {
	h, _ := gruntDuel(t)
	p := h.Current()

	h.Duel.Disconnect(p, &dueltest.Socket{})
	assert.True(t, h.Duel.Summary().Connected[p], "a stale socket does not detach the current one")
	h.Duel.Disconnect(p, h.Sockets[p])
	assert.False(t, h.Duel.Summary().Connected[p])

	h.Sockets[p.Other()].Reset()
	h.EndTurn()
	assert.NotEmpty(t, dueltest.Of[*duel.MutatedMessage](h.Sockets[p.Other()]))

	reconnect := &dueltest.Socket{}
	require.NoError(t, h.Duel.Connect(p, reconnect))
	welcome := dueltest.Of[*duel.WelcomeMessage](reconnect)
	require.Len(t, welcome, 1)
	assert.Equal(t, h.Duel.StateIteration, welcome[0].Iteration)
	assert.Equal(t, duel.StatusPlaying, welcome[0].State.Status)

	h.Duel.Close()
	assert.ErrorIs(t, h.Duel.EndTurn(h.Current()), duel.ErrDuelClosed)
	assert.ErrorIs(t, h.Duel.Connect(p, reconnect), duel.ErrDuelClosed)
	h.Duel.Close()
}

func TestTimer_TurnTimesOut(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	h := started(t, db, dueltest.Repeat(grunt, 10), func(s *duel.Settings) { s.SecondsPerTurn = 1 })

	first := h.Current()
	running, paused := h.Duel.TimerState()
	assert.True(t, running)
	assert.False(t, paused)

	assert.Eventually(t, func() bool {
		return h.Duel.Summary().WhoseTurn == first.Other()
	}, 3*time.Second, 20*time.Millisecond)
}

func TestTimer_TimeoutGuardedByTimerNotIteration(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	h := started(t, db, dueltest.Repeat(grunt, 10), func(s *duel.Settings) { s.SecondsPerTurn = 60 })

	p := h.Current()
	iteration := h.Duel.StateIteration
	h.PlayUnit(p, "Grunt", 0, 0)
	require.Greater(t, h.Duel.StateIteration, iteration)

	h.Duel.FireTurnTimeout(true)
	assert.Equal(t, p, h.Current(), "a stopped timer's callback does nothing")

	h.Duel.FireTurnTimeout(false)
	assert.Equal(t, p.Other(), h.Current(), "playing during the turn keeps the timer armed")
}

func TestTimer_Control(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	h := started(t, db, dueltest.Repeat(grunt, 10), func(s *duel.Settings) {
		s.SecondsPerTurn = 60
		s.PauseMax = time.Minute
	})
	p := h.Current()
	iteration := h.Duel.StateIteration

	assert.False(t, h.Duel.ControlTimer(p.Other(), true, iteration), "only the current player")
	assert.False(t, h.Duel.ControlTimer(p, true, iteration-1), "stale iteration")
	assert.False(t, h.Duel.ControlTimer(p, false, iteration), "not paused")

	require.True(t, h.Duel.ControlTimer(p, true, iteration))
	_, paused := h.Duel.TimerState()
	assert.True(t, paused)
	assert.False(t, h.Duel.ControlTimer(p, true, iteration), "already paused")

	h.Sockets[p.Other()].Reset()
	require.True(t, h.Duel.ControlTimer(p, false, iteration))
	running, paused := h.Duel.TimerState()
	assert.True(t, running)
	assert.False(t, paused)
	updates := dueltest.Of[*duel.TimerUpdatedMessage](h.Sockets[p.Other()])
	require.Len(t, updates, 1)
	assert.InDelta(t, 60000, updates[0].RemainingMs, 2000)

	// a request carries the same checks
	require.NoError(t, h.Duel.HandleMessage(p, []byte(fmt.Sprintf(
		`{"type":"duelControlTimer","header":{"requestId":1,"iteration":%d},"pause":true}`, iteration))))
	_, paused = h.Duel.TimerState()
	assert.True(t, paused)

	h.EndTurn()
	running, paused = h.Duel.TimerState()
	assert.True(t, running)
	assert.False(t, paused, "a new turn restarts the timer")
}

func TestTimer_PauseExpires(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	h := started(t, db, dueltest.Repeat(grunt, 10), func(s *duel.Settings) {
		s.SecondsPerTurn = 60
		s.PauseMax = 50 * time.Millisecond
	})

	require.True(t, h.Duel.ControlTimer(h.Current(), true, h.Duel.StateIteration))
	assert.Eventually(t, func() bool {
		_, paused := h.Duel.TimerState()
		return !paused
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTimer_DisabledWithoutTurnDuration(t *testing.T) {
	h, _ := gruntDuel(t)
	running, _ := h.Duel.TimerState()
	assert.False(t, running)
	assert.False(t, h.Duel.ControlTimer(h.Current(), true, h.Duel.StateIteration))
}
