package duel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel/dueltest"
)

func TestFragHealEntity(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	h := started(t, db, dueltest.Repeat(grunt, 10), func(s *duel.Settings) { s.MaxCoreHealth = 45 })

	t.Run("full core", func(t *testing.T) {
		require.Equal(t, 45, coreHealth(h, duel.P1))
		heal := duel.NewFragHealEntity(duel.NoEntity, duel.Player1ID, 100)
		m := apply(h, heal)

		assert.Equal(t, duel.FragSuccess, heal.Result)
		assert.Equal(t, 0, heal.AppliedValue)
		assert.Empty(t, deltasOf[*duel.UpdateEntityAttribsDelta](m.Deltas))
		assert.Len(t, deltasOf[*duel.HealScope](m.Deltas), 1)
		assert.Equal(t, 45, coreHealth(h, duel.P1))
	})

	t.Run("up to the maximum", func(t *testing.T) {
		apply(h, duel.NewFragHurtEntity(duel.NoEntity, duel.Player1ID, 10))
		heal := duel.NewFragHealEntity(duel.NoEntity, duel.Player1ID, 100)
		apply(h, heal)
		assert.Equal(t, 10, heal.AppliedValue)
		assert.Equal(t, 45, coreHealth(h, duel.P1))
	})

	t.Run("unit bounded by max health", func(t *testing.T) {
		u := spawn(t, h, duel.P2, grunt, 1, 0)
		apply(h, duel.NewFragHurtEntity(duel.NoEntity, u.ID, 2))
		heal := duel.NewFragHealEntity(duel.NoEntity, u.ID, 5)
		apply(h, heal)
		assert.Equal(t, 2, heal.AppliedValue)
		assert.Equal(t, 3, health(u))
	})

	t.Run("negative value rejected", func(t *testing.T) {
		heal := duel.NewFragHealEntity(duel.NoEntity, duel.Player1ID, -1)
		apply(h, heal)
		assert.Equal(t, duel.FragVerifyFailed, heal.Result)
	})
}

func TestFragAttackUnit_CounterAndDeath(t *testing.T) {
	db := dueltest.NewCardDB()
	brute := db.Add(dueltest.Unit("Brute", 1, 5, 8))
	wall := db.Add(dueltest.Unit("Wall", 1, 5, 3))
	h := started(t, db, dueltest.Repeat(brute, 10), nil)

	p := h.Current()
	attacker := spawn(t, h, p, brute, 0, 0)
	defender := spawn(t, h, p.Other(), wall, 0, 0)

	var defenderHealth []int
	h.Duel.Listeners.RegisterAttributeListener(duel.AttrHealth, func(_ duel.Fragment, e duel.Entity, _ duel.AttributeID, _, now int) {
		if e.EntityID() == defender.ID {
			defenderHealth = append(defenderHealth, now)
		}
	})

	attack := duel.NewFragAttackUnit(attacker.ID, defender.ID, false)
	m := apply(h, attack)

	require.Equal(t, duel.FragSuccess, attack.Result)
	assert.Equal(t, []int{-2}, defenderHealth)
	assert.Equal(t, 8-5, health(attacker), "the defender strikes back")
	assert.True(t, defender.Eliminated)
	assert.Nil(t, h.Duel.State.FindUnit(defender.ID, true))

	attackScope := indexOf(m.Deltas, func(dl duel.Delta) bool { _, ok := dl.(*duel.UnitAttackScope); return ok })
	counter := indexOf(m.Deltas, func(dl duel.Delta) bool {
		s, ok := dl.(*duel.DamageScope)
		return ok && s.TargetID == attacker.ID
	})
	death := indexOf(m.Deltas, func(dl duel.Delta) bool { _, ok := dl.(*duel.UnitDeathScope); return ok })
	require.NotEqual(t, -1, death)
	assert.Less(t, attackScope, counter)
	assert.Less(t, counter, death, "the destruction waits for the attack to complete")
}

func TestFragAttackUnit_Verify(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	pacifist := db.Add(dueltest.Unit("Pacifist", 1, 0, 3))
	h := started(t, db, dueltest.Repeat(grunt, 10), nil)

	p := h.Current()
	u := spawn(t, h, p, grunt, 0, 0)
	friend := spawn(t, h, p, grunt, 1, 0)
	zero := spawn(t, h, p, pacifist, 2, 0)
	enemy := spawn(t, h, p.Other(), grunt, 0, 0)

	for name, tc := range map[string]struct {
		unit, target int
		ok           bool
	}{
		"enemy unit":    {u.ID, enemy.ID, true},
		"enemy core":    {u.ID, p.Other().ID(), true},
		"friendly unit": {u.ID, friend.ID, false},
		"own core":      {u.ID, p.ID(), false},
		"no attack":     {zero.ID, enemy.ID, false},
		"missing unit":  {duel.MakeID(duel.KindUnit, 999), enemy.ID, false},
		"card target":   {u.ID, h.Player(p).Hand[0], false},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.ok, duel.NewFragAttackUnit(tc.unit, tc.target, false).Verify(h.Duel))
		})
	}

	core := coreHealth(h, p.Other())
	apply(h, duel.NewFragAttackUnit(u.ID, p.Other().ID(), false))
	assert.Equal(t, core-2, coreHealth(h, p.Other()))
	assert.Equal(t, 3, health(u), "cores do not strike back")
}

func TestFragSwitchTurn_TicksModifiers(t *testing.T) {
	h, _ := gruntDuel(t)

	mods := []*duel.Modifier{
		{TargetID: duel.Player1ID, Attribute: duel.AttrMaxEnergy, Op: duel.ModAdd, TurnsRemaining: 1},
		{TargetID: duel.Player1ID, Attribute: duel.AttrMaxEnergy, Op: duel.ModAdd, TurnsRemaining: 0},
		{TargetID: duel.Player1ID, Attribute: duel.AttrMaxEnergy, Op: duel.ModAdd, TurnsRemaining: duel.PermanentModifier},
	}
	add := duel.NewFragAddModifiers(mods...)
	apply(h, add)
	require.Len(t, add.CreatedIDs, 3)
	require.Len(t, h.Duel.State.Modifiers, 3)

	m := apply(h, duel.NewFragSwitchTurn(duel.P2))

	assert.Equal(t, []int{0, -1, -1}, []int{mods[0].TurnsRemaining, mods[1].TurnsRemaining, mods[2].TurnsRemaining})
	assert.NotContains(t, h.Duel.State.Modifiers, mods[0].ID)
	assert.Contains(t, h.Duel.State.Modifiers, mods[1].ID)
	assert.Contains(t, h.Duel.State.Modifiers, mods[2].ID)
	assert.Len(t, h.Player(duel.P1).Attribs().Modifiers(duel.AttrMaxEnergy), 2)

	switchAt := indexOf(m.Deltas, func(dl duel.Delta) bool { _, ok := dl.(*duel.SwitchTurnDelta); return ok })
	refresh := indexOf(m.Deltas, func(dl duel.Delta) bool {
		up, ok := dl.(*duel.UpdateEntityAttribsDelta)
		return ok && up.EntityID == duel.Player1ID && len(up.Set) == 0
	})
	assert.Less(t, switchAt, refresh, "removal runs after the turn switch")
}

func TestFragSwitchTurn_RefillsAndReadies(t *testing.T) {
	h, grunt := gruntDuel(t)
	p := h.Current()
	u := spawn(t, h, p.Other(), grunt, 0, 0)
	turn := h.Duel.State.Turn

	require.Equal(t, 1, h.Player(p).Attribs().GetActual(duel.AttrMaxEnergy))
	h.EndTurn()

	next := h.Player(p.Other()).Attribs()
	assert.Equal(t, turn+1, h.Duel.State.Turn)
	assert.Equal(t, p.Other(), h.Current())
	assert.Equal(t, 1, next.GetActual(duel.AttrMaxEnergy))
	assert.Equal(t, 1, next.GetActual(duel.AttrEnergy))
	assert.Equal(t, 0, u.Attribs().GetActual(duel.AttrInactionTurns))
	assert.Equal(t, 1, u.Attribs().GetActual(duel.AttrActionsLeft))
	assert.Len(t, h.Player(p.Other()).Hand, 6, "the new player draws a card")

	h.EndTurn()
	assert.Equal(t, 2, h.Player(p).Attribs().GetActual(duel.AttrMaxEnergy))
}

func TestFragDrawCards_FullHandDiscards(t *testing.T) {
	h, _ := gruntDuel(t)
	p := h.Current()
	pl := h.Player(p)

	apply(h, duel.NewFragDrawCards(p, duel.DefaultMaxCardsInHand-len(pl.Hand)))
	require.Len(t, pl.Hand, duel.DefaultMaxCardsInHand)

	top := pl.Deck[len(pl.Deck)-1]
	deckSize := len(pl.Deck)
	draw := duel.NewFragDrawCards(p, 1)
	m := apply(h, draw)

	assert.Equal(t, duel.FragSuccess, draw.Result)
	assert.Equal(t, 1, draw.SuccessfulNum)
	assert.Equal(t, []int{top}, draw.Drawn)
	assert.Len(t, pl.Hand, duel.DefaultMaxCardsInHand)
	assert.Len(t, pl.Deck, deckSize-1)

	c := h.Duel.State.FindCard(top)
	assert.Equal(t, duel.LocDiscarded, c.Location)
	assert.Equal(t, [2]bool{}, c.Revealed)
	assert.Empty(t, deltasOf[*duel.RevealCardsDelta](m.Deltas))
}

func TestFragDrawCards_TopFirst(t *testing.T) {
	h, _ := gruntDuel(t)
	p := h.Current()
	pl := h.Player(p)
	want := []int{pl.Deck[len(pl.Deck)-1], pl.Deck[len(pl.Deck)-2]}

	draw := duel.NewFragDrawCards(p, 2)
	apply(h, draw)
	assert.Equal(t, want, draw.Drawn)
	assert.Equal(t, want, pl.Hand[len(pl.Hand)-2:])
	for _, id := range want {
		assert.Equal(t, [2]bool{p == duel.P1, p == duel.P2}, h.Duel.State.FindCard(id).Revealed)
	}

	specific := duel.NewFragDrawSpecificCard(p, pl.Deck[0])
	apply(h, specific)
	assert.Equal(t, 1, specific.SuccessfulNum)

	empty := duel.NewFragDrawCards(p, 1)
	pl.Deck = nil
	apply(h, empty)
	assert.Equal(t, duel.FragVerifyFailed, empty.Result)
}

func TestFragUseCard(t *testing.T) {
	db := dueltest.NewCardDB()
	cheap := db.Add(dueltest.Unit("Cheap", 1, 2, 3))
	pricey := db.Add(dueltest.Unit("Pricey", 5, 6, 6))
	deck := make([]duel.QualCardRef, 0, 20)
	for i := 0; i < 10; i++ {
		deck = append(deck, cheap, pricey)
	}
	h := started(t, db, deck, nil)
	p := h.Current()

	expensive := h.HandCard(p, "Pricey")
	err := h.Duel.PlayCard(p, expensive.ID, []duel.ArenaPosition{dueltest.Slot(p, 0, 0)}, nil)
	var reqErr *duel.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "Action not allowed", reqErr.Reason)

	c := h.HandCard(p, "Cheap")
	for name, slots := range map[string][]duel.ArenaPosition{
		"no slot":        nil,
		"enemy side":     {dueltest.Slot(p.Other(), 0, 0)},
		"outside grid":   {dueltest.Slot(p, 9, 0)},
		"too many slots": {dueltest.Slot(p, 0, 0), dueltest.Slot(p, 1, 0)},
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, duel.ActPlayCard(p, c.ID, slots, nil).CanDo(h.Duel))
		})
	}

	u := h.PlayUnit(p, "Cheap", 1, 1)
	assert.Equal(t, c.ID, u.OriginCardID)
	assert.Equal(t, duel.LocDiscarded, c.Location)
	assert.Equal(t, [2]bool{true, true}, c.Revealed)
	assert.Equal(t, 0, h.Player(p).Attribs().GetActual(duel.AttrEnergy))
	assert.Equal(t, 1, h.Player(p).Attribs().GetActual(duel.AttrCardsPlayedThisTurn))
	assert.Equal(t, 1, u.Attribs().GetActual(duel.AttrInactionTurns))
	assert.Equal(t, 0, u.Attribs().GetActual(duel.AttrActionsLeft))

	assert.False(t, duel.ActPlayCard(p, h.HandCard(p, "Cheap").ID, []duel.ArenaPosition{dueltest.Slot(p, 2, 1)}, nil).CanDo(h.Duel),
		"no energy left")
}

func TestUnitOriginStatsFrozenAtSpawn(t *testing.T) {
	db := dueltest.NewCardDB()
	grunt := db.Add(dueltest.Unit("Grunt", 1, 2, 3))
	h := started(t, db, dueltest.Repeat(grunt, 10), nil)

	p := h.Current()
	u := h.PlayUnit(p, "Grunt", 0, 0)
	card := h.Duel.State.FindCard(u.OriginCardID)
	require.NotNil(t, card)
	origin := u.OriginStats.Public()
	attribs := u.Attribs().Public()

	buff := duel.NewFragAddModifiers(&duel.Modifier{
		TargetID:       card.ID,
		Attribute:      duel.AttrAttack,
		Op:             duel.ModAdd,
		Value:          4,
		TurnsRemaining: duel.PermanentModifier,
	})
	apply(h, buff)
	require.Equal(t, duel.FragSuccess, buff.Result)
	require.Equal(t, 6, card.Attribs().GetActual(duel.AttrAttack))

	assert.Equal(t, origin, u.OriginStats.Public())
	assert.Equal(t, 2, u.OriginStats.GetActual(duel.AttrAttack))
	assert.Equal(t, attribs, u.Attribs().Public())
}
