package scripting

import (
	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// testScript: a spell targeting a friendly unit, granting +3 attack for one
// turn.
type testScript struct {
	duel.BaseScript
}

func newTestScript(d *duel.Duel, e duel.Entity) duel.Script {
	return &testScript{BaseScript: duel.NewBaseScript(d, e)}
}

func (s *testScript) CardCanPlay(_ duel.Fragment, player duel.PlayerIndex, _ []duel.ArenaPosition, entities []int) bool {
	if len(entities) != 1 {
		return false
	}
	u := s.State().FindUnit(entities[0], false)
	return u != nil && u.Owner == player
}

func (s *testScript) CardOnPlay(frag duel.Fragment, _ duel.PlayerIndex, _ []duel.ArenaPosition, entities []int) {
	me := s.Entity().EntityID()
	target := entities[0]
	frag.Base().ApplyFrag(duel.NewFragEffect(me, duel.TintPositive, func(e *duel.FragEffect) {
		e.ApplyFrag(duel.NewFragAlteration(me, target, true, func(a *duel.FragAlteration) {
			a.ApplyFrag(duel.NewFragAddModifiers(&duel.Modifier{
				TargetID:       target,
				SourceID:       me,
				Attribute:      duel.AttrAttack,
				Op:             duel.ModAdd,
				Value:          3,
				TurnsRemaining: 1,
			}))
		}))
	}))
}

// test2Script: a unit healing its core and an ally when spawned, and
// following up on the attacks of its allies once per iteration.
type test2Script struct {
	duel.BaseScript
	lastFollowUp int
}

func newTest2Script(d *duel.Duel, e duel.Entity) duel.Script {
	return &test2Script{BaseScript: duel.NewBaseScript(d, e), lastFollowUp: -1}
}

func (s *test2Script) PostSpawn(frag duel.Fragment) {
	u, ok := s.Entity().(*duel.Unit)
	if !ok {
		return
	}

	frag.Base().EnqueueFragment(duel.NewFragUnitTrigger(u.ID, func(t *duel.FragUnitTrigger) {
		st := t.State()
		frags := []duel.Fragment{duel.NewFragHealEntity(u.ID, st.Player(u.Owner).ID, 1)}
		if allies := st.PlayerUnits(u.Owner); len(allies) > 0 {
			ally := allies[t.Rand().Intn(len(allies))]
			frags = append(frags, duel.NewFragHealEntity(u.ID, ally.ID, 1))
		}
		t.ApplyFrag(duel.NewFragEffectOf(u.ID, duel.TintPositive, frags...))
	}))

	duel.ScriptListenFragment(&s.BaseScript, func(f *duel.FragAttackUnit, res duel.FragmentState) {
		if res != duel.FragSuccess || f.UnitID == u.ID {
			return
		}
		st := s.State()
		attacker := st.FindUnit(f.UnitID, true)
		if attacker == nil || attacker.Owner != u.Owner {
			return
		}
		if target := st.FindUnit(f.TargetID, true); target != nil && (target.Eliminated || target.DeathPending) {
			return
		}
		if s.lastFollowUp == s.Duel.StateIteration {
			return
		}
		s.lastFollowUp = s.Duel.StateIteration

		targetID := f.TargetID
		f.EnqueueFragment(duel.NewFragUnitTrigger(u.ID, func(t *duel.FragUnitTrigger) {
			t.ApplyFrag(duel.NewFragAttackUnit(u.ID, targetID, true))
		}))
	})
}

// evasionFiscaleScript: lowers by one the cost of every other card in hand.
type evasionFiscaleScript struct {
	duel.BaseScript
}

func newEvasionFiscaleScript(d *duel.Duel, e duel.Entity) duel.Script {
	return &evasionFiscaleScript{BaseScript: duel.NewBaseScript(d, e)}
}

func (s *evasionFiscaleScript) discountable(player duel.PlayerIndex) []*duel.Card {
	var out []*duel.Card
	for _, c := range otherHandCards(s.State(), player, s.Entity().EntityID()) {
		if c.Attribs().GetActual(duel.AttrCost) > 0 {
			out = append(out, c)
		}
	}
	return out
}

func (s *evasionFiscaleScript) CardCanPlay(_ duel.Fragment, player duel.PlayerIndex, _ []duel.ArenaPosition, _ []int) bool {
	return len(s.discountable(player)) >= 2
}

func (s *evasionFiscaleScript) CardOnPlay(frag duel.Fragment, player duel.PlayerIndex, _ []duel.ArenaPosition, _ []int) {
	me := s.Entity().EntityID()
	cards := s.discountable(player)
	frag.Base().ApplyFrag(duel.NewFragEffect(me, duel.TintPositive, func(e *duel.FragEffect) {
		for _, c := range cards {
			c := c
			e.ApplyFrag(duel.NewFragAlteration(me, c.ID, true, func(a *duel.FragAlteration) {
				a.ApplyFrag(duel.NewFragSetAttribute(c.ID, duel.AttrCost, c.Attribs().GetBase(duel.AttrCost)-1))
			}))
		}
	}))
}

// recyclageAstucieuxScript: discards a random card from the hand and draws
// three.
type recyclageAstucieuxScript struct {
	duel.BaseScript
}

func newRecyclageAstucieuxScript(d *duel.Duel, e duel.Entity) duel.Script {
	return &recyclageAstucieuxScript{BaseScript: duel.NewBaseScript(d, e)}
}

func (s *recyclageAstucieuxScript) CardCanPlay(_ duel.Fragment, player duel.PlayerIndex, _ []duel.ArenaPosition, _ []int) bool {
	return len(s.State().HandCards(player)) > 2
}

func (s *recyclageAstucieuxScript) CardOnPlay(frag duel.Fragment, player duel.PlayerIndex, _ []duel.ArenaPosition, _ []int) {
	me := s.Entity().EntityID()
	others := otherHandCards(s.State(), player, me)
	if len(others) == 0 {
		return
	}
	fb := frag.Base()
	discarded := others[fb.Rand().Intn(len(others))].ID

	eff := duel.NewFragEffect(me, duel.TintNeutral, func(e *duel.FragEffect) {
		e.ApplyFrag(duel.NewFragMoveCard(discarded, duel.LocDiscarded))
		e.ApplyFrag(duel.NewFragDrawCards(player, 3))
	})
	eff.DisableTargeting = true
	fb.ApplyFrag(eff)
}

func otherHandCards(st *duel.State, player duel.PlayerIndex, exclude int) []*duel.Card {
	hand := st.HandCards(player)
	out := make([]*duel.Card, 0, len(hand))
	for _, c := range hand {
		if c.ID != exclude {
			out = append(out, c)
		}
	}
	return out
}
