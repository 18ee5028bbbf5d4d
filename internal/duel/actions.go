package duel

// Action is the root of a mutation, started by a player or by the duel
// itself. CanDo is the legality check behind propositions; it is exactly the
// verification Run performs before changing anything.
type Action interface {
	CanDo(d *Duel) bool
	Run(d *Duel, m *Mutation) bool
}

type seqStep struct {
	build    func(d *Duel) Fragment
	optional bool
}

// SeqAction applies fragments in order. A failed required fragment stops
// the sequence; optional ones may fail.
type SeqAction struct {
	Name string
	// Player, when set, must be the player whose turn it is.
	Player *PlayerIndex
	steps  []seqStep
}

// Require appends a fragment that must succeed.
func (a *SeqAction) Require(build func(d *Duel) Fragment) *SeqAction {
	a.steps = append(a.steps, seqStep{build: build})
	return a
}

// Then appends a fragment that may fail without stopping the action.
func (a *SeqAction) Then(build func(d *Duel) Fragment) *SeqAction {
	a.steps = append(a.steps, seqStep{build: build, optional: true})
	return a
}

func (a *SeqAction) turnOK(d *Duel) bool {
	if d.State.Status != StatusPlaying {
		return false
	}
	return a.Player == nil || d.State.WhoseTurn == *a.Player
}

// CanDo verifies every required fragment against the current state.
func (a *SeqAction) CanDo(d *Duel) bool {
	if !a.turnOK(d) {
		return false
	}
	for _, s := range a.steps {
		if s.optional {
			continue
		}
		if !s.build(d).Verify(d) {
			return false
		}
	}
	return true
}

func (a *SeqAction) Run(d *Duel, m *Mutation) bool {
	if !a.turnOK(d) {
		return false
	}
	for _, s := range a.steps {
		if m.ApplyFrag(s.build(d)) != FragSuccess && !s.optional {
			return false
		}
	}
	return true
}

// ActNextTurn ends the current turn: the other player starts a turn and
// draws a card.
func ActNextTurn() *SeqAction {
	a := &SeqAction{Name: "nextTurn"}
	return a.
		Require(func(d *Duel) Fragment { return NewFragSwitchTurn(d.State.WhoseTurn.Other()) }).
		Then(func(d *Duel) Fragment { return NewFragDrawCards(d.State.WhoseTurn, 1) })
}

// ActEndTurn is ActNextTurn restricted to the player whose turn it is.
func ActEndTurn(player PlayerIndex) *SeqAction {
	a := ActNextTurn()
	a.Player = &player
	return a
}

// ActPlayCard plays a card from the hand of player.
func ActPlayCard(player PlayerIndex, cardID int, slots []ArenaPosition, entities []int) *SeqAction {
	a := &SeqAction{Name: "playCard", Player: &player}
	return a.Require(func(*Duel) Fragment { return NewFragUseCard(player, cardID, slots, entities) })
}

// ActUseUnitAttack makes a unit of player attack a target.
func ActUseUnitAttack(player PlayerIndex, unitID, targetID int) *SeqAction {
	a := &SeqAction{Name: "useUnitAttack", Player: &player}
	ownUnit := func(d *Duel) Fragment {
		f := NewFragUnitConsumeAction(unitID)
		if u := d.State.FindUnit(unitID, false); u == nil || u.Owner != player {
			// never verifies
			f.UnitID = NoEntity
		}
		return f
	}
	return a.
		Require(ownUnit).
		Require(func(*Duel) Fragment { return NewFragAttackUnit(unitID, targetID, false) })
}

// ActGameStart deals the starting hands and picks the first player at random.
func ActGameStart() *SeqAction {
	a := &SeqAction{Name: "gameStart"}
	return a.
		Then(func(d *Duel) Fragment { return NewFragDrawCards(P1, d.Settings.StartCards) }).
		Then(func(d *Duel) Fragment { return NewFragDrawCards(P2, d.Settings.StartCards) }).
		Require(func(d *Duel) Fragment {
			// the draw happens at run time so that verifying does not consume randomness
			return NewFragFunc("pickFirstPlayer", false, func(f *FragFunc, d *Duel) bool {
				first := PlayerIndex(d.rng.Intn(2))
				return f.ApplyFrag(NewFragSwitchTurn(first)) == FragSuccess
			})
		})
}
