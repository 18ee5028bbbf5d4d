package duel

// FragMoveCard moves a card to another location and updates the activation
// of its script.
type FragMoveCard struct {
	FragmentBase
	CardID      int
	NewLocation CardLocation

	PrevLocation CardLocation
}

func NewFragMoveCard(cardID int, to CardLocation) *FragMoveCard {
	return &FragMoveCard{FragmentBase: newFragmentBase(true), CardID: cardID, NewLocation: to}
}

func (f *FragMoveCard) Verify(d *Duel) bool {
	c := d.State.FindCard(f.CardID)
	if c == nil || c.Location == f.NewLocation {
		return false
	}
	if p, ok := f.NewLocation.Owner(); ok && f.NewLocation.IsHand() {
		return len(d.State.Player(p).Hand) < d.Settings.MaxCardsInHand
	}
	return true
}

func (f *FragMoveCard) Run(d *Duel) bool {
	c := d.State.FindCard(f.CardID)
	f.PrevLocation = c.Location
	err := f.ApplyDelta(&MoveCardsDelta{Changes: []CardMove{{CardID: c.ID, Prev: c.Location, Now: f.NewLocation}}})
	if err != nil {
		return false
	}

	wasHand, isHand := f.PrevLocation.IsHand(), f.NewLocation.IsHand()
	switch {
	case isHand && !wasHand:
		d.activateScript(c)
	case wasHand && !isHand:
		d.deactivateScript(c)
	}

	// the script may already serve the unit spawned from this card
	if s := c.Script(); s != nil && s.ScriptBase().Entity() == Entity(c) {
		d.runHook(f, s, "CardPostMove", func() { s.CardPostMove(f, f.PrevLocation, f.NewLocation) })
	}
	return true
}

// FragRevealCards reveals cards to the selected players.
type FragRevealCards struct {
	FragmentBase
	CardIDs []int
	Players [2]bool
}

func NewFragRevealCards(players [2]bool, cardIDs ...int) *FragRevealCards {
	return &FragRevealCards{FragmentBase: newFragmentBase(true), CardIDs: cardIDs, Players: players}
}

// RevealTo returns the player flags for a single player.
func RevealTo(p PlayerIndex) [2]bool {
	var out [2]bool
	out[p] = true
	return out
}

// RevealBoth reveals to both players.
var RevealBoth = [2]bool{true, true}

func (f *FragRevealCards) Verify(d *Duel) bool {
	for _, id := range f.CardIDs {
		if d.State.FindCard(id) == nil {
			return false
		}
	}
	return len(f.CardIDs) > 0
}

func (f *FragRevealCards) Run(d *Duel) bool {
	pending := make([]int, 0, len(f.CardIDs))
	for _, id := range f.CardIDs {
		c := d.State.FindCard(id)
		if (f.Players[P1] && !c.Revealed[P1]) || (f.Players[P2] && !c.Revealed[P2]) {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return true
	}
	return f.ApplyDelta(&RevealCardsDelta{Reveal: pending, Players: f.Players}) == nil
}

// FragDrawCards draws N cards from the top of a player's deck, or the
// specific CardID when set. With a full hand, the drawn card is discarded;
// it still counts as drawn.
type FragDrawCards struct {
	FragmentBase
	Player PlayerIndex
	N      int
	CardID int

	SuccessfulNum int
	Drawn         []int
}

func NewFragDrawCards(player PlayerIndex, n int) *FragDrawCards {
	return &FragDrawCards{FragmentBase: newFragmentBase(false), Player: player, N: n}
}

// NewFragDrawSpecificCard draws cardID from the player's deck.
func NewFragDrawSpecificCard(player PlayerIndex, cardID int) *FragDrawCards {
	return &FragDrawCards{FragmentBase: newFragmentBase(false), Player: player, N: 1, CardID: cardID}
}

func (f *FragDrawCards) Scope(d *Duel) ScopeDelta {
	return &CardDrawScope{Player: f.Player}
}

func (f *FragDrawCards) Verify(d *Duel) bool {
	if !f.Player.Valid() || f.N <= 0 {
		return false
	}
	deck := d.State.Player(f.Player).Deck
	if f.CardID != 0 {
		c := d.State.FindCard(f.CardID)
		return c != nil && c.Location == DeckLocation(f.Player)
	}
	return len(deck) > 0
}

func (f *FragDrawCards) Run(d *Duel) bool {
	pl := d.State.Player(f.Player)
	for i := 0; i < f.N; i++ {
		id := f.CardID
		if id == 0 {
			if len(pl.Deck) == 0 {
				break
			}
			id = pl.Deck[len(pl.Deck)-1]
		}

		to := HandLocation(f.Player)
		if len(pl.Hand) >= d.Settings.MaxCardsInHand {
			to = LocDiscarded
		} else {
			f.ApplyFrag(NewFragRevealCards(RevealTo(f.Player), id))
		}
		if f.ApplyFrag(NewFragMoveCard(id, to)) == FragSuccess {
			f.SuccessfulNum++
			f.Drawn = append(f.Drawn, id)
		}
		if f.CardID != 0 {
			break
		}
	}
	return f.SuccessfulNum > 0
}

// FragUseCard plays a card from the hand of Player: pays its cost, reveals
// it, then spawns its unit or runs its spell, and finally discards it.
type FragUseCard struct {
	FragmentBase
	Player   PlayerIndex
	CardID   int
	Slots    []ArenaPosition
	Entities []int

	SpawnedUnit int
}

func NewFragUseCard(player PlayerIndex, cardID int, slots []ArenaPosition, entities []int) *FragUseCard {
	return &FragUseCard{
		FragmentBase: newFragmentBase(false),
		Player:       player,
		CardID:       cardID,
		Slots:        slots,
		Entities:     entities,
	}
}

func (f *FragUseCard) Scope(d *Duel) ScopeDelta {
	return &CardPlayScope{CardID: f.CardID, Player: f.Player}
}

func (f *FragUseCard) Verify(d *Duel) bool {
	st := d.State
	if st.WhoseTurn != f.Player {
		return false
	}
	c := st.FindCard(f.CardID)
	if c == nil || c.Location != HandLocation(f.Player) {
		return false
	}
	if c.Attribs().GetActual(AttrCost) > st.Player(f.Player).Attribs().GetActual(AttrEnergy) {
		return false
	}

	switch c.Requirement {
	case RequireSingleSlot:
		if len(f.Slots) != 1 || !d.slotAvailable(f.Player, f.Slots[0]) {
			return false
		}
	case RequireSingleEntity:
		if len(f.Entities) != 1 || st.FindEntity(f.Entities[0]) == nil {
			return false
		}
	}

	if s := c.Script(); s != nil {
		f.verifyDuel = d
		allowed := false
		d.runHook(f, s, "CardCanPlay", func() { allowed = s.CardCanPlay(f, f.Player, f.Slots, f.Entities) })
		return allowed
	}
	return true
}

func (f *FragUseCard) Run(d *Duel) bool {
	st := d.State
	c := st.FindCard(f.CardID)
	pl := st.Player(f.Player)
	pa := pl.Attribs()

	err := f.ApplyDelta(&UpdateEntityAttribsDelta{
		EntityID: pl.ID,
		Set: map[AttributeID]int{
			AttrEnergy:              pa.GetBase(AttrEnergy) - c.Attribs().GetActual(AttrCost),
			AttrCardsPlayedThisTurn: pa.GetBase(AttrCardsPlayedThisTurn) + 1,
		},
	})
	if err != nil {
		return false
	}

	f.ApplyFrag(NewFragRevealCards(RevealBoth, c.ID))

	ok := true
	switch c.Type {
	case CardUnit:
		spawn := NewFragSpawnUnit(f.Player, c.ID, f.Slots[0])
		ok = f.ApplyFrag(spawn) == FragSuccess
		f.SpawnedUnit = spawn.UnitID
	case CardSpell:
		if s := c.Script(); s != nil {
			d.runHook(f, s, "CardOnPlay", func() { s.CardOnPlay(f, f.Player, f.Slots, f.Entities) })
		}
	}

	if c.Location != LocDiscarded {
		f.ApplyFrag(NewFragMoveCard(c.ID, LocDiscarded))
	}
	return ok
}

// slotAvailable reports whether pos is a free slot on the side of player.
func (d *Duel) slotAvailable(player PlayerIndex, pos ArenaPosition) bool {
	if pos.Player != player || !d.Settings.ValidVec(pos.Vec) {
		return false
	}
	return d.State.Player(player).Units[d.Settings.VecIndex(pos.Vec)] == 0
}
