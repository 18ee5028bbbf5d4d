package duel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Delta is a recorded state change. Deltas are the only way to mutate the
// state of a running duel; they are replayed by clients in order.
//
// Apply checks every precondition before touching the state, so a failed
// delta leaves the state as it was.
type Delta interface {
	Apply(d *Duel) error
	DeltaType() string
}

var (
	errDeltaEntityNotFound = errors.New("delta: entity not found")
	errDeltaCardNotFound   = errors.New("delta: card not found")
	errDeltaSlotOccupied   = errors.New("delta: slot occupied")
	errDeltaBadLocation    = errors.New("delta: card location mismatch")
)

// EncodeDelta serializes a delta with its "type" discriminator.
func EncodeDelta(dl Delta) (json.RawMessage, error) {
	return marshalTagged(dl.DeltaType(), dl)
}

// marshalTagged marshals v and splices {"type":"..."} in front of its fields.
func marshalTagged(typ string, v any) (json.RawMessage, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", typ, err)
	}
	tag, _ := json.Marshal(typ)

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 10)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// SwitchTurnDelta starts the turn of WhoseTurn.
type SwitchTurnDelta struct {
	Turn      int         `json:"turn"`
	WhoseTurn PlayerIndex `json:"whoseTurn"`
}

func (*SwitchTurnDelta) DeltaType() string { return "switchTurn" }

func (dl *SwitchTurnDelta) Apply(d *Duel) error {
	if !dl.WhoseTurn.Valid() {
		return fmt.Errorf("delta: invalid player %d", dl.WhoseTurn)
	}
	d.State.Turn = dl.Turn
	d.State.WhoseTurn = dl.WhoseTurn
	return nil
}

// UpdateEntityAttribsDelta writes base values of an entity's attributes.
// Attribs is the snapshot of public actual values after the write, filled
// in by Apply for clients. An empty Set only refreshes the snapshot, which
// is how modifier changes are replicated.
type UpdateEntityAttribsDelta struct {
	EntityID int                 `json:"entityId"`
	Set      map[AttributeID]int `json:"-"`
	Attribs  map[string]int      `json:"attribs"`
}

func (*UpdateEntityAttribsDelta) DeltaType() string { return "updateEntityAttribs" }

func (dl *UpdateEntityAttribsDelta) Apply(d *Duel) error {
	e := d.State.findEntityAny(dl.EntityID)
	if e == nil {
		return fmt.Errorf("%w: %d", errDeltaEntityNotFound, dl.EntityID)
	}
	ids := make([]AttributeID, 0, len(dl.Set))
	for id := range dl.Set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		e.Attribs().Set(id, dl.Set[id])
	}
	dl.Attribs = e.Attribs().Public()
	return nil
}

// CardMove is one card changing location.
type CardMove struct {
	CardID int          `json:"cardId"`
	Prev   CardLocation `json:"prev"`
	Now    CardLocation `json:"now"`
}

// MoveCardsDelta moves cards between decks, hands and the discard pile.
type MoveCardsDelta struct {
	Changes []CardMove `json:"changes"`
}

func (*MoveCardsDelta) DeltaType() string { return "moveCards" }

func (dl *MoveCardsDelta) Apply(d *Duel) error {
	st := d.State
	for _, ch := range dl.Changes {
		c := st.Cards[ch.CardID]
		if c == nil {
			return fmt.Errorf("%w: %d", errDeltaCardNotFound, ch.CardID)
		}
		if c.Location != ch.Prev {
			return fmt.Errorf("%w: card %d is in %s, not %s", errDeltaBadLocation, ch.CardID, c.Location, ch.Prev)
		}
	}
	for _, ch := range dl.Changes {
		c := st.Cards[ch.CardID]
		st.detachCard(c)
		c.Location = ch.Now
		st.attachCard(c)
	}
	return nil
}

func (s *State) detachCard(c *Card) {
	p, ok := c.Location.Owner()
	if !ok {
		return
	}
	pl := s.Players[p]
	if c.Location.IsHand() {
		pl.Hand = removeID(pl.Hand, c.ID)
	} else {
		pl.Deck = removeID(pl.Deck, c.ID)
	}
}

func (s *State) attachCard(c *Card) {
	p, ok := c.Location.Owner()
	if !ok {
		return
	}
	pl := s.Players[p]
	if c.Location.IsHand() {
		pl.Hand = append(pl.Hand, c.ID)
	} else {
		pl.Deck = append(pl.Deck, c.ID)
	}
}

func removeID(ids []int, id int) []int {
	for i, x := range ids {
		if x == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// RevealCardsDelta changes which players can see cards. On the wire it is
// split per recipient into RevealedCards and HiddenCards.
type RevealCardsDelta struct {
	Reveal  []int   `json:"-"`
	Hide    []int   `json:"-"`
	Players [2]bool `json:"-"`

	// card views at the time of the reveal, before later moves
	snapshots []CardSnapshot

	RevealedCards []CardSnapshot `json:"revealedCards"`
	HiddenCards   []int          `json:"hiddenCards"`
}

func (*RevealCardsDelta) DeltaType() string { return "revealCards" }

func (dl *RevealCardsDelta) Apply(d *Duel) error {
	for _, ids := range [][]int{dl.Reveal, dl.Hide} {
		for _, id := range ids {
			if d.State.Cards[id] == nil {
				return fmt.Errorf("%w: %d", errDeltaCardNotFound, id)
			}
		}
	}
	for p := P1; p <= P2; p++ {
		if !dl.Players[p] {
			continue
		}
		for _, id := range dl.Reveal {
			d.State.Cards[id].Revealed[p] = true
		}
		for _, id := range dl.Hide {
			d.State.Cards[id].Revealed[p] = false
		}
	}
	dl.snapshots = dl.snapshots[:0]
	for _, id := range dl.Reveal {
		dl.snapshots = append(dl.snapshots, snapshotCard(d.State.Cards[id]))
	}
	return nil
}

// PlaceUnitDelta puts a new unit on its owner's grid.
type PlaceUnitDelta struct {
	Unit     *Unit        `json:"-"`
	Snapshot UnitSnapshot `json:"unit"`
}

func (*PlaceUnitDelta) DeltaType() string { return "placeUnit" }

func (dl *PlaceUnitDelta) Apply(d *Duel) error {
	u := dl.Unit
	if u == nil {
		return errors.New("delta: nil unit")
	}
	if !d.Settings.ValidVec(u.Position.Vec) {
		return fmt.Errorf("delta: invalid position %+v", u.Position.Vec)
	}
	if _, exists := d.State.Units[u.ID]; exists {
		return fmt.Errorf("delta: unit %d already placed", u.ID)
	}
	pl := d.State.Players[u.Position.Player]
	slot := d.Settings.VecIndex(u.Position.Vec)
	if pl.Units[slot] != 0 {
		return fmt.Errorf("%w: %+v", errDeltaSlotOccupied, u.Position)
	}
	d.State.Units[u.ID] = u
	pl.Units[slot] = u.ID
	dl.Snapshot = snapshotUnit(u)
	return nil
}

// RemoveUnitDelta takes a unit off the grid. The unit stays in the state,
// flagged eliminated, until the mutation ends.
type RemoveUnitDelta struct {
	UnitID int `json:"unitId"`
}

func (*RemoveUnitDelta) DeltaType() string { return "removeUnit" }

func (dl *RemoveUnitDelta) Apply(d *Duel) error {
	u := d.State.FindUnit(dl.UnitID, false)
	if u == nil {
		return fmt.Errorf("%w: unit %d", errDeltaEntityNotFound, dl.UnitID)
	}
	pl := d.State.Players[u.Position.Player]
	slot := d.Settings.VecIndex(u.Position.Vec)
	if pl.Units[slot] == u.ID {
		pl.Units[slot] = 0
	}
	u.Eliminated = true
	d.State.eliminated = append(d.State.eliminated, u.ID)
	return nil
}

// CreateCardsDelta adds cards generated during the duel. They start in the
// Temp location and are hidden until revealed.
type CreateCardsDelta struct {
	Cards   []*Card `json:"-"`
	CardIDs []int   `json:"cardIds"`
}

func (*CreateCardsDelta) DeltaType() string { return "createCards" }

func (dl *CreateCardsDelta) Apply(d *Duel) error {
	for _, c := range dl.Cards {
		if c.Virtual() {
			return errors.New("delta: cannot create a virtual card")
		}
		if _, exists := d.State.Cards[c.ID]; exists {
			return fmt.Errorf("delta: card %d already exists", c.ID)
		}
	}
	dl.CardIDs = dl.CardIDs[:0]
	for _, c := range dl.Cards {
		c.Location = LocTemp
		d.State.Cards[c.ID] = c
		dl.CardIDs = append(dl.CardIDs, c.ID)
	}
	return nil
}

// EndGameDelta ends the duel. A nil Winner is a draw.
type EndGameDelta struct {
	Winner *PlayerIndex `json:"winner"`
}

func (*EndGameDelta) DeltaType() string { return "endGame" }

func (dl *EndGameDelta) Apply(d *Duel) error {
	if d.State.Status == StatusEnded {
		return errors.New("delta: duel already ended")
	}
	d.State.Status = StatusEnded
	d.State.Winner = dl.Winner
	return nil
}

// EncodeDeltaFull serializes a delta including the fields clients never
// receive. It is meant for server-side records such as the journal.
func EncodeDeltaFull(dl Delta) (json.RawMessage, error) {
	switch v := dl.(type) {
	case *RevealCardsDelta:
		return marshalTagged(v.DeltaType(), struct {
			Reveal  []int   `json:"reveal"`
			Hide    []int   `json:"hide"`
			Players [2]bool `json:"players"`
		}{v.Reveal, v.Hide, v.Players})
	case *UpdateEntityAttribsDelta:
		return marshalTagged(v.DeltaType(), struct {
			EntityID int                 `json:"entityId"`
			Set      map[AttributeID]int `json:"set,omitempty"`
			Attribs  map[string]int      `json:"attribs"`
		}{v.EntityID, v.Set, v.Attribs})
	default:
		return EncodeDelta(dl)
	}
}
