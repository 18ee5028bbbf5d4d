package duel

import (
	"encoding/json"
	"sort"
)

// CardSnapshot is the client view of a card.
type CardSnapshot struct {
	ID          int             `json:"id"`
	DefRef      QualCardRef     `json:"defRef"`
	Name        string          `json:"name"`
	Type        CardType        `json:"type"`
	Requirement CardRequirement `json:"requirement"`
	Location    CardLocation    `json:"location"`
	Archetype   string          `json:"archetype,omitempty"`
	Attribs     map[string]int  `json:"attribs"`
}

// UnitSnapshot is the client view of a unit.
type UnitSnapshot struct {
	ID           int            `json:"id"`
	OriginRef    QualCardRef    `json:"originRef"`
	OriginCardID int            `json:"originCardId"`
	Owner        PlayerIndex    `json:"owner"`
	Position     ArenaPosition  `json:"position"`
	Archetype    string         `json:"archetype,omitempty"`
	Attribs      map[string]int `json:"attribs"`
}

// PlayerSnapshot is the client view of a player. The order of the deck is
// never sent.
type PlayerSnapshot struct {
	ID       int            `json:"id"`
	Index    PlayerIndex    `json:"index"`
	Name     string         `json:"name"`
	Attribs  map[string]int `json:"attribs"`
	DeckSize int            `json:"deckSize"`
	Hand     []int          `json:"hand"`
	Units    []int          `json:"units"`
}

// StateSnapshot is the state as one player is allowed to see it.
type StateSnapshot struct {
	Players     [2]PlayerSnapshot `json:"players"`
	Units       []UnitSnapshot    `json:"units"`
	Cards       []CardSnapshot    `json:"cards"`
	HiddenCards []int             `json:"hiddenCards"`
	Turn        int               `json:"turn"`
	WhoseTurn   PlayerIndex       `json:"whoseTurn"`
	Status      Status            `json:"status"`
	Winner      *PlayerIndex      `json:"winner"`
}

func snapshotCard(c *Card) CardSnapshot {
	name := ""
	if c.Def != nil {
		name = c.Def.Name
	}
	return CardSnapshot{
		ID:          c.ID,
		DefRef:      c.DefRef,
		Name:        name,
		Type:        c.Type,
		Requirement: c.Requirement,
		Location:    c.Location,
		Archetype:   c.Archetype,
		Attribs:     c.Attribs().Public(),
	}
}

func snapshotUnit(u *Unit) UnitSnapshot {
	return UnitSnapshot{
		ID:           u.ID,
		OriginRef:    u.OriginRef,
		OriginCardID: u.OriginCardID,
		Owner:        u.Owner,
		Position:     u.Position,
		Archetype:    u.Archetype,
		Attribs:      u.Attribs().Public(),
	}
}

// visibleTo reports whether p may see the details of c.
func (c *Card) visibleTo(p PlayerIndex) bool {
	return c.Revealed[p] && c.Location != LocDiscarded
}

// SanitizedState returns the state as seen by p: cards not revealed to p
// are reduced to their id, and discarded cards are left out.
func (d *Duel) SanitizedState(p PlayerIndex) StateSnapshot {
	st := d.State
	out := StateSnapshot{
		Units:       []UnitSnapshot{},
		Cards:       []CardSnapshot{},
		HiddenCards: []int{},
		Turn:        st.Turn,
		WhoseTurn:   st.WhoseTurn,
		Status:      st.Status,
		Winner:      st.Winner,
	}
	for i, pl := range st.Players {
		out.Players[i] = PlayerSnapshot{
			ID:       pl.ID,
			Index:    pl.Index,
			Name:     pl.Name,
			Attribs:  pl.Attribs().Public(),
			DeckSize: len(pl.Deck),
			Hand:     append([]int{}, pl.Hand...),
			Units:    append([]int{}, pl.Units...),
		}
	}

	unitIDs := make([]int, 0, len(st.Units))
	for id, u := range st.Units {
		if !u.Eliminated {
			unitIDs = append(unitIDs, id)
		}
	}
	sort.Ints(unitIDs)
	for _, id := range unitIDs {
		out.Units = append(out.Units, snapshotUnit(st.Units[id]))
	}

	cardIDs := make([]int, 0, len(st.Cards))
	for id := range st.Cards {
		cardIDs = append(cardIDs, id)
	}
	sort.Ints(cardIDs)
	for _, id := range cardIDs {
		c := st.Cards[id]
		switch {
		case c.Location == LocDiscarded:
		case c.visibleTo(p):
			out.Cards = append(out.Cards, snapshotCard(c))
		default:
			out.HiddenCards = append(out.HiddenCards, id)
		}
	}
	return out
}

// SanitizeDelta returns the delta as p may receive it, or false when p must
// not receive it at all. Shared deltas are never modified.
func (d *Duel) SanitizeDelta(dl Delta, p PlayerIndex) (Delta, bool) {
	switch v := dl.(type) {
	case *RevealCardsDelta:
		if !v.Players[p] {
			return nil, false
		}
		out := &RevealCardsDelta{
			RevealedCards: []CardSnapshot{},
			HiddenCards:   append([]int{}, v.Hide...),
		}
		for _, snap := range v.snapshots {
			if snap.Location != LocDiscarded {
				out.RevealedCards = append(out.RevealedCards, snap)
			}
		}
		if len(out.RevealedCards) == 0 && len(out.HiddenCards) == 0 {
			return nil, false
		}
		return out, true
	case *UpdateEntityAttribsDelta:
		if c := d.State.FindCard(v.EntityID); c != nil && !c.visibleTo(p) {
			return nil, false
		}
		return v, true
	default:
		return dl, true
	}
}

// encodeDeltasFor sanitizes and encodes the deltas of a mutation for p.
func (d *Duel) encodeDeltasFor(deltas []Delta, p PlayerIndex) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(deltas))
	for _, dl := range deltas {
		s, ok := d.SanitizeDelta(dl, p)
		if !ok {
			continue
		}
		raw, err := EncodeDelta(s)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}
