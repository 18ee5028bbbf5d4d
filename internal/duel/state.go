package duel

import "sort"

// Status is the lifecycle stage of a duel.
type Status int

const (
	StatusAwaitingConnection Status = iota
	StatusPlaying
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusAwaitingConnection:
		return "awaitingConnection"
	case StatusPlaying:
		return "playing"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is the single authoritative snapshot of a duel.
type State struct {
	Players   [2]*Player
	Units     map[int]*Unit
	Cards     map[int]*Card
	Modifiers map[int]*Modifier
	Turn      int
	WhoseTurn PlayerIndex
	Status    Status
	Winner    *PlayerIndex

	active     activeScripts
	eliminated []int
}

func newState() *State {
	return &State{
		Units:     make(map[int]*Unit),
		Cards:     make(map[int]*Card),
		Modifiers: make(map[int]*Modifier),
		active:    activeScripts{byID: make(map[int]Script)},
	}
}

// Player returns the state of p.
func (s *State) Player(p PlayerIndex) *Player {
	return s.Players[p]
}

// FindUnit returns a live unit. Eliminated units awaiting purge are
// returned only when includeEliminated is set.
func (s *State) FindUnit(id int, includeEliminated bool) *Unit {
	u, ok := s.Units[id]
	if !ok || (u.Eliminated && !includeEliminated) {
		return nil
	}
	return u
}

// FindCard returns the card with the given id.
func (s *State) FindCard(id int) *Card {
	return s.Cards[id]
}

// FindEntity decodes the kind of id then looks it up. Eliminated units are
// not returned.
func (s *State) FindEntity(id int) Entity {
	kind, ok := KindOf(id)
	if !ok {
		return nil
	}
	switch kind {
	case KindPlayer:
		if p, ok := PlayerIndexOf(id); ok {
			return s.Players[p]
		}
	case KindCard:
		if c := s.Cards[id]; c != nil {
			return c
		}
	case KindUnit:
		if u := s.FindUnit(id, false); u != nil {
			return u
		}
	}
	return nil
}

// findEntityAny is FindEntity including eliminated units.
func (s *State) findEntityAny(id int) Entity {
	if kind, ok := KindOf(id); ok && kind == KindUnit {
		if u := s.FindUnit(id, true); u != nil {
			return u
		}
		return nil
	}
	return s.FindEntity(id)
}

// HandCards returns the cards in the hand of p, in hand order.
func (s *State) HandCards(p PlayerIndex) []*Card {
	hand := s.Players[p].Hand
	out := make([]*Card, 0, len(hand))
	for _, id := range hand {
		if c := s.Cards[id]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// DeckCards returns the cards in the deck of p, bottom first.
func (s *State) DeckCards(p PlayerIndex) []*Card {
	deck := s.Players[p].Deck
	out := make([]*Card, 0, len(deck))
	for _, id := range deck {
		if c := s.Cards[id]; c != nil {
			out = append(out, c)
		}
	}
	return out
}

// PlayerUnits returns the live units of p, in slot order.
func (s *State) PlayerUnits(p PlayerIndex) []*Unit {
	ids := s.Players[p].ExistingUnits()
	out := make([]*Unit, 0, len(ids))
	for _, id := range ids {
		if u := s.FindUnit(id, false); u != nil {
			out = append(out, u)
		}
	}
	return out
}

// EntityOwner returns the player an entity belongs to.
func (s *State) EntityOwner(e Entity) (PlayerIndex, bool) {
	switch v := e.(type) {
	case *Player:
		return v.Index, true
	case *Unit:
		return v.Owner, true
	case *Card:
		return v.Owner()
	default:
		return 0, false
	}
}

// ActiveScripts returns the active scripts in activation order.
func (s *State) ActiveScripts() []Script {
	return s.active.list()
}

// IsActive reports whether the entity's script is active.
func (s *State) IsActive(entityID int) bool {
	_, ok := s.active.byID[entityID]
	return ok
}

func (s *State) modifierIDs() []int {
	ids := make([]int, 0, len(s.Modifiers))
	for id := range s.Modifiers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// activeScripts is an insertion-ordered set keyed by entity id, so an
// entity never appears twice.
type activeScripts struct {
	order []int
	byID  map[int]Script
}

func (a *activeScripts) add(entityID int, s Script) bool {
	if _, ok := a.byID[entityID]; ok {
		return false
	}
	a.byID[entityID] = s
	a.order = append(a.order, entityID)
	return true
}

func (a *activeScripts) remove(entityID int) bool {
	if _, ok := a.byID[entityID]; !ok {
		return false
	}
	delete(a.byID, entityID)
	for i, id := range a.order {
		if id == entityID {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return true
}

func (a *activeScripts) list() []Script {
	out := make([]Script, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.byID[id])
	}
	return out
}
