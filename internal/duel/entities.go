package duel

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Entity is any game object with an identity and attributes.
type Entity interface {
	EntityID() int
	Attribs() *AttributeSet
	Script() Script
}

// QualCardRef fully identifies a card definition across packs.
type QualCardRef struct {
	PackID uuid.UUID `json:"packId"`
	CardID uint32    `json:"cardId"`
}

func (r QualCardRef) String() string {
	return fmt.Sprintf("%s/%d", r.PackID, r.CardID)
}

// CardType distinguishes cards that spawn units from spells.
type CardType int

const (
	CardUnit CardType = iota
	CardSpell
)

func (t CardType) String() string {
	if t == CardSpell {
		return "spell"
	}
	return "unit"
}

func (t CardType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// CardRequirement is what a player must choose to play a card.
type CardRequirement int

const (
	RequireNone CardRequirement = iota
	RequireSingleSlot
	RequireSingleEntity
)

func (r CardRequirement) String() string {
	switch r {
	case RequireSingleSlot:
		return "singleSlot"
	case RequireSingleEntity:
		return "singleEntity"
	default:
		return "none"
	}
}

func (r CardRequirement) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// CardLocation is one of the six fixed places a card can be.
type CardLocation int

const (
	LocDeckP1 CardLocation = iota
	LocDeckP2
	LocHandP1
	LocHandP2
	LocDiscarded
	LocTemp
)

func (l CardLocation) String() string {
	switch l {
	case LocDeckP1:
		return "deckP1"
	case LocDeckP2:
		return "deckP2"
	case LocHandP1:
		return "handP1"
	case LocHandP2:
		return "handP2"
	case LocDiscarded:
		return "discarded"
	case LocTemp:
		return "temp"
	default:
		return "unknown"
	}
}

// MarshalText encodes the location by name.
func (l CardLocation) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// HandLocation returns the hand of p.
func HandLocation(p PlayerIndex) CardLocation {
	if p == P1 {
		return LocHandP1
	}
	return LocHandP2
}

// DeckLocation returns the deck of p.
func DeckLocation(p PlayerIndex) CardLocation {
	if p == P1 {
		return LocDeckP1
	}
	return LocDeckP2
}

// IsHand reports whether l is a player's hand.
func (l CardLocation) IsHand() bool {
	return l == LocHandP1 || l == LocHandP2
}

// Owner returns the player whose deck or hand l is.
func (l CardLocation) Owner() (PlayerIndex, bool) {
	switch l {
	case LocDeckP1, LocHandP1:
		return P1, true
	case LocDeckP2, LocHandP2:
		return P2, true
	default:
		return 0, false
	}
}

// CardDefinition is the static description of a card from a pack.
type CardDefinition struct {
	Name        string
	Type        CardType
	Requirement CardRequirement
	Cost        int
	Attack      int
	Health      int
	Archetype   string
	Script      *ScriptSpec
}

// GridVec is a position on one side of the board.
type GridVec struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (v GridVec) Add(o GridVec) GridVec {
	return GridVec{X: v.X + o.X, Y: v.Y + o.Y}
}

// ArenaPosition is a grid position on a specific player's side.
type ArenaPosition struct {
	Player PlayerIndex `json:"player"`
	Vec    GridVec     `json:"vec"`
}

// Player is the per-seat state: core, energy, deck, hand and unit grid.
type Player struct {
	ID     int
	Index  PlayerIndex
	Name   string
	attrs  *AttributeSet
	Deck   []int // top of the deck is the last element
	Hand   []int
	Units  []int // 0 means empty; unit ids are never 0
	script Script
}

func (p *Player) EntityID() int          { return p.ID }
func (p *Player) Attribs() *AttributeSet { return p.attrs }
func (p *Player) Script() Script         { return p.script }

// ExistingUnits returns the ids of the units on the grid, in slot order.
func (p *Player) ExistingUnits() []int {
	out := make([]int, 0, len(p.Units))
	for _, id := range p.Units {
		if id != 0 {
			out = append(out, id)
		}
	}
	return out
}

func (p *Player) handIndex(cardID int) int {
	for i, id := range p.Hand {
		if id == cardID {
			return i
		}
	}
	return -1
}

// Card is an instance of a card definition within a duel.
type Card struct {
	ID          int
	DefRef      QualCardRef
	Def         *CardDefinition
	Type        CardType
	Requirement CardRequirement
	Location    CardLocation
	Revealed    [2]bool
	Archetype   string
	attrs       *AttributeSet
	script      Script
}

func (c *Card) EntityID() int          { return c.ID }
func (c *Card) Attribs() *AttributeSet { return c.attrs }
func (c *Card) Script() Script         { return c.script }

// Virtual reports whether the card only exists transiently.
func (c *Card) Virtual() bool { return c.ID == NoEntity }

// Owner returns the player whose deck or hand holds the card.
func (c *Card) Owner() (PlayerIndex, bool) {
	return c.Location.Owner()
}

// Unit is a creature placed on the board.
type Unit struct {
	ID           int
	OriginRef    QualCardRef
	OriginCardID int
	OriginStats  *AttributeSet
	Archetype    string
	Position     ArenaPosition
	Owner        PlayerIndex
	Eliminated   bool
	DeathPending bool
	attrs        *AttributeSet
	script       Script
}

func (u *Unit) EntityID() int          { return u.ID }
func (u *Unit) Attribs() *AttributeSet { return u.attrs }
func (u *Unit) Script() Script         { return u.script }

// NormalizeArchetype folds an archetype name so that "Dragon " and "dragon"
// compare equal.
func NormalizeArchetype(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
