package duel

import "fmt"

// EntityKind is stored in the low 4 bits of every entity id.
type EntityKind uint8

const (
	KindPlayer EntityKind = 0
	KindCard   EntityKind = 1
	KindUnit   EntityKind = 2
)

func (k EntityKind) String() string {
	switch k {
	case KindPlayer:
		return "PLAYER"
	case KindCard:
		return "CARD"
	case KindUnit:
		return "UNIT"
	default:
		return "UNKNOWN"
	}
}

const (
	kindBits = 4
	kindMask = 0b1111

	// maxSequence keeps ids within a signed 32-bit range.
	maxSequence = 1<<(31-kindBits) - 1
)

// Player ids are fixed: sequence 0 and 1 of the player kind.
const (
	Player1ID = 0b00000
	Player2ID = 0b10000
)

// NoEntity marks an absent source and the id of virtual cards.
const NoEntity = -1

// MakeID builds an entity id from its kind and sequence number.
func MakeID(kind EntityKind, seq int) int {
	if seq < 0 || seq > maxSequence {
		panic(fmt.Sprintf("entity sequence out of range: %d", seq))
	}
	return seq<<kindBits | int(kind)
}

// KindOf decodes the kind of an id. The second result is false for
// negative ids and unknown kinds.
func KindOf(id int) (EntityKind, bool) {
	if id < 0 {
		return 0, false
	}
	kind := EntityKind(id & kindMask)
	switch kind {
	case KindPlayer, KindCard, KindUnit:
		return kind, true
	default:
		return kind, false
	}
}

// SequenceOf returns the sequence part of an id.
func SequenceOf(id int) int {
	return id >> kindBits
}

// PlayerIndex identifies one of the two seats of a duel.
type PlayerIndex int

const (
	P1 PlayerIndex = 0
	P2 PlayerIndex = 1
)

func (p PlayerIndex) String() string {
	switch p {
	case P1:
		return "P1"
	case P2:
		return "P2"
	default:
		return fmt.Sprintf("PlayerIndex(%d)", int(p))
	}
}

// Other returns the opponent index.
func (p PlayerIndex) Other() PlayerIndex {
	return 1 - p
}

// Valid reports whether p is P1 or P2.
func (p PlayerIndex) Valid() bool {
	return p == P1 || p == P2
}

// ID returns the entity id of the player.
func (p PlayerIndex) ID() int {
	if p == P1 {
		return Player1ID
	}
	return Player2ID
}

// PlayerIndexOf maps a player entity id to its index.
func PlayerIndexOf(id int) (PlayerIndex, bool) {
	switch id {
	case Player1ID:
		return P1, true
	case Player2ID:
		return P2, true
	default:
		return 0, false
	}
}
