package cardscript

import (
	"encoding/json"
	"fmt"
)

// Attribute is an attribute a script can read or alter.
type Attribute string

const (
	AttrHealth Attribute = "health"
	AttrAttack Attribute = "attack"
	AttrCost   Attribute = "cost"
)

// FilterOp compares an attribute against a value.
type FilterOp string

const (
	OpGreater FilterOp = "greater"
	OpLower   FilterOp = "lower"
	OpEqual   FilterOp = "equal"
)

// Compare applies the operator.
func (op FilterOp) Compare(cur, value int) bool {
	switch op {
	case OpGreater:
		return cur > value
	case OpLower:
		return cur < value
	case OpEqual:
		return cur == value
	default:
		return false
	}
}

// MoveKind is the kind of card move a postCardMove event reacts to.
type MoveKind string

const (
	MovePlayed    MoveKind = "played"
	MoveDiscarded MoveKind = "discarded"
	MoveDrawn     MoveKind = "drawn"
)

// Team selects entities relative to the owner of the script.
type Team string

const (
	TeamSelf  Team = "self"
	TeamEnemy Team = "enemy"
	TeamAlly  Team = "ally"
	TeamAny   Team = "any"
)

// EntityType is what a query target looks for.
type EntityType string

const (
	EntityUnit EntityType = "unit"
	EntityCard EntityType = "card"
)

// CardKind is the type of a card, for the cardType filter.
type CardKind string

const (
	KindUnit  CardKind = "unit"
	KindSpell CardKind = "spell"
)

// Direction is a neighbor on the unit grid.
type Direction string

const (
	DirLeft  Direction = "left"
	DirRight Direction = "right"
	DirUp    Direction = "up"
	DirDown  Direction = "down"
)

// Delta returns the grid offset of the direction. Up increases Y.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case DirLeft:
		return -1, 0
	case DirRight:
		return 1, 0
	case DirUp:
		return 0, 1
	case DirDown:
		return 0, -1
	default:
		return 0, 0
	}
}

// ConditionalTarget is the subject of a singleConditional action.
type ConditionalTarget string

const (
	CondMe     ConditionalTarget = "me"
	CondSource ConditionalTarget = "source"
	CondTarget ConditionalTarget = "target"
)

func checkEnum[T ~string](name string, v T, allowed ...T) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q", name, string(v))
}

func (a *Attribute) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, a, "attribute", AttrHealth, AttrAttack, AttrCost)
}

func (op *FilterOp) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, op, "filter op", OpGreater, OpLower, OpEqual)
}

func (k *MoveKind) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, k, "move kind", MovePlayed, MoveDiscarded, MoveDrawn)
}

func (t *Team) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, t, "team", TeamSelf, TeamEnemy, TeamAlly, TeamAny)
}

func (e *EntityType) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, e, "entity type", EntityUnit, EntityCard)
}

func (k *CardKind) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, k, "card kind", KindUnit, KindSpell)
}

func (d *Direction) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, d, "direction", DirLeft, DirRight, DirUp, DirDown)
}

func (c *ConditionalTarget) UnmarshalJSON(b []byte) error {
	return unmarshalEnum(b, c, "conditional target", CondMe, CondSource, CondTarget)
}

func unmarshalEnum[T ~string](b []byte, dst *T, name string, allowed ...T) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := checkEnum(name, T(s), allowed...); err != nil {
		return err
	}
	*dst = T(s)
	return nil
}
