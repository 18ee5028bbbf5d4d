package duel

import (
	"fmt"
	"math"
)

// AttributeID identifies an attribute definition within a duel.
type AttributeID uint16

// Built-in attributes. The order matters: bounding attributes (MaxEnergy,
// MaxHealth) come before the attributes they bound so batched writes clamp
// against the fresh bound.
const (
	AttrCoreHealth AttributeID = iota + 1
	AttrMaxEnergy
	AttrEnergy
	AttrAttack
	AttrMaxHealth
	AttrHealth
	AttrCost
	AttrInactionTurns
	AttrActionsLeft
	AttrActionsPerTurn
	AttrCardsPlayedThisTurn
)

// AttributeDefinition describes the bounds and behavior of an attribute.
type AttributeDefinition struct {
	ID                AttributeID
	Key               string
	Min               int
	Default           int
	Max               int
	SupportsModifiers bool
	Internal          bool
}

// AttributeTable holds the attribute definitions of one duel. Some bounds
// depend on the duel settings, hence one table per duel.
type AttributeTable struct {
	defs  map[AttributeID]AttributeDefinition
	byKey map[string]AttributeID
}

// NewAttributeTable builds the built-in definitions for the given settings.
func NewAttributeTable(settings Settings) *AttributeTable {
	t := &AttributeTable{
		defs:  make(map[AttributeID]AttributeDefinition),
		byKey: make(map[string]AttributeID),
	}
	t.Define(AttributeDefinition{ID: AttrCoreHealth, Key: "coreHealth", Min: math.MinInt32, Default: settings.MaxCoreHealth, Max: settings.MaxCoreHealth})
	t.Define(AttributeDefinition{ID: AttrMaxEnergy, Key: "maxEnergy", Min: 0, Default: 0, Max: settings.MaxEnergy, SupportsModifiers: true})
	t.Define(AttributeDefinition{ID: AttrEnergy, Key: "energy", Min: 0, Default: 0, Max: settings.MaxEnergy})
	t.Define(AttributeDefinition{ID: AttrAttack, Key: "attack", Min: 0, Max: math.MaxInt32, SupportsModifiers: true})
	t.Define(AttributeDefinition{ID: AttrMaxHealth, Key: "maxHealth", Min: 0, Max: math.MaxInt32, SupportsModifiers: true})
	t.Define(AttributeDefinition{ID: AttrHealth, Key: "health", Min: math.MinInt32, Max: math.MaxInt32})
	t.Define(AttributeDefinition{ID: AttrCost, Key: "cost", Min: 0, Max: math.MaxInt32, SupportsModifiers: true})
	t.Define(AttributeDefinition{ID: AttrInactionTurns, Key: "inactionTurns", Min: 0, Max: math.MaxInt32, SupportsModifiers: true})
	t.Define(AttributeDefinition{ID: AttrActionsLeft, Key: "actionsLeft", Min: 0, Max: math.MaxInt32, SupportsModifiers: true})
	t.Define(AttributeDefinition{ID: AttrActionsPerTurn, Key: "actionsPerTurn", Min: 0, Max: math.MaxInt32, SupportsModifiers: true})
	t.Define(AttributeDefinition{ID: AttrCardsPlayedThisTurn, Key: "cardsPlayedThisTurn", Min: 0, Max: math.MaxInt32, Internal: true})
	return t
}

// Define registers or replaces a definition.
func (t *AttributeTable) Define(def AttributeDefinition) {
	t.defs[def.ID] = def
	t.byKey[def.Key] = def.ID
}

// Def returns the definition of id. Unknown ids get an unbounded definition.
func (t *AttributeTable) Def(id AttributeID) AttributeDefinition {
	if def, ok := t.defs[id]; ok {
		return def
	}
	return AttributeDefinition{ID: id, Key: fmt.Sprintf("attr%d", id), Min: math.MinInt32, Max: math.MaxInt32, SupportsModifiers: true}
}

// Lookup resolves an attribute key such as "attack".
func (t *AttributeTable) Lookup(key string) (AttributeID, bool) {
	id, ok := t.byKey[key]
	return id, ok
}

// boundedBy returns the attribute whose actual value caps id, if any.
func boundedBy(id AttributeID) (AttributeID, bool) {
	switch id {
	case AttrHealth:
		return AttrMaxHealth, true
	case AttrEnergy:
		return AttrMaxEnergy, true
	default:
		return 0, false
	}
}

// dependentOf returns the attribute that id caps, if any.
func dependentOf(id AttributeID) (AttributeID, bool) {
	switch id {
	case AttrMaxHealth:
		return AttrHealth, true
	case AttrMaxEnergy:
		return AttrEnergy, true
	default:
		return 0, false
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
