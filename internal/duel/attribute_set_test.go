package duel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

func newSet(kind duel.EntityKind) *duel.AttributeSet {
	return duel.NewAttributeSet(duel.NewAttributeTable(duel.DefaultSettings()), kind)
}

func TestAttributeSet_Clamping(t *testing.T) {
	t.Run("unit health bounded by max health", func(t *testing.T) {
		s := newSet(duel.KindUnit)
		s.Set(duel.AttrMaxHealth, 5)
		s.Set(duel.AttrHealth, 9)
		assert.Equal(t, 5, s.GetActual(duel.AttrHealth))

		s.Set(duel.AttrHealth, -3)
		assert.Equal(t, -3, s.GetActual(duel.AttrHealth), "units may go below zero")

		s.Set(duel.AttrHealth, 5)
		s.Set(duel.AttrMaxHealth, 2)
		assert.Equal(t, duel.AttrValue{Base: 2, Actual: 2}, s.Get(duel.AttrHealth))
	})

	t.Run("card health at least one", func(t *testing.T) {
		s := newSet(duel.KindCard)
		s.Set(duel.AttrHealth, 0)
		assert.Equal(t, 1, s.GetActual(duel.AttrHealth))
	})

	t.Run("energy bounded by max energy", func(t *testing.T) {
		s := newSet(duel.KindPlayer)
		s.Set(duel.AttrMaxEnergy, 3)
		s.Set(duel.AttrEnergy, 10)
		assert.Equal(t, 3, s.GetActual(duel.AttrEnergy))
		s.Set(duel.AttrEnergy, -4)
		assert.Equal(t, 0, s.GetActual(duel.AttrEnergy))
	})

	t.Run("core health capped", func(t *testing.T) {
		s := newSet(duel.KindPlayer)
		s.Register(duel.AttrCoreHealth)
		assert.Equal(t, duel.DefaultMaxCoreHealth, s.GetActual(duel.AttrCoreHealth))
		s.Set(duel.AttrCoreHealth, 100)
		assert.Equal(t, duel.DefaultMaxCoreHealth, s.GetActual(duel.AttrCoreHealth))
	})
}

func TestAttributeSet_Modifiers(t *testing.T) {
	s := newSet(duel.KindUnit)
	s.Set(duel.AttrAttack, 2)

	s.AddModifier(&duel.Modifier{ID: 1, Attribute: duel.AttrAttack, Op: duel.ModAdd, Value: 3})
	s.AddModifier(&duel.Modifier{ID: 2, Attribute: duel.AttrAttack, Op: duel.ModMultiply, Value: 2})
	assert.Equal(t, duel.AttrValue{Base: 2, Actual: 10}, s.Get(duel.AttrAttack))

	s.AddModifier(&duel.Modifier{ID: 3, Attribute: duel.AttrAttack, Op: duel.ModSet, Value: 7})
	assert.Equal(t, 7, s.GetActual(duel.AttrAttack))
	assert.Len(t, s.Modifiers(duel.AttrAttack), 3)

	assert.True(t, s.RemoveModifier(3))
	assert.False(t, s.RemoveModifier(3))
	assert.Equal(t, 10, s.GetActual(duel.AttrAttack))

	s.AddModifier(&duel.Modifier{ID: 4, Attribute: duel.AttrAttack, Op: duel.ModAdd, Value: -50})
	assert.Equal(t, 0, s.GetActual(duel.AttrAttack), "attack never goes negative")
}

func TestAttributeSet_PrevVals(t *testing.T) {
	s := newSet(duel.KindUnit)
	s.Set(duel.AttrAttack, 1)
	s.ClearPrevVals()

	s.Set(duel.AttrAttack, 4)
	s.Set(duel.AttrAttack, 6)
	s.Set(duel.AttrCost, 2)

	assert.Equal(t, []duel.AttrChange{
		{Attribute: duel.AttrAttack, Prev: duel.AttrValue{Base: 1, Actual: 1}},
		{Attribute: duel.AttrCost, Prev: duel.AttrValue{}},
	}, s.PrevVals())

	s.ClearPrevVals()
	assert.Empty(t, s.PrevVals())
}

func TestAttributeSet_SnapshotIsDetached(t *testing.T) {
	s := newSet(duel.KindUnit)
	s.Set(duel.AttrAttack, 3)
	s.AddModifier(&duel.Modifier{ID: 1, Attribute: duel.AttrAttack, Op: duel.ModAdd, Value: 1})

	snap := s.Snapshot()
	s.Set(duel.AttrAttack, 8)
	s.Modifiers(duel.AttrAttack)[0].Value = 100

	assert.Equal(t, duel.AttrValue{Base: 3, Actual: 4}, snap.Get(duel.AttrAttack))
	assert.Equal(t, 1, snap.Modifiers(duel.AttrAttack)[0].Value)
	assert.Equal(t, map[string]int{"attack": 4}, snap.Public())
}

func TestAttributeSet_PublicHidesInternal(t *testing.T) {
	s := newSet(duel.KindPlayer)
	s.Set(duel.AttrCardsPlayedThisTurn, 2)
	s.Set(duel.AttrMaxEnergy, 1)
	assert.Equal(t, map[string]int{"maxEnergy": 1}, s.Public())
	assert.Equal(t, []duel.AttributeID{duel.AttrMaxEnergy, duel.AttrCardsPlayedThisTurn}, s.IDs())
}
