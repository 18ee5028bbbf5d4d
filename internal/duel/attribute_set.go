package duel

import "sort"

// AttrValue is a (base, actual) pair.
type AttrValue struct {
	Base   int `json:"base"`
	Actual int `json:"actual"`
}

type attrEntry struct {
	base   int
	actual int
	mods   []*Modifier
}

// AttrChange is a recorded previous value of an attribute.
type AttrChange struct {
	Attribute AttributeID
	Prev      AttrValue
}

// AttributeSet maps attributes of one entity to their base and actual values.
// Every change records the previous pair in PrevVals until cleared, which is
// how attribute-change events are detected after a batch of updates.
type AttributeSet struct {
	table   *AttributeTable
	kind    EntityKind
	entries map[AttributeID]*attrEntry

	prev      map[AttributeID]AttrValue
	prevOrder []AttributeID

	// onDirty is called when the first change of a batch is recorded.
	onDirty func()
}

// NewAttributeSet creates an empty set for an entity of the given kind.
func NewAttributeSet(table *AttributeTable, kind EntityKind) *AttributeSet {
	return &AttributeSet{
		table:   table,
		kind:    kind,
		entries: make(map[AttributeID]*attrEntry),
		prev:    make(map[AttributeID]AttrValue),
	}
}

// Register adds id with its default value if absent.
func (s *AttributeSet) Register(id AttributeID) {
	if _, ok := s.entries[id]; ok {
		return
	}
	def := s.table.Def(id)
	v := s.clamp(id, def.Default)
	s.entries[id] = &attrEntry{base: v, actual: v}
}

// Registered reports whether id is part of the set.
func (s *AttributeSet) Registered(id AttributeID) bool {
	_, ok := s.entries[id]
	return ok
}

// Get returns the base and actual values of id, (0, 0) when unregistered.
func (s *AttributeSet) Get(id AttributeID) AttrValue {
	e, ok := s.entries[id]
	if !ok {
		return AttrValue{}
	}
	return AttrValue{Base: e.base, Actual: e.actual}
}

func (s *AttributeSet) GetBase(id AttributeID) int   { return s.Get(id).Base }
func (s *AttributeSet) GetActual(id AttributeID) int { return s.Get(id).Actual }

// Set writes the base value of id and recomputes its actual value.
// Unregistered attributes are registered first.
func (s *AttributeSet) Set(id AttributeID, base int) {
	s.Register(id)
	e := s.entries[id]
	s.recordPrev(id, e)
	e.base = s.clamp(id, base)
	s.recompute(id, e)
}

// AddModifier appends m to the fold of its attribute.
func (s *AttributeSet) AddModifier(m *Modifier) {
	s.Register(m.Attribute)
	e := s.entries[m.Attribute]
	s.recordPrev(m.Attribute, e)
	e.mods = append(e.mods, m)
	s.recompute(m.Attribute, e)
}

// RemoveModifier removes the modifier with the given id from the fold.
func (s *AttributeSet) RemoveModifier(modID int) bool {
	for id, e := range s.entries {
		for i, m := range e.mods {
			if m.ID != modID {
				continue
			}
			s.recordPrev(id, e)
			e.mods = append(e.mods[:i:i], e.mods[i+1:]...)
			s.recompute(id, e)
			return true
		}
	}
	return false
}

// Modifiers returns the modifiers applied to id, in insertion order.
func (s *AttributeSet) Modifiers(id AttributeID) []*Modifier {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	out := make([]*Modifier, len(e.mods))
	copy(out, e.mods)
	return out
}

// PrevVals returns the values recorded before the changes of the current
// batch, in the order the attributes were first touched.
func (s *AttributeSet) PrevVals() []AttrChange {
	out := make([]AttrChange, 0, len(s.prevOrder))
	for _, id := range s.prevOrder {
		out = append(out, AttrChange{Attribute: id, Prev: s.prev[id]})
	}
	return out
}

// ClearPrevVals starts a new change batch.
func (s *AttributeSet) ClearPrevVals() {
	if len(s.prevOrder) == 0 {
		return
	}
	s.prev = make(map[AttributeID]AttrValue)
	s.prevOrder = s.prevOrder[:0]
}

// Snapshot deep-copies the set. The copy is detached from change tracking.
func (s *AttributeSet) Snapshot() *AttributeSet {
	c := NewAttributeSet(s.table, s.kind)
	for id, e := range s.entries {
		mods := make([]*Modifier, len(e.mods))
		for i, m := range e.mods {
			mods[i] = m.Copy()
		}
		c.entries[id] = &attrEntry{base: e.base, actual: e.actual, mods: mods}
	}
	return c
}

// IDs returns the registered attribute ids in ascending order.
func (s *AttributeSet) IDs() []AttributeID {
	ids := make([]AttributeID, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Public returns the actual values of non-internal attributes keyed by name.
func (s *AttributeSet) Public() map[string]int {
	out := make(map[string]int, len(s.entries))
	for id, e := range s.entries {
		def := s.table.Def(id)
		if def.Internal {
			continue
		}
		out[def.Key] = e.actual
	}
	return out
}

func (s *AttributeSet) recordPrev(id AttributeID, e *attrEntry) {
	if _, ok := s.prev[id]; ok {
		return
	}
	if len(s.prevOrder) == 0 && s.onDirty != nil {
		s.onDirty()
	}
	s.prev[id] = AttrValue{Base: e.base, Actual: e.actual}
	s.prevOrder = append(s.prevOrder, id)
}

func (s *AttributeSet) recompute(id AttributeID, e *attrEntry) {
	def := s.table.Def(id)
	actual := e.base
	if def.SupportsModifiers {
		for _, m := range e.mods {
			actual = m.Apply(actual)
		}
	}
	before := e.actual
	e.actual = s.clamp(id, actual)

	if e.actual == before {
		return
	}
	if dep, ok := dependentOf(id); ok {
		if de, ok := s.entries[dep]; ok {
			clamped := s.clamp(dep, de.base)
			if clamped != de.base || s.clamp(dep, de.actual) != de.actual {
				s.recordPrev(dep, de)
				de.base = clamped
				s.recompute(dep, de)
			}
		}
	}
}

func (s *AttributeSet) clamp(id AttributeID, v int) int {
	def := s.table.Def(id)
	v = clampInt(v, def.Min, def.Max)

	switch id {
	case AttrHealth:
		if s.kind == KindCard && v < 1 {
			v = 1
		}
		if s.kind != KindUnit {
			break
		}
		fallthrough
	case AttrEnergy:
		if bound, ok := boundedBy(id); ok {
			if be, ok := s.entries[bound]; ok && v > be.actual {
				v = be.actual
			}
		}
	}
	return v
}
