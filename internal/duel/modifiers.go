package duel

// ModifierOp is the operation a modifier folds onto an attribute.
type ModifierOp int

const (
	ModAdd ModifierOp = iota
	ModMultiply
	ModSet
)

func (op ModifierOp) String() string {
	switch op {
	case ModAdd:
		return "ADD"
	case ModMultiply:
		return "MULTIPLY"
	case ModSet:
		return "SET"
	default:
		return "UNKNOWN"
	}
}

// PermanentModifier is the TurnsRemaining value of a modifier that never expires.
const PermanentModifier = -1

// Modifier is a stackable adjustment applied on top of an attribute's base value.
type Modifier struct {
	ID             int         `json:"id"`
	TargetID       int         `json:"targetId"`
	SourceID       int         `json:"sourceId"`
	Attribute      AttributeID `json:"attribute"`
	Op             ModifierOp  `json:"op"`
	Value          int         `json:"value"`
	TurnsRemaining int         `json:"turnsRemaining"`
}

// Apply folds the modifier over v.
func (m *Modifier) Apply(v int) int {
	switch m.Op {
	case ModAdd:
		return v + m.Value
	case ModMultiply:
		return v * m.Value
	case ModSet:
		return m.Value
	default:
		return v
	}
}

// Copy returns a detached copy of the modifier.
func (m *Modifier) Copy() *Modifier {
	c := *m
	return &c
}

// tickModifiers decrements every non-permanent modifier by one turn and
// returns the ids of those that reached zero, in id order.
func (s *State) tickModifiers() []int {
	expired := make([]int, 0)
	for _, id := range s.modifierIDs() {
		m := s.Modifiers[id]
		if m.TurnsRemaining < 0 {
			continue
		}
		m.TurnsRemaining--
		if m.TurnsRemaining == 0 {
			expired = append(expired, id)
		}
	}
	return expired
}

// registerModifier attaches m to its target and indexes it in the state.
func (s *State) registerModifier(m *Modifier) bool {
	target := s.FindEntity(m.TargetID)
	if target == nil {
		return false
	}
	s.Modifiers[m.ID] = m
	target.Attribs().AddModifier(m)
	return true
}

// unregisterModifier detaches the modifier. The target may already be gone.
func (s *State) unregisterModifier(id int) (*Modifier, bool) {
	m, ok := s.Modifiers[id]
	if !ok {
		return nil, false
	}
	delete(s.Modifiers, id)
	if target := s.findEntityAny(m.TargetID); target != nil {
		target.Attribs().RemoveModifier(id)
	}
	return m, true
}
