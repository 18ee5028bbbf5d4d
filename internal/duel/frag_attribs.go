package duel

// FragSetAttribute writes the base value of an attribute.
type FragSetAttribute struct {
	FragmentBase
	TargetID  int
	Attribute AttributeID
	Value     int
}

func NewFragSetAttribute(targetID int, attr AttributeID, value int) *FragSetAttribute {
	return &FragSetAttribute{FragmentBase: newFragmentBase(true), TargetID: targetID, Attribute: attr, Value: value}
}

func (f *FragSetAttribute) targetEntity() int { return f.TargetID }

func (f *FragSetAttribute) Verify(d *Duel) bool {
	return d.State.FindEntity(f.TargetID) != nil
}

func (f *FragSetAttribute) Run(d *Duel) bool {
	return f.ApplyDelta(&UpdateEntityAttribsDelta{
		EntityID: f.TargetID,
		Set:      map[AttributeID]int{f.Attribute: f.Value},
	}) == nil
}

// FragAddModifiers registers modifiers on their targets. Ids are assigned
// by the duel and reported in CreatedIDs.
type FragAddModifiers struct {
	FragmentBase
	Modifiers []*Modifier

	CreatedIDs []int
}

func NewFragAddModifiers(mods ...*Modifier) *FragAddModifiers {
	return &FragAddModifiers{FragmentBase: newFragmentBase(true), Modifiers: mods}
}

func (f *FragAddModifiers) Verify(d *Duel) bool {
	if len(f.Modifiers) == 0 {
		return false
	}
	for _, m := range f.Modifiers {
		if d.State.FindEntity(m.TargetID) == nil || !d.Attributes.Def(m.Attribute).SupportsModifiers {
			return false
		}
	}
	return true
}

func (f *FragAddModifiers) Run(d *Duel) bool {
	touched := make([]int, 0, len(f.Modifiers))
	for _, m := range f.Modifiers {
		m.ID = d.nextModifierID()
		if !d.State.registerModifier(m) {
			continue
		}
		f.CreatedIDs = append(f.CreatedIDs, m.ID)
		touched = appendUnique(touched, m.TargetID)
	}
	for _, id := range touched {
		_ = f.ApplyDelta(&UpdateEntityAttribsDelta{EntityID: id})
	}
	return len(f.CreatedIDs) > 0
}

// FragRemoveModifiers unregisters modifiers. Unknown ids are ignored.
type FragRemoveModifiers struct {
	FragmentBase
	IDs []int
}

func NewFragRemoveModifiers(ids ...int) *FragRemoveModifiers {
	return &FragRemoveModifiers{FragmentBase: newFragmentBase(true), IDs: ids}
}

func (f *FragRemoveModifiers) Verify(d *Duel) bool {
	return len(f.IDs) > 0
}

func (f *FragRemoveModifiers) Run(d *Duel) bool {
	touched := make([]int, 0, len(f.IDs))
	for _, id := range f.IDs {
		m, ok := d.State.unregisterModifier(id)
		if !ok {
			continue
		}
		touched = appendUnique(touched, m.TargetID)
	}
	for _, id := range touched {
		if d.State.FindEntity(id) != nil {
			_ = f.ApplyDelta(&UpdateEntityAttribsDelta{EntityID: id})
		}
	}
	return true
}

func appendUnique(ids []int, id int) []int {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}

// targeted fragments expose the entity they act on, for effect scopes.
type targeted interface {
	targetEntity() int
}

// FragEffect groups the fragments of a card effect under one scope. It
// either applies Fragments in order or runs Fn.
type FragEffect struct {
	FragmentBase
	SourceID  int
	Tint      EffectTint
	Fragments []Fragment
	Fn        func(f *FragEffect)
	// Targets are shown by clients. They default to the targets of Fragments.
	Targets          []int
	DisableTargeting bool
}

func NewFragEffect(sourceID int, tint EffectTint, fn func(f *FragEffect)) *FragEffect {
	return &FragEffect{FragmentBase: newFragmentBase(true), SourceID: sourceID, Tint: tint, Fn: fn}
}

// NewFragEffectOf wraps a list of fragments.
func NewFragEffectOf(sourceID int, tint EffectTint, frags ...Fragment) *FragEffect {
	return &FragEffect{FragmentBase: newFragmentBase(true), SourceID: sourceID, Tint: tint, Fragments: frags}
}

func (f *FragEffect) Scope(d *Duel) ScopeDelta {
	targets := []int{}
	if !f.DisableTargeting {
		targets = append(targets, f.Targets...)
		for _, fr := range f.Fragments {
			if t, ok := fr.(targeted); ok {
				targets = appendUnique(targets, t.targetEntity())
			}
		}
	}
	return &EffectScope{SourceID: f.SourceID, Targets: targets, Tint: f.Tint}
}

func (f *FragEffect) Run(d *Duel) bool {
	if f.Fn != nil {
		f.Fn(f)
		return true
	}
	applied := false
	for _, fr := range f.Fragments {
		if f.ApplyFrag(fr) == FragSuccess {
			applied = true
		}
	}
	return applied
}

// FragAlteration wraps changes to a single target, positive or negative.
type FragAlteration struct {
	FragmentBase
	SourceID int
	TargetID int
	Positive bool
	Fn       func(f *FragAlteration)
}

func NewFragAlteration(sourceID, targetID int, positive bool, fn func(f *FragAlteration)) *FragAlteration {
	return &FragAlteration{FragmentBase: newFragmentBase(true), SourceID: sourceID, TargetID: targetID, Positive: positive, Fn: fn}
}

func (f *FragAlteration) Scope(d *Duel) ScopeDelta {
	return &AlterationScope{SourceID: f.SourceID, TargetID: f.TargetID, Positive: f.Positive}
}

func (f *FragAlteration) targetEntity() int { return f.TargetID }

func (f *FragAlteration) Verify(d *Duel) bool {
	return d.State.FindEntity(f.TargetID) != nil
}

func (f *FragAlteration) Run(d *Duel) bool {
	if f.Fn != nil {
		f.Fn(f)
	}
	return true
}
