package duel

// FragSpawnUnit places the unit of a card on the board. Card may be a
// virtual card, in which case CardID is NoEntity.
type FragSpawnUnit struct {
	FragmentBase
	Player   PlayerIndex
	CardID   int
	Card     *Card
	Position ArenaPosition
	// Configure adjusts the unit before it is placed.
	Configure func(u *Unit)

	UnitID int
}

func NewFragSpawnUnit(player PlayerIndex, cardID int, pos ArenaPosition) *FragSpawnUnit {
	return &FragSpawnUnit{FragmentBase: newFragmentBase(false), Player: player, CardID: cardID, Position: pos}
}

// NewFragSpawnVirtualUnit spawns a unit from a card that is not part of the duel.
func NewFragSpawnVirtualUnit(player PlayerIndex, card *Card, pos ArenaPosition) *FragSpawnUnit {
	return &FragSpawnUnit{FragmentBase: newFragmentBase(false), Player: player, CardID: NoEntity, Card: card, Position: pos}
}

func (f *FragSpawnUnit) card(d *Duel) *Card {
	if f.Card != nil {
		return f.Card
	}
	return d.State.FindCard(f.CardID)
}

func (f *FragSpawnUnit) Verify(d *Duel) bool {
	c := f.card(d)
	if c == nil || c.Type != CardUnit {
		return false
	}
	return d.slotAvailable(f.Player, f.Position)
}

func (f *FragSpawnUnit) Run(d *Duel) bool {
	u := d.MakeUnit(f.card(d), f.Position)
	if f.Configure != nil {
		f.Configure(u)
	}
	if err := f.ApplyDelta(&PlaceUnitDelta{Unit: u}); err != nil {
		return false
	}
	f.UnitID = u.ID

	d.activateScript(u)
	if s := u.Script(); s != nil {
		d.runHook(f, s, "PostSpawn", func() { s.PostSpawn(f) })
	}
	return true
}

// FragDestroyUnit removes a unit from the board and eliminates its script.
type FragDestroyUnit struct {
	FragmentBase
	UnitID   int
	SourceID int
}

func NewFragDestroyUnit(unitID, sourceID int) *FragDestroyUnit {
	return &FragDestroyUnit{FragmentBase: newFragmentBase(false), UnitID: unitID, SourceID: sourceID}
}

func (f *FragDestroyUnit) Scope(d *Duel) ScopeDelta {
	return &UnitDeathScope{UnitID: f.UnitID}
}

func (f *FragDestroyUnit) Verify(d *Duel) bool {
	return d.State.FindUnit(f.UnitID, false) != nil
}

func (f *FragDestroyUnit) Run(d *Duel) bool {
	u := d.State.FindUnit(f.UnitID, false)
	if err := f.ApplyDelta(&RemoveUnitDelta{UnitID: u.ID}); err != nil {
		return false
	}
	u.DeathPending = false
	d.deactivateScript(u)
	d.eliminateScript(f, u)
	return true
}

// hurtAttribute returns the attribute damage and heals apply to.
func hurtAttribute(e Entity) (AttributeID, bool) {
	switch e.(type) {
	case *Unit:
		return AttrHealth, true
	case *Player:
		return AttrCoreHealth, true
	default:
		return 0, false
	}
}

// FragHurtEntity deals damage to a unit or a core.
type FragHurtEntity struct {
	FragmentBase
	SourceID int
	TargetID int
	Damage   int

	DealtDamage int
}

func NewFragHurtEntity(sourceID, targetID, damage int) *FragHurtEntity {
	return &FragHurtEntity{FragmentBase: newFragmentBase(true), SourceID: sourceID, TargetID: targetID, Damage: damage}
}

func (f *FragHurtEntity) Scope(d *Duel) ScopeDelta {
	return &DamageScope{SourceID: f.SourceID, TargetID: f.TargetID, Damage: f.Damage}
}

func (f *FragHurtEntity) targetEntity() int { return f.TargetID }

func (f *FragHurtEntity) Verify(d *Duel) bool {
	if f.Damage < 0 {
		return false
	}
	t := d.State.FindEntity(f.TargetID)
	if t == nil {
		return false
	}
	_, ok := hurtAttribute(t)
	return ok
}

func (f *FragHurtEntity) Run(d *Duel) bool {
	t := d.State.FindEntity(f.TargetID)
	attr, _ := hurtAttribute(t)
	err := f.ApplyDelta(&UpdateEntityAttribsDelta{
		EntityID: t.EntityID(),
		Set:      map[AttributeID]int{attr: t.Attribs().GetBase(attr) - f.Damage},
	})
	if err != nil {
		return false
	}
	f.DealtDamage = f.Damage

	if src := d.State.FindUnit(f.SourceID, true); src != nil && src.Script() != nil {
		s := src.Script()
		d.runHook(f, s, "UnitPostDealDamage", func() { s.UnitPostDealDamage(f, f.DealtDamage, f.TargetID) })
	}
	if u, ok := t.(*Unit); ok && u.Script() != nil {
		s := u.Script()
		d.runHook(f, s, "UnitPostTakeDamage", func() { s.UnitPostTakeDamage(f, f.DealtDamage, f.SourceID) })
	}
	return true
}

// FragHealEntity restores health to a unit or a core, up to its maximum.
// AppliedValue is the health actually restored.
type FragHealEntity struct {
	FragmentBase
	SourceID int
	TargetID int
	Value    int

	AppliedValue int
}

func NewFragHealEntity(sourceID, targetID, value int) *FragHealEntity {
	return &FragHealEntity{FragmentBase: newFragmentBase(true), SourceID: sourceID, TargetID: targetID, Value: value}
}

func (f *FragHealEntity) Scope(d *Duel) ScopeDelta {
	return &HealScope{SourceID: f.SourceID, TargetID: f.TargetID, Value: f.Value}
}

func (f *FragHealEntity) targetEntity() int { return f.TargetID }

func (f *FragHealEntity) Verify(d *Duel) bool {
	if f.Value < 0 {
		return false
	}
	t := d.State.FindEntity(f.TargetID)
	if t == nil {
		return false
	}
	_, ok := hurtAttribute(t)
	return ok
}

func (f *FragHealEntity) Run(d *Duel) bool {
	t := d.State.FindEntity(f.TargetID)
	attr, _ := hurtAttribute(t)
	a := t.Attribs()

	limit := d.Settings.MaxCoreHealth
	if attr == AttrHealth {
		limit = a.GetActual(AttrMaxHealth)
	}
	before := a.GetActual(attr)
	f.AppliedValue = max(0, min(before+f.Value, limit)-before)
	if f.AppliedValue == 0 {
		return true
	}

	err := f.ApplyDelta(&UpdateEntityAttribsDelta{
		EntityID: t.EntityID(),
		Set:      map[AttributeID]int{attr: a.GetBase(attr) + f.AppliedValue},
	})
	if err != nil {
		f.AppliedValue = 0
		return false
	}

	if src := d.State.FindUnit(f.SourceID, true); src != nil && src.Script() != nil {
		s := src.Script()
		d.runHook(f, s, "UnitPostGiveHeal", func() { s.UnitPostGiveHeal(f, f.AppliedValue, f.TargetID) })
	}
	if u, ok := t.(*Unit); ok && u.Script() != nil {
		s := u.Script()
		d.runHook(f, s, "UnitPostReceiveHeal", func() { s.UnitPostReceiveHeal(f, f.AppliedValue, f.SourceID) })
	}
	return true
}

// FragAttackUnit makes a unit attack an enemy unit or the enemy core. A
// defending unit with attack strikes back.
type FragAttackUnit struct {
	FragmentBase
	UnitID   int
	TargetID int
	// Forced attacks are started by scripts, not by the owner.
	Forced bool
}

func NewFragAttackUnit(unitID, targetID int, forced bool) *FragAttackUnit {
	return &FragAttackUnit{FragmentBase: newFragmentBase(false), UnitID: unitID, TargetID: targetID, Forced: forced}
}

func (f *FragAttackUnit) Scope(d *Duel) ScopeDelta {
	return &UnitAttackScope{UnitID: f.UnitID, TargetID: f.TargetID}
}

func (f *FragAttackUnit) Verify(d *Duel) bool {
	st := d.State
	u := st.FindUnit(f.UnitID, false)
	if u == nil || u.Attribs().GetActual(AttrAttack) <= 0 {
		return false
	}
	switch t := st.FindEntity(f.TargetID).(type) {
	case *Unit:
		return t.Owner != u.Owner
	case *Player:
		return t.Index != u.Owner
	default:
		return false
	}
}

func (f *FragAttackUnit) Run(d *Duel) bool {
	st := d.State
	u := st.FindUnit(f.UnitID, false)
	attack := u.Attribs().GetActual(AttrAttack)

	if f.ApplyFrag(NewFragHurtEntity(u.ID, f.TargetID, attack)) != FragSuccess {
		return false
	}
	if def := st.FindUnit(f.TargetID, true); def != nil {
		if counter := def.Attribs().GetActual(AttrAttack); counter > 0 {
			f.ApplyFrag(NewFragHurtEntity(def.ID, u.ID, counter))
		}
	}

	if s := u.Script(); s != nil {
		d.runHook(f, s, "UnitPostAttack", func() { s.UnitPostAttack(f, f.TargetID) })
	}
	return true
}

// FragUnitConsumeAction spends one action of a ready unit.
type FragUnitConsumeAction struct {
	FragmentBase
	UnitID int
}

func NewFragUnitConsumeAction(unitID int) *FragUnitConsumeAction {
	return &FragUnitConsumeAction{FragmentBase: newFragmentBase(true), UnitID: unitID}
}

func (f *FragUnitConsumeAction) Verify(d *Duel) bool {
	u := d.State.FindUnit(f.UnitID, false)
	if u == nil {
		return false
	}
	a := u.Attribs()
	return a.GetActual(AttrActionsLeft) > 0 && a.GetActual(AttrInactionTurns) == 0
}

func (f *FragUnitConsumeAction) Run(d *Duel) bool {
	u := d.State.FindUnit(f.UnitID, false)
	err := f.ApplyDelta(&UpdateEntityAttribsDelta{
		EntityID: u.ID,
		Set:      map[AttributeID]int{AttrActionsLeft: u.Attribs().GetBase(AttrActionsLeft) - 1},
	})
	return err == nil
}

// FragUnitTrigger runs a scripted reaction of a unit inside its own scope.
// The unit may already be eliminated, for death triggers.
type FragUnitTrigger struct {
	FragmentBase
	UnitID   int
	RunFn    func(f *FragUnitTrigger)
	VerifyFn func(f *FragUnitTrigger, d *Duel) bool
}

func NewFragUnitTrigger(unitID int, run func(f *FragUnitTrigger)) *FragUnitTrigger {
	return &FragUnitTrigger{FragmentBase: newFragmentBase(false), UnitID: unitID, RunFn: run}
}

func (f *FragUnitTrigger) Scope(d *Duel) ScopeDelta {
	return &UnitTriggerScope{UnitID: f.UnitID}
}

func (f *FragUnitTrigger) Verify(d *Duel) bool {
	if d.State.FindUnit(f.UnitID, true) == nil {
		return false
	}
	return f.VerifyFn == nil || f.VerifyFn(f, d)
}

func (f *FragUnitTrigger) Run(d *Duel) bool {
	if f.RunFn != nil {
		f.RunFn(f)
	}
	return true
}
