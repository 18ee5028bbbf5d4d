package scripting

import (
	"go.uber.org/zap"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardscript"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// runAction runs one action, or in a dry run, reports whether it would
// have any effect.
func (s *UserScript) runAction(ctx actionContext, a cardscript.Action) bool {
	me, ok := s.me()
	if !ok {
		return false
	}
	st := s.State()

	switch v := a.(type) {
	case *cardscript.HurtAction:
		var frags []duel.Fragment
		for _, t := range s.resolveTarget(ctx, v.Target.Target) {
			frags = append(frags, duel.NewFragHurtEntity(me.ID, t.EntityID(), v.Damage))
		}
		return s.runInEffect(ctx, duel.TintNegative, frags)

	case *cardscript.HealAction:
		var frags []duel.Fragment
		for _, t := range s.resolveTarget(ctx, v.Target.Target) {
			frags = append(frags, duel.NewFragHealEntity(me.ID, t.EntityID(), v.Damage))
		}
		return s.runInEffect(ctx, duel.TintPositive, frags)

	case *cardscript.DrawAction:
		if v.N <= 0 {
			return false
		}
		var frags []duel.Fragment
		if len(v.Filters) == 0 {
			for i := 0; i < v.N; i++ {
				frags = append(frags, duel.NewFragDrawCards(me.Owner, 1))
			}
			return s.runAll(ctx, frags)
		}
		pool := s.filterCards(st.DeckCards(me.Owner), v.Filters)
		if ctx.dry() {
			return len(pool) > 0
		}
		for _, c := range pickCards(ctx.running.Base().Rand(), pool, v.N) {
			frags = append(frags, duel.NewFragDrawSpecificCard(me.Owner, c.ID))
		}
		return s.runAll(ctx, frags)

	case *cardscript.CreateAction:
		return s.create(ctx, me, v)

	case *cardscript.DiscardAction:
		if v.N <= 0 {
			return false
		}
		p := me.Owner
		if !v.MyHand {
			p = p.Other()
		}
		pool := s.filterCards(st.HandCards(p), v.Filters)
		if ctx.dry() {
			return len(pool) > 0
		}
		var frags []duel.Fragment
		for _, c := range pickCards(ctx.running.Base().Rand(), pool, v.N) {
			frags = append(frags, duel.NewFragMoveCard(c.ID, duel.LocDiscarded))
		}
		return s.runAll(ctx, frags)

	case *cardscript.AttackAction:
		var frags []duel.Fragment
		for _, t := range s.resolveTarget(ctx, v.Target.Target) {
			frags = append(frags, duel.NewFragAttackUnit(me.ID, t.EntityID(), true))
		}
		return s.runAll(ctx, frags)

	case *cardscript.GrantAttackAction:
		if v.N <= 0 {
			return false
		}
		var frags []duel.Fragment
		for _, t := range s.resolveTarget(ctx, v.Target.Target) {
			if u, isUnit := t.(*duel.Unit); isUnit {
				frags = append(frags, duel.NewFragSetAttribute(u.ID, duel.AttrActionsLeft,
					u.Attribs().GetBase(duel.AttrActionsLeft)+v.N))
			}
		}
		return s.runInEffect(ctx, duel.TintPositive, frags)

	case *cardscript.ModifierAction:
		return s.modify(ctx, me, v)

	case *cardscript.DeployAction:
		return s.deploy(ctx, me, v)

	case *cardscript.SingleConditionalAction:
		var subject []duel.Entity
		switch v.Target {
		case cardscript.CondMe:
			subject = []duel.Entity{me}
		case cardscript.CondSource:
			subject = s.entityList(sourceOf(ctx.reactingTo))
		case cardscript.CondTarget:
			subject = s.entityList(targetOf(ctx.reactingTo))
		}
		if len(subject) == 0 || len(s.applyFilters(subject[:1], v.Conditions)) == 0 {
			return false
		}
		return s.runSequence(ctx, v.Actions, false)

	case *cardscript.MultiConditionalAction:
		units := s.applyFilters(s.queryUnits(v.Team), v.Conditions)
		if len(units) < v.MinUnits {
			return false
		}
		return s.runSequence(ctx, v.Actions, false)

	case *cardscript.RandomConditionalAction:
		if v.PercentChance <= 0 {
			return false
		}
		if !ctx.dry() && ctx.running.Base().Rand().Intn(100) >= v.PercentChance {
			return false
		}
		return s.runSequence(ctx, v.Actions, false)

	default:
		return false
	}
}

// runAll applies every fragment once all of them verify.
func (s *UserScript) runAll(ctx actionContext, frags []duel.Fragment) bool {
	if len(frags) == 0 {
		return false
	}
	for _, f := range frags {
		if !f.Verify(s.Duel) {
			return false
		}
	}
	if ctx.dry() {
		return true
	}
	rb := ctx.running.Base()
	for _, f := range frags {
		rb.ApplyFrag(f)
	}
	return true
}

// runInEffect applies the fragments inside one effect when at least one of
// them verifies.
func (s *UserScript) runInEffect(ctx actionContext, tint duel.EffectTint, frags []duel.Fragment) bool {
	valid := false
	for _, f := range frags {
		if f.Verify(s.Duel) {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}
	if ctx.dry() {
		return true
	}
	me, _ := s.me()
	ctx.running.Base().ApplyFrag(duel.NewFragEffectOf(me.ID, tint, frags...))
	return true
}

func (s *UserScript) create(ctx actionContext, me *duel.Unit, v *cardscript.CreateAction) bool {
	if v.N <= 0 {
		return false
	}
	pool := s.definitionPool(v.Filters, false)
	if len(pool) == 0 {
		return false
	}
	if ctx.dry() {
		return true
	}

	rng := ctx.running.Base().Rand()
	refs := make([]duel.QualCardRef, v.N)
	for i := range refs {
		refs[i] = pool[rng.Intn(len(pool))]
	}

	ctx.running.Base().ApplyFrag(duel.NewFragEffect(me.ID, duel.TintPositive, func(e *duel.FragEffect) {
		cards, err := s.Duel.CreateCards(e, refs...)
		if err != nil {
			s.Duel.Logger().Warn("create cards failed", zap.Int("unit_id", me.ID), zap.Error(err))
			return
		}
		hand := duel.HandLocation(me.Owner)
		for _, c := range cards {
			e.ApplyFrag(duel.NewFragRevealCards(duel.RevealTo(me.Owner), c.ID))
			if e.ApplyFrag(duel.NewFragMoveCard(c.ID, hand)) != duel.FragSuccess {
				e.ApplyFrag(duel.NewFragMoveCard(c.ID, duel.LocDiscarded))
			}
		}
	}))
	return true
}

// definitionPool lists the known cards matching filters.
func (s *UserScript) definitionPool(filters cardscript.Filters, unitsOnly bool) []duel.QualCardRef {
	db := s.Duel.Settings.Cards
	var out []duel.QualCardRef
	for _, ref := range db.Refs() {
		def, ok := db.Card(ref)
		if !ok || (unitsOnly && def.Type != duel.CardUnit) {
			continue
		}
		if definitionMatches(def, filters) {
			out = append(out, ref)
		}
	}
	return out
}

func (s *UserScript) modify(ctx actionContext, me *duel.Unit, v *cardscript.ModifierAction) bool {
	if v.Value == 0 {
		return false
	}
	value := v.Value
	// a cost buff lowers the cost
	if (v.Attr == cardscript.AttrCost) == v.IsBuff {
		value = -value
	}

	type change struct {
		target int
		attr   duel.AttributeID
	}
	var changes []change
	for _, t := range s.resolveTarget(ctx, v.Target.Target) {
		if attr, ok := modifiedAttribute(v.Attr, t); ok {
			changes = append(changes, change{target: t.EntityID(), attr: attr})
		}
	}
	if ctx.dry() || len(changes) == 0 {
		return len(changes) > 0
	}

	tint := duel.TintNegative
	if v.IsBuff {
		tint = duel.TintNeutral
	}
	st := s.State()
	ctx.running.Base().ApplyFrag(duel.NewFragEffect(me.ID, tint, func(e *duel.FragEffect) {
		for _, c := range changes {
			c := c
			e.ApplyFrag(duel.NewFragAlteration(me.ID, c.target, v.IsBuff, func(a *duel.FragAlteration) {
				target := st.FindEntity(c.target)
				if target == nil {
					return
				}
				if v.Duration < 0 {
					a.ApplyFrag(duel.NewFragSetAttribute(c.target, c.attr, target.Attribs().GetBase(c.attr)+value))
				} else {
					turns := v.Duration
					if turns == 0 {
						turns = duel.PermanentModifier
					}
					add := duel.NewFragAddModifiers(&duel.Modifier{
						TargetID:       c.target,
						SourceID:       me.ID,
						Attribute:      c.attr,
						Op:             duel.ModAdd,
						Value:          value,
						TurnsRemaining: turns,
					})
					if a.ApplyFrag(add) == duel.FragSuccess && v.Duration == 0 {
						s.removeOnDeath = append(s.removeOnDeath, add.CreatedIDs...)
					}
				}
				if c.attr == duel.AttrMaxHealth && value > 0 {
					a.ApplyFrag(duel.NewFragSetAttribute(c.target, duel.AttrHealth,
						target.Attribs().GetBase(duel.AttrHealth)+value))
				}
			}))
		}
	}))
	return true
}

// modifiedAttribute maps the attribute a modifier action names to the one
// altered on e. Health means max health on units.
func modifiedAttribute(a cardscript.Attribute, e duel.Entity) (duel.AttributeID, bool) {
	_, isPlayer := e.(*duel.Player)
	_, isUnit := e.(*duel.Unit)
	_, isCard := e.(*duel.Card)
	switch {
	case a == cardscript.AttrAttack && !isPlayer:
		return duel.AttrAttack, true
	case a == cardscript.AttrHealth && isUnit:
		return duel.AttrMaxHealth, true
	case a == cardscript.AttrHealth && isCard:
		return duel.AttrHealth, true
	case a == cardscript.AttrCost && isCard:
		return duel.AttrCost, true
	default:
		return 0, false
	}
}

func (s *UserScript) deploy(ctx actionContext, me *duel.Unit, v *cardscript.DeployAction) bool {
	if s.deploymentsDisabled {
		return false
	}
	pool := s.definitionPool(v.Filters, true)
	if len(pool) == 0 {
		return false
	}
	slots := s.deploySlots(me, v.Direction)
	if len(slots) == 0 {
		return false
	}
	if ctx.dry() {
		return true
	}

	rng := ctx.running.Base().Rand()
	ref := pool[rng.Intn(len(pool))]
	pos := slots[rng.Intn(len(slots))]

	card, err := s.Duel.MakeCard(ref, true)
	if err != nil {
		return false
	}
	spawn := duel.NewFragSpawnVirtualUnit(me.Owner, card, pos)
	spawn.Configure = func(u *duel.Unit) {
		if us, ok := u.Script().(*UserScript); ok {
			us.deploymentsDisabled = true
		}
	}
	return ctx.running.Base().ApplyFrag(spawn) == duel.FragSuccess
}

// deploySlots returns the free slots a deployment may use: the slot in dir,
// or every free slot when dir is empty.
func (s *UserScript) deploySlots(me *duel.Unit, dir cardscript.Direction) []duel.ArenaPosition {
	settings := s.Duel.Settings
	pl := s.State().Player(me.Owner)
	if dir != "" {
		dx, dy := dir.Delta()
		vec := me.Position.Vec.Add(duel.GridVec{X: dx, Y: dy})
		if !settings.ValidVec(vec) || pl.Units[settings.VecIndex(vec)] != 0 {
			return nil
		}
		return []duel.ArenaPosition{{Player: me.Owner, Vec: vec}}
	}
	var out []duel.ArenaPosition
	for i, id := range pl.Units {
		if id == 0 {
			out = append(out, duel.ArenaPosition{Player: me.Owner, Vec: settings.IndexVec(i)})
		}
	}
	return out
}

func (s *UserScript) filterCards(cards []*duel.Card, filters cardscript.Filters) []*duel.Card {
	if len(filters) == 0 {
		return cards
	}
	pool := make([]duel.Entity, len(cards))
	for i, c := range cards {
		pool[i] = c
	}
	var out []*duel.Card
	for _, e := range s.applyFilters(pool, filters) {
		if c, ok := e.(*duel.Card); ok {
			out = append(out, c)
		}
	}
	return out
}
