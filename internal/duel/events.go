package duel

import "go.uber.org/zap"

// maxFinalizePasses bounds listener chains that keep writing attributes
// directly instead of going through fragments.
const maxFinalizePasses = 64

// trackAttribs hooks the entity's attribute set into change detection.
func (d *Duel) trackAttribs(e Entity) {
	e.Attribs().onDirty = func() { d.dirty = append(d.dirty, e) }
}

// finalizeAttributes dispatches every attribute change recorded since the
// last call. For each change, in order:
//  1. core reactions (unit death, game end)
//  2. the PostAttributeChange hook of the entity's script
//  3. attribute listeners
func (d *Duel) finalizeAttributes(frag Fragment) {
	for pass := 0; len(d.dirty) > 0; pass++ {
		if pass == maxFinalizePasses {
			d.logger.Error("attribute change dispatch did not settle",
				zap.String("fragment", fragName(frag)),
				zap.Int("pending", len(d.dirty)))
			for _, e := range d.dirty {
				e.Attribs().ClearPrevVals()
			}
			d.dirty = nil
			return
		}

		batch := d.dirty
		d.dirty = nil
		for _, e := range batch {
			changes := e.Attribs().PrevVals()
			e.Attribs().ClearPrevVals()
			for _, ch := range changes {
				now := e.Attribs().GetActual(ch.Attribute)
				if now == ch.Prev.Actual {
					continue
				}
				d.dispatchAttributeChange(frag, e, ch.Attribute, ch.Prev.Actual, now)
			}
		}
	}
}

func (d *Duel) dispatchAttributeChange(frag Fragment, e Entity, attr AttributeID, prev, now int) {
	d.Listeners.dispatchCoreAttribute(frag, e, attr, prev, now)

	if s := e.Script(); s != nil && d.State.IsActive(e.EntityID()) {
		d.runHook(frag, s, "PostAttributeChange", func() { s.PostAttributeChange(frag, attr, prev, now) })
	}

	d.protect(frag, "attribute listener", func() {
		d.Listeners.dispatchAttribute(frag, e, attr, prev, now)
	})
}

// registerCoreReactions installs the built-in reactions to health changes.
func (d *Duel) registerCoreReactions() {
	d.Listeners.registerCoreAttributeReaction(AttrHealth, func(frag Fragment, e Entity, _ AttributeID, _, now int) {
		u, ok := e.(*Unit)
		if !ok || now > 0 || u.DeathPending || u.Eliminated {
			return
		}
		u.DeathPending = true
		source := NoEntity
		if hurt, ok := frag.(*FragHurtEntity); ok {
			source = hurt.SourceID
		}
		frag.Base().EnqueueFragment(NewFragDestroyUnit(u.ID, source))
	})

	d.Listeners.registerCoreAttributeReaction(AttrCoreHealth, func(frag Fragment, e Entity, _ AttributeID, _, now int) {
		p, ok := e.(*Player)
		if !ok || now > 0 {
			return
		}
		frag.Base().EnqueueFragment(NewFragEndGame(p.Index.Other()))
	})
}

// preFragment is the hook point run before a fragment's main effect. It
// reports whether it produced effects.
func (d *Duel) preFragment(f Fragment) bool {
	if d.OnPreFragment == nil {
		return false
	}
	produced := false
	d.protect(f, "pre-fragment hook", func() { produced = d.OnPreFragment(f) })
	return produced
}

// runHook calls a script hook, logging and swallowing panics.
func (d *Duel) runHook(frag Fragment, s Script, hook string, fn func()) {
	entityID := NoEntity
	if e := s.ScriptBase().Entity(); e != nil {
		entityID = e.EntityID()
	}
	d.protect(frag, hook, fn, zap.Int("entity_id", entityID))
}

func (d *Duel) protect(frag Fragment, what string, fn func(), extra ...zap.Field) {
	defer func() {
		if r := recover(); r != nil {
			fields := append([]zap.Field{
				zap.String("hook", what),
				zap.Any("panic", r),
				zap.Stack("stack"),
			}, extra...)
			if frag != nil {
				fields = append(fields, zap.String("fragment", fragName(frag)))
			}
			d.logger.Error("panic in duel hook", fields...)
		}
	}()
	fn()
}
