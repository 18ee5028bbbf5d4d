package duel

import "github.com/ChuechTeam/CardLab-sub000/internal/cardscript"

// Script is the behavior attached to a card and, once played, to the unit it
// spawns. Every hook has a no-op default in BaseScript; a hook receives the
// running fragment so it can apply or enqueue further fragments.
type Script interface {
	ScriptBase() *BaseScript

	PostSpawn(frag Fragment)
	PostAttributeChange(frag Fragment, attr AttributeID, prev, now int)
	PostTurnChange(frag Fragment, prev, now PlayerIndex, turn int)
	PostMutationEnd(m *Mutation)
	Eliminate(frag Fragment)

	CardPostMove(frag Fragment, prev, now CardLocation)
	// CardCanPlay runs while verifying: frag.Base().Duel() is set but the
	// fragment has no mutation yet, so nothing may be applied.
	CardCanPlay(frag Fragment, player PlayerIndex, slots []ArenaPosition, entities []int) bool
	CardOnPlay(frag Fragment, player PlayerIndex, slots []ArenaPosition, entities []int)

	UnitPostAttack(frag Fragment, targetID int)
	UnitPostDealDamage(frag Fragment, damage, targetID int)
	UnitPostTakeDamage(frag Fragment, damage, sourceID int)
	UnitPostGiveHeal(frag Fragment, amount, targetID int)
	UnitPostReceiveHeal(frag Fragment, amount, sourceID int)
}

// ScriptSpec tells the script factory which behavior a card definition uses.
// At most one field is set.
type ScriptSpec struct {
	SpecialID *int
	User      *cardscript.Script
	Lua       string
}

// ScriptFactory builds scripts for newly created cards.
type ScriptFactory interface {
	CreateScript(d *Duel, entity Entity, spec *ScriptSpec) (Script, error)
}

// BaseScript provides the default hooks and listener bookkeeping. Embed it
// in concrete scripts.
type BaseScript struct {
	Duel   *Duel
	entity Entity

	fragHandles []ListenerHandle
	attrHandles []ListenerHandle
}

// NewBaseScript binds a base script to its entity.
func NewBaseScript(d *Duel, entity Entity) BaseScript {
	return BaseScript{Duel: d, entity: entity}
}

func (s *BaseScript) ScriptBase() *BaseScript { return s }

// Entity returns the entity currently carrying the script: the card, then
// the unit once spawned.
func (s *BaseScript) Entity() Entity { return s.entity }

// State is a shortcut to the duel state.
func (s *BaseScript) State() *State { return s.Duel.State }

func (s *BaseScript) PostSpawn(Fragment)                                         {}
func (s *BaseScript) PostAttributeChange(Fragment, AttributeID, int, int)        {}
func (s *BaseScript) PostTurnChange(Fragment, PlayerIndex, PlayerIndex, int)     {}
func (s *BaseScript) PostMutationEnd(*Mutation)                                  {}
func (s *BaseScript) Eliminate(Fragment)                                         {}
func (s *BaseScript) CardPostMove(Fragment, CardLocation, CardLocation)          {}
func (s *BaseScript) CardOnPlay(Fragment, PlayerIndex, []ArenaPosition, []int)   {}
func (s *BaseScript) UnitPostAttack(Fragment, int)                               {}
func (s *BaseScript) UnitPostDealDamage(Fragment, int, int)                      {}
func (s *BaseScript) UnitPostTakeDamage(Fragment, int, int)                      {}
func (s *BaseScript) UnitPostGiveHeal(Fragment, int, int)                        {}
func (s *BaseScript) UnitPostReceiveHeal(Fragment, int, int)                     {}

func (s *BaseScript) CardCanPlay(Fragment, PlayerIndex, []ArenaPosition, []int) bool {
	return true
}

// ListenAttribute registers an attribute listener owned by the script. It
// is removed when the unit is eliminated.
func (s *BaseScript) ListenAttribute(attr AttributeID, callback AttributeListener) ListenerHandle {
	h := s.Duel.Listeners.RegisterAttributeListener(attr, callback)
	s.attrHandles = append(s.attrHandles, h)
	return h
}

// Unlisten removes a listener owned by the script.
func (s *BaseScript) Unlisten(h ListenerHandle) {
	s.Duel.Listeners.Unregister(h)
	s.fragHandles = removeHandle(s.fragHandles, h)
	s.attrHandles = removeHandle(s.attrHandles, h)
}

// ClearListeners removes every listener owned by the script.
func (s *BaseScript) ClearListeners() {
	for _, h := range s.fragHandles {
		s.Duel.Listeners.Unregister(h)
	}
	for _, h := range s.attrHandles {
		s.Duel.Listeners.Unregister(h)
	}
	s.fragHandles = nil
	s.attrHandles = nil
}

// ScriptListenFragment registers a fragment listener owned by the script.
func ScriptListenFragment[T Fragment](s *BaseScript, callback func(frag T, result FragmentState)) ListenerHandle {
	h := ListenFragment(s.Duel.Listeners, callback)
	s.fragHandles = append(s.fragHandles, h)
	return h
}

func removeHandle(hs []ListenerHandle, h ListenerHandle) []ListenerHandle {
	for i, x := range hs {
		if x == h {
			return append(hs[:i:i], hs[i+1:]...)
		}
	}
	return hs
}

// activateScript adds the entity's script to the active set.
func (d *Duel) activateScript(e Entity) {
	s := e.Script()
	if s == nil {
		return
	}
	s.ScriptBase().entity = e
	d.State.active.add(e.EntityID(), s)
}

// deactivateScript removes the entity's script from the active set.
func (d *Duel) deactivateScript(e Entity) {
	if e.Script() == nil {
		return
	}
	d.State.active.remove(e.EntityID())
}

// eliminateScript clears the script's listeners then calls its Eliminate hook.
func (d *Duel) eliminateScript(frag Fragment, e Entity) {
	s := e.Script()
	if s == nil {
		return
	}
	s.ScriptBase().ClearListeners()
	d.runHook(frag, s, "Eliminate", func() { s.Eliminate(frag) })
}
