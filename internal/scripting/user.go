package scripting

import (
	"github.com/ChuechTeam/CardLab-sub000/internal/cardscript"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// Limits on trigger cascades within a single mutation.
const (
	maxTriggersPerUnit     = 5
	maxTriggersPerMutation = 25
	maxSelfTriggerDepth    = 2
	maxAnyTriggerDepth     = 4
)

// UserScript interprets a card script authored in the card editor. It only
// reacts once its card has spawned a unit.
type UserScript struct {
	duel.BaseScript
	script *cardscript.Script

	postSpawn []cardscript.Actions
	postDeath []cardscript.Actions
	nthAttack []nthAttackHandler

	attacks             int
	triggers            int
	deploymentsDisabled bool
	// permanent modifiers to remove when the unit dies
	removeOnDeath []int
}

type nthAttackHandler struct {
	n       int
	actions cardscript.Actions
}

// actionContext is what a sequence of actions runs against. A nil running
// fragment means a dry run: actions report whether they would do anything
// without touching the state or the random source.
type actionContext struct {
	reactingTo duel.Fragment
	running    duel.Fragment
}

func (c actionContext) dry() bool { return c.running == nil }

// NewUserScript binds a parsed card script to an entity.
func NewUserScript(d *duel.Duel, e duel.Entity, sc *cardscript.Script) *UserScript {
	return &UserScript{BaseScript: duel.NewBaseScript(d, e), script: sc}
}

func (s *UserScript) me() (*duel.Unit, bool) {
	u, ok := s.Entity().(*duel.Unit)
	return u, ok
}

func (s *UserScript) PostSpawn(frag duel.Fragment) {
	if _, ok := s.me(); !ok {
		return
	}
	for _, h := range s.script.Handlers {
		s.register(h)
	}
	for _, as := range s.postSpawn {
		s.queueTrigger(frag, as, false)
	}
}

func (s *UserScript) PostMutationEnd(*duel.Mutation) {
	s.triggers = 0
}

func (s *UserScript) PostTurnChange(duel.Fragment, duel.PlayerIndex, duel.PlayerIndex, int) {
	s.deploymentsDisabled = false
}

func (s *UserScript) Eliminate(frag duel.Fragment) {
	for _, as := range s.postDeath {
		s.queueTrigger(frag, as, true)
	}
	if len(s.removeOnDeath) > 0 {
		frag.Base().EnqueueFragment(duel.NewFragRemoveModifiers(s.removeOnDeath...))
		s.removeOnDeath = nil
	}
}

func (s *UserScript) UnitPostAttack(frag duel.Fragment, _ int) {
	s.attacks++
	for _, h := range s.nthAttack {
		if s.attacks == h.n {
			s.queueTrigger(frag, h.actions, false)
		}
	}
}

func (s *UserScript) register(h cardscript.Handler) {
	st := s.State()
	me, _ := s.me()
	actions := h.Actions

	switch ev := h.Event.Event.(type) {
	case *cardscript.PostSpawnEvent:
		s.postSpawn = append(s.postSpawn, actions)

	case *cardscript.PostUnitNthAttackEvent:
		s.nthAttack = append(s.nthAttack, nthAttackHandler{n: ev.N, actions: actions})

	case *cardscript.PostUnitEliminatedEvent:
		if ev.Team == cardscript.TeamSelf {
			s.postDeath = append(s.postDeath, actions)
			return
		}
		team := ev.Team
		duel.ScriptListenFragment(&s.BaseScript, func(f *duel.FragDestroyUnit, res duel.FragmentState) {
			if res != duel.FragSuccess {
				return
			}
			if u := st.FindUnit(f.UnitID, true); u != nil && s.isInTeam(u, team) {
				s.queueTrigger(f, actions, false)
			}
		})

	case *cardscript.PostUnitKillEvent:
		duel.ScriptListenFragment(&s.BaseScript, func(f *duel.FragDestroyUnit, res duel.FragmentState) {
			if res == duel.FragSuccess && f.SourceID == me.ID {
				s.queueTrigger(f, actions, false)
			}
		})

	case *cardscript.PostUnitHurtEvent:
		team, dealt := ev.Team, ev.Dealt
		duel.ScriptListenFragment(&s.BaseScript, func(f *duel.FragHurtEntity, res duel.FragmentState) {
			if res != duel.FragSuccess {
				return
			}
			if s.subjectInTeam(pick(dealt, f.SourceID, f.TargetID), team) {
				s.queueTrigger(f, actions, false)
			}
		})

	case *cardscript.PostUnitHealEvent:
		team, dealt := ev.Team, ev.Dealt
		duel.ScriptListenFragment(&s.BaseScript, func(f *duel.FragHealEntity, res duel.FragmentState) {
			if res != duel.FragSuccess {
				return
			}
			if s.subjectInTeam(pick(dealt, f.SourceID, f.TargetID), team) {
				s.queueTrigger(f, actions, false)
			}
		})

	case *cardscript.PostUnitAttackEvent:
		team, dealt := ev.Team, ev.Dealt
		duel.ScriptListenFragment(&s.BaseScript, func(f *duel.FragAttackUnit, res duel.FragmentState) {
			if res != duel.FragSuccess {
				return
			}
			if s.subjectInTeam(pick(dealt, f.UnitID, f.TargetID), team) {
				s.queueTrigger(f, actions, false)
			}
		})

	case *cardscript.PostNthCardPlayEvent:
		n := ev.N
		s.ListenAttribute(duel.AttrCardsPlayedThisTurn, func(frag duel.Fragment, e duel.Entity, _ duel.AttributeID, _, now int) {
			if now == n && e.EntityID() == st.Player(me.Owner).ID {
				s.queueTrigger(frag, actions, false)
			}
		})

	case *cardscript.PostCardMoveEvent:
		kind := ev.Kind
		duel.ScriptListenFragment(&s.BaseScript, func(f *duel.FragMoveCard, res duel.FragmentState) {
			if res == duel.FragSuccess && s.matchesMove(f, kind) {
				s.queueTrigger(f, actions, false)
			}
		})

	case *cardscript.PostTurnEvent:
		team := ev.Team
		duel.ScriptListenFragment(&s.BaseScript, func(f *duel.FragSwitchTurn, res duel.FragmentState) {
			if res != duel.FragSuccess {
				return
			}
			var ok bool
			switch team {
			case cardscript.TeamSelf, cardscript.TeamAlly:
				ok = f.Player == me.Owner
			case cardscript.TeamEnemy:
				ok = f.Player == me.Owner.Other()
			default:
				ok = true
			}
			if ok {
				s.queueTrigger(f, actions, false)
			}
		})
	}
}

func (s *UserScript) matchesMove(f *duel.FragMoveCard, kind cardscript.MoveKind) bool {
	me, _ := s.me()
	switch kind {
	case cardscript.MovePlayed:
		uc, ok := f.Parent.(*duel.FragUseCard)
		return ok && uc.Player == me.Owner
	case cardscript.MoveDiscarded:
		return f.NewLocation == duel.LocDiscarded && f.PrevLocation == duel.HandLocation(me.Owner)
	case cardscript.MoveDrawn:
		dc, ok := f.Parent.(*duel.FragDrawCards)
		return ok && dc.Player == me.Owner
	default:
		return false
	}
}

func (s *UserScript) subjectInTeam(id int, team cardscript.Team) bool {
	u := s.State().FindUnit(id, true)
	return u != nil && s.isInTeam(u, team)
}

// isInTeam tells whether e belongs to team, seen from the script's unit.
func (s *UserScript) isInTeam(e duel.Entity, team cardscript.Team) bool {
	me, ok := s.me()
	if !ok {
		return false
	}
	switch team {
	case cardscript.TeamAny:
		return true
	case cardscript.TeamSelf:
		return e.EntityID() == me.ID
	case cardscript.TeamAlly:
		if e.EntityID() == me.ID {
			return false
		}
	}

	want := me.Owner
	if team == cardscript.TeamEnemy {
		want = me.Owner.Other()
	}
	owner, ok := s.State().EntityOwner(e)
	return ok && owner == want
}

// queueTrigger enqueues the actions as a unit trigger reacting to frag.
func (s *UserScript) queueTrigger(reactingTo duel.Fragment, actions cardscript.Actions, allowDeath bool) {
	me, ok := s.me()
	if !ok || !s.canStartTrigger(reactingTo, allowDeath, false) {
		return
	}

	trig := duel.NewFragUnitTrigger(me.ID, func(f *duel.FragUnitTrigger) {
		s.triggers++
		if m := f.Mutation(); m != nil {
			m.CountTrigger(me.ID)
		}
		s.runSequence(actionContext{reactingTo: reactingTo, running: f}, actions, allowDeath)
	})
	trig.VerifyFn = func(_ *duel.FragUnitTrigger, _ *duel.Duel) bool {
		return s.canStartTrigger(reactingTo, allowDeath, true) &&
			s.runSequence(actionContext{reactingTo: reactingTo}, actions, allowDeath)
	}
	reactingTo.Base().EnqueueFragment(trig)
}

// canStartTrigger bounds trigger cascades: per unit and per mutation, and
// by the number of trigger fragments above reactingTo.
func (s *UserScript) canStartTrigger(reactingTo duel.Fragment, allowDeath, skipParents bool) bool {
	me, ok := s.me()
	if !ok {
		return false
	}
	if !allowDeath && (me.Eliminated || me.DeathPending) {
		return false
	}
	if s.triggers >= maxTriggersPerUnit {
		return false
	}
	if m := reactingTo.Base().Mutation(); m != nil && m.TotalTriggers() >= maxTriggersPerMutation {
		return false
	}
	if skipParents {
		return true
	}

	self, all := 0, 0
	for f := reactingTo; f != nil; f = f.Base().Parent {
		t, ok := f.(*duel.FragUnitTrigger)
		if !ok {
			continue
		}
		all++
		if t.UnitID == me.ID {
			self++
		}
		if self >= maxSelfTriggerDepth || all >= maxAnyTriggerDepth {
			return false
		}
	}
	return true
}

// runSequence runs actions in order. A dry run stops at the first action
// that would have an effect. Unless allowDeath is set, the sequence stops
// once the unit is dead.
func (s *UserScript) runSequence(ctx actionContext, actions cardscript.Actions, allowDeath bool) bool {
	applied := false
	for _, a := range actions {
		if s.runAction(ctx, a) {
			applied = true
		}
		if ctx.dry() && applied {
			return true
		}
		if me, ok := s.me(); !allowDeath && (!ok || me.Eliminated) {
			break
		}
	}
	return applied
}

func pick(first bool, a, b int) int {
	if first {
		return a
	}
	return b
}
