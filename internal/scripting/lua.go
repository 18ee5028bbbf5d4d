package scripting

import (
	"fmt"

	"github.com/Shopify/go-lua"
	"go.uber.org/zap"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// Lua hooks are global functions of the chunk; every hook is optional.
//
//	on_spawn()            the unit was placed on the board
//	on_turn(player)       a turn started; player is 0 or 1
//	on_attack(target)     the unit attacked target
//	on_death()            the unit was destroyed
//	can_play(entities)    a spell may be played on the entity ids; returns a bool
//	on_play(entities)     a spell was played on the entity ids
//
// The "duel" table exposes the engine to the chunk.
const (
	hookSpawn   = "on_spawn"
	hookTurn    = "on_turn"
	hookAttack  = "on_attack"
	hookDeath   = "on_death"
	hookCanPlay = "can_play"
	hookPlay    = "on_play"
)

// A hook, or the chunk's top level, may run at most luaInstructionBudget
// instructions. The count hook fires every luaHookInterval instructions.
const (
	luaInstructionBudget = 1_000_000
	luaHookInterval      = 1000
)

// LuaScript runs a card behavior written in Lua. Each script owns its own
// Lua state; the duel lock serializes every call into it.
type LuaScript struct {
	duel.BaseScript
	l      *lua.State
	logger *zap.Logger

	// fragment of the hook being run, nil while only verifying
	frag duel.Fragment

	depth int // nested calls into the state
	steps int // count hook firings since the outermost call began
}

// NewLuaScript compiles src and runs its top level.
func NewLuaScript(d *duel.Duel, e duel.Entity, src string, logger *zap.Logger) (*LuaScript, error) {
	s := &LuaScript{BaseScript: duel.NewBaseScript(d, e), logger: logger}
	s.l = newSandbox()
	s.registerAPI()
	lua.SetDebugHook(s.l, s.countHook, lua.MaskCount, luaHookInterval)
	if err := lua.LoadString(s.l, src); err != nil {
		return nil, fmt.Errorf("lua script: %w", err)
	}
	if err := s.protectedCall(0, 0); err != nil {
		return nil, fmt.Errorf("lua script: %w", err)
	}
	return s, nil
}

func (s *LuaScript) countHook(l *lua.State, _ lua.Debug) {
	s.steps++
	if s.steps*luaHookInterval >= luaInstructionBudget {
		lua.Errorf(l, "instruction budget exceeded")
	}
}

// protectedCall runs the function below its nargs arguments. The budget is
// shared by every call nested in the outermost one.
func (s *LuaScript) protectedCall(nargs, nresults int) error {
	if s.depth == 0 {
		s.steps = 0
	}
	s.depth++
	defer func() { s.depth-- }()
	return s.l.ProtectedCall(nargs, nresults, 0)
}

// newSandbox opens the libraries a card may use. Randomness goes through
// the duel's seeded source instead of math.random.
func newSandbox() *lua.State {
	l := lua.NewState()
	for _, lib := range []lua.RegistryFunction{
		{Name: "_G", Function: lua.BaseOpen},
		{Name: "table", Function: lua.TableOpen},
		{Name: "string", Function: lua.StringOpen},
		{Name: "math", Function: lua.MathOpen},
	} {
		lua.Require(l, lib.Name, lib.Function, true)
		l.Pop(1)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "require"} {
		l.PushNil()
		l.SetGlobal(name)
	}
	l.Global("math")
	l.PushNil()
	l.SetField(-2, "random")
	l.PushNil()
	l.SetField(-2, "randomseed")
	l.Pop(1)
	return l
}

func (s *LuaScript) registerAPI() {
	s.l.NewTable()
	lua.SetFunctions(s.l, []lua.RegistryFunction{
		{Name: "me", Function: s.luaMe},
		{Name: "owner", Function: s.luaOwner},
		{Name: "core", Function: s.luaCore},
		{Name: "units", Function: s.luaUnits},
		{Name: "hand", Function: s.luaHand},
		{Name: "attr", Function: s.luaAttr},
		{Name: "random", Function: s.luaRandom},
		{Name: "hurt", Function: s.luaHurt},
		{Name: "heal", Function: s.luaHeal},
		{Name: "draw", Function: s.luaDraw},
		{Name: "buff", Function: s.luaBuff},
		{Name: "log", Function: s.luaLog},
	}, 0)
	s.l.SetGlobal("duel")
}

func (s *LuaScript) owner() (duel.PlayerIndex, bool) {
	return s.State().EntityOwner(s.Entity())
}

// call runs a hook if the chunk defines it. It returns false when the hook
// is missing or failed.
func (s *LuaScript) call(frag duel.Fragment, hook string, nresults int, push func(l *lua.State) int) bool {
	l := s.l
	l.Global(hook)
	if !l.IsFunction(-1) {
		l.Pop(1)
		return false
	}
	nargs := 0
	if push != nil {
		nargs = push(l)
	}

	prev := s.frag
	s.frag = frag
	err := s.protectedCall(nargs, nresults)
	s.frag = prev
	if err != nil {
		s.logger.Warn("lua hook failed",
			zap.String("hook", hook),
			zap.Int("entity_id", s.Entity().EntityID()),
			zap.Error(err))
		return false
	}
	return true
}

func pushIDs(l *lua.State, ids []int) {
	l.NewTable()
	for i, id := range ids {
		l.PushInteger(id)
		l.RawSetInt(-2, i+1)
	}
}

func (s *LuaScript) PostSpawn(frag duel.Fragment) {
	s.call(frag, hookSpawn, 0, nil)
}

func (s *LuaScript) PostTurnChange(frag duel.Fragment, _, now duel.PlayerIndex, _ int) {
	if _, onBoard := s.Entity().(*duel.Unit); !onBoard {
		return
	}
	s.call(frag, hookTurn, 0, func(l *lua.State) int {
		l.PushInteger(int(now))
		return 1
	})
}

func (s *LuaScript) UnitPostAttack(frag duel.Fragment, targetID int) {
	s.call(frag, hookAttack, 0, func(l *lua.State) int {
		l.PushInteger(targetID)
		return 1
	})
}

func (s *LuaScript) Eliminate(frag duel.Fragment) {
	s.call(frag, hookDeath, 0, nil)
}

func (s *LuaScript) CardCanPlay(_ duel.Fragment, _ duel.PlayerIndex, _ []duel.ArenaPosition, entities []int) bool {
	l := s.l
	l.Global(hookCanPlay)
	defined := l.IsFunction(-1)
	l.Pop(1)
	if !defined {
		return true
	}
	// verification never mutates: the API refuses changes without a fragment
	if !s.call(nil, hookCanPlay, 1, func(l *lua.State) int {
		pushIDs(l, entities)
		return 1
	}) {
		return false
	}
	ok := l.ToBoolean(-1)
	l.Pop(1)
	return ok
}

func (s *LuaScript) CardOnPlay(frag duel.Fragment, _ duel.PlayerIndex, _ []duel.ArenaPosition, entities []int) {
	s.call(frag, hookPlay, 0, func(l *lua.State) int {
		pushIDs(l, entities)
		return 1
	})
}

// API

func (s *LuaScript) luaMe(l *lua.State) int {
	l.PushInteger(s.Entity().EntityID())
	return 1
}

func (s *LuaScript) luaOwner(l *lua.State) int {
	p, ok := s.owner()
	if !ok {
		l.PushNil()
		return 1
	}
	l.PushInteger(int(p))
	return 1
}

func (s *LuaScript) luaCore(l *lua.State) int {
	enemy := l.ToBoolean(1)
	p, ok := s.owner()
	if !ok {
		l.PushNil()
		return 1
	}
	if enemy {
		p = p.Other()
	}
	l.PushInteger(s.State().Player(p).ID)
	return 1
}

func (s *LuaScript) luaUnits(l *lua.State) int {
	team := lua.OptString(l, 1, "any")
	p, ok := s.owner()
	var ids []int
	for _, idx := range []duel.PlayerIndex{duel.P1, duel.P2} {
		if ok && (team == "ally" && idx != p || team == "enemy" && idx == p) {
			continue
		}
		for _, u := range s.State().PlayerUnits(idx) {
			ids = append(ids, u.ID)
		}
	}
	pushIDs(l, ids)
	return 1
}

func (s *LuaScript) luaHand(l *lua.State) int {
	p, ok := s.owner()
	var ids []int
	if ok {
		for _, c := range s.State().HandCards(p) {
			ids = append(ids, c.ID)
		}
	}
	pushIDs(l, ids)
	return 1
}

func (s *LuaScript) luaAttr(l *lua.State) int {
	id := lua.CheckInteger(l, 1)
	key := lua.CheckString(l, 2)
	attr, ok := s.Duel.Attributes.Lookup(key)
	e := s.State().FindEntity(id)
	if !ok || e == nil || !e.Attribs().Registered(attr) {
		l.PushNil()
		return 1
	}
	l.PushInteger(e.Attribs().GetActual(attr))
	return 1
}

func (s *LuaScript) luaRandom(l *lua.State) int {
	n := lua.CheckInteger(l, 1)
	if n <= 0 {
		lua.ArgumentError(l, 1, "must be positive")
	}
	// verification must not draw from the duel's random source
	if s.frag == nil {
		l.PushInteger(1)
		return 1
	}
	l.PushInteger(s.Duel.Rand().Intn(n) + 1)
	return 1
}

func (s *LuaScript) luaLog(l *lua.State) int {
	s.logger.Debug("lua", zap.String("message", lua.CheckString(l, 1)),
		zap.Int("entity_id", s.Entity().EntityID()))
	return 0
}

// applyEffect runs frag inside an effect of the script's entity and pushes
// whether it succeeded. Without a running fragment nothing happens. Once the
// mutation cannot take more fragments it raises an error so the hook stops.
func (s *LuaScript) applyEffect(l *lua.State, tint duel.EffectTint, f duel.Fragment) int {
	if s.frag != nil {
		if m := s.frag.Base().Mutation(); m != nil && m.CapReached() {
			lua.Errorf(l, "fragment cap reached")
		}
	}
	if s.frag == nil || s.frag.Base().Mutation() == nil || !f.Verify(s.Duel) {
		l.PushBoolean(false)
		return 1
	}
	res := s.frag.Base().ApplyFrag(duel.NewFragEffectOf(s.Entity().EntityID(), tint, f))
	l.PushBoolean(res == duel.FragSuccess)
	return 1
}

func (s *LuaScript) luaHurt(l *lua.State) int {
	target := lua.CheckInteger(l, 1)
	dmg := lua.CheckInteger(l, 2)
	return s.applyEffect(l, duel.TintNegative, duel.NewFragHurtEntity(s.Entity().EntityID(), target, dmg))
}

func (s *LuaScript) luaHeal(l *lua.State) int {
	target := lua.CheckInteger(l, 1)
	v := lua.CheckInteger(l, 2)
	return s.applyEffect(l, duel.TintPositive, duel.NewFragHealEntity(s.Entity().EntityID(), target, v))
}

func (s *LuaScript) luaDraw(l *lua.State) int {
	n := lua.CheckInteger(l, 1)
	p, ok := s.owner()
	if !ok {
		l.PushBoolean(false)
		return 1
	}
	return s.applyEffect(l, duel.TintNeutral, duel.NewFragDrawCards(p, n))
}

// buff(target, attr, value, turns): turns 0 or less is permanent.
func (s *LuaScript) luaBuff(l *lua.State) int {
	target := lua.CheckInteger(l, 1)
	attr, ok := s.Duel.Attributes.Lookup(lua.CheckString(l, 2))
	if !ok {
		lua.ArgumentError(l, 2, "unknown attribute")
	}
	value := lua.CheckInteger(l, 3)
	turns := lua.OptInteger(l, 4, 0)
	if turns <= 0 {
		turns = duel.PermanentModifier
	}
	tint := duel.TintPositive
	if value < 0 {
		tint = duel.TintNegative
	}
	return s.applyEffect(l, tint, duel.NewFragAddModifiers(&duel.Modifier{
		TargetID:       target,
		SourceID:       s.Entity().EntityID(),
		Attribute:      attr,
		Op:             duel.ModAdd,
		Value:          value,
		TurnsRemaining: turns,
	}))
}
