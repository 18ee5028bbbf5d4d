package duel

// Scope deltas bracket the deltas of a higher level operation so clients
// can sequence animations. They have no effect on the state.
//
// A scope opens with its own delta, optionally followed by
// ScopePreparationEndDelta once the pre-effects have run, and is closed by
// ScopeEndDelta.
type ScopeDelta interface {
	Delta
	isScope()
}

type scopeBase struct{}

func (scopeBase) Apply(*Duel) error { return nil }
func (scopeBase) isScope()          {}

type UnitAttackScope struct {
	scopeBase
	UnitID   int `json:"unitId"`
	TargetID int `json:"targetId"`
}

func (*UnitAttackScope) DeltaType() string { return "unitAttackScope" }

type UnitTriggerScope struct {
	scopeBase
	UnitID int `json:"unitId"`
}

func (*UnitTriggerScope) DeltaType() string { return "unitTriggerScope" }

type CardPlayScope struct {
	scopeBase
	CardID int         `json:"cardId"`
	Player PlayerIndex `json:"player"`
}

func (*CardPlayScope) DeltaType() string { return "cardPlayScope" }

type DamageScope struct {
	scopeBase
	SourceID int `json:"sourceId"`
	TargetID int `json:"targetId"`
	Damage   int `json:"damage"`
}

func (*DamageScope) DeltaType() string { return "damageScope" }

type HealScope struct {
	scopeBase
	SourceID int `json:"sourceId"`
	TargetID int `json:"targetId"`
	Value    int `json:"value"`
}

func (*HealScope) DeltaType() string { return "healScope" }

type UnitDeathScope struct {
	scopeBase
	UnitID int `json:"unitId"`
}

func (*UnitDeathScope) DeltaType() string { return "unitDeathScope" }

// AlterationScope wraps attribute or modifier changes caused by an effect.
type AlterationScope struct {
	scopeBase
	SourceID int  `json:"sourceId"`
	TargetID int  `json:"targetId"`
	Positive bool `json:"positive"`
}

func (*AlterationScope) DeltaType() string { return "alterationScope" }

// EffectTint colors the effect animation on clients.
type EffectTint int

const (
	TintNeutral EffectTint = iota
	TintPositive
	TintNegative
)

type EffectScope struct {
	scopeBase
	SourceID int        `json:"sourceId"`
	Targets  []int      `json:"targets"`
	Tint     EffectTint `json:"tint"`
}

func (*EffectScope) DeltaType() string { return "effectScope" }

type CardDrawScope struct {
	scopeBase
	Player PlayerIndex `json:"player"`
}

func (*CardDrawScope) DeltaType() string { return "cardDrawScope" }

type ScopePreparationEndDelta struct{ scopeBase }

func (*ScopePreparationEndDelta) DeltaType() string { return "scopePreparationEnd" }

type ScopeEndDelta struct {
	scopeBase
	Interrupted bool `json:"interrupted"`
}

func (*ScopeEndDelta) DeltaType() string { return "scopeEnd" }
