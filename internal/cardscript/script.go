// Package cardscript defines the scripts players attach to the cards they
// design: a list of handlers, each reacting to an event with actions.
//
// Events, actions, targets and filters are closed sets of variants encoded
// as JSON objects with a "type" discriminator. Decoding an unknown variant
// is an error.
package cardscript

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownVariant is returned when a "type" discriminator is not known.
var ErrUnknownVariant = errors.New("unknown variant")

// Script is the behavior of one card.
type Script struct {
	Handlers []Handler `json:"handlers"`
}

// Handler runs Actions, in order, whenever Event happens.
type Handler struct {
	Event   EventNode `json:"event"`
	Actions Actions   `json:"actions"`
}

// Event is one of the *Event variants.
type Event interface {
	Tag() string
	isEvent()
}

// Action is one of the *Action variants.
type Action interface {
	Tag() string
	isAction()
}

// Target is one of the *Target variants.
type Target interface {
	Tag() string
	isTarget()
}

// Filter is one of the *Filter variants.
type Filter interface {
	Tag() string
	isFilter()
}

// Events

type PostSpawnEvent struct{}

type PostUnitEliminatedEvent struct {
	Team Team `json:"team"`
}

type PostUnitKillEvent struct{}

type PostUnitHurtEvent struct {
	Team  Team `json:"team"`
	Dealt bool `json:"dealt"`
}

type PostUnitHealEvent struct {
	Team  Team `json:"team"`
	Dealt bool `json:"dealt"`
}

type PostUnitAttackEvent struct {
	Team  Team `json:"team"`
	Dealt bool `json:"dealt"`
}

type PostUnitNthAttackEvent struct {
	N int `json:"n"`
}

type PostNthCardPlayEvent struct {
	N int `json:"n"`
}

type PostCardMoveEvent struct {
	Kind MoveKind `json:"kind"`
}

type PostTurnEvent struct {
	Team Team `json:"team"`
}

func (*PostSpawnEvent) Tag() string          { return "postSpawn" }
func (*PostUnitEliminatedEvent) Tag() string { return "postUnitEliminated" }
func (*PostUnitKillEvent) Tag() string       { return "postUnitKill" }
func (*PostUnitHurtEvent) Tag() string       { return "postUnitHurt" }
func (*PostUnitHealEvent) Tag() string       { return "postUnitHeal" }
func (*PostUnitAttackEvent) Tag() string     { return "postUnitAttack" }
func (*PostUnitNthAttackEvent) Tag() string  { return "postUnitNthAttack" }
func (*PostNthCardPlayEvent) Tag() string    { return "postNthCardPlay" }
func (*PostCardMoveEvent) Tag() string       { return "postCardMove" }
func (*PostTurnEvent) Tag() string           { return "postTurn" }

func (*PostSpawnEvent) isEvent()          {}
func (*PostUnitEliminatedEvent) isEvent() {}
func (*PostUnitKillEvent) isEvent()       {}
func (*PostUnitHurtEvent) isEvent()       {}
func (*PostUnitHealEvent) isEvent()       {}
func (*PostUnitAttackEvent) isEvent()     {}
func (*PostUnitNthAttackEvent) isEvent()  {}
func (*PostNthCardPlayEvent) isEvent()    {}
func (*PostCardMoveEvent) isEvent()       {}
func (*PostTurnEvent) isEvent()           {}

// Actions

type DrawAction struct {
	N       int     `json:"n"`
	Filters Filters `json:"filters"`
}

// CreateAction adds new cards matching Filters to the owner's hand.
type CreateAction struct {
	N       int     `json:"n"`
	Filters Filters `json:"filters"`
}

type DiscardAction struct {
	N       int     `json:"n"`
	MyHand  bool    `json:"myHand"`
	Filters Filters `json:"filters"`
}

// ModifierAction alters an attribute. Duration -1 changes the base value,
// 0 lasts until the unit dies, and n > 0 lasts n turns.
type ModifierAction struct {
	IsBuff   bool       `json:"isBuff"`
	Value    int        `json:"value"`
	Attr     Attribute  `json:"attr"`
	Target   TargetNode `json:"target"`
	Duration int        `json:"duration"`
}

// GrantAttackAction gives extra actions to the targeted units.
type GrantAttackAction struct {
	N      int        `json:"n"`
	Target TargetNode `json:"target"`
}

type HurtAction struct {
	Damage int        `json:"damage"`
	Target TargetNode `json:"target"`
}

type HealAction struct {
	Damage int        `json:"damage"`
	Target TargetNode `json:"target"`
}

type AttackAction struct {
	Target TargetNode `json:"target"`
}

type SingleConditionalAction struct {
	Target     ConditionalTarget `json:"target"`
	Conditions Filters           `json:"conditions"`
	Actions    Actions           `json:"actions"`
}

type MultiConditionalAction struct {
	MinUnits   int     `json:"minUnits"`
	Team       Team    `json:"team"`
	Conditions Filters `json:"conditions"`
	Actions    Actions `json:"actions"`
}

type RandomConditionalAction struct {
	PercentChance int     `json:"percentChance"`
	Actions       Actions `json:"actions"`
}

type DeployAction struct {
	Filters   Filters   `json:"filters"`
	Direction Direction `json:"direction"`
}

func (*DrawAction) Tag() string              { return "draw" }
func (*CreateAction) Tag() string            { return "create" }
func (*DiscardAction) Tag() string           { return "discard" }
func (*ModifierAction) Tag() string          { return "modifier" }
func (*GrantAttackAction) Tag() string       { return "grantAttack" }
func (*HurtAction) Tag() string              { return "hurt" }
func (*HealAction) Tag() string              { return "heal" }
func (*AttackAction) Tag() string            { return "attack" }
func (*SingleConditionalAction) Tag() string { return "singleConditional" }
func (*MultiConditionalAction) Tag() string  { return "multiConditional" }
func (*RandomConditionalAction) Tag() string { return "randomConditional" }
func (*DeployAction) Tag() string            { return "deploy" }

func (*DrawAction) isAction()              {}
func (*CreateAction) isAction()            {}
func (*DiscardAction) isAction()           {}
func (*ModifierAction) isAction()          {}
func (*GrantAttackAction) isAction()       {}
func (*HurtAction) isAction()              {}
func (*HealAction) isAction()              {}
func (*AttackAction) isAction()            {}
func (*SingleConditionalAction) isAction() {}
func (*MultiConditionalAction) isAction()  {}
func (*RandomConditionalAction) isAction() {}
func (*DeployAction) isAction()            {}

// Targets

type MeTarget struct{}

type CoreTarget struct {
	Enemy bool `json:"enemy"`
}

type SourceTarget struct{}

type TargetTarget struct{}

// QueryTarget selects up to N random entities of a team. N <= 0 selects
// them all.
type QueryTarget struct {
	Kind    EntityType `json:"kind"`
	Team    Team       `json:"team"`
	Filters Filters    `json:"filters"`
	N       int        `json:"n"`
}

type NearbyAllyTarget struct {
	Direction Direction `json:"direction"`
}

func (*MeTarget) Tag() string         { return "me" }
func (*CoreTarget) Tag() string       { return "core" }
func (*SourceTarget) Tag() string     { return "source" }
func (*TargetTarget) Tag() string     { return "target" }
func (*QueryTarget) Tag() string      { return "query" }
func (*NearbyAllyTarget) Tag() string { return "nearbyAlly" }

func (*MeTarget) isTarget()         {}
func (*CoreTarget) isTarget()       {}
func (*SourceTarget) isTarget()     {}
func (*TargetTarget) isTarget()     {}
func (*QueryTarget) isTarget()      {}
func (*NearbyAllyTarget) isTarget() {}

// Filters

type CardTypeFilter struct {
	Kind CardKind `json:"kind"`
}

type AttrFilter struct {
	Attr  Attribute `json:"attr"`
	Op    FilterOp  `json:"op"`
	Value int       `json:"value"`
}

type WoundedFilter struct{}

type AdjacentFilter struct{}

type ArchetypeFilter struct {
	Archetype string `json:"archetype"`
}

func (*CardTypeFilter) Tag() string  { return "cardType" }
func (*AttrFilter) Tag() string      { return "attr" }
func (*WoundedFilter) Tag() string   { return "wounded" }
func (*AdjacentFilter) Tag() string  { return "adjacent" }
func (*ArchetypeFilter) Tag() string { return "archetype" }

func (*CardTypeFilter) isFilter()  {}
func (*AttrFilter) isFilter()      {}
func (*WoundedFilter) isFilter()   {}
func (*AdjacentFilter) isFilter()  {}
func (*ArchetypeFilter) isFilter() {}

func newEvent(tag string) Event {
	switch tag {
	case "postSpawn":
		return &PostSpawnEvent{}
	case "postUnitEliminated":
		return &PostUnitEliminatedEvent{}
	case "postUnitKill":
		return &PostUnitKillEvent{}
	case "postUnitHurt":
		return &PostUnitHurtEvent{}
	case "postUnitHeal":
		return &PostUnitHealEvent{}
	case "postUnitAttack":
		return &PostUnitAttackEvent{}
	case "postUnitNthAttack":
		return &PostUnitNthAttackEvent{}
	case "postNthCardPlay":
		return &PostNthCardPlayEvent{}
	case "postCardMove":
		return &PostCardMoveEvent{}
	case "postTurn":
		return &PostTurnEvent{}
	default:
		return nil
	}
}

func newAction(tag string) Action {
	switch tag {
	case "draw":
		return &DrawAction{}
	case "create":
		return &CreateAction{}
	case "discard":
		return &DiscardAction{}
	case "modifier":
		return &ModifierAction{}
	case "grantAttack":
		return &GrantAttackAction{}
	case "hurt":
		return &HurtAction{}
	case "heal":
		return &HealAction{}
	case "attack":
		return &AttackAction{}
	case "singleConditional":
		return &SingleConditionalAction{}
	case "multiConditional":
		return &MultiConditionalAction{}
	case "randomConditional":
		return &RandomConditionalAction{}
	case "deploy":
		return &DeployAction{}
	default:
		return nil
	}
}

func newTarget(tag string) Target {
	switch tag {
	case "me":
		return &MeTarget{}
	case "core":
		return &CoreTarget{}
	case "source":
		return &SourceTarget{}
	case "target":
		return &TargetTarget{}
	case "query":
		return &QueryTarget{}
	case "nearbyAlly":
		return &NearbyAllyTarget{}
	default:
		return nil
	}
}

func newFilter(tag string) Filter {
	switch tag {
	case "cardType":
		return &CardTypeFilter{}
	case "attr":
		return &AttrFilter{}
	case "wounded":
		return &WoundedFilter{}
	case "adjacent":
		return &AdjacentFilter{}
	case "archetype":
		return &ArchetypeFilter{}
	default:
		return nil
	}
}

// EventNode holds an Event in a JSON document.
type EventNode struct{ Event }

// TargetNode holds a Target in a JSON document.
type TargetNode struct{ Target }

// Actions is a list of actions in a JSON document.
type Actions []Action

// Filters is a list of filters in a JSON document.
type Filters []Filter

func (n EventNode) MarshalJSON() ([]byte, error) {
	if n.Event == nil {
		return []byte("null"), nil
	}
	return encodeTagged(n.Tag(), n.Event)
}

func (n *EventNode) UnmarshalJSON(b []byte) error {
	v, err := decodeTagged(b, "event", func(tag string) any {
		if e := newEvent(tag); e != nil {
			return e
		}
		return nil
	})
	if err != nil {
		return err
	}
	n.Event = v.(Event)
	return nil
}

func (n TargetNode) MarshalJSON() ([]byte, error) {
	if n.Target == nil {
		return []byte("null"), nil
	}
	return encodeTagged(n.Tag(), n.Target)
}

func (n *TargetNode) UnmarshalJSON(b []byte) error {
	v, err := decodeTagged(b, "target", func(tag string) any {
		if t := newTarget(tag); t != nil {
			return t
		}
		return nil
	})
	if err != nil {
		return err
	}
	n.Target = v.(Target)
	return nil
}

func (as Actions) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(as))
	for _, a := range as {
		raw, err := encodeTagged(a.Tag(), a)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

func (as *Actions) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return fmt.Errorf("actions: %w", err)
	}
	out := make(Actions, 0, len(raws))
	for i, raw := range raws {
		v, err := decodeTagged(raw, "action", func(tag string) any {
			if a := newAction(tag); a != nil {
				return a
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("action %d: %w", i, err)
		}
		out = append(out, v.(Action))
	}
	*as = out
	return nil
}

func (fs Filters) MarshalJSON() ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(fs))
	for _, f := range fs {
		raw, err := encodeTagged(f.Tag(), f)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

func (fs *Filters) UnmarshalJSON(b []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return fmt.Errorf("filters: %w", err)
	}
	out := make(Filters, 0, len(raws))
	for i, raw := range raws {
		v, err := decodeTagged(raw, "filter", func(tag string) any {
			if f := newFilter(tag); f != nil {
				return f
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
		out = append(out, v.(Filter))
	}
	*fs = out
	return nil
}

// encodeTagged marshals v and puts the "type" discriminator first.
func encodeTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(tag)

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

func decodeTagged(b []byte, category string, build func(tag string) any) (any, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("%s: %w", category, err)
	}
	v := build(head.Type)
	if v == nil {
		return nil, fmt.Errorf("%s: %w %q", category, ErrUnknownVariant, head.Type)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return nil, fmt.Errorf("%s %s: %w", category, head.Type, err)
	}
	return v, nil
}
