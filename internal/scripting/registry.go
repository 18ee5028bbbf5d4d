// Package scripting builds the behaviors attached to cards: built-in
// special scripts, interpreted user scripts and Lua scripts.
package scripting

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// Ids of the built-in special scripts.
const (
	SpecialTest               = 0
	SpecialTest2              = 1
	SpecialEvasionFiscale     = 2
	SpecialRecyclageAstucieux = 3
)

var (
	ErrUnknownSpecial = errors.New("unknown special script")
	ErrEmptySpec      = errors.New("empty script spec")
)

// SpecialFactory builds a special script for an entity.
type SpecialFactory func(d *duel.Duel, e duel.Entity) duel.Script

// Registry implements duel.ScriptFactory.
type Registry struct {
	logger   *zap.Logger
	specials map[int]SpecialFactory
}

// NewRegistry returns a registry with the built-in special scripts.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger, specials: make(map[int]SpecialFactory)}
	r.mustRegister(SpecialTest, newTestScript)
	r.mustRegister(SpecialTest2, newTest2Script)
	r.mustRegister(SpecialEvasionFiscale, newEvasionFiscaleScript)
	r.mustRegister(SpecialRecyclageAstucieux, newRecyclageAstucieuxScript)
	return r
}

// Register adds a special script factory under id.
func (r *Registry) Register(id int, f SpecialFactory) error {
	if _, exists := r.specials[id]; exists {
		return fmt.Errorf("special script %d already registered", id)
	}
	r.specials[id] = f
	return nil
}

func (r *Registry) mustRegister(id int, f SpecialFactory) {
	if err := r.Register(id, f); err != nil {
		panic(err)
	}
}

// HasSpecial reports whether id names a registered special script.
func (r *Registry) HasSpecial(id int) bool {
	_, ok := r.specials[id]
	return ok
}

// CreateScript implements duel.ScriptFactory.
func (r *Registry) CreateScript(d *duel.Duel, entity duel.Entity, spec *duel.ScriptSpec) (duel.Script, error) {
	switch {
	case spec == nil:
		return nil, ErrEmptySpec
	case spec.SpecialID != nil:
		f, ok := r.specials[*spec.SpecialID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownSpecial, *spec.SpecialID)
		}
		return f(d, entity), nil
	case spec.User != nil:
		return NewUserScript(d, entity, spec.User), nil
	case spec.Lua != "":
		return NewLuaScript(d, entity, spec.Lua, r.logger)
	default:
		return nil, ErrEmptySpec
	}
}
