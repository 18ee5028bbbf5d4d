package duel

import (
	"errors"
	"fmt"
	"time"
)

// Default settings values.
const (
	DefaultMaxCoreHealth  = 35
	DefaultMaxEnergy      = 999
	DefaultSecondsPerTurn = 40
	DefaultStartCards     = 5
	DefaultUnitsX         = 4
	DefaultUnitsY         = 2
	DefaultMaxCardsInHand = 9
	DefaultPauseMax       = 45 * time.Second
	DefaultFragmentCap    = 2000
)

// CardDatabase resolves card references to their definitions.
type CardDatabase interface {
	Card(ref QualCardRef) (*CardDefinition, bool)
	// Refs lists every known card in a stable order.
	Refs() []QualCardRef
}

// Settings configures a duel.
type Settings struct {
	MaxCoreHealth  int
	MaxEnergy      int
	SecondsPerTurn int
	StartCards     int
	UnitsX         int
	UnitsY         int
	MaxCardsInHand int
	PauseMax       time.Duration
	FragmentCap    int

	// Seed drives every random choice of the duel. Identical seeds and
	// actions produce identical delta sequences.
	Seed int64

	Cards       CardDatabase
	Player1Deck []QualCardRef
	Player2Deck []QualCardRef
	PlayerNames [2]string
}

// DefaultSettings returns settings with the standard rules and no decks.
func DefaultSettings() Settings {
	return Settings{
		MaxCoreHealth:  DefaultMaxCoreHealth,
		MaxEnergy:      DefaultMaxEnergy,
		SecondsPerTurn: DefaultSecondsPerTurn,
		StartCards:     DefaultStartCards,
		UnitsX:         DefaultUnitsX,
		UnitsY:         DefaultUnitsY,
		MaxCardsInHand: DefaultMaxCardsInHand,
		PauseMax:       DefaultPauseMax,
		FragmentCap:    DefaultFragmentCap,
	}
}

// Deck returns the starting deck of p.
func (s Settings) Deck(p PlayerIndex) []QualCardRef {
	if p == P1 {
		return s.Player1Deck
	}
	return s.Player2Deck
}

// Validate checks the settings are usable.
func (s Settings) Validate() error {
	if s.Cards == nil {
		return errors.New("settings: card database is required")
	}
	if s.UnitsX <= 0 || s.UnitsY <= 0 {
		return fmt.Errorf("settings: invalid grid %dx%d", s.UnitsX, s.UnitsY)
	}
	if s.MaxCoreHealth <= 0 {
		return fmt.Errorf("settings: invalid max core health %d", s.MaxCoreHealth)
	}
	if s.MaxCardsInHand <= 0 {
		return fmt.Errorf("settings: invalid max cards in hand %d", s.MaxCardsInHand)
	}
	if s.FragmentCap <= 0 || s.FragmentCap > 0xFFFF {
		return fmt.Errorf("settings: fragment cap %d out of range", s.FragmentCap)
	}
	for p := P1; p <= P2; p++ {
		for _, ref := range s.Deck(p) {
			if _, ok := s.Cards.Card(ref); !ok {
				return fmt.Errorf("settings: deck of %s references unknown card %s", p, ref)
			}
		}
	}
	return nil
}

// GridVec helpers bound to the settings' grid size.

// ValidVec reports whether v lies within the grid.
func (s Settings) ValidVec(v GridVec) bool {
	return v.X >= 0 && v.X < s.UnitsX && v.Y >= 0 && v.Y < s.UnitsY
}

// VecIndex converts v to a slot index.
func (s Settings) VecIndex(v GridVec) int {
	return v.Y*s.UnitsX + v.X
}

// IndexVec converts a slot index to its vector.
func (s Settings) IndexVec(i int) GridVec {
	return GridVec{X: i % s.UnitsX, Y: i / s.UnitsX}
}
