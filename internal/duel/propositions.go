package duel

// CardProposition lists the ways a hand card can currently be played.
type CardProposition struct {
	CardID          int             `json:"cardId"`
	Requirement     CardRequirement `json:"requirement"`
	AllowedSlots    []ArenaPosition `json:"allowedSlots"`
	AllowedEntities []int           `json:"allowedEntities"`
}

// UnitProposition lists the targets a unit can currently attack.
type UnitProposition struct {
	UnitID          int   `json:"unitId"`
	AllowedEntities []int `json:"allowedEntities"`
}

// Propositions are the legal moves of one player.
type Propositions struct {
	Card []CardProposition `json:"card"`
	Unit []UnitProposition `json:"unit"`
}

// GeneratePropositions computes the legal moves of p from scratch. Every
// entry is checked with the CanDo of the action that would play it, so a
// proposition is never rejected by verification.
func (d *Duel) GeneratePropositions(p PlayerIndex) Propositions {
	out := Propositions{Card: []CardProposition{}, Unit: []UnitProposition{}}
	st := d.State
	if st.Status != StatusPlaying || st.WhoseTurn != p {
		return out
	}

	for _, c := range st.HandCards(p) {
		prop := CardProposition{
			CardID:          c.ID,
			Requirement:     c.Requirement,
			AllowedSlots:    []ArenaPosition{},
			AllowedEntities: []int{},
		}
		switch c.Requirement {
		case RequireNone:
			if !ActPlayCard(p, c.ID, nil, nil).CanDo(d) {
				continue
			}
		case RequireSingleSlot:
			for i := range st.Player(p).Units {
				pos := ArenaPosition{Player: p, Vec: d.Settings.IndexVec(i)}
				if ActPlayCard(p, c.ID, []ArenaPosition{pos}, nil).CanDo(d) {
					prop.AllowedSlots = append(prop.AllowedSlots, pos)
				}
			}
			if len(prop.AllowedSlots) == 0 {
				continue
			}
		case RequireSingleEntity:
			for _, id := range d.entityCandidates() {
				if ActPlayCard(p, c.ID, nil, []int{id}).CanDo(d) {
					prop.AllowedEntities = append(prop.AllowedEntities, id)
				}
			}
			if len(prop.AllowedEntities) == 0 {
				continue
			}
		}
		out.Card = append(out.Card, prop)
	}

	for _, u := range st.PlayerUnits(p) {
		prop := UnitProposition{UnitID: u.ID, AllowedEntities: []int{}}
		for _, id := range d.attackCandidates(p) {
			if ActUseUnitAttack(p, u.ID, id).CanDo(d) {
				prop.AllowedEntities = append(prop.AllowedEntities, id)
			}
		}
		if len(prop.AllowedEntities) > 0 {
			out.Unit = append(out.Unit, prop)
		}
	}
	return out
}

// entityCandidates are the entities a targeted card may name: both cores,
// every live unit and every card in a hand.
func (d *Duel) entityCandidates() []int {
	st := d.State
	ids := []int{Player1ID, Player2ID}
	for p := P1; p <= P2; p++ {
		ids = append(ids, st.Player(p).ExistingUnits()...)
	}
	for p := P1; p <= P2; p++ {
		ids = append(ids, st.Player(p).Hand...)
	}
	return ids
}

// attackCandidates are the enemy units and both cores.
func (d *Duel) attackCandidates(p PlayerIndex) []int {
	ids := append([]int{}, d.State.Player(p.Other()).ExistingUnits()...)
	return append(ids, Player1ID, Player2ID)
}
