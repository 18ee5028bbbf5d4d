package scripting

import (
	"math/rand"

	"github.com/ChuechTeam/CardLab-sub000/internal/cardscript"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// resolveTarget lists the entities a target node designates.
func (s *UserScript) resolveTarget(ctx actionContext, t cardscript.Target) []duel.Entity {
	me, ok := s.me()
	if !ok {
		return nil
	}
	st := s.State()

	switch v := t.(type) {
	case *cardscript.MeTarget:
		return []duel.Entity{me}
	case *cardscript.CoreTarget:
		p := me.Owner
		if v.Enemy {
			p = p.Other()
		}
		return []duel.Entity{st.Player(p)}
	case *cardscript.SourceTarget:
		return s.entityList(sourceOf(ctx.reactingTo))
	case *cardscript.TargetTarget:
		return s.entityList(targetOf(ctx.reactingTo))
	case *cardscript.QueryTarget:
		var pool []duel.Entity
		if v.Kind == cardscript.EntityCard {
			pool = s.queryCards(v.Team)
		} else {
			pool = s.queryUnits(v.Team)
		}
		pool = s.applyFilters(pool, v.Filters)
		if v.N > 0 && len(pool) > v.N {
			pool = s.pruneRandom(ctx, pool, v.N)
		}
		return pool
	case *cardscript.NearbyAllyTarget:
		if u := s.neighbor(me, v.Direction); u != nil {
			return []duel.Entity{u}
		}
		return nil
	default:
		return nil
	}
}

// pruneRandom drops random entities until n remain. A dry run keeps the
// first n so the random source is left untouched.
func (s *UserScript) pruneRandom(ctx actionContext, pool []duel.Entity, n int) []duel.Entity {
	if ctx.dry() {
		return pool[:n]
	}
	rng := ctx.running.Base().Rand()
	for len(pool) > n {
		i := rng.Intn(len(pool))
		pool[i] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return pool
}

func sourceOf(f duel.Fragment) int {
	switch v := f.(type) {
	case *duel.FragAttackUnit:
		return v.UnitID
	case *duel.FragHurtEntity:
		return v.SourceID
	case *duel.FragHealEntity:
		return v.SourceID
	case *duel.FragDestroyUnit:
		return v.SourceID
	default:
		return duel.NoEntity
	}
}

func targetOf(f duel.Fragment) int {
	switch v := f.(type) {
	case *duel.FragAttackUnit:
		return v.TargetID
	case *duel.FragHurtEntity:
		return v.TargetID
	case *duel.FragHealEntity:
		return v.TargetID
	case *duel.FragDestroyUnit:
		return v.UnitID
	case *duel.FragMoveCard:
		return v.CardID
	default:
		return duel.NoEntity
	}
}

func (s *UserScript) entityList(id int) []duel.Entity {
	if id == duel.NoEntity {
		return nil
	}
	if e := s.State().FindEntity(id); e != nil {
		return []duel.Entity{e}
	}
	return nil
}

// queryUnits returns the live units of a team, player one's first.
func (s *UserScript) queryUnits(team cardscript.Team) []duel.Entity {
	me, _ := s.me()
	st := s.State()
	var out []duel.Entity
	for p := duel.P1; p <= duel.P2; p++ {
		if team == cardscript.TeamAlly && p != me.Owner || team == cardscript.TeamEnemy && p == me.Owner {
			continue
		}
		for _, u := range st.PlayerUnits(p) {
			if team == cardscript.TeamAlly && u.ID == me.ID {
				continue
			}
			out = append(out, u)
		}
	}
	return out
}

func (s *UserScript) queryCards(team cardscript.Team) []duel.Entity {
	me, _ := s.me()
	st := s.State()
	var out []duel.Entity
	for p := duel.P1; p <= duel.P2; p++ {
		if (team == cardscript.TeamAlly || team == cardscript.TeamSelf) && p != me.Owner || team == cardscript.TeamEnemy && p == me.Owner {
			continue
		}
		for _, c := range st.HandCards(p) {
			out = append(out, c)
		}
	}
	return out
}

func (s *UserScript) neighbor(u *duel.Unit, dir cardscript.Direction) *duel.Unit {
	dx, dy := dir.Delta()
	v := u.Position.Vec.Add(duel.GridVec{X: dx, Y: dy})
	if !s.Duel.Settings.ValidVec(v) {
		return nil
	}
	id := s.State().Player(u.Owner).Units[s.Duel.Settings.VecIndex(v)]
	if id == 0 {
		return nil
	}
	return s.State().FindUnit(id, false)
}

func (s *UserScript) adjacentUnits(u *duel.Unit) []*duel.Unit {
	var out []*duel.Unit
	for _, dir := range []cardscript.Direction{cardscript.DirLeft, cardscript.DirRight, cardscript.DirUp, cardscript.DirDown} {
		if n := s.neighbor(u, dir); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (s *UserScript) applyFilters(entities []duel.Entity, filters cardscript.Filters) []duel.Entity {
	for _, f := range filters {
		entities = s.applyFilter(entities, f)
	}
	return entities
}

func (s *UserScript) applyFilter(entities []duel.Entity, f cardscript.Filter) []duel.Entity {
	if adj, ok := f.(*cardscript.AdjacentFilter); ok {
		return s.adjacentOf(entities, adj)
	}
	out := entities[:0:0]
	for _, e := range entities {
		if matchesFilter(e, f) {
			out = append(out, e)
		}
	}
	return out
}

// adjacentOf replaces every unit by its neighbors, without duplicates.
func (s *UserScript) adjacentOf(entities []duel.Entity, _ *cardscript.AdjacentFilter) []duel.Entity {
	var out []duel.Entity
	seen := make(map[int]bool)
	for _, e := range entities {
		u, ok := e.(*duel.Unit)
		if !ok {
			continue
		}
		for _, n := range s.adjacentUnits(u) {
			if !seen[n.ID] {
				seen[n.ID] = true
				out = append(out, n)
			}
		}
	}
	return out
}

func matchesFilter(e duel.Entity, f cardscript.Filter) bool {
	switch v := f.(type) {
	case *cardscript.CardTypeFilter:
		switch x := e.(type) {
		case *duel.Card:
			return cardKind(x.Type) == v.Kind
		case *duel.Unit:
			return v.Kind == cardscript.KindUnit
		}
		return false
	case *cardscript.AttrFilter:
		attr, ok := scriptAttribute(v.Attr, e)
		if !ok {
			return false
		}
		set := e.Attribs()
		if u, isUnit := e.(*duel.Unit); isUnit && v.Attr == cardscript.AttrCost {
			set = u.OriginStats
		}
		if !set.Registered(attr) {
			return false
		}
		return v.Op.Compare(set.GetActual(attr), v.Value)
	case *cardscript.WoundedFilter:
		a := e.Attribs()
		return a.GetActual(duel.AttrHealth) < a.GetActual(duel.AttrMaxHealth)
	case *cardscript.ArchetypeFilter:
		want := duel.NormalizeArchetype(v.Archetype)
		switch x := e.(type) {
		case *duel.Unit:
			return x.Archetype == want
		case *duel.Card:
			return x.Archetype == want
		}
		return false
	default:
		return true
	}
}

// scriptAttribute maps a script attribute to the attribute read on e.
func scriptAttribute(a cardscript.Attribute, e duel.Entity) (duel.AttributeID, bool) {
	switch a {
	case cardscript.AttrAttack:
		return duel.AttrAttack, true
	case cardscript.AttrHealth:
		if _, isPlayer := e.(*duel.Player); isPlayer {
			return duel.AttrCoreHealth, true
		}
		return duel.AttrHealth, true
	case cardscript.AttrCost:
		return duel.AttrCost, true
	default:
		return 0, false
	}
}

func cardKind(t duel.CardType) cardscript.CardKind {
	if t == duel.CardUnit {
		return cardscript.KindUnit
	}
	return cardscript.KindSpell
}

// definitionMatches tests a card definition against filters, the way the
// card it creates would be tested. Board-dependent filters never match.
func definitionMatches(def *duel.CardDefinition, filters cardscript.Filters) bool {
	for _, f := range filters {
		switch v := f.(type) {
		case *cardscript.CardTypeFilter:
			if cardKind(def.Type) != v.Kind {
				return false
			}
		case *cardscript.AttrFilter:
			var cur int
			switch v.Attr {
			case cardscript.AttrAttack:
				cur = def.Attack
			case cardscript.AttrHealth:
				cur = def.Health
			case cardscript.AttrCost:
				cur = def.Cost
			}
			if !v.Op.Compare(cur, v.Value) {
				return false
			}
		case *cardscript.ArchetypeFilter:
			if duel.NormalizeArchetype(def.Archetype) != duel.NormalizeArchetype(v.Archetype) {
				return false
			}
		case *cardscript.WoundedFilter, *cardscript.AdjacentFilter:
			return false
		}
	}
	return true
}

// pickCards returns up to n random cards of pool, in the order picked.
func pickCards(rng *rand.Rand, pool []*duel.Card, n int) []*duel.Card {
	pool = append([]*duel.Card(nil), pool...)
	var out []*duel.Card
	for len(out) < n && len(pool) > 0 {
		i := rng.Intn(len(pool))
		out = append(out, pool[i])
		pool[i] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return out
}
