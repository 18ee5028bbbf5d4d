package duel

import (
	"go.uber.org/zap"
)

type timerRequest int

const (
	timerUnchanged timerRequest = iota
	timerStart
	timerStop
)

// Mutation is the outer transaction of a duel: every fragment applied for
// one action, and the ordered deltas they produced.
type Mutation struct {
	duel   *Duel
	Deltas []Delta

	queues     [][]Fragment
	nextFragID int
	timer      timerRequest

	// counters shared by user scripts to bound trigger cascades
	triggers      map[int]int
	totalTriggers int
}

func newMutation(d *Duel) *Mutation {
	return &Mutation{duel: d, triggers: make(map[int]int)}
}

// Duel returns the duel being mutated.
func (m *Mutation) Duel() *Duel { return m.duel }

// ApplyFrag runs f as a root fragment of the mutation.
func (m *Mutation) ApplyFrag(f Fragment) FragmentState {
	return m.apply(f, nil)
}

// FragmentCount returns the number of fragment ids allocated so far.
func (m *Mutation) FragmentCount() int { return m.nextFragID }

// CapReached reports whether no more fragments can be applied.
func (m *Mutation) CapReached() bool { return m.nextFragID >= m.duel.Settings.FragmentCap }

// RequestTimerStart restarts the turn timer once the mutation ends.
func (m *Mutation) RequestTimerStart() { m.timer = timerStart }

// RequestTimerStop stops the turn timer once the mutation ends.
func (m *Mutation) RequestTimerStop() { m.timer = timerStop }

// TriggerCount returns how many triggers entityID ran in this mutation.
func (m *Mutation) TriggerCount(entityID int) int { return m.triggers[entityID] }

// TotalTriggers returns how many triggers ran in this mutation.
func (m *Mutation) TotalTriggers() int { return m.totalTriggers }

// CountTrigger records a trigger run by entityID.
func (m *Mutation) CountTrigger(entityID int) {
	m.triggers[entityID]++
	m.totalTriggers++
}

func (m *Mutation) applyDelta(dl Delta) error {
	if err := dl.Apply(m.duel); err != nil {
		m.duel.logger.Debug("delta rejected",
			zap.String("delta", dl.DeltaType()),
			zap.Error(err))
		return err
	}
	m.Deltas = append(m.Deltas, dl)
	return nil
}

// mutationResult is the outcome of runMutation.
type mutationResult struct {
	Mutation *Mutation
	Success  bool
	Happened bool
}

// runMutation runs fn inside a new mutation and commits the result. Must be
// called with the lock held. beforeBroadcast, when set, runs after the
// commit and before the Mutated messages are sent.
func (d *Duel) runMutation(fn func(m *Mutation) bool, beforeBroadcast func(res mutationResult)) mutationResult {
	m := newMutation(d)
	ok := fn(m)

	res := mutationResult{Mutation: m, Success: ok, Happened: ok || len(m.Deltas) > 0}
	if res.Happened {
		d.StateIteration++
	}

	for _, s := range d.State.ActiveScripts() {
		d.runHook(nil, s, "PostMutationEnd", func() { s.PostMutationEnd(m) })
	}
	d.purgeEliminated()

	if res.Happened {
		d.applyTimerRequest(m.timer)
		d.recordMutation(m)
	}
	if beforeBroadcast != nil {
		beforeBroadcast(res)
	}
	if res.Happened {
		d.broadcastMutation(m)
	}
	return res
}

// runAction runs an action in its own mutation. It reports whether the
// action ran and whether anything changed.
func (d *Duel) runAction(act Action, beforeBroadcast func(res mutationResult)) mutationResult {
	return d.runMutation(func(m *Mutation) bool {
		return act.Run(d, m)
	}, beforeBroadcast)
}

// purgeEliminated drops the units eliminated during the mutation, along
// with the modifiers that targeted them.
func (d *Duel) purgeEliminated() {
	if len(d.State.eliminated) == 0 {
		return
	}
	gone := make(map[int]bool, len(d.State.eliminated))
	for _, id := range d.State.eliminated {
		gone[id] = true
		delete(d.State.Units, id)
	}
	for _, id := range d.State.modifierIDs() {
		if gone[d.State.Modifiers[id].TargetID] {
			delete(d.State.Modifiers, id)
		}
	}
	d.State.eliminated = d.State.eliminated[:0]
}

func (d *Duel) recordMutation(m *Mutation) {
	if d.sink == nil {
		return
	}
	if err := d.sink.RecordMutation(d.ID, d.StateIteration, m.Deltas); err != nil {
		d.logger.Warn("failed to record mutation", zap.Error(err), zap.Int("iteration", d.StateIteration))
	}
}
