package duel

// Mutate runs fn in a new mutation under the duel lock and commits it the
// way an action is committed.
func (d *Duel) Mutate(fn func(m *Mutation) bool) *Mutation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runMutation(fn, nil).Mutation
}

// TimerState reports whether the turn timer runs and whether it is paused.
func (d *Duel) TimerState() (running, paused bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer.running, d.timer.paused
}

// FireTurnTimeout runs the turn timeout callback as the current timer would,
// or as one from before the last timer change when stale.
func (d *Duel) FireTurnTimeout(stale bool) {
	d.mu.Lock()
	gen := d.timer.generation
	d.mu.Unlock()
	if stale {
		gen--
	}
	d.onTurnTimeout(gen)
}
