package duel

import (
	"time"

	"go.uber.org/zap"
)

// turnTimer tracks the countdown of the current turn. Every start, stop,
// pause or resume bumps generation, and callbacks from older generations
// do nothing: a callback may already be waiting for the lock when its
// timer is stopped.
type turnTimer struct {
	generation int
	running    bool
	paused     bool
	deadline   time.Time
	remaining  time.Duration // while paused

	turn  *time.Timer
	pause *time.Timer
}

func (t *turnTimer) stopClocks() {
	if t.turn != nil {
		t.turn.Stop()
		t.turn = nil
	}
	if t.pause != nil {
		t.pause.Stop()
		t.pause = nil
	}
}

func (d *Duel) turnDuration() time.Duration {
	return time.Duration(d.Settings.SecondsPerTurn) * time.Second
}

func (d *Duel) applyTimerRequest(req timerRequest) {
	switch req {
	case timerStart:
		d.startTimer(d.turnDuration())
	case timerStop:
		d.stopTimer()
	}
}

func (d *Duel) startTimer(dur time.Duration) {
	t := &d.timer
	t.stopClocks()
	if d.closed || d.Settings.SecondsPerTurn <= 0 {
		t.running = false
		return
	}
	t.generation++
	gen := t.generation
	t.running = true
	t.paused = false
	t.deadline = time.Now().Add(dur)
	t.turn = time.AfterFunc(dur, func() { d.onTurnTimeout(gen) })
}

func (d *Duel) stopTimer() {
	t := &d.timer
	t.stopClocks()
	t.generation++
	t.running = false
	t.paused = false
}

// remainingTime is what is left of the current turn, 0 when no turn is
// being timed.
func (d *Duel) remainingTime() time.Duration {
	t := &d.timer
	switch {
	case !t.running:
		return 0
	case t.paused:
		return t.remaining
	default:
		return max(0, time.Until(t.deadline))
	}
}

func (d *Duel) remainingMs() int64 {
	return d.remainingTime().Milliseconds()
}

func (d *Duel) onTurnTimeout(gen int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.timer.generation || d.closed || d.State.Status != StatusPlaying {
		return
	}
	d.timer.running = false
	d.logger.Debug("turn timed out",
		zap.Int("turn", d.State.Turn),
		zap.Stringer("player", d.State.WhoseTurn))

	before := d.State.Status
	d.runAction(ActNextTurn(), nil)
	d.checkEnded(before)
}

// pauseTimer freezes the turn countdown for at most Settings.PauseMax.
func (d *Duel) pauseTimer() bool {
	t := &d.timer
	if !t.running || t.paused {
		return false
	}
	rem := max(0, time.Until(t.deadline))
	t.stopClocks()
	t.generation++
	gen := t.generation
	t.paused = true
	t.remaining = rem
	t.pause = time.AfterFunc(d.Settings.PauseMax, func() { d.onPauseExpired(gen) })
	return true
}

// resumeTimer restarts a paused countdown and tells both players.
func (d *Duel) resumeTimer() bool {
	t := &d.timer
	if !t.running || !t.paused {
		return false
	}
	d.startTimer(t.remaining)
	d.broadcast(&TimerUpdatedMessage{RemainingMs: d.remainingMs()})
	return true
}

func (d *Duel) onPauseExpired(gen int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.timer.generation || d.closed {
		return
	}
	d.logger.Debug("timer pause expired")
	d.resumeTimer()
}

// ControlTimer pauses or resumes the turn timer on behalf of the player
// whose turn it is. Stale iterations are ignored.
func (d *Duel) ControlTimer(p PlayerIndex, pause bool, iteration int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.controlTimer(p, pause, iteration)
}

func (d *Duel) controlTimer(p PlayerIndex, pause bool, iteration int) bool {
	if d.closed || iteration != d.StateIteration || d.State.Status != StatusPlaying || d.State.WhoseTurn != p {
		return false
	}
	if pause {
		return d.pauseTimer()
	}
	return d.resumeTimer()
}
