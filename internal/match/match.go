// Package match hosts running duels: it creates them from decks, hands out
// join tokens for the two seats and records results once a duel ends.
package match

import (
	"sync"
	"time"

	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
)

// State is the lifecycle of a match, as seen by the manager.
type State int

const (
	StateWaiting State = iota
	StateInProgress
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateInProgress:
		return "IN_PROGRESS"
	case StateFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

type seat struct {
	name      string
	tokenHash []byte
	joined    bool
}

// Match is a duel and its two seats.
type Match struct {
	ID   string
	Seed int64
	Duel *duel.Duel

	CreateTime  time.Time
	TokenExpiry time.Time

	mu        sync.RWMutex
	seats     [2]seat
	startTime *time.Time
	endTime   *time.Time
	winner    *duel.PlayerIndex
}

// Snapshot is a consistent view of a match for listings.
type Snapshot struct {
	ID          string
	State       State
	Seed        int64
	PlayerNames [2]string
	Joined      [2]bool
	Connected   [2]bool
	Turn        int
	Iteration   int
	Winner      *duel.PlayerIndex
	CreateTime  time.Time
	StartTime   *time.Time
	EndTime     *time.Time
}

func (m *Match) markJoined(p duel.PlayerIndex, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seats[p].joined = true
	if m.startTime == nil && m.seats[duel.P1].joined && m.seats[duel.P2].joined {
		m.startTime = &now
	}
}

func (m *Match) markEnded(winner *duel.PlayerIndex, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.endTime != nil {
		return
	}
	m.endTime = &now
	if winner != nil {
		w := *winner
		m.winner = &w
	}
}

// Ended reports whether the duel is over.
func (m *Match) Ended() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.endTime != nil
}

func (m *Match) state() State {
	switch {
	case m.endTime != nil:
		return StateFinished
	case m.startTime != nil:
		return StateInProgress
	default:
		return StateWaiting
	}
}

// Snapshot returns a consistent copy of the match. It locks the duel.
func (m *Match) Snapshot() Snapshot {
	sum := m.Duel.Summary()

	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		ID:          m.ID,
		State:       m.state(),
		Seed:        m.Seed,
		PlayerNames: [2]string{m.seats[0].name, m.seats[1].name},
		Joined:      [2]bool{m.seats[0].joined, m.seats[1].joined},
		Connected:   sum.Connected,
		Turn:        sum.Turn,
		Iteration:   sum.Iteration,
		Winner:      clonePlayer(m.winner),
		CreateTime:  m.CreateTime,
		StartTime:   cloneTime(m.startTime),
		EndTime:     cloneTime(m.endTime),
	}
}

func cloneTime(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	cp := *src
	return &cp
}

func clonePlayer(src *duel.PlayerIndex) *duel.PlayerIndex {
	if src == nil {
		return nil
	}
	cp := *src
	return &cp
}
