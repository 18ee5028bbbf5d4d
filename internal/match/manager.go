package match

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ChuechTeam/CardLab-sub000/internal/config"
	"github.com/ChuechTeam/CardLab-sub000/internal/duel"
	"github.com/ChuechTeam/CardLab-sub000/internal/storage"
)

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrInvalidToken   = errors.New("invalid join token")
	ErrTokenExpired   = errors.New("join token expired")
	ErrTooManyMatches = errors.New("too many running matches")
)

// CardSource resolves cards and named decks.
type CardSource interface {
	duel.CardDatabase
	Deck(name string) ([]duel.QualCardRef, error)
}

// Journal records mutations and seals a duel's record when it is over.
type Journal interface {
	duel.MutationSink
	Finish(duelID string) (string, error)
}

// Options carries the collaborators of a Manager. Journal and Store may be
// nil.
type Options struct {
	Config   config.MatchConfig
	Settings duel.Settings
	Cards    CardSource
	Scripts  duel.ScriptFactory
	Journal  Journal
	Store    storage.Store
	// TokenCost is the bcrypt cost of join tokens, bcrypt.DefaultCost if 0.
	TokenCost int
	Now       func() time.Time
}

// CreateRequest describes a new match.
type CreateRequest struct {
	PlayerNames [2]string
	// Decks are deck names; an empty name uses the default deck.
	Decks [2]string
	// Seed fixes the duel's random source; a random seed is used when nil.
	Seed *int64
}

// Manager owns every running match.
type Manager struct {
	opts    Options
	logger  *zap.Logger
	mu      sync.RWMutex
	matches map[string]*Match
	pending sync.WaitGroup

	// reserved counts matches being created, which hold a MaxDuels slot
	// before they are inserted.
	reserved int
}

// NewManager creates a match manager.
func NewManager(opts Options, logger *zap.Logger) *Manager {
	if opts.TokenCost == 0 {
		opts.TokenCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Store == nil {
		opts.Store = storage.Nop{}
	}
	return &Manager{
		opts:    opts,
		logger:  logger,
		matches: make(map[string]*Match),
	}
}

// CreateMatch starts hosting a duel and returns the join token of each
// seat. Tokens are only kept hashed.
func (m *Manager) CreateMatch(req CreateRequest) (*Match, [2]string, error) {
	var tokens [2]string

	if !m.reserve() {
		return nil, tokens, ErrTooManyMatches
	}
	inserted := false
	defer func() {
		if !inserted {
			m.mu.Lock()
			m.reserved--
			m.mu.Unlock()
		}
	}()

	id := uuid.New()
	settings := m.opts.Settings
	settings.Cards = m.opts.Cards
	settings.PlayerNames = req.PlayerNames
	if req.Seed != nil {
		settings.Seed = *req.Seed
	} else {
		settings.Seed = int64(binary.BigEndian.Uint64(id[8:]))
	}
	for p := duel.P1; p <= duel.P2; p++ {
		name := req.Decks[p]
		if name == "" {
			name = m.opts.Config.DefaultDeck
		}
		deck, err := m.opts.Cards.Deck(name)
		if err != nil {
			return nil, tokens, err
		}
		if p == duel.P1 {
			settings.Player1Deck = deck
		} else {
			settings.Player2Deck = deck
		}
	}

	now := m.opts.Now()
	mt := &Match{
		ID:          id.String(),
		Seed:        settings.Seed,
		CreateTime:  now,
		TokenExpiry: now.Add(m.opts.Config.JoinTokenTTL),
	}
	for p := range tokens {
		tokens[p] = uuid.NewString()
		hash, err := bcrypt.GenerateFromPassword([]byte(tokens[p]), m.opts.TokenCost)
		if err != nil {
			return nil, [2]string{}, fmt.Errorf("failed to hash join token: %w", err)
		}
		mt.seats[p] = seat{name: req.PlayerNames[p], tokenHash: hash}
	}

	opts := duel.Options{
		ID:      mt.ID,
		Logger:  m.logger,
		Scripts: m.opts.Scripts,
		OnEnded: func(d *duel.Duel, winner *duel.PlayerIndex) {
			m.onEnded(mt, d, winner)
		},
	}
	if m.opts.Journal != nil {
		opts.Sink = m.opts.Journal
	}
	d, err := duel.New(settings, opts)
	if err != nil {
		return nil, [2]string{}, fmt.Errorf("failed to create duel: %w", err)
	}
	mt.Duel = d

	m.mu.Lock()
	m.matches[mt.ID] = mt
	m.reserved--
	inserted = true
	m.mu.Unlock()

	m.logger.Info("match created",
		zap.String("match_id", mt.ID),
		zap.String("player1", req.PlayerNames[0]),
		zap.String("player2", req.PlayerNames[1]),
		zap.Int64("seed", mt.Seed))
	return mt, tokens, nil
}

// reserve takes a MaxDuels slot for a match about to be created.
func (m *Manager) reserve() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit := m.opts.Config.MaxDuels; limit > 0 && len(m.matches)+m.reserved >= limit {
		return false
	}
	m.reserved++
	return true
}

// Join finds the seat a token belongs to. A seat's token may be reused to
// reconnect; a seat never joined expires with the token TTL.
func (m *Manager) Join(matchID, token string) (*Match, duel.PlayerIndex, error) {
	mt, ok := m.GetMatch(matchID)
	if !ok {
		return nil, 0, ErrMatchNotFound
	}

	mt.mu.RLock()
	seats := mt.seats
	mt.mu.RUnlock()

	for p := duel.P1; p <= duel.P2; p++ {
		if bcrypt.CompareHashAndPassword(seats[p].tokenHash, []byte(token)) != nil {
			continue
		}
		if !seats[p].joined && m.opts.Now().After(mt.TokenExpiry) {
			return nil, 0, ErrTokenExpired
		}
		mt.markJoined(p, m.opts.Now())
		m.logger.Info("player joined match",
			zap.String("match_id", matchID),
			zap.Stringer("player", p))
		return mt, p, nil
	}
	return nil, 0, ErrInvalidToken
}

// GetMatch retrieves a match by id.
func (m *Manager) GetMatch(matchID string) (*Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.matches[matchID]
	return mt, ok
}

// ListMatches returns snapshots of every match, oldest first.
func (m *Manager) ListMatches() []Snapshot {
	m.mu.RLock()
	list := make([]*Match, 0, len(m.matches))
	for _, mt := range m.matches {
		list = append(list, mt)
	}
	m.mu.RUnlock()

	out := make([]Snapshot, 0, len(list))
	for _, mt := range list {
		out = append(out, mt.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreateTime.Before(out[j].CreateTime) })
	return out
}

// RemoveMatch closes a match's duel and forgets it.
func (m *Manager) RemoveMatch(matchID string) error {
	m.mu.Lock()
	mt, ok := m.matches[matchID]
	delete(m.matches, matchID)
	m.mu.Unlock()
	if !ok {
		return ErrMatchNotFound
	}

	mt.Duel.Close()
	if !mt.Ended() && m.opts.Journal != nil {
		if _, err := m.opts.Journal.Finish(matchID); err != nil {
			m.logger.Warn("failed to finish journal", zap.String("match_id", matchID), zap.Error(err))
		}
	}
	m.logger.Info("match removed", zap.String("match_id", matchID))
	return nil
}

// onEnded runs with the duel lock held: it only reads the state and leaves
// the I/O to a goroutine.
func (m *Manager) onEnded(mt *Match, d *duel.Duel, winner *duel.PlayerIndex) {
	now := m.opts.Now()
	mt.markEnded(winner, now)

	res := storage.DuelResult{
		DuelID:      mt.ID,
		StartedAt:   mt.CreateTime,
		EndedAt:     now,
		Turns:       d.State.Turn,
		Iterations:  d.StateIteration,
		PlayerNames: d.Settings.PlayerNames,
	}
	mt.mu.RLock()
	if mt.startTime != nil {
		res.StartedAt = *mt.startTime
	}
	mt.mu.RUnlock()
	if winner != nil {
		w := int(*winner)
		res.Winner = &w
	}

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		m.saveResult(res)
	}()
}

func (m *Manager) saveResult(res storage.DuelResult) {
	if m.opts.Journal != nil {
		sum, err := m.opts.Journal.Finish(res.DuelID)
		if err != nil {
			m.logger.Warn("failed to finish journal", zap.String("match_id", res.DuelID), zap.Error(err))
		}
		res.Checksum = sum
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.opts.Store.SaveResult(ctx, res); err != nil {
		m.logger.Error("failed to save duel result", zap.String("match_id", res.DuelID), zap.Error(err))
		return
	}
	m.logger.Info("duel result saved",
		zap.String("match_id", res.DuelID),
		zap.Int("turns", res.Turns))
}

// Flush waits for the results being saved.
func (m *Manager) Flush() {
	m.pending.Wait()
}

// CleanupExpired removes finished matches after the retention delay and
// matches whose seats were never filled before the token TTL. It runs
// until ctx is done.
func (m *Manager) CleanupExpired(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() int {
	now := m.opts.Now()
	var expired []string

	m.mu.RLock()
	for id, mt := range m.matches {
		mt.mu.RLock()
		switch {
		case mt.endTime != nil:
			if now.Sub(*mt.endTime) > m.opts.Config.EndedRetention {
				expired = append(expired, id)
			}
		case mt.startTime == nil && now.After(mt.TokenExpiry):
			expired = append(expired, id)
		}
		mt.mu.RUnlock()
	}
	m.mu.RUnlock()

	for _, id := range expired {
		_ = m.RemoveMatch(id)
	}
	if len(expired) > 0 {
		m.logger.Debug("expired matches removed", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// CloseAll closes every match and waits for pending results.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.matches))
	for id := range m.matches {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.RemoveMatch(id)
	}
	m.Flush()
}
