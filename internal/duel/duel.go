package duel

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"
)

// ErrDuelClosed is returned by entry points once the duel has been closed.
var ErrDuelClosed = errors.New("duel closed")

// PlayerSocket delivers messages to one connected player. Send must not
// block on the network for long; failures are logged and otherwise ignored.
type PlayerSocket interface {
	Send(msg Message) error
}

// MutationSink receives the deltas of every mutation that happened, in
// iteration order.
type MutationSink interface {
	RecordMutation(duelID string, iteration int, deltas []Delta) error
}

// Options carries the collaborators of a duel.
type Options struct {
	ID      string
	Logger  *zap.Logger
	Scripts ScriptFactory
	Sink    MutationSink
	// OnEnded is called once, with the duel lock held, when the game ends.
	// It must not call back into the duel.
	OnEnded func(d *Duel, winner *PlayerIndex)
}

// Duel is one game between two players. Every exported method locks the
// duel; the fragment engine itself runs synchronously under that lock.
type Duel struct {
	mu sync.Mutex

	ID             string
	Settings       Settings
	State          *State
	StateIteration int
	Attributes     *AttributeTable
	Listeners      *ListenerRegistry

	// OnPreFragment runs before the main effect of every fragment and
	// reports whether it produced effects of its own.
	OnPreFragment func(f Fragment) bool

	logger  *zap.Logger
	rng     *rand.Rand
	scripts ScriptFactory
	sink    MutationSink
	onEnded func(d *Duel, winner *PlayerIndex)

	dirty []Entity

	cardSeq     int
	unitSeq     int
	modifierSeq int

	sockets [2]PlayerSocket
	ready   [2]bool
	timer   turnTimer
	closed  bool
}

// New builds a duel awaiting its players. Decks are created in the order
// given; the last card of a deck is drawn first.
func New(settings Settings, opts Options) (*Duel, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Duel{
		ID:         opts.ID,
		Settings:   settings,
		State:      newState(),
		Attributes: NewAttributeTable(settings),
		Listeners:  NewListenerRegistry(),
		logger:     logger.With(zap.String("duel_id", opts.ID)),
		rng:        rand.New(rand.NewSource(settings.Seed)),
		scripts:    opts.Scripts,
		sink:       opts.Sink,
		onEnded:    opts.OnEnded,
	}
	d.State.Status = StatusAwaitingConnection

	for p := P1; p <= P2; p++ {
		pl := &Player{
			ID:    p.ID(),
			Index: p,
			Name:  settings.PlayerNames[p],
			attrs: NewAttributeSet(d.Attributes, KindPlayer),
			Units: make([]int, settings.UnitsX*settings.UnitsY),
		}
		pl.attrs.Register(AttrCoreHealth)
		pl.attrs.Register(AttrMaxEnergy)
		pl.attrs.Register(AttrEnergy)
		pl.attrs.Register(AttrCardsPlayedThisTurn)
		d.State.Players[p] = pl
	}

	for p := P1; p <= P2; p++ {
		pl := d.State.Players[p]
		for _, ref := range settings.Deck(p) {
			c, err := d.MakeCard(ref, false)
			if err != nil {
				return nil, fmt.Errorf("create deck of %s: %w", p, err)
			}
			c.Location = DeckLocation(p)
			d.State.Cards[c.ID] = c
			pl.Deck = append(pl.Deck, c.ID)
		}
	}

	for _, pl := range d.State.Players {
		pl.attrs.ClearPrevVals()
		d.trackAttribs(pl)
	}
	d.registerCoreReactions()

	d.logger.Debug("duel created",
		zap.Int("deck_p1", len(settings.Player1Deck)),
		zap.Int("deck_p2", len(settings.Player2Deck)),
		zap.Int64("seed", settings.Seed))
	return d, nil
}

// Logger returns the duel's logger.
func (d *Duel) Logger() *zap.Logger { return d.logger }

// Rand returns the seeded random source. Only use it while holding the duel
// lock, from fragments or script hooks.
func (d *Duel) Rand() *rand.Rand { return d.rng }

// MakeCard instantiates a card definition. A virtual card gets the
// NoEntity id and is never added to the state; it is used to spawn units
// that do not come from a deck. Real cards are not added either: the
// caller places them in a deck or through CreateCardsDelta.
func (d *Duel) MakeCard(ref QualCardRef, virtual bool) (*Card, error) {
	def, ok := d.Settings.Cards.Card(ref)
	if !ok {
		return nil, fmt.Errorf("unknown card %s", ref)
	}

	id := NoEntity
	if !virtual {
		d.cardSeq++
		id = MakeID(KindCard, d.cardSeq)
	}
	c := &Card{
		ID:          id,
		DefRef:      ref,
		Def:         def,
		Type:        def.Type,
		Requirement: def.Requirement,
		Location:    LocTemp,
		Archetype:   NormalizeArchetype(def.Archetype),
		attrs:       NewAttributeSet(d.Attributes, KindCard),
	}
	if c.Type == CardUnit {
		c.Requirement = RequireSingleSlot
		c.attrs.Set(AttrAttack, def.Attack)
		c.attrs.Set(AttrHealth, def.Health)
	}
	c.attrs.Set(AttrCost, def.Cost)
	c.attrs.ClearPrevVals()

	if def.Script != nil && d.scripts != nil {
		s, err := d.scripts.CreateScript(d, c, def.Script)
		if err != nil {
			return nil, fmt.Errorf("create script of card %s: %w", ref, err)
		}
		c.script = s
	}
	if !virtual {
		d.trackAttribs(c)
	}
	return c, nil
}

// MakeUnit builds the unit a card spawns at pos. The unit shares the card's
// script and is not yet on the board.
func (d *Duel) MakeUnit(card *Card, pos ArenaPosition) *Unit {
	d.unitSeq++
	ca := card.Attribs()
	u := &Unit{
		ID:           MakeID(KindUnit, d.unitSeq),
		OriginRef:    card.DefRef,
		OriginCardID: card.ID,
		OriginStats:  ca.Snapshot(),
		Archetype:    card.Archetype,
		Position:     pos,
		Owner:        pos.Player,
		attrs:        NewAttributeSet(d.Attributes, KindUnit),
		script:       card.script,
	}
	a := u.attrs
	a.Set(AttrAttack, ca.GetActual(AttrAttack))
	a.Set(AttrMaxHealth, ca.GetActual(AttrHealth))
	a.Set(AttrHealth, ca.GetActual(AttrHealth))
	a.Set(AttrActionsLeft, 0)
	a.Set(AttrInactionTurns, 1)
	a.Set(AttrActionsPerTurn, 1)
	a.ClearPrevVals()
	d.trackAttribs(u)
	return u
}

// CreateCards adds new cards of the given definitions to the duel through
// CreateCardsDelta. The cards start in the Temp location.
func (d *Duel) CreateCards(frag Fragment, refs ...QualCardRef) ([]*Card, error) {
	cards := make([]*Card, 0, len(refs))
	for _, ref := range refs {
		c, err := d.MakeCard(ref, false)
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	if err := frag.Base().ApplyDelta(&CreateCardsDelta{Cards: cards}); err != nil {
		return nil, err
	}
	return cards, nil
}

func (d *Duel) nextModifierID() int {
	d.modifierSeq++
	return d.modifierSeq
}

// Connect attaches the socket of player p and sends it the welcome message.
// A previous socket of the same player is replaced.
func (d *Duel) Connect(p PlayerIndex, sock PlayerSocket) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDuelClosed
	}
	if !p.Valid() {
		return fmt.Errorf("invalid player %d", p)
	}
	d.sockets[p] = sock
	d.logger.Info("player connected", zap.Stringer("player", p))
	d.send(p, d.welcome(p))
	return nil
}

// Disconnect detaches sock if it is still the socket of p.
func (d *Duel) Disconnect(p PlayerIndex, sock PlayerSocket) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.Valid() && d.sockets[p] == sock {
		d.sockets[p] = nil
		d.logger.Info("player disconnected", zap.Stringer("player", p))
	}
}

// ReportReady marks p as ready. The game starts once both players are.
func (d *Duel) ReportReady(p PlayerIndex) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reportReady(p)
}

func (d *Duel) reportReady(p PlayerIndex) error {
	if d.closed {
		return ErrDuelClosed
	}
	if !p.Valid() {
		return fmt.Errorf("invalid player %d", p)
	}
	if d.State.Status != StatusAwaitingConnection {
		return nil
	}
	d.ready[p] = true
	if d.ready[P1] && d.ready[P2] {
		d.startPlaying()
	}
	return nil
}

func (d *Duel) startPlaying() {
	d.State.Status = StatusPlaying
	d.logger.Info("duel started")
	d.broadcast(&StatusChangedMessage{Status: StatusPlaying})

	res := d.runAction(ActGameStart(), nil)
	if !res.Success {
		d.logger.Error("game start action failed")
	}
	d.checkEnded(StatusPlaying)
}

// EndTurn ends the turn of p.
func (d *Duel) EndTurn(p PlayerIndex) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perform(p, noRequest, ActEndTurn(p))
}

// PlayCard plays a card from the hand of p.
func (d *Duel) PlayCard(p PlayerIndex, cardID int, slots []ArenaPosition, entities []int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perform(p, noRequest, ActPlayCard(p, cardID, slots, entities))
}

// UseUnitAttack makes a unit of p attack targetID.
func (d *Duel) UseUnitAttack(p PlayerIndex, unitID, targetID int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.perform(p, noRequest, ActUseUnitAttack(p, unitID, targetID))
}

// RequestError is the rejection of a player request. Reason is shown to
// the player.
type RequestError struct {
	Reason string
}

func (e *RequestError) Error() string { return "request rejected: " + e.Reason }

const noRequest = -1

// perform runs a player action. With a request id, the player gets an ack
// right before the mutation is broadcast, or a failure message instead.
func (d *Duel) perform(p PlayerIndex, requestID int, act Action) error {
	if d.closed {
		return ErrDuelClosed
	}
	reject := func(reason string) error {
		if requestID != noRequest {
			d.send(p, &RequestFailedMessage{RequestID: requestID, Reason: reason})
		}
		return &RequestError{Reason: reason}
	}

	switch {
	case d.State.Status != StatusPlaying:
		return reject("Duel not running")
	case d.State.WhoseTurn != p:
		return reject("Not your turn")
	case !act.CanDo(d):
		return reject("Action not allowed")
	}

	before := d.State.Status
	res := d.runAction(act, func(res mutationResult) {
		if requestID == noRequest {
			return
		}
		if res.Success {
			d.send(p, &RequestAckMessage{RequestID: requestID})
		} else {
			d.send(p, &RequestFailedMessage{RequestID: requestID, Reason: "Action failed"})
		}
	})
	d.checkEnded(before)
	if !res.Success {
		return &RequestError{Reason: "Action failed"}
	}
	return nil
}

// checkEnded announces the end of the game when the last mutation ended it.
func (d *Duel) checkEnded(before Status) {
	if before == StatusEnded || d.State.Status != StatusEnded {
		return
	}
	winner := d.State.Winner
	fields := []zap.Field{zap.Int("turn", d.State.Turn)}
	if winner != nil {
		fields = append(fields, zap.Stringer("winner", *winner))
	}
	d.logger.Info("duel ended", fields...)
	d.broadcast(&StatusChangedMessage{Status: StatusEnded, Winner: winner})
	if d.onEnded != nil {
		d.onEnded(d, winner)
	}
}

// Close stops the timers and detaches the players. The duel rejects every
// request afterwards.
func (d *Duel) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.stopTimer()
	d.sockets = [2]PlayerSocket{}
	d.logger.Info("duel closed", zap.Stringer("status", d.State.Status))
}

// Summary is a consistent view of the duel for listings.
type Summary struct {
	ID          string
	Status      Status
	Turn        int
	WhoseTurn   PlayerIndex
	Iteration   int
	PlayerNames [2]string
	Winner      *PlayerIndex
	Connected   [2]bool
}

// Summary returns the current summary of the duel.
func (d *Duel) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Summary{
		ID:          d.ID,
		Status:      d.State.Status,
		Turn:        d.State.Turn,
		WhoseTurn:   d.State.WhoseTurn,
		Iteration:   d.StateIteration,
		PlayerNames: d.Settings.PlayerNames,
		Winner:      d.State.Winner,
	}
	for p := range d.sockets {
		s.Connected[p] = d.sockets[p] != nil
	}
	return s
}

// Propositions returns the legal moves of p in the current state.
func (d *Duel) Propositions(p PlayerIndex) Propositions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.GeneratePropositions(p)
}

// Snapshot returns the state as p sees it.
func (d *Duel) Snapshot(p PlayerIndex) StateSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.SanitizedState(p)
}
