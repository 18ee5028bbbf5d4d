package duel

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrUnknownRequest is returned when decoding a request of an unknown type.
var ErrUnknownRequest = errors.New("unknown request type")

// Message is an outbound message to a player.
type Message interface {
	MessageType() string
}

// EncodeMessage serializes a message with its "type" discriminator.
func EncodeMessage(msg Message) ([]byte, error) {
	return marshalTagged(msg.MessageType(), msg)
}

// WelcomeMessage is sent once per connection with the full state.
type WelcomeMessage struct {
	State        StateSnapshot `json:"state"`
	Propositions Propositions  `json:"propositions"`
	Iteration    int           `json:"iteration"`
	Player       PlayerIndex   `json:"player"`
	PlayerNames  [2]string     `json:"playerNames"`
	TimerMs      int64         `json:"timerMs"`
}

func (*WelcomeMessage) MessageType() string { return "duelWelcome" }

// MutatedMessage carries the deltas of one mutation, sanitized for the
// recipient.
type MutatedMessage struct {
	Deltas       []json.RawMessage `json:"deltas"`
	WhoseTurn    PlayerIndex       `json:"whoseTurn"`
	Propositions Propositions      `json:"propositions"`
	Iteration    int               `json:"iteration"`
	TimerMs      int64             `json:"timerMs"`
}

func (*MutatedMessage) MessageType() string { return "duelMutated" }

type RequestFailedMessage struct {
	RequestID int    `json:"requestId"`
	Reason    string `json:"reason"`
}

func (*RequestFailedMessage) MessageType() string { return "duelRequestFailed" }

type RequestAckMessage struct {
	RequestID int `json:"requestId"`
}

func (*RequestAckMessage) MessageType() string { return "duelRequestAck" }

type TimerUpdatedMessage struct {
	RemainingMs int64 `json:"remainingMs"`
}

func (*TimerUpdatedMessage) MessageType() string { return "duelTimerUpdated" }

type StatusChangedMessage struct {
	Status Status       `json:"status"`
	Winner *PlayerIndex `json:"winner"`
}

func (*StatusChangedMessage) MessageType() string { return "duelStatusChanged" }

// RequestHeader is carried by every inbound request. Iteration must match
// the state iteration the client last saw.
type RequestHeader struct {
	RequestID int `json:"requestId"`
	Iteration int `json:"iteration"`
}

func (h RequestHeader) header() RequestHeader { return h }

// Request is an inbound player request.
type Request interface {
	RequestType() string
	header() RequestHeader
}

type EndTurnRequest struct {
	RequestHeader `json:"header"`
}

func (*EndTurnRequest) RequestType() string { return "duelEndTurn" }

type UseCardPropositionRequest struct {
	RequestHeader  `json:"header"`
	CardID         int             `json:"cardId"`
	ChosenSlots    []ArenaPosition `json:"chosenSlots"`
	ChosenEntities []int           `json:"chosenEntities"`
}

func (*UseCardPropositionRequest) RequestType() string { return "duelUseCardProposition" }

type UseUnitPropositionRequest struct {
	RequestHeader  `json:"header"`
	UnitID         int `json:"unitId"`
	ChosenEntityID int `json:"chosenEntityId"`
}

func (*UseUnitPropositionRequest) RequestType() string { return "duelUseUnitProposition" }

type ControlTimerRequest struct {
	RequestHeader `json:"header"`
	Pause         bool `json:"pause"`
}

func (*ControlTimerRequest) RequestType() string { return "duelControlTimer" }

type ReportReadyRequest struct {
	RequestHeader `json:"header"`
}

func (*ReportReadyRequest) RequestType() string { return "duelReportReady" }

// DecodeRequest parses a request from its JSON form.
func DecodeRequest(data []byte) (Request, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}

	var req Request
	switch envelope.Type {
	case "duelEndTurn":
		req = &EndTurnRequest{}
	case "duelUseCardProposition":
		req = &UseCardPropositionRequest{}
	case "duelUseUnitProposition":
		req = &UseUnitPropositionRequest{}
	case "duelControlTimer":
		req = &ControlTimerRequest{}
	case "duelReportReady":
		req = &ReportReadyRequest{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRequest, envelope.Type)
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("decode %s: %w", envelope.Type, err)
	}
	return req, nil
}

func (d *Duel) send(p PlayerIndex, msg Message) {
	sock := d.sockets[p]
	if sock == nil {
		return
	}
	if err := sock.Send(msg); err != nil {
		d.logger.Debug("failed to send message",
			zap.Stringer("player", p),
			zap.String("message", msg.MessageType()),
			zap.Error(err))
	}
}

func (d *Duel) broadcast(msg Message) {
	d.send(P1, msg)
	d.send(P2, msg)
}

func (d *Duel) welcome(p PlayerIndex) *WelcomeMessage {
	return &WelcomeMessage{
		State:        d.SanitizedState(p),
		Propositions: d.GeneratePropositions(p),
		Iteration:    d.StateIteration,
		Player:       p,
		PlayerNames:  d.Settings.PlayerNames,
		TimerMs:      d.remainingMs(),
	}
}

// broadcastMutation sends the mutation to both players. Propositions run
// scripts and are computed first, one player at a time; sanitizing and
// sending then happen concurrently.
func (d *Duel) broadcastMutation(m *Mutation) {
	var props [2]Propositions
	for p := P1; p <= P2; p++ {
		if d.sockets[p] != nil {
			props[p] = d.GeneratePropositions(p)
		}
	}
	timerMs := d.remainingMs()

	var g errgroup.Group
	for p := P1; p <= P2; p++ {
		sock := d.sockets[p]
		if sock == nil {
			continue
		}
		g.Go(func() error {
			deltas, err := d.encodeDeltasFor(m.Deltas, p)
			if err != nil {
				return fmt.Errorf("encode deltas for %s: %w", p, err)
			}
			msg := &MutatedMessage{
				Deltas:       deltas,
				WhoseTurn:    d.State.WhoseTurn,
				Propositions: props[p],
				Iteration:    d.StateIteration,
				TimerMs:      timerMs,
			}
			if err := sock.Send(msg); err != nil {
				d.logger.Debug("failed to send mutation", zap.Stringer("player", p), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		d.logger.Error("failed to broadcast mutation", zap.Error(err), zap.Int("iteration", d.StateIteration))
	}
}
