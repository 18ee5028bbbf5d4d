package duel

import (
	"fmt"

	"go.uber.org/zap"
)

// HandleMessage decodes a raw request from p and handles it.
func (d *Duel) HandleMessage(p PlayerIndex, data []byte) error {
	req, err := DecodeRequest(data)
	if err != nil {
		return err
	}
	d.HandleRequest(p, req)
	return nil
}

// HandleRequest routes a request from p. Requests expecting an answer get
// an ack or a failure message; stale ones fail with "Iteration mismatch".
func (d *Duel) HandleRequest(p PlayerIndex, req Request) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !p.Valid() {
		return
	}

	h := req.header()
	stale := h.Iteration != d.StateIteration

	switch r := req.(type) {
	case *ReportReadyRequest:
		if err := d.reportReady(p); err != nil {
			d.logger.Debug("report ready rejected", zap.Error(err))
		}
		return
	case *ControlTimerRequest:
		d.controlTimer(p, r.Pause, h.Iteration)
		return
	}

	if stale {
		d.send(p, &RequestFailedMessage{RequestID: h.RequestID, Reason: "Iteration mismatch"})
		return
	}

	var act Action
	switch r := req.(type) {
	case *EndTurnRequest:
		act = ActEndTurn(p)
	case *UseCardPropositionRequest:
		act = ActPlayCard(p, r.CardID, r.ChosenSlots, r.ChosenEntities)
	case *UseUnitPropositionRequest:
		act = ActUseUnitAttack(p, r.UnitID, r.ChosenEntityID)
	default:
		d.send(p, &RequestFailedMessage{RequestID: h.RequestID, Reason: fmt.Sprintf("Unsupported request %s", req.RequestType())})
		return
	}

	if err := d.perform(p, h.RequestID, act); err != nil {
		d.logger.Debug("request rejected",
			zap.Stringer("player", p),
			zap.String("request", req.RequestType()),
			zap.Error(err))
	}
}
