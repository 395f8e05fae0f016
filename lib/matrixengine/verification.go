// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/halyard-chat/halyard/lib/canonicaljson"
	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/sas"
	"github.com/halyard-chat/halyard/messaging"
)

// RequestVerification sends m.key.verification.request to one of the
// account's own devices and starts tracking the flow.
func (e *Engine) RequestVerification(ctx context.Context, device engine.Device) (engine.VerificationRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, engine.ErrNotLoggedIn
	}
	userID, ownDevice := e.ownUser()
	if device.DeviceID == ownDevice {
		return nil, fmt.Errorf("matrixengine: cannot verify the current device with itself")
	}

	flow := &request{
		engine:     e,
		flowID:     uuid.NewString(),
		peerUser:   userID.String(),
		peerDevice: device.DeviceID.String(),
	}
	content := sas.RequestContent{
		FromDevice:    ownDevice.String(),
		Methods:       []string{sas.Method},
		Timestamp:     e.clock.Now().UnixMilli(),
		TransactionID: flow.flowID,
	}
	if err := flow.send(ctx, sas.EventRequest, content); err != nil {
		return nil, err
	}
	e.flows[flow.flowID] = flow
	e.logger.Info("verification requested",
		"flow_id", flow.flowID,
		"device_id", device.DeviceID,
	)
	return flow, nil
}

// VerificationRequest refreshes to-device state and returns the flow.
func (e *Engine) VerificationRequest(ctx context.Context, flowID string) (engine.VerificationRequest, error) {
	if err := e.Sync(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	flow, ok := e.flows[flowID]
	if !ok {
		return nil, engine.ErrVerificationNotFound
	}
	return flow, nil
}

// applyToDevice routes verification events to their flows.
func (e *Engine) applyToDevice(ctx context.Context, events []messaging.ToDeviceEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return
	}
	for _, event := range events {
		var envelope struct {
			TransactionID string `json:"transaction_id"`
		}
		if json.Unmarshal(event.Content, &envelope) != nil || envelope.TransactionID == "" {
			continue
		}
		flow, ok := e.flows[envelope.TransactionID]
		if !ok {
			if event.Type == sas.EventRequest {
				e.logger.Info("ignoring incoming verification request",
					"sender", event.Sender,
					"flow_id", envelope.TransactionID,
				)
			}
			continue
		}
		if event.Sender.String() != flow.peerUser {
			e.logger.Warn("verification event from unexpected sender",
				"flow_id", flow.flowID,
				"sender", event.Sender,
			)
			continue
		}
		flow.handle(ctx, event.Type, event.Content)
	}
}

// request is one outgoing verification flow. All fields are guarded by
// engine.mu.
type request struct {
	engine     *Engine
	flowID     string
	peerUser   string
	peerDevice string

	ready        bool
	peerMethods  []string
	cancelled    bool
	cancelCode   string
	cancelReason string

	// peerStart is a start the peer sent before this side chose to
	// begin SAS.
	peerStart *receivedStart
	exchange  *exchange

	doneSent     bool
	doneReceived bool
}

type receivedStart struct {
	content   sas.StartContent
	canonical []byte
}

var _ engine.VerificationRequest = (*request)(nil)

func (r *request) FlowID() string { return r.flowID }

func (r *request) Refresh(ctx context.Context) error {
	return r.engine.Sync(ctx)
}

func (r *request) IsReady() bool {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	return r.ready
}

func (r *request) IsDone() bool {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	return r.doneSent && r.doneReceived && !r.cancelled
}

func (r *request) IsCancelled() bool {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	return r.cancelled
}

// StartSAS adopts a start the peer already sent, or sends our own.
// Repeated calls return the same exchange.
func (r *request) StartSAS(ctx context.Context) (engine.SAS, error) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	if r.cancelled {
		return nil, fmt.Errorf("matrixengine: flow %s was cancelled (%s)", r.flowID, r.cancelCode)
	}
	if !r.ready {
		return nil, fmt.Errorf("matrixengine: flow %s is not ready", r.flowID)
	}
	if r.exchange != nil {
		return r.exchange, nil
	}
	if !slices.Contains(r.peerMethods, sas.Method) {
		return nil, engine.ErrSASUnsupported
	}

	if r.peerStart != nil {
		exchange, err := r.acceptorExchange(*r.peerStart)
		if err != nil {
			return nil, err
		}
		r.exchange = exchange
		r.peerStart = nil
		return exchange, nil
	}

	exchange, err := newExchange(r, true)
	if err != nil {
		return nil, err
	}
	_, ownDevice := r.engine.ownUser()
	start := sas.NewStart(ownDevice.String(), r.flowID)
	canonical, err := canonicalContent(start)
	if err != nil {
		exchange.release()
		return nil, err
	}
	exchange.start = start
	exchange.canonicalStart = canonical
	if err := r.send(ctx, sas.EventStart, start); err != nil {
		exchange.release()
		return nil, err
	}
	r.exchange = exchange
	return exchange, nil
}

func (r *request) acceptorExchange(start receivedStart) (*exchange, error) {
	if _, ok := sas.NegotiateAccept(start.content); !ok {
		return nil, engine.ErrSASUnsupported
	}
	exchange, err := newExchange(r, false)
	if err != nil {
		return nil, err
	}
	exchange.start = start.content
	exchange.canonicalStart = start.canonical
	return exchange, nil
}

// Cancel sends m.key.verification.cancel with the user code.
func (r *request) Cancel(ctx context.Context) error {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	if r.cancelled {
		return nil
	}
	if err := r.send(ctx, sas.EventCancel, sas.CancelContent{
		TransactionID: r.flowID,
		Code:          sas.CancelUser,
		Reason:        "The user cancelled the verification.",
	}); err != nil {
		return err
	}
	r.markCancelled(sas.CancelUser, "cancelled locally")
	return nil
}

// handle applies one received event. Protocol violations cancel the
// flow towards the peer.
func (r *request) handle(ctx context.Context, eventType string, raw json.RawMessage) {
	if r.cancelled {
		return
	}
	logger := r.engine.logger.With("flow_id", r.flowID, "event_type", eventType)

	switch eventType {
	case sas.EventReady:
		var content sas.ReadyContent
		if err := json.Unmarshal(raw, &content); err != nil || content.FromDevice == "" {
			r.abort(ctx, sas.CancelUnexpectedMessage, "malformed ready")
			return
		}
		if r.ready {
			return
		}
		r.ready = true
		r.peerDevice = content.FromDevice
		r.peerMethods = content.Methods
		logger.Info("peer accepted verification request", "device_id", content.FromDevice)

	case sas.EventStart:
		r.handleStart(ctx, raw)

	case sas.EventAccept, sas.EventKey, sas.EventMAC:
		if r.exchange == nil {
			r.abort(ctx, sas.CancelUnexpectedMessage, eventType+" before start")
			return
		}
		r.exchange.handle(ctx, eventType, raw)

	case sas.EventDone:
		r.doneReceived = true
		logger.Info("peer finished verification")

	case sas.EventCancel:
		var content sas.CancelContent
		if json.Unmarshal(raw, &content) != nil {
			content.Code = sas.CancelUnexpectedMessage
		}
		r.markCancelled(content.Code, content.Reason)
		logger.Info("peer cancelled verification", "code", content.Code, "reason", content.Reason)

	default:
		logger.Debug("ignoring verification event")
	}
}

func (r *request) handleStart(ctx context.Context, raw json.RawMessage) {
	var content sas.StartContent
	if err := json.Unmarshal(raw, &content); err != nil {
		r.abort(ctx, sas.CancelUnexpectedMessage, "malformed start")
		return
	}
	if content.Method != sas.Method {
		r.abort(ctx, sas.CancelUnknownMethod, "only m.sas.v1 is supported")
		return
	}
	canonical, err := canonicaljson.Transform(raw)
	if err != nil {
		r.abort(ctx, sas.CancelUnexpectedMessage, "malformed start")
		return
	}
	received := receivedStart{content: content, canonical: canonical}

	switch {
	case r.exchange == nil:
		r.peerStart = &received
		if !r.ready {
			// A start implies the peer is ready.
			r.ready = true
			r.peerDevice = content.FromDevice
			r.peerMethods = []string{sas.Method}
		}
	case r.exchange.weStarted && !r.exchange.accepted:
		// Both sides started. The device with the lower ID keeps its start.
		_, ownDevice := r.engine.ownUser()
		if content.FromDevice >= ownDevice.String() {
			return
		}
		exchange, err := r.acceptorExchange(received)
		if err != nil {
			r.abort(ctx, sas.CancelUnknownMethod, "no common SAS parameters")
			return
		}
		r.exchange.release()
		r.exchange = exchange
	default:
		r.abort(ctx, sas.CancelUnexpectedMessage, "start after the exchange began")
	}
}

// send delivers one verification event to the peer device. Callers hold
// engine.mu.
func (r *request) send(ctx context.Context, eventType string, content any) error {
	return r.engine.session.SendToDevice(ctx, eventType, map[string]map[string]any{
		r.peerUser: {r.peerDevice: content},
	})
}

// abort cancels the flow towards the peer after a protocol error.
func (r *request) abort(ctx context.Context, code, reason string) {
	r.engine.logger.Warn("aborting verification",
		"flow_id", r.flowID,
		"code", code,
		"reason", reason,
	)
	if err := r.send(ctx, sas.EventCancel, sas.CancelContent{
		TransactionID: r.flowID,
		Code:          code,
		Reason:        reason,
	}); err != nil {
		r.engine.logger.Warn("sending verification cancel failed", "flow_id", r.flowID, "error", err)
	}
	r.markCancelled(code, reason)
}

func (r *request) markCancelled(code, reason string) {
	r.cancelled = true
	r.cancelCode = code
	r.cancelReason = reason
	r.release()
}

// release drops key material held by the flow.
func (r *request) release() {
	if r.exchange != nil {
		r.exchange.release()
	}
}

func canonicalContent(content any) ([]byte, error) {
	canonical, err := canonicaljson.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("matrixengine: %w", err)
	}
	return canonical, nil
}
