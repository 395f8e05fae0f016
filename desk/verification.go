// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"errors"

	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/poll"
)

// VerificationState is the position of the tracked flow in the
// handshake: Idle → Requested → Ready → SasStarted → Confirmed → Done,
// with Cancelled reachable from every state before Done.
type VerificationState int

const (
	Idle VerificationState = iota
	Requested
	Ready
	SasStarted
	Confirmed
	Done
	Cancelled
)

func (s VerificationState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requested:
		return "requested"
	case Ready:
		return "ready"
	case SasStarted:
		return "sas_started"
	case Confirmed:
		return "confirmed"
	case Done:
		return "done"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// verificationFlow is the tracked flow. id is empty when no flow is
// active; state then holds how the last one ended (Idle, Done or
// Cancelled).
type verificationFlow struct {
	id     string
	state  VerificationState
	device engine.Device
}

func (f verificationFlow) active() bool { return f.id != "" }

// VerificationStatus is the account-wide trust state of this device.
type VerificationStatus struct {
	NeedsVerification bool
	IsVerified        bool
}

// Verification returns the tracked flow ID (empty when none is active)
// and its state.
func (m *Manager) Verification() (string, VerificationState) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flow.id, m.flow.state
}

// CheckVerificationStatus reports whether this device is cross-signed.
// It reflects the account's cross-signing state, not the tracked flow.
func (m *Manager) CheckVerificationStatus(ctx context.Context) (VerificationStatus, error) {
	session, err := m.current()
	if err != nil {
		return VerificationStatus{}, err
	}
	status, err := session.engine.CrossSigningStatus(ctx)
	if errors.Is(err, engine.ErrCrossSigningUnavailable) {
		return VerificationStatus{}, wrapError(CrossSigningUnavailable, "Cross-signing is not set up for this account", err)
	}
	if err != nil {
		return VerificationStatus{}, engineError(VerificationFailed, "Failed to read cross-signing status", err)
	}
	complete := status.IsComplete()
	return VerificationStatus{NeedsVerification: !complete, IsVerified: complete}, nil
}

// RequestVerification sends a verification request to the account's
// other devices in turn and tracks the first one that takes it. A flow
// tracked before is cancelled once the new one is tracked; if that
// cancel fails the old flow is only forgotten. When no device takes
// the request the tracked flow is left as it was.
func (m *Manager) RequestVerification(ctx context.Context) (engine.Device, error) {
	session, err := m.current()
	if err != nil {
		return engine.Device{}, err
	}
	if err := session.engine.Sync(ctx); err != nil {
		return engine.Device{}, engineError(SyncFailed, "Sync failed", err)
	}
	devices, err := session.engine.Devices(ctx)
	if err != nil {
		return engine.Device{}, engineError(SyncFailed, "Failed to list devices", err)
	}
	var candidates []engine.Device
	for _, device := range devices {
		if device.DeviceID != session.info.DeviceID {
			candidates = append(candidates, device)
		}
	}
	if len(candidates) == 0 {
		return engine.Device{}, newError(NoOtherDevices, "No other devices found. Make sure you're logged in on Element.")
	}

	for _, device := range candidates {
		request, err := session.engine.RequestVerification(ctx, device)
		if err != nil {
			m.logger.Info("device did not take the verification request",
				"device_id", device.DeviceID,
				"error", err,
			)
			continue
		}
		m.mu.Lock()
		if m.session != session {
			m.mu.Unlock()
			return engine.Device{}, newError(NotLoggedIn, "Not logged in")
		}
		previous := m.flow
		m.flow = verificationFlow{id: request.FlowID(), state: Requested, device: device}
		m.mu.Unlock()
		m.logger.Info("verification requested",
			"flow_id", request.FlowID(),
			"device_id", device.DeviceID,
			"device_name", device.DisplayName,
		)
		if previous.active() && previous.id != request.FlowID() {
			m.cancelQuietly(ctx, session, previous.id)
		}
		return device, nil
	}
	return engine.Device{}, newError(NoDeviceAccepted, "Could not send verification request to any device")
}

// cancelQuietly cancels a superseded flow. Failures are logged: the
// peer times the flow out on its own.
func (m *Manager) cancelQuietly(ctx context.Context, session *activeSession, flowID string) {
	request, err := session.engine.VerificationRequest(ctx, flowID)
	if err == nil {
		err = request.Cancel(ctx)
	}
	if err != nil && !errors.Is(err, engine.ErrVerificationNotFound) {
		m.logger.Warn("cancelling superseded verification failed", "flow_id", flowID, "error", err)
		return
	}
	m.logger.Info("superseded verification cancelled", "flow_id", flowID)
}

// trackedFlow returns the session and the active flow, or the error for
// a missing one.
func (m *Manager) trackedFlow() (*activeSession, verificationFlow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, verificationFlow{}, newError(NotLoggedIn, "Not logged in")
	}
	if !m.flow.active() {
		return nil, verificationFlow{}, newError(NoActiveVerification, "No active verification")
	}
	return m.session, m.flow, nil
}

// setFlowState moves the flow to state if it is still the tracked one.
func (m *Manager) setFlowState(session *activeSession, flowID string, state VerificationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != session || m.flow.id != flowID {
		return
	}
	m.flow.state = state
}

// endFlow stops tracking flowID, recording state as the outcome.
func (m *Manager) endFlow(session *activeSession, flowID string, state VerificationState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != session || m.flow.id != flowID {
		return
	}
	m.flow = verificationFlow{state: state}
}

// lookupFlow fetches the engine's handle of the tracked flow. A flow
// the engine no longer knows stops being tracked.
func (m *Manager) lookupFlow(ctx context.Context, session *activeSession, flowID string) (engine.VerificationRequest, error) {
	request, err := session.engine.VerificationRequest(ctx, flowID)
	if errors.Is(err, engine.ErrVerificationNotFound) {
		m.endFlow(session, flowID, Idle)
		return nil, wrapError(VerificationNotFound, "Verification not found", err)
	}
	if err != nil {
		return nil, engineError(SyncFailed, "Failed to refresh verification", err)
	}
	if request.IsCancelled() {
		m.endFlow(session, flowID, Cancelled)
		return nil, newError(VerificationCancelled, "Verification was cancelled")
	}
	return request, nil
}

// GetVerificationEmoji starts or resumes the SAS exchange of the
// tracked flow and returns its emoji. WaitingForPeer and EmojiNotReady
// are transient; callers poll until the emoji or a terminal error.
func (m *Manager) GetVerificationEmoji(ctx context.Context) ([]engine.Emoji, error) {
	session, flow, err := m.trackedFlow()
	if err != nil {
		return nil, err
	}
	if flow.state == Confirmed {
		return nil, newError(InvalidTransition, "Verification was already confirmed")
	}
	request, err := m.lookupFlow(ctx, session, flow.id)
	if err != nil {
		return nil, err
	}
	if !request.IsReady() {
		return nil, newError(WaitingForPeer, "Waiting for other device to accept...")
	}
	if flow.state < Ready {
		m.setFlowState(session, flow.id, Ready)
	}

	sas, err := m.startSAS(ctx, session, flow.id, request)
	if err != nil {
		return nil, err
	}

	if emoji, ok := sas.Emoji(); ok {
		return emoji, nil
	}
	var emoji []engine.Emoji
	_, err = poll.Until(ctx, m.clock, m.emojiPolicy, func(ctx context.Context) (bool, error) {
		if err := request.Refresh(ctx); err != nil {
			return false, err
		}
		if request.IsCancelled() {
			return true, nil
		}
		var ok bool
		emoji, ok = sas.Emoji()
		return ok, nil
	})
	if err != nil {
		return nil, engineError(SyncFailed, "Failed to refresh verification", err)
	}
	if request.IsCancelled() {
		m.endFlow(session, flow.id, Cancelled)
		return nil, newError(VerificationCancelled, "Verification was cancelled")
	}
	if emoji == nil {
		return nil, newError(EmojiNotReady, "Emoji not ready yet, keep polling...")
	}
	return emoji, nil
}

// startSAS obtains the SAS exchange and accepts it locally. Both steps
// are idempotent in the engine.
func (m *Manager) startSAS(ctx context.Context, session *activeSession, flowID string, request engine.VerificationRequest) (engine.SAS, error) {
	sas, err := request.StartSAS(ctx)
	if errors.Is(err, engine.ErrSASUnsupported) {
		return nil, wrapError(SasUnavailable, "The other device does not support emoji verification", err)
	}
	if err != nil {
		return nil, engineError(VerificationFailed, "Failed to start emoji verification", err)
	}
	if err := sas.Accept(ctx); err != nil {
		return nil, engineError(VerificationFailed, "Failed to accept emoji verification", err)
	}
	m.setFlowState(session, flowID, SasStarted)
	return sas, nil
}

// ConfirmVerification confirms that the emoji match and waits a bounded
// time for the peer to finish. It reports whether completion was
// observed. The flow stops being tracked either way; when completion
// was not observed, callers check CheckVerificationStatus later rather
// than confirming again.
func (m *Manager) ConfirmVerification(ctx context.Context) (bool, error) {
	session, flow, err := m.trackedFlow()
	if err != nil {
		return false, err
	}
	if flow.state != SasStarted {
		return false, newError(InvalidTransition, "Emoji have not been shown for this verification yet")
	}
	request, err := m.lookupFlow(ctx, session, flow.id)
	if err != nil {
		return false, err
	}
	sas, err := m.startSAS(ctx, session, flow.id, request)
	if err != nil {
		return false, err
	}
	if err := sas.Confirm(ctx); err != nil {
		return false, engineError(VerificationFailed, "Failed to confirm verification", err)
	}
	m.setFlowState(session, flow.id, Confirmed)

	outcome := Idle
	defer func() { m.endFlow(session, flow.id, outcome) }()

	done, err := poll.Until(ctx, m.clock, m.completionPolicy, func(ctx context.Context) (bool, error) {
		if err := request.Refresh(ctx); err != nil {
			return false, err
		}
		return request.IsDone() || request.IsCancelled(), nil
	})
	if err != nil {
		return false, engineError(SyncFailed, "Failed to refresh verification", err)
	}
	if request.IsCancelled() {
		outcome = Cancelled
		return false, newError(VerificationCancelled, "Verification was cancelled")
	}
	if !done {
		m.logger.Info("verification confirmed; completion not observed", "flow_id", flow.id)
		return false, nil
	}

	outcome = Done
	// Pull the signatures the peer uploaded.
	if err := session.engine.Sync(ctx); err != nil {
		m.logger.Warn("sync after verification failed", "error", err)
	}
	m.logger.Info("verification complete", "flow_id", flow.id, "device_id", flow.device.DeviceID)
	return true, nil
}

// CancelVerification cancels the tracked flow. The flow stays tracked
// when the cancel could not be sent, so the call can be retried.
func (m *Manager) CancelVerification(ctx context.Context) error {
	session, flow, err := m.trackedFlow()
	if err != nil {
		return err
	}
	request, err := session.engine.VerificationRequest(ctx, flow.id)
	if errors.Is(err, engine.ErrVerificationNotFound) {
		m.endFlow(session, flow.id, Idle)
		return wrapError(VerificationNotFound, "Verification not found", err)
	}
	if err != nil {
		return engineError(SyncFailed, "Failed to refresh verification", err)
	}
	if err := request.Cancel(ctx); err != nil {
		return engineError(VerificationFailed, "Failed to cancel verification", err)
	}
	m.endFlow(session, flow.id, Cancelled)
	m.logger.Info("verification cancelled", "flow_id", flow.id)
	return nil
}
