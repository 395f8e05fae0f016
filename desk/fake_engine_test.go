// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/secret"
)

// fakeConnector hands out fakeEngines. prepare, when set, configures
// each engine before it is returned.
type fakeConnector struct {
	mu         sync.Mutex
	connectErr error
	prepare    func(*fakeEngine)
	options    []engine.ConnectOptions
	engines    []*fakeEngine
}

func (c *fakeConnector) Connect(_ context.Context, options engine.ConnectOptions) (engine.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options = append(c.options, options)
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	fake := newFakeEngine(options.StoreDir)
	if c.prepare != nil {
		c.prepare(fake)
	}
	c.engines = append(c.engines, fake)
	return fake, nil
}

func (c *fakeConnector) engine(i int) *fakeEngine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engines[i]
}

func (c *fakeConnector) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.options)
}

// fakeEngine is an in-memory engine.Engine. One mutex guards the engine
// and every request and SAS it created.
type fakeEngine struct {
	mu       sync.Mutex
	storeDir string

	account   engine.Account
	loginErr  error
	syncErr   error
	logoutErr error
	loggedIn  bool
	closed    bool
	usernames []string
	syncs     int
	logouts   int

	rooms         []engine.RoomSummary
	pages         map[string]engine.Page // keyed by room ID and cursor
	messagesErr   error
	messagesCalls []engine.MessagesOptions
	sendErr       error
	sent          []string

	devices      []engine.Device
	devicesErr   error
	rejecting    map[string]bool
	requested    []string
	requests     map[string]*fakeRequest
	lookups      []string
	nextFlow     int
	newRequest   func(*fakeRequest)
	crossSigning engine.CrossSigningStatus
	crossErr     error
	recoverErr   error
	recoveredKey string
}

func newFakeEngine(storeDir string) *fakeEngine {
	return &fakeEngine{
		storeDir: storeDir,
		account: engine.Account{
			UserID:   ref.MustParseUserID("@alice:example.org"),
			DeviceID: mustDevice("OURDEVICE"),
		},
		pages:     make(map[string]engine.Page),
		rejecting: make(map[string]bool),
		requests:  make(map[string]*fakeRequest),
	}
}

func pageKey(roomID ref.RoomID, from string) string {
	return roomID.String() + "|" + from
}

func (e *fakeEngine) checkLoggedIn() error {
	if !e.loggedIn || e.closed {
		return engine.ErrNotLoggedIn
	}
	return nil
}

func (e *fakeEngine) Login(_ context.Context, username string, password *secret.Buffer) (engine.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.usernames = append(e.usernames, username)
	if e.loginErr != nil {
		return engine.Account{}, e.loginErr
	}
	if password.Len() == 0 {
		return engine.Account{}, errors.New("empty password")
	}
	// Stand in for the engine's on-disk state.
	if err := os.WriteFile(filepath.Join(e.storeDir, "state.db"), []byte("state"), 0o600); err != nil {
		return engine.Account{}, err
	}
	e.loggedIn = true
	return e.account, nil
}

func (e *fakeEngine) Sync(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return err
	}
	e.syncs++
	return e.syncErr
}

func (e *fakeEngine) Rooms(context.Context) ([]engine.RoomSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return nil, err
	}
	return append([]engine.RoomSummary(nil), e.rooms...), nil
}

func (e *fakeEngine) HasRoom(_ context.Context, roomID ref.RoomID) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return false, err
	}
	for _, room := range e.rooms {
		if room.RoomID == roomID {
			return true, nil
		}
	}
	return false, nil
}

func (e *fakeEngine) Messages(_ context.Context, roomID ref.RoomID, options engine.MessagesOptions) (engine.Page, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return engine.Page{}, err
	}
	e.messagesCalls = append(e.messagesCalls, options)
	if e.messagesErr != nil {
		return engine.Page{}, e.messagesErr
	}
	return e.pages[pageKey(roomID, options.From)], nil
}

func (e *fakeEngine) Send(_ context.Context, _ ref.RoomID, body string) (ref.EventID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return ref.EventID{}, err
	}
	if e.sendErr != nil {
		return ref.EventID{}, e.sendErr
	}
	e.sent = append(e.sent, body)
	return ref.MustParseEventID(fmt.Sprintf("$sent%d", len(e.sent))), nil
}

func (e *fakeEngine) Devices(context.Context) ([]engine.Device, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return nil, err
	}
	if e.devicesErr != nil {
		return nil, e.devicesErr
	}
	return append([]engine.Device(nil), e.devices...), nil
}

func (e *fakeEngine) RequestVerification(_ context.Context, device engine.Device) (engine.VerificationRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return nil, err
	}
	e.requested = append(e.requested, device.DeviceID.String())
	if e.rejecting[device.DeviceID.String()] {
		return nil, errors.New("to-device send rejected")
	}
	e.nextFlow++
	request := &fakeRequest{
		engine: e,
		flowID: fmt.Sprintf("flow-%d", e.nextFlow),
		sas:    &fakeSAS{},
	}
	request.sas.request = request
	if e.newRequest != nil {
		e.newRequest(request)
	}
	e.requests[request.flowID] = request
	return request, nil
}

func (e *fakeEngine) VerificationRequest(_ context.Context, flowID string) (engine.VerificationRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return nil, err
	}
	e.lookups = append(e.lookups, flowID)
	request, ok := e.requests[flowID]
	if !ok {
		return nil, engine.ErrVerificationNotFound
	}
	return request, nil
}

func (e *fakeEngine) CrossSigningStatus(context.Context) (engine.CrossSigningStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return engine.CrossSigningStatus{}, err
	}
	return e.crossSigning, e.crossErr
}

func (e *fakeEngine) Recover(_ context.Context, recoveryKey *secret.Buffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return err
	}
	e.recoveredKey = recoveryKey.String()
	return e.recoverErr
}

func (e *fakeEngine) Logout(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkLoggedIn(); err != nil {
		return err
	}
	e.logouts++
	return e.logoutErr
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// request returns the flow the engine created with flowID.
func (e *fakeEngine) request(flowID string) *fakeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requests[flowID]
}

// fakeRequest is a verification flow under the engine's mutex.
// onRefresh runs on every Refresh to script the peer.
type fakeRequest struct {
	engine    *fakeEngine
	flowID    string
	ready     bool
	done      bool
	cancelled bool
	cancelErr error
	startErr  error
	starts    int
	refreshes int
	onRefresh func(*fakeRequest)
	sas       *fakeSAS
}

func (r *fakeRequest) FlowID() string { return r.flowID }

func (r *fakeRequest) Refresh(context.Context) error {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	r.refreshes++
	if r.onRefresh != nil {
		r.onRefresh(r)
	}
	return nil
}

func (r *fakeRequest) IsReady() bool {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	return r.ready
}

func (r *fakeRequest) IsDone() bool {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	return r.done
}

func (r *fakeRequest) IsCancelled() bool {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	return r.cancelled
}

func (r *fakeRequest) StartSAS(context.Context) (engine.SAS, error) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	r.starts++
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.sas, nil
}

func (r *fakeRequest) Cancel(context.Context) error {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	if r.cancelErr != nil {
		return r.cancelErr
	}
	r.cancelled = true
	return nil
}

func (r *fakeRequest) state() (ready, done, cancelled bool) {
	r.engine.mu.Lock()
	defer r.engine.mu.Unlock()
	return r.ready, r.done, r.cancelled
}

// fakeSAS is the SAS exchange of a fakeRequest.
type fakeSAS struct {
	request    *fakeRequest
	emoji      []engine.Emoji
	accepts    int
	confirmed  bool
	confirmErr error
}

func (s *fakeSAS) Accept(context.Context) error {
	s.request.engine.mu.Lock()
	defer s.request.engine.mu.Unlock()
	s.accepts++
	return nil
}

func (s *fakeSAS) Emoji() ([]engine.Emoji, bool) {
	s.request.engine.mu.Lock()
	defer s.request.engine.mu.Unlock()
	if s.emoji == nil {
		return nil, false
	}
	return s.emoji, true
}

func (s *fakeSAS) Confirm(context.Context) error {
	s.request.engine.mu.Lock()
	defer s.request.engine.mu.Unlock()
	if s.confirmErr != nil {
		return s.confirmErr
	}
	s.confirmed = true
	return nil
}

var testEmoji = []engine.Emoji{
	{Symbol: "🐶", Description: "Dog"},
	{Symbol: "🔑", Description: "Key"},
	{Symbol: "🚀", Description: "Rocket"},
	{Symbol: "🎸", Description: "Guitar"},
	{Symbol: "🌍", Description: "Globe"},
	{Symbol: "⏰", Description: "Clock"},
	{Symbol: "📌", Description: "Pin"},
}

func mustDevice(raw string) ref.DeviceID {
	deviceID, err := ref.ParseDeviceID(raw)
	if err != nil {
		panic(err)
	}
	return deviceID
}
