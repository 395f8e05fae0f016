// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/halyard-chat/halyard/lib/canonicaljson"
	"github.com/halyard-chat/halyard/lib/clock"
	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/sas"
	"github.com/halyard-chat/halyard/lib/secret"
	"github.com/halyard-chat/halyard/lib/testutil"
	"github.com/halyard-chat/halyard/messaging"
)

const (
	testUser     = "@alice:example.org"
	testDevice   = "OURDEVICE"
	testPassword = "correct horse"
	testToken    = "syt_test_token"
	peerDevice   = "ELEMENT"
)

// sentEvent is one to-device event the engine sent to the peer.
type sentEvent struct {
	Type    string
	Content json.RawMessage
}

// fakeHomeserver is an in-memory homeserver for one account with one
// other device (the peer), enough to drive the engine end to end.
type fakeHomeserver struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	deviceKeys  map[string]json.RawMessage
	crossKeys   map[string]json.RawMessage // usage -> key object
	accountData map[string]json.RawMessage
	pending     []messaging.ToDeviceEvent
	sent        []sentEvent
	joined      map[string]json.RawMessage
	left        []string
	history     map[string][]messaging.RoomMessagesResponse
	sinceSeen   []string
	batch       int
	sentBodies  []string
	loggedOut   bool
	uploadFails bool

	peerSeed ed25519.PrivateKey
}

func newFakeHomeserver(t *testing.T) *fakeHomeserver {
	t.Helper()
	_, peerPrivate, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating peer key: %v", err)
	}
	hs := &fakeHomeserver{
		t:           t,
		deviceKeys:  make(map[string]json.RawMessage),
		crossKeys:   make(map[string]json.RawMessage),
		accountData: make(map[string]json.RawMessage),
		joined:      make(map[string]json.RawMessage),
		history:     make(map[string][]messaging.RoomMessagesResponse),
		peerSeed:    peerPrivate,
	}
	hs.deviceKeys[peerDevice] = hs.signedPeerKeys()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_matrix/client/versions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, messaging.ServerVersionsResponse{Versions: []string{"v1.11"}})
	})
	mux.HandleFunc("POST /_matrix/client/v3/login", hs.handleLogin)
	mux.HandleFunc("POST /_matrix/client/v3/logout", hs.authed(func(w http.ResponseWriter, r *http.Request) {
		hs.mu.Lock()
		hs.loggedOut = true
		hs.mu.Unlock()
		writeJSON(w, map[string]any{})
	}))
	mux.HandleFunc("POST /_matrix/client/v3/keys/upload", hs.authed(hs.handleKeysUpload))
	mux.HandleFunc("POST /_matrix/client/v3/keys/query", hs.authed(hs.handleKeysQuery))
	mux.HandleFunc("POST /_matrix/client/v3/keys/signatures/upload", hs.authed(hs.handleSignaturesUpload))
	mux.HandleFunc("GET /_matrix/client/v3/sync", hs.authed(hs.handleSync))
	mux.HandleFunc("PUT /_matrix/client/v3/sendToDevice/{type}/{txn}", hs.authed(hs.handleSendToDevice))
	mux.HandleFunc("GET /_matrix/client/v3/rooms/{room}/messages", hs.authed(hs.handleMessages))
	mux.HandleFunc("PUT /_matrix/client/v3/rooms/{room}/send/{type}/{txn}", hs.authed(hs.handleSend))
	mux.HandleFunc("GET /_matrix/client/v3/user/{user}/account_data/{type}", hs.authed(hs.handleAccountData))

	hs.server = httptest.NewServer(mux)
	t.Cleanup(hs.server.Close)
	return hs
}

func (hs *fakeHomeserver) authed(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hs.mu.Lock()
		loggedOut := hs.loggedOut
		hs.mu.Unlock()
		if r.Header.Get("Authorization") != "Bearer "+testToken || loggedOut {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, messaging.MatrixError{Code: messaging.ErrCodeUnknownToken, Message: "Unknown token"})
			return
		}
		handler(w, r)
	}
}

func (hs *fakeHomeserver) handleLogin(w http.ResponseWriter, r *http.Request) {
	var request messaging.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		hs.t.Errorf("decoding login: %v", err)
	}
	if request.Password != testPassword {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, messaging.MatrixError{Code: messaging.ErrCodeForbidden, Message: "Invalid password"})
		return
	}
	writeJSON(w, map[string]string{
		"user_id":      testUser,
		"device_id":    testDevice,
		"access_token": testToken,
	})
}

func (hs *fakeHomeserver) handleKeysUpload(w http.ResponseWriter, r *http.Request) {
	var request struct {
		DeviceKeys json.RawMessage `json:"device_keys"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		hs.t.Errorf("decoding keys upload: %v", err)
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	if hs.uploadFails {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, messaging.MatrixError{Code: messaging.ErrCodeInvalidParam, Message: "rejected"})
		return
	}
	hs.deviceKeys[testDevice] = request.DeviceKeys
	writeJSON(w, messaging.UploadKeysResponse{OneTimeKeyCounts: map[string]int{}})
}

func (hs *fakeHomeserver) handleKeysQuery(w http.ResponseWriter, r *http.Request) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	response := map[string]any{
		"device_keys": map[string]any{testUser: hs.deviceKeys},
	}
	for usage, field := range map[string]string{
		messaging.UsageMaster:      "master_keys",
		messaging.UsageSelfSigning: "self_signing_keys",
		messaging.UsageUserSigning: "user_signing_keys",
	} {
		if key, ok := hs.crossKeys[usage]; ok {
			response[field] = map[string]json.RawMessage{testUser: key}
		}
	}
	writeJSON(w, response)
}

func (hs *fakeHomeserver) handleSignaturesUpload(w http.ResponseWriter, r *http.Request) {
	var request map[string]map[string]messaging.DeviceKeys
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		hs.t.Errorf("decoding signatures upload: %v", err)
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	for deviceID, signed := range request[testUser] {
		var stored map[string]any
		if err := json.Unmarshal(hs.deviceKeys[deviceID], &stored); err != nil {
			hs.t.Errorf("stored keys for %s: %v", deviceID, err)
			continue
		}
		signatures, _ := stored["signatures"].(map[string]any)
		userSignatures, _ := signatures[testUser].(map[string]any)
		for keyID, signature := range signed.Signatures[testUser] {
			userSignatures[keyID] = signature
		}
		hs.deviceKeys[deviceID] = mustJSON(hs.t, stored)
	}
	writeJSON(w, map[string]any{})
}

func (hs *fakeHomeserver) handleSync(w http.ResponseWriter, r *http.Request) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.sinceSeen = append(hs.sinceSeen, r.URL.Query().Get("since"))
	hs.batch++

	leave := make(map[string]any, len(hs.left))
	for _, roomID := range hs.left {
		leave[roomID] = map[string]any{}
	}
	response := map[string]any{
		"next_batch": fmt.Sprintf("batch%d", hs.batch),
		"rooms":      map[string]any{"join": hs.joined, "leave": leave},
		"to_device":  map[string]any{"events": hs.pending},
	}
	hs.pending = nil
	hs.joined = make(map[string]json.RawMessage)
	hs.left = nil
	writeJSON(w, response)
}

func (hs *fakeHomeserver) handleSendToDevice(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Messages map[string]map[string]json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		hs.t.Errorf("decoding to-device: %v", err)
	}
	content, ok := request.Messages[testUser][peerDevice]
	if !ok {
		hs.t.Errorf("to-device %s not addressed to %s/%s: %v", r.PathValue("type"), testUser, peerDevice, request.Messages)
	}
	hs.mu.Lock()
	hs.sent = append(hs.sent, sentEvent{Type: r.PathValue("type"), Content: content})
	hs.mu.Unlock()
	writeJSON(w, map[string]any{})
}

func (hs *fakeHomeserver) handleMessages(w http.ResponseWriter, r *http.Request) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	roomID := r.PathValue("room")
	if r.URL.Query().Get("dir") != "b" {
		hs.t.Errorf("history must be fetched backward, got dir=%q", r.URL.Query().Get("dir"))
	}
	pages := hs.history[roomID]
	if len(pages) == 0 {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, messaging.MatrixError{Code: messaging.ErrCodeForbidden, Message: "not in room"})
		return
	}
	from := r.URL.Query().Get("from")
	for _, page := range pages {
		if page.Start == from || (from == "" && page.Start == "now") {
			writeJSON(w, page)
			return
		}
	}
	writeJSON(w, messaging.RoomMessagesResponse{Start: from})
}

func (hs *fakeHomeserver) handleSend(w http.ResponseWriter, r *http.Request) {
	var content messaging.MessageContent
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		hs.t.Errorf("decoding send: %v", err)
	}
	hs.mu.Lock()
	hs.sentBodies = append(hs.sentBodies, content.Body)
	count := len(hs.sentBodies)
	hs.mu.Unlock()
	writeJSON(w, map[string]string{"event_id": fmt.Sprintf("$sent%d", count)})
}

func (hs *fakeHomeserver) handleAccountData(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("user") != testUser {
		hs.t.Errorf("account data requested for %s", r.PathValue("user"))
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	data, ok := hs.accountData[r.PathValue("type")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "Account data not found"})
		return
	}
	w.Write(data)
}

// deliver queues a to-device event from the peer for the next sync.
func (hs *fakeHomeserver) deliver(eventType string, content any) {
	hs.deliverAs(testUser, eventType, mustJSON(hs.t, content))
}

func (hs *fakeHomeserver) deliverAs(sender, eventType string, content json.RawMessage) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.pending = append(hs.pending, messaging.ToDeviceEvent{
		Type:    eventType,
		Sender:  mustUser(sender),
		Content: content,
	})
}

// lastSent returns the most recent to-device event of eventType.
func (hs *fakeHomeserver) lastSent(eventType string) (json.RawMessage, bool) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	for i := len(hs.sent) - 1; i >= 0; i-- {
		if hs.sent[i].Type == eventType {
			return hs.sent[i].Content, true
		}
	}
	return nil, false
}

func (hs *fakeHomeserver) sentCount(eventType string) int {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	count := 0
	for _, event := range hs.sent {
		if event.Type == eventType {
			count++
		}
	}
	return count
}

// signedPeerKeys returns the peer device's self-signed key object.
func (hs *fakeHomeserver) signedPeerKeys() json.RawMessage {
	keys := map[string]any{
		"user_id":    testUser,
		"device_id":  peerDevice,
		"algorithms": deviceAlgorithms,
		"keys": map[string]string{
			"ed25519:" + peerDevice:    hs.peerEd25519(),
			"curve25519:" + peerDevice: sas.Encode(make([]byte, 32)),
		},
	}
	signingBytes, err := canonicaljson.SigningBytes(keys)
	if err != nil {
		hs.t.Fatalf("signing peer keys: %v", err)
	}
	keys["signatures"] = map[string]any{
		testUser: map[string]string{"ed25519:" + peerDevice: sas.Encode(ed25519.Sign(hs.peerSeed, signingBytes))},
	}
	keys["unsigned"] = map[string]string{"device_display_name": "Element Desktop"}
	return mustJSON(hs.t, keys)
}

func (hs *fakeHomeserver) peerEd25519() string {
	return sas.Encode(hs.peerSeed.Public().(ed25519.PublicKey))
}

// joinRoom makes the next sync report roomID as joined with the given
// state events.
func (hs *fakeHomeserver) joinRoom(roomID string, state ...map[string]any) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.joined[roomID] = mustJSON(hs.t, map[string]any{
		"state":    map[string]any{"events": state},
		"timeline": map[string]any{"events": []any{}},
	})
}

func stateEvent(eventType string, content map[string]string) map[string]any {
	return map[string]any{
		"type":      eventType,
		"state_key": "",
		"sender":    testUser,
		"event_id":  testutil.UniqueID("$state-" + eventType),
		"content":   content,
	}
}

// loggedInEngine connects to hs and logs in.
func loggedInEngine(t *testing.T, hs *fakeHomeserver, connector Connector) *Engine {
	t.Helper()
	if connector.WorkFactor == 0 {
		connector.WorkFactor = 10
	}
	if connector.Clock == nil {
		connector.Clock = clock.Fake(time.UnixMilli(1700000000000))
	}
	ctx := context.Background()
	connected, err := connector.Connect(ctx, engine.ConnectOptions{
		HomeserverURL: hs.server.URL,
		StoreDir:      t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	e := connected.(*Engine)
	t.Cleanup(func() { e.Close() })

	password := mustSecret(t, testPassword)
	account, err := e.Login(ctx, "alice", password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if account.UserID.String() != testUser || account.DeviceID.String() != testDevice {
		t.Fatalf("Login account = %+v", account)
	}
	return e
}

func mustSecret(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("secret.NewFromString: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func mustJSON(t *testing.T, value any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("json.Marshal: %v", err)
	}
	return data
}

func mustUser(raw string) ref.UserID {
	return ref.MustParseUserID(raw)
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(value)
}
