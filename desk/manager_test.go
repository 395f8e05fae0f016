// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package desk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/halyard-chat/halyard/lib/clock"
	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/poll"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/secret"
)

const (
	testHomeserver = "https://example.org"
	testUsername   = "@alice:example.org"
	testPassword   = "pw"
)

type testManager struct {
	*Manager
	connector *fakeConnector
	dataRoot  string
	clock     *clock.FakeClock
}

// newTestManager builds a Manager whose polling policies do not sleep.
func newTestManager(t *testing.T) *testManager {
	t.Helper()
	connector := &fakeConnector{}
	dataRoot := t.TempDir()
	fakeClock := clock.Fake(time.Unix(1700000000, 0))
	manager, err := NewManager(Config{
		DataRoot:         dataRoot,
		Connector:        connector,
		Clock:            fakeClock,
		EmojiPolicy:      poll.Policy{Interval: 0, MaxAttempts: 1},
		CompletionPolicy: poll.Policy{Interval: 0, MaxAttempts: 5},
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &testManager{Manager: manager, connector: connector, dataRoot: dataRoot, clock: fakeClock}
}

func testSecret(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("secret.NewFromString: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// login logs in as the default account and returns its engine.
func (m *testManager) login(t *testing.T) *fakeEngine {
	t.Helper()
	if _, err := m.Login(context.Background(), testHomeserver, testUsername, testSecret(t, testPassword)); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return m.connector.engine(m.connector.connects() - 1)
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("got nil error, want %s", kind)
	}
	if !IsKind(err, kind) {
		t.Fatalf("got %v (kind %q), want kind %s", err, KindOf(err), kind)
	}
}

func dirEntries(t *testing.T, path string) []string {
	t.Helper()
	entries, err := os.ReadDir(path)
	if err != nil {
		t.Fatalf("ReadDir(%s): %v", path, err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestNewManagerValidatesConfig(t *testing.T) {
	if _, err := NewManager(Config{Connector: &fakeConnector{}}); err == nil {
		t.Error("missing DataRoot accepted")
	}
	if _, err := NewManager(Config{DataRoot: t.TempDir()}); err == nil {
		t.Error("missing Connector accepted")
	}
	_, err := NewManager(Config{
		DataRoot:    t.TempDir(),
		Connector:   &fakeConnector{},
		EmojiPolicy: poll.Policy{Interval: -time.Second, MaxAttempts: 1},
	})
	if err == nil {
		t.Error("negative poll interval accepted")
	}
}

func TestLoginRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name       string
		homeserver string
		username   string
		password   string
		message    string
	}{
		{"empty homeserver", "", testUsername, testPassword, "All fields are required"},
		{"blank username", testHomeserver, "   ", testPassword, "All fields are required"},
		{"empty password", testHomeserver, testUsername, "", "All fields are required"},
		{"missing scheme", "example.org", testUsername, testPassword, "Homeserver URL must start with http:// or https://"},
		{"other scheme", "ftp://example.org", testUsername, testPassword, "Homeserver URL must start with http:// or https://"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := newTestManager(t)
			var password *secret.Buffer
			if test.password != "" {
				password = testSecret(t, test.password)
			}
			_, err := m.Login(context.Background(), test.homeserver, test.username, password)
			requireKind(t, err, InvalidInput)
			if err.Error() != test.message {
				t.Errorf("message = %q, want %q", err.Error(), test.message)
			}
			if entries := dirEntries(t, m.dataRoot); len(entries) != 0 {
				t.Errorf("data root has %q after rejected login", entries)
			}
			if m.connector.connects() != 0 {
				t.Error("connector called for invalid input")
			}
		})
	}
}

func TestLoginInstallsSession(t *testing.T) {
	m := newTestManager(t)
	info, err := m.Login(context.Background(), "  "+testHomeserver+" ", " "+testUsername+"\n", testSecret(t, testPassword))
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	fake := m.connector.engine(0)

	wantDir := filepath.Join(m.dataRoot, "alice_example.org")
	if info.SessionDir != wantDir {
		t.Errorf("SessionDir = %q, want %q", info.SessionDir, wantDir)
	}
	if info.HomeserverURL != testHomeserver {
		t.Errorf("HomeserverURL = %q", info.HomeserverURL)
	}
	if info.UserID.String() != testUsername || info.DeviceID.String() != "OURDEVICE" {
		t.Errorf("account = %s/%s", info.UserID, info.DeviceID)
	}
	options := m.connector.options[0]
	if options.HomeserverURL != testHomeserver || options.StoreDir != wantDir {
		t.Errorf("connect options = %+v", options)
	}
	if len(fake.usernames) != 1 || fake.usernames[0] != testUsername {
		t.Errorf("engine login usernames = %q", fake.usernames)
	}
	if fake.syncs != 1 {
		t.Errorf("initial syncs = %d, want 1", fake.syncs)
	}

	userID, ok := m.CheckSession()
	if !ok || userID.String() != testUsername {
		t.Errorf("CheckSession = %s, %v", userID, ok)
	}
	if current, ok := m.Session(); !ok || current != info {
		t.Errorf("Session = %+v, %v", current, ok)
	}
}

func TestReloginStartsFromEmptyDirectory(t *testing.T) {
	m := newTestManager(t)
	first := m.login(t)
	info, _ := m.Session()

	residue := filepath.Join(info.SessionDir, "leftover")
	if err := os.WriteFile(residue, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	// The directory must be empty when the second engine connects.
	m.connector.prepare = func(fake *fakeEngine) {
		if entries := dirEntries(t, fake.storeDir); len(entries) != 0 {
			t.Errorf("session directory not empty at connect: %q", entries)
		}
	}
	second := m.login(t)

	if _, err := os.Stat(residue); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("residue survived re-login: %v", err)
	}
	if !first.isClosed() {
		t.Error("first engine not closed")
	}
	if second.isClosed() {
		t.Error("second engine closed")
	}
	if _, ok := m.CheckSession(); !ok {
		t.Error("no session after re-login")
	}
}

func TestLoginFailureInstallsNothing(t *testing.T) {
	stages := []struct {
		name    string
		arrange func(*fakeConnector)
	}{
		{"connect", func(c *fakeConnector) { c.connectErr = errors.New("connection refused") }},
		{"authenticate", func(c *fakeConnector) {
			c.prepare = func(fake *fakeEngine) { fake.loginErr = errors.New("M_FORBIDDEN") }
		}},
		{"initial sync", func(c *fakeConnector) {
			c.prepare = func(fake *fakeEngine) { fake.syncErr = errors.New("sync timed out") }
		}},
	}
	for _, stage := range stages {
		t.Run(stage.name, func(t *testing.T) {
			m := newTestManager(t)
			stage.arrange(m.connector)

			_, err := m.Login(context.Background(), testHomeserver, testUsername, testSecret(t, testPassword))
			requireKind(t, err, LoginFailed)
			if _, ok := m.CheckSession(); ok {
				t.Error("session installed after failed login")
			}
			if entries := dirEntries(t, m.dataRoot); len(entries) != 0 {
				t.Errorf("data root has %q after failed login", entries)
			}
			if len(m.connector.engines) == 1 && !m.connector.engine(0).isClosed() {
				t.Error("engine of failed login left open")
			}
		})
	}
}

func TestLoginAsOtherAccountRetiresPrevious(t *testing.T) {
	m := newTestManager(t)
	alice := m.login(t)
	aliceInfo, _ := m.Session()

	m.connector.prepare = func(fake *fakeEngine) {
		fake.account.UserID = ref.MustParseUserID("@bob:example.org")
	}
	if _, err := m.Login(context.Background(), testHomeserver, "@bob:example.org", testSecret(t, "hunter2")); err != nil {
		t.Fatalf("Login bob: %v", err)
	}

	userID, _ := m.CheckSession()
	if userID.String() != "@bob:example.org" {
		t.Errorf("session user = %s", userID)
	}
	if !alice.isClosed() {
		t.Error("previous engine not closed")
	}
	if _, err := os.Stat(aliceInfo.SessionDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("previous session directory survived: %v", err)
	}
	if entries := dirEntries(t, m.dataRoot); len(entries) != 1 || entries[0] != "bob_example.org" {
		t.Errorf("data root = %q", entries)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	m := newTestManager(t)
	fake := m.login(t)
	fake.devices = []engine.Device{{DeviceID: mustDevice("OURDEVICE")}, {DeviceID: mustDevice("PHONE")}}
	if _, err := m.RequestVerification(context.Background()); err != nil {
		t.Fatalf("RequestVerification: %v", err)
	}
	info, _ := m.Session()

	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if fake.logouts != 1 {
		t.Errorf("server logouts = %d", fake.logouts)
	}
	if !fake.isClosed() {
		t.Error("engine not closed")
	}
	if _, ok := m.CheckSession(); ok {
		t.Error("session survived logout")
	}
	if flowID, _ := m.Verification(); flowID != "" {
		t.Errorf("flow %q survived logout", flowID)
	}
	if _, err := os.Stat(info.SessionDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("session directory survived logout: %v", err)
	}
}

func TestLogoutServerFailureStillClears(t *testing.T) {
	m := newTestManager(t)
	fake := m.login(t)
	serverErr := errors.New("homeserver unavailable")
	fake.logoutErr = serverErr
	fake.devices = []engine.Device{{DeviceID: mustDevice("PHONE")}}
	if _, err := m.RequestVerification(context.Background()); err != nil {
		t.Fatalf("RequestVerification: %v", err)
	}
	info, _ := m.Session()

	err := m.Logout(context.Background())
	requireKind(t, err, LogoutIncomplete)
	if !errors.Is(err, serverErr) {
		t.Errorf("Logout error %v does not wrap the server error", err)
	}
	if _, ok := m.CheckSession(); ok {
		t.Error("session survived logout")
	}
	if flowID, _ := m.Verification(); flowID != "" {
		t.Errorf("flow %q survived logout", flowID)
	}
	if _, err := os.Stat(info.SessionDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("session directory survived logout: %v", err)
	}
}

func TestLogoutWhenLoggedOut(t *testing.T) {
	m := newTestManager(t)
	if err := m.Logout(context.Background()); err != nil {
		t.Errorf("Logout while logged out: %v", err)
	}
}

func TestCloseKeepsServerSession(t *testing.T) {
	m := newTestManager(t)
	fake := m.login(t)
	info, _ := m.Session()

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fake.isClosed() {
		t.Error("engine not closed")
	}
	if fake.logouts != 0 {
		t.Errorf("Close logged out %d times", fake.logouts)
	}
	if _, ok := m.CheckSession(); ok {
		t.Error("session still installed after Close")
	}
	if _, err := os.Stat(info.SessionDir); err != nil {
		t.Errorf("session directory removed: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOperationsRequireSession(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	operations := map[string]func() error{
		"Sync": func() error { return m.Sync(ctx) },
		"ListRooms": func() error {
			_, err := m.ListRooms(ctx)
			return err
		},
		"FetchMessages": func() error {
			_, err := m.FetchMessages(ctx, "!room:example.org", 20, "")
			return err
		},
		"SendMessage": func() error {
			_, err := m.SendMessage(ctx, "!room:example.org", "hi")
			return err
		},
		"RequestVerification": func() error {
			_, err := m.RequestVerification(ctx)
			return err
		},
		"GetVerificationEmoji": func() error {
			_, err := m.GetVerificationEmoji(ctx)
			return err
		},
		"ConfirmVerification": func() error {
			_, err := m.ConfirmVerification(ctx)
			return err
		},
		"CancelVerification": func() error { return m.CancelVerification(ctx) },
		"CheckVerificationStatus": func() error {
			_, err := m.CheckVerificationStatus(ctx)
			return err
		},
		"VerifyWithRecoveryKey": func() error { return m.VerifyWithRecoveryKey(ctx, testSecret(t, "EsT0 key")) },
	}
	for name, operation := range operations {
		t.Run(name, func(t *testing.T) {
			requireKind(t, operation(), NotLoggedIn)
		})
	}
}

func TestEngineLosingLoginReportsNotLoggedIn(t *testing.T) {
	m := newTestManager(t)
	fake := m.login(t)
	fake.Close()
	requireKind(t, m.Sync(context.Background()), NotLoggedIn)
}

func TestSyncFailure(t *testing.T) {
	m := newTestManager(t)
	fake := m.login(t)
	fake.syncErr = errors.New("gateway timeout")
	requireKind(t, m.Sync(context.Background()), SyncFailed)
}

func TestListRoomsFallsBackToRoomID(t *testing.T) {
	m := newTestManager(t)
	fake := m.login(t)
	fake.rooms = []engine.RoomSummary{
		{RoomID: ref.MustParseRoomID("!named:example.org"), Name: "General", Topic: "Chatter"},
		{RoomID: ref.MustParseRoomID("!bare:example.org")},
	}
	rooms, err := m.ListRooms(context.Background())
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	want := []RoomSummary{
		{RoomID: "!named:example.org", Name: "General", Topic: "Chatter"},
		{RoomID: "!bare:example.org", Name: "!bare:example.org"},
	}
	if len(rooms) != len(want) {
		t.Fatalf("rooms = %+v", rooms)
	}
	for i := range want {
		if rooms[i] != want[i] {
			t.Errorf("rooms[%d] = %+v, want %+v", i, rooms[i], want[i])
		}
	}
}

func TestSendMessage(t *testing.T) {
	m := newTestManager(t)
	fake := m.login(t)
	fake.rooms = []engine.RoomSummary{{RoomID: ref.MustParseRoomID("!room:example.org")}}
	ctx := context.Background()

	eventID, err := m.SendMessage(ctx, " !room:example.org ", "  hello  ")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if eventID.String() != "$sent1" || len(fake.sent) != 1 || fake.sent[0] != "hello" {
		t.Errorf("sent %q as %s", fake.sent, eventID)
	}

	_, err = m.SendMessage(ctx, "!room:example.org", "   ")
	requireKind(t, err, InvalidInput)
	_, err = m.SendMessage(ctx, "general", "hi")
	requireKind(t, err, InvalidRoom)
	_, err = m.SendMessage(ctx, "!elsewhere:example.org", "hi")
	requireKind(t, err, RoomNotFound)

	fake.sendErr = errors.New("rate limited")
	_, err = m.SendMessage(ctx, "!room:example.org", "hi")
	requireKind(t, err, SendFailed)
}

func TestVerifyWithRecoveryKey(t *testing.T) {
	m := newTestManager(t)
	fake := m.login(t)
	ctx := context.Background()

	requireKind(t, m.VerifyWithRecoveryKey(ctx, testSecret(t, "  \t")), InvalidInput)
	requireKind(t, m.VerifyWithRecoveryKey(ctx, nil), InvalidInput)

	if err := m.VerifyWithRecoveryKey(ctx, testSecret(t, "EsTc abcd")); err != nil {
		t.Fatalf("VerifyWithRecoveryKey: %v", err)
	}
	if fake.recoveredKey != "EsTc abcd" {
		t.Errorf("engine got key %q", fake.recoveredKey)
	}

	fake.recoverErr = errors.New("wrong key")
	requireKind(t, m.VerifyWithRecoveryKey(ctx, testSecret(t, "EsTc abcd")), RecoveryFailed)
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	err := wrapError(SyncFailed, "Sync failed", cause)
	if err.Error() != "Sync failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("cause not reachable")
	}
	if !IsKind(err, SyncFailed) || IsKind(err, LoginFailed) {
		t.Error("kind matching wrong")
	}
	if IsTransient(err) {
		t.Error("SyncFailed reported transient")
	}
	if !IsTransient(newError(WaitingForPeer, "wait")) || !IsTransient(newError(EmojiNotReady, "wait")) {
		t.Error("WaitingForPeer and EmojiNotReady must be transient")
	}
	for _, kind := range knownKinds {
		parsed, ok := ParseKind(string(kind))
		if !ok || parsed != kind {
			t.Errorf("ParseKind(%q) = %q, %v", kind, parsed, ok)
		}
	}
	if _, ok := ParseKind("Bogus"); ok {
		t.Error("ParseKind accepted an unknown kind")
	}
}

func TestWireMessageRoundTrip(t *testing.T) {
	sent := wrapError(SendFailed, "Failed to send message", errors.New("M_FORBIDDEN: not in room"))
	message := WireMessage(sent)
	if message != "SendFailed: Failed to send message: M_FORBIDDEN: not in room" {
		t.Fatalf("WireMessage = %q", message)
	}
	received, ok := FromWire(message)
	if !ok {
		t.Fatalf("FromWire(%q) rejected", message)
	}
	if received.Kind != SendFailed || received.Message != "Failed to send message: M_FORBIDDEN: not in room" {
		t.Errorf("FromWire = %+v", received)
	}

	if got := WireMessage(errors.New("unknown action")); got != "unknown action" {
		t.Errorf("plain error formatted as %q", got)
	}
	for _, message := range []string{"unknown action \"x\"", "Bogus: text", "NotLoggedIn"} {
		if _, ok := FromWire(message); ok {
			t.Errorf("FromWire(%q) accepted", message)
		}
	}
}

func TestSanitizeAccount(t *testing.T) {
	for input, want := range map[string]string{
		"@alice:example.org": "alice_example.org",
		"bob":                "bob",
		`a/b\c:d`:            "a_b_c_d",
	} {
		if got := sanitizeAccount(input); got != want {
			t.Errorf("sanitizeAccount(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := sessionDirPath(t.TempDir(), "@"); err == nil {
		t.Error("account mapping to an empty name accepted")
	}
}

func TestSessionDirReleasedUnlessCommitted(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "alice")

	dir, err := acquireSessionDir(path)
	if err != nil {
		t.Fatalf("acquireSessionDir: %v", err)
	}
	if err := dir.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("uncommitted directory survived: %v", err)
	}

	dir, err = acquireSessionDir(path)
	if err != nil {
		t.Fatalf("acquireSessionDir: %v", err)
	}
	dir.Commit()
	if err := dir.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("committed directory removed: %v", err)
	}
}
