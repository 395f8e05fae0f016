// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/halyard-chat/halyard/lib/clock"
	"github.com/halyard-chat/halyard/lib/credstore"
	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/secret"
	"github.com/halyard-chat/halyard/lib/statestore"
	"github.com/halyard-chat/halyard/messaging"
)

// Connector builds engines against real homeservers. The zero value is
// usable.
type Connector struct {
	// HTTPClient carries every homeserver request. Nil uses
	// http.DefaultClient.
	HTTPClient *http.Client

	// DeviceDisplayName labels devices created by Login.
	DeviceDisplayName string

	// Decryptor handles encrypted room events. Nil uses KeylessDecryptor.
	Decryptor Decryptor

	// Clock stamps verification requests. Nil uses the real clock.
	Clock clock.Clock

	// WorkFactor is the scrypt work factor protecting the sealed
	// identity. Zero selects the credstore default.
	WorkFactor int
}

var _ engine.Connector = Connector{}

// Connect probes the homeserver and opens the state database in
// options.StoreDir. The returned engine is not logged in.
func (c Connector) Connect(ctx context.Context, options engine.ConnectOptions) (engine.Engine, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if options.StoreDir == "" {
		return nil, errors.New("matrixengine: store directory is required")
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL:     options.HomeserverURL,
		HTTPClient:        c.HTTPClient,
		DeviceDisplayName: c.DeviceDisplayName,
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("matrixengine: %w", err)
	}
	versions, err := client.ServerVersions(ctx)
	if err != nil {
		return nil, fmt.Errorf("matrixengine: homeserver %s unreachable: %w", client.HomeserverURL(), err)
	}
	logger.Debug("homeserver reachable",
		"homeserver", client.HomeserverURL(),
		"versions", versions.Versions,
	)

	store, err := statestore.Open(options.StoreDir, logger)
	if err != nil {
		return nil, fmt.Errorf("matrixengine: %w", err)
	}

	decryptor := c.Decryptor
	if decryptor == nil {
		decryptor = KeylessDecryptor{}
	}
	engineClock := c.Clock
	if engineClock == nil {
		engineClock = clock.Real()
	}

	return &Engine{
		client:     client,
		storeDir:   options.StoreDir,
		store:      store,
		decryptor:  decryptor,
		clock:      engineClock,
		workFactor: c.WorkFactor,
		logger:     logger,
		flows:      make(map[string]*request),
	}, nil
}

// Engine is one homeserver connection bound to one session directory.
// It is safe for concurrent use.
type Engine struct {
	client     *messaging.Client
	storeDir   string
	store      *statestore.Store
	decryptor  Decryptor
	clock      clock.Clock
	workFactor int
	logger     *slog.Logger

	// syncMu serializes sync passes so each one resumes from the token
	// the previous one stored. Lock order: syncMu before mu.
	syncMu sync.Mutex

	// mu guards the fields below and every verification flow.
	mu       sync.Mutex
	session  *messaging.Session
	identity *deviceIdentity
	creds    *credstore.Store
	flows    map[string]*request
	closed   bool
}

var _ engine.Engine = (*Engine)(nil)

// Login authenticates, publishes this device's identity keys and seals
// the session material into the store directory.
func (e *Engine) Login(ctx context.Context, username string, password *secret.Buffer) (engine.Account, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return engine.Account{}, errors.New("matrixengine: engine is closed")
	}
	if e.session != nil {
		e.mu.Unlock()
		return engine.Account{}, errors.New("matrixengine: already logged in")
	}
	e.mu.Unlock()

	session, err := e.client.Login(ctx, username, password)
	if err != nil {
		return engine.Account{}, err
	}

	identity, creds, err := e.establishDevice(ctx, session, password)
	if err != nil {
		// The server-side device exists already; do not leave it behind.
		if logoutErr := session.Logout(ctx); logoutErr != nil {
			e.logger.Warn("discarding half-created device failed",
				"device_id", session.DeviceID(),
				"error", logoutErr,
			)
		}
		session.Close()
		return engine.Account{}, err
	}

	e.mu.Lock()
	e.session = session
	e.identity = identity
	e.creds = creds
	e.mu.Unlock()

	e.logger.Info("device established",
		"user_id", session.UserID(),
		"device_id", session.DeviceID(),
		"ed25519", identity.Ed25519(),
	)
	return engine.Account{UserID: session.UserID(), DeviceID: session.DeviceID()}, nil
}

func (e *Engine) establishDevice(ctx context.Context, session *messaging.Session, password *secret.Buffer) (*deviceIdentity, *credstore.Store, error) {
	identity, err := newDeviceIdentity()
	if err != nil {
		return nil, nil, fmt.Errorf("matrixengine: creating device keys: %w", err)
	}

	userID := session.UserID().String()
	deviceID := session.DeviceID().String()
	keys, err := identity.deviceKeys(userID, deviceID)
	if err != nil {
		identity.Close()
		return nil, nil, fmt.Errorf("matrixengine: signing device keys: %w", err)
	}
	if _, err := session.UploadKeys(ctx, messaging.UploadKeysRequest{DeviceKeys: &keys}); err != nil {
		identity.Close()
		return nil, nil, fmt.Errorf("matrixengine: publishing device keys: %w", err)
	}

	creds, err := credstore.Create(e.storeDir, password, credstore.Options{WorkFactor: e.workFactor})
	if err != nil {
		identity.Close()
		return nil, nil, fmt.Errorf("matrixengine: %w", err)
	}
	material := &credstore.Material{
		HomeserverURL:     session.HomeserverURL(),
		UserID:            userID,
		DeviceID:          deviceID,
		AccessToken:       session.AccessToken(),
		Ed25519Seed:       append([]byte(nil), identity.ed25519Seed.Bytes()...),
		Curve25519Private: append([]byte(nil), identity.curve25519Private.Bytes()...),
	}
	err = creds.Save(material)
	material.Zero()
	if err != nil {
		creds.Close()
		identity.Close()
		return nil, nil, fmt.Errorf("matrixengine: %w", err)
	}
	return identity, creds, nil
}

// Logout invalidates the access token and deletes the device on the
// homeserver. Local state stays until Close.
func (e *Engine) Logout(ctx context.Context) error {
	session, err := e.currentSession()
	if err != nil {
		return err
	}
	return session.Logout(ctx)
}

// Close releases keys, the access token and the state database.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for flowID, flow := range e.flows {
		flow.release()
		delete(e.flows, flowID)
	}
	if e.session != nil {
		errs = append(errs, e.session.Close())
		e.session = nil
	}
	if e.identity != nil {
		errs = append(errs, e.identity.Close())
		e.identity = nil
	}
	if e.creds != nil {
		errs = append(errs, e.creds.Close())
		e.creds = nil
	}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

// currentSession returns the logged-in session or engine.ErrNotLoggedIn.
func (e *Engine) currentSession() (*messaging.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, engine.ErrNotLoggedIn
	}
	return e.session, nil
}

// ownUser returns the logged-in user and device. Callers hold mu.
func (e *Engine) ownUser() (ref.UserID, ref.DeviceID) {
	return e.session.UserID(), e.session.DeviceID()
}
