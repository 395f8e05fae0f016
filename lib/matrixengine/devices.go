// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package matrixengine

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/halyard-chat/halyard/lib/engine"
	"github.com/halyard-chat/halyard/lib/ref"
	"github.com/halyard-chat/halyard/lib/statestore"
	"github.com/halyard-chat/halyard/messaging"
)

// Devices queries the key server for the account's devices, caches
// them, and returns them ordered by device ID.
func (e *Engine) Devices(ctx context.Context) ([]engine.Device, error) {
	session, err := e.currentSession()
	if err != nil {
		return nil, err
	}
	stored, err := e.refreshDevices(ctx, session)
	if err != nil {
		return nil, err
	}
	devices := make([]engine.Device, 0, len(stored))
	for _, device := range stored {
		deviceID, err := ref.ParseDeviceID(device.DeviceID)
		if err != nil {
			continue
		}
		devices = append(devices, engine.Device{DeviceID: deviceID, DisplayName: device.DisplayName})
	}
	return devices, nil
}

// refreshDevices replaces the cached device list of the logged-in user
// with what the key server reports. Devices whose self-signature does
// not verify are dropped; their keys cannot be trusted for MAC checks.
func (e *Engine) refreshDevices(ctx context.Context, session *messaging.Session) ([]statestore.Device, error) {
	userID := session.UserID().String()
	response, err := session.QueryKeys(ctx, messaging.QueryKeysRequest{
		DeviceKeys: map[string][]string{userID: {}},
	})
	if err != nil {
		return nil, err
	}

	var devices []statestore.Device
	for deviceID, keys := range response.DeviceKeys[userID] {
		device, err := cachedDevice(userID, deviceID, keys)
		if err != nil {
			e.logger.Warn("ignoring device with invalid keys",
				"user_id", userID,
				"device_id", deviceID,
				"error", err,
			)
			continue
		}
		devices = append(devices, device)
	}
	slices.SortFunc(devices, func(a, b statestore.Device) int {
		return cmp.Compare(a.DeviceID, b.DeviceID)
	})

	if err := e.store.ReplaceDevices(ctx, userID, devices); err != nil {
		return nil, fmt.Errorf("matrixengine: %w", err)
	}
	return devices, nil
}

func cachedDevice(userID, deviceID string, keys messaging.DeviceKeys) (statestore.Device, error) {
	if keys.UserID != userID || keys.DeviceID != deviceID {
		return statestore.Device{}, fmt.Errorf("keys claim %s/%s", keys.UserID, keys.DeviceID)
	}
	signingKeyID := "ed25519:" + deviceID
	ed25519Key, ok := keys.Keys[signingKeyID]
	if !ok {
		return statestore.Device{}, fmt.Errorf("no ed25519 key")
	}
	if err := verifySignature(signingSource(keys.Raw, keys), keys.Signatures, userID, signingKeyID, ed25519Key); err != nil {
		return statestore.Device{}, err
	}
	device := statestore.Device{
		UserID:     userID,
		DeviceID:   deviceID,
		Ed25519:    ed25519Key,
		Curve25519: keys.Keys["curve25519:"+deviceID],
	}
	if keys.Unsigned != nil {
		device.DisplayName = keys.Unsigned.DeviceDisplayName
	}
	return device, nil
}

// deviceKey returns the cached Ed25519 key of one of the account's
// devices, querying the key server when the cache misses.
func (e *Engine) deviceKey(ctx context.Context, session *messaging.Session, deviceID string) (string, bool, error) {
	userID := session.UserID().String()
	device, found, err := e.store.Device(ctx, userID, deviceID)
	if err != nil {
		return "", false, fmt.Errorf("matrixengine: %w", err)
	}
	if found {
		return device.Ed25519, true, nil
	}
	devices, err := e.refreshDevices(ctx, session)
	if err != nil {
		return "", false, err
	}
	for _, device := range devices {
		if device.DeviceID == deviceID {
			return device.Ed25519, true, nil
		}
	}
	return "", false, nil
}
