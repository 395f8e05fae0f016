// Copyright 2026 The Halyard Authors
// SPDX-License-Identifier: Apache-2.0

package credstore

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/halyard-chat/halyard/lib/secret"
)

var fastOptions = Options{WorkFactor: 10}

func password(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromString(value)
	if err != nil {
		t.Fatalf("secret.NewFromString: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func sampleMaterial() *Material {
	return &Material{
		HomeserverURL:     "https://example.org",
		UserID:            "@alice:example.org",
		DeviceID:          "ABCDEFGHIJ",
		AccessToken:       "syt_secret_token",
		Ed25519Seed:       bytes.Repeat([]byte{7}, 32),
		Curve25519Private: bytes.Repeat([]byte{9}, 32),
	}
}

func TestSaveAndReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Create(dir, password(t, "hunter2"), fastOptions)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Save(sampleMaterial()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	store.Close()

	reopened, err := Open(dir, password(t, "hunter2"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reopened.Close()

	material, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := sampleMaterial()
	if material.UserID != want.UserID || material.DeviceID != want.DeviceID || material.AccessToken != want.AccessToken {
		t.Errorf("Load = %+v, want %+v", material, want)
	}
	if !bytes.Equal(material.Ed25519Seed, want.Ed25519Seed) {
		t.Error("Ed25519Seed did not survive the round trip")
	}
}

func TestFilesAreOwnerOnlyAndOpaque(t *testing.T) {
	dir := t.TempDir()
	store, err := Create(dir, password(t, "pw"), fastOptions)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer store.Close()
	if err := store.Save(sampleMaterial()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	for _, name := range []string{identityFile, sessionFile} {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat %s: %v", name, err)
		}
		if mode := info.Mode().Perm(); mode != 0600 {
			t.Errorf("%s mode = %o, want 0600", name, mode)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if bytes.Contains(data, []byte("syt_secret_token")) || bytes.Contains(data, []byte("AGE-SECRET-KEY")) {
			t.Errorf("%s contains plaintext secrets", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, sessionFile+".tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Error("temporary file left behind after Save")
	}
}

func TestOpenWithWrongPassword(t *testing.T) {
	dir := t.TempDir()
	store, err := Create(dir, password(t, "right"), fastOptions)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	store.Close()

	if _, err := Open(dir, password(t, "wrong")); err == nil {
		t.Fatal("Open succeeded with the wrong password")
	}
}

func TestLoadBeforeSave(t *testing.T) {
	store, err := Create(t.TempDir(), password(t, "pw"), fastOptions)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer store.Close()

	if _, err := store.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load error = %v, want ErrNoSession", err)
	}
}

func TestCreateDiscardsPreviousSession(t *testing.T) {
	dir := t.TempDir()
	first, err := Create(dir, password(t, "pw"), fastOptions)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := first.Save(sampleMaterial()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first.Close()

	second, err := Create(dir, password(t, "pw"), fastOptions)
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	defer second.Close()
	if _, err := second.Load(); !errors.Is(err, ErrNoSession) {
		t.Fatalf("Load after re-create error = %v, want ErrNoSession", err)
	}
}

func TestMaterialZero(t *testing.T) {
	material := sampleMaterial()
	seed := material.Ed25519Seed
	material.Zero()
	if !bytes.Equal(seed, make([]byte, 32)) {
		t.Error("Zero left seed bytes behind")
	}
	if material.AccessToken != "" {
		t.Error("Zero left the access token behind")
	}
}
