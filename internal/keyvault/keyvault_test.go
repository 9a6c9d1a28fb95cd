package keyvault

import (
	"bytes"
	"errors"
	"testing"

	"moneta/internal/crypto"
)

func TestMasterKeyCreatedOnce(t *testing.T) {
	vault := New(NewMemoryStore())

	first, err := vault.MasterKey()
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != crypto.KeyLength {
		t.Fatalf("master key has %d bytes, want %d", len(first), crypto.KeyLength)
	}

	second, err := vault.MasterKey()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("second fetch returned a different key")
	}
}

func TestMasterKeyUnavailableStore(t *testing.T) {
	store := NewMemoryStore()
	store.Unavailable = true
	vault := New(store)

	if _, err := vault.MasterKey(); !errors.Is(err, ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable, got %v", err)
	}
}

func TestEraseMasterKey(t *testing.T) {
	store := NewMemoryStore()
	vault := New(store)

	first, err := vault.MasterKey()
	if err != nil {
		t.Fatal(err)
	}

	if err := vault.EraseMasterKey(); err != nil {
		t.Fatal(err)
	}
	// Idempotent on already-empty state.
	if err := vault.EraseMasterKey(); err != nil {
		t.Fatalf("second erase should be a no-op: %v", err)
	}

	// The next fetch mints a brand new key; the old one is gone for good.
	next, err := vault.MasterKey()
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(first, next) {
		t.Fatalf("erase did not destroy the old key")
	}
}

func TestDerivePassphraseKeyDeterministic(t *testing.T) {
	vault := New(NewMemoryStore())
	salt, err := crypto.NewSalt()
	if err != nil {
		t.Fatal(err)
	}
	a := vault.DerivePassphraseKey("hunter2", salt)
	b := vault.DerivePassphraseKey("hunter2", salt)
	if !bytes.Equal(a, b) {
		t.Fatalf("passphrase derivation not deterministic")
	}
}
