package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	key, err := NewKey()
	if err != nil {
		t.Fatal(err)
	}
	plaintext := []byte(`{"kind":"transaction","amount":"-45.50"}`)

	blob, err := Seal(key, plaintext)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Fatalf("ciphertext contains plaintext")
	}

	got, err := Open(key, blob)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestOpenWrongKey(t *testing.T) {
	key, _ := NewKey()
	other, _ := NewKey()
	blob, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Open(other, blob); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestOpenTampered(t *testing.T) {
	key, _ := NewKey()
	blob, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	blob[len(blob)-1] ^= 0x01
	if _, err := Open(key, blob); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestOpenTruncated(t *testing.T) {
	key, _ := NewKey()
	if _, err := Open(key, []byte{1, 2, 3}); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatal(err)
	}
	a := DeriveKey([]byte("correct horse"), salt)
	b := DeriveKey([]byte("correct horse"), salt)
	if !bytes.Equal(a, b) {
		t.Fatalf("derivation not deterministic")
	}
	if len(a) != KeyLength {
		t.Fatalf("derived key has %d bytes, want %d", len(a), KeyLength)
	}

	other, _ := NewSalt()
	if bytes.Equal(a, DeriveKey([]byte("correct horse"), other)) {
		t.Fatalf("different salts produced the same key")
	}
	if bytes.Equal(a, DeriveKey([]byte("battery staple"), salt)) {
		t.Fatalf("different passphrases produced the same key")
	}
}

func TestWipe(t *testing.T) {
	key := []byte{1, 2, 3, 4}
	Wipe(key)
	for _, b := range key {
		if b != 0 {
			t.Fatalf("wipe left residue: %v", key)
		}
	}
}
