// Package crypto wraps the authenticated encryption and key stretching
// primitives used by the ledger store and the backup codec.
//
// Payloads are sealed with AES-256-GCM and the random nonce is prepended to
// the ciphertext so a sealed value is a single self-contained blob.
// Passphrase keys are stretched with PBKDF2-SHA256; the iteration count is
// the hardening measure that makes offline brute-force of short passphrases
// expensive, so it must never be lowered below Iterations without a format
// version bump.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeyLength is the AES-256 key size in bytes.
	KeyLength = 32
	// SaltLength is the random salt size for passphrase derivation.
	SaltLength = 16
	// Iterations is the PBKDF2-SHA256 work factor.
	Iterations = 210_000
)

var ErrDecryptFailed = errors.New("crypto: decryption failed")

// NewKey returns a fresh cryptographically random 256-bit key.
func NewKey() ([]byte, error) {
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// NewSalt returns a fresh random salt for passphrase derivation.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches a passphrase into a 256-bit key. The derivation is
// deterministic for a given passphrase and salt, which is what makes a
// backup decryptable on any device that knows both.
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, Iterations, KeyLength, sha256.New)
}

// Seal encrypts plaintext with AES-256-GCM under key and returns
// nonce||ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a nonce||ciphertext blob produced by Seal. Authentication
// failure (wrong key or tampered data) returns ErrDecryptFailed without
// further detail.
func Open(key, blob []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < gcm.NonceSize() {
		return nil, ErrDecryptFailed
	}
	nonce, ciphertext := blob[:gcm.NonceSize()], blob[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Checksum returns the SHA-256 digest of data. Used for the backup bundle
// integrity check, which runs before any decryption attempt.
func Checksum(data []byte) [sha256.Size]byte {
	return sha256.Sum256(data)
}

// Wipe overwrites a key buffer. Go gives no hard guarantee against copies,
// but this keeps the master key out of long-lived reachable memory.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeyLength, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
