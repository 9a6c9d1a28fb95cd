// Package backup produces and restores passphrase-encrypted ledger
// bundles. A bundle is opaque to anything that moves it around: the
// snapshot is serialized to JSONL, sealed with a key derived from the
// passphrase, and only the checksum over the ciphertext is verifiable
// without the passphrase.
package backup

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Version identifies the bundle payload layout. Restoring a bundle with a
// different version is attempted best-effort with a logged warning.
const Version = 1

// Bundle is the wire format of an encrypted backup. All binary fields are
// encoded so a bundle survives any JSON-clean transport untouched.
type Bundle struct {
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
	Salt       string `json:"salt"`       // base64 standard encoding
	Checksum   string `json:"checksum"`   // hex sha-256 over the raw ciphertext
	Timestamp  int64  `json:"timestamp"`  // creation time, unix milliseconds
	Platform   string `json:"platform"`
}

// Marshal renders the bundle as JSON.
func (b Bundle) Marshal() ([]byte, error) {
	return json.Marshal(b)
}

// UnmarshalBundle parses a bundle previously produced by Marshal.
func UnmarshalBundle(data []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, fmt.Errorf("parse bundle: %w", err)
	}
	return b, nil
}

// CiphertextBytes decodes the ciphertext field. Used by the hand-off
// worker to verify the checksum without ever holding a key.
func (b Bundle) CiphertextBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(b.Ciphertext)
}

func encodeB64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func encodeHex(b []byte) string { return hex.EncodeToString(b) }

func (b Bundle) decode() (ciphertext, salt, checksum []byte, err error) {
	ciphertext, err = base64.StdEncoding.DecodeString(b.Ciphertext)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	salt, err = base64.StdEncoding.DecodeString(b.Salt)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	checksum, err = hex.DecodeString(b.Checksum)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode checksum: %w", err)
	}
	return ciphertext, salt, checksum, nil
}
