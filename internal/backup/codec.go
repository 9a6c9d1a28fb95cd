package backup

import (
	"bufio"
	"bytes"
	"context"
	"crypto/hmac"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"moneta/internal/core"
	"moneta/internal/crypto"
	"moneta/internal/log"
)

var (
	// ErrIntegrityViolation reports a checksum mismatch over the ciphertext.
	// Decryption is never attempted on a bundle that fails the check.
	ErrIntegrityViolation = errors.New("backup: bundle integrity check failed")

	// ErrWrongPassphrase reports an authenticated-decryption failure. The
	// message deliberately does not distinguish a wrong passphrase from
	// post-checksum corruption.
	ErrWrongPassphrase = errors.New("backup: cannot decrypt bundle")
)

// Snapshotter is the slice of the store the codec reads from and restores
// into.
type Snapshotter interface {
	Snapshot(ctx context.Context) (core.Snapshot, error)
	RestoreSnapshot(ctx context.Context, snap core.Snapshot) error
}

// Codec creates and restores encrypted backup bundles. The passphrase never
// touches the key vault: the bundle key is derived from it on the spot and
// discarded, so a bundle is decryptable on any device.
type Codec struct {
	store    Snapshotter
	platform string
	logger   *log.Logger
}

func NewCodec(store Snapshotter, platform string, logger *log.Logger) *Codec {
	if logger == nil {
		logger = log.Default(log.ComponentBackup)
	}
	return &Codec{store: store, platform: platform, logger: logger}
}

// payload header, first line of the JSONL plaintext.
type header struct {
	Version   int    `json:"version"`
	CreatedAt int64  `json:"created_at"`
	Platform  string `json:"platform"`
}

// line is one entity record in the JSONL plaintext.
type line struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

const (
	lineTransaction = "transaction"
	lineAccount     = "account"
	lineBudget      = "budget"
	lineCategory    = "category"
)

// Create snapshots the ledger, seals it under a key derived from the
// passphrase and returns the finished bundle. An empty ledger still
// produces a valid bundle.
func (c *Codec) Create(ctx context.Context, passphrase string) (Bundle, error) {
	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return Bundle{}, err
	}

	now := time.Now().UTC()
	plaintext, err := encodePayload(snap, header{
		Version:   Version,
		CreatedAt: now.UnixMilli(),
		Platform:  c.platform,
	})
	if err != nil {
		return Bundle{}, err
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return Bundle{}, fmt.Errorf("backup: %w", err)
	}
	key := crypto.DeriveKey([]byte(passphrase), salt)
	defer crypto.Wipe(key)

	ciphertext, err := crypto.Seal(key, plaintext)
	if err != nil {
		return Bundle{}, fmt.Errorf("backup: %w", err)
	}
	sum := crypto.Checksum(ciphertext)

	bundle := Bundle{
		Ciphertext: encodeB64(ciphertext),
		Salt:       encodeB64(salt),
		Checksum:   encodeHex(sum[:]),
		Timestamp:  now.UnixMilli(),
		Platform:   c.platform,
	}

	c.logger.InfoContext(ctx, "Backup bundle created",
		"records", snap.Len(), "bytes", len(ciphertext))
	return bundle, nil
}

// Restore verifies, decrypts and parses a bundle, then replaces the store
// contents atomically. The checksum is checked before any key derivation.
func (c *Codec) Restore(ctx context.Context, bundle Bundle, passphrase string) error {
	ciphertext, salt, checksum, err := bundle.decode()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}

	sum := crypto.Checksum(ciphertext)
	if !hmac.Equal(sum[:], checksum) {
		return ErrIntegrityViolation
	}

	key := crypto.DeriveKey([]byte(passphrase), salt)
	defer crypto.Wipe(key)

	plaintext, err := crypto.Open(key, ciphertext)
	if err != nil {
		return ErrWrongPassphrase
	}

	snap, hdr, err := decodePayload(plaintext)
	if err != nil {
		return err
	}
	if hdr.Version != Version {
		c.logger.WarnContext(ctx, "Bundle version differs, restoring best-effort",
			"bundle_version", hdr.Version, "supported_version", Version)
	}

	if err := c.store.RestoreSnapshot(ctx, snap); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "Backup bundle restored",
		"records", snap.Len(), "bundle_platform", bundle.Platform)
	return nil
}

// encodePayload renders the snapshot as JSONL: the header line first, then
// one line per entity in fixed kind order. The per-kind order follows the
// snapshot, which the store already returns deterministically, so the same
// ledger contents always produce the same plaintext.
func encodePayload(snap core.Snapshot, hdr header) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	if err := enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}

	writeLine := func(kind string, entity any) error {
		data, err := json.Marshal(entity)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}
		return enc.Encode(line{Kind: kind, Data: data})
	}

	for _, a := range snap.Accounts {
		if err := writeLine(lineAccount, a); err != nil {
			return nil, err
		}
	}
	for _, cat := range snap.Categories {
		if err := writeLine(lineCategory, cat); err != nil {
			return nil, err
		}
	}
	for _, b := range snap.Budgets {
		if err := writeLine(lineBudget, b); err != nil {
			return nil, err
		}
	}
	for _, t := range snap.Transactions {
		if err := writeLine(lineTransaction, t); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func decodePayload(plaintext []byte) (core.Snapshot, header, error) {
	var snap core.Snapshot
	var hdr header

	scanner := bufio.NewScanner(bytes.NewReader(plaintext))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return snap, hdr, fmt.Errorf("parse payload: missing header")
	}
	if err := json.Unmarshal(scanner.Bytes(), &hdr); err != nil {
		return snap, hdr, fmt.Errorf("parse header: %w", err)
	}

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			return snap, hdr, fmt.Errorf("parse record line: %w", err)
		}
		switch l.Kind {
		case lineTransaction:
			var t core.Transaction
			if err := json.Unmarshal(l.Data, &t); err != nil {
				return snap, hdr, fmt.Errorf("parse transaction: %w", err)
			}
			snap.Transactions = append(snap.Transactions, t)
		case lineAccount:
			var a core.Account
			if err := json.Unmarshal(l.Data, &a); err != nil {
				return snap, hdr, fmt.Errorf("parse account: %w", err)
			}
			snap.Accounts = append(snap.Accounts, a)
		case lineBudget:
			var b core.Budget
			if err := json.Unmarshal(l.Data, &b); err != nil {
				return snap, hdr, fmt.Errorf("parse budget: %w", err)
			}
			snap.Budgets = append(snap.Budgets, b)
		case lineCategory:
			var cat core.Category
			if err := json.Unmarshal(l.Data, &cat); err != nil {
				return snap, hdr, fmt.Errorf("parse category: %w", err)
			}
			snap.Categories = append(snap.Categories, cat)
		default:
			// Unknown kinds from a newer exporter are skipped, not fatal.
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return snap, hdr, fmt.Errorf("scan payload: %w", err)
	}
	return snap, hdr, nil
}
