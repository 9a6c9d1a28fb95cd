// Package worker moves finished backup bundles from the backup directory
// to the outbox an external uploader watches. The bundle stays opaque end
// to end: the worker verifies the ciphertext checksum and relocates the
// file, nothing more.
package worker

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"moneta/internal/amqp"
	"moneta/internal/backup"
	"moneta/internal/crypto"
)

// HandoffWorker processes backup.created notifications.
type HandoffWorker struct {
	outboxDir string
}

func NewHandoffWorker(outboxDir string) *HandoffWorker {
	return &HandoffWorker{outboxDir: outboxDir}
}

// HandleBackupCreated verifies the bundle named in the message and moves it
// into the outbox. A checksum mismatch deletes nothing: the bad bundle is
// left in place for inspection and the message fails so it gets requeued.
func (w *HandoffWorker) HandleBackupCreated(ctx context.Context, msg *amqp.BackupCreatedMessage) error {
	slog.InfoContext(ctx, "Processing backup bundle", "path", msg.Path)

	if err := w.verifyBundle(msg.Path, msg.Checksum); err != nil {
		return err
	}

	if err := os.MkdirAll(w.outboxDir, 0700); err != nil {
		return fmt.Errorf("create outbox: %w", err)
	}

	dest := filepath.Join(w.outboxDir, filepath.Base(msg.Path))
	if err := moveFile(msg.Path, dest); err != nil {
		return fmt.Errorf("move bundle to outbox: %w", err)
	}

	slog.InfoContext(ctx, "Bundle handed off", "dest", dest)
	return nil
}

// verifyBundle re-computes the ciphertext checksum of the bundle file and
// compares it with the one announced in the message.
func (w *HandoffWorker) verifyBundle(path, wantChecksum string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bundle: %w", err)
	}

	bundle, err := backup.UnmarshalBundle(raw)
	if err != nil {
		return fmt.Errorf("parse bundle: %w", err)
	}
	if bundle.Checksum != wantChecksum {
		return fmt.Errorf("bundle checksum %q does not match announced %q", bundle.Checksum, wantChecksum)
	}

	ciphertext, err := bundle.CiphertextBytes()
	if err != nil {
		return fmt.Errorf("decode ciphertext: %w", err)
	}
	sum := crypto.Checksum(ciphertext)
	want, err := hex.DecodeString(bundle.Checksum)
	if err != nil {
		return fmt.Errorf("decode checksum: %w", err)
	}
	if !hmac.Equal(sum[:], want) {
		return fmt.Errorf("bundle %s failed integrity check", path)
	}
	return nil
}

// moveFile renames when possible and falls back to copy-then-remove for
// cross-device moves.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
