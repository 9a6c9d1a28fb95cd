package amqp

import (
	"testing"
	"time"
)

func TestBackupCreatedMessageRoundTrip(t *testing.T) {
	msg := NewBackupCreatedMessage("/backups/bundle-20260402.json", "ab12cd")
	if msg.Timestamp.IsZero() {
		t.Fatal("Timestamp not set")
	}

	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	got, err := BackupCreatedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if got.Path != msg.Path {
		t.Errorf("Path = %q, want %q", got.Path, msg.Path)
	}
	if got.Checksum != msg.Checksum {
		t.Errorf("Checksum = %q, want %q", got.Checksum, msg.Checksum)
	}
	if !got.Timestamp.Truncate(time.Millisecond).Equal(msg.Timestamp.Truncate(time.Millisecond)) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, msg.Timestamp)
	}
}

func TestBackupCreatedMessageFromInvalidJSON(t *testing.T) {
	if _, err := BackupCreatedMessageFromJSON([]byte("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
