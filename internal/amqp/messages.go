package amqp

import (
	"encoding/json"
	"time"
)

// BackupCreatedMessage notifies the hand-off worker that a new encrypted
// bundle landed on disk. It carries only the bundle location and its
// ciphertext checksum; the worker never sees plaintext or keys.
type BackupCreatedMessage struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBackupCreatedMessage(path, checksum string) *BackupCreatedMessage {
	return &BackupCreatedMessage{
		Path:      path,
		Checksum:  checksum,
		Timestamp: time.Now(),
	}
}

func (m *BackupCreatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BackupCreatedMessageFromJSON(data []byte) (*BackupCreatedMessage, error) {
	var msg BackupCreatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
