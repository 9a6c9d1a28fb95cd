package keyvault

import (
	"errors"
	"sync"
)

// MemoryStore is an in-process SecretStore for tests and throwaway
// environments without a platform keyring.
type MemoryStore struct {
	mu      sync.Mutex
	secrets map[string]string

	// Unavailable simulates a secret store outage: every call fails.
	Unavailable bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{secrets: make(map[string]string)}
}

var errStoreDown = errors.New("secret store unreachable")

func (m *MemoryStore) Get(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return "", errStoreDown
	}
	value, ok := m.secrets[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

func (m *MemoryStore) Set(name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return errStoreDown
	}
	m.secrets[name] = value
	return nil
}

func (m *MemoryStore) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable {
		return errStoreDown
	}
	if _, ok := m.secrets[name]; !ok {
		return ErrSecretNotFound
	}
	delete(m.secrets, name)
	return nil
}
