package keyvault

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// KeyringStore is the production SecretStore backed by the OS keyring.
type KeyringStore struct {
	service string
}

// NewKeyringStore returns a store scoped to the given service name, which
// namespaces this application's secrets inside the platform keyring.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (k *KeyringStore) Get(name string) (string, error) {
	value, err := keyring.Get(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrSecretNotFound
	}
	return value, err
}

func (k *KeyringStore) Set(name, value string) error {
	return keyring.Set(k.service, name, value)
}

func (k *KeyringStore) Delete(name string) error {
	err := keyring.Delete(k.service, name)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrSecretNotFound
	}
	return err
}
