// Package keyvault owns the ledger master key.
//
// The key lives exclusively in the operating system's secret store
// (Keychain on macOS, the Secret Service on Linux, Credential Manager on
// Windows). It is fetched for the duration of a crypto operation and never
// written to application-managed storage: when the secret store cannot be
// reached every dependent operation fails with ErrKeyUnavailable instead of
// degrading to a file-backed key.
package keyvault

import (
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"moneta/internal/crypto"
)

const masterKeyName = "master-key"

var (
	// ErrKeyUnavailable reports that the platform secret store could not
	// produce the master key. There is deliberately no fallback path.
	ErrKeyUnavailable = errors.New("keyvault: master key unavailable")

	// ErrSecretNotFound is returned by SecretStore implementations when a
	// named secret does not exist.
	ErrSecretNotFound = errors.New("keyvault: secret not found")
)

// SecretStore abstracts the platform secret store so the vault can be
// exercised in tests without a running keychain daemon.
type SecretStore interface {
	Get(name string) (string, error)
	Set(name, value string) error
	Delete(name string) error
}

// Vault manages the master key lifecycle on top of a SecretStore.
type Vault struct {
	mu    sync.Mutex
	store SecretStore
}

func New(store SecretStore) *Vault {
	return &Vault{store: store}
}

// MasterKey returns the 256-bit master key, generating and persisting a
// fresh random one on first use. The caller should crypto.Wipe the slice
// once the operation that needed it completes.
func (v *Vault) MasterKey() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	encoded, err := v.store.Get(masterKeyName)
	switch {
	case err == nil:
		key, decErr := base64.StdEncoding.DecodeString(encoded)
		if decErr != nil || len(key) != crypto.KeyLength {
			return nil, fmt.Errorf("%w: stored key is corrupt", ErrKeyUnavailable)
		}
		return key, nil
	case errors.Is(err, ErrSecretNotFound):
		return v.createMasterKey()
	default:
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
}

func (v *Vault) createMasterKey() ([]byte, error) {
	key, err := crypto.NewKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	if err := v.store.Set(masterKeyName, base64.StdEncoding.EncodeToString(key)); err != nil {
		crypto.Wipe(key)
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return key, nil
}

// EraseMasterKey irreversibly destroys the stored master key. Any data
// encrypted under it becomes permanently unreadable; this is the mechanism
// behind the store's erase-all operation. Erasing an already-absent key is
// a no-op.
func (v *Vault) EraseMasterKey() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	err := v.store.Delete(masterKeyName)
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return nil
}

// DerivePassphraseKey stretches a backup passphrase into an encryption key.
// The work factor lives in the crypto package so producer and consumer of a
// backup bundle can never disagree on it.
func (v *Vault) DerivePassphraseKey(passphrase string, salt []byte) []byte {
	return crypto.DeriveKey([]byte(passphrase), salt)
}
