// Package secrets stores the VMess user ids that profiles keep out of their
// persisted records. The system keyring is used when available, falling back
// to an encrypted local file.
package secrets

import (
	"errors"
	"fmt"
	"os"

	"tunnelcore/internal/config"
	"tunnelcore/internal/logger"
)

// Common errors returned by secret store operations.
var (
	ErrNotFound     = errors.New("secret not found")
	ErrEmptyKey     = errors.New("secret key cannot be empty")
	ErrEmptyValue   = errors.New("secret value cannot be empty")
	ErrUnavailable  = errors.New("secret store unavailable")
	ErrNoPassphrase = errors.New("vault passphrase is not set")
	ErrVaultCorrupt = errors.New("vault file is corrupt or the passphrase is wrong")
)

// Store is the secure side-store for profile secrets.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	// Delete removes key. A key that is already absent returns ErrNotFound.
	Delete(key string) error
}

// Open returns the backend selected in cfg. The keyring backend falls back to
// the file vault when the system keyring cannot be reached and a vault
// passphrase is configured.
func Open(cfg config.SecretsConfig) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "file":
		return openVault(cfg)
	case "keyring", "":
		kr := NewKeyring(cfg.Service)
		err := kr.Probe()
		if err == nil {
			return kr, nil
		}
		if os.Getenv(cfg.PassphraseEnv) == "" {
			return nil, err
		}
		logger.Log.Warnf("System keyring unavailable (%v), using encrypted vault %s", err, cfg.FilePath)
		return openVault(cfg)
	default:
		return nil, fmt.Errorf("unknown secrets backend %q", cfg.Backend)
	}
}

func openVault(cfg config.SecretsConfig) (Store, error) {
	passphrase := os.Getenv(cfg.PassphraseEnv)
	if passphrase == "" {
		return nil, fmt.Errorf("%w: export %s", ErrNoPassphrase, cfg.PassphraseEnv)
	}
	return OpenFileVault(cfg.FilePath, []byte(passphrase))
}

func checkKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	return nil
}
