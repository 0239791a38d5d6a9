package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const probeKey = "tunnelcore-probe"

// Keyring keeps secrets in the OS credential store (Keychain, Secret Service,
// Windows Credential Manager).
type Keyring struct {
	service string
}

func NewKeyring(service string) *Keyring {
	return &Keyring{service: service}
}

// Probe writes and removes a throwaway entry to check the keyring is usable.
func (k *Keyring) Probe() error {
	if err := keyring.Set(k.service, probeKey, "probe"); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_ = keyring.Delete(k.service, probeKey)
	return nil
}

func (k *Keyring) Get(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	value, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("keyring get %s: %w", key, err)
	}
	return value, nil
}

func (k *Keyring) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if value == "" {
		return ErrEmptyValue
	}
	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

func (k *Keyring) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := keyring.Delete(k.service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}
