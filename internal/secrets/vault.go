package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltSize = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// FileVault is an encrypted JSON map on disk. The key is derived from a
// passphrase with Argon2id and the map is sealed with XChaCha20-Poly1305.
// File layout: base64(salt || nonce || ciphertext).
type FileVault struct {
	mu     sync.Mutex
	path   string
	salt   []byte
	key    []byte
	values map[string]string
}

// OpenFileVault loads path, creating an empty vault if it does not exist.
func OpenFileVault(path string, passphrase []byte) (*FileVault, error) {
	if len(passphrase) == 0 {
		return nil, ErrNoPassphrase
	}

	v := &FileVault{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		v.salt = make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, v.salt); err != nil {
			return nil, fmt.Errorf("failed to generate vault salt: %w", err)
		}
		v.key = deriveKey(passphrase, v.salt)
		return v, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read vault: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil || len(raw) < saltSize+chacha20poly1305.NonceSizeX {
		return nil, ErrVaultCorrupt
	}
	v.salt = raw[:saltSize]
	v.key = deriveKey(passphrase, v.salt)

	plaintext, err := v.open(raw[saltSize:])
	if err != nil {
		return nil, ErrVaultCorrupt
	}
	if err := json.Unmarshal(plaintext, &v.values); err != nil {
		return nil, ErrVaultCorrupt
	}
	if v.values == nil {
		v.values = make(map[string]string)
	}
	return v, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

func (v *FileVault) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (v *FileVault) open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	return aead.Open(nil, nonce, ciphertext, nil)
}

// flush must be called with mu held. The file is replaced atomically so a
// crash never leaves a half-written vault.
func (v *FileVault) flush() error {
	plaintext, err := json.Marshal(v.values)
	if err != nil {
		return err
	}
	sealed, err := v.seal(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt vault: %w", err)
	}

	out := make([]byte, 0, len(v.salt)+len(sealed))
	out = append(out, v.salt...)
	out = append(out, sealed...)

	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".vault-*")
	if err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(base64.StdEncoding.EncodeToString(out)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write vault: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write vault: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write vault: %w", err)
	}
	return os.Rename(tmp.Name(), v.path)
}

func (v *FileVault) Get(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	value, ok := v.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (v *FileVault) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if value == "" {
		return ErrEmptyValue
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	prev, had := v.values[key]
	v.values[key] = value
	if err := v.flush(); err != nil {
		if had {
			v.values[key] = prev
		} else {
			delete(v.values, key)
		}
		return err
	}
	return nil
}

func (v *FileVault) Delete(key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	prev, ok := v.values[key]
	if !ok {
		return ErrNotFound
	}
	delete(v.values, key)
	if err := v.flush(); err != nil {
		v.values[key] = prev
		return err
	}
	return nil
}
