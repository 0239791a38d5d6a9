package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tunnelcore/internal/logger"
	"tunnelcore/internal/model"
	"tunnelcore/internal/secrets"
	"tunnelcore/internal/xray/parser"

	"github.com/google/uuid"
)

const (
	// CollectionKey holds the JSON array of redacted profiles.
	CollectionKey = "vpn.profiles"
	// SecretPlaceholder replaces endpoint.id in every persisted record.
	SecretPlaceholder = "__KEYCHAIN__"

	secretKeyPrefix = "vmess.endpoint.id."
)

var (
	ErrProfileNotFound   = errors.New("profile not found")
	ErrSecretUnavailable = errors.New("profile secret is unavailable")
)

// SecretKey is the side-store key holding the endpoint id of profile id.
func SecretKey(id uuid.UUID) string {
	return secretKeyPrefix + strings.ToUpper(id.String())
}

// Redact returns a copy of p that is safe to persist.
func Redact(p model.Profile) model.Profile {
	p.Endpoint.ID = SecretPlaceholder
	return p
}

// IsRedacted reports whether p still carries the placeholder instead of its secret.
func IsRedacted(p model.Profile) bool {
	return p.Endpoint.ID == SecretPlaceholder
}

// ProfileStore splits a profile across two backends: the redacted record in
// Records and the endpoint id in a secrets.Store. All mutations run under one
// lock so a reader never observes one half of a write.
type ProfileStore struct {
	mu      sync.Mutex
	records Records
	secrets secrets.Store
}

func NewProfileStore(records Records, secretStore secrets.Store) *ProfileStore {
	return &ProfileStore{records: records, secrets: secretStore}
}

// Rehydrate puts the stored secret back into p. A lookup miss leaves the
// placeholder in place.
func (s *ProfileStore) Rehydrate(p model.Profile) model.Profile {
	if !IsRedacted(p) {
		return p
	}
	secret, err := s.secrets.Get(SecretKey(p.ID))
	if err != nil {
		if !errors.Is(err, secrets.ErrNotFound) {
			logger.Log.Warnf("Secret lookup for profile %s failed: %v", p.ID, err)
		}
		return p
	}
	p.Endpoint.ID = secret
	return p
}

// All returns every profile with its secret restored.
func (s *ProfileStore) All(ctx context.Context) ([]model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i] = s.Rehydrate(records[i])
	}
	return records, nil
}

// Get returns the profile with the given id, rehydrated.
func (s *ProfileStore) Get(ctx context.Context, id uuid.UUID) (model.Profile, error) {
	all, err := s.All(ctx)
	if err != nil {
		return model.Profile{}, err
	}
	for _, p := range all {
		if p.ID == id {
			return p, nil
		}
	}
	return model.Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
}

// Upsert stores the secret first and the redacted record second. A failed
// secret write leaves the collection untouched; a failed record write
// restores the previous secret.
func (s *ProfileStore) Upsert(ctx context.Context, p model.Profile) error {
	// The bundle ids are a set; duplicates differing only in case collapse
	// to the first spelling.
	if err := p.SetBundleIDs(p.PerAppBundleIDs); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if IsRedacted(p) || !parser.IsUserID(p.Endpoint.ID) {
		return fmt.Errorf("%w: endpoint id of %s is not a user id", ErrSecretUnavailable, p.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	key := SecretKey(p.ID)
	previous, prevErr := s.secrets.Get(key)
	hadPrevious := prevErr == nil
	if prevErr != nil && !errors.Is(prevErr, secrets.ErrNotFound) {
		return fmt.Errorf("failed to read secret: %w", prevErr)
	}

	if err := s.secrets.Set(key, p.Endpoint.ID); err != nil {
		return fmt.Errorf("failed to store secret: %w", err)
	}

	redacted := Redact(p)
	replaced := false
	for i := range records {
		if records[i].ID == p.ID {
			records[i] = redacted
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, redacted)
	}

	if err := s.save(ctx, records); err != nil {
		s.restoreSecret(key, previous, hadPrevious)
		return err
	}
	logger.Log.Debugf("Saved profile %s (%s)", p.ID, p.Name)
	return nil
}

func (s *ProfileStore) restoreSecret(key, previous string, hadPrevious bool) {
	var err error
	if hadPrevious {
		err = s.secrets.Set(key, previous)
	} else {
		err = s.secrets.Delete(key)
	}
	if err != nil && !errors.Is(err, secrets.ErrNotFound) {
		logger.Log.Errorf("Failed to roll back secret %s: %v", key, err)
	}
}

// Delete removes the record, then its secret. A secret that is already gone
// is not an error.
func (s *ProfileStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return err
	}

	kept := records[:0]
	found := false
	for _, p := range records {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}

	if err := s.save(ctx, kept); err != nil {
		return err
	}

	if err := s.secrets.Delete(SecretKey(id)); err != nil && !errors.Is(err, secrets.ErrNotFound) {
		return fmt.Errorf("profile removed but secret cleanup failed: %w", err)
	}
	logger.Log.Debugf("Deleted profile %s", id)
	return nil
}

func (s *ProfileStore) load(ctx context.Context) ([]model.Profile, error) {
	data, ok, err := s.records.Load(ctx, CollectionKey)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return []model.Profile{}, nil
	}
	var profiles []model.Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("failed to decode profile collection: %w", err)
	}
	if profiles == nil {
		profiles = []model.Profile{}
	}
	return profiles, nil
}

// save expects records that are already redacted.
func (s *ProfileStore) save(ctx context.Context, records []model.Profile) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode profile collection: %w", err)
	}
	return s.records.Save(ctx, CollectionKey, data)
}
