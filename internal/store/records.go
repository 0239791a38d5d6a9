package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tunnelcore/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Records persists opaque values under fixed keys. It holds the redacted
// profile collection and never sees a secret.
type Records interface {
	Load(ctx context.Context, key string) (value []byte, ok bool, err error)
	Save(ctx context.Context, key string, value []byte) error
}

// GormRecords keeps records in the kv_entries table.
type GormRecords struct {
	db *gorm.DB
}

func NewGormRecords(db *gorm.DB) *GormRecords {
	return &GormRecords{db: db}
}

func (r *GormRecords) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var entry model.Entry
	err := r.db.WithContext(ctx).Where(&model.Entry{Key: key}).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (r *GormRecords) Save(ctx context.Context, key string, value []byte) error {
	entry := model.Entry{Key: key, Value: value, UpdatedAt: time.Now()}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

// MemoryRecords is a Records kept in a map.
type MemoryRecords struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{values: make(map[string][]byte)}
}

func (r *MemoryRecords) Load(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (r *MemoryRecords) Save(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	r.values[key] = append([]byte(nil), value...)
	r.mu.Unlock()
	return nil
}
