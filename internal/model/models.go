package model

import (
	"time"
)

// Entry is one row of the key-value table. The profile collection and the
// tunnel diagnostics are each stored as a single JSON value under a fixed key.
type Entry struct {
	Key       string `gorm:"primaryKey"`
	Value     []byte
	UpdatedAt time.Time
}

func (Entry) TableName() string { return "kv_entries" }
