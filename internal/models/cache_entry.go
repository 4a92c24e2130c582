package models

import "time"

// CacheEntry is a row of the SQL-backed cache store, used when Redis is not configured.
// Validation cache entries and rate limit counters share the table, separated by key prefix.
type CacheEntry struct {
	Key       string    `gorm:"primaryKey;size:256"`
	Value     []byte    `gorm:"type:blob"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name independent of gorm naming strategy.
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// Expired reports whether the entry is no longer readable at now. A zero expiry never expires.
func (c *CacheEntry) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !c.ExpiresAt.After(now)
}
