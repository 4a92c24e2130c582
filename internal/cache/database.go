package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/learnhub/learnhub/internal/models"
)

var errDatabaseStoreNotInitialised = errors.New("cache: database store not initialised")

// DatabaseStore implements the cache Store interface using the primary SQL database.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// DatabaseStoreOption customises a DatabaseStore.
type DatabaseStoreOption func(*DatabaseStore)

// WithDatabaseClock overrides the clock used for expiry decisions.
func WithDatabaseClock(clock func() time.Time) DatabaseStoreOption {
	return func(s *DatabaseStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB, opts ...DatabaseStoreOption) *DatabaseStore {
	if db == nil {
		return nil
	}
	store := &DatabaseStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// IncrementWithTTL atomically increments a counter for the supplied key. The window starts
// with the first hit and is not extended by later ones.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errDatabaseStoreNotInitialised
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now()
	var (
		count  int64
		expiry time.Time
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Take(&entry, "key = ?", key).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			count = 1
			expiry = now.Add(window)
			return tx.Create(&models.CacheEntry{
				Key:       key,
				Value:     []byte("1"),
				ExpiresAt: expiry,
			}).Error
		}
		if err != nil {
			return err
		}

		if entry.Expired(now) {
			count = 1
			expiry = now.Add(window)
		} else {
			current, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count = current + 1
			expiry = entry.ExpiresAt
		}

		return tx.Model(&models.CacheEntry{}).
			Where("key = ?", key).
			Updates(map[string]any{
				"value":      []byte(strconv.FormatInt(count, 10)),
				"expires_at": expiry,
			}).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, expiry.Sub(now), nil
}

// Set upserts the value for a given key with expiry.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errDatabaseStoreNotInitialised
	}

	expiry := time.Time{}
	if ttl > 0 {
		expiry = s.now().Add(ttl)
	}

	entry := models.CacheEntry{
		Key:       key,
		Value:     value,
		ExpiresAt: expiry,
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).Create(&entry).Error
}

// Get retrieves a value by key, respecting expiry.
func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errDatabaseStoreNotInitialised
	}

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Take(&entry, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if entry.Expired(s.now()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}

	return entry.Value, true, nil
}

// Delete removes keys from the store.
func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errDatabaseStoreNotInitialised
	}
	if len(keys) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Where("key IN ?", keys).Delete(&models.CacheEntry{}).Error
}

// Ping checks the backing database.
func (s *DatabaseStore) Ping(ctx context.Context) error {
	if s == nil {
		return errDatabaseStoreNotInitialised
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// PurgeExpired deletes entries whose expiry has passed and returns the number removed.
func (s *DatabaseStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errDatabaseStoreNotInitialised
	}
	result := s.db.WithContext(ctx).
		Where("expires_at > ? AND expires_at <= ?", time.Time{}, s.now()).
		Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}
