// Package store adapts the db package to the key store and usage ledger
// contracts consumed by the validation pipeline, key manager and stats.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rsclarke/keyward/internal/db"
	"github.com/rsclarke/keyward/internal/models"
)

// DefaultRetention is the number of usage events kept before the oldest are discarded.
const DefaultRetention = 10000

var (
	// ErrNotFound is returned when the referenced key does not exist.
	ErrNotFound = db.ErrNotFound
	// ErrConflict is returned when a key name is already taken.
	ErrConflict = db.ErrConflict
)

// SQLiteStore implements the key store and usage ledger on SQLite.
type SQLiteStore struct {
	db        *sql.DB
	retention int
}

// NewSQLiteStore creates a new SQLiteStore. A retention of zero or less uses DefaultRetention.
func NewSQLiteStore(database *sql.DB, retention int) *SQLiteStore {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &SQLiteStore{db: database, retention: retention}
}

// Retention returns the ledger cap.
func (s *SQLiteStore) Retention() int {
	return s.retention
}

// ResolveBySecret looks up a key by its secret. Returns nil, nil when unknown.
func (s *SQLiteStore) ResolveBySecret(ctx context.Context, secret string) (*models.APIKey, error) {
	key, err := db.GetAPIKeyBySecret(ctx, s.db, secret)
	if err != nil {
		return nil, fmt.Errorf("resolve secret: %w", err)
	}
	return key, nil
}

// IncrementUsage atomically records one use of the key.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, id string, now time.Time) error {
	if err := db.IncrementAPIKeyUsage(ctx, s.db, id, now); err != nil {
		return fmt.Errorf("increment usage for %s: %w", id, err)
	}
	return nil
}

// CreateKey persists a new key.
func (s *SQLiteStore) CreateKey(ctx context.Context, key *models.APIKey) error {
	return db.CreateAPIKey(ctx, s.db, key)
}

// GetKey retrieves a key by ID. Returns nil, nil when unknown.
func (s *SQLiteStore) GetKey(ctx context.Context, id string) (*models.APIKey, error) {
	return db.GetAPIKeyByID(ctx, s.db, id)
}

// UpdateKey applies a partial update.
func (s *SQLiteStore) UpdateKey(ctx context.Context, id string, u models.KeyUpdate) error {
	return db.UpdateAPIKey(ctx, s.db, id, u)
}

// DeleteKey removes a key.
func (s *SQLiteStore) DeleteKey(ctx context.Context, id string) error {
	return db.DeleteAPIKey(ctx, s.db, id)
}

// NameExists reports whether a key other than excludeID uses name.
func (s *SQLiteStore) NameExists(ctx context.Context, name, excludeID string) (bool, error) {
	return db.APIKeyNameExists(ctx, s.db, name, excludeID)
}

// ListKeys returns all keys in creation order.
func (s *SQLiteStore) ListKeys(ctx context.Context) ([]models.APIKey, error) {
	return db.ListAPIKeys(ctx, s.db)
}

// AppendEvent records a usage event, evicting the oldest beyond the retention cap.
func (s *SQLiteStore) AppendEvent(ctx context.Context, e *models.UsageEvent) error {
	return db.AppendUsageEvent(ctx, s.db, e, s.retention)
}

// ListEvents returns retained usage events in insertion order.
func (s *SQLiteStore) ListEvents(ctx context.Context) ([]models.UsageEvent, error) {
	return db.ListUsageEvents(ctx, s.db)
}
