package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rsclarke/keyward/internal/models"
)

const apiKeyColumns = "id, key, name, description, status, created_at, last_used_at, request_count, rate_limit"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(row rowScanner) (*models.APIKey, error) {
	var (
		key       models.APIKey
		status    string
		createdAt int64
		lastUsed  sql.NullInt64
		rateLimit sql.NullInt64
	)
	err := row.Scan(&key.ID, &key.Key, &key.Name, &key.Description, &status,
		&createdAt, &lastUsed, &key.RequestCount, &rateLimit)
	if err != nil {
		return nil, err
	}
	key.Status = models.KeyStatus(status)
	key.CreatedAt = fromMillis(createdAt)
	if lastUsed.Valid {
		t := fromMillis(lastUsed.Int64)
		key.LastUsedAt = &t
	}
	if rateLimit.Valid {
		v := int(rateLimit.Int64)
		key.RateLimit = &v
	}
	return &key, nil
}

// CreateAPIKey inserts a new API key. A duplicate name or secret yields ErrConflict.
func CreateAPIKey(ctx context.Context, d *sql.DB, key *models.APIKey) error {
	var rateLimit any
	if key.RateLimit != nil {
		rateLimit = *key.RateLimit
	}
	_, err := d.ExecContext(ctx,
		"INSERT INTO api_keys ("+apiKeyColumns+") VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?)",
		key.ID, key.Key, key.Name, key.Description, string(key.Status),
		toMillis(key.CreatedAt), key.RequestCount, rateLimit,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("create api key %q: %w", key.Name, ErrConflict)
	}
	return err
}

// GetAPIKeyByID retrieves an API key by its ID. Returns nil, nil when absent.
func GetAPIKeyByID(ctx context.Context, d *sql.DB, id string) (*models.APIKey, error) {
	row := d.QueryRowContext(ctx, "SELECT "+apiKeyColumns+" FROM api_keys WHERE id = ?", id)
	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return key, err
}

// GetAPIKeyBySecret retrieves an API key by exact match on its secret.
func GetAPIKeyBySecret(ctx context.Context, d *sql.DB, secret string) (*models.APIKey, error) {
	row := d.QueryRowContext(ctx, "SELECT "+apiKeyColumns+" FROM api_keys WHERE key = ?", secret)
	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return key, err
}

// ListAPIKeys returns every key in creation order.
func ListAPIKeys(ctx context.Context, d *sql.DB) ([]models.APIKey, error) {
	rows, err := d.QueryContext(ctx, "SELECT "+apiKeyColumns+" FROM api_keys ORDER BY created_at, rowid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]models.APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}
	return keys, rows.Err()
}

// APIKeyNameExists reports whether another key already uses name.
// excludeID may be empty.
func APIKeyNameExists(ctx context.Context, d *sql.DB, name, excludeID string) (bool, error) {
	var count int
	err := d.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM api_keys WHERE name = ? AND id != ?",
		name, excludeID,
	).Scan(&count)
	return count > 0, err
}

// UpdateAPIKey applies the non-nil fields of u to the key with the given ID.
func UpdateAPIKey(ctx context.Context, d *sql.DB, id string, u models.KeyUpdate) error {
	if u.Empty() {
		exists, err := GetAPIKeyByID(ctx, d, id)
		if err != nil {
			return err
		}
		if exists == nil {
			return ErrNotFound
		}
		return nil
	}

	var (
		sets []string
		args []any
	)
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *u.Name)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*u.Status))
	}
	if u.RateLimit != nil {
		sets = append(sets, "rate_limit = ?")
		args = append(args, *u.RateLimit)
	}

	args = append(args, id)
	result, err := d.ExecContext(ctx,
		"UPDATE api_keys SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("update api key %s: %w", id, ErrConflict)
	}
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// IncrementAPIKeyUsage bumps request_count and sets last_used_at in a single
// statement so concurrent validations never lose an increment.
func IncrementAPIKeyUsage(ctx context.Context, d *sql.DB, id string, now time.Time) error {
	result, err := d.ExecContext(ctx,
		"UPDATE api_keys SET request_count = request_count + 1, last_used_at = ? WHERE id = ?",
		toMillis(now), id,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// DeleteAPIKey removes a key. Its usage events are kept.
func DeleteAPIKey(ctx context.Context, d *sql.DB, id string) error {
	result, err := d.ExecContext(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// CountAPIKeys returns the number of keys in the database.
func CountAPIKeys(ctx context.Context, d *sql.DB) (int, error) {
	var count int
	err := d.QueryRowContext(ctx, "SELECT COUNT(*) FROM api_keys").Scan(&count)
	return count, err
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
