package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Default TTLs. Entries are served stale past their TTL; expiry only decides
// when CleanupJob may drop them.
const (
	DefaultTTL = 30 * 24 * time.Hour
)

// Entry is one stored cache row
type Entry struct {
	Key       string     `json:"key" yaml:"key"`
	Value     string     `json:"value" yaml:"value"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
}

// SQLiteStore implements domain.KeyValueStore on the cache_entries table.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore creates a store whose entries expire ttl after their last
// write. A zero ttl stores entries without expiry.
func NewSQLiteStore(db *sql.DB, ttl time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}
}

// Get returns the value regardless of expiration status.
// Stale data is better than an empty screen on cold start.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache_entries WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return value, true, nil
}

// GetIfFresh returns the value only if it has not expired.
func (s *SQLiteStore) GetIfFresh(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE key = ? AND (expires_at IS NULL OR expires_at > ?)",
		key, s.now().Unix(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value with expiration = now + ttl.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	now := s.now()

	var expiresAt any
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl).Unix()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO cache_entries (key, value, updated_at, expires_at) VALUES (?, ?, ?, ?)",
		key, value, now.Unix(), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes a specific entry.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at IS NOT NULL AND expires_at < ?",
		s.now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// List returns every entry whose key starts with prefix, ordered by key.
func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, updated_at, expires_at FROM cache_entries WHERE substr(key, 1, ?) = ? ORDER BY key",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			updatedAt int64
			expiresAt sql.NullInt64
		)
		if err := rows.Scan(&e.Key, &e.Value, &updatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		e.UpdatedAt = time.Unix(updatedAt, 0)
		if expiresAt.Valid {
			t := time.Unix(expiresAt.Int64, 0)
			e.ExpiresAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
