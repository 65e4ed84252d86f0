// Package sqlite provides a durable, SQLite-backed offsettracker.Tracker
// built on modernc.org/sqlite (pure-Go, no cgo), for the HTTP event-source
// consumer's per-subscription offset checkpoints to survive process
// restarts.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brackenhill/eventflow/pkg/offsettracker"
)

// OffsetStore is a SQLite-based offsettracker.Tracker. It can share a
// database with other stores or use one of its own.
type OffsetStore struct {
	db *sql.DB
}

type offsetStoreConfig struct {
	autoMigrate bool
}

func defaultOffsetStoreConfig() offsetStoreConfig {
	return offsetStoreConfig{autoMigrate: true}
}

// OffsetStoreOption configures an OffsetStore.
type OffsetStoreOption func(*offsetStoreConfig)

// WithOffsetAutoMigrate controls whether NewOffsetStore runs pending
// migrations on construction. Enabled by default.
func WithOffsetAutoMigrate(enabled bool) OffsetStoreOption {
	return func(c *offsetStoreConfig) { c.autoMigrate = enabled }
}

// NewOffsetStore creates an OffsetStore backed by db. By default it runs the
// offset-table migration before returning.
//
// Example usage:
//
//	db, err := sql.Open("sqlite", "offsets.db")
//	store, err := sqlite.NewOffsetStore(db)
func NewOffsetStore(db *sql.DB, opts ...OffsetStoreOption) (*OffsetStore, error) {
	cfg := defaultOffsetStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	store := &OffsetStore{db: db}

	if cfg.autoMigrate {
		if err := runOffsetMigrations(db); err != nil {
			return nil, fmt.Errorf("sqlite: run offset migrations: %w", err)
		}
	}

	return store, nil
}

// DB returns the underlying connection, for callers that want to share it
// with another store.
func (s *OffsetStore) DB() *sql.DB {
	return s.db
}

// GetOffset returns the subscription's current offsettracker.OffsetState.
func (s *OffsetStore) GetOffset(ctx context.Context, subscriptionName string) (offsettracker.OffsetState, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`SELECT offset_value FROM subscription_offsets WHERE subscription_name = ?`,
		subscriptionName,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return offsettracker.NoOffset, nil
	}
	if err != nil {
		return offsettracker.OffsetState{}, fmt.Errorf("sqlite: load offset for %q: %w", subscriptionName, err)
	}
	return offsettracker.LastProcessed(value), nil
}

// SaveOffset durably upserts value as the last offset processed by
// subscriptionName.
func (s *OffsetStore) SaveOffset(ctx context.Context, subscriptionName string, value int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_offsets (subscription_name, offset_value, updated_at)
		VALUES (?, ?, unixepoch())
		ON CONFLICT(subscription_name) DO UPDATE SET
			offset_value = excluded.offset_value,
			updated_at = excluded.updated_at
	`, subscriptionName, value)
	if err != nil {
		return fmt.Errorf("sqlite: save offset for %q: %w", subscriptionName, err)
	}
	return nil
}

var _ offsettracker.Tracker = (*OffsetStore)(nil)
