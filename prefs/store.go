// Package prefs is an on-device key/value preference store in SQLite, grouped
// into named files the way mobile shared preferences are.
package prefs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// OnboardingFile and OnboardingCompleteKey locate the first-run flag.
	OnboardingFile        = "onboarding_pref"
	OnboardingCompleteKey = "onboarding_complete"
)

var ErrStoreClosed = errors.New("prefs: store is not open")

const schema = `
CREATE TABLE IF NOT EXISTS preferences (
	file       TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (file, key)
)`

// Store persists preferences in one SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("prefs: database path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("prefs: open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes
	// writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err = db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prefs: apply pragma %q: %w", pragma, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Bool returns the stored boolean, or def when the key was never written.
func (s *Store) Bool(ctx context.Context, file, key string, def bool) (bool, error) {
	if s == nil || s.db == nil {
		return def, ErrStoreClosed
	}
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE file = ? AND key = ?`, file, key,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("prefs: read %s/%s: %w", file, key, err)
	}
	return raw == "true", nil
}

// PutBool writes a boolean.
func (s *Store) PutBool(ctx context.Context, file, key string, value bool) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	raw := "false"
	if value {
		raw = "true"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (file, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (file, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		file, key, raw, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("prefs: write %s/%s: %w", file, key, err)
	}
	return nil
}

// Remove deletes a key. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, file, key string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM preferences WHERE file = ? AND key = ?`, file, key); err != nil {
		return fmt.Errorf("prefs: remove %s/%s: %w", file, key, err)
	}
	return nil
}

// Flag binds one boolean key. It satisfies onboarding.FlagStore.
type Flag struct {
	store *Store
	file  string
	key   string
}

func (s *Store) Flag(file, key string) *Flag {
	return &Flag{store: s, file: file, key: key}
}

// OnboardingFlag is the first-run completion flag.
func (s *Store) OnboardingFlag() *Flag {
	return s.Flag(OnboardingFile, OnboardingCompleteKey)
}

func (f *Flag) IsCompleted(ctx context.Context) (bool, error) {
	return f.store.Bool(ctx, f.file, f.key, false)
}

func (f *Flag) SetCompleted(ctx context.Context, completed bool) error {
	return f.store.PutBool(ctx, f.file, f.key, completed)
}
