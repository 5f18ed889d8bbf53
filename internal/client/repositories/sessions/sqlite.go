package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/neighborwatch/internal/client/backend"
	"github.com/dmitrijs2005/neighborwatch/internal/dbx"
)

// Storage keys.
const (
	KeySession = "auth.session"
	KeyUserID  = "auth.user_id"
)

// ErrSessionMismatch reports a stored session that disagrees with the
// user id index written beside it.
var ErrSessionMismatch = errors.New("stored session does not match user index")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, r.db, key)
}

func get(ctx context.Context, db dbx.DBTX, key string) ([]byte, error) {
	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM auth_storage WHERE storage_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auth_storage[%s]: %w", key, err)
	}
	return value, nil
}

func set(ctx context.Context, db dbx.DBTX, key string, value []byte) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO auth_storage (storage_key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(storage_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set auth_storage[%s]: %w", key, err)
	}
	return nil
}

// Load returns the stored session, or (nil, nil) when there is none. A
// corrupt entry, or one whose user does not match the user id index, is
// reported as an error.
func (r *SQLiteRepository) Load(ctx context.Context) (*backend.Session, error) {
	raw, err := r.Get(ctx, KeySession)
	if err != nil || raw == nil {
		return nil, err
	}
	var s backend.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode stored session: %w", err)
	}

	id, err := r.Get(ctx, KeyUserID)
	if err != nil {
		return nil, err
	}
	if id != nil && string(id) != s.User.ID {
		return nil, fmt.Errorf("%w: stored session belongs to %q, index says %q", ErrSessionMismatch, s.User.ID, id)
	}
	return &s, nil
}

// Save replaces the stored session and the user id index in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, s *backend.Session) error {
	if s == nil {
		return r.Clear(ctx)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := set(ctx, tx, KeySession, raw); err != nil {
			return err
		}
		return set(ctx, tx, KeyUserID, []byte(s.User.ID))
	})
}

// Clear removes every auth entry. Clearing an empty store is not an error.
func (r *SQLiteRepository) Clear(ctx context.Context) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM auth_storage WHERE storage_key IN (?, ?)`, KeySession, KeyUserID); err != nil {
			return fmt.Errorf("failed to clear auth_storage: %w", err)
		}
		return nil
	})
}
