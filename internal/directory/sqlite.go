package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/stashkv/stash/internal/tier"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	tier TEXT NOT NULL DEFAULT 'free',
	api_key_hash TEXT UNIQUE NOT NULL,
	created_at TIMESTAMP NOT NULL,
	key_created_at TIMESTAMP NOT NULL,
	last_used_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_users_api_key_hash ON users(api_key_hash);
`

// SQLiteDirectory implements Directory using SQLite. Intended for local and
// single-node deployments; use PostgresDirectory in production.
type SQLiteDirectory struct {
	db *sql.DB
}

// NewSQLite opens (or creates) a SQLite directory at dsn and applies the
// schema. Use ":memory:" for an ephemeral directory in tests.
func NewSQLite(dsn string) (*SQLiteDirectory, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to open sqlite database: %w", err)
	}

	// The sqlite driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent key touches.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("directory: failed to ping sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("directory: failed to apply schema: %w", err)
	}

	return &SQLiteDirectory{db: db}, nil
}

// DB exposes the underlying database connection.
func (d *SQLiteDirectory) DB() *sql.DB {
	return d.db
}

// LookupByKeyHash returns the user owning the API key with the given hash.
func (d *SQLiteDirectory) LookupByKeyHash(ctx context.Context, keyHash string) (*User, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, tier, created_at, key_created_at, last_used_at
		FROM users
		WHERE api_key_hash = ?
	`, keyHash)
	return scanUser(row)
}

// GetUser returns a user by ID.
func (d *SQLiteDirectory) GetUser(ctx context.Context, id string) (*User, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT id, tier, created_at, key_created_at, last_used_at
		FROM users
		WHERE id = ?
	`, id)
	return scanUser(row)
}

// CreateUser creates a user with a freshly generated API key.
func (d *SQLiteDirectory) CreateUser(ctx context.Context, id, tierName string) (*User, string, error) {
	id, tierName, apiKey, err := prepareNewUser(id, tierName)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO users (id, tier, api_key_hash, created_at, key_created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, tierName, HashKey(apiKey), now, now)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, "", ErrUserExists
		}
		return nil, "", fmt.Errorf("directory: failed to create user: %w", err)
	}

	return &User{ID: id, Tier: tierName, CreatedAt: now, KeyCreatedAt: now}, apiKey, nil
}

// RegenerateKey replaces the user's API key and returns the new plaintext.
func (d *SQLiteDirectory) RegenerateKey(ctx context.Context, id string) (string, error) {
	apiKey, err := NewAPIKey()
	if err != nil {
		return "", err
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE users
		SET api_key_hash = ?, key_created_at = ?
		WHERE id = ?
	`, HashKey(apiKey), time.Now().UTC(), id)
	if err != nil {
		return "", fmt.Errorf("directory: failed to regenerate key: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("directory: failed to regenerate key: %w", err)
	}
	if n == 0 {
		return "", ErrNotFound
	}
	return apiKey, nil
}

// TouchLastUsed records that the user's key was just used.
func (d *SQLiteDirectory) TouchLastUsed(ctx context.Context, id string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users SET last_used_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("directory: failed to touch last_used_at: %w", err)
	}
	return nil
}

// Ping verifies connectivity.
func (d *SQLiteDirectory) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%v: %w", err, ErrUnavailable)
	}
	return nil
}

// Close closes the database connection.
func (d *SQLiteDirectory) Close() error {
	return d.db.Close()
}

// scanUser scans one user row, mapping sql.ErrNoRows to ErrNotFound.
func scanUser(row *sql.Row) (*User, error) {
	var (
		u        User
		lastUsed sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Tier, &u.CreatedAt, &u.KeyCreatedAt, &lastUsed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: failed to scan user: %w", err)
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		u.LastUsedAt = &t
	}
	return &u, nil
}

// prepareNewUser validates inputs for user creation, generates an ID when
// none is given, and issues a fresh API key.
func prepareNewUser(id, tierName string) (string, string, string, error) {
	if id == "" {
		id = "user_" + uuid.NewString()
	}
	if !ValidUserID(id) {
		return "", "", "", ErrInvalidUserID
	}

	parsed, err := tier.Parse(tierName)
	if err != nil {
		return "", "", "", err
	}

	apiKey, err := NewAPIKey()
	if err != nil {
		return "", "", "", err
	}

	return id, parsed.String(), apiKey, nil
}
