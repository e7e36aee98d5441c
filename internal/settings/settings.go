// Package settings is the local persistence collaborator: endpoint
// profiles and the remembered account live in a small SQLite file. The
// protocol core never touches this package; it only receives the
// resolved endpoint at connect time.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// ErrProfileNotFound is returned when no endpoint profile matches.
var ErrProfileNotFound = errors.New("profile not found")

// Endpoint is one named lobby endpoint profile.
type Endpoint struct {
	Name string
	Host string
	Port int
}

// Addr renders the profile as a dialable host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Store is the SQLite-backed settings store.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	name TEXT PRIMARY KEY,
	host TEXT NOT NULL,
	port INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Open opens (creating if needed) the settings database and seeds the
// built-in endpoint profiles on first run.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings schema: %w", err)
	}

	seed := `
INSERT OR IGNORE INTO profiles (name, host, port) VALUES
	('production', 'lobby.openlobby.net', 8851),
	('dev', 'localhost', 8851),
	('test', 'localhost', 8852);
`
	if _, err := db.Exec(seed); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed profiles: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Endpoint retrieves a profile by name.
func (s *Store) Endpoint(ctx context.Context, name string) (Endpoint, error) {
	var e Endpoint
	row := s.db.QueryRowContext(ctx, `SELECT name, host, port FROM profiles WHERE name = ?`, name)
	if err := row.Scan(&e.Name, &e.Host, &e.Port); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Endpoint{}, ErrProfileNotFound
		}
		return Endpoint{}, fmt.Errorf("select profile: %w", err)
	}
	return e, nil
}

// SetEndpoint creates or replaces a profile.
func (s *Store) SetEndpoint(ctx context.Context, e Endpoint) error {
	query := `
		INSERT INTO profiles (name, host, port) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET host = excluded.host, port = excluded.port
	`
	if _, err := s.db.ExecContext(ctx, query, e.Name, e.Host, e.Port); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

// Profiles lists every endpoint profile, sorted by name.
func (s *Store) Profiles(ctx context.Context) ([]Endpoint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, host, port FROM profiles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer rows.Close()

	var out []Endpoint
	for rows.Next() {
		var e Endpoint
		if err := rows.Scan(&e.Name, &e.Host, &e.Port); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RememberAccount stores the last account name used to log in.
func (s *Store) RememberAccount(ctx context.Context, username string) error {
	return s.setValue(ctx, "account", username)
}

// Account returns the remembered account name, empty if none.
func (s *Store) Account(ctx context.Context) (string, error) {
	return s.value(ctx, "account")
}

func (s *Store) setValue(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *Store) value(ctx context.Context, key string) (string, error) {
	var value string
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}
