package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// MaxCredentials is the number of saved networks kept.
const MaxCredentials = 5

// Credential is one saved network.
type Credential struct {
	Name   string `json:"name"`
	Secret string `json:"-"`
}

// Credentials is the bounded saved-network table.
type Credentials interface {
	// Save stores a network. A known name is updated in place; a new name is
	// appended, replacing the oldest entry when the table is full.
	Save(ctx context.Context, name, secret string) error

	// LoadAll returns every saved network, oldest first.
	LoadAll(ctx context.Context) ([]Credential, error)
}

// SQLiteCredentials implements Credentials on the wifi_credentials table.
type SQLiteCredentials struct {
	db *sql.DB
}

// NewSQLiteCredentials creates a credential table backed by an open, migrated database.
func NewSQLiteCredentials(db *sql.DB) *SQLiteCredentials {
	return &SQLiteCredentials{db: db}
}

// Save inserts or updates a network, evicting the oldest once more than
// MaxCredentials names are stored.
func (s *SQLiteCredentials) Save(ctx context.Context, name, secret string) error {
	if name == "" {
		return ErrEmptyName
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	res, err := tx.ExecContext(ctx,
		"UPDATE wifi_credentials SET secret = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE name = ?",
		secret, name)
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating credential: %w", err)
	}
	if updated > 0 {
		return commit(tx)
	}

	var next int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM wifi_credentials").Scan(&next); err != nil {
		return fmt.Errorf("allocating credential slot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO wifi_credentials (name, secret, seq) VALUES (?, ?, ?)",
		name, secret, next); err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM wifi_credentials WHERE seq NOT IN (
			SELECT seq FROM wifi_credentials ORDER BY seq DESC LIMIT ?
		)`, MaxCredentials); err != nil {
		return fmt.Errorf("evicting oldest credential: %w", err)
	}
	return commit(tx)
}

// LoadAll returns saved networks in the order they were first saved.
func (s *SQLiteCredentials) LoadAll(ctx context.Context) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, secret FROM wifi_credentials ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var creds []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.Name, &c.Secret); err != nil {
			return nil, fmt.Errorf("scanning credential: %w", err)
		}
		creds = append(creds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credentials: %w", err)
	}
	return creds, nil
}

func commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing credential: %w", err)
	}
	return nil
}

// MemoryCredentials is an in-memory Credentials table.
type MemoryCredentials struct {
	mu    sync.Mutex
	slots []Credential
}

// NewMemoryCredentials returns an empty table.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{}
}

// Save inserts or updates a network.
func (m *MemoryCredentials) Save(_ context.Context, name, secret string) error {
	if name == "" {
		return ErrEmptyName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.slots {
		if m.slots[i].Name == name {
			m.slots[i].Secret = secret
			return nil
		}
	}
	m.slots = append(m.slots, Credential{Name: name, Secret: secret})
	if len(m.slots) > MaxCredentials {
		m.slots = m.slots[len(m.slots)-MaxCredentials:]
	}
	return nil
}

// LoadAll returns a copy of the saved networks, oldest first.
func (m *MemoryCredentials) LoadAll(_ context.Context) ([]Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Credential, len(m.slots))
	copy(out, m.slots)
	return out, nil
}
