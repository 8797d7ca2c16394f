// Package sqlite persists a versioned store on disk so the offline cache
// survives agent restarts. One database file per versioned store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type Provider struct {
	db *sql.DB
}

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL
);
`

// New opens (or creates) the database at path.
func New(path string) (*Provider, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}
	if _, err := db.Exec(createEntriesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store db: %w", err)
	}
	return &Provider{db: db}, nil
}

// InDir returns a provider factory that places one database file per store
// name under dir.
func InDir(dir string) func(name string) (*Provider, error) {
	return func(name string) (*Provider, error) {
		return New(filepath.Join(dir, name+".db"))
	}
}

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM entries WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store get: %w", err)
	}
	return value, true, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, _ int64) (bool, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (key, value) VALUES (?, ?)`,
		key, value,
	)
	if err != nil {
		return false, fmt.Errorf("store set: %w", err)
	}
	return true, nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("store del: %w", err)
	}
	return nil
}

func (p *Provider) Purge(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM entries`)
	if err != nil {
		return fmt.Errorf("store purge: %w", err)
	}
	return nil
}

func (p *Provider) Close(_ context.Context) error {
	return p.db.Close()
}
