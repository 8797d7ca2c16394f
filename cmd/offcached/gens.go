package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/unkn0wn-root/offcache/generation"
)

// sqliteGenerations persists the deployment generation counter next to the
// sqlite store files, so generations stay monotonic across restarts.
type sqliteGenerations struct {
	db *sql.DB
}

var _ generation.Store = (*sqliteGenerations)(nil)

const createGensTable = `
CREATE TABLE IF NOT EXISTS generations (
	app TEXT PRIMARY KEY,
	gen INTEGER NOT NULL
);
`

func newSQLiteGenerations(dir string) (*sqliteGenerations, error) {
	db, err := sql.Open("sqlite", filepath.Join(dir, "generations.db"))
	if err != nil {
		return nil, fmt.Errorf("open generations db: %w", err)
	}
	if _, err := db.Exec(createGensTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate generations db: %w", err)
	}
	return &sqliteGenerations{db: db}, nil
}

func (s *sqliteGenerations) Current(ctx context.Context, app string) (uint64, error) {
	var gen uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT gen FROM generations WHERE app = ?`, app,
	).Scan(&gen)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("generation current: %w", err)
	}
	return gen, nil
}

func (s *sqliteGenerations) Next(ctx context.Context, app string) (uint64, error) {
	var gen uint64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO generations (app, gen) VALUES (?, 1)
		 ON CONFLICT(app) DO UPDATE SET gen = gen + 1
		 RETURNING gen`, app,
	).Scan(&gen)
	if err != nil {
		return 0, fmt.Errorf("generation next: %w", err)
	}
	return gen, nil
}

func (s *sqliteGenerations) Close(context.Context) error {
	return s.db.Close()
}
