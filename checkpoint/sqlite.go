package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	fgcheckpoint "github.com/randalmurphal/flowgraph/pkg/flowgraph/checkpoint"
	_ "modernc.org/sqlite"
)

// SQLiteStore is flowgraph's SQLite store with sealed payloads. A second
// handle on the same database answers Runs, which flowgraph does not offer.
type SQLiteStore struct {
	sealed

	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite checkpoint database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	inner, err := fgcheckpoint.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		inner.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		inner.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{sealed: sealed{inner}, db: db}, nil
}

// Runs implements Store.
func (s *SQLiteStore) Runs() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT run_id FROM checkpoints ORDER BY run_id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Close releases both database handles.
func (s *SQLiteStore) Close() error {
	return errors.Join(s.db.Close(), s.sealed.Close())
}
