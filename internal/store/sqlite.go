package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the on-device database. All tables share one entities table
// keyed by (tbl, id).
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection: a single local writer, and ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open sqlite store at %s: %w", dbPath, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

const upsertQuery = `
	INSERT INTO entities (tbl, id, data, updated_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (tbl, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
`

func (s *SQLiteStore) Upsert(ctx context.Context, table, key string, data []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, table, key, data, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, table string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, table, r.Key, r.Data, now); err != nil {
			return fmt.Errorf("failed to upsert %s/%s: %w", table, r.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, table, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE tbl = $1 AND id = $2`, table, key); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", table, key, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM entities WHERE tbl = $1 AND id = $2`, table, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", table, key, err)
	}
	return data, nil
}

func (s *SQLiteStore) ScanAll(ctx context.Context, table string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM entities WHERE tbl = $1 ORDER BY id`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Key, &r.Data); err != nil {
			return nil, fmt.Errorf("failed to scan %s record: %w", table, err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE tbl = $1`, table); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
