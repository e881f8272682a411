package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

var _ RecordStore = (*SQLiteStore)(nil)

// OpenSQLiteStore opens (creating if needed) the database at dataSourceName and
// applies the schema. The caller owns the handle and must Close it.
func OpenSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dataSourceName); !strings.HasPrefix(dataSourceName, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer, one tab's worth of traffic
	db.SetMaxIdleConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS records (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        collection TEXT NOT NULL,
        owner TEXT NOT NULL DEFAULT '',
        id TEXT NOT NULL,
        data TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE (collection, owner, id)
    );

    CREATE INDEX IF NOT EXISTS idx_records_scope ON records (collection, owner, seq);
    `
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, c Collection, owner, id string) (json.RawMessage, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM records WHERE collection = ? AND owner = ? AND id = ?",
		string(c), owner, id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to query %s record: %w", c, err)
	}
	return json.RawMessage(data), true, nil
}

// GetAll returns the owner's records in first-insertion order.
func (s *SQLiteStore) GetAll(ctx context.Context, c Collection, owner string) ([]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM records WHERE collection = ? AND owner = ? ORDER BY seq ASC",
		string(c), owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s records: %w", c, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c, err)
		}
		out = append(out, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", c, err)
	}
	return out, nil
}

// Put inserts or replaces a record. Replacing keeps the record's original position.
func (s *SQLiteStore) Put(ctx context.Context, c Collection, owner, id string, value any) error {
	if id == "" {
		return fmt.Errorf("cannot store %s record without an id", c)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", c, err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO records (collection, owner, id, data, updated_at) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (collection, owner, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
    `, string(c), owner, id, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert %s record: %w", c, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, c Collection, owner, id string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ? AND owner = ? AND id = ?",
		string(c), owner, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s record: %w", c, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context, c Collection, owner string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM records WHERE collection = ? AND owner = ?",
		string(c), owner)
	if err != nil {
		return fmt.Errorf("failed to clear %s records: %w", c, err)
	}
	return nil
}
