package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTable is the table research workflow entries are stored in.
const DefaultTable = "generate_research_report_workflow"

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLite is a namespaced key-value backend stored in a single sqlite table.
type SQLite struct {
	readDB  *sql.DB
	writeDB *sql.DB
	table   string
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// table exists. The special path ":memory:" keeps everything in memory.
func OpenSQLite(path, table string) (*SQLite, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	writeDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	readDB := writeDB
	if !memory {
		readDB, err = sql.Open("sqlite", path)
		if err != nil {
			_ = writeDB.Close()
			return nil, fmt.Errorf("opening read db: %w", err)
		}
	}

	s := &SQLite{readDB: readDB, writeDB: writeDB, table: table}
	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.writeDB.Exec(fmt.Sprintf(`
		PRAGMA journal_mode = WAL;
		CREATE TABLE IF NOT EXISTS %[1]s (
			namespace  TEXT NOT NULL,
			topic      TEXT NOT NULL,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (namespace, topic)
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_updated ON %[1]s(updated_at DESC);
	`, s.table))
	if err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close closes both connection pools.
func (s *SQLite) Close() error {
	var errs []error
	if s.readDB != nil && s.readDB != s.writeDB {
		errs = append(errs, s.readDB.Close())
	}
	if s.writeDB != nil {
		errs = append(errs, s.writeDB.Close())
	}
	return errors.Join(errs...)
}

// Load returns the stored value; ok is false when nothing is stored.
func (s *SQLite) Load(namespace, topic string) ([]byte, bool, error) {
	var value []byte
	err := s.readDB.QueryRow(
		fmt.Sprintf(`SELECT value FROM %s WHERE namespace = ? AND topic = ?`, s.table),
		namespace, topic,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading %s/%s: %w", namespace, topic, err)
	}
	return value, true, nil
}

// Save upserts a value.
func (s *SQLite) Save(namespace, topic string, value []byte) error {
	_, err := s.writeDB.Exec(fmt.Sprintf(`
		INSERT INTO %s (namespace, topic, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, topic) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, s.table), namespace, topic, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving %s/%s: %w", namespace, topic, err)
	}
	return nil
}

// Delete removes a value. Missing rows are not an error.
func (s *SQLite) Delete(namespace, topic string) error {
	_, err := s.writeDB.Exec(
		fmt.Sprintf(`DELETE FROM %s WHERE namespace = ? AND topic = ?`, s.table),
		namespace, topic,
	)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", namespace, topic, err)
	}
	return nil
}
