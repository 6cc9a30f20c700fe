package state

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"arcsync/internal/errdefs"
)

// SQLiteStore keeps state in a SQLite database with an items table as the
// working state and an items_backup table as the pre-run snapshot.
type SQLiteStore struct {
	db      *sql.DB
	items   map[string]string
	loaded  bool
	writeMu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database in the collection's
// working directory.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	dbPath := filepath.Join(dir, SQLiteFileName)
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(60000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errdefs.New(errdefs.KindState, "state.open", err)
	}

	// Single-writer discipline: one connection is all the run needs, and it
	// keeps SQLITE_BUSY out of the picture entirely.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, errdefs.New(errdefs.KindState, "state.open",
			fmt.Errorf("failed to create tables: %w", err))
	}

	return store, nil
}

func (s *SQLiteStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS items (
		identifier TEXT PRIMARY KEY,
		marker     TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items_backup (
		identifier TEXT PRIMARY KEY,
		marker     TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(query)
	return err
}

func (s *SQLiteStore) ensureLoaded() error {
	if s.loaded {
		return nil
	}

	rows, err := s.db.Query(`SELECT identifier, marker FROM items`)
	if err != nil {
		return errdefs.New(errdefs.KindState, "state.load", err)
	}
	defer rows.Close()

	items := make(map[string]string)
	for rows.Next() {
		var identifier, marker string
		if err := rows.Scan(&identifier, &marker); err != nil {
			return errdefs.New(errdefs.KindState, "state.load", err)
		}
		items[identifier] = marker
	}
	if err := rows.Err(); err != nil {
		return errdefs.New(errdefs.KindState, "state.load", err)
	}

	s.items = items
	s.loaded = true
	return nil
}

// Rotate replaces the backup snapshot with the current working state in one
// transaction; the working state stays in place.
func (s *SQLiteStore) Rotate() error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errdefs.New(errdefs.KindState, "state.rotate", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM items_backup`); err != nil {
		return errdefs.New(errdefs.KindState, "state.rotate", err)
	}
	if _, err := tx.Exec(`INSERT INTO items_backup SELECT identifier, marker, updated_at FROM items`); err != nil {
		return errdefs.New(errdefs.KindState, "state.rotate", err)
	}
	if err := tx.Commit(); err != nil {
		return errdefs.New(errdefs.KindState, "state.rotate", err)
	}
	return nil
}

// Load returns a copy of the mapping.
func (s *SQLiteStore) Load() (map[string]string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(s.items))
	for identifier, marker := range s.items {
		out[identifier] = marker
	}
	return out, nil
}

// Lookup consults the cached mapping.
func (s *SQLiteStore) Lookup(identifier string) (string, bool) {
	marker, ok := s.items[identifier]
	return marker, ok
}

// Record upserts the entry for identifier inside a transaction.
func (s *SQLiteStore) Record(identifier, marker string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return errdefs.New(errdefs.KindState, "state.record", err).WithItem(identifier)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO items (identifier, marker, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(identifier) DO UPDATE SET
		marker     = excluded.marker,
		updated_at = excluded.updated_at
	`

	if _, err := tx.Exec(query, identifier, marker, time.Now().UTC()); err != nil {
		return errdefs.New(errdefs.KindState, "state.record", err).WithItem(identifier)
	}
	if err := tx.Commit(); err != nil {
		return errdefs.New(errdefs.KindState, "state.record", err).WithItem(identifier)
	}

	s.items[identifier] = marker
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
