package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/scoutsync/internal/events"
)

// SQLiteStore implements SQLite-based slot storage.
type SQLiteStore struct {
	db     *sql.DB
	ownsDB bool
	logger *events.Logger
}

// OpenSQLite opens a database configured for a single local writer.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// NewSQLiteStore creates a SQLite state store with its own database.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	store, err := NewSQLiteStoreDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true

	return store, nil
}

// NewSQLiteStoreDB creates a state store on a shared database. Close does not
// close db.
func NewSQLiteStoreDB(db *sql.DB, logger *events.Logger) (*SQLiteStore, error) {
	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_state_store"),
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS slots (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        schema_version INTEGER NOT NULL,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Load retrieves a slot from the database.
func (s *SQLiteStore) Load(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.logger.WithField("key", key).Debug("Loading state from SQLite")

	var value string
	err := s.db.QueryRow(`SELECT value FROM slots WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}

	if !json.Valid([]byte(value)) {
		return nil, ErrStateCorrupt
	}

	return []byte(value), nil
}

// Save upserts a slot.
func (s *SQLiteStore) Save(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("state %s: value is not valid JSON", key)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":   key,
		"bytes": len(data),
	}).Debug("Saving state to SQLite")

	_, err := s.db.Exec(`
        INSERT INTO slots (key, value, schema_version, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET
            value = excluded.value,
            schema_version = excluded.schema_version,
            updated_at = CURRENT_TIMESTAMP
    `, key, string(data), CurrentSchemaVersion)
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	return nil
}

// Reset removes a slot.
func (s *SQLiteStore) Reset(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.logger.WithField("key", key).Info("Resetting state in SQLite")

	if _, err := s.db.Exec("DELETE FROM slots WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	return nil
}

// List returns all slot keys.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM slots ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("query slots: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Close closes the database when the store owns it.
func (s *SQLiteStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
