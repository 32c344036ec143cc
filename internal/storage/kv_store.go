package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
)

// Namespace isolates this application's tree inside the key-value database.
const Namespace = "scoutsync"

// KVHandle is a Handle backed by rows of an embedded SQLite database.
type KVHandle struct {
	db          *sql.DB
	namespace   string
	name        string
	maxFileSize int64
	logger      *events.Logger
}

// NewKVHandle opens the root node of namespace in db, creating the schema.
func NewKVHandle(db *sql.DB, namespace string, maxFileSize int64, logger *events.Logger) (*KVHandle, error) {
	schema := `
    CREATE TABLE IF NOT EXISTS entries (
        namespace TEXT NOT NULL,
        parent TEXT NOT NULL,
        name TEXT NOT NULL,
        is_dir INTEGER NOT NULL,
        data BLOB,
        updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
        PRIMARY KEY (namespace, parent, name)
    );

    CREATE INDEX IF NOT EXISTS idx_entries_parent ON entries(namespace, parent);
    `

	if _, err := db.Exec(schema); err != nil {
		return nil, &models.StorageError{Op: "open", Path: namespace, Err: fmt.Errorf("create schema: %w", err)}
	}

	return &KVHandle{
		db:          db,
		namespace:   namespace,
		maxFileSize: maxFileSize,
		logger:      logger.WithFields(map[string]interface{}{"component": "kv_store", "namespace": namespace}),
	}, nil
}

// Name returns the logical path of this node.
func (h *KVHandle) Name() string {
	return h.name
}

// Child returns a sub-directory handle.
func (h *KVHandle) Child(name string, create bool) (Handle, error) {
	logical := joinName(h.name, name)
	if err := validateName(name); err != nil {
		return nil, &models.StorageError{Op: "child", Path: logical, Err: err}
	}

	var isDir bool
	err := h.db.QueryRow(
		`SELECT is_dir FROM entries WHERE namespace = ? AND parent = ? AND name = ?`,
		h.namespace, h.name, name,
	).Scan(&isDir)

	switch {
	case err == nil && !isDir:
		return nil, &models.StorageError{Op: "child", Path: logical, Err: errNotDir}
	case err == nil:
	case errors.Is(err, sql.ErrNoRows) && !create:
		return nil, &models.StorageError{Op: "child", Path: logical, Err: models.ErrNotFound}
	case errors.Is(err, sql.ErrNoRows):
		if _, err := h.db.Exec(
			`INSERT OR IGNORE INTO entries (namespace, parent, name, is_dir) VALUES (?, ?, ?, 1)`,
			h.namespace, h.name, name,
		); err != nil {
			return nil, &models.StorageError{Op: "mkdir", Path: logical, Err: err}
		}
	default:
		return nil, &models.StorageError{Op: "child", Path: logical, Err: err}
	}

	return &KVHandle{
		db:          h.db,
		namespace:   h.namespace,
		name:        logical,
		maxFileSize: h.maxFileSize,
		logger:      h.logger,
	}, nil
}

// WriteFile upserts the file inside a transaction.
func (h *KVHandle) WriteFile(name string, data []byte) error {
	logical := joinName(h.name, name)
	if err := validateName(name); err != nil {
		return &models.StorageError{Op: "write", Path: logical, Err: err}
	}
	if err := checkSize("write", logical, data, h.maxFileSize); err != nil {
		return err
	}

	h.logger.WithFields(map[string]interface{}{
		"path": logical,
		"size": len(data),
	}).Debug("Writing entry")

	tx, err := h.db.Begin()
	if err != nil {
		return &models.StorageError{Op: "write", Path: logical, Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
        INSERT INTO entries (namespace, parent, name, is_dir, data, updated_at)
        VALUES (?, ?, ?, 0, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(namespace, parent, name) DO UPDATE SET
            data = excluded.data,
            updated_at = CURRENT_TIMESTAMP
        WHERE entries.is_dir = 0
    `, h.namespace, h.name, name, data)
	if err != nil {
		return &models.StorageError{Op: "write", Path: logical, Err: err}
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &models.StorageError{Op: "write", Path: logical, Err: errors.New("is a directory")}
	}

	if err := tx.Commit(); err != nil {
		return &models.StorageError{Op: "commit", Path: logical, Err: err}
	}

	return nil
}

// ReadFile retrieves file contents.
func (h *KVHandle) ReadFile(name string) ([]byte, error) {
	logical := joinName(h.name, name)
	if err := validateName(name); err != nil {
		return nil, &models.StorageError{Op: "read", Path: logical, Err: err}
	}

	var data []byte
	err := h.db.QueryRow(
		`SELECT data FROM entries WHERE namespace = ? AND parent = ? AND name = ? AND is_dir = 0`,
		h.namespace, h.name, name,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.StorageError{Op: "read", Path: logical, Err: models.ErrNotFound}
	}
	if err != nil {
		return nil, &models.StorageError{Op: "read", Path: logical, Err: err}
	}

	if data == nil {
		data = []byte{}
	}
	return data, nil
}

// List returns the direct children of this node.
func (h *KVHandle) List() ([]Entry, error) {
	rows, err := h.db.Query(
		`SELECT name, is_dir FROM entries WHERE namespace = ? AND parent = ? ORDER BY name`,
		h.namespace, h.name,
	)
	if err != nil {
		return nil, &models.StorageError{Op: "list", Path: h.name, Err: err}
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.IsDir); err != nil {
			return nil, &models.StorageError{Op: "list", Path: h.name, Err: err}
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, &models.StorageError{Op: "list", Path: h.name, Err: err}
	}

	return entries, nil
}
