package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/state"
)

// Options selects and configures the storage backend.
type Options struct {
	Backend     string // config.BackendAuto, BackendDir or BackendKV
	Dir         string
	DBPath      string
	MaxFileSize int64
}

// OptionsFromConfig maps storage configuration to Options.
func OptionsFromConfig(cfg *config.StorageConfig) Options {
	return Options{
		Backend:     cfg.Backend,
		Dir:         cfg.RootDir,
		DBPath:      cfg.DBPath,
		MaxFileSize: cfg.MaxFileSize,
	}
}

// Root is the acquired top of the local store together with its slot store.
type Root struct {
	Handle

	kind  string
	slots state.Store
	db    *sql.DB
}

// AcquireRoot picks the backend once: a usable directory when one is
// configured, otherwise the embedded database. The areas matches, pit,
// exports and logs are created when missing.
func AcquireRoot(opts Options, logger *events.Logger) (*Root, error) {
	logger = logger.WithField("component", "storage")

	backend := opts.Backend
	if backend == "" {
		backend = config.BackendAuto
	}

	var (
		root *Root
		err  error
	)

	switch backend {
	case config.BackendDir:
		root, err = acquireDir(opts, logger)
	case config.BackendKV:
		root, err = acquireKV(opts, logger)
	case config.BackendAuto:
		if opts.Dir != "" {
			root, err = acquireDir(opts, logger)
			if err != nil {
				logger.WithError(err).Warn("Directory backend unusable, falling back to embedded database")
			}
		}
		if root == nil {
			root, err = acquireKV(opts, logger)
		}
	default:
		return nil, fmt.Errorf("%w: storage backend %q", models.ErrInvalidConfig, backend)
	}
	if err != nil {
		return nil, err
	}

	for _, area := range models.Areas {
		if _, err := root.Child(area, true); err != nil {
			root.Close()
			return nil, fmt.Errorf("ensure area %s: %w", area, err)
		}
	}

	logger.WithField("backend", root.kind).Info("Local store ready")
	return root, nil
}

func acquireDir(opts Options, logger *events.Logger) (*Root, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: storage.root_dir is empty", models.ErrInvalidConfig)
	}

	h, err := NewDirHandle(opts.Dir, opts.MaxFileSize, logger)
	if err != nil {
		return nil, err
	}
	if err := h.Probe(); err != nil {
		return nil, err
	}

	slots, err := state.NewJSONStore(filepath.Join(h.Path(), ".state"), logger)
	if err != nil {
		return nil, &models.StorageError{Op: "open", Path: ".state", Err: err}
	}

	return &Root{Handle: h, kind: config.BackendDir, slots: slots}, nil
}

func acquireKV(opts Options, logger *events.Logger) (*Root, error) {
	if opts.DBPath == "" {
		return nil, fmt.Errorf("%w: storage.db_path is empty", models.ErrInvalidConfig)
	}

	db, err := state.OpenSQLite(opts.DBPath)
	if err != nil {
		return nil, &models.StorageError{Op: "open", Path: opts.DBPath, Err: err}
	}

	h, err := NewKVHandle(db, Namespace, opts.MaxFileSize, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	slots, err := state.NewSQLiteStoreDB(db, logger)
	if err != nil {
		db.Close()
		return nil, &models.StorageError{Op: "open", Path: opts.DBPath, Err: err}
	}

	return &Root{Handle: h, kind: config.BackendKV, slots: slots, db: db}, nil
}

// Kind returns the backend in use.
func (r *Root) Kind() string {
	return r.kind
}

// Slots returns the slot store living beside the record tree.
func (r *Root) Slots() state.Store {
	return r.slots
}

// Area returns the handle of a top-level area.
func (r *Root) Area(name string) (Handle, error) {
	return r.Child(name, false)
}

// Close releases the slot store and database.
func (r *Root) Close() error {
	var firstErr error
	if r.slots != nil {
		if err := r.slots.Close(); err != nil {
			firstErr = err
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
