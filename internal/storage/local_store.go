package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
)

// DirHandle is a Handle backed by a filesystem directory.
type DirHandle struct {
	dir         string
	name        string
	maxFileSize int64
	logger      *events.Logger
}

// NewDirHandle opens (creating if needed) a directory-backed root.
func NewDirHandle(baseDir string, maxFileSize int64, logger *events.Logger) (*DirHandle, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, &models.StorageError{Op: "open", Path: baseDir, Err: err}
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, &models.StorageError{Op: "open", Path: absPath, Err: err}
	}

	return &DirHandle{
		dir:         absPath,
		maxFileSize: maxFileSize,
		logger:      logger.WithField("component", "dir_store"),
	}, nil
}

// Probe verifies the directory accepts writes.
func (h *DirHandle) Probe() error {
	f, err := os.CreateTemp(h.dir, ".probe-*")
	if err != nil {
		return &models.StorageError{Op: "probe", Path: h.dir, Err: err}
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Path returns the absolute directory of this node.
func (h *DirHandle) Path() string {
	return h.dir
}

// Name returns the logical path of this node.
func (h *DirHandle) Name() string {
	return h.name
}

// Child returns a sub-directory handle.
func (h *DirHandle) Child(name string, create bool) (Handle, error) {
	logical := joinName(h.name, name)
	if err := validateName(name); err != nil {
		return nil, &models.StorageError{Op: "child", Path: logical, Err: err}
	}

	full := filepath.Join(h.dir, name)
	stat, err := os.Stat(full)
	switch {
	case err == nil && !stat.IsDir():
		return nil, &models.StorageError{Op: "child", Path: logical, Err: errNotDir}
	case err == nil:
	case os.IsNotExist(err) && !create:
		return nil, &models.StorageError{Op: "child", Path: logical, Err: models.ErrNotFound}
	case os.IsNotExist(err):
		if err := os.Mkdir(full, 0755); err != nil && !os.IsExist(err) {
			return nil, &models.StorageError{Op: "mkdir", Path: logical, Err: err}
		}
	default:
		return nil, &models.StorageError{Op: "child", Path: logical, Err: err}
	}

	return &DirHandle{
		dir:         full,
		name:        logical,
		maxFileSize: h.maxFileSize,
		logger:      h.logger,
	}, nil
}

// WriteFile saves data atomically: temp file, full write, fsync, rename.
func (h *DirHandle) WriteFile(name string, data []byte) error {
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
	}).Debug("Writing file")

	target := filepath.Join(h.dir, name)
	if stat, err := os.Stat(target); err == nil && stat.IsDir() {
		return &models.StorageError{Op: "write", Path: logical, Err: errors.New("is a directory")}
	}

	// Dot-prefixed so a leftover temp file is never listed.
	tempPath := filepath.Join(h.dir, fmt.Sprintf(".%s.tmp.%d", name, time.Now().UnixNano()))

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return &models.StorageError{Op: "write", Path: logical, Err: err}
	}

	success := false
	defer func() {
		if !success {
			file.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return &models.StorageError{Op: "write", Path: logical, Err: err}
	}

	if err := file.Sync(); err != nil {
		return &models.StorageError{Op: "sync", Path: logical, Err: err}
	}

	if err := file.Close(); err != nil {
		return &models.StorageError{Op: "close", Path: logical, Err: err}
	}

	if err := os.Rename(tempPath, target); err != nil {
		return &models.StorageError{Op: "rename", Path: logical, Err: err}
	}

	success = true
	return nil
}

// ReadFile retrieves file contents.
func (h *DirHandle) ReadFile(name string) ([]byte, error) {
	logical := joinName(h.name, name)
	if err := validateName(name); err != nil {
		return nil, &models.StorageError{Op: "read", Path: logical, Err: err}
	}

	target := filepath.Join(h.dir, name)

	// Symlinks could point outside the store.
	if stat, err := os.Lstat(target); err == nil && stat.Mode()&os.ModeSymlink != 0 {
		return nil, &models.StorageError{Op: "read", Path: logical, Err: errors.New("symlinks not allowed")}
	}

	data, err := os.ReadFile(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.StorageError{Op: "read", Path: logical, Err: models.ErrNotFound}
		}
		return nil, &models.StorageError{Op: "read", Path: logical, Err: err}
	}

	return data, nil
}

// List returns directory contents, hiding reserved dot entries.
func (h *DirHandle) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(h.dir)
	if err != nil {
		return nil, &models.StorageError{Op: "list", Path: h.name, Err: err}
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, e := range dirEntries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		entries = append(entries, Entry{Name: e.Name(), IsDir: e.IsDir()})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
