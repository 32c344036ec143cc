package storage

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

// Handle is an owning reference to one directory-like node of the local
// store. Terminal nodes are written with all-or-nothing create-or-replace
// semantics.
type Handle interface {
	// Name returns the logical path of this node ("" for the root).
	Name() string

	// Child returns the named sub-directory, creating it when create is
	// set. A missing child without create is ErrNotFound.
	Child(name string, create bool) (Handle, error)

	// WriteFile atomically creates or replaces the named file.
	WriteFile(name string, data []byte) error

	// ReadFile returns the full contents of the named file.
	ReadFile(name string) ([]byte, error)

	// List returns the visible entries of this node, sorted by name.
	List() ([]Entry, error)
}

// Entry describes one node listed by a Handle.
type Entry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
}

var errNotDir = errors.New("not a directory")

// WriteFile walks relPath from h, creating missing intermediate segments,
// then writes the terminal file atomically.
func WriteFile(h Handle, relPath string, data []byte) error {
	dirs, file, err := splitPath(relPath)
	if err != nil {
		return &models.StorageError{Op: "write", Path: relPath, Err: err}
	}

	dir, err := walk(h, dirs, true)
	if err != nil {
		return err
	}

	return dir.WriteFile(file, data)
}

// ReadFile walks relPath from h and reads the terminal file.
func ReadFile(h Handle, relPath string) ([]byte, error) {
	dirs, file, err := splitPath(relPath)
	if err != nil {
		return nil, &models.StorageError{Op: "read", Path: relPath, Err: err}
	}

	dir, err := walk(h, dirs, false)
	if err != nil {
		return nil, err
	}

	return dir.ReadFile(file)
}

// ListFiles returns the names of the files (not directories) under relPath.
// An empty relPath lists h itself.
func ListFiles(h Handle, relPath string) ([]string, error) {
	var segments []string
	if cleaned := strings.Trim(path.Clean("/"+relPath), "/"); cleaned != "" {
		segments = strings.Split(cleaned, "/")
	}

	dir, err := walk(h, segments, false)
	if err != nil {
		return nil, err
	}

	entries, err := dir.List()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir {
			names = append(names, e.Name)
		}
	}

	return names, nil
}

func walk(h Handle, segments []string, create bool) (Handle, error) {
	cur := h
	for _, seg := range segments {
		next, err := cur.Child(seg, create)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// splitPath separates a slash-separated relative path into directory
// segments and the terminal file name.
func splitPath(relPath string) ([]string, string, error) {
	if relPath == "" {
		return nil, "", fmt.Errorf("%w: empty path", models.ErrInvalidName)
	}

	segments := strings.Split(strings.Trim(relPath, "/"), "/")
	for _, seg := range segments {
		if err := validateName(seg); err != nil {
			return nil, "", err
		}
	}

	return segments[:len(segments)-1], segments[len(segments)-1], nil
}

// validateName rejects names that could escape the node or collide with
// reserved (dot-prefixed) entries.
func validateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", models.ErrInvalidName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q is reserved", models.ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("%w: %q contains a separator", models.ErrInvalidName, name)
	}
	return nil
}

func joinName(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func checkSize(op, p string, data []byte, max int64) error {
	if max > 0 && int64(len(data)) > max {
		return &models.StorageError{
			Op:   op,
			Path: p,
			Err:  fmt.Errorf("%w: %d bytes (max: %d)", models.ErrTooLarge, len(data), max),
		}
	}
	return nil
}
