package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

// Store persists small named JSON documents ("slots") such as the pending
// queue. Values are raw JSON; callers own their encoding.
type Store interface {
	// Load retrieves the value stored under key.
	Load(key string) ([]byte, error)

	// Save atomically replaces the value stored under key.
	Save(key string, data []byte) error

	// Reset removes the value stored under key.
	Reset(key string) error

	// List returns all keys with a stored value.
	List() ([]string, error)

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrStateNotFound = fmt.Errorf("state %w", models.ErrNotFound)
	ErrStateCorrupt  = errors.New("state file is corrupt")
	ErrInvalidKey    = fmt.Errorf("state key: %w", models.ErrInvalidName)
)

// envelope wraps a slot value with store metadata.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	CreatedAt     time.Time       `json:"created_at"`
	Checksum      string          `json:"checksum,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

func validateKey(key string) error {
	if key == "" || models.NormalizeID(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
