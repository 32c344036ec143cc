package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/events"
)

// JSONStore implements file-based slot storage. Each slot is one JSON file
// carrying a checksum and a backup of the previous value.
type JSONStore struct {
	baseDir string
	logger  *events.Logger

	mu sync.RWMutex
}

// NewJSONStore creates a JSON-based state store.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_state_store"),
	}, nil
}

// Load reads a slot, falling back to its backup when the primary copy is
// corrupt.
func (s *JSONStore) Load(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.statePath(key)

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"path": path,
	}).Debug("Loading state")

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	value, err := decodeEnvelope(data)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("State file corrupt")

		if backup, berr := s.loadBackup(key); berr == nil {
			s.logger.Warn("Loaded state from backup due to corruption")
			return backup, nil
		}
		return nil, ErrStateCorrupt
	}

	return value, nil
}

// Save writes a slot atomically, keeping the previous value as backup.
func (s *JSONStore) Save(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if !json.Valid(data) {
		return fmt.Errorf("state %s: value is not valid JSON", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.statePath(key)

	s.logger.WithFields(map[string]interface{}{
		"key":   key,
		"bytes": len(data),
	}).Debug("Saving state")

	wrapper := envelope{
		SchemaVersion: CurrentSchemaVersion,
		CreatedAt:     time.Now().UTC(),
		Data:          data,
	}
	wrapper.Checksum = checksum(wrapper)

	jsonData, err := json.MarshalIndent(wrapper, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state with checksum: %w", err)
	}

	// Only a readable primary is worth keeping as backup.
	if current, err := os.ReadFile(path); err == nil {
		if _, err := decodeEnvelope(current); err == nil {
			if err := s.copyFile(path, s.backupPath(key)); err != nil {
				s.logger.WithError(err).Warn("Failed to create backup")
			}
		}
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := file.Write(jsonData); err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Reset removes a slot and its backup.
func (s *JSONStore) Reset(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithField("key", key).Info("Resetting state")

	_ = os.Remove(s.statePath(key))
	_ = os.Remove(s.backupPath(key))

	return nil
}

// List returns all slot keys.
func (s *JSONStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasSuffix(name, ".json") {
			keys = append(keys, strings.TrimSuffix(name, ".json"))
		}
	}
	sort.Strings(keys)

	return keys, nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

// Helper methods

func (s *JSONStore) statePath(key string) string {
	return filepath.Join(s.baseDir, key+".json")
}

func (s *JSONStore) backupPath(key string) string {
	return s.statePath(key) + ".backup"
}

func (s *JSONStore) loadBackup(key string) ([]byte, error) {
	data, err := os.ReadFile(s.backupPath(key))
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(data)
}

func (s *JSONStore) copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func decodeEnvelope(raw []byte) ([]byte, error) {
	var wrapper envelope
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}

	if wrapper.Checksum != "" {
		stored := wrapper.Checksum
		wrapper.Checksum = ""
		if calculated := checksum(wrapper); calculated != stored {
			return nil, fmt.Errorf("checksum mismatch: expected %s, got %s", stored, calculated)
		}
	}

	if !json.Valid(wrapper.Data) {
		return nil, fmt.Errorf("payload is not valid JSON")
	}

	return wrapper.Data, nil
}

// checksum hashes the envelope with an empty checksum field.
func checksum(wrapper envelope) string {
	wrapper.Checksum = ""
	data, _ := json.Marshal(wrapper)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
