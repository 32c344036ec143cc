package storage_test

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/storage"
)

func TestPathSanitization(t *testing.T) {
	tmpDir := t.TempDir()
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	root, err := storage.NewDirHandle(tmpDir, 0, logger)
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{
			name:    "normal path",
			path:    "matches/test.json",
			wantErr: false,
		},
		{
			name:    "leading slash",
			path:    "/pit/test.json",
			wantErr: false,
		},
		{
			name:    "parent directory traversal",
			path:    "../etc/passwd",
			wantErr: true,
		},
		{
			name:    "embedded parent traversal",
			path:    "matches/../../etc/passwd",
			wantErr: true,
		},
		{
			name:    "current directory segment",
			path:    "matches/./test.json",
			wantErr: true,
		},
		{
			name:    "hidden file",
			path:    "matches/.state",
			wantErr: true,
		},
		{
			name:    "empty segment",
			path:    "matches//test.json",
			wantErr: true,
		},
		{
			name:    "empty path",
			path:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := storage.WriteFile(root, tt.path, []byte("{}"))
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrInvalidName)
				assert.True(t, models.IsStorage(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}

	// Nothing may have escaped the root.
	_, err = os.Stat(filepath.Join(tmpDir, "..", "etc", "passwd"))
	assert.True(t, os.IsNotExist(err))
}

func TestSymlinkHandling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Symlink test requires Unix-like OS")
	}

	tmpDir := t.TempDir()
	storeDir := filepath.Join(tmpDir, "store")
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.DebugLevel, "json", &buf)

	root, err := storage.NewDirHandle(storeDir, 0, logger)
	require.NoError(t, err)

	externalPath := filepath.Join(tmpDir, "external.json")
	require.NoError(t, os.WriteFile(externalPath, []byte(`{"secret":true}`), 0644))
	require.NoError(t, os.Symlink(externalPath, filepath.Join(storeDir, "link.json")))

	// Reads never follow symlinks.
	_, err = storage.ReadFile(root, "link.json")
	assert.Error(t, err)
	assert.True(t, models.IsStorage(err))
}

func TestMaxFileSize(t *testing.T) {
	root, err := storage.NewDirHandle(t.TempDir(), 8, events.NewNopLogger())
	require.NoError(t, err)

	err = storage.WriteFile(root, "matches/big.json", []byte(`{"too":"large"}`))
	assert.ErrorIs(t, err, models.ErrTooLarge)

	require.NoError(t, storage.WriteFile(root, "matches/ok.json", []byte(`{}`)))
}
