package queue_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/scoutsync/internal/services/queue"
)

// corruptSlot overwrites the slot file and removes its backup.
func corruptSlot(t *testing.T, dir string) {
	t.Helper()
	path := filepath.Join(dir, queue.SlotKey+".json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
	_ = os.Remove(path + ".backup")
}
