package sync

import (
	"errors"
	"sync"

	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/storage"
)

// errStaleRetry means the local record changed while its older content was
// in flight. The entry stays queued so the next pass sends the newer content.
var errStaleRetry = errors.New("local record changed during retry")

// localWriter serializes every check-then-write against the record tree so
// a background pass never overwrites a newer save.
type localWriter struct {
	mu   sync.Mutex
	root storage.Handle

	pathMu sync.Mutex
	paths  map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newLocalWriter(root storage.Handle) *localWriter {
	return &localWriter{root: root, paths: make(map[string]*pathLock)}
}

// lock holds relPath across a remote round trip and the local write that
// follows it, so two versions of one record never reach the remote out of
// order. The returned func releases it.
func (w *localWriter) lock(relPath string) func() {
	w.pathMu.Lock()
	l, ok := w.paths[relPath]
	if !ok {
		l = &pathLock{}
		w.paths[relPath] = l
	}
	l.refs++
	w.pathMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		w.pathMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(w.paths, relPath)
		}
		w.pathMu.Unlock()
	}
}

// save stores rec unconditionally.
func (w *localWriter) save(rec *models.Record) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return storage.SaveRecord(w.root, rec)
}

// load reads the current record at relPath.
func (w *localWriter) load(relPath string) (*models.Record, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return storage.LoadRecord(w.root, relPath)
}

// markSynced flips the stored record to synced once the remote confirmed
// lastModified. It returns errStaleRetry when the file now carries another
// version, and reports whether the file was rewritten.
func (w *localWriter) markSynced(relPath string, lastModified int64) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := storage.LoadRecord(w.root, relPath)
	if err != nil {
		return false, err
	}
	if current.LastModified != lastModified {
		return false, errStaleRetry
	}
	if current.SyncState == models.SyncSynced {
		return false, nil
	}

	synced := current.WithState(models.SyncSynced)
	if _, err := storage.SaveRecord(w.root, &synced); err != nil {
		return false, err
	}
	return true, nil
}

// replaceIfNewer stores rec unless the local copy is as new or newer, or is
// unreadable.
func (w *localWriter) replaceIfNewer(rec *models.Record) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	current, err := storage.LoadRecord(w.root, rec.RelativePath())
	switch {
	case err == nil:
		if current.LastModified >= rec.LastModified {
			return false, nil
		}
	case errors.Is(err, models.ErrNotFound):
	default:
		return false, err
	}

	if _, err := storage.SaveRecord(w.root, rec); err != nil {
		return false, err
	}
	return true, nil
}
