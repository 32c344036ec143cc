// Package queue persists the list of local writes still awaiting remote
// confirmation.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/state"
)

// SlotKey is the well-known slot holding the serialized queue.
const SlotKey = "pending-queue"

// RetryFunc re-attempts the remote write for one queued path. A nil error
// confirms every snapshotted entry with that path.
type RetryFunc func(ctx context.Context, entry models.QueueEntry) error

// DrainResult summarizes one drain pass. Succeeded and Failed count queue
// entries, so N queued saves of one record confirmed by a single retry count
// as N.
type DrainResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

// PendingQueue is a durable ordered list of QueueEntry values. Every change
// rewrites the whole list to the slot.
type PendingQueue struct {
	store  state.Store
	logger *events.Logger

	mu      sync.Mutex
	entries []models.QueueEntry
}

// NewPendingQueue loads the queue from store. A corrupt slot is logged and
// the queue starts empty.
func NewPendingQueue(store state.Store, logger *events.Logger) (*PendingQueue, error) {
	q := &PendingQueue{
		store:  store,
		logger: logger.WithField("component", "pending_queue"),
	}

	entries, err := q.load()
	if err != nil {
		if !models.IsSerialization(err) {
			return nil, err
		}
		q.logger.WithError(err).Warn("Discarding unreadable pending queue")
		entries = nil
	}
	q.entries = entries

	return q, nil
}

func (q *PendingQueue) load() ([]models.QueueEntry, error) {
	data, err := q.store.Load(SlotKey)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			return nil, nil
		case errors.Is(err, state.ErrStateCorrupt):
			return nil, &models.SerializationError{Source: "pending queue", Err: err}
		default:
			return nil, fmt.Errorf("load pending queue: %w", err)
		}
	}

	var entries []models.QueueEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &models.SerializationError{Source: "pending queue", Err: err}
	}

	return entries, nil
}

// persist writes entries to the slot. Callers hold mu.
func (q *PendingQueue) persist(entries []models.QueueEntry) error {
	if entries == nil {
		entries = []models.QueueEntry{}
	}

	data, err := json.Marshal(entries)
	if err != nil {
		return &models.SerializationError{Source: "pending queue", Err: err}
	}

	if err := q.store.Save(SlotKey, data); err != nil {
		return fmt.Errorf("save pending queue: %w", err)
	}
	return nil
}

// Enqueue appends entry and persists the list. On failure the in-memory
// list is left as it was.
func (q *PendingQueue) Enqueue(entry models.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	prev := q.entries
	next := make([]models.QueueEntry, len(prev), len(prev)+1)
	copy(next, prev)
	next = append(next, entry)

	if err := q.persist(next); err != nil {
		return err
	}
	q.entries = next

	q.logger.WithFields(map[string]interface{}{
		"path":    entry.RelativePath,
		"pending": len(next),
	}).Debug("Queued write")

	return nil
}

// List returns a copy of the queued entries in enqueue order.
func (q *PendingQueue) List() []models.QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of queued entries.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Drain retries a snapshot of the queue. retry runs once per distinct path,
// without the queue lock held, so Enqueue may proceed concurrently. Entries
// added during the pass are kept.
func (q *PendingQueue) Drain(ctx context.Context, retry RetryFunc) (DrainResult, error) {
	snapshot := q.List()
	if len(snapshot) == 0 {
		return DrainResult{}, nil
	}

	done := make(map[string]bool)
	var result DrainResult

	for _, entry := range snapshot {
		if _, seen := done[entry.RelativePath]; seen {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}

		err := retry(ctx, entry)
		done[entry.RelativePath] = err == nil
		if err != nil {
			q.logger.WithError(err).WithField("path", entry.RelativePath).Debug("Retry failed")
		}
	}

	for _, entry := range snapshot {
		ok, tried := done[entry.RelativePath]
		switch {
		case !tried:
		case ok:
			result.Succeeded++
		default:
			result.Failed++
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	// Remove exactly the snapshotted entries whose path was confirmed.
	confirmed := make(map[models.QueueEntry]int)
	for _, entry := range snapshot {
		if done[entry.RelativePath] {
			confirmed[entry]++
		}
	}

	next := make([]models.QueueEntry, 0, len(q.entries))
	for _, entry := range q.entries {
		if confirmed[entry] > 0 {
			confirmed[entry]--
			continue
		}
		next = append(next, entry)
	}

	result.Remaining = len(next)
	if len(next) == len(q.entries) {
		return result, nil
	}

	if err := q.persist(next); err != nil {
		result.Remaining = len(q.entries)
		return result, err
	}
	q.entries = next

	return result, nil
}
