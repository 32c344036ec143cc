// Package sync persists scouting records and reconciles them with the
// remote store.
package sync

import (
	"context"
	"errors"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/services/queue"
	"github.com/TheMichaelB/scoutsync/internal/transport"
)

// Connectivity answers whether the remote is effectively reachable.
type Connectivity interface {
	Check(ctx context.Context) bool
	Online() bool
}

// SaveResult reports what happened to one save.
type SaveResult struct {
	Path   string `json:"path"`
	Remote bool   `json:"remote"`
	Local  bool   `json:"local"`
	Queued bool   `json:"queued"`
}

// Coordinator writes one record remote-then-local.
type Coordinator struct {
	remote  transport.Remote
	oracle  Connectivity
	writer  *localWriter
	queue   *queue.PendingQueue
	audit   *auditor
	timeout time.Duration
	logger  *events.Logger
	now     func() time.Time
}

// Save persists rec. The remote upsert is attempted only when online; the
// local write is always attempted afterwards. A failed or skipped remote
// write with a durable local write queues the record for the reconciler.
// An error is returned only when the record is invalid or neither write
// succeeded. The remote is keyed by the normalized identifier, the same key
// that names the local file.
func (c *Coordinator) Save(ctx context.Context, rec *models.Record) (*SaveResult, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	normalized := *rec
	normalized.ID = models.NormalizeID(rec.ID)
	rec = &normalized

	unlock := c.writer.lock(rec.RelativePath())
	defer unlock()

	logger := c.logger.WithFields(map[string]interface{}{
		"record_id": rec.ID,
		"type":      rec.Type,
	})
	if id := events.GetRequestID(ctx); id != "" {
		logger = logger.WithField("request_id", id)
	}

	result := &SaveResult{}

	var remoteErr error
	if c.oracle.Check(ctx) {
		remoteErr = c.upsert(ctx, rec)
	} else {
		remoteErr = models.ErrOffline
	}
	result.Remote = remoteErr == nil

	state := models.SyncPendingRetry
	if result.Remote {
		state = models.SyncSynced
	}
	stored := rec.WithState(state)

	path, localErr := c.writer.save(&stored)
	result.Local = localErr == nil
	result.Path = stored.RelativePath()

	switch {
	case !result.Remote && !result.Local:
		logger.WithError(localErr).Error("Save failed on remote and local store")
		c.dispatchAudit(rec, result, localErr)
		return nil, &models.SaveError{RecordID: rec.ID, Remote: remoteErr, Local: localErr}

	case !result.Remote:
		result.Path = path
		if err := c.queue.Enqueue(models.NewQueueEntry(rec.Type, path, c.now())); err != nil {
			// The record is durable and pending_retry; startup requeues it.
			logger.WithError(err).Error("Failed to queue pending write")
		} else {
			result.Queued = true
		}
		if !errors.Is(remoteErr, models.ErrOffline) {
			logger.WithError(remoteErr).Warn("Remote write failed, queued for retry")
		} else {
			logger.Debug("Offline, queued for retry")
		}

	case !result.Local:
		logger.WithError(localErr).Warn("Local write failed after remote success")

	default:
		result.Path = path
		logger.Debug("Saved record")
	}

	c.dispatchAudit(rec, result, remoteErr)
	return result, nil
}

func (c *Coordinator) upsert(ctx context.Context, rec *models.Record) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.remote.UpsertRecord(ctx, rec)
}

func (c *Coordinator) dispatchAudit(rec *models.Record, result *SaveResult, err error) {
	event := transport.AuditEvent{
		Action:   transport.AuditSave,
		RecordID: rec.ID,
		Type:     rec.Type,
		Remote:   result.Remote,
		Local:    result.Local,
		Queued:   result.Queued,
		Error:    errString(err),
	}
	c.audit.dispatch(event)
}
