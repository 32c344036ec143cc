package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/services/queue"
	"github.com/TheMichaelB/scoutsync/internal/transport"
)

// Reconciler drains the pending queue against the remote.
type Reconciler struct {
	remote   transport.Remote
	oracle   Connectivity
	writer   *localWriter
	queue    *queue.PendingQueue
	bus      *events.Bus
	audit    *auditor
	timeout  time.Duration
	interval time.Duration
	logger   *events.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// RunPass retries every queued write once. Only one pass runs at a time;
// an overlapping call returns ErrSyncInProgress without touching the remote.
func (r *Reconciler) RunPass(ctx context.Context) (queue.DrainResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return queue.DrainResult{}, models.ErrSyncInProgress
	}
	defer r.running.Store(false)

	if r.queue.Len() == 0 {
		return queue.DrainResult{}, nil
	}

	r.logger.WithField("pending", r.queue.Len()).Info("Reconciling pending writes")

	result, err := r.queue.Drain(ctx, r.retry)
	if err != nil {
		return result, fmt.Errorf("drain pending queue: %w", err)
	}

	r.logger.WithFields(map[string]interface{}{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
		"remaining": result.Remaining,
	}).Info("Reconcile pass complete")

	if result.Succeeded > 0 && r.bus != nil {
		r.bus.Publish(events.SyncComplete, events.SyncResult{
			Succeeded: result.Succeeded,
			Failed:    result.Failed,
		})
	}

	return result, nil
}

// Running reports whether a pass is in flight.
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// retry pushes the current content at entry's path.
func (r *Reconciler) retry(ctx context.Context, entry models.QueueEntry) error {
	logger := r.logger.WithField("path", entry.RelativePath)

	unlock := r.writer.lock(entry.RelativePath)
	defer unlock()

	rec, err := r.writer.load(entry.RelativePath)
	if err != nil {
		logger.WithError(err).Warn("Queued record unreadable, leaving it queued")
		return err
	}

	upsertCtx, cancel := context.WithTimeout(ctx, r.timeout)
	err = r.remote.UpsertRecord(upsertCtx, rec)
	cancel()

	r.audit.dispatch(transport.AuditEvent{
		Action:   transport.AuditReconcile,
		RecordID: rec.ID,
		Type:     rec.Type,
		Remote:   err == nil,
		Local:    true,
		Queued:   err != nil,
		Error:    errString(err),
	})

	if err != nil {
		if models.IsTransient(err) {
			logger.WithError(err).Debug("Remote still unreachable")
		} else {
			logger.WithError(err).Warn("Remote rejected queued record")
		}
		return err
	}

	if _, err := r.writer.markSynced(entry.RelativePath, rec.LastModified); err != nil {
		if errors.Is(err, errStaleRetry) {
			logger.Debug("Record changed during retry, keeping it queued")
			return err
		}
		// The remote has the write; the local state flag is cosmetic.
		logger.WithError(err).Warn("Failed to mark record synced")
	}

	return nil
}

// Start runs passes when connectivity is restored and on every interval
// tick while online.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	var restored <-chan events.Event
	unsubscribe := func() {}
	if r.bus != nil {
		restored, unsubscribe = r.bus.Subscribe(4, events.ConnectivityChanged)
	}

	go func(done chan struct{}) {
		defer close(done)
		defer unsubscribe()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-restored:
				if !ok {
					restored = nil
					continue
				}
				if change, _ := ev.Data.(events.ConnectivityChange); change.Online {
					r.trigger(ctx, "connectivity")
				}
			case <-ticker.C:
				if r.oracle.Check(ctx) {
					r.trigger(ctx, "timer")
				}
			}
		}
	}(r.done)
}

// Stop ends the background loop and waits for it.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Reconciler) trigger(ctx context.Context, reason string) {
	_, err := r.RunPass(ctx)
	switch {
	case err == nil, errors.Is(err, models.ErrSyncInProgress):
	default:
		r.logger.WithError(err).WithField("trigger", reason).Warn("Reconcile pass failed")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
