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
	"github.com/TheMichaelB/scoutsync/internal/storage"
	"github.com/TheMichaelB/scoutsync/internal/transport"
)

// Mirror pulls the authoritative remote set and merges it locally.
type Mirror struct {
	remote   transport.Remote
	root     storage.Handle
	writer   *localWriter
	bus      *events.Bus
	timeout  time.Duration
	interval time.Duration
	logger   *events.Logger

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Sync fetches every record type and merges it into the local store. A type
// whose fetch fails is skipped and reported in the returned error; local
// state for it is untouched.
func (m *Mirror) Sync(ctx context.Context) (events.MirrorResult, error) {
	if !m.running.CompareAndSwap(false, true) {
		return events.MirrorResult{}, models.ErrSyncInProgress
	}
	defer m.running.Store(false)

	var (
		total   events.MirrorResult
		errs    []error
		fetched bool
	)

	for _, t := range models.RecordTypes() {
		res, err := m.syncType(ctx, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fetched = true
		total.Fetched += res.Fetched
		total.Inserted += res.Inserted
		total.Updated += res.Updated
	}

	if fetched {
		m.logger.WithFields(map[string]interface{}{
			"fetched":  total.Fetched,
			"inserted": total.Inserted,
			"updated":  total.Updated,
		}).Info("Mirror pass complete")

		if m.bus != nil {
			m.bus.Publish(events.MirrorComplete, total)
		}
	}

	return total, errors.Join(errs...)
}

// Running reports whether a pass is in flight.
func (m *Mirror) Running() bool {
	return m.running.Load()
}

func (m *Mirror) syncType(ctx context.Context, t models.RecordType) (events.MirrorResult, error) {
	logger := m.logger.WithField("type", t)

	fetchCtx, cancel := context.WithTimeout(ctx, m.timeout)
	raw, err := m.remote.ListRecords(fetchCtx, t)
	cancel()
	if err != nil {
		logger.WithError(err).Warn("Remote fetch failed, skipping")
		return events.MirrorResult{}, fmt.Errorf("fetch %s records: %w", t, err)
	}

	remote := make([]models.Record, 0, len(raw))
	for _, data := range raw {
		rec, err := models.DecodeRecord(data)
		if err == nil && rec.Type != t {
			err = &models.SerializationError{Source: "remote record " + rec.ID, Err: fmt.Errorf("type %q in %s list", rec.Type, t)}
		}
		if err != nil {
			logger.WithError(err).Warn("Skipping malformed remote record")
			continue
		}
		remote = append(remote, *rec)
	}

	localPtrs, skipped, err := storage.LoadAll(m.root, t)
	if err != nil {
		return events.MirrorResult{}, fmt.Errorf("load local %s records: %w", t, err)
	}
	for _, serr := range skipped {
		logger.WithError(serr).Warn("Skipping malformed local record")
	}

	local := make(map[string]models.Record, len(localPtrs))
	for id, rec := range localPtrs {
		local[id] = *rec
	}

	merged := Merge(local, remote)
	result := events.MirrorResult{Fetched: len(remote)}

	apply := func(recs []models.Record, counter *int) {
		for i := range recs {
			written, err := m.writer.replaceIfNewer(&recs[i])
			if err != nil {
				logger.WithError(err).WithField("record_id", recs[i].ID).Warn("Skipping merge of record")
				continue
			}
			if written {
				*counter++
			}
		}
	}
	apply(merged.Inserted, &result.Inserted)
	apply(merged.Updated, &result.Updated)

	return result, nil
}

// Start runs a pass immediately and then on every interval tick.
func (m *Mirror) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			if _, err := m.Sync(ctx); err != nil && !errors.Is(err, models.ErrSyncInProgress) {
				m.logger.WithError(err).Debug("Mirror pass incomplete")
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}(m.done)
}

// Stop ends the background loop and waits for it.
func (m *Mirror) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
