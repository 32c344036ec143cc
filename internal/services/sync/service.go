package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/services/queue"
	"github.com/TheMichaelB/scoutsync/internal/storage"
	"github.com/TheMichaelB/scoutsync/internal/transport"
)

// Background is a loop the service starts and stops with itself.
type Background interface {
	Start(ctx context.Context)
	Stop()
}

// Deps are the collaborators of a Service.
type Deps struct {
	Root    storage.Handle
	Backend string
	Remote  transport.Remote
	Oracle  Connectivity
	Monitor Background // optional connectivity poller
	Queue   *queue.PendingQueue
	Bus     *events.Bus
	Config  *config.SyncConfig

	// RemoteTimeout bounds every upsert and list call.
	RemoteTimeout time.Duration
}

// Status is a point-in-time summary for the UI.
type Status struct {
	Online  bool   `json:"online"`
	Pending int    `json:"pending"`
	Syncing bool   `json:"syncing"`
	Backend string `json:"backend,omitempty"`
}

// String renders the status as "offline, 1 pending".
func (s Status) String() string {
	conn := "offline"
	if s.Online {
		conn = "online"
	}
	return fmt.Sprintf("%s, %d pending", conn, s.Pending)
}

// Service is the single entry point of the engine. One instance is built
// per process and injected where needed.
type Service struct {
	deps   Deps
	root   storage.Handle
	queue  *queue.PendingQueue
	oracle Connectivity
	bus    *events.Bus
	logger *events.Logger

	writer      *localWriter
	audit       *auditor
	coordinator *Coordinator
	reconciler  *Reconciler
	mirror      *Mirror
}

// NewService wires the coordinator, reconciler and mirror around one local
// writer.
func NewService(deps Deps, logger *events.Logger) *Service {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.DefaultConfig().Sync
	}

	timeout := deps.RemoteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reconcileEvery := cfg.ReconcileInterval
	if reconcileEvery <= 0 {
		reconcileEvery = 5 * time.Minute
	}
	pullEvery := cfg.PullInterval
	if pullEvery <= 0 {
		pullEvery = 30 * time.Second
	}

	logger = logger.WithField("service", "sync")
	writer := newLocalWriter(deps.Root)
	audit := newAuditor(deps.Remote, cfg.AuditEnabled, cfg.AuditTimeout, logger)

	return &Service{
		deps:   deps,
		root:   deps.Root,
		queue:  deps.Queue,
		oracle: deps.Oracle,
		bus:    deps.Bus,
		logger: logger,
		writer: writer,
		audit:  audit,
		coordinator: &Coordinator{
			remote:  deps.Remote,
			oracle:  deps.Oracle,
			writer:  writer,
			queue:   deps.Queue,
			audit:   audit,
			timeout: timeout,
			logger:  logger.WithField("component", "coordinator"),
			now:     time.Now,
		},
		reconciler: &Reconciler{
			remote:   deps.Remote,
			oracle:   deps.Oracle,
			writer:   writer,
			queue:    deps.Queue,
			bus:      deps.Bus,
			audit:    audit,
			timeout:  timeout,
			interval: reconcileEvery,
			logger:   logger.WithField("component", "reconciler"),
		},
		mirror: &Mirror{
			remote:   deps.Remote,
			root:     deps.Root,
			writer:   writer,
			bus:      deps.Bus,
			timeout:  timeout,
			interval: pullEvery,
			logger:   logger.WithField("component", "mirror"),
		},
	}
}

// Save persists one record. See Coordinator.Save.
func (s *Service) Save(ctx context.Context, rec *models.Record) (*SaveResult, error) {
	return s.coordinator.Save(ctx, rec)
}

// Status probes connectivity and reports the pending count.
func (s *Service) Status(ctx context.Context) Status {
	return Status{
		Online:  s.oracle.Check(ctx),
		Pending: s.queue.Len(),
		Syncing: s.reconciler.Running() || s.mirror.Running(),
		Backend: s.deps.Backend,
	}
}

// Queue returns the pending entries in enqueue order.
func (s *Service) Queue() []models.QueueEntry {
	return s.queue.List()
}

// Reconcile runs one reconcile pass now.
func (s *Service) Reconcile(ctx context.Context) (queue.DrainResult, error) {
	return s.reconciler.RunPass(ctx)
}

// Pull runs one mirror pass now.
func (s *Service) Pull(ctx context.Context) (events.MirrorResult, error) {
	return s.mirror.Sync(ctx)
}

// Records returns every readable local record of type t sorted by
// identifier.
func (s *Service) Records(t models.RecordType) ([]models.Record, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown record type %q", models.ErrInvalidRecord, t)
	}

	byID, skipped, err := storage.LoadAll(s.root, t)
	if err != nil {
		return nil, err
	}
	for _, serr := range skipped {
		s.logger.WithError(serr).Warn("Skipping malformed local record")
	}

	out := make([]models.Record, 0, len(byID))
	for _, rec := range byID {
		out = append(out, *rec)
	}
	sortByID(out)
	return out, nil
}

// Subscribe returns engine events. See events.Bus.Subscribe.
func (s *Service) Subscribe(buffer int, types ...string) (<-chan events.Event, func()) {
	return s.bus.Subscribe(buffer, types...)
}

// RequeueUnsynced queues every local record that is not synced and not
// already queued. It repairs writes interrupted between the local write and
// the enqueue.
func (s *Service) RequeueUnsynced() (int, error) {
	queued := make(map[string]bool)
	for _, entry := range s.queue.List() {
		queued[entry.RelativePath] = true
	}

	added := 0
	var errs []error
	for _, t := range models.RecordTypes() {
		recs, err := s.Records(t)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		var paths []string
		for i := range recs {
			path := recs[i].RelativePath()
			if recs[i].SyncState == models.SyncSynced || queued[path] {
				continue
			}
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			if err := s.queue.Enqueue(models.NewQueueEntry(t, path, time.Now())); err != nil {
				errs = append(errs, err)
				continue
			}
			queued[path] = true
			added++
		}
	}

	if added > 0 {
		s.logger.WithField("count", added).Info("Requeued unsynced records")
	}
	return added, errors.Join(errs...)
}

// Start requeues stragglers and starts the connectivity monitor, the
// reconciler and the mirror.
func (s *Service) Start(ctx context.Context) {
	if _, err := s.RequeueUnsynced(); err != nil {
		s.logger.WithError(err).Warn("Failed to requeue unsynced records")
	}

	// The reconciler subscribes before the monitor publishes its first
	// observation.
	s.reconciler.Start(ctx)
	s.mirror.Start(ctx)
	if s.deps.Monitor != nil {
		s.deps.Monitor.Start(ctx)
	}

	s.logger.Info("Background sync started")
}

// Stop stops the background loops and waits for outstanding audits.
func (s *Service) Stop() {
	s.mirror.Stop()
	s.reconciler.Stop()
	if s.deps.Monitor != nil {
		s.deps.Monitor.Stop()
	}
	s.audit.wait()
}

// WaitAudits blocks until every dispatched audit post finished.
func (s *Service) WaitAudits() {
	s.audit.wait()
}
