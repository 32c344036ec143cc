package sync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/services/queue"
	"github.com/TheMichaelB/scoutsync/internal/services/sync"
	"github.com/TheMichaelB/scoutsync/internal/state"
	"github.com/TheMichaelB/scoutsync/internal/storage"
	"github.com/TheMichaelB/scoutsync/internal/transport"
	"github.com/TheMichaelB/scoutsync/test/testutil"
)

type harness struct {
	root    *storage.MemHandle
	remote  *transport.MockRemote
	oracle  *testutil.StaticOracle
	slots   *state.MockStore
	queue   *queue.PendingQueue
	bus     *events.Bus
	service *sync.Service
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()

	logger := testutil.NewTestLogger()
	h := &harness{
		root:   storage.NewMemHandle(),
		remote: transport.NewMockRemote(),
		oracle: testutil.NewStaticOracle(online),
		slots:  state.NewMockStore(),
		bus:    events.NewBus(logger),
	}
	h.remote.SetOnline(online)

	for _, area := range models.Areas {
		_, err := h.root.Child(area, true)
		require.NoError(t, err)
	}

	q, err := queue.NewPendingQueue(h.slots, logger)
	require.NoError(t, err)
	h.queue = q

	cfg := config.DefaultConfig().Sync
	cfg.ReconcileInterval = time.Hour
	cfg.PullInterval = time.Hour
	cfg.AuditTimeout = time.Second

	h.service = sync.NewService(sync.Deps{
		Root:          h.root,
		Backend:       "memory",
		Remote:        h.remote,
		Oracle:        h.oracle,
		Queue:         h.queue,
		Bus:           h.bus,
		Config:        &cfg,
		RemoteTimeout: time.Second,
	}, logger)

	t.Cleanup(h.service.Stop)
	return h
}

// setOnline flips both the oracle answer and remote reachability.
func (h *harness) setOnline(online bool) {
	h.oracle.Set(online)
	h.remote.SetOnline(online)
}

func (h *harness) local(t *testing.T, rec models.Record) *models.Record {
	t.Helper()
	got, err := storage.LoadRecord(h.root, rec.RelativePath())
	require.NoError(t, err)
	return got
}
