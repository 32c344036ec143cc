package client_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/scoutsync/internal/client"
	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/services/connectivity"
	"github.com/TheMichaelB/scoutsync/test/testutil"
)

func newClient(t *testing.T, backend string, server *testutil.TestServer) *client.Client {
	t.Helper()

	cfg := testutil.TestConfigWithDir(t.TempDir(), server.URL)
	cfg.Storage.Backend = backend

	c, err := client.New(cfg, testutil.NewTestLogger(), client.WithLinkChecker(connectivity.StaticLink(true)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientSaveAndReconcile(t *testing.T) {
	for _, backend := range []string{config.BackendDir, config.BackendKV} {
		t.Run(backend, func(t *testing.T) {
			server := testutil.NewTestServer()
			defer server.Close()

			c := newClient(t, backend, server)
			assert.Equal(t, backend, c.Backend())
			ctx := context.Background()

			online := testutil.MatchRecord(254, 0)
			result, err := c.Sync.Save(ctx, &online)
			require.NoError(t, err)
			assert.True(t, result.Remote)
			assert.Equal(t, 1, server.Count(models.RecordMatch))

			server.SetDown(true)
			offline := testutil.PitRecord(971, 0)
			result, err = c.Sync.Save(ctx, &offline)
			require.NoError(t, err)
			assert.False(t, result.Remote)
			assert.True(t, result.Queued)
			assert.Equal(t, "offline, 1 pending", c.Sync.Status(ctx).String())
			c.Sync.WaitAudits()

			server.SetDown(false)
			drained, err := c.Sync.Reconcile(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, drained.Succeeded)
			assert.Equal(t, 1, server.Count(models.RecordPit))

			recs, err := c.Sync.Records(models.RecordPit)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, models.SyncSynced, recs[0].SyncState)

			c.Sync.WaitAudits()
			assert.Equal(t, 2, server.Audits())
		})
	}
}

func TestClientPullAndExport(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	server.Put(testutil.MatchRecord(1, 0))
	server.Put(testutil.MatchRecord(2, 0))

	c := newClient(t, config.BackendDir, server)
	ctx := context.Background()

	pulled, err := c.Sync.Pull(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pulled.Inserted)

	result, err := c.Exporter.Export(ctx, models.RecordMatch)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Count)
	assert.Empty(t, result.Location)
}

func TestClientInvalidBackend(t *testing.T) {
	cfg := testutil.TestConfigWithDir(t.TempDir(), "http://127.0.0.1:1")
	cfg.Storage.Backend = "floppy"

	_, err := client.New(cfg, testutil.NewTestLogger())
	assert.ErrorIs(t, err, models.ErrInvalidConfig)
}
