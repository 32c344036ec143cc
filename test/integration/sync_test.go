//go:build integration
// +build integration

package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/scoutsync/internal/client"
	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/services/connectivity"
	"github.com/TheMichaelB/scoutsync/test/testutil"
)

func openClient(t *testing.T, cfg *config.Config) *client.Client {
	t.Helper()

	c, err := client.New(cfg, testutil.NewTestLogger(), client.WithLinkChecker(connectivity.StaticLink(true)))
	require.NoError(t, err)
	return c
}

func TestOfflineWritesReconcileOnReconnect(t *testing.T) {
	testutil.SkipIfShort(t, "runs background sync loops")

	for _, backend := range []string{config.BackendDir, config.BackendKV} {
		t.Run(backend, func(t *testing.T) {
			server := testutil.NewTestServer()
			defer server.Close()
			server.SetDown(true)

			cfg := testutil.TestConfigWithDir(t.TempDir(), server.URL)
			cfg.Storage.Backend = backend
			c := openClient(t, cfg)
			defer c.Close()

			ctx, cancel := testutil.TestContext()
			defer cancel()
			c.Sync.Start(ctx)

			for team := 1; team <= 5; team++ {
				rec := testutil.MatchRecord(team, 0)
				result, err := c.Sync.Save(ctx, &rec)
				require.NoError(t, err)
				assert.True(t, result.Queued)
			}
			assert.Len(t, c.Sync.Queue(), 5)

			server.SetDown(false)

			testutil.WaitForCondition(t, func() bool {
				return len(c.Sync.Queue()) == 0
			}, 5*time.Second, "queue drained after reconnect")

			assert.Equal(t, 5, server.Count(models.RecordMatch))

			recs, err := c.Sync.Records(models.RecordMatch)
			require.NoError(t, err)
			require.Len(t, recs, 5)
			for _, rec := range recs {
				assert.Equal(t, models.SyncSynced, rec.SyncState, rec.ID)
			}
		})
	}
}

func TestQueueSurvivesRestart(t *testing.T) {
	testutil.SkipIfShort(t, "reopens the store")

	for _, backend := range []string{config.BackendDir, config.BackendKV} {
		t.Run(backend, func(t *testing.T) {
			server := testutil.NewTestServer()
			defer server.Close()
			server.SetDown(true)

			cfg := testutil.TestConfigWithDir(t.TempDir(), server.URL)
			cfg.Storage.Backend = backend
			ctx := context.Background()

			first := openClient(t, cfg)
			rec := testutil.PitRecord(118, 0)
			result, err := first.Sync.Save(ctx, &rec)
			require.NoError(t, err)
			require.True(t, result.Queued)
			first.Sync.WaitAudits()
			require.NoError(t, first.Close())

			second := openClient(t, cfg)
			defer second.Close()

			entries := second.Sync.Queue()
			require.Len(t, entries, 1)
			assert.Equal(t, rec.RelativePath(), entries[0].RelativePath)

			server.SetDown(false)
			drained, err := second.Sync.Reconcile(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, drained.Succeeded)
			assert.Zero(t, drained.Remaining)

			stored, ok := server.Record(models.RecordPit, rec.ID)
			require.True(t, ok)
			assert.JSONEq(t, string(rec.Payload), string(stored.Payload))
		})
	}
}

func TestPullKeepsNewerLocalEdits(t *testing.T) {
	testutil.SkipIfShort(t, "runs against a test server")

	server := testutil.NewTestServer()
	defer server.Close()

	cfg := testutil.TestConfigWithDir(t.TempDir(), server.URL)
	c := openClient(t, cfg)
	defer c.Close()
	ctx := context.Background()

	base := testutil.MatchRecord(33, 0)
	server.Put(base)
	_, err := c.Sync.Pull(ctx)
	require.NoError(t, err)

	// Local edit made while offline, then a stale remote copy.
	server.SetDown(true)
	edited := testutil.Touched(base, time.Minute, `{"auto":20}`)
	_, err = c.Sync.Save(ctx, &edited)
	require.NoError(t, err)
	server.SetDown(false)
	server.Put(testutil.Touched(base, 30*time.Second, `{"auto":1}`))

	result, err := c.Sync.Pull(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Updated)

	recs, err := c.Sync.Records(models.RecordMatch)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.JSONEq(t, `{"auto":20}`, string(recs[0].Payload))

	// Once reconciled the remote carries the newest edit too.
	drained, err := c.Sync.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, drained.Succeeded)

	stored, ok := server.Record(models.RecordMatch, base.ID)
	require.True(t, ok)
	assert.Equal(t, edited.LastModified, stored.LastModified)
	c.Sync.WaitAudits()
}
