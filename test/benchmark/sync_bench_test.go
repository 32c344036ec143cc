package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

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

func BenchmarkMerge(b *testing.B) {
	sizes := []int{100, 1000, 10000}

	for _, n := range sizes {
		local := make(map[string]models.Record, n)
		remote := make([]models.Record, 0, n)
		for i := 0; i < n; i++ {
			rec := testutil.MatchRecord(i+1, 0)
			local[rec.ID] = rec
			// Every other remote copy is newer.
			remote = append(remote, testutil.Touched(rec, time.Duration(i%2)*time.Second, `{}`))
		}

		b.Run(fmt.Sprintf("records_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				result := sync.Merge(local, remote)
				if len(result.Updated) != n/2 {
					b.Fatalf("updated %d, want %d", len(result.Updated), n/2)
				}
			}
		})
	}
}

func BenchmarkSaveOffline(b *testing.B) {
	logger := events.NewNopLogger()

	root := storage.NewMemHandle()
	for _, area := range models.Areas {
		if _, err := root.Child(area, true); err != nil {
			b.Fatal(err)
		}
	}

	q, err := queue.NewPendingQueue(state.NewMockStore(), logger)
	if err != nil {
		b.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Sync.AuditEnabled = false

	svc := sync.NewService(sync.Deps{
		Root:    root,
		Backend: "memory",
		Remote:  transport.NewMockRemote(),
		Oracle:  testutil.NewStaticOracle(false),
		Queue:   q,
		Bus:     events.NewBus(logger),
		Config:  &cfg.Sync,
	}, logger)
	defer svc.Stop()

	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		rec := testutil.PitRecord(i+1, 0)
		if _, err := svc.Save(ctx, &rec); err != nil {
			b.Fatal(err)
		}
	}
}
