package sync

import (
	"sort"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

// MergeResult is the outcome of merging remote records into a local set.
type MergeResult struct {
	Records  map[string]models.Record // keyed by normalized identifier
	Inserted []models.Record
	Updated  []models.Record
}

// Merge applies last-write-wins on lastModified. A remote record is taken
// when absent locally or strictly newer; local-only records are kept.
// Taken records are marked synced. local is not modified.
func Merge(local map[string]models.Record, remote []models.Record) MergeResult {
	merged := make(map[string]models.Record, len(local)+len(remote))
	for id, rec := range local {
		merged[id] = rec
	}

	for _, rec := range remote {
		id := models.NormalizeID(rec.ID)
		if current, ok := merged[id]; ok && rec.LastModified <= current.LastModified {
			continue
		}
		merged[id] = rec.WithState(models.SyncSynced)
	}

	result := MergeResult{Records: merged}
	for id, rec := range merged {
		before, existed := local[id]
		switch {
		case !existed:
			result.Inserted = append(result.Inserted, rec)
		case rec.LastModified > before.LastModified:
			result.Updated = append(result.Updated, rec)
		}
	}

	sortByID(result.Inserted)
	sortByID(result.Updated)
	return result
}

func sortByID(recs []models.Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
