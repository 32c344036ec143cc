// Package export snapshots local records into the exports area and
// optionally publishes the snapshot to object storage.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/storage"
)

// RecordSource lists local records. sync.Service satisfies it.
type RecordSource interface {
	Records(t models.RecordType) ([]models.Record, error)
}

// Publisher uploads a finished snapshot.
type Publisher interface {
	Publish(ctx context.Context, name string, data []byte) (string, error)
}

// Result describes one export.
type Result struct {
	Path     string `json:"path"`
	Count    int    `json:"count"`
	Bytes    int    `json:"bytes"`
	Location string `json:"location,omitempty"` // set when published
}

// Exporter writes snapshots.
type Exporter struct {
	root      storage.Handle
	source    RecordSource
	publisher Publisher
	logger    *events.Logger
	now       func() time.Time
}

// NewExporter creates an exporter. A nil publisher keeps exports local.
func NewExporter(root storage.Handle, source RecordSource, publisher Publisher, logger *events.Logger) *Exporter {
	return &Exporter{
		root:      root,
		source:    source,
		publisher: publisher,
		logger:    logger.WithField("component", "export"),
		now:       time.Now,
	}
}

// SetClock overrides the time source used for snapshot names.
func (e *Exporter) SetClock(now func() time.Time) {
	e.now = now
}

// Export writes every local record of type t to
// exports/<type>-<timestamp>.json. When a publisher is configured the same
// bytes are uploaded; an upload failure is returned alongside the local
// result.
func (e *Exporter) Export(ctx context.Context, t models.RecordType) (*Result, error) {
	recs, err := e.source.Records(t)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", t, err)
	}
	if recs == nil {
		recs = []models.Record{}
	}

	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, &models.SerializationError{Source: "export", Err: err}
	}

	name := fmt.Sprintf("%s-%s.json", t, models.StripTimestamp(e.now()))
	relPath := path.Join(models.AreaExports, name)

	if err := storage.WriteFile(e.root, relPath, data); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}

	result := &Result{Path: relPath, Count: len(recs), Bytes: len(data)}

	logger := e.logger.WithFields(map[string]interface{}{
		"path":  relPath,
		"count": result.Count,
	})
	logger.Info("Export written")

	if e.publisher == nil {
		return result, nil
	}

	location, err := e.publisher.Publish(ctx, name, data)
	if err != nil {
		logger.WithError(err).Warn("Export publish failed")
		return result, fmt.Errorf("publish export: %w", err)
	}
	result.Location = location
	logger.WithField("location", location).Info("Export published")

	return result, nil
}
