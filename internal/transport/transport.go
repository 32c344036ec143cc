package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

// Remote is the authoritative record store.
type Remote interface {
	// UpsertRecord creates or replaces rec, keyed by its identifier.
	UpsertRecord(ctx context.Context, rec *models.Record) error

	// ListRecords returns every remote record of type t as raw JSON.
	ListRecords(ctx context.Context, t models.RecordType) ([]json.RawMessage, error)

	// Health reports whether the remote answers with 2xx.
	Health(ctx context.Context) error

	// Audit posts an audit event. Callers treat failure as non-fatal.
	Audit(ctx context.Context, event AuditEvent) error
}

// Audit actions.
const (
	AuditSave      = "save"
	AuditReconcile = "reconcile"
)

// AuditEvent records one write attempt for the remote audit log.
type AuditEvent struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	RecordID  string            `json:"recordId"`
	Type      models.RecordType `json:"type"`
	Remote    bool              `json:"remote"`
	Local     bool              `json:"local"`
	Queued    bool              `json:"queued"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
