package models

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// RecordType identifies the kind of scouting record.
type RecordType string

const (
	RecordMatch RecordType = "match"
	RecordPit   RecordType = "pit"
)

// Local storage areas.
const (
	AreaMatches = "matches"
	AreaPit     = "pit"
	AreaExports = "exports"
	AreaLogs    = "logs"
)

// Areas lists the fixed top-level areas of the local store.
var Areas = []string{AreaMatches, AreaPit, AreaExports, AreaLogs}

// RecordTypes returns every known record type.
func RecordTypes() []RecordType {
	return []RecordType{RecordMatch, RecordPit}
}

// ParseRecordType accepts a type name or its storage area name.
func ParseRecordType(s string) (RecordType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "match", "matches":
		return RecordMatch, nil
	case "pit":
		return RecordPit, nil
	default:
		return "", fmt.Errorf("%w: unknown record type %q", ErrInvalidRecord, s)
	}
}

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	return t == RecordMatch || t == RecordPit
}

// Area returns the local storage area holding records of this type.
func (t RecordType) Area() string {
	if t == RecordPit {
		return AreaPit
	}
	return AreaMatches
}

// SyncStatus tracks whether a record version is confirmed remotely.
type SyncStatus string

const (
	SyncUnsynced     SyncStatus = "unsynced"
	SyncSynced       SyncStatus = "synced"
	SyncPendingRetry SyncStatus = "pending_retry"
)

// Record is one scouting entry.
type Record struct {
	ID           string          `json:"id"`
	Type         RecordType      `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	LastModified int64           `json:"lastModified"` // Unix milliseconds
	SyncState    SyncStatus      `json:"syncState"`
}

// NewRecord creates an unsynced record for entity captured at.
func NewRecord(t RecordType, entity string, payload json.RawMessage, at time.Time) Record {
	return Record{
		ID:           NewIdentifier(t, entity, at),
		Type:         t,
		Payload:      payload,
		LastModified: at.UnixMilli(),
		SyncState:    SyncUnsynced,
	}
}

// Validate checks the fields the engine depends on.
func (r *Record) Validate() error {
	if NormalizeID(r.ID) == "" {
		return fmt.Errorf("%w: empty identifier", ErrInvalidRecord)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown record type %q", ErrInvalidRecord, r.Type)
	}
	if r.LastModified <= 0 {
		return fmt.Errorf("%w: lastModified must be positive", ErrInvalidRecord)
	}
	if len(r.Payload) > 0 && !json.Valid(r.Payload) {
		return fmt.Errorf("%w: payload is not valid JSON", ErrInvalidRecord)
	}
	return nil
}

// FileName returns the deterministic file name of the record.
func (r *Record) FileName() string {
	return NormalizeID(r.ID) + ".json"
}

// RelativePath returns the logical path of the record, e.g. "matches/<file>".
func (r *Record) RelativePath() string {
	return path.Join(r.Type.Area(), r.FileName())
}

// Modified returns LastModified as a time.
func (r *Record) Modified() time.Time {
	return time.UnixMilli(r.LastModified).UTC()
}

// WithState returns a copy of the record carrying the given sync state.
func (r Record) WithState(state SyncStatus) Record {
	r.SyncState = state
	return r
}

// Encode serializes the record for storage or transport.
func (r *Record) Encode() ([]byte, error) {
	out := *r
	if len(out.Payload) == 0 {
		out.Payload = json.RawMessage("null")
	}
	if out.SyncState == "" {
		out.SyncState = SyncUnsynced
	}
	return json.MarshalIndent(out, "", "  ")
}

// DecodeRecord parses stored or remote record bytes.
func DecodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &SerializationError{Source: "record", Err: err}
	}
	if err := rec.Validate(); err != nil {
		return nil, &SerializationError{Source: "record", Err: err}
	}
	if rec.SyncState == "" {
		rec.SyncState = SyncUnsynced
	}
	return &rec, nil
}

// NewIdentifier builds the identifier for an entity captured at a point in
// time. Identifiers of one entity sort chronologically.
func NewIdentifier(t RecordType, entity string, at time.Time) string {
	return fmt.Sprintf("%s_%s_%s", t, NormalizeID(entity), StripTimestamp(at))
}

// StripTimestamp formats t in UTC with every separator removed
// (yyyymmddhhmmssmmm).
func StripTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format("20060102150405.000"), ".", "")
}

// NormalizeID maps an identifier to its canonical, path-safe form.
func NormalizeID(id string) string {
	id = norm.NFC.String(strings.TrimSpace(id))

	var sb strings.Builder
	sb.Grow(len(id))
	for _, r := range id {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}

	// Leading dots would hide the file and collide with reserved names.
	return strings.TrimLeft(sb.String(), ".")
}
