package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/TheMichaelB/scoutsync/internal/models"
)

// MockRemote provides an in-memory Remote for testing.
type MockRemote struct {
	mu sync.Mutex

	records map[models.RecordType]map[string]json.RawMessage
	online  bool

	// Error injection
	upsertErr error
	listErr   error
	auditErr  error

	// Called outside the lock before every upsert; a non-nil result fails it.
	onUpsert func(rec *models.Record) error

	// Request tracking
	upserts   []models.Record
	audits    []AuditEvent
	listCalls int
}

// NewMockRemote creates an empty, reachable mock remote.
func NewMockRemote() *MockRemote {
	return &MockRemote{
		records: make(map[models.RecordType]map[string]json.RawMessage),
		online:  true,
	}
}

// UpsertRecord stores rec keyed by identifier.
func (m *MockRemote) UpsertRecord(ctx context.Context, rec *models.Record) error {
	m.mu.Lock()
	hook := m.onUpsert
	m.mu.Unlock()

	if hook != nil {
		if err := hook(rec); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.unreachable("POST", "/records/"+string(rec.Type)); err != nil {
		return err
	}
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if err := ctx.Err(); err != nil {
		return &models.NetworkError{Op: "POST", URL: "mock:///records/" + string(rec.Type), Timeout: true, Err: err}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	byID, ok := m.records[rec.Type]
	if !ok {
		byID = make(map[string]json.RawMessage)
		m.records[rec.Type] = byID
	}
	byID[rec.ID] = data
	m.upserts = append(m.upserts, *rec)

	return nil
}

// ListRecords returns stored records of type t sorted by identifier.
func (m *MockRemote) ListRecords(ctx context.Context, t models.RecordType) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++

	if err := m.unreachable("GET", "/records/"+string(t)); err != nil {
		return nil, err
	}
	if m.listErr != nil {
		return nil, m.listErr
	}

	ids := make([]string, 0, len(m.records[t]))
	for id := range m.records[t] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, append(json.RawMessage(nil), m.records[t][id]...))
	}

	return out, nil
}

// Health succeeds while the mock is online.
func (m *MockRemote) Health(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.unreachable("HEAD", "/health")
}

// Audit records event.
func (m *MockRemote) Audit(ctx context.Context, event AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.unreachable("POST", "/audit"); err != nil {
		return err
	}
	if m.auditErr != nil {
		return m.auditErr
	}

	m.audits = append(m.audits, event)
	return nil
}

func (m *MockRemote) unreachable(op, path string) error {
	if m.online {
		return nil
	}
	return &models.NetworkError{Op: op, URL: "mock://" + path, Err: errors.New("connection refused")}
}

// Helper methods for testing

// SetOnline toggles reachability.
func (m *MockRemote) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = online
}

// FailUpserts makes every following upsert return err. Nil restores.
func (m *MockRemote) FailUpserts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertErr = err
}

// FailList makes every following list return err. Nil restores.
func (m *MockRemote) FailList(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listErr = err
}

// FailAudits makes every following audit return err. Nil restores.
func (m *MockRemote) FailAudits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditErr = err
}

// OnUpsert installs a hook run before every upsert.
func (m *MockRemote) OnUpsert(hook func(rec *models.Record) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpsert = hook
}

// Put seeds a remote record.
func (m *MockRemote) Put(rec models.Record) {
	data, _ := json.Marshal(rec)
	m.PutRaw(rec.Type, rec.ID, data)
}

// PutRaw seeds raw, possibly malformed, remote content.
func (m *MockRemote) PutRaw(t models.RecordType, id string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.records[t] == nil {
		m.records[t] = make(map[string]json.RawMessage)
	}
	m.records[t][id] = data
}

// Record returns the stored remote record with identifier id.
func (m *MockRemote) Record(t models.RecordType, id string) (models.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.records[t][id]
	if !ok {
		return models.Record{}, false
	}

	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Record{}, false
	}
	return rec, true
}

// Upserts returns every accepted upsert in arrival order.
func (m *MockRemote) Upserts() []models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Record(nil), m.upserts...)
}

// Audits returns every accepted audit event.
func (m *MockRemote) Audits() []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEvent(nil), m.audits...)
}

// ListCalls returns the number of list requests.
func (m *MockRemote) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}
