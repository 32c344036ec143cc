package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/models"
)

// TestServer is a fake remote record API for integration tests.
type TestServer struct {
	*httptest.Server

	mu      sync.RWMutex
	records map[models.RecordType]map[string]json.RawMessage
	audits  []json.RawMessage
	down    atomic.Bool
	upserts atomic.Int32
}

// NewTestServer creates a new test HTTP server.
func NewTestServer() *TestServer {
	ts := &TestServer{
		records: make(map[models.RecordType]map[string]json.RawMessage),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", ts.handleHealth)
	mux.HandleFunc("/records/", ts.handleRecords)
	mux.HandleFunc("/audit", ts.handleAudit)

	ts.Server = httptest.NewServer(mux)
	return ts
}

// SetDown makes every endpoint answer 503.
func (ts *TestServer) SetDown(down bool) {
	ts.down.Store(down)
}

// Put seeds a remote record.
func (ts *TestServer) Put(rec models.Record) {
	data, _ := json.Marshal(rec)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.records[rec.Type] == nil {
		ts.records[rec.Type] = make(map[string]json.RawMessage)
	}
	ts.records[rec.Type][rec.ID] = data
}

// Record returns a stored remote record.
func (ts *TestServer) Record(t models.RecordType, id string) (models.Record, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	data, ok := ts.records[t][id]
	if !ok {
		return models.Record{}, false
	}
	var rec models.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.Record{}, false
	}
	return rec, true
}

// Count returns the number of stored remote records of type t.
func (ts *TestServer) Count(t models.RecordType) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.records[t])
}

// Upserts returns the number of accepted upserts.
func (ts *TestServer) Upserts() int {
	return int(ts.upserts.Load())
}

// Audits returns the number of accepted audit posts.
func (ts *TestServer) Audits() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.audits)
}

func (ts *TestServer) unavailable(w http.ResponseWriter) bool {
	if ts.down.Load() {
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return true
	}
	return false
}

func (ts *TestServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if ts.unavailable(w) {
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (ts *TestServer) handleRecords(w http.ResponseWriter, r *http.Request) {
	if ts.unavailable(w) {
		return
	}

	t, err := models.ParseRecordType(strings.TrimPrefix(r.URL.Path, "/records/"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		rec, err := models.DecodeRecord(body)
		if err != nil || rec.Type != t {
			http.Error(w, "Invalid record", http.StatusBadRequest)
			return
		}

		ts.mu.Lock()
		if ts.records[t] == nil {
			ts.records[t] = make(map[string]json.RawMessage)
		}
		ts.records[t][rec.ID] = body
		ts.mu.Unlock()
		ts.upserts.Add(1)

		writeJSON(w, map[string]interface{}{"id": rec.ID})

	case http.MethodGet:
		ts.mu.RLock()
		ids := make([]string, 0, len(ts.records[t]))
		for id := range ts.records[t] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out := make([]json.RawMessage, 0, len(ids))
		for _, id := range ids {
			out = append(out, ts.records[t][id])
		}
		ts.mu.RUnlock()

		writeJSON(w, out)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	if ts.unavailable(w) {
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ts.mu.Lock()
	ts.audits = append(ts.audits, body)
	ts.mu.Unlock()

	w.WriteHeader(http.StatusAccepted)
}

// StaticOracle is a settable connectivity answer.
type StaticOracle struct {
	online atomic.Bool
	checks atomic.Int32
}

// NewStaticOracle creates an oracle answering online.
func NewStaticOracle(online bool) *StaticOracle {
	o := &StaticOracle{}
	o.online.Store(online)
	return o
}

// Set changes the answer.
func (o *StaticOracle) Set(online bool) {
	o.online.Store(online)
}

// Check returns the current answer.
func (o *StaticOracle) Check(ctx context.Context) bool {
	o.checks.Add(1)
	return o.online.Load()
}

// Online returns the current answer.
func (o *StaticOracle) Online() bool {
	return o.online.Load()
}

// Checks returns how often Check was called.
func (o *StaticOracle) Checks() int {
	return int(o.checks.Load())
}

// TestTimeout provides timeout context for tests.
func TestTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return TestTimeout(30 * time.Second)
}

// TestConfigWithDir creates a test configuration rooted at dataDir and
// pointed at baseURL.
func TestConfigWithDir(dataDir, baseURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.BaseURL = baseURL
	cfg.API.Timeout = 2 * time.Second
	cfg.API.HealthTimeout = time.Second
	cfg.API.MaxRetries = 0
	cfg.Storage.Backend = config.BackendDir
	cfg.Storage.RootDir = dataDir + "/data"
	cfg.Storage.DBPath = dataDir + "/scoutsync.db"
	cfg.Sync.ReconcileInterval = time.Hour
	cfg.Sync.PullInterval = time.Hour
	cfg.Sync.ConnectivityInterval = 20 * time.Millisecond
	cfg.Sync.AuditTimeout = time.Second
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	cfg.Log.Color = false
	return cfg
}

// WaitForCondition waits for a condition to be true with timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if condition() {
			return
		}
		select {
		case <-timer.C:
			t.Fatalf("Timeout waiting for condition: %s", message)
		case <-ticker.C:
		}
	}
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
