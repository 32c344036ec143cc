package connectivity

import (
	"context"
	"sync"
	"time"
)

// Monitor polls the oracle on an interval so transitions are published
// without a caller asking.
type Monitor struct {
	oracle   *Oracle
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor for oracle.
func NewMonitor(oracle *Oracle, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{oracle: oracle, interval: interval}
}

// Start checks immediately and then on every tick until Stop or ctx ends.
// Calling Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.run(ctx, m.done)
}

// Stop ends polling and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.oracle.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.oracle.Check(ctx)
		}
	}
}
