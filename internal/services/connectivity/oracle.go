package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/TheMichaelB/scoutsync/internal/events"
)

// Prober checks remote reachability. transport.Remote satisfies it.
type Prober interface {
	Health(ctx context.Context) error
}

// Oracle answers "are we effectively online": a link must be up and the
// remote health endpoint must answer 2xx.
type Oracle struct {
	link    LinkChecker
	prober  Prober
	bus     *events.Bus
	timeout time.Duration
	logger  *events.Logger

	mu      sync.RWMutex
	known   bool
	online  bool
	checked time.Time
}

// NewOracle creates an oracle. A nil link uses SystemLink; a nil bus
// disables transition events.
func NewOracle(link LinkChecker, prober Prober, bus *events.Bus, timeout time.Duration, logger *events.Logger) *Oracle {
	if link == nil {
		link = SystemLink{}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Oracle{
		link:    link,
		prober:  prober,
		bus:     bus,
		timeout: timeout,
		logger:  logger.WithField("component", "connectivity"),
	}
}

// Check determines the current status, caches it and publishes
// connectivity-changed when it differs from the previous answer.
func (o *Oracle) Check(ctx context.Context) bool {
	online := o.probe(ctx)
	o.record(online)
	return online
}

// Online returns the last answer without probing. Before the first Check it
// reports offline.
func (o *Oracle) Online() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// LastChecked returns when the cached answer was produced.
func (o *Oracle) LastChecked() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.checked
}

func (o *Oracle) probe(ctx context.Context) bool {
	if !o.link.LinkUp() {
		o.logger.Debug("No network link")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.prober.Health(ctx); err != nil {
		o.logger.WithError(err).Debug("Health probe failed")
		return false
	}

	return true
}

func (o *Oracle) record(online bool) {
	o.mu.Lock()
	changed := !o.known || o.online != online
	o.known = true
	o.online = online
	o.checked = time.Now()
	o.mu.Unlock()

	if !changed {
		return
	}

	o.logger.WithField("online", online).Info("Connectivity changed")
	if o.bus != nil {
		o.bus.Publish(events.ConnectivityChanged, events.ConnectivityChange{Online: online})
	}
}
