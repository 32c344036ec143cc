package sync

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/transport"
)

// auditor posts audit events on background goroutines. Failures are only
// logged.
type auditor struct {
	remote  transport.Remote
	enabled bool
	timeout time.Duration
	logger  *events.Logger

	wg sync.WaitGroup
}

func newAuditor(remote transport.Remote, enabled bool, timeout time.Duration, logger *events.Logger) *auditor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &auditor{
		remote:  remote,
		enabled: enabled,
		timeout: timeout,
		logger:  logger.WithField("component", "audit"),
	}
}

func (a *auditor) dispatch(event transport.AuditEvent) {
	if !a.enabled {
		return
	}

	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.remote.Audit(ctx, event); err != nil {
			a.logger.WithError(err).WithFields(map[string]interface{}{
				"audit_id":  event.ID,
				"action":    event.Action,
				"record_id": event.RecordID,
			}).Warn("Audit post failed")
		}
	}()
}

// wait blocks until every dispatched audit finished.
func (a *auditor) wait() {
	a.wg.Wait()
}
