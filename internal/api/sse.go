package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/TheMichaelB/scoutsync/internal/events"
)

// events streams bus events as server-sent events until the client goes
// away or the server shuts down.
func (s *Server) events(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	fctx := c.Context()
	done := fctx.Done()
	heartbeat := s.heartbeat
	logger := s.logger.WithField("request_id", c.Locals("requestid"))
	status := s.engine.Status(c.UserContext())

	fctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		ch, unsubscribe := s.engine.Subscribe(16, subscribedEvents...)
		defer unsubscribe()

		logger.Debug("Event stream opened")
		defer logger.Debug("Event stream closed")

		ready := events.Event{
			Type:      "ready",
			Timestamp: time.Now().UTC(),
			Data:      fiber.Map{"online": status.Online, "pending": status.Pending},
		}
		if err := writeEvent(w, ready); err != nil {
			return
		}

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if err := writeEvent(w, ev); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}

func writeEvent(w *bufio.Writer, ev events.Event) error {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		data = []byte("null")
	}

	if ev.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", ev.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	return w.Flush()
}
