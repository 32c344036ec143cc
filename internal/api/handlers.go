package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/models"
)

// SaveRequest is the body of POST /records/:type. Either ID or Entity must
// be set; LastModified defaults to now.
type SaveRequest struct {
	ID           string          `json:"id,omitempty"`
	Entity       string          `json:"entity,omitempty"`
	Payload      json.RawMessage `json:"payload"`
	LastModified int64           `json:"lastModified,omitempty"`
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   s.now().UTC(),
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	status := s.engine.Status(c.UserContext())
	return c.JSON(fiber.Map{
		"online":  status.Online,
		"pending": status.Pending,
		"backend": status.Backend,
		"summary": status.String(),
	})
}

func (s *Server) queue(c *fiber.Ctx) error {
	return c.JSON(s.engine.Queue())
}

func (s *Server) listRecords(c *fiber.Ctx) error {
	t, err := models.ParseRecordType(c.Params("type"))
	if err != nil {
		return err
	}

	recs, err := s.engine.Records(t)
	if err != nil {
		return err
	}
	return c.JSON(recs)
}

func (s *Server) saveRecord(c *fiber.Ctx) error {
	t, err := models.ParseRecordType(c.Params("type"))
	if err != nil {
		return err
	}

	var req SaveRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidRecord, err)
	}

	rec, err := req.record(t, s.now().UnixMilli())
	if err != nil {
		return err
	}

	result, err := s.engine.Save(c.UserContext(), rec)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":     rec.ID,
		"result": result,
	})
}

func (r *SaveRequest) record(t models.RecordType, nowMillis int64) (*models.Record, error) {
	lastModified := r.LastModified
	if lastModified == 0 {
		lastModified = nowMillis
	}

	id := models.NormalizeID(r.ID)
	if id == "" {
		if models.NormalizeID(r.Entity) == "" {
			return nil, fmt.Errorf("%w: id or entity required", models.ErrInvalidRecord)
		}
		rec := models.NewRecord(t, r.Entity, r.Payload, time.UnixMilli(lastModified))
		return &rec, nil
	}

	return &models.Record{
		ID:           id,
		Type:         t,
		Payload:      r.Payload,
		LastModified: lastModified,
		SyncState:    models.SyncUnsynced,
	}, nil
}

func (s *Server) reconcile(c *fiber.Ctx) error {
	result, err := s.engine.Reconcile(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func (s *Server) pull(c *fiber.Ctx) error {
	result, err := s.engine.Pull(c.UserContext())
	if errors.Is(err, models.ErrSyncInProgress) {
		return err
	}

	body := fiber.Map{"result": result}
	if err != nil {
		body["error"] = err.Error()
		return c.Status(fiber.StatusBadGateway).JSON(body)
	}
	return c.JSON(body)
}

func (s *Server) export(c *fiber.Ctx) error {
	if s.exporter == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "exports are disabled")
	}

	t, err := models.ParseRecordType(c.Params("type"))
	if err != nil {
		return err
	}

	result, err := s.exporter.Export(c.UserContext(), t)
	if err != nil && result == nil {
		return err
	}

	body := fiber.Map{"result": result}
	if err != nil {
		body["error"] = err.Error()
	}
	return c.Status(fiber.StatusCreated).JSON(body)
}

// subscribedEvents are relayed over /events.
var subscribedEvents = []string{
	events.ConnectivityChanged,
	events.SyncComplete,
	events.MirrorComplete,
}
