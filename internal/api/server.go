// Package api serves the local HTTP boundary used by the scouting UI.
package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/export"
	"github.com/TheMichaelB/scoutsync/internal/models"
	"github.com/TheMichaelB/scoutsync/internal/services/queue"
	"github.com/TheMichaelB/scoutsync/internal/services/sync"
)

// Engine is the sync surface the server exposes. *sync.Service satisfies it.
type Engine interface {
	Save(ctx context.Context, rec *models.Record) (*sync.SaveResult, error)
	Status(ctx context.Context) sync.Status
	Queue() []models.QueueEntry
	Reconcile(ctx context.Context) (queue.DrainResult, error)
	Pull(ctx context.Context) (events.MirrorResult, error)
	Records(t models.RecordType) ([]models.Record, error)
	Subscribe(buffer int, types ...string) (<-chan events.Event, func())
}

// Exporter writes snapshots. *export.Exporter satisfies it.
type Exporter interface {
	Export(ctx context.Context, t models.RecordType) (*export.Result, error)
}

// Server is the local HTTP API.
type Server struct {
	app       *fiber.App
	addr      string
	engine    Engine
	exporter  Exporter
	logger    *events.Logger
	heartbeat time.Duration
	now       func() time.Time
}

// NewServer builds the fiber app and registers routes. exporter may be nil.
func NewServer(cfg *config.ServerConfig, engine Engine, exporter Exporter, logger *events.Logger) *Server {
	s := &Server{
		addr:      cfg.Addr,
		engine:    engine,
		exporter:  exporter,
		logger:    logger.WithField("component", "api"),
		heartbeat: 15 * time.Second,
		now:       time.Now,
	}

	app := fiber.New(fiber.Config{
		AppName:               "scoutsync",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
		ReadTimeout:           30 * time.Second,
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Cache-Control",
	}))
	app.Use(s.requestLogger)

	app.Get("/health", s.health)
	app.Get("/status", s.status)
	app.Get("/queue", s.queue)
	app.Get("/records/:type", s.listRecords)
	app.Post("/records/:type", s.saveRecord)
	app.Post("/sync", s.reconcile)
	app.Post("/pull", s.pull)
	app.Post("/exports/:type", s.export)
	app.Get("/events", s.events)

	s.app = app
	return s
}

// App returns the underlying fiber app, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// SetHeartbeat changes the SSE keep-alive interval.
func (s *Server) SetHeartbeat(d time.Duration) {
	s.heartbeat = d
}

// Listen serves on the configured address until Shutdown.
func (s *Server) Listen() error {
	s.logger.WithField("addr", s.addr).Info("Local API listening")
	return s.app.Listen(s.addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestLogger(c *fiber.Ctx) error {
	start := time.Now()

	ctx := events.WithLogger(c.UserContext(), s.logger)
	if id, ok := c.Locals("requestid").(string); ok {
		ctx = events.WithRequestID(ctx, id)
	}
	c.SetUserContext(ctx)

	err := c.Next()

	s.logger.WithFields(map[string]interface{}{
		"request_id": c.Locals("requestid"),
		"method":     c.Method(),
		"path":       c.Path(),
		"status":     c.Response().StatusCode(),
		"latency":    time.Since(start).String(),
	}).Debug("Request")

	return err
}

// errorHandler maps engine errors to HTTP statuses.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	errCode := ""

	var (
		fiberErr *fiber.Error
		saveErr  *models.SaveError
		netErr   *models.NetworkError
	)

	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
	case errors.Is(err, models.ErrInvalidRecord):
		code = fiber.StatusBadRequest
	case errors.Is(err, models.ErrSyncInProgress):
		code = fiber.StatusConflict
	case errors.As(err, &saveErr):
		code = fiber.StatusInsufficientStorage
		errCode = models.ErrCodeStorage
	case errors.As(err, &netErr):
		code = fiber.StatusBadGateway
		errCode = netErr.Code()
	case models.IsStorage(err):
		errCode = models.ErrCodeStorage
	}

	logger := s.logger.WithError(err).WithFields(map[string]interface{}{
		"request_id": c.Locals("requestid"),
		"status":     code,
		"path":       c.Path(),
	})
	if code >= fiber.StatusInternalServerError {
		logger.Error("Request failed")
	} else {
		logger.Debug("Request rejected")
	}

	body := fiber.Map{"error": err.Error()}
	if errCode != "" {
		body["code"] = errCode
	}
	if id, ok := c.Locals("requestid").(string); ok {
		body["request_id"] = id
	}
	return c.Status(code).JSON(body)
}
