package client

import (
	"context"
	"fmt"

	"github.com/TheMichaelB/scoutsync/internal/api"
	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
	"github.com/TheMichaelB/scoutsync/internal/export"
	"github.com/TheMichaelB/scoutsync/internal/services/connectivity"
	"github.com/TheMichaelB/scoutsync/internal/services/queue"
	"github.com/TheMichaelB/scoutsync/internal/services/sync"
	"github.com/TheMichaelB/scoutsync/internal/storage"
	"github.com/TheMichaelB/scoutsync/internal/transport"
)

// Client provides the high-level API for scoutsync operations. It owns
// every component built from one configuration.
type Client struct {
	Sync     *sync.Service
	Exporter *export.Exporter
	Bus      *events.Bus
	Oracle   *connectivity.Oracle

	config *config.Config
	logger *events.Logger
	root   *storage.Root
	remote *transport.HTTPClient
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	link connectivity.LinkChecker
}

// WithLinkChecker replaces the OS network link check.
func WithLinkChecker(link connectivity.LinkChecker) Option {
	return func(o *options) {
		o.link = link
	}
}

// New creates a new scoutsync client.
func New(cfg *config.Config, logger *events.Logger, opts ...Option) (*Client, error) {
	o := options{link: connectivity.SystemLink{}}
	for _, opt := range opts {
		opt(&o)
	}

	// Local store and its slot store
	root, err := storage.AcquireRoot(storage.OptionsFromConfig(&cfg.Storage), logger)
	if err != nil {
		return nil, fmt.Errorf("acquire local store: %w", err)
	}

	// Remote API
	remote := transport.NewHTTPClient(&cfg.API, logger)

	bus := events.NewBus(logger)
	oracle := connectivity.NewOracle(o.link, remote, bus, cfg.API.HealthTimeout, logger)

	pending, err := queue.NewPendingQueue(root.Slots(), logger)
	if err != nil {
		root.Close()
		return nil, fmt.Errorf("open pending queue: %w", err)
	}

	syncService := sync.NewService(sync.Deps{
		Root:          root,
		Backend:       root.Kind(),
		Remote:        remote,
		Oracle:        oracle,
		Monitor:       connectivity.NewMonitor(oracle, cfg.Sync.ConnectivityInterval),
		Queue:         pending,
		Bus:           bus,
		Config:        &cfg.Sync,
		RemoteTimeout: cfg.API.Timeout,
	}, logger)

	var publisher export.Publisher
	if cfg.Export.S3Bucket != "" {
		s3Publisher, err := export.NewS3Publisher(context.Background(), &cfg.Export, logger)
		if err != nil {
			logger.WithError(err).Warn("Export publishing disabled")
		} else {
			publisher = s3Publisher
		}
	}

	return &Client{
		Sync:     syncService,
		Exporter: export.NewExporter(root, syncService, publisher, logger),
		Bus:      bus,
		Oracle:   oracle,
		config:   cfg,
		logger:   logger,
		root:     root,
		remote:   remote,
	}, nil
}

// Backend returns the storage backend in use.
func (c *Client) Backend() string {
	return c.root.Kind()
}

// NewServer builds the local HTTP API over this client.
func (c *Client) NewServer() *api.Server {
	return api.NewServer(&c.config.Server, c.Sync, c.Exporter, c.logger)
}

// Close stops background work and releases the local store.
func (c *Client) Close() error {
	c.Sync.Stop()
	return c.root.Close()
}
