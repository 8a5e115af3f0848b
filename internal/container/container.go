package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/config"
	"github.com/telcoingest/invoice-pipeline/internal/export"
	"github.com/telcoingest/invoice-pipeline/internal/extract/vendors"
	"github.com/telcoingest/invoice-pipeline/internal/infrastructure/messaging"
	"github.com/telcoingest/invoice-pipeline/internal/infrastructure/persistence/postgres"
	"github.com/telcoingest/invoice-pipeline/internal/infrastructure/persistence/sqlite"
	"github.com/telcoingest/invoice-pipeline/internal/ingest"
)

// Container builds every component in dependency order and tears them down in
// reverse order.
type Container struct {
	config *config.Config
	logger *zap.Logger

	store     *StoreBundle
	rabbit    *messaging.RabbitMQ
	mapper    port.Mapper
	pipeline  *ingest.Orchestrator
	exporter  *export.Service
	directory *sqlite.DirectoryMapper

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// NewContainer creates a container. It does not connect anything; call Start.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes components in order:
// 1. Store (database, migrations or ingest log)
// 2. Mapper
// 3. Orchestrator and exporter
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization", zap.String("driver", c.config.Database.Driver))

	if err := c.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := c.initPipeline(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully", zap.String("mapping", c.config.Mapping.Mode))
	return nil
}

func (c *Container) initStore(ctx context.Context) error {
	var procMapper *postgres.ProcedureMapper
	switch c.config.Database.Driver {
	case config.DriverPostgres:
		store, mapper, err := ProvidePostgresStore(ctx, c.config, c.logger)
		if err != nil {
			return err
		}
		c.store, procMapper = store, mapper
	default:
		store, err := ProvideSQLiteStore(ctx, &c.config.Database, c.logger)
		if err != nil {
			return err
		}
		c.store = store
		c.directory = store.Directory
	}

	switch c.config.Mapping.Mode {
	case config.MappingDirectory:
		if c.directory == nil {
			c.teardown()
			return fmt.Errorf("mapping.mode directory needs the sqlite store")
		}
		c.mapper = c.directory
	case config.MappingProcedure:
		if procMapper == nil {
			c.teardown()
			return fmt.Errorf("mapping.mode procedure needs procedures.map")
		}
		c.mapper = procMapper
	case config.MappingAMQP:
		publisher, rmq, err := ProvideAMQPMapper(&c.config.Mapping, c.logger)
		if err != nil {
			c.teardown()
			return err
		}
		c.mapper, c.rabbit = publisher, rmq
	}
	return nil
}

func (c *Container) initPipeline() error {
	settings, err := c.config.Ingest.Settings()
	if err != nil {
		return err
	}

	pipeline, err := ingest.New(settings, vendors.Registry(), c.store.Persister, c.mapper, c.logger)
	if err != nil {
		return err
	}
	c.pipeline = pipeline

	if c.store.Reader != nil {
		c.exporter = export.NewService(c.store.Reader, c.logger)
	}
	return nil
}

// Close releases every connection. It may be called once.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error
	if c.rabbit != nil {
		if err := c.rabbit.Close(); err != nil {
			c.logger.Error("Failed to close broker connection", zap.Error(err))
			errs = append(errs, fmt.Errorf("close broker: %w", err))
		}
		c.rabbit = nil
	}
	if c.store != nil && c.store.Close != nil {
		if err := c.store.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.store = nil
	}
	return errs
}

// Ready reports whether Start completed
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Pipeline returns the orchestrator
func (c *Container) Pipeline() *ingest.Orchestrator {
	return c.pipeline
}

// Packages returns the package reader, or nil for the postgres store
func (c *Container) Packages() port.PackageReader {
	if c.store == nil {
		return nil
	}
	return c.store.Reader
}

// Exporter returns the workbook exporter, or nil when packages cannot be read back
func (c *Container) Exporter() *export.Service {
	return c.exporter
}

// Directory returns the msisdn directory of the sqlite store, or nil
func (c *Container) Directory() *sqlite.DirectoryMapper {
	return c.directory
}

// Health reports the database status
func (c *Container) Health(ctx context.Context) map[string]string {
	if c.store == nil || c.store.Health == nil {
		return map[string]string{"status": "down", "error": "not initialized"}
	}
	return c.store.Health(ctx)
}
