// Package container wires the ingest pipeline from configuration and owns the
// lifecycle of its connections.
package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/config"
	"github.com/telcoingest/invoice-pipeline/internal/infrastructure/messaging"
	"github.com/telcoingest/invoice-pipeline/internal/infrastructure/persistence/postgres"
	"github.com/telcoingest/invoice-pipeline/internal/infrastructure/persistence/sqlite"
	"github.com/telcoingest/invoice-pipeline/migrations"
	"github.com/telcoingest/invoice-pipeline/pkg/database"
)

// StoreBundle holds the persistence side of the pipeline. Reader is nil for
// stores that cannot read packages back.
type StoreBundle struct {
	Persister port.Persister
	Reader    port.PackageReader
	Directory *sqlite.DirectoryMapper
	Health    func(ctx context.Context) map[string]string
	Close     func() error
}

// ProvideSQLiteStore opens the embedded database and runs pending migrations
func ProvideSQLiteStore(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(ctx, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	repo := sqlite.NewRepository(db, logger)
	return &StoreBundle{
		Persister: repo,
		Reader:    repo,
		Directory: sqlite.NewDirectoryMapper(db, logger),
		Health:    db.Health,
		Close:     db.Close,
	}, nil
}

// ProvidePostgresStore connects to the external store and makes sure the
// ingest log exists. The returned mapper is nil unless map procedures are set.
func ProvidePostgresStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*StoreBundle, *postgres.ProcedureMapper, error) {
	db, err := database.NewPostgres(database.PostgresConfig{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	upserts, err := cfg.Procedures.UpsertProcedures()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	repo, err := postgres.NewRepository(db, upserts, logger)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	var mapper *postgres.ProcedureMapper
	maps, err := cfg.Procedures.MapProcedures()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	if len(maps) > 0 {
		if mapper, err = postgres.NewProcedureMapper(db, maps, logger); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}

	return &StoreBundle{
		Persister: repo,
		Health:    db.Health,
		Close:     db.Close,
	}, mapper, nil
}

// ProvideAMQPMapper connects to the broker and returns a publishing mapper
func ProvideAMQPMapper(cfg *config.MappingConfig, logger *zap.Logger) (*messaging.Publisher, *messaging.RabbitMQ, error) {
	rmq, err := messaging.Dial(messaging.Config{URL: cfg.AMQPURL, Exchange: cfg.Exchange}, logger)
	if err != nil {
		return nil, nil, err
	}
	return messaging.NewPublisher(rmq.Channel(), cfg.Exchange, logger), rmq, nil
}
