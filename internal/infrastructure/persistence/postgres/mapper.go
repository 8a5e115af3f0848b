package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/pkg/database"
)

// ProcedureMapper runs the vendor mapping procedure for a persisted id
type ProcedureMapper struct {
	db         *database.PostgresDB
	procedures map[invoice.Vendor]string
	logger     *zap.Logger
}

// NewProcedureMapper validates every procedure name up front
func NewProcedureMapper(db *database.PostgresDB, procedures map[invoice.Vendor]string, logger *zap.Logger) (*ProcedureMapper, error) {
	for vendor, name := range procedures {
		if err := ValidateProcedure(name); err != nil {
			return nil, fmt.Errorf("map procedure for %s: %w", vendor, err)
		}
	}
	return &ProcedureMapper{
		db:         db,
		procedures: procedures,
		logger:     logger,
	}, nil
}

// Map calls the mapping procedure configured for vendor
func (m *ProcedureMapper) Map(ctx context.Context, persistedID string, vendor invoice.Vendor) error {
	proc, ok := m.procedures[vendor]
	if !ok {
		return fmt.Errorf("no map procedure configured for vendor %s", vendor)
	}
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf("SELECT %s($1)", proc), persistedID); err != nil {
		return classify("call "+proc, err)
	}

	m.logger.Debug("Mapping procedure completed",
		zap.String("id", persistedID),
		zap.String("procedure", proc))
	return nil
}

var _ port.Mapper = (*ProcedureMapper)(nil)
