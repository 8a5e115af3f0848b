package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/normalize"
	"github.com/telcoingest/invoice-pipeline/pkg/database"
)

// DirectoryMapper fills package_numbers.org_unit from the msisdn directory
type DirectoryMapper struct {
	db     *database.DB
	logger *zap.Logger
}

// NewDirectoryMapper creates a mapper over the msisdn_directory table
func NewDirectoryMapper(db *database.DB, logger *zap.Logger) *DirectoryMapper {
	return &DirectoryMapper{db: db, logger: logger}
}

// Map attributes every number of the persisted package and stamps mapped_at.
// Numbers missing from the directory keep a NULL org unit.
func (m *DirectoryMapper) Map(ctx context.Context, persistedID string, vendor invoice.Vendor) error {
	var (
		mapped  int64
		missing int64
	)
	err := m.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var stored string
		err := tx.QueryRowContext(ctx, "SELECT vendor FROM invoice_packages WHERE id = ?", persistedID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("package %s: %w", persistedID, port.ErrNotFound)
		}
		if err != nil {
			return classify("read package vendor", err)
		}
		if invoice.Vendor(stored) != vendor {
			return fmt.Errorf("package %s belongs to %s, not %s", persistedID, stored, vendor)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE package_numbers
			SET org_unit = (SELECT d.org_unit FROM msisdn_directory d WHERE d.msisdn = package_numbers.msisdn)
			WHERE package_id = ?
		`, persistedID)
		if err != nil {
			return classify("map numbers", err)
		}
		total, _ := res.RowsAffected()

		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM package_numbers WHERE package_id = ? AND org_unit IS NULL", persistedID,
		).Scan(&missing); err != nil {
			return classify("count unmapped", err)
		}
		mapped = total - missing

		if _, err := tx.ExecContext(ctx,
			"UPDATE invoice_packages SET mapped_at = CURRENT_TIMESTAMP WHERE id = ?", persistedID); err != nil {
			return classify("stamp mapped_at", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("Package mapped",
		zap.String("persisted_id", persistedID),
		zap.String("vendor", vendor.String()),
		zap.Int64("mapped", mapped),
		zap.Int64("unmapped", missing))
	return nil
}

// PutDirectoryEntry records the org unit of one number
func (m *DirectoryMapper) PutDirectoryEntry(ctx context.Context, msisdn, orgUnit string) error {
	n, err := normalize.MSISDN(msisdn)
	if err != nil {
		return fmt.Errorf("directory entry: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT INTO msisdn_directory (msisdn, org_unit) VALUES (?, ?)
		ON CONFLICT (msisdn) DO UPDATE SET org_unit = excluded.org_unit, updated_at = CURRENT_TIMESTAMP
	`, n, orgUnit)
	return classify("put directory entry", err)
}

var _ port.Mapper = (*DirectoryMapper)(nil)
