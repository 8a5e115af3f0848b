package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/pkg/database"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingest_log (
	fingerprint    TEXT PRIMARY KEY,
	persisted_id   TEXT NOT NULL,
	vendor         TEXT NOT NULL,
	invoice_number TEXT NOT NULL,
	filename       TEXT NOT NULL DEFAULT '',
	parser_version TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// procedurePayload is the single jsonb argument passed to an upsert procedure
type procedurePayload struct {
	Fingerprint   string              `json:"fingerprint"`
	Filename      string              `json:"filename"`
	ParserVersion string              `json:"parser_version"`
	Mode          port.PersistMode    `json:"mode"`
	Warnings      []ingesterr.Warning `json:"warnings"`
	Package       *invoice.Package    `json:"package"`
}

// Repository implements port.Persister on top of per-vendor upsert procedures.
// Each procedure takes the package as jsonb and returns the persisted id.
type Repository struct {
	db         *database.PostgresDB
	procedures map[invoice.Vendor]string
	logger     *zap.Logger
}

// NewRepository validates every procedure name up front
func NewRepository(db *database.PostgresDB, procedures map[invoice.Vendor]string, logger *zap.Logger) (*Repository, error) {
	if len(procedures) == 0 {
		return nil, fmt.Errorf("at least one upsert procedure is required")
	}
	for vendor, name := range procedures {
		if err := ValidateProcedure(name); err != nil {
			return nil, fmt.Errorf("upsert procedure for %s: %w", vendor, err)
		}
	}
	return &Repository{
		db:         db,
		procedures: procedures,
		logger:     logger,
	}, nil
}

// EnsureSchema creates the ingest log when it is missing
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ingest_log: %w", err)
	}
	return nil
}

// Lookup returns the id logged under fingerprint
func (r *Repository) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	var id string
	err := r.db.GetContext(ctx, &id, "SELECT persisted_id FROM ingest_log WHERE fingerprint = $1", fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("lookup fingerprint", err)
	}
	return id, true, nil
}

// Upsert serialises writers of one fingerprint with a transaction-scoped advisory
// lock, calls the vendor procedure and logs the result.
func (r *Repository) Upsert(ctx context.Context, req *port.PersistRequest) (string, error) {
	if req == nil || req.Package == nil {
		return "", fmt.Errorf("upsert: package is required")
	}
	h := req.Package.Invoice
	proc, ok := r.procedures[h.Vendor]
	if !ok {
		return "", fmt.Errorf("no upsert procedure configured for vendor %s", h.Vendor)
	}

	warnings := req.Warnings
	if warnings == nil {
		warnings = []ingesterr.Warning{}
	}
	payload, err := json.Marshal(procedurePayload{
		Fingerprint:   req.Fingerprint,
		Filename:      req.Filename,
		ParserVersion: req.ParserVersion,
		Mode:          req.Mode,
		Warnings:      warnings,
		Package:       req.Package,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal package: %w", err)
	}

	var id string
	err = r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", req.Fingerprint); err != nil {
			return classify("acquire fingerprint lock", err)
		}

		if req.Mode != port.PersistOverwrite {
			var existing string
			err := tx.GetContext(ctx, &existing, "SELECT persisted_id FROM ingest_log WHERE fingerprint = $1", req.Fingerprint)
			if err == nil {
				id = existing
				return fmt.Errorf("fingerprint %s: %w", req.Fingerprint, port.ErrDuplicate)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return classify("lookup fingerprint", err)
			}
		}

		if err := tx.GetContext(ctx, &id, fmt.Sprintf("SELECT %s($1::jsonb)", proc), string(payload)); err != nil {
			return classify("call "+proc, err)
		}
		if id == "" {
			return fmt.Errorf("procedure %s returned an empty id", proc)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO ingest_log (fingerprint, persisted_id, vendor, invoice_number, filename, parser_version)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (fingerprint) DO UPDATE SET
				persisted_id = EXCLUDED.persisted_id,
				filename = EXCLUDED.filename,
				parser_version = EXCLUDED.parser_version,
				updated_at = now()
		`, req.Fingerprint, id, h.Vendor.String(), h.InvoiceNumber, req.Filename, req.ParserVersion)
		return classify("write ingest log", err)
	})

	if errors.Is(err, port.ErrDuplicate) {
		return id, err
	}
	if err != nil {
		r.logger.Error("Failed to persist package",
			zap.String("fingerprint", req.Fingerprint),
			zap.String("procedure", proc),
			zap.Error(err))
		return "", classify("upsert", err)
	}

	r.logger.Info("Package persisted",
		zap.String("id", id),
		zap.String("vendor", h.Vendor.String()),
		zap.String("procedure", proc),
		zap.String("fingerprint", req.Fingerprint))
	return id, nil
}

var _ port.Persister = (*Repository)(nil)
