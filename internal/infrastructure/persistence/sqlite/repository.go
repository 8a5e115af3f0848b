package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/pkg/database"
)

// Repository implements port.Persister and port.PackageReader.
// The UNIQUE constraint on fingerprint serialises concurrent writers; the
// natural key (vendor, invoice_number, account_number) makes re-issued bills
// update the stored row instead of adding a second one.
type Repository struct {
	db     *database.DB
	logger *zap.Logger
}

// NewRepository creates a new package repository
func NewRepository(db *database.DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Lookup returns the id stored under fingerprint
func (r *Repository) Lookup(ctx context.Context, fingerprint string) (string, bool, error) {
	id, err := lookupByFingerprint(ctx, r.db, fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("lookup fingerprint", err)
	}
	return id, true, nil
}

// Upsert writes the package and its numbers in one transaction
func (r *Repository) Upsert(ctx context.Context, req *port.PersistRequest) (string, error) {
	if req == nil || req.Package == nil {
		return "", fmt.Errorf("upsert: package is required")
	}

	pkgJSON, err := json.Marshal(req.Package)
	if err != nil {
		return "", fmt.Errorf("failed to marshal package: %w", err)
	}
	warnings := req.Warnings
	if warnings == nil {
		warnings = []ingesterr.Warning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal warnings: %w", err)
	}

	h := req.Package.Invoice
	var id string
	err = r.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if req.Mode != port.PersistOverwrite {
			existing, err := lookupByFingerprint(ctx, tx, req.Fingerprint)
			if err == nil {
				id = existing
				return fmt.Errorf("fingerprint %s: %w", req.Fingerprint, port.ErrDuplicate)
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return classify("lookup fingerprint", err)
			}
		}

		existing, err := r.findExisting(ctx, tx, req)
		if err != nil {
			return err
		}

		if existing == "" {
			id = uuid.NewString()
			_, err = tx.ExecContext(ctx, `
				INSERT INTO invoice_packages (
					id, fingerprint, vendor, invoice_number, account_number, bill_date,
					grand_total, filename, parser_version, package_json, warnings_json
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`,
				id, req.Fingerprint, h.Vendor.String(), h.InvoiceNumber, h.AccountNumber, nullDate(h.BillDate),
				h.GrandTotal.String(), req.Filename, req.ParserVersion, string(pkgJSON), string(warningsJSON),
			)
		} else {
			id = existing
			_, err = tx.ExecContext(ctx, `
				UPDATE invoice_packages SET
					fingerprint = ?, vendor = ?, invoice_number = ?, account_number = ?, bill_date = ?,
					grand_total = ?, filename = ?, parser_version = ?, package_json = ?, warnings_json = ?,
					updated_at = CURRENT_TIMESTAMP, mapped_at = NULL
				WHERE id = ?
			`,
				req.Fingerprint, h.Vendor.String(), h.InvoiceNumber, h.AccountNumber, nullDate(h.BillDate),
				h.GrandTotal.String(), req.Filename, req.ParserVersion, string(pkgJSON), string(warningsJSON),
				id,
			)
		}
		if err != nil {
			if isUniqueViolation(err) {
				id = ""
				return fmt.Errorf("fingerprint %s: %w", req.Fingerprint, port.ErrDuplicate)
			}
			return classify("write package", err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM package_numbers WHERE package_id = ?", id); err != nil {
			return classify("clear numbers", err)
		}
		for _, n := range req.Package.Numbers {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO package_numbers (package_id, msisdn, description, subscriber, line_total)
				VALUES (?, ?, ?, ?, ?)
			`, id, n.MSISDN, n.Description, n.Subscriber, n.LineTotal.String())
			if err != nil {
				return classify("write number", err)
			}
		}
		return nil
	})

	if errors.Is(err, port.ErrDuplicate) {
		// a concurrent writer won the constraint; report its id
		if id == "" {
			winner, ok, lerr := r.Lookup(ctx, req.Fingerprint)
			if lerr != nil || !ok {
				return "", fmt.Errorf("write package: unique constraint conflict: %v", err)
			}
			id = winner
		}
		return id, err
	}
	if err != nil {
		r.logger.Error("Failed to persist package",
			zap.String("fingerprint", req.Fingerprint),
			zap.String("vendor", h.Vendor.String()),
			zap.Error(err))
		return "", err
	}

	r.logger.Info("Package persisted",
		zap.String("id", id),
		zap.String("vendor", h.Vendor.String()),
		zap.String("invoice_number", h.InvoiceNumber),
		zap.String("fingerprint", req.Fingerprint))
	return id, nil
}

// findExisting returns the row to update: the one holding the fingerprint in
// overwrite mode, otherwise the one with the same natural key
func (r *Repository) findExisting(ctx context.Context, tx *sql.Tx, req *port.PersistRequest) (string, error) {
	if req.Mode == port.PersistOverwrite {
		id, err := lookupByFingerprint(ctx, tx, req.Fingerprint)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", classify("lookup fingerprint", err)
		}
	}

	h := req.Package.Invoice
	var id string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM invoice_packages
		WHERE vendor = ? AND invoice_number = ? AND account_number = ?
	`, h.Vendor.String(), h.InvoiceNumber, h.AccountNumber).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify("lookup natural key", err)
	}
	return id, nil
}

// Get reads one stored package, including the org units filled in by mapping
func (r *Repository) Get(ctx context.Context, id string) (*port.StoredPackage, error) {
	row := r.db.QueryRowContext(ctx, selectPackage+" WHERE id = ?", id)
	sp, err := scanPackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("package %s: %w", id, port.ErrNotFound)
	}
	if err != nil {
		return nil, classify("get package", err)
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT msisdn, org_unit FROM package_numbers WHERE package_id = ? AND org_unit IS NOT NULL", id)
	if err != nil {
		return nil, classify("get org units", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msisdn, unit string
		if err := rows.Scan(&msisdn, &unit); err != nil {
			return nil, fmt.Errorf("failed to scan org unit: %w", err)
		}
		if sp.OrgUnits == nil {
			sp.OrgUnits = make(map[string]string)
		}
		sp.OrgUnits[msisdn] = unit
	}
	return sp, rows.Err()
}

// List returns stored packages, newest first
func (r *Repository) List(ctx context.Context, limit, offset int) ([]*port.StoredPackage, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx,
		selectPackage+" ORDER BY created_at DESC, id LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, classify("list packages", err)
	}
	defer rows.Close()

	var out []*port.StoredPackage
	for rows.Next() {
		sp, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

const selectPackage = `
	SELECT id, vendor, invoice_number, account_number, fingerprint, filename, parser_version,
		package_json, warnings_json, created_at, updated_at, mapped_at
	FROM invoice_packages`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPackage(s scanner) (*port.StoredPackage, error) {
	var (
		sp           port.StoredPackage
		vendor       string
		pkgJSON      string
		warningsJSON string
		mappedAt     sql.NullTime
	)
	err := s.Scan(&sp.ID, &vendor, &sp.InvoiceNumber, &sp.AccountNumber, &sp.Fingerprint, &sp.Filename,
		&sp.ParserVersion, &pkgJSON, &warningsJSON, &sp.CreatedAt, &sp.UpdatedAt, &mappedAt)
	if err != nil {
		return nil, err
	}
	sp.Vendor = invoice.ParseVendor(vendor)

	var pkg invoice.Package
	if err := json.Unmarshal([]byte(pkgJSON), &pkg); err != nil {
		return nil, fmt.Errorf("failed to decode stored package %s: %w", sp.ID, err)
	}
	sp.Package = &pkg
	if err := json.Unmarshal([]byte(warningsJSON), &sp.Warnings); err != nil {
		return nil, fmt.Errorf("failed to decode stored warnings %s: %w", sp.ID, err)
	}
	if mappedAt.Valid {
		t := mappedAt.Time
		sp.MappedAt = &t
	}
	return &sp, nil
}

func lookupByFingerprint(ctx context.Context, ex executor, fingerprint string) (string, error) {
	var id string
	err := ex.QueryRowContext(ctx, "SELECT id FROM invoice_packages WHERE fingerprint = ?", fingerprint).Scan(&id)
	return id, err
}

func nullDate(d invoice.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

var (
	_ port.Persister     = (*Repository)(nil)
	_ port.PackageReader = (*Repository)(nil)
)
