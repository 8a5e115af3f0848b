// Package postgres hands invoice packages to vendor-specific stored procedures in
// an external PostgreSQL database and records every commit in an ingest log keyed
// by content fingerprint.
package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
)

var procedureName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// ValidateProcedure rejects names that cannot be safely spliced into a SELECT
func ValidateProcedure(name string) error {
	if !procedureName.MatchString(name) {
		return fmt.Errorf("invalid procedure name %q", name)
	}
	return nil
}

// classify maps PostgreSQL failures onto the port error kinds.
// Serialization failures, deadlocks, lock timeouts and connection errors are
// transient; unique violations on the log mean another writer won.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, port.ErrTransient) || errors.Is(err, port.ErrDuplicate) {
		return err
	}
	if errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%s: %w: %v", op, port.ErrTransient, err)
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch code := string(pqErr.Code); {
	case code == "40001", code == "40P01", code == "55P03":
		return fmt.Errorf("%s: %w: %v", op, port.ErrTransient, err)
	case strings.HasPrefix(code, "08"):
		return fmt.Errorf("%s: %w: %v", op, port.ErrTransient, err)
	case code == "23505":
		return fmt.Errorf("%s: %w: %v", op, port.ErrDuplicate, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
