package port

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// Errors persistence adapters wrap so the orchestrator can classify failures
var (
	// ErrTransient marks a failure worth an immediate retry (lock timeout, dropped connection)
	ErrTransient = errors.New("transient persistence failure")
	// ErrDuplicate means another writer already committed the same fingerprint
	ErrDuplicate = errors.New("fingerprint already persisted")
	// ErrNotFound means no stored package has the requested id
	ErrNotFound = errors.New("package not found")
)

// PersistMode controls what happens when a fingerprint was already committed
type PersistMode string

const (
	// PersistDefault skips documents whose fingerprint is already stored
	PersistDefault PersistMode = "default"
	// PersistOverwrite writes again, replacing the stored package
	PersistOverwrite PersistMode = "overwrite"
)

// ParsePersistMode maps configuration text onto a PersistMode. Empty means default.
func ParsePersistMode(s string) (PersistMode, error) {
	switch PersistMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", PersistDefault:
		return PersistDefault, nil
	case PersistOverwrite:
		return PersistOverwrite, nil
	default:
		return "", errors.New("unknown persist mode " + s)
	}
}

// PersistRequest is one package plus the provenance stored next to it
type PersistRequest struct {
	Package       *invoice.Package
	Fingerprint   string
	Filename      string
	ParserVersion string
	Warnings      []ingesterr.Warning
	Mode          PersistMode
}

// Persister is the durable store for assembled packages. Implementations must
// serialise writers on the fingerprint so at most one commit wins; the loser
// gets an error wrapping ErrDuplicate together with the winner's id. Both calls
// must honour ctx: a write still running after the deadline is abandoned by the
// caller, and only the fingerprint check keeps a later retry from committing twice.
type Persister interface {
	// Lookup returns the id of the package stored under fingerprint
	Lookup(ctx context.Context, fingerprint string) (id string, found bool, err error)
	// Upsert stores the package and returns its persisted id
	Upsert(ctx context.Context, req *PersistRequest) (string, error)
}

// StoredPackage is a persisted package as read back from the store
type StoredPackage struct {
	ID            string              `json:"id"`
	Vendor        invoice.Vendor      `json:"vendor"`
	InvoiceNumber string              `json:"invoice_number"`
	AccountNumber string              `json:"account_number"`
	Fingerprint   string              `json:"fingerprint"`
	Filename      string              `json:"filename"`
	ParserVersion string              `json:"parser_version"`
	Warnings      []ingesterr.Warning `json:"warnings"`
	Package       *invoice.Package    `json:"package"`
	OrgUnits      map[string]string   `json:"org_units,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	MappedAt      *time.Time          `json:"mapped_at,omitempty"`
}

// PackageReader reads stored packages back for export and inspection
type PackageReader interface {
	Get(ctx context.Context, id string) (*StoredPackage, error)
	List(ctx context.Context, limit, offset int) ([]*StoredPackage, error)
}
