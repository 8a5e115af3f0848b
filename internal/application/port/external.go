package port

import (
	"context"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// Mapper runs the vendor-specific downstream enrichment for a persisted package,
// such as attributing each MSISDN to an organisational unit. Map must return
// once ctx is done; callers stop waiting at the deadline either way.
type Mapper interface {
	Map(ctx context.Context, persistedID string, vendor invoice.Vendor) error
}

// MapperFunc adapts a function to Mapper
type MapperFunc func(ctx context.Context, persistedID string, vendor invoice.Vendor) error

// Map calls f
func (f MapperFunc) Map(ctx context.Context, persistedID string, vendor invoice.Vendor) error {
	return f(ctx, persistedID, vendor)
}
