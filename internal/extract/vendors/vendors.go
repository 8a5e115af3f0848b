// Package vendors wires every supported layout into one extract.Registry.
package vendors

import (
	"github.com/telcoingest/invoice-pipeline/internal/extract"
	"github.com/telcoingest/invoice-pipeline/internal/extract/celcom"
	"github.com/telcoingest/invoice-pipeline/internal/extract/digi"
	"github.com/telcoingest/invoice-pipeline/internal/extract/maxis"
)

// Registry returns a registry holding the Maxis, Celcom and Digi extractors
func Registry() *extract.Registry {
	return extract.NewRegistry(maxis.New(), celcom.New(), digi.New())
}
