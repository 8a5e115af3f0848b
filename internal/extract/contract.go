// Package extract defines what every vendor extractor provides and the
// document-scanning helpers they share.
package extract

import (
	"errors"
	"fmt"
	"sort"

	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// ParserVersion is stored with every persisted package for provenance
const ParserVersion = "telco-extract-2.0.0"

// LabeledCharge is an invoice-level charge before the category is resolved.
// Category is free text here; the assembler maps it onto the closed set.
type LabeledCharge struct {
	Category string
	Label    string
	Amount   invoice.Money
}

// Extractor turns one vendor's layout into partial package structures.
// Every method is a pure function of the document.
type Extractor interface {
	Vendor() invoice.Vendor
	ExtractHeader(doc *Document) (invoice.Header, error)
	ExtractNumbers(doc *Document) ([]invoice.NumberLine, error)
	ExtractCharges(doc *Document) ([]LabeledCharge, error)
	ExtractRaw(doc *Document) (map[string]any, error)
}

// Partial is everything an extractor found, ready for assembly
type Partial struct {
	Header  invoice.Header
	Numbers []invoice.NumberLine
	Charges []LabeledCharge
	Raw     map[string]any
}

// Run calls the four capabilities in order. Errors come back as ParseErrors that
// name the section that failed.
func Run(ex Extractor, doc *Document) (*Partial, error) {
	header, err := ex.ExtractHeader(doc)
	if err != nil {
		return nil, asParseError("header", err)
	}
	header.Vendor = ex.Vendor()
	if header.Currency == "" {
		header.Currency = invoice.DefaultCurrency
	}

	numbers, err := ex.ExtractNumbers(doc)
	if err != nil {
		return nil, asParseError("numbers", err)
	}
	charges, err := ex.ExtractCharges(doc)
	if err != nil {
		return nil, asParseError("charges", err)
	}
	raw, err := ex.ExtractRaw(doc)
	if err != nil {
		return nil, asParseError("raw", err)
	}

	return &Partial{Header: header, Numbers: numbers, Charges: charges, Raw: raw}, nil
}

func asParseError(section string, err error) error {
	var ie *ingesterr.Error
	if errors.As(err, &ie) {
		return err
	}
	return ingesterr.ParseWrap(section, err)
}

// Require returns a ParseError naming field when ok is false
func Require(field string, ok bool) error {
	if ok {
		return nil
	}
	return ingesterr.Parse(field, "required field not found")
}

// Registry dispatches vendors to their extractors
type Registry struct {
	extractors map[invoice.Vendor]Extractor
}

// NewRegistry creates a registry holding the given extractors
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{extractors: make(map[invoice.Vendor]Extractor)}
	for _, ex := range extractors {
		r.Register(ex)
	}
	return r
}

// Register adds or replaces the extractor for its vendor
func (r *Registry) Register(ex Extractor) {
	r.extractors[ex.Vendor()] = ex
}

// Lookup returns the extractor for v
func (r *Registry) Lookup(v invoice.Vendor) (Extractor, error) {
	ex, ok := r.extractors[v]
	if !ok {
		return nil, fmt.Errorf("no extractor registered for vendor %q", v)
	}
	return ex, nil
}

// Vendors lists registered vendors in sorted order
func (r *Registry) Vendors() []invoice.Vendor {
	out := make([]invoice.Vendor, 0, len(r.extractors))
	for v := range r.extractors {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
