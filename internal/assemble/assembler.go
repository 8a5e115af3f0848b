// Package assemble merges extractor output into the canonical invoice package and
// checks the numeric invariants a real bill satisfies.
package assemble

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
	"github.com/telcoingest/invoice-pipeline/internal/normalize"
)

// DefaultTolerance absorbs vendor-side rounding in reconciliation checks
var DefaultTolerance = decimal.RequireFromString("0.05")

// Assembly is an assembled package and the warnings raised while building it
type Assembly struct {
	Package  *invoice.Package
	Warnings []ingesterr.Warning
}

// Assembler builds canonical packages
type Assembler struct {
	tolerance decimal.Decimal
	logger    *zap.Logger
}

// New creates an assembler. A zero tolerance asks for exact reconciliation; a
// negative one falls back to DefaultTolerance.
func New(tolerance decimal.Decimal, logger *zap.Logger) *Assembler {
	if tolerance.IsNegative() {
		tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{tolerance: tolerance, logger: logger}
}

// Tolerance returns the reconciliation tolerance in use
func (a *Assembler) Tolerance() decimal.Decimal {
	return a.tolerance
}

// Assemble resolves categories, normalises numbers, runs the line and header
// passes and freezes raw. Warnings never fail assembly; a package without numbers
// or without charges is a StructuralRejection.
func (a *Assembler) Assemble(p *extract.Partial) (*Assembly, error) {
	if p == nil {
		return nil, ingesterr.StructuralRejection("nothing was extracted")
	}

	var warnings []ingesterr.Warning
	header := p.Header
	if header.Currency == "" {
		header.Currency = invoice.DefaultCurrency
	}

	numbers, w := a.numbers(p.Numbers)
	warnings = append(warnings, w...)
	charges, w := a.charges(p.Charges)
	warnings = append(warnings, w...)

	if len(numbers) == 0 {
		return nil, ingesterr.StructuralRejection("package has no number lines")
	}
	if len(charges) == 0 {
		return nil, ingesterr.StructuralRejection("package has no charges")
	}

	raw, err := freeze(p.Raw)
	if err != nil {
		return nil, ingesterr.ParseWrap("raw", err)
	}

	pkg := &invoice.Package{Invoice: header, Numbers: numbers, Charges: charges, Raw: raw}
	warnings = append(warnings, a.lineTotals(pkg)...)
	warnings = append(warnings, a.headerTotals(pkg)...)

	if len(warnings) > 0 {
		a.logger.Debug("Package assembled with warnings",
			zap.String("vendor", header.Vendor.String()),
			zap.String("invoice_number", header.InvoiceNumber),
			zap.Int("warnings", len(warnings)))
	}
	return &Assembly{Package: pkg, Warnings: warnings}, nil
}

// numbers normalises MSISDNs, drops lines without one and merges repeats into
// the first occurrence
func (a *Assembler) numbers(in []invoice.NumberLine) ([]invoice.NumberLine, []ingesterr.Warning) {
	var (
		out      []invoice.NumberLine
		warnings []ingesterr.Warning
		index    = make(map[string]int)
	)

	for _, n := range in {
		msisdn, err := normalize.MSISDN(n.MSISDN)
		if err != nil {
			warnings = append(warnings, ingesterr.Validation(ingesterr.ScopeNumbers, n.MSISDN,
				"number line dropped: %v", err))
			continue
		}
		n.MSISDN = msisdn
		n.Description = normalize.Label(n.Description)
		n.Subscriber = normalize.Label(n.Subscriber)

		i, dup := index[msisdn]
		if !dup {
			index[msisdn] = len(out)
			out = append(out, n)
			continue
		}

		merged := &out[i]
		merged.MonthlyItems = append(merged.MonthlyItems, n.MonthlyItems...)
		merged.DetailOfCharges = append(merged.DetailOfCharges, n.DetailOfCharges...)
		merged.LineTotal = merged.LineTotal.Add(n.LineTotal)
		if merged.Description == "" {
			merged.Description = n.Description
		}
		if merged.Subscriber == "" {
			merged.Subscriber = n.Subscriber
		}
		warnings = append(warnings, ingesterr.Validation(ingesterr.ScopeNumbers, msisdn,
			"number appears more than once; lines merged"))
	}
	return out, warnings
}

// charges maps each labelled charge onto the closed category set. Unknown
// categories become Other and keep their text as the label.
func (a *Assembler) charges(in []extract.LabeledCharge) ([]invoice.Charge, []ingesterr.Warning) {
	out := make([]invoice.Charge, 0, len(in))
	var warnings []ingesterr.Warning

	for _, lc := range in {
		label := normalize.Label(lc.Label)
		category, ok := invoice.ParseCategory(lc.Category)
		if !ok {
			if label == "" {
				label = normalize.Label(lc.Category)
			}
			warnings = append(warnings, ingesterr.Validation(ingesterr.ScopeCategory, label,
				"category %q is not recognised; recorded as Other", lc.Category))
		}
		if label == "" {
			label = category.String()
		}
		out = append(out, invoice.Charge{Category: category, Label: label, Amount: lc.Amount})
	}
	return out, warnings
}

// lineTotals checks each number's total against its own items
func (a *Assembler) lineTotals(pkg *invoice.Package) []ingesterr.Warning {
	var warnings []ingesterr.Warning
	for _, n := range pkg.Numbers {
		if !n.HasItems() {
			continue
		}
		items := n.ItemsTotal()
		if !n.LineTotal.Within(items, a.tolerance) {
			warnings = append(warnings, ingesterr.Validation(ingesterr.ScopeLineTotal, n.MSISDN,
				"line total %s does not match items %s", n.LineTotal, items))
		}
	}
	return warnings
}

// headerTotals reconciles subtotal + tax with the grand total, tax with the Tax
// charges, and flags negative header totals
func (a *Assembler) headerTotals(pkg *invoice.Package) []ingesterr.Warning {
	var warnings []ingesterr.Warning
	h := pkg.Invoice

	expected := h.Subtotal.Add(h.TaxTotal)
	if !expected.Within(h.GrandTotal, a.tolerance) {
		warnings = append(warnings, ingesterr.Validation(ingesterr.ScopeHeader, h.InvoiceNumber,
			"subtotal %s + tax %s = %s does not match grand total %s", h.Subtotal, h.TaxTotal, expected, h.GrandTotal))
	}

	if tax, ok := pkg.ChargeTotals()[invoice.CategoryTax]; ok && !tax.Within(h.TaxTotal, a.tolerance) {
		warnings = append(warnings, ingesterr.Validation(ingesterr.ScopeCharges, invoice.CategoryTax.String(),
			"tax charges %s do not match tax total %s", tax, h.TaxTotal))
	}

	for _, f := range []struct {
		name  string
		value invoice.Money
	}{
		{"subtotal", h.Subtotal},
		{"tax_total", h.TaxTotal},
		{"grand_total", h.GrandTotal},
	} {
		if f.value.IsNegative() {
			warnings = append(warnings, ingesterr.Validation(ingesterr.ScopeSign, f.name,
				"%s is negative (%s)", f.name, f.value))
		}
	}
	return warnings
}

func freeze(raw map[string]any) (json.RawMessage, error) {
	if raw == nil {
		return json.RawMessage("null"), nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
