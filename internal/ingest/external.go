package ingest

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/domain/workflow"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
	"github.com/telcoingest/invoice-pipeline/internal/normalize"
	"github.com/telcoingest/invoice-pipeline/pkg/utils"
)

//go:embed schema/package.schema.json
var packageSchema []byte

const packageSchemaURL = "package.schema.json"

func compileSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(packageSchemaURL, bytes.NewReader(packageSchema)); err != nil {
		return nil, fmt.Errorf("add package schema: %w", err)
	}
	schema, err := compiler.Compile(packageSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile package schema: %w", err)
	}
	return schema, nil
}

// externalPackage is the accepted wire form of a pre-normalized package.
// Categories stay free text so unknown ones take the same path as extracted ones.
type externalPackage struct {
	Invoice externalHeader   `json:"invoice"`
	Numbers []externalNumber `json:"numbers" validate:"dive"`
	Charges []externalCharge `json:"charges" validate:"dive"`
	Raw     map[string]any   `json:"raw"`
}

type externalHeader struct {
	Vendor        string        `json:"vendor" validate:"required,oneof=maxis celcom digi"`
	InvoiceNumber string        `json:"invoice_number" validate:"required"`
	AccountNumber string        `json:"account_number"`
	BillDate      invoice.Date  `json:"bill_date"`
	PeriodStart   invoice.Date  `json:"period_start"`
	PeriodEnd     invoice.Date  `json:"period_end"`
	Currency      string        `json:"currency" validate:"omitempty,len=3"`
	Subtotal      invoice.Money `json:"subtotal"`
	TaxTotal      invoice.Money `json:"tax_total"`
	GrandTotal    invoice.Money `json:"grand_total"`
}

type externalNumber struct {
	MSISDN          string                 `json:"msisdn" validate:"required,msisdn"`
	Description     string                 `json:"description"`
	Subscriber      string                 `json:"subscriber"`
	MonthlyItems    []invoice.MonthlyItem  `json:"monthly_items"`
	DetailOfCharges []invoice.DetailCharge `json:"detail_of_charges"`
	LineTotal       invoice.Money          `json:"line_total"`
}

type externalCharge struct {
	Category string        `json:"category" validate:"required"`
	Label    string        `json:"label"`
	Amount   invoice.Money `json:"amount"`
}

// UpsertExternalPackage lands a package that was normalized elsewhere. Detection
// and extraction are skipped; the payload is validated against the package schema,
// re-assembled so the same invariants apply, then deduplicated, persisted and mapped.
func (o *Orchestrator) UpsertExternalPackage(ctx context.Context, filename string, payload []byte, opts ...Option) *Result {
	r := o.newRun(filename, workflow.NewExternalMachine(), opts)
	r.execute(ctx, func(ctx context.Context) *ingesterr.Error {
		partial, err := o.decodeExternal(payload)
		if err != nil {
			return err
		}
		r.res.Vendor = partial.Header.Vendor
		return o.land(ctx, r, partial, payload)
	})
	return r.res
}

func (o *Orchestrator) decodeExternal(payload []byte) (*extract.Partial, *ingesterr.Error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, ingesterr.ParseWrap("package", err)
	}
	if err := o.schema.Validate(doc); err != nil {
		return nil, ingesterr.ParseWrap("package", fmt.Errorf("does not match schema: %w", err))
	}

	var ext externalPackage
	if err := json.Unmarshal(payload, &ext); err != nil {
		return nil, ingesterr.ParseWrap("package", err)
	}
	if err := utils.ValidateStruct(&ext); err != nil {
		return nil, ingesterr.ParseWrap("package", err)
	}

	h := ext.Invoice
	partial := &extract.Partial{
		Header: invoice.Header{
			Vendor:        invoice.ParseVendor(h.Vendor),
			InvoiceNumber: h.InvoiceNumber,
			AccountNumber: h.AccountNumber,
			BillDate:      h.BillDate,
			PeriodStart:   h.PeriodStart,
			PeriodEnd:     h.PeriodEnd,
			Currency:      h.Currency,
			Subtotal:      h.Subtotal,
			TaxTotal:      h.TaxTotal,
			GrandTotal:    h.GrandTotal,
		},
		Raw: ext.Raw,
	}
	for i, n := range ext.Numbers {
		// pre-normalized input must be clean; a number the assembler would drop is rejected
		if _, err := normalize.MSISDN(n.MSISDN); err != nil {
			return nil, ingesterr.ParseWrap(fmt.Sprintf("numbers[%d].msisdn", i), err)
		}
		partial.Numbers = append(partial.Numbers, invoice.NumberLine{
			MSISDN:          n.MSISDN,
			Description:     n.Description,
			Subscriber:      n.Subscriber,
			MonthlyItems:    n.MonthlyItems,
			DetailOfCharges: n.DetailOfCharges,
			LineTotal:       n.LineTotal,
		})
	}
	for _, c := range ext.Charges {
		partial.Charges = append(partial.Charges, extract.LabeledCharge{
			Category: c.Category,
			Label:    c.Label,
			Amount:   c.Amount,
		})
	}
	return partial, nil
}
