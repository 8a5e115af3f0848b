// Package maxis reads Maxis Business postpaid bill statements.
//
// Page 1 carries the statement fields, page 2 the current charges summary with
// one row per number, and every later page belongs to the per-number section
// whose header (number + plan) last appeared.
package maxis

import (
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
)

// Extractor implements extract.Extractor for Maxis
type Extractor struct{}

// New creates a Maxis extractor
func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Vendor() invoice.Vendor {
	return invoice.VendorMaxis
}

// ExtractHeader maps the bill reference to the invoice number. Service tax stays on
// the header only; the printed total current charges is the grand total.
func (e *Extractor) ExtractHeader(doc *extract.Document) (invoice.Header, error) {
	st := parse(doc)

	if err := extract.Require("invoice_number", st.BillReference != ""); err != nil {
		return invoice.Header{}, err
	}
	if err := extract.Require("grand_total", st.TotalCurrent != nil); err != nil {
		return invoice.Header{}, err
	}

	h := invoice.Header{
		InvoiceNumber: st.BillReference,
		AccountNumber: st.AccountNumber,
		BillDate:      extract.Date(st.StatementDate),
		PeriodStart:   extract.Date(st.PeriodFrom),
		PeriodEnd:     extract.Date(st.PeriodTo),
		Currency:      invoice.DefaultCurrency,
		GrandTotal:    *st.TotalCurrent,
	}
	if st.TotalExclTax != nil {
		h.Subtotal = *st.TotalExclTax
	}
	if st.ServiceTax != nil {
		h.TaxTotal = *st.ServiceTax
	}
	return h, nil
}

// ExtractNumbers merges the page 2 summary rows with the per-number sections.
// The summary amount is the line total; without one the section's printed
// "Total Line Charges" is used, then the item sum.
func (e *Extractor) ExtractNumbers(doc *extract.Document) ([]invoice.NumberLine, error) {
	st := parse(doc)

	sections := make(map[string]*numberSection, len(st.Sections))
	for _, s := range st.Sections {
		sections[s.MSISDN] = s
	}

	var out []invoice.NumberLine
	seen := make(map[string]bool)
	for _, cl := range st.Lines {
		line := invoice.NumberLine{MSISDN: cl.MSISDN, Description: cl.Plan, LineTotal: cl.Amount}
		if s, ok := sections[cl.MSISDN]; ok {
			fillFromSection(&line, s)
		}
		out = append(out, line)
		seen[cl.MSISDN] = true
	}

	for _, s := range st.Sections {
		if seen[s.MSISDN] {
			continue
		}
		line := invoice.NumberLine{MSISDN: s.MSISDN, Description: s.Plan}
		fillFromSection(&line, s)
		switch {
		case s.LineTotal != nil:
			line.LineTotal = *s.LineTotal
		default:
			line.LineTotal = line.ItemsTotal()
		}
		out = append(out, line)
	}
	return out, nil
}

func fillFromSection(line *invoice.NumberLine, s *numberSection) {
	if line.Description == "" {
		line.Description = s.Plan
	}
	line.Subscriber = s.AccountName
	line.MonthlyItems = s.Items
	line.DetailOfCharges = s.Calls
}

// ExtractCharges emits the statement summary. Absent amounts are skipped.
func (e *Extractor) ExtractCharges(doc *extract.Document) ([]extract.LabeledCharge, error) {
	st := parse(doc)

	var out []extract.LabeledCharge
	add := func(category, label string, amount *invoice.Money) {
		if amount != nil {
			out = append(out, extract.LabeledCharge{Category: category, Label: label, Amount: *amount})
		}
	}

	add("Previous", "Previous Balance", st.PreviousBalance)
	add("Other", "Overdue Amount", st.OverdueAmount)
	if st.PaymentReceived != nil {
		paid := st.PaymentReceived.Abs().Neg()
		add("Payments", "Payment Received", &paid)
	}
	add("Adjustments", "Adjustment", st.Adjustment)
	add("Monthly", "Total Charges (excluding Svc. Tax)", st.TotalExclTax)
	return out, nil
}

// ExtractRaw keeps the full statement for audit
func (e *Extractor) ExtractRaw(doc *extract.Document) (map[string]any, error) {
	st := parse(doc)

	lines := make([]map[string]any, 0, len(st.Lines))
	for _, l := range st.Lines {
		lines = append(lines, map[string]any{"service_no": l.MSISDN, "plan": l.Plan, "amount": l.Amount})
	}

	sections := make([]map[string]any, 0, len(st.Sections))
	for _, s := range st.Sections {
		entry := map[string]any{
			"service_no":   s.MSISDN,
			"plan":         s.Plan,
			"account_name": s.AccountName,
			"item_count":   len(s.Items),
			"call_count":   len(s.Calls),
		}
		if s.SharedWith != "" {
			entry["share_product_service_no"] = s.SharedWith
		}
		if s.LineTotal != nil {
			entry["total_line_charges"] = *s.LineTotal
		}
		sections = append(sections, entry)
	}

	return map[string]any{
		"bill_statement": map[string]any{
			"account_number":    st.AccountNumber,
			"bill_reference":    st.BillReference,
			"statement_date":    st.StatementDate,
			"billing_period":    map[string]any{"from": st.PeriodFrom, "to": st.PeriodTo},
			"payment_last_date": st.PaymentLastDate,
			"previous_balance":  st.PreviousBalance,
			"payment_received":  st.PaymentReceived,
			"overdue_amount":    st.OverdueAmount,
			"adjustment":        st.Adjustment,
			"current_charges": map[string]any{
				"mobile_total":           st.MobileTotal,
				"lines":                  lines,
				"total_charges_excl_tax": st.TotalExclTax,
				"service_tax":            st.ServiceTax,
				"service_tax_rate":       st.TaxRate,
				"total_current_charges":  st.TotalCurrent,
			},
		},
		"lines": sections,
	}, nil
}

var _ extract.Extractor = (*Extractor)(nil)
