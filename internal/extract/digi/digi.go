// Package digi reads CelcomDigi (Digi) business postpaid invoices.
package digi

import (
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
)

// Extractor implements extract.Extractor for Digi
type Extractor struct{}

// New creates a Digi extractor
func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Vendor() invoice.Vendor {
	return invoice.VendorDigi
}

// ExtractHeader takes the grand total from the current bill, then the service
// summary's current bill amount, then the total outstanding. The subtotal is the
// service summary subtotal, or the sum of the current-charge components.
func (e *Extractor) ExtractHeader(doc *extract.Document) (invoice.Header, error) {
	st := parse(doc)

	if err := extract.Require("invoice_number", st.InvoiceNumber != ""); err != nil {
		return invoice.Header{}, err
	}
	grand := firstOf(st.CurrentBill, st.CurrentBillAmount, st.TotalOutstanding)
	if err := extract.Require("grand_total", grand != nil); err != nil {
		return invoice.Header{}, err
	}

	h := invoice.Header{
		InvoiceNumber: st.InvoiceNumber,
		AccountNumber: st.AccountNumber,
		BillDate:      extract.Date(st.InvoiceDate),
		PeriodStart:   extract.Date(st.PeriodFrom),
		PeriodEnd:     extract.Date(st.PeriodTo),
		Currency:      invoice.DefaultCurrency,
		GrandTotal:    *grand,
	}

	if st.SummarySubtotal != nil {
		h.Subtotal = *st.SummarySubtotal
	} else {
		for _, m := range []*invoice.Money{st.MonthlyFixed, st.Usage, st.OtherCredits, st.Discounts} {
			if m != nil {
				h.Subtotal = h.Subtotal.Add(*m)
			}
		}
	}

	switch {
	case st.ServiceTax != nil:
		h.TaxTotal = *st.ServiceTax
	default:
		if t, ok := st.SummaryTax["Total"]; ok {
			h.TaxTotal = t
		}
	}
	return h, nil
}

// ExtractNumbers follows the service summary order; numbers that only appear in
// the per-line pages come after. The summary row total is the line total, and
// the item sum when the number is missing from the summary.
func (e *Extractor) ExtractNumbers(doc *extract.Document) ([]invoice.NumberLine, error) {
	st := parse(doc)

	details := make(map[string]*lineDetail, len(st.Details))
	for _, d := range st.Details {
		details[d.MSISDN] = d
	}

	var out []invoice.NumberLine
	seen := make(map[string]bool)
	for _, s := range st.Summary {
		if seen[s.MSISDN] {
			continue
		}
		line := invoice.NumberLine{
			MSISDN:      s.MSISDN,
			Description: s.Description,
			Subscriber:  s.Subscriber,
			LineTotal:   s.Total,
		}
		if d, ok := details[s.MSISDN]; ok {
			line.MonthlyItems = d.Items
			line.DetailOfCharges = d.Data
		}
		out = append(out, line)
		seen[s.MSISDN] = true
	}

	for _, d := range st.Details {
		if seen[d.MSISDN] {
			continue
		}
		line := invoice.NumberLine{
			MSISDN:          d.MSISDN,
			Description:     d.Description,
			Subscriber:      d.Subscriber,
			MonthlyItems:    d.Items,
			DetailOfCharges: d.Data,
		}
		line.LineTotal = line.ItemsTotal()
		out = append(out, line)
		seen[d.MSISDN] = true
	}
	return out, nil
}

// ExtractCharges emits the charges summary. The current bill and total
// outstanding are totals, not charges, and stay in raw.
func (e *Extractor) ExtractCharges(doc *extract.Document) ([]extract.LabeledCharge, error) {
	st := parse(doc)

	var out []extract.LabeledCharge
	add := func(category, label string, amount *invoice.Money) {
		if amount != nil {
			out = append(out, extract.LabeledCharge{Category: category, Label: label, Amount: *amount})
		}
	}

	add("Previous", "Previous Bill(s)", st.PreviousBills)
	if st.Payments != nil {
		paid := st.Payments.Abs().Neg()
		add("Payments", "Payments", &paid)
	}
	add("Adjustments", "Adjustments", st.Adjustments)
	add("Other", "Previous Overdue Amount", st.PreviousOverdue)
	add("Monthly", "Monthly Fixed Charges", st.MonthlyFixed)
	add("Usage", "Usage", st.Usage)
	add("Other Credits", "Other Credits", st.OtherCredits)
	add("Discounts", "Discounts", st.Discounts)
	add("Tax", "Service Tax", st.ServiceTax)
	return out, nil
}

func (e *Extractor) ExtractRaw(doc *extract.Document) (map[string]any, error) {
	st := parse(doc)

	summary := make([]map[string]any, 0, len(st.Summary))
	for _, s := range st.Summary {
		summary = append(summary, map[string]any{
			"mobile_no":   s.MSISDN,
			"description": s.Description,
			"subscriber":  s.Subscriber,
			"total":       s.Total,
		})
	}
	tax := make(map[string]any, len(st.SummaryTax))
	for k, v := range st.SummaryTax {
		tax[k] = v
	}
	details := make([]map[string]any, 0, len(st.Details))
	for _, d := range st.Details {
		details = append(details, map[string]any{
			"mobile_no":         d.MSISDN,
			"description":       d.Description,
			"subscriber":        d.Subscriber,
			"itemised_bill":     d.Items,
			"detail_of_charges": d.Data,
		})
	}
	payments := make([]map[string]any, 0, len(st.PaymentHistory))
	for _, p := range st.PaymentHistory {
		payments = append(payments, map[string]any{"date": p.Date, "amount": p.Amount})
	}

	return map[string]any{
		"header": map[string]any{
			"account_no":        st.AccountNumber,
			"invoice_no":        st.InvoiceNumber,
			"invoice_date":      st.InvoiceDate,
			"invoice_period":    map[string]any{"from": st.PeriodFrom, "to": st.PeriodTo},
			"no_of_lines":       st.NoOfLines,
			"due_date":          st.DueDate,
			"total_outstanding": st.TotalOutstanding,
		},
		"charges_summary": map[string]any{
			"previous_bills":          st.PreviousBills,
			"payments":                st.Payments,
			"adjustments":             st.Adjustments,
			"previous_overdue_amount": st.PreviousOverdue,
			"monthly_fixed_charges":   st.MonthlyFixed,
			"usage":                   st.Usage,
			"other_credits":           st.OtherCredits,
			"discounts":               st.Discounts,
			"service_tax":             st.ServiceTax,
			"current_bill":            st.CurrentBill,
			"total_outstanding":       st.TotalOutstanding,
		},
		"service_summary": map[string]any{
			"lines":               summary,
			"subtotal":            st.SummarySubtotal,
			"service_tax":         tax,
			"current_bill_amount": st.CurrentBillAmount,
		},
		"service_details": details,
		"payment_history": payments,
	}, nil
}

func firstOf(candidates ...*invoice.Money) *invoice.Money {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

var _ extract.Extractor = (*Extractor)(nil)
