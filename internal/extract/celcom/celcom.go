// Package celcom reads Celcom business bill statements: an account summary on
// the first page and a detailed charges part holding the registered mobile
// numbers table, the monthly amount listing and discounts.
package celcom

import (
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
)

// Extractor implements extract.Extractor for Celcom
type Extractor struct{}

// New creates a Celcom extractor
func New() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Vendor() invoice.Vendor {
	return invoice.VendorCelcom
}

// ExtractHeader uses the bill statement number as the invoice number. The grand
// total is the total current charges, or the amount due when that is not printed.
func (e *Extractor) ExtractHeader(doc *extract.Document) (invoice.Header, error) {
	st := parse(doc)

	if err := extract.Require("invoice_number", st.StatementNumber != ""); err != nil {
		return invoice.Header{}, err
	}
	grand := st.TotalCurrentCharges
	if grand == nil {
		grand = st.AmountDue
	}
	if err := extract.Require("grand_total", grand != nil); err != nil {
		return invoice.Header{}, err
	}

	h := invoice.Header{
		InvoiceNumber: st.StatementNumber,
		AccountNumber: st.AccountNumber,
		BillDate:      extract.Date(st.BillDate),
		PeriodStart:   extract.Date(st.PeriodFrom),
		PeriodEnd:     extract.Date(st.PeriodTo),
		Currency:      invoice.DefaultCurrency,
		GrandTotal:    *grand,
	}
	if st.MonthlyCharges != nil {
		h.Subtotal = *st.MonthlyCharges
	}
	if st.ServiceTax != nil {
		h.TaxTotal = *st.ServiceTax
	}
	return h, nil
}

// ExtractNumbers builds one line per registered mobile number. Monthly and
// one-time amounts become monthly items; usage and discounts become detail
// charges. Zero amounts are left out. The row total is the line total.
func (e *Extractor) ExtractNumbers(doc *extract.Document) ([]invoice.NumberLine, error) {
	st := parse(doc)

	plans := make(map[string]monthlyRow, len(st.Monthly))
	for _, m := range st.Monthly {
		if _, ok := plans[m.MSISDN]; !ok {
			plans[m.MSISDN] = m
		}
	}
	discountLabels := make(map[string]string, len(st.Discounts))
	for _, d := range st.Discounts {
		if _, ok := discountLabels[d.Key]; !ok {
			discountLabels[d.Key] = d.Label
		}
	}

	out := make([]invoice.NumberLine, 0, len(st.Registered))
	for _, r := range st.Registered {
		line := invoice.NumberLine{MSISDN: r.MSISDN, LineTotal: r.Total}

		fee := "Monthly Fee"
		if p, ok := plans[r.MSISDN]; ok && p.Description != "" {
			fee = p.Description
			line.Description = p.Description
		}
		if !r.Monthly.IsZero() {
			line.MonthlyItems = append(line.MonthlyItems, invoice.MonthlyItem{Description: fee, Amount: r.Monthly})
		}
		if !r.OneTime.IsZero() {
			line.MonthlyItems = append(line.MonthlyItems, invoice.MonthlyItem{Description: "One-Time Charges", Amount: r.OneTime})
		}
		if !r.Usage.IsZero() {
			line.DetailOfCharges = append(line.DetailOfCharges, invoice.DetailCharge{
				Category: "Usage",
				Amount:   r.Usage,
				Extra:    map[string]any{"label": "Usage Charges"},
			})
		}
		if !r.Discounts.IsZero() {
			label := "Discounts & Rebates"
			if l, ok := discountLabels[r.MSISDN]; ok {
				label = l
			}
			line.DetailOfCharges = append(line.DetailOfCharges, invoice.DetailCharge{
				Category: "Discounts",
				Amount:   r.Discounts,
				Extra:    map[string]any{"label": label},
			})
		}
		out = append(out, line)
	}
	return out, nil
}

// ExtractCharges emits the account summary rows that are printed
func (e *Extractor) ExtractCharges(doc *extract.Document) ([]extract.LabeledCharge, error) {
	st := parse(doc)

	var out []extract.LabeledCharge
	add := func(category, label string, amount *invoice.Money) {
		if amount != nil {
			out = append(out, extract.LabeledCharge{Category: category, Label: label, Amount: *amount})
		}
	}

	add("Previous", "Previous Balance", st.PreviousBalance)
	if st.TotalPayments != nil {
		paid := st.TotalPayments.Abs().Neg()
		add("Payments", "Total Payments", &paid)
	}
	add("Other", "Overdue Charges", st.OverdueCharges)
	add("Monthly", "Monthly Charges (RM)", st.MonthlyCharges)
	add("Tax", "Service Tax 6%", st.ServiceTax)
	add("Adjustments", "Rounding Adjustment", st.RoundingAdjustment)
	return out, nil
}

// ExtractRaw keeps the statement as printed
func (e *Extractor) ExtractRaw(doc *extract.Document) (map[string]any, error) {
	st := parse(doc)

	payments := make([]map[string]any, 0, len(st.Payments))
	for _, p := range st.Payments {
		payments = append(payments, map[string]any{"date": p.Key, "description": p.Label, "amount": p.Amount})
	}
	registered := make([]map[string]any, 0, len(st.Registered))
	for _, r := range st.Registered {
		registered = append(registered, map[string]any{
			"mobile_number":     r.MSISDN,
			"credit_limit":      r.CreditLimit,
			"one_time_charges":  r.OneTime,
			"monthly_amount":    r.Monthly,
			"usage_charges":     r.Usage,
			"discounts_rebates": r.Discounts,
			"total_amount":      r.Total,
		})
	}
	monthly := make([]map[string]any, 0, len(st.Monthly))
	for _, m := range st.Monthly {
		monthly = append(monthly, map[string]any{
			"mobile_number": m.MSISDN,
			"description":   m.Description,
			"from":          m.From,
			"to":            m.To,
			"amount":        m.Amount,
		})
	}
	discounts := make([]map[string]any, 0, len(st.Discounts))
	for _, d := range st.Discounts {
		discounts = append(discounts, map[string]any{"mobile_number": d.Key, "description": d.Label, "amount": d.Amount})
	}

	return map[string]any{
		"header": map[string]any{
			"bill_statement_number": st.StatementNumber,
			"account_number":        st.AccountNumber,
			"bill_date":             st.BillDate,
			"billing_period":        map[string]any{"from": st.PeriodFrom, "to": st.PeriodTo},
			"statement_month":       st.Month,
			"customer_name":         st.CustomerName,
			"plan_name":             st.PlanName,
			"credit_limit":          st.CreditLimit,
			"deposit":               st.Deposit,
		},
		"account_summary": map[string]any{
			"previous_balance":      st.PreviousBalance,
			"total_payments":        st.TotalPayments,
			"overdue_charges":       st.OverdueCharges,
			"monthly_charges":       st.MonthlyCharges,
			"service_tax":           st.ServiceTax,
			"rounding_adjustment":   st.RoundingAdjustment,
			"total_current_charges": st.TotalCurrentCharges,
			"amount_due":            st.AmountDue,
		},
		"detailed_charges": map[string]any{
			"previous_payments":         payments,
			"registered_mobile_numbers": registered,
			"monthly_amount":            monthly,
			"discounts_rebates":         discounts,
		},
	}, nil
}

var _ extract.Extractor = (*Extractor)(nil)
