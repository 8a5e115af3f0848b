package invoice

import (
	"encoding/json"
	"sort"
)

// DefaultCurrency is stamped on every header that does not carry its own
const DefaultCurrency = "MYR"

// RawDocument is an uploaded bill as received from the caller
type RawDocument struct {
	Filename string
	Content  []byte
}

// Header is the invoice-level block of the canonical package
type Header struct {
	Vendor        Vendor `json:"vendor"`
	InvoiceNumber string `json:"invoice_number"`
	AccountNumber string `json:"account_number"`
	BillDate      Date   `json:"bill_date"`
	PeriodStart   Date   `json:"period_start"`
	PeriodEnd     Date   `json:"period_end"`
	Currency      string `json:"currency"`
	Subtotal      Money  `json:"subtotal"`
	TaxTotal      Money  `json:"tax_total"`
	GrandTotal    Money  `json:"grand_total"`
}

// MonthlyItem is one itemised recurring charge on a number
type MonthlyItem struct {
	Description string `json:"description"`
	Amount      Money  `json:"amount"`
}

// DetailCharge is a vendor-specific per-number charge row. Extra holds layout-specific
// columns (access point, call duration, ...) and is flattened into the JSON object.
type DetailCharge struct {
	Category string
	Amount   Money
	Extra    map[string]any
}

func (d DetailCharge) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}
	out["category"] = d.Category
	out["amount"] = d.Amount
	return json.Marshal(out)
}

func (d *DetailCharge) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*d = DetailCharge{}
	if raw, ok := fields["category"]; ok {
		if err := json.Unmarshal(raw, &d.Category); err != nil {
			return err
		}
		delete(fields, "category")
	}
	if raw, ok := fields["amount"]; ok {
		if err := json.Unmarshal(raw, &d.Amount); err != nil {
			return err
		}
		delete(fields, "amount")
	}
	if len(fields) == 0 {
		return nil
	}
	d.Extra = make(map[string]any, len(fields))
	for k, raw := range fields {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		d.Extra[k] = v
	}
	return nil
}

// NumberLine is the per-MSISDN block of a bill
type NumberLine struct {
	MSISDN          string         `json:"msisdn"`
	Description     string         `json:"description"`
	Subscriber      string         `json:"subscriber"`
	MonthlyItems    []MonthlyItem  `json:"monthly_items"`
	DetailOfCharges []DetailCharge `json:"detail_of_charges"`
	LineTotal       Money          `json:"line_total"`
}

// ItemsTotal sums monthly items and detail rows
func (n NumberLine) ItemsTotal() Money {
	total := Zero
	for _, it := range n.MonthlyItems {
		total = total.Add(it.Amount)
	}
	for _, dc := range n.DetailOfCharges {
		total = total.Add(dc.Amount)
	}
	return total
}

// HasItems reports whether the line carries anything to reconcile against
func (n NumberLine) HasItems() bool {
	return len(n.MonthlyItems) > 0 || len(n.DetailOfCharges) > 0
}

// Charge is an invoice-level charge in the closed category set
type Charge struct {
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Amount   Money    `json:"amount"`
}

// Package is the canonical invoice package handed to persistence.
// Its JSON form is exactly {invoice, numbers, charges, raw}.
type Package struct {
	Invoice Header          `json:"invoice"`
	Numbers []NumberLine    `json:"numbers"`
	Charges []Charge        `json:"charges"`
	Raw     json.RawMessage `json:"raw"`
}

// MarshalJSON keeps empty sequences as [] and a missing raw block as null
func (p Package) MarshalJSON() ([]byte, error) {
	type wire Package
	w := wire(p)
	if w.Numbers == nil {
		w.Numbers = []NumberLine{}
	}
	if w.Charges == nil {
		w.Charges = []Charge{}
	}
	if len(w.Raw) == 0 {
		w.Raw = json.RawMessage("null")
	}
	return json.Marshal(w)
}

// ChargeTotals aggregates charge amounts per category
func (p *Package) ChargeTotals() map[Category]Money {
	totals := make(map[Category]Money)
	for _, c := range p.Charges {
		totals[c.Category] = totals[c.Category].Add(c.Amount)
	}
	return totals
}

// MSISDNs returns the package's numbers in sorted order
func (p *Package) MSISDNs() []string {
	out := make([]string, 0, len(p.Numbers))
	for _, n := range p.Numbers {
		out = append(out, n.MSISDN)
	}
	sort.Strings(out)
	return out
}
