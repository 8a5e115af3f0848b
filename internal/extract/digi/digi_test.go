package digi

import (
	"os"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
)

func loadFixture(t *testing.T) *extract.Document {
	t.Helper()
	content, err := os.ReadFile("testdata/statement.txt")
	require.NoError(t, err)
	doc, err := extract.Load("statement.txt", content)
	require.NoError(t, err)
	return doc
}

func TestExtractHeader(t *testing.T) {
	h, err := New().ExtractHeader(loadFixture(t))
	require.NoError(t, err)

	assert.Equal(t, "500600700", h.InvoiceNumber)
	assert.Equal(t, "1020304050", h.AccountNumber)
	assert.Equal(t, "2025-08-05", h.BillDate.String())
	assert.Equal(t, "2025-07-01", h.PeriodStart.String())
	assert.Equal(t, "2025-07-31", h.PeriodEnd.String())
	assert.Equal(t, "157.00", h.Subtotal.String())
	assert.Equal(t, "9.42", h.TaxTotal.String())
	assert.Equal(t, "166.42", h.GrandTotal.String())
}

func TestExtractHeader_SubtotalFromComponents(t *testing.T) {
	doc := loadFixture(t)
	doc.Pages[1] = strings.ReplaceAll(doc.Pages[1], "Subtotal 157.00", "")

	h, err := New().ExtractHeader(doc)
	require.NoError(t, err)
	assert.Equal(t, "157.00", h.Subtotal.String())
}

func TestExtractHeader_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		drop  *regexp.Regexp
		field string
	}{
		{"no invoice number", regexp.MustCompile(`(?m)^Invoice No.*$`), "invoice_number"},
		{"no totals", regexp.MustCompile(`(?m)^(?:Current Bill|Total Outstanding).*$`), "grand_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadFixture(t)
			for i := range doc.Pages {
				doc.Pages[i] = tt.drop.ReplaceAllString(doc.Pages[i], "")
			}

			_, err := New().ExtractHeader(doc)
			require.Error(t, err)
			assert.ErrorIs(t, err, ingesterr.ErrParse)

			var ie *ingesterr.Error
			require.ErrorAs(t, err, &ie)
			assert.Equal(t, tt.field, ie.Field)
		})
	}
}

func TestExtractNumbers(t *testing.T) {
	numbers, err := New().ExtractNumbers(loadFixture(t))
	require.NoError(t, err)
	require.Len(t, numbers, 2)

	first := numbers[0]
	assert.Equal(t, "0123456789", first.MSISDN)
	assert.Equal(t, "CelcomDigi Business Postpaid 5G 80", first.Description)
	assert.Equal(t, "ACME TRADING SDN BHD", first.Subscriber)
	assert.Equal(t, "85.00", first.LineTotal.String())
	require.Len(t, first.MonthlyItems, 4)
	assert.Equal(t, "Postpaid 5G 80 Monthly Fee", first.MonthlyItems[0].Description)
	assert.Equal(t, "-5.00", first.MonthlyItems[3].Amount.String())
	require.Len(t, first.DetailOfCharges, 2)
	assert.Equal(t, "Internet/Data", first.DetailOfCharges[0].Category)
	assert.Equal(t, "diginet", first.DetailOfCharges[0].Extra["access_point"])
	assert.Equal(t, 102400, first.DetailOfCharges[0].Extra["volume_kb"])
	assert.True(t, first.ItemsTotal().Equal(first.LineTotal))

	second := numbers[1]
	assert.Equal(t, "0198765432", second.MSISDN)
	assert.Equal(t, "CelcomDigi Business Postpaid 5G 80", second.Description)
	assert.Equal(t, "ACME TRADING SDN BHD", second.Subscriber)
	assert.Equal(t, "72.00", second.LineTotal.String())
	assert.True(t, second.ItemsTotal().Equal(second.LineTotal))
}

func TestExtractNumbers_DetailOnlyNumberUsesItemSum(t *testing.T) {
	doc := loadFixture(t)
	doc.Pages[1] = strings.ReplaceAll(doc.Pages[1], "0198765432 Postpaid 5G 80 CelcomDigi Business ACME TRADING SDN BHD 72.00", "")

	numbers, err := New().ExtractNumbers(doc)
	require.NoError(t, err)
	require.Len(t, numbers, 2)
	assert.Equal(t, "0198765432", numbers[1].MSISDN)
	assert.Equal(t, "72.00", numbers[1].LineTotal.String())
}

func TestExtractCharges(t *testing.T) {
	charges, err := New().ExtractCharges(loadFixture(t))
	require.NoError(t, err)

	got := make(map[string]string)
	for _, c := range charges {
		got[c.Label] = c.Amount.String()
	}
	assert.Equal(t, map[string]string{
		"Previous Bill(s)":        "180.00",
		"Payments":                "-180.00",
		"Adjustments":             "0.00",
		"Previous Overdue Amount": "0.00",
		"Monthly Fixed Charges":   "165.00",
		"Usage":                   "7.00",
		"Other Credits":           "-10.00",
		"Discounts":               "-5.00",
		"Service Tax":             "9.42",
	}, got)
}

func TestExtractRaw(t *testing.T) {
	raw, err := New().ExtractRaw(loadFixture(t))
	require.NoError(t, err)

	header := raw["header"].(map[string]any)
	assert.Equal(t, "2", header["no_of_lines"])
	assert.Equal(t, "25 August 2025", header["due_date"])

	ss := raw["service_summary"].(map[string]any)
	tax := ss["service_tax"].(map[string]any)
	assert.Len(t, tax, 2)

	payments := raw["payment_history"].([]map[string]any)
	require.Len(t, payments, 1)
	assert.Equal(t, "2025-07-10", payments[0]["date"])
}

func TestRun(t *testing.T) {
	p, err := extract.Run(New(), loadFixture(t))
	require.NoError(t, err)
	assert.Equal(t, invoice.VendorDigi, p.Header.Vendor)
	assert.Len(t, p.Numbers, 2)
	assert.Len(t, p.Charges, 9)
}
