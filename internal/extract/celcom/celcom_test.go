package celcom

import (
	"os"
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

	assert.Equal(t, "812345678", h.InvoiceNumber)
	assert.Equal(t, "300123456", h.AccountNumber)
	assert.Equal(t, "2025-08-05", h.BillDate.String())
	assert.Equal(t, "2025-07-01", h.PeriodStart.String())
	assert.Equal(t, "2025-07-31", h.PeriodEnd.String())
	assert.Equal(t, "196.00", h.Subtotal.String())
	assert.Equal(t, "11.76", h.TaxTotal.String())
	assert.Equal(t, "207.75", h.GrandTotal.String())
}

func TestExtractHeader_FallsBackToAmountDue(t *testing.T) {
	doc := loadFixture(t)
	doc.Pages[0] = strings.ReplaceAll(doc.Pages[0], "Total Current Charges 207.75\n", "")
	doc.Pages[0] = strings.ReplaceAll(doc.Pages[0], "Amount Due RM 207.75", "Amount Due RM 207.70")

	h, err := New().ExtractHeader(doc)
	require.NoError(t, err)
	assert.Equal(t, "207.70", h.GrandTotal.String())
}

func TestExtractHeader_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name  string
		drop  []string
		field string
	}{
		{"no statement number", []string{"Bill Statement Number : 812345678"}, "invoice_number"},
		{"no totals", []string{"Total Current Charges 207.75", "Amount Due RM 207.75"}, "grand_total"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := loadFixture(t)
			for _, d := range tt.drop {
				doc.Pages[0] = strings.ReplaceAll(doc.Pages[0], d, "")
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
	assert.Equal(t, "MEGA Lightning 98", first.Description)
	assert.Equal(t, "105.50", first.LineTotal.String())
	require.Len(t, first.MonthlyItems, 1)
	assert.Equal(t, "98.00", first.MonthlyItems[0].Amount.String())
	require.Len(t, first.DetailOfCharges, 2)
	assert.Equal(t, "Usage", first.DetailOfCharges[0].Category)
	assert.Equal(t, "12.50", first.DetailOfCharges[0].Amount.String())
	assert.Equal(t, "Discounts", first.DetailOfCharges[1].Category)
	assert.Equal(t, "Loyalty Rebate", first.DetailOfCharges[1].Extra["label"])
	assert.True(t, first.ItemsTotal().Equal(first.LineTotal))

	second := numbers[1]
	assert.Equal(t, "0198765432", second.MSISDN)
	assert.Equal(t, "90.50", second.LineTotal.String())
	require.Len(t, second.MonthlyItems, 2)
	assert.Equal(t, "One-Time Charges", second.MonthlyItems[1].Description)
	require.Len(t, second.DetailOfCharges, 1)
	assert.True(t, second.ItemsTotal().Equal(second.LineTotal))
}

func TestExtractCharges(t *testing.T) {
	charges, err := New().ExtractCharges(loadFixture(t))
	require.NoError(t, err)

	got := make(map[string]string)
	for _, c := range charges {
		got[c.Category] = c.Amount.String()
	}
	assert.Equal(t, map[string]string{
		"Previous":    "210.00",
		"Payments":    "-210.00",
		"Other":       "0.00",
		"Monthly":     "196.00",
		"Tax":         "11.76",
		"Adjustments": "-0.01",
	}, got)
}

func TestExtractRaw(t *testing.T) {
	raw, err := New().ExtractRaw(loadFixture(t))
	require.NoError(t, err)

	header := raw["header"].(map[string]any)
	assert.Equal(t, "August 2025", header["statement_month"])
	assert.Equal(t, "ACME TRADING SDN BHD", header["customer_name"])
	assert.Equal(t, "MEGA Lightning 98", header["plan_name"])

	detailed := raw["detailed_charges"].(map[string]any)
	assert.Len(t, detailed["previous_payments"], 1)
	assert.Len(t, detailed["registered_mobile_numbers"], 2)
	monthly := detailed["monthly_amount"].([]map[string]any)
	require.Len(t, monthly, 2)
	assert.Equal(t, "2025-07-01", monthly[0]["from"])
}

func TestRun(t *testing.T) {
	p, err := extract.Run(New(), loadFixture(t))
	require.NoError(t, err)
	assert.Equal(t, invoice.VendorCelcom, p.Header.Vendor)
	assert.Equal(t, invoice.DefaultCurrency, p.Header.Currency)
	assert.Len(t, p.Numbers, 2)
	assert.Len(t, p.Charges, 6)
}
