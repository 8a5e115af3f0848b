package assemble

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
)

func money(s string) invoice.Money { return invoice.MustMoney(s) }

func balancedPartial() *extract.Partial {
	return &extract.Partial{
		Header: invoice.Header{
			Vendor:        invoice.VendorMaxis,
			InvoiceNumber: "INV-1",
			Subtotal:      money("50.00"),
			TaxTotal:      money("3.00"),
			GrandTotal:    money("53.00"),
		},
		Numbers: []invoice.NumberLine{{
			MSISDN:       "012-345 6789",
			MonthlyItems: []invoice.MonthlyItem{{Description: "Business Postpaid 98", Amount: money("50.00")}},
			LineTotal:    money("50.00"),
		}},
		Charges: []extract.LabeledCharge{{Category: "Monthly", Label: "Monthly", Amount: money("50.00")}},
		Raw:     map[string]any{"source": "test"},
	}
}

func newAssembler() *Assembler {
	return New(DefaultTolerance, zap.NewNop())
}

func TestAssemble_BalancedPackageHasNoWarnings(t *testing.T) {
	a, err := newAssembler().Assemble(balancedPartial())
	require.NoError(t, err)

	assert.Empty(t, a.Warnings)
	assert.Equal(t, "0123456789", a.Package.Numbers[0].MSISDN)
	assert.Equal(t, invoice.DefaultCurrency, a.Package.Invoice.Currency)
	assert.Equal(t, invoice.CategoryMonthly, a.Package.Charges[0].Category)
	assert.JSONEq(t, `{"source":"test"}`, string(a.Package.Raw))
}

func TestAssemble_HeaderMismatch(t *testing.T) {
	tests := []struct {
		name     string
		grand    string
		warnings int
	}{
		{"within tolerance", "53.04", 0},
		{"at tolerance", "53.05", 0},
		{"beyond tolerance", "53.06", 1},
		{"far off", "80.00", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := balancedPartial()
			p.Header.GrandTotal = money(tt.grand)

			a, err := newAssembler().Assemble(p)
			require.NoError(t, err)
			require.Len(t, a.Warnings, tt.warnings)
			if tt.warnings > 0 {
				assert.Equal(t, ingesterr.ScopeHeader, a.Warnings[0].Scope)
				assert.Equal(t, ingesterr.KindValidationWarning, a.Warnings[0].Kind)
			}
		})
	}
}

func TestAssemble_ConfiguredTolerance(t *testing.T) {
	p := balancedPartial()
	p.Header.GrandTotal = money("53.50")

	a, err := New(decimal.RequireFromString("1.00"), zap.NewNop()).Assemble(p)
	require.NoError(t, err)
	assert.Empty(t, a.Warnings)
}

func TestAssemble_ZeroToleranceIsExact(t *testing.T) {
	p := balancedPartial()
	p.Header.GrandTotal = money("53.02")

	a, err := New(decimal.Zero, zap.NewNop()).Assemble(p)
	require.NoError(t, err)
	require.Len(t, a.Warnings, 1)
	assert.Equal(t, ingesterr.ScopeHeader, a.Warnings[0].Scope)

	lenient, err := newAssembler().Assemble(balancedPartial())
	require.NoError(t, err)
	assert.Empty(t, lenient.Warnings)
}

func TestNew_NegativeToleranceFallsBack(t *testing.T) {
	a := New(decimal.RequireFromString("-1"), zap.NewNop())
	assert.True(t, DefaultTolerance.Equal(a.Tolerance()))
	assert.True(t, New(decimal.Zero, zap.NewNop()).Tolerance().IsZero())
}

func TestAssemble_LineTotalMismatch(t *testing.T) {
	p := balancedPartial()
	p.Numbers[0].LineTotal = money("60.00")

	a, err := newAssembler().Assemble(p)
	require.NoError(t, err)
	require.Len(t, a.Warnings, 1)
	assert.Equal(t, ingesterr.ScopeLineTotal, a.Warnings[0].Scope)
	assert.Equal(t, "0123456789", a.Warnings[0].Subject)
}

func TestAssemble_LineWithoutItemsIsNotReconciled(t *testing.T) {
	p := balancedPartial()
	p.Numbers = append(p.Numbers, invoice.NumberLine{MSISDN: "0198765432", LineTotal: money("12.00")})

	a, err := newAssembler().Assemble(p)
	require.NoError(t, err)
	assert.Empty(t, a.Warnings)
}

func TestAssemble_UnknownCategoryBecomesOther(t *testing.T) {
	p := balancedPartial()
	p.Charges = append(p.Charges,
		extract.LabeledCharge{Category: "Roaming Surcharge", Label: "IDD roaming", Amount: money("4.00")},
		extract.LabeledCharge{Category: "Lucky Draw", Amount: money("1.00")},
	)

	a, err := newAssembler().Assemble(p)
	require.NoError(t, err)
	require.Len(t, a.Package.Charges, 3)

	assert.Equal(t, invoice.CategoryOther, a.Package.Charges[1].Category)
	assert.Equal(t, "IDD roaming", a.Package.Charges[1].Label)
	assert.Equal(t, invoice.CategoryOther, a.Package.Charges[2].Category)
	assert.Equal(t, "Lucky Draw", a.Package.Charges[2].Label)

	require.Len(t, a.Warnings, 2)
	for _, w := range a.Warnings {
		assert.Equal(t, ingesterr.ScopeCategory, w.Scope)
	}
	for _, c := range a.Package.Charges {
		assert.True(t, c.Category.IsValid())
	}
}

func TestAssemble_TaxChargesCheckedAgainstHeader(t *testing.T) {
	p := balancedPartial()
	p.Charges = append(p.Charges, extract.LabeledCharge{Category: "Tax", Label: "Service Tax", Amount: money("2.00")})

	a, err := newAssembler().Assemble(p)
	require.NoError(t, err)
	require.Len(t, a.Warnings, 1)
	assert.Equal(t, ingesterr.ScopeCharges, a.Warnings[0].Scope)
}

func TestAssemble_NegativeHeaderTotals(t *testing.T) {
	p := balancedPartial()
	p.Header.Subtotal = money("-50.00")
	p.Header.TaxTotal = money("0.00")
	p.Header.GrandTotal = money("-50.00")

	a, err := newAssembler().Assemble(p)
	require.NoError(t, err)

	var scopes []string
	for _, w := range a.Warnings {
		scopes = append(scopes, w.Scope)
	}
	assert.Equal(t, []string{ingesterr.ScopeSign, ingesterr.ScopeSign}, scopes)
}

func TestAssemble_NumbersAreNormalisedAndMerged(t *testing.T) {
	p := balancedPartial()
	p.Numbers = append(p.Numbers,
		invoice.NumberLine{MSISDN: "60123456789", Subscriber: "ACME", MonthlyItems: []invoice.MonthlyItem{{Description: "Caller ID", Amount: money("4.00")}}, LineTotal: money("4.00")},
		invoice.NumberLine{MSISDN: "", LineTotal: money("1.00")},
	)

	a, err := newAssembler().Assemble(p)
	require.NoError(t, err)
	require.Len(t, a.Package.Numbers, 1)

	n := a.Package.Numbers[0]
	assert.Equal(t, "54.00", n.LineTotal.String())
	assert.Len(t, n.MonthlyItems, 2)
	assert.Equal(t, "ACME", n.Subscriber)

	require.Len(t, a.Warnings, 2)
	assert.Equal(t, ingesterr.ScopeNumbers, a.Warnings[0].Scope)
	assert.Equal(t, ingesterr.ScopeNumbers, a.Warnings[1].Scope)
}

func TestAssemble_StructuralRejection(t *testing.T) {
	noNumbers := balancedPartial()
	noNumbers.Numbers = nil
	_, err := newAssembler().Assemble(noNumbers)
	assert.ErrorIs(t, err, ingesterr.ErrStructuralRejection)

	noCharges := balancedPartial()
	noCharges.Charges = nil
	_, err = newAssembler().Assemble(noCharges)
	assert.ErrorIs(t, err, ingesterr.ErrStructuralRejection)

	onlyBadNumbers := balancedPartial()
	onlyBadNumbers.Numbers = []invoice.NumberLine{{MSISDN: "n/a"}}
	_, err = newAssembler().Assemble(onlyBadNumbers)
	assert.ErrorIs(t, err, ingesterr.ErrStructuralRejection)

	_, err = newAssembler().Assemble(nil)
	assert.ErrorIs(t, err, ingesterr.ErrStructuralRejection)
}

func TestAssemble_WireShape(t *testing.T) {
	a, err := newAssembler().Assemble(balancedPartial())
	require.NoError(t, err)

	b, err := json.Marshal(a.Package)
	require.NoError(t, err)

	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &envelope))
	assert.Len(t, envelope, 4)
	for _, k := range []string{"invoice", "numbers", "charges", "raw"} {
		assert.Contains(t, envelope, k)
	}
	assert.Contains(t, string(envelope["charges"]), `"category":"Monthly"`)
	assert.Contains(t, string(envelope["invoice"]), `"grand_total":53.00`)
}
