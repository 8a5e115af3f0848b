package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

func samplePackage(raw string) *invoice.Package {
	return &invoice.Package{
		Invoice: invoice.Header{Vendor: invoice.VendorDigi, InvoiceNumber: "500600700", GrandTotal: invoice.MustMoney("10.00")},
		Numbers: []invoice.NumberLine{{MSISDN: "0123456789", LineTotal: invoice.MustMoney("10.00")}},
		Charges: []invoice.Charge{{Category: invoice.CategoryMonthly, Label: "Monthly", Amount: invoice.MustMoney("10.00")}},
		Raw:     json.RawMessage(raw),
	}
}

func TestBytes_Deterministic(t *testing.T) {
	input := []byte("%PDF-1.4 maxis statement")

	first := Bytes(input)
	second := Bytes(append([]byte(nil), input...))
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	changed := append([]byte(nil), input...)
	changed[len(changed)-1] = 'T'
	assert.NotEqual(t, first, Bytes(changed))
}

func TestPackage_KeyOrderDoesNotMatter(t *testing.T) {
	a, err := Package(samplePackage(`{"b":1,"a":{"y":2,"x":3}}`))
	require.NoError(t, err)
	b, err := Package(samplePackage(`{ "a": {"x":3, "y":2}, "b": 1 }`))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Package(samplePackage(`{"a":{"x":3,"y":2},"b":2}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestCanonical(t *testing.T) {
	out, err := Canonical(map[string]any{"z": 1, "a": []any{json.Number("1.50"), "x"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[1.50,"x"],"z":1}`, string(out))
}

func TestCompute(t *testing.T) {
	raw := []byte("bytes")
	pkg := samplePackage(`null`)

	got, err := Compute(StrategyRaw, raw, pkg)
	require.NoError(t, err)
	assert.Equal(t, Bytes(raw), got)

	got, err = Compute(StrategyPackage, raw, pkg)
	require.NoError(t, err)
	want, _ := Package(pkg)
	assert.Equal(t, want, got)

	_, err = Compute(StrategyPackage, raw, nil)
	assert.Error(t, err)

	_, err = Compute(Strategy("md5"), raw, pkg)
	assert.Error(t, err)
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategyRaw, false},
		{"RAW", StrategyRaw, false},
		{" package ", StrategyPackage, false},
		{"content", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
