package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/domain/workflow"
)

const externalPayload = `{
  "invoice": {
    "vendor": "digi",
    "invoice_number": "500600700",
    "account_number": "1020304050",
    "bill_date": "2025-08-05",
    "period_start": "2025-07-01",
    "period_end": "2025-07-31",
    "currency": "MYR",
    "subtotal": 100.00,
    "tax_total": "6.00",
    "grand_total": 106.00
  },
  "numbers": [
    {
      "msisdn": "60123456789",
      "description": "CelcomDigi Business Postpaid 5G 80",
      "subscriber": "ACME TRADING SDN BHD",
      "monthly_items": [{"description": "Postpaid 5G 80 Monthly Fee", "amount": 80.00}],
      "detail_of_charges": [{"category": "Internet/Data", "amount": 20.00, "access_point": "diginet"}],
      "line_total": 100.00
    }
  ],
  "charges": [
    {"category": "Monthly", "label": "Monthly Fixed Charges", "amount": 80.00},
    {"category": "Usage", "label": "Usage", "amount": 20.00},
    {"category": "Tax", "label": "Service Tax", "amount": 6.00}
  ],
  "raw": {"source": "partner-export"}
}`

func TestUpsertExternalPackage(t *testing.T) {
	persister := newFakePersister()
	mapper := &fakeMapper{}
	o := newOrchestrator(t, persister, mapper)

	res := o.UpsertExternalPackage(context.Background(), "partner.json", []byte(externalPayload))

	require.Nil(t, res.Error)
	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, invoice.VendorDigi, res.Vendor)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "0123456789", res.Package.Numbers[0].MSISDN)
	assert.Equal(t, "diginet", res.Package.Numbers[0].DetailOfCharges[0].Extra["access_point"])
	assert.Equal(t, []string{"pkg-1"}, mapper.calls)

	// external runs start after extraction
	require.NotEmpty(t, res.History)
	assert.Equal(t, workflow.StateExtracted, res.History[0].From)

	again := o.UpsertExternalPackage(context.Background(), "partner.json", []byte(externalPayload))
	assert.Equal(t, OutcomeDuplicate, again.Outcome)
	assert.Equal(t, 1, persister.Writes())
}

func TestUpsertExternalPackage_UnknownCategoryBecomesOther(t *testing.T) {
	payload := `{
  "invoice": {"vendor": "maxis", "invoice_number": "1", "subtotal": 10, "tax_total": 0, "grand_total": 10},
  "numbers": [{"msisdn": "0123456789", "line_total": 10}],
  "charges": [{"category": "Roaming Surcharge", "label": "IDD roaming", "amount": 10}]
}`
	o := newOrchestrator(t, newFakePersister(), nil)

	res := o.UpsertExternalPackage(context.Background(), "partner.json", []byte(payload))

	assert.Equal(t, OutcomeDone, res.Outcome)
	assert.Equal(t, invoice.CategoryOther, res.Package.Charges[0].Category)
	assert.Equal(t, "IDD roaming", res.Package.Charges[0].Label)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, ingesterr.ScopeCategory, res.Warnings[0].Scope)
}

func TestUpsertExternalPackage_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		kind    ingesterr.Kind
	}{
		{"not json", `{"invoice":`, ingesterr.KindParseError},
		{"unknown vendor", `{"invoice":{"vendor":"telekom","invoice_number":"1","grand_total":1},"numbers":[],"charges":[]}`, ingesterr.KindParseError},
		{"bad date", `{"invoice":{"vendor":"digi","invoice_number":"1","grand_total":1,"bill_date":"05/08/2025"},"numbers":[],"charges":[]}`, ingesterr.KindParseError},
		{"bad amount", `{"invoice":{"vendor":"digi","invoice_number":"1","grand_total":"RM 1"},"numbers":[],"charges":[]}`, ingesterr.KindParseError},
		{"unexpected envelope key", `{"invoice":{"vendor":"digi","invoice_number":"1","grand_total":1},"numbers":[],"charges":[],"extra":1}`, ingesterr.KindParseError},
		{"bad msisdn", `{"invoice":{"vendor":"digi","invoice_number":"1","grand_total":1},"numbers":[{"msisdn":"abc"}],"charges":[]}`, ingesterr.KindParseError},
		{"msisdn outside the national plan", `{"invoice":{"vendor":"digi","invoice_number":"1","subtotal":100,"tax_total":0,"grand_total":100},"numbers":[{"msisdn":"0123456789","line_total":50},{"msisdn":"5123456789","line_total":50}],"charges":[{"category":"Monthly","amount":100}]}`, ingesterr.KindParseError},
		{"no lines", `{"invoice":{"vendor":"digi","invoice_number":"1","grand_total":1},"numbers":[],"charges":[{"category":"Monthly","amount":1}]}`, ingesterr.KindStructuralRejection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			persister := newFakePersister()
			o := newOrchestrator(t, persister, nil)

			res := o.UpsertExternalPackage(context.Background(), "partner.json", []byte(tt.payload))

			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.Equal(t, workflow.StateAssembled, res.FailedStage)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.kind, res.Error.Kind)
			assert.Zero(t, persister.Writes())
		})
	}
}

func TestUpsertExternalPackage_InvalidMSISDNNamesTheLine(t *testing.T) {
	payload := `{
  "invoice": {"vendor": "digi", "invoice_number": "1", "subtotal": 100, "tax_total": 0, "grand_total": 100},
  "numbers": [{"msisdn": "0123456789", "line_total": 50}, {"msisdn": "5123456789", "line_total": 50}],
  "charges": [{"category": "Monthly", "amount": 100}]
}`
	o := newOrchestrator(t, newFakePersister(), nil)

	res := o.UpsertExternalPackage(context.Background(), "partner.json", []byte(payload))

	require.NotNil(t, res.Error)
	assert.Equal(t, "numbers[1].msisdn", res.Error.Field)
	assert.Nil(t, res.Package)
}
