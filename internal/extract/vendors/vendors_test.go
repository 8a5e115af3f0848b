package vendors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

func TestRegistry(t *testing.T) {
	r := Registry()
	assert.Len(t, r.Vendors(), 3)

	for _, v := range []invoice.Vendor{invoice.VendorMaxis, invoice.VendorCelcom, invoice.VendorDigi} {
		ex, err := r.Lookup(v)
		require.NoError(t, err)
		assert.Equal(t, v, ex.Vendor())
	}

	_, err := r.Lookup(invoice.VendorUnknown)
	assert.Error(t, err)
}
