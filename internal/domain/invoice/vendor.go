package invoice

import "strings"

// Vendor identifies the telecom biller whose layout produced a document
type Vendor string

const (
	VendorMaxis   Vendor = "maxis"
	VendorCelcom  Vendor = "celcom"
	VendorDigi    Vendor = "digi"
	VendorUnknown Vendor = "unknown"
)

// KnownVendors lists every vendor with an extractor, in detection order
var KnownVendors = []Vendor{VendorMaxis, VendorCelcom, VendorDigi}

// ParseVendor maps free text onto a Vendor, returning VendorUnknown when nothing matches
func ParseVendor(s string) Vendor {
	switch Vendor(strings.ToLower(strings.TrimSpace(s))) {
	case VendorMaxis:
		return VendorMaxis
	case VendorCelcom:
		return VendorCelcom
	case VendorDigi:
		return VendorDigi
	default:
		return VendorUnknown
	}
}

// IsKnown reports whether an extractor exists for the vendor
func (v Vendor) IsKnown() bool {
	return v == VendorMaxis || v == VendorCelcom || v == VendorDigi
}

// String returns the string representation of the vendor
func (v Vendor) String() string {
	return string(v)
}
