package normalize

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrMSISDN is returned for text that is not a Malaysian mobile number
var ErrMSISDN = errors.New("unrecognised msisdn")

// MSISDN returns the canonical national form of a phone number: digits only,
// a leading "0", 9 to 11 digits. The "60" country prefix is rewritten to "0".
func MSISDN(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "60") && len(digits) >= 10:
		digits = "0" + digits[2:]
	case strings.HasPrefix(digits, "1") && len(digits) >= 8 && len(digits) <= 10:
		digits = "0" + digits
	}

	if len(digits) < 9 || len(digits) > 11 || digits[0] != '0' {
		return "", fmt.Errorf("%w: %q", ErrMSISDN, s)
	}
	return digits, nil
}
