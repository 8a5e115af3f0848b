package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// ErrAmount is returned for text that is not a currency amount
var ErrAmount = errors.New("unrecognised amount")

var (
	currencyMarks = regexp.MustCompile(`(?i)RM|MYR`)
	plainNumber   = regexp.MustCompile(`^(?:\d+(?:\.\d+)?|\.\d+)$`)
)

// Amount parses currency text: "RM 1,234.50", "(12.00)", "-3.00", "3.00-", "5.00 CR".
// Parenthesised, signed and CR-suffixed amounts are negative. The result is rounded
// half away from zero to two places.
func Amount(s string) (decimal.Decimal, error) {
	t := currencyMarks.ReplaceAllString(s, "")
	t = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, t)

	neg := false
	if strings.HasSuffix(strings.ToUpper(t), "CR") {
		neg = true
		t = t[:len(t)-2]
	}
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		neg = !neg
		t = t[1 : len(t)-1]
	}
	switch {
	case strings.HasPrefix(t, "-"):
		neg = !neg
		t = t[1:]
	case strings.HasSuffix(t, "-"):
		neg = !neg
		t = t[:len(t)-1]
	case strings.HasPrefix(t, "+"):
		t = t[1:]
	}

	if !plainNumber.MatchString(t) {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrAmount, s)
	}
	d, err := decimal.NewFromString(t)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q: %v", ErrAmount, s, err)
	}
	if neg {
		d = d.Neg()
	}
	return d.Round(2), nil
}

// Money is Amount lifted into the canonical money type
func Money(s string) (invoice.Money, error) {
	d, err := Amount(s)
	if err != nil {
		return invoice.Zero, err
	}
	return invoice.NewMoney(d), nil
}
