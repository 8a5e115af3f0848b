package invoice

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// Money is a currency amount held at two decimal places.
// It serialises as a bare JSON number with exactly two fraction digits.
type Money struct {
	decimal.Decimal
}

// Zero is the zero amount
var Zero = Money{decimal.Zero}

// NewMoney rounds d half away from zero to two places
func NewMoney(d decimal.Decimal) Money {
	return Money{d.Round(2)}
}

// MoneyFromString parses a plain decimal string such as "53.00" or "-9.9"
func MoneyFromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return NewMoney(d), nil
}

// MustMoney is MoneyFromString for literals; it panics on malformed input
func MustMoney(s string) Money {
	m, err := MoneyFromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m + o
func (m Money) Add(o Money) Money {
	return NewMoney(m.Decimal.Add(o.Decimal))
}

// Sub returns m - o
func (m Money) Sub(o Money) Money {
	return NewMoney(m.Decimal.Sub(o.Decimal))
}

// Neg returns -m
func (m Money) Neg() Money {
	return Money{m.Decimal.Neg()}
}

// Abs returns |m|
func (m Money) Abs() Money {
	return Money{m.Decimal.Abs()}
}

// Within reports whether |m - o| <= tolerance
func (m Money) Within(o Money, tolerance decimal.Decimal) bool {
	return m.Decimal.Sub(o.Decimal).Abs().LessThanOrEqual(tolerance)
}

// Equal compares amounts numerically
func (m Money) Equal(o Money) bool {
	return m.Decimal.Equal(o.Decimal)
}

// String renders the amount with two fraction digits
func (m Money) String() string {
	return m.Decimal.StringFixed(2)
}

// Sum adds amounts
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.StringFixed(2)), nil
}

// UnmarshalJSON accepts a JSON number, a numeric string or null (zero).
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Zero
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("invalid amount %s: %w", s, err)
		}
		s = unquoted
	}
	parsed, err := MoneyFromString(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
