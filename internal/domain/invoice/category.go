package invoice

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Category is the closed set of invoice-level charge categories
type Category uint8

const (
	CategoryOther Category = iota
	CategoryPrevious
	CategoryPayments
	CategoryMonthly
	CategoryUsage
	CategoryTax
	CategoryDiscounts
	CategoryAdjustments
	CategoryOtherCredits
)

var categoryNames = map[Category]string{
	CategoryPrevious:     "Previous",
	CategoryPayments:     "Payments",
	CategoryMonthly:      "Monthly",
	CategoryUsage:        "Usage",
	CategoryTax:          "Tax",
	CategoryDiscounts:    "Discounts",
	CategoryOther:        "Other",
	CategoryAdjustments:  "Adjustments",
	CategoryOtherCredits: "Other Credits",
}

// categoryKeys is keyed by categoryKey(name); singular forms are accepted as well
var categoryKeys = map[string]Category{
	"previous":     CategoryPrevious,
	"payments":     CategoryPayments,
	"payment":      CategoryPayments,
	"monthly":      CategoryMonthly,
	"usage":        CategoryUsage,
	"tax":          CategoryTax,
	"discounts":    CategoryDiscounts,
	"discount":     CategoryDiscounts,
	"other":        CategoryOther,
	"adjustments":  CategoryAdjustments,
	"adjustment":   CategoryAdjustments,
	"othercredits": CategoryOtherCredits,
	"othercredit":  CategoryOtherCredits,
}

// Categories returns every category in wire order
func Categories() []Category {
	return []Category{
		CategoryPrevious, CategoryPayments, CategoryMonthly, CategoryUsage, CategoryTax,
		CategoryDiscounts, CategoryOther, CategoryAdjustments, CategoryOtherCredits,
	}
}

// ParseCategory resolves a label to a category. Matching ignores case, blanks and
// punctuation. The second return value is false when the label is outside the closed
// set, in which case CategoryOther is returned.
func ParseCategory(label string) (Category, bool) {
	c, ok := categoryKeys[categoryKey(label)]
	if !ok {
		return CategoryOther, false
	}
	return c, true
}

// categoryKey folds a label the same way normalize.LabelKey does. It is duplicated here
// so the domain package stays free of imports from the normalizers.
func categoryKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// String returns the wire name of the category
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return categoryNames[CategoryOther]
}

// IsValid reports whether c is a member of the closed set
func (c Category) IsValid() bool {
	_, ok := categoryNames[c]
	return ok
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON is strict: stored packages never carry categories outside the set.
func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("category must be a string: %w", err)
	}
	parsed, ok := ParseCategory(s)
	if !ok {
		return fmt.Errorf("unknown charge category %q", s)
	}
	*c = parsed
	return nil
}
