package extract

import (
	"regexp"
	"strings"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/normalize"
)

// AmountPattern matches one printed currency amount: 1,234.50 (12.00) -3.00 3.00- 5.00 CR
const AmountPattern = `\(?-?(?:RM\s?)?\d[\d,]*\.\d{2}\)?(?:\s?CR\b|-)?`

var (
	amountRx     = regexp.MustCompile(AmountPattern)
	trailingRx   = regexp.MustCompile(`(` + AmountPattern + `)\s*$`)
	cellGap      = regexp.MustCompile(`\s{2,}|\t`)
	numericCell  = regexp.MustCompile(`^(?:\(?-?(?:RM)?[\d,]*\d(?:\.\d+)?\)?-?|-)$`)
	msisdnInLine = regexp.MustCompile(`\b(?:60[ \-]?|0)1\d(?:[ \-]?\d){7,8}\b`)
)

// Lines splits text into trimmed, non-blank lines
func Lines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Section returns the lines from the first one containing start up to, not including,
// the next line containing any of ends. Anchors match case- and blank-insensitively.
// Without ends the section runs to the end of text.
func Section(text, start string, ends ...string) (string, bool) {
	lines := strings.Split(text, "\n")
	from := -1
	for i, l := range lines {
		if strings.Contains(normalize.Fold(l), normalize.Fold(start)) {
			from = i
			break
		}
	}
	if from < 0 {
		return "", false
	}

	to := len(lines)
	for j := from + 1; j < len(lines) && to == len(lines); j++ {
		folded := normalize.Fold(lines[j])
		for _, end := range ends {
			if strings.Contains(folded, normalize.Fold(end)) {
				to = j
				break
			}
		}
	}
	return strings.Join(lines[from:to], "\n"), true
}

// Blocks cuts text into pieces that each begin at a line matching start.
// Text before the first match is discarded.
func Blocks(text string, start *regexp.Regexp) []string {
	var (
		blocks []string
		cur    []string
	)
	for _, l := range strings.Split(text, "\n") {
		if start.MatchString(l) {
			if cur != nil {
				blocks = append(blocks, strings.Join(cur, "\n"))
			}
			cur = []string{l}
			continue
		}
		if cur != nil {
			cur = append(cur, l)
		}
	}
	if cur != nil {
		blocks = append(blocks, strings.Join(cur, "\n"))
	}
	return blocks
}

// FindField returns the first capture group of rx, whitespace-collapsed
func FindField(text string, rx *regexp.Regexp) (string, bool) {
	m := rx.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	v := normalize.Label(m[1])
	return v, v != ""
}

// FindAmount returns the first amount printed after label on the same line.
// label is a regular expression fragment matched case-insensitively.
func FindAmount(text, label string) (invoice.Money, bool) {
	rx, err := regexp.Compile(`(?im)` + label + `[^\n]*?(` + AmountPattern + `)`)
	if err != nil {
		return invoice.Zero, false
	}
	m := rx.FindStringSubmatch(text)
	if m == nil {
		return invoice.Zero, false
	}
	money, err := normalize.Money(m[1])
	if err != nil {
		return invoice.Zero, false
	}
	return money, true
}

// TrailingAmount splits a row into its leading text and the amount that ends it
func TrailingAmount(line string) (string, invoice.Money, bool) {
	loc := trailingRx.FindStringSubmatchIndex(line)
	if loc == nil {
		return line, invoice.Zero, false
	}
	money, err := normalize.Money(line[loc[2]:loc[3]])
	if err != nil {
		return line, invoice.Zero, false
	}
	return strings.TrimSpace(line[:loc[0]]), money, true
}

// Date parses an optional printed date. Blank or unreadable text is the zero Date.
func Date(s string) invoice.Date {
	if s == "" {
		return invoice.Date{}
	}
	t, err := normalize.Date(s)
	if err != nil {
		return invoice.Date{}
	}
	return invoice.NewDate(t)
}

// Amounts returns every amount in text, in order
func Amounts(text string) []invoice.Money {
	var out []invoice.Money
	for _, s := range amountRx.FindAllString(text, -1) {
		if m, err := normalize.Money(s); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// FindMSISDN returns the first mobile number in text, in canonical form
func FindMSISDN(text string) (string, bool) {
	for _, cand := range msisdnInLine.FindAllString(text, -1) {
		if n, err := normalize.MSISDN(cand); err == nil {
			return n, true
		}
	}
	return "", false
}

// SplitTable shapes lines into rows of exactly columns cells. Cells are separated by
// runs of two or more blanks; for single-spaced text, numeric cells are peeled off
// the right edge and the rest becomes the first cell. Surplus leading cells merge
// into the first. Lines that cannot be shaped are skipped.
func SplitTable(lines []string, columns int) [][]string {
	var rows [][]string
	for _, line := range lines {
		if cells := splitRow(line, columns); cells != nil {
			rows = append(rows, cells)
		}
	}
	return rows
}

func splitRow(line string, columns int) []string {
	line = strings.TrimSpace(line)
	if line == "" || columns <= 0 {
		return nil
	}

	var cells []string
	for _, c := range cellGap.Split(line, -1) {
		if c = strings.TrimSpace(c); c != "" {
			cells = append(cells, c)
		}
	}
	if len(cells) < columns {
		cells = peelNumeric(strings.Fields(line), columns)
	}
	if len(cells) > columns {
		head := strings.Join(cells[:len(cells)-columns+1], " ")
		cells = append([]string{head}, cells[len(cells)-columns+1:]...)
	}
	if len(cells) != columns {
		return nil
	}
	return cells
}

func peelNumeric(tokens []string, columns int) []string {
	var tail []string
	i := len(tokens) - 1
	for ; i >= 0 && len(tail) < columns-1; i-- {
		if !numericCell.MatchString(tokens[i]) {
			break
		}
		tail = append([]string{tokens[i]}, tail...)
	}
	if i < 0 {
		if len(tail) == 0 {
			return nil
		}
		return tail
	}
	return append([]string{strings.Join(tokens[:i+1], " ")}, tail...)
}
