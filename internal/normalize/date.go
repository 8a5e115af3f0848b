// Package normalize holds the field normalizers every vendor extractor shares.
// Extractors locate text; these functions decide what the text means.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrDate is returned for text that is not a date in any observed bill format
var ErrDate = errors.New("unrecognised date")

var months = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	isoDate     = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	numericDate = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{2}|\d{4})$`)
	textDate    = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?[\s\-]+([A-Za-z]{3,9})\.?[\s\-,]+(\d{4})$`)

	// dateToken finds any supported date inside running text
	dateToken = regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}|\d{1,2}[/.\-]\d{1,2}[/.\-](?:\d{4}|\d{2})\b|\d{1,2}(?:st|nd|rd|th)?[\s\-]+[A-Za-z]{3,9}\.?[\s\-,]+\d{4}`)
)

// Date parses the date formats seen on Malaysian telco bills:
// dd/mm/yyyy, d/m/yyyy, dd-mm-yyyy, dd.mm.yyyy, dd/mm/yy, yyyy-mm-dd,
// "d Month yyyy" and "d Mon yyyy". The result is a UTC calendar day.
func Date(s string) (time.Time, error) {
	s = strings.TrimSpace(Label(s))
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrDate)
	}

	if m := isoDate.FindStringSubmatch(s); m != nil {
		return calendarDay(atoi(m[1]), atoi(m[2]), atoi(m[3]), s)
	}
	if m := numericDate.FindStringSubmatch(s); m != nil {
		year := atoi(m[3])
		if len(m[3]) == 2 {
			year += 2000
		}
		return calendarDay(year, atoi(m[2]), atoi(m[1]), s)
	}
	if m := textDate.FindStringSubmatch(s); m != nil {
		month, ok := months[strings.ToLower(m[2])]
		if !ok {
			return time.Time{}, fmt.Errorf("%w: unknown month in %q", ErrDate, s)
		}
		return calendarDay(atoi(m[3]), int(month), atoi(m[1]), s)
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrDate, s)
}

// FindDate returns the first parseable date inside text
func FindDate(text string) (time.Time, bool) {
	for _, tok := range dateToken.FindAllString(text, -1) {
		if t, err := Date(tok); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Period parses a billing period such as "01/07/2025 - 31/07/2025" or
// "28 July 2025 to 27 Aug 2025".
func Period(s string) (start, end time.Time, err error) {
	var found []time.Time
	for _, tok := range dateToken.FindAllString(s, -1) {
		t, perr := Date(tok)
		if perr != nil {
			continue
		}
		found = append(found, t)
		if len(found) == 2 {
			break
		}
	}
	if len(found) < 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: period %q needs two dates", ErrDate, s)
	}
	return found[0], found[1], nil
}

func calendarDay(year, month, day int, src string) (time.Time, error) {
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %q is not a calendar day", ErrDate, src)
	}
	return t, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
