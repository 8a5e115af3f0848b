package detect

import (
	"regexp"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// markers are letterhead and template strings, most specific first. Each distinct
// matched fragment scores one point.
var markers = map[invoice.Vendor][]*regexp.Regexp{
	invoice.VendorMaxis: {
		regexp.MustCompile(`(?i)\bMaxis Broadband Sdn Bhd\b`),
		regexp.MustCompile(`(?i)\bMaxis(?: Berhad)?\b`),
		regexp.MustCompile(`(?i)\bmaxis\.com\.my\b`),
		regexp.MustCompile(`(?i)\bMaxis Business\b`),
	},
	invoice.VendorCelcom: {
		regexp.MustCompile(`(?i)\bCelcom(?: \(Malaysia\))?\s*Axiata\b`),
		regexp.MustCompile(`(?i)\bCelcom(?:Digi)?\s+Bill Statement\b`),
		regexp.MustCompile(`(?i)\bMEGA\s+Lightning\b`),
		regexp.MustCompile(`(?i)\bCelcom(?:Digi)?\b`),
		regexp.MustCompile(`(?i)\bHello\s+TRADEWINDS\b`),
	},
	invoice.VendorDigi: {
		regexp.MustCompile(`(?i)\bDigi Telecommunications Sdn Bhd\b`),
		regexp.MustCompile(`(?i)\bCelcomDigi\s+Business\b`),
		regexp.MustCompile(`(?i)\bPostpaid\s*5G\s*\d+\b`),
		regexp.MustCompile(`(?i)\bCelcomDigi\b`),
	},
}

// hardHints settle the Celcom/Digi overlap left by post-merger branding
var hardHints = map[invoice.Vendor][]*regexp.Regexp{
	invoice.VendorCelcom: {
		regexp.MustCompile(`(?i)\bCelcom\s*\(Malaysia\)\s*Berhad\b`),
		regexp.MustCompile(`(?i)\bCelcom\s*Axiata\b`),
		regexp.MustCompile(`(?i)\bMEGA\s+Lightning\s*\d+\b`),
	},
	invoice.VendorDigi: {
		regexp.MustCompile(`(?i)\bDigi Telecommunications Sdn Bhd\b`),
		regexp.MustCompile(`(?i)\bCelcomDigi\s+Business\s+Postpaid\b`),
	},
}

const hardHintWeight = 3

var digiTieBreaker = regexp.MustCompile(`(?i)\bCelcomDigi\s+Business\s+Postpaid\b`)

// filenameHints run against the filename with separators turned into blanks
var filenameHints = map[invoice.Vendor][]*regexp.Regexp{
	invoice.VendorMaxis:  {regexp.MustCompile(`(?i)\bmaxis\b`), regexp.MustCompile(`(?i)\bME\d{6,}\b`)},
	invoice.VendorCelcom: {regexp.MustCompile(`(?i)\bcelcom\b`)},
	invoice.VendorDigi:   {regexp.MustCompile(`(?i)\bdigi\b`), regexp.MustCompile(`(?i)\bcelcomdigi\b`)},
}

// fuzzyPhrases are the multi-word markers OCR most often mangles. They are compared
// against token windows of the same width with an edit-distance budget.
var fuzzyPhrases = map[invoice.Vendor][]string{
	invoice.VendorMaxis:  {"maxis broadband sdn bhd", "maxis business"},
	invoice.VendorCelcom: {"celcom axiata", "mega lightning", "hello tradewinds"},
	invoice.VendorDigi:   {"digi telecommunications sdn bhd", "celcomdigi business postpaid"},
}
