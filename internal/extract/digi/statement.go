package digi

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
	"github.com/telcoingest/invoice-pipeline/internal/normalize"
)

const (
	amt      = extract.AmountPattern
	longDate = `\d{1,2}\s+[A-Za-z]{3,9}\s+\d{4}`
)

var (
	reAccountNo   = regexp.MustCompile(`(?i)Account\s*No\.?\s*[:\-]?\s*(\d+)`)
	reInvoiceNo   = regexp.MustCompile(`(?i)Invoice\s*No\.?\s*[:\-]?\s*(\d+)`)
	reInvoiceDate = regexp.MustCompile(`(?i)Invoice\s*Date\.?\s*[:\-]?\s*(` + longDate + `)`)
	reDueDate     = regexp.MustCompile(`(?i)(?:Payment\s*)?Due\s*Date[^\n\d]*(` + longDate + `)`)
	rePeriod      = regexp.MustCompile(`(?i)(?:Invoice\s*)?Period\s*[:\-]?\s*(` + longDate + `\s*(?:to|-|–)\s*` + longDate + `)`)
	reNoOfLines   = regexp.MustCompile(`(?i)No\.?\s*of\s*Lines\.?\s*[:\-]?\s*(\d+)`)

	reSummaryMSISDN = regexp.MustCompile(`\b01\d{7,8}\b`)
	reSubscriber    = regexp.MustCompile(`[A-Z][A-Z '&.\-]+(?:SDN|BERHAD)(?:\s+BHD)?`)
	reBrand         = regexp.MustCompile(`(?i)CelcomDigi\s+Business`)
	rePlan          = regexp.MustCompile(`(?i)Postpaid\s*\d+\s*G\s*\d+`)
	reTaxRow        = regexp.MustCompile(`(?i)^(.+?-\s*\d+\s*percent|Total)\s+(` + amt + `)$`)

	reLineBlock = regexp.MustCompile(`(?i)^\s*Mobile\s*No\.?\s*:?\s*0\d`)
	reItemised  = regexp.MustCompile(`(?i)Postpaid|Secure|Rebate|Discount|OCC|Other\s+Credit`)
	reDataRow   = regexp.MustCompile(`(?i)^\s*(digisecure|diginet)\b\s*(\S*)\s+(?:.*\s)?(` + amt + `)\s*$`)
	rePayment   = regexp.MustCompile(`^\s*(` + longDate + `)\s+(` + amt + `)\s*$`)
)

// summaryLine is one row of the Service Summary table
type summaryLine struct {
	MSISDN      string
	Description string
	Subscriber  string
	Total       invoice.Money
}

// lineDetail is one "Mobile No" block from the per-line pages
type lineDetail struct {
	MSISDN      string
	Description string
	Subscriber  string
	Items       []invoice.MonthlyItem
	Data        []invoice.DetailCharge
}

type payment struct {
	Date   string
	Amount invoice.Money
}

type statement struct {
	AccountNumber string
	InvoiceNumber string
	InvoiceDate   string
	DueDate       string
	PeriodFrom    string
	PeriodTo      string
	NoOfLines     string

	PreviousBills    *invoice.Money
	Payments         *invoice.Money
	Adjustments      *invoice.Money
	PreviousOverdue  *invoice.Money
	MonthlyFixed     *invoice.Money
	Usage            *invoice.Money
	OtherCredits     *invoice.Money
	Discounts        *invoice.Money
	ServiceTax       *invoice.Money
	CurrentBill      *invoice.Money
	TotalOutstanding *invoice.Money

	Summary           []summaryLine
	SummarySubtotal   *invoice.Money
	SummaryTax        map[string]invoice.Money
	CurrentBillAmount *invoice.Money

	Details        []*lineDetail
	PaymentHistory []payment
}

func parse(doc *extract.Document) *statement {
	st := &statement{SummaryTax: make(map[string]invoice.Money)}
	all := collapseBlanks(doc.Text())

	st.AccountNumber, _ = extract.FindField(all, reAccountNo)
	st.InvoiceNumber, _ = extract.FindField(all, reInvoiceNo)
	st.InvoiceDate, _ = extract.FindField(all, reInvoiceDate)
	st.DueDate, _ = extract.FindField(all, reDueDate)
	st.NoOfLines, _ = extract.FindField(all, reNoOfLines)
	if period, ok := extract.FindField(all, rePeriod); ok {
		if from, to, err := normalize.Period(period); err == nil {
			st.PeriodFrom, st.PeriodTo = from.Format(invoice.DateLayout), to.Format(invoice.DateLayout)
		}
	}

	summary, ok := extract.Section(all, "Charges Summary", "Service Summary", "Mobile No")
	if !ok {
		summary = all
	}
	st.PreviousBills = findAmount(summary, `^\s*Previous\s*Bill\(s\)`)
	st.Payments = findAmount(summary, `^\s*Payments?\b`)
	st.Adjustments = findAmount(summary, `^\s*Adjustments?\b`)
	st.PreviousOverdue = findAmount(summary, `^\s*Previous\s*Overdue\s*Amount`)
	st.MonthlyFixed = findAmount(summary, `^\s*Monthly\s*Fixed\s*Charges`)
	st.Usage = findAmount(summary, `^\s*Usage\b`)
	st.OtherCredits = findAmount(summary, `^\s*Other\s*Credits?\b`)
	st.Discounts = findAmount(summary, `^\s*Discounts?\b`)
	st.ServiceTax = findAmount(summary, `^\s*Service\s*Tax\b`)
	st.CurrentBill = findAmount(summary, `^\s*Current\s*Bill\b`)
	st.TotalOutstanding = findAmount(summary, `^\s*Total\s*Outstanding`)

	if block, ok := extract.Section(all, "Service Summary", "Previous Payment Details", "Payment Details"); ok {
		parseServiceSummary(st, block)
	}
	st.Details = parseLineBlocks(all, st.Summary)

	if block, ok := extract.Section(all, "Payment Details", "Mobile No", "Service Summary"); ok {
		for _, line := range extract.Lines(block) {
			m := rePayment.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			if a := money(m[2]); a != nil {
				st.PaymentHistory = append(st.PaymentHistory, payment{Date: isoDate(m[1]), Amount: *a})
			}
		}
	}
	return st
}

// parseServiceSummary reads one row per MSISDN. A row spans from its number to
// the next number or the Subtotal line, so wrapped subscriber names are joined.
// The row total is the last amount in that window.
func parseServiceSummary(st *statement, block string) {
	lines := extract.Lines(block)

	end := len(lines)
	for i, l := range lines {
		if f := normalize.Fold(l); strings.Contains(f, "subtotal") || strings.HasPrefix(f, "service tax") {
			end = i
			break
		}
	}

	type hit struct {
		at     int
		msisdn string
	}
	var hits []hit
	for i := 0; i < end; i++ {
		if m := reSummaryMSISDN.FindString(lines[i]); m != "" {
			hits = append(hits, hit{at: i, msisdn: m})
		}
	}

	for i, h := range hits {
		stop := end
		if i+1 < len(hits) {
			stop = hits[i+1].at
		}
		window := strings.Join(lines[h.at:stop], " ")
		n, err := normalize.MSISDN(h.msisdn)
		if err != nil {
			continue
		}
		row := summaryLine{
			MSISDN:      n,
			Subscriber:  pickSubscriber(window),
			Description: composeDescription(window),
		}
		if amounts := extract.Amounts(strings.Replace(window, h.msisdn, "", 1)); len(amounts) > 0 {
			row.Total = amounts[len(amounts)-1]
		}
		st.Summary = append(st.Summary, row)
	}

	st.SummarySubtotal = findAmount(block, `^\s*Subtotal`)
	st.CurrentBillAmount = findAmount(block, `^\s*Current\s*Bill\s*Amount`)

	if tax, ok := extract.Section(block, "Service Tax", "Current Bill Amount"); ok {
		for _, line := range extract.Lines(tax)[1:] {
			if m := reTaxRow.FindStringSubmatch(line); m != nil {
				if a := money(m[2]); a != nil {
					st.SummaryTax[normalize.Label(m[1])] = *a
				}
			}
		}
	}
}

// parseLineBlocks reads the per-line pages. Data rows (digisecure, diginet) become
// detail charges; other rows naming a plan, rebate, discount or credit become items.
func parseLineBlocks(text string, summary []summaryLine) []*lineDetail {
	known := make(map[string]summaryLine, len(summary))
	for _, s := range summary {
		known[s.MSISDN] = s
	}

	var (
		out      []*lineDetail
		byNumber = make(map[string]*lineDetail)
	)
	for _, block := range extract.Blocks(text, reLineBlock) {
		lines := extract.Lines(block)
		if len(lines) == 0 {
			continue
		}
		n, ok := extract.FindMSISDN(lines[0])
		if !ok {
			continue
		}

		d, seen := byNumber[n]
		if !seen {
			d = &lineDetail{MSISDN: n}
			if s, ok := known[n]; ok {
				d.Description, d.Subscriber = s.Description, s.Subscriber
			}
			byNumber[n] = d
			out = append(out, d)
		}

		for _, line := range lines[1:] {
			if m := reDataRow.FindStringSubmatch(line); m != nil {
				if a := money(m[3]); a != nil {
					d.Data = append(d.Data, invoice.DetailCharge{
						Category: "Internet/Data",
						Amount:   *a,
						Extra: map[string]any{
							"access_point": strings.ToLower(m[1]),
							"volume_kb":    volumeKB(m[2]),
						},
					})
				}
				continue
			}
			if !reItemised.MatchString(line) {
				continue
			}
			if head, a, ok := extract.TrailingAmount(line); ok {
				d.Items = append(d.Items, invoice.MonthlyItem{Description: normalize.Label(head), Amount: a})
			}
		}

		if d.Description == "" || d.Subscriber == "" {
			window := strings.Join(lines, " ")
			if d.Description == "" {
				d.Description = composeDescription(window)
			}
			if d.Subscriber == "" {
				d.Subscriber = pickSubscriber(window)
			}
		}
	}
	return out
}

// pickSubscriber returns the longest upper-case company name ending in SDN BHD or BERHAD
func pickSubscriber(text string) string {
	best := ""
	for _, c := range reSubscriber.FindAllString(text, -1) {
		if c = normalize.Label(c); len(c) > len(best) {
			best = c
		}
	}
	return best
}

// composeDescription rebuilds "CelcomDigi Business Postpaid 5G 80" whatever order
// the pieces were printed in
func composeDescription(text string) string {
	brand := reBrand.FindString(text)
	plan := rePlan.FindString(text)
	switch {
	case brand != "" && plan != "":
		return normalize.Label(brand + " " + plan)
	case plan != "":
		return normalize.Label("CelcomDigi Business " + plan)
	case brand != "":
		return normalize.Label(brand)
	}
	return ""
}

func volumeKB(s string) int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	n, _ := strconv.Atoi(digits)
	return n
}

var blankRun = regexp.MustCompile(`[ \t]+`)

func collapseBlanks(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(blankRun.ReplaceAllString(l, " "))
	}
	return strings.Join(lines, "\n")
}

func findAmount(text, label string) *invoice.Money {
	if m, ok := extract.FindAmount(text, label); ok {
		return &m
	}
	return nil
}

func money(s string) *invoice.Money {
	m, err := normalize.Money(s)
	if err != nil {
		return nil
	}
	return &m
}

func isoDate(s string) string {
	t, err := normalize.Date(s)
	if err != nil {
		return ""
	}
	return t.Format(invoice.DateLayout)
}
