package maxis

import (
	"regexp"
	"strings"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
	"github.com/telcoingest/invoice-pipeline/internal/normalize"
)

const (
	amt    = extract.AmountPattern
	msisdn = `(?:60[ \-]?|0)1\d(?:[ \-]?\d){7,8}`
)

var (
	reAccountNo     = regexp.MustCompile(`(?i)(?:Account\s*No\.?|No\.\s*Akaun)[^\n\d]*(\d{8,12})`)
	reBillReference = regexp.MustCompile(`(?i)(?:Bill\s*Reference|No\.\s*Rujukan)[^\n\d]*(\d{6,15})`)
	reStatementDate = regexp.MustCompile(`(?i)(?:Statement\s*Date|Tarikh\s*Penyata)[^\n\d]*(\d{1,2}/\d{1,2}/\d{4})`)
	reBillingPeriod = regexp.MustCompile(`(?i)(?:Billing\s*Period|Tempoh\s*Bil)[^\n\d]*(\d{1,2}/\d{1,2}/\d{4}[^\n]*?\d{1,2}/\d{1,2}/\d{4})`)
	rePayLastDate   = regexp.MustCompile(`(?i)(?:Payment\s*Last\s*Date|Tarikh\s*Akhir\s*Bayaran)[^\n\d]*(\d{1,2}/\d{1,2}/\d{4})`)

	reCurrMobile = regexp.MustCompile(`(?im)^\s*MOBILE\s+(` + amt + `)\s*$`)
	reCurrLine   = regexp.MustCompile(`(?im)^\s*(` + msisdn + `)\s*[-–]\s*(Business\s+Postpaid\s+\d+[^\n]*?)\s+(` + amt + `)\s*$`)
	reSvcTaxRate = regexp.MustCompile(`(?i)Service\s*Tax\s*\((\d+(?:\.\d+)?)%`)

	reSectionStart = regexp.MustCompile(`(?i)^\s*(?:Service\s*No\.?\s*:?\s*)?(` + msisdn + `)\s+(Business\s+Postpaid\s+\d+[A-Za-z ]*?)\s*$`)
	reAccountName  = regexp.MustCompile(`(?i)Account\s*Name\s*/\s*Nama\s*Akaun\s*:\s*([^\n]+)`)
	reSharedWith   = regexp.MustCompile(`(?i)Share\s*Product\s*Service\s*No\.?\s*:\s*([0-9 ]+)`)
	reItemRow      = regexp.MustCompile(`(?i)^\s*Y\s+(.+?)\s+(` + amt + `)\s*$`)
	reCallRow      = regexp.MustCompile(`^\s*(\d{2}/\d{2}/\d{4})\s+(\d{2}:\d{2}:\d{2})\s+(\S+)\s+(\d{2}):(\d{2}):(\d{2})\s+(?:([A-Z])\s+)?(` + amt + `)\s*$`)
	reLineTotal    = regexp.MustCompile(`(?i)^\s*Total\s+Line\s+Charges[^\n]*?(` + amt + `)\s*$`)
)

// currentLine is one row of the page 2 current charges summary
type currentLine struct {
	MSISDN string
	Plan   string
	Amount invoice.Money
}

// numberSection is the per-number detail from page 3 onwards
type numberSection struct {
	MSISDN      string
	Plan        string
	AccountName string
	SharedWith  string
	Items       []invoice.MonthlyItem
	Calls       []invoice.DetailCharge
	LineTotal   *invoice.Money
}

type statement struct {
	AccountNumber   string
	BillReference   string
	StatementDate   string
	PeriodFrom      string
	PeriodTo        string
	PaymentLastDate string

	PreviousBalance *invoice.Money
	PaymentReceived *invoice.Money
	OverdueAmount   *invoice.Money
	Adjustment      *invoice.Money

	MobileTotal  *invoice.Money
	Lines        []currentLine
	TotalExclTax *invoice.Money
	ServiceTax   *invoice.Money
	TaxRate      string
	TotalCurrent *invoice.Money

	Sections []*numberSection
}

// parse reads the bill statement (pages 1 and 2) and the per-number pages
func parse(doc *extract.Document) *statement {
	st := &statement{}
	p1, p2 := doc.Page(0), doc.Page(1)
	front := p1 + "\n" + p2

	st.AccountNumber, _ = extract.FindField(front, reAccountNo)
	st.BillReference, _ = extract.FindField(front, reBillReference)
	st.StatementDate, _ = extract.FindField(front, reStatementDate)
	st.PaymentLastDate, _ = extract.FindField(front, rePayLastDate)
	if period, ok := extract.FindField(front, reBillingPeriod); ok {
		if from, to, err := normalize.Period(period); err == nil {
			st.PeriodFrom, st.PeriodTo = from.Format(invoice.DateLayout), to.Format(invoice.DateLayout)
		}
	}

	st.PreviousBalance = findAmount(p1, `^\s*(?:Previous\s+Balance|Baki\s+Terdahulu)`)
	st.PaymentReceived = findAmount(p1, `^\s*(?:Payment\s+Received|Bayaran\s+Diterima)`)
	st.OverdueAmount = findAmount(p1, `^\s*(?:Overdue\s+Amount|Caj\s+Tertunggak)`)
	st.Adjustment = findAmount(p1, `^\s*(?:Adjustment|Pelarasan)\b`)

	if m := reCurrMobile.FindStringSubmatch(p2); m != nil {
		st.MobileTotal = money(m[1])
	}
	for _, m := range reCurrLine.FindAllStringSubmatch(p2, -1) {
		n, err := normalize.MSISDN(m[1])
		if err != nil {
			continue
		}
		if a := money(m[3]); a != nil {
			st.Lines = append(st.Lines, currentLine{MSISDN: n, Plan: normalize.Label(m[2]), Amount: *a})
		}
	}
	st.TotalExclTax = findAmount(p2, `Total\s+Charges\s*\(excluding\s*Svc\.?\s*Tax\)`)
	st.ServiceTax = findAmount(p2, `Service\s*Tax\s*\(\d+(?:\.\d+)?%[^)]*\)`)
	if m := reSvcTaxRate.FindStringSubmatch(p2); m != nil {
		st.TaxRate = m[1]
	}
	st.TotalCurrent = findAmount(p2, `TOTAL\s+CURRENT\s+CHARGES`)

	st.Sections = parseSections(doc.From(2))
	return st
}

func parseSections(text string) []*numberSection {
	var (
		sections []*numberSection
		byNumber = make(map[string]*numberSection)
		cur      *numberSection
	)

	for _, line := range strings.Split(text, "\n") {
		if m := reSectionStart.FindStringSubmatch(line); m != nil {
			n, err := normalize.MSISDN(m[1])
			if err == nil {
				if existing, ok := byNumber[n]; ok {
					cur = existing
				} else {
					cur = &numberSection{MSISDN: n, Plan: normalize.Label(m[2])}
					byNumber[n] = cur
					sections = append(sections, cur)
				}
				continue
			}
		}
		if cur == nil {
			continue
		}

		if m := reAccountName.FindStringSubmatch(line); m != nil {
			cur.AccountName = normalize.Label(m[1])
			continue
		}
		if m := reSharedWith.FindStringSubmatch(line); m != nil {
			cur.SharedWith = strings.ReplaceAll(m[1], " ", "")
			continue
		}
		if m := reItemRow.FindStringSubmatch(line); m != nil {
			if a := money(m[2]); a != nil {
				cur.Items = append(cur.Items, invoice.MonthlyItem{Description: normalize.Label(m[1]), Amount: *a})
			}
			continue
		}
		if m := reCallRow.FindStringSubmatch(line); m != nil {
			if call, ok := callCharge(m); ok {
				cur.Calls = append(cur.Calls, call)
			}
			continue
		}
		if m := reLineTotal.FindStringSubmatch(line); m != nil {
			cur.LineTotal = money(m[1])
		}
	}
	return sections
}

func callCharge(m []string) (invoice.DetailCharge, bool) {
	a := money(m[8])
	if a == nil {
		return invoice.DetailCharge{}, false
	}
	seconds := atoi(m[4])*3600 + atoi(m[5])*60 + atoi(m[6])
	extra := map[string]any{
		"date":          m[1],
		"time":          m[2],
		"number_called": m[3],
		"duration":      m[4] + ":" + m[5] + ":" + m[6],
		"duration_s":    seconds,
	}
	if m[7] != "" {
		extra["period"] = m[7]
	}
	return invoice.DetailCharge{Category: "Usage", Amount: *a, Extra: extra}, true
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

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
