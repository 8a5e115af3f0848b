package celcom

import (
	"regexp"

	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
	"github.com/telcoingest/invoice-pipeline/internal/normalize"
)

const (
	amt    = extract.AmountPattern
	day    = `\d{1,2}/\d{1,2}/\d{4}`
	msisdn = `(?:60[ \-]?|0)1\d(?:[ \-]?\d){7,8}`
)

var (
	reStatementNo  = regexp.MustCompile(`(?i)Bill\s+Statement\s+Number\s*:\s*(\d+)`)
	reAccountNo    = regexp.MustCompile(`(?i)Account\s+Number\s*:\s*(\d+)`)
	reBillDate     = regexp.MustCompile(`(?i)Bill\s+Date\s*:\s*(` + day + `)`)
	reBillPeriod   = regexp.MustCompile(`(?i)Billing\s+Period\s*:\s*(` + day + `\s*(?:[–\-]|to)\s*` + day + `)`)
	reMonth        = regexp.MustCompile(`(?i)Bill\s+Statement\s+([A-Za-z]+\s+\d{4})`)
	reCustomerName = regexp.MustCompile(`(?im)^\s*(?:Customer\s+)?Name\s*:\s*([^\n]+)`)
	rePlanName     = regexp.MustCompile(`(MEGA[^\n]{0,50})`)
	reCreditLimit  = regexp.MustCompile(`(?i)Credit\s+Limit\s*:\s*(` + amt + `)`)
	reDeposit      = regexp.MustCompile(`(?i)Deposit\s*:\s*(` + amt + `)`)

	reMonthlyRow  = regexp.MustCompile(`^\s*(` + msisdn + `)\s+(.+?)\s+(` + day + `)\s*[–\-]\s*(` + day + `)\s+(` + amt + `)\s*$`)
	reDiscountRow = regexp.MustCompile(`^\s*(` + msisdn + `)\s+(.+?)\s+(` + amt + `)\s*$`)
	rePaymentRow  = regexp.MustCompile(`^\s*(` + day + `)\s+(.+?)\s+(` + amt + `)\s*$`)
)

// section anchors inside the detailed charges pages
var (
	anchorsAfterPayments   = []string{"Registered Mobile Numbers", "Monthly Amount", "Discounts & Rebates"}
	anchorsAfterRegistered = []string{"Monthly Amount", "Discounts & Rebates", "Call Details", "Value Added Services"}
	anchorsAfterMonthly    = []string{"Discounts & Rebates", "Call Details", "Value Added Services"}
	anchorsAfterDiscounts  = []string{"Call Details", "Value Added Services", "Monthly Amount"}
)

// registeredRow is one line of the Registered Mobile Numbers table
type registeredRow struct {
	MSISDN      string
	CreditLimit invoice.Money
	OneTime     invoice.Money
	Monthly     invoice.Money
	Usage       invoice.Money
	Discounts   invoice.Money
	Total       invoice.Money
}

type monthlyRow struct {
	MSISDN      string
	Description string
	From, To    string
	Amount      invoice.Money
}

type labeledRow struct {
	Key    string
	Label  string
	Amount invoice.Money
}

type statement struct {
	StatementNumber string
	AccountNumber   string
	BillDate        string
	PeriodFrom      string
	PeriodTo        string
	Month           string
	CustomerName    string
	PlanName        string
	CreditLimit     *invoice.Money
	Deposit         *invoice.Money

	PreviousBalance     *invoice.Money
	TotalPayments       *invoice.Money
	OverdueCharges      *invoice.Money
	MonthlyCharges      *invoice.Money
	ServiceTax          *invoice.Money
	RoundingAdjustment  *invoice.Money
	TotalCurrentCharges *invoice.Money
	AmountDue           *invoice.Money

	Payments   []labeledRow
	Registered []registeredRow
	Monthly    []monthlyRow
	Discounts  []labeledRow
}

func parse(doc *extract.Document) *statement {
	st := &statement{}
	first, all := doc.Page(0), doc.Text()

	st.StatementNumber, _ = extract.FindField(first, reStatementNo)
	st.AccountNumber, _ = extract.FindField(first, reAccountNo)
	st.BillDate, _ = extract.FindField(first, reBillDate)
	st.Month, _ = extract.FindField(first, reMonth)
	st.CustomerName, _ = extract.FindField(all, reCustomerName)
	st.PlanName, _ = extract.FindField(first, rePlanName)
	if period, ok := extract.FindField(first, reBillPeriod); ok {
		if from, to, err := normalize.Period(period); err == nil {
			st.PeriodFrom, st.PeriodTo = from.Format(invoice.DateLayout), to.Format(invoice.DateLayout)
		}
	}
	if v, ok := extract.FindField(first, reCreditLimit); ok {
		st.CreditLimit = money(v)
	}
	if v, ok := extract.FindField(first, reDeposit); ok {
		st.Deposit = money(v)
	}

	summary, ok := extract.Section(all, "Account Summary", "Detailed Charges")
	if !ok {
		summary = all
	}
	st.PreviousBalance = findAmount(summary, `Previous\s+Balance`)
	st.TotalPayments = findAmount(summary, `Total\s+Payments`)
	st.OverdueCharges = findAmount(summary, `Overdue\s+Charges`)
	st.MonthlyCharges = findAmount(summary, `Monthly\s+Charges\s*\(RM\)`)
	st.ServiceTax = findAmount(summary, `Service\s*Tax\s*6%`)
	st.RoundingAdjustment = findAmount(summary, `Rounding\s*Adjustment`)
	st.TotalCurrentCharges = findAmount(summary, `Total\s+Current\s+Charges`)
	st.AmountDue = findAmount(summary, `Amount\s+Due`)

	if block, ok := extract.Section(all, "Previous Payment Details", anchorsAfterPayments...); ok {
		for _, line := range extract.Lines(block) {
			if m := rePaymentRow.FindStringSubmatch(line); m != nil {
				if a := money(m[3]); a != nil {
					st.Payments = append(st.Payments, labeledRow{Key: m[1], Label: normalize.Label(m[2]), Amount: *a})
				}
			}
		}
	}

	if block, ok := extract.Section(all, "Registered Mobile Numbers", anchorsAfterRegistered...); ok {
		st.Registered = registeredRows(extract.Lines(block))
	}

	if block, ok := extract.Section(all, "Monthly Amount", anchorsAfterMonthly...); ok {
		for _, line := range extract.Lines(block) {
			m := reMonthlyRow.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			n, err := normalize.MSISDN(m[1])
			a := money(m[5])
			if err != nil || a == nil {
				continue
			}
			st.Monthly = append(st.Monthly, monthlyRow{
				MSISDN:      n,
				Description: normalize.Label(m[2]),
				From:        isoDate(m[3]),
				To:          isoDate(m[4]),
				Amount:      *a,
			})
		}
	}

	if block, ok := extract.Section(all, "Discounts & Rebates", anchorsAfterDiscounts...); ok {
		for _, line := range extract.Lines(block) {
			m := reDiscountRow.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			n, err := normalize.MSISDN(m[1])
			a := money(m[3])
			if err != nil || a == nil {
				continue
			}
			st.Discounts = append(st.Discounts, labeledRow{Key: n, Label: normalize.Label(m[2]), Amount: *a})
		}
	}

	return st
}

// registeredRows reads rows of mobile number plus six amounts:
// credit limit, one-time, monthly, usage, discounts, total
func registeredRows(lines []string) []registeredRow {
	var out []registeredRow
	for _, cells := range extract.SplitTable(lines, 7) {
		n, err := normalize.MSISDN(cells[0])
		if err != nil {
			continue
		}
		var amounts [6]invoice.Money
		valid := true
		for i := range amounts {
			a := money(cells[i+1])
			if a == nil {
				valid = false
				break
			}
			amounts[i] = *a
		}
		if !valid {
			continue
		}
		out = append(out, registeredRow{
			MSISDN:      n,
			CreditLimit: amounts[0],
			OneTime:     amounts[1],
			Monthly:     amounts[2],
			Usage:       amounts[3],
			Discounts:   amounts[4],
			Total:       amounts[5],
		})
	}
	return out
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
