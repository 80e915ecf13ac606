package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pdftext"
)

// Keywords that identify a payment-schedule table. A header must contain at
// least two of these to qualify, which keeps rate cards and signature blocks
// out.
var scheduleKeywords = []string{
	"payment", "invoice", "amount", "due", "date", "milestone",
	"phase", "deliverable", "installment", "schedule", "billing",
}

const minScheduleKeywords = 2

var amountColKeywords = []string{"amount", "payment", "fee", "total"}
var dateColKeywords = []string{"date", "due", "schedule"}
var descColKeywords = []string{"description", "milestone", "phase", "deliverable", "item"}

var totalRowRe = regexp.MustCompile(`(?i)^\s*(?:grand\s+)?(?:total|sum)\b`)

// scheduleTable is a recognized payment-schedule table with resolved columns.
type scheduleTable struct {
	table     pdftext.Table
	amountCol int
	dateCol   int
	descCol   int
}

// findScheduleTables filters acquired tables down to payment schedules.
func findScheduleTables(tables []pdftext.Table) []scheduleTable {
	var out []scheduleTable
	for _, t := range tables {
		if len(t.Rows) == 0 {
			continue
		}
		header := strings.ToLower(strings.Join(t.Header, " "))
		hits := 0
		for _, kw := range scheduleKeywords {
			if strings.Contains(header, kw) {
				hits++
			}
		}
		if hits < minScheduleKeywords {
			continue
		}
		out = append(out, scheduleTable{
			table:     t,
			amountCol: findColumn(t.Header, amountColKeywords),
			dateCol:   findColumn(t.Header, dateColKeywords),
			descCol:   findColumn(t.Header, descColKeywords),
		})
	}
	return out
}

// findColumn returns the index of the first header cell containing any
// keyword, or -1.
func findColumn(header []string, keywords []string) int {
	for i, cell := range header {
		lower := strings.ToLower(cell)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				return i
			}
		}
	}
	return -1
}

// tableExtraction is the milestone and total information recovered from
// payment-schedule tables.
type tableExtraction struct {
	milestones []model.Milestone
	// statedTotal is the amount from an explicit total/sum row, preferred
	// over free-text amounts when present.
	statedTotal *float64
	// rowAmounts is every amount that appeared in a schedule cell; the
	// total-value tie-break excludes these from free-text candidates.
	rowAmounts []float64
}

// extractFromTables turns each schedule row into one milestone, in table and
// row order. An explicit total/sum row becomes the stated total instead of a
// milestone.
func extractFromTables(schedules []scheduleTable) tableExtraction {
	var out tableExtraction
	seq := 0
	for _, st := range schedules {
		for _, row := range st.table.Rows {
			desc := cellAt(row, st.descCol)
			amountText := cellAt(row, st.amountCol)
			dateText := cellAt(row, st.dateCol)

			amt, hasAmt := parseAmount(amountText)
			if hasAmt {
				out.rowAmounts = append(out.rowAmounts, amt)
			}

			if totalRowRe.MatchString(desc) || (desc == "" && totalRowRe.MatchString(amountText)) {
				if hasAmt {
					v := amt
					out.statedTotal = &v
				}
				continue
			}

			if !hasAmt && desc == "" {
				continue
			}

			seq++
			m := model.Milestone{
				Name:        desc,
				Description: desc,
			}
			if m.Name == "" {
				m.Name = fmt.Sprintf("Milestone %d", seq)
			}
			if hasAmt {
				v := amt
				m.Amount = &v
			}
			if d, ok := parseDate(dateText); ok {
				m.DueDate = &d
			}
			out.milestones = append(out.milestones, m)
		}
	}
	return out
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
