// Package export renders finalized contract extractions into an Excel
// workbook for the finance team: a per-contract summary sheet and a flat
// payment-schedule sheet.
package export

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/store"
)

const dateFormat = "2006-01-02"

var summaryHeader = []string{
	"File", "Client", "Total Value", "Currency", "Payment Frequency",
	"Start Date", "End Date", "Milestones", "Score", "Tier", "Status",
}

var scheduleHeader = []string{
	"File", "Client", "Milestone", "Description", "Due Date", "Amount", "% of Total",
}

// Workbook builds the export workbook in memory.
func Workbook(recs []store.ContractRecord) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	schedule, err := f.AddSheet("Payment Schedule")
	if err != nil {
		return nil, eris.Wrap(err, "export: add schedule sheet")
	}

	addHeaderRow(summary, summaryHeader)
	addHeaderRow(schedule, scheduleHeader)

	for i := range recs {
		rec := &recs[i]
		writeSummaryRow(summary, rec)
		writeScheduleRows(schedule, rec)
	}
	return f, nil
}

// Write renders the workbook for the given contracts to an .xlsx file.
func Write(path string, recs []store.ContractRecord) error {
	f, err := Workbook(recs)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	zap.L().Info("export: workbook written",
		zap.String("path", path),
		zap.Int("contracts", len(recs)),
	)
	return nil
}

func addHeaderRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, c := range cells {
		cell := row.AddCell()
		cell.SetString(c)
		style := xlsx.NewStyle()
		style.Font.Bold = true
		cell.SetStyle(style)
	}
}

func writeSummaryRow(sheet *xlsx.Sheet, rec *store.ContractRecord) {
	row := sheet.AddRow()
	row.AddCell().SetString(rec.FileName)

	res := rec.Result
	if res == nil {
		row.AddCell().SetString("")
		row.AddCell().SetString("")
		row.AddCell().SetString("")
		row.AddCell().SetString("")
		row.AddCell().SetString("")
		row.AddCell().SetString("")
		row.AddCell().SetInt(0)
		row.AddCell().SetInt(rec.Score)
		row.AddCell().SetString(string(rec.Tier))
		row.AddCell().SetString(rec.Status)
		return
	}

	row.AddCell().SetString(strOrEmpty(res.ClientName))
	if res.TotalValue != nil {
		row.AddCell().SetFloat(*res.TotalValue)
	} else {
		row.AddCell().SetString("")
	}
	row.AddCell().SetString(res.Currency)
	row.AddCell().SetString(string(res.PaymentFrequency))
	row.AddCell().SetString(dateOrEmpty(res.StartDate))
	// An empty end date means the contract is ongoing.
	row.AddCell().SetString(dateOrEmpty(res.EndDate))
	row.AddCell().SetInt(len(res.Milestones))
	row.AddCell().SetInt(rec.Score)
	row.AddCell().SetString(string(rec.Tier))
	row.AddCell().SetString(rec.Status)
}

func writeScheduleRows(sheet *xlsx.Sheet, rec *store.ContractRecord) {
	if rec.Result == nil {
		return
	}
	for _, m := range rec.Result.Milestones {
		row := sheet.AddRow()
		row.AddCell().SetString(rec.FileName)
		row.AddCell().SetString(strOrEmpty(rec.Result.ClientName))
		row.AddCell().SetString(m.Name)
		row.AddCell().SetString(m.Description)
		row.AddCell().SetString(dateOrEmpty(m.DueDate))
		if m.Amount != nil {
			row.AddCell().SetFloat(*m.Amount)
		} else {
			row.AddCell().SetString("")
		}
		if m.PercentOfTotal != nil {
			row.AddCell().SetFloatWithFormat(*m.PercentOfTotal, "0.0")
		} else {
			row.AddCell().SetString("")
		}
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateFormat)
}
