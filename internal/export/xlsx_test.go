package export

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/store"
)

func exportSample() store.ContractRecord {
	name := "Hamilton Industries"
	total := 50000.0
	first := 20000.0
	firstPct := 40.0
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	due := time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC)

	res := model.NewExtractionResult()
	res.ClientName = &name
	res.TotalValue = &total
	res.StartDate = &start
	res.PaymentFrequency = model.FrequencyMilestone
	res.Milestones = []model.Milestone{
		{Name: "Discovery", DueDate: &due, Amount: &first, PercentOfTotal: &firstPct},
		{Name: "Final delivery"},
	}

	return store.ContractRecord{
		ID:       "c-1",
		FileName: "hamilton-consulting.pdf",
		Status:   "finalized",
		Strategy: "pattern",
		Score:    92,
		Tier:     model.TierAutoProcess,
		Result:   res,
	}
}

func TestWorkbookLayout(t *testing.T) {
	t.Parallel()

	f, err := Workbook([]store.ContractRecord{exportSample()})
	require.NoError(t, err)
	require.Len(t, f.Sheets, 2)
	assert.Equal(t, "Summary", f.Sheets[0].Name)
	assert.Equal(t, "Payment Schedule", f.Sheets[1].Name)

	summary := f.Sheets[0]
	require.Len(t, summary.Rows, 2)
	require.Len(t, summary.Rows[0].Cells, len(summaryHeader))
	assert.Equal(t, "File", summary.Rows[0].Cells[0].String())

	row := summary.Rows[1]
	assert.Equal(t, "hamilton-consulting.pdf", row.Cells[0].String())
	assert.Equal(t, "Hamilton Industries", row.Cells[1].String())
	total, err := row.Cells[2].Float()
	require.NoError(t, err)
	assert.Equal(t, 50000.0, total)
	assert.Equal(t, "USD", row.Cells[3].String())
	assert.Equal(t, "milestone", row.Cells[4].String())
	assert.Equal(t, "2024-01-15", row.Cells[5].String())
	// Ongoing contract: end date column stays blank.
	assert.Equal(t, "", row.Cells[6].String())
	assert.Equal(t, "auto_process", row.Cells[9].String())
}

func TestWorkbookScheduleRows(t *testing.T) {
	t.Parallel()

	f, err := Workbook([]store.ContractRecord{exportSample()})
	require.NoError(t, err)

	schedule := f.Sheets[1]
	require.Len(t, schedule.Rows, 3)

	first := schedule.Rows[1]
	assert.Equal(t, "Discovery", first.Cells[2].String())
	assert.Equal(t, "2024-02-15", first.Cells[4].String())
	amount, err := first.Cells[5].Float()
	require.NoError(t, err)
	assert.Equal(t, 20000.0, amount)

	// Undated milestones keep blank date and amount cells.
	second := schedule.Rows[2]
	assert.Equal(t, "Final delivery", second.Cells[2].String())
	assert.Equal(t, "", second.Cells[4].String())
	assert.Equal(t, "", second.Cells[5].String())
}

func TestWorkbookWithoutResult(t *testing.T) {
	t.Parallel()

	rec := store.ContractRecord{
		ID:       "c-2",
		FileName: "rejected.pdf",
		Status:   "rejected",
		Tier:     model.TierManual,
	}
	f, err := Workbook([]store.ContractRecord{rec})
	require.NoError(t, err)

	summary := f.Sheets[0]
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, "rejected", summary.Rows[1].Cells[10].String())
	// No milestones, so the schedule sheet only has its header.
	assert.Len(t, f.Sheets[1].Rows, 1)
}

func TestWriteSavesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "contracts.xlsx")
	require.NoError(t, Write(path, []store.ContractRecord{exportSample()}))

	loaded, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, loaded.Sheets, 2)
	assert.Equal(t, "Summary", loaded.Sheets[0].Name)
}
