package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/pipeline"
)

func TestCollectPDFs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	single := filepath.Join(dir, "notes.txt")

	paths, err := collectPDFs([]string{dir, single})
	require.NoError(t, err)
	// Directory entries sorted, explicit files passed through as given.
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.pdf"),
		single,
	}, paths)
}

func TestCollectPDFsMissing(t *testing.T) {
	_, err := collectPDFs([]string{"/nonexistent/path"})
	assert.Error(t, err)
}

func TestPrintTally(t *testing.T) {
	report := &pipeline.BatchReport{
		Results: []pipeline.BatchResult{
			{Path: "a.pdf", Outcome: &pipeline.Outcome{Status: pipeline.StatusFinalized}},
			{Path: "bad.pdf", Err: os.ErrNotExist},
		},
		Tally: pipeline.Tally{
			Total:     4,
			Finalized: 2,
			Rejected:  1,
			Failed:    1,
			Degraded:  1,
			ByTier: map[model.ConfidenceTier]int{
				model.TierAutoProcess: 2,
			},
		},
	}

	var buf bytes.Buffer
	printTally(&buf, report)

	out := buf.String()
	assert.Contains(t, out, "processed 4 contracts")
	assert.Contains(t, out, "2 finalized")
	assert.Contains(t, out, "1 degraded")
	assert.Contains(t, out, "auto_process: 2")
	assert.Contains(t, out, "failed bad.pdf")
}
