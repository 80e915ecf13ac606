package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/pipeline"
)

var (
	batchWorkers int
	batchRate    float64
	batchNoSave  bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir-or-pdf>...",
	Short: "Process a batch of contract PDFs concurrently",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		paths, err := collectPDFs(args)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return eris.New("no PDF files found")
		}

		env, err := initPipeline(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		bc := cfg.Batch
		if batchWorkers > 0 {
			bc.Workers = batchWorkers
		}
		if batchRate > 0 {
			bc.RatePerSecond = batchRate
		}

		report := env.Orchestrator.IngestBatch(ctx, paths, bc)

		if !batchNoSave {
			for _, r := range report.Results {
				if r.Err != nil {
					continue
				}
				if err := pipeline.SaveOutcome(ctx, env.Store, r.Outcome); err != nil {
					zap.L().Error("batch: persist failed",
						zap.String("path", r.Path), zap.Error(err))
				}
			}
		}

		printTally(cmd.OutOrStdout(), report)
		return nil
	},
}

// collectPDFs expands directory arguments into their .pdf entries and passes
// file arguments through. Order is deterministic: argument order, directory
// entries sorted.
func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "stat %s", arg)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, eris.Wrapf(err, "read dir %s", arg)
		}
		var found []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

func printTally(w io.Writer, report *pipeline.BatchReport) {
	t := report.Tally
	fmt.Fprintf(w, "processed %d contracts: %d finalized, %d need clarification, %d rejected, %d failed",
		t.Total, t.Finalized, t.Clarification, t.Rejected, t.Failed)
	if t.Degraded > 0 {
		fmt.Fprintf(w, " (%d degraded to pattern extraction)", t.Degraded)
	}
	fmt.Fprintln(w)
	for _, tc := range t.TierCounts() {
		fmt.Fprintf(w, "  %s: %d\n", tc.Tier, tc.Count)
	}
	for _, r := range report.Results {
		if r.Err != nil {
			fmt.Fprintf(w, "  failed %s: %v\n", r.Path, r.Err)
		}
	}
}

func init() {
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent workers (default from config)")
	batchCmd.Flags().Float64Var(&batchRate, "rate", 0, "max ingestion starts per second (0 = unlimited)")
	batchCmd.Flags().BoolVar(&batchNoSave, "no-save", false, "print the tally without persisting outcomes")
	rootCmd.AddCommand(batchCmd)
}
