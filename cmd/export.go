package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/contract-intel/internal/export"
	"github.com/sells-group/contract-intel/internal/model"
	"github.com/sells-group/contract-intel/internal/store"
)

var (
	exportOut    string
	exportStatus string
	exportTier   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored contracts to an Excel workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		recs, err := st.ListContracts(ctx, store.ContractFilter{
			Status: exportStatus,
			Tier:   model.ConfidenceTier(exportTier),
		})
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return eris.New("no contracts match the filter")
		}

		if err := export.Write(exportOut, recs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d contract(s) to %s\n", len(recs), exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "contracts.xlsx", "output workbook path")
	exportCmd.Flags().StringVar(&exportStatus, "status", "", "filter by status (finalized, needs_clarification, rejected)")
	exportCmd.Flags().StringVar(&exportTier, "tier", "", "filter by confidence tier (auto_process, review, manual)")
	rootCmd.AddCommand(exportCmd)
}
