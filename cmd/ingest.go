package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/pipeline"
)

var ingestNoSave bool

var ingestCmd = &cobra.Command{
	Use:   "ingest <contract.pdf>",
	Short: "Process a single contract PDF",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		out, err := env.Orchestrator.Ingest(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		if !ingestNoSave {
			if err := pipeline.SaveOutcome(ctx, env.Store, out); err != nil {
				return err
			}
		}

		zap.L().Info("ingest complete",
			zap.String("id", out.ID),
			zap.String("status", string(out.Status)),
			zap.Int("score", out.Assessment.Score),
			zap.Int("open_questions", out.Resolver().Pending()),
		)

		// Print outcome JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestNoSave, "no-save", false, "print the outcome without persisting it")
	rootCmd.AddCommand(ingestCmd)
}
