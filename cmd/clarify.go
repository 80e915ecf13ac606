package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contract-intel/internal/store"
)

var clarifyCmd = &cobra.Command{
	Use:   "clarify",
	Short: "Review and answer open extraction questions",
}

var clarifyListCmd = &cobra.Command{
	Use:   "list <contract-id>",
	Short: "List open questions for a contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := loadReview(ctx, st, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "contract %s (%s), state %s\n",
			sess.Contract.ID, sess.Contract.FileName, sess.Resolver.State())

		for _, q := range sess.Resolver.Questions() {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", q.FieldPath, q.Prompt)
			if q.Candidate != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "    candidate: %v\n", q.Candidate)
			}
			if q.Context != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "    context: %s\n", q.Context)
			}
		}
		return nil
	},
}

var clarifyAnswerCmd = &cobra.Command{
	Use:   "answer <contract-id> <field-path> <value>",
	Short: "Answer one open question",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		contractID, fieldPath, value := args[0], args[1], args[2]

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := loadReview(ctx, st, contractID)
		if err != nil {
			return err
		}

		coerced, err := sess.answer(ctx, st, fieldPath, value)
		if err != nil {
			return eris.Wrapf(err, "answer %s", fieldPath)
		}

		zap.L().Info("clarification answered",
			zap.String("contract", contractID),
			zap.String("field", fieldPath),
			zap.Any("value", coerced),
			zap.Int("pending", sess.Resolver.Pending()),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %s = %v, %d question(s) remaining\n",
			fieldPath, coerced, sess.Resolver.Pending())
		return nil
	},
}

var clarifyApplyCmd = &cobra.Command{
	Use:   "apply <contract-id>",
	Short: "Merge resolved answers into the stored extraction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		sess, err := loadReview(ctx, st, args[0])
		if err != nil {
			return err
		}

		merged, pending, err := sess.apply(ctx, st)
		if err != nil {
			return eris.Wrap(err, "apply clarifications")
		}

		zap.L().Info("clarifications applied",
			zap.String("contract", args[0]),
			zap.Int("pending", pending),
		)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(merged)
	},
}

// openStore opens the configured store for read/review commands.
func openStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("clarify"); err != nil {
		return nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func init() {
	clarifyCmd.AddCommand(clarifyListCmd, clarifyAnswerCmd, clarifyApplyCmd)
	rootCmd.AddCommand(clarifyCmd)
}
