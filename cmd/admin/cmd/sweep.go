package cmd

import (
	"TradeReview/internal/di"

	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Fault stale pending reviews and settle orphaned credit holds once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withOps(func(ops *di.Ops) error {
				rep, err := ops.Sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), rep)
			})
		},
	}
}
