package cmd

import (
	"errors"
	"fmt"
	"time"

	"TradeReview/internal/di"
	"TradeReview/internal/domain/models"
	"TradeReview/pkg/util"

	"github.com/spf13/cobra"
)

func newCreditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and provision account credits",
	}
	cmd.AddCommand(newCreditsGrantCmd(), newCreditsShowCmd())
	return cmd
}

func newCreditsGrantCmd() *cobra.Command {
	var (
		regular int64
		bonus   int64
		expiry  string
	)
	cmd := &cobra.Command{
		Use:   "grant <account-id>",
		Short: "Add regular and/or bonus credits to an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if regular <= 0 && bonus <= 0 {
				return errors.New("--regular or --bonus must be positive")
			}
			var until time.Time
			if bonus > 0 {
				t, ok := util.ParseExpiry(expiry, time.Now())
				if !ok {
					return fmt.Errorf("invalid --expiry %q", expiry)
				}
				until = t
			}
			return withOps(func(ops *di.Ops) error {
				ctx := cmd.Context()
				var (
					bal *models.CreditBalance
					err error
				)
				if regular > 0 {
					if bal, err = ops.Ledger.GrantRegular(ctx, args[0], regular); err != nil {
						return err
					}
				}
				if bonus > 0 {
					if bal, err = ops.Ledger.GrantBonus(ctx, args[0], bonus, until); err != nil {
						return err
					}
				}
				return printJSON(cmd.OutOrStdout(), bal)
			})
		},
	}
	cmd.Flags().Int64Var(&regular, "regular", 0, "regular credits to add")
	cmd.Flags().Int64Var(&bonus, "bonus", 0, "bonus credits to add")
	cmd.Flags().StringVar(&expiry, "expiry", "+24h", "bonus expiry: RFC3339, unix seconds or +duration")
	return cmd
}

func newCreditsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <account-id>",
		Short: "Print an account's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOps(func(ops *di.Ops) error {
				bal, err := ops.Ledger.Balance(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), bal)
			})
		},
	}
}
