package cmd

import (
	"errors"
	"fmt"
	"time"

	"TradeReview/internal/di"

	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <account-id>",
		Short: "Issue a bearer token for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOps(func(ops *di.Ops) error {
				if ops.Accounts == nil {
					return errors.New("auth.jwt_secret is not configured")
				}
				tok, err := ops.Accounts.Issue(args[0], ttl)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
