package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/xraph/credits/account"
)

type balanceView struct {
	*account.Account
	Available   decimal.Decimal `json:"available_balance"`
	Allocatable decimal.Decimal `json:"allocatable_balance"`
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance ACCOUNT_ID...",
		Short: "Show account balances",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer l.Stop()

			views := make([]balanceView, 0, len(args))
			for _, accountID := range args {
				acct, err := l.Account(ctx, accountID)
				if err != nil {
					return fmt.Errorf("%s: %w", accountID, err)
				}
				views = append(views, balanceView{
					Account:     acct,
					Available:   acct.Available(),
					Allocatable: acct.Allocatable(),
				})
			}

			return a.render(cmd.OutOrStdout(), views, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ACCOUNT\tCURRENT\tRESERVED\tAVAILABLE\tPURCHASED\tCONSUMED\tTO_CHILDREN\tFROM_PARENT")
				for _, v := range views {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
						v.AccountID, v.Current, v.Reserved, v.Available,
						v.TotalPurchased, v.TotalConsumed, v.AllocatedToChildren, v.AllocatedFromParent)
				}
				return tw.Flush()
			})
		},
	}
}
