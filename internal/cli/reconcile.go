package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/txlog"
)

// ErrDiscrepancies is returned when any reconciled account disagrees with
// its log, so scripts can alert on the exit status.
var ErrDiscrepancies = errors.New("reconcile: discrepancies found")

func newReconcileCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reconcile [ACCOUNT_ID...]",
		Short: "Replay transaction logs and compare them with account records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return errors.New("name at least one account or pass --all")
			}

			ctx := cmd.Context()
			l, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer l.Stop()

			accountIDs := args
			if all {
				accts, err := l.ListAccounts(ctx, account.ListOpts{})
				if err != nil {
					return err
				}
				accountIDs = make([]string, 0, len(accts))
				for _, acct := range accts {
					accountIDs = append(accountIDs, acct.AccountID)
				}
			}

			results := make([]*txlog.Replay, 0, len(accountIDs))
			broken := 0
			for _, accountID := range accountIDs {
				r, err := l.Reconcile(ctx, accountID)
				if err != nil {
					return fmt.Errorf("%s: %w", accountID, err)
				}
				if !r.Consistent() {
					broken++
				}
				results = append(results, r)
			}

			err = a.render(cmd.OutOrStdout(), results, func(w io.Writer) error {
				for _, r := range results {
					if r.Consistent() {
						fmt.Fprintf(w, "%s\tok\t%d entries\n", r.AccountID, r.Entries)
						continue
					}
					fmt.Fprintf(w, "%s\tDISCREPANCY\t%d entries\n", r.AccountID, r.Entries)
					for _, d := range r.Discrepancies {
						fmt.Fprintf(w, "  %s\n", d)
					}
				}
				return nil
			})
			if err != nil {
				return err
			}
			if broken > 0 {
				return fmt.Errorf("%w in %d of %d accounts", ErrDiscrepancies, broken, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "reconcile every account in the store")
	return cmd
}
