package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/credits/txlog"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		from, to string
		kinds    []string
		limit    int
		desc     bool
	)

	cmd := &cobra.Command{
		Use:   "history ACCOUNT_ID",
		Short: "List transaction log entries of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := txlog.Query{AccountID: args[0], Limit: limit}
			if desc {
				q.Order = txlog.OrderDesc
			}
			var err error
			if q.From, err = parseTime(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if q.To, err = parseTime(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			for _, k := range kinds {
				t, err := txlog.ParseType(k)
				if err != nil {
					return fmt.Errorf("--type: %w", err)
				}
				q.Types = append(q.Types, t)
			}

			ctx := cmd.Context()
			l, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer l.Stop()

			entries, err := l.History(ctx, q)
			if err != nil {
				return err
			}

			return a.render(cmd.OutOrStdout(), entries, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tAMOUNT\tBALANCE\tRESERVED\tREFERENCE")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s -> %s\t%s -> %s\t%s\n",
						e.Sequence, e.CreatedAt.Format(time.RFC3339), e.Type, e.Amount,
						e.BalanceBefore, e.BalanceAfter, e.ReservedBefore, e.ReservedAfter,
						reference(e))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "only entries at or after this RFC 3339 time")
	cmd.Flags().StringVar(&to, "to", "", "only entries before this RFC 3339 time")
	cmd.Flags().StringSliceVar(&kinds, "type", nil, "only entries of these types (PURCHASE, RESERVE, CONFIRM, ...)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries")
	cmd.Flags().BoolVar(&desc, "desc", false, "newest first")
	return cmd
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func reference(e *txlog.Entry) string {
	switch {
	case e.ReservationID != "":
		return "reservation:" + e.ReservationID
	case !e.AllocationID.IsNil():
		return "allocation:" + e.AllocationID.String()
	case !e.PurchaseID.IsNil():
		return "purchase:" + e.PurchaseID.String()
	case e.ReferenceID != "":
		return e.ReferenceType + ":" + e.ReferenceID
	}
	return ""
}
