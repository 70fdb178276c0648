package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/types"
)

func newPackagesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "Manage the credit package catalog",
	}
	cmd.AddCommand(newPackagesListCmd(a))
	cmd.AddCommand(newPackagesAddCmd(a))
	cmd.AddCommand(newPackagesSetActiveCmd(a, "enable", true))
	cmd.AddCommand(newPackagesSetActiveCmd(a, "disable", false))
	return cmd
}

func newPackagesListCmd(a *app) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog packages in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			l, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer l.Stop()

			pkgs, err := l.ListPackages(ctx, activeOnly)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), pkgs, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tNAME\tCREDITS\tPRICE\tACTIVE\tORDER")
				for _, p := range pkgs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%d\n",
						p.Code, p.Name, p.Credits, p.Price, p.Active, p.DisplayOrder)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "only purchasable packages")
	return cmd
}

func newPackagesAddCmd(a *app) *cobra.Command {
	var (
		name, description   string
		amount, price, curr string
		order               int
		inactive            bool
	)

	cmd := &cobra.Command{
		Use:   "add CODE",
		Short: "Add a package to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grant, err := types.ParseCredits(amount)
			if err != nil {
				return fmt.Errorf("--credits: %w", err)
			}
			money, err := types.ParseMoney(price, curr)
			if err != nil {
				return fmt.Errorf("--price: %w", err)
			}
			pkg := &purchase.Package{
				Code:         args[0],
				Name:         name,
				Description:  description,
				Credits:      grant,
				Price:        money,
				Active:       !inactive,
				DisplayOrder: order,
			}
			if pkg.Name == "" {
				pkg.Name = pkg.Code
			}

			ctx := cmd.Context()
			l, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer l.Stop()

			if err := l.CreatePackage(ctx, pkg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added package %s (%s)\n", pkg.Code, pkg.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to the code)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&amount, "credits", "", "credits granted on purchase")
	cmd.Flags().StringVar(&price, "price", "0", "price in major units")
	cmd.Flags().StringVar(&curr, "currency", "USD", "price currency")
	cmd.Flags().IntVar(&order, "order", 0, "display order")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "create the package disabled")
	_ = cmd.MarkFlagRequired("credits")
	return cmd
}

func newPackagesSetActiveCmd(a *app, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " CODE",
		Short: fmt.Sprintf("Mark a package %sd for new purchases", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			l, err := a.ledger(ctx)
			if err != nil {
				return err
			}
			defer l.Stop()

			pkg, err := l.GetPackage(ctx, args[0])
			if err != nil {
				return err
			}
			pkg.Active = active
			if err := l.UpdatePackage(ctx, pkg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sd package %s\n", use, pkg.Code)
			return nil
		},
	}
}
