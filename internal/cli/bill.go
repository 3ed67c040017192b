package cli

import (
	"context"
	"fmt"

	"housing-backend/internal/app"
	"housing-backend/internal/models"

	"github.com/spf13/cobra"
)

var billCmd = &cobra.Command{
	Use:   "bill",
	Short: "Create invoices for due contract packages",
}

var billAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Bill every customer",
	Long: `Bill every customer that is the billing contact of at least one contract.
Each customer is billed in its own transaction; a failing customer is
reported and the run continues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Billing.BillAll(ctx, actor(cmd))
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %d: %d invoices, %d items, %d skipped, %d errors\n",
				report.Job.ID, len(report.InvoiceIDs), report.Items, report.Skipped, report.Errored)
			for id, msg := range report.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  customer %d: %s\n", id, msg)
			}
			return nil
		})
	},
}

var billContactCmd = &cobra.Command{
	Use:   "contact ID",
	Short: "Bill all contracts of one billing contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			inv, err := a.Billing.BillContact(ctx, id, nil, actor(cmd))
			if err != nil {
				return err
			}
			return printInvoice(cmd, inv)
		})
	},
}

var billContractCmd = &cobra.Command{
	Use:   "contract ID",
	Short: "Bill a single contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			inv, err := a.Billing.BillContract(ctx, id, actor(cmd))
			if err != nil {
				return err
			}
			return printInvoice(cmd, inv)
		})
	},
}

func init() {
	billCmd.AddCommand(billAllCmd, billContactCmd, billContractCmd)
	rootCmd.AddCommand(billCmd)
}

func printInvoice(cmd *cobra.Command, inv *models.Invoice) error {
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return printJSON(out, inv)
	}
	if inv == nil {
		fmt.Fprintln(out, "nothing to bill")
		return nil
	}
	fmt.Fprintf(out, "invoice %s for customer %d: %s EUR\n", inv.Number(), inv.CustomerID, inv.Amount().StringFixed(2))
	for _, item := range inv.Items {
		fmt.Fprintf(out, "  %-40s %3d x %8s\n", item.Title, item.Quantity, item.UnitPrice.StringFixed(2))
	}
	return nil
}
