package cli

import (
	"context"
	"fmt"

	"housing-backend/internal/app"

	"github.com/spf13/cobra"
)

var invoiceCmd = &cobra.Command{
	Use:   "invoice",
	Short: "Render, send and cancel invoices",
}

var invoicePDFCmd = &cobra.Command{
	Use:   "pdf ID",
	Short: "Render an invoice PDF into the archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			key, err := a.Invoices.GeneratePDF(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		})
	},
}

var invoiceSendCmd = &cobra.Command{
	Use:   "send ID",
	Short: "Mail an invoice to its customer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sent, err := a.Invoices.Send(ctx, id)
			if err != nil {
				return err
			}
			if sent {
				fmt.Fprintf(cmd.OutOrStdout(), "invoice %d sent\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "invoice %d skipped\n", id)
			}
			return nil
		})
	},
}

var invoiceSendUnsentCmd = &cobra.Command{
	Use:   "send-unsent",
	Short: "Mail every invoice that has not been sent yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Invoices.SendUnsent(ctx, actor(cmd))
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d sent, %d skipped, %d failed\n", len(report.Sent), len(report.Skipped), report.Failed)
			for id, msg := range report.Errors {
				fmt.Fprintf(cmd.OutOrStdout(), "  invoice %d: %s\n", id, msg)
			}
			return nil
		})
	},
}

var invoiceCancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel an invoice",
	Long: `Cancel an invoice. An unsent invoice receives a negative line itself;
a sent invoice gets a separate cancellation invoice.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			inv, err := a.Invoices.Cancel(ctx, id, actor(cmd))
			if err != nil {
				return err
			}
			return printInvoice(cmd, inv)
		})
	},
}

func init() {
	invoiceCmd.AddCommand(invoicePDFCmd, invoiceSendCmd, invoiceSendUnsentCmd, invoiceCancelCmd)
	rootCmd.AddCommand(invoiceCmd)
}
