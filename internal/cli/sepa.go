package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"housing-backend/internal/app"
	"housing-backend/internal/sepa"

	"github.com/spf13/cobra"
)

var sepaCmd = &cobra.Command{
	Use:   "sepa",
	Short: "SEPA direct debit batches",
}

var sepaCandidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List sent, unexported direct debit invoices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			invoices, err := a.Sepa.ListCandidates(ctx)
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), invoices)
			}
			for _, inv := range invoices {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %s  customer %-6d %10s\n",
					inv.ID, inv.Number(), inv.CustomerID, inv.Amount().StringFixed(2))
			}
			return nil
		})
	},
}

var sepaExportCmd = &cobra.Command{
	Use:   "export ID...",
	Short: "Export invoices into a pain.008 file",
	Example: `  # write the batch to a file
  housing sepa export 2400012 2400013 --out debit.xml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int, 0, len(args))
		for _, arg := range args {
			id, err := argID(arg)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		out, _ := cmd.Flags().GetString("out")

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			result, err := a.Sepa.ExportInvoices(ctx, ids, actor(cmd))
			if result != nil {
				for _, rej := range result.Rejected {
					fmt.Fprintf(cmd.ErrOrStderr(), "rejected %s\n", rej)
				}
			}
			if errors.Is(err, sepa.ErrEmptyBatch) {
				return fmt.Errorf("nothing exported: %w", err)
			}
			if err != nil {
				return err
			}

			if out != "" {
				if err := os.WriteFile(out, result.XML, 0o644); err != nil {
					return err
				}
			} else {
				cmd.OutOrStdout().Write(result.XML)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "batch %s: %d invoices exported, archived as %s\n",
				result.MsgID, len(result.Exported), result.ArchiveKey)
			return nil
		})
	},
}

func init() {
	sepaExportCmd.Flags().String("out", "", "Write the XML to this file instead of stdout")
	sepaCmd.AddCommand(sepaCandidatesCmd, sepaExportCmd)
	rootCmd.AddCommand(sepaCmd)
}
