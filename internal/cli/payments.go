package cli

import (
	"context"
	"fmt"
	"os"

	"housing-backend/internal/app"
	"housing-backend/internal/services"

	"github.com/spf13/cobra"
)

var paymentsCmd = &cobra.Command{
	Use:   "payments",
	Short: "Bank payment reconciliation",
}

var paymentsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Match a bank statement export against customers",
	Long: `Import an Erste Bank JSON statement. Without --commit the import is a
dry run that only reports how every transaction would be booked.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		commit, _ := cmd.Flags().GetBool("commit")

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			report, err := a.Payments.ImportFile(ctx, f, commit, actor(cmd))
			if err != nil {
				return err
			}
			if wantJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), report)
			}
			printImportReport(cmd, report)
			return nil
		})
	},
}

func init() {
	paymentsImportCmd.Flags().Bool("commit", false, "Store the matched payments")
	paymentsCmd.AddCommand(paymentsImportCmd)
	rootCmd.AddCommand(paymentsCmd)
}

func printImportReport(cmd *cobra.Command, report *services.ImportReport) {
	out := cmd.OutOrStdout()
	sections := []struct {
		title   string
		entries []*services.ImportEntry
	}{
		{"exact", report.Exact},
		{"weak", report.Weak},
		{"bounced", report.Bounced},
		{"unmatched", report.Unmatched},
		{"ignored", report.Ignored},
		{"errors", report.Errored},
	}
	for _, s := range sections {
		if len(s.entries) == 0 {
			continue
		}
		fmt.Fprintf(out, "%s:\n", s.title)
		for _, e := range s.entries {
			line := fmt.Sprintf("  #%d", e.Index)
			if t := e.Transaction; t != nil {
				line += fmt.Sprintf(" %s %10s %s", t.Date.Format("2006-01-02"), t.Amount.StringFixed(2), t.Partner)
			}
			if e.CustomerID != 0 {
				line += fmt.Sprintf(" -> customer %d", e.CustomerID)
			}
			if e.Reason != "" {
				line += " (" + e.Reason + ")"
			}
			fmt.Fprintln(out, line)
		}
	}

	mode := "dry run"
	if report.Committed {
		mode = fmt.Sprintf("committed as job %d", report.Job.ID)
	}
	fmt.Fprintf(out, "%s, %s\n", report.Summary(), mode)
}
