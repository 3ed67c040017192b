package cli

import (
	"context"
	"fmt"

	"housing-backend/internal/app"
	"housing-backend/internal/services"
	"housing-backend/internal/timeutil"

	"github.com/spf13/cobra"
)

var customerCmd = &cobra.Command{
	Use:   "customer",
	Short: "Customer balance and SEPA mandate",
}

var customerBalanceCmd = &cobra.Command{
	Use:   "balance ID",
	Short: "Show payments minus invoiced amounts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			balance, err := a.Customers.Balance(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "customer %d: %s EUR\n", balance.CustomerID, balance.Balance.StringFixed(2))
			return nil
		})
	},
}

var customerMandateCmd = &cobra.Command{
	Use:   "mandate ID",
	Short: "Set or clear the SEPA mandate of a customer",
	Example: `  housing customer mandate 42 --iban AT611904300234573201 --mandate-id K42-1 --date 2024-01-03
  housing customer mandate 42 --clear`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := argID(args[0])
		if err != nil {
			return err
		}
		clearMandate, _ := cmd.Flags().GetBool("clear")
		var req services.MandateRequest
		if !clearMandate {
			req.IBAN, _ = cmd.Flags().GetString("iban")
			req.MandateID, _ = cmd.Flags().GetString("mandate-id")
			if date, _ := cmd.Flags().GetString("date"); date != "" {
				d, err := timeutil.ParseDate(date)
				if err != nil {
					return fmt.Errorf("invalid --date, use YYYY-MM-DD: %w", err)
				}
				req.MandateDate = &d
			}
			if req.IBAN == "" {
				return fmt.Errorf("--iban is required unless --clear is given")
			}
		}

		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			customer, err := a.Customers.UpdateMandate(ctx, id, req)
			if err != nil {
				return err
			}
			if !customer.HasSepaMandate() {
				fmt.Fprintf(cmd.OutOrStdout(), "mandate of %s cleared\n", customer)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mandate %s for %s stored, next collection FRST=%t\n",
				*customer.SepaMandateID, customer, customer.SepaMandateFirst)
			return nil
		})
	},
}

func init() {
	customerMandateCmd.Flags().String("iban", "", "Debtor IBAN")
	customerMandateCmd.Flags().String("mandate-id", "", "Mandate reference")
	customerMandateCmd.Flags().String("date", "", "Date of signature (YYYY-MM-DD)")
	customerMandateCmd.Flags().Bool("clear", false, "Remove the mandate")
	customerCmd.AddCommand(customerBalanceCmd, customerMandateCmd)
	rootCmd.AddCommand(customerCmd)
}
