package cli

import (
	"fmt"
	"time"

	"housing-backend/internal/power"

	"github.com/spf13/cobra"
)

var powerCmd = &cobra.Command{
	Use:   "power",
	Short: "Query and switch customer power outlets",
}

func powerClient() (*power.Client, error) {
	if cfg.Power.APIURL == "" {
		return nil, fmt.Errorf("power.api_url is not configured")
	}
	return power.NewClient(cfg.Power.APIURL, cfg.Power.User, cfg.Power.Pass,
		time.Duration(cfg.Power.TimeoutSeconds)*time.Second), nil
}

var powerStatusCmd = &cobra.Command{
	Use:   "status ENDPOINT",
	Short: "Show the state of an outlet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := powerClient()
		if err != nil {
			return err
		}
		status, err := client.GetStatus(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if wantJSON(cmd) {
			return printJSON(cmd.OutOrStdout(), status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], status.State)
		return nil
	},
}

func switchCmd(use string, on bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ENDPOINT",
		Short: "Switch an outlet " + use,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := powerClient()
			if err != nil {
				return err
			}
			answer, err := client.SetPower(cmd.Context(), args[0], on)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], answer)
			return nil
		},
	}
}

func init() {
	powerCmd.AddCommand(powerStatusCmd, switchCmd("on", true), switchCmd("off", false))
	rootCmd.AddCommand(powerCmd)
}
