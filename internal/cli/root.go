// Package cli implements the housing command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"housing-backend/internal/app"
	"housing-backend/internal/config"
	"housing-backend/internal/logger"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

// loadConfig is replaced in tests.
var loadConfig = config.Load

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "housing",
	Short: "Billing, SEPA direct debit and payment import for housing customers",
	Long: `housing runs the batch operations of the housing billing backend:
billing runs, invoice delivery, SEPA direct debit export and bank
payment import. Every batch operation writes a job record.

Configuration is read from configs/config.yaml, .env and the environment.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
		return logger.Setup(logger.LogConfig{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			TimeFormat: cfg.Log.TimeFormat,
			Output:     "stderr",
		})
	},
}

func init() {
	rootCmd.PersistentFlags().Int("actor", 0, "Operator id recorded on jobs and invoices")
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log := logger.WithComponent("cmd")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp connects to the configured backends for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func actor(cmd *cobra.Command) *int {
	id, _ := cmd.Flags().GetInt("actor")
	if id <= 0 {
		return nil
	}
	return &id
}

func argID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", arg)
	}
	return id, nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
