package cli

import (
	"context"

	"housing-backend/internal/app"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			return a.Migrate(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
