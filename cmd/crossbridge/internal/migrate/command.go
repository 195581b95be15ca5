package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal"
	"github.com/tinyland-inc/crossbridge/pkg/migrate"
)

func NewMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Import data from earlier deployments",
		Example: `  crossbridge migrate legacy --from ./bridges.db
  crossbridge migrate legacy --from ./bridges.db --dry-run`,
	}

	var opts migrate.Options

	legacyCmd := &cobra.Command{
		Use:   "legacy",
		Short: "Import bridges from a pre-crossbridge bridges.db",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := internal.LoadConfig()
			if err != nil {
				return fmt.Errorf("error loading config: %w", err)
			}
			reg, st, err := internal.OpenRegistry(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			result, err := migrate.Run(cmd.Context(), opts, reg)
			if err != nil {
				return err
			}
			migrate.PrintSummary(cmd.OutOrStdout(), result)
			return nil
		},
	}

	legacyCmd.Flags().StringVar(&opts.LegacyPath, "from", "bridges.db",
		"Path to the legacy SQLite database")
	legacyCmd.Flags().BoolVar(&opts.DryRun, "dry-run", false,
		"Show what would be imported without making changes")

	cmd.AddCommand(legacyCmd)

	return cmd
}
