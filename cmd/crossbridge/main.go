// crossbridge relays messages between bridged Discord channels across servers.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal"
	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal/bridges"
	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal/gateway"
	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal/migrate"
	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal/onboard"
	"github.com/tinyland-inc/crossbridge/cmd/crossbridge/internal/version"
)

func NewCrossbridgeCommand() *cobra.Command {
	short := fmt.Sprintf("%s crossbridge - Cross-server channel bridge v%s\n\n", internal.Logo, internal.GetVersion())

	cmd := &cobra.Command{
		Use:          "crossbridge",
		Short:        short,
		Example:      "crossbridge gateway",
		SilenceUsage: true,
	}

	cmd.AddCommand(
		onboard.NewOnboardCommand(),
		gateway.NewGatewayCommand(),
		bridges.NewBridgesCommand(),
		migrate.NewMigrateCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewCrossbridgeCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
