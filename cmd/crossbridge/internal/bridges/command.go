package bridges

import (
	"github.com/spf13/cobra"
)

func NewBridgesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bridges",
		Aliases: []string{"b"},
		Short:   "Inspect and edit bridges without connecting to Discord",
		Example: `  crossbridge bridges list
  crossbridge bridges link 1100000000000000001 1200000000000000002
  crossbridge bridges unlink 1100000000000000001 1200000000000000002`,
	}

	cmd.AddCommand(
		newListCommand(),
		newLinkCommand(),
		newUnlinkCommand(),
	)

	return cmd
}

func newListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listCmd(cmd.Context(), cmd.OutOrStdout(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print bridges as JSON")

	return cmd
}

func newLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link <channel-id> <channel-id>",
		Short: "Bridge two channels",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return linkCmd(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func newUnlinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <channel-id> <channel-id>",
		Short: "Remove the bridge between two channels",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return unlinkCmd(cmd.Context(), cmd.OutOrStdout(), args[0], args[1])
		},
	}
}
