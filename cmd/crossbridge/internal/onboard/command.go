package onboard

import (
	"github.com/spf13/cobra"
)

func NewOnboardCommand() *cobra.Command {
	var token string
	var force bool

	cmd := &cobra.Command{
		Use:     "onboard",
		Aliases: []string{"o"},
		Short:   "Initialize crossbridge configuration",
		Args:    cobra.NoArgs,
		Example: `  crossbridge onboard
  crossbridge onboard --token "$BOT_TOKEN"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return onboard(cmd.InOrStdin(), cmd.OutOrStdout(), token, force)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Bot token (prompted for when omitted)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace an existing token")

	return cmd
}
