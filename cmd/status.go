package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/rebundle/internal/domain"
	m "gooze.dev/pkg/rebundle/internal/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <App.app>",
		Short: "Show the recorded and actual prefix of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guard := domain.NewGuard(fsAdapter, domain.GuardOptions{
				Layout:     layoutFromConfig(),
				InstallDir: viper.GetString(installDirKey),
			})

			status, err := guard.Status(m.Path(args[0]))
			if err != nil {
				return err
			}

			newUI(cmd).DisplayStatus(cmd.Context(), status)

			return nil
		},
	}
}

// statusCmd represents the status command.
var statusCmd = newStatusCmd()

func init() {
	rootCmd.AddCommand(statusCmd)
}
