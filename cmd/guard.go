package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gooze.dev/pkg/rebundle/internal/domain"
	m "gooze.dev/pkg/rebundle/internal/model"
)

const guardLongDescription = `Check the bundle's prefix ledger against its current location and relocate
the runtime when the bundle has moved.

The guard never fails: when relocation is impossible (read-only location,
corrupt tree) it warns and continues. When a command follows "--" the
process is replaced by it afterwards, so the guard can front an app's
launcher:

  rebundle guard /Applications/App.app -- /Applications/App.app/Contents/MacOS/app`

func newGuardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guard <App.app> [-- command [args...]]",
		Short: "Relocate a moved bundle at launch",
		Long:  guardLongDescription,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			bundle, command, err := splitGuardArgs(args, cmd.ArgsLenAtDash())
			if err != nil {
				return err
			}

			ui := newUI(cmd)
			guard := domain.NewGuard(fsAdapter, domain.GuardOptions{
				Layout:     layoutFromConfig(),
				InstallDir: viper.GetString(installDirKey),
				Classifier: classifierFromConfig(),
				Warn:       func(msg string) { ui.DisplayWarning(ctx, msg) },
			})

			result := guard.Check(ctx, m.Path(bundle))

			metrics := newMetrics()
			metrics.IncGuard(result.Status)

			if result.Report != nil {
				metrics.ObservePass("guard", *result.Report)

				if err := saveReports(*result.Report); err != nil {
					ui.DisplayWarning(ctx, err.Error())
				}
			}

			if err := metrics.Flush(); err != nil {
				ui.DisplayWarning(ctx, err.Error())
			}

			if len(command) == 0 {
				ui.DisplayGuard(ctx, result)
				return nil
			}

			path, err := cmdAdapter.LookPath(command[0])
			if err != nil {
				return fmt.Errorf("cannot launch %s: %w", command[0], err)
			}

			return cmdAdapter.Exec(path, command, os.Environ())
		},
	}

	cmd.Flags().String(installDirFlagName, viper.GetString(installDirKey), "install directory assumed when the ledger is corrupt")
	bindFlagToConfig(cmd.Flags().Lookup(installDirFlagName), installDirKey)

	return cmd
}

// splitGuardArgs separates the bundle argument from the command after "--".
func splitGuardArgs(args []string, dash int) (string, []string, error) {
	if dash < 0 {
		if len(args) != 1 {
			return "", nil, fmt.Errorf("expected a single bundle path, got %d arguments (put the command after --)", len(args))
		}

		return args[0], nil, nil
	}

	if dash != 1 {
		return "", nil, fmt.Errorf("expected a single bundle path before --, got %d", dash)
	}

	return args[0], args[1:], nil
}

// guardCmd represents the guard command.
var guardCmd = newGuardCmd()

func init() {
	rootCmd.AddCommand(guardCmd)
}
