package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	m "gooze.dev/pkg/rebundle/internal/model"
)

const portabilizeLongDescription = `Make the runtime inside a freshly built bundle relocatable.

Steps, in order (any failure aborts):
  1. materialize symlinks that point outside the runtime
  2. patch the activation script to resolve its own location
  3. rewrite the entry point shebang
  4. backfill package manager modules from the reference installation
  5. rewrite the build prefix to the install prefix and write the ledger

With --dry-run nothing is written; script changes are shown as diffs.`

func newPortabilizeCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "portabilize <App.app>",
		Short: "Prepare a bundle's runtime for relocation",
		Long:  portabilizeLongDescription,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := portabilizeFromConfig(m.Path(args[0]))
			if err != nil {
				return err
			}

			cfg.DryRun = dryRun
			metrics := newMetrics()

			result, err := orchestrator.Portabilize(ctx, cfg)

			newUI(cmd).DisplayPortabilize(ctx, result)

			if err != nil {
				metrics.IncFailure("portabilize", failureClass(err))
				_ = metrics.Flush()

				return err
			}

			metrics.ObservePass("externalize", result.Externalize)
			metrics.ObservePass("portabilize", result.Relocation)

			if err := saveReports(result.Externalize, result.Relocation); err != nil {
				return err
			}

			return metrics.Flush()
		},
	}

	cmd.Flags().BoolVar(&dryRun, dryRunFlagName, false, "show what would change without writing")

	cmd.Flags().String(installDirFlagName, viper.GetString(installDirKey), "directory the bundle will be installed into")
	bindFlagToConfig(cmd.Flags().Lookup(installDirFlagName), installDirKey)

	cmd.Flags().String(referenceFlagName, viper.GetString(referenceKey), "reference installation to backfill packages from (default: located via the package manager on PATH)")
	bindFlagToConfig(cmd.Flags().Lookup(referenceFlagName), referenceKey)

	cmd.Flags().Bool(fixInstallNamesFlagName, viper.GetBool(fixInstallNamesKey), "rewrite libpython install names with install_name_tool")
	bindFlagToConfig(cmd.Flags().Lookup(fixInstallNamesFlagName), fixInstallNamesKey)

	return cmd
}

// portabilizeCmd represents the portabilize command.
var portabilizeCmd = newPortabilizeCmd()

func init() {
	rootCmd.AddCommand(portabilizeCmd)
}
