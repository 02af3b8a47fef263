// Package cmd provides the root command and CLI setup for rebundle.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"gooze.dev/pkg/rebundle/internal/adapter"
	"gooze.dev/pkg/rebundle/internal/controller"
	"gooze.dev/pkg/rebundle/internal/domain"
	m "gooze.dev/pkg/rebundle/internal/model"
)

const metricsNamespace = "rebundle"

var fsAdapter adapter.RuntimeFSAdapter
var cmdAdapter adapter.CommandAdapter
var reportStore adapter.ReportStore
var orchestrator domain.Orchestrator

// verboseFlag switches both log sinks to debug level.
var verboseFlag bool

func init() {
	fsAdapter = adapter.NewLocalRuntimeFSAdapter()
	cmdAdapter = adapter.NewLocalCommandAdapter()
	reportStore = adapter.NewReportStore()
	orchestrator = domain.NewOrchestrator(fsAdapter, cmdAdapter)
}

const rootLongDescription = `Rebundle makes the interpreter runtime embedded in an application bundle
relocatable. It rewrites absolute build paths at build time (portabilize) and
retargets them at launch when the bundle has moved (guard).

Bundle layout:
  <Name>.app/Contents/Resources/<runtime.dir>               runtime root
  <Name>.app/Contents/Resources/application_path_prefix     prefix ledger`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rebundle",
		Short:         "Relocate embedded interpreter runtimes in application bundles",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogger("", viper.GetBool(logVerboseKey))
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	configureRootFlags(cmd)

	return cmd
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "log debug output to stderr and the log file")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)

	cmd.PersistentFlags().String(runtimeDirFlagName, viper.GetString(runtimeDirKey), "runtime directory below Contents/Resources")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(runtimeDirFlagName), runtimeDirKey)

	cmd.PersistentFlags().String(reportFlagName, viper.GetString(reportPathKey), "append pass reports to this YAML file")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(reportFlagName), reportPathKey)

	cmd.PersistentFlags().String(metricsFlagName, viper.GetString(metricsTextfileKey), "write Prometheus metrics to this textfile")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(metricsFlagName), metricsTextfileKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func newUI(cmd *cobra.Command) controller.UI {
	return controller.NewUI(cmd, cmd.OutOrStdout() == os.Stdout && controller.IsTTY(os.Stdout))
}

func newMetrics() adapter.Metrics {
	textfile := viper.GetString(metricsTextfileKey)
	if textfile == "" {
		return adapter.NoopMetrics{}
	}

	return adapter.NewPromMetrics(metricsNamespace, textfile)
}

// saveReports appends reports to the configured report file, if any.
func saveReports(reports ...m.PassReport) error {
	path := viper.GetString(reportPathKey)
	if path == "" {
		return nil
	}

	for _, report := range reports {
		if report.ID == "" {
			continue
		}

		if err := reportStore.SaveReport(m.Path(path), report); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
	}

	return nil
}

// failureClass names the error class used as a metrics label.
func failureClass(err error) string {
	classes := []struct {
		target error
		name   string
	}{
		{domain.ErrBinaryGrowth, "binary-growth"},
		{domain.ErrMarkerNotFound, "marker-not-found"},
		{domain.ErrMissingReferenceInstall, "missing-reference"},
		{domain.ErrLedgerCorrupt, "ledger-corrupt"},
		{domain.ErrMaterializeCycle, "materialize-cycle"},
		{domain.ErrPatchIO, "patch-io"},
		{domain.ErrClassification, "classification"},
	}

	for _, class := range classes {
		if errors.Is(err, class.target) {
			return class.name
		}
	}

	return "other"
}
