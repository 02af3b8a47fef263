package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"gooze.dev/pkg/rebundle/internal/domain"
	m "gooze.dev/pkg/rebundle/internal/model"
)

func newRelocateCmd() *cobra.Command {
	var (
		from   string
		to     string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "relocate <runtime-root> --from OLD --to NEW",
		Short: "Rewrite one prefix to another below a runtime root",
		Long: `Run a single relocation pass: every text file, binary file and symlink below
the runtime root that contains OLD is rewritten to NEW. Binary files cannot
grow, so NEW must not be longer than OLD when binaries reference it.
The ledger is not touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if from == "" {
				return errors.New("--from must not be empty")
			}

			walker := domain.NewWalker(fsAdapter, domain.WalkerOptions{
				Classifier: classifierFromConfig(),
				DryRun:     dryRun,
			})

			metrics := newMetrics()

			report, err := walker.Walk(ctx, m.Path(args[0]), m.NewSubstitution(from, to))
			if err != nil {
				metrics.IncFailure("relocate", failureClass(err))
				_ = metrics.Flush()

				return err
			}

			newUI(cmd).DisplayPassReport(ctx, "Relocate", report)
			metrics.ObservePass("relocate", report)

			if err := saveReports(report); err != nil {
				return err
			}

			return metrics.Flush()
		},
	}

	cmd.Flags().StringVar(&from, fromFlagName, "", "prefix to replace")
	cmd.Flags().StringVar(&to, toFlagName, "", "replacement prefix")
	cmd.Flags().BoolVar(&dryRun, dryRunFlagName, false, "show what would change without writing")
	_ = cmd.MarkFlagRequired(fromFlagName)
	_ = cmd.MarkFlagRequired(toFlagName)

	return cmd
}

// relocateCmd represents the relocate command.
var relocateCmd = newRelocateCmd()

func init() {
	rootCmd.AddCommand(relocateCmd)
}
