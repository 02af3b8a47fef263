package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// initCmd represents the init command.
var initCmd = newInitCmd()

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Generate a default rebundle.yaml configuration file",
		Long: `Create a rebundle.yaml in the current working directory populated with the
runtime layout, portabilize steps and logging defaults so it can be edited
manually. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			targetPath := filepath.Join(configFolderPath, configFileName)

			if err := viper.SafeWriteConfigAs(targetPath); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			cmd.Printf("wrote %s\n", targetPath)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
}
