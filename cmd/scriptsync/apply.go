package main

import (
	"github.com/spf13/cobra"
)

var applyCmdRunner = runApply

func newApplyCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Correct drifted configuration items from the repository",
		Long: `Apply rewrites any configuration item whose embedded scripts diverged
from the repository copies. A log_only setting in the configuration file
downgrades the run to reporting, the same as check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Verbose = root.verbose
			opts.Apply = true

			return applyCmdRunner(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file")
	cmd.MarkFlagRequired("config") //nolint:errcheck
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output the run summary in JSON format")

	return cmd
}

func runApply(opts runOptions) error {
	if code := runReconcile(opts); code != 0 {
		osExit(code)
	}
	return nil
}
