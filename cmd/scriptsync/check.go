package main

import (
	"github.com/spf13/cobra"
)

var checkCmdRunner = runCheck

func newCheckCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Report drift between repository scripts and the management service",
		Long: `Check compares every configuration item's embedded scripts against the
repository copies without writing anything back. Returns exit code 0 when
everything is in sync, 1 when drift was found, 2 on configuration errors
and 3 when the run itself failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Verbose = root.verbose
			opts.Apply = false

			return checkCmdRunner(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file")
	cmd.MarkFlagRequired("config") //nolint:errcheck
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Output the run summary in JSON format")

	return cmd
}

func runCheck(opts runOptions) error {
	if code := runReconcile(opts); code != 0 {
		osExit(code)
	}
	return nil
}
