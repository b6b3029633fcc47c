package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"groundstation/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the serial link, paths, database, and dashboard address",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			results := preflight.RunAll(cmd.Context(), cfg)
			printSection(stdout, "Preflight", colorize)
			for _, r := range results {
				fmt.Fprintln(stdout, renderStatusLine(r.Name, passFail(r.Passed), r.Detail, colorize))
			}
			if preflight.Failed(results) {
				return errors.New("preflight checks failed")
			}
			fmt.Fprintln(stdout, "All checks passed")
			return nil
		},
	}
}
