package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edgard/summarybot/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one summary over the archive and exit",
	RunE:  runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runner, err := a.newRunner(ctx)
	if err != nil {
		return err
	}

	report, err := runner.Run(ctx, pipeline.TriggerCLI)
	if report != nil {
		fmt.Fprintln(cmd.OutOrStdout(), report.Format())
	}
	if err != nil {
		return err
	}
	if report.State == pipeline.StateFailed {
		return fmt.Errorf("summary run %s failed", report.RunID)
	}
	return nil
}
