// Package main is the entrypoint of the Discord summary bot.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	devMode    bool
)

var rootCmd = &cobra.Command{
	Use:           "summarybot",
	Short:         "Discord bot that posts a daily LLM summary of monitored channels",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Use the development guild and channels")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run executes the selected command and returns the process exit code.
func run(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		rootCmd.PrintErrln("Error:", err)
		return 1
	}
	return 0
}
