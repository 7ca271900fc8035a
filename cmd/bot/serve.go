package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/edgard/summarybot/internal/bot"
	"github.com/edgard/summarybot/internal/bot/tasks"
	"github.com/edgard/summarybot/internal/httpapi"
	"github.com/edgard/summarybot/internal/ingest"
)

var runNow bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen to Discord, archive messages and run the scheduled summaries",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&runNow, "run-now", false, "Run a summary immediately after startup")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
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

	queue := ingest.NewQueue(a.store, a.cfg.Ingest, a.log)
	a.discord.Listen(queue, a.store)

	sched, err := bot.NewScheduler(a.log, &a.cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger: a.log,
		Store:  a.store,
		Runner: runner,
		Config: a.cfg,
	}))
	if err != nil {
		return err
	}

	components := bot.Components{
		Listener:  a.discord,
		Ingest:    queue,
		Scheduler: sched,
		Runner:    runner,
	}
	if a.cfg.HTTP.Enabled {
		components.Server = httpapi.New(a.cfg.HTTP.Addr, runner, a.store, a.log)
	}

	a.log.Info("Starting bot...")
	if err := bot.NewBot(a.log, components, runNow).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("Bot stopped gracefully.")
	return nil
}
