// Package bot wires the long-running components of the summary bot and manages
// their lifecycle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"

	errs "github.com/edgard/summarybot/internal/errors"
	"github.com/edgard/summarybot/internal/pipeline"
)

// Service blocks serving until ctx is done.
type Service interface {
	Start(ctx context.Context) error
}

// Worker processes work until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// Runner executes a summary run.
type Runner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Report, error)
}

// errRunNowFinished stops the orchestrator once the startup run is done.
var errRunNowFinished = errors.New("startup run finished")

// Components are the parts the bot orchestrates. Server is optional.
type Components struct {
	Listener  Service
	Ingest    Worker
	Scheduler *Scheduler
	Server    Service
	Runner    Runner
}

// Bot represents the running application.
type Bot struct {
	logger *slog.Logger
	c      Components
	runNow bool
}

// NewBot creates the orchestrator. With runNow a summary run starts as soon as
// the components are up and the bot shuts down once it has finished.
func NewBot(logger *slog.Logger, c Components, runNow bool) *Bot {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bot{
		logger: logger.With("component", "bot_orchestrator"),
		c:      c,
		runNow: runNow,
	}
}

// Run starts every component and blocks until ctx is cancelled or one of them
// fails. The ingestion writer is stopped last so messages received during
// shutdown are still stored.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	ingestCtx, stopIngest := context.WithCancel(context.WithoutCancel(ctx))
	defer stopIngest()
	ingestDone := make(chan error, 1)
	go func() {
		ingestDone <- b.c.Ingest.Run(ingestCtx)
	}()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.c.Listener.Start(gCtx); err != nil {
			return err
		}
		if gCtx.Err() == nil {
			b.logger.Warn("Discord listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("discord listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		if err := b.c.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")

		if err := b.c.Scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	if b.c.Server != nil {
		g.Go(func() error {
			return b.c.Server.Start(gCtx)
		})
	}

	if b.runNow {
		g.Go(func() error {
			b.runImmediately(gCtx)
			return errRunNowFinished
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	stopIngest()
	if ingestErr := <-ingestDone; ingestErr != nil {
		b.logger.Error("Ingestion writer stopped with error", "error", ingestErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, errRunNowFinished) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}

func (b *Bot) runImmediately(ctx context.Context) {
	report, err := b.c.Runner.Run(ctx, pipeline.TriggerCLI)
	switch {
	case errors.Is(err, errs.ErrRunInProgress):
		b.logger.Warn("Startup run skipped, another run is in progress")
	case err != nil:
		b.logger.Error("Startup run failed", "error", err)
	default:
		b.logger.Info("Startup run finished", "run_id", report.RunID, "state", report.State)
	}
}
