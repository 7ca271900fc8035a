package tasks

import (
	"context"
	"errors"

	errs "github.com/edgard/summarybot/internal/errors"
	"github.com/edgard/summarybot/internal/pipeline"
)

// newDailySummaryTask triggers a summary run. A run already in progress, for
// instance one started from the API, is not an error.
func newDailySummaryTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", DailySummary)

	return func(ctx context.Context) error {
		report, err := deps.Runner.Run(ctx, pipeline.TriggerSchedule)
		if errors.Is(err, errs.ErrRunInProgress) {
			log.WarnContext(ctx, "Skipping scheduled run, another run is in progress")
			return nil
		}
		if err != nil {
			return err
		}

		succeeded, skipped, failed := report.Counts()
		log.InfoContext(ctx, "Scheduled summary run finished",
			"run_id", report.RunID,
			"state", report.State,
			"succeeded", succeeded,
			"skipped", skipped,
			"failed", failed)
		return nil
	}
}
