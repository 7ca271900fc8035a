package tasks

import (
	"context"
	"fmt"
	"time"
)

// newArchiveCleanupTask deletes archived messages older than the configured
// retention. A retention of zero keeps everything.
func newArchiveCleanupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", ArchiveCleanup)

	return func(ctx context.Context) error {
		days := deps.Config.Archive.RetentionDays
		if days <= 0 {
			log.InfoContext(ctx, "Archive retention disabled, nothing to clean up")
			return nil
		}

		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		deleted, err := deps.Store.DeleteMessagesBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("archive cleanup failed: %w", err)
		}

		log.InfoContext(ctx, "Archive cleanup completed", "cutoff", cutoff, "deleted", deleted)
		return nil
	}
}
