package tasks

import (
	"context"
)

// ScheduledTaskFunc is the signature of every scheduled task. The context is
// cancelled when the scheduler shuts down.
type ScheduledTaskFunc func(ctx context.Context) error

// Task names, matching the keys of the scheduler.tasks config section.
const (
	DailySummary   = "daily_summary"
	SQLMaintenance = "sql_maintenance"
	ArchiveCleanup = "archive_cleanup"
)

// RegisterAllTasks returns every task keyed by its config name.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := map[string]ScheduledTaskFunc{
		DailySummary:   newDailySummaryTask(deps),
		SQLMaintenance: newSQLMaintenanceTask(deps),
		ArchiveCleanup: newArchiveCleanupTask(deps),
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
