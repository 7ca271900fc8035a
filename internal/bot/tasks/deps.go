// Package tasks implements the scheduled tasks of the summary bot.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/summarybot/internal/config"
	"github.com/edgard/summarybot/internal/pipeline"
)

// Store is the maintenance surface of the archive.
type Store interface {
	RunSQLMaintenance(ctx context.Context) error
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner executes a summary run.
type Runner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (*pipeline.Report, error)
}

// TaskDeps contains the dependencies shared by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  Store
	Runner Runner
	Config *config.Config
}
