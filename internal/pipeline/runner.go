// Package pipeline runs the daily summary: recover pending publications, then
// collect, summarize, store and publish every monitored scope.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/edgard/summarybot/internal/collector"
	"github.com/edgard/summarybot/internal/config"
	"github.com/edgard/summarybot/internal/database"
	errs "github.com/edgard/summarybot/internal/errors"
	"github.com/edgard/summarybot/internal/metrics"
	"github.com/edgard/summarybot/internal/summarizer"
)

// Store is the persistence a run needs.
type Store interface {
	CountMessagesInWindow(ctx context.Context, channelIDs []string, start, end time.Time) (int, error)
	SaveSummary(ctx context.Context, summary *database.Summary) error
	GetSummaryForWindow(ctx context.Context, scopeID string, start, end time.Time) (*database.Summary, error)
	GetLatestSummary(ctx context.Context, scopeID string, before time.Time) (*database.Summary, error)
	GetUnpublishedSummaries(ctx context.Context) ([]*database.Summary, error)
	GetPublication(ctx context.Context, summaryID int64) (*database.Publication, error)
	SaveRunReport(ctx context.Context, record *database.RunRecord) error
}

// Collector resolves scopes and reads their messages.
type Collector interface {
	ResolveScope(ctx context.Context, scopeID string) (collector.Scope, error)
	Collect(ctx context.Context, w collector.Window) ([]*database.Message, error)
}

// Summarizer turns messages into summaries.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*database.Message, prior *database.Summary) (*summarizer.Result, error)
	Combine(ctx context.Context, sections []summarizer.Section) ([]summarizer.NewsItem, error)
}

// Publisher posts stored summaries.
type Publisher interface {
	Publish(ctx context.Context, summary *database.Summary, scopeName string) (*database.Publication, error)
	PublishDigest(ctx context.Context, channelID string, date time.Time, items []summarizer.NewsItem) error
}

// Notifier posts plain messages, used for the admin run report.
type Notifier interface {
	Post(ctx context.Context, channelID, content string) (string, error)
}

const maxReportLength = 1900

// Runner owns the summary run state machine. At most one run is active at a time.
type Runner struct {
	cfg        *config.Config
	store      Store
	collector  Collector
	summarizer Summarizer
	publisher  Publisher
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	state State
	last  *Report
}

// NewRunner creates an idle Runner. notifier may be nil when no admin channel is used.
func NewRunner(
	cfg *config.Config,
	store Store,
	collector Collector,
	summarizer Summarizer,
	publisher Publisher,
	notifier Notifier,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		cfg:        cfg,
		store:      store,
		collector:  collector,
		summarizer: summarizer,
		publisher:  publisher,
		notifier:   notifier,
		logger:     logger.With("component", "pipeline"),
		now:        time.Now,
		state:      StateIdle,
	}
}

// State returns the current state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// LastReport returns the report of the last finished run, or nil.
func (r *Runner) LastReport() *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Run executes one summary run. It returns ErrRunInProgress when another run is
// active and an ErrConfiguration error when the monitored scopes cannot be
// published; per-scope failures are reported, never returned.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (*Report, error) {
	r.mu.Lock()
	if r.state == StateRunning {
		r.mu.Unlock()
		return nil, errs.ErrRunInProgress
	}
	r.state = StateRunning
	r.mu.Unlock()

	report := &Report{
		RunID:     uuid.NewString(),
		Trigger:   trigger,
		StartedAt: r.now().UTC(),
	}
	log := r.logger.With("run_id", report.RunID, "trigger", trigger)
	log.InfoContext(ctx, "Summary run started")

	err := r.execute(ctx, log, report)
	report.FinishedAt = r.now().UTC()
	report.State = StateCompleted
	if err != nil {
		report.State = StateFailed
		report.Error = err.Error()
	}

	r.finish(ctx, log, report)

	r.mu.Lock()
	r.state = report.State
	r.last = report
	r.mu.Unlock()

	return report, err
}

func (r *Runner) execute(ctx context.Context, log *slog.Logger, report *Report) error {
	end := r.now().UTC().Truncate(r.cfg.Pipeline.Window)
	start := end.Add(-r.cfg.Pipeline.Window)
	report.WindowStart, report.WindowEnd = start, end

	scopes, failed, err := r.resolveScopes(ctx)
	if err != nil {
		return err
	}
	report.Results = append(report.Results, failed...)

	pending, err := r.recoverPending(ctx, log, report)
	if err != nil {
		return err
	}

	results := make([]ScopeResult, len(scopes))
	g := new(errgroup.Group)
	g.SetLimit(max(r.cfg.Pipeline.Workers, 1))
	for i, scope := range scopes {
		g.Go(func() error {
			results[i] = r.processScope(ctx, log, scope, start, end, pending)
			return nil
		})
	}
	_ = g.Wait()
	report.Results = append(report.Results, results...)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run interrupted: %w", err)
	}

	if r.cfg.Pipeline.Digest {
		r.digest(ctx, log, report, start)
	}
	return nil
}

// resolveScopes expands the monitored ids and checks every scope has somewhere
// to publish. A scope that cannot be resolved fails on its own; a missing target
// fails the run before any scope is processed.
func (r *Runner) resolveScopes(ctx context.Context) ([]collector.Scope, []ScopeResult, error) {
	ids := r.cfg.Scope().MonitoredIDs
	if len(ids) == 0 {
		return nil, nil, errs.NewConfiguration("no monitored channels or categories configured", nil)
	}

	var (
		scopes []collector.Scope
		failed []ScopeResult
	)
	for _, id := range ids {
		scope, err := r.collector.ResolveScope(ctx, id)
		if err != nil {
			failed = append(failed, failure(ScopeResult{ScopeID: id, ScopeName: id}, err))
			continue
		}
		if r.cfg.TargetFor(scope.ID, scope.IsCategory) == "" {
			return nil, nil, errs.NewConfiguration(fmt.Sprintf("scope %s has no summary target channel", id), nil)
		}
		scopes = append(scopes, scope)
	}
	return scopes, failed, nil
}

// recoverPending publishes summaries stored by an earlier run that never got posted.
// It returns the ids it attempted and failed, so the scope pass does not retry them.
func (r *Runner) recoverPending(ctx context.Context, log *slog.Logger, report *Report) (map[int64]error, error) {
	unpublished, err := r.store.GetUnpublishedSummaries(ctx)
	if err != nil {
		return nil, errs.NewSourceUnavailable("failed to list unpublished summaries", err)
	}

	failedIDs := make(map[int64]error)
	for _, summary := range unpublished {
		if ctx.Err() != nil {
			break
		}
		res := ScopeResult{
			ScopeID:   summary.ScopeID,
			ScopeName: summary.ScopeName,
			SummaryID: summary.ID,
			Messages:  summary.MessageCount,
			Status:    StatusSucceeded,
			Reason:    "published stored summary",
		}
		startTime := time.Now()
		if _, err := r.publisher.Publish(ctx, summary, summary.ScopeName); err != nil {
			failedIDs[summary.ID] = err
			res = failure(res, err)
			log.ErrorContext(ctx, "Failed to publish stored summary", "summary_id", summary.ID, "scope_id", summary.ScopeID, "error", err)
		} else {
			log.InfoContext(ctx, "Recovered unpublished summary", "summary_id", summary.ID, "scope_id", summary.ScopeID)
		}
		res.Duration = time.Since(startTime)
		metrics.ScopeResults.WithLabelValues(string(res.Status)).Inc()
		report.Recovered = append(report.Recovered, res)
	}
	return failedIDs, nil
}

func (r *Runner) processScope(ctx context.Context, log *slog.Logger, scope collector.Scope, start, end time.Time, pending map[int64]error) ScopeResult {
	startTime := time.Now()
	res := r.summarizeScope(ctx, log.With("scope_id", scope.ID, "scope", scope.Name), scope, start, end, pending)
	res.ScopeID, res.ScopeName = scope.ID, scope.Name
	res.Duration = time.Since(startTime)
	metrics.ScopeResults.WithLabelValues(string(res.Status)).Inc()
	return res
}

func (r *Runner) summarizeScope(ctx context.Context, log *slog.Logger, scope collector.Scope, start, end time.Time, pending map[int64]error) ScopeResult {
	if len(scope.ChannelIDs) == 0 {
		return skipped("category has no channels")
	}
	if err := ctx.Err(); err != nil {
		return failure(ScopeResult{}, err)
	}

	existing, err := r.store.GetSummaryForWindow(ctx, scope.ID, start, end)
	if err != nil {
		return failure(ScopeResult{}, errs.NewSourceUnavailable("failed to look up stored summary", err))
	}
	if existing != nil {
		return r.publishExisting(ctx, log, scope, existing, pending)
	}

	if !r.cfg.Pipeline.LiveFetch {
		count, err := r.store.CountMessagesInWindow(ctx, scope.ChannelIDs, start, end)
		if err != nil {
			return failure(ScopeResult{}, errs.NewSourceUnavailable("failed to count messages", err))
		}
		if count < r.cfg.Pipeline.MinMessages {
			log.InfoContext(ctx, "Skipping scope below message threshold", "messages", count, "min_messages", r.cfg.Pipeline.MinMessages)
			res := skipped(fmt.Sprintf("only %d messages", count))
			res.Messages = count
			return res
		}
	}

	messages, err := r.collector.Collect(ctx, collector.Window{ScopeID: scope.ID, ChannelIDs: scope.ChannelIDs, Start: start, End: end})
	if err != nil {
		log.ErrorContext(ctx, "Failed to collect messages", "error", err)
		return failure(ScopeResult{}, err)
	}
	if len(messages) < r.cfg.Pipeline.MinMessages {
		res := skipped(fmt.Sprintf("only %d messages", len(messages)))
		res.Messages = len(messages)
		return res
	}

	prior, err := r.store.GetLatestSummary(ctx, scope.ID, start)
	if err != nil {
		log.WarnContext(ctx, "Previous summary unavailable, summarizing without it", "error", err)
		prior = nil
	}

	result, err := r.summarizer.Summarize(ctx, messages, prior)
	if err != nil {
		log.ErrorContext(ctx, "Failed to summarize scope", "messages", len(messages), "error", err)
		return failure(ScopeResult{Messages: len(messages)}, err)
	}

	summary := &database.Summary{
		ScopeID:          scope.ID,
		ScopeName:        scope.Name,
		TargetChannelID:  r.cfg.TargetFor(scope.ID, scope.IsCategory),
		WindowStart:      database.NewUnixTime(start),
		WindowEnd:        database.NewUnixTime(end),
		SourceMessageIDs: result.SourceMessageIDs,
		GeneratedText:    result.Text,
		ShortText:        result.Short,
		MessageCount:     result.MessageCount,
		Media:            result.Media,
	}
	if err := r.store.SaveSummary(ctx, summary); err != nil {
		if errors.Is(err, database.ErrSummaryExists) {
			return skipped("summary stored by a concurrent run")
		}
		return failure(ScopeResult{Messages: len(messages)}, errs.NewPublishFailed("failed to store summary", err))
	}

	res := ScopeResult{Messages: len(messages), SummaryID: summary.ID, items: result.Items}
	if err := ctx.Err(); err != nil {
		return failure(res, err)
	}
	if _, err := r.publisher.Publish(ctx, summary, scope.Name); err != nil {
		log.ErrorContext(ctx, "Failed to publish summary", "summary_id", summary.ID, "error", err)
		return failure(res, err)
	}

	res.Status = StatusSucceeded
	if result.Empty {
		res.Reason = "no significant news"
	}
	return res
}

// publishExisting handles a window that was already summarized: published ones
// are skipped and stored-but-unpublished ones, partially posted ones included,
// are only published.
func (r *Runner) publishExisting(ctx context.Context, log *slog.Logger, scope collector.Scope, summary *database.Summary, pending map[int64]error) ScopeResult {
	res := ScopeResult{Messages: summary.MessageCount, SummaryID: summary.ID}

	if err, attempted := pending[summary.ID]; attempted {
		return failure(res, err)
	}

	publication, err := r.store.GetPublication(ctx, summary.ID)
	if err != nil {
		return failure(res, errs.NewSourceUnavailable("failed to look up publication", err))
	}
	if publication != nil && publication.Completed {
		res.Status = StatusSkipped
		res.Reason = "already published"
		return res
	}

	if _, err := r.publisher.Publish(ctx, summary, scope.Name); err != nil {
		log.ErrorContext(ctx, "Failed to publish stored summary", "summary_id", summary.ID, "error", err)
		return failure(res, err)
	}
	res.Status = StatusSucceeded
	res.Reason = "published stored summary"
	res.items = summarizer.ParseItems(summary.GeneratedText)
	return res
}

// digest posts the day's highlights across the scopes summarized in this run.
// Failures are logged and do not fail the run.
func (r *Runner) digest(ctx context.Context, log *slog.Logger, report *Report, date time.Time) {
	var sections []summarizer.Section
	for _, res := range report.Results {
		if res.Status == StatusSucceeded && len(res.items) > 0 {
			sections = append(sections, summarizer.Section{ScopeName: res.ScopeName, Items: res.items})
		}
	}
	if len(sections) == 0 {
		return
	}

	items, err := r.summarizer.Combine(ctx, sections)
	if err != nil {
		log.ErrorContext(ctx, "Failed to build daily digest", "error", err)
		return
	}
	if err := r.publisher.PublishDigest(ctx, r.cfg.Scope().SummaryChannelID, date, items); err != nil {
		log.ErrorContext(ctx, "Failed to publish daily digest", "error", err)
		return
	}
	report.Digest = len(items) > 0
}

// finish records metrics, persists the report and posts it to the admin channel.
// It runs even when ctx was cancelled so interrupted runs still leave a record.
func (r *Runner) finish(ctx context.Context, log *slog.Logger, report *Report) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Pipeline.CallTimeout)
	defer cancel()

	duration := report.FinishedAt.Sub(report.StartedAt)
	metrics.RunsTotal.WithLabelValues(string(report.Trigger), string(report.State)).Inc()
	metrics.RunDuration.Observe(duration.Seconds())

	succeeded, skipped, failed := report.Counts()
	log.InfoContext(ctx, "Summary run finished",
		"state", report.State,
		"succeeded", succeeded,
		"skipped", skipped,
		"failed", failed,
		"digest", report.Digest,
		"duration", duration)

	encoded, err := json.Marshal(report)
	if err != nil {
		log.ErrorContext(ctx, "Failed to encode run report", "error", err)
	} else {
		record := &database.RunRecord{
			RunID:      report.RunID,
			Trigger:    string(report.Trigger),
			State:      string(report.State),
			StartedAt:  database.NewUnixTime(report.StartedAt),
			FinishedAt: database.NewUnixTime(report.FinishedAt),
			Report:     string(encoded),
		}
		if err := r.store.SaveRunReport(ctx, record); err != nil {
			log.ErrorContext(ctx, "Failed to save run report", "error", err)
		}
	}

	adminChannel := r.cfg.Scope().AdminChannelID
	if r.notifier == nil || adminChannel == "" {
		return
	}
	text := report.Format()
	if len(text) > maxReportLength {
		text = strings.ToValidUTF8(text[:maxReportLength-len("\n…")], "") + "\n…"
	}
	if _, err := r.notifier.Post(ctx, adminChannel, text); err != nil {
		log.WarnContext(ctx, "Failed to post run report to admin channel", "error", err)
	}
}

func skipped(reason string) ScopeResult {
	return ScopeResult{Status: StatusSkipped, Reason: reason}
}

func failure(res ScopeResult, err error) ScopeResult {
	res.Status = StatusFailed
	res.ErrorKind = errs.KindOf(err)
	res.Error = err.Error()
	return res
}
