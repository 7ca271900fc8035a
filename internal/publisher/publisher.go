// Package publisher posts stored summaries to Discord and records the publication.
package publisher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/edgard/summarybot/internal/config"
	"github.com/edgard/summarybot/internal/database"
	errs "github.com/edgard/summarybot/internal/errors"
	"github.com/edgard/summarybot/internal/metrics"
	"github.com/edgard/summarybot/internal/summarizer"
)

// DefaultRetryDelay is the first backoff step between publish attempts.
const DefaultRetryDelay = 2 * time.Second

// Poster is the chat platform the summaries are published on.
type Poster interface {
	// Post sends content to a channel or thread and returns the message id.
	Post(ctx context.Context, channelID, content string) (string, error)
	// PostFile sends content with the attachment uploaded as a file and returns the message id.
	PostFile(ctx context.Context, channelID, content string, attachment database.Attachment) (string, error)
	// CreateThread starts a thread from a message and returns the thread id.
	CreateThread(ctx context.Context, channelID, messageID, name string) (string, error)
	Pin(ctx context.Context, channelID, messageID string) error
	// UnpinOwn removes the pins the bot made in a channel.
	UnpinOwn(ctx context.Context, channelID string) error
}

// Store is the persistence the publisher needs.
type Store interface {
	GetSummaryThread(ctx context.Context, scopeID, channelID, month string) (*database.SummaryThread, error)
	SaveSummaryThread(ctx context.Context, thread *database.SummaryThread) error
	SavePublication(ctx context.Context, publication *database.Publication) error
	GetPublication(ctx context.Context, summaryID int64) (*database.Publication, error)
}

// Options controls the layout and retry policy of a publication.
type Options struct {
	MaxMessageLength int
	ThreadThreshold  int
	Pin              bool
	Retries          int
	RetryDelay       time.Duration
}

// OptionsFromConfig builds Options from the discord and pipeline sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxMessageLength: cfg.Discord.MaxMessageLength,
		ThreadThreshold:  cfg.Discord.ThreadThreshold,
		Pin:              cfg.Discord.Pin,
		Retries:          cfg.Pipeline.PublishRetries,
		RetryDelay:       DefaultRetryDelay,
	}
}

// Publisher renders and posts summaries.
type Publisher struct {
	poster Poster
	store  Store
	opts   Options
	logger *slog.Logger
}

// New creates a Publisher.
func New(poster Poster, store Store, opts Options, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Publisher{
		poster: poster,
		store:  store,
		opts:   opts,
		logger: logger.With("component", "publisher"),
	}
}

// Publish posts an already stored summary to its target channel and records the
// publication. The header goes to the channel; the body follows inline or, when it
// spans more than ThreadThreshold messages, in the scope's monthly thread, and
// the popular media are uploaded last.
// Progress is recorded after every message, so publishing a summary again
// resumes after what was already posted and never repeats the header.
// A summary with no news is recorded as published without posting anything.
func (p *Publisher) Publish(ctx context.Context, summary *database.Summary, scopeName string) (*database.Publication, error) {
	if summary == nil || summary.ID == 0 {
		return nil, errs.NewPublishFailed("summary must be stored before publishing", nil)
	}
	target := summary.TargetChannelID
	if target == "" {
		return nil, errs.NewPublishFailed(fmt.Sprintf("summary %d has no target channel", summary.ID), nil)
	}

	log := p.logger.With("summary_id", summary.ID, "scope_id", summary.ScopeID, "target", target)

	publication, err := p.store.GetPublication(ctx, summary.ID)
	if err != nil {
		return nil, errs.NewPublishFailed("load publication progress", err)
	}
	if publication != nil && publication.Completed {
		log.InfoContext(ctx, "Summary already published", "message_id", publication.MessageID)
		return publication, nil
	}
	if publication == nil || publication.ChannelID != target {
		publication = &database.Publication{SummaryID: summary.ID, ChannelID: target}
	}

	rendered := Render(summary, scopeName, p.opts.MaxMessageLength)
	if rendered.Empty {
		log.InfoContext(ctx, "Summary has no news, nothing to post")
		return p.complete(ctx, publication)
	}

	if publication.MessageID == "" {
		headerID, err := p.post(ctx, "header", target, rendered.Header)
		if err != nil {
			return nil, errs.NewPublishFailed("post header", err)
		}
		publication.MessageID = headerID
		if err := p.save(ctx, publication); err != nil {
			return nil, err
		}
	} else {
		log.InfoContext(ctx, "Resuming interrupted publication", "message_id", publication.MessageID, "parts_posted", publication.PartsPosted)
	}

	dest := target
	if len(rendered.Body) > p.opts.ThreadThreshold {
		if publication.ThreadID == "" {
			threadID, err := p.monthlyThread(ctx, summary, scopeName, publication.MessageID)
			if err != nil {
				return nil, errs.NewPublishFailed("open summary thread", err)
			}
			publication.ThreadID = threadID
			if err := p.save(ctx, publication); err != nil {
				return nil, err
			}
		}
		dest = publication.ThreadID
	}

	total := len(rendered.Body) + len(rendered.Media)
	for i := publication.PartsPosted; i < total; i++ {
		if i < len(rendered.Body) {
			if _, err := p.post(ctx, "body", dest, rendered.Body[i]); err != nil {
				return nil, errs.NewPublishFailed(fmt.Sprintf("post body part %d of %d", i+1, len(rendered.Body)), err)
			}
		} else {
			media := rendered.Media[i-len(rendered.Body)]
			if _, err := p.postFile(ctx, dest, media); err != nil {
				return nil, errs.NewPublishFailed(fmt.Sprintf("post media %s", media.Attachment.Filename), err)
			}
		}
		publication.PartsPosted = i + 1
		if err := p.save(ctx, publication); err != nil {
			return nil, err
		}
	}

	if p.opts.Pin {
		p.pin(ctx, log, target, publication.MessageID)
	}

	if _, err := p.complete(ctx, publication); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "Summary published",
		"message_id", publication.MessageID,
		"thread_id", publication.ThreadID,
		"parts", len(rendered.Body),
		"media", len(rendered.Media))
	return publication, nil
}

// save records publication progress.
func (p *Publisher) save(ctx context.Context, publication *database.Publication) error {
	if err := p.store.SavePublication(ctx, publication); err != nil {
		return errs.NewPublishFailed("record publication progress", err)
	}
	return nil
}

func (p *Publisher) complete(ctx context.Context, publication *database.Publication) (*database.Publication, error) {
	publication.Completed = true
	publication.PublishedAt = database.NewUnixTime(time.Now())
	if err := p.store.SavePublication(ctx, publication); err != nil {
		publication.Completed = false
		return nil, errs.NewPublishFailed("record publication", err)
	}
	return publication, nil
}

// monthlyThread returns this month's thread of the scope in the target channel,
// creating it from the header message on first use.
func (p *Publisher) monthlyThread(ctx context.Context, summary *database.Summary, scopeName, headerID string) (string, error) {
	month := summary.WindowStart.UTC().Format("2006-01")
	existing, err := p.store.GetSummaryThread(ctx, summary.ScopeID, summary.TargetChannelID, month)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ThreadID, nil
	}

	name := ThreadName(scopeName, summary.WindowStart.Time)
	threadID, err := p.withRetry(ctx, "thread", func() (string, error) {
		return p.poster.CreateThread(ctx, summary.TargetChannelID, headerID, name)
	})
	if err != nil {
		return "", err
	}

	thread := &database.SummaryThread{
		ScopeID:   summary.ScopeID,
		ChannelID: summary.TargetChannelID,
		Month:     month,
		ThreadID:  threadID,
	}
	if err := p.store.SaveSummaryThread(ctx, thread); err != nil {
		p.logger.WarnContext(ctx, "Failed to record summary thread", "thread_id", threadID, "error", err)
	}
	return threadID, nil
}

// ThreadName names a scope's monthly summary thread.
func ThreadName(scopeName string, t time.Time) string {
	name := "Monthly Summary - " + t.UTC().Format("January 2006")
	if scopeName != "" {
		name += " #" + scopeName
	}
	return name
}

// pin replaces the bot's previous pins in the channel with the header. Failures
// are logged and never fail the publication.
func (p *Publisher) pin(ctx context.Context, log *slog.Logger, channelID, messageID string) {
	if err := p.poster.UnpinOwn(ctx, channelID); err != nil {
		metrics.PublishOperations.WithLabelValues("unpin", "failed").Inc()
		log.WarnContext(ctx, "Failed to remove previous pins", "error", err)
	}
	if err := p.poster.Pin(ctx, channelID, messageID); err != nil {
		metrics.PublishOperations.WithLabelValues("pin", "failed").Inc()
		log.WarnContext(ctx, "Failed to pin summary", "message_id", messageID, "error", err)
		return
	}
	metrics.PublishOperations.WithLabelValues("pin", "ok").Inc()
}

func (p *Publisher) post(ctx context.Context, operation, channelID, content string) (string, error) {
	return p.withRetry(ctx, operation, func() (string, error) {
		return p.poster.Post(ctx, channelID, content)
	})
}

func (p *Publisher) postFile(ctx context.Context, channelID string, media MediaPost) (string, error) {
	return p.withRetry(ctx, "media", func() (string, error) {
		return p.poster.PostFile(ctx, channelID, media.Content, media.Attachment)
	})
}

func (p *Publisher) withRetry(ctx context.Context, operation string, fn func() (string, error)) (string, error) {
	id, err := retry.DoWithData(
		fn,
		retry.Context(ctx),
		retry.Attempts(uint(p.opts.Retries+1)),
		retry.Delay(p.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			p.logger.WarnContext(ctx, "Publish operation failed", "operation", operation, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		metrics.PublishOperations.WithLabelValues(operation, "failed").Inc()
		return "", err
	}
	metrics.PublishOperations.WithLabelValues(operation, "ok").Inc()
	return id, nil
}

// PublishDigest posts the cross-channel highlights of a day inline in channelID.
func (p *Publisher) PublishDigest(ctx context.Context, channelID string, date time.Time, items []summarizer.NewsItem) error {
	if len(items) == 0 {
		return nil
	}
	if channelID == "" {
		return errs.NewPublishFailed("no summary channel for the daily digest", nil)
	}

	for i, part := range RenderDigest(date, items, p.opts.MaxMessageLength) {
		if _, err := p.post(ctx, "digest", channelID, part); err != nil {
			return errs.NewPublishFailed(fmt.Sprintf("post digest part %d", i+1), err)
		}
	}
	p.logger.InfoContext(ctx, "Daily digest published", "channel_id", channelID, "items", len(items))
	return nil
}
