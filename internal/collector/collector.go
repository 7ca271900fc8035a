// Package collector gathers the messages of one summary window from the
// archive and, optionally, from the live Discord history.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/edgard/summarybot/internal/database"
	errs "github.com/edgard/summarybot/internal/errors"
)

// ErrInvalidWindow is returned when a window violates start < end <= now or has no channels.
var ErrInvalidWindow = errors.New("invalid summary window")

// Store is the subset of the archive the collector reads.
type Store interface {
	SaveMessages(ctx context.Context, messages []*database.Message) error
	GetMessagesInWindow(ctx context.Context, channelIDs []string, start, end time.Time) ([]*database.Message, error)
	GetChannel(ctx context.Context, channelID string) (*database.Channel, error)
	GetChannelsInCategory(ctx context.Context, categoryID string) ([]*database.Channel, error)
}

// Source reads message history from the live chat platform.
type Source interface {
	FetchMessages(ctx context.Context, channelID string, start, end time.Time) ([]*database.Message, error)
}

// Window is one summarization unit: a scope and the half-open range [Start, End).
type Window struct {
	ScopeID    string
	ChannelIDs []string
	Start      time.Time
	End        time.Time
}

// Validate checks the window bounds against now.
func (w Window) Validate(now time.Time) error {
	switch {
	case w.ScopeID == "":
		return fmt.Errorf("%w: missing scope id", ErrInvalidWindow)
	case len(w.ChannelIDs) == 0:
		return fmt.Errorf("%w: scope %s has no channels", ErrInvalidWindow, w.ScopeID)
	case !w.Start.Before(w.End):
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidWindow,
			w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	case w.End.After(now):
		return fmt.Errorf("%w: end %s is in the future", ErrInvalidWindow, w.End.Format(time.RFC3339))
	}
	return nil
}

// Scope is a monitored channel or category resolved into the channels it covers.
type Scope struct {
	ID         string
	Name       string
	GuildID    string
	IsCategory bool
	ChannelIDs []string
}

// Collector reads windows of messages. Source may be nil to read only the archive.
type Collector struct {
	store   Store
	source  Source
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Collector. A zero timeout disables the per-call deadline.
func New(store Store, source Source, timeout time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Collector{
		store:   store,
		source:  source,
		timeout: timeout,
		logger:  logger.With("component", "collector"),
		now:     time.Now,
	}
}

// ResolveScope expands a monitored id into its channels. Unknown ids are treated as
// plain channels; categories expand into their child channels.
func (c *Collector) ResolveScope(ctx context.Context, scopeID string) (Scope, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	ch, err := c.store.GetChannel(ctx, scopeID)
	if err != nil {
		return Scope{}, errs.NewSourceUnavailable(fmt.Sprintf("failed to resolve scope %s", scopeID), err)
	}
	if ch == nil {
		return Scope{ID: scopeID, Name: scopeID, ChannelIDs: []string{scopeID}}, nil
	}

	scope := Scope{ID: ch.ID, Name: ch.Name, GuildID: ch.GuildID}
	if scope.Name == "" {
		scope.Name = ch.ID
	}
	if ch.Kind != database.ChannelKindCategory {
		scope.ChannelIDs = []string{ch.ID}
		return scope, nil
	}

	scope.IsCategory = true
	children, err := c.store.GetChannelsInCategory(ctx, ch.ID)
	if err != nil {
		return Scope{}, errs.NewSourceUnavailable(fmt.Sprintf("failed to list channels of category %s", scopeID), err)
	}
	for _, child := range children {
		if child.Kind == database.ChannelKindCategory {
			continue
		}
		scope.ChannelIDs = append(scope.ChannelIDs, child.ID)
	}
	return scope, nil
}

// Collect returns the current revision of every message in the window, ordered
// by timestamp ascending with ties broken by id, without duplicate ids.
// Any read failure is reported as ErrSourceUnavailable.
func (c *Collector) Collect(ctx context.Context, w Window) ([]*database.Message, error) {
	if err := w.Validate(c.now()); err != nil {
		return nil, err
	}

	startTime := time.Now()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	archived, err := c.store.GetMessagesInWindow(ctx, w.ChannelIDs, w.Start, w.End)
	if err != nil {
		return nil, errs.NewSourceUnavailable(fmt.Sprintf("failed to read archive for scope %s", w.ScopeID), err)
	}

	var live []*database.Message
	if c.source != nil {
		for _, channelID := range w.ChannelIDs {
			fetched, err := c.source.FetchMessages(ctx, channelID, w.Start, w.End)
			if err != nil {
				return nil, errs.NewSourceUnavailable(fmt.Sprintf("failed to fetch history of channel %s", channelID), err)
			}
			live = append(live, fetched...)
		}
	}

	merged, missing := Merge(archived, live, w.Start, w.End)
	if len(missing) > 0 {
		c.archive(ctx, missing)
	}

	c.logger.DebugContext(ctx, "Collected window",
		"scope_id", w.ScopeID,
		"channels", len(w.ChannelIDs),
		"archived", len(archived),
		"live", len(live),
		"messages", len(merged),
		"duration_ms", time.Since(startTime).Milliseconds())

	return merged, nil
}

// archive writes live messages the archive did not have. Failures only cost history.
func (c *Collector) archive(ctx context.Context, messages []*database.Message) {
	if err := c.store.SaveMessages(ctx, messages); err != nil {
		c.logger.WarnContext(ctx, "Failed to archive live messages", "count", len(messages), "error", err)
		return
	}
	c.logger.DebugContext(ctx, "Archived live messages", "count", len(messages))
}

func (c *Collector) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Merge combines archived and live messages. For each id the highest revision
// wins (archived on ties); a deleted winner removes the message. Only messages in
// [start, end) are kept. It also returns the live messages absent from the archive.
func Merge(archived, live []*database.Message, start, end time.Time) ([]*database.Message, []*database.Message) {
	latest := make(map[string]*database.Message, len(archived)+len(live))
	inArchive := make(map[string]struct{}, len(archived))

	for _, m := range archived {
		if m == nil {
			continue
		}
		inArchive[m.ID] = struct{}{}
		if cur, ok := latest[m.ID]; !ok || m.Revision > cur.Revision {
			latest[m.ID] = m
		}
	}

	var missing []*database.Message
	for _, m := range live {
		if m == nil {
			continue
		}
		if _, ok := inArchive[m.ID]; !ok {
			missing = append(missing, m)
		}
		if cur, ok := latest[m.ID]; !ok || m.Revision > cur.Revision {
			latest[m.ID] = m
		}
	}

	out := make([]*database.Message, 0, len(latest))
	for _, m := range latest {
		if m.Deleted {
			continue
		}
		ts := m.Timestamp.Time
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		out = append(out, m)
	}

	slices.SortFunc(out, func(a, b *database.Message) int {
		if c := a.Timestamp.Compare(b.Timestamp.Time); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})

	return out, missing
}
