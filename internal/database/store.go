package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrSummaryExists is returned by SaveSummary when the scope already has a summary for the window.
var ErrSummaryExists = errors.New("summary already exists for window")

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveMessages appends message revisions. Revisions already archived are ignored.
	SaveMessages(ctx context.Context, messages []*Message) error

	// GetMessagesInWindow returns the current revision of every non-deleted message in
	// channelIDs with start <= timestamp < end, ordered by timestamp then id.
	GetMessagesInWindow(ctx context.Context, channelIDs []string, start, end time.Time) ([]*Message, error)

	// CountMessagesInWindow counts what GetMessagesInWindow would return.
	CountMessagesInWindow(ctx context.Context, channelIDs []string, start, end time.Time) (int, error)

	// SaveChannel inserts or refreshes channel metadata.
	SaveChannel(ctx context.Context, channel *Channel) error

	// GetChannel returns channel metadata, or nil if unknown.
	GetChannel(ctx context.Context, channelID string) (*Channel, error)

	// GetChannelsInCategory returns the channels whose parent is categoryID.
	GetChannelsInCategory(ctx context.Context, categoryID string) ([]*Channel, error)

	// SaveReaction records a user's reaction. Recording it twice is a no-op.
	SaveReaction(ctx context.Context, reaction *Reaction) error

	// RemoveReaction forgets one user's emoji on a message.
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error

	// ClearReactions forgets every reaction on a message.
	ClearReactions(ctx context.Context, messageID string) error

	// SaveSummary inserts a summary and sets its ID. Returns ErrSummaryExists on a window collision.
	SaveSummary(ctx context.Context, summary *Summary) error

	// GetSummaryForWindow returns the summary for the exact window, or nil.
	GetSummaryForWindow(ctx context.Context, scopeID string, start, end time.Time) (*Summary, error)

	// GetLatestSummary returns the newest summary of scopeID whose window ended at or before before, or nil.
	GetLatestSummary(ctx context.Context, scopeID string, before time.Time) (*Summary, error)

	// GetUnpublishedSummaries returns stored summaries without a completed publication, oldest first.
	GetUnpublishedSummaries(ctx context.Context) ([]*Summary, error)

	// SavePublication records or advances the publication of a summary.
	SavePublication(ctx context.Context, publication *Publication) error

	// GetPublication returns the publication of a summary, or nil if nothing was posted yet.
	GetPublication(ctx context.Context, summaryID int64) (*Publication, error)

	// SaveSummaryThread records the monthly thread of a scope.
	SaveSummaryThread(ctx context.Context, thread *SummaryThread) error

	// GetSummaryThread returns the scope's thread for month ("2006-01"), or nil.
	GetSummaryThread(ctx context.Context, scopeID, channelID, month string) (*SummaryThread, error)

	// SaveRunReport persists a finished run.
	SaveRunReport(ctx context.Context, record *RunRecord) error

	// GetRunReport returns a persisted run, or nil.
	GetRunReport(ctx context.Context, runID string) (*RunRecord, error)

	// DeleteMessagesBefore removes archived messages older than cutoff and returns the row count.
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteChannelMessages removes every archived message of a channel and returns the row count.
	DeleteChannelMessages(ctx context.Context, channelID string) (int64, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// messageColumns reports the larger of the count captured with the message and
// the reactions recorded from the gateway since.
const messageColumns = `m.message_id, m.revision, m.channel_id, m.guild_id, m.author_id, m.author_name,
        m.timestamp_ms, m.content, m.attachments, m.thread_id, m.jump_url,
        MAX(m.reaction_count, (SELECT COUNT(*) FROM message_reactions r WHERE r.message_id = m.message_id)) AS reaction_count,
        m.deleted, m.archived_at_ms`

// SaveMessages appends message revisions inside a single transaction.
func (s *sqlxStore) SaveMessages(ctx context.Context, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}

	now := NewUnixTime(time.Now())
	for _, m := range messages {
		if m == nil {
			return fmt.Errorf("cannot save nil message")
		}
		if m.ID == "" || m.ChannelID == "" {
			return fmt.Errorf("message must have an id and a channel_id")
		}
		if m.Timestamp.IsZero() {
			return fmt.Errorf("message %s must have a non-zero timestamp", m.ID)
		}
		if m.ArchivedAt.IsZero() {
			m.ArchivedAt = now
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving messages", "count", len(messages), "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
		}
	}()

	stmt, err := tx.PrepareNamedContext(ctx, `
        INSERT INTO messages (message_id, revision, channel_id, guild_id, author_id, author_name,
            timestamp_ms, content, attachments, thread_id, jump_url, reaction_count, deleted, archived_at_ms)
        VALUES (:message_id, :revision, :channel_id, :guild_id, :author_id, :author_name,
            :timestamp_ms, :content, :attachments, :thread_id, :jump_url, :reaction_count, :deleted, :archived_at_ms)
        ON CONFLICT (message_id, revision) DO NOTHING;
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, m := range messages {
		res, err := stmt.ExecContext(ctx, m)
		if err != nil {
			s.logger.ErrorContext(ctx, "Error saving message", "message_id", m.ID, "channel_id", m.ChannelID, "error", err)
			return fmt.Errorf("failed to save message %s (channel %s): %w", m.ID, m.ChannelID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += n
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit message batch", "count", len(messages), "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Messages saved", "received", len(messages), "inserted", inserted)
	return nil
}

// latestInWindow selects the current revision of each message of the given channels.
// Arguments: channelIDs, channelIDs, start, end.
const latestInWindow = `
        FROM messages m
        JOIN (
            SELECT message_id, MAX(revision) AS revision
            FROM messages
            WHERE channel_id IN (?)
            GROUP BY message_id
        ) latest ON latest.message_id = m.message_id AND latest.revision = m.revision
        WHERE m.channel_id IN (?)
          AND m.deleted = 0
          AND m.timestamp_ms >= ?
          AND m.timestamp_ms < ?`

func (s *sqlxStore) windowQuery(head, tail string, channelIDs []string, start, end time.Time) (string, []any, error) {
	query, args, err := sqlx.In(head+latestInWindow+tail, channelIDs, channelIDs, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return "", nil, fmt.Errorf("failed to expand window query: %w", err)
	}
	return s.db.Rebind(query), args, nil
}

// GetMessagesInWindow returns the current, non-deleted revisions in [start, end).
func (s *sqlxStore) GetMessagesInWindow(ctx context.Context, channelIDs []string, start, end time.Time) ([]*Message, error) {
	if len(channelIDs) == 0 {
		return nil, nil
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid window: start %s is not before end %s", start, end)
	}

	query, args, err := s.windowQuery("SELECT "+messageColumns, " ORDER BY m.timestamp_ms ASC, m.message_id ASC;", channelIDs, start, end)
	if err != nil {
		return nil, err
	}

	var messages []*Message
	err = s.db.SelectContext(ctx, &messages, query, args...)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching messages", "channels", len(channelIDs), "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting messages in window", "channels", len(channelIDs), "error", err)
		return nil, fmt.Errorf("failed to get messages in window: %w", err)
	}

	s.logger.DebugContext(ctx, "Fetched messages in window", "channels", len(channelIDs), "count", len(messages))
	return messages, nil
}

// CountMessagesInWindow counts current, non-deleted revisions in [start, end).
func (s *sqlxStore) CountMessagesInWindow(ctx context.Context, channelIDs []string, start, end time.Time) (int, error) {
	if len(channelIDs) == 0 || !start.Before(end) {
		return 0, nil
	}

	query, args, err := s.windowQuery("SELECT COUNT(*)", ";", channelIDs, start, end)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count messages in window: %w", err)
	}
	return count, nil
}

// SaveChannel inserts or refreshes channel metadata.
func (s *sqlxStore) SaveChannel(ctx context.Context, channel *Channel) error {
	if channel == nil || channel.ID == "" {
		return fmt.Errorf("channel must have an id")
	}
	if channel.Kind == "" {
		channel.Kind = ChannelKindText
	}
	channel.UpdatedAt = NewUnixTime(time.Now())

	query := `
        INSERT INTO channels (channel_id, guild_id, name, category_id, kind, updated_at_ms)
        VALUES (:channel_id, :guild_id, :name, :category_id, :kind, :updated_at_ms)
        ON CONFLICT (channel_id) DO UPDATE SET
            guild_id = excluded.guild_id,
            name = excluded.name,
            category_id = excluded.category_id,
            kind = excluded.kind,
            updated_at_ms = excluded.updated_at_ms;
    `
	if _, err := s.db.NamedExecContext(ctx, query, channel); err != nil {
		s.logger.ErrorContext(ctx, "Error saving channel", "channel_id", channel.ID, "error", err)
		return fmt.Errorf("failed to save channel %s: %w", channel.ID, err)
	}
	return nil
}

// GetChannel returns channel metadata, or nil, nil when the channel is unknown.
func (s *sqlxStore) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var channel Channel
	err := s.db.GetContext(ctx, &channel,
		`SELECT channel_id, guild_id, name, category_id, kind, updated_at_ms FROM channels WHERE channel_id = ?`, channelID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get channel %s: %w", channelID, err)
	}
	return &channel, nil
}

// GetChannelsInCategory returns the channels whose parent is categoryID, ordered by id.
func (s *sqlxStore) GetChannelsInCategory(ctx context.Context, categoryID string) ([]*Channel, error) {
	var channels []*Channel
	err := s.db.SelectContext(ctx, &channels,
		`SELECT channel_id, guild_id, name, category_id, kind, updated_at_ms
         FROM channels WHERE category_id = ? ORDER BY channel_id`, categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get channels in category %s: %w", categoryID, err)
	}
	return channels, nil
}

const summaryColumns = `s.id, s.scope_id, s.scope_name, s.target_channel_id, s.window_start_ms, s.window_end_ms,
        s.source_message_ids, s.generated_text, s.short_text, s.message_count, s.media, s.created_at_ms`

// SaveSummary inserts a summary. The (scope, window) uniqueness constraint makes a
// second insert for the same window fail with ErrSummaryExists, also when the
// first one came from another process.
func (s *sqlxStore) SaveSummary(ctx context.Context, summary *Summary) error {
	if summary == nil || summary.ScopeID == "" || summary.TargetChannelID == "" {
		return fmt.Errorf("summary must have a scope and a target channel")
	}
	if !summary.WindowStart.Before(summary.WindowEnd.Time) {
		return fmt.Errorf("summary window start must be before end")
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = NewUnixTime(time.Now())
	}

	query := `
        INSERT INTO summaries (scope_id, scope_name, target_channel_id, window_start_ms, window_end_ms,
            source_message_ids, generated_text, short_text, message_count, media, created_at_ms)
        VALUES (:scope_id, :scope_name, :target_channel_id, :window_start_ms, :window_end_ms,
            :source_message_ids, :generated_text, :short_text, :message_count, :media, :created_at_ms);
    `
	res, err := s.db.NamedExecContext(ctx, query, summary)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: scope %s window %s", ErrSummaryExists, summary.ScopeID, summary.WindowStart.Format(time.RFC3339))
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving summary", "scope_id", summary.ScopeID, "error", err)
		return fmt.Errorf("failed to save summary for scope %s: %w", summary.ScopeID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read summary id: %w", err)
	}
	summary.ID = id

	s.logger.DebugContext(ctx, "Summary saved", "summary_id", id, "scope_id", summary.ScopeID, "sources", len(summary.SourceMessageIDs))
	return nil
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate key.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

func (s *sqlxStore) getSummary(ctx context.Context, query string, args ...any) (*Summary, error) {
	var summary Summary
	err := s.db.GetContext(ctx, &summary, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &summary, nil
}

// GetSummaryForWindow returns the summary for the exact window, or nil, nil.
func (s *sqlxStore) GetSummaryForWindow(ctx context.Context, scopeID string, start, end time.Time) (*Summary, error) {
	return s.getSummary(ctx,
		`SELECT `+summaryColumns+` FROM summaries s
         WHERE s.scope_id = ? AND s.window_start_ms = ? AND s.window_end_ms = ?`,
		scopeID, start.UnixMilli(), end.UnixMilli())
}

// GetLatestSummary returns the newest summary of a scope ending at or before before.
func (s *sqlxStore) GetLatestSummary(ctx context.Context, scopeID string, before time.Time) (*Summary, error) {
	return s.getSummary(ctx,
		`SELECT `+summaryColumns+` FROM summaries s
         WHERE s.scope_id = ? AND s.window_end_ms <= ?
         ORDER BY s.window_end_ms DESC, s.id DESC LIMIT 1`,
		scopeID, before.UnixMilli())
}

// GetUnpublishedSummaries returns summaries lacking a completed publication, oldest first.
func (s *sqlxStore) GetUnpublishedSummaries(ctx context.Context) ([]*Summary, error) {
	var summaries []*Summary
	err := s.db.SelectContext(ctx, &summaries,
		`SELECT `+summaryColumns+` FROM summaries s
         LEFT JOIN summary_publications p ON p.summary_id = s.id
         WHERE p.summary_id IS NULL OR p.completed = 0
         ORDER BY s.created_at_ms ASC, s.id ASC`)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting unpublished summaries", "error", err)
		return nil, fmt.Errorf("failed to get unpublished summaries: %w", err)
	}
	return summaries, nil
}

// SavePublication inserts or advances the publication record of a summary.
func (s *sqlxStore) SavePublication(ctx context.Context, publication *Publication) error {
	if publication == nil || publication.SummaryID == 0 {
		return fmt.Errorf("publication must reference a summary")
	}
	if publication.PublishedAt.IsZero() {
		publication.PublishedAt = NewUnixTime(time.Now())
	}
	query := `
        INSERT INTO summary_publications (summary_id, channel_id, message_id, thread_id,
            parts_posted, completed, published_at_ms)
        VALUES (:summary_id, :channel_id, :message_id, :thread_id,
            :parts_posted, :completed, :published_at_ms)
        ON CONFLICT (summary_id) DO UPDATE SET
            channel_id = excluded.channel_id,
            message_id = excluded.message_id,
            thread_id = excluded.thread_id,
            parts_posted = excluded.parts_posted,
            completed = excluded.completed,
            published_at_ms = excluded.published_at_ms;
    `
	if _, err := s.db.NamedExecContext(ctx, query, publication); err != nil {
		s.logger.ErrorContext(ctx, "Error saving publication", "summary_id", publication.SummaryID, "error", err)
		return fmt.Errorf("failed to save publication for summary %d: %w", publication.SummaryID, err)
	}
	return nil
}

// GetPublication returns the publication of a summary, or nil, nil before anything was posted.
func (s *sqlxStore) GetPublication(ctx context.Context, summaryID int64) (*Publication, error) {
	var publication Publication
	err := s.db.GetContext(ctx, &publication,
		`SELECT summary_id, channel_id, message_id, thread_id, parts_posted, completed, published_at_ms
         FROM summary_publications WHERE summary_id = ?`, summaryID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get publication for summary %d: %w", summaryID, err)
	}
	return &publication, nil
}

// SaveSummaryThread records the monthly thread of a scope in a channel.
func (s *sqlxStore) SaveSummaryThread(ctx context.Context, thread *SummaryThread) error {
	if thread == nil || thread.ThreadID == "" {
		return fmt.Errorf("summary thread must have a thread id")
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = NewUnixTime(time.Now())
	}
	query := `
        INSERT INTO summary_threads (scope_id, channel_id, month, thread_id, created_at_ms)
        VALUES (:scope_id, :channel_id, :month, :thread_id, :created_at_ms)
        ON CONFLICT (scope_id, channel_id, month) DO NOTHING;
    `
	if _, err := s.db.NamedExecContext(ctx, query, thread); err != nil {
		return fmt.Errorf("failed to save summary thread for scope %s: %w", thread.ScopeID, err)
	}
	return nil
}

// GetSummaryThread returns the scope's thread for a month, or nil, nil.
func (s *sqlxStore) GetSummaryThread(ctx context.Context, scopeID, channelID, month string) (*SummaryThread, error) {
	var thread SummaryThread
	err := s.db.GetContext(ctx, &thread,
		`SELECT scope_id, channel_id, month, thread_id, created_at_ms
         FROM summary_threads WHERE scope_id = ? AND channel_id = ? AND month = ?`, scopeID, channelID, month)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get summary thread for scope %s: %w", scopeID, err)
	}
	return &thread, nil
}

// SaveRunReport persists a finished run.
func (s *sqlxStore) SaveRunReport(ctx context.Context, record *RunRecord) error {
	if record == nil || record.RunID == "" {
		return fmt.Errorf("run record must have a run id")
	}
	query := `
        INSERT INTO run_reports (run_id, trigger_kind, state, started_at_ms, finished_at_ms, report)
        VALUES (:run_id, :trigger_kind, :state, :started_at_ms, :finished_at_ms, :report);
    `
	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to save run report %s: %w", record.RunID, err)
	}
	return nil
}

// GetRunReport returns a persisted run, or nil, nil when the id is unknown.
func (s *sqlxStore) GetRunReport(ctx context.Context, runID string) (*RunRecord, error) {
	var record RunRecord
	err := s.db.GetContext(ctx, &record,
		`SELECT run_id, trigger_kind, state, started_at_ms, finished_at_ms, report
         FROM run_reports WHERE run_id = ?`, runID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get run report %s: %w", runID, err)
	}
	return &record, nil
}

// DeleteMessagesBefore removes archived messages whose timestamp is older than cutoff.
func (s *sqlxStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE timestamp_ms < ?`, cutoff.UnixMilli())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting old messages", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to delete messages before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_ts_ms < ?`, cutoff.UnixMilli()); err != nil {
		return n, fmt.Errorf("failed to delete reactions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	s.logger.InfoContext(ctx, "Deleted archived messages", "cutoff", cutoff, "rows", n)
	return n, nil
}

// DeleteChannelMessages removes every archived message of a channel.
func (s *sqlxStore) DeleteChannelMessages(ctx context.Context, channelID string) (int64, error) {
	if channelID == "" {
		return 0, fmt.Errorf("channel_id cannot be empty")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, channelID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting channel messages", "channel_id", channelID, "error", err)
		return 0, fmt.Errorf("failed to delete messages of channel %s: %w", channelID, err)
	}
	n, _ := res.RowsAffected()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE channel_id = ?`, channelID); err != nil {
		return n, fmt.Errorf("failed to delete reactions of channel %s: %w", channelID, err)
	}
	s.logger.InfoContext(ctx, "Deleted channel messages", "channel_id", channelID, "rows", n)
	return n, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}

// SaveReaction records a user's reaction on a message.
func (s *sqlxStore) SaveReaction(ctx context.Context, reaction *Reaction) error {
	if reaction == nil || reaction.MessageID == "" || reaction.UserID == "" || reaction.Emoji == "" {
		return fmt.Errorf("reaction must have a message, a user and an emoji")
	}
	query := `
        INSERT INTO message_reactions (message_id, user_id, emoji, channel_id, message_ts_ms)
        VALUES (:message_id, :user_id, :emoji, :channel_id, :message_ts_ms)
        ON CONFLICT (message_id, user_id, emoji) DO NOTHING;
    `
	if _, err := s.db.NamedExecContext(ctx, query, reaction); err != nil {
		s.logger.ErrorContext(ctx, "Error saving reaction", "message_id", reaction.MessageID, "error", err)
		return fmt.Errorf("failed to save reaction on message %s: %w", reaction.MessageID, err)
	}
	return nil
}

// RemoveReaction forgets one user's emoji on a message.
func (s *sqlxStore) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?`, messageID, userID, emoji)
	if err != nil {
		return fmt.Errorf("failed to remove reaction on message %s: %w", messageID, err)
	}
	return nil
}

// ClearReactions forgets every reaction on a message.
func (s *sqlxStore) ClearReactions(ctx context.Context, messageID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("failed to clear reactions on message %s: %w", messageID, err)
	}
	return nil
}
