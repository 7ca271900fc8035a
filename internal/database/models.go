package database

// Channel kinds stored in the channels table.
const (
	ChannelKindText     = "text"
	ChannelKindCategory = "category"
	ChannelKindForum    = "forum"
	ChannelKindThread   = "thread"
)

// Message is one archived revision of a Discord message. Rows are never
// updated: an edit or a delete appends a new revision and the highest
// revision of a message id is its current state.
type Message struct {
	ID            string      `db:"message_id"`
	Revision      int64       `db:"revision"`
	ChannelID     string      `db:"channel_id"`
	GuildID       string      `db:"guild_id"`
	AuthorID      string      `db:"author_id"`
	AuthorName    string      `db:"author_name"`
	Timestamp     UnixTime    `db:"timestamp_ms"`
	Content       string      `db:"content"`
	Attachments   Attachments `db:"attachments"`
	ThreadID      string      `db:"thread_id"`
	JumpURL       string      `db:"jump_url"`
	ReactionCount int         `db:"reaction_count"`
	Deleted       bool        `db:"deleted"`
	ArchivedAt    UnixTime    `db:"archived_at_ms"`
}

// Attachment is a media reference carried by a message.
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int    `json:"size,omitempty"`
}

// Reaction is one user's emoji on an archived message. Reactions live outside
// the message revisions so that they are counted however the message arrived.
type Reaction struct {
	MessageID string   `db:"message_id"`
	UserID    string   `db:"user_id"`
	Emoji     string   `db:"emoji"`
	ChannelID string   `db:"channel_id"`
	MessageTS UnixTime `db:"message_ts_ms"`
}

// Media is a well received attachment published after a summary's news items.
type Media struct {
	MessageID  string     `json:"message_id"`
	AuthorName string     `json:"author_name"`
	JumpURL    string     `json:"jump_url"`
	Reactions  int        `json:"reactions"`
	Attachment Attachment `json:"attachment"`
}

// Channel is gateway metadata used to resolve a category into its channels.
type Channel struct {
	ID         string   `db:"channel_id"`
	GuildID    string   `db:"guild_id"`
	Name       string   `db:"name"`
	CategoryID string   `db:"category_id"`
	Kind       string   `db:"kind"`
	UpdatedAt  UnixTime `db:"updated_at_ms"`
}

// Summary is the immutable result of summarizing one window of one scope.
type Summary struct {
	ID               int64    `db:"id"`
	ScopeID          string   `db:"scope_id"`
	ScopeName        string   `db:"scope_name"`
	TargetChannelID  string   `db:"target_channel_id"`
	WindowStart      UnixTime `db:"window_start_ms"`
	WindowEnd        UnixTime `db:"window_end_ms"`
	SourceMessageIDs IDList   `db:"source_message_ids"`
	GeneratedText    string   `db:"generated_text"`
	ShortText        string   `db:"short_text"`
	MessageCount     int      `db:"message_count"`
	Media            Medias   `db:"media"`
	CreatedAt        UnixTime `db:"created_at_ms"`
}

// Publication records how far a summary has been posted. A summary without a
// completed publication is pending; PartsPosted lets a retry resume after the
// messages that already went out.
type Publication struct {
	SummaryID   int64    `db:"summary_id"`
	ChannelID   string   `db:"channel_id"`
	MessageID   string   `db:"message_id"`
	ThreadID    string   `db:"thread_id"`
	PartsPosted int      `db:"parts_posted"`
	Completed   bool     `db:"completed"`
	PublishedAt UnixTime `db:"published_at_ms"`
}

// SummaryThread is the thread holding a scope's detailed summaries for one month.
type SummaryThread struct {
	ScopeID   string   `db:"scope_id"`
	ChannelID string   `db:"channel_id"`
	Month     string   `db:"month"`
	ThreadID  string   `db:"thread_id"`
	CreatedAt UnixTime `db:"created_at_ms"`
}

// RunRecord is a persisted run report.
type RunRecord struct {
	RunID      string   `db:"run_id"`
	Trigger    string   `db:"trigger_kind"`
	State      string   `db:"state"`
	StartedAt  UnixTime `db:"started_at_ms"`
	FinishedAt UnixTime `db:"finished_at_ms"`
	Report     string   `db:"report"`
}
