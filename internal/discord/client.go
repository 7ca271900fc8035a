// Package discord connects the bot to Discord: it feeds gateway messages into
// the archive, serves channel history to the collector and publishes summaries.
package discord

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/edgard/summarybot/internal/config"
	"github.com/edgard/summarybot/internal/database"
)

// Enqueuer accepts archived message revisions without blocking.
type Enqueuer interface {
	Enqueue(msg *database.Message) bool
}

// Archive records channel metadata and message reactions.
type Archive interface {
	SaveChannel(ctx context.Context, channel *database.Channel) error
	SaveReaction(ctx context.Context, reaction *database.Reaction) error
	RemoveReaction(ctx context.Context, messageID, userID, emoji string) error
	ClearReactions(ctx context.Context, messageID string) error
}

const storeTimeout = 5 * time.Second

// Client wraps a discordgo session.
type Client struct {
	session        *discordgo.Session
	logger         *slog.Logger
	guildID        string
	monitored      map[string]struct{}
	archiveMinutes int

	queue   Enqueuer
	archive Archive
	lookup  func(channelID string) (*discordgo.Channel, error)

	mu     sync.Mutex
	selfID string
}

// New creates a client for the configured mode. REST calls work right away;
// Start opens the gateway.
func New(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	scope := cfg.Scope()
	c := &Client{
		session:        session,
		logger:         logger.With("component", "discord"),
		guildID:        scope.GuildID,
		monitored:      make(map[string]struct{}, len(scope.MonitoredIDs)),
		archiveMinutes: cfg.Discord.ThreadArchiveMinutes,
	}
	for _, id := range scope.MonitoredIDs {
		c.monitored[id] = struct{}{}
	}
	c.lookup = c.stateChannel
	return c, nil
}

// Listen registers the gateway handlers that archive monitored messages, their
// reactions and channel metadata. It must be called before Start.
func (c *Client) Listen(queue Enqueuer, archive Archive) {
	c.queue = queue
	c.archive = archive

	c.session.AddHandler(c.onReady)
	c.session.AddHandler(c.onGuildCreate)
	c.session.AddHandler(c.onChannelCreate)
	c.session.AddHandler(c.onChannelUpdate)
	c.session.AddHandler(c.onMessageCreate)
	c.session.AddHandler(c.onMessageUpdate)
	c.session.AddHandler(c.onMessageDelete)
	c.session.AddHandler(c.onReactionAdd)
	c.session.AddHandler(c.onReactionRemove)
	c.session.AddHandler(c.onReactionRemoveAll)
}

// Start opens the gateway and blocks until ctx is done. Reconnection is handled
// by discordgo.
func (c *Client) Start(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	c.logger.InfoContext(ctx, "Discord gateway connected", "guild_id", c.guildID, "monitored", len(c.monitored))

	<-ctx.Done()

	if err := c.session.Close(); err != nil {
		c.logger.Warn("Error closing discord gateway", "error", err)
	}
	c.logger.Info("Discord gateway closed")
	return nil
}

func (c *Client) stateChannel(channelID string) (*discordgo.Channel, error) {
	return c.session.State.Channel(channelID)
}

func (c *Client) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		c.mu.Lock()
		c.selfID = r.User.ID
		c.mu.Unlock()
	}
	c.logger.Info("Discord session ready", "guilds", len(r.Guilds))
}

func (c *Client) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || (c.guildID != "" && g.ID != c.guildID) {
		return
	}
	for _, ch := range g.Channels {
		if ch.GuildID == "" {
			ch.GuildID = g.ID
		}
		c.saveChannel(ch)
	}
	c.logger.Info("Guild channels recorded", "guild_id", g.ID, "channels", len(g.Channels))
}

func (c *Client) onChannelCreate(_ *discordgo.Session, e *discordgo.ChannelCreate) {
	c.saveChannel(e.Channel)
}

func (c *Client) onChannelUpdate(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
	c.saveChannel(e.Channel)
}

func (c *Client) saveChannel(ch *discordgo.Channel) {
	if ch == nil || (c.guildID != "" && ch.GuildID != c.guildID) {
		return
	}
	c.record("channel", ch.ID, func(ctx context.Context) error {
		return c.archive.SaveChannel(ctx, toChannel(ch))
	})
}

func (c *Client) onReactionAdd(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
	if e.MessageReaction == nil || (e.Member != nil && e.Member.User != nil && e.Member.User.Bot) {
		return
	}
	channel, ok := c.reactionChannel(e.MessageReaction)
	if !ok {
		return
	}
	c.record("reaction", e.MessageID, func(ctx context.Context) error {
		return c.archive.SaveReaction(ctx, toReaction(e.MessageReaction, channel))
	})
}

func (c *Client) onReactionRemove(_ *discordgo.Session, e *discordgo.MessageReactionRemove) {
	if e.MessageReaction == nil {
		return
	}
	if _, ok := c.reactionChannel(e.MessageReaction); !ok {
		return
	}
	c.record("reaction removal", e.MessageID, func(ctx context.Context) error {
		return c.archive.RemoveReaction(ctx, e.MessageID, e.UserID, e.Emoji.APIName())
	})
}

func (c *Client) onReactionRemoveAll(_ *discordgo.Session, e *discordgo.MessageReactionRemoveAll) {
	if e.MessageReaction == nil {
		return
	}
	if _, ok := c.reactionChannel(e.MessageReaction); !ok {
		return
	}
	c.record("reaction clear", e.MessageID, func(ctx context.Context) error {
		return c.archive.ClearReactions(ctx, e.MessageID)
	})
}

// reactionChannel filters reactions to monitored messages made by someone other than the bot.
func (c *Client) reactionChannel(r *discordgo.MessageReaction) (*discordgo.Channel, bool) {
	if c.guildID != "" && r.GuildID != "" && r.GuildID != c.guildID {
		return nil, false
	}
	c.mu.Lock()
	self := c.selfID
	c.mu.Unlock()
	if self != "" && r.UserID == self {
		return nil, false
	}
	return c.monitoredChannel(r.ChannelID)
}

// record writes gateway metadata straight to the archive. Failures are logged.
func (c *Client) record(what, id string, fn func(ctx context.Context) error) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.logger.Warn("Failed to record "+what, "id", id, "error", err)
	}
}

func (c *Client) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	c.ingest(e.Message)
}

func (c *Client) onMessageUpdate(_ *discordgo.Session, e *discordgo.MessageUpdate) {
	m := e.Message
	if m == nil || m.EditedTimestamp == nil {
		// Embed unfurls arrive as updates without an edit.
		return
	}
	if before := e.BeforeUpdate; before != nil {
		if m.Author == nil {
			m.Author = before.Author
		}
		if m.Timestamp.IsZero() {
			m.Timestamp = before.Timestamp
		}
	}
	c.ingest(m)
}

func (c *Client) onMessageDelete(_ *discordgo.Session, e *discordgo.MessageDelete) {
	if e.Message == nil {
		return
	}
	channel, ok := c.monitoredChannel(e.ChannelID)
	if !ok {
		return
	}
	c.enqueue(deletedRevision(e.Message, e.BeforeDelete, channel, time.Now()))
}

// ingest archives a message posted in a monitored scope. Bot messages, the
// bot's own summaries included, are never archived.
func (c *Client) ingest(m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if c.guildID != "" && m.GuildID != "" && m.GuildID != c.guildID {
		return
	}
	channel, ok := c.monitoredChannel(m.ChannelID)
	if !ok {
		return
	}
	if m.Timestamp.IsZero() {
		ts, err := discordgo.SnowflakeTimestamp(m.ID)
		if err != nil {
			c.logger.Warn("Dropping message without timestamp", "message_id", m.ID, "error", err)
			return
		}
		m.Timestamp = ts
	}
	c.enqueue(toMessage(m, channel))
}

func (c *Client) enqueue(msg *database.Message) {
	if c.queue == nil {
		return
	}
	c.queue.Enqueue(msg)
}

// monitoredChannel reports whether a channel belongs to a monitored scope: the
// channel itself, its category, or for threads the parent channel or its category.
func (c *Client) monitoredChannel(channelID string) (*discordgo.Channel, bool) {
	channel, _ := c.lookup(channelID)
	if c.isMonitored(channelID) {
		return channel, true
	}
	if channel == nil {
		return nil, false
	}
	if c.isMonitored(channel.ParentID) {
		return channel, true
	}
	if channel.IsThread() && channel.ParentID != "" {
		if parent, _ := c.lookup(channel.ParentID); parent != nil && c.isMonitored(parent.ParentID) {
			return channel, true
		}
	}
	return nil, false
}

func (c *Client) isMonitored(id string) bool {
	if id == "" {
		return false
	}
	_, ok := c.monitored[id]
	return ok
}
