package discord

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/edgard/summarybot/internal/database"
)

// discordEpochMs is the first millisecond of Discord snowflakes (2015-01-01 UTC).
const discordEpochMs = 1420070400000

// JumpURL links to a message in the Discord client.
func JumpURL(guildID, channelID, messageID string) string {
	if guildID == "" {
		guildID = "@me"
	}
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", guildID, channelID, messageID)
}

// SnowflakeAt returns the smallest snowflake generated at t, usable as a
// before/after cursor for message history.
func SnowflakeAt(t time.Time) string {
	ms := t.UnixMilli() - discordEpochMs
	if ms < 0 {
		ms = 0
	}
	return strconv.FormatInt(ms<<22, 10)
}

// revisionOf orders the versions of a message: the original is revision 0 and
// each edit is keyed by its edit time, so later edits always win.
func revisionOf(m *discordgo.Message) int64 {
	if m.EditedTimestamp == nil || m.EditedTimestamp.IsZero() {
		return 0
	}
	return m.EditedTimestamp.UnixMilli()
}

// toMessage converts a gateway or history message. channel is the channel the
// message was posted in; thread messages are archived under their parent channel.
func toMessage(m *discordgo.Message, channel *discordgo.Channel) *database.Message {
	msg := &database.Message{
		ID:        m.ID,
		Revision:  revisionOf(m),
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Timestamp: database.NewUnixTime(m.Timestamp),
		Content:   m.Content,
		JumpURL:   JumpURL(m.GuildID, m.ChannelID, m.ID),
	}
	if channel != nil {
		if msg.GuildID == "" {
			msg.GuildID = channel.GuildID
			msg.JumpURL = JumpURL(channel.GuildID, m.ChannelID, m.ID)
		}
		if channel.IsThread() && channel.ParentID != "" {
			msg.ThreadID = channel.ID
			msg.ChannelID = channel.ParentID
		}
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.GlobalName
		if msg.AuthorName == "" {
			msg.AuthorName = m.Author.Username
		}
	}
	for _, r := range m.Reactions {
		msg.ReactionCount += r.Count
	}
	for _, a := range m.Attachments {
		msg.Attachments = append(msg.Attachments, database.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
			Size:        a.Size,
		})
	}
	return msg
}

// deletedRevision records that a message was removed at deletedAt. The original
// timestamp is kept when known so the tombstone stays in the message's window.
func deletedRevision(m *discordgo.Message, before *discordgo.Message, channel *discordgo.Channel, deletedAt time.Time) *database.Message {
	var msg *database.Message
	if before != nil {
		msg = toMessage(before, channel)
	} else {
		msg = toMessage(m, channel)
		if ts, err := discordgo.SnowflakeTimestamp(m.ID); err == nil {
			msg.Timestamp = database.NewUnixTime(ts)
		}
	}
	msg.Revision = deletedAt.UnixMilli()
	msg.Deleted = true
	msg.Content = ""
	msg.Attachments = nil
	return msg
}

// toReaction converts a gateway reaction. Like their messages, reactions in
// threads are recorded under the parent channel.
func toReaction(r *discordgo.MessageReaction, channel *discordgo.Channel) *database.Reaction {
	reaction := &database.Reaction{
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji.APIName(),
		ChannelID: r.ChannelID,
	}
	if channel != nil && channel.IsThread() && channel.ParentID != "" {
		reaction.ChannelID = channel.ParentID
	}
	if ts, err := discordgo.SnowflakeTimestamp(r.MessageID); err == nil {
		reaction.MessageTS = database.NewUnixTime(ts)
	}
	return reaction
}

// toChannel converts channel metadata. Categories are recorded with their own kind
// so a category scope can be expanded into its children.
func toChannel(c *discordgo.Channel) *database.Channel {
	kind := database.ChannelKindText
	switch {
	case c.Type == discordgo.ChannelTypeGuildCategory:
		kind = database.ChannelKindCategory
	case c.Type == discordgo.ChannelTypeGuildForum:
		kind = database.ChannelKindForum
	case c.IsThread():
		kind = database.ChannelKindThread
	}
	return &database.Channel{
		ID:         c.ID,
		GuildID:    c.GuildID,
		Name:       c.Name,
		CategoryID: c.ParentID,
		Kind:       kind,
	}
}
