package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/edgard/summarybot/internal/database"
)

const historyPageSize = 100

// FetchMessages reads the history of a channel for [start, end), newest page
// first, and returns the latest revision of each message. Bot messages are
// skipped.
func (c *Client) FetchMessages(ctx context.Context, channelID string, start, end time.Time) ([]*database.Message, error) {
	channel, _ := c.lookup(channelID)

	var (
		out    []*database.Message
		before = SnowflakeAt(end)
		pages  int
	)
	for {
		page, err := c.session.ChannelMessages(channelID, historyPageSize, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history of channel %s: %w", channelID, err)
		}
		pages++

		done := len(page) < historyPageSize
		for _, m := range page {
			if m.Timestamp.Before(start) {
				done = true
				continue
			}
			if !m.Timestamp.Before(end) || m.Author == nil || m.Author.Bot {
				continue
			}
			out = append(out, toMessage(m, channel))
		}
		if done || len(page) == 0 {
			break
		}
		before = page[len(page)-1].ID
	}

	c.logger.DebugContext(ctx, "Fetched channel history",
		"channel_id", channelID,
		"pages", pages,
		"messages", len(out))
	return out, nil
}
