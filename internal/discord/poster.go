package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/edgard/summarybot/internal/database"
)

// maxUploadBytes is the largest file a bot may upload to a server without boosts.
const maxUploadBytes = 25 << 20

// Post sends a message and returns its id.
func (c *Client) Post(ctx context.Context, channelID, content string) (string, error) {
	msg, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// PostFile re-uploads an attachment with content so the post outlives the
// original CDN link. When the file cannot be fetched the link is posted instead.
func (c *Client) PostFile(ctx context.Context, channelID, content string, attachment database.Attachment) (string, error) {
	file, err := fetchAttachment(ctx, c.session.Client, attachment, maxUploadBytes)
	if err != nil {
		c.logger.WarnContext(ctx, "Posting attachment link instead of file", "filename", attachment.Filename, "error", err)
		return c.Post(ctx, channelID, content+"\n"+attachment.URL)
	}
	msg, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		Files:   []*discordgo.File{file},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to %s: %w", file.Name, channelID, err)
	}
	return msg.ID, nil
}

// fetchAttachment downloads an attachment of at most limit bytes.
func fetchAttachment(ctx context.Context, client *http.Client, attachment database.Attachment, limit int64) (*discordgo.File, error) {
	if attachment.URL == "" {
		return nil, fmt.Errorf("attachment %q has no url", attachment.Filename)
	}
	if int64(attachment.Size) > limit {
		return nil, fmt.Errorf("attachment %q is %d bytes, over the %d byte upload limit", attachment.Filename, attachment.Size, limit)
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, attachment.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %q: %w", attachment.Filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %q: HTTP %d", attachment.Filename, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", attachment.Filename, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("attachment %q is over the %d byte upload limit", attachment.Filename, limit)
	}

	name := attachment.Filename
	if name == "" {
		name = "attachment"
	}
	contentType := attachment.ContentType
	if contentType == "" {
		contentType = resp.Header.Get("Content-Type")
	}
	return &discordgo.File{Name: name, ContentType: contentType, Reader: bytes.NewReader(data)}, nil
}

// CreateThread starts a public thread on a message and returns the thread id.
func (c *Client) CreateThread(ctx context.Context, channelID, messageID, name string) (string, error) {
	thread, err := c.session.MessageThreadStartComplex(channelID, messageID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: c.archiveMinutes,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to start thread in %s: %w", channelID, err)
	}
	return thread.ID, nil
}

// Pin pins a message.
func (c *Client) Pin(ctx context.Context, channelID, messageID string) error {
	if err := c.session.ChannelMessagePin(channelID, messageID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to pin message %s: %w", messageID, err)
	}
	return nil
}

// UnpinOwn removes every pin in the channel that the bot authored.
func (c *Client) UnpinOwn(ctx context.Context, channelID string) error {
	self, err := c.self(ctx)
	if err != nil {
		return err
	}
	pinned, err := c.session.ChannelMessagesPinned(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to list pins of %s: %w", channelID, err)
	}
	for _, m := range pinned {
		if m.Author == nil || m.Author.ID != self {
			continue
		}
		if err := c.session.ChannelMessageUnpin(channelID, m.ID, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to unpin message %s: %w", m.ID, err)
		}
	}
	return nil
}

// self returns the bot user id, asking the API when the gateway is not open.
func (c *Client) self(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.selfID != "" {
		return c.selfID, nil
	}
	user, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to resolve bot user: %w", err)
	}
	c.selfID = user.ID
	return c.selfID, nil
}
