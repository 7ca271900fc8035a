package discord

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/edgard/summarybot/internal/database"
)

type fakeQueue struct {
	mu   sync.Mutex
	msgs []*database.Message
}

func (q *fakeQueue) Enqueue(msg *database.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, msg)
	return true
}

func (q *fakeQueue) all() []*database.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*database.Message(nil), q.msgs...)
}

type fakeArchive struct {
	mu        sync.Mutex
	channels  map[string]*database.Channel
	reactions map[string]*database.Reaction
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{
		channels:  make(map[string]*database.Channel),
		reactions: make(map[string]*database.Reaction),
	}
}

func (f *fakeArchive) SaveChannel(_ context.Context, ch *database.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch.ID] = ch
	return nil
}

func (f *fakeArchive) SaveReaction(_ context.Context, r *database.Reaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions[r.MessageID+"/"+r.UserID+"/"+r.Emoji] = r
	return nil
}

func (f *fakeArchive) RemoveReaction(_ context.Context, messageID, userID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.reactions, messageID+"/"+userID+"/"+emoji)
	return nil
}

func (f *fakeArchive) ClearReactions(_ context.Context, messageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, r := range f.reactions {
		if r.MessageID == messageID {
			delete(f.reactions, key)
		}
	}
	return nil
}

// newTestClient builds a client over a guild with one monitored category (10)
// and one monitored text channel (20).
//
//	10 category   ├ 11 text   └ 21 thread
//	20 text       └ 22 thread
//	30 text       └ 31 thread
func newTestClient(t *testing.T) (*Client, *fakeQueue) {
	t.Helper()

	state := discordgo.NewState()
	guild := &discordgo.Guild{
		ID: "g1",
		Channels: []*discordgo.Channel{
			{ID: "10", GuildID: "g1", Name: "news", Type: discordgo.ChannelTypeGuildCategory},
			{ID: "11", GuildID: "g1", Name: "general", ParentID: "10", Type: discordgo.ChannelTypeGuildText},
			{ID: "20", GuildID: "g1", Name: "releases", Type: discordgo.ChannelTypeGuildText},
			{ID: "30", GuildID: "g1", Name: "offtopic", Type: discordgo.ChannelTypeGuildText},
		},
		Threads: []*discordgo.Channel{
			{ID: "21", GuildID: "g1", Name: "launch", ParentID: "11", Type: discordgo.ChannelTypeGuildPublicThread},
			{ID: "22", GuildID: "g1", Name: "v2", ParentID: "20", Type: discordgo.ChannelTypeGuildPublicThread},
			{ID: "31", GuildID: "g1", Name: "memes", ParentID: "30", Type: discordgo.ChannelTypeGuildPublicThread},
		},
	}
	if err := state.GuildAdd(guild); err != nil {
		t.Fatalf("GuildAdd() error = %v", err)
	}

	queue := &fakeQueue{}
	c := &Client{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		guildID:   "g1",
		monitored: map[string]struct{}{"10": {}, "20": {}},
		queue:     queue,
		lookup:    state.Channel,
	}
	return c, queue
}

var sent = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func userMessage(id, channelID, content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        id,
		ChannelID: channelID,
		GuildID:   "g1",
		Content:   content,
		Timestamp: sent,
		Author:    &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"},
	}
}

func TestMonitoredChannel(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)

	tests := []struct {
		channel string
		want    bool
	}{
		{"10", true},
		{"11", true},
		{"20", true},
		{"21", true},
		{"22", true},
		{"30", false},
		{"31", false},
		{"99", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run("channel "+tt.channel, func(t *testing.T) {
			t.Parallel()
			if _, got := c.monitoredChannel(tt.channel); got != tt.want {
				t.Errorf("monitoredChannel(%q) = %v, want %v", tt.channel, got, tt.want)
			}
		})
	}
}

func TestIngestMessageCreate(t *testing.T) {
	t.Parallel()

	c, queue := newTestClient(t)

	bot := userMessage("3", "11", "beep")
	bot.Author = &discordgo.User{ID: "b1", Username: "robot", Bot: true}

	c.onMessageCreate(nil, &discordgo.MessageCreate{Message: userMessage("1", "11", "hello")})
	c.onMessageCreate(nil, &discordgo.MessageCreate{Message: userMessage("2", "30", "ignored")})
	c.onMessageCreate(nil, &discordgo.MessageCreate{Message: bot})
	c.onMessageCreate(nil, &discordgo.MessageCreate{Message: userMessage("4", "21", "in thread")})

	got := queue.all()
	if len(got) != 2 {
		t.Fatalf("enqueued %d messages, want 2", len(got))
	}

	first := got[0]
	if first.ID != "1" || first.Revision != 0 || first.ChannelID != "11" || first.AuthorName != "Alice" {
		t.Errorf("first message = %+v", first)
	}
	if first.JumpURL != "https://discord.com/channels/g1/11/1" {
		t.Errorf("JumpURL = %q", first.JumpURL)
	}

	thread := got[1]
	if thread.ChannelID != "11" || thread.ThreadID != "21" {
		t.Errorf("thread message stored under (%q, %q), want (11, 21)", thread.ChannelID, thread.ThreadID)
	}
}

func TestIngestMessageUpdate(t *testing.T) {
	t.Parallel()

	c, queue := newTestClient(t)

	// Unfurl without an edit.
	c.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: userMessage("1", "20", "hello")})

	edited := sent.Add(time.Minute)
	partial := &discordgo.Message{ID: "1", ChannelID: "20", GuildID: "g1", Content: "hello, edited", EditedTimestamp: &edited}
	c.onMessageUpdate(nil, &discordgo.MessageUpdate{
		Message:      partial,
		BeforeUpdate: userMessage("1", "20", "hello"),
	})

	got := queue.all()
	if len(got) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(got))
	}
	msg := got[0]
	if msg.Revision != edited.UnixMilli() {
		t.Errorf("Revision = %d, want %d", msg.Revision, edited.UnixMilli())
	}
	if msg.Content != "hello, edited" || msg.AuthorID != "u1" {
		t.Errorf("edited message = %+v", msg)
	}
	if !msg.Timestamp.Equal(sent) {
		t.Errorf("Timestamp = %v, want original %v", msg.Timestamp.Time, sent)
	}
}

func TestIngestMessageDelete(t *testing.T) {
	t.Parallel()

	c, queue := newTestClient(t)

	id := SnowflakeAt(sent)
	c.onMessageDelete(nil, &discordgo.MessageDelete{
		Message: &discordgo.Message{ID: id, ChannelID: "20", GuildID: "g1"},
	})
	c.onMessageDelete(nil, &discordgo.MessageDelete{
		Message: &discordgo.Message{ID: id, ChannelID: "30", GuildID: "g1"},
	})

	got := queue.all()
	if len(got) != 1 {
		t.Fatalf("enqueued %d messages, want 1", len(got))
	}
	msg := got[0]
	if !msg.Deleted || msg.Content != "" || msg.Revision <= 0 {
		t.Errorf("tombstone = %+v", msg)
	}
	if !msg.Timestamp.Equal(sent) {
		t.Errorf("Timestamp = %v, want %v from snowflake", msg.Timestamp.Time, sent)
	}
}

func TestGuildCreateRecordsChannels(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	store := newFakeArchive()
	c.archive = store

	c.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID: "g1",
		Channels: []*discordgo.Channel{
			{ID: "10", Name: "news", Type: discordgo.ChannelTypeGuildCategory},
			{ID: "11", Name: "general", ParentID: "10", Type: discordgo.ChannelTypeGuildText},
		},
	}})
	c.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID:       "other",
		Channels: []*discordgo.Channel{{ID: "50", Name: "elsewhere"}},
	}})

	if len(store.channels) != 2 {
		t.Fatalf("recorded %d channels, want 2", len(store.channels))
	}
	if got := store.channels["10"]; got.Kind != database.ChannelKindCategory || got.GuildID != "g1" {
		t.Errorf("category = %+v", got)
	}
	if got := store.channels["11"]; got.Kind != database.ChannelKindText || got.CategoryID != "10" {
		t.Errorf("channel = %+v", got)
	}
}

func TestReactionsRecorded(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t)
	c.selfID = "bot"
	archive := newFakeArchive()
	c.archive = archive

	id := SnowflakeAt(sent)
	fire := func(channelID, userID, emoji string, member *discordgo.Member) {
		c.onReactionAdd(nil, &discordgo.MessageReactionAdd{
			MessageReaction: &discordgo.MessageReaction{
				UserID:    userID,
				MessageID: id,
				ChannelID: channelID,
				GuildID:   "g1",
				Emoji:     discordgo.Emoji{Name: emoji},
			},
			Member: member,
		})
	}
	fire("20", "u1", "🔥", nil)
	fire("20", "u2", "🔥", nil)
	fire("21", "u1", "👍", nil)
	fire("30", "u1", "🔥", nil)
	fire("20", "bot", "🔥", nil)
	fire("20", "b2", "🔥", &discordgo.Member{User: &discordgo.User{ID: "b2", Bot: true}})

	if len(archive.reactions) != 3 {
		t.Fatalf("recorded %d reactions, want 3 from people in monitored channels", len(archive.reactions))
	}
	first := archive.reactions[id+"/u1/🔥"]
	if first == nil || first.ChannelID != "20" || !first.MessageTS.Equal(sent) {
		t.Errorf("reaction = %+v, want channel 20 at the message time", first)
	}
	if thread := archive.reactions[id+"/u1/👍"]; thread == nil || thread.ChannelID != "11" {
		t.Errorf("thread reaction = %+v, want it under parent channel 11", thread)
	}

	c.onReactionRemove(nil, &discordgo.MessageReactionRemove{MessageReaction: &discordgo.MessageReaction{
		UserID: "u2", MessageID: id, ChannelID: "20", GuildID: "g1", Emoji: discordgo.Emoji{Name: "🔥"},
	}})
	if _, ok := archive.reactions[id+"/u2/🔥"]; ok || len(archive.reactions) != 2 {
		t.Errorf("reactions after removal = %d, want u2's fire removed", len(archive.reactions))
	}

	c.onReactionRemoveAll(nil, &discordgo.MessageReactionRemoveAll{MessageReaction: &discordgo.MessageReaction{
		MessageID: id, ChannelID: "20", GuildID: "g1",
	}})
	if len(archive.reactions) != 0 {
		t.Errorf("reactions after clear = %d, want 0", len(archive.reactions))
	}
}

func TestFetchAttachment(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cat.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/big.mp4":
			_, _ = w.Write(make([]byte, 64))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	file, err := fetchAttachment(context.Background(), srv.Client(), database.Attachment{Filename: "cat.png", URL: srv.URL + "/cat.png?ex=1"}, 32)
	if err != nil {
		t.Fatalf("fetchAttachment() error = %v", err)
	}
	data, _ := io.ReadAll(file.Reader)
	if file.Name != "cat.png" || file.ContentType != "image/png" || string(data) != "png-bytes" {
		t.Errorf("file = %s %s %q", file.Name, file.ContentType, data)
	}

	tests := []struct {
		name       string
		attachment database.Attachment
	}{
		{"over the limit", database.Attachment{Filename: "big.mp4", URL: srv.URL + "/big.mp4"}},
		{"declared over the limit", database.Attachment{Filename: "cat.png", URL: srv.URL + "/cat.png", Size: 64}},
		{"expired link", database.Attachment{Filename: "gone.png", URL: srv.URL + "/gone.png"}},
		{"no url", database.Attachment{Filename: "x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := fetchAttachment(context.Background(), srv.Client(), tt.attachment, 32); err == nil {
				t.Error("fetchAttachment() error = nil, want error")
			}
		})
	}
}

func TestSnowflakeAt(t *testing.T) {
	t.Parallel()

	if got := SnowflakeAt(time.UnixMilli(discordEpochMs)); got != "0" {
		t.Errorf("SnowflakeAt(epoch) = %q, want 0", got)
	}
	if got := SnowflakeAt(time.Unix(0, 0)); got != "0" {
		t.Errorf("SnowflakeAt(before epoch) = %q, want 0", got)
	}

	ts, err := discordgo.SnowflakeTimestamp(SnowflakeAt(sent))
	if err != nil {
		t.Fatalf("SnowflakeTimestamp() error = %v", err)
	}
	if !ts.Equal(sent) {
		t.Errorf("round trip = %v, want %v", ts, sent)
	}
}

func TestToChannel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   *discordgo.Channel
		want string
	}{
		{"text", &discordgo.Channel{Type: discordgo.ChannelTypeGuildText}, database.ChannelKindText},
		{"category", &discordgo.Channel{Type: discordgo.ChannelTypeGuildCategory}, database.ChannelKindCategory},
		{"forum", &discordgo.Channel{Type: discordgo.ChannelTypeGuildForum}, database.ChannelKindForum},
		{"thread", &discordgo.Channel{Type: discordgo.ChannelTypeGuildPrivateThread}, database.ChannelKindThread},
		{"news", &discordgo.Channel{Type: discordgo.ChannelTypeGuildNews}, database.ChannelKindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := toChannel(tt.in).Kind; got != tt.want {
				t.Errorf("toChannel().Kind = %q, want %q", got, tt.want)
			}
		})
	}
}
