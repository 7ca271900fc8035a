package collector

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/edgard/summarybot/internal/database"
	errs "github.com/edgard/summarybot/internal/errors"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type fakeStore struct {
	messages []*database.Message
	channels map[string]*database.Channel
	readErr  error
	saved    []*database.Message
}

func (s *fakeStore) SaveMessages(_ context.Context, messages []*database.Message) error {
	s.saved = append(s.saved, messages...)
	return nil
}

func (s *fakeStore) GetMessagesInWindow(_ context.Context, channelIDs []string, start, end time.Time) ([]*database.Message, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	var out []*database.Message
	for _, m := range s.messages {
		if slices.Contains(channelIDs, m.ChannelID) && !m.Timestamp.Before(start) && m.Timestamp.Before(end) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) GetChannel(_ context.Context, id string) (*database.Channel, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.channels[id], nil
}

func (s *fakeStore) GetChannelsInCategory(_ context.Context, id string) ([]*database.Channel, error) {
	var out []*database.Channel
	for _, ch := range s.channels {
		if ch.CategoryID == id {
			out = append(out, ch)
		}
	}
	slices.SortFunc(out, func(a, b *database.Channel) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

type fakeSource struct {
	messages map[string][]*database.Message
	err      error
}

func (s *fakeSource) FetchMessages(_ context.Context, channelID string, _, _ time.Time) ([]*database.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.messages[channelID], nil
}

func m(id, channel string, offset time.Duration) *database.Message {
	return &database.Message{ID: id, ChannelID: channel, Timestamp: database.NewUnixTime(t0.Add(offset)), Content: id}
}

func ids(messages []*database.Message) []string {
	out := make([]string, 0, len(messages))
	for _, msg := range messages {
		out = append(out, msg.ID)
	}
	return out
}

func newTestCollector(store Store, source Source) *Collector {
	c := New(store, source, time.Second, nil)
	c.now = func() time.Time { return t0.Add(48 * time.Hour) }
	return c
}

func TestCollectOrdersAndDeduplicates(t *testing.T) {
	t.Parallel()

	store := &fakeStore{messages: []*database.Message{
		m("m3", "c1", 3*time.Hour),
		m("m1", "c1", time.Hour),
		m("m2", "c2", 2*time.Hour),
		m("m0", "c1", -time.Hour),
	}}
	source := &fakeSource{messages: map[string][]*database.Message{
		"c1": {m("m1", "c1", time.Hour), m("m4", "c1", 3*time.Hour)},
	}}

	got, err := newTestCollector(store, source).Collect(context.Background(), Window{
		ScopeID:    "scope",
		ChannelIDs: []string{"c1", "c2"},
		Start:      t0,
		End:        t0.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	want := []string{"m1", "m2", "m3", "m4"}
	if !slices.Equal(ids(got), want) {
		t.Errorf("Collect() ids = %v, want %v", ids(got), want)
	}
	if len(store.saved) != 1 || store.saved[0].ID != "m4" {
		t.Errorf("archived live messages = %v, want [m4]", ids(store.saved))
	}
}

func TestCollectEndToEndWindow(t *testing.T) {
	t.Parallel()

	store := &fakeStore{messages: []*database.Message{
		m("m2", "C", 2*time.Minute),
		m("m3", "C", 3*time.Minute),
		m("m1", "C", time.Minute),
	}}
	got, err := newTestCollector(store, nil).Collect(context.Background(), Window{
		ScopeID:    "C",
		ChannelIDs: []string{"C"},
		Start:      t0,
		End:        t0.Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	if !slices.Equal(ids(got), []string{"m1", "m2", "m3"}) {
		t.Errorf("Collect() = %v, want [m1 m2 m3]", ids(got))
	}
}

func TestCollectErrors(t *testing.T) {
	t.Parallel()

	window := Window{ScopeID: "s", ChannelIDs: []string{"c1"}, Start: t0, End: t0.Add(time.Hour)}

	testCases := []struct {
		name   string
		store  *fakeStore
		source Source
		window Window
		want   error
	}{
		{
			name:   "store unreachable",
			store:  &fakeStore{readErr: errors.New("database is locked")},
			window: window,
			want:   errs.ErrSourceUnavailable,
		},
		{
			name:   "live source unreachable",
			store:  &fakeStore{},
			source: &fakeSource{err: errors.New("503")},
			window: window,
			want:   errs.ErrSourceUnavailable,
		},
		{
			name:   "inverted window",
			store:  &fakeStore{},
			window: Window{ScopeID: "s", ChannelIDs: []string{"c1"}, Start: t0, End: t0},
			want:   ErrInvalidWindow,
		},
		{
			name:   "future end",
			store:  &fakeStore{},
			window: Window{ScopeID: "s", ChannelIDs: []string{"c1"}, Start: t0, End: t0.Add(72 * time.Hour)},
			want:   ErrInvalidWindow,
		},
		{
			name:   "no channels",
			store:  &fakeStore{},
			window: Window{ScopeID: "s", Start: t0, End: t0.Add(time.Hour)},
			want:   ErrInvalidWindow,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := newTestCollector(tc.store, tc.source).Collect(context.Background(), tc.window)
			if !errors.Is(err, tc.want) {
				t.Errorf("Collect() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	edited := m("a", "c", time.Minute)
	edited.Revision = 2
	edited.Content = "edited"
	deleted := m("b", "c", 2*time.Minute)
	deleted.Revision = 1
	deleted.Deleted = true

	got, missing := Merge(
		[]*database.Message{m("a", "c", time.Minute), m("b", "c", 2*time.Minute), m("z", "c", time.Minute)},
		[]*database.Message{edited, deleted, m("late", "c", 25*time.Hour)},
		t0, t0.Add(24*time.Hour),
	)

	if !slices.Equal(ids(got), []string{"a", "z"}) {
		t.Fatalf("Merge() = %v, want [a z]", ids(got))
	}
	if got[0].Content != "edited" {
		t.Errorf("Merge() kept %q, want the highest revision", got[0].Content)
	}
	if !slices.Equal(ids(missing), []string{"late"}) {
		t.Errorf("missing = %v, want [late]", ids(missing))
	}

	// Sorted, no duplicates for arbitrary input.
	in := []*database.Message{
		m("x", "c", 5*time.Minute), m("y", "c", time.Minute), m("x", "c", 5*time.Minute), m("w", "c", time.Minute),
	}
	out, _ := Merge(in, in, t0, t0.Add(time.Hour))
	seen := map[string]bool{}
	for i, msg := range out {
		if seen[msg.ID] {
			t.Errorf("duplicate id %s", msg.ID)
		}
		seen[msg.ID] = true
		if i > 0 && out[i-1].Timestamp.After(msg.Timestamp.Time) {
			t.Errorf("messages out of order at %d", i)
		}
	}
}

func TestResolveScope(t *testing.T) {
	t.Parallel()

	store := &fakeStore{channels: map[string]*database.Channel{
		"cat":  {ID: "cat", Name: "News", Kind: database.ChannelKindCategory},
		"c2":   {ID: "c2", Name: "two", CategoryID: "cat", Kind: database.ChannelKindText},
		"c1":   {ID: "c1", Name: "one", CategoryID: "cat", Kind: database.ChannelKindText},
		"solo": {ID: "solo", Name: "solo", Kind: database.ChannelKindText},
	}}
	c := newTestCollector(store, nil)

	testCases := []struct {
		id         string
		name       string
		isCategory bool
		channels   []string
	}{
		{"cat", "News", true, []string{"c1", "c2"}},
		{"solo", "solo", false, []string{"solo"}},
		{"unknown", "unknown", false, []string{"unknown"}},
	}
	for _, tc := range testCases {
		scope, err := c.ResolveScope(context.Background(), tc.id)
		if err != nil {
			t.Fatalf("ResolveScope(%s) error = %v", tc.id, err)
		}
		if scope.Name != tc.name || scope.IsCategory != tc.isCategory || !slices.Equal(scope.ChannelIDs, tc.channels) {
			t.Errorf("ResolveScope(%s) = %+v, want name=%s category=%v channels=%v",
				tc.id, scope, tc.name, tc.isCategory, tc.channels)
		}
	}
}
