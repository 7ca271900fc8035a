package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edgard/summarybot/internal/collector"
	"github.com/edgard/summarybot/internal/config"
	"github.com/edgard/summarybot/internal/database"
	errs "github.com/edgard/summarybot/internal/errors"
	"github.com/edgard/summarybot/internal/publisher"
	"github.com/edgard/summarybot/internal/summarizer"
)

const (
	adminChannel   = "999"
	summaryChannel = "555"
)

var (
	runAt      = time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	dayStart   = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	dayEnd     = dayStart.Add(24 * time.Hour)
	errOffline = errors.New("discord unavailable")
)

type sentMessage struct {
	channel string
	content string
}

type fakePoster struct {
	mu       sync.Mutex
	sent     []sentMessage
	failFor  map[string]bool
	messages int
	// failBodies rejects the summary body while headers still go out.
	failBodies bool
}

func (f *fakePoster) Post(_ context.Context, channelID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[channelID] || (f.failBodies && strings.HasPrefix(content, "# 📅 ")) {
		return "", errOffline
	}
	f.messages++
	f.sent = append(f.sent, sentMessage{channel: channelID, content: content})
	return fmt.Sprintf("msg-%d", f.messages), nil
}

func (f *fakePoster) PostFile(ctx context.Context, channelID, content string, attachment database.Attachment) (string, error) {
	return f.Post(ctx, channelID, content+"\n"+attachment.Filename)
}

func (f *fakePoster) CreateThread(_ context.Context, _, messageID, _ string) (string, error) {
	return "thread-" + messageID, nil
}

func (f *fakePoster) Pin(context.Context, string, string) error { return nil }

func (f *fakePoster) UnpinOwn(context.Context, string) error { return nil }

func (f *fakePoster) sentTo(channelID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.channel == channelID {
			out = append(out, m.content)
		}
	}
	return out
}

func (f *fakePoster) setFailBodies(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failBodies = fail
}

func (f *fakePoster) setFail(channelID string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor == nil {
		f.failFor = map[string]bool{}
	}
	f.failFor[channelID] = fail
}

type fakeSummarizer struct {
	mu      sync.Mutex
	calls   int
	fail    map[string]error
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSummarizer) Summarize(ctx context.Context, messages []*database.Message, _ *database.Summary) (*summarizer.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.release != nil {
		f.entered <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	channel := messages[0].ChannelID
	if err := f.fail[channel]; err != nil {
		return nil, err
	}

	items := []summarizer.NewsItem{{Title: "News from " + channel, MainText: "Something happened."}}
	text, _ := summarizer.EncodeItems(items)
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		ids = append(ids, m.ID)
	}
	return &summarizer.Result{
		Items:            items,
		Text:             text,
		Short:            fmt.Sprintf("📨 __%d messages sent__", len(messages)),
		Chunks:           1,
		MessageCount:     len(messages),
		SourceMessageIDs: ids,
	}, nil
}

func (f *fakeSummarizer) Combine(_ context.Context, sections []summarizer.Section) ([]summarizer.NewsItem, error) {
	var items []summarizer.NewsItem
	for _, s := range sections {
		items = append(items, s.Items[0])
	}
	return items, nil
}

func (f *fakeSummarizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	cfg    *config.Config
	store  database.Store
	poster *fakePoster
	summ   *fakeSummarizer
	runner *Runner
}

func newHarness(t *testing.T, monitored ...string) *harness {
	t.Helper()

	db, err := database.NewDB(":memory:")
	if err != nil {
		t.Fatalf("NewDB() error = %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, nil)

	cfg := &config.Config{
		Mode: config.ModeProduction,
		Discord: config.DiscordConfig{
			MonitoredIDs:     monitored,
			SummaryChannelID: summaryChannel,
			AdminChannelID:   adminChannel,
			MaxMessageLength: 1900,
			ThreadThreshold:  5,
		},
		Pipeline: config.PipelineConfig{
			Window:      24 * time.Hour,
			MinMessages: 1,
			Workers:     2,
			CallTimeout: 5 * time.Second,
		},
	}

	poster := &fakePoster{}
	summ := &fakeSummarizer{fail: map[string]error{}}
	pub := publisher.New(poster, store, publisher.Options{
		MaxMessageLength: 1900,
		ThreadThreshold:  5,
		RetryDelay:       time.Millisecond,
	}, nil)
	runner := NewRunner(cfg, store, collector.New(store, nil, time.Second, nil), summ, pub, poster, nil)
	runner.now = func() time.Time { return runAt }

	return &harness{cfg: cfg, store: store, poster: poster, summ: summ, runner: runner}
}

func (h *harness) addMessages(t *testing.T, channelID string, ids ...string) {
	t.Helper()
	messages := make([]*database.Message, 0, len(ids))
	for i, id := range ids {
		messages = append(messages, &database.Message{
			ID:        id,
			ChannelID: channelID,
			AuthorID:  "u1",
			Timestamp: database.NewUnixTime(dayStart.Add(time.Duration(i+1) * time.Hour)),
			Content:   "content of " + id,
		})
	}
	if err := h.store.SaveMessages(context.Background(), messages); err != nil {
		t.Fatalf("SaveMessages() error = %v", err)
	}
}

func resultFor(t *testing.T, report *Report, scopeID string) ScopeResult {
	t.Helper()
	for _, res := range report.Results {
		if res.ScopeID == scopeID {
			return res
		}
	}
	t.Fatalf("no result for scope %s in %+v", scopeID, report.Results)
	return ScopeResult{}
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "111")
	h.addMessages(t, "111", "m1", "m2", "m3")

	report, err := h.runner.Run(ctx, TriggerCLI)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.State != StateCompleted || h.runner.State() != StateCompleted {
		t.Errorf("state = %s/%s, want completed", report.State, h.runner.State())
	}
	if !report.WindowStart.Equal(dayStart) || !report.WindowEnd.Equal(dayEnd) {
		t.Errorf("window = [%s, %s), want the previous UTC day", report.WindowStart, report.WindowEnd)
	}

	res := resultFor(t, report, "111")
	if res.Status != StatusSucceeded || res.Messages != 3 {
		t.Fatalf("result = %+v, want success over 3 messages", res)
	}

	summary, err := h.store.GetSummaryForWindow(ctx, "111", dayStart, dayEnd)
	if err != nil || summary == nil {
		t.Fatalf("GetSummaryForWindow() = %v, %v, want the stored summary", summary, err)
	}
	if got := strings.Join(summary.SourceMessageIDs, ","); got != "m1,m2,m3" {
		t.Errorf("source ids = %s, want m1,m2,m3", got)
	}
	publication, err := h.store.GetPublication(ctx, summary.ID)
	if err != nil || publication == nil || publication.ChannelID != "111" {
		t.Errorf("GetPublication() = %+v, %v, want a publication in 111", publication, err)
	}

	posted := h.poster.sentTo("111")
	if len(posted) == 0 || !strings.Contains(posted[0], "📨 __3 messages sent__") {
		t.Errorf("posts in 111 = %q, want the summary header", posted)
	}
	if digest := h.poster.sentTo(summaryChannel); len(digest) != 0 {
		t.Errorf("digest posted although disabled: %q", digest)
	}
	if admin := h.poster.sentTo(adminChannel); len(admin) != 1 || !strings.Contains(admin[0], "Succeeded: 1") {
		t.Errorf("admin report = %q", admin)
	}
	if h.runner.LastReport() != report {
		t.Error("LastReport() should return the finished report")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "111")
	h.addMessages(t, "111", "m1", "m2")

	if _, err := h.runner.Run(ctx, TriggerSchedule); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	postsAfterFirst := len(h.poster.sentTo("111"))

	report, err := h.runner.Run(ctx, TriggerHTTP)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	res := resultFor(t, report, "111")
	if res.Status != StatusSkipped || res.Reason != "already published" {
		t.Errorf("second result = %+v, want skipped as already published", res)
	}
	if got := len(h.poster.sentTo("111")); got != postsAfterFirst {
		t.Errorf("posts in 111 = %d after second run, want %d", got, postsAfterFirst)
	}
	if h.summ.callCount() != 1 {
		t.Errorf("summarizer calls = %d, want 1", h.summ.callCount())
	}
}

func TestRunIsolatesScopeFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "111", "222", "333", "444")
	h.addMessages(t, "111", "a1", "a2")
	h.addMessages(t, "222", "b1", "b2")
	h.addMessages(t, "333", "c1", "c2")
	h.summ.fail["222"] = errs.NewSummarizationFailed("chunk 1 of 1", errors.New("quota exceeded"))
	h.poster.setFail("333", true)

	report, err := h.runner.Run(ctx, TriggerCLI)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.State != StateCompleted {
		t.Errorf("state = %s, want completed despite scope failures", report.State)
	}

	testCases := []struct {
		scope  string
		status Status
		kind   string
	}{
		{"111", StatusSucceeded, ""},
		{"222", StatusFailed, errs.KindSummarizationFailed},
		{"333", StatusFailed, errs.KindPublishFailed},
		{"444", StatusSkipped, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.scope, func(t *testing.T) {
			res := resultFor(t, report, tc.scope)
			if res.Status != tc.status || res.ErrorKind != tc.kind {
				t.Errorf("result = %+v, want %s (%s)", res, tc.status, tc.kind)
			}
		})
	}

	if summary, _ := h.store.GetSummaryForWindow(ctx, "222", dayStart, dayEnd); summary != nil {
		t.Error("a failed summarization must not store a summary")
	}
	if summary, _ := h.store.GetSummaryForWindow(ctx, "333", dayStart, dayEnd); summary == nil {
		t.Error("a failed publish should keep the stored summary for recovery")
	}
	if _, skipped, failed := report.Counts(); skipped != 1 || failed != 2 {
		t.Errorf("counts = %d skipped, %d failed, want 1 and 2", skipped, failed)
	}
}

func TestRunRecoversUnpublishedSummary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "111")
	h.addMessages(t, "111", "m1", "m2")
	h.poster.setFail("111", true)

	if _, err := h.runner.Run(ctx, TriggerSchedule); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	pending, err := h.store.GetUnpublishedSummaries(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("GetUnpublishedSummaries() = %d, %v, want 1 pending summary", len(pending), err)
	}

	h.poster.setFail("111", false)
	report, err := h.runner.Run(ctx, TriggerSchedule)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}

	if len(report.Recovered) != 1 || report.Recovered[0].Status != StatusSucceeded || report.Recovered[0].SummaryID != pending[0].ID {
		t.Errorf("recovered = %+v, want summary %d published", report.Recovered, pending[0].ID)
	}
	if res := resultFor(t, report, "111"); res.Status != StatusSkipped {
		t.Errorf("scope result = %+v, want skipped after recovery", res)
	}
	if h.summ.callCount() != 1 {
		t.Errorf("summarizer calls = %d, want 1: recovery must not re-summarize", h.summ.callCount())
	}
	if posted := h.poster.sentTo("111"); len(posted) == 0 {
		t.Error("recovered summary was not posted")
	}
	if pending, _ := h.store.GetUnpublishedSummaries(ctx); len(pending) != 0 {
		t.Errorf("still %d unpublished summaries", len(pending))
	}
}

func TestRunResumesPartialPublication(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "111")
	h.addMessages(t, "111", "m1", "m2")
	h.poster.setFailBodies(true)

	first, err := h.runner.Run(ctx, TriggerSchedule)
	if err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if res := resultFor(t, first, "111"); res.Status != StatusFailed || res.ErrorKind != errs.KindPublishFailed {
		t.Fatalf("first result = %+v, want publish failure", res)
	}
	pending, err := h.store.GetUnpublishedSummaries(ctx)
	if err != nil || len(pending) != 1 {
		t.Fatalf("GetUnpublishedSummaries() = %d, %v, want the partially posted summary", len(pending), err)
	}

	h.poster.setFailBodies(false)
	second, err := h.runner.Run(ctx, TriggerSchedule)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if len(second.Recovered) != 1 || second.Recovered[0].Status != StatusSucceeded {
		t.Errorf("recovered = %+v, want the summary finished", second.Recovered)
	}

	headers, bodies := 0, 0
	for _, content := range h.poster.sentTo("111") {
		switch {
		case strings.HasPrefix(content, "## <#111>"):
			headers++
		case strings.HasPrefix(content, "# 📅 "):
			bodies++
		}
	}
	if headers != 1 || bodies != 1 {
		t.Errorf("posted %d headers and %d bodies, want one of each", headers, bodies)
	}
	if pending, _ := h.store.GetUnpublishedSummaries(ctx); len(pending) != 0 {
		t.Errorf("still %d unpublished summaries", len(pending))
	}
}

func TestRunCancelledMidScope(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "111")
	h.addMessages(t, "111", "m1", "m2")
	h.summ.entered = make(chan struct{}, 1)
	h.summ.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		report *Report
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := h.runner.Run(ctx, TriggerSchedule)
		done <- outcome{report, err}
	}()

	<-h.summ.entered
	cancel()
	got := <-done

	if !errors.Is(got.err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", got.err)
	}
	if got.report == nil || got.report.State != StateFailed || h.runner.State() != StateFailed {
		t.Fatalf("report = %+v, want a failed run", got.report)
	}
	if res := resultFor(t, got.report, "111"); res.Status != StatusFailed {
		t.Errorf("scope result = %+v, want failed", res)
	}

	bg := context.Background()
	if posted := h.poster.sentTo("111"); len(posted) != 0 {
		t.Errorf("posts in 111 = %q, want none after cancellation", posted)
	}
	if summary, _ := h.store.GetSummaryForWindow(bg, "111", dayStart, dayEnd); summary != nil {
		t.Errorf("summary = %+v, want nothing stored for a cancelled scope", summary)
	}
	if pending, _ := h.store.GetUnpublishedSummaries(bg); len(pending) != 0 {
		t.Errorf("%d summaries left to publish, want none", len(pending))
	}

	record, err := h.store.GetRunReport(bg, got.report.RunID)
	if err != nil || record == nil || record.State != string(StateFailed) {
		t.Errorf("GetRunReport() = %+v, %v, want the failed run persisted", record, err)
	}
	if admin := h.poster.sentTo(adminChannel); len(admin) != 1 {
		t.Errorf("admin report posts = %d, want 1", len(admin))
	}
}

func TestRunRejectsConcurrentTrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "111")
	h.addMessages(t, "111", "m1")
	h.summ.entered = make(chan struct{}, 1)
	h.summ.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.runner.Run(ctx, TriggerSchedule)
		done <- err
	}()

	<-h.summ.entered
	if h.runner.State() != StateRunning {
		t.Errorf("State() = %s, want running", h.runner.State())
	}
	if _, err := h.runner.Run(ctx, TriggerHTTP); !errors.Is(err, errs.ErrRunInProgress) {
		t.Errorf("concurrent Run() error = %v, want ErrRunInProgress", err)
	}

	close(h.summ.release)
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if h.runner.State() != StateCompleted {
		t.Errorf("State() = %s, want completed", h.runner.State())
	}
}

func TestRunConfigurationErrors(t *testing.T) {
	t.Parallel()

	t.Run("nothing monitored", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)

		report, err := h.runner.Run(context.Background(), TriggerCLI)
		if !errors.Is(err, errs.ErrConfiguration) {
			t.Fatalf("Run() error = %v, want ErrConfiguration", err)
		}
		if report.State != StateFailed || h.runner.State() != StateFailed {
			t.Errorf("state = %s/%s, want failed", report.State, h.runner.State())
		}
		if len(report.Results) != 0 {
			t.Errorf("results = %+v, want no scope processed", report.Results)
		}
	})

	t.Run("category without target", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, "700")
		h.cfg.Discord.SummaryChannelID = ""
		ctx := context.Background()
		if err := h.store.SaveChannel(ctx, &database.Channel{ID: "700", Name: "projects", Kind: database.ChannelKindCategory}); err != nil {
			t.Fatalf("SaveChannel() error = %v", err)
		}

		if _, err := h.runner.Run(ctx, TriggerCLI); !errors.Is(err, errs.ErrConfiguration) {
			t.Fatalf("Run() error = %v, want ErrConfiguration", err)
		}
		if h.summ.callCount() != 0 {
			t.Error("no scope should be summarized after a configuration error")
		}
	})
}

func TestRunCategoryWithDigest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, "700", "111")
	h.cfg.Pipeline.Digest = true

	for _, ch := range []*database.Channel{
		{ID: "700", Name: "projects", Kind: database.ChannelKindCategory},
		{ID: "701", Name: "alpha", CategoryID: "700", Kind: database.ChannelKindText},
		{ID: "702", Name: "beta", CategoryID: "700", Kind: database.ChannelKindText},
	} {
		if err := h.store.SaveChannel(ctx, ch); err != nil {
			t.Fatalf("SaveChannel() error = %v", err)
		}
	}
	h.addMessages(t, "701", "p1")
	h.addMessages(t, "702", "p2")
	h.addMessages(t, "111", "g1")

	report, err := h.runner.Run(ctx, TriggerCLI)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	res := resultFor(t, report, "700")
	if res.Status != StatusSucceeded || res.Messages != 2 || res.ScopeName != "projects" {
		t.Errorf("category result = %+v, want success over both child channels", res)
	}
	summary, _ := h.store.GetSummaryForWindow(ctx, "700", dayStart, dayEnd)
	if summary == nil || summary.TargetChannelID != summaryChannel {
		t.Errorf("category summary = %+v, want it posted to the summary channel", summary)
	}

	if !report.Digest {
		t.Error("report should record the digest")
	}
	var digest []string
	for _, content := range h.poster.sentTo(summaryChannel) {
		if strings.HasPrefix(content, "# 📅 Daily Summary for Wednesday, May 1, 2024") {
			digest = append(digest, content)
		}
	}
	if len(digest) != 1 || !strings.Contains(digest[0], "News from 111") {
		t.Errorf("digest posts = %q, want one digest with the channel highlights", digest)
	}
}

func TestReportFormat(t *testing.T) {
	t.Parallel()

	report := &Report{
		Trigger:    TriggerSchedule,
		State:      StateCompleted,
		StartedAt:  runAt,
		FinishedAt: runAt.Add(90 * time.Second),
		Results: []ScopeResult{
			{ScopeName: "general", Status: StatusSucceeded},
			{ScopeName: "quiet", Status: StatusSkipped, Reason: "only 2 messages"},
			{ScopeName: "art", Status: StatusFailed, ErrorKind: errs.KindPublishFailed, Error: "post header: boom"},
		},
	}

	text := report.Format()
	for _, want := range []string{
		"✅ **Summary run completed** (schedule, 1m30s)",
		"Succeeded: 1 | Skipped: 1 | Failed: 1",
		"- #quiet skipped: only 2 messages",
		"- #art failed (publish_failed): post header: boom",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Format() missing %q in:\n%s", want, text)
		}
	}
}
