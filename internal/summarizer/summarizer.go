// Package summarizer turns a window of messages into news items with an LLM.
// Oversized windows are summarized chunk by chunk and merged in a reduce pass.
package summarizer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/edgard/summarybot/internal/config"
	"github.com/edgard/summarybot/internal/database"
	errs "github.com/edgard/summarybot/internal/errors"
	"github.com/edgard/summarybot/internal/llm"
)

// Options tunes the token budget and retry policy.
type Options struct {
	// MaxChunkTokens bounds every prompt sent for a window, instructions included.
	MaxChunkTokens   int
	MaxChunkMessages int
	MaxRetries       int
	RetryDelay       time.Duration
	ShortModel       string
	Counter          TokenCounter
	// MediaMinReactions and MaxMedia select the popular attachments shown
	// after the news items. MaxMedia 0 disables the section.
	MediaMinReactions int
	MaxMedia          int
}

// OptionsFromConfig builds Options from the llm and pipeline sections, loading
// the tokenizer for the model.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		MaxChunkTokens:    cfg.LLM.MaxChunkTokens,
		MaxChunkMessages:  cfg.LLM.MaxChunkMessages,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelay:        cfg.LLM.RetryDelay,
		ShortModel:        cfg.LLM.ShortModel,
		Counter:           NewTokenCounter(cfg.LLM.Model, logger),
		MediaMinReactions: cfg.Pipeline.MediaMinReactions,
		MaxMedia:          cfg.Pipeline.MaxMedia,
	}
}

// Result is the outcome of summarizing one window.
type Result struct {
	Items            []NewsItem
	Text             string
	Short            string
	Empty            bool
	Chunks           int
	MessageCount     int
	SourceMessageIDs []string
	Media            database.Medias
}

// Section is one scope's items offered to the daily digest.
type Section struct {
	ScopeName string
	Items     []NewsItem
}

// Summarizer produces summaries through an llm.Client.
type Summarizer struct {
	client llm.Client
	opts   Options
	logger *slog.Logger
}

// New creates a Summarizer.
func New(client llm.Client, opts Options, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Counter == nil {
		opts.Counter = ApproxCounter{}
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Summarizer{
		client: client,
		opts:   opts,
		logger: logger.With("component", "summarizer"),
	}
}

// Summarize summarizes chronologically ordered messages. prior, when set, is the
// scope's previous summary and is given to the model for continuity.
// Any call that still fails after retries yields ErrSummarizationFailed and no result.
func (s *Summarizer) Summarize(ctx context.Context, messages []*database.Message, prior *database.Summary) (*Result, error) {
	result := &Result{MessageCount: len(messages), SourceMessageIDs: sourceIDs(messages)}
	if len(messages) == 0 {
		result.Empty = true
		result.Text = NoNewsMarker
		return result, nil
	}

	startTime := time.Now()
	priorText := ""
	if prior != nil {
		priorText = priorDigest(prior.GeneratedText)
	}
	budget := newChunkBudget(s.opts.Counter, s.opts.MaxChunkTokens, priorText)

	chunks := Chunk(messages, s.opts.Counter, budget.messages, s.opts.MaxChunkMessages)
	result.Chunks = len(chunks)

	var (
		chunkItems [][]NewsItem
		previous   []NewsItem
	)
	for i, chunk := range chunks {
		prompt := buildChunkPrompt(chunk, recentItems(s.opts.Counter, previous, budget.previous), budget.prior)
		text, err := s.complete(ctx, llm.Request{System: SystemInstruction, Prompt: prompt, JSON: true})
		if err != nil {
			return nil, errs.NewSummarizationFailed(fmt.Sprintf("chunk %d of %d", i+1, len(chunks)), err)
		}

		items := ParseItems(text)
		s.logger.DebugContext(ctx, "Chunk summarized", "chunk", i+1, "of", len(chunks), "messages", len(chunk), "items", len(items))
		chunkItems = append(chunkItems, items)
		previous = append(previous, items...)
	}

	items, err := s.reduce(ctx, chunkItems)
	if err != nil {
		return nil, err
	}
	items = Dedupe(items)

	if len(items) == 0 {
		result.Empty = true
		result.Text = NoNewsMarker
		s.logger.InfoContext(ctx, "No significant news in window", "messages", len(messages), "chunks", len(chunks))
		return result, nil
	}

	result.Items = items
	result.Media = PopularMedia(messages, items, s.opts.MediaMinReactions, s.opts.MaxMedia)
	if result.Text, err = EncodeItems(items); err != nil {
		return nil, errs.NewSummarizationFailed("encode items", err)
	}
	result.Short = s.ShortSummary(ctx, items, len(messages))

	s.logger.InfoContext(ctx, "Window summarized",
		"messages", len(messages),
		"chunks", len(chunks),
		"items", len(items),
		"media", len(result.Media),
		"duration_ms", time.Since(startTime).Milliseconds())
	return result, nil
}

// reduce merges the chunk item lists. A single non-empty chunk is returned as is;
// otherwise the model merges them and every non-empty chunk is kept represented.
// When the lists do not fit in one prompt they are merged in batches, and the
// batch results are merged again until one list is left.
func (s *Summarizer) reduce(ctx context.Context, chunkItems [][]NewsItem) ([]NewsItem, error) {
	var lists []reduceInput
	for _, items := range chunkItems {
		if len(items) == 0 {
			continue
		}
		encoded, err := EncodeItems(items)
		if err != nil {
			return nil, errs.NewSummarizationFailed("encode chunk items", err)
		}
		lists = append(lists, reduceInput{items: items, encoded: encoded})
	}

	for stage := 1; ; stage++ {
		switch len(lists) {
		case 0:
			return nil, nil
		case 1:
			return lists[0].items, nil
		}

		batches := s.reduceBatches(lists)
		if len(batches) > 1 {
			s.logger.DebugContext(ctx, "Reducing in batches", "stage", stage, "lists", len(lists), "batches", len(batches))
		}

		next := make([]reduceInput, 0, len(batches))
		for _, batch := range batches {
			if len(batch) == 1 {
				next = append(next, batch[0])
				continue
			}
			merged, err := s.mergeBatch(ctx, batch)
			if err != nil {
				return nil, err
			}
			encoded, err := EncodeItems(merged)
			if err != nil {
				return nil, errs.NewSummarizationFailed("encode merged items", err)
			}
			next = append(next, reduceInput{items: merged, encoded: encoded})
		}
		lists = next
	}
}

type reduceInput struct {
	items   []NewsItem
	encoded string
}

// reduceBatches groups consecutive lists into prompts that fit MaxChunkTokens.
// Every batch but a lone last one holds at least two lists so each stage shrinks.
func (s *Summarizer) reduceBatches(lists []reduceInput) [][]reduceInput {
	limit := s.opts.MaxChunkTokens
	if limit <= 0 {
		return [][]reduceInput{lists}
	}
	overhead := s.opts.Counter.Count(SystemInstruction) + s.opts.Counter.Count(fmt.Sprintf(reducePrompt, ""))

	var (
		batches [][]reduceInput
		current []reduceInput
		tokens  int
	)
	for _, list := range lists {
		size := s.opts.Counter.Count(fmt.Sprintf(reducePart, len(current)+1, list.encoded))
		if len(current) >= 2 && overhead+tokens+size > limit {
			batches = append(batches, current)
			current, tokens = nil, 0
			size = s.opts.Counter.Count(fmt.Sprintf(reducePart, 1, list.encoded))
		}
		current = append(current, list)
		tokens += size
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (s *Summarizer) mergeBatch(ctx context.Context, batch []reduceInput) ([]NewsItem, error) {
	var sb strings.Builder
	parts := make([][]NewsItem, 0, len(batch))
	for i, list := range batch {
		fmt.Fprintf(&sb, reducePart, i+1, list.encoded)
		parts = append(parts, list.items)
	}

	text, err := s.complete(ctx, llm.Request{
		System: SystemInstruction,
		Prompt: fmt.Sprintf(reducePrompt, sb.String()),
		JSON:   true,
	})
	if err != nil {
		return nil, errs.NewSummarizationFailed("reduce pass", err)
	}

	merged := ParseItems(text)
	covered := EnsureCoverage(merged, parts)
	if added := len(covered) - len(merged); added > 0 {
		s.logger.WarnContext(ctx, "Reduce pass dropped chunks, restored their first items", "restored", added)
	}
	return covered, nil
}

// ShortSummary returns the header text of a summary. It never fails: when the
// model cannot produce it a deterministic line built from the item titles is used.
func (s *Summarizer) ShortSummary(ctx context.Context, items []NewsItem, messageCount int) string {
	countLine := fmt.Sprintf(shortCountLine, messageCount)
	if len(items) == 0 {
		return countLine
	}

	encoded, err := EncodeItems(items)
	if err == nil {
		var text string
		text, err = s.complete(ctx, llm.Request{
			System: SystemInstruction,
			Prompt: fmt.Sprintf(shortPrompt, countLine, encoded),
			Model:  s.opts.ShortModel,
		})
		if err == nil && !IsEmptyAnswer(text) {
			return normalizeShort(text, countLine)
		}
	}
	if err != nil {
		s.logger.WarnContext(ctx, "Short summary failed, using fallback", "error", err)
	}
	return FallbackShort(items, messageCount)
}

// FallbackShort lists up to three item titles under the message count line.
func FallbackShort(items []NewsItem, messageCount int) string {
	lines := []string{fmt.Sprintf(shortCountLine, messageCount)}
	for _, item := range items {
		if len(lines) == 4 {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = firstLine(item.MainText)
		}
		if title != "" {
			lines = append(lines, "• "+title)
		}
	}
	return strings.Join(lines, "\n")
}

// Combine picks the day's highlights across scopes. It returns no items when
// there is nothing to report.
func (s *Summarizer) Combine(ctx context.Context, sections []Section) ([]NewsItem, error) {
	var sb strings.Builder
	for _, section := range sections {
		if len(section.Items) == 0 {
			continue
		}
		encoded, err := EncodeItems(section.Items)
		if err != nil {
			return nil, errs.NewSummarizationFailed("encode digest section", err)
		}
		fmt.Fprintf(&sb, "Channel #%s:\n%s\n\n", section.ScopeName, encoded)
	}
	if sb.Len() == 0 {
		return nil, nil
	}

	text, err := s.complete(ctx, llm.Request{
		System: SystemInstruction,
		Prompt: fmt.Sprintf(digestPrompt, sb.String()),
		JSON:   true,
	})
	if err != nil {
		return nil, errs.NewSummarizationFailed("daily digest", err)
	}
	return Dedupe(ParseItems(text)), nil
}

// complete calls the model with bounded exponential backoff. Errors that cannot
// succeed on repetition stop the retries early.
func (s *Summarizer) complete(ctx context.Context, req llm.Request) (string, error) {
	attempts := uint(s.opts.MaxRetries + 1)
	return retry.DoWithData(
		func() (string, error) {
			text, err := s.client.Complete(ctx, req)
			if err != nil && !llm.IsRetryable(err) {
				return "", retry.Unrecoverable(err)
			}
			return text, err
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(s.opts.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.logger.WarnContext(ctx, "LLM call failed", "attempt", n+1, "max_attempts", attempts, "error", err)
		}),
	)
}

func buildChunkPrompt(chunk []*database.Message, previous []NewsItem, priorText string) string {
	var sb strings.Builder
	if priorText != "" {
		fmt.Fprintf(&sb, priorSummaryPreamble, priorText)
	}
	if len(previous) > 0 {
		if encoded, err := EncodeItems(previous); err == nil {
			fmt.Fprintf(&sb, previousItemsPreamble, encoded)
		}
	}
	sb.WriteString(newsPromptHeader)
	for _, m := range chunk {
		sb.WriteString(FormatMessage(m))
	}
	sb.WriteString(newsPromptFooter)
	return sb.String()
}

// priorDigest reduces a stored summary to its titles.
func priorDigest(generated string) string {
	items := ParseItems(generated)
	if len(items) == 0 {
		return ""
	}
	lines := make([]string, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = firstLine(item.MainText)
		}
		lines = append(lines, "- "+title)
	}
	return strings.Join(lines, "\n")
}

func normalizeShort(text, countLine string) string {
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))
	lines := strings.Split(text, "\n")
	if strings.TrimSpace(lines[0]) == countLine {
		lines = lines[1:]
	}

	out := []string{countLine}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
			line = "• " + line[2:]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if idx := strings.IndexByte(text, '\n'); idx != -1 {
		text = text[:idx]
	}
	return text
}

func sourceIDs(messages []*database.Message) []string {
	seen := make(map[string]struct{}, len(messages))
	ids := make([]string, 0, len(messages))
	for _, m := range messages {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	return ids
}
