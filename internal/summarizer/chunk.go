package summarizer

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/edgard/summarybot/internal/database"
)

// TokenCounter estimates the prompt size of a text.
type TokenCounter interface {
	Count(text string) int
}

type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.EncodeOrdinary(text))
}

// ApproxCounter estimates one token per four bytes.
type ApproxCounter struct{}

// Count implements TokenCounter.
func (ApproxCounter) Count(text string) int {
	return (len(text) + 3) / 4
}

// NewTokenCounter returns a tiktoken counter for model, falling back to
// cl100k_base for unknown models and to ApproxCounter if no encoding can be loaded.
func NewTokenCounter(model string, logger *slog.Logger) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		if logger != nil {
			logger.Warn("Tokenizer unavailable, estimating token counts from length", "model", model, "error", err)
		}
		return ApproxCounter{}
	}
	return tiktokenCounter{enc: enc}
}

// FormatMessage renders one message as a prompt block.
func FormatMessage(m *database.Message) string {
	var sb strings.Builder
	author := m.AuthorName
	if author == "" {
		author = m.AuthorID
	}
	fmt.Fprintf(&sb, "=== Message from %s ===\n", author)
	fmt.Fprintf(&sb, "Time: %s\n", m.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&sb, "Content: %s\n", m.Content)
	if m.ReactionCount > 0 {
		fmt.Fprintf(&sb, "Reactions: %d\n", m.ReactionCount)
	}
	if len(m.Attachments) > 0 {
		sb.WriteString("Attachments:\n")
		for _, a := range m.Attachments {
			fmt.Fprintf(&sb, "- %s: %s\n", a.Filename, a.URL)
		}
	}
	if m.JumpURL != "" {
		fmt.Fprintf(&sb, "Message link: %s\n", m.JumpURL)
	}
	sb.WriteString("\n")
	return sb.String()
}

// Chunk splits messages into ordered, contiguous chunks whose formatted size stays
// within maxTokens and whose length stays within maxMessages. A single message
// larger than maxTokens forms a chunk of its own. Non-positive limits are ignored.
func Chunk(messages []*database.Message, counter TokenCounter, maxTokens, maxMessages int) [][]*database.Message {
	if len(messages) == 0 {
		return nil
	}
	if counter == nil {
		counter = ApproxCounter{}
	}

	var (
		chunks  [][]*database.Message
		current []*database.Message
		tokens  int
	)
	for _, m := range messages {
		size := counter.Count(FormatMessage(m))
		overTokens := maxTokens > 0 && tokens+size > maxTokens
		overCount := maxMessages > 0 && len(current) >= maxMessages
		if len(current) > 0 && (overTokens || overCount) {
			chunks = append(chunks, current)
			current, tokens = nil, 0
		}
		current = append(current, m)
		tokens += size
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
