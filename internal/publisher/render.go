package publisher

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/edgard/summarybot/internal/database"
	"github.com/edgard/summarybot/internal/summarizer"
)

// Rendered is a summary laid out as Discord messages.
type Rendered struct {
	Header string
	Body   []string
	// Media are posted after Body, one upload per message.
	Media []MediaPost
	Empty bool
}

// MediaPost is a popular attachment with the line crediting its author.
type MediaPost struct {
	Content    string
	Attachment database.Attachment
}

const mediaHeading = "# 📎 Other Popular Attachments"

// Render lays out a stored summary. The header carries the short summary and
// the body one block per news item; every message fits within maxLen.
func Render(summary *database.Summary, scopeName string, maxLen int) Rendered {
	if maxLen <= 0 {
		maxLen = 2000
	}
	date := summary.WindowStart.UTC().Format("Monday, January 2, 2006")

	items := summarizer.ParseItems(summary.GeneratedText)
	if len(items) == 0 {
		return Rendered{Empty: true}
	}

	short := strings.TrimSpace(summary.ShortText)
	if short == "" {
		short = summarizer.FallbackShort(items, summary.MessageCount)
	}
	header := fmt.Sprintf("## %s | %s\n%s", scopeMention(summary.ScopeID, scopeName), date, short)

	blocks := make([]string, 0, len(items)+1)
	blocks = append(blocks, fmt.Sprintf("# 📅 %s", date))
	for i, item := range items {
		block := renderItem(item)
		if i > 0 {
			block = "---\n" + block
		}
		blocks = append(blocks, block)
	}

	media := renderMedia(summary.Media, maxLen)
	if len(media) > 0 {
		blocks = append(blocks, "---\n"+mediaHeading)
	}

	return Rendered{
		Header: truncate(header, maxLen),
		Body:   pack(blocks, maxLen),
		Media:  media,
	}
}

func renderMedia(media database.Medias, maxLen int) []MediaPost {
	posts := make([]MediaPost, 0, len(media))
	for _, m := range media {
		if m.Attachment.URL == "" {
			continue
		}
		content := fmt.Sprintf("By **%s**: %s (🔥 %d reactions)", m.AuthorName, m.JumpURL, m.Reactions)
		posts = append(posts, MediaPost{Content: truncate(content, maxLen), Attachment: m.Attachment})
	}
	return posts
}

func scopeMention(scopeID, scopeName string) string {
	if scopeID != "" {
		return "<#" + scopeID + ">"
	}
	return "#" + scopeName
}

func renderItem(item summarizer.NewsItem) string {
	var sb strings.Builder
	if title := strings.TrimSpace(item.Title); title != "" {
		fmt.Fprintf(&sb, "## %s\n", title)
	}
	if text := strings.TrimSpace(item.MainText); text != "" {
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	for _, file := range item.Files() {
		sb.WriteString(file)
		sb.WriteString("\n")
	}
	if link := item.Link(); link != "" {
		fmt.Fprintf(&sb, "🔗 %s\n", link)
	}
	for _, sub := range item.SubTopics {
		text := strings.TrimSpace(sub.Text)
		if text == "" {
			continue
		}
		if link := sub.Link(); link != "" {
			text += " " + link
		}
		fmt.Fprintf(&sb, "- %s\n", text)
		for _, file := range sub.Files() {
			fmt.Fprintf(&sb, "  %s\n", file)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// pack groups blocks into as few messages as possible without splitting a block
// that fits in a message of its own. Oversized blocks are split on line boundaries.
func pack(blocks []string, maxLen int) []string {
	var (
		out     []string
		current string
	)
	flush := func() {
		if current != "" {
			out = append(out, current)
			current = ""
		}
	}
	add := func(piece string) {
		switch {
		case current == "":
			current = piece
		case len(current)+1+len(piece) <= maxLen:
			current += "\n" + piece
		default:
			flush()
			current = piece
		}
	}

	for _, block := range blocks {
		if block == "" {
			continue
		}
		if len(block) <= maxLen {
			add(block)
			continue
		}
		flush()
		for _, line := range strings.Split(block, "\n") {
			for _, piece := range splitLine(line, maxLen) {
				add(piece)
			}
		}
		flush()
	}
	flush()
	return out
}

// splitLine cuts a line longer than maxLen bytes at rune boundaries.
func splitLine(line string, maxLen int) []string {
	if len(line) <= maxLen {
		return []string{line}
	}
	var pieces []string
	for len(line) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}
		pieces = append(pieces, line[:cut])
		line = line[cut:]
	}
	if line != "" {
		pieces = append(pieces, line)
	}
	return pieces
}

func truncate(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	return splitLine(text, maxLen-len("…"))[0] + "…"
}

// RenderDigest lays out the daily digest under a date heading.
func RenderDigest(date time.Time, items []summarizer.NewsItem, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 2000
	}
	blocks := make([]string, 0, len(items)+1)
	blocks = append(blocks, "# 📅 Daily Summary for "+date.UTC().Format("Monday, January 2, 2006"))
	for _, item := range items {
		blocks = append(blocks, renderItem(item))
	}
	return pack(blocks, maxLen)
}
