package summarizer

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NewsItem is one topic of a summary.
type NewsItem struct {
	Title       string     `json:"title"`
	MainText    string     `json:"mainText"`
	MainFile    string     `json:"mainFile,omitempty"`
	MessageLink string     `json:"messageLink,omitempty"`
	SubTopics   []SubTopic `json:"subTopics,omitempty"`
}

// SubTopic is a related detail of a NewsItem.
type SubTopic struct {
	Text        string `json:"text"`
	File        string `json:"file,omitempty"`
	MessageLink string `json:"messageLink,omitempty"`
}

// Key identifies an item across chunk, reduce and digest outputs.
func (n NewsItem) Key() string {
	if link := cleanRef(n.MessageLink); link != "" {
		return "link:" + link
	}
	if title := strings.ToLower(strings.TrimSpace(n.Title)); title != "" {
		return "title:" + title
	}
	return "text:" + strings.ToLower(strings.TrimSpace(n.MainText))
}

// Files splits MainFile into its URLs.
func (n NewsItem) Files() []string {
	return splitRefs(n.MainFile)
}

// Files splits File into its URLs.
func (s SubTopic) Files() []string {
	return splitRefs(s.File)
}

// Link returns the message link, or empty when the model left a placeholder.
func (n NewsItem) Link() string {
	return cleanRef(n.MessageLink)
}

// Link returns the message link, or empty when the model left a placeholder.
func (s SubTopic) Link() string {
	return cleanRef(s.MessageLink)
}

func cleanRef(ref string) string {
	ref = strings.TrimSpace(ref)
	switch strings.ToLower(ref) {
	case "", "null", "none", "unknown", "n/a":
		return ""
	}
	return ref
}

func splitRefs(refs string) []string {
	var out []string
	for _, ref := range strings.Split(refs, ",") {
		if ref = cleanRef(ref); ref != "" {
			out = append(out, ref)
		}
	}
	return out
}

// IsEmptyAnswer reports whether text is one of the "nothing to report" markers.
func IsEmptyAnswer(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	for _, marker := range emptyMarkers {
		if strings.HasPrefix(text, marker) {
			return true
		}
	}
	return false
}

// ParseItems decodes a model answer. It returns no items for an empty-marker
// answer or an empty array. JSON wrapped in markdown fences or surrounded by
// prose is accepted; any other text becomes a single untitled item.
func ParseItems(text string) []NewsItem {
	if IsEmptyAnswer(text) {
		return nil
	}
	text = stripFences(text)

	if idx := strings.Index(text, "["); idx != -1 {
		var items []NewsItem
		if err := json.NewDecoder(strings.NewReader(text[idx:])).Decode(&items); err == nil {
			return compact(items)
		}
	}
	if idx := strings.Index(text, "{"); idx != -1 {
		var wrapped struct {
			Items []NewsItem `json:"items"`
		}
		if err := json.NewDecoder(strings.NewReader(text[idx:])).Decode(&wrapped); err == nil && wrapped.Items != nil {
			return compact(wrapped.Items)
		}
	}

	return []NewsItem{{MainText: strings.TrimSpace(text)}}
}

// EncodeItems returns the canonical JSON form stored as a summary's text.
func EncodeItems(items []NewsItem) (string, error) {
	if len(items) == 0 {
		return NoNewsMarker, nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to encode news items: %w", err)
	}
	return string(b), nil
}

// Dedupe drops items whose key was already seen, keeping the first occurrence.
func Dedupe(items []NewsItem) []NewsItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]NewsItem, 0, len(items))
	for _, item := range items {
		key := item.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

// EnsureCoverage makes every non-empty chunk visible in merged: a chunk none of
// whose items survived the reduce contributes its first item.
func EnsureCoverage(merged []NewsItem, chunks [][]NewsItem) []NewsItem {
	present := make(map[string]struct{}, len(merged))
	for _, item := range merged {
		present[item.Key()] = struct{}{}
	}

	out := append([]NewsItem(nil), merged...)
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		covered := false
		for _, item := range chunk {
			if _, ok := present[item.Key()]; ok {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, chunk[0])
			present[chunk[0].Key()] = struct{}{}
		}
	}
	return out
}

func compact(items []NewsItem) []NewsItem {
	out := make([]NewsItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Title) == "" && strings.TrimSpace(item.MainText) == "" {
			continue
		}
		out = append(out, item)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl != -1 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
