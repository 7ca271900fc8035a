package summarizer

import (
	"fmt"
	"strings"
)

// chunkBudget splits MaxChunkTokens between the instructions, the items found
// in earlier chunks and the messages of a chunk. Zero fields mean no limit.
type chunkBudget struct {
	messages int
	previous int
	prior    string
}

func newChunkBudget(counter TokenCounter, maxTokens int, priorText string) chunkBudget {
	if maxTokens <= 0 {
		return chunkBudget{prior: priorText}
	}
	if counter == nil {
		counter = ApproxCounter{}
	}

	b := chunkBudget{
		previous: maxTokens / 4,
		prior:    trimLines(counter, priorText, maxTokens/8),
	}
	overhead := counter.Count(SystemInstruction) + counter.Count(buildChunkPrompt(nil, nil, b.prior))
	b.messages = max(maxTokens-overhead-b.previous, maxTokens/4)
	return b
}

// recentItems keeps the latest items whose prompt section fits in budget tokens.
func recentItems(counter TokenCounter, items []NewsItem, budget int) []NewsItem {
	if budget <= 0 || len(items) == 0 {
		return items
	}
	if counter == nil {
		counter = ApproxCounter{}
	}
	for start := range items {
		encoded, err := EncodeItems(items[start:])
		if err != nil {
			return nil
		}
		if counter.Count(fmt.Sprintf(previousItemsPreamble, encoded)) <= budget {
			return items[start:]
		}
	}
	return nil
}

// trimLines drops trailing lines of text until it fits in budget tokens.
func trimLines(counter TokenCounter, text string, budget int) string {
	if budget <= 0 || counter.Count(text) <= budget {
		return text
	}
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && counter.Count(strings.Join(lines, "\n")) > budget {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
