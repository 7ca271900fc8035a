package summarizer

import (
	"cmp"
	"slices"
	"strings"

	"github.com/edgard/summarybot/internal/database"
)

// PopularMedia picks the attachments of messages with at least minReactions
// reactions that the items neither link to nor show, most reacted first and at
// most limit of them. A message's attachments stay in posting order.
func PopularMedia(messages []*database.Message, items []NewsItem, minReactions, limit int) database.Medias {
	if limit <= 0 {
		return nil
	}
	used := usedRefs(items)

	var media database.Medias
	seen := make(map[string]struct{})
	for _, m := range messages {
		if m.ReactionCount < minReactions || len(m.Attachments) == 0 {
			continue
		}
		if _, ok := used[refKey(m.JumpURL)]; ok {
			continue
		}
		for _, a := range m.Attachments {
			key := refKey(a.URL)
			if key == "" {
				continue
			}
			if _, ok := used[key]; ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			media = append(media, database.Media{
				MessageID:  m.ID,
				AuthorName: m.AuthorName,
				JumpURL:    m.JumpURL,
				Reactions:  m.ReactionCount,
				Attachment: a,
			})
		}
	}

	slices.SortStableFunc(media, func(a, b database.Media) int {
		return cmp.Compare(b.Reactions, a.Reactions)
	})
	if len(media) > limit {
		media = media[:limit]
	}
	return media
}

// usedRefs collects the message links and file URLs the items already show.
func usedRefs(items []NewsItem) map[string]struct{} {
	used := make(map[string]struct{})
	add := func(refs ...string) {
		for _, ref := range refs {
			if key := refKey(ref); key != "" {
				used[key] = struct{}{}
			}
		}
	}
	for _, item := range items {
		add(item.Link())
		add(item.Files()...)
		for _, sub := range item.SubTopics {
			add(sub.Link())
			add(sub.Files()...)
		}
	}
	return used
}

// refKey drops the query of a URL; CDN links carry expiring signatures.
func refKey(ref string) string {
	ref = strings.TrimSpace(ref)
	if idx := strings.IndexByte(ref, '?'); idx != -1 {
		ref = ref[:idx]
	}
	return ref
}
