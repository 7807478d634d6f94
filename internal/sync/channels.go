package sync

import "github.com/arenasync/arenasync/internal/store"

// ChannelRef is one channel-membership entry of a document.
type ChannelRef struct {
	Key   string `json:"_key" yaml:"_key" toml:"_key"`
	Slug  string `json:"slug" yaml:"slug" toml:"slug"`
	Title string `json:"title" yaml:"title" toml:"title"`
}

// MergeChannels combines existing membership with membership observed in the
// current pass.
//
// Existing entries keep their position and _key, including entries without
// a slug; observed slugs not yet present are appended in first-observed
// order. Titles of observed entries resolve from titles, then the observed
// title, then the slug. Entries are never removed here; a slug listed twice
// collapses to its first position.
func MergeChannels(existing, observed []ChannelRef, titles map[string]string) []ChannelRef {
	merged := make([]ChannelRef, 0, len(existing)+len(observed))
	index := make(map[string]int, len(existing)+len(observed))

	for _, c := range existing {
		if c.Slug == "" {
			merged = append(merged, c)
			continue
		}
		if i, dup := index[c.Slug]; dup {
			merged[i] = c
			continue
		}
		index[c.Slug] = len(merged)
		merged = append(merged, c)
	}

	for _, c := range observed {
		if c.Slug == "" {
			continue
		}

		title := titles[c.Slug]
		if title == "" {
			title = c.Title
		}
		if title == "" {
			title = c.Slug
		}

		if i, seen := index[c.Slug]; seen {
			merged[i] = ChannelRef{Key: merged[i].Key, Slug: c.Slug, Title: title}
			continue
		}
		index[c.Slug] = len(merged)
		merged = append(merged, ChannelRef{Slug: c.Slug, Title: title})
	}

	return EnsureKeys(merged)
}

// ChannelsEqual reports whether a and b hold the same slugs and titles in the
// same order. Keys are ignored.
func ChannelsEqual(a, b []ChannelRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Slug != b[i].Slug || a[i].Title != b[i].Title {
			return false
		}
	}
	return true
}

// channelsFromDoc decodes the "channels" field. ok is false when the field
// is absent or not a list. Entries that are not objects are not membership
// entries and are skipped.
func channelsFromDoc(doc store.Document) ([]ChannelRef, bool) {
	list, ok := doc["channels"].([]any)
	if !ok {
		return nil, false
	}

	refs := make([]ChannelRef, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		key, _ := m["_key"].(string)
		slug, _ := m["slug"].(string)
		title, _ := m["title"].(string)
		refs = append(refs, ChannelRef{Key: key, Slug: slug, Title: title})
	}
	return refs, true
}

func withoutChannel(refs []ChannelRef, slug string) []ChannelRef {
	out := make([]ChannelRef, 0, len(refs))
	for _, r := range refs {
		if r.Slug != slug {
			out = append(out, r)
		}
	}
	return out
}
