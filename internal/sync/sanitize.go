package sync

import (
	"strings"

	"github.com/google/uuid"

	"github.com/arenasync/arenasync/internal/arena"
)

// SanitizeForStorage rewrites every mapping key so it only contains
// [A-Za-z0-9_-]; other characters become '_'. Nested mappings and
// sequences are rewritten recursively, scalars pass through.
func SanitizeForStorage(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[sanitizeKey(k)] = SanitizeForStorage(val)
		}
		return out
	case arena.Block:
		return SanitizeForStorage(map[string]any(x))
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = SanitizeForStorage(val)
		}
		return out
	default:
		return v
	}
}

func sanitizeKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, k)
}

// PruneRaw returns a shallow copy of b without the volatile metadata and
// embed fields.
func PruneRaw(b arena.Block) arena.Block {
	out := make(arena.Block, len(b))
	for k, v := range b {
		if k == "metadata" || k == "embed" {
			continue
		}
		out[k] = v
	}
	return out
}

// EnsureKeys returns refs with a fresh random _key on every entry that has
// none. Entries that already carry a key are unchanged.
func EnsureKeys(refs []ChannelRef) []ChannelRef {
	out := make([]ChannelRef, len(refs))
	for i, r := range refs {
		if r.Key == "" {
			r.Key = uuid.NewString()
		}
		out[i] = r
	}
	return out
}
