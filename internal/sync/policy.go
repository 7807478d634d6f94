package sync

import (
	"fmt"
	"strings"

	"github.com/arenasync/arenasync/internal/store"
)

// ImageUploadMode controls when block images are copied into the store.
type ImageUploadMode string

const (
	// ImageUploadOff never uploads.
	ImageUploadOff ImageUploadMode = "off"
	// ImageUploadAuto uploads when the document has no main image yet and
	// the image signature changed.
	ImageUploadAuto ImageUploadMode = "auto"
	// ImageUploadOn uploads whenever the image signature changed.
	ImageUploadOn ImageUploadMode = "on"
)

// ParseImageUploadMode parses "off", "auto" or "on". Empty means auto.
func ParseImageUploadMode(s string) (ImageUploadMode, error) {
	switch m := ImageUploadMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ImageUploadAuto, nil
	case ImageUploadOff, ImageUploadAuto, ImageUploadOn:
		return m, nil
	default:
		return "", fmt.Errorf("invalid image upload mode %q (want off, auto or on)", s)
	}
}

// ShouldUploadImage applies the upload mode. existing may be nil.
func ShouldUploadImage(mode ImageUploadMode, existing store.Document, signatureChanged bool) bool {
	switch mode {
	case ImageUploadOff:
		return false
	case ImageUploadOn:
		return signatureChanged
	default:
		return !existing.Has("mainImage") && signatureChanged
	}
}

// Field owners.
const (
	OwnerStudio = "studio"
	OwnerArena  = "arena"
)

// DocumentType is the _type of synced documents.
const DocumentType = "areNaBlock"

// SyncActor is written to lastSyncedBy.
const SyncActor = "arena-sync"

// ownedFields are the fields the engine may write on a full sync.
// mainImage is added only when an upload produced it.
var ownedFields = map[string]bool{
	"arenaId":               true,
	"arenaBlockUrl":         true,
	"blockType":             true,
	"description":           true,
	"contentHtml":           true,
	"sourceUrl":             true,
	"sourceTitle":           true,
	"sourceProviderName":    true,
	"arenaCreatedAt":        true,
	"arenaUpdatedAt":        true,
	"rawArenaData":          true,
	"externalImageUrl":      true,
	"externalImageThumbUrl": true,
	"channels":              true,
	"arenaImageSignature":   true,
	"arenaFingerprint":      true,
	"isOrphan":              true,
	"lastSyncedAt":          true,
	"lastSyncedBy":          true,
}

// DefaultSyncPolicy is written on create and set-if-missing on update.
func DefaultSyncPolicy() map[string]any {
	return map[string]any{
		"owner": map[string]any{
			"title":       OwnerStudio,
			"sourceTitle": OwnerArena,
			"mainImage":   OwnerArena,
			"channels":    OwnerArena,
		},
	}
}

// DocumentID is the store id for a block id.
func DocumentID(blockID string) string {
	return "arenaBlock-" + blockID
}

func ownerOf(doc store.Document, field string) string {
	return doc.String("syncPolicy.owner." + field)
}

func studioOwned(doc store.Document, field string) bool {
	return ownerOf(doc, field) == OwnerStudio
}

func isLocked(doc store.Document) bool {
	return doc.Bool("lockAll")
}

// allowImageUpdate reports whether mainImage may be written. New documents
// always allow it.
func allowImageUpdate(existing store.Document) bool {
	if existing == nil {
		return true
	}
	return !existing.Bool("lockAll") && !existing.Bool("lockImage") && !studioOwned(existing, "mainImage")
}

// filterOwned keeps the fields the engine may write to existing, dropping any
// field the document's owner map assigns to studio.
func filterOwned(fields map[string]any, existing store.Document) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if !ownedFields[k] && k != "mainImage" {
			continue
		}
		if existing != nil && studioOwned(existing, k) {
			continue
		}
		out[k] = v
	}
	return out
}
