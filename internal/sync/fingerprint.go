package sync

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/arenasync/arenasync/internal/arena"
)

const fingerprintDomain = "arena-sync/fingerprint/v1\x00"

type fingerprintSource struct {
	URL   any `json:"url"`
	Title any `json:"title"`
}

type fingerprintImage struct {
	URL  any `json:"url"`
	Size any `json:"size"`
}

// fingerprintCore is the projection of a block that change detection
// tracks. Field order is fixed by the struct, so encoding is deterministic.
type fingerprintCore struct {
	ID              any                `json:"id"`
	Title           any                `json:"title"`
	Class           any                `json:"class"`
	UpdatedAt       any                `json:"updated_at"`
	DescriptionHTML any                `json:"description_html"`
	Source          *fingerprintSource `json:"source"`
	Image           *fingerprintImage  `json:"image"`
}

// ComputeFingerprint hashes the tracked fields of b. ok is false when the
// projection cannot be encoded.
func ComputeFingerprint(b arena.Block) (string, bool) {
	core := fingerprintCore{
		ID:              b["id"],
		Title:           b["title"],
		Class:           b["class"],
		UpdatedAt:       b["updated_at"],
		DescriptionHTML: b["description_html"],
	}
	if src := b.Map("source"); src != nil {
		core.Source = &fingerprintSource{URL: src["url"], Title: src["title"]}
	}
	if orig := b.Map("image", "original"); orig != nil {
		core.Image = &fingerprintImage{URL: orig["url"], Size: orig["file_size"]}
	}

	data, err := json.Marshal(core)
	if err != nil {
		return "", false
	}

	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)[:16]), true
}

// BuildImageSignature returns "<original url>|<file size>" for blocks with an
// original image, and ok=false otherwise. A zero or missing size renders
// empty.
func BuildImageSignature(b arena.Block) (string, bool) {
	url := b.ImageOriginalURL()
	if url == "" {
		return "", false
	}
	size := b.ImageFileSize()
	if f, isNum := size.(float64); isNum && f == 0 {
		size = nil
	}
	return url + "|" + arena.FormatScalar(size), true
}
