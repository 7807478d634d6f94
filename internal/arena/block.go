// Package arena models Are.na channel content and provides an HTTP client
// for the paged channel API.
package arena

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Block is one item of a channel as returned by the remote API.
//
// The upstream payload is not contractually fixed, so a Block keeps the raw
// key/value structure and exposes the recognised fields through safe path
// lookups. A missing or mistyped field reads as its zero value.
type Block map[string]any

// ID returns the block identifier rendered as a string. ok is false when the
// block carries no usable id. Numeric ids are rendered without a fraction.
func (b Block) ID() (string, bool) {
	switch v := b["id"].(type) {
	case string:
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), v.String() != ""
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	default:
		return "", false
	}
}

// RawID returns the id exactly as carried by the payload.
func (b Block) RawID() any { return b["id"] }

func (b Block) Class() string           { return b.String("class") }
func (b Block) Title() string           { return b.String("title") }
func (b Block) GeneratedTitle() string  { return b.String("generated_title") }
func (b Block) DescriptionHTML() string { return b.String("description_html") }
func (b Block) ContentHTML() string     { return b.String("content_html") }
func (b Block) CreatedAt() string       { return b.String("created_at") }
func (b Block) UpdatedAt() string       { return b.String("updated_at") }

func (b Block) SourceURL() string          { return b.String("source", "url") }
func (b Block) SourceTitle() string        { return b.String("source", "title") }
func (b Block) SourceProviderName() string { return b.String("source", "provider", "name") }
func (b Block) HasSource() bool            { return b.Map("source") != nil }

func (b Block) ImageOriginalURL() string { return b.String("image", "original", "url") }
func (b Block) ImageDisplayURL() string  { return b.String("image", "display", "url") }
func (b Block) ImageThumbURL() string    { return b.String("image", "thumb", "url") }
func (b Block) ImageContentType() string { return b.String("image", "content_type") }
func (b Block) ImageFilename() string    { return b.String("image", "filename") }
func (b Block) HasOriginalImage() bool   { return b.Map("image", "original") != nil }

// ImageFileSize returns image.original.file_size, or nil when absent.
func (b Block) ImageFileSize() any { return b.Lookup("image", "original", "file_size") }

// Lookup walks nested maps along path and returns the value found, or nil.
func (b Block) Lookup(path ...string) any {
	var cur any = map[string]any(b)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}
	return cur
}

// String returns the string at path, or "" when absent or not a string.
func (b Block) String(path ...string) string {
	s, _ := b.Lookup(path...).(string)
	return s
}

// Map returns the object at path, or nil.
func (b Block) Map(path ...string) map[string]any {
	m, _ := b.Lookup(path...).(map[string]any)
	return m
}

// FormatScalar renders a JSON scalar (file sizes, ids) for signatures.
func FormatScalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
