package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Document is a stored JSON document. Every document carries "_id" and
// "_type"; all other fields are free-form.
type Document map[string]any

// ID returns the document's "_id".
func (d Document) ID() string {
	s, _ := d["_id"].(string)
	return s
}

// Type returns the document's "_type".
func (d Document) Type() string {
	s, _ := d["_type"].(string)
	return s
}

// Lookup returns the value at a dotted path ("syncPolicy.owner.title"), or
// nil when any segment is missing.
func (d Document) Lookup(path string) any {
	var cur any = map[string]any(d)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// String returns the string at path, or "".
func (d Document) String(path string) string {
	s, _ := d.Lookup(path).(string)
	return s
}

// Bool returns the bool at path, or false.
func (d Document) Bool(path string) bool {
	b, _ := d.Lookup(path).(bool)
	return b
}

// Has reports whether path holds a non-nil value.
func (d Document) Has(path string) bool {
	return d.Lookup(path) != nil
}

// Clone returns a deep copy made through the JSON encoding, which is also the
// shape a document has after a round trip through the store.
func (d Document) Clone() (Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document %s: %w", d.ID(), err)
	}
	return decodeDocument(data)
}

func decodeDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	default:
		return nil, false
	}
}
