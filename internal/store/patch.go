package store

import (
	"context"
	"strings"
)

// OpKind is the kind of a patch operation.
type OpKind int

const (
	// OpSet overwrites the value at each path.
	OpSet OpKind = iota
	// OpSetIfMissing writes each value only where the path is absent.
	OpSetIfMissing
	// OpUnset removes each path.
	OpUnset
)

// String returns a human-readable representation of the operation.
func (k OpKind) String() string {
	switch k {
	case OpSet:
		return "set"
	case OpSetIfMissing:
		return "setIfMissing"
	case OpUnset:
		return "unset"
	default:
		return "unknown"
	}
}

// Op is one patch operation. Keys of Fields and entries of Paths are dotted
// paths into the document.
type Op struct {
	Kind   OpKind
	Fields map[string]any
	Paths  []string
}

// CommitFunc persists a patch.
type CommitFunc func(ctx context.Context, p *Patch) error

// Patch accumulates field-level operations against one document. Operations
// are applied in the order they were added when the patch is committed.
type Patch struct {
	ID  string
	Ops []Op

	commit CommitFunc
}

// NewPatch creates a patch for id that is persisted by commit.
func NewPatch(id string, commit CommitFunc) *Patch {
	return &Patch{ID: id, commit: commit}
}

// Set overwrites fields.
func (p *Patch) Set(fields map[string]any) *Patch {
	p.Ops = append(p.Ops, Op{Kind: OpSet, Fields: fields})
	return p
}

// SetIfMissing writes fields that are not already present.
func (p *Patch) SetIfMissing(fields map[string]any) *Patch {
	p.Ops = append(p.Ops, Op{Kind: OpSetIfMissing, Fields: fields})
	return p
}

// Unset removes paths. Missing paths are ignored.
func (p *Patch) Unset(paths ...string) *Patch {
	p.Ops = append(p.Ops, Op{Kind: OpUnset, Paths: paths})
	return p
}

// Commit persists the patch.
func (p *Patch) Commit(ctx context.Context) error {
	return p.commit(ctx, p)
}

// Apply applies the operations to doc in place and returns it.
func (p *Patch) Apply(doc Document) Document {
	for _, op := range p.Ops {
		switch op.Kind {
		case OpSet:
			for path, v := range op.Fields {
				setPath(doc, path, v, true)
			}
		case OpSetIfMissing:
			for path, v := range op.Fields {
				setPath(doc, path, v, false)
			}
		case OpUnset:
			for _, path := range op.Paths {
				unsetPath(doc, path)
			}
		}
	}
	return doc
}

func setPath(doc map[string]any, path string, v any, overwrite bool) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			if cur[seg] != nil && !overwrite {
				return
			}
			next = map[string]any{}
			cur[seg] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if !overwrite && cur[last] != nil {
		return
	}
	cur[last] = v
}

func unsetPath(doc map[string]any, path string) {
	segs := strings.Split(path, ".")
	cur := doc
	for _, seg := range segs[:len(segs)-1] {
		next, ok := asMap(cur[seg])
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
}
