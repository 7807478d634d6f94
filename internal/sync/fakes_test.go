package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/arenasync/arenasync/internal/arena"
	"github.com/arenasync/arenasync/internal/store"
)

// fakeStore keeps documents as JSON so reads see the same shapes the SQLite
// store produces.
type fakeStore struct {
	mu      stdsync.Mutex
	docs    map[string][]byte
	creates int
	commits int
	uploads []store.AssetOptions

	getErr    error
	patchErrs map[string]error

	// landErr is returned by the next Create after the document is stored.
	landErr error

	// findFails is the number of FindByChannel calls that fail before
	// calls succeed again.
	findFails int
	findCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string][]byte{}, patchErrs: map[string]error{}}
}

func (f *fakeStore) put(t *testing.T, doc store.Document) {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID()] = data
}

func (f *fakeStore) get(t *testing.T, id string) store.Document {
	t.Helper()
	doc, err := f.GetDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return doc
}

func (f *fakeStore) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates + f.commits
}

func (f *fakeStore) GetDocument(ctx context.Context, id string) (store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (f *fakeStore) Create(ctx context.Context, doc store.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID()]; ok {
		return store.ErrExists
	}
	f.docs[doc.ID()] = data
	f.creates++
	if err := f.landErr; err != nil {
		f.landErr = nil
		return err
	}
	return nil
}

func (f *fakeStore) FindByChannel(ctx context.Context, docType, slug string) ([]store.Document, error) {
	f.mu.Lock()
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	f.findCalls++
	failing := f.findCalls <= f.findFails
	f.mu.Unlock()
	if failing {
		return nil, errors.New("store unavailable")
	}

	var out []store.Document
	for _, id := range ids {
		doc, err := f.GetDocument(ctx, id)
		if err != nil {
			return nil, err
		}
		if doc.Type() != docType {
			continue
		}
		refs, _ := channelsFromDoc(doc)
		for _, r := range refs {
			if r.Slug == slug {
				out = append(out, doc)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Patch(id string) *store.Patch {
	return store.NewPatch(id, f.commit)
}

func (f *fakeStore) commit(ctx context.Context, p *store.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.patchErrs[p.ID]; err != nil {
		return err
	}
	data, ok := f.docs[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	var doc store.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	updated, err := json.Marshal(p.Apply(doc))
	if err != nil {
		return err
	}
	f.docs[p.ID] = updated
	f.commits++
	return nil
}

func (f *fakeStore) UploadAsset(ctx context.Context, kind string, data []byte, opts store.AssetOptions) (*store.AssetRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, opts)
	return &store.AssetRef{ID: fmt.Sprintf("%s-%d", kind, len(f.uploads)), Location: "inline", Size: len(data)}, nil
}

// fakeSource serves fixed pages per channel.
type fakeSource struct {
	mu     stdsync.Mutex
	pages  map[string][]*arena.Page
	errs   map[string]error
	titles map[string]string
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		pages:  map[string][]*arena.Page{},
		errs:   map[string]error{},
		titles: map[string]string{},
		calls:  map[string]int{},
	}
}

// set replaces the channel's content with one page per argument.
func (f *fakeSource) set(slug string, pages ...[]arena.Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[slug] = nil
	for _, blocks := range pages {
		f.pages[slug] = append(f.pages[slug], &arena.Page{Contents: blocks, TotalPages: len(pages)})
	}
}

func (f *fakeSource) GetPage(ctx context.Context, slug string, p arena.PageParams) (*arena.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[slug]++
	if err := f.errs[slug]; err != nil {
		return nil, err
	}
	pages := f.pages[slug]
	if p.Page < 1 || p.Page > len(pages) {
		return &arena.Page{}, nil
	}
	return pages[p.Page-1], nil
}

func (f *fakeSource) GetChannelInfo(ctx context.Context, slug string) (*arena.ChannelInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.titles[slug]
	if !ok {
		return nil, errors.New("no info")
	}
	return &arena.ChannelInfo{Title: t}, nil
}

// eventLog collects events.
type eventLog struct {
	mu     stdsync.Mutex
	events []Event
}

func (l *eventLog) add(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) msgs(msg string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

func testOptions(channels ...string) (Options, *eventLog) {
	events := &eventLog{}
	opts := DefaultOptions()
	opts.Channels = channels
	opts.Retries = 2
	opts.Backoff = time.Millisecond
	opts.HeartbeatInterval = time.Hour
	opts.OnLog = events.add
	return opts, events
}

func textBlock(id float64, title string) arena.Block {
	return arena.Block{
		"id":         id,
		"title":      title,
		"class":      "Text",
		"updated_at": "2024-01-01",
		"created_at": "2023-12-01",
		"metadata":   map[string]any{"description": "noise"},
	}
}

func imageBlock(id float64, imageURL string, size float64) arena.Block {
	return arena.Block{
		"id":         id,
		"title":      "pic",
		"class":      "Image",
		"updated_at": "2024-01-01",
		"image": map[string]any{
			"content_type": "image/png",
			"original":     map[string]any{"url": imageURL, "file_size": size},
			"display":      map[string]any{"url": imageURL + "?display"},
			"thumb":        map[string]any{"url": imageURL + "?thumb"},
		},
	}
}

func runOnce(t *testing.T, src ContentSource, st DocumentStore, opts Options) *RunResult {
	t.Helper()
	res, err := Run(context.Background(), src, st, opts)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return res
}
