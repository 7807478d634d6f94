package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	tmpDir := t.TempDir()
	return filepath.Join(tmpDir, "test.db")
}

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	st, err := Open(testDBPath(t), opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func blockDoc(id string, slugs ...string) Document {
	channels := make([]any, 0, len(slugs))
	for _, s := range slugs {
		channels = append(channels, map[string]any{"_key": "k-" + s, "slug": s})
	}
	return Document{
		"_id":      id,
		"_type":    "areNaBlock",
		"title":    "Title " + id,
		"channels": channels,
	}
}

// TestOpen_Success tests successful database creation and initialization
func TestOpen_Success(t *testing.T) {
	path := testDBPath(t)
	st, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer st.Close()

	if st.Path() != path {
		t.Errorf("Path() = %q, want %q", st.Path(), path)
	}

	for _, table := range []string{"documents", "assets"} {
		var count int
		err := st.RawDB().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

// TestInitSchema_Idempotent tests that InitSchema can run repeatedly
func TestInitSchema_Idempotent(t *testing.T) {
	st := openTestStore(t)
	for i := 0; i < 3; i++ {
		if err := st.InitSchema(context.Background()); err != nil {
			t.Fatalf("InitSchema() call %d failed: %v", i, err)
		}
	}
}

// TestClose_Twice tests that Close is safe to call more than once
func TestClose_Twice(t *testing.T) {
	st, err := Open(testDBPath(t))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("first Close() failed: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.Create(ctx, blockDoc("arenaBlock-1", "a")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	doc, err := st.GetDocument(ctx, "arenaBlock-1")
	if err != nil {
		t.Fatalf("GetDocument() failed: %v", err)
	}
	if doc == nil {
		t.Fatal("GetDocument() returned nil")
	}
	if doc.Type() != "areNaBlock" {
		t.Errorf("Type() = %q, want areNaBlock", doc.Type())
	}
	if doc.String("title") != "Title arenaBlock-1" {
		t.Errorf("title = %q", doc.String("title"))
	}
}

func TestGetDocument_Missing(t *testing.T) {
	st := openTestStore(t)

	doc, err := st.GetDocument(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetDocument() failed: %v", err)
	}
	if doc != nil {
		t.Errorf("GetDocument() = %v, want nil", doc)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	if err := st.Create(ctx, blockDoc("d1")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	err := st.Create(ctx, blockDoc("d1"))
	if !errors.Is(err, ErrExists) {
		t.Fatalf("second Create() error = %v, want ErrExists", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Create(ctx, Document{"_type": "x"}); err == nil {
		t.Error("Create() without _id should fail")
	}
	if err := st.Create(ctx, Document{"_id": "x"}); err == nil {
		t.Error("Create() without _type should fail")
	}
}

func TestPatch_Commit(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	doc := blockDoc("p1", "a")
	doc["rawArenaData"] = map[string]any{"id": 1, "metadata": map[string]any{"x": 1}, "embed": "e"}
	if err := st.Create(ctx, doc); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	err := st.Patch("p1").
		Set(map[string]any{"sourceTitle": "src", "rawArenaData.title": "raw"}).
		Unset("rawArenaData.metadata", "rawArenaData.embed").
		SetIfMissing(map[string]any{"title": "ignored", "syncPolicy": map[string]any{"lockAll": false}}).
		Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	got, err := st.GetDocument(ctx, "p1")
	if err != nil {
		t.Fatalf("GetDocument() failed: %v", err)
	}
	if got.String("sourceTitle") != "src" {
		t.Errorf("sourceTitle = %q, want src", got.String("sourceTitle"))
	}
	if got.String("rawArenaData.title") != "raw" {
		t.Errorf("rawArenaData.title = %q, want raw", got.String("rawArenaData.title"))
	}
	if got.Has("rawArenaData.metadata") || got.Has("rawArenaData.embed") {
		t.Error("rawArenaData.metadata/embed should be unset")
	}
	if got.String("title") != "Title p1" {
		t.Errorf("title = %q, setIfMissing must not overwrite", got.String("title"))
	}
	if !got.Has("syncPolicy") {
		t.Error("syncPolicy should be set when missing")
	}
}

func TestPatch_Missing(t *testing.T) {
	st := openTestStore(t)

	err := st.Patch("ghost").Set(map[string]any{"a": 1}).Commit(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Commit() error = %v, want ErrNotFound", err)
	}
}

func TestQuery_ByChannelSlug(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	for _, d := range []Document{
		blockDoc("q1", "a"),
		blockDoc("q2", "a", "b"),
		blockDoc("q3", "b"),
	} {
		if err := st.Create(ctx, d); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	docs, err := st.Query(ctx, `
	SELECT d.body FROM documents d
	WHERE d.type = 'areNaBlock'
	  AND EXISTS (
	    SELECT 1 FROM json_each(d.body, '$.channels') c
	    WHERE json_extract(c.value, '$.slug') = :slug
	  )
	ORDER BY d.id`, map[string]any{"slug": "a"})
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("Query() returned %d docs, want 2", len(docs))
	}
	if docs[0].ID() != "q1" || docs[1].ID() != "q2" {
		t.Errorf("Query() ids = %s,%s, want q1,q2", docs[0].ID(), docs[1].ID())
	}
}

func TestFindByChannel(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	other := blockDoc("f4", "a")
	other["_type"] = "note"
	for _, d := range []Document{
		blockDoc("f1", "a"),
		blockDoc("f2", "b", "a"),
		blockDoc("f3", "b"),
		other,
	} {
		if err := st.Create(ctx, d); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	docs, err := st.FindByChannel(ctx, "areNaBlock", "a")
	if err != nil {
		t.Fatalf("FindByChannel() failed: %v", err)
	}
	got := map[string]bool{}
	for _, d := range docs {
		got[d.ID()] = true
	}
	if len(got) != 2 || !got["f1"] || !got["f2"] {
		t.Errorf("FindByChannel(a) = %v, want f1 and f2", got)
	}

	docs, err = st.FindByChannel(ctx, "areNaBlock", "missing")
	if err != nil {
		t.Fatalf("FindByChannel() failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("FindByChannel(missing) returned %d docs", len(docs))
	}
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	orphan := blockDoc("s3")
	orphan["isOrphan"] = true
	for _, d := range []Document{blockDoc("s1", "a"), blockDoc("s2", "a", "b"), orphan} {
		if err := st.Create(ctx, d); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}

	stats, err := st.GetStats(ctx, "areNaBlock")
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.Documents != 3 {
		t.Errorf("Documents = %d, want 3", stats.Documents)
	}
	if stats.Orphans != 1 {
		t.Errorf("Orphans = %d, want 1", stats.Orphans)
	}
	if stats.Channels["a"] != 2 || stats.Channels["b"] != 1 {
		t.Errorf("Channels = %v, want a:2 b:1", stats.Channels)
	}
}
