package sync

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenasync/arenasync/internal/arena"
	"github.com/arenasync/arenasync/internal/store"
)

func TestComputeFingerprint(t *testing.T) {
	base := textBlock(1, "Test")
	fp, ok := ComputeFingerprint(base)
	require.True(t, ok)
	assert.Len(t, fp, 32)

	same, _ := ComputeFingerprint(textBlock(1, "Test"))
	assert.Equal(t, fp, same)

	// untracked fields do not matter
	noisy := textBlock(1, "Test")
	noisy["metadata"] = map[string]any{"other": true}
	noisy["content_html"] = "<p>x</p>"
	got, _ := ComputeFingerprint(noisy)
	assert.Equal(t, fp, got)

	changes := map[string]func(arena.Block){
		"title":       func(b arena.Block) { b["title"] = "Other" },
		"class":       func(b arena.Block) { b["class"] = "Image" },
		"updated_at":  func(b arena.Block) { b["updated_at"] = "2024-01-02" },
		"description": func(b arena.Block) { b["description_html"] = "<p>d</p>" },
		"source":      func(b arena.Block) { b["source"] = map[string]any{"url": "https://x"} },
		"image":       func(b arena.Block) { b["image"] = map[string]any{"original": map[string]any{"url": "u"}} },
		"id":          func(b arena.Block) { b["id"] = 2.0 },
	}
	for name, mutate := range changes {
		t.Run(name, func(t *testing.T) {
			b := textBlock(1, "Test")
			mutate(b)
			other, ok := ComputeFingerprint(b)
			require.True(t, ok)
			assert.NotEqual(t, fp, other)
		})
	}
}

func TestComputeFingerprint_Unencodable(t *testing.T) {
	b := textBlock(1, "Test")
	b["title"] = func() {}
	_, ok := ComputeFingerprint(b)
	assert.False(t, ok)
}

func TestBuildImageSignature(t *testing.T) {
	_, ok := BuildImageSignature(textBlock(1, "x"))
	assert.False(t, ok)

	sig, ok := BuildImageSignature(imageBlock(1, "https://img/a.png", 1234))
	require.True(t, ok)
	assert.Equal(t, "https://img/a.png|1234", sig)

	noSize := imageBlock(1, "https://img/a.png", 0)
	sig, ok = BuildImageSignature(noSize)
	require.True(t, ok)
	assert.Equal(t, "https://img/a.png|", sig)

	delete(noSize.Map("image", "original"), "file_size")
	sig, _ = BuildImageSignature(noSize)
	assert.Equal(t, "https://img/a.png|", sig)
}

func TestSanitizeForStorage(t *testing.T) {
	in := map[string]any{
		"ok_key-1": 1,
		"bad key!": map[string]any{"nested.key": []any{map[string]any{"a/b": "v"}, "s"}},
		"nil":      nil,
	}
	out := SanitizeForStorage(in).(map[string]any)

	assert.Equal(t, 1, out["ok_key-1"])
	assert.Nil(t, out["nil"])
	nested := out["bad_key_"].(map[string]any)
	list := nested["nested_key"].([]any)
	assert.Equal(t, map[string]any{"a_b": "v"}, list[0])
	assert.Equal(t, "s", list[1])

	assert.Equal(t, out, SanitizeForStorage(out), "no-op on sanitized input")
	assert.Equal(t, "scalar", SanitizeForStorage("scalar"))
}

func TestPruneRaw(t *testing.T) {
	b := arena.Block{"id": 1.0, "metadata": 1, "embed": 2, "title": "t"}
	p := PruneRaw(b)
	assert.Equal(t, arena.Block{"id": 1.0, "title": "t"}, p)
	assert.Contains(t, b, "metadata", "input is not modified")
}

func TestEnsureKeys(t *testing.T) {
	in := []ChannelRef{{Key: "keep", Slug: "a"}, {Slug: "b"}}
	out := EnsureKeys(in)
	assert.Equal(t, "keep", out[0].Key)
	assert.NotEmpty(t, out[1].Key)
	assert.Empty(t, in[1].Key, "input is not modified")

	again := EnsureKeys(out)
	assert.Equal(t, out, again)
}

func TestMergeChannels(t *testing.T) {
	existing := []ChannelRef{{Key: "k1", Slug: "a", Title: "old A"}, {Key: "k2", Slug: "b", Title: "B"}}
	observed := []ChannelRef{{Slug: "c", Title: "C obs"}, {Slug: "a"}, {Slug: ""}}
	titles := map[string]string{"a": "New A"}

	merged := MergeChannels(existing, observed, titles)
	require.Len(t, merged, 3)
	assert.Equal(t, ChannelRef{Key: "k1", Slug: "a", Title: "New A"}, merged[0])
	assert.Equal(t, ChannelRef{Key: "k2", Slug: "b", Title: "B"}, merged[1])
	assert.Equal(t, "c", merged[2].Slug)
	assert.Equal(t, "C obs", merged[2].Title)
	assert.NotEmpty(t, merged[2].Key)

	again := MergeChannels(merged, observed, titles)
	assert.Equal(t, merged, again, "idempotent")
}

func TestMergeChannels_TitleFallbackAndEmpty(t *testing.T) {
	merged := MergeChannels(nil, []ChannelRef{{Slug: "x"}}, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, "x", merged[0].Title)

	assert.Empty(t, MergeChannels(nil, nil, nil))

	dups := MergeChannels([]ChannelRef{{Key: "1", Slug: "a"}, {Key: "2", Slug: "a"}}, nil, nil)
	assert.Len(t, dups, 1)
}

func TestMergeChannels_KeepsEntriesWithoutSlug(t *testing.T) {
	existing := []ChannelRef{{Key: "k0", Title: "legacy"}, {Key: "k1", Slug: "a", Title: "A"}}

	merged := MergeChannels(existing, []ChannelRef{{Slug: "b"}}, nil)
	require.Len(t, merged, 3)
	assert.Equal(t, ChannelRef{Key: "k0", Title: "legacy"}, merged[0])
	assert.Equal(t, ChannelRef{Key: "k1", Slug: "a", Title: "A"}, merged[1])
	assert.Equal(t, "b", merged[2].Slug)

	assert.Equal(t, merged, MergeChannels(merged, []ChannelRef{{Slug: "b"}}, nil), "idempotent")

	remaining := withoutChannel(merged, "a")
	require.Len(t, remaining, 2)
	assert.Equal(t, "k0", remaining[0].Key)
}

func TestChannelsEqual(t *testing.T) {
	a := []ChannelRef{{Key: "1", Slug: "a", Title: "A"}, {Key: "2", Slug: "b", Title: "B"}}
	assert.True(t, ChannelsEqual(a, a))
	assert.True(t, ChannelsEqual(a, []ChannelRef{{Key: "x", Slug: "a", Title: "A"}, {Key: "y", Slug: "b", Title: "B"}}))
	assert.False(t, ChannelsEqual(a, a[:1]))
	assert.False(t, ChannelsEqual(a, []ChannelRef{{Slug: "a", Title: "A"}, {Slug: "c", Title: "B"}}))
	assert.False(t, ChannelsEqual(a, []ChannelRef{{Slug: "a", Title: "A"}, {Slug: "b", Title: "Other"}}))
	assert.False(t, ChannelsEqual(a, []ChannelRef{{Slug: "b", Title: "B"}, {Slug: "a", Title: "A"}}))
}

func TestChannelsFromDoc(t *testing.T) {
	_, ok := channelsFromDoc(store.Document{})
	assert.False(t, ok)
	_, ok = channelsFromDoc(store.Document{"channels": "nope"})
	assert.False(t, ok)

	refs, ok := channelsFromDoc(store.Document{"channels": []any{
		map[string]any{"_key": "k", "slug": "a", "title": "A"},
		"junk",
	}})
	require.True(t, ok)
	assert.Equal(t, []ChannelRef{{Key: "k", Slug: "a", Title: "A"}}, refs)
}

func TestShouldUploadImage(t *testing.T) {
	withImage := store.Document{"mainImage": map[string]any{"_type": "image"}}

	tests := []struct {
		mode     ImageUploadMode
		existing store.Document
		changed  bool
		want     bool
	}{
		{ImageUploadOff, nil, true, false},
		{ImageUploadOn, withImage, true, true},
		{ImageUploadOn, nil, false, false},
		{ImageUploadAuto, nil, true, true},
		{ImageUploadAuto, withImage, true, false},
		{ImageUploadAuto, nil, false, false},
	}
	for _, tt := range tests {
		got := ShouldUploadImage(tt.mode, tt.existing, tt.changed)
		assert.Equal(t, tt.want, got, "mode=%s existing=%v changed=%v", tt.mode, tt.existing != nil, tt.changed)
	}
}

func TestAllowImageUpdate(t *testing.T) {
	assert.True(t, allowImageUpdate(nil))
	assert.True(t, allowImageUpdate(store.Document{}))
	assert.False(t, allowImageUpdate(store.Document{"lockAll": true}))
	assert.False(t, allowImageUpdate(store.Document{"lockImage": true}))
	assert.False(t, allowImageUpdate(store.Document{"syncPolicy": map[string]any{"owner": map[string]any{"mainImage": "studio"}}}))
}

func TestParseImageUploadMode(t *testing.T) {
	for in, want := range map[string]ImageUploadMode{"": ImageUploadAuto, "AUTO": ImageUploadAuto, "off": ImageUploadOff, " on ": ImageUploadOn} {
		got, err := ParseImageUploadMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseImageUploadMode("sometimes")
	assert.Error(t, err)
}

func TestFilterOwned(t *testing.T) {
	fields := map[string]any{"title": "x", "sourceTitle": "s", "channels": 1, "mainImage": 2, "arenaId": 3}
	out := filterOwned(fields, nil)
	assert.NotContains(t, out, "title")
	assert.Contains(t, out, "mainImage")

	existing := store.Document{"syncPolicy": map[string]any{"owner": map[string]any{"channels": "studio", "sourceTitle": "arena"}}}
	out = filterOwned(fields, existing)
	assert.NotContains(t, out, "channels")
	assert.Contains(t, out, "sourceTitle")
}

func TestEventMarshalJSON(t *testing.T) {
	e := Event{
		Run:    "1-abc",
		Level:  LevelWarn,
		Msg:    "image_fetch_not_ok",
		Fields: Fields{"id": 7, "msg": "ignored"},
		Time:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "1-abc", m["run"])
	assert.Equal(t, "warn", m["lvl"])
	assert.Equal(t, "image_fetch_not_ok", m["msg"])
	assert.Equal(t, 7.0, m["id"])
	assert.Equal(t, "2024-01-01T00:00:00Z", m["ts"])
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "drift_cleanup", phaseDriftCleanup.String())
	assert.Equal(t, "unknown", phase(99).String())
}

func TestNewRunID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewRunID(now)
	assert.Regexp(t, `^1700000000000-[0-9a-f]{6}$`, id)
	assert.NotEqual(t, id, NewRunID(now))
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	d := DefaultOptions()
	assert.Equal(t, d.PageSize, o.PageSize)
	assert.Equal(t, d.Retries, o.Retries)
	assert.Equal(t, ImageUploadAuto, o.ImageUpload)
	assert.NotNil(t, o.HTTPClient)
	assert.NotNil(t, o.Now)
	assert.False(t, o.SkipDriftFix, "drift cleanup is on for zero options")
	assert.False(t, d.SkipDriftFix)
}
