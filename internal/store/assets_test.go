package store

import (
	"context"
	"errors"
	"strings"
	"testing"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type memBackend struct {
	objects map[string][]byte
	err     error
}

func (m *memBackend) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[key] = data
	return "mem://" + key, nil
}

func TestUploadAsset_Inline(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	ref, err := st.UploadAsset(ctx, "image", pngHeader, AssetOptions{Filename: "a.png"})
	if err != nil {
		t.Fatalf("UploadAsset() failed: %v", err)
	}
	if !strings.HasPrefix(ref.ID, "image-") {
		t.Errorf("ID = %q, want image- prefix", ref.ID)
	}
	if !strings.HasSuffix(ref.ID, "-png") {
		t.Errorf("ID = %q, want -png suffix", ref.ID)
	}
	if ref.ContentType != "image/png" {
		t.Errorf("ContentType = %q, want image/png", ref.ContentType)
	}
	if ref.Location != "inline" {
		t.Errorf("Location = %q, want inline", ref.Location)
	}

	data, err := st.GetAsset(ctx, ref.ID)
	if err != nil {
		t.Fatalf("GetAsset() failed: %v", err)
	}
	if string(data) != string(pngHeader) {
		t.Error("GetAsset() returned different bytes")
	}
}

func TestUploadAsset_Dedup(t *testing.T) {
	ctx := context.Background()
	st := openTestStore(t)

	a, err := st.UploadAsset(ctx, "image", pngHeader, AssetOptions{})
	if err != nil {
		t.Fatalf("UploadAsset() failed: %v", err)
	}
	b, err := st.UploadAsset(ctx, "image", pngHeader, AssetOptions{ContentType: "image/png"})
	if err != nil {
		t.Fatalf("second UploadAsset() failed: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("ids differ: %q vs %q", a.ID, b.ID)
	}

	stats, err := st.GetStats(ctx, "areNaBlock")
	if err != nil {
		t.Fatalf("GetStats() failed: %v", err)
	}
	if stats.Assets != 1 {
		t.Errorf("Assets = %d, want 1", stats.Assets)
	}
}

func TestUploadAsset_Empty(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.UploadAsset(context.Background(), "image", nil, AssetOptions{}); err == nil {
		t.Error("UploadAsset() with no data should fail")
	}
}

func TestUploadAsset_Backend(t *testing.T) {
	ctx := context.Background()
	backend := &memBackend{}
	st := openTestStore(t, WithAssetBackend(backend))

	ref, err := st.UploadAsset(ctx, "image", pngHeader, AssetOptions{})
	if err != nil {
		t.Fatalf("UploadAsset() failed: %v", err)
	}
	if ref.Location != "mem://"+ref.ID {
		t.Errorf("Location = %q", ref.Location)
	}
	if _, ok := backend.objects[ref.ID]; !ok {
		t.Error("backend did not receive the object")
	}
	if _, err := st.GetAsset(ctx, ref.ID); err == nil {
		t.Error("GetAsset() on a backend asset should fail")
	}
}

func TestUploadAsset_BackendError(t *testing.T) {
	st := openTestStore(t, WithAssetBackend(&memBackend{err: errors.New("down")}))
	if _, err := st.UploadAsset(context.Background(), "image", pngHeader, AssetOptions{}); err == nil {
		t.Error("UploadAsset() should surface backend errors")
	}
}

func TestGetAsset_Missing(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetAsset(context.Background(), "image-none")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAsset() error = %v, want ErrNotFound", err)
	}
}
