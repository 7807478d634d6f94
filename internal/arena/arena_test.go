package arena

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeBlock(t *testing.T, s string) Block {
	t.Helper()
	var b Block
	require.NoError(t, json.Unmarshal([]byte(s), &b))
	return b
}

func TestBlockAccessors(t *testing.T) {
	b := decodeBlock(t, `{
		"id": 123,
		"class": "Image",
		"title": "Sunset",
		"updated_at": "2024-01-01T00:00:00Z",
		"source": {"url": "https://example.com", "title": "Ex", "provider": {"name": "Example"}},
		"image": {
			"filename": "sunset.png",
			"content_type": "image/png",
			"original": {"url": "https://img/o.png", "file_size": 2048},
			"display": {"url": "https://img/d.png"},
			"thumb": {"url": "https://img/t.png"}
		}
	}`)

	id, ok := b.ID()
	require.True(t, ok)
	assert.Equal(t, "123", id)
	assert.Equal(t, "Image", b.Class())
	assert.Equal(t, "Sunset", b.Title())
	assert.Equal(t, "Example", b.SourceProviderName())
	assert.Equal(t, "https://img/o.png", b.ImageOriginalURL())
	assert.Equal(t, "https://img/d.png", b.ImageDisplayURL())
	assert.Equal(t, "https://img/t.png", b.ImageThumbURL())
	assert.Equal(t, "2048", FormatScalar(b.ImageFileSize()))
	assert.True(t, b.HasOriginalImage())
}

func TestBlockMissingFieldsReadAsZero(t *testing.T) {
	b := decodeBlock(t, `{"title": 5, "image": "not-an-object"}`)

	_, ok := b.ID()
	assert.False(t, ok)
	assert.Equal(t, "", b.Title())
	assert.Equal(t, "", b.ImageOriginalURL())
	assert.Nil(t, b.ImageFileSize())
	assert.False(t, b.HasOriginalImage())
	assert.False(t, b.HasSource())
}

func TestBlockIDZeroIsValid(t *testing.T) {
	b := Block{"id": float64(0)}
	id, ok := b.ID()
	assert.True(t, ok)
	assert.Equal(t, "0", id)
}

func TestClientGetPage(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		assert.Equal(t, "/channels/my-channel", r.URL.Path)
		_, _ = w.Write([]byte(`{"title":"My Channel","length":250,"contents":[{"id":1,"class":"Text"},{"id":2,"class":"Image"}]}`))
	}))
	defer srv.Close()

	c := NewClient("tok", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	page, err := c.GetPage(context.Background(), "my-channel", PageParams{Page: 1, PerPage: 100})
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "page=1&per=100", gotQuery)
	assert.Equal(t, "My Channel", page.Title)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Contents, 2)
	assert.Equal(t, "Image", page.Contents[1].Class())
}

func TestClientGetPage_NoContents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"title":"Private"}`))
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	page, err := c.GetPage(context.Background(), "private", PageParams{Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Nil(t, page.Contents)
	assert.Equal(t, 1, page.TotalPages)
}

func TestClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/channels/missing" {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))

	_, err := c.GetPage(context.Background(), "missing", PageParams{Page: 1})
	assert.ErrorIs(t, err, ErrChannelNotFound)

	_, err = c.GetPage(context.Background(), "busy", PageParams{Page: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestClientGetChannelInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/channels/abc/thumb", r.URL.Path)
		_, _ = w.Write([]byte(`{"title":"ABC Channel"}`))
	}))
	defer srv.Close()

	info, err := NewClient("", WithBaseURL(srv.URL)).GetChannelInfo(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "ABC Channel", info.Title)
}
