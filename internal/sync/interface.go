package sync

import (
	"context"

	"github.com/arenasync/arenasync/internal/arena"
	"github.com/arenasync/arenasync/internal/store"
)

// ContentSource serves pages of remote channel content.
//
// A page with nil Contents means the channel is empty or inaccessible; the
// engine treats that as a zero-activity success, not an error.
type ContentSource interface {
	GetPage(ctx context.Context, slug string, p arena.PageParams) (*arena.Page, error)
}

// ChannelInfoSource is implemented by sources that can look up channel
// metadata. When the source does not implement it, channel titles come from
// the first page.
type ChannelInfoSource interface {
	GetChannelInfo(ctx context.Context, slug string) (*arena.ChannelInfo, error)
}

// DocumentStore is the destination store.
//
// GetDocument must return (nil, nil) when the document does not exist.
// Create must fail with store.ErrExists when the id is taken.
// FindByChannel returns full documents of docType whose channels list
// holds the slug.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (store.Document, error)
	Create(ctx context.Context, doc store.Document) error
	FindByChannel(ctx context.Context, docType, slug string) ([]store.Document, error)
	Patch(id string) *store.Patch
	UploadAsset(ctx context.Context, kind string, data []byte, opts store.AssetOptions) (*store.AssetRef, error)
}

var (
	_ ContentSource     = (*arena.Client)(nil)
	_ ChannelInfoSource = (*arena.Client)(nil)
	_ DocumentStore     = (*store.Store)(nil)
)
