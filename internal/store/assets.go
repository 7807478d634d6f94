package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// AssetBackend stores asset bytes outside the database.
type AssetBackend interface {
	// Put stores data under key and returns its location (for example an
	// s3:// URL).
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// AssetOptions describes an upload.
type AssetOptions struct {
	Filename    string
	ContentType string
}

// AssetRef identifies a stored asset.
type AssetRef struct {
	ID          string
	Location    string
	ContentType string
	Size        int
}

// UploadAsset stores data as an asset of kind ("image", "file").
//
// Assets are content addressed: uploading identical bytes twice yields the
// same id and stores them once, so retried uploads are harmless.
func (s *Store) UploadAsset(ctx context.Context, kind string, data []byte, opts AssetOptions) (*AssetRef, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("upload %s: empty asset", kind)
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	mt := mimetype.Detect(data)
	contentType := opts.ContentType
	if contentType == "" {
		contentType = mt.String()
	}
	id := fmt.Sprintf("%s-%s%s", kind, digest[:40], extensionSuffix(mt.Extension()))

	var existing string
	err := s.conn.QueryRowContext(ctx, `SELECT location FROM assets WHERE id = ?`, id).Scan(&existing)
	if err == nil {
		return &AssetRef{ID: id, Location: existing, ContentType: contentType, Size: len(data)}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up asset %s: %w", id, err)
	}

	location := "inline"
	var blob []byte
	if s.assets != nil {
		location, err = s.assets.Put(ctx, id, data, contentType)
		if err != nil {
			return nil, fmt.Errorf("failed to store asset %s: %w", id, err)
		}
	} else {
		blob = data
	}

	_, err = s.conn.ExecContext(ctx, `
	INSERT INTO assets (id, kind, filename, content_type, size, sha256, location, data, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO NOTHING
	`, id, kind, opts.Filename, contentType, len(data), digest, location, blob,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to record asset %s: %w", id, err)
	}

	return &AssetRef{ID: id, Location: location, ContentType: contentType, Size: len(data)}, nil
}

// GetAsset returns the bytes of an inline asset.
func (s *Store) GetAsset(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	var location string
	err := s.conn.QueryRowContext(ctx, `SELECT data, location FROM assets WHERE id = ?`, id).Scan(&data, &location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read asset %s: %w", id, err)
	}
	if location != "inline" {
		return nil, fmt.Errorf("asset %s is stored at %s", id, location)
	}
	return data, nil
}

func extensionSuffix(ext string) string {
	if ext == "" {
		return ""
	}
	return "-" + ext[1:]
}
