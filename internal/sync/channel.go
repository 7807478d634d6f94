package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/arenasync/arenasync/internal/arena"
	"github.com/arenasync/arenasync/internal/resilience"
	"github.com/arenasync/arenasync/internal/store"
)

// phase is the reconciler state of one channel.
type phase int32

const (
	phaseFetchingFirstPage phase = iota
	phaseProcessingPage
	phaseFetchingNextPage
	phaseDriftCleanup
	phaseDone
	phaseError
)

func (p phase) String() string {
	switch p {
	case phaseFetchingFirstPage:
		return "fetching_first_page"
	case phaseProcessingPage:
		return "processing_page"
	case phaseFetchingNextPage:
		return "fetching_next_page"
	case phaseDriftCleanup:
		return "drift_cleanup"
	case phaseDone:
		return "done"
	case phaseError:
		return "error"
	default:
		return "unknown"
	}
}

// channelRun holds the state of one channel pass.
type channelRun struct {
	run  *runState
	slug string

	seen      map[string]bool
	result    ChannelResult
	processed atomic.Int64
	state     atomic.Int32
}

func (c *channelRun) setPhase(p phase) { c.state.Store(int32(p)) }
func (c *channelRun) phase() phase     { return phase(c.state.Load()) }

func (c *channelRun) log(lvl Level, msg string, fields Fields) {
	c.run.emit.emit(lvl, msg, fields)
}

func (c *channelRun) retryOpts(label string) resilience.RetryOptions {
	o := c.run.opts
	return resilience.RetryOptions{Retries: o.Retries, Backoff: o.Backoff, Label: label}
}

// reconcileChannel runs the full state machine for one channel.
func (r *runState) reconcileChannel(ctx context.Context, slug string) ChannelResult {
	c := &channelRun{
		run:    r,
		slug:   slug,
		seen:   make(map[string]bool),
		result: ChannelResult{Channel: slug},
	}

	stop := c.startHeartbeat()
	defer stop()

	if err := c.reconcile(ctx); err != nil {
		c.setPhase(phaseError)
		c.log(LevelError, "channel_error", Fields{"ch": slug, "error": err.Error()})
		c.result.Errors++
		c.result.Success = false
		c.result.Message = err.Error()
	} else {
		c.setPhase(phaseDone)
	}
	c.result.BlocksProcessed = int(c.processed.Load())
	return c.result
}

func (c *channelRun) startHeartbeat() (stop func()) {
	ticker := time.NewTicker(c.run.opts.HeartbeatInterval)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.log(LevelLog, "heartbeat", Fields{
					"ch":        c.slug,
					"phase":     c.phase().String(),
					"processed": c.processed.Load(),
				})
			}
		}
	}()

	return func() {
		ticker.Stop()
		close(done)
		<-finished
	}
}

func (c *channelRun) fetchPage(ctx context.Context, page int, label string) (*arena.Page, error) {
	o := c.run.opts
	return resilience.Do(ctx, o.SourceTimeout, c.retryOpts(label), func(ctx context.Context) (*arena.Page, error) {
		return c.run.src.GetPage(ctx, c.slug, arena.PageParams{Page: page, PerPage: o.PageSize})
	})
}

func (c *channelRun) reconcile(ctx context.Context) error {
	c.setPhase(phaseFetchingFirstPage)
	first, err := c.fetchPage(ctx, 1, "source.initial")
	if err != nil {
		return err
	}

	if first == nil || first.Contents == nil {
		c.log(LevelWarn, "empty_channel", Fields{"ch": c.slug})
		c.result.Success = true
		c.result.Message = MessageEmptyChannel
		return nil
	}

	if first.Title != "" {
		c.run.setTitleIfMissing(c.slug, first.Title)
	}

	totalPages := first.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}
	c.log(LevelLog, "first_page", Fields{"ch": c.slug, "count": len(first.Contents), "totalPages": totalPages})

	complete := c.processPage(ctx, first.Contents)

	for page := 2; complete && page <= totalPages; page++ {
		if !c.run.withinBudget() {
			complete = false
			break
		}
		c.setPhase(phaseFetchingNextPage)
		c.log(LevelLog, "fetching_page", Fields{"ch": c.slug, "page": page, "totalPages": totalPages})

		p, err := c.fetchPage(ctx, page, fmt.Sprintf("source.page.%d", page))
		if err != nil {
			return err
		}
		var blocks []arena.Block
		if p != nil {
			blocks = p.Contents
		}
		c.log(LevelLog, "page_fetched", Fields{"ch": c.slug, "page": page, "added": len(blocks)})
		complete = c.processPage(ctx, blocks)
	}

	// Drift cleanup needs every page; a partial pass would strip blocks it
	// never reached.
	switch {
	case !complete:
		c.log(LevelWarn, "channel_incomplete", Fields{"ch": c.slug, "processed": c.processed.Load()})
	case !c.run.opts.SkipDriftFix && c.run.withinBudget():
		c.fixDrift(ctx)
	}

	c.result.Success = true
	c.result.Message = MessageChannelProcessed
	return nil
}

// processPage reports false when the time budget or ctx stopped it before
// the last block.
func (c *channelRun) processPage(ctx context.Context, blocks []arena.Block) bool {
	c.setPhase(phaseProcessingPage)
	for _, b := range blocks {
		if !c.run.withinBudget() || ctx.Err() != nil {
			return false
		}
		if err := c.processBlock(ctx, b); err != nil {
			c.result.Errors++
			c.log(LevelWarn, "block_processing_failed", Fields{"id": b.RawID(), "err": err.Error()})
		}
	}
	return true
}

func (c *channelRun) advance() {
	n := c.processed.Add(1)
	if every := int64(c.run.opts.ProgressLogInterval); every > 0 && n%every == 0 {
		c.log(LevelLog, "progress", Fields{"ch": c.slug, "processed": n})
	}
}

func (c *channelRun) processBlock(ctx context.Context, b arena.Block) error {
	blockID, ok := b.ID()
	if !ok {
		c.log(LevelWarn, "invalid_block", Fields{"ch": c.slug})
		return nil
	}
	docID := DocumentID(blockID)
	c.seen[docID] = true

	o := c.run.opts
	existing, err := resilience.WithTimeout(ctx, o.StoreTimeout, "store.get", func(ctx context.Context) (store.Document, error) {
		return c.run.store.GetDocument(ctx, docID)
	})
	if err != nil {
		c.log(LevelWarn, "get_document_failed", Fields{"id": b.RawID(), "err": err.Error()})
		existing = nil
	}

	existingChannels, _ := channelsFromDoc(existing)
	observed := []ChannelRef{{Slug: c.slug, Title: c.run.title(c.slug)}}
	channels := MergeChannels(existingChannels, observed, c.run.titleSnapshot())

	signature, hasSignature := BuildImageSignature(b)
	fingerprint, _ := ComputeFingerprint(b)
	updatedAt := b.UpdatedAt()

	if existing != nil &&
		existing.String("arenaUpdatedAt") == updatedAt &&
		existing.String("arenaFingerprint") == fingerprint {
		if err := c.syncMembership(ctx, existing, docID, channels); err != nil {
			return err
		}
		c.advance()
		return nil
	}

	fields := c.systemFields(b, blockID, channels, signature, hasSignature, fingerprint)

	signatureChanged := hasSignature && signature != existing.String("arenaImageSignature")
	if allowImageUpdate(existing) &&
		ShouldUploadImage(o.ImageUpload, existing, signatureChanged) &&
		uploadableClass(b.Class()) &&
		b.ImageOriginalURL() != "" {
		if ref, ok := c.uploadImage(ctx, b, blockID); ok {
			fields["mainImage"] = map[string]any{
				"_type": "image",
				"asset": map[string]any{"_type": "reference", "_ref": ref.ID},
			}
		}
	}

	fields = filterOwned(fields, existing)
	sourceTitle := blockSourceTitle(b)
	title := sourceTitle
	if title == "" {
		title = "Block " + blockID
	}

	switch {
	case existing == nil:
		doc := store.Document{
			"_id":        docID,
			"_type":      DocumentType,
			"title":      title,
			"syncPolicy": DefaultSyncPolicy(),
		}
		for k, v := range fields {
			doc[k] = v
		}
		if err := c.create(ctx, doc); err != nil {
			return err
		}
		c.result.Created++
		c.log(LevelLog, "doc_committed", Fields{"id": b.RawID(), "action": "create"})

	case isLocked(existing):
		c.result.SkippedUnchanged++

	default:
		patch := c.run.store.Patch(docID).
			Set(fields).
			Unset("rawArenaData.metadata", "rawArenaData.embed").
			SetIfMissing(map[string]any{"title": title}).
			SetIfMissing(map[string]any{"syncPolicy": DefaultSyncPolicy()})
		if err := c.commit(ctx, patch, "store.patch"); err != nil {
			return err
		}
		c.result.Updated++
		c.log(LevelLog, "doc_committed", Fields{"id": b.RawID(), "action": "update"})
	}

	c.advance()
	return nil
}

// syncMembership handles an unchanged block: only membership may need a
// write.
func (c *channelRun) syncMembership(ctx context.Context, existing store.Document, docID string, merged []ChannelRef) error {
	if isLocked(existing) || studioOwned(existing, "channels") {
		c.result.SkippedUnchanged++
		return nil
	}

	stored, isList := channelsFromDoc(existing)
	if isList && ChannelsEqual(merged, stored) {
		c.result.SkippedUnchanged++
		return nil
	}

	patch := c.run.store.Patch(docID).Set(map[string]any{
		"channels":     merged,
		"isOrphan":     false,
		"lastSyncedAt": c.run.timestamp(),
		"lastSyncedBy": SyncActor,
	})
	if err := c.commit(ctx, patch, "store.patch.channels"); err != nil {
		return err
	}
	c.result.Updated++
	c.log(LevelLog, "doc_committed", Fields{"id": docID, "action": "membership"})
	return nil
}

func (c *channelRun) systemFields(b arena.Block, blockID string, channels []ChannelRef, signature string, hasSignature bool, fingerprint string) map[string]any {
	return map[string]any{
		"channels":              channels,
		"isOrphan":              false,
		"arenaId":               b.RawID(),
		"arenaBlockUrl":         "https://www.are.na/block/" + blockID,
		"blockType":             b["class"],
		"description":           nullIfEmpty(b.DescriptionHTML()),
		"contentHtml":           nullIfEmpty(b.ContentHTML()),
		"sourceUrl":             nullIfEmpty(b.SourceURL()),
		"sourceTitle":           nullIfEmpty(blockSourceTitle(b)),
		"sourceProviderName":    nullIfEmpty(b.SourceProviderName()),
		"externalImageUrl":      nullIfEmpty(b.ImageDisplayURL()),
		"externalImageThumbUrl": nullIfEmpty(b.ImageThumbURL()),
		"arenaCreatedAt":        b["created_at"],
		"arenaUpdatedAt":        b["updated_at"],
		"rawArenaData":          SanitizeForStorage(PruneRaw(b)),
		"arenaImageSignature":   nullIfFalse(signature, hasSignature),
		"arenaFingerprint":      nullIfEmpty(fingerprint),
		"lastSyncedAt":          c.run.timestamp(),
		"lastSyncedBy":          SyncActor,
	}
}

// create inserts doc. ErrExists on a retry means an earlier failed attempt
// landed; on the first attempt the document was there all along and the
// block is reported as failed.
func (c *channelRun) create(ctx context.Context, doc store.Document) error {
	o := c.run.opts
	attempt := 0
	taken := false
	_, err := resilience.Retry(ctx, c.retryOpts("store.create"), func(ctx context.Context) (struct{}, error) {
		attempt++
		_, err := resilience.WithTimeout(ctx, o.StoreTimeout, "store.create", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.run.store.Create(ctx, doc)
		})
		if errors.Is(err, store.ErrExists) {
			taken = attempt == 1
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("document %s exists but could not be read: %w", doc.ID(), store.ErrExists)
	}
	return nil
}

func (c *channelRun) commit(ctx context.Context, p *store.Patch, label string) error {
	o := c.run.opts
	_, err := resilience.Do(ctx, o.StoreTimeout, c.retryOpts(label), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.Commit(ctx)
	})
	return err
}

type fetchedAsset struct {
	data       []byte
	status     int
	statusText string
}

// uploadImage copies the block's original image into the store. Failures
// are logged and reported as ok=false.
func (c *channelRun) uploadImage(ctx context.Context, b arena.Block, blockID string) (*store.AssetRef, bool) {
	o := c.run.opts
	src := b.ImageOriginalURL()
	c.log(LevelLog, "image_fetch_start", Fields{"id": b.RawID(), "host": safeHost(src)})

	if err := c.run.acquireAsset(ctx); err != nil {
		c.log(LevelWarn, "image_upload_failed", Fields{"id": b.RawID(), "err": err.Error()})
		return nil, false
	}
	defer c.run.releaseAsset()

	fetched, err := resilience.Retry(ctx, c.retryOpts("asset.fetch"), func(ctx context.Context) (fetchedAsset, error) {
		resp, err := resilience.FetchWithTimeout(ctx, o.HTTPClient, src, o.AssetTimeout)
		if err != nil {
			return fetchedAsset{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fetchedAsset{status: resp.StatusCode, statusText: resp.Status}, nil
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fetchedAsset{}, fmt.Errorf("failed to read image body: %w", err)
		}
		return fetchedAsset{data: data, status: resp.StatusCode}, nil
	})
	if err != nil {
		c.log(LevelWarn, "image_upload_failed", Fields{"id": b.RawID(), "err": err.Error()})
		return nil, false
	}
	if fetched.data == nil {
		c.log(LevelWarn, "image_fetch_not_ok", Fields{
			"id":         b.RawID(),
			"status":     fetched.status,
			"statusText": fetched.statusText,
		})
		return nil, false
	}

	opts := store.AssetOptions{
		Filename:    c.imageFilename(b, blockID, fetched.data),
		ContentType: b.ImageContentType(),
	}
	ref, err := resilience.Do(ctx, o.StoreTimeout, c.retryOpts("store.upload"), func(ctx context.Context) (*store.AssetRef, error) {
		return c.run.store.UploadAsset(ctx, "image", fetched.data, opts)
	})
	if err != nil {
		c.log(LevelWarn, "image_upload_failed", Fields{"id": b.RawID(), "err": err.Error()})
		return nil, false
	}

	c.log(LevelLog, "image_uploaded", Fields{"id": b.RawID(), "assetId": ref.ID})
	return ref, true
}

// imageFilename is image.filename, else arena-<id>-<unixms>.<ext>.
func (c *channelRun) imageFilename(b arena.Block, blockID string, data []byte) string {
	if name := b.ImageFilename(); name != "" {
		return name
	}

	ext := ""
	if ct := b.ImageContentType(); ct != "" {
		if _, sub, found := strings.Cut(ct, "/"); found {
			ext = sub
		}
	}
	if ext == "" {
		ext = strings.TrimPrefix(mimetype.Detect(data).Extension(), ".")
	}
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("arena-%s-%d.%s", blockID, c.run.opts.Now().UnixMilli(), ext)
}

// fixDrift removes this channel from documents that were not seen in the
// pass and flags documents left without channels as orphans.
func (c *channelRun) fixDrift(ctx context.Context) {
	c.setPhase(phaseDriftCleanup)
	o := c.run.opts

	docs, err := resilience.Do(ctx, o.StoreTimeout, c.retryOpts("store.drift.fetch"), func(ctx context.Context) ([]store.Document, error) {
		return c.run.store.FindByChannel(ctx, DocumentType, c.slug)
	})
	if err != nil {
		c.log(LevelWarn, "drift_fetch_failed", Fields{"ch": c.slug, "err": err.Error()})
		return
	}

	for _, d := range docs {
		id := d.ID()
		if id == "" || c.seen[id] {
			continue
		}
		if isLocked(d) || studioOwned(d, "channels") {
			continue
		}

		current, _ := channelsFromDoc(d)
		remaining := EnsureKeys(withoutChannel(current, c.slug))

		patch := c.run.store.Patch(id).Set(map[string]any{
			"channels":     remaining,
			"lastSyncedAt": c.run.timestamp(),
			"lastSyncedBy": SyncActor,
		})
		if len(remaining) == 0 {
			patch.Set(map[string]any{"isOrphan": true})
		}

		if err := c.commit(ctx, patch, "store.patch.drift"); err != nil {
			c.result.Errors++
			c.log(LevelWarn, "orphan_patch_failed", Fields{"id": id, "err": err.Error()})
			continue
		}
		c.result.OrphanedUpdated++
		c.log(LevelLog, "orphaned_updated", Fields{"id": id, "orphan": len(remaining) == 0})
	}
}

func uploadableClass(class string) bool {
	return class == "Image" || class == "Link"
}

func blockSourceTitle(b arena.Block) string {
	if t := b.Title(); t != "" {
		return t
	}
	return b.GeneratedTitle()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfFalse(s string, ok bool) any {
	if !ok {
		return nil
	}
	return s
}

func safeHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}
