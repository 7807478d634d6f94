package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/arenasync/arenasync/internal/resilience"
)

// ErrNoChannels is returned when a run is started without channels.
var ErrNoChannels = errors.New("no channels configured")

// Engine reconciles channels from a ContentSource into a DocumentStore.
// An Engine may run repeatedly; each Run gets a fresh run id.
type Engine struct {
	src   ContentSource
	store DocumentStore
	opts  Options

	assetSem chan struct{}
}

// New creates an Engine. Zero-valued options are replaced by defaults.
func New(src ContentSource, st DocumentStore, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		src:      src,
		store:    st,
		opts:     opts,
		assetSem: make(chan struct{}, opts.AssetConcurrency),
	}
}

// Run is a convenience for New(src, st, opts).Run(ctx).
func Run(ctx context.Context, src ContentSource, st DocumentStore, opts Options) (*RunResult, error) {
	return New(src, st, opts).Run(ctx)
}

// runState is the per-run state shared by the channel passes.
type runState struct {
	*Engine

	emit      *emitter
	runID     string
	startedAt time.Time

	titlesMu stdsync.RWMutex
	titles   map[string]string
}

// Run reconciles every configured channel sequentially and returns the
// aggregate result. It only returns an error for configuration problems
// detected before any channel is processed.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	if e.src == nil {
		return nil, fmt.Errorf("content source is required")
	}
	if e.store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	channels := normalizeChannels(e.opts.Channels)
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}

	now := e.opts.Now()
	runID := NewRunID(now)
	r := &runState{
		Engine:    e,
		emit:      &emitter{run: runID, sink: e.opts.OnLog, now: e.opts.Now},
		runID:     runID,
		startedAt: now,
		titles:    make(map[string]string, len(channels)),
	}

	r.resolveTitles(ctx, channels)
	r.emit.emit(LevelLog, "run_start", Fields{"channels": channels, "imageUpload": string(e.opts.ImageUpload)})

	res := &RunResult{SyncRunID: runID}
	for _, slug := range channels {
		cr := r.reconcileChannel(ctx, slug)
		res.Channels = append(res.Channels, cr)
		res.UpdatedOrCreated += cr.Created + cr.Updated
		res.StatusMessages = append(res.StatusMessages, fmt.Sprintf("%s: %s", slug, cr.Message))

		if !r.withinBudget() {
			r.emit.emit(LevelWarn, "time_budget_exhausted", Fields{"after": slug})
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	allFailed := len(res.Channels) > 0
	for _, cr := range res.Channels {
		if cr.Success {
			allFailed = false
			break
		}
	}

	res.Success = !allFailed
	res.OverallSuccess = !allFailed
	res.Message = MessageRunSucceeded
	if allFailed {
		res.Message = MessageRunFailed
	}

	r.emit.emit(LevelLog, "run_complete", Fields{
		"success":          res.Success,
		"updatedOrCreated": res.UpdatedOrCreated,
		"durationMs":       e.opts.Now().Sub(now).Milliseconds(),
	})
	return res, nil
}

// NewRunID returns "<unix ms>-<6 random chars>".
func NewRunID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}

func normalizeChannels(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// resolveTitles looks up channel titles once. Failures leave the slug
// unresolved so the first page can fill it in.
func (r *runState) resolveTitles(ctx context.Context, channels []string) {
	info, ok := r.src.(ChannelInfoSource)
	if !ok {
		return
	}
	for _, slug := range channels {
		ci, err := resilience.WithTimeout(ctx, r.opts.SourceTimeout, "source.channel_info", func(ctx context.Context) (string, error) {
			ci, err := info.GetChannelInfo(ctx, slug)
			if err != nil || ci == nil {
				return "", err
			}
			return ci.Title, nil
		})
		if err != nil {
			r.emit.emit(LevelWarn, "channel_info_failed", Fields{"ch": slug, "err": err.Error()})
			continue
		}
		if ci != "" {
			r.setTitleIfMissing(slug, ci)
		}
	}
}

func (r *runState) setTitleIfMissing(slug, title string) {
	r.titlesMu.Lock()
	defer r.titlesMu.Unlock()
	if _, ok := r.titles[slug]; !ok {
		r.titles[slug] = title
	}
}

func (r *runState) title(slug string) string {
	r.titlesMu.RLock()
	defer r.titlesMu.RUnlock()
	if t := r.titles[slug]; t != "" {
		return t
	}
	return slug
}

func (r *runState) titleSnapshot() map[string]string {
	r.titlesMu.RLock()
	defer r.titlesMu.RUnlock()
	out := make(map[string]string, len(r.titles))
	for k, v := range r.titles {
		out[k] = v
	}
	return out
}

func (r *runState) withinBudget() bool {
	if r.opts.TimeBudget <= 0 {
		return true
	}
	return r.opts.Now().Sub(r.startedAt) < r.opts.TimeBudget
}

func (r *runState) timestamp() string {
	return r.opts.Now().UTC().Format(time.RFC3339Nano)
}

func (r *runState) acquireAsset(ctx context.Context) error {
	select {
	case r.assetSem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *runState) releaseAsset() {
	<-r.assetSem
}
