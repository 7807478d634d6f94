package sync

import (
	"net/http"
	"time"
)

// Options configures a run.
type Options struct {
	// Channels are the channel slugs to reconcile, in order.
	Channels []string

	PageSize            int
	SourceTimeout       time.Duration
	AssetTimeout        time.Duration
	StoreTimeout        time.Duration
	Retries             int
	Backoff             time.Duration
	ProgressLogInterval int
	HeartbeatInterval   time.Duration
	ImageUpload         ImageUploadMode

	// AssetConcurrency caps in-flight asset fetch+upload operations.
	AssetConcurrency int

	// SkipDriftFix disables removing this run's channels from documents
	// that were not observed in the pass.
	SkipDriftFix bool

	// TimeBudget is the soft wall-clock budget of the run. Zero means
	// unbounded.
	TimeBudget time.Duration

	// OnLog receives every telemetry event. May be nil.
	OnLog func(Event)

	// HTTPClient fetches asset bytes. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Now defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default configuration with no channels.
func DefaultOptions() Options {
	return Options{
		PageSize:            100,
		SourceTimeout:       15 * time.Second,
		AssetTimeout:        15 * time.Second,
		StoreTimeout:        20 * time.Second,
		Retries:             3,
		Backoff:             600 * time.Millisecond,
		ProgressLogInterval: 25,
		HeartbeatInterval:   10 * time.Second,
		ImageUpload:         ImageUploadAuto,
		AssetConcurrency:    3,
	}
}

// withDefaults fills zero values. SkipDriftFix and TimeBudget are taken as given.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.SourceTimeout <= 0 {
		o.SourceTimeout = d.SourceTimeout
	}
	if o.AssetTimeout <= 0 {
		o.AssetTimeout = d.AssetTimeout
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = d.StoreTimeout
	}
	if o.Retries <= 0 {
		o.Retries = d.Retries
	}
	if o.Backoff < 0 {
		o.Backoff = 0
	}
	if o.ProgressLogInterval <= 0 {
		o.ProgressLogInterval = d.ProgressLogInterval
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = d.HeartbeatInterval
	}
	if o.ImageUpload == "" {
		o.ImageUpload = d.ImageUpload
	}
	if o.AssetConcurrency <= 0 {
		o.AssetConcurrency = d.AssetConcurrency
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}
