// Package config loads arena-sync settings from flags, environment and an
// optional config file.
//
// Precedence, highest first: bound cobra flags, environment variables
// (ARENA_SYNC_*, plus ARENA_ACCESS_TOKEN and ARENA_CHANNELS), the config file
// (arena-sync.yaml, .toml or .json in the working directory or
// $HOME/.config/arena-sync), then defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arenasync/arenasync/internal/sync"
)

// ErrMissingCredential is returned when a required access token is absent.
var ErrMissingCredential = errors.New("missing credential")

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ARENA_SYNC"

// Keys.
const (
	KeyChannels            = "channels"
	KeyPageSize            = "page_size"
	KeySourceTimeout       = "source_timeout"
	KeyAssetTimeout        = "asset_timeout"
	KeyStoreTimeout        = "store_timeout"
	KeyRetries             = "retries"
	KeyBackoff             = "backoff"
	KeyProgressLogInterval = "progress_log_interval"
	KeyHeartbeat           = "heartbeat"
	KeyImageUpload         = "image_upload"
	KeyAssetConcurrency    = "asset_concurrency"
	KeyDriftFix            = "drift_fix"
	KeyTimeBudget          = "time_budget"
	KeyDeadline            = "deadline"

	KeyStorePath      = "store.path"
	KeyStoreURL       = "store.url"
	KeyStoreAuthToken = "store.auth_token"

	KeyS3Bucket = "assets.s3_bucket"
	KeyS3Prefix = "assets.s3_prefix"
	KeyS3Region = "assets.s3_region"

	KeyArenaBaseURL     = "arena.base_url"
	KeyArenaAccessToken = "arena.access_token"

	KeyLogFile       = "log.file"
	KeyLogMaxSizeMB  = "log.max_size_mb"
	KeyLogMaxBackups = "log.max_backups"

	KeyDashboardHost = "dashboard.host"
	KeyDashboardPort = "dashboard.port"

	KeyDaemonInterval = "daemon.interval"
)

// DefaultStorePath is where the local document store lives by default.
const DefaultStorePath = ".arena-sync/documents.db"

// Config is the fully resolved configuration.
type Config struct {
	Sync      sync.Options
	Store     StoreConfig
	Assets    AssetsConfig
	Arena     ArenaConfig
	Log       LogConfig
	Dashboard DashboardConfig
	Daemon    DaemonConfig

	// File is the config file that was read, empty if none.
	File string
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Path      string
	URL       string
	AuthToken string
}

// AssetsConfig selects where uploaded image bytes go. An empty bucket keeps
// them inline in the store.
type AssetsConfig struct {
	S3Bucket string
	S3Prefix string
	S3Region string
}

// ArenaConfig configures the content source client.
type ArenaConfig struct {
	BaseURL     string
	AccessToken string
}

// LogConfig configures the JSONL event log. An empty File disables it.
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// DashboardConfig configures the optional event stream. Port 0 disables it.
type DashboardConfig struct {
	Host string
	Port int
}

// DaemonConfig configures periodic sync.
type DaemonConfig struct {
	Interval time.Duration
}

// New returns a viper instance with defaults and environment bindings set.
// If configFile is non-empty it is read; otherwise the standard locations
// are searched and a missing file is not an error.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unprefixed names used by existing deployments.
	_ = v.BindEnv(KeyArenaAccessToken, EnvPrefix+"_ARENA_ACCESS_TOKEN", "ARENA_ACCESS_TOKEN")
	_ = v.BindEnv(KeyChannels, EnvPrefix+"_CHANNELS", "ARENA_CHANNELS")

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigName("arena-sync")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "arena-sync"))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	d := sync.DefaultOptions()
	v.SetDefault(KeyChannels, []string{})
	v.SetDefault(KeyPageSize, d.PageSize)
	v.SetDefault(KeySourceTimeout, d.SourceTimeout)
	v.SetDefault(KeyAssetTimeout, d.AssetTimeout)
	v.SetDefault(KeyStoreTimeout, d.StoreTimeout)
	v.SetDefault(KeyRetries, d.Retries)
	v.SetDefault(KeyBackoff, d.Backoff)
	v.SetDefault(KeyProgressLogInterval, d.ProgressLogInterval)
	v.SetDefault(KeyHeartbeat, d.HeartbeatInterval)
	v.SetDefault(KeyImageUpload, string(d.ImageUpload))
	v.SetDefault(KeyAssetConcurrency, d.AssetConcurrency)
	v.SetDefault(KeyDriftFix, !d.SkipDriftFix)
	v.SetDefault(KeyTimeBudget, time.Duration(0))
	v.SetDefault(KeyDeadline, "")

	v.SetDefault(KeyStorePath, DefaultStorePath)
	v.SetDefault(KeyStoreURL, "")
	v.SetDefault(KeyStoreAuthToken, "")
	v.SetDefault(KeyS3Bucket, "")
	v.SetDefault(KeyS3Prefix, "")
	v.SetDefault(KeyS3Region, "")
	v.SetDefault(KeyArenaBaseURL, "")
	v.SetDefault(KeyArenaAccessToken, "")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 5)
	v.SetDefault(KeyDashboardHost, "localhost")
	v.SetDefault(KeyDashboardPort, 0)
	v.SetDefault(KeyDaemonInterval, 15*time.Minute)
}

// Load resolves v into a Config. now anchors a natural-language deadline.
func Load(v *viper.Viper, now time.Time) (*Config, error) {
	mode, err := sync.ParseImageUploadMode(v.GetString(KeyImageUpload))
	if err != nil {
		return nil, err
	}

	budget := v.GetDuration(KeyTimeBudget)
	if budget < 0 {
		return nil, fmt.Errorf("%s must not be negative", KeyTimeBudget)
	}
	if expr := strings.TrimSpace(v.GetString(KeyDeadline)); expr != "" {
		d, err := ParseDeadline(expr, now)
		if err != nil {
			return nil, err
		}
		if budget == 0 || d < budget {
			budget = d
		}
	}

	opts := sync.DefaultOptions()
	opts.Channels = SplitChannels(v.Get(KeyChannels))
	opts.PageSize = v.GetInt(KeyPageSize)
	opts.SourceTimeout = v.GetDuration(KeySourceTimeout)
	opts.AssetTimeout = v.GetDuration(KeyAssetTimeout)
	opts.StoreTimeout = v.GetDuration(KeyStoreTimeout)
	opts.Retries = v.GetInt(KeyRetries)
	opts.Backoff = v.GetDuration(KeyBackoff)
	opts.ProgressLogInterval = v.GetInt(KeyProgressLogInterval)
	opts.HeartbeatInterval = v.GetDuration(KeyHeartbeat)
	opts.ImageUpload = mode
	opts.AssetConcurrency = v.GetInt(KeyAssetConcurrency)
	opts.SkipDriftFix = !v.GetBool(KeyDriftFix)
	opts.TimeBudget = budget

	cfg := &Config{
		Sync: opts,
		Store: StoreConfig{
			Path:      v.GetString(KeyStorePath),
			URL:       v.GetString(KeyStoreURL),
			AuthToken: v.GetString(KeyStoreAuthToken),
		},
		Assets: AssetsConfig{
			S3Bucket: v.GetString(KeyS3Bucket),
			S3Prefix: v.GetString(KeyS3Prefix),
			S3Region: v.GetString(KeyS3Region),
		},
		Arena: ArenaConfig{
			BaseURL:     v.GetString(KeyArenaBaseURL),
			AccessToken: v.GetString(KeyArenaAccessToken),
		},
		Log: LogConfig{
			File:       v.GetString(KeyLogFile),
			MaxSizeMB:  v.GetInt(KeyLogMaxSizeMB),
			MaxBackups: v.GetInt(KeyLogMaxBackups),
		},
		Dashboard: DashboardConfig{
			Host: v.GetString(KeyDashboardHost),
			Port: v.GetInt(KeyDashboardPort),
		},
		Daemon: DaemonConfig{
			Interval: v.GetDuration(KeyDaemonInterval),
		},
		File: v.ConfigFileUsed(),
	}
	return cfg, nil
}

// Validate checks what a real sync needs: at least one channel and an
// Are.na access token.
func (c *Config) Validate() error {
	if len(c.Sync.Channels) == 0 {
		return sync.ErrNoChannels
	}
	if c.Arena.AccessToken == "" {
		return fmt.Errorf("%w: set ARENA_ACCESS_TOKEN or %s", ErrMissingCredential, KeyArenaAccessToken)
	}
	return nil
}

// SplitChannels normalizes a channels value: a comma separated string or a
// list whose entries may themselves be comma separated.
func SplitChannels(raw any) []string {
	var parts []string
	switch x := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(x, ",")
	case []string:
		for _, s := range x {
			parts = append(parts, strings.Split(s, ",")...)
		}
	case []any:
		for _, s := range x {
			parts = append(parts, strings.Split(fmt.Sprint(s), ",")...)
		}
	default:
		parts = strings.Split(fmt.Sprint(x), ",")
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
