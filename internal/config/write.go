package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape written by `arena-sync init`.
type File struct {
	Channels    []string   `yaml:"channels" toml:"channels"`
	ImageUpload string     `yaml:"image_upload" toml:"image_upload"`
	DriftFix    bool       `yaml:"drift_fix" toml:"drift_fix"`
	Store       FileStore  `yaml:"store" toml:"store"`
	Assets      FileAssets `yaml:"assets,omitempty" toml:"assets,omitempty"`
}

// FileStore is the store section of File.
type FileStore struct {
	Path string `yaml:"path,omitempty" toml:"path,omitempty"`
	URL  string `yaml:"url,omitempty" toml:"url,omitempty"`
}

// FileAssets is the assets section of File.
type FileAssets struct {
	S3Bucket string `yaml:"s3_bucket,omitempty" toml:"s3_bucket,omitempty"`
	S3Prefix string `yaml:"s3_prefix,omitempty" toml:"s3_prefix,omitempty"`
	S3Region string `yaml:"s3_region,omitempty" toml:"s3_region,omitempty"`
}

// Encode serializes f as TOML when path ends in .toml and YAML otherwise.
func Encode(path string, f File) ([]byte, error) {
	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.NewEncoder(&buf).Encode(f); err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
	case ".yaml", ".yml", "":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q (want .yaml or .toml)", filepath.Ext(path))
	}
	return buf.Bytes(), nil
}

// WriteFile encodes f to path. It refuses to overwrite unless force is set.
func WriteFile(path string, f File, force bool) error {
	data, err := Encode(path, f)
	if err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
