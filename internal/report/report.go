// Package report encodes sync results for output.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/arenasync/arenasync/internal/sync"
)

// Format is an output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat parses a format name. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML, FormatTOML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, json, yaml or toml)", s)
	}
}

// Summary is a RunResult plus the wall-clock duration of the run.
type Summary struct {
	sync.RunResult `yaml:",inline"`
	Duration       string `json:"duration" yaml:"duration" toml:"duration"`
}

// Write encodes res to w.
func Write(w io.Writer, f Format, res *sync.RunResult, elapsed time.Duration) error {
	if res == nil {
		return fmt.Errorf("no result to report")
	}
	sum := Summary{RunResult: *res, Duration: FormatDuration(elapsed)}

	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(sum); err != nil {
			return fmt.Errorf("failed to encode toml: %w", err)
		}
		_, err := w.Write(buf.Bytes())
		return err
	default:
		_, err := io.WriteString(w, Text(res, elapsed))
		return err
	}
	return nil
}

// Text renders the plain summary printed at the end of a run.
func Text(res *sync.RunResult, elapsed time.Duration) string {
	var b strings.Builder
	status := "SUCCESS"
	if !res.Success {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "Status:   %s\n", status)
	fmt.Fprintf(&b, "Duration: %s\n", FormatDuration(elapsed))
	fmt.Fprintf(&b, "Updated:  %d documents\n", res.UpdatedOrCreated)
	fmt.Fprintf(&b, "Run:      %s\n", res.SyncRunID)

	if len(res.Channels) > 0 {
		b.WriteString("\nPer-channel results:\n")
		for _, c := range res.Channels {
			mark := "✓"
			if !c.Success {
				mark = "✗"
			}
			fmt.Fprintf(&b, "  %s %s: %d created, %d updated, %d unchanged, %d orphaned\n",
				mark, c.Channel, c.Created, c.Updated, c.SkippedUnchanged, c.OrphanedUpdated)
			if c.Errors > 0 {
				fmt.Fprintf(&b, "    (%d errors)\n", c.Errors)
			}
		}
	}
	return b.String()
}

// FormatDuration renders d as "850ms", "12s" or "2m 5s".
func FormatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := ms / 1000
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}
