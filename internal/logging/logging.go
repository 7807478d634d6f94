// Package logging provides sinks for engine telemetry events.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	stdsync "sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arenasync/arenasync/internal/sync"
)

// Sink receives engine events.
type Sink func(sync.Event)

// Fanout delivers each event to every non-nil sink in order.
func Fanout(sinks ...Sink) Sink {
	var active []Sink
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}
	return func(ev sync.Event) {
		for _, s := range active {
			s(ev)
		}
	}
}

// FileConfig configures the rotating JSONL event log.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultFileConfig returns rotation defaults for path.
func DefaultFileConfig(path string) FileConfig {
	return FileConfig{Path: path, MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30, Compress: true}
}

// JSONLSink writes one JSON object per event to a rotating file.
type JSONLSink struct {
	mu  stdsync.Mutex
	out io.WriteCloser
}

// NewJSONLSink opens (or creates) the event log described by cfg.
func NewJSONLSink(cfg FileConfig) (*JSONLSink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("event log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &JSONLSink{out: &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}}, nil
}

// Write encodes ev as one line. Encoding errors are reported on stderr;
// telemetry never fails a run.
func (s *JSONLSink) Write(ev sync.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to encode event %s: %v\n", ev.Msg, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write event log: %v\n", err)
	}
}

// Sink returns s.Write as a Sink.
func (s *JSONLSink) Sink() Sink { return s.Write }

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// ConsoleSink prints events as "[HH:MM:SS] LEVEL msg {fields}".
func ConsoleSink(w io.Writer) Sink {
	var mu stdsync.Mutex
	return func(ev sync.Event) {
		line := FormatConsole(ev)
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintln(w, line)
	}
}

// FormatConsole renders ev in the console format. The run id is omitted;
// fields are printed as JSON with sorted keys.
func FormatConsole(ev sync.Event) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(ev.Time.Format("15:04:05"))
	b.WriteString("] ")
	b.WriteString(strings.ToUpper(string(ev.Level)))
	b.WriteString(" ")
	b.WriteString(ev.Msg)

	if len(ev.Fields) > 0 {
		keys := make([]string, 0, len(ev.Fields))
		for k := range ev.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			v, err := json.Marshal(ev.Fields[k])
			if err != nil {
				v = []byte(fmt.Sprintf("%q", fmt.Sprint(ev.Fields[k])))
			}
			parts = append(parts, fmt.Sprintf("%q:%s", k, v))
		}
		b.WriteString(" {")
		b.WriteString(strings.Join(parts, ","))
		b.WriteString("}")
	}
	return b.String()
}
