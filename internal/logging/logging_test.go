package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arenasync/arenasync/internal/sync"
)

func event(msg string, fields sync.Fields) sync.Event {
	return sync.Event{
		Run:    "1700000000000-abcdef",
		Level:  sync.LevelWarn,
		Msg:    msg,
		Fields: fields,
		Time:   time.Date(2024, 5, 1, 13, 4, 5, 0, time.Local),
	}
}

func TestFormatConsole(t *testing.T) {
	got := FormatConsole(event("image_fetch_not_ok", sync.Fields{"status": 404, "id": 7}))
	assert.Equal(t, `[13:04:05] WARN image_fetch_not_ok {"id":7,"status":404}`, got)

	assert.Equal(t, "[13:04:05] WARN empty_channel", FormatConsole(event("empty_channel", nil)))
}

func TestConsoleSink(t *testing.T) {
	var buf bytes.Buffer
	sink := ConsoleSink(&buf)
	sink(event("a", nil))
	sink(event("b", nil))
	assert.Equal(t, "[13:04:05] WARN a\n[13:04:05] WARN b\n", buf.String())
}

func TestFanout(t *testing.T) {
	var got []string
	a := func(ev sync.Event) { got = append(got, "a:"+ev.Msg) }
	b := func(ev sync.Event) { got = append(got, "b:"+ev.Msg) }

	Fanout(a, nil, b)(event("x", nil))
	assert.Equal(t, []string{"a:x", "b:x"}, got)
}

func TestJSONLSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	sink, err := NewJSONLSink(DefaultFileConfig(path))
	require.NoError(t, err)

	sink.Write(event("first", sync.Fields{"ch": "a"}))
	sink.Sink()(event("second", nil))
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "first", lines[0]["msg"])
	assert.Equal(t, "a", lines[0]["ch"])
	assert.Equal(t, "warn", lines[0]["lvl"])
	assert.Equal(t, "1700000000000-abcdef", lines[1]["run"])
}

func TestJSONLSinkRequiresPath(t *testing.T) {
	_, err := NewJSONLSink(FileConfig{})
	assert.Error(t, err)
}
