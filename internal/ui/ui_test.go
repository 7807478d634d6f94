package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"

	"github.com/arenasync/arenasync/internal/store"
	"github.com/arenasync/arenasync/internal/sync"
)

func plain(buf *bytes.Buffer) *Renderer {
	return New(buf, WithProfile(termenv.Ascii))
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	plain(&buf).Header("arena-sync sync")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{"arena-sync sync", strings.Repeat("─", RuleWidth)}, lines)
}

func TestField(t *testing.T) {
	var buf bytes.Buffer
	plain(&buf).Field("Channels", "a, b")
	assert.Equal(t, "Channels:     a, b\n", buf.String())
}

func TestSummary(t *testing.T) {
	res := &sync.RunResult{
		Success:          false,
		SyncRunID:        "123-abc",
		UpdatedOrCreated: 4,
		Channels: []sync.ChannelResult{
			{Channel: "good", Success: true, Created: 3, Updated: 1, SkippedUnchanged: 2},
			{Channel: "bad", Success: false, Errors: 2, Message: "source.initial failed"},
		},
	}

	var buf bytes.Buffer
	plain(&buf).Summary(res, 65*time.Second)
	out := buf.String()

	assert.Contains(t, out, "Status:       FAILED")
	assert.Contains(t, out, "Duration:     1m 5s")
	assert.Contains(t, out, "Updated:      4 documents")
	assert.Contains(t, out, "✓ good: 3 created, 1 updated, 2 unchanged, 0 orphaned")
	assert.Contains(t, out, "✗ bad:")
	assert.Contains(t, out, "(2 errors)")
	assert.Contains(t, out, "source.initial failed")
	assert.NotContains(t, out, "\x1b[", "ascii profile must not emit escapes")
}

func TestStats(t *testing.T) {
	var buf bytes.Buffer
	plain(&buf).Stats(&store.Stats{
		Documents: 5,
		Orphans:   1,
		Channels:  map[string]int{"zeta": 1, "alpha": 4},
	}, "docs.db")
	out := buf.String()

	assert.Contains(t, out, "Documents:    5")
	assert.Contains(t, out, "Orphans:      1")
	assert.Less(t, strings.Index(out, "alpha"), strings.Index(out, "zeta"))
}
