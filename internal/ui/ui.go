// Package ui renders CLI output with lipgloss, falling back to plain text
// when the output is not a terminal or NO_COLOR is set.
package ui

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/arenasync/arenasync/internal/report"
	"github.com/arenasync/arenasync/internal/store"
	"github.com/arenasync/arenasync/internal/sync"
)

// RuleWidth is the width of the header rule.
const RuleWidth = 40

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Renderer writes styled output to one writer.
type Renderer struct {
	w  io.Writer
	lg *lipgloss.Renderer

	title lipgloss.Style
	label lipgloss.Style
	ok    lipgloss.Style
	fail  lipgloss.Style
	dim   lipgloss.Style
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithProfile forces a colour profile (termenv.Ascii disables styling).
func WithProfile(p termenv.Profile) Option {
	return func(r *Renderer) { r.lg.SetColorProfile(p) }
}

// New returns a Renderer for w. The colour profile is detected from w and
// the environment.
func New(w io.Writer, opts ...Option) *Renderer {
	lg := lipgloss.NewRenderer(w)
	if termenv.EnvNoColor() {
		lg.SetColorProfile(termenv.Ascii)
	}
	r := &Renderer{w: w, lg: lg}
	for _, opt := range opts {
		opt(r)
	}

	r.title = lg.NewStyle().Bold(true)
	r.label = lg.NewStyle().Foreground(lipgloss.Color("8"))
	r.ok = lg.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	r.fail = lg.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	r.dim = lg.NewStyle().Faint(true)
	return r
}

// Header prints a title followed by a rule.
func (r *Renderer) Header(title string) {
	fmt.Fprintln(r.w, r.title.Render(title))
	fmt.Fprintln(r.w, r.dim.Render(strings.Repeat("─", RuleWidth)))
}

// Field prints an aligned "label: value" line.
func (r *Renderer) Field(label, value string) {
	fmt.Fprintf(r.w, "%s %s\n", r.label.Render(fmt.Sprintf("%-13s", label+":")), value)
}

// Line prints a plain line.
func (r *Renderer) Line(format string, args ...any) {
	fmt.Fprintf(r.w, format+"\n", args...)
}

// Summary prints the end-of-run summary.
func (r *Renderer) Summary(res *sync.RunResult, elapsed time.Duration) {
	fmt.Fprintln(r.w)
	r.Header("Sync complete")

	status := r.ok.Render("SUCCESS")
	if !res.Success {
		status = r.fail.Render("FAILED")
	}
	r.Field("Status", status)
	r.Field("Duration", report.FormatDuration(elapsed))
	r.Field("Updated", fmt.Sprintf("%d documents", res.UpdatedOrCreated))
	r.Field("Run", r.dim.Render(res.SyncRunID))

	if len(res.Channels) == 0 {
		return
	}
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.title.Render("Per-channel results:"))
	for _, c := range res.Channels {
		mark := r.ok.Render("✓")
		if !c.Success {
			mark = r.fail.Render("✗")
		}
		fmt.Fprintf(r.w, "  %s %s: %d created, %d updated, %d unchanged, %d orphaned\n",
			mark, c.Channel, c.Created, c.Updated, c.SkippedUnchanged, c.OrphanedUpdated)
		if c.Errors > 0 {
			fmt.Fprintf(r.w, "    %s\n", r.fail.Render(fmt.Sprintf("(%d errors)", c.Errors)))
		}
		if !c.Success && c.Message != "" {
			fmt.Fprintf(r.w, "    %s\n", r.dim.Render(c.Message))
		}
	}
}

// Stats prints store statistics.
func (r *Renderer) Stats(st *store.Stats, path string) {
	r.Header("arena-sync status")
	r.Field("Store", path)
	r.Field("Documents", fmt.Sprintf("%d", st.Documents))
	r.Field("Orphans", fmt.Sprintf("%d", st.Orphans))
	r.Field("Assets", fmt.Sprintf("%d", st.Assets))

	if len(st.Channels) == 0 {
		return
	}
	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.title.Render("Channels:"))
	for _, slug := range slices.Sorted(maps.Keys(st.Channels)) {
		fmt.Fprintf(r.w, "  %-24s %d\n", slug, st.Channels[slug])
	}
}
