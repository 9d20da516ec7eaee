// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package progress renders download progress for the modelshelf CLI.
//
// Two renderers cover interactive and non-interactive output:
//
//   - TTYRenderer redraws one line per operation with a bar, rate and ETA
//   - LineRenderer prints timestamped lines at a low frequency for logs and CI
//
// New picks between them by checking whether the writer is a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Renderer displays progress for named operations.
type Renderer interface {
	// Render updates the display for operation. total may be 0 when the
	// size is unknown, in which case fraction drives the bar.
	Render(operation, status string, fraction float64, completed, total int64)

	// Complete finalizes the display for operation.
	Complete(operation string, success bool, message string)

	// IsTTY reports whether the renderer redraws in place.
	IsTTY() bool
}

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E74C3C")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7F8C8D"))
)

// New returns a TTYRenderer when w is a terminal and a LineRenderer
// otherwise. quiet returns a Silent renderer.
func New(w io.Writer, quiet bool) Renderer {
	if quiet {
		return Silent{}
	}
	if f, ok := w.(*os.File); ok {
		fd := f.Fd()
		if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			return NewTTYRenderer(w)
		}
	}
	return NewLineRenderer(w)
}

// =============================================================================
// Operation State
// =============================================================================

type rateSample struct {
	at        time.Time
	completed int64
}

type operation struct {
	status    string
	fraction  float64
	completed int64
	total     int64
	started   time.Time
	samples   []rateSample
	lastDrawn time.Time
}

const rateWindow = 5 * time.Second

func (o *operation) update(status string, fraction float64, completed, total int64, now time.Time) {
	o.status = status
	o.fraction = fraction
	o.completed = completed
	o.total = total
	o.samples = append(o.samples, rateSample{at: now, completed: completed})

	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(o.samples)-2 && o.samples[i].at.Before(cutoff) {
		i++
	}
	o.samples = o.samples[i:]
}

// rate returns bytes per second over the sample window.
func (o *operation) rate() float64 {
	if len(o.samples) < 2 {
		return 0
	}
	first, last := o.samples[0], o.samples[len(o.samples)-1]
	elapsed := last.at.Sub(first.at).Seconds()
	if elapsed <= 0 || last.completed < first.completed {
		return 0
	}
	return float64(last.completed-first.completed) / elapsed
}

func (o *operation) eta() time.Duration {
	if o.total <= 0 || o.completed >= o.total {
		return 0
	}
	r := o.rate()
	if r <= 0 {
		return 0
	}
	return time.Duration(float64(o.total-o.completed) / r * float64(time.Second))
}

func (o *operation) percent() float64 {
	return clamp(o.fraction) * 100
}

type tracker struct {
	mu  sync.Mutex
	ops map[string]*operation
	now func() time.Time
}

func newTracker() tracker {
	return tracker{ops: make(map[string]*operation), now: time.Now}
}

func (t *tracker) get(name string, now time.Time) *operation {
	op, ok := t.ops[name]
	if !ok {
		op = &operation{started: now}
		t.ops[name] = op
	}
	return op
}

// finish removes name and returns how long it ran.
func (t *tracker) finish(name string, now time.Time) time.Duration {
	op, ok := t.ops[name]
	if !ok {
		return 0
	}
	delete(t.ops, name)
	return now.Sub(op.started)
}

// =============================================================================
// TTY Renderer
// =============================================================================

// TTYRenderer redraws a single progress line using carriage returns.
type TTYRenderer struct {
	tracker
	out      io.Writer
	interval time.Duration
	lastDraw time.Time
}

func NewTTYRenderer(w io.Writer) *TTYRenderer {
	return &TTYRenderer{tracker: newTracker(), out: w, interval: 100 * time.Millisecond}
}

func (r *TTYRenderer) Render(name, status string, fraction float64, completed, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	op := r.get(name, now)
	op.update(status, fraction, completed, total, now)

	if now.Sub(r.lastDraw) < r.interval && fraction < 1 {
		return
	}
	r.lastDraw = now

	label := sanitizeForTerminal(truncateString(name, 30))
	if completed > 0 || total > 0 {
		fmt.Fprintf(r.out, "\r  %s [%s] %5.1f%% (%s / %s) %s %s   ",
			label, bar(op.fraction, 20), op.percent(),
			formatBytes(completed), formatBytes(total),
			formatRate(op.rate()), formatETA(op.eta()))
		return
	}
	fmt.Fprintf(r.out, "\r  %s [%s] %5.1f%% %s   ", label, bar(op.fraction, 20), op.percent(),
		sanitizeForTerminal(status))
}

func (r *TTYRenderer) Complete(name string, success bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	took := r.finish(name, r.now())
	icon := successStyle.Render("✓")
	if !success {
		icon = errorStyle.Render("✗")
	}
	fmt.Fprintf(r.out, "\r\033[K  %s %s: %s %s\n", icon,
		sanitizeForTerminal(name), sanitizeForTerminal(message),
		mutedStyle.Render("("+formatDuration(took)+")"))
}

func (r *TTYRenderer) IsTTY() bool { return true }

// =============================================================================
// Line Renderer
// =============================================================================

// LineRenderer prints one timestamped line per operation every interval.
type LineRenderer struct {
	tracker
	out      io.Writer
	interval time.Duration
}

func NewLineRenderer(w io.Writer) *LineRenderer {
	return &LineRenderer{tracker: newTracker(), out: w, interval: 5 * time.Second}
}

func (r *LineRenderer) Render(name, status string, fraction float64, completed, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	op := r.get(name, now)
	first := op.lastDrawn.IsZero()
	op.update(status, fraction, completed, total, now)
	if !first && now.Sub(op.lastDrawn) < r.interval {
		return
	}
	op.lastDrawn = now

	fmt.Fprintf(r.out, "%s %s: %s %.1f%%", now.Format(time.RFC3339),
		sanitizeForTerminal(name), sanitizeForTerminal(status), op.percent())
	if total > 0 {
		fmt.Fprintf(r.out, " (%s / %s)", formatBytes(completed), formatBytes(total))
	}
	fmt.Fprintln(r.out)
}

func (r *LineRenderer) Complete(name string, success bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	took := r.finish(name, now)
	result := "ok"
	if !success {
		result = "failed"
	}
	fmt.Fprintf(r.out, "%s %s: %s: %s (%s)\n", now.Format(time.RFC3339),
		sanitizeForTerminal(name), result, sanitizeForTerminal(message), formatDuration(took))
}

func (r *LineRenderer) IsTTY() bool { return false }

// Silent discards all output.
type Silent struct{}

func (Silent) Render(string, string, float64, int64, int64) {}
func (Silent) Complete(string, bool, string)                {}
func (Silent) IsTTY() bool                                  { return false }

// =============================================================================
// Formatting
// =============================================================================

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)

// sanitizeForTerminal strips escape sequences and control characters from
// untrusted text such as model names and server messages.
func sanitizeForTerminal(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || r >= 32 && r != 127 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func bar(fraction float64, width int) string {
	filled := int(clamp(fraction) * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)
	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.1f TB", float64(bytes)/TB)
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatBytes is exported for listing commands.
func FormatBytes(bytes int64) string { return formatBytes(bytes) }

func formatRate(bytesPerSec float64) string {
	if bytesPerSec <= 0 {
		return "-- MB/s"
	}
	return formatBytes(int64(bytesPerSec)) + "/s"
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		return "0s"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func formatETA(eta time.Duration) string {
	if eta <= 0 {
		return "calculating..."
	}
	return "ETA: " + formatDuration(eta)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
