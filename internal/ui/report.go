// Package ui renders Change Sets and transaction outcomes for the command line.
package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"mcpguard/internal/baseline"
	"mcpguard/internal/model"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Format selects how a report is written.
type Format int

const (
	// FormatAuto renders markdown on a terminal and plain text otherwise.
	FormatAuto Format = iota
	FormatPlain
	FormatPretty
	FormatJSON
)

// Options controls report rendering.
type Options struct {
	Format Format
	Width  int
	// Style is a glamour standard style. Empty means detect.
	Style string
}

// Render writes cs to w.
func Render(w io.Writer, cs *model.ChangeSet, opts Options) error {
	format := opts.Format
	if format == FormatAuto {
		format = FormatPlain
		if IsTerminal(w) {
			format = FormatPretty
		}
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cs)
	case FormatPretty:
		out, err := Pretty(Markdown(cs), opts)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, out)
		return err
	default:
		_, err := io.WriteString(w, Plain(cs))
		return err
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Headline summarises cs in one line.
func Headline(cs *model.ChangeSet) string {
	if cs.Empty() {
		return "No changes: every tracked file matches its baseline."
	}
	counts := cs.Counts()
	var parts []string
	for _, k := range []model.Kind{model.KindModified, model.KindAdded, model.KindRemoved, model.KindUnreadable} {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return fmt.Sprintf("%d change(s) detected: %s", len(cs.Entries), strings.Join(parts, ", "))
}

// Plain renders cs without any styling.
func Plain(cs *model.ChangeSet) string {
	var b strings.Builder
	b.WriteString(Headline(cs))
	b.WriteString("\n")
	if cs.Empty() {
		return b.String()
	}
	for _, e := range cs.Entries {
		fmt.Fprintf(&b, "\n== %s [%s]\n   %s\n", e.DisplayName, e.Kind, e.Path)
		for _, line := range strings.Split(strings.TrimRight(e.DiffText, "\n"), "\n") {
			b.WriteString("   ")
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Markdown renders cs as a markdown document with one diff block per entry.
func Markdown(cs *model.ChangeSet) string {
	var b strings.Builder
	b.WriteString("# MCP configuration check\n\n")
	b.WriteString(Headline(cs))
	b.WriteString("\n")
	if cs.Empty() {
		return b.String()
	}
	for _, e := range cs.Entries {
		fmt.Fprintf(&b, "\n## %s (%s)\n\n`%s`\n\n", e.DisplayName, e.Kind, e.Path)
		fence := "```"
		for strings.Contains(e.DiffText, fence) {
			fence += "`"
		}
		b.WriteString(fence + "diff\n")
		b.WriteString(strings.TrimRight(e.DiffText, "\n"))
		b.WriteString("\n" + fence + "\n")
	}
	return b.String()
}

// Pretty renders markdown for the terminal with glamour.
func Pretty(markdown string, opts Options) (string, error) {
	style := opts.Style
	if style == "" {
		style = DetectGlamourStyle(200 * time.Millisecond)
	}
	width := opts.Width
	if width <= 0 {
		width = 100
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}

// DetectGlamourStyle picks "dark" or "light" from the terminal background,
// honouring GLAMOUR_STYLE when it names a concrete style. Detection gives up
// after timeout.
func DetectGlamourStyle(timeout time.Duration) string {
	style := os.Getenv("GLAMOUR_STYLE")
	if style != "" && style != "auto" {
		return style
	}

	ch := make(chan string, 1)
	go func() {
		out := termenv.NewOutput(os.Stdout)
		if out.HasDarkBackground() {
			ch <- "dark"
			return
		}
		ch <- "light"
	}()

	select {
	case s := <-ch:
		return s
	case <-time.After(timeout):
		return "dark"
	}
}

// Outcome describes the result of a revert or accept for the operator.
func Outcome(action string, cs *model.ChangeSet, err error) string {
	if err == nil {
		n := 0
		if cs != nil {
			n = len(cs.Entries)
		}
		return fmt.Sprintf("%s: %d path(s) done.", action, n)
	}

	var pf *baseline.PartialFailureError
	if errors.As(err, &pf) {
		var b strings.Builder
		fmt.Fprintf(&b, "%s: %d path(s) failed:", action, len(pf.Failures))
		for _, f := range pf.Failures {
			fmt.Fprintf(&b, "\n  %s: %v", f.Path, f.Err)
		}
		return b.String()
	}
	return fmt.Sprintf("%s failed: %v", action, err)
}
