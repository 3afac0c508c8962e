package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/aryannaik/image-search/internal/indexer"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	doneStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// report writes the user-facing sync summary. Styling is applied only
// when the output is a terminal.
type report struct {
	w      io.Writer
	styled bool
}

func (r report) render(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}

func (r report) line(label, value string) {
	fmt.Fprintf(r.w, "%s %s\n", r.render(labelStyle, label+":"), value)
}

func (r report) scanning(root string) {
	r.line("Scanning", root)
}

func (r report) summary(sum indexer.Summary) {
	r.line("Found", humanize.Comma(int64(sum.Found))+" images")
	r.line("Unchanged", humanize.Comma(int64(sum.Unchanged)))
	r.line("New", humanize.Comma(int64(sum.New)))
	r.line("Modified", humanize.Comma(int64(sum.Modified)))
	r.line("Removed", humanize.Comma(int64(sum.Removed)))
	if sum.Retried > 0 {
		r.line("Retried", humanize.Comma(int64(sum.Retried)))
	}

	if sum.NothingToDo {
		fmt.Fprintln(r.w, r.render(mutedStyle, "Nothing to do"))
		return
	}
	if sum.Estimated > 0 || sum.DryRun {
		r.line("Estimated time", formatDuration(sum.Estimated))
	}
	if sum.DryRun {
		return
	}

	fmt.Fprintf(r.w, "\n%s Embedded %s images in %s\n",
		r.render(doneStyle, "Done!"), humanize.Comma(int64(sum.Embedded)), formatDuration(sum.Elapsed))
	r.line("Speed", fmt.Sprintf("%.1f images/second", sum.Throughput()))
	if sum.Failed > 0 {
		fmt.Fprintln(r.w, r.render(warnStyle,
			fmt.Sprintf("Warning: %s images could not be embedded and are excluded from search", humanize.Comma(int64(sum.Failed)))))
	}
}

// formatDuration renders d as milliseconds, seconds, minutes or hours with
// one decimal.
func formatDuration(d time.Duration) string {
	switch s := d.Seconds(); {
	case s < 1:
		return fmt.Sprintf("%.0fms", s*1000)
	case s < 60:
		return fmt.Sprintf("%.1fs", s)
	case s < 3600:
		return fmt.Sprintf("%.1fm", s/60)
	default:
		return fmt.Sprintf("%.1fh", s/3600)
	}
}
