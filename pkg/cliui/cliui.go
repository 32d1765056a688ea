// Package cliui holds the terminal styles, the step spinner and the markdown
// renderer shared by mnemo commands.
package cliui

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	HeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	IDStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ScoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
)

// typeColors gives each memory type its own color in listings.
var typeColors = map[string]lipgloss.Color{
	"rule":          "196",
	"preference":    "213",
	"fact":          "39",
	"skill":         "82",
	"error":         "208",
	"context":       "245",
	"persona_trait": "141",
}

// TypeTag renders a memory type as a colored "[type]" tag.
func TypeTag(t string) string {
	color, ok := typeColors[t]
	if !ok {
		color = "245"
	}
	return lipgloss.NewStyle().Foreground(color).Render("[" + t + "]")
}

// spinnerFrames is the braille "dot" spinner.
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const spinnerInterval = 80 * time.Millisecond

// Step animates a spinner next to msg while fn runs, then overwrites the
// line with a mark and the elapsed time. It returns fn's error.
func Step(w io.Writer, msg string, fn func() error) error {
	stop := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()

		for frame := 0; ; frame++ {
			fmt.Fprintf(w, "\r  %s %s", spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), msg)
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	// The spinner must be gone before the result line is written.
	close(stop)
	<-stopped

	fmt.Fprintf(w, "\r  %s %s %s\n", Mark(err), msg, StepStyle.Render("("+FormatDuration(elapsed)+")"))
	return err
}

// Mark picks SuccessMark or FailMark for err.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration renders sub-second durations in milliseconds and longer ones
// in tenths of a second.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// RenderMarkdown renders content with glamour for an 80 column terminal. On
// failure it returns content unchanged alongside the error.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err != nil {
		return content, err
	}

	out, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return out, nil
}
