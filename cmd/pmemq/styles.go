package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Color palette
	primaryColor = lipgloss.Color("#7D56F4")
	successColor = lipgloss.Color("#04B575")
	errorColor   = lipgloss.Color("#FF4B4B")
)

// styles holds the text styles for one output stream. The renderer detects
// whether the stream is a terminal, so redirected output stays plain.
type styles struct {
	header lipgloss.Style
	ok     lipgloss.Style
	bad    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	if noColor {
		return styles{header: lipgloss.NewStyle(), ok: lipgloss.NewStyle(), bad: lipgloss.NewStyle()}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		header: r.NewStyle().Bold(true).Foreground(primaryColor),
		ok:     r.NewStyle().Foreground(successColor),
		bad:    r.NewStyle().Foreground(errorColor),
	}
}

// check renders a ✓ or ✗ line body.
func (s styles) check(ok bool, good, bad string) string {
	if ok {
		return s.pass(good)
	}
	return s.fail(bad)
}

func (s styles) fail(msg string) string { return s.bad.Render("✗ " + msg) }

func (s styles) pass(msg string) string { return s.ok.Render("✓ " + msg) }
