// Package ui holds layout helpers shared by the terminal views.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mail2tasks/internal/theme"
)

// Frame lays out a full-screen view as a one-line header, a body and a
// one-line status bar.
type Frame struct {
	Width  int
	Height int
}

// NewFrame creates a Frame for a terminal of the given size.
func NewFrame(width, height int) Frame {
	return Frame{Width: width, Height: height}
}

// BodyHeight returns the lines left for the body once the header and
// status bar are drawn. It is never negative.
func (f Frame) BodyHeight() int {
	return max(f.Height-2, 0)
}

// Header renders the title on the left and info right-aligned, filling
// the gap with the header background.
func (f Frame) Header(title, info string) string {
	return f.bar(theme.HeaderStyle, title, info)
}

// StatusBar renders a full-width status line.
func (f Frame) StatusBar(text string) string {
	return f.bar(theme.StatusBarStyle, text, "")
}

// Render joins the header, body and status bar vertically.
func (f Frame) Render(header, body, status string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

func (f Frame) bar(style lipgloss.Style, left, right string) string {
	l := style.Render(left)
	var r string
	if right != "" {
		r = style.Render(right)
	}

	gap := max(f.Width-lipgloss.Width(l)-lipgloss.Width(r), 0)
	filler := lipgloss.NewStyle().
		Width(gap).
		Background(style.GetBackground()).
		Render("")

	return lipgloss.JoinHorizontal(lipgloss.Top, l, filler, r)
}
