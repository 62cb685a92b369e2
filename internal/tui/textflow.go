package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// flowText soft-wraps text to a column budget while keeping the newlines
// already present. Pad spaces the wrapper appends are stripped so flowed
// blocks can be joined vertically without ragged right edges.
func flowText(text string, width int) string {
	if width <= 0 {
		return text
	}
	var out []string
	for _, line := range strings.Split(normalizeNewlines(text), "\n") {
		out = append(out, flowLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func flowLine(line string, width int) []string {
	if line == "" {
		return []string{""}
	}
	parts := strings.Split(lipgloss.NewStyle().Width(width).Render(line), "\n")
	for i := range parts {
		parts[i] = strings.TrimRight(parts[i], " ")
	}
	return parts
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// flowLabeled lays out body after a leading label ("> ", "ASSISTANT: ")
// with continuation lines indented to the label's width, so a wrapped
// message reads as one hanging block. A label wider than the budget falls
// back to plain flowing of the joined text.
func flowLabeled(label, body string, width int) string {
	if width <= 0 {
		return label + body
	}
	labelWidth := lipgloss.Width(label)
	if labelWidth >= width {
		return flowText(label+body, width)
	}

	lines := strings.Split(flowText(body, width-labelWidth), "\n")
	pad := strings.Repeat(" ", labelWidth)

	var b strings.Builder
	for i, line := range lines {
		if i == 0 {
			b.WriteString(label)
		} else {
			b.WriteString("\n")
			b.WriteString(pad)
		}
		b.WriteString(line)
	}
	return b.String()
}
