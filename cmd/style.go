package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	successStyle = lipgloss.NewStyle().Foreground(colorGreen)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorRed)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorGray)
	labelStyle   = lipgloss.NewStyle().Foreground(colorGray).Width(16)
)

func printHeading(w io.Writer, title string) {
	fmt.Fprintln(w, headingStyle.Render(title))
}

func printSuccess(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render(msg))
}

func printWarning(w io.Writer, msg string) {
	fmt.Fprintln(w, warnStyle.Render(msg))
}

func printError(w io.Writer, msg string) {
	fmt.Fprintln(w, errorStyle.Render(msg))
}

func printMuted(w io.Writer, msg string) {
	fmt.Fprintln(w, mutedStyle.Render(msg))
}

// printField writes an aligned "label value" line.
func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label+":"), value)
}

func onOffLabel(on bool) string {
	if on {
		return successStyle.Render("on")
	}
	return mutedStyle.Render("off")
}

// indent prefixes every line of s.
func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
