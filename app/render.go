package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"procdocs/search"
)

// Styles shared by CLI output and the TUI
var (
	appStyle = lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7aa2f7"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7aa2f7"))

	subHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7dcfff")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a9b1d6"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9ece6a")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e0af68")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f7768e")).
			Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#565f89"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#f7768e")).
			Bold(true)
)

// getTerminalWidth returns the terminal width, defaulting to 80 if unable to detect
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// createSeparator creates a separator line that fits the terminal width
func createSeparator(width int) string {
	if width > 120 {
		width = 120
	}
	return strings.Repeat("━", width)
}

func wrapTextWithIndent(prefix, text string, width int) string {
	prefixWidth := lipgloss.Width(prefix)
	if width-prefixWidth < 10 {
		width = prefixWidth + 10
	}
	indent := strings.Repeat(" ", prefixWidth)
	wrapped := lipgloss.NewStyle().Width(width - prefixWidth).Render(text)
	return prefix + strings.ReplaceAll(wrapped, "\n", "\n"+indent)
}

// highlightSnippet renders the matched keyword inside a snippet. Matching is
// case-insensitive and rune-based, so Cyrillic case variants light up too.
func highlightSnippet(snippet, keyword string) string {
	if keyword == "" {
		return snippet
	}
	runes := []rune(snippet)
	lower := []rune(strings.ToLower(snippet))
	kw := []rune(strings.ToLower(keyword))
	if len(lower) != len(runes) || len(kw) == 0 {
		return snippet
	}

	var b strings.Builder
	last := 0
	for i := 0; i+len(kw) <= len(lower); {
		if string(lower[i:i+len(kw)]) == string(kw) {
			b.WriteString(string(runes[last:i]))
			b.WriteString(highlightStyle.Render(string(runes[i : i+len(kw)])))
			i += len(kw)
			last = i
			continue
		}
		i++
	}
	b.WriteString(string(runes[last:]))
	return b.String()
}

// printGroups writes grouped search results in the terminal layout.
func printGroups(w io.Writer, groups []search.EntryGroup, width int) {
	for i, g := range groups {
		fmt.Fprintln(w, subHeaderStyle.Render(fmt.Sprintf("📄 %d/%d %s", i+1, len(groups), g.Title)))
		fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("    Формат: %s • совпадений: %d", g.Format, g.Total)))
		for _, t := range g.Terms {
			fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("    «%s» × %d", t.Keyword, t.Count)))
			for _, s := range t.Snippets {
				fmt.Fprintln(w, wrapTextWithIndent("      … ", highlightSnippet(s, t.Keyword), width-2))
			}
		}
		fmt.Fprintln(w, separatorStyle.Render(createSeparator(width)))
	}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatFileSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return formatBytes(uint64(size))
}
