package log

import (
	"regexp"
	"sort"

	"github.com/charmbracelet/lipgloss"
)

var (
	dimStyle = lipgloss.NewStyle().Faint(true)

	// Styles for the highlight kinds registered by the driver.
	kindStyles = map[string]lipgloss.Style{
		"name": lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("11")),
		"zone": lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		"host": lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}

	highlights []highlight
)

type highlight struct {
	re    *regexp.Regexp
	style lipgloss.Style
}

// RegisterHighlights registers word highlighting rules applied by Style.
// Kind selects one of the built-in styles (name, zone, host); unknown kinds
// are ignored. Later registrations take precedence over earlier ones.
func RegisterHighlights(kind string, words []string) {
	style, ok := kindStyles[kind]
	if !ok || len(words) == 0 {
		return
	}

	// Longest first so a name does not clip its own prefix.
	sorted := make([]string, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	pattern := `\b(`
	for i, w := range sorted {
		if i > 0 {
			pattern += `|`
		}
		pattern += regexp.QuoteMeta(w)
	}
	pattern += `)\b`

	re, err := regexp.Compile(pattern)
	if err != nil {
		return
	}
	highlights = append([]highlight{{re, style}}, highlights...)
}

// Style applies the registered highlight rules to s.
func Style(s string) string {
	for _, h := range highlights {
		s = h.re.ReplaceAllStringFunc(s, func(m string) string {
			return h.style.Render(m)
		})
	}
	return s
}
