package story

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/alreadydone/alreadydone-server/internal/domain"
)

// MaxBodyRunes bounds a stored story body, counted in code points after NFC.
const MaxBodyRunes = 2600

// MaxThemeRunes bounds a stored theme.
const MaxThemeRunes = 120

var themeLine = regexp.MustCompile(`(?i)^(THEME|TITLE):\s*(.*)$`)

var fallbackThemes = map[domain.DesireCategory]string{
	domain.CategoryLove:   "The Love That Was Always Here",
	domain.CategoryMoney:  "The Abundance That Arrived",
	domain.CategoryCareer: "The Work That Found Me",
	domain.CategoryHealth: "The Vitality That Was Already Yours",
	domain.CategoryHome:   "The Home That Was Waiting",
}

// ParseResponse splits a model answer into theme and body.
//
// The first line reading "THEME: ..." (or the older "TITLE: ...", any case)
// carries the theme and everything after it is the body. Without such a
// line the theme is empty and the whole answer is the body.
func ParseResponse(text string) (theme, body string) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	for i, line := range lines {
		m := themeLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		return strings.TrimSpace(m[2]), joinBody(lines[i+1:])
	}

	return "", joinBody(lines)
}

// joinBody drops leading blank lines and trailing whitespace.
func joinBody(lines []string) string {
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	return strings.TrimRightFunc(strings.Join(lines, "\n"), unicode.IsSpace)
}

// FallbackTheme returns theme trimmed, or the fixed title for category when
// the trimmed theme is empty. Unknown categories have no fallback.
func FallbackTheme(category domain.DesireCategory, theme string) string {
	if t := strings.TrimSpace(theme); t != "" {
		return t
	}
	return fallbackThemes[category]
}

// Truncate normalizes s to NFC and cuts it to at most limit code points.
// After a cut only trailing whitespace is removed.
func Truncate(s string, limit int) string {
	s = norm.NFC.String(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	n := 0
	for i := range s {
		if n == limit {
			return strings.TrimRightFunc(s[:i], unicode.IsSpace)
		}
		n++
	}
	return s
}
