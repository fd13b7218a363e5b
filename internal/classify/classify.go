// Package classify holds the structural heuristics used during page extraction:
// boilerplate (header/footer) lines, section headings, and tabular text.
package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/yomu/internal/models"
)

const (
	// EdgeLines is how many lines at each end of a page are inspected for boilerplate.
	EdgeLines = 3
	// shortLineLimit bounds the trigger-word rule.
	shortLineLimit = 50
	// HeadingMinFontSize must be exceeded for a span to count as a heading.
	HeadingMinFontSize = 12.0
	// HeadingMaxLength bounds heading text length in characters.
	HeadingMaxLength = 100
	// MinTableLines is the fewest consecutive tabular lines that form a fallback table.
	MinTableLines = 2
)

var (
	pageNumberRe = regexp.MustCompile(`^\s*\d+\s*$`)
	dateRe       = regexp.MustCompile(`\d{4}[-/]\d{1,2}[-/]\d{1,2}`)
	tabularRe    = regexp.MustCompile(`\t| {3,}`)

	triggerWords = []string{"page", "chapter", "section", "©", "copyright"}
)

// IsBoilerplate reports whether line looks like a running header or footer.
func IsBoilerplate(line string) bool {
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) < 3 {
		return false
	}
	if pageNumberRe.MatchString(line) {
		return true
	}
	if dateRe.MatchString(line) {
		return true
	}
	if utf8.RuneCountInString(line) < shortLineLimit {
		lower := strings.ToLower(line)
		for _, w := range triggerWords {
			if strings.Contains(lower, w) {
				return true
			}
		}
	}
	return false
}

// StripBoilerplate removes boilerplate lines from the first and last EdgeLines lines of text.
// Pages with EdgeLines lines or fewer are returned unchanged. Empty lines are dropped from the body.
func StripBoilerplate(text string) (body string, headers, footers []string) {
	lines := strings.Split(text, "\n")
	if len(lines) <= EdgeLines {
		return text, nil, nil
	}

	drop := make(map[int]bool)
	for i := 0; i < EdgeLines; i++ {
		if IsBoilerplate(lines[i]) {
			headers = append(headers, strings.TrimSpace(lines[i]))
			drop[i] = true
		}
	}
	for i := len(lines) - EdgeLines; i < len(lines); i++ {
		if drop[i] {
			continue
		}
		if IsBoilerplate(lines[i]) {
			footers = append(footers, strings.TrimSpace(lines[i]))
			drop[i] = true
		}
	}

	kept := make([]string, 0, len(lines))
	for i, l := range lines {
		if drop[i] || strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n"), headers, footers
}

// IsHeading reports whether a span reads as a section title.
func IsHeading(s models.Span) bool {
	text := strings.TrimSpace(s.Text)
	if text == "" {
		return false
	}
	if s.FontSize <= HeadingMinFontSize {
		return false
	}
	if !s.Bold() && !s.Italic() {
		return false
	}
	if utf8.RuneCountInString(text) >= HeadingMaxLength {
		return false
	}
	return !strings.HasSuffix(text, ".")
}

// IsTabularLine reports whether line has column separators: a tab or a run of three or more spaces.
func IsTabularLine(line string) bool {
	return tabularRe.MatchString(line)
}

// GroupTabularLines returns runs of at least MinTableLines consecutive tabular lines.
func GroupTabularLines(lines []string) [][]string {
	var groups [][]string
	var cur []string
	flush := func() {
		if len(cur) >= MinTableLines {
			groups = append(groups, cur)
		}
		cur = nil
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" && IsTabularLine(l) {
			cur = append(cur, l)
			continue
		}
		flush()
	}
	flush()
	return groups
}

// SplitCells splits a tabular line on tabs and runs of three or more spaces.
func SplitCells(line string) []string {
	parts := tabularRe.Split(strings.TrimSpace(line), -1)
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}
