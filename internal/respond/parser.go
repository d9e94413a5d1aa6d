// Package respond generates the final LLM answer and parses its
// delimited output. The parser is total: any byte string yields a
// non-empty content field, and it never returns an error.
package respond

import (
	"regexp"
	"strings"
	"sync/atomic"
	"unicode"
)

// DefaultTitle substitutes for unusable titles.
const DefaultTitle = "Climate Information"

// defaultContent substitutes when no content can be recovered at all.
const defaultContent = "I was unable to generate a response. Please try rephrasing your question."

// Delimiter markers the model is instructed to emit.
const (
	markerTitleStart   = "===TITLE_START==="
	markerTitleEnd     = "===TITLE_END==="
	markerContentStart = "===CONTENT_START==="
	markerContentEnd   = "===CONTENT_END==="
)

// reservedMarkers are the keywords the smart-marker rule must not
// mistake for a title.
var reservedMarkers = []string{
	"TITLE_START", "TITLE_END", "CONTENT_START", "CONTENT_END", "TITLE", "CONTENT",
}

// Mode selects how much the parser extracts. Continue conversations
// never carry a title.
type Mode int

const (
	// ModeStart extracts both title and content.
	ModeStart Mode = iota
	// ModeContinue extracts content only; the title is always empty.
	ModeContinue
)

// Parsed is the parser output.
type Parsed struct {
	Title   string
	Content string

	// Fallback is set when the primary marker-pair strategy did not
	// produce the result.
	Fallback bool
}

// Parser applies a fixed sequence of extraction strategies and counts
// how often the primary one misses.
type Parser struct {
	fallbacks atomic.Int64
}

// NewParser creates a parser.
func NewParser() *Parser {
	return &Parser{}
}

// Fallbacks returns how many parses needed a non-primary strategy.
func (p *Parser) Fallbacks() int64 {
	return p.fallbacks.Load()
}

// strategy attempts one extraction; ok is false when it does not apply.
type strategy func(raw string, mode Mode) (title, content string, ok bool)

// Parse runs the strategy chain over a raw model reply. The first
// strategy that applies wins; the terminal default guarantees totality.
func (p *Parser) Parse(raw string, mode Mode) Parsed {
	strategies := []strategy{
		parseMarkerPairs,
		parseSmartMarkers,
		parseTagPairs,
		parseRawHeuristic,
	}

	for i, s := range strategies {
		title, content, ok := s(raw, mode)
		if !ok {
			continue
		}
		out := finalize(title, content, mode)
		if i > 0 {
			out.Fallback = true
			p.fallbacks.Add(1)
		}
		return out
	}

	p.fallbacks.Add(1)
	out := finalize("", strings.TrimSpace(raw), mode)
	out.Fallback = true
	return out
}

// finalize cleans both fields and enforces the title rules.
func finalize(title, content string, mode Mode) Parsed {
	content = cleanContent(content)
	if content == "" {
		content = defaultContent
	}

	if mode == ModeContinue {
		return Parsed{Content: content}
	}

	title = cleanTitle(title)
	if len(title) < 3 || containsReservedMarker(title) {
		title = DefaultTitle
	}
	return Parsed{Title: title, Content: content}
}

// parseMarkerPairs handles the canonical ===X_START===/===X_END===
// contract. For continue mode only the content pair is required.
func parseMarkerPairs(raw string, mode Mode) (string, string, bool) {
	content, cok := between(raw, markerContentStart, markerContentEnd)
	if !cok {
		return "", "", false
	}
	title, tok := between(raw, markerTitleStart, markerTitleEnd)
	if mode == ModeStart && !tok {
		return "", "", false
	}
	return title, content, true
}

// smartMarkerRe matches a ===...=== wrapped line.
var smartMarkerRe = regexp.MustCompile(`^===\s*(.+?)\s*===$`)

// canonicalMarkers are the exact keywords of the primary contract; a
// ===X=== line wrapping one of these is never an improvised title.
var canonicalMarkers = map[string]bool{
	"TITLE_START": true, "TITLE_END": true, "CONTENT_START": true, "CONTENT_END": true,
}

// parseSmartMarkers handles replies where the model improvised a title
// marker: content markers are present, and one of the first ten
// non-empty lines is ===X=== with X outside the canonical keyword set.
// A bare ===Title=== label names the line that follows it; any other
// wrapped string is the title itself.
func parseSmartMarkers(raw string, mode Mode) (string, string, bool) {
	content, cok := between(raw, markerContentStart, markerContentEnd)
	if !cok {
		return "", "", false
	}
	if mode == ModeContinue {
		return "", content, true
	}

	lines := strings.Split(raw, "\n")
	seen := 0
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seen++
		if seen > 10 {
			break
		}
		m := smartMarkerRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		wrapped := strings.TrimSpace(m[1])
		if canonicalMarkers[strings.ToUpper(wrapped)] {
			continue
		}
		if strings.EqualFold(wrapped, "title") {
			if next := nextPlainLine(lines[i+1:]); next != "" {
				return next, content, true
			}
			continue
		}
		return wrapped, content, true
	}

	// Content markers alone still parse; the title defaults later.
	return "", content, true
}

// nextPlainLine returns the first following non-empty line that is not
// itself a marker line.
func nextPlainLine(lines []string) string {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if smartMarkerRe.MatchString(line) {
			return ""
		}
		return line
	}
	return ""
}

var (
	tagTitleRe   = regexp.MustCompile(`(?is)<title>(.*?)</title>`)
	tagContentRe = regexp.MustCompile(`(?is)<content>(.*?)</content>`)
)

// parseTagPairs handles the <TITLE>/<CONTENT> variant, case-insensitive.
func parseTagPairs(raw string, _ Mode) (string, string, bool) {
	cm := tagContentRe.FindStringSubmatch(raw)
	if cm == nil {
		return "", "", false
	}
	title := ""
	if tm := tagTitleRe.FindStringSubmatch(raw); tm != nil {
		title = tm[1]
	}
	return title, cm[1], true
}

// parseRawHeuristic extracts a title from an unmarked reply: the first
// line of 3 to 12 words with at least half its words capitalized. The
// remainder is the content. Applies only when the text has any body.
func parseRawHeuristic(raw string, mode Mode) (string, string, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", "", false
	}
	if mode == ModeContinue {
		return "", text, true
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if looksLikeTitle(line) {
			rest := strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
			if rest == "" {
				rest = line
			}
			return line, rest, true
		}
		break
	}
	return "", text, true
}

// looksLikeTitle reports whether a line reads as a heading: 3-12 words,
// at least 50% of them starting upper-case.
func looksLikeTitle(line string) bool {
	words := strings.Fields(line)
	if len(words) < 3 || len(words) > 12 {
		return false
	}
	capitalized := 0
	for _, w := range words {
		r := []rune(w)[0]
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			capitalized++
		}
	}
	return capitalized*2 >= len(words)
}

// between extracts the text between two markers.
func between(s, start, end string) (string, bool) {
	i := strings.Index(s, start)
	if i < 0 {
		return "", false
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		// Unterminated block: take everything after the start marker.
		return rest, true
	}
	return rest[:j], true
}

var blankRunRe = regexp.MustCompile(`\n{3,}`)

// cleanContent strips marker residue and tag artifacts while preserving
// paragraph breaks. Runs of three or more newlines collapse to two.
func cleanContent(content string) string {
	content = stripMarkerText(content)
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = blankRunRe.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// cleanTitle strips marker residue, tag artifacts, and wrapping quotes.
func cleanTitle(title string) string {
	title = stripMarkerText(title)
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'“”‘’`)
	title = strings.TrimSpace(strings.Trim(title, "="))
	return strings.TrimSpace(title)
}

var tagArtifactRe = regexp.MustCompile(`(?i)</?(?:title|content)>`)

// stripMarkerText removes every known delimiter token from the text.
func stripMarkerText(s string) string {
	for _, m := range []string{markerTitleStart, markerTitleEnd, markerContentStart, markerContentEnd} {
		s = strings.ReplaceAll(s, m, "")
	}
	return tagArtifactRe.ReplaceAllString(s, "")
}

func containsReservedMarker(s string) bool {
	upper := strings.ToUpper(s)
	for _, kw := range reservedMarkers {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}
