package chunkers

import (
	"regexp"
	"strings"
)

// referenceHeadings are title strings that open a bibliography section.
var referenceHeadings = []string{
	"references",
	"bibliography",
	"works cited",
	"literature cited",
	"citations",
}

// citationPattern matches numbered citation lines such as "[12] Smith"
// or "12. Smith, J. (2020)".
var citationPattern = regexp.MustCompile(`^\s*(?:\[\d+\]|\d+\.)\s+\p{Lu}`)

// doiPattern matches DOI or arXiv identifiers that dominate reference text.
var doiPattern = regexp.MustCompile(`(?i)\b(?:doi:|https?://doi\.org/|arxiv:)\S+`)

// IsReferenceHeading reports whether the title text opens a reference
// section.
func IsReferenceHeading(title string) bool {
	normalized := strings.ToLower(strings.TrimSpace(strings.TrimRight(title, ":.")))
	for _, h := range referenceHeadings {
		if normalized == h {
			return true
		}
	}
	return false
}

// LooksLikeReferenceText reports whether a body of text is dominated by
// citation entries. Used as a fallback when a document has no explicit
// reference heading.
func LooksLikeReferenceText(text string) bool {
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return false
	}

	citationLines := 0
	checked := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		checked++
		if citationPattern.MatchString(line) || doiPattern.MatchString(line) {
			citationLines++
		}
	}

	if checked < 3 {
		return false
	}
	return float64(citationLines)/float64(checked) >= 0.5
}
