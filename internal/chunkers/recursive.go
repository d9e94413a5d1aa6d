package chunkers

import "strings"

// Default separators in order of preference (largest to smallest boundaries).
var defaultSeparators = []string{
	"\n\n\n", // Triple newline (section break)
	"\n\n",   // Double newline (paragraph)
	"\n",     // Single newline
	". ",     // Sentence end
	"? ",     // Question end
	"! ",     // Exclamation end
	"; ",     // Semicolon
	", ",     // Comma
	" ",      // Space
	"",       // Character level (last resort)
}

// RecursiveSplitter splits text by progressively smaller separators,
// parameterized by chunk size and overlap ratio. It is the shared
// primitive under every bucket chunker.
type RecursiveSplitter struct {
	chunkSize    int
	overlapRatio float64
	separators   []string
}

// NewRecursiveSplitter creates a splitter with the default separator set.
func NewRecursiveSplitter(chunkSize int, overlapRatio float64) *RecursiveSplitter {
	return &RecursiveSplitter{
		chunkSize:    chunkSize,
		overlapRatio: overlapRatio,
		separators:   defaultSeparators,
	}
}

// WithSeparators replaces the ordered separator set.
func (s *RecursiveSplitter) WithSeparators(separators []string) *RecursiveSplitter {
	s.separators = separators
	return s
}

// Split divides text into segments no longer than the chunk size, with
// the configured overlap carried between adjacent segments.
func (s *RecursiveSplitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	segments := s.splitRecursive(text, s.separators)
	overlap := int(float64(s.chunkSize) * s.overlapRatio)
	return s.merge(segments, overlap)
}

// splitRecursive splits text using the first applicable separator.
func (s *RecursiveSplitter) splitRecursive(text string, separators []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}

	if len(separators) == 0 {
		return s.splitBySize(text)
	}

	sep := separators[0]
	remaining := separators[1:]

	if sep == "" {
		return s.splitBySize(text)
	}

	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		// Separator not found; try next
		return s.splitRecursive(text, remaining)
	}

	var result []string
	for _, part := range parts {
		if part == "" {
			continue
		}

		// Keep sentence punctuation with its sentence
		if sep != " " && sep != "\n" && sep != "\n\n" && sep != "\n\n\n" {
			part = part + strings.TrimRight(sep, " ")
		}

		if len(part) <= s.chunkSize {
			result = append(result, part)
		} else {
			result = append(result, s.splitRecursive(part, remaining)...)
		}
	}

	return result
}

// splitBySize splits text into fixed-size pieces.
func (s *RecursiveSplitter) splitBySize(text string) []string {
	var result []string
	for len(text) > 0 {
		end := min(s.chunkSize, len(text))
		result = append(result, text[:end])
		text = text[end:]
	}
	return result
}

// merge combines small segments up to the chunk size, carrying overlap
// text between consecutive chunks.
func (s *RecursiveSplitter) merge(segments []string, overlap int) []string {
	var out []string
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			out = append(out, text)
		}
		current.Reset()
		if overlap > 0 && len(text) > overlap {
			current.WriteString(text[len(text)-overlap:])
			current.WriteString(" ")
		}
	}

	for _, seg := range segments {
		if current.Len()+len(seg)+1 > s.chunkSize && current.Len() > 0 {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(seg)
	}

	if strings.TrimSpace(current.String()) != "" {
		text := strings.TrimSpace(current.String())
		// Suppress a trailing chunk that is pure overlap of the previous one
		if len(out) == 0 || !strings.HasSuffix(out[len(out)-1], text) {
			out = append(out, text)
		}
	}

	return out
}
