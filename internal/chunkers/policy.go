package chunkers

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
)

const policyChunkerName = "policy_structural"

// Policy chunks are kept inside hard character bounds. Chunks below the
// minimum merge up into their neighbor; chunks above the maximum split
// down with the recursive splitter.
const (
	policyMinChunkChars = 100
	policyMaxChunkChars = 1000
	policyOverlapRatio  = 0.10
)

// policySections maps heading keywords to structural section labels.
var policySections = []struct {
	keywords []string
	label    string
}{
	{[]string{"preamble", "whereas", "recital"}, SectionPreamble},
	{[]string{"definition", "interpretation", "terms used"}, SectionDefinitions},
	{[]string{"enforcement", "penalt", "sanction", "compliance", "offence", "offense"}, SectionEnforcement},
	{[]string{"amendment", "transitional", "repeal", "entry into force"}, SectionAmendments},
	{[]string{"annex", "appendix"}, SectionAnnexes},
	{[]string{"schedule"}, SectionSchedules},
}

// legalRefPattern matches citations to legal structure such as
// "Article 6", "Section 12(3)", "Chapter IV", "Paragraph 2" or
// "Regulation (EU) 2021/1119".
var legalRefPattern = regexp.MustCompile(`(?i)\b(?:article|section|chapter|paragraph|clause|annex|schedule|part)\s+(?:\d+[a-z]?(?:\(\d+\))*|[IVXLC]+)\b|\bregulation\s+\(\w+\)\s+\d{4}/\d+\b|\bdirective\s+\d{4}/\d+(?:/\w+)?\b`)

// hierarchicalMarker matches numbering that opens a new provision, such
// as "Article 4", "4.", "4.1", "(a)" or "§ 12".
var hierarchicalMarker = regexp.MustCompile(`(?i)^\s*(?:article\s+\d+|section\s+\d+|chapter\s+[IVXLC\d]+|§\s*\d+|\d+(?:\.\d+)*\.?\s|\([a-z]\)\s)`)

// PolicyChunker splits legal and policy documents along their structural
// hierarchy, tagging each chunk with the legal references it cites.
type PolicyChunker struct {
	logger *slog.Logger
}

// NewPolicyChunker creates the policy-document chunker.
func NewPolicyChunker(logger *slog.Logger) *PolicyChunker {
	return &PolicyChunker{logger: logger}
}

// Name returns the chunker's identifier.
func (c *PolicyChunker) Name() string {
	return policyChunkerName
}

// Chunk splits the elements into structure-aware chunks within the
// policy size bounds.
func (c *PolicyChunker) Chunk(ctx context.Context, elements []extract.Element, filename string) ([]Chunk, error) {
	if len(elements) == 0 {
		c.logger.Warn("no elements to chunk", "filename", filename)
		return []Chunk{}, nil
	}

	sections := c.classify(elements)

	var pieces []policyPiece
	for _, sec := range sections {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		pieces = append(pieces, c.splitSection(sec)...)
	}

	pieces = c.mergeSmall(pieces)

	chunks := make([]Chunk, 0, len(pieces))
	for i, p := range pieces {
		ch := newChunk(filename, bucket.Policy, p.text, i, policyChunkerName)
		ch.Metadata[MetaSectionType] = p.label
		if refs := ExtractLegalReferences(p.text); len(refs) > 0 {
			ch.Metadata[MetaLegalReferences] = refs
		}
		chunks = append(chunks, ch)
	}

	return reindex(chunks), nil
}

// policyPiece is a section-labeled text span before chunk assembly.
type policyPiece struct {
	label string
	text  string
}

// classify assigns each element run to a structural section. Content
// before the first recognized heading is preamble; unmatched headings
// fall into main_provisions.
func (c *PolicyChunker) classify(elements []extract.Element) []policyPiece {
	var out []policyPiece
	current := policyPiece{label: SectionPreamble}

	flush := func() {
		if strings.TrimSpace(current.text) != "" {
			out = append(out, current)
		}
	}

	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}

		if el.IsTitle() || (len(text) < 120 && hierarchicalMarker.MatchString(text)) {
			flush()
			current = policyPiece{label: c.labelFor(text), text: text}
			continue
		}

		if el.Type == extract.ElementTable {
			flush()
			out = append(out, policyPiece{label: SectionTables, text: text})
			current = policyPiece{label: current.label}
			continue
		}

		if current.text != "" {
			current.text += "\n\n"
		}
		current.text += text
	}
	flush()

	return out
}

// labelFor maps a heading to a policy section label.
func (c *PolicyChunker) labelFor(heading string) string {
	lower := strings.ToLower(heading)
	for _, s := range policySections {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				return s.label
			}
		}
	}
	return SectionMainProvisions
}

// splitSection breaks an oversized section down with the recursive
// splitter, preserving the section label on every piece.
func (c *PolicyChunker) splitSection(p policyPiece) []policyPiece {
	if len(p.text) <= policyMaxChunkChars {
		return []policyPiece{p}
	}
	splitter := NewRecursiveSplitter(policyMaxChunkChars, policyOverlapRatio)
	parts := splitter.Split(p.text)
	out := make([]policyPiece, 0, len(parts))
	for _, part := range parts {
		out = append(out, policyPiece{label: p.label, text: part})
	}
	return out
}

// mergeSmall folds undersized pieces into the preceding piece of the
// same label, or the following one when there is no predecessor.
func (c *PolicyChunker) mergeSmall(pieces []policyPiece) []policyPiece {
	var out []policyPiece
	for _, p := range pieces {
		if len(p.text) >= policyMinChunkChars || len(out) == 0 {
			out = append(out, p)
			continue
		}
		prev := &out[len(out)-1]
		if prev.label == p.label && len(prev.text)+len(p.text)+2 <= policyMaxChunkChars {
			prev.text += "\n\n" + p.text
		} else {
			out = append(out, p)
		}
	}

	// Forward pass: a small head piece merges into its successor.
	if len(out) >= 2 && len(out[0].text) < policyMinChunkChars &&
		out[0].label == out[1].label &&
		len(out[0].text)+len(out[1].text)+2 <= policyMaxChunkChars {
		out[1].text = out[0].text + "\n\n" + out[1].text
		out = out[1:]
	}

	return out
}

// ExtractLegalReferences returns the distinct legal citations found in
// text, normalized to lower case, in first-appearance order.
func ExtractLegalReferences(text string) []string {
	matches := legalRefPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	var refs []string
	for _, m := range matches {
		norm := strings.ToLower(strings.Join(strings.Fields(m), " "))
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		refs = append(refs, norm)
	}
	return refs
}
