package chunkers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
)

const researchChunkerName = "research_imrad"

// Section-specific chunk sizes for research papers, with a shared 15%
// overlap. Abstracts are kept tight so they embed as one unit.
const (
	researchAbstractSize    = 300
	researchMethodologySize = 600
	researchResultsSize     = 450
	researchDefaultSize     = 512
	researchOverlapRatio    = 0.15
)

// imradSection maps IMRAD title keywords to section labels.
var imradSections = []struct {
	keywords []string
	label    string
}{
	{[]string{"abstract", "summary"}, SectionAbstract},
	{[]string{"method", "methodology", "materials", "experimental", "data and methods"}, SectionMethodology},
	{[]string{"result", "finding"}, SectionResults},
	{[]string{"discussion", "conclusion", "implication"}, SectionDiscussion},
}

// ResearchChunker classifies elements into IMRAD sections by title scan
// and chunks each section with its own size policy. Reference sections
// are identified and excluded.
type ResearchChunker struct {
	logger *slog.Logger
}

// NewResearchChunker creates the research-paper chunker.
func NewResearchChunker(logger *slog.Logger) *ResearchChunker {
	return &ResearchChunker{logger: logger}
}

// Name returns the chunker's identifier.
func (c *ResearchChunker) Name() string {
	return researchChunkerName
}

// section groups consecutive elements under one IMRAD label.
type section struct {
	label string
	texts []string
	page  int
}

// Chunk splits the elements into IMRAD-aware chunks.
func (c *ResearchChunker) Chunk(ctx context.Context, elements []extract.Element, filename string) ([]Chunk, error) {
	if len(elements) == 0 {
		c.logger.Warn("no elements to chunk", "filename", filename)
		return []Chunk{}, nil
	}

	sections, excludedRefs := c.classify(elements)
	if excludedRefs > 0 {
		c.logger.Info("excluded reference elements",
			"filename", filename,
			"count", excludedRefs)
	}

	var chunks []Chunk
	for _, sec := range sections {
		if ctx.Err() != nil {
			return chunks, ctx.Err()
		}

		text := strings.Join(sec.texts, "\n\n")
		splitter := NewRecursiveSplitter(c.sizeFor(sec.label), researchOverlapRatio)
		for _, piece := range splitter.Split(text) {
			ch := newChunk(filename, bucket.ResearchPapers, piece, len(chunks), researchChunkerName)
			ch.Metadata[MetaSectionType] = sec.label
			if sec.page > 0 {
				ch.Metadata[MetaPageNumber] = sec.page
			}
			chunks = append(chunks, ch)
		}
	}

	return reindex(chunks), nil
}

// classify walks the elements, opening a new section at each title and
// dropping everything under a references heading. It returns the
// sections plus the count of excluded reference elements.
func (c *ResearchChunker) classify(elements []extract.Element) ([]section, int) {
	var sections []section
	current := section{label: SectionOther}
	inReferences := false
	excluded := 0

	flush := func() {
		if len(current.texts) > 0 {
			sections = append(sections, current)
		}
	}

	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}

		if el.IsTitle() {
			if IsReferenceHeading(text) {
				inReferences = true
				excluded++
				continue
			}
			flush()
			current = section{label: c.labelFor(text), page: el.PageNumber}
			inReferences = false
			continue
		}

		if inReferences {
			excluded++
			continue
		}

		switch el.Type {
		case extract.ElementTable:
			flush()
			sections = append(sections, section{label: SectionTables, texts: []string{text}, page: el.PageNumber})
			current = section{label: current.label, page: current.page}
		case extract.ElementFigureCaption:
			flush()
			sections = append(sections, section{label: SectionFigures, texts: []string{text}, page: el.PageNumber})
			current = section{label: current.label, page: current.page}
		default:
			if LooksLikeReferenceText(text) {
				excluded++
				continue
			}
			current.texts = append(current.texts, text)
		}
	}
	flush()

	return sections, excluded
}

// labelFor maps a section title to an IMRAD label.
func (c *ResearchChunker) labelFor(title string) string {
	lower := strings.ToLower(title)
	for _, s := range imradSections {
		for _, kw := range s.keywords {
			if strings.Contains(lower, kw) {
				return s.label
			}
		}
	}
	return SectionOther
}

// sizeFor returns the chunk size for a section label.
func (c *ResearchChunker) sizeFor(label string) int {
	switch label {
	case SectionAbstract:
		return researchAbstractSize
	case SectionMethodology:
		return researchMethodologySize
	case SectionResults:
		return researchResultsSize
	default:
		return researchDefaultSize
	}
}
