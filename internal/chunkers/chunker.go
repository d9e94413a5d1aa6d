// Package chunkers turns extracted elements into persistable chunks.
// Each bucket has its own chunking policy; the shared recursive splitter
// underlies all of them.
package chunkers

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
)

// Metadata keys shared across chunkers.
const (
	MetaStrategy        = "chunker_strategy"
	MetaSectionType     = "section_type"
	MetaLegalReferences = "legal_references"
	MetaRowIndex        = "row_index"
	MetaSplitLineage    = "split_lineage"
	MetaTableGroup      = "table_group"
	MetaPageNumber      = "page_number"
)

// Section type labels used by the research and policy chunkers.
const (
	SectionAbstract       = "abstract"
	SectionMethodology    = "methodology"
	SectionResults        = "results"
	SectionDiscussion     = "discussion"
	SectionReferences     = "references"
	SectionTables         = "tables"
	SectionFigures        = "figures"
	SectionOther          = "other"
	SectionPreamble       = "preamble"
	SectionDefinitions    = "definitions"
	SectionMainProvisions = "main_provisions"
	SectionEnforcement    = "enforcement"
	SectionAmendments     = "amendments"
	SectionAnnexes        = "annexes"
	SectionSchedules      = "schedules"
)

// Chunk is a token-bounded, provenance-tagged span of document text.
// Chunks are immutable once inserted; (DocName, Index) is unique.
type Chunk struct {
	ID         string
	DocName    string
	Bucket     bucket.Bucket
	Text       string
	Index      int
	TokenCount int
	CreatedAt  time.Time
	Metadata   map[string]any
}

// Chunker converts elements into chunks for one bucket. A chunker never
// fails the document: an empty element list yields an empty chunk list.
type Chunker interface {
	// Name returns the chunker's identifier.
	Name() string

	// Chunk splits the elements into ordered chunks with provenance metadata.
	Chunk(ctx context.Context, elements []extract.Element, filename string) ([]Chunk, error)
}

// ForBucket returns the chunker implementing the bucket's policy.
func ForBucket(b bucket.Bucket, logger *slog.Logger) Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	switch b {
	case bucket.ResearchPapers:
		return NewResearchChunker(logger)
	case bucket.Policy:
		return NewPolicyChunker(logger)
	case bucket.ScientificData:
		return NewScientificDataChunker(logger)
	default:
		return NewNewsChunker(logger)
	}
}

// EstimateTokens provides a rough token estimate for text.
// Uses a simple heuristic of ~4 characters per token for English text.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// newChunk builds a chunk with a fresh ID and base metadata. Callers add
// strategy-specific metadata afterwards.
func newChunk(docName string, b bucket.Bucket, text string, index int, strategy string) Chunk {
	return Chunk{
		ID:         uuid.NewString(),
		DocName:    docName,
		Bucket:     b,
		Text:       text,
		Index:      index,
		TokenCount: EstimateTokens(text),
		CreatedAt:  time.Now().UTC(),
		Metadata:   map[string]any{MetaStrategy: strategy},
	}
}

// reindex renumbers chunks sequentially after merge/split passes so the
// ordinal order survives end-to-end.
func reindex(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}
