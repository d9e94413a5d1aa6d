package vectorstore

import (
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/chunkers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/summarize"
)

// ChunkRecord is a chunk plus its embedding, ready for insertion.
// A zero embedding marks a failed embedding; the row is stored but
// excluded from the vector index.
type ChunkRecord struct {
	Chunk     chunkers.Chunk
	Embedding []float32
}

// SummaryRecord is a summary plus its embedding.
type SummaryRecord struct {
	Summary   summarize.Summary
	Embedding []float32
}

// STPRecord is one social-tipping-point chunk ready for the STP store.
type STPRecord struct {
	ID                string
	ChunkID           string
	DocName           string
	OriginalText      string
	RephrasedText     string
	Confidence        float64
	QualifyingFactors string
	TokenCount        int
	Embedding         []float32
}

// SearchResult is one hit from a vector search, normalized across the
// chunk and summary databases.
type SearchResult struct {
	ID          string
	DocIdent    string
	Bucket      bucket.Bucket
	Content     string
	Title       string
	SectionType string
	Score       float64
	Source      string
	CreatedAt   time.Time
}

// Result source labels.
const (
	SourceChunk   = "chunk"
	SourceSummary = "summary"
	SourceSTP     = "stp"
)
