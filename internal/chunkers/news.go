package chunkers

import (
	"context"
	"log/slog"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
)

const (
	newsChunkerName  = "news_recursive"
	newsChunkSize    = 512
	newsOverlapRatio = 0.15
)

// NewsChunker splits news article text with the plain recursive
// splitter. Articles arrive one per ingestion unit so no structural
// classification is needed.
type NewsChunker struct {
	logger *slog.Logger
}

// NewNewsChunker creates the news-article chunker.
func NewNewsChunker(logger *slog.Logger) *NewsChunker {
	return &NewsChunker{logger: logger}
}

// Name returns the chunker's identifier.
func (c *NewsChunker) Name() string {
	return newsChunkerName
}

// Chunk splits the article elements into fixed-size overlapping chunks.
func (c *NewsChunker) Chunk(ctx context.Context, elements []extract.Element, filename string) ([]Chunk, error) {
	if len(elements) == 0 {
		c.logger.Warn("no elements to chunk", "filename", filename)
		return []Chunk{}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	text := extract.FullText(elements)
	splitter := NewRecursiveSplitter(newsChunkSize, newsOverlapRatio)

	var chunks []Chunk
	for i, piece := range splitter.Split(text) {
		chunks = append(chunks, newChunk(filename, bucket.News, piece, i, newsChunkerName))
	}
	return chunks, nil
}
