package stp

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/chunkers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
)


// SemanticChunk is one boundary-scored chunk entering classification.
type SemanticChunk struct {
	ID         string
	Text       string
	TokenCount int
}

// SemanticChunker accumulates sentences into token-bounded chunks,
// closing a chunk when the cross-sentence boundary score clears the
// threshold or the hard token ceiling is reached. Past the target size
// half the threshold suffices, pulling chunk sizes toward the target
// instead of drifting to the ceiling.
type SemanticChunker struct {
	boundary     *BoundaryClient
	minTokens    int
	maxTokens    int
	targetTokens int
	threshold    float64
	logger       *slog.Logger
}

// NewSemanticChunker creates the stage-one chunker.
func NewSemanticChunker(cfg config.STPConfig, boundary *BoundaryClient, logger *slog.Logger) *SemanticChunker {
	if logger == nil {
		logger = slog.Default()
	}
	minTokens := cfg.MinTokens
	if minTokens <= 0 {
		minTokens = config.DefaultSTPMinTokens
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultSTPMaxTokens
	}
	targetTokens := cfg.TargetTokens
	if targetTokens <= 0 {
		targetTokens = config.DefaultSTPTargetTokens
	}
	threshold := cfg.BoundaryThreshold
	if threshold <= 0 {
		threshold = config.DefaultBoundaryThreshold
	}
	return &SemanticChunker{
		boundary:     boundary,
		minTokens:    minTokens,
		maxTokens:    maxTokens,
		targetTokens: targetTokens,
		threshold:    threshold,
		logger:       logger,
	}
}

// ChunkElements runs semantic chunking over pre-extracted elements.
// Reference sections are excluded with the shared heuristics. The
// extractor is never re-invoked here.
func (c *SemanticChunker) ChunkElements(ctx context.Context, elements []extract.Element) ([]SemanticChunk, error) {
	var parts []string
	inReferences := false
	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}
		if el.IsTitle() {
			inReferences = chunkers.IsReferenceHeading(text)
			continue
		}
		if inReferences || chunkers.LooksLikeReferenceText(text) {
			continue
		}
		parts = append(parts, text)
	}
	return c.ChunkText(ctx, strings.Join(parts, "\n\n"))
}

// ChunkText runs semantic chunking over a plain text string, the form
// used for news article rows.
func (c *SemanticChunker) ChunkText(ctx context.Context, text string) ([]SemanticChunk, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []SemanticChunk
	var current []string
	currentTokens := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		joined := strings.Join(current, " ")
		chunks = append(chunks, SemanticChunk{
			ID:         uuid.NewString(),
			Text:       joined,
			TokenCount: chunkers.EstimateTokens(joined),
		})
		current = current[:0]
		currentTokens = 0
	}

	for i, sentence := range sentences {
		if ctx.Err() != nil {
			return chunks, ctx.Err()
		}

		current = append(current, sentence)
		currentTokens += chunkers.EstimateTokens(sentence)

		if currentTokens >= c.maxTokens {
			flush()
			continue
		}
		if currentTokens < c.minTokens || i == len(sentences)-1 {
			continue
		}

		score, err := c.boundary.Score(ctx, sentence, sentences[i+1])
		if err != nil {
			// A dead boundary service degrades to size-based chunking.
			c.logger.Warn("boundary scoring failed, falling back to size split", "error", err)
			score = 0
		}
		limit := c.threshold
		if currentTokens >= c.targetTokens {
			limit = c.threshold / 2
		}
		if score > limit {
			flush()
		}
	}
	flush()

	return chunks, nil
}

// splitSentences breaks text into sentences, keeping punctuation. A
// sentence ends at [.!?] followed by whitespace and an upper-case rune.
func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}

		if sentence := strings.TrimSpace(string(runes[start : i+1])); sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = j
		i = j - 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
