package respond

import (
	"context"
	"log/slog"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
)

// Response is one generated answer.
type Response struct {
	Title   string
	Content string

	// ParseFallback is set when the delimiter contract was not honored
	// and a fallback extraction strategy produced the fields.
	ParseFallback bool
}

// Generator assembles the final LLM call and parses its reply.
type Generator struct {
	provider providers.ChatProvider
	parser   *Parser
	logger   *slog.Logger
}

// NewGenerator creates a response generator.
func NewGenerator(provider providers.ChatProvider, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		provider: provider,
		parser:   NewParser(),
		logger:   logger,
	}
}

// ParseFallbacks returns the running count of parses that needed a
// non-primary strategy.
func (g *Generator) ParseFallbacks() int64 {
	return g.parser.Fallbacks()
}

// startFormatInstructions tell the model the delimited output contract
// for first-turn responses.
const startFormatInstructions = "Format your response exactly as:\n" +
	"===TITLE_START===\n<a short descriptive title>\n===TITLE_END===\n" +
	"===CONTENT_START===\n<your full answer>\n===CONTENT_END==="

// continueFormatInstructions cover later turns, which carry no title.
const continueFormatInstructions = "Format your response exactly as:\n" +
	"===CONTENT_START===\n<your full answer>\n===CONTENT_END==="

// FormatInstructions returns the delimiter contract for a mode, for
// callers assembling their own prompts.
func FormatInstructions(mode Mode) string {
	if mode == ModeContinue {
		return continueFormatInstructions
	}
	return startFormatInstructions
}

// Generate sends the assembled prompt under the deadline and parses the
// reply. A provider failure returns the error; a malformed reply never
// does, the parser degrades instead.
func (g *Generator) Generate(ctx context.Context, systemPrompt, userPrompt string, mode Mode, deadline time.Time) (Response, error) {
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	raw, err := g.provider.Complete(ctx, providers.ChatRequest{
		Messages:    providers.UserMessage(systemPrompt, userPrompt),
		Temperature: 0.4,
		MaxTokens:   1200,
	})
	if err != nil {
		return Response{}, err
	}

	parsed := g.parser.Parse(raw, mode)
	if parsed.Fallback {
		g.logger.Warn("response delimiters malformed, used fallback extraction",
			"mode", mode,
			"fallbacks_total", g.parser.Fallbacks())
	}

	return Response{
		Title:         parsed.Title,
		Content:       parsed.Content,
		ParseFallback: parsed.Fallback,
	}, nil
}
