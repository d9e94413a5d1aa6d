package stp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
)

// rephraseWordLimit bounds the rewritten paragraph.
const rephraseWordLimit = 80

const rephraseSystemPrompt = "You rewrite passages about social tipping points. " +
	"Rewrite the passage as a single clear paragraph of at most 80 words. " +
	"Keep every factual claim, number, and named actor. Do not add commentary. " +
	"Return only the rewritten paragraph."

// Rephraser rewrites chunk content into a bounded single paragraph.
// Low temperature keeps output stable enough to cache.
type Rephraser struct {
	provider providers.ChatProvider
	logger   *slog.Logger
}

// NewRephraser creates a rephraser backed by the chat provider.
func NewRephraser(provider providers.ChatProvider, logger *slog.Logger) *Rephraser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rephraser{provider: provider, logger: logger}
}

// Rephrase rewrites one chunk. On any failure the original content is
// returned so the pipeline never loses a relevant chunk to a flaky
// model.
func (r *Rephraser) Rephrase(ctx context.Context, content string) string {
	resp, err := r.provider.Complete(ctx, providers.ChatRequest{
		Messages:    providers.UserMessage(rephraseSystemPrompt, content),
		Temperature: 0.1,
		MaxTokens:   200,
	})
	if err != nil {
		r.logger.Warn("rephrase failed, keeping original content", "error", err)
		return content
	}

	rephrased := strings.TrimSpace(resp)
	if rephrased == "" {
		r.logger.Warn("rephrase returned empty text, keeping original content")
		return content
	}
	return enforceWordLimit(rephrased, rephraseWordLimit)
}

// enforceWordLimit truncates text to the first n words. Models mostly
// respect the limit; this guards the ones that do not.
func enforceWordLimit(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}
	return strings.Join(words[:n], " ")
}

// Qualifying factor names, assessed in this order.
var factorNames = []string{
	"Social movement potential",
	"Policy feedback loops",
	"Technology adoption dynamics",
	"Behavioral contagion",
	"Institutional change capacity",
}

// Factor labels the generator may assign.
var factorLabels = []string{"Strong", "Moderate", "Weak", "Not evident"}

// FactorsErrorMarker is stored in place of the factor block when
// generation fails. The chunk is still persisted.
const FactorsErrorMarker = "FACTOR_GENERATION_FAILED"

const factorsSystemPrompt = "You assess passages for social tipping point qualifying factors. " +
	"For each of the five factors, assign exactly one label from " +
	"{Strong, Moderate, Weak, Not evident}. Respond with exactly five lines, " +
	"one per factor, formatted as 'Factor name: Label'. No other text."

// FactorGenerator produces the fixed five-line qualifying-factors block.
type FactorGenerator struct {
	provider providers.ChatProvider
	logger   *slog.Logger
}

// NewFactorGenerator creates a factor generator backed by the chat
// provider.
func NewFactorGenerator(provider providers.ChatProvider, logger *slog.Logger) *FactorGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FactorGenerator{provider: provider, logger: logger}
}

// Generate assesses one chunk. On failure the error marker is returned;
// the caller stores the chunk anyway.
func (g *FactorGenerator) Generate(ctx context.Context, content string) string {
	prompt := fmt.Sprintf("Factors:\n%s\n\nPassage:\n%s", strings.Join(factorNames, "\n"), content)
	resp, err := g.provider.Complete(ctx, providers.ChatRequest{
		Messages:    providers.UserMessage(factorsSystemPrompt, prompt),
		Temperature: 0.1,
		MaxTokens:   150,
	})
	if err != nil {
		g.logger.Warn("factor generation failed", "error", err)
		return FactorsErrorMarker
	}

	block := normalizeFactorBlock(resp)
	if block == "" {
		g.logger.Warn("factor generation returned no usable lines")
		return FactorsErrorMarker
	}
	return block
}

// normalizeFactorBlock rebuilds the five-line block from the model
// output, filling factors the model skipped with "Not evident".
func normalizeFactorBlock(resp string) string {
	assigned := make(map[string]string, len(factorNames))
	for _, line := range strings.Split(resp, "\n") {
		name, label, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		label = canonicalLabel(label)
		if label == "" {
			continue
		}
		for _, fn := range factorNames {
			if strings.EqualFold(name, fn) {
				assigned[fn] = label
			}
		}
	}
	if len(assigned) == 0 {
		return ""
	}

	lines := make([]string, 0, len(factorNames))
	for _, fn := range factorNames {
		label := assigned[fn]
		if label == "" {
			label = "Not evident"
		}
		lines = append(lines, fn+": "+label)
	}
	return strings.Join(lines, "\n")
}

// canonicalLabel maps a raw label to one of the four allowed labels, or
// empty when unrecognized.
func canonicalLabel(raw string) string {
	raw = strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), ".*"))
	for _, l := range factorLabels {
		if strings.EqualFold(raw, l) {
			return l
		}
	}
	return ""
}
