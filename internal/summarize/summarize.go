// Package summarize produces one document-level summary per ingestion
// unit, with a bucket-specific prompt. Summary failure never fails the
// document; the caller records summary_done = false and moves on.
package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/extract"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
)

// maxPromptChars bounds how much document text goes into the prompt.
const maxPromptChars = 12000

// Summary is the single document-level summary record. Exactly one per
// document per successful summarization; news workbooks get one per
// article row.
type Summary struct {
	ID        string
	DocName   string
	Bucket    bucket.Bucket
	Title     string
	Text      string
	DocType   string
	CreatedAt time.Time
}

// Summarizer generates summaries through the chat provider.
type Summarizer struct {
	provider providers.ChatProvider
	logger   *slog.Logger
}

// New creates a summarizer backed by the given provider.
func New(provider providers.ChatProvider, logger *slog.Logger) *Summarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Summarizer{provider: provider, logger: logger}
}

// summaryResponse is the JSON shape requested from the model.
type summaryResponse struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// Summarize produces one summary for the structured content of a
// document in the given bucket.
func (s *Summarizer) Summarize(ctx context.Context, sc extract.StructuredContent, b bucket.Bucket, docName string) (Summary, error) {
	if strings.TrimSpace(sc.FullText) == "" && len(sc.Tables) == 0 {
		return Summary{}, fmt.Errorf("no content to summarize for %s", docName)
	}

	prompt := buildPrompt(sc, b)
	resp, err := s.provider.Complete(ctx, providers.ChatRequest{
		Messages:    providers.UserMessage(systemPromptFor(b), prompt),
		Temperature: 0.3,
		MaxTokens:   700,
		JSONMode:    true,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("summary generation failed for %s; %w", docName, err)
	}

	title, text := parseSummaryResponse(resp)
	if text == "" {
		return Summary{}, fmt.Errorf("summary generation returned empty text for %s", docName)
	}
	if title == "" {
		title = docName
	}

	s.logger.Debug("summary generated",
		"doc", docName,
		"bucket", b,
		"summary_chars", len(text))

	return Summary{
		ID:        uuid.NewString(),
		DocName:   docName,
		Bucket:    b,
		Title:     title,
		Text:      text,
		DocType:   docTypeFor(b),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// parseSummaryResponse decodes the model output, tolerating plain-text
// replies from endpoints that ignore JSON mode.
func parseSummaryResponse(resp string) (title, text string) {
	var sr summaryResponse
	if err := json.Unmarshal([]byte(resp), &sr); err == nil && strings.TrimSpace(sr.Summary) != "" {
		return strings.TrimSpace(sr.Title), strings.TrimSpace(sr.Summary)
	}
	return "", strings.TrimSpace(resp)
}

// buildPrompt assembles the user prompt from the structured content,
// truncated to the prompt budget.
func buildPrompt(sc extract.StructuredContent, b bucket.Bucket) string {
	var sb strings.Builder
	sb.WriteString("Document text:\n")
	sb.WriteString(truncate(sc.FullText, maxPromptChars))

	if len(sc.Tables) > 0 {
		remaining := maxPromptChars - sb.Len()
		if remaining > 500 {
			sb.WriteString("\n\nTables:\n")
			sb.WriteString(truncate(strings.Join(sc.Tables, "\n\n"), remaining))
		}
	}
	if len(sc.FigureCaptions) > 0 && sb.Len() < maxPromptChars {
		sb.WriteString("\n\nFigure captions:\n")
		sb.WriteString(truncate(strings.Join(sc.FigureCaptions, "\n"), maxPromptChars-sb.Len()))
	}

	sb.WriteString("\n\nRespond with a JSON object: {\"title\": \"...\", \"summary\": \"...\"}.")
	return sb.String()
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

// systemPromptFor returns the bucket-specific summarization instruction.
func systemPromptFor(b bucket.Bucket) string {
	switch b {
	case bucket.ResearchPapers:
		return "You summarize climate research papers. Cover the research question, " +
			"methodology, key quantitative findings, and stated limitations in 3-5 sentences. " +
			"Preserve units and confidence language exactly as written."
	case bucket.Policy:
		return "You summarize climate policy and legal documents. Cover the scope, " +
			"obligations imposed, affected parties, enforcement mechanisms, and key dates " +
			"in 3-5 sentences. Cite article or section numbers where the text does."
	case bucket.ScientificData:
		return "You summarize scientific climate datasets. Describe what is measured, " +
			"the spatial and temporal coverage, notable values or trends in the tables, " +
			"and any caveats, in 3-5 sentences."
	default:
		return "You summarize climate news articles. Cover who, what, where, when, and " +
			"the climate relevance in 2-4 sentences. Stay strictly factual to the article."
	}
}

// docTypeFor maps a bucket to its document-type tag.
func docTypeFor(b bucket.Bucket) string {
	switch b {
	case bucket.ResearchPapers:
		return "research_paper"
	case bucket.Policy:
		return "policy_document"
	case bucket.ScientificData:
		return "scientific_dataset"
	default:
		return "news_article"
	}
}
