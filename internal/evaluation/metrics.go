package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
)

// Metric names, in evaluation order.
const (
	MetricGroundedness          = "groundedness"
	MetricAnswerRelevance       = "answer_relevance"
	MetricContextRelevance      = "context_relevance"
	MetricCoherence             = "coherence"
	MetricClimateAccuracy       = "climate_accuracy"
	MetricTippingPointRelevance = "tipping_point_relevance"
)

// AllMetrics lists every metric in evaluation order.
func AllMetrics() []string {
	return []string{
		MetricGroundedness,
		MetricAnswerRelevance,
		MetricContextRelevance,
		MetricCoherence,
		MetricClimateAccuracy,
		MetricTippingPointRelevance,
	}
}

// metricPrompts describe what the judge scores per metric.
var metricPrompts = map[string]string{
	MetricGroundedness:          "How well is the response supported by the provided context? Penalize claims absent from the context.",
	MetricAnswerRelevance:       "How directly does the response answer the user's question?",
	MetricContextRelevance:      "How relevant is the retrieved context to the user's question?",
	MetricCoherence:             "How clear, well-structured, and internally consistent is the response?",
	MetricClimateAccuracy:       "How scientifically accurate are the climate statements in the response?",
	MetricTippingPointRelevance: "How relevant is the stated social tipping point to the response content?",
}

// Score is one metric's outcome.
type Score struct {
	Value       float64
	Explanation string
}

// Judge scores one metric for one record. Implementations must be safe
// for concurrent use.
type Judge interface {
	Score(ctx context.Context, metric string, rec *Record) (Score, error)
}

// LLMJudge scores metrics with a chat model, falling back to a lexical
// heuristic when the model is unavailable or returns garbage.
type LLMJudge struct {
	provider providers.ChatProvider
}

// NewLLMJudge creates a judge backed by the chat provider. A nil
// provider always uses the heuristic.
func NewLLMJudge(provider providers.ChatProvider) *LLMJudge {
	return &LLMJudge{provider: provider}
}

const judgeSystemPrompt = "You evaluate climate chatbot responses. Score the requested dimension " +
	"from 0.0 (worst) to 1.0 (best). Respond with a JSON object: " +
	"{\"score\": 0.0-1.0, \"explanation\": \"one sentence\"}."

type judgeResponse struct {
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

// Score runs one metric. Metric calls for one record are invoked
// sequentially by the worker; they share the provider.
func (j *LLMJudge) Score(ctx context.Context, metric string, rec *Record) (Score, error) {
	criterion, ok := metricPrompts[metric]
	if !ok {
		return Score{}, fmt.Errorf("unknown metric %q", metric)
	}

	if j.provider == nil || !j.provider.Available() {
		return heuristicScore(metric, rec), nil
	}

	resp, err := j.provider.Complete(ctx, providers.ChatRequest{
		Messages:    providers.UserMessage(judgeSystemPrompt, buildJudgePrompt(criterion, metric, rec)),
		Temperature: 0,
		MaxTokens:   150,
		JSONMode:    true,
	})
	if err != nil {
		return heuristicScore(metric, rec), nil
	}

	var jr judgeResponse
	if uerr := json.Unmarshal([]byte(extractJSON(resp)), &jr); uerr != nil || jr.Score < 0 || jr.Score > 1 {
		return heuristicScore(metric, rec), nil
	}
	return Score{Value: jr.Score, Explanation: strings.TrimSpace(jr.Explanation)}, nil
}

// buildJudgePrompt assembles the metric-specific judgment request.
func buildJudgePrompt(criterion, metric string, rec *Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dimension: %s\n%s\n\nQuestion:\n%s\n\nResponse:\n%s\n", metric, criterion, rec.Query, truncate(rec.Response, 3000))

	switch metric {
	case MetricGroundedness, MetricContextRelevance:
		b.WriteString("\nContext:\n")
		b.WriteString(truncate(strings.Join(rec.ContextTexts(), "\n---\n"), 4000))
	case MetricTippingPointRelevance:
		b.WriteString("\nStated social tipping point:\n")
		b.WriteString(rec.TippingPoint)
	}
	return b.String()
}

// heuristicScore is the deterministic fallback: lexical overlap between
// the fields the metric relates. Coarse, but it keeps the statistics
// flowing when the judge model is down.
func heuristicScore(metric string, rec *Record) Score {
	var value float64
	switch metric {
	case MetricGroundedness:
		value = overlap(rec.Response, strings.Join(rec.ContextTexts(), " "))
	case MetricAnswerRelevance:
		value = overlap(rec.Query, rec.Response)
	case MetricContextRelevance:
		value = overlap(rec.Query, strings.Join(rec.ContextTexts(), " "))
	case MetricCoherence:
		// Sentence count is a weak coherence proxy; anything with
		// structure scores the midpoint.
		if len(strings.Fields(rec.Response)) >= 20 {
			value = 0.5
		} else {
			value = 0.3
		}
	case MetricClimateAccuracy:
		value = 0.5
	case MetricTippingPointRelevance:
		value = overlap(rec.TippingPoint, rec.Response)
	}
	return Score{Value: value, Explanation: "heuristic fallback (judge unavailable)"}
}

// overlap computes the fraction of distinct words of a that appear in b.
func overlap(a, b string) float64 {
	aw := distinctWords(a)
	if len(aw) == 0 {
		return 0
	}
	bw := distinctWords(b)
	hits := 0
	for w := range aw {
		if bw[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(aw))
}

func distinctWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// extractJSON trims non-JSON wrapping around JSON-mode output.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
