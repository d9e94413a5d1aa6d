// Package queryclass decides what kind of question the user asked and
// whether retrieval should run. Classification is layered: exact match
// against a curated utterance corpus, then a fuzzy ratio match, then an
// LLM call, then a rule-based keyword fallback. Conversational and
// bot-identity queries short-circuit retrieval entirely.
package queryclass

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
)

// Query categories.
const (
	CategoryConversational  = "conversational"
	CategoryBotIdentity     = "bot_identity"
	CategoryClimateQuestion = "climate_question"
	CategoryGeneralQuestion = "general_question"
	CategoryUnclear         = "unclear"
)

// fuzzyThreshold is the minimum similarity ratio for a corpus match.
const fuzzyThreshold = 0.8

// Classification methods, recorded for observability.
const (
	MethodExact    = "exact_match"
	MethodFuzzy    = "fuzzy_match"
	MethodLLM      = "llm"
	MethodKeywords = "keyword_rules"
)

// Result is the classification outcome for one query.
type Result struct {
	Category       string  `json:"category"`
	Confidence     float64 `json:"confidence"`
	ShouldRetrieve bool    `json:"should_retrieve"`
	EnhancedQuery  string  `json:"enhanced_query,omitempty"`
	Reasoning      string  `json:"reasoning,omitempty"`

	// DirectReply is the corpus-provided answer for short-circuit
	// categories. Empty when retrieval should run.
	DirectReply string `json:"direct_reply,omitempty"`

	// Method records which layer produced the classification.
	Method string `json:"method"`
}

// ShortCircuit reports whether the query bypasses retrieval and is
// answered directly.
func (r Result) ShortCircuit() bool {
	return r.Category == CategoryConversational || r.Category == CategoryBotIdentity
}

// Classifier layers corpus matching over an LLM fallback.
type Classifier struct {
	corpus   *corpus
	provider providers.ChatProvider
	logger   *slog.Logger
}

// New loads the embedded corpus and builds a classifier. The provider
// may be nil; classification then skips straight from fuzzy matching to
// keyword rules.
func New(provider providers.ChatProvider, logger *slog.Logger) (*Classifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := loadCorpus()
	if err != nil {
		return nil, err
	}
	return &Classifier{corpus: c, provider: provider, logger: logger}, nil
}

const llmSystemPrompt = "You classify user queries for a climate-document assistant. " +
	"Categories: conversational (greetings, small talk), bot_identity (questions about the " +
	"assistant itself), climate_question (climate science, policy, energy, tipping points), " +
	"general_question (other factual questions), unclear. " +
	"Respond with a JSON object: {\"category\": \"...\", \"confidence\": 0.0-1.0, " +
	"\"should_retrieve\": true|false, \"enhanced_query\": \"optional cleaned-up query\", " +
	"\"reasoning\": \"one sentence\"}. Retrieval should run for climate_question and " +
	"general_question only."

// Classify runs the layered classification. conversationContext, when
// non-empty, is appended to the LLM prompt so follow-up fragments
// classify correctly.
func (c *Classifier) Classify(ctx context.Context, query, conversationContext string) Result {
	norm := normalize(query)
	if norm == "" {
		return Result{Category: CategoryUnclear, Confidence: 1, Method: MethodExact}
	}

	// Layer 1: exact whole-string match after normalization.
	if containsExact(c.corpus.BotIdentity.Utterances, norm) {
		return c.corpusResult(CategoryBotIdentity, 1, MethodExact)
	}
	if containsExact(c.corpus.Conversational.Utterances, norm) {
		return c.corpusResult(CategoryConversational, 1, MethodExact)
	}

	// Layer 2: fuzzy ratio match against the same corpus.
	if ratio := bestRatio(c.corpus.BotIdentity.Utterances, norm); ratio >= fuzzyThreshold {
		return c.corpusResult(CategoryBotIdentity, ratio, MethodFuzzy)
	}
	if ratio := bestRatio(c.corpus.Conversational.Utterances, norm); ratio >= fuzzyThreshold {
		return c.corpusResult(CategoryConversational, ratio, MethodFuzzy)
	}

	// Layer 3: structured LLM classification.
	if c.provider != nil && c.provider.Available() {
		if res, err := c.classifyLLM(ctx, query, conversationContext); err == nil {
			return res
		} else {
			c.logger.Warn("llm classification failed, using keyword rules", "error", err)
		}
	}

	// Layer 4: rule-based keyword fallback.
	return c.classifyKeywords(norm)
}

// corpusResult builds a short-circuit result with the corpus reply.
func (c *Classifier) corpusResult(category string, confidence float64, method string) Result {
	reply := c.corpus.Conversational.Reply
	if category == CategoryBotIdentity {
		reply = c.corpus.BotIdentity.Reply
	}
	return Result{
		Category:    category,
		Confidence:  confidence,
		DirectReply: strings.TrimSpace(reply),
		Method:      method,
	}
}

// llmClassification mirrors the JSON contract of the LLM prompt.
type llmClassification struct {
	Category       string  `json:"category"`
	Confidence     float64 `json:"confidence"`
	ShouldRetrieve bool    `json:"should_retrieve"`
	EnhancedQuery  string  `json:"enhanced_query"`
	Reasoning      string  `json:"reasoning"`
}

// classifyLLM asks the model for a structured classification.
func (c *Classifier) classifyLLM(ctx context.Context, query, conversationContext string) (Result, error) {
	prompt := "Query: " + query
	if conversationContext != "" {
		prompt += "\n\nRecent conversation:\n" + conversationContext
	}

	resp, err := c.provider.Complete(ctx, providers.ChatRequest{
		Messages:    providers.UserMessage(llmSystemPrompt, prompt),
		Temperature: 0,
		MaxTokens:   200,
		JSONMode:    true,
	})
	if err != nil {
		return Result{}, fmt.Errorf("classification request failed; %w", err)
	}

	var lc llmClassification
	if err := json.Unmarshal([]byte(extractJSON(resp)), &lc); err != nil {
		return Result{}, fmt.Errorf("failed to parse classification response; %w", err)
	}
	if !validCategory(lc.Category) {
		return Result{}, fmt.Errorf("llm returned unknown category %q", lc.Category)
	}

	res := Result{
		Category:       lc.Category,
		Confidence:     lc.Confidence,
		ShouldRetrieve: lc.ShouldRetrieve,
		EnhancedQuery:  strings.TrimSpace(lc.EnhancedQuery),
		Reasoning:      lc.Reasoning,
		Method:         MethodLLM,
	}
	if res.ShortCircuit() {
		res.ShouldRetrieve = false
		res.DirectReply = c.corpusResult(res.Category, res.Confidence, MethodLLM).DirectReply
	}
	return res, nil
}

// classifyKeywords is the terminal rule-based layer: a climate keyword
// hit means climate_question, an interrogative shape means
// general_question, anything else is unclear.
func (c *Classifier) classifyKeywords(norm string) Result {
	for _, kw := range c.corpus.ClimateKeywords {
		if strings.Contains(norm, kw) {
			return Result{
				Category:       CategoryClimateQuestion,
				Confidence:     0.6,
				ShouldRetrieve: true,
				Method:         MethodKeywords,
			}
		}
	}

	if looksLikeQuestion(norm) {
		return Result{
			Category:       CategoryGeneralQuestion,
			Confidence:     0.5,
			ShouldRetrieve: true,
			Method:         MethodKeywords,
		}
	}
	return Result{
		Category:       CategoryUnclear,
		Confidence:     0.4,
		ShouldRetrieve: true,
		Method:         MethodKeywords,
	}
}

func containsExact(utterances []string, norm string) bool {
	for _, u := range utterances {
		if u == norm {
			return true
		}
	}
	return false
}

// bestRatio returns the highest normalized similarity between the query
// and any corpus utterance. Ratio is 1 - distance/maxlen, with length
// counted in runes to match the rune-based distance.
func bestRatio(utterances []string, norm string) float64 {
	best := 0.0
	normLen := utf8.RuneCountInString(norm)
	for _, u := range utterances {
		longest := max(utf8.RuneCountInString(u), normLen)
		if longest == 0 {
			continue
		}
		dist := levenshtein.ComputeDistance(u, norm)
		if ratio := 1 - float64(dist)/float64(longest); ratio > best {
			best = ratio
		}
	}
	return best
}

var interrogatives = []string{"what", "why", "how", "when", "where", "which", "who", "is ", "are ", "can ", "does ", "do ", "should "}

func looksLikeQuestion(norm string) bool {
	for _, w := range interrogatives {
		if strings.HasPrefix(norm, w) {
			return true
		}
	}
	return false
}

func validCategory(cat string) bool {
	switch cat {
	case CategoryConversational, CategoryBotIdentity, CategoryClimateQuestion,
		CategoryGeneralQuestion, CategoryUnclear:
		return true
	}
	return false
}

// extractJSON trims non-JSON wrapping some endpoints add around JSON
// mode output.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}
