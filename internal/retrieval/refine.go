package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/providers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/session"
)

// Refiner rewrites queries before retrieval. First turns get light
// grammar fixes only; later turns get a full rewrite that resolves
// pronouns and references against the recent conversation history.
type Refiner struct {
	provider providers.ChatProvider
	window   int
	logger   *slog.Logger
}

// NewRefiner creates a refiner. window bounds how many recent messages
// feed the continue-turn rewrite.
func NewRefiner(provider providers.ChatProvider, window int, logger *slog.Logger) *Refiner {
	if window <= 0 {
		window = 6
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{provider: provider, window: window, logger: logger}
}

const grammarFixPrompt = "Fix grammar and spelling in the user's question without changing its " +
	"meaning or adding information. Return only the corrected question."

const rewritePrompt = "Rewrite the user's follow-up question as a fully self-contained question. " +
	"Resolve pronouns and references (it, they, that, this topic) using the conversation history. " +
	"Do not add information beyond what the history supports. Return only the rewritten question."

// Refine returns the retrieval-ready form of the query. Any failure
// degrades to the original query; refinement never blocks a question.
func (r *Refiner) Refine(ctx context.Context, query, conversationType string, history []session.Message) string {
	if r.provider == nil || !r.provider.Available() {
		return query
	}

	var system, user string
	if conversationType == session.ConversationContinue {
		system = rewritePrompt
		user = fmt.Sprintf("Conversation history:\n%s\n\nFollow-up question: %s",
			formatHistory(history, r.window), query)
	} else {
		system = grammarFixPrompt
		user = query
	}

	refined, err := r.provider.Complete(ctx, providers.ChatRequest{
		Messages:    providers.UserMessage(system, user),
		Temperature: 0,
		MaxTokens:   200,
	})
	if err != nil {
		r.logger.Warn("query refinement failed, using original query", "error", err)
		return query
	}

	refined = strings.Trim(strings.TrimSpace(refined), "\"")
	if refined == "" {
		return query
	}
	return refined
}

// formatHistory renders the last window messages as role-tagged lines.
func formatHistory(history []session.Message, window int) string {
	if len(history) > window {
		history = history[len(history)-window:]
	}
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
