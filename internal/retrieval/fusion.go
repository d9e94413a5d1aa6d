package retrieval

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/vectorstore"
)

// Candidate source labels. Priority for tie-breaks is chunk, then
// summary, then graph.
const (
	SourceChunk   = vectorstore.SourceChunk
	SourceSummary = vectorstore.SourceSummary
	SourceGraph   = "graph"
)

// Candidate is one retrieved item, normalized across the three sources.
type Candidate struct {
	Source   string        `json:"source"`
	DocIdent string        `json:"doc_ident"`
	Bucket   bucket.Bucket `json:"bucket,omitempty"`
	Title    string        `json:"title,omitempty"`
	Text     string        `json:"text"`
	Score    float64       `json:"score"`

	// order preserves arrival position for the final tie-break.
	order int
}

// sourcePriority ranks sources for equal-score tie-breaks.
func sourcePriority(source string) int {
	switch source {
	case SourceChunk:
		return 0
	case SourceSummary:
		return 1
	default:
		return 2
	}
}

// fuse merges the per-source candidate lists into one slice sorted by
// descending score, breaking ties by source priority and then by
// insertion order.
func fuse(lists ...[]Candidate) []Candidate {
	var merged []Candidate
	for _, list := range lists {
		for _, c := range list {
			c.order = len(merged)
			merged = append(merged, c)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if pa, pb := sourcePriority(a.Source), sourcePriority(b.Source); pa != pb {
			return pa < pb
		}
		return a.order < b.order
	})
	return merged
}

// fromSearchResults converts vector store hits into candidates.
func fromSearchResults(results []vectorstore.SearchResult, source string) []Candidate {
	out := make([]Candidate, 0, len(results))
	for _, r := range results {
		out = append(out, Candidate{
			Source:   source,
			DocIdent: r.DocIdent,
			Bucket:   r.Bucket,
			Title:    r.Title,
			Text:     r.Content,
			Score:    r.Score,
		})
	}
	return out
}

// assembleContext greedily formats candidates in descending score order
// until the character budget is exhausted. It returns the assembled
// context block and the candidates that made it in.
func assembleContext(candidates []Candidate, charBudget int) (string, []Candidate) {
	if charBudget <= 0 {
		charBudget = 12000
	}

	var b strings.Builder
	var used []Candidate
	for _, c := range candidates {
		entry := formatCandidate(c)
		if b.Len() > 0 && b.Len()+2+len(entry) > charBudget {
			break
		}
		if b.Len() == 0 && len(entry) > charBudget {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(entry)
		used = append(used, c)
	}
	return b.String(), used
}

// formatCandidate renders one context entry with its provenance header.
func formatCandidate(c Candidate) string {
	ident := c.DocIdent
	if ident == "" {
		ident = "unknown"
	}
	header := fmt.Sprintf("[%s | %s | score %.2f]", c.Source, ident, c.Score)
	if c.Title != "" {
		header += " " + c.Title
	}
	return header + "\n" + strings.TrimSpace(c.Text)
}
