package graphstore

import (
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
)

// Entity is a named concept extracted from a document.
type Entity struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Title       string    `json:"title"`
	EntityType  string    `json:"entity_type"`
	Description string    `json:"description"`
	Degree      int       `json:"degree"`
	CreatedAt   time.Time `json:"-"`
}

// Relationship is a weighted edge between two entity titles.
type Relationship struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	Source         string    `json:"source"`
	Target         string    `json:"target"`
	Description    string    `json:"description"`
	Weight         float64   `json:"weight"`
	CombinedDegree int       `json:"combined_degree"`
	CreatedAt      time.Time `json:"-"`
}

// Community is a cluster of entities with an optional report summary.
// EntityIDs is a JSON-encoded string list; MemberCount equals its length.
type Community struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	Community   int       `json:"community"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	EntityIDs   string    `json:"entity_ids"`
	MemberCount int       `json:"member_count"`
	Rating      float64   `json:"rating"`
	Level       int       `json:"level"`
	CreatedAt   time.Time `json:"-"`
}

// Claim is an extracted factual assertion about a subject.
type Claim struct {
	ID          string `json:"id"`
	DocumentID  string `json:"document_id"`
	Subject     string `json:"subject"`
	ClaimType   string `json:"claim_type"`
	Status      string `json:"status"`
	Description string `json:"description"`
	SourceText  string `json:"source_text"`
}

// TextUnit is a graph-indexed text span with provenance links. The ID
// lists are JSON-encoded strings; when empty, local graph search
// degrades but nothing fails.
type TextUnit struct {
	ID              string `json:"id"`
	DocumentID      string `json:"document_id"`
	Text            string `json:"text"`
	NTokens         int    `json:"n_tokens"`
	EntityIDs       string `json:"entity_ids"`
	RelationshipIDs string `json:"relationship_ids"`
}

// DocumentGraph is the full-graph view for one document: entities that
// participate in at least one relationship, edges up to max_edges, and
// communities with resolved summaries. Timestamps serialize ISO-8601.
type DocumentGraph struct {
	DocumentID    string          `json:"document_id"`
	DocIdent      string          `json:"doc_ident"`
	Bucket        bucket.Bucket   `json:"bucket"`
	CreatedAt     string          `json:"created_at"`
	Entities      []GraphNode     `json:"entities"`
	Relationships []GraphEdge     `json:"relationships"`
	Communities   []GraphCommunity `json:"communities"`
	Truncated     bool            `json:"truncated"`
}

// GraphNode is the serialized entity view.
type GraphNode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	EntityType  string `json:"entity_type"`
	Description string `json:"description"`
	Degree      int    `json:"degree"`
	CreatedAt   string `json:"created_at"`
}

// GraphEdge is the serialized relationship view.
type GraphEdge struct {
	ID          string  `json:"id"`
	Source      string  `json:"source"`
	Target      string  `json:"target"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	CreatedAt   string  `json:"created_at"`
}

// GraphCommunity is the serialized community view.
type GraphCommunity struct {
	Community   int     `json:"community"`
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	MemberCount int     `json:"member_count"`
	Rating      float64 `json:"rating"`
	Level       int     `json:"level"`
}

// TransferCounts reports how many rows of each artifact landed.
type TransferCounts struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
	Communities   int `json:"communities"`
	Claims        int `json:"claims"`
	TextUnits     int `json:"text_units"`
}

// SearchHit is one result from the structured graph search.
type SearchHit struct {
	Kind        string  `json:"kind"`
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Rank        float64 `json:"rank"`
}

// Search hit kinds.
const (
	HitEntity       = "entity"
	HitRelationship = "relationship"
)
