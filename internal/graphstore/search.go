package graphstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

// minTermLength drops short query words that only add noise to the
// LIKE-based match.
const minTermLength = 4

// StructuredSearch matches query terms against entity titles and
// descriptions and relationship descriptions, optionally filtered to
// one bucket, ranked by term hits combined with the numeric rank
// (degree for entities, weight for relationships).
func (s *Store) StructuredSearch(ctx context.Context, query string, b *bucket.Bucket, k int) ([]SearchHit, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	db := s.database()
	if db == nil {
		return nil, fmt.Errorf("graph database is closed")
	}

	entityHits, err := s.searchEntities(ctx, db, terms, b)
	if err != nil {
		return nil, err
	}
	relHits, err := s.searchRelationships(ctx, db, terms, b)
	if err != nil {
		return nil, err
	}

	hits := append(entityHits, relHits...)
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Rank > hits[j].Rank })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *Store) searchEntities(ctx context.Context, db *sql.DB, terms []string, b *bucket.Bucket) ([]SearchHit, error) {
	var conditions []string
	var args []any
	for _, t := range terms {
		conditions = append(conditions, `(e.title LIKE ? ESCAPE '\' OR e.description LIKE ? ESCAPE '\')`)
		pat := "%" + likeEscape(t) + "%"
		args = append(args, pat, pat)
	}

	query := `
		SELECT e.id, e.title, COALESCE(e.description, ''), e.degree
		FROM graph_entities e
		JOIN graph_documents d ON d.id = e.document_id
		WHERE (` + strings.Join(conditions, " OR ") + `)`
	if b != nil {
		query += " AND d.bucket = ?"
		args = append(args, string(*b))
	}
	query += " LIMIT 200"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("entity search failed; %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var degree int
		if err := rows.Scan(&h.ID, &h.Title, &h.Description, &degree); err != nil {
			return nil, err
		}
		h.Kind = HitEntity
		h.Rank = rankText(h.Title+" "+h.Description, terms) + float64(degree)*0.1
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Store) searchRelationships(ctx context.Context, db *sql.DB, terms []string, b *bucket.Bucket) ([]SearchHit, error) {
	var conditions []string
	var args []any
	for _, t := range terms {
		conditions = append(conditions, `r.description LIKE ? ESCAPE '\'`)
		args = append(args, "%"+likeEscape(t)+"%")
	}

	query := `
		SELECT r.id, r.source, r.target, COALESCE(r.description, ''), r.weight
		FROM graph_relationships r
		JOIN graph_documents d ON d.id = r.document_id
		WHERE (` + strings.Join(conditions, " OR ") + `)`
	if b != nil {
		query += " AND d.bucket = ?"
		args = append(args, string(*b))
	}
	query += " LIMIT 200"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("relationship search failed; %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var source, target string
		var weight float64
		if err := rows.Scan(&h.ID, &source, &target, &h.Description, &weight); err != nil {
			return nil, err
		}
		h.Kind = HitRelationship
		h.Title = source + " -> " + target
		h.Rank = rankText(h.Description, terms) + weight*0.1
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// searchTerms lowercases and filters the query words.
func searchTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) >= minTermLength {
			terms = append(terms, w)
		}
	}
	return terms
}

// rankText counts how many distinct terms appear in text.
func rankText(text string, terms []string) float64 {
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits)
}

// DocumentGraph returns the full-graph view for the most recent graph
// document matching docIdent. Entities without any relationship are
// pruned; edges are bounded by max_edges and nodes by max_nodes.
func (s *Store) DocumentGraph(ctx context.Context, docIdent string) (*DocumentGraph, error) {
	db := s.database()
	if db == nil {
		return nil, fmt.Errorf("graph database is closed")
	}

	var docID, bucketName string
	var createdAt time.Time
	err := db.QueryRowContext(ctx, `
		SELECT id, bucket, created_at FROM graph_documents
		WHERE doc_ident = ? ORDER BY created_at DESC LIMIT 1`,
		docIdent).Scan(&docID, &bucketName, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no graph for document %q", docIdent)
		}
		return nil, fmt.Errorf("failed to look up graph document; %w", err)
	}

	maxEdges := s.cfg.MaxEdges
	if maxEdges <= 0 {
		maxEdges = config.DefaultGraphMaxEdges
	}
	maxNodes := s.cfg.MaxNodes
	if maxNodes <= 0 {
		maxNodes = config.DefaultGraphMaxNodes
	}

	graph := &DocumentGraph{
		DocumentID: docID,
		DocIdent:   docIdent,
		Bucket:     bucket.Bucket(bucketName),
		CreatedAt:  iso8601(createdAt),
	}

	// Edges first: only entities participating in an edge survive.
	edgeRows, err := db.QueryContext(ctx, `
		SELECT id, source, target, COALESCE(description, ''), weight, created_at
		FROM graph_relationships WHERE document_id = ?
		ORDER BY weight DESC LIMIT ?`,
		docID, maxEdges+1)
	if err != nil {
		return nil, fmt.Errorf("failed to load relationships; %w", err)
	}
	defer edgeRows.Close()

	connected := make(map[string]struct{})
	for edgeRows.Next() {
		var e GraphEdge
		var created time.Time
		if err := edgeRows.Scan(&e.ID, &e.Source, &e.Target, &e.Description, &e.Weight, &created); err != nil {
			return nil, err
		}
		if len(graph.Relationships) >= maxEdges {
			graph.Truncated = true
			break
		}
		e.CreatedAt = iso8601(created)
		graph.Relationships = append(graph.Relationships, e)
		connected[e.Source] = struct{}{}
		connected[e.Target] = struct{}{}
	}
	if err := edgeRows.Err(); err != nil {
		return nil, err
	}

	nodeRows, err := db.QueryContext(ctx, `
		SELECT id, title, COALESCE(entity_type, ''), COALESCE(description, ''), degree, created_at
		FROM graph_entities WHERE document_id = ?
		ORDER BY degree DESC`,
		docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load entities; %w", err)
	}
	defer nodeRows.Close()

	for nodeRows.Next() {
		var n GraphNode
		var created time.Time
		if err := nodeRows.Scan(&n.ID, &n.Title, &n.EntityType, &n.Description, &n.Degree, &created); err != nil {
			return nil, err
		}
		if _, ok := connected[n.Title]; !ok {
			continue
		}
		if len(graph.Entities) >= maxNodes {
			graph.Truncated = true
			break
		}
		n.CreatedAt = iso8601(created)
		graph.Entities = append(graph.Entities, n)
	}
	if err := nodeRows.Err(); err != nil {
		return nil, err
	}

	commRows, err := db.QueryContext(ctx, `
		SELECT community, COALESCE(title, ''), COALESCE(summary, ''), member_count, COALESCE(rating, 0), level
		FROM graph_communities WHERE document_id = ?
		ORDER BY level, community`,
		docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load communities; %w", err)
	}
	defer commRows.Close()

	for commRows.Next() {
		var c GraphCommunity
		if err := commRows.Scan(&c.Community, &c.Title, &c.Summary, &c.MemberCount, &c.Rating, &c.Level); err != nil {
			return nil, err
		}
		graph.Communities = append(graph.Communities, c)
	}
	return graph, commRows.Err()
}

// Counts returns artifact row counts for one graph document.
func (s *Store) Counts(ctx context.Context, documentID string) (TransferCounts, error) {
	db := s.database()
	if db == nil {
		return TransferCounts{}, fmt.Errorf("graph database is closed")
	}

	var counts TransferCounts
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM graph_entities WHERE document_id = ?", &counts.Entities},
		{"SELECT COUNT(*) FROM graph_relationships WHERE document_id = ?", &counts.Relationships},
		{"SELECT COUNT(*) FROM graph_communities WHERE document_id = ?", &counts.Communities},
		{"SELECT COUNT(*) FROM graph_claims WHERE document_id = ?", &counts.Claims},
		{"SELECT COUNT(*) FROM graph_text_units WHERE document_id = ?", &counts.TextUnits},
	}
	for _, q := range queries {
		if err := db.QueryRowContext(ctx, q.query, documentID).Scan(q.dest); err != nil {
			return counts, fmt.Errorf("failed to count graph rows; %w", err)
		}
	}
	return counts, nil
}
