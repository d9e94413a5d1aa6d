package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
)

// Transfer outcome statuses.
const (
	TransferSuccess        = "success"
	TransferPartialSuccess = "partial_success"
)

// AllocateDocument creates a fresh graph document record and returns
// its ID. Every artifact row committed afterwards links to this ID.
func (s *Store) AllocateDocument(ctx context.Context, docIdent string, b bucket.Bucket) (string, error) {
	id := uuid.NewString()
	db := s.database()
	if db == nil {
		return "", fmt.Errorf("graph database is closed")
	}

	_, err := db.ExecContext(ctx,
		"INSERT INTO graph_documents (id, doc_ident, bucket) VALUES (?, ?, ?)",
		id, docIdent, string(b))
	if err != nil {
		return "", fmt.Errorf("failed to allocate graph document; %w", err)
	}
	return id, nil
}

// Transfer reads the parquet artifacts from dir and commits them to the
// indexed tables under documentID. Sub-artifact failures downgrade the
// status to partial_success; counts reflect what landed.
func (s *Store) Transfer(ctx context.Context, documentID, dir string) (TransferCounts, string, error) {
	var counts TransferCounts
	var failures []string

	if n, err := s.transferEntities(ctx, documentID, dir); err != nil {
		failures = append(failures, fmt.Sprintf("entities: %v", err))
	} else {
		counts.Entities = n
	}

	if n, err := s.transferRelationships(ctx, documentID, dir); err != nil {
		failures = append(failures, fmt.Sprintf("relationships: %v", err))
	} else {
		counts.Relationships = n
	}

	if n, err := s.transferCommunities(ctx, documentID, dir); err != nil {
		failures = append(failures, fmt.Sprintf("communities: %v", err))
	} else {
		counts.Communities = n
	}

	if n, err := s.transferClaims(ctx, documentID, dir); err != nil {
		failures = append(failures, fmt.Sprintf("claims: %v", err))
	} else {
		counts.Claims = n
	}

	if n, err := s.transferTextUnits(ctx, documentID, dir); err != nil {
		failures = append(failures, fmt.Sprintf("text_units: %v", err))
	} else {
		counts.TextUnits = n
	}

	if len(failures) > 0 {
		s.logger.Warn("graph transfer completed partially",
			"document_id", documentID,
			"failures", strings.Join(failures, "; "))
		return counts, TransferPartialSuccess, nil
	}
	return counts, TransferSuccess, nil
}

func (s *Store) transferEntities(ctx context.Context, documentID, dir string) (int, error) {
	rows, found, err := readEntities(dir)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	db := s.database()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	missingVectors := 0
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO graph_entities (id, document_id, title, entity_type, description, degree)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, documentID, r.Title, r.Type, r.Description, r.Degree)
		if err != nil {
			return 0, fmt.Errorf("failed to insert entity %s; %w", r.Title, err)
		}

		vec := normalizeEmbedding(toFloat32(r.Embedding))
		if isZeroVector(vec) {
			missingVectors++
			continue
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vec_graph_entities (entity_rowid, embedding) VALUES (?, ?)",
			rowid, serializeFloat32(vec)); err != nil {
			return 0, fmt.Errorf("failed to index entity %s; %w", r.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if missingVectors > 0 {
		s.logger.Warn("entities without embeddings, vector search will be degraded",
			"document_id", documentID,
			"count", missingVectors)
	}
	return len(rows), nil
}

func (s *Store) transferRelationships(ctx context.Context, documentID, dir string) (int, error) {
	rows, found, err := readArtifact[relationshipRow](dir, "relationships")
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	db := s.database()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_relationships (id, document_id, source, target, description, weight, combined_degree)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, documentID, r.Source, r.Target, r.Description, r.Weight, r.CombinedDegree); err != nil {
			return 0, fmt.Errorf("failed to insert relationship %s->%s; %w", r.Source, r.Target, err)
		}
	}
	return len(rows), tx.Commit()
}

func (s *Store) transferCommunities(ctx context.Context, documentID, dir string) (int, error) {
	rows, found, err := readArtifact[communityRow](dir, "communities")
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	// Reports carry the summary and rating; joined by community key.
	reports, _, err := readArtifact[communityReportRow](dir, "community_reports")
	if err != nil {
		s.logger.Warn("community reports unreadable, summaries unresolved", "error", err)
	}
	reportByKey := make(map[int64]communityReportRow, len(reports))
	for _, rep := range reports {
		reportByKey[rep.Community] = rep
	}

	db := s.database()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}

		members := r.memberIDs()
		memberJSON, err := json.Marshal(members)
		if err != nil {
			return 0, fmt.Errorf("failed to encode community members; %w", err)
		}

		title := r.Title
		summary := ""
		rating := 0.0
		if rep, ok := reportByKey[r.Community]; ok {
			summary = rep.Summary
			rating = rep.Rating
			if title == "" {
				title = rep.Title
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_communities (id, document_id, community, title, summary, entity_ids, member_count, rating, level)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, documentID, r.Community, title, summary, string(memberJSON), len(members), rating, r.Level); err != nil {
			return 0, fmt.Errorf("failed to insert community %d; %w", r.Community, err)
		}
	}
	return len(rows), tx.Commit()
}

func (s *Store) transferClaims(ctx context.Context, documentID, dir string) (int, error) {
	// A dedicated claims artifact wins; otherwise claims come from
	// covariates whose covariate_type mentions "claim".
	rows, found, err := readArtifact[claimRow](dir, "claims")
	if err != nil {
		return 0, err
	}
	if !found {
		covariates, cfound, cerr := readArtifact[claimRow](dir, "covariates")
		if cerr != nil {
			return 0, cerr
		}
		if !cfound {
			return 0, nil
		}
		for _, c := range covariates {
			if strings.Contains(strings.ToLower(c.CovariateType), "claim") {
				rows = append(rows, c)
			}
		}
	}

	db := s.database()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		claimType := r.ClaimType
		if claimType == "" {
			claimType = r.CovariateType
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO graph_claims (id, document_id, subject, claim_type, status, description, source_text)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, documentID, r.Subject, claimType, r.Status, r.Description, r.SourceText); err != nil {
			return 0, fmt.Errorf("failed to insert claim %s; %w", id, err)
		}
	}
	return len(rows), tx.Commit()
}

func (s *Store) transferTextUnits(ctx context.Context, documentID, dir string) (int, error) {
	rows, found, err := readArtifact[textUnitRow](dir, "text_units")
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	db := s.database()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	missingLinks := 0
	for _, r := range rows {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}

		entityJSON, _ := json.Marshal(r.EntityIDs)
		relJSON, _ := json.Marshal(r.RelationshipIDs)
		if len(r.EntityIDs) == 0 && len(r.RelationshipIDs) == 0 {
			missingLinks++
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO graph_text_units (id, document_id, text, n_tokens, entity_ids, relationship_ids)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, documentID, r.Text, r.NTokens, string(entityJSON), string(relJSON))
		if err != nil {
			return 0, fmt.Errorf("failed to insert text unit %s; %w", id, err)
		}

		vec := normalizeEmbedding(toFloat32(r.Embedding))
		if isZeroVector(vec) {
			continue
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vec_graph_text_units (text_unit_rowid, embedding) VALUES (?, ?)",
			rowid, serializeFloat32(vec)); err != nil {
			return 0, fmt.Errorf("failed to index text unit %s; %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if missingLinks > 0 {
		s.logger.Warn("text units without provenance links, local search degraded",
			"document_id", documentID,
			"count", missingLinks)
	}
	return len(rows), nil
}
