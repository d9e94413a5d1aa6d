package graphstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// The indexer writes artifacts either with bare names (entities.parquet)
// or with the legacy create_final_ prefix. Both layouts are accepted.

// entityRow mirrors the entities artifact.
type entityRow struct {
	ID          string    `parquet:"id,optional"`
	Title       string    `parquet:"title,optional"`
	Type        string    `parquet:"type,optional"`
	Description string    `parquet:"description,optional"`
	Degree      int32     `parquet:"degree,optional"`
	Embedding   []float64 `parquet:"description_embedding,optional,list"`
}

// entityRowJSONEmbedding is the fallback shape for artifacts that store
// the embedding as a JSON-encoded string.
type entityRowJSONEmbedding struct {
	ID          string `parquet:"id,optional"`
	Title       string `parquet:"title,optional"`
	Type        string `parquet:"type,optional"`
	Description string `parquet:"description,optional"`
	Degree      int32  `parquet:"degree,optional"`
	Embedding   string `parquet:"description_embedding,optional"`
}

// relationshipRow mirrors the relationships artifact.
type relationshipRow struct {
	ID             string  `parquet:"id,optional"`
	Source         string  `parquet:"source,optional"`
	Target         string  `parquet:"target,optional"`
	Description    string  `parquet:"description,optional"`
	Weight         float64 `parquet:"weight,optional"`
	CombinedDegree int32   `parquet:"combined_degree,optional"`
}

// communityRow mirrors the communities artifact. Member lists fall back
// from entity_ids to relationship_ids to text_unit_ids.
type communityRow struct {
	ID              string   `parquet:"id,optional"`
	Community       int64    `parquet:"community,optional"`
	Title           string   `parquet:"title,optional"`
	Level           int32    `parquet:"level,optional"`
	EntityIDs       []string `parquet:"entity_ids,optional,list"`
	RelationshipIDs []string `parquet:"relationship_ids,optional,list"`
	TextUnitIDs     []string `parquet:"text_unit_ids,optional,list"`
}

// communityReportRow mirrors the community reports artifact that
// carries the summary and rating joined onto communities.
type communityReportRow struct {
	Community int64   `parquet:"community,optional"`
	Title     string  `parquet:"title,optional"`
	Summary   string  `parquet:"summary,optional"`
	Rating    float64 `parquet:"rating,optional"`
}

// claimRow mirrors the claims artifact. Covariate artifacts share the
// shape; claim extraction filters on covariate_type containing "claim".
type claimRow struct {
	ID            string `parquet:"id,optional"`
	Subject       string `parquet:"subject_id,optional"`
	CovariateType string `parquet:"covariate_type,optional"`
	ClaimType     string `parquet:"type,optional"`
	Status        string `parquet:"status,optional"`
	Description   string `parquet:"description,optional"`
	SourceText    string `parquet:"source_text,optional"`
}

// textUnitRow mirrors the text units artifact.
type textUnitRow struct {
	ID              string    `parquet:"id,optional"`
	Text            string    `parquet:"text,optional"`
	NTokens         int64     `parquet:"n_tokens,optional"`
	EntityIDs       []string  `parquet:"entity_ids,optional,list"`
	RelationshipIDs []string  `parquet:"relationship_ids,optional,list"`
	Embedding       []float64 `parquet:"text_embedding,optional,list"`
}

// artifactPath resolves the first existing candidate file for an
// artifact name, preferring the bare name over the create_final_ prefix.
func artifactPath(dir, name string) (string, bool) {
	candidates := []string{
		filepath.Join(dir, name+".parquet"),
		filepath.Join(dir, "create_final_"+name+".parquet"),
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, true
		}
	}
	return "", false
}

// readArtifact reads all rows of one parquet artifact.
func readArtifact[T any](dir, name string) ([]T, bool, error) {
	path, ok := artifactPath(dir, name)
	if !ok {
		return nil, false, nil
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read artifact %s; %w", filepath.Base(path), err)
	}
	return rows, true, nil
}

// readEntities reads the entities artifact, tolerating JSON-encoded
// embedding columns.
func readEntities(dir string) ([]entityRow, bool, error) {
	rows, found, err := readArtifact[entityRow](dir, "entities")
	if err == nil {
		return rows, found, nil
	}

	jsonRows, jfound, jerr := readArtifact[entityRowJSONEmbedding](dir, "entities")
	if jerr != nil {
		return nil, found, err
	}

	out := make([]entityRow, 0, len(jsonRows))
	for _, jr := range jsonRows {
		row := entityRow{
			ID:          jr.ID,
			Title:       jr.Title,
			Type:        jr.Type,
			Description: jr.Description,
			Degree:      jr.Degree,
		}
		if jr.Embedding != "" {
			var vec []float64
			if uerr := json.Unmarshal([]byte(jr.Embedding), &vec); uerr == nil {
				row.Embedding = vec
			}
		}
		out = append(out, row)
	}
	return out, jfound, nil
}

// memberIDs applies the community member fallback order.
func (c communityRow) memberIDs() []string {
	switch {
	case len(c.EntityIDs) > 0:
		return c.EntityIDs
	case len(c.RelationshipIDs) > 0:
		return c.RelationshipIDs
	default:
		return c.TextUnitIDs
	}
}

// toFloat32 converts artifact float64 vectors to store float32 vectors.
func toFloat32(v []float64) []float32 {
	if len(v) == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
