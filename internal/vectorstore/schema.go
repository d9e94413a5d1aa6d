package vectorstore

import (
	"database/sql"
	"fmt"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
)

// Collection table names follow chunks_<bucket> / summaries_<bucket>.
// The document-identifying column is source_url for news and doc_name
// elsewhere.

func chunkTable(b bucket.Bucket) string   { return "chunks_" + string(b) }
func summaryTable(b bucket.Bucket) string { return "summaries_" + string(b) }
func vecChunkTable(b bucket.Bucket) string {
	return "vec_chunks_" + string(b)
}
func vecSummaryTable(b bucket.Bucket) string {
	return "vec_summaries_" + string(b)
}

const stpTable = "stp_documents"
const vecSTPTable = "vec_stp_documents"

// identColumn returns the document-identifying column for a bucket.
func identColumn(b bucket.Bucket) string {
	return b.DocIdentField()
}

// ensureChunkSchema creates the per-bucket chunk collections.
func ensureChunkSchema(db *sql.DB, dims int) error {
	for _, b := range bucket.All() {
		ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    %[2]s TEXT NOT NULL,
    content TEXT NOT NULL,
    chunk_index INTEGER NOT NULL,
    token_count INTEGER,
    section_type TEXT,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(%[2]s, chunk_index)
);

CREATE VIRTUAL TABLE IF NOT EXISTS %[3]s USING vec0(
    chunk_rowid INTEGER PRIMARY KEY,
    embedding float[%[4]d] distance_metric=cosine
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_doc ON %[1]s(%[2]s);
`, chunkTable(b), identColumn(b), vecChunkTable(b), dims)

		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create collection %s; %w", chunkTable(b), err)
		}
	}
	return nil
}

// ensureSummarySchema creates the per-bucket summary collections.
func ensureSummarySchema(db *sql.DB, dims int) error {
	for _, b := range bucket.All() {
		ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    %[2]s TEXT NOT NULL,
    title TEXT,
    content TEXT NOT NULL,
    doc_type TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS %[3]s USING vec0(
    summary_rowid INTEGER PRIMARY KEY,
    embedding float[%[4]d] distance_metric=cosine
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_doc ON %[1]s(%[2]s);
`, summaryTable(b), identColumn(b), vecSummaryTable(b), dims)

		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create collection %s; %w", summaryTable(b), err)
		}
	}
	return nil
}

// ensureSTPSchema creates the single STP collection. Called lazily on
// the first STP insert.
func ensureSTPSchema(db *sql.DB, dims int) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
    id TEXT PRIMARY KEY,
    chunk_id TEXT NOT NULL,
    doc_name TEXT NOT NULL,
    original_text TEXT NOT NULL,
    rephrased_text TEXT NOT NULL,
    confidence REAL NOT NULL,
    qualifying_factors TEXT,
    token_count INTEGER,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS %[2]s USING vec0(
    stp_rowid INTEGER PRIMARY KEY,
    embedding float[%[3]d] distance_metric=cosine
);
`, stpTable, vecSTPTable, dims)

	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create stp collection; %w", err)
	}
	return nil
}
