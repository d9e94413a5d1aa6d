package graphstore

import "fmt"

// schemaSQL returns the DDL for the graph tables and vector indexes.
func schemaSQL() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS graph_documents (
    id TEXT PRIMARY KEY,
    doc_ident TEXT NOT NULL,
    bucket TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS graph_entities (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES graph_documents(id) ON DELETE CASCADE,
    title TEXT NOT NULL,
    entity_type TEXT,
    description TEXT,
    degree INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_graph_entities USING vec0(
    entity_rowid INTEGER PRIMARY KEY,
    embedding float[%[1]d] distance_metric=cosine
);

CREATE TABLE IF NOT EXISTS graph_relationships (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES graph_documents(id) ON DELETE CASCADE,
    source TEXT NOT NULL,
    target TEXT NOT NULL,
    description TEXT,
    weight REAL DEFAULT 1.0,
    combined_degree INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS graph_communities (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES graph_documents(id) ON DELETE CASCADE,
    community INTEGER NOT NULL,
    title TEXT,
    summary TEXT,
    entity_ids JSON,
    member_count INTEGER DEFAULT 0,
    rating REAL,
    level INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(document_id, community)
);

CREATE TABLE IF NOT EXISTS graph_claims (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES graph_documents(id) ON DELETE CASCADE,
    subject TEXT,
    claim_type TEXT,
    status TEXT,
    description TEXT,
    source_text TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS graph_text_units (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL REFERENCES graph_documents(id) ON DELETE CASCADE,
    text TEXT NOT NULL,
    n_tokens INTEGER DEFAULT 0,
    entity_ids JSON,
    relationship_ids JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_graph_text_units USING vec0(
    text_unit_rowid INTEGER PRIMARY KEY,
    embedding float[%[1]d] distance_metric=cosine
);

CREATE INDEX IF NOT EXISTS idx_graph_documents_ident ON graph_documents(doc_ident);
CREATE INDEX IF NOT EXISTS idx_graph_entities_doc ON graph_entities(document_id);
CREATE INDEX IF NOT EXISTS idx_graph_entities_title ON graph_entities(title);
CREATE INDEX IF NOT EXISTS idx_graph_relationships_doc ON graph_relationships(document_id);
CREATE INDEX IF NOT EXISTS idx_graph_communities_doc ON graph_communities(document_id);
CREATE INDEX IF NOT EXISTS idx_graph_claims_doc ON graph_claims(document_id);
CREATE INDEX IF NOT EXISTS idx_graph_text_units_doc ON graph_text_units(document_id);
`, EmbeddingDims)
}
