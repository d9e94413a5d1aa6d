package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/chunkers"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
)

// InsertChunks inserts a batch of chunk records. All records must share
// one bucket; the insert is transactional so the collection is flushed
// before success is reported.
func (s *Store) InsertChunks(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}

	b := records[0].Chunk.Bucket
	for _, r := range records[1:] {
		if r.Chunk.Bucket != b {
			return fmt.Errorf("mixed buckets in chunk batch: %s and %s", b, r.Chunk.Bucket)
		}
	}
	if !b.Valid() {
		return fmt.Errorf("invalid bucket %q", b)
	}

	return s.withReconnect(ctx, dbChunks, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin chunk insert; %w", err)
		}
		defer tx.Rollback()

		insertRow := fmt.Sprintf(
			"INSERT INTO %s (id, %s, content, chunk_index, token_count, section_type, metadata) VALUES (?, ?, ?, ?, ?, ?, ?)",
			chunkTable(b), identColumn(b))
		insertVec := fmt.Sprintf(
			"INSERT INTO %s (chunk_rowid, embedding) VALUES (?, ?)", vecChunkTable(b))

		skippedVectors := 0
		for _, r := range records {
			c := r.Chunk
			sectionType, _ := c.Metadata[chunkers.MetaSectionType].(string)
			meta, err := json.Marshal(c.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode chunk metadata; %w", err)
			}

			res, err := tx.ExecContext(ctx, insertRow,
				c.ID, c.DocName, c.Text, c.Index, c.TokenCount, sectionType, string(meta))
			if err != nil {
				return fmt.Errorf("failed to insert chunk %s; %w", c.ID, err)
			}

			if embed.IsZero(r.Embedding) {
				skippedVectors++
				continue
			}

			rowid, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to resolve chunk rowid; %w", err)
			}
			if _, err := tx.ExecContext(ctx, insertVec, rowid, serializeFloat32(r.Embedding)); err != nil {
				return fmt.Errorf("failed to index chunk %s; %w", c.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit chunk batch; %w", err)
		}

		if skippedVectors > 0 {
			s.logger.Warn("chunks stored without vectors",
				"bucket", b,
				"count", skippedVectors)
		}
		return nil
	})
}

// CountChunks returns the number of stored chunks for a document in a
// bucket.
func (s *Store) CountChunks(ctx context.Context, b bucket.Bucket, docIdent string) (int, error) {
	var count int
	err := s.withReconnect(ctx, dbChunks, func(db *sql.DB) error {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", chunkTable(b), identColumn(b))
		return db.QueryRowContext(ctx, query, docIdent).Scan(&count)
	})
	return count, err
}

// searchChunkCollection runs a k-NN query against one bucket's chunk
// collection.
func (s *Store) searchChunkCollection(ctx context.Context, b bucket.Bucket, vector []float32, k int) ([]SearchResult, error) {
	var results []SearchResult
	err := s.withReconnect(ctx, dbChunks, func(db *sql.DB) error {
		query := fmt.Sprintf(`
			SELECT c.id, c.%s, c.content, COALESCE(c.section_type, ''), v.distance
			FROM %s v
			JOIN %s c ON c.rowid = v.chunk_rowid
			WHERE v.embedding MATCH ? AND k = ?
			ORDER BY v.distance`,
			identColumn(b), vecChunkTable(b), chunkTable(b))

		rows, err := db.QueryContext(ctx, query, serializeFloat32(vector), k)
		if err != nil {
			return fmt.Errorf("chunk search failed for %s; %w", b, err)
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			var r SearchResult
			var distance float64
			if err := rows.Scan(&r.ID, &r.DocIdent, &r.Content, &r.SectionType, &distance); err != nil {
				return err
			}
			r.Bucket = b
			r.Score = 1.0 - distance
			r.Source = SourceChunk
			results = append(results, r)
		}
		return rows.Err()
	})
	return results, err
}
