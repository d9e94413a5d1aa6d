package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/bucket"
	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
)

// InsertSummary inserts one summary record with its embedding.
func (s *Store) InsertSummary(ctx context.Context, record SummaryRecord) error {
	sum := record.Summary
	if !sum.Bucket.Valid() {
		return fmt.Errorf("invalid bucket %q", sum.Bucket)
	}

	return s.withReconnect(ctx, dbSummaries, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin summary insert; %w", err)
		}
		defer tx.Rollback()

		insertRow := fmt.Sprintf(
			"INSERT INTO %s (id, %s, title, content, doc_type) VALUES (?, ?, ?, ?, ?)",
			summaryTable(sum.Bucket), identColumn(sum.Bucket))

		res, err := tx.ExecContext(ctx, insertRow,
			sum.ID, sum.DocName, sum.Title, sum.Text, sum.DocType)
		if err != nil {
			return fmt.Errorf("failed to insert summary %s; %w", sum.ID, err)
		}

		if !embed.IsZero(record.Embedding) {
			rowid, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to resolve summary rowid; %w", err)
			}
			insertVec := fmt.Sprintf(
				"INSERT INTO %s (summary_rowid, embedding) VALUES (?, ?)", vecSummaryTable(sum.Bucket))
			if _, err := tx.ExecContext(ctx, insertVec, rowid, serializeFloat32(record.Embedding)); err != nil {
				return fmt.Errorf("failed to index summary %s; %w", sum.ID, err)
			}
		} else {
			s.logger.Warn("summary stored without vector", "doc", sum.DocName, "bucket", sum.Bucket)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit summary insert; %w", err)
		}
		return nil
	})
}

// CountSummaries returns the number of stored summaries for a document
// in a bucket.
func (s *Store) CountSummaries(ctx context.Context, b bucket.Bucket, docIdent string) (int, error) {
	var count int
	err := s.withReconnect(ctx, dbSummaries, func(db *sql.DB) error {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", summaryTable(b), identColumn(b))
		return db.QueryRowContext(ctx, query, docIdent).Scan(&count)
	})
	return count, err
}

// searchSummaryCollection runs a k-NN query against one bucket's
// summary collection, dropping hits under minScore.
func (s *Store) searchSummaryCollection(ctx context.Context, b bucket.Bucket, vector []float32, k int, minScore float64) ([]SearchResult, error) {
	var results []SearchResult
	err := s.withReconnect(ctx, dbSummaries, func(db *sql.DB) error {
		query := fmt.Sprintf(`
			SELECT m.id, m.%s, COALESCE(m.title, ''), m.content, v.distance
			FROM %s v
			JOIN %s m ON m.rowid = v.summary_rowid
			WHERE v.embedding MATCH ? AND k = ?
			ORDER BY v.distance`,
			identColumn(b), vecSummaryTable(b), summaryTable(b))

		rows, err := db.QueryContext(ctx, query, serializeFloat32(vector), k)
		if err != nil {
			return fmt.Errorf("summary search failed for %s; %w", b, err)
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			var r SearchResult
			var distance float64
			if err := rows.Scan(&r.ID, &r.DocIdent, &r.Title, &r.Content, &distance); err != nil {
				return err
			}
			r.Bucket = b
			r.Score = 1.0 - distance
			r.Source = SourceSummary
			if r.Score >= minScore {
				results = append(results, r)
			}
		}
		return rows.Err()
	})
	return results, err
}
