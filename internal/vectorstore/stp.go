package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/embed"
)

// ensureSTPLocked opens the STP database and creates its collection on
// first use. Caller holds s.mu.
func (s *Store) ensureSTPLocked() (*sql.DB, error) {
	if s.stpDB != nil {
		return s.stpDB, nil
	}

	db, err := openDatabase(s.cfg.STPPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open stp database; %w", err)
	}
	if err := ensureSTPSchema(db, s.dims.STP); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("stp store ready", "stp_db", s.cfg.STPPath, "dims", s.dims.STP)
	s.stpDB = db
	return db, nil
}

// InsertSTPRecords upserts a batch of STP records. Records whose
// embedding dimension does not match the store are dropped with a
// warning; the rest commit atomically. Returns the number stored.
func (s *Store) InsertSTPRecords(ctx context.Context, records []STPRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	stored := 0
	err := s.withReconnect(ctx, dbSTP, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin stp insert; %w", err)
		}
		defer tx.Rollback()

		insertRow := fmt.Sprintf(`
			INSERT INTO %s (id, chunk_id, doc_name, original_text, rephrased_text, confidence, qualifying_factors, token_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				rephrased_text = excluded.rephrased_text,
				confidence = excluded.confidence,
				qualifying_factors = excluded.qualifying_factors`, stpTable)
		insertVec := fmt.Sprintf(
			"INSERT OR REPLACE INTO %s (stp_rowid, embedding) VALUES (?, ?)", vecSTPTable)

		stored = 0
		for _, r := range records {
			if len(r.Embedding) != s.dims.STP {
				s.logger.Warn("dropping stp record with dimension mismatch",
					"id", r.ID,
					"got", len(r.Embedding),
					"want", s.dims.STP)
				continue
			}

			if _, err := tx.ExecContext(ctx, insertRow,
				r.ID, r.ChunkID, r.DocName, r.OriginalText, r.RephrasedText,
				r.Confidence, r.QualifyingFactors, r.TokenCount); err != nil {
				return fmt.Errorf("failed to insert stp record %s; %w", r.ID, err)
			}

			if !embed.IsZero(r.Embedding) {
				// On upsert LastInsertId is unreliable; resolve the rowid by key.
				var rowid int64
				lookup := fmt.Sprintf("SELECT rowid FROM %s WHERE id = ?", stpTable)
				if err := tx.QueryRowContext(ctx, lookup, r.ID).Scan(&rowid); err != nil {
					return fmt.Errorf("failed to resolve stp rowid; %w", err)
				}
				if _, err := tx.ExecContext(ctx, insertVec, rowid, serializeFloat32(r.Embedding)); err != nil {
					return fmt.Errorf("failed to index stp record %s; %w", r.ID, err)
				}
			}
			stored++
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return stored, nil
}

// CountSTPRecords returns the number of stored STP records for a document.
func (s *Store) CountSTPRecords(ctx context.Context, docName string) (int, error) {
	var count int
	err := s.withReconnect(ctx, dbSTP, func(db *sql.DB) error {
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE doc_name = ?", stpTable)
		return db.QueryRowContext(ctx, query, docName).Scan(&count)
	})
	return count, err
}

// SearchSTP runs a k-NN query against the STP collection, returning
// rephrased text as content.
func (s *Store) SearchSTP(ctx context.Context, vector []float32, k int) ([]SearchResult, error) {
	var results []SearchResult
	err := s.withReconnect(ctx, dbSTP, func(db *sql.DB) error {
		query := fmt.Sprintf(`
			SELECT t.id, t.doc_name, t.rephrased_text, v.distance
			FROM %s v
			JOIN %s t ON t.rowid = v.stp_rowid
			WHERE v.embedding MATCH ? AND k = ?
			ORDER BY v.distance`, vecSTPTable, stpTable)

		rows, err := db.QueryContext(ctx, query, serializeFloat32(vector), k)
		if err != nil {
			return fmt.Errorf("stp search failed; %w", err)
		}
		defer rows.Close()

		results = results[:0]
		for rows.Next() {
			var r SearchResult
			var distance float64
			if err := rows.Scan(&r.ID, &r.DocIdent, &r.Content, &distance); err != nil {
				return err
			}
			r.Score = 1.0 - distance
			r.Source = SourceSTP
			results = append(results, r)
		}
		return rows.Err()
	})
	return results, err
}
