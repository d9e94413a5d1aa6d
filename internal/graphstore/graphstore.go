// Package graphstore persists knowledge-graph artifacts (entities,
// relationships, communities, claims, text units) per document, with
// cosine vector indexes over entity descriptions and text units. The
// artifacts arrive as columnar parquet files from the graph indexer and
// are transferred into queryable tables.
package graphstore

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kravishan/neuroclimabot-docker-sub000/internal/config"
)

func init() {
	sqlite_vec.Auto()
}

// EmbeddingDims is the fixed dimension for entity and text-unit
// embeddings. Artifact vectors are padded or truncated to fit.
const EmbeddingDims = 768

// Store wraps the graph database. Safe for concurrent use.
type Store struct {
	cfg    config.GraphConfig
	logger *slog.Logger

	mu sync.Mutex
	db *sql.DB
}

// New opens (or creates) the graph database and its schema.
func New(cfg config.GraphConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph database; %w", err)
	}

	logger.Info("graph store ready", "path", cfg.Path)
	return &Store{cfg: cfg, logger: logger, db: db}, nil
}

func open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create graph directory; %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create graph schema; %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Health lists the graph tables; on failure it reconnects once and
// retries before surfacing the error.
func (s *Store) Health(ctx context.Context) error {
	err := s.listTables(ctx)
	if err == nil {
		return nil
	}

	s.logger.Warn("graph health check failed, reconnecting", "error", err)
	s.mu.Lock()
	if s.db != nil {
		s.db.Close()
	}
	db, rerr := open(s.cfg.Path)
	if rerr != nil {
		s.mu.Unlock()
		return fmt.Errorf("graph reconnect failed after %v; %w", err, rerr)
	}
	s.db = db
	s.mu.Unlock()

	return s.listTables(ctx)
}

func (s *Store) listTables(ctx context.Context) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("graph database is closed")
	}

	rows, err := db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'graph_%'")
	if err != nil {
		return fmt.Errorf("failed to list graph tables; %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("graph schema missing")
	}
	return nil
}

func (s *Store) database() *sql.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db
}

// normalizeEmbedding pads or truncates a vector to EmbeddingDims. A nil
// input yields the zero vector.
func normalizeEmbedding(v []float32) []float32 {
	out := make([]float32, EmbeddingDims)
	copy(out, v)
	return out
}

func isZeroVector(v []float32) bool {
	for _, f := range v {
		if f != 0 {
			return false
		}
	}
	return true
}

// serializeFloat32 converts a vector to the sqlite-vec blob format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// iso8601 serializes a timestamp the way the query surface expects.
func iso8601(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// likeEscape quotes LIKE wildcards in user-derived search terms.
func likeEscape(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	return strings.ReplaceAll(term, "_", `\_`)
}
