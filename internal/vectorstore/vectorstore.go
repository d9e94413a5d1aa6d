// Package vectorstore persists embedded chunks and summaries in two
// logical SQLite databases backed by sqlite-vec, one collection per
// bucket, plus a lazily created STP database. Cosine is the metric
// everywhere.
package vectorstore

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

// Dimensions carries the embedding dimensions for the three databases.
type Dimensions struct {
	Chunk   int
	Summary int
	STP     int
}

// Store owns the chunks and summaries databases and the lazily opened
// STP database. Safe for concurrent use.
type Store struct {
	cfg    config.VectorConfig
	dims   Dimensions
	logger *slog.Logger

	mu          sync.Mutex
	chunksDB    *sql.DB
	summariesDB *sql.DB
	stpDB       *sql.DB
}

// New opens the chunks and summaries databases and creates their
// per-bucket collections. The STP database opens on first STP insert.
func New(cfg config.VectorConfig, dims Dimensions, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{cfg: cfg, dims: dims, logger: logger}

	var err error
	s.chunksDB, err = openDatabase(cfg.ChunksPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunks database; %w", err)
	}
	if err := ensureChunkSchema(s.chunksDB, dims.Chunk); err != nil {
		s.chunksDB.Close()
		return nil, fmt.Errorf("failed to create chunk collections; %w", err)
	}

	s.summariesDB, err = openDatabase(cfg.SummariesPath)
	if err != nil {
		s.chunksDB.Close()
		return nil, fmt.Errorf("failed to open summaries database; %w", err)
	}
	if err := ensureSummarySchema(s.summariesDB, dims.Summary); err != nil {
		s.chunksDB.Close()
		s.summariesDB.Close()
		return nil, fmt.Errorf("failed to create summary collections; %w", err)
	}

	logger.Info("vector store ready",
		"chunks_db", cfg.ChunksPath,
		"summaries_db", cfg.SummariesPath,
		"chunk_dims", dims.Chunk,
		"summary_dims", dims.Summary)

	return s, nil
}

// Close closes all open databases.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, db := range []*sql.DB{s.chunksDB, s.summariesDB, s.stpDB} {
		if db == nil {
			continue
		}
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.stpDB = nil
	return firstErr
}

// openDatabase opens one SQLite file with WAL and a busy timeout,
// creating parent directories as needed.
func openDatabase(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory; %w", err)
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

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// withReconnect runs op and, when the error looks like a lost
// connection, reopens the database once and retries.
func (s *Store) withReconnect(ctx context.Context, which dbKind, op func(db *sql.DB) error) error {
	db, err := s.database(which)
	if err != nil {
		return err
	}

	err = op(db)
	if err == nil || !isConnectionError(err) {
		return err
	}

	s.logger.Warn("database connection lost, reconnecting", "db", which)
	db, rerr := s.reopen(which)
	if rerr != nil {
		return fmt.Errorf("reconnect failed after %v; %w", err, rerr)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return op(db)
}

type dbKind string

const (
	dbChunks    dbKind = "chunks"
	dbSummaries dbKind = "summaries"
	dbSTP       dbKind = "stp"
)

func (s *Store) database(which dbKind) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch which {
	case dbChunks:
		return s.chunksDB, nil
	case dbSummaries:
		return s.summariesDB, nil
	case dbSTP:
		return s.ensureSTPLocked()
	}
	return nil, fmt.Errorf("unknown database %q", which)
}

func (s *Store) reopen(which dbKind) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch which {
	case dbChunks:
		if s.chunksDB != nil {
			s.chunksDB.Close()
		}
		db, err := openDatabase(s.cfg.ChunksPath)
		if err != nil {
			return nil, err
		}
		if err := ensureChunkSchema(db, s.dims.Chunk); err != nil {
			db.Close()
			return nil, err
		}
		s.chunksDB = db
		return db, nil
	case dbSummaries:
		if s.summariesDB != nil {
			s.summariesDB.Close()
		}
		db, err := openDatabase(s.cfg.SummariesPath)
		if err != nil {
			return nil, err
		}
		if err := ensureSummarySchema(db, s.dims.Summary); err != nil {
			db.Close()
			return nil, err
		}
		s.summariesDB = db
		return db, nil
	case dbSTP:
		if s.stpDB != nil {
			s.stpDB.Close()
			s.stpDB = nil
		}
		return s.ensureSTPLocked()
	}
	return nil, fmt.Errorf("unknown database %q", which)
}

// isConnectionError reports whether err indicates a lost or closed
// database handle rather than a query problem.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is closed") ||
		strings.Contains(msg, "bad connection") ||
		strings.Contains(msg, "disk I/O error")
}

// serializeFloat32 converts a vector to the little-endian blob format
// sqlite-vec expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
