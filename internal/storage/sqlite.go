package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Store implements ChunkStore and ProvenanceStore on SQLite. When the
// sqlite-vec extension loads, chunks are mirrored into vec0 virtual tables
// (one per embedding dimension) for native similarity search.
type Store struct {
	db      *sql.DB
	logger  *zap.Logger
	writeMu sync.Mutex

	vecLoaded bool
	vecMu     sync.Mutex
	vecDims   map[int]bool
}

var (
	driverMu      sync.Mutex
	driversByPath = make(map[string]string)
)

// vecDriverName registers (once per extension path) a sqlite3 driver that
// loads the sqlite-vec extension on every connection.
func vecDriverName(extPath string) string {
	driverMu.Lock()
	defer driverMu.Unlock()
	if name, ok := driversByPath[extPath]; ok {
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(extPath))
	name := fmt.Sprintf("sqlite3_vec_%08x", h.Sum32())
	sql.Register(name, &sqlite3.SQLiteDriver{Extensions: []string{extPath}})
	driversByPath[extPath] = name
	return name
}

// Open opens or creates the database at dbPath and initializes the schema.
// When vecExtPath is non-empty the sqlite-vec extension is loaded
// best-effort: any failure logs a warning and the store runs without the
// native backend. Parent directories are created if they do not exist.
func Open(dbPath, vecExtPath string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, vecLoaded := openWithVec(dbPath, vecExtPath, logger)
	if db == nil {
		var err error
		db, err = sql.Open("sqlite3", dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &Store{
		db:        db,
		logger:    logger,
		vecLoaded: vecLoaded,
		vecDims:   make(map[int]bool),
	}
	if vecLoaded {
		s.loadVecDims()
	}
	return s, nil
}

// openWithVec attempts to open the database with the sqlite-vec extension
// loaded. Returns (nil, false) when the extension path is empty or the
// extension cannot be loaded; the caller then opens a plain handle.
func openWithVec(dbPath, vecExtPath string, logger *zap.Logger) (*sql.DB, bool) {
	if vecExtPath == "" {
		return nil, false
	}
	db, err := sql.Open(vecDriverName(vecExtPath), dbPath)
	if err == nil {
		var version string
		err = db.QueryRow("SELECT vec_version()").Scan(&version)
		if err == nil {
			logger.Info("sqlite-vec extension loaded", zap.String("version", version))
			return db, true
		}
	}
	if db != nil {
		_ = db.Close()
	}
	logger.Warn("sqlite-vec extension unavailable, using brute-force vector search",
		zap.String("extension", vecExtPath), zap.Error(err))
	return nil, false
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_id TEXT UNIQUE NOT NULL,
		path TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB,
		source TEXT NOT NULL DEFAULT '',
		embedding_model TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_model_source ON chunks(embedding_model, source);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source);

	CREATE TABLE IF NOT EXISTS provenance (
		chunk_id TEXT PRIMARY KEY,
		source_kind TEXT NOT NULL,
		base_trust REAL NOT NULL,
		trust_cap REAL NOT NULL,
		verified_by TEXT NOT NULL DEFAULT '',
		contradiction_count INTEGER NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '',
		first_seen_at TIMESTAMP NOT NULL,
		last_updated_at TIMESTAMP NOT NULL
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
		text,
		content='chunks',
		content_rowid='id',
		tokenize='porter unicode61'
	);

	CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
		INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.id, old.text);
	END;

	CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
		INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.id, old.text);
		INSERT INTO chunks_fts(rowid, text) VALUES (new.id, new.text);
	END;
	`
	_, err := db.Exec(schema)
	return err
}

// DB exposes the underlying handle for index adapters (keyword, vector)
// that share the store's database.
func (s *Store) DB() *sql.DB {
	return s.db
}

// VecAvailable reports whether the native sqlite-vec backend is loaded.
// Decided once at Open and never re-checked per query.
func (s *Store) VecAvailable() bool {
	return s.vecLoaded
}

// UpsertChunk inserts or replaces a chunk by chunk id. The FTS index is
// kept in sync by triggers; the vec0 mirror is refreshed when the native
// backend is loaded. A chunk id is generated when empty.
func (s *Store) UpsertChunk(ctx context.Context, chunk *models.Chunk) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	chunk.UpdatedAt = time.Now()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (chunk_id, path, start_line, end_line, text, embedding, source, embedding_model, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET
			path = excluded.path,
			start_line = excluded.start_line,
			end_line = excluded.end_line,
			text = excluded.text,
			embedding = excluded.embedding,
			source = excluded.source,
			embedding_model = excluded.embedding_model,
			updated_at = excluded.updated_at`,
		chunk.ID, chunk.Path, chunk.StartLine, chunk.EndLine, chunk.Text,
		EncodeEmbedding(chunk.Embedding), chunk.Source, chunk.EmbeddingModel, chunk.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunk: %w", err)
	}

	if s.vecLoaded && len(chunk.Embedding) > 0 {
		if err := s.mirrorVec(ctx, chunk); err != nil {
			// Native index miss only reduces scale; the brute-force path
			// still sees the chunk row.
			s.logger.Warn("failed to mirror chunk into vec index",
				zap.String("chunk_id", chunk.ID), zap.Error(err))
		}
	}
	return nil
}

// GetChunk returns a chunk by chunk id.
func (s *Store) GetChunk(ctx context.Context, chunkID string) (*models.Chunk, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chunk_id, path, start_line, end_line, text, embedding, source, embedding_model, updated_at
		 FROM chunks WHERE chunk_id = ?`, chunkID)
	chunk, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotFound, chunkID)
	}
	return chunk, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChunk(row rowScanner) (*models.Chunk, error) {
	var chunk models.Chunk
	var blob []byte
	err := row.Scan(&chunk.ID, &chunk.Path, &chunk.StartLine, &chunk.EndLine,
		&chunk.Text, &blob, &chunk.Source, &chunk.EmbeddingModel, &chunk.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(blob) > 0 {
		vec, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		chunk.Embedding = vec
	}
	return &chunk, nil
}

// GetChunksForModel returns all chunks for an embedding model, optionally
// restricted to a set of source tags. Filters are ANDed into the query
// rather than applied by post-filtering. Rows with malformed embeddings
// are skipped with a warning instead of aborting the read.
func (s *Store) GetChunksForModel(ctx context.Context, model string, sources []string) ([]*models.Chunk, error) {
	query := `SELECT chunk_id, path, start_line, end_line, text, embedding, source, embedding_model, updated_at
		 FROM chunks WHERE embedding_model = ?`
	args := []interface{}{model}
	if clause, filterArgs := sourceFilter("source", sources); clause != "" {
		query += " AND " + clause
		args = append(args, filterArgs...)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable chunk row", zap.Error(err))
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// DeleteChunksBySource removes all chunks for a source tag along with their
// provenance records and vec0 mirror rows.
func (s *Store) DeleteChunksBySource(ctx context.Context, source string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT chunk_id, length(embedding) FROM chunks WHERE source = ?`, source)
	if err != nil {
		return fmt.Errorf("failed to list chunks for source: %w", err)
	}
	ids := make([]string, 0)
	dims := make(map[int][]string)
	for rows.Next() {
		var id string
		var blobLen sql.NullInt64
		if err := rows.Scan(&id, &blobLen); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, id)
		if blobLen.Valid && blobLen.Int64 > 0 {
			dim := int(blobLen.Int64 / 4)
			dims[dim] = append(dims[dim], id)
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	placeholders, args := inArgs(ids)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM provenance WHERE chunk_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("failed to delete provenance: %w", err)
	}
	if s.vecLoaded {
		for dim, dimIDs := range dims {
			if !s.hasVecDim(dim) {
				continue
			}
			ph, dimArgs := inArgs(dimIDs)
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE chunk_id IN (%s)`, vecTableName(dim), ph), dimArgs...); err != nil {
				return fmt.Errorf("failed to delete vec rows: %w", err)
			}
		}
	}
	return tx.Commit()
}

// CountChunks returns the total number of stored chunks.
func (s *Store) CountChunks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// PutProvenance inserts or replaces a provenance record.
func (s *Store) PutProvenance(ctx context.Context, rec *models.ProvenanceRecord) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	metaJSON := ""
	if len(rec.Metadata) > 0 {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal provenance metadata: %w", err)
		}
		metaJSON = string(data)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provenance (chunk_id, source_kind, base_trust, trust_cap, verified_by, contradiction_count, metadata, first_seen_at, last_updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(chunk_id) DO UPDATE SET
			source_kind = excluded.source_kind,
			base_trust = excluded.base_trust,
			trust_cap = excluded.trust_cap,
			verified_by = excluded.verified_by,
			contradiction_count = excluded.contradiction_count,
			metadata = excluded.metadata,
			last_updated_at = excluded.last_updated_at`,
		rec.ChunkID, rec.SourceKind, rec.BaseTrust, rec.TrustCap, rec.VerifiedBy,
		rec.ContradictionCount, metaJSON, rec.FirstSeenAt, rec.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to put provenance: %w", err)
	}
	return nil
}

// GetProvenance returns the provenance record for a chunk id.
func (s *Store) GetProvenance(ctx context.Context, chunkID string) (*models.ProvenanceRecord, error) {
	var rec models.ProvenanceRecord
	var metaJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT chunk_id, source_kind, base_trust, trust_cap, verified_by, contradiction_count, metadata, first_seen_at, last_updated_at
		 FROM provenance WHERE chunk_id = ?`, chunkID,
	).Scan(&rec.ChunkID, &rec.SourceKind, &rec.BaseTrust, &rec.TrustCap, &rec.VerifiedBy,
		&rec.ContradictionCount, &metaJSON, &rec.FirstSeenAt, &rec.LastUpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrProvenanceNotFound, chunkID)
	}
	if err != nil {
		return nil, err
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal provenance metadata: %w", err)
		}
	}
	return &rec, nil
}

// SearchNative runs a KNN query against the vec0 table matching the query
// vector's dimension. The tables use the cosine metric, so 1 - distance is
// the cosine similarity. Only valid when VecAvailable.
func (s *Store) SearchNative(ctx context.Context, query []float32, limit int, model string, sources []string) ([]*models.RankedCandidate, error) {
	dim := len(query)
	if !s.hasVecDim(dim) {
		return nil, nil
	}

	sqlQuery := fmt.Sprintf(
		`SELECT v.chunk_id, v.distance, c.path, c.start_line, c.end_line, c.source, c.text
		 FROM %s v JOIN chunks c ON c.chunk_id = v.chunk_id
		 WHERE v.embedding MATCH ? AND k = ? AND v.model = ?`, vecTableName(dim))
	args := []interface{}{EncodeEmbedding(query), limit, model}
	if clause, filterArgs := sourceFilter("v.source", sources); clause != "" {
		sqlQuery += " AND " + clause
		args = append(args, filterArgs...)
	}
	sqlQuery += " ORDER BY v.distance"

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("vec search failed: %w", err)
	}
	defer rows.Close()

	var candidates []*models.RankedCandidate
	for rows.Next() {
		var c models.RankedCandidate
		var distance float64
		var text string
		if err := rows.Scan(&c.ID, &distance, &c.Path, &c.StartLine, &c.EndLine, &c.Source, &text); err != nil {
			s.logger.Warn("skipping unreadable vec row", zap.Error(err))
			continue
		}
		c.VectorScore = 1 - distance
		if math.IsNaN(c.VectorScore) || math.IsInf(c.VectorScore, 0) {
			continue
		}
		c.Snippet = utils.Snippet(text, 160)
		c.Text = text
		candidates = append(candidates, &c)
	}
	return candidates, rows.Err()
}

func vecTableName(dim int) string {
	return fmt.Sprintf("vec_chunks_%d", dim)
}

func (s *Store) hasVecDim(dim int) bool {
	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	return s.vecDims[dim]
}

// loadVecDims discovers vec0 tables created by earlier runs.
func (s *Store) loadVecDims() {
	rows, err := s.db.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name LIKE 'vec_chunks_%'`)
	if err != nil {
		s.logger.Warn("failed to list vec tables", zap.Error(err))
		return
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		var dim int
		if _, err := fmt.Sscanf(name, "vec_chunks_%d", &dim); err == nil && dim > 0 {
			s.vecDims[dim] = true
		}
	}
}

// vecTableDDL declares the vec0 table for one embedding dimension. The
// cosine metric keeps native scores (1 - distance) equal to the cosine
// similarity the brute-force path computes, so rankings do not depend on
// which backend is loaded.
func vecTableDDL(dim int) string {
	return fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding FLOAT[%d] distance_metric=cosine,
			model TEXT,
			source TEXT
		)`, vecTableName(dim), dim)
}

func (s *Store) ensureVecTable(ctx context.Context, dim int) error {
	s.vecMu.Lock()
	defer s.vecMu.Unlock()
	if s.vecDims[dim] {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, vecTableDDL(dim)); err != nil {
		return err
	}
	s.vecDims[dim] = true
	return nil
}

func (s *Store) mirrorVec(ctx context.Context, chunk *models.Chunk) error {
	dim := len(chunk.Embedding)
	if err := s.ensureVecTable(ctx, dim); err != nil {
		return err
	}
	table := vecTableName(dim)
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE chunk_id = ?`, table), chunk.ID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (chunk_id, embedding, model, source) VALUES (?, ?, ?, ?)`, table),
		chunk.ID, EncodeEmbedding(chunk.Embedding), chunk.EmbeddingModel, chunk.Source)
	return err
}

// sourceFilter builds an "col IN (?,...)" clause for a source tag set.
// An empty set means no filtering.
func sourceFilter(col string, sources []string) (string, []interface{}) {
	if len(sources) == 0 {
		return "", nil
	}
	placeholders, args := inArgs(sources)
	return col + " IN (" + placeholders + ")", args
}

func inArgs(values []string) (string, []interface{}) {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return strings.Repeat("?,", len(values)-1) + "?", args
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
