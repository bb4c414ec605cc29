// Package storage persists chunks and provenance records in SQLite, keeps
// the FTS5 full-text index in sync, and exposes the native vector-search
// capability when the sqlite-vec extension is loaded.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kioku/internal/models"
)

// ErrChunkNotFound is returned when a chunk id does not exist.
var ErrChunkNotFound = errors.New("chunk not found")

// ErrProvenanceNotFound is returned when a chunk has no provenance record.
var ErrProvenanceNotFound = errors.New("provenance record not found")

// ChunkStore defines chunk persistence operations. Reads are safe to issue
// concurrently; writes are serialized by the implementation.
type ChunkStore interface {
	UpsertChunk(ctx context.Context, chunk *models.Chunk) error
	GetChunk(ctx context.Context, chunkID string) (*models.Chunk, error)
	GetChunksForModel(ctx context.Context, model string, sources []string) ([]*models.Chunk, error)
	DeleteChunksBySource(ctx context.Context, source string) error
	CountChunks(ctx context.Context) (int64, error)
}

// ProvenanceStore defines provenance record persistence.
type ProvenanceStore interface {
	PutProvenance(ctx context.Context, rec *models.ProvenanceRecord) error
	GetProvenance(ctx context.Context, chunkID string) (*models.ProvenanceRecord, error)
}
