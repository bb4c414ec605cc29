// Package vector provides similarity search over stored chunk embeddings,
// via the native sqlite-vec backend or a brute-force cosine fallback.
package vector

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
)

// Backend runs top-K similarity search. The implementation is chosen once
// at store initialization; callers never branch on backend type.
type Backend interface {
	// Search returns candidates sorted by similarity descending, with
	// VectorScore set. limit <= 0 or an empty query vector returns nil
	// without touching storage.
	Search(ctx context.Context, query []float32, limit int, model string, sources []string) ([]*models.RankedCandidate, error)
	// Name identifies the backend for logs and stats.
	Name() string
}

// NativeStore is the slice of the storage layer the native backend needs.
type NativeStore interface {
	VecAvailable() bool
	SearchNative(ctx context.Context, query []float32, limit int, model string, sources []string) ([]*models.RankedCandidate, error)
}

// ChunkSource is the slice of the storage layer the fallback backend needs.
type ChunkSource interface {
	GetChunksForModel(ctx context.Context, model string, sources []string) ([]*models.Chunk, error)
}

// Select returns the native backend when the store loaded sqlite-vec, the
// brute-force fallback otherwise. The native backend degrades to the
// fallback per query if a native search fails, so a backend error is never
// the caller's problem to route around.
func Select(store interface {
	NativeStore
	ChunkSource
}, logger *zap.Logger) Backend {
	fallback := &Fallback{source: store, logger: logger}
	if store.VecAvailable() {
		return &Native{store: store, fallback: fallback, logger: logger}
	}
	return fallback
}
