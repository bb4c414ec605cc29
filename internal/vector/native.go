package vector

import (
	"context"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
)

// Native delegates nearest-neighbor search to the sqlite-vec extension
// loaded into the store. A failed native query degrades to the brute-force
// fallback for that query instead of surfacing an error.
type Native struct {
	store    NativeStore
	fallback *Fallback
	logger   *zap.Logger
}

// Name returns the backend identifier.
func (n *Native) Name() string {
	return "sqlite-vec"
}

// Search runs the vec0 KNN query; score is 1 - distance. When no vec table
// exists for the query's dimension (older rows indexed before the
// extension was present), the fallback scan covers them.
func (n *Native) Search(ctx context.Context, query []float32, limit int, model string, sources []string) ([]*models.RankedCandidate, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}

	candidates, err := n.store.SearchNative(ctx, query, limit, model, sources)
	if err != nil {
		n.logger.Warn("native vector search failed, using brute-force scan", zap.Error(err))
		return n.fallback.Search(ctx, query, limit, model, sources)
	}
	if candidates == nil {
		return n.fallback.Search(ctx, query, limit, model, sources)
	}
	return candidates, nil
}
