package vector

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Fallback is the brute-force backend: it loads all matching chunk
// embeddings, computes cosine similarity in process, and keeps the top K.
// O(N) in matching chunk count; result size is bounded purely by limit.
type Fallback struct {
	source ChunkSource
	logger *zap.Logger
}

// NewFallback creates a brute-force backend over a chunk source.
func NewFallback(source ChunkSource, logger *zap.Logger) *Fallback {
	return &Fallback{source: source, logger: logger}
}

// Name returns the backend identifier.
func (f *Fallback) Name() string {
	return "fallback"
}

// Search computes cosine similarity against every matching chunk,
// discards non-finite scores, and returns the top limit candidates sorted
// descending (ties broken by ascending chunk id).
func (f *Fallback) Search(ctx context.Context, query []float32, limit int, model string, sources []string) ([]*models.RankedCandidate, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}

	chunks, err := f.source.GetChunksForModel(ctx, model, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks for scan: %w", err)
	}

	candidates := make([]*models.RankedCandidate, 0, len(chunks))
	for _, chunk := range chunks {
		score := Cosine(query, chunk.Embedding)
		if math.IsNaN(score) || math.IsInf(score, 0) {
			f.logger.Debug("discarding chunk with non-finite similarity",
				zap.String("chunk_id", chunk.ID), zap.Int("dims", len(chunk.Embedding)))
			continue
		}
		candidates = append(candidates, &models.RankedCandidate{
			ID:          chunk.ID,
			Path:        chunk.Path,
			StartLine:   chunk.StartLine,
			EndLine:     chunk.EndLine,
			Source:      chunk.Source,
			VectorScore: score,
			Snippet:     utils.Snippet(chunk.Text, 160),
			Text:        chunk.Text,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].VectorScore != candidates[j].VectorScore {
			return candidates[i].VectorScore > candidates[j].VectorScore
		}
		return candidates[i].ID < candidates[j].ID
	})
	if limit < len(candidates) {
		candidates = candidates[:limit]
	}
	return candidates, nil
}
