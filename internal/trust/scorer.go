// Package trust computes effective trust scores from provenance records and
// performs the optional trust-weighted rerank pass over search results.
package trust

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Config tunes the decay formula.
type Config struct {
	// HalfLifeDays is the age at which trust halves. Zero uses 180.
	HalfLifeDays float64
	// ContradictionPenalty multiplies trust once per recorded
	// contradiction. Must be in (0, 1]; zero uses 0.85.
	ContradictionPenalty float64
	// DefaultTrust is assigned to chunks with no provenance record during
	// reranking, so enabling trust scoring does not zero out legacy rows.
	// Zero uses 0.5.
	DefaultTrust float64
}

func (c Config) withDefaults() Config {
	if c.HalfLifeDays <= 0 {
		c.HalfLifeDays = 180
	}
	if c.ContradictionPenalty <= 0 || c.ContradictionPenalty > 1 {
		c.ContradictionPenalty = 0.85
	}
	if c.DefaultTrust <= 0 {
		c.DefaultTrust = 0.5
	}
	return c
}

// ProvenanceSource is the read side of provenance storage.
type ProvenanceSource interface {
	GetProvenance(ctx context.Context, chunkID string) (*models.ProvenanceRecord, error)
}

// Scorer computes effective trust and reranks results.
type Scorer struct {
	prov   ProvenanceSource
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewScorer creates a scorer over a provenance source.
func NewScorer(prov ProvenanceSource, cfg Config, logger *zap.Logger) *Scorer {
	return &Scorer{prov: prov, cfg: cfg.withDefaults(), logger: logger, now: time.Now}
}

// Effective computes the decayed trust for a record at the given time:
//
//	min(cap, base · penalty^contradictions · 2^(−ageDays/halfLife))
//
// Monotonically non-increasing in contradiction count and age, and never
// above the record's trust cap.
func (s *Scorer) Effective(rec *models.ProvenanceRecord, at time.Time) float64 {
	ageDays := at.Sub(rec.FirstSeenAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	score := rec.BaseTrust *
		math.Pow(s.cfg.ContradictionPenalty, float64(rec.ContradictionCount)) *
		math.Exp2(-ageDays/s.cfg.HalfLifeDays)
	return utils.Clamp(score, 0, rec.TrustCap)
}

// EffectiveTrustScore returns the current effective trust for a chunk.
// Chunks without a provenance record get the neutral default.
func (s *Scorer) EffectiveTrustScore(ctx context.Context, chunkID string) (float64, error) {
	rec, err := s.prov.GetProvenance(ctx, chunkID)
	if errors.Is(err, storage.ErrProvenanceNotFound) {
		return s.cfg.DefaultTrust, nil
	}
	if err != nil {
		return 0, err
	}
	return s.Effective(rec, s.now()), nil
}

// Rerank blends effective trust into fused scores and re-sorts:
//
//	combined = (1−w)·fused + w·trust
//
// A weight of 0 is a pure pass-through that preserves the input order. A
// chunk whose provenance cannot be read keeps its fused score with the
// neutral default trust rather than failing the whole pass.
func (s *Scorer) Rerank(ctx context.Context, results []*models.SearchResult, trustWeight float64) []*models.SearchResult {
	if trustWeight == 0 {
		return results
	}
	w := utils.Clamp(trustWeight, 0, 1)
	for _, r := range results {
		score, err := s.EffectiveTrustScore(ctx, r.ChunkID)
		if err != nil {
			s.logger.Warn("trust lookup failed, using default",
				zap.String("chunk_id", r.ChunkID), zap.Error(err))
			score = s.cfg.DefaultTrust
		}
		r.TrustScore = score
		r.CombinedScore = (1-w)*r.FusedScore + w*score
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].CombinedScore != results[j].CombinedScore {
			return results[i].CombinedScore > results[j].CombinedScore
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}
