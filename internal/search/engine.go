package search

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/security"
	"github.com/hyperjump/kioku/internal/vector"
)

// TrustScorer reranks results by blending effective trust into fused
// scores. A trust weight of 0 must be a pure pass-through.
type TrustScorer interface {
	Rerank(ctx context.Context, results []*models.SearchResult, trustWeight float64) []*models.SearchResult
}

// Engine runs hybrid search over one store.
type Engine struct {
	vector    vector.Backend
	keyword   keyword.Searcher
	scorer    TrustScorer
	validator *security.Validator
	cfg       *config.SearchConfig
	logger    *zap.Logger
}

// NewEngine creates a search engine with the given dependencies. scorer
// may be nil for callers without provenance access; trust options on a
// query are then ignored except for content scanning.
func NewEngine(
	vectorBackend vector.Backend,
	keywordIndex keyword.Searcher,
	scorer TrustScorer,
	validator *security.Validator,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		vector:    vectorBackend,
		keyword:   keywordIndex,
		scorer:    scorer,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Search runs the vector and keyword branches concurrently, fuses their
// candidates, and optionally applies the trust pass. A failing branch
// contributes nothing but does not fail the call: the caller gets
// whatever the unaffected path produced.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) ([]*models.SearchResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	candidateLimit := e.cfg.TopKCandidates
	if candidateLimit < query.Limit {
		candidateLimit = query.Limit
	}

	var (
		vectorHits  []*models.RankedCandidate
		keywordHits []*models.RankedCandidate
		wg          sync.WaitGroup
	)

	if query.VectorWeight > 0 && len(query.QueryVector) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := e.vector.Search(ctx, query.QueryVector, candidateLimit, query.Model, query.Sources)
			if err != nil {
				e.logger.Warn("vector search failed, continuing with keyword results only", zap.Error(err))
				return
			}
			vectorHits = hits
		}()
	}

	if query.TextWeight > 0 && query.QueryText != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := e.keyword.Search(ctx, query.QueryText, candidateLimit, query.Model, query.Sources)
			if err != nil {
				e.logger.Warn("keyword search failed, continuing with vector results only", zap.Error(err))
				return
			}
			keywordHits = hits
		}()
	}

	wg.Wait()

	fused := Fuse(vectorHits, keywordHits, query.VectorWeight, query.TextWeight)

	results := make([]*models.SearchResult, len(fused))
	for i, c := range fused {
		results[i] = &models.SearchResult{
			ChunkID:    c.ID,
			Path:       c.Path,
			StartLine:  c.StartLine,
			EndLine:    c.EndLine,
			FusedScore: c.FusedScore,
			Snippet:    c.Snippet,
			Source:     c.Source,
		}
	}

	// Trust runs over the whole candidate pool so a high-trust chunk just
	// below the fused cut can still surface; the limit applies last.
	if query.Trust != nil {
		if query.Trust.ScanContent {
			e.scanResults(fused, results)
		}
		if query.Trust.TrustWeight > 0 && e.scorer != nil {
			results = e.scorer.Rerank(ctx, results, query.Trust.TrustWeight)
		}
	}
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// scanResults attaches advisory security warnings to results whose chunk
// text matches an adversarial pattern. Flagged results stay in the list;
// withholding them is the caller's policy decision.
func (e *Engine) scanResults(candidates []*models.RankedCandidate, results []*models.SearchResult) {
	for i, c := range candidates {
		text := c.Text
		if text == "" {
			text = c.Snippet
		}
		report := e.validator.ValidateContent(text)
		if report.Severity == security.SeverityNone {
			continue
		}
		for _, f := range report.Findings {
			results[i].Warnings = append(results[i].Warnings,
				fmt.Sprintf("%s (%s): %q", f.Name, f.Severity, f.Match))
		}
		e.logger.Debug("flagged retrieved content",
			zap.String("chunk_id", c.ID),
			zap.String("severity", report.Severity),
			zap.Int("findings", len(report.Findings)))
	}
}
