// Package keyword provides full-text chunk search over the store's FTS5
// index, with rank-derived bounded scores.
package keyword

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
)

// absentRank is substituted for a missing or non-finite engine rank so the
// row lands at a near-zero score instead of poisoning the fused ordering.
const absentRank = 999

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// Searcher defines keyword search over indexed chunks.
type Searcher interface {
	Search(ctx context.Context, queryText string, limit int, model string, sources []string) ([]*models.RankedCandidate, error)
}

// Index runs conjunctive FTS5 queries against the chunks_fts table.
type Index struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIndex creates a keyword index over the store's database handle.
func NewIndex(db *sql.DB, logger *zap.Logger) *Index {
	return &Index{db: db, logger: logger}
}

// BuildMatchQuery extracts alphanumeric/underscore tokens from raw query
// text and joins them into a conjunctive FTS5 MATCH expression. Each token
// is individually quoted so user input can never smuggle in FTS5
// operators. Returns "" when no tokens can be extracted.
func BuildMatchQuery(queryText string) string {
	tokens := tokenPattern.FindAllString(queryText, -1)
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " AND ")
}

// Search returns the top chunks matching every query token, scored by
// score = 1/(1+max(0, rank)). An empty token list returns no results,
// never a match-everything scan. Ties in rank keep the engine's order.
func (i *Index) Search(ctx context.Context, queryText string, limit int, model string, sources []string) ([]*models.RankedCandidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	match := BuildMatchQuery(queryText)
	if match == "" {
		return nil, nil
	}

	query := `SELECT c.chunk_id, c.path, c.start_line, c.end_line, c.source, c.text,
			snippet(chunks_fts, 0, '', '', '…', 16), rank
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ? AND c.embedding_model = ?`
	args := []interface{}{match, model}
	if len(sources) > 0 {
		query += ` AND c.source IN (` + strings.Repeat("?,", len(sources)-1) + `?)`
		for _, src := range sources {
			args = append(args, src)
		}
	}
	query += ` ORDER BY rank LIMIT ?`
	args = append(args, limit)

	rows, err := i.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var candidates []*models.RankedCandidate
	for rows.Next() {
		var c models.RankedCandidate
		var rank sql.NullFloat64
		if err := rows.Scan(&c.ID, &c.Path, &c.StartLine, &c.EndLine, &c.Source, &c.Text, &c.Snippet, &rank); err != nil {
			i.logger.Warn("skipping unreadable keyword row", zap.Error(err))
			continue
		}
		c.TextScore = RankScore(rank)
		candidates = append(candidates, &c)
	}
	return candidates, rows.Err()
}

// RankScore converts an engine-provided relevance rank into a bounded
// score in (0, 1].
func RankScore(rank sql.NullFloat64) float64 {
	r := float64(absentRank)
	if rank.Valid && !math.IsNaN(rank.Float64) && !math.IsInf(rank.Float64, 0) {
		r = rank.Float64
	}
	return 1 / (1 + math.Max(0, r))
}
