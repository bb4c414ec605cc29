package trust

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/storage"
)

type memProv struct {
	records map[string]*models.ProvenanceRecord
}

func (m *memProv) GetProvenance(ctx context.Context, chunkID string) (*models.ProvenanceRecord, error) {
	rec, ok := m.records[chunkID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrProvenanceNotFound, chunkID)
	}
	return rec, nil
}

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func record(base, cap float64, contradictions int) *models.ProvenanceRecord {
	return &models.ProvenanceRecord{
		ChunkID:            "c1",
		SourceKind:         models.SourceKindAuthored,
		BaseTrust:          base,
		TrustCap:           cap,
		ContradictionCount: contradictions,
		FirstSeenAt:        epoch,
		LastUpdatedAt:      epoch,
	}
}

func newTestScorer(records map[string]*models.ProvenanceRecord) *Scorer {
	s := NewScorer(&memProv{records: records}, Config{}, zap.NewNop())
	s.now = func() time.Time { return epoch }
	return s
}

func TestEffectiveFreshChunk(t *testing.T) {
	s := newTestScorer(nil)
	got := s.Effective(record(0.9, 1.0, 0), epoch)
	if got != 0.9 {
		t.Errorf("fresh uncontradicted chunk should keep base trust, got %f", got)
	}
}

func TestEffectiveMonotoneInContradictions(t *testing.T) {
	s := newTestScorer(nil)
	prev := s.Effective(record(0.9, 1.0, 0), epoch)
	for n := 1; n <= 10; n++ {
		cur := s.Effective(record(0.9, 1.0, n), epoch)
		if cur > prev {
			t.Fatalf("trust rose from %f to %f at %d contradictions", prev, cur, n)
		}
		prev = cur
	}
}

func TestEffectiveMonotoneInAge(t *testing.T) {
	s := newTestScorer(nil)
	rec := record(0.9, 1.0, 0)
	prev := s.Effective(rec, epoch)
	for days := 30; days <= 720; days += 30 {
		cur := s.Effective(rec, epoch.AddDate(0, 0, days))
		if cur > prev {
			t.Fatalf("trust rose with age at %d days: %f > %f", days, cur, prev)
		}
		prev = cur
	}
}

func TestEffectiveHalfLife(t *testing.T) {
	s := newTestScorer(nil)
	rec := record(0.8, 1.0, 0)
	got := s.Effective(rec, epoch.AddDate(0, 0, 180))
	if diff := got - 0.4; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("trust should halve at the half-life, got %f", got)
	}
}

func TestEffectiveNeverExceedsCap(t *testing.T) {
	s := newTestScorer(nil)
	rec := record(0.3, 0.3, 0)
	rec.SourceKind = models.SourceKindExternal
	if got := s.Effective(rec, epoch); got > 0.3 {
		t.Errorf("effective trust exceeded cap: %f", got)
	}
	// Even a base trust corrupted above the cap stays clamped.
	rec.BaseTrust = 0.9
	if got := s.Effective(rec, epoch); got > 0.3 {
		t.Errorf("cap must clamp corrupted base trust: %f", got)
	}
}

func TestEffectiveTrustScoreMissingRecord(t *testing.T) {
	s := newTestScorer(nil)
	got, err := s.EffectiveTrustScore(context.Background(), "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.5 {
		t.Errorf("missing provenance should yield neutral default, got %f", got)
	}
}

func results(ids ...string) []*models.SearchResult {
	out := make([]*models.SearchResult, len(ids))
	for i, id := range ids {
		out[i] = &models.SearchResult{ChunkID: id, FusedScore: 1.0 - float64(i)*0.1}
	}
	return out
}

func TestRerankZeroWeightPassThrough(t *testing.T) {
	s := newTestScorer(nil)
	in := results("a", "b", "c")
	out := s.Rerank(context.Background(), in, 0)
	for i, r := range out {
		if r.ChunkID != in[i].ChunkID {
			t.Fatalf("zero weight must preserve order, got %s at %d", r.ChunkID, i)
		}
		if r.TrustScore != 0 || r.CombinedScore != 0 {
			t.Error("zero weight must not touch scores")
		}
	}
}

func TestRerankPrefersTrusted(t *testing.T) {
	recs := map[string]*models.ProvenanceRecord{
		"low": {ChunkID: "low", SourceKind: models.SourceKindExternal,
			BaseTrust: 0.2, TrustCap: 0.3, FirstSeenAt: epoch},
		"high": {ChunkID: "high", SourceKind: models.SourceKindSystem,
			BaseTrust: 1.0, TrustCap: 1.0, FirstSeenAt: epoch},
	}
	s := newTestScorer(recs)

	in := []*models.SearchResult{
		{ChunkID: "low", FusedScore: 0.8},
		{ChunkID: "high", FusedScore: 0.7},
	}
	out := s.Rerank(context.Background(), in, 0.6)
	if out[0].ChunkID != "high" {
		t.Errorf("trusted chunk should win at high trust weight, got %s", out[0].ChunkID)
	}
	for _, r := range out {
		want := 0.4*r.FusedScore + 0.6*r.TrustScore
		if diff := r.CombinedScore - want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("combined score formula mismatch for %s: %f != %f", r.ChunkID, r.CombinedScore, want)
		}
	}
}

func TestRerankCapsExternalInfluence(t *testing.T) {
	recs := map[string]*models.ProvenanceRecord{
		"ext": {ChunkID: "ext", SourceKind: models.SourceKindExternal,
			BaseTrust: 0.3, TrustCap: 0.3, FirstSeenAt: epoch},
	}
	s := newTestScorer(recs)
	out := s.Rerank(context.Background(), []*models.SearchResult{{ChunkID: "ext", FusedScore: 1.0}}, 1.0)
	if out[0].CombinedScore > 0.3 {
		t.Errorf("full trust weight bounds external chunks at the cap, got %f", out[0].CombinedScore)
	}
}
