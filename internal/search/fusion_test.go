package search

import (
	"math"
	"testing"

	"github.com/hyperjump/kioku/internal/models"
)

func vecHit(id string, score float64) *models.RankedCandidate {
	return &models.RankedCandidate{ID: id, Path: id + ".md", VectorScore: score, Snippet: "vector snippet"}
}

func kwHit(id string, score float64) *models.RankedCandidate {
	return &models.RankedCandidate{ID: id, Path: id + ".md", TextScore: score, Snippet: "keyword snippet"}
}

func TestFuseVectorOnlyIdentity(t *testing.T) {
	results := Fuse([]*models.RankedCandidate{vecHit("a", 0.8)}, nil, 0.7, 0.3)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.TextScore != 0 {
		t.Errorf("vector-only chunk should have text score 0, got %f", r.TextScore)
	}
	if diff := r.FusedScore - 0.7*0.8; math.Abs(diff) > 1e-12 {
		t.Errorf("fused should equal vectorWeight*vectorScore, got %f", r.FusedScore)
	}
}

func TestFuseKeywordOnlyIdentity(t *testing.T) {
	results := Fuse(nil, []*models.RankedCandidate{kwHit("a", 1.0)}, 0.7, 0.3)
	r := results[0]
	if r.VectorScore != 0 {
		t.Errorf("keyword-only chunk should have vector score 0, got %f", r.VectorScore)
	}
	if diff := r.FusedScore - 0.3; math.Abs(diff) > 1e-12 {
		t.Errorf("fused should equal textWeight*textScore, got %f", r.FusedScore)
	}
}

func TestFuseUnionByID(t *testing.T) {
	vec := []*models.RankedCandidate{vecHit("both", 0.5), vecHit("vec-only", 0.9)}
	kw := []*models.RankedCandidate{kwHit("both", 1.0), kwHit("kw-only", 1.0)}
	results := Fuse(vec, kw, 0.5, 0.5)
	if len(results) != 3 {
		t.Fatalf("expected union of 3 chunks, got %d", len(results))
	}
	for _, r := range results {
		if r.ID == "both" {
			if diff := r.FusedScore - (0.5*0.5 + 0.5*1.0); math.Abs(diff) > 1e-12 {
				t.Errorf("both-path chunk fused wrong: %f", r.FusedScore)
			}
		}
	}
}

func TestFuseSortedDescending(t *testing.T) {
	results := Fuse(
		[]*models.RankedCandidate{vecHit("low", 0.1), vecHit("high", 0.9)},
		[]*models.RankedCandidate{kwHit("mid", 1.0)},
		1.0, 0.5,
	)
	for i := 1; i < len(results); i++ {
		if results[i].FusedScore > results[i-1].FusedScore {
			t.Fatal("results not sorted by fused score descending")
		}
	}
	if results[0].ID != "high" {
		t.Errorf("expected high first, got %s", results[0].ID)
	}
}

func TestFuseTieBreakAscendingID(t *testing.T) {
	results := Fuse(
		[]*models.RankedCandidate{vecHit("b", 0.5), vecHit("a", 0.5), vecHit("c", 0.5)},
		nil, 1.0, 0,
	)
	want := []string{"a", "b", "c"}
	for i, r := range results {
		if r.ID != want[i] {
			t.Fatalf("ties must order by ascending chunk id, got %s at %d", r.ID, i)
		}
	}
}

func TestFuseSnippetPrefersKeyword(t *testing.T) {
	vec := []*models.RankedCandidate{vecHit("a", 0.5)}
	kw := []*models.RankedCandidate{kwHit("a", 1.0)}
	results := Fuse(vec, kw, 0.5, 0.5)
	if results[0].Snippet != "keyword snippet" {
		t.Errorf("keyword snippet should win, got %q", results[0].Snippet)
	}

	// Empty keyword snippet falls back to the vector-path snippet.
	kwEmpty := []*models.RankedCandidate{{ID: "a", TextScore: 1.0}}
	results = Fuse(vec, kwEmpty, 0.5, 0.5)
	if results[0].Snippet != "vector snippet" {
		t.Errorf("empty keyword snippet should fall back, got %q", results[0].Snippet)
	}
}

func TestFuseWeightsNeedNotSumToOne(t *testing.T) {
	results := Fuse([]*models.RankedCandidate{vecHit("a", 0.5)}, []*models.RankedCandidate{kwHit("a", 1.0)}, 2.0, 3.0)
	if diff := results[0].FusedScore - 4.0; math.Abs(diff) > 1e-12 {
		t.Errorf("fused with non-normalized weights: got %f, want 4.0", results[0].FusedScore)
	}
}

func TestFuseEmptyInputs(t *testing.T) {
	if results := Fuse(nil, nil, 0.7, 0.3); len(results) != 0 {
		t.Errorf("expected empty fusion, got %d", len(results))
	}
}

func TestFuseDoesNotMutateInputs(t *testing.T) {
	vec := []*models.RankedCandidate{vecHit("a", 0.5)}
	kw := []*models.RankedCandidate{kwHit("a", 1.0)}
	Fuse(vec, kw, 0.5, 0.5)
	if vec[0].TextScore != 0 || vec[0].FusedScore != 0 {
		t.Error("fusion must not mutate input candidates")
	}
}
