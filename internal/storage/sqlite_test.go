package storage

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"), "", zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testChunk(id, source string) *models.Chunk {
	return &models.Chunk{
		ID:             id,
		Path:           "docs/readme.md",
		StartLine:      1,
		EndLine:        12,
		Text:           "hybrid retrieval over local documents",
		Embedding:      []float32{0.1, 0.2, 0.3},
		Source:         source,
		EmbeddingModel: "test-model",
	}
}

func TestUpsertAndGetChunk(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	chunk := testChunk("c1", "notes")
	if err := store.UpsertChunk(ctx, chunk); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetChunk(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != chunk.Path || got.Text != chunk.Text || got.Source != "notes" {
		t.Errorf("chunk fields lost in round trip: %+v", got)
	}
	if len(got.Embedding) != 3 || got.Embedding[1] != float32(0.2) {
		t.Errorf("embedding lost in round trip: %v", got.Embedding)
	}
}

func TestUpsertGeneratesID(t *testing.T) {
	store := openTestStore(t)
	chunk := testChunk("", "notes")
	if err := store.UpsertChunk(context.Background(), chunk); err != nil {
		t.Fatal(err)
	}
	if chunk.ID == "" {
		t.Error("expected generated chunk id")
	}
}

func TestUpsertReplacesByChunkID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.UpsertChunk(ctx, testChunk("c1", "notes")); err != nil {
		t.Fatal(err)
	}
	updated := testChunk("c1", "wiki")
	updated.Text = "replacement text"
	if err := store.UpsertChunk(ctx, updated); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetChunk(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Text != "replacement text" || got.Source != "wiki" {
		t.Errorf("upsert did not replace: %+v", got)
	}

	count, err := store.CountChunks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("replacement must not duplicate rows, got %d", count)
	}
}

func TestGetChunkNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetChunk(context.Background(), "absent"); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
}

func TestGetChunksForModelFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	a := testChunk("a", "notes")
	b := testChunk("b", "wiki")
	c := testChunk("c", "notes")
	c.EmbeddingModel = "other-model"
	for _, chunk := range []*models.Chunk{a, b, c} {
		if err := store.UpsertChunk(ctx, chunk); err != nil {
			t.Fatal(err)
		}
	}

	chunks, err := store.GetChunksForModel(ctx, "test-model", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 2 {
		t.Errorf("model filter: expected 2 chunks, got %d", len(chunks))
	}

	chunks, err = store.GetChunksForModel(ctx, "test-model", []string{"notes"})
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || chunks[0].ID != "a" {
		t.Errorf("source filter must AND with the model filter, got %d chunks", len(chunks))
	}
}

func TestDeleteChunksBySource(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, chunk := range []*models.Chunk{testChunk("a", "notes"), testChunk("b", "wiki")} {
		if err := store.UpsertChunk(ctx, chunk); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now().UTC()
	rec := &models.ProvenanceRecord{
		ChunkID: "a", SourceKind: models.SourceKindAuthored,
		BaseTrust: 0.9, TrustCap: 1.0,
		FirstSeenAt: now, LastUpdatedAt: now,
	}
	if err := store.PutProvenance(ctx, rec); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteChunksBySource(ctx, "notes"); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetChunk(ctx, "a"); !errors.Is(err, ErrChunkNotFound) {
		t.Error("chunk from deleted source should be gone")
	}
	if _, err := store.GetProvenance(ctx, "a"); !errors.Is(err, ErrProvenanceNotFound) {
		t.Error("provenance must be removed with its chunk")
	}
	if _, err := store.GetChunk(ctx, "b"); err != nil {
		t.Errorf("other sources must be untouched: %v", err)
	}
}

func TestDeleteChunksByUnknownSource(t *testing.T) {
	store := openTestStore(t)
	if err := store.DeleteChunksBySource(context.Background(), "absent"); err != nil {
		t.Errorf("deleting an unknown source should be a no-op, got %v", err)
	}
}

func TestProvenanceRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	rec := &models.ProvenanceRecord{
		ChunkID:            "c1",
		SourceKind:         models.SourceKindExternal,
		BaseTrust:          0.2,
		TrustCap:           0.3,
		VerifiedBy:         "reviewer",
		ContradictionCount: 2,
		Metadata:           map[string]string{"url": "https://example.com/post"},
		FirstSeenAt:        now,
		LastUpdatedAt:      now,
	}
	if err := store.PutProvenance(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetProvenance(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.SourceKind != models.SourceKindExternal || got.BaseTrust != 0.2 || got.TrustCap != 0.3 {
		t.Errorf("trust fields lost: %+v", got)
	}
	if got.ContradictionCount != 2 || got.VerifiedBy != "reviewer" {
		t.Errorf("lineage fields lost: %+v", got)
	}
	if got.Metadata["url"] != "https://example.com/post" {
		t.Errorf("metadata lost: %v", got.Metadata)
	}
	if !got.FirstSeenAt.Equal(now) {
		t.Errorf("first_seen_at changed: %v vs %v", got.FirstSeenAt, now)
	}
}

func TestProvenanceNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetProvenance(context.Background(), "absent"); !errors.Is(err, ErrProvenanceNotFound) {
		t.Errorf("expected ErrProvenanceNotFound, got %v", err)
	}
}

func TestVecTableUsesCosineMetric(t *testing.T) {
	ddl := vecTableDDL(384)
	if !strings.Contains(ddl, "distance_metric=cosine") {
		t.Error("vec table must use the cosine metric so both backends rank identically")
	}
	if !strings.Contains(ddl, "vec_chunks_384") || !strings.Contains(ddl, "FLOAT[384]") {
		t.Errorf("vec table DDL malformed: %s", ddl)
	}
}

func TestVecUnavailableWithoutExtension(t *testing.T) {
	store := openTestStore(t)
	if store.VecAvailable() {
		t.Error("vec backend must not report available without the extension")
	}
	hits, err := store.SearchNative(context.Background(), []float32{1, 0, 0}, 10, "test-model", nil)
	if err != nil || hits != nil {
		t.Errorf("native search without vec tables should return nothing, got %v, %v", hits, err)
	}
}
