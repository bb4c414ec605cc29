// Package provenance records source and trust lineage per chunk and tracks
// verification and contradiction events.
package provenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/security"
	"github.com/hyperjump/kioku/internal/storage"
)

// Tracker manages provenance records. Base trust and the trust cap come
// from a fixed table keyed on source kind; nothing inside chunk content
// can influence either.
type Tracker struct {
	store  storage.ProvenanceStore
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a tracker over a provenance store.
func NewTracker(store storage.ProvenanceStore, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, logger: logger, now: time.Now}
}

// RecordProvenance creates or refreshes the provenance record for a chunk.
// Re-recording with the same source kind (re-indexing the chunk) preserves
// the existing trust lineage and only refreshes metadata; a changed source
// kind resets trust to that kind's defaults.
func (t *Tracker) RecordProvenance(ctx context.Context, chunkID, sourceKind string, metadata map[string]string) (*models.ProvenanceRecord, error) {
	if chunkID == "" {
		return nil, fmt.Errorf("chunk id cannot be empty")
	}
	now := t.now()

	existing, err := t.store.GetProvenance(ctx, chunkID)
	if err != nil && !errors.Is(err, storage.ErrProvenanceNotFound) {
		return nil, err
	}
	if existing != nil && existing.SourceKind == sourceKind {
		existing.Metadata = metadata
		existing.LastUpdatedAt = now
		if err := t.store.PutProvenance(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	base, cap := models.TrustDefaults(sourceKind)
	rec := &models.ProvenanceRecord{
		ChunkID:       chunkID,
		SourceKind:    sourceKind,
		BaseTrust:     base,
		TrustCap:      cap,
		Metadata:      metadata,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
	}
	if existing != nil {
		rec.FirstSeenAt = existing.FirstSeenAt
		t.logger.Info("source kind changed, trust reset",
			zap.String("chunk_id", chunkID),
			zap.String("from", existing.SourceKind),
			zap.String("to", sourceKind))
	}
	if err := t.store.PutProvenance(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// VerifyChunk raises the chunk's base trust halfway toward its cap and
// records the verifier. The raise goes through the trust-level clamp, so
// no sequence of verifications escapes the source-kind ceiling.
func (t *Tracker) VerifyChunk(ctx context.Context, chunkID, verifier string) error {
	rec, err := t.store.GetProvenance(ctx, chunkID)
	if err != nil {
		return err
	}
	raised := rec.BaseTrust + (rec.TrustCap-rec.BaseTrust)/2
	rec.BaseTrust = security.ValidateTrustLevel(rec.SourceKind, raised)
	rec.VerifiedBy = verifier
	rec.LastUpdatedAt = t.now()
	return t.store.PutProvenance(ctx, rec)
}

// RecordContradiction increments the chunk's contradiction count, called
// when newly retrieved content conflicts with previously verified material
// on the same topic. The count suppresses the chunk in trust scoring.
func (t *Tracker) RecordContradiction(ctx context.Context, chunkID string) error {
	rec, err := t.store.GetProvenance(ctx, chunkID)
	if err != nil {
		return err
	}
	rec.ContradictionCount++
	rec.LastUpdatedAt = t.now()
	return t.store.PutProvenance(ctx, rec)
}

// Get returns the provenance record for a chunk.
func (t *Tracker) Get(ctx context.Context, chunkID string) (*models.ProvenanceRecord, error) {
	return t.store.GetProvenance(ctx, chunkID)
}
