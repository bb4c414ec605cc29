// Package models defines core data structures for chunks, provenance,
// queries, and search results.
package models

import "time"

// Source kinds for provenance records.
const (
	SourceKindAuthored = "authored"
	SourceKindSystem   = "system"
	SourceKindExternal = "external"
)

// Chunk is a unit of indexed text with a fixed line range within its source
// document. Embeddings are only comparable within the same EmbeddingModel;
// every search is scoped to one model.
type Chunk struct {
	ID             string    `json:"id"`
	Path           string    `json:"path"`
	StartLine      int       `json:"start_line"`
	EndLine        int       `json:"end_line"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"embedding,omitempty"`
	Source         string    `json:"source"`
	EmbeddingModel string    `json:"embedding_model"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ProvenanceRecord tracks a chunk's origin and trust lineage. It is created
// alongside the chunk and updated only by explicit verification or
// contradiction events, never by content inspection.
type ProvenanceRecord struct {
	ChunkID            string            `json:"chunk_id"`
	SourceKind         string            `json:"source_kind"`
	BaseTrust          float64           `json:"base_trust"`
	TrustCap           float64           `json:"trust_cap"`
	VerifiedBy         string            `json:"verified_by,omitempty"`
	ContradictionCount int               `json:"contradiction_count"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	FirstSeenAt        time.Time         `json:"first_seen_at"`
	LastUpdatedAt      time.Time         `json:"last_updated_at"`
}

// TrustDefaults returns the base trust and trust cap for a source kind.
// The cap is a hard ceiling: no verification or content claim can raise a
// chunk's effective trust above it. Unknown kinds are treated as external.
func TrustDefaults(sourceKind string) (base, cap float64) {
	switch sourceKind {
	case SourceKindAuthored:
		return 0.9, 1.0
	case SourceKindSystem:
		return 1.0, 1.0
	default:
		return 0.2, 0.3
	}
}
