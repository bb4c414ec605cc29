package models

// RankedCandidate is an intermediate search hit from one retrieval path.
// VectorScore and TextScore are zero when the chunk was absent from that
// path; FusedScore is filled in by the merger.
type RankedCandidate struct {
	ID          string
	Path        string
	StartLine   int
	EndLine     int
	Source      string
	VectorScore float64
	TextScore   float64
	FusedScore  float64
	Snippet     string
	// Text is the full chunk text, carried for content scanning; it is
	// not part of the serialized result.
	Text string
}

// SearchResult is a final ranked hit. TrustScore and CombinedScore are only
// set when the caller enabled trust-weighted reranking; Warnings carry
// advisory security findings and never imply the result was withheld.
type SearchResult struct {
	ChunkID       string   `json:"chunk_id"`
	Path          string   `json:"path"`
	StartLine     int      `json:"start_line"`
	EndLine       int      `json:"end_line"`
	FusedScore    float64  `json:"fused_score"`
	TrustScore    float64  `json:"trust_score"`
	CombinedScore float64  `json:"combined_score"`
	Snippet       string   `json:"snippet"`
	Source        string   `json:"source"`
	Warnings      []string `json:"warnings,omitempty"`
}
