package models

import "fmt"

// TrustOptions enables the provenance-aware scoring pass on a search.
type TrustOptions struct {
	// TrustWeight blends effective trust into the final score:
	// combined = (1-w)*fused + w*trust. Zero is a pure pass-through.
	TrustWeight float64 `json:"trust_weight"`
	// ScanContent runs the security validator over result snippets and
	// attaches advisory warnings. Findings never drop results.
	ScanContent bool `json:"scan_content"`
}

// SearchQuery is a hybrid search request. QueryVector is a precomputed
// embedding supplied by the caller; Model scopes the search to chunks
// embedded with the same model.
type SearchQuery struct {
	QueryVector  []float32     `json:"query_vector,omitempty"`
	QueryText    string        `json:"query_text"`
	Limit        int           `json:"limit,omitempty"`
	Model        string        `json:"model"`
	Sources      []string      `json:"sources,omitempty"`
	VectorWeight float64       `json:"vector_weight,omitempty"`
	TextWeight   float64       `json:"text_weight,omitempty"`
	Trust        *TrustOptions `json:"trust,omitempty"`
}

// Validate checks required fields and normalizes limit and weights.
// Weights are caller-supplied and not required to sum to 1; when both are
// zero the default 0.7 vector / 0.3 text split is applied.
func (q *SearchQuery) Validate() error {
	if q.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if len(q.QueryVector) == 0 && q.QueryText == "" {
		return fmt.Errorf("query must have a vector, text, or both")
	}
	if q.Limit <= 0 {
		q.Limit = 10
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
	if q.VectorWeight == 0 && q.TextWeight == 0 {
		q.VectorWeight = 0.7
		q.TextWeight = 0.3
	}
	if q.VectorWeight < 0 || q.TextWeight < 0 {
		return fmt.Errorf("weights cannot be negative")
	}
	return nil
}
