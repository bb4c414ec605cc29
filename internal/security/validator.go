// Package security scans retrieved content for injected trust-assertion and
// instruction-override phrasing, and enforces source-kind trust ceilings.
//
// Findings are advisory: nothing here deletes or withholds content, and
// nothing here can ever raise a trust score. Trust increases come only from
// the provenance/verification path, so a chunk cannot elevate itself by
// asserting credibility in its own text.
package security

import (
	"regexp"

	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Severity levels, ordered.
const (
	SeverityNone   = "none"
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

var severityRank = map[string]int{
	SeverityNone:   0,
	SeverityLow:    1,
	SeverityMedium: 2,
	SeverityHigh:   3,
}

// Finding is a single pattern match in scanned content.
type Finding struct {
	Name     string `json:"name"`
	Match    string `json:"match"`
	Severity string `json:"severity"`
}

// Report aggregates the findings for one piece of content. Severity is the
// highest severity among findings, or "none".
type Report struct {
	Findings []Finding `json:"findings,omitempty"`
	Severity string    `json:"severity"`
}

type pattern struct {
	name     string
	severity string
	re       *regexp.Regexp
}

var defaultPatterns = []pattern{
	{"instruction-override", SeverityHigh,
		regexp.MustCompile(`(?i)\b(ignore|disregard|forget)\s+(all\s+|any\s+)?(previous|prior|above|earlier)\s+(instructions?|directions?|rules?|context)`)},
	{"instruction-injection", SeverityHigh,
		regexp.MustCompile(`(?i)\bnew\s+instructions?\s*:`)},
	{"trust-directive", SeverityHigh,
		regexp.MustCompile(`(?i)\b(mark|treat|consider)\s+(this|it|me)\s+as\s+(trusted|verified|safe|authoritative)\b`)},
	{"trust-directive", SeverityHigh,
		regexp.MustCompile(`(?i)\bset\s+(the\s+)?trust\s*(score|level|cap)?\s*(to|=)`)},
	{"role-escalation", SeverityMedium,
		regexp.MustCompile(`(?i)\byou\s+are\s+now\b`)},
	{"role-escalation", SeverityMedium,
		regexp.MustCompile(`(?i)\bact\s+as\s+(the\s+)?(system|administrator|root|developer)\b`)},
	{"role-escalation", SeverityMedium,
		regexp.MustCompile(`(?i)\bsystem\s+prompt\b`)},
	{"credential-claim", SeverityMedium,
		regexp.MustCompile(`(?i)\bi\s+am\s+(the\s+)?(system|an?\s+administrator|your\s+(developer|creator|operator))\b`)},
	{"self-trust-claim", SeverityMedium,
		regexp.MustCompile(`(?i)\b(this|the\s+following)\s+(content|document|source|information)\s+(is|has\s+been)\s+(verified|trusted|authoritative|official)\b`)},
	{"self-trust-claim", SeverityLow,
		regexp.MustCompile(`(?i)\btrust\s+(me|this)\b`)},
}

// Validator scans text for adversarial phrasing.
type Validator struct {
	patterns []pattern
}

// NewValidator returns a validator with the default pattern set.
func NewValidator() *Validator {
	return &Validator{patterns: defaultPatterns}
}

// ValidateContent scans text and returns advisory findings. It never
// errors and never drops content; acting on a flagged result is the
// caller's policy decision.
func (v *Validator) ValidateContent(text string) Report {
	report := Report{Severity: SeverityNone}
	for _, p := range v.patterns {
		match := p.re.FindString(text)
		if match == "" {
			continue
		}
		report.Findings = append(report.Findings, Finding{
			Name:     p.name,
			Match:    match,
			Severity: p.severity,
		})
		if severityRank[p.severity] > severityRank[report.Severity] {
			report.Severity = p.severity
		}
	}
	return report
}

// ValidateTrustLevel clamps a proposed trust value to the hard ceiling for
// the source kind. The ceiling holds regardless of verification state or
// anything the content claims about itself.
func ValidateTrustLevel(sourceKind string, proposed float64) float64 {
	_, cap := models.TrustDefaults(sourceKind)
	return utils.Clamp(proposed, 0, cap)
}
