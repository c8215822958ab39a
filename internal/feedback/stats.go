// Package feedback turns per-construction outcome counters into bounded,
// explainable quality scores and keeps those counters up to date from the
// episode log. The scorer is pure; the store and aggregator own persistence.
package feedback

import "time"

// ConstructionStats holds the accumulated feedback counters for one
// construction. Created on first use, updated only by the Aggregator, and
// read-only to the live pipeline.
type ConstructionStats struct {
	ConstructionID string    `json:"construction_id"`
	TotalUses      int       `json:"total_uses"`
	ExplicitPos    int       `json:"explicit_pos"`
	ExplicitNeg    int       `json:"explicit_neg"`
	ImplicitPos    int       `json:"implicit_pos"`
	ImplicitNeg    int       `json:"implicit_neg"`
	CachedScore    float64   `json:"cached_score"` // last computed feedback mean
	LastUpdated    time.Time `json:"last_updated"`
}

// NewConstructionStats returns zeroed stats with a neutral cached score.
func NewConstructionStats(constructionID string) *ConstructionStats {
	return &ConstructionStats{
		ConstructionID: constructionID,
		CachedScore:    0.5,
	}
}

// TotalExplicit is the count of explicit feedback signals of either sign.
func (s *ConstructionStats) TotalExplicit() int {
	return s.ExplicitPos + s.ExplicitNeg
}

// TotalImplicit is the count of implicit feedback signals of either sign.
func (s *ConstructionStats) TotalImplicit() int {
	return s.ImplicitPos + s.ImplicitNeg
}

// TotalFeedback is the count of all feedback signals.
func (s *ConstructionStats) TotalFeedback() int {
	return s.TotalExplicit() + s.TotalImplicit()
}

// ExplicitRatio is the positive share of explicit feedback, 0.5 when none
// has been recorded.
func (s *ConstructionStats) ExplicitRatio() float64 {
	total := s.TotalExplicit()
	if total == 0 {
		return 0.5
	}
	return float64(s.ExplicitPos) / float64(total)
}

// ImplicitRatio is the positive share of implicit feedback, 0.5 when none
// has been recorded.
func (s *ConstructionStats) ImplicitRatio() float64 {
	total := s.TotalImplicit()
	if total == 0 {
		return 0.5
	}
	return float64(s.ImplicitPos) / float64(total)
}
