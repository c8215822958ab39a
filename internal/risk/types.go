// Package risk evaluates a message plan against its situation and decides
// whether the plan may proceed. The scorer emits a categorized, weighted
// assessment; the approver turns that assessment into a policy decision.
// Nothing in this package mutates shared state.
package risk

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// Category is a closed set of risk categories.
type Category string

const (
	CategoryEthical   Category = "ethical"
	CategoryEmotional Category = "emotional"
	CategoryFactual   Category = "factual"
	CategorySafety    Category = "safety"
	CategoryPrivacy   Category = "privacy"
	CategoryBoundary  Category = "boundary"
	CategoryTrust     Category = "trust"
	CategoryStructure Category = "structure"
)

// Level discretizes an aggregate risk score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Thresholds are the ordered score cutoffs for level bucketing. They must be
// strictly increasing; LevelFromScore then maps every score to exactly one
// level.
type Thresholds struct {
	Medium   float64
	High     float64
	Critical float64
}

// DefaultThresholds returns the standard 0.25 / 0.50 / 0.75 cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Medium: 0.25, High: 0.50, Critical: 0.75}
}

// LevelFromScore buckets a score in [0,1] into its unique level.
func (t Thresholds) LevelFromScore(score float64) Level {
	switch {
	case score < t.Medium:
		return LevelLow
	case score < t.High:
		return LevelMedium
	case score < t.Critical:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// Factor is one evaluated risk dimension with its contribution to the
// aggregate score.
type Factor struct {
	ID           string   `json:"id"`
	Category     Category `json:"category"`
	Score        float64  `json:"score"`  // severity in 0..1
	Weight       float64  `json:"weight"` // fixed per-category weight
	Description  string   `json:"description"`
	Contribution float64  `json:"contribution"` // score * weight
}

// IsHigh reports whether the factor's severity is at least 0.7.
func (f Factor) IsHigh() bool { return f.Score >= 0.7 }

// IsCritical reports whether the factor's severity is at least 0.85.
func (f Factor) IsCritical() bool { return f.Score >= 0.85 }

// Recommendation is the scorer's suggested handling for an assessment.
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReview  Recommendation = "review"
	RecommendModify  Recommendation = "modify"
	RecommendReject  Recommendation = "reject"
)

// Assessment is the complete risk picture for one message plan. Immutable
// once built; the level always equals the bucket implied by OverallScore.
type Assessment struct {
	ID             string         `json:"id"`
	PlanID         string         `json:"plan_id"`
	Factors        []Factor       `json:"factors"`
	OverallScore   float64        `json:"overall_score"` // weighted sum, 0..1
	OverallLevel   Level          `json:"overall_level"`
	TrustImpact    float64        `json:"trust_impact"` // -1..1, negative damages trust
	Recommendation Recommendation `json:"recommendation"`
}

// HasEthicalConcern reports whether the ethical factor scored 0.5 or above.
func (a *Assessment) HasEthicalConcern() bool {
	for _, f := range a.Factors {
		if f.Category == CategoryEthical && f.Score >= 0.5 {
			return true
		}
	}
	return false
}

// HasTrustDamage reports whether the plan is expected to hurt trust.
func (a *Assessment) HasTrustDamage() bool {
	return a.TrustImpact <= -0.3
}

// HighestFactor returns the factor with the greatest severity, or nil when
// the assessment has no factors.
func (a *Assessment) HighestFactor() *Factor {
	var highest *Factor
	for i := range a.Factors {
		if highest == nil || a.Factors[i].Score > highest.Score {
			highest = &a.Factors[i]
		}
	}
	return highest
}

// CriticalFactors returns the factors whose severity is critical.
func (a *Assessment) CriticalFactors() []Factor {
	var out []Factor
	for _, f := range a.Factors {
		if f.IsCritical() {
			out = append(out, f)
		}
	}
	return out
}

func shortID(prefix string) string {
	u := uuid.New()
	return prefix + hex.EncodeToString(u[:])[:12]
}

func newAssessmentID() string { return shortID("risk_") }
func newFactorID() string     { return shortID("rf_") }
