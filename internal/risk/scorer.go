package risk

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"palaver/internal/dialogue"
	"palaver/internal/logging"
)

// Weights are the fixed per-category weights of the scorer. They should sum
// to 1.0 so the aggregate stays in [0,1].
type Weights struct {
	Ethical    float64
	Trust      float64
	Safety     float64
	Structural float64
}

// DefaultWeights returns the tuned category weights.
func DefaultWeights() Weights {
	return Weights{Ethical: 0.35, Trust: 0.25, Safety: 0.25, Structural: 0.15}
}

// Scorer evaluates message plans for risk. Stateless apart from its
// configuration; safe for concurrent use.
type Scorer struct {
	weights    Weights
	thresholds Thresholds
	logger     *zap.Logger
}

// NewScorer builds a risk scorer.
func NewScorer(weights Weights, thresholds Thresholds, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{weights: weights, thresholds: thresholds, logger: logger.Named("risk")}
}

var emergencyKeywords = []string{
	"suicide", "self-harm", "kill myself", "overdose", "emergency", "urgent danger",
}

// Score evaluates the plan against its situation and returns a complete
// assessment. Pure: no shared state is touched.
func (s *Scorer) Score(plan *dialogue.MessagePlan, situation *dialogue.SituationModel) *Assessment {
	defer logging.StartTimer(logging.CategoryRisk, "risk scoring").Stop()

	ethical := s.ethicalFactor(plan, situation)
	trustImpact := s.trustImpact(plan, situation)
	trust := Factor{
		ID:          newFactorID(),
		Category:    CategoryTrust,
		Score:       (1.0 - trustImpact) / 2.0, // -1..1 impact to 0..1 risk
		Weight:      s.weights.Trust,
		Description: fmt.Sprintf("expected trust impact %.2f", trustImpact),
	}
	trust.Contribution = trust.Score * trust.Weight
	safety := s.safetyFactor(plan, situation)
	structural := s.structuralFactor(plan)

	factors := []Factor{ethical, trust, safety, structural}
	overall := 0.0
	for _, f := range factors {
		overall += f.Contribution
	}
	overall = clamp01(overall)
	level := s.thresholds.LevelFromScore(overall)

	assessment := &Assessment{
		ID:             newAssessmentID(),
		PlanID:         plan.ID,
		Factors:        factors,
		OverallScore:   overall,
		OverallLevel:   level,
		TrustImpact:    trustImpact,
		Recommendation: s.recommend(level, safety),
	}

	s.logger.Debug("plan scored",
		zap.String("plan_id", plan.ID),
		zap.Float64("score", overall),
		zap.String("level", string(level)))
	return assessment
}

// ethicalFactor accumulates ethical exposure from the situation's detected
// ethical risks, the plan's ethical constraints, and sensitive acts.
func (s *Scorer) ethicalFactor(plan *dialogue.MessagePlan, situation *dialogue.SituationModel) Factor {
	score := 0.0
	var notes []string

	for _, r := range situation.Risks {
		if r.Category == "ethical" {
			score += r.Level * 0.5
			notes = append(notes, r.Description)
		}
	}
	for _, c := range plan.Constraints {
		if c.Type == dialogue.ConstraintEthical {
			score += 0.2
			notes = append(notes, "ethical constraint on plan")
			break
		}
	}
	for _, act := range plan.Acts {
		if act == dialogue.ActRefuse || act == dialogue.ActLimit || act == dialogue.ActWarn {
			score += 0.1
			notes = append(notes, "plan carries a sensitive act")
			break
		}
	}

	f := Factor{
		ID:          newFactorID(),
		Category:    CategoryEthical,
		Score:       clamp01(score),
		Weight:      s.weights.Ethical,
		Description: strings.Join(notes, "; "),
	}
	f.Contribution = f.Score * f.Weight
	return f
}

// trustImpact estimates how the response will land, in [-1,1]. Negative
// values predict damaged trust.
func (s *Scorer) trustImpact(plan *dialogue.MessagePlan, situation *dialogue.SituationModel) float64 {
	impact := 0.0
	if situation.Emotion != nil && situation.Emotion.Valence < -0.5 {
		impact -= 0.3
	}
	if situation.UnderstandingScore < 0.4 {
		impact -= 0.2
	}
	if plan.Confidence < 0.5 {
		impact -= 0.2
	}
	if plan.Tone == dialogue.ToneSerious {
		impact -= 0.1
	}
	return clampRange(impact, -1, 1)
}

// safetyFactor accumulates physical-safety exposure. An emergency keyword
// anywhere in the situation's context or the plan's content is a strong
// signal on its own.
func (s *Scorer) safetyFactor(plan *dialogue.MessagePlan, situation *dialogue.SituationModel) Factor {
	score := 0.0
	var notes []string

	for _, r := range situation.Risks {
		if r.Category == "safety" || r.Category == "physical" {
			score += r.Level * 0.8
			notes = append(notes, r.Description)
		}
	}

	haystack := strings.ToLower(situation.ContextSummary)
	for _, cp := range plan.ContentPoints {
		haystack += " " + strings.ToLower(cp.Value)
	}
	for _, kw := range emergencyKeywords {
		if strings.Contains(haystack, kw) {
			score += 0.5
			notes = append(notes, "emergency keyword present")
			break
		}
	}

	f := Factor{
		ID:          newFactorID(),
		Category:    CategorySafety,
		Score:       clamp01(score),
		Weight:      s.weights.Safety,
		Description: strings.Join(notes, "; "),
	}
	f.Contribution = f.Score * f.Weight
	return f
}

// conflictingActPairs lists act combinations that undermine each other when
// performed in the same message.
var conflictingActPairs = [][2]dialogue.DialogueAct{
	{dialogue.ActRefuse, dialogue.ActSuggest},
	{dialogue.ActComfort, dialogue.ActWarn},
	{dialogue.ActEncourage, dialogue.ActRefuse},
}

// structuralFactor penalizes overloaded or self-contradicting plans.
func (s *Scorer) structuralFactor(plan *dialogue.MessagePlan) Factor {
	score := 0.0
	var notes []string

	if len(plan.Acts) > 3 {
		score += 0.2
		notes = append(notes, fmt.Sprintf("%d acts in one message", len(plan.Acts)))
	}
	for _, pair := range conflictingActPairs {
		if plan.HasAct(pair[0]) && plan.HasAct(pair[1]) {
			score += 0.3
			notes = append(notes, fmt.Sprintf("conflicting acts %s/%s", pair[0], pair[1]))
		}
	}
	if len(plan.ContentPoints) > 4 {
		score += 0.1
		notes = append(notes, "too many content points")
	}

	f := Factor{
		ID:          newFactorID(),
		Category:    CategoryStructure,
		Score:       clamp01(score),
		Weight:      s.weights.Structural,
		Description: strings.Join(notes, "; "),
	}
	f.Contribution = f.Score * f.Weight
	return f
}

// recommend maps the level to a handling recommendation. A severe safety
// factor escalates straight to reject regardless of the aggregate.
func (s *Scorer) recommend(level Level, safety Factor) Recommendation {
	if safety.Category == CategorySafety && safety.Score > 0.7 {
		return RecommendReject
	}
	switch level {
	case LevelLow:
		return RecommendApprove
	case LevelMedium:
		return RecommendReview
	case LevelHigh:
		return RecommendModify
	default:
		return RecommendReject
	}
}

func clamp01(v float64) float64 { return clampRange(v, 0, 1) }

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
