package feedback

import "math"

// ScorerParams are the smoothing and cold-start constants. The defaults are
// hand-tuned; deployments override them through the feedback config section.
type ScorerParams struct {
	ExplicitWinWeight  float64
	ExplicitLossWeight float64
	ImplicitWinWeight  float64
	ImplicitLossWeight float64
	PriorWins          float64 // Beta prior alpha
	PriorLosses        float64 // Beta prior beta
	FullInfluenceUses  int     // uses needed before feedback carries full weight
}

// DefaultScorerParams returns the tuned defaults: explicit feedback counts
// roughly 2-3x implicit, symmetric Beta(1,1) prior, full influence at 10 uses.
func DefaultScorerParams() ScorerParams {
	return ScorerParams{
		ExplicitWinWeight:  1.0,
		ExplicitLossWeight: 1.0,
		ImplicitWinWeight:  0.3,
		ImplicitLossWeight: 0.5,
		PriorWins:          1.0,
		PriorLosses:        1.0,
		FullInfluenceUses:  10,
	}
}

// Scorer computes feedback-weighted score adjustments. All methods are pure.
type Scorer struct {
	params ScorerParams
}

// NewScorer builds a scorer with the given params. Zero-valued params fall
// back to the defaults to keep a misconfigured scorer from dividing by zero.
func NewScorer(params ScorerParams) *Scorer {
	if params.FullInfluenceUses <= 0 {
		params = DefaultScorerParams()
	}
	return &Scorer{params: params}
}

// ScoreBreakdown records every intermediate of one scoring pass so a ranking
// can be explained after the fact.
type ScoreBreakdown struct {
	ConstructionID string  `json:"construction_id"`
	BaseScore      float64 `json:"base_score"`
	Wins           float64 `json:"wins"`
	Losses         float64 `json:"losses"`
	FeedbackMean   float64 `json:"feedback_mean"`
	Influence      float64 `json:"influence"`
	Adjustment     float64 `json:"adjustment"`
	FinalScore     float64 `json:"final_score"`
}

// Wins returns the weighted positive evidence for the stats.
func (sc *Scorer) Wins(stats *ConstructionStats) float64 {
	return float64(stats.ExplicitPos)*sc.params.ExplicitWinWeight +
		float64(stats.ImplicitPos)*sc.params.ImplicitWinWeight
}

// Losses returns the weighted negative evidence for the stats.
func (sc *Scorer) Losses(stats *ConstructionStats) float64 {
	return float64(stats.ExplicitNeg)*sc.params.ExplicitLossWeight +
		float64(stats.ImplicitNeg)*sc.params.ImplicitLossWeight
}

// FeedbackMean is the Bayesian-smoothed success estimate in [0,1]. With a
// Beta(alpha,beta) prior and no evidence it sits at alpha/(alpha+beta) = 0.5
// for the symmetric default.
func (sc *Scorer) FeedbackMean(stats *ConstructionStats) float64 {
	wins := sc.Wins(stats)
	losses := sc.Losses(stats)
	return (wins + sc.params.PriorWins) /
		(wins + losses + sc.params.PriorWins + sc.params.PriorLosses)
}

// Influence is the cold-start damper in [0,1]: 0 at zero uses, growing
// linearly to 1 at FullInfluenceUses. A construction with no history gets a
// strictly neutral adjustment.
func (sc *Scorer) Influence(totalUses int) float64 {
	if totalUses <= 0 {
		return 0
	}
	return math.Min(1, float64(totalUses)/float64(sc.params.FullInfluenceUses))
}

// Adjustment maps feedback history to a multiplier in [0.5, 1.5]:
// lerp(1.0, 0.5+mean, influence). Neutral history or zero influence yields
// exactly 1.0.
func (sc *Scorer) Adjustment(stats *ConstructionStats) float64 {
	mean := sc.FeedbackMean(stats)
	influence := sc.Influence(stats.TotalUses)
	return 1.0 + influence*((0.5+mean)-1.0)
}

// FinalScore applies the feedback adjustment to a structural base score and
// returns the full breakdown for explainability.
func (sc *Scorer) FinalScore(baseScore float64, stats *ConstructionStats) ScoreBreakdown {
	mean := sc.FeedbackMean(stats)
	influence := sc.Influence(stats.TotalUses)
	adjustment := 1.0 + influence*((0.5+mean)-1.0)
	return ScoreBreakdown{
		ConstructionID: stats.ConstructionID,
		BaseScore:      baseScore,
		Wins:           sc.Wins(stats),
		Losses:         sc.Losses(stats),
		FeedbackMean:   mean,
		Influence:      influence,
		Adjustment:     adjustment,
		FinalScore:     baseScore * adjustment,
	}
}

// IsSignificant reports whether the feedback history has moved materially
// away from neutral with enough evidence behind it to be trusted.
func (sc *Scorer) IsSignificant(stats *ConstructionStats) bool {
	mean := sc.FeedbackMean(stats)
	influence := sc.Influence(stats.TotalUses)
	return math.Abs(mean-0.5) >= 0.1 && influence >= 0.3
}

// Sentiment buckets the smoothed mean into "positive" (>= 0.7), "negative"
// (<= 0.3), or "neutral".
func (sc *Scorer) Sentiment(stats *ConstructionStats) string {
	mean := sc.FeedbackMean(stats)
	switch {
	case mean >= 0.7:
		return "positive"
	case mean <= 0.3:
		return "negative"
	default:
		return "neutral"
	}
}
