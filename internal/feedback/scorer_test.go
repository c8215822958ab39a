package feedback

import (
	"math"
	"testing"
)

func statsWith(uses, ePos, eNeg, iPos, iNeg int) *ConstructionStats {
	return &ConstructionStats{
		ConstructionID: "cons_test",
		TotalUses:      uses,
		ExplicitPos:    ePos,
		ExplicitNeg:    eNeg,
		ImplicitPos:    iPos,
		ImplicitNeg:    iNeg,
	}
}

func TestWinsAndLossesWeighting(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())
	stats := statsWith(10, 2, 1, 3, 2)

	if got, want := sc.Wins(stats), 2*1.0+3*0.3; math.Abs(got-want) > 1e-9 {
		t.Errorf("Wins = %v, want %v", got, want)
	}
	if got, want := sc.Losses(stats), 1*1.0+2*0.5; math.Abs(got-want) > 1e-9 {
		t.Errorf("Losses = %v, want %v", got, want)
	}
}

func TestFeedbackMeanNeutralWithoutFeedback(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())
	if got := sc.FeedbackMean(statsWith(0, 0, 0, 0, 0)); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("FeedbackMean with no feedback = %v, want 0.5", got)
	}
}

func TestFeedbackMeanMovesWithEvidence(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())

	positive := sc.FeedbackMean(statsWith(5, 5, 0, 0, 0))
	negative := sc.FeedbackMean(statsWith(5, 0, 5, 0, 0))

	if positive <= 0.5 {
		t.Errorf("all-positive mean = %v, want > 0.5", positive)
	}
	if negative >= 0.5 {
		t.Errorf("all-negative mean = %v, want < 0.5", negative)
	}
	// Beta(1,1) smoothing keeps the mean strictly inside (0,1).
	if positive >= 1 || negative <= 0 {
		t.Errorf("means must stay inside (0,1): %v, %v", positive, negative)
	}
}

func TestInfluenceColdStart(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())

	if got := sc.Influence(0); got != 0 {
		t.Errorf("Influence(0) = %v, want 0", got)
	}
	if got := sc.Influence(5); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Influence(5) = %v, want 0.5", got)
	}
	if got := sc.Influence(10); got != 1 {
		t.Errorf("Influence(10) = %v, want 1", got)
	}
	if got := sc.Influence(100); got != 1 {
		t.Errorf("Influence(100) = %v, want capped at 1", got)
	}
}

func TestAdjustmentNeutralForUnusedConstruction(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())
	if got := sc.Adjustment(statsWith(0, 0, 0, 0, 0)); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Adjustment with zero uses = %v, want exactly 1.0", got)
	}
}

func TestAdjustmentBounds(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())
	cases := []*ConstructionStats{
		statsWith(100, 100, 0, 50, 0),
		statsWith(100, 0, 100, 0, 50),
		statsWith(1, 1, 0, 0, 0),
		statsWith(50, 10, 10, 5, 5),
	}
	for _, stats := range cases {
		adj := sc.Adjustment(stats)
		if adj < 0.5 || adj > 1.5 {
			t.Errorf("Adjustment(%+v) = %v, outside [0.5, 1.5]", stats, adj)
		}
	}
}

func TestAdjustmentGrowsWithUses(t *testing.T) {
	// The same win rate should pull harder as evidence accumulates.
	sc := NewScorer(DefaultScorerParams())
	prev := sc.Adjustment(statsWith(1, 1, 0, 0, 0))
	for _, uses := range []int{2, 4, 6, 8, 10} {
		adj := sc.Adjustment(statsWith(uses, uses, 0, 0, 0))
		if adj < prev {
			t.Errorf("adjustment fell from %v to %v at %d uses", prev, adj, uses)
		}
		prev = adj
	}
}

func TestFinalScoreBreakdown(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())
	stats := statsWith(10, 8, 1, 2, 0)

	bd := sc.FinalScore(0.6, stats)
	if bd.BaseScore != 0.6 {
		t.Errorf("BaseScore = %v, want 0.6", bd.BaseScore)
	}
	want := 0.6 * sc.Adjustment(stats)
	if math.Abs(bd.FinalScore-want) > 1e-9 {
		t.Errorf("FinalScore = %v, want %v", bd.FinalScore, want)
	}
	if bd.FinalScore <= bd.BaseScore {
		t.Errorf("well-rated construction should score above base: %v <= %v", bd.FinalScore, bd.BaseScore)
	}
}

func TestIsSignificant(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())

	if sc.IsSignificant(statsWith(1, 1, 0, 0, 0)) {
		t.Error("one use should not be significant")
	}
	if !sc.IsSignificant(statsWith(10, 9, 0, 0, 0)) {
		t.Error("ten strongly positive uses should be significant")
	}
	if sc.IsSignificant(statsWith(10, 5, 5, 0, 0)) {
		t.Error("a balanced record is not significant either way")
	}
}

func TestSentiment(t *testing.T) {
	sc := NewScorer(DefaultScorerParams())
	cases := []struct {
		stats *ConstructionStats
		want  string
	}{
		{statsWith(10, 9, 0, 0, 0), "positive"},
		{statsWith(10, 0, 9, 0, 0), "negative"},
		{statsWith(0, 0, 0, 0, 0), "neutral"},
	}
	for _, tc := range cases {
		if got := sc.Sentiment(tc.stats); got != tc.want {
			t.Errorf("Sentiment(%+v) = %q, want %q", tc.stats, got, tc.want)
		}
	}
}
