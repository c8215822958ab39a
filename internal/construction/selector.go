package construction

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"palaver/internal/dialogue"
	"palaver/internal/feedback"
	"palaver/internal/logging"
)

// ErrNoViableConstruction is returned when no catalog entry clears the
// selection threshold for a plan.
var ErrNoViableConstruction = errors.New("no viable construction for plan")

// StatsReader supplies per-construction feedback statistics. The live
// pipeline only ever reads stats; the aggregator owns writes.
type StatsReader interface {
	GetStats(constructionID string) (*feedback.ConstructionStats, error)
}

// SelectorWeights are the structural-fit weights of the base score.
type SelectorWeights struct {
	ActMatch      float64
	ToneMatch     float64
	ConstraintFit float64
	Confidence    float64
}

// DefaultSelectorWeights returns the tuned base-score weights.
func DefaultSelectorWeights() SelectorWeights {
	return SelectorWeights{ActMatch: 0.40, ToneMatch: 0.25, ConstraintFit: 0.15, Confidence: 0.20}
}

// SelectorOptions bundle the selector's tunables.
type SelectorOptions struct {
	Weights           SelectorWeights
	MinScoreThreshold float64
	MaxPerAct         int
}

// DefaultSelectorOptions returns the tuned defaults.
func DefaultSelectorOptions() SelectorOptions {
	return SelectorOptions{
		Weights:           DefaultSelectorWeights(),
		MinScoreThreshold: 0.3,
		MaxPerAct:         3,
	}
}

// Candidate is one scored construction with the full explanation of how its
// final score came to be.
type Candidate struct {
	Construction *Construction
	BaseScore    float64
	Breakdown    feedback.ScoreBreakdown
	FinalScore   float64
	Reasons      []string
}

// Selector ranks catalog constructions for an approved message plan,
// combining structural fit with accumulated feedback.
type Selector struct {
	catalog *Catalog
	stats   StatsReader
	scorer  *feedback.Scorer
	opts    SelectorOptions
	logger  *zap.Logger
}

// NewSelector builds a selector. stats may be nil, in which case every
// construction scores with a neutral feedback history.
func NewSelector(catalog *Catalog, stats StatsReader, scorer *feedback.Scorer, opts SelectorOptions, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		catalog: catalog,
		stats:   stats,
		scorer:  scorer,
		opts:    opts,
		logger:  logger.Named("selector"),
	}
}

// Rank scores every construction matching at least one planned act and
// returns the candidates above threshold, best first. Ties break by lowest
// total uses (prefer exploring the less-tried construction), then by
// lexicographic id so ranking is fully deterministic.
func (s *Selector) Rank(plan *dialogue.MessagePlan, exclude map[string]bool) []Candidate {
	defer logging.StartTimer(logging.CategorySelector, "construction ranking").Stop()

	seen := make(map[string]bool)
	var candidates []Candidate
	for _, act := range plan.Acts {
		perAct := 0
		for _, cons := range s.catalog.ByAct(act) {
			if seen[cons.ID] || exclude[cons.ID] {
				continue
			}
			seen[cons.ID] = true
			cand := s.score(cons, plan)
			if cand.FinalScore < s.opts.MinScoreThreshold {
				continue
			}
			candidates = append(candidates, cand)
			perAct++
			if s.opts.MaxPerAct > 0 && perAct >= s.opts.MaxPerAct {
				break
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if a.Construction.TotalUses() != b.Construction.TotalUses() {
			return a.Construction.TotalUses() < b.Construction.TotalUses()
		}
		return a.Construction.ID < b.Construction.ID
	})
	return candidates
}

// Select returns the best candidate for the plan. In risk-sensitive contexts
// only reliable constructions (or human-authored ones with a solid base
// score) are eligible, to keep untested templates away from delicate turns.
func (s *Selector) Select(plan *dialogue.MessagePlan, exclude map[string]bool) (Candidate, error) {
	candidates := s.Rank(plan, exclude)
	riskSensitive := plan.RiskLevel >= 0.5
	for _, cand := range candidates {
		if riskSensitive && !s.eligibleUnderRisk(cand) {
			continue
		}
		s.logger.Debug("construction selected",
			zap.String("plan_id", plan.ID),
			zap.String("construction_id", cand.Construction.ID),
			zap.Float64("base", cand.BaseScore),
			zap.Float64("final", cand.FinalScore))
		return cand, nil
	}
	return Candidate{}, fmt.Errorf("plan %s: %w", plan.ID, ErrNoViableConstruction)
}

// SelectSafest deterministically picks the most trusted human construction
// for the plan's primary act, with no feedback exploration. Used on the
// needs-review branch where the turn must degrade rather than fail.
func (s *Selector) SelectSafest(plan *dialogue.MessagePlan) (*Construction, error) {
	var best *Construction
	for _, act := range plan.Acts {
		for _, cons := range s.catalog.ByAct(act) {
			if cons.Source != SourceHuman {
				continue
			}
			if best == nil ||
				cons.Confidence > best.Confidence ||
				(cons.Confidence == best.Confidence && cons.ID < best.ID) {
				best = cons
			}
		}
		if best != nil {
			break
		}
	}
	if best == nil {
		best = s.catalog.Fallback()
	}
	if best == nil {
		return nil, fmt.Errorf("plan %s: %w", plan.ID, ErrNoViableConstruction)
	}
	return best, nil
}

func (s *Selector) eligibleUnderRisk(cand Candidate) bool {
	cons := cand.Construction
	if cons.IsReliable() {
		return true
	}
	return cons.Source == SourceHuman && cand.BaseScore >= 0.5
}

// score computes a candidate's structural base score and applies the
// feedback adjustment.
func (s *Selector) score(cons *Construction, plan *dialogue.MessagePlan) Candidate {
	var reasons []string

	actScore := s.actMatchScore(cons, plan)
	toneScore := s.toneMatchScore(cons, plan)
	constraintScore := s.constraintFitScore(cons, plan)

	w := s.opts.Weights
	base := actScore*w.ActMatch +
		toneScore*w.ToneMatch +
		constraintScore*w.ConstraintFit +
		cons.Confidence*w.Confidence

	stats := s.statsFor(cons.ID)
	breakdown := s.scorer.FinalScore(base, stats)

	if breakdown.Adjustment > 1.05 {
		reasons = append(reasons, fmt.Sprintf("feedback boost x%.2f", breakdown.Adjustment))
	} else if breakdown.Adjustment < 0.95 {
		reasons = append(reasons, fmt.Sprintf("feedback penalty x%.2f", breakdown.Adjustment))
	}
	if actScore == 1.0 {
		reasons = append(reasons, "exact act match")
	}

	return Candidate{
		Construction: cons,
		BaseScore:    base,
		Breakdown:    breakdown,
		FinalScore:   breakdown.FinalScore,
		Reasons:      reasons,
	}
}

func (s *Selector) statsFor(id string) *feedback.ConstructionStats {
	if s.stats == nil {
		return feedback.NewConstructionStats(id)
	}
	stats, err := s.stats.GetStats(id)
	if err != nil || stats == nil {
		return feedback.NewConstructionStats(id)
	}
	return stats
}

// similarActs groups acts that can substitute for each other at a discount.
var similarActs = map[dialogue.DialogueAct][]dialogue.DialogueAct{
	dialogue.ActInform:    {dialogue.ActExplain, dialogue.ActClarify},
	dialogue.ActExplain:   {dialogue.ActInform, dialogue.ActClarify},
	dialogue.ActClarify:   {dialogue.ActExplain, dialogue.ActAsk},
	dialogue.ActAsk:       {dialogue.ActConfirm, dialogue.ActClarify},
	dialogue.ActConfirm:   {dialogue.ActAsk},
	dialogue.ActEmpathize: {dialogue.ActComfort, dialogue.ActEncourage},
	dialogue.ActComfort:   {dialogue.ActEmpathize, dialogue.ActEncourage},
	dialogue.ActEncourage: {dialogue.ActEmpathize, dialogue.ActComfort},
	dialogue.ActWarn:      {dialogue.ActAdvise},
	dialogue.ActAdvise:    {dialogue.ActSuggest, dialogue.ActWarn},
	dialogue.ActSuggest:   {dialogue.ActAdvise},
	dialogue.ActRefuse:    {dialogue.ActLimit, dialogue.ActDeflect},
	dialogue.ActLimit:     {dialogue.ActRefuse, dialogue.ActDeflect},
	dialogue.ActDeflect:   {dialogue.ActLimit},
}

// actMatchScore favors the plan's primary act: a construction serving a
// later act scores below one serving the first, so an acknowledge template
// cannot outrank the greet template on a greeting turn.
func (s *Selector) actMatchScore(cons *Construction, plan *dialogue.MessagePlan) float64 {
	best := 0.0
	for i, act := range plan.Acts {
		weight := 1.0
		if i > 0 {
			weight = 0.8
		}
		if cons.Meaning.MatchesAct(act) {
			if weight > best {
				best = weight
			}
			continue
		}
		for _, similar := range similarActs[act] {
			if cons.Meaning.MatchesAct(similar) && best < 0.6*weight {
				best = 0.6 * weight
			}
		}
	}
	return best
}

// similarTones maps a target tone to acceptable substitutes.
var similarTones = map[dialogue.ToneType][]dialogue.ToneType{
	dialogue.ToneFormal:       {dialogue.ToneSerious, dialogue.ToneCautious},
	dialogue.ToneSerious:      {dialogue.ToneFormal, dialogue.ToneCautious},
	dialogue.ToneCautious:     {dialogue.ToneFormal, dialogue.ToneNeutral},
	dialogue.ToneCasual:       {dialogue.ToneEnthusiastic, dialogue.ToneNeutral},
	dialogue.ToneEnthusiastic: {dialogue.ToneCasual},
	dialogue.ToneEmpathic:     {dialogue.ToneSupportive},
	dialogue.ToneSupportive:   {dialogue.ToneEmpathic},
	dialogue.ToneNeutral:      {dialogue.ToneCasual, dialogue.ToneCautious},
}

func (s *Selector) toneMatchScore(cons *Construction, plan *dialogue.MessagePlan) float64 {
	if cons.Meaning.Tone == "" {
		return 0.5
	}
	if cons.Meaning.Tone == plan.Tone {
		return 1.0
	}
	for _, similar := range similarTones[plan.Tone] {
		if cons.Meaning.Tone == similar {
			return 0.7
		}
	}
	return 0.3
}

// constraintFitScore checks that the construction can actually serve the
// plan: its required slots must be fillable and hard safety/ethical
// constraints pull the score toward guarded tones.
func (s *Selector) constraintFitScore(cons *Construction, plan *dialogue.MessagePlan) float64 {
	fit := 1.0

	fillable := map[string]bool{"topic": true, "detail": true}
	for _, slot := range cons.Form.Slots {
		if slot.Required && slot.Default == "" && !fillable[slot.Name] {
			fit -= 0.5
			break
		}
	}

	for _, constraint := range plan.Constraints {
		hard := constraint.Severity == dialogue.SeverityHigh || constraint.Severity == dialogue.SeverityCritical
		if !hard {
			continue
		}
		if constraint.Type == dialogue.ConstraintSafety || constraint.Type == dialogue.ConstraintEthical {
			switch cons.Meaning.Tone {
			case dialogue.ToneCautious, dialogue.ToneFormal, dialogue.ToneSerious, "":
			default:
				fit -= 0.3
			}
			break
		}
	}

	return maxf(0, fit)
}
