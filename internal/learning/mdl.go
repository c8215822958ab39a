package learning

import (
	"strings"
)

// MDLConfig weights the pattern evaluation. Compression and diversity add,
// risk subtracts.
type MDLConfig struct {
	CompressionWeight float64 `yaml:"compression_weight"`
	DiversityWeight   float64 `yaml:"diversity_weight"`
	RiskWeight        float64 `yaml:"risk_weight"`

	MinEpisodes int `yaml:"min_episodes"`

	IntentDiversityBonus  float64 `yaml:"intent_diversity_bonus"`
	EmotionDiversityBonus float64 `yaml:"emotion_diversity_bonus"`
	UniquePatternBonus    float64 `yaml:"unique_pattern_bonus"`
}

// DefaultMDLConfig returns the standard weighting.
func DefaultMDLConfig() MDLConfig {
	return MDLConfig{
		CompressionWeight:     0.5,
		DiversityWeight:       0.3,
		RiskWeight:            0.2,
		MinEpisodes:           2,
		IntentDiversityBonus:  0.1,
		EmotionDiversityBonus: 0.1,
		UniquePatternBonus:    0.1,
	}
}

// riskKeywords and ethicalKeywords penalize pattern templates whose text
// touches dangerous or ethically loaded ground. A learned template that
// needs these words should go through a human, not the catalog.
var riskKeywords = []string{
	"harm", "danger", "dangerous", "death", "kill", "suicide",
	"violence", "beat", "injure",
	"illegal", "crime", "hack", "steal", "scam",
	"medication", "dose", "overdose", "poison",
	"password", "credit card", "identity",
}

var ethicalKeywords = []string{
	"discrimination", "racism", "sexism", "hatred",
	"manipulation", "deception", "lie",
	"privacy", "confidential", "unauthorized",
}

// MDLScore is one pattern evaluation. The final score trades compression
// against diversity and risk.
type MDLScore struct {
	Compression   float64
	Normalized    float64
	EpisodeCount  int
	AvgLength     float64
	PatternLength int

	DiversityBonus float64
	RiskPenalty    float64
	Final          float64
}

// IsGood reports whether the pattern clears the promotion bar.
func (s MDLScore) IsGood() bool { return s.Final > 0.5 }

// IsRisky reports whether the risk penalty alone disqualifies the pattern.
func (s MDLScore) IsRisky() bool { return s.RiskPenalty > 0.1 }

// Evaluator scores candidate patterns by approximate minimum description
// length: a short template covering many episodes compresses well.
type Evaluator struct {
	cfg MDLConfig
}

// NewEvaluator builds an evaluator; a zero config gets the defaults.
func NewEvaluator(cfg MDLConfig) *Evaluator {
	if cfg.CompressionWeight == 0 && cfg.DiversityWeight == 0 && cfg.RiskWeight == 0 {
		cfg = DefaultMDLConfig()
	}
	if cfg.MinEpisodes <= 0 {
		cfg.MinEpisodes = 2
	}
	return &Evaluator{cfg: cfg}
}

// Evaluate scores one candidate against the episodes it claims to cover.
// existing is consulted only for the uniqueness bonus.
func (e *Evaluator) Evaluate(p *Pattern, examples []Example, existing []*Pattern) MDLScore {
	if len(examples) < e.cfg.MinEpisodes {
		return MDLScore{
			EpisodeCount:  len(examples),
			PatternLength: e.patternLength(p),
		}
	}

	count := len(examples)
	total := 0
	for _, ex := range examples {
		total += episodeLength(ex)
	}
	avg := float64(total) / float64(count)

	patLen := e.patternLength(p)
	originalBits := float64(count) * avg
	compressedBits := float64(patLen) + float64(count*2)
	compression := originalBits - compressedBits

	normalized := 0.0
	if originalBits > 0 {
		normalized = compression / originalBits
	}
	// Map [-1, 1] onto [0, 1].
	normalized = clamp01((normalized + 1) / 2)

	diversity := e.diversityBonus(p, examples, existing)
	risk := riskPenalty(p.Content)

	final := clamp01(normalized*e.cfg.CompressionWeight +
		diversity*e.cfg.DiversityWeight -
		risk*e.cfg.RiskWeight)

	return MDLScore{
		Compression:    compression,
		Normalized:     normalized,
		EpisodeCount:   count,
		AvgLength:      avg,
		PatternLength:  patLen,
		DiversityBonus: diversity,
		RiskPenalty:    risk,
		Final:          final,
	}
}

// Compare returns the better of two candidates over the same episodes; ties
// go to the first.
func (e *Evaluator) Compare(a, b *Pattern, examples []Example, existing []*Pattern) *Pattern {
	if e.Evaluate(a, examples, existing).Final >= e.Evaluate(b, examples, existing).Final {
		return a
	}
	return b
}

// RankedPattern pairs a pattern with its score.
type RankedPattern struct {
	Pattern *Pattern
	Score   MDLScore
}

// Rank scores all candidates and orders them best first.
func (e *Evaluator) Rank(patterns []*Pattern, examples []Example, existing []*Pattern) []RankedPattern {
	ranked := make([]RankedPattern, 0, len(patterns))
	for _, p := range patterns {
		ranked = append(ranked, RankedPattern{Pattern: p, Score: e.Evaluate(p, examples, existing)})
	}
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].Score.Final > ranked[j-1].Score.Final; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	return ranked
}

// FilterGood keeps patterns at or above minScore that are not risky.
func (e *Evaluator) FilterGood(patterns []*Pattern, examples []Example, minScore float64, existing []*Pattern) []*Pattern {
	var good []*Pattern
	for _, p := range patterns {
		score := e.Evaluate(p, examples, existing)
		if score.Final >= minScore && !score.IsRisky() {
			good = append(good, p)
		}
	}
	return good
}

// patternLength approximates the description cost of a template: content
// plus a fixed cost per slot plus a type tag.
func (e *Evaluator) patternLength(p *Pattern) int {
	return len(p.Content) + len(p.Slots)*5 + 2
}

// episodeLength approximates the description cost of one episode.
func episodeLength(ex Example) int {
	n := len(ex.Text) + len(ex.Intent) + len(ex.Emotion)
	for _, act := range ex.Acts {
		n += len(act)
	}
	return n + 10
}

func (e *Evaluator) diversityBonus(p *Pattern, examples []Example, existing []*Pattern) float64 {
	bonus := 0.0

	intents := make(map[string]bool)
	emotions := make(map[string]bool)
	for _, ex := range examples {
		if ex.Intent != "" {
			intents[ex.Intent] = true
		}
		if ex.Emotion != "" {
			emotions[ex.Emotion] = true
		}
	}
	if len(intents) > 1 {
		bonus += e.cfg.IntentDiversityBonus * float64(min(len(intents), 5)) / 5
	}
	if len(emotions) > 1 {
		bonus += e.cfg.EmotionDiversityBonus * float64(min(len(emotions), 5)) / 5
	}
	if len(existing) > 0 && isUniquePattern(p, existing) {
		bonus += e.cfg.UniquePatternBonus
	}
	return minFloat(1, bonus)
}

// isUniquePattern rejects candidates that duplicate or closely shadow an
// existing template.
func isUniquePattern(p *Pattern, existing []*Pattern) bool {
	content := strings.ToLower(p.Content)
	words := wordSet(content)
	for _, other := range existing {
		otherContent := strings.ToLower(other.Content)
		if content == otherContent {
			return false
		}
		if rawJaccard(words, wordSet(otherContent)) > 0.8 {
			return false
		}
	}
	return true
}

func riskPenalty(content string) float64 {
	if content == "" {
		return 0
	}
	lower := strings.ToLower(content)

	riskCount := 0
	for _, kw := range riskKeywords {
		if strings.Contains(lower, kw) {
			riskCount++
		}
	}
	penalty := 0.0
	if riskCount > 0 {
		penalty += minFloat(float64(riskCount)*0.2, 0.6)
	}

	ethicalCount := 0
	for _, kw := range ethicalKeywords {
		if strings.Contains(lower, kw) {
			ethicalCount++
		}
	}
	if ethicalCount > 0 {
		penalty += minFloat(float64(ethicalCount)*0.15, 0.4)
	}
	return minFloat(1, penalty)
}

// wordSet is the plain whitespace split, no stop-word filtering; pattern
// uniqueness compares templates verbatim.
func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(text) {
		set[w] = true
	}
	return set
}

// rawJaccard treats an empty side as zero overlap, unlike Jaccard; two
// empty templates are caught by the equality check before this runs.
func rawJaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
