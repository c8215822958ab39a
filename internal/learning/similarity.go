// Package learning holds the offline analysis that turns logged episodes
// into catalog candidates: episode similarity, MDL pattern scoring, and the
// promotion pass that ties them together. Everything here is pure
// computation over episode snapshots; no LLM or embedding calls.
package learning

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"palaver/internal/dialogue"
	"palaver/internal/episode"
)

// SimilarityConfig weights the four similarity components. The weights must
// sum to 1.
type SimilarityConfig struct {
	TextWeight    float64 `yaml:"text_weight"`
	IntentWeight  float64 `yaml:"intent_weight"`
	EmotionWeight float64 `yaml:"emotion_weight"`
	ActWeight     float64 `yaml:"act_weight"`

	SimilarThreshold float64 `yaml:"similar_threshold"`
	ClusterThreshold float64 `yaml:"cluster_threshold"`
}

// DefaultSimilarityConfig returns the standard weighting.
func DefaultSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		TextWeight:       0.30,
		IntentWeight:     0.25,
		EmotionWeight:    0.20,
		ActWeight:        0.25,
		SimilarThreshold: 0.80,
		ClusterThreshold: 0.70,
	}
}

// Validate rejects weightings that do not sum to 1.
func (c SimilarityConfig) Validate() error {
	total := c.TextWeight + c.IntentWeight + c.EmotionWeight + c.ActWeight
	if total < 0.999 || total > 1.001 {
		return fmt.Errorf("similarity weights must sum to 1.0, got %.3f", total)
	}
	return nil
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "have": true, "has": true,
	"do": true, "does": true, "did": true, "will": true, "would": true,
	"can": true, "could": true, "should": true, "may": true, "might": true,
	"must": true, "i": true, "you": true, "he": true, "she": true,
	"it": true, "we": true, "they": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "on": true, "for": true,
	"this": true, "that": true, "what": true, "how": true, "why": true,
}

// Example is the slice of an episode that similarity looks at.
type Example struct {
	ID      string
	Text    string
	Intent  string
	Emotion string
	Acts    []dialogue.DialogueAct
}

// ExampleFromEpisode projects an episode onto the similarity view. The
// emotion label lives inside the situation snapshot; a missing or
// unparseable snapshot leaves it empty, which similarity treats as unknown.
func ExampleFromEpisode(ep *episode.EpisodeLog) Example {
	ex := Example{
		ID:     ep.ID,
		Text:   ep.InputText,
		Intent: ep.IntentPrimary,
		Acts:   ep.Acts,
	}
	if ep.SituationJSON != "" {
		var situation dialogue.SituationModel
		if err := json.Unmarshal([]byte(ep.SituationJSON), &situation); err == nil && situation.Emotion != nil {
			ex.Emotion = situation.Emotion.PrimaryEmotion
		}
	}
	return ex
}

// SimilarityResult is the component breakdown of one comparison.
type SimilarityResult struct {
	Total   float64
	Text    float64
	Intent  float64
	Emotion float64
	Acts    float64

	IsSimilar          bool
	IsClusterCandidate bool
}

// Similarity computes weighted episode similarity from token sets and
// categorical distances.
type Similarity struct {
	cfg SimilarityConfig
}

// NewSimilarity builds a calculator; a zero config gets the defaults.
func NewSimilarity(cfg SimilarityConfig) *Similarity {
	if cfg.TextWeight == 0 && cfg.IntentWeight == 0 && cfg.EmotionWeight == 0 && cfg.ActWeight == 0 {
		cfg = DefaultSimilarityConfig()
	}
	return &Similarity{cfg: cfg}
}

// Compute returns the total similarity score for two examples.
func (s *Similarity) Compute(a, b Example) float64 {
	return s.ComputeDetailed(a, b).Total
}

// ComputeDetailed returns the full component breakdown.
func (s *Similarity) ComputeDetailed(a, b Example) SimilarityResult {
	r := SimilarityResult{
		Text:    textSimilarity(a.Text, b.Text),
		Intent:  intentSimilarity(a.Intent, b.Intent),
		Emotion: emotionSimilarity(a.Emotion, b.Emotion),
		Acts:    actSimilarity(a.Acts, b.Acts),
	}
	r.Total = r.Text*s.cfg.TextWeight +
		r.Intent*s.cfg.IntentWeight +
		r.Emotion*s.cfg.EmotionWeight +
		r.Acts*s.cfg.ActWeight
	r.IsSimilar = r.Total >= s.cfg.SimilarThreshold
	r.IsClusterCandidate = r.Total >= s.cfg.ClusterThreshold
	return r
}

// Match pairs an example with its similarity to some reference.
type Match struct {
	Example Example
	Score   float64
}

// Batch compares one example against many, skipping self-comparison, and
// returns matches at or above minScore sorted high to low.
func (s *Similarity) Batch(ref Example, candidates []Example, minScore float64) []Match {
	var matches []Match
	for _, cand := range candidates {
		if cand.ID == ref.ID {
			continue
		}
		if score := s.Compute(ref, cand); score >= minScore {
			matches = append(matches, Match{Example: cand, Score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

// FindSimilar returns candidates clearing the similar threshold, capped at
// limit when limit > 0.
func (s *Similarity) FindSimilar(ref Example, candidates []Example, limit int) []Match {
	matches := s.Batch(ref, candidates, s.cfg.SimilarThreshold)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// ClusterCandidates returns candidates clearing the cluster threshold.
func (s *Similarity) ClusterCandidates(ref Example, candidates []Example) []Match {
	return s.Batch(ref, candidates, s.cfg.ClusterThreshold)
}

func textSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		if a == "" && b == "" {
			return 1
		}
		return 0
	}
	return Jaccard(Tokenize(a), Tokenize(b))
}

// intentCategories groups intents so near misses still score.
var intentCategories = map[string]string{
	"greeting": "social", "farewell": "social", "thank": "social",
	"smalltalk": "social",
	"question": "information", "request_info": "information",
	"clarification": "information", "confirmation": "information",
	"request_help": "assistance", "request_action": "assistance",
	"complaint": "emotional", "emotional_share": "emotional",
	"ask_wellbeing": "emotional",
	"communicate": "general", "opinion": "general", "agreement": "general",
	"disagreement": "general",
}

func intentSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		if a == "" && b == "" {
			return 1
		}
		return 0
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	catA, okA := intentCategories[a]
	catB, okB := intentCategories[b]
	if okA && okB && catA == catB {
		return 0.7
	}
	return 0
}

// emotionCategories buckets emotion labels by valence.
var emotionCategories = map[string]string{
	"happy": "positive", "joy": "positive", "excited": "positive",
	"grateful": "positive", "hopeful": "positive",
	"sad": "negative", "angry": "negative", "frustrated": "negative",
	"disappointed": "negative", "anxious": "negative", "worried": "negative",
	"fearful": "negative",
	"neutral": "neutral", "calm": "neutral", "curious": "neutral",
}

// emotionDistance is the distance between valence buckets; unknown pairs
// fall back to 0.5.
var emotionDistance = map[[2]string]float64{
	{"positive", "positive"}: 0.0,
	{"negative", "negative"}: 0.0,
	{"neutral", "neutral"}:   0.0,
	{"positive", "neutral"}:  0.3,
	{"neutral", "positive"}:  0.3,
	{"negative", "neutral"}:  0.3,
	{"neutral", "negative"}:  0.3,
	{"positive", "negative"}: 0.8,
	{"negative", "positive"}: 0.8,
}

func emotionSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		if a == "" && b == "" {
			return 1
		}
		return 0
	}
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	catA, okA := emotionCategories[a]
	if !okA {
		catA = "neutral"
	}
	catB, okB := emotionCategories[b]
	if !okB {
		catB = "neutral"
	}
	dist, ok := emotionDistance[[2]string{catA, catB}]
	if !ok {
		dist = 0.5
	}
	return 1 - dist
}

func actSimilarity(a, b []dialogue.DialogueAct) float64 {
	if len(a) == 0 || len(b) == 0 {
		if len(a) == 0 && len(b) == 0 {
			return 1
		}
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, act := range a {
		setA[strings.ToLower(string(act))] = true
	}
	setB := make(map[string]bool, len(b))
	for _, act := range b {
		setB[strings.ToLower(string(act))] = true
	}
	return Jaccard(setA, setB)
}

// Tokenize splits text into a lowercased word set with stop words removed.
func Tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		word := current.String()
		if !stopWords[word] {
			words[word] = true
		}
		current.Reset()
	}
	for _, r := range strings.ToLower(text) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

// Jaccard is |A ∩ B| / |A ∪ B|; two empty sets score 1, one empty set 0.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		if len(a) == 0 && len(b) == 0 {
			return 1
		}
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

// LevenshteinDistance is the classic edit distance, two-row variant.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ra {
		curr[0] = i + 1
		for j, cb := range rb {
			cost := 0
			if ca != cb {
				cost = 1
			}
			curr[j+1] = min(prev[j+1]+1, curr[j]+1, prev[j]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// LevenshteinSimilarity normalizes edit distance into [0, 1].
func LevenshteinSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}
