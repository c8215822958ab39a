package learning

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"palaver/internal/construction"
	"palaver/internal/dialogue"
	"palaver/internal/episode"
)

// Pattern is a candidate response template distilled from a cluster of
// successful episodes. Patterns are proposals; a pattern only becomes a
// catalog construction after the MDL gate passes and an operator signs off.
type Pattern struct {
	ID       string
	Content  string
	Slots    []string
	Act      dialogue.DialogueAct
	Tone     dialogue.ToneType
	Episodes []string // episode ids the pattern was distilled from
}

// NewPatternID returns a fresh pattern id.
func NewPatternID() string {
	u := uuid.New()
	return "pat_" + hex.EncodeToString(u[:])[:12]
}

// Candidate pairs a promotable pattern with its evaluation and the cluster
// it came from.
type Candidate struct {
	Pattern    *Pattern
	Score      MDLScore
	Cluster    []Example
	Promotable bool
}

// PromoterConfig bounds the promotion pass.
type PromoterConfig struct {
	MinClusterSize int `yaml:"min_cluster_size"`
	MaxClusters    int `yaml:"max_clusters"`
}

// DefaultPromoterConfig returns the standard bounds.
func DefaultPromoterConfig() PromoterConfig {
	return PromoterConfig{MinClusterSize: 2, MaxClusters: 10}
}

// Promoter runs the offline promotion pass: cluster successful episodes,
// distill one template per cluster, and gate it on the MDL score.
type Promoter struct {
	cfg        PromoterConfig
	similarity *Similarity
	evaluator  *Evaluator
	logger     *zap.Logger
}

// NewPromoter builds a promoter.
func NewPromoter(cfg PromoterConfig, sim *Similarity, eval *Evaluator, logger *zap.Logger) *Promoter {
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = 2
	}
	if cfg.MaxClusters <= 0 {
		cfg.MaxClusters = 10
	}
	if sim == nil {
		sim = NewSimilarity(DefaultSimilarityConfig())
	}
	if eval == nil {
		eval = NewEvaluator(DefaultMDLConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoter{cfg: cfg, similarity: sim, evaluator: eval, logger: logger.Named("promoter")}
}

// Promote clusters the successful episodes, distills a candidate per
// cluster, and scores each against the existing catalog. Candidates come
// back best first; only Promotable ones should reach the catalog.
func (p *Promoter) Promote(episodes []*episode.EpisodeLog, catalog []*construction.Construction) []Candidate {
	eligible := make(map[string]*episode.EpisodeLog)
	var examples []Example
	for _, ep := range episodes {
		if !ep.WasSuccessful() || ep.Meta.UsedFallback || ep.OutputText == "" {
			continue
		}
		eligible[ep.ID] = ep
		examples = append(examples, ExampleFromEpisode(ep))
	}
	if len(examples) < p.cfg.MinClusterSize {
		return nil
	}

	existing := catalogPatterns(catalog)
	clusters := p.cluster(examples)

	var candidates []Candidate
	for _, cluster := range clusters {
		pattern := p.distill(cluster, eligible)
		if pattern == nil {
			continue
		}
		score := p.evaluator.Evaluate(pattern, cluster, existing)
		candidates = append(candidates, Candidate{
			Pattern:    pattern,
			Score:      score,
			Cluster:    cluster,
			Promotable: score.IsGood() && !score.IsRisky(),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score.Final > candidates[j].Score.Final
	})

	p.logger.Info("promotion pass",
		zap.Int("episodes", len(examples)),
		zap.Int("clusters", len(clusters)),
		zap.Int("candidates", len(candidates)))
	return candidates
}

// cluster greedily groups examples: each unassigned example seeds a cluster
// and pulls in every unassigned neighbor over the cluster threshold.
func (p *Promoter) cluster(examples []Example) [][]Example {
	assigned := make(map[string]bool, len(examples))
	var clusters [][]Example

	for _, seed := range examples {
		if assigned[seed.ID] {
			continue
		}
		cluster := []Example{seed}
		assigned[seed.ID] = true

		for _, match := range p.similarity.ClusterCandidates(seed, examples) {
			if assigned[match.Example.ID] {
				continue
			}
			cluster = append(cluster, match.Example)
			assigned[match.Example.ID] = true
		}
		if len(cluster) >= p.cfg.MinClusterSize {
			clusters = append(clusters, cluster)
		}
		if len(clusters) >= p.cfg.MaxClusters {
			break
		}
	}
	return clusters
}

// distill picks the cluster's representative output as the template: the
// most frequent output text, shortest on ties. Topic mentions generalize
// into a {topic} slot.
func (p *Promoter) distill(cluster []Example, eligible map[string]*episode.EpisodeLog) *Pattern {
	counts := make(map[string]int)
	var rep *episode.EpisodeLog
	for _, ex := range cluster {
		ep := eligible[ex.ID]
		if ep == nil {
			continue
		}
		counts[ep.OutputText]++
		if rep == nil ||
			counts[ep.OutputText] > counts[rep.OutputText] ||
			(counts[ep.OutputText] == counts[rep.OutputText] && len(ep.OutputText) < len(rep.OutputText)) {
			rep = ep
		}
	}
	if rep == nil {
		return nil
	}

	content, slots := generalizeTopic(rep.OutputText, rep.TopicDomain)
	ids := make([]string, 0, len(cluster))
	for _, ex := range cluster {
		ids = append(ids, ex.ID)
	}
	return &Pattern{
		ID:       NewPatternID(),
		Content:  content,
		Slots:    slots,
		Act:      rep.PrimaryAct(),
		Tone:     rep.Tone,
		Episodes: ids,
	}
}

// generalizeTopic swaps a literal topic mention for the {topic} placeholder
// so the template transfers across subjects.
func generalizeTopic(text, topic string) (string, []string) {
	if topic == "" || topic == "general" {
		return text, nil
	}
	lower := strings.ToLower(text)
	idx := strings.Index(lower, strings.ToLower(topic))
	if idx < 0 {
		return text, nil
	}
	generalized := text[:idx] + "{topic}" + text[idx+len(topic):]
	return generalized, []string{"topic"}
}

// ToConstruction turns a promotable pattern into a catalog entry. The caller
// decides whether it is actually inserted.
func (c Candidate) ToConstruction() *construction.Construction {
	slots := make([]construction.Slot, 0, len(c.Pattern.Slots))
	for _, name := range c.Pattern.Slots {
		slots = append(slots, construction.Slot{
			Name:     name,
			Type:     "topic",
			Required: false,
			Default:  "that",
		})
	}
	acts := []dialogue.DialogueAct{c.Pattern.Act}
	if c.Pattern.Act == "" {
		acts = []dialogue.DialogueAct{dialogue.ActAcknowledge}
	}
	return &construction.Construction{
		ID:    construction.NewID(),
		Level: construction.LevelSurface,
		Form: construction.Form{
			Template: c.Pattern.Content,
			Slots:    slots,
		},
		Meaning: construction.Meaning{
			Acts: acts,
			Tone: c.Pattern.Tone,
		},
		Source:     construction.SourceLearned,
		Confidence: c.Score.Final,
	}
}

// catalogPatterns projects existing constructions into patterns for the
// uniqueness check.
func catalogPatterns(catalog []*construction.Construction) []*Pattern {
	patterns := make([]*Pattern, 0, len(catalog))
	for _, cons := range catalog {
		patterns = append(patterns, &Pattern{
			ID:      cons.ID,
			Content: cons.Form.Template,
		})
	}
	return patterns
}
