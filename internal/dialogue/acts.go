package dialogue

import (
	"sort"

	"go.uber.org/zap"

	"palaver/internal/logging"
)

// SelectionStrategy tilts act selection toward safety or expressiveness.
type SelectionStrategy string

const (
	StrategyConservative SelectionStrategy = "conservative"
	StrategyBalanced     SelectionStrategy = "balanced"
	StrategyExpressive   SelectionStrategy = "expressive"
)

// ValidStrategy reports whether s is a known strategy.
func ValidStrategy(s SelectionStrategy) bool {
	return s == StrategyConservative || s == StrategyBalanced || s == StrategyExpressive
}

// ActScore is one act's score with the reasons that produced it.
type ActScore struct {
	Act     DialogueAct `json:"act"`
	Score   float64     `json:"score"`
	Reasons []string    `json:"reasons,omitempty"`
}

// ActSelectionResult is the selector's full output, including the complete
// ranking for explainability.
type ActSelectionResult struct {
	PrimaryActs   []DialogueAct     `json:"primary_acts"`
	SecondaryActs []DialogueAct     `json:"secondary_acts,omitempty"`
	AllScores     []ActScore        `json:"all_scores,omitempty"`
	Strategy      SelectionStrategy `json:"strategy"`
	Confidence    float64           `json:"confidence"`
}

// TurnContext carries cross-turn signals the selector adjusts for.
type TurnContext struct {
	LastAssistantAct DialogueAct
	SentimentTrend   string // "positive", "negative", ""
	IsFollowup       bool
}

// ActSelectorConfig bundles the selector's tunables.
type ActSelectorConfig struct {
	MaxPrimaryActs    int
	MaxSecondaryActs  int
	MinScoreThreshold float64
	Strategy          SelectionStrategy
	EnableEthicsCheck bool
	EnableAffect      bool
}

// DefaultActSelectorConfig returns the tuned defaults.
func DefaultActSelectorConfig() ActSelectorConfig {
	return ActSelectorConfig{
		MaxPrimaryActs:    3,
		MaxSecondaryActs:  2,
		MinScoreThreshold: 0.3,
		Strategy:          StrategyBalanced,
		EnableEthicsCheck: true,
		EnableAffect:      true,
	}
}

// intentActMap maps a recognized intent goal to the acts that serve it, most
// fitting first. The first act gets a stronger boost.
var intentActMap = map[string][]DialogueAct{
	"greeting":         {ActGreet, ActAcknowledge},
	"farewell":         {ActCloseConversation, ActAcknowledge},
	"ask_wellbeing":    {ActInform, ActAcknowledge},
	"ask_identity":     {ActInform},
	"express_positive": {ActAcknowledge, ActEncourage},
	"express_negative": {ActEmpathize, ActComfort, ActEncourage},
	"request_help":     {ActClarify, ActAdvise, ActSuggest},
	"request_info":     {ActInform, ActExplain, ActClarify},
	"thank":            {ActAcknowledge},
	"apologize":        {ActAcknowledge, ActComfort},
	"agree":            {ActAcknowledge, ActConfirm},
	"disagree":         {ActAcknowledge, ActClarify},
	"clarify":          {ActClarify, ActExplain},
	"complain":         {ActEmpathize, ActAcknowledge, ActApologize},
	"meta_question":    {ActExplain, ActInform},
	"smalltalk":        {ActAcknowledge, ActInform},
	"communicate":      {ActAcknowledge, ActInform},
}

// riskActMap maps a detected risk category to the acts that address it.
var riskActMap = map[string][]DialogueAct{
	"safety":     {ActWarn, ActEmpathize, ActAdvise},
	"emotional":  {ActEmpathize, ActComfort, ActEncourage},
	"ethical":    {ActWarn, ActRefuse, ActDeflect},
	"relational": {ActEmpathize, ActClarify, ActAdvise},
}

// ActSelector picks which communicative acts the response should perform,
// scoring every act against the situation and then filtering through ethics,
// affect, strategy, and conversation context.
type ActSelector struct {
	config ActSelectorConfig
	logger *zap.Logger
}

// NewActSelector builds an act selector.
func NewActSelector(config ActSelectorConfig, logger *zap.Logger) *ActSelector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActSelector{config: config, logger: logger.Named("acts")}
}

// Select ranks all acts for the situation and splits the ones above threshold
// into primary and secondary. An empty result degrades to a greet or
// acknowledge fallback at confidence 0.3 rather than failing the turn.
func (s *ActSelector) Select(situation *SituationModel, turnCtx *TurnContext) ActSelectionResult {
	defer logging.StartTimer(logging.CategoryActs, "act selection").Stop()

	scores := make([]ActScore, 0, len(AllActs()))
	for _, act := range AllActs() {
		scores = append(scores, s.scoreAct(act, situation))
	}

	if turnCtx != nil {
		s.adjustForContext(scores, turnCtx)
	}
	if s.config.EnableEthicsCheck {
		s.applyEthicsFilter(scores, situation)
	}
	if s.config.EnableAffect {
		s.applyAffectInfluence(scores, situation)
	}
	s.applyStrategy(scores)

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	var valid []ActScore
	for _, sc := range scores {
		if sc.Score >= s.config.MinScoreThreshold {
			valid = append(valid, sc)
		}
	}

	result := ActSelectionResult{
		AllScores:  scores,
		Strategy:   s.config.Strategy,
		Confidence: s.confidence(valid, situation),
	}
	for i, sc := range valid {
		switch {
		case i < s.config.MaxPrimaryActs:
			result.PrimaryActs = append(result.PrimaryActs, sc.Act)
		case i < s.config.MaxPrimaryActs+s.config.MaxSecondaryActs:
			result.SecondaryActs = append(result.SecondaryActs, sc.Act)
		}
	}

	if len(result.PrimaryActs) == 0 {
		fallback := ActAcknowledge
		for _, in := range situation.Intentions {
			if in.Goal == string(IntentGreeting) {
				fallback = ActGreet
				break
			}
		}
		result.PrimaryActs = []DialogueAct{fallback}
		result.Confidence = 0.3
	}

	s.logger.Debug("acts selected",
		zap.String("situation", situation.ID),
		zap.Any("primary", result.PrimaryActs),
		zap.Float64("confidence", result.Confidence))
	return result
}

// scoreAct combines the four signal sources with fixed weights: intent fit
// 40%, risk fit 30%, emotion fit 20%, understanding 10%.
func (s *ActSelector) scoreAct(act DialogueAct, situation *SituationModel) ActScore {
	score := ActScore{Act: act}

	intentScore := 0.0
	for _, intention := range situation.Intentions {
		acts, ok := intentActMap[intention.Goal]
		if !ok {
			continue
		}
		for _, match := range acts {
			if match != act {
				continue
			}
			if acts[0] == act {
				intentScore += intention.Confidence * 1.1
			} else {
				intentScore += intention.Confidence * 0.7
			}
			score.Reasons = append(score.Reasons, "intent "+intention.Goal+" matches")
			break
		}
	}
	intentScore = minf(1, intentScore)

	riskScore := 0.0
	for _, risk := range situation.Risks {
		for _, match := range riskActMap[risk.Category] {
			if match == act {
				riskScore += risk.Level * 0.5
				score.Reasons = append(score.Reasons, "risk "+risk.Category+" suggests this act")
				break
			}
		}
	}
	riskScore = minf(1, riskScore)

	emotionScore := 0.0
	if em := situation.Emotion; em != nil {
		if em.Valence <= -0.2 && act.IsEmotional() {
			emotionScore += 0.7
			score.Reasons = append(score.Reasons, "negative emotion, empathy needed")
		} else if em.Valence > 0.3 && (act == ActAcknowledge || act == ActEncourage) {
			emotionScore += 0.3
			score.Reasons = append(score.Reasons, "positive emotion, acknowledge it")
		}
		if em.Arousal > 0.5 && (act == ActComfort || act == ActClarify) {
			emotionScore += 0.3
			score.Reasons = append(score.Reasons, "high arousal, calming response")
		}
	}
	emotionScore = minf(1, emotionScore)

	score.Score = minf(1, intentScore*0.4+riskScore*0.3+emotionScore*0.2+situation.UnderstandingScore*0.1)
	return score
}

// applyEthicsFilter restricts dismissive acts and encourages protective ones
// when any risk exceeds 0.7.
func (s *ActSelector) applyEthicsFilter(scores []ActScore, situation *SituationModel) {
	highRisk := false
	for _, r := range situation.Risks {
		if r.Level > 0.7 {
			highRisk = true
			break
		}
	}
	if !highRisk {
		return
	}
	for i := range scores {
		switch scores[i].Act {
		case ActRefuse, ActDeflect:
			scores[i].Score *= 0.5
			scores[i].Reasons = append(scores[i].Reasons, "ethics: reduced in high-risk situation")
		case ActWarn, ActEmpathize, ActComfort:
			scores[i].Score = minf(1, scores[i].Score*1.3)
			scores[i].Reasons = append(scores[i].Reasons, "ethics: boosted in high-risk situation")
		}
	}
}

// applyAffectInfluence strengthens empathy acts under strong negative affect.
func (s *ActSelector) applyAffectInfluence(scores []ActScore, situation *SituationModel) {
	if situation.Emotion == nil || situation.Emotion.Valence >= -0.5 {
		return
	}
	for i := range scores {
		if scores[i].Act.IsEmotional() {
			scores[i].Score = minf(1, scores[i].Score*1.2)
			scores[i].Reasons = append(scores[i].Reasons, "affect: strong negative emotion")
		}
	}
}

func (s *ActSelector) applyStrategy(scores []ActScore) {
	switch s.config.Strategy {
	case StrategyConservative:
		for i := range scores {
			switch scores[i].Act {
			case ActAcknowledge, ActClarify, ActInform:
				scores[i].Score = minf(1, scores[i].Score*1.2)
				scores[i].Reasons = append(scores[i].Reasons, "strategy: conservative boost")
			}
		}
	case StrategyExpressive:
		for i := range scores {
			if scores[i].Act.IsEmotional() {
				scores[i].Score = minf(1, scores[i].Score*1.2)
				scores[i].Reasons = append(scores[i].Reasons, "strategy: expressive boost")
			}
		}
	}
}

func (s *ActSelector) adjustForContext(scores []ActScore, turnCtx *TurnContext) {
	for i := range scores {
		if turnCtx.LastAssistantAct != "" && scores[i].Act == turnCtx.LastAssistantAct {
			scores[i].Score *= 0.7
			scores[i].Reasons = append(scores[i].Reasons, "context: avoiding repetition")
		}
		if turnCtx.SentimentTrend == "negative" && scores[i].Act.IsEmotional() {
			scores[i].Score = minf(1, scores[i].Score*1.15)
			scores[i].Reasons = append(scores[i].Reasons, "context: negative sentiment trend")
		}
		if turnCtx.IsFollowup {
			switch scores[i].Act {
			case ActClarify, ActExplain, ActInform:
				scores[i].Score = minf(1, scores[i].Score*1.1)
				scores[i].Reasons = append(scores[i].Reasons, "context: followup question")
			}
		}
	}
}

// confidence blends the top score, understanding, and the gap to the runner-up
// (a close race means less certainty).
func (s *ActSelector) confidence(valid []ActScore, situation *SituationModel) float64 {
	if len(valid) == 0 {
		return 0
	}
	diffFactor := 0.5
	if len(valid) >= 2 {
		diffFactor = minf(1, (valid[0].Score-valid[1].Score)*2)
	}
	return clamp01(valid[0].Score*0.4 + situation.UnderstandingScore*0.3 + diffFactor*0.3)
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
