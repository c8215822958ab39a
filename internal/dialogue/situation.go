package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"palaver/internal/logging"
)

// HistoryTurn is one prior turn of the conversation, role "user" or
// "assistant".
type HistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TurnInput is everything the situation builder sees for one user turn. The
// emotional snapshot, when present, comes from the external affect subsystem
// and is treated as read-only.
type TurnInput struct {
	Text      string
	SessionID string
	History   []HistoryTurn
	Emotion   *EmotionalState
	Metadata  map[string]string
}

// SituationBuilderConfig bounds the builder's output.
type SituationBuilderConfig struct {
	MaxActors             int
	MaxIntentions         int
	MaxRisks              int
	EnableRiskDetection   bool
	EnableEmotionAnalysis bool
}

// DefaultSituationBuilderConfig returns the tuned defaults.
func DefaultSituationBuilderConfig() SituationBuilderConfig {
	return SituationBuilderConfig{
		MaxActors:             10,
		MaxIntentions:         20,
		MaxRisks:              10,
		EnableRiskDetection:   true,
		EnableEmotionAnalysis: true,
	}
}

// SituationBuilder fuses one user turn into an immutable SituationModel:
// who is involved, what they want, what could go wrong, how they feel, and
// how well we understood all of that.
type SituationBuilder struct {
	config     SituationBuilderConfig
	recognizer *IntentRecognizer
	logger     *zap.Logger
}

// NewSituationBuilder builds a situation builder.
func NewSituationBuilder(config SituationBuilderConfig, logger *zap.Logger) *SituationBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SituationBuilder{
		config:     config,
		recognizer: NewIntentRecognizer(),
		logger:     logger.Named("situation"),
	}
}

// Build constructs the situation model for one turn. It is pure except for
// logging; the returned model must not be mutated downstream.
func (b *SituationBuilder) Build(ctx context.Context, input TurnInput) (*SituationModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, fmt.Errorf("situation builder: empty turn text")
	}
	defer logging.StartTimer(logging.CategorySituation, "situation build").Stop()

	text := normalizeText(input.Text)

	actors := b.extractActors(text)
	intentions := b.extractIntentions(text, input.History)

	var risks []SituationRisk
	if b.config.EnableRiskDetection {
		risks = b.detectRisks(text)
	}

	emotion := input.Emotion
	if emotion == nil && b.config.EnableEmotionAnalysis {
		emotion = approximateEmotion(text)
	}

	topic, entities := classifyTopic(text)

	model := &SituationModel{
		ID:         newSituationID(),
		Actors:     actors,
		Intentions: intentions,
		Risks:      risks,
		Temporal: TemporalContext{
			TurnNumber: len(input.History)/2 + 1,
		},
		Emotion:        emotion,
		TopicDomain:    topic,
		KeyEntities:    entities,
		ContextSummary: summarizeContext(input.Text, input.History),
		CreatedAt:      time.Now(),
	}
	model.UnderstandingScore = b.understanding(model)

	b.logger.Debug("situation built",
		zap.String("id", model.ID),
		zap.String("topic", topic),
		zap.String("intent", model.PrimaryIntent()),
		zap.Int("risks", len(risks)),
		zap.Float64("understanding", model.UnderstandingScore))
	return model, nil
}

// thirdPartyIndicators flags people the user mentions beyond the two fixed
// conversation roles.
var thirdPartyIndicators = []string{
	"my friend", "my mom", "my mother", "my dad", "my father",
	"my brother", "my sister", "my wife", "my husband", "my partner",
	"my boss", "my teacher", "my doctor", "my neighbor",
	"they", "them", "their",
}

// extractActors always yields the user and the assistant, plus any mentioned
// third parties up to the configured cap.
func (b *SituationBuilder) extractActors(text string) []Actor {
	actors := []Actor{
		{ID: "user", Role: "user"},
		{ID: "assistant", Role: "assistant", Name: "palaver"},
	}
	for i, indicator := range thirdPartyIndicators {
		if findPattern(text, indicator) < 0 {
			continue
		}
		actors = append(actors, Actor{
			ID:     fmt.Sprintf("third_party_%d", i),
			Role:   "third_party",
			Name:   indicator,
			Traits: map[string]string{"mentioned_as": indicator},
		})
		if len(actors) >= b.config.MaxActors {
			break
		}
	}
	return actors
}

// followupIndicators mark a turn that builds on the previous exchange, which
// raises intent confidence slightly.
var followupIndicators = []string{
	"what about", "so then", "and then", "then", "also", "well",
}

func (b *SituationBuilder) extractIntentions(text string, history []HistoryTurn) []Intention {
	result := b.recognizer.Recognize(text)

	confidence := result.Confidence
	if len(history) >= 2 {
		for _, indicator := range followupIndicators {
			if findPattern(text, indicator) >= 0 {
				confidence = clamp01(confidence * 1.1)
				break
			}
		}
	}

	var intentions []Intention
	if result.Primary != IntentUnknown {
		intentions = append(intentions, Intention{
			ID:         newIntentionID(),
			ActorID:    "user",
			Goal:       string(result.Primary),
			Confidence: confidence,
			Evidence:   []string{"matched pattern: " + result.Matches[0].Pattern},
		})
	}
	if result.Secondary != "" {
		intentions = append(intentions, Intention{
			ID:         newIntentionID(),
			ActorID:    "user",
			Goal:       string(result.Secondary),
			Confidence: confidence * 0.8,
			Evidence:   []string{"matched pattern (secondary): " + result.Matches[1].Pattern},
		})
	}
	for _, m := range result.Matches {
		if len(intentions) >= b.config.MaxIntentions {
			break
		}
		if m.Category == result.Primary || m.Category == result.Secondary {
			continue
		}
		intentions = append(intentions, Intention{
			ID:         newIntentionID(),
			ActorID:    "user",
			Goal:       string(m.Category),
			Confidence: m.Confidence * 0.7,
			Evidence:   []string{"matched pattern: " + m.Pattern},
		})
	}

	if len(intentions) == 0 {
		intentions = append(intentions, Intention{
			ID:         newIntentionID(),
			ActorID:    "user",
			Goal:       "communicate",
			Confidence: 0.5,
			Evidence:   []string{"no specific intent recognized"},
		})
	}
	return intentions
}

// riskPatterns are the per-category trigger keywords with the base level each
// category carries. One risk per category at most; the first hit wins.
var riskPatterns = []struct {
	category   string
	level      float64
	mitigation string
	keywords   []string
}{
	{"safety", 0.9, "suggest professional help",
		[]string{"suicide", "hurt myself", "kill myself", "overdose", "self-harm"}},
	{"emotional", 0.7, "show empathy and offer support resources",
		[]string{"depression", "anxiety", "panic", "hopeless", "can't take it", "cant take it"}},
	{"ethical", 0.8, "state ethical limits and offer alternatives",
		[]string{"illegal", "cheat", "scam", "steal", "hack into"}},
	{"relational", 0.5, "listen and stay neutral",
		[]string{"breakup", "divorce", "big fight", "left me"}},
}

func (b *SituationBuilder) detectRisks(text string) []SituationRisk {
	var risks []SituationRisk
	for _, rp := range riskPatterns {
		for _, keyword := range rp.keywords {
			if findPattern(text, keyword) < 0 {
				continue
			}
			risks = append(risks, SituationRisk{
				Category:    rp.category,
				Level:       rp.level,
				Description: fmt.Sprintf("detected expression %q", keyword),
				Mitigation:  rp.mitigation,
			})
			break
		}
		if len(risks) >= b.config.MaxRisks {
			break
		}
	}
	return risks
}

var (
	positiveWords    = []string{"happy", "great", "wonderful", "thank", "love", "awesome"}
	negativeWords    = []string{"sad", "bad", "angry", "mad", "hate", "terrible"}
	highArousalWords = []string{"excited", "panic", "urgent", "really", "extremely"}
	lowArousalWords  = []string{"calm", "peaceful", "relaxed", "slowly"}
)

// approximateEmotion derives a coarse PAD snapshot from the turn text when no
// external affect reading is available. Dominance stays neutral; confidence
// is fixed low because this is a keyword guess.
func approximateEmotion(text string) *EmotionalState {
	valence, arousal := 0.0, 0.0
	primary := ""

	for _, w := range positiveWords {
		if findPattern(text, w) >= 0 {
			valence += 0.3
			if primary == "" {
				primary = "positive"
			}
		}
	}
	for _, w := range negativeWords {
		if findPattern(text, w) >= 0 {
			valence -= 0.3
			if primary == "" {
				primary = "negative"
			}
		}
	}
	for _, w := range highArousalWords {
		if findPattern(text, w) >= 0 {
			arousal += 0.2
		}
	}
	for _, w := range lowArousalWords {
		if findPattern(text, w) >= 0 {
			arousal -= 0.2
		}
	}

	return &EmotionalState{
		Valence:        clampSigned(valence),
		Arousal:        clampSigned(arousal),
		PrimaryEmotion: primary,
		Confidence:     0.5,
	}
}

// topicPatterns classify the domain; order matters (education outranks work
// so "study" beats "work" in mixed messages).
var topicPatterns = []struct {
	topic    string
	keywords []string
}{
	{"technology", []string{"computer", "software", "code", "program", "internet"}},
	{"health", []string{"health", "sick", "doctor", "medicine", "pain"}},
	{"relationships", []string{"relationship", "family", "friend", "partner"}},
	{"education", []string{"school", "class", "exam", "study", "learn"}},
	{"work", []string{"job", "career", "salary", "boss", "work"}},
	{"emotions", []string{"feel", "feeling", "emotion", "happy", "sad"}},
	{"help", []string{"help", "how do", "what should"}},
}

func classifyTopic(text string) (string, []string) {
	for _, tp := range topicPatterns {
		for _, keyword := range tp.keywords {
			if findPattern(text, keyword) >= 0 {
				return tp.topic, []string{keyword}
			}
		}
	}
	return "general", nil
}

// summarizeContext produces the short free-text summary stored with the
// model: the truncated message when the turn stands alone, otherwise the tail
// of the conversation.
func summarizeContext(message string, history []HistoryTurn) string {
	if len(history) == 0 {
		if len(message) > 100 {
			return "user message: " + message[:100] + "..."
		}
		return "user message: " + message
	}
	start := len(history) - 3
	if start < 0 {
		start = 0
	}
	var parts []string
	for _, turn := range history[start:] {
		content := turn.Content
		if len(content) > 50 {
			content = content[:50]
		}
		parts = append(parts, turn.Role+": "+content+"...")
	}
	return strings.Join(parts, " | ")
}

// understanding scores how completely the model captured the turn, additive
// from a 0.3 base: extra actors, intent confidence, risk coverage, a primary
// emotion, and at least one confident intent each contribute.
func (b *SituationBuilder) understanding(model *SituationModel) float64 {
	score := 0.3

	if len(model.Actors) > 2 {
		score += 0.1
	}
	if len(model.Intentions) > 0 {
		sum := 0.0
		for _, in := range model.Intentions {
			sum += in.Confidence
		}
		score += 0.2 * (sum / float64(len(model.Intentions)))
	}
	if len(model.Risks) > 0 {
		score += 0.1
	}
	if model.Emotion != nil && model.Emotion.PrimaryEmotion != "" {
		score += 0.1
	}
	for _, in := range model.Intentions {
		if in.Confidence > 0.7 {
			score += 0.1
			break
		}
	}

	if score > 1 {
		return 1
	}
	return score
}

func clampSigned(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
