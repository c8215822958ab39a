package dialogue

import (
	"sort"

	"go.uber.org/zap"

	"palaver/internal/logging"
)

// MessagePlannerConfig bounds the planner's output.
type MessagePlannerConfig struct {
	MaxContentPoints int
	MaxConstraints   int
	DefaultTone      ToneType
	RiskCautionLevel float64 // tone flips to cautious at this situation risk
}

// DefaultMessagePlannerConfig returns the tuned defaults.
func DefaultMessagePlannerConfig() MessagePlannerConfig {
	return MessagePlannerConfig{
		MaxContentPoints: 10,
		MaxConstraints:   5,
		DefaultTone:      ToneNeutral,
		RiskCautionLevel: 0.5,
	}
}

// actContentMap names the content point each act contributes to the plan.
var actContentMap = map[DialogueAct]ContentPoint{
	ActInform:      {Key: "information", Value: "provide the requested information"},
	ActExplain:     {Key: "explanation", Value: "explain the topic in detail"},
	ActClarify:     {Key: "clarification", Value: "clear up the ambiguous points"},
	ActAsk:         {Key: "question", Value: "ask the needed question"},
	ActConfirm:     {Key: "confirmation", Value: "ask for confirmation"},
	ActEmpathize:   {Key: "empathy", Value: "show that their feelings are understood"},
	ActEncourage:   {Key: "encouragement", Value: "give an encouraging message"},
	ActComfort:     {Key: "comfort", Value: "console and reassure"},
	ActSuggest:     {Key: "suggestion", Value: "offer a suggestion"},
	ActWarn:        {Key: "warning", Value: "warn about the risk or danger"},
	ActAdvise:      {Key: "advice", Value: "give advice"},
	ActRefuse:      {Key: "refusal", Value: "decline politely and explain why"},
	ActLimit:       {Key: "limitation", Value: "state the scope and limits"},
	ActDeflect:     {Key: "deflection", Value: "redirect the topic appropriately"},
	ActAcknowledge: {Key: "acknowledgment", Value: "show the message was understood"},
	ActApologize:   {Key: "apology", Value: "apologize where appropriate"},
	ActThank:       {Key: "thanks", Value: "express thanks"},
}

// actIntentMap describes what each primary act is trying to accomplish.
var actIntentMap = map[DialogueAct]string{
	ActInform:            "inform the user",
	ActExplain:           "explain to the user",
	ActClarify:           "resolve the ambiguity",
	ActAsk:               "ask the user a question",
	ActConfirm:           "get confirmation",
	ActEmpathize:         "show empathy",
	ActEncourage:         "encourage the user",
	ActComfort:           "console the user",
	ActSuggest:           "offer a suggestion",
	ActWarn:              "warn the user",
	ActAdvise:            "give advice",
	ActRefuse:            "decline the request",
	ActLimit:             "limit the scope",
	ActDeflect:           "redirect the topic",
	ActAcknowledge:       "acknowledge the user's message",
	ActApologize:         "apologize",
	ActThank:             "express thanks",
	ActGreet:             "greet the user",
	ActCloseConversation: "close the conversation",
}

// riskConstraintMap maps a situation risk category to the constraint it
// imposes on phrasing.
var riskConstraintMap = map[string]MessageConstraint{
	"safety":     {Type: ConstraintSafety, Description: "safety first, point to professional help"},
	"emotional":  {Type: ConstraintTone, Description: "approach with emotional sensitivity"},
	"ethical":    {Type: ConstraintEthical, Description: "stay inside ethical limits, offer alternatives"},
	"relational": {Type: ConstraintStyle, Description: "stay neutral and balanced"},
}

// MessagePlanner turns an act selection plus the situation into a full
// message plan: tone, content points, constraints, risk estimate, confidence.
type MessagePlanner struct {
	config MessagePlannerConfig
	logger *zap.Logger
}

// NewMessagePlanner builds a planner.
func NewMessagePlanner(config MessagePlannerConfig, logger *zap.Logger) *MessagePlanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagePlanner{config: config, logger: logger.Named("planner")}
}

// Plan builds the message plan for one turn. The returned plan is immutable;
// revisions go through UpdatePlan.
func (p *MessagePlanner) Plan(actResult ActSelectionResult, situation *SituationModel) *MessagePlan {
	defer logging.StartTimer(logging.CategoryPlanner, "message planning").Stop()

	acts := actResult.PrimaryActs
	if len(acts) == 0 {
		acts = []DialogueAct{ActAcknowledge}
	}

	riskLevel := 0.0
	if highest := situation.HighestRisk(); highest != nil {
		riskLevel = highest.Level
	}

	plan := &MessagePlan{
		ID:            newPlanID(),
		SituationID:   situation.ID,
		Acts:          acts,
		PrimaryIntent: p.primaryIntent(acts, situation),
		Tone:          p.determineTone(acts, situation),
		ContentPoints: p.contentPoints(actResult, situation),
		Constraints:   p.constraints(actResult, situation),
		RiskLevel:     riskLevel,
		Confidence:    p.confidence(actResult, situation, riskLevel),
		Meta: map[string]string{
			"strategy": string(actResult.Strategy),
		},
	}

	p.logger.Debug("plan built",
		zap.String("id", plan.ID),
		zap.String("tone", string(plan.Tone)),
		zap.Any("acts", plan.Acts),
		zap.Float64("risk", plan.RiskLevel),
		zap.Float64("confidence", plan.Confidence))
	return plan
}

// UpdatePlan derives a new plan from an existing one. The original is never
// mutated; the derived plan records its ancestor in Meta.
func (p *MessagePlanner) UpdatePlan(original *MessagePlan, newTone ToneType,
	extraPoints []ContentPoint, extraConstraints []MessageConstraint) *MessagePlan {

	tone := original.Tone
	if newTone != "" {
		tone = newTone
	}

	points := append([]ContentPoint(nil), original.ContentPoints...)
	points = append(points, extraPoints...)
	if len(points) > p.config.MaxContentPoints {
		points = points[:p.config.MaxContentPoints]
	}

	constraints := append([]MessageConstraint(nil), original.Constraints...)
	constraints = append(constraints, extraConstraints...)
	if len(constraints) > p.config.MaxConstraints {
		constraints = constraints[:p.config.MaxConstraints]
	}

	meta := make(map[string]string, len(original.Meta)+1)
	for k, v := range original.Meta {
		meta[k] = v
	}
	meta["original_plan_id"] = original.ID

	return &MessagePlan{
		ID:            newPlanID(),
		SituationID:   original.SituationID,
		Acts:          append([]DialogueAct(nil), original.Acts...),
		PrimaryIntent: original.PrimaryIntent,
		Tone:          tone,
		ContentPoints: points,
		Constraints:   constraints,
		RiskLevel:     original.RiskLevel,
		Confidence:    original.Confidence,
		Meta:          meta,
	}
}

func (p *MessagePlanner) primaryIntent(acts []DialogueAct, situation *SituationModel) string {
	desc, ok := actIntentMap[acts[0]]
	if !ok {
		desc = "engage with the user"
	}
	if len(situation.Intentions) > 0 {
		desc += " (for the " + situation.Intentions[0].Goal + " request)"
	}
	return desc
}

// determineTone applies the tone precedence: caution under risk, then the
// emotional reading, then the primary act's character, then topic formality.
func (p *MessagePlanner) determineTone(acts []DialogueAct, situation *SituationModel) ToneType {
	if situation.HasHighRisk(p.config.RiskCautionLevel) {
		return ToneCautious
	}

	if em := situation.Emotion; em != nil {
		switch {
		case em.Valence < -0.5:
			return ToneSupportive
		case em.Valence < -0.2:
			return ToneEmpathic
		case em.Valence > 0.5:
			return ToneEnthusiastic
		case em.Valence > 0.2:
			return ToneCasual
		}
	}

	primary := acts[0]
	switch {
	case primary.IsEmotional():
		return ToneEmpathic
	case primary == ActWarn:
		return ToneSerious
	case primary.IsBoundary():
		return ToneFormal
	case primary == ActGreet || primary == ActCloseConversation:
		return ToneCasual
	}

	switch situation.TopicDomain {
	case "work", "health", "education":
		return ToneFormal
	}
	return p.config.DefaultTone
}

func (p *MessagePlanner) contentPoints(actResult ActSelectionResult, situation *SituationModel) []ContentPoint {
	var points []ContentPoint
	priority := 1

	for _, act := range actResult.PrimaryActs {
		if cp, ok := actContentMap[act]; ok {
			cp.Priority = priority
			cp.Required = true
			points = append(points, cp)
			priority++
		}
	}
	for _, act := range actResult.SecondaryActs {
		if cp, ok := actContentMap[act]; ok {
			cp.Priority = priority
			cp.Required = false
			points = append(points, cp)
			priority++
		}
	}

	if highest := situation.HighestRisk(); highest != nil && highest.Level > 0.5 {
		points = append(points, ContentPoint{
			Key:      "risk_awareness",
			Value:    "be careful about the " + highest.Category + " risk",
			Priority: priority,
			Required: true,
		})
	}

	if em := situation.Emotion; em != nil && em.Valence < -0.3 {
		hasEmpathy := false
		for _, cp := range points {
			if cp.Key == "empathy" {
				hasEmpathy = true
				break
			}
		}
		if !hasEmpathy {
			points = append(points, ContentPoint{
				Key:      "emotional_support",
				Value:    "acknowledge the user's emotional state",
				Priority: 1,
				Required: true,
			})
		}
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Priority < points[j].Priority
	})
	if len(points) > p.config.MaxContentPoints {
		points = points[:p.config.MaxContentPoints]
	}
	return points
}

func (p *MessagePlanner) constraints(actResult ActSelectionResult, situation *SituationModel) []MessageConstraint {
	var constraints []MessageConstraint

	for _, risk := range situation.Risks {
		c, ok := riskConstraintMap[risk.Category]
		if !ok {
			continue
		}
		switch {
		case risk.Level > 0.8:
			c.Severity = SeverityCritical
		case risk.Level > 0.5:
			c.Severity = SeverityHigh
		case risk.Level > 0.3:
			c.Severity = SeverityMedium
		default:
			c.Severity = SeverityLow
		}
		constraints = append(constraints, c)
	}

	for _, act := range actResult.PrimaryActs {
		switch act {
		case ActRefuse:
			constraints = append(constraints, MessageConstraint{
				Type: ConstraintStyle, Description: "decline politely with an explanation", Severity: SeverityHigh,
			})
		case ActWarn:
			constraints = append(constraints, MessageConstraint{
				Type: ConstraintSafety, Description: "make the warning clear and understandable", Severity: SeverityHigh,
			})
		case ActEmpathize:
			constraints = append(constraints, MessageConstraint{
				Type: ConstraintTone, Description: "be warm and understanding", Severity: SeverityMedium,
			})
		}
	}

	constraints = append(constraints, MessageConstraint{
		Type: ConstraintEthical, Description: "be honest and transparent", Severity: SeverityHigh,
	})

	if len(constraints) > p.config.MaxConstraints {
		constraints = constraints[:p.config.MaxConstraints]
	}
	return constraints
}

// confidence blends act-selection confidence 40%, understanding 30%, inverse
// risk 20%, and a flat bonus for having any acts at all.
func (p *MessagePlanner) confidence(actResult ActSelectionResult, situation *SituationModel, riskLevel float64) float64 {
	confidence := actResult.Confidence*0.4 +
		situation.UnderstandingScore*0.3 +
		(1.0-riskLevel)*0.2
	if len(actResult.PrimaryActs) > 0 {
		confidence += 0.1
	}
	return clamp01(confidence)
}
