// Package dialogue contains the turn-scoped decision types of the response
// pipeline: the situation model built from a user turn, the dialogue acts the
// agent can perform, and the message plan that downstream stages consume.
//
// All types here are value types owned by the turn that created them. Nothing
// in this package touches shared state.
package dialogue

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ===== DIALOGUE ACTS =====

// DialogueAct is a closed set of communicative act tags. Consumers are
// expected to switch exhaustively over these values.
type DialogueAct string

const (
	ActInform            DialogueAct = "inform"
	ActExplain           DialogueAct = "explain"
	ActClarify           DialogueAct = "clarify"
	ActAsk               DialogueAct = "ask"
	ActConfirm           DialogueAct = "confirm"
	ActEmpathize         DialogueAct = "empathize"
	ActEncourage         DialogueAct = "encourage"
	ActComfort           DialogueAct = "comfort"
	ActSuggest           DialogueAct = "suggest"
	ActWarn              DialogueAct = "warn"
	ActAdvise            DialogueAct = "advise"
	ActRefuse            DialogueAct = "refuse"
	ActLimit             DialogueAct = "limit"
	ActDeflect           DialogueAct = "deflect"
	ActAcknowledge       DialogueAct = "acknowledge"
	ActApologize         DialogueAct = "apologize"
	ActThank             DialogueAct = "thank"
	ActGreet             DialogueAct = "greet"
	ActCloseConversation DialogueAct = "close_conversation"
)

// AllActs returns every defined dialogue act in declaration order.
func AllActs() []DialogueAct {
	return []DialogueAct{
		ActInform, ActExplain, ActClarify, ActAsk, ActConfirm,
		ActEmpathize, ActEncourage, ActComfort, ActSuggest, ActWarn,
		ActAdvise, ActRefuse, ActLimit, ActDeflect, ActAcknowledge,
		ActApologize, ActThank, ActGreet, ActCloseConversation,
	}
}

// IsValid reports whether a is one of the defined act tags.
func (a DialogueAct) IsValid() bool {
	for _, act := range AllActs() {
		if a == act {
			return true
		}
	}
	return false
}

// IsEmotional reports whether the act primarily addresses the user's
// emotional state rather than informational content.
func (a DialogueAct) IsEmotional() bool {
	return a == ActEmpathize || a == ActComfort || a == ActEncourage
}

// IsBoundary reports whether the act draws a scope or policy boundary.
func (a DialogueAct) IsBoundary() bool {
	return a == ActRefuse || a == ActLimit || a == ActDeflect
}

// ===== TONE =====

// ToneType labels the overall register a rendered message should carry.
type ToneType string

const (
	ToneFormal       ToneType = "formal"
	ToneCasual       ToneType = "casual"
	ToneEmpathic     ToneType = "empathic"
	ToneSupportive   ToneType = "supportive"
	ToneNeutral      ToneType = "neutral"
	ToneCautious     ToneType = "cautious"
	ToneEnthusiastic ToneType = "enthusiastic"
	ToneSerious      ToneType = "serious"
)

// ===== SITUATION MODEL =====

// Actor is a participant in the conversation: the user, the assistant, or a
// third party the user mentioned.
type Actor struct {
	ID     string            `json:"id"`
	Role   string            `json:"role"` // "user", "assistant", "third_party"
	Name   string            `json:"name,omitempty"`
	Traits map[string]string `json:"traits,omitempty"`
}

// Intention is one inferred goal attributed to an actor, with the evidence
// that produced it.
type Intention struct {
	ID         string   `json:"id"`
	ActorID    string   `json:"actor_id"`
	Goal       string   `json:"goal"`
	Confidence float64  `json:"confidence"`
	Evidence   []string `json:"evidence,omitempty"`
}

// SituationRisk is a risk signal detected while reading the user turn, before
// any plan exists. The risk scorer later folds these into a full assessment.
type SituationRisk struct {
	Category    string  `json:"category"` // "safety", "emotional", "ethical", "relational"
	Level       float64 `json:"level"`    // 0..1
	Description string  `json:"description"`
	Mitigation  string  `json:"mitigation,omitempty"`
}

// Relationship summarizes the standing between two actors, supplied by the
// external memory subsystem.
type Relationship struct {
	ActorA  string  `json:"actor_a"`
	ActorB  string  `json:"actor_b"`
	Trust   float64 `json:"trust"`   // -1..1
	Valence float64 `json:"valence"` // -1..1
	Summary string  `json:"summary,omitempty"`
}

// TemporalContext carries turn-counting information for the session.
type TemporalContext struct {
	TurnNumber int           `json:"turn_number"`
	Elapsed    time.Duration `json:"elapsed"`
}

// EmotionalState is a read-only PAD (pleasure/arousal/dominance) snapshot.
// It is supplied by the external affect subsystem or approximated from the
// turn text when no external snapshot is available.
type EmotionalState struct {
	Valence        float64 `json:"valence"`   // -1..1
	Arousal        float64 `json:"arousal"`   // -1..1
	Dominance      float64 `json:"dominance"` // -1..1
	PrimaryEmotion string  `json:"primary_emotion,omitempty"`
	Confidence     float64 `json:"confidence"`
}

// SituationModel is the fused picture of one user turn. It is built once by
// the SituationBuilder and immutable afterwards.
type SituationModel struct {
	ID                 string          `json:"id"`
	Actors             []Actor         `json:"actors"`
	Intentions         []Intention     `json:"intentions"`
	Risks              []SituationRisk `json:"risks"`
	Relationships      []Relationship  `json:"relationships,omitempty"`
	Temporal           TemporalContext `json:"temporal"`
	Emotion            *EmotionalState `json:"emotion,omitempty"`
	TopicDomain        string          `json:"topic_domain"`
	KeyEntities        []string        `json:"key_entities,omitempty"`
	UnderstandingScore float64         `json:"understanding_score"`
	ContextSummary     string          `json:"context_summary,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// HighestRisk returns the situation risk with the greatest level, or nil when
// no risks were detected.
func (s *SituationModel) HighestRisk() *SituationRisk {
	var highest *SituationRisk
	for i := range s.Risks {
		if highest == nil || s.Risks[i].Level > highest.Level {
			highest = &s.Risks[i]
		}
	}
	return highest
}

// HasHighRisk reports whether any detected risk meets the given threshold.
func (s *SituationModel) HasHighRisk(threshold float64) bool {
	for _, r := range s.Risks {
		if r.Level >= threshold {
			return true
		}
	}
	return false
}

// PrimaryIntent returns the goal of the highest-confidence intention, or ""
// when nothing was inferred.
func (s *SituationModel) PrimaryIntent() string {
	best := -1.0
	goal := ""
	for _, in := range s.Intentions {
		if in.Confidence > best {
			best = in.Confidence
			goal = in.Goal
		}
	}
	return goal
}

// ===== MESSAGE PLAN =====

// ConstraintType categorizes a message constraint.
type ConstraintType string

const (
	ConstraintEthical ConstraintType = "ethical"
	ConstraintStyle   ConstraintType = "style"
	ConstraintContent ConstraintType = "content"
	ConstraintSafety  ConstraintType = "safety"
	ConstraintTone    ConstraintType = "tone"
)

// ConstraintSeverity orders how binding a constraint is.
type ConstraintSeverity string

const (
	SeverityLow      ConstraintSeverity = "low"
	SeverityMedium   ConstraintSeverity = "medium"
	SeverityHigh     ConstraintSeverity = "high"
	SeverityCritical ConstraintSeverity = "critical"
)

// ContentPoint is one thing the rendered message must (or may) cover.
type ContentPoint struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Priority int    `json:"priority"` // 1 is highest
	Required bool   `json:"required"`
}

// MessageConstraint restricts how the message may be phrased.
type MessageConstraint struct {
	Type        ConstraintType     `json:"type"`
	Description string             `json:"description"`
	Severity    ConstraintSeverity `json:"severity"`
}

// MessagePlan is the full plan for one response: which acts to perform, in
// what tone, covering which content points, under which constraints. Built
// once per turn and treated as immutable; UpdatePlan on the planner derives a
// new plan rather than mutating.
type MessagePlan struct {
	ID            string              `json:"id"`
	SituationID   string              `json:"situation_id"`
	Acts          []DialogueAct       `json:"acts"`
	PrimaryIntent string              `json:"primary_intent"`
	Tone          ToneType            `json:"tone"`
	ContentPoints []ContentPoint      `json:"content_points"`
	Constraints   []MessageConstraint `json:"constraints"`
	RiskLevel     float64             `json:"risk_level"` // 0..1 estimate from the situation
	Confidence    float64             `json:"confidence"` // 0..1
	Meta          map[string]string   `json:"meta,omitempty"`
}

// PrimaryAct returns the first planned act, or ActAcknowledge when the plan
// is somehow empty.
func (p *MessagePlan) PrimaryAct() DialogueAct {
	if len(p.Acts) == 0 {
		return ActAcknowledge
	}
	return p.Acts[0]
}

// HasAct reports whether the plan includes the given act.
func (p *MessagePlan) HasAct(act DialogueAct) bool {
	for _, a := range p.Acts {
		if a == act {
			return true
		}
	}
	return false
}

// RequiredPoints returns only the content points marked required.
func (p *MessagePlan) RequiredPoints() []ContentPoint {
	var out []ContentPoint
	for _, cp := range p.ContentPoints {
		if cp.Required {
			out = append(out, cp)
		}
	}
	return out
}

// ===== ID GENERATION =====

// shortID returns prefix plus the first 12 hex characters of a fresh UUID.
func shortID(prefix string) string {
	u := uuid.New()
	return prefix + hex.EncodeToString(u[:])[:12]
}

func newSituationID() string { return shortID("sit_") }
func newIntentionID() string { return shortID("int_") }
func newPlanID() string      { return shortID("plan_") }
