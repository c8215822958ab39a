// Package episode records the complete trace of every conversational turn
// and persists it append-only. Episodes are the ground truth the learning
// loop aggregates from; live pipeline counters are only caches of what is
// logged here.
package episode

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"palaver/internal/dialogue"
)

// ConstructionSource is the provenance of the construction an episode used.
type ConstructionSource string

const (
	SourceDefault ConstructionSource = "human_default"
	SourceLearned ConstructionSource = "learned"
	SourceAdapted ConstructionSource = "adapted"
)

// ApprovalStatus mirrors the approval decision for the episode record, with
// an extra value for turns that exited before risk scoring ran.
type ApprovalStatus string

const (
	StatusApproved     ApprovalStatus = "approved"
	StatusApprovedMods ApprovalStatus = "approved_with_modifications"
	StatusNeedsReview  ApprovalStatus = "needs_review"
	StatusRejected     ApprovalStatus = "rejected"
	StatusNotChecked   ApprovalStatus = "not_checked"
)

// ImplicitFeedback captures behaviorally inferred signals observed after the
// response was delivered. The orchestrator or a short-lived follow-up
// observer fills it in; the aggregator only reads it.
type ImplicitFeedback struct {
	ConversationContinued bool `json:"conversation_continued"`
	UserRephrased         bool `json:"user_rephrased"`
	UserThanked           bool `json:"user_thanked"`
	UserComplained        bool `json:"user_complained"`
	EndedAbruptly         bool `json:"ended_abruptly"`
}

// SignalScore folds the sub-signals into one value in [-1, 1].
func (f ImplicitFeedback) SignalScore() float64 {
	score := 0.0
	if f.ConversationContinued {
		score += 0.3
	}
	if f.UserThanked {
		score += 0.4
	}
	if f.UserRephrased {
		score -= 0.3
	}
	if f.UserComplained {
		score -= 0.5
	}
	if f.EndedAbruptly {
		score -= 0.4
	}
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}

// IsPositive reports whether the aggregate signal is clearly positive.
func (f ImplicitFeedback) IsPositive() bool { return f.SignalScore() > 0.2 }

// IsNegative reports whether the aggregate signal is clearly negative.
func (f ImplicitFeedback) IsNegative() bool { return f.SignalScore() < -0.2 }

// AggregatedMarks records which of an episode's signals the feedback
// aggregator has already folded into construction statistics. A re-opened
// episode contributes only the difference between its current feedback and
// these marks, so one turn never counts twice.
type AggregatedMarks struct {
	UseCounted bool             `json:"use_counted,omitempty"`
	Explicit   int              `json:"explicit,omitempty"`
	Implicit   ImplicitFeedback `json:"implicit,omitempty"`
}

// RiskRecord is the serialized risk outcome of a turn.
type RiskRecord struct {
	AssessmentID string  `json:"assessment_id,omitempty"`
	Score        float64 `json:"score"`
	Level        string  `json:"level"`
	FactorCount  int     `json:"factor_count"`
}

// Meta carries the odds and ends of a turn: errors, revision count, stage
// durations, abandonment.
type Meta struct {
	RevisionCount int               `json:"revision_count"`
	Errors        []string          `json:"errors,omitempty"`
	Abandoned     bool              `json:"abandoned,omitempty"`
	UsedFallback  bool              `json:"used_fallback,omitempty"`
	DurationMS    int64             `json:"duration_ms,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// EpisodeLog is one turn's complete record: what came in, what the pipeline
// decided at each stage, what went out, and what feedback later attached.
// Append-only; only the feedback fields may be set post-hoc, within a
// bounded correction window.
type EpisodeLog struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// Input.
	InputText        string  `json:"input_text"`
	IntentPrimary    string  `json:"intent_primary"`
	IntentConfidence float64 `json:"intent_confidence"`

	// Situation snapshot.
	SituationID        string  `json:"situation_id,omitempty"`
	TopicDomain        string  `json:"topic_domain,omitempty"`
	UnderstandingScore float64 `json:"understanding_score"`
	SituationJSON      string  `json:"situation_json,omitempty"`

	// Decision.
	Acts     []dialogue.DialogueAct `json:"acts"`
	Strategy string                 `json:"strategy,omitempty"`
	PlanID   string                 `json:"plan_id,omitempty"`
	Tone     dialogue.ToneType      `json:"tone,omitempty"`
	PlanJSON string                 `json:"plan_json,omitempty"`

	// Construction.
	ConstructionID     string             `json:"construction_id,omitempty"`
	ConstructionLevel  string             `json:"construction_level,omitempty"`
	ConstructionSource ConstructionSource `json:"construction_source,omitempty"`

	// Risk and approval.
	Risk     RiskRecord     `json:"risk"`
	Approval ApprovalStatus `json:"approval"`

	// Output.
	OutputText string `json:"output_text"`

	// Feedback.
	ExplicitFeedback *int             `json:"explicit_feedback,omitempty"` // -1, 0, +1
	Implicit         ImplicitFeedback `json:"implicit"`
	Aggregated       AggregatedMarks  `json:"aggregated,omitempty"`

	Meta Meta `json:"meta"`
}

// PrimaryAct returns the first chosen act, or "" when no act was selected.
func (e *EpisodeLog) PrimaryAct() dialogue.DialogueAct {
	if len(e.Acts) == 0 {
		return ""
	}
	return e.Acts[0]
}

// WasSuccessful applies the standard success reading of an episode: explicit
// feedback wins when present, otherwise the implicit signal decides, and an
// untouched episode counts as a success if it was approved and rendered.
func (e *EpisodeLog) WasSuccessful() bool {
	if e.ExplicitFeedback != nil {
		return *e.ExplicitFeedback > 0
	}
	if e.Implicit.IsNegative() {
		return false
	}
	return e.Approval == StatusApproved || e.Approval == StatusApprovedMods
}

// NewID returns a fresh episode id.
func NewID() string {
	u := uuid.New()
	return "eplog_" + hex.EncodeToString(u[:])[:12]
}
