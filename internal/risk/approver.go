package risk

import (
	"time"

	"go.uber.org/zap"
)

// Decision is the closed set of approval outcomes.
type Decision string

const (
	DecisionApproved     Decision = "approved"
	DecisionApprovedMods Decision = "approved_with_modifications"
	DecisionNeedsReview  Decision = "needs_review"
	DecisionRejected     Decision = "rejected"
)

// ApprovalResult is the approver's terminal verdict for one turn. Never
// mutated after creation; Override produces a new result.
type ApprovalResult struct {
	ID             string    `json:"id"`
	AssessmentID   string    `json:"assessment_id"`
	Decision       Decision  `json:"decision"`
	Approver       string    `json:"approver"` // "auto" or "human"
	Modifications  []string  `json:"modifications,omitempty"`
	DrivingFactors []Factor  `json:"driving_factors,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	DecidedAt      time.Time `json:"decided_at"`
}

// Approved reports whether the turn may proceed to construction selection.
func (r *ApprovalResult) Approved() bool {
	return r.Decision == DecisionApproved || r.Decision == DecisionApprovedMods
}

// Approver applies the level-keyed policy table to risk assessments.
type Approver struct {
	logger *zap.Logger
}

// NewApprover builds an approver.
func NewApprover(logger *zap.Logger) *Approver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Approver{logger: logger.Named("approver")}
}

// Approve turns an assessment into an approval result:
//
//	low      -> approved
//	medium   -> approved, unless any factor is critical, then needs-review
//	high     -> approved-with-modifications when suggestions exist, else needs-review
//	critical -> rejected
func (a *Approver) Approve(assessment *Assessment) *ApprovalResult {
	result := &ApprovalResult{
		ID:           newApprovalID(),
		AssessmentID: assessment.ID,
		Approver:     "auto",
		DecidedAt:    time.Now().UTC(),
	}

	switch assessment.OverallLevel {
	case LevelLow:
		result.Decision = DecisionApproved
		result.Reason = "risk low"

	case LevelMedium:
		if criticals := assessment.CriticalFactors(); len(criticals) > 0 {
			result.Decision = DecisionNeedsReview
			result.DrivingFactors = criticals
			result.Reason = "medium risk with a critical factor"
		} else {
			result.Decision = DecisionApproved
			result.Reason = "medium risk, no critical factors"
		}

	case LevelHigh:
		mods := a.suggestModifications(assessment)
		if len(mods) > 0 {
			result.Decision = DecisionApprovedMods
			result.Modifications = mods
			result.Reason = "high risk, mitigations applied"
		} else {
			result.Decision = DecisionNeedsReview
			result.Reason = "high risk, no automatic mitigation available"
		}
		result.DrivingFactors = highFactors(assessment)

	default: // LevelCritical
		result.Decision = DecisionRejected
		result.DrivingFactors = highFactors(assessment)
		result.Reason = "critical risk"
	}

	a.logger.Info("approval decided",
		zap.String("assessment_id", assessment.ID),
		zap.String("decision", string(result.Decision)),
		zap.String("level", string(assessment.OverallLevel)))
	return result
}

// Override replaces a decision through the explicit human escalation path.
// The override is a new result referencing the same assessment.
func (a *Approver) Override(original *ApprovalResult, decision Decision, reason string) *ApprovalResult {
	a.logger.Warn("approval overridden",
		zap.String("assessment_id", original.AssessmentID),
		zap.String("from", string(original.Decision)),
		zap.String("to", string(decision)),
		zap.String("reason", reason))
	return &ApprovalResult{
		ID:             newApprovalID(),
		AssessmentID:   original.AssessmentID,
		Decision:       decision,
		Approver:       "human",
		DrivingFactors: original.DrivingFactors,
		Reason:         reason,
		DecidedAt:      time.Now().UTC(),
	}
}

// suggestModifications proposes one mitigation per elevated risk category.
func (a *Approver) suggestModifications(assessment *Assessment) []string {
	var mods []string
	for _, f := range assessment.Factors {
		if f.Score < 0.5 {
			continue
		}
		switch f.Category {
		case CategoryEmotional, CategoryTrust:
			mods = append(mods, "soften the tone")
		case CategoryEthical:
			mods = append(mods, "state ethical limits explicitly")
		case CategorySafety:
			mods = append(mods, "include professional help information")
		case CategoryFactual:
			mods = append(mods, "simplify the message and avoid certainty claims")
		case CategoryPrivacy:
			mods = append(mods, "add a privacy notice")
		case CategoryBoundary, CategoryStructure:
			mods = append(mods, "state the scope limits of the response")
		}
	}
	return mods
}

func highFactors(assessment *Assessment) []Factor {
	var out []Factor
	for _, f := range assessment.Factors {
		if f.IsHigh() {
			out = append(out, f)
		}
	}
	return out
}

func newApprovalID() string { return shortID("appr_") }
