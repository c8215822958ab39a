package risk

import (
	"testing"
)

func assessmentAt(level Level, factors ...Factor) *Assessment {
	return &Assessment{
		ID:           "assess_test",
		PlanID:       "plan_test",
		Factors:      factors,
		OverallLevel: level,
	}
}

func TestApproveLowRisk(t *testing.T) {
	a := NewApprover(nil)

	result := a.Approve(assessmentAt(LevelLow))
	if result.Decision != DecisionApproved {
		t.Errorf("Decision = %v, want approved", result.Decision)
	}
	if !result.Approved() {
		t.Error("Approved() = false")
	}
	if result.Approver != "auto" {
		t.Errorf("Approver = %q, want auto", result.Approver)
	}
}

func TestApproveMediumWithoutCriticalFactor(t *testing.T) {
	a := NewApprover(nil)

	result := a.Approve(assessmentAt(LevelMedium,
		Factor{Category: CategoryTrust, Score: 0.4}))
	if result.Decision != DecisionApproved {
		t.Errorf("Decision = %v, want approved", result.Decision)
	}
}

func TestApproveMediumWithCriticalFactorNeedsReview(t *testing.T) {
	a := NewApprover(nil)

	result := a.Approve(assessmentAt(LevelMedium,
		Factor{Category: CategorySafety, Score: 0.9}))
	if result.Decision != DecisionNeedsReview {
		t.Errorf("Decision = %v, want needs_review", result.Decision)
	}
	if len(result.DrivingFactors) != 1 {
		t.Errorf("DrivingFactors = %v, want the critical safety factor", result.DrivingFactors)
	}
	if result.Approved() {
		t.Error("needs_review must not count as approved")
	}
}

func TestApproveHighWithMitigations(t *testing.T) {
	a := NewApprover(nil)

	result := a.Approve(assessmentAt(LevelHigh,
		Factor{Category: CategorySafety, Score: 0.6},
		Factor{Category: CategoryTrust, Score: 0.5}))
	if result.Decision != DecisionApprovedMods {
		t.Errorf("Decision = %v, want approved_with_modifications", result.Decision)
	}
	if !result.Approved() {
		t.Error("approved with modifications must count as approved")
	}

	wantMods := map[string]bool{
		"include professional help information": false,
		"soften the tone":                       false,
	}
	for _, m := range result.Modifications {
		wantMods[m] = true
	}
	for mod, seen := range wantMods {
		if !seen {
			t.Errorf("missing modification %q in %v", mod, result.Modifications)
		}
	}
}

func TestApproveHighWithoutMitigationsNeedsReview(t *testing.T) {
	a := NewApprover(nil)

	// No factor clears the 0.5 suggestion bar, so nothing can be mitigated.
	result := a.Approve(assessmentAt(LevelHigh,
		Factor{Category: CategorySafety, Score: 0.4}))
	if result.Decision != DecisionNeedsReview {
		t.Errorf("Decision = %v, want needs_review", result.Decision)
	}
}

func TestApproveCriticalRejects(t *testing.T) {
	a := NewApprover(nil)

	result := a.Approve(assessmentAt(LevelCritical,
		Factor{Category: CategorySafety, Score: 0.95}))
	if result.Decision != DecisionRejected {
		t.Errorf("Decision = %v, want rejected", result.Decision)
	}
	if result.Approved() {
		t.Error("rejected must not count as approved")
	}
	if len(result.DrivingFactors) == 0 {
		t.Error("rejection should name its driving factors")
	}
}

func TestOverrideProducesNewHumanResult(t *testing.T) {
	a := NewApprover(nil)

	original := a.Approve(assessmentAt(LevelCritical,
		Factor{Category: CategorySafety, Score: 0.95}))
	overridden := a.Override(original, DecisionApproved, "reviewed by operator")

	if overridden.ID == original.ID {
		t.Error("override must be a new result")
	}
	if overridden.AssessmentID != original.AssessmentID {
		t.Error("override must reference the same assessment")
	}
	if overridden.Decision != DecisionApproved || overridden.Approver != "human" {
		t.Errorf("got %v by %q, want approved by human", overridden.Decision, overridden.Approver)
	}
	if original.Decision != DecisionRejected {
		t.Error("original result was mutated")
	}
}
