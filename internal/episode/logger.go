package episode

import (
	"time"

	"palaver/internal/dialogue"
)

// Builder accumulates one turn's episode stage by stage. The orchestrator
// calls the setters as stages complete and Finalize exactly once, on every
// exit path, so the episode is whole even when the turn aborts early.
type Builder struct {
	ep    EpisodeLog
	start time.Time
}

// Start opens a builder for one turn.
func Start(sessionID, inputText string) *Builder {
	now := time.Now()
	return &Builder{
		ep: EpisodeLog{
			ID:        NewID(),
			SessionID: sessionID,
			Timestamp: now,
			InputText: inputText,
			Approval:  StatusNotChecked,
		},
		start: now,
	}
}

// SetIntent records the recognized primary intent.
func (b *Builder) SetIntent(goal string, confidence float64) *Builder {
	b.ep.IntentPrimary = goal
	b.ep.IntentConfidence = confidence
	return b
}

// SetSituation records the situation snapshot.
func (b *Builder) SetSituation(situation *dialogue.SituationModel, situationJSON string) *Builder {
	b.ep.SituationID = situation.ID
	b.ep.TopicDomain = situation.TopicDomain
	b.ep.UnderstandingScore = situation.UnderstandingScore
	b.ep.SituationJSON = situationJSON
	return b
}

// SetDecision records the act selection and plan.
func (b *Builder) SetDecision(acts []dialogue.DialogueAct, strategy string, plan *dialogue.MessagePlan, planJSON string) *Builder {
	b.ep.Acts = acts
	b.ep.Strategy = strategy
	if plan != nil {
		b.ep.PlanID = plan.ID
		b.ep.Tone = plan.Tone
	}
	b.ep.PlanJSON = planJSON
	return b
}

// SetConstruction records which construction rendered the turn.
func (b *Builder) SetConstruction(id, level string, source ConstructionSource) *Builder {
	b.ep.ConstructionID = id
	b.ep.ConstructionLevel = level
	b.ep.ConstructionSource = source
	return b
}

// SetRisk records the risk outcome.
func (b *Builder) SetRisk(assessmentID string, score float64, level string, factors int) *Builder {
	b.ep.Risk = RiskRecord{
		AssessmentID: assessmentID,
		Score:        score,
		Level:        level,
		FactorCount:  factors,
	}
	return b
}

// SetApproval records the approval decision.
func (b *Builder) SetApproval(status ApprovalStatus) *Builder {
	b.ep.Approval = status
	return b
}

// SetOutput records the delivered text.
func (b *Builder) SetOutput(text string) *Builder {
	b.ep.OutputText = text
	return b
}

// AddError appends a stage error to the episode's meta.
func (b *Builder) AddError(msg string) *Builder {
	b.ep.Meta.Errors = append(b.ep.Meta.Errors, msg)
	return b
}

// SetRevisions records how many critique revisions ran.
func (b *Builder) SetRevisions(n int) *Builder {
	b.ep.Meta.RevisionCount = n
	return b
}

// MarkFallback notes that the safe fallback produced the output.
func (b *Builder) MarkFallback() *Builder {
	b.ep.Meta.UsedFallback = true
	return b
}

// MarkAbandoned notes that the turn was cancelled before completion.
func (b *Builder) MarkAbandoned() *Builder {
	b.ep.Meta.Abandoned = true
	return b
}

// Finalize stamps the duration and returns the completed episode.
func (b *Builder) Finalize() *EpisodeLog {
	b.ep.Meta.DurationMS = time.Since(b.start).Milliseconds()
	ep := b.ep
	return &ep
}
