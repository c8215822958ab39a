package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"palaver/internal/construction"
	"palaver/internal/dialogue"
	"palaver/internal/episode"
	"palaver/internal/generate"
	"palaver/internal/logging"
	"palaver/internal/risk"
)

// ErrNotDurablyLogged is returned when a turn's episode could not be
// persisted even after retries. The response was still produced; the caller
// decides whether an unlogged turn may be delivered.
var ErrNotDurablyLogged = errors.New("episode not durably logged")

const saveAttempts = 3

// actFallbacks is the minimal safe text per primary act, used when no
// construction can render the plan or the turn was rejected.
var actFallbacks = map[dialogue.DialogueAct]string{
	dialogue.ActInform:      "I see. Let me share what I know.",
	dialogue.ActExplain:     "Let me try to explain.",
	dialogue.ActClarify:     "Let's clear that up.",
	dialogue.ActAsk:         "There's something I'd like to ask.",
	dialogue.ActConfirm:     "I'd like to confirm that.",
	dialogue.ActEmpathize:   "I understand, that sounds difficult.",
	dialogue.ActEncourage:   "You can do this, I believe in you.",
	dialogue.ActComfort:     "I'm here, things can get better.",
	dialogue.ActSuggest:     "I have a suggestion.",
	dialogue.ActWarn:        "There's something you should be careful about.",
	dialogue.ActAdvise:      "Here's my advice.",
	dialogue.ActRefuse:      "I'm afraid I can't help with that.",
	dialogue.ActLimit:       "There are limits to what I can do here.",
	dialogue.ActDeflect:     "Shall we look at something else?",
	dialogue.ActAcknowledge: "I understand.",
	dialogue.ActApologize:   "I'm sorry.",
	dialogue.ActThank:       "Thank you.",
}

// TurnResult is everything one processed turn produced.
type TurnResult struct {
	Output     string
	Episode    *episode.EpisodeLog
	Situation  *dialogue.SituationModel
	Plan       *dialogue.MessagePlan
	Assessment *risk.Assessment
	Approval   *risk.ApprovalResult
	Critique   *CritiqueResult
}

// Deps are the pipeline's collaborators, injected so tests can substitute
// any stage.
type Deps struct {
	Situations *dialogue.SituationBuilder
	Acts       *dialogue.ActSelector
	Planner    *dialogue.MessagePlanner
	Risks      *risk.Scorer
	Approver   *risk.Approver
	Catalog    *construction.Catalog
	Selector   *construction.Selector
	Realizer   construction.Realizer
	Critic     *Critic
	Episodes   *episode.Store
	Generator  generate.Generator
}

// Pipeline is the per-turn orchestrator. It is stateless across turns; all
// cross-turn memory lives in the stores.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New builds a pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Realizer == nil {
		deps.Realizer = construction.NewTemplateRealizer()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger.Named("pipeline")}
}

// Process runs one user turn through the full pipeline. Exactly one episode
// is logged per call, on every path including panic and cancellation.
func (p *Pipeline) Process(ctx context.Context, input dialogue.TurnInput) (result *TurnResult, err error) {
	defer logging.StartTimer(logging.CategoryPipeline, "turn").Stop()

	b := episode.Start(input.SessionID, input.Text)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline panic", zap.Any("panic", r))
			b.AddError(fmt.Sprintf("panic: %v", r))
			markUnassessed(b)
			b.SetOutput(p.cfg.FallbackResponse)
			b.MarkFallback()
			ep := b.Finalize()
			err = p.saveEpisode(ctx, ep)
			result = &TurnResult{Output: ep.OutputText, Episode: ep}
		}
	}()
	return p.run(ctx, input, b)
}

func (p *Pipeline) run(ctx context.Context, input dialogue.TurnInput, b *episode.Builder) (*TurnResult, error) {
	// Situation.
	situation, err := p.deps.Situations.Build(ctx, input)
	if err != nil {
		if ctx.Err() != nil {
			return p.abandon(ctx, b)
		}
		b.AddError("situation: " + err.Error())
		markUnassessed(b)
		b.SetOutput(p.cfg.FallbackResponse)
		b.MarkFallback()
		ep := b.Finalize()
		return &TurnResult{Output: ep.OutputText, Episode: ep}, p.saveEpisode(ctx, ep)
	}
	if len(situation.Intentions) > 0 {
		b.SetIntent(situation.Intentions[0].Goal, situation.Intentions[0].Confidence)
	}
	b.SetSituation(situation, marshalJSON(situation))

	// Acts and plan.
	actResult := p.deps.Acts.Select(situation, nil)
	plan := p.deps.Planner.Plan(actResult, situation)
	b.SetDecision(plan.Acts, string(actResult.Strategy), plan, marshalJSON(plan))

	result := &TurnResult{Situation: situation, Plan: plan}

	// Risk and approval.
	var approval *risk.ApprovalResult
	if p.cfg.EnableRiskAssessment {
		assessment := p.deps.Risks.Score(plan, situation)
		result.Assessment = assessment
		b.SetRisk(assessment.ID, assessment.OverallScore, string(assessment.OverallLevel), len(assessment.Factors))

		if p.cfg.EnableApprovalCheck {
			approval = p.deps.Approver.Approve(assessment)
			result.Approval = approval
			b.SetApproval(episode.ApprovalStatus(approval.Decision))

			if approval.Decision == risk.DecisionRejected {
				return p.reject(ctx, b, result)
			}
		}
	}
	if ctx.Err() != nil {
		return p.abandon(ctx, b)
	}

	// Construction and render.
	output, cons, usedFallback := p.render(ctx, b, plan, situation, approval)

	// Critique with a bounded revision loop.
	revisions := 0
	if p.cfg.EnableSelfCritique && !usedFallback {
		output, revisions, usedFallback = p.critiqueLoop(b, output, plan, result)
	}
	b.SetRevisions(revisions)

	if p.cfg.MaxOutputLength > 0 {
		output = truncateOutput(output, p.cfg.MaxOutputLength)
	}
	b.SetOutput(output)
	if usedFallback {
		b.MarkFallback()
	}

	if cons != nil {
		p.deps.Catalog.RecordOutcome(cons.ID, !usedFallback)
	}

	ep := b.Finalize()
	result.Output = output
	result.Episode = ep
	return result, p.saveEpisode(ctx, ep)
}

// render picks a construction and realizes it. Returns the text, the chosen
// construction (nil when none), and whether a fallback produced the text.
func (p *Pipeline) render(ctx context.Context, b *episode.Builder, plan *dialogue.MessagePlan,
	situation *dialogue.SituationModel, approval *risk.ApprovalResult) (string, *construction.Construction, bool) {

	values := construction.SlotValues(plan, situation)

	// Needs-review degrades to the most trusted human construction instead
	// of exploring.
	if approval != nil && approval.Decision == risk.DecisionNeedsReview {
		cons, err := p.deps.Selector.SelectSafest(plan)
		if err != nil {
			return p.fallbackText(plan), nil, true
		}
		b.SetConstruction(cons.ID, string(cons.Level), constructionSource(cons.Source))
		text, err := p.deps.Realizer.Realize(cons, values)
		if err != nil {
			b.AddError("realize: " + err.Error())
			return p.fallbackText(plan), cons, true
		}
		return text, cons, false
	}

	cand, err := p.deps.Selector.Select(plan, nil)
	if err != nil {
		if errors.Is(err, construction.ErrNoViableConstruction) && p.deps.Generator != nil {
			if text, genErr := p.deps.Generator.Generate(ctx, plan, situation); genErr == nil {
				b.SetConstruction("", "", "")
				return text, nil, false
			} else if !errors.Is(genErr, generate.ErrGeneratorDisabled) {
				b.AddError("generate: " + genErr.Error())
			}
		}
		return p.fallbackText(plan), nil, true
	}
	cons := cand.Construction
	b.SetConstruction(cons.ID, string(cons.Level), constructionSource(cons.Source))
	text, err := p.deps.Realizer.Realize(cons, values)
	if err != nil {
		b.AddError("realize: " + err.Error())
		return p.fallbackText(plan), cons, true
	}
	return text, cons, false
}

// critiqueLoop runs the bounded revise cycle. On exhaustion or a terminal
// failure the safe fallback construction takes over.
func (p *Pipeline) critiqueLoop(b *episode.Builder, output string, plan *dialogue.MessagePlan,
	result *TurnResult) (string, int, bool) {

	revisions := 0
	for attempt := 0; ; attempt++ {
		critique := p.deps.Critic.Critique(output, plan)
		result.Critique = &critique
		outcome := p.deps.Critic.Outcome(critique, output)

		switch outcome.Kind {
		case OutcomeAccepted:
			return output, revisions, false
		case OutcomeRevise:
			if attempt >= p.cfg.MaxRevisionAttempts {
				b.AddError("critique: revision attempts exhausted: " + outcome.Reason)
				return p.safeFallback(b, plan), revisions, true
			}
			revisions++
			output = outcome.Revised
		case OutcomeFailed:
			b.AddError("critique: " + outcome.Reason)
			return p.safeFallback(b, plan), revisions, true
		}
	}
}

// reject finishes a rejected turn: safe fallback text, fallback construction
// on record, episode saved.
func (p *Pipeline) reject(ctx context.Context, b *episode.Builder, result *TurnResult) (*TurnResult, error) {
	output := p.safeFallback(b, result.Plan)
	b.SetOutput(output)
	b.MarkFallback()
	ep := b.Finalize()
	result.Output = output
	result.Episode = ep
	p.logger.Info("turn rejected",
		zap.String("plan_id", result.Plan.ID),
		zap.String("risk_level", string(result.Assessment.OverallLevel)))
	return result, p.saveEpisode(ctx, ep)
}

// abandon writes the minimal episode for a cancelled turn.
func (p *Pipeline) abandon(ctx context.Context, b *episode.Builder) (*TurnResult, error) {
	b.MarkAbandoned()
	ep := b.Finalize()
	// The turn context is cancelled; persist under a fresh short context so
	// the episode is not lost with the turn.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	return &TurnResult{Episode: ep}, p.saveEpisode(saveCtx, ep)
}

// safeFallback records the reserved safe construction and returns the
// per-act fallback text.
func (p *Pipeline) safeFallback(b *episode.Builder, plan *dialogue.MessagePlan) string {
	if cons := p.deps.Catalog.Fallback(); cons != nil {
		b.SetConstruction(cons.ID, string(cons.Level), constructionSource(cons.Source))
	}
	return p.fallbackText(plan)
}

func (p *Pipeline) fallbackText(plan *dialogue.MessagePlan) string {
	if text, ok := actFallbacks[plan.PrimaryAct()]; ok {
		return text
	}
	return p.cfg.FallbackResponse
}

// saveEpisode retries the append a few times; losing the episode breaks the
// learning loop, so exhaustion surfaces as ErrNotDurablyLogged.
func (p *Pipeline) saveEpisode(ctx context.Context, ep *episode.EpisodeLog) error {
	if p.deps.Episodes == nil {
		return nil
	}
	var lastErr error
	for attempt := 0; attempt < saveAttempts; attempt++ {
		if lastErr = p.deps.Episodes.Save(ctx, ep); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrNotDurablyLogged, lastErr)
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	p.logger.Error("episode save failed", zap.String("id", ep.ID), zap.Error(lastErr))
	return fmt.Errorf("%w: %v", ErrNotDurablyLogged, lastErr)
}

// markUnassessed completes the risk/approval pair for a turn that never
// reached risk scoring. Every episode carries the pair, even on the fallback
// branches, so the learning loop never reads a half-assessed turn as a win.
func markUnassessed(b *episode.Builder) {
	b.SetRisk("", 0, string(risk.LevelLow), 0)
	b.SetApproval(episode.StatusRejected)
}

// truncateOutput caps s at max runes with an ellipsis, never splitting a
// multi-byte rune.
func truncateOutput(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func constructionSource(src construction.Source) episode.ConstructionSource {
	switch src {
	case construction.SourceLearned:
		return episode.SourceLearned
	case construction.SourceAdapted, construction.SourceGenerated:
		return episode.SourceAdapted
	default:
		return episode.SourceDefault
	}
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
