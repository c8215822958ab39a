package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"palaver/internal/construction"
	"palaver/internal/dialogue"
	"palaver/internal/episode"
	"palaver/internal/feedback"
	"palaver/internal/generate"
	"palaver/internal/risk"
	"palaver/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	pipeline *Pipeline
	episodes *episode.Store
	catalog  *construction.Catalog
}

type fixtureOpts struct {
	cfg          *Config
	selectorOpts *construction.SelectorOptions
	thresholds   *risk.Thresholds
	realizer     construction.Realizer
	generator    generate.Generator
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	episodes, err := episode.NewStore(db, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg := Balanced()
	if opts.cfg != nil {
		cfg = *opts.cfg
	}
	selOpts := construction.DefaultSelectorOptions()
	if opts.selectorOpts != nil {
		selOpts = *opts.selectorOpts
	}
	thresholds := risk.DefaultThresholds()
	if opts.thresholds != nil {
		thresholds = *opts.thresholds
	}

	catalog := construction.NewCatalog()
	scorer := feedback.NewScorer(feedback.DefaultScorerParams())

	p := New(cfg, Deps{
		Situations: dialogue.NewSituationBuilder(dialogue.DefaultSituationBuilderConfig(), nil),
		Acts:       dialogue.NewActSelector(dialogue.DefaultActSelectorConfig(), nil),
		Planner:    dialogue.NewMessagePlanner(dialogue.DefaultMessagePlannerConfig(), nil),
		Risks:      risk.NewScorer(risk.DefaultWeights(), thresholds, nil),
		Approver:   risk.NewApprover(nil),
		Catalog:    catalog,
		Selector:   construction.NewSelector(catalog, nil, scorer, selOpts, nil),
		Realizer:   opts.realizer,
		Critic:     NewCritic(cfg.Critique, nil),
		Episodes:   episodes,
		Generator:  opts.generator,
	}, nil)

	return &fixture{pipeline: p, episodes: episodes, catalog: catalog}
}

func (f *fixture) countEpisodes(t *testing.T) int {
	t.Helper()
	eps, err := f.episodes.GetRecent(context.Background(), 100)
	if err != nil {
		t.Fatal(err)
	}
	return len(eps)
}

func TestProcessGreeting(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "hello", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != "Hi! What's on your mind today?" {
		t.Errorf("Output = %q", result.Output)
	}

	ep := result.Episode
	if ep == nil {
		t.Fatal("no episode on result")
	}
	if ep.ConstructionID != "cons_greet_open" {
		t.Errorf("ConstructionID = %q", ep.ConstructionID)
	}
	if ep.Approval != episode.StatusApproved {
		t.Errorf("Approval = %q, want approved", ep.Approval)
	}
	if ep.Meta.UsedFallback {
		t.Error("greeting should not use the fallback")
	}
	if ep.IntentPrimary != "greeting" {
		t.Errorf("IntentPrimary = %q", ep.IntentPrimary)
	}

	saved, err := f.episodes.GetByID(context.Background(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ep.Acts, saved.Acts); diff != "" {
		t.Errorf("saved acts differ (-want +got):\n%s", diff)
	}
	if saved.OutputText != result.Output {
		t.Errorf("saved output %q != delivered %q", saved.OutputText, result.Output)
	}
}

func TestProcessSafetyTurnDegradesToSafestConstruction(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "i want to kill myself", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}

	if result.Approval == nil || result.Approval.Decision != risk.DecisionNeedsReview {
		t.Fatalf("Approval = %+v, want needs_review for a safety turn", result.Approval)
	}
	if result.Episode.Approval != episode.StatusNeedsReview {
		t.Errorf("episode approval = %q", result.Episode.Approval)
	}
	// Needs-review renders through the most trusted human construction.
	cons, ok := f.catalog.Get(result.Episode.ConstructionID)
	if !ok {
		t.Fatalf("unknown construction %q on episode", result.Episode.ConstructionID)
	}
	if cons.Source != construction.SourceHuman {
		t.Errorf("construction source = %v, want human", cons.Source)
	}
	if result.Output == "" {
		t.Error("degraded turn must still produce output")
	}
}

func TestProcessRejectedTurnUsesReservedFallback(t *testing.T) {
	// With the critical cutoff this low any safety signal rejects outright
	// instead of degrading to needs-review.
	strict := risk.Thresholds{Medium: 0.01, High: 0.02, Critical: 0.05}
	f := newFixture(t, fixtureOpts{thresholds: &strict})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "i want to kill myself", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Approval == nil || result.Approval.Decision != risk.DecisionRejected {
		t.Fatalf("Approval = %+v, want rejected", result.Approval)
	}
	if result.Episode.Approval != episode.StatusRejected {
		t.Errorf("episode approval = %q", result.Episode.Approval)
	}
	if result.Episode.ConstructionID != construction.FallbackID {
		t.Errorf("ConstructionID = %q, want the reserved fallback", result.Episode.ConstructionID)
	}
	if !result.Episode.Meta.UsedFallback {
		t.Error("rejected turn must be marked as fallback")
	}
	if result.Output == "" {
		t.Error("rejected turn must still produce output")
	}
	if f.countEpisodes(t) != 1 {
		t.Errorf("episodes = %d, want exactly one", f.countEpisodes(t))
	}
}

func TestProcessEmptyInputFallsBack(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "   ", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Output != Balanced().FallbackResponse {
		t.Errorf("Output = %q, want the fallback response", result.Output)
	}
	if !result.Episode.Meta.UsedFallback {
		t.Error("fallback not recorded")
	}
	if len(result.Episode.Meta.Errors) == 0 {
		t.Error("situation error not recorded on episode")
	}
	// Even a turn that died before risk scoring carries a complete
	// risk/approval pair, so the learning loop cannot read it as approved.
	if result.Episode.Approval != episode.StatusRejected {
		t.Errorf("Approval = %q, want rejected for an unassessed turn", result.Episode.Approval)
	}
	if result.Episode.Risk.Level == "" {
		t.Error("risk record missing on the unassessed turn")
	}
	if result.Episode.WasSuccessful() {
		t.Error("unassessed fallback turn must not read as a success")
	}
	if f.countEpisodes(t) != 1 {
		t.Errorf("episodes = %d, want exactly one", f.countEpisodes(t))
	}
}

func TestTruncateOutputRespectsRuneBoundaries(t *testing.T) {
	long := strings.Repeat("héllo wörld ", 40)
	got := truncateOutput(long, 50)
	if !utf8.ValidString(got) {
		t.Errorf("truncated output is not valid UTF-8: %q", got)
	}
	if utf8.RuneCountInString(got) != 50 {
		t.Errorf("rune count = %d, want 50", utf8.RuneCountInString(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("got %q, want an ellipsized tail", got)
	}
	if truncateOutput("short", 50) != "short" {
		t.Error("short output must pass through unchanged")
	}
	// Tiny caps cut without the ellipsis instead of slicing below zero.
	if got := truncateOutput("héllo", 2); got != "hé" {
		t.Errorf("truncateOutput(2) = %q, want %q", got, "hé")
	}
}

func TestProcessCancelledTurnIsAbandoned(t *testing.T) {
	f := newFixture(t, fixtureOpts{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := f.pipeline.Process(ctx, dialogue.TurnInput{Text: "hello", SessionID: "sess_t"})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Episode.Meta.Abandoned {
		t.Error("cancelled turn not marked abandoned")
	}
	// The episode survives the cancelled turn context.
	if f.countEpisodes(t) != 1 {
		t.Errorf("episodes = %d, want the abandoned turn logged", f.countEpisodes(t))
	}
}

func TestProcessRevisionExhaustionFallsBack(t *testing.T) {
	// A realizer that keeps clashing with the empathic tone forces the
	// critique loop through its revision budget and onto the safe fallback.
	f := newFixture(t, fixtureOpts{
		realizer: realizerFunc(func(*construction.Construction, map[string]string) (string, error) {
			return "Calm down, it's definitely not a big deal, guaranteed.", nil
		}),
	})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "i'm sad today", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Episode.Meta.UsedFallback {
		t.Error("exhausted revisions must end in the fallback")
	}
	if result.Episode.Meta.RevisionCount == 0 {
		t.Error("no revisions recorded before giving up")
	}
	if result.Episode.ConstructionID != construction.FallbackID {
		t.Errorf("ConstructionID = %q, want the safe fallback", result.Episode.ConstructionID)
	}
	if result.Output != actFallbacks[dialogue.ActEmpathize] {
		t.Errorf("Output = %q, want the empathize fallback text", result.Output)
	}
}

func TestProcessRevisionRecoversOnSecondPass(t *testing.T) {
	// The first render carries a strippable problematic claim; the mechanical
	// revision removes it and the second critique pass clears the bar.
	f := newFixture(t, fixtureOpts{
		realizer: realizerFunc(func(*construction.Construction, map[string]string) (string, error) {
			return "Greetings! All claims here are guaranteed and certainly true, definitely true in every way.", nil
		}),
	})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "hello", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Episode.Meta.RevisionCount != 1 {
		t.Errorf("RevisionCount = %d, want exactly 1", result.Episode.Meta.RevisionCount)
	}
	if result.Episode.Meta.UsedFallback {
		t.Error("recovered turn must not count as fallback")
	}
	want := "Greetings! All claims here are guaranteed and certainly true, in every way."
	if result.Output != want {
		t.Errorf("Output = %q, want the revised render %q", result.Output, want)
	}
	if result.Episode.OutputText != result.Output {
		t.Errorf("logged output %q != delivered %q", result.Episode.OutputText, result.Output)
	}
}

func TestProcessRealizeErrorFallsBack(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		realizer: realizerFunc(func(*construction.Construction, map[string]string) (string, error) {
			return "", errors.New("template broken")
		}),
	})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "hello", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Episode.Meta.UsedFallback {
		t.Error("realize failure must fall back")
	}
	if result.Output == "" {
		t.Error("fallback output missing")
	}
}

func TestProcessGeneratorServesWhenCatalogCannot(t *testing.T) {
	threshold := construction.DefaultSelectorOptions()
	threshold.MinScoreThreshold = 0.99

	f := newFixture(t, fixtureOpts{
		selectorOpts: &threshold,
		generator: generatorFunc(func(context.Context, *dialogue.MessagePlan, *dialogue.SituationModel) (string, error) {
			return "Here's a generated answer with the information you asked about.", nil
		}),
	})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "tell me about black holes", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Episode.Meta.UsedFallback {
		t.Error("generated output must not count as fallback")
	}
	if result.Output != "Here's a generated answer with the information you asked about." {
		t.Errorf("Output = %q", result.Output)
	}
	if result.Episode.ConstructionID != "" {
		t.Errorf("generated turn should record no construction, got %q", result.Episode.ConstructionID)
	}
}

func TestProcessNoViableConstructionWithoutGenerator(t *testing.T) {
	threshold := construction.DefaultSelectorOptions()
	threshold.MinScoreThreshold = 0.99

	f := newFixture(t, fixtureOpts{selectorOpts: &threshold})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "tell me about black holes", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.Episode.Meta.UsedFallback {
		t.Error("want fallback when nothing can render the plan")
	}
	if result.Output != actFallbacks[dialogue.ActInform] {
		t.Errorf("Output = %q, want the inform fallback text", result.Output)
	}
}

func TestProcessLogsExactlyOneEpisodePerTurn(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	inputs := []string{"hello", "   ", "i'm sad today", "thank you", "goodbye"}
	for _, text := range inputs {
		if _, err := f.pipeline.Process(ctx, dialogue.TurnInput{Text: text, SessionID: "sess_t"}); err != nil {
			t.Fatalf("Process(%q): %v", text, err)
		}
	}
	if got := f.countEpisodes(t); got != len(inputs) {
		t.Errorf("episodes = %d, want %d", got, len(inputs))
	}
}

func TestProcessSurfacesLostEpisode(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "lost.db"))
	if err != nil {
		t.Fatal(err)
	}
	episodes, err := episode.NewStore(db, time.Hour, nil)
	if err != nil {
		t.Fatal(err)
	}
	db.Close() // every save will now fail

	catalog := construction.NewCatalog()
	p := New(Balanced(), Deps{
		Situations: dialogue.NewSituationBuilder(dialogue.DefaultSituationBuilderConfig(), nil),
		Acts:       dialogue.NewActSelector(dialogue.DefaultActSelectorConfig(), nil),
		Planner:    dialogue.NewMessagePlanner(dialogue.DefaultMessagePlannerConfig(), nil),
		Risks:      risk.NewScorer(risk.DefaultWeights(), risk.DefaultThresholds(), nil),
		Approver:   risk.NewApprover(nil),
		Catalog:    catalog,
		Selector: construction.NewSelector(catalog, nil,
			feedback.NewScorer(feedback.DefaultScorerParams()), construction.DefaultSelectorOptions(), nil),
		Critic:   NewCritic(DefaultCritiqueConfig(), nil),
		Episodes: episodes,
	}, nil)

	result, err := p.Process(context.Background(), dialogue.TurnInput{Text: "hello", SessionID: "sess_t"})
	if !errors.Is(err, ErrNotDurablyLogged) {
		t.Errorf("err = %v, want ErrNotDurablyLogged", err)
	}
	// The response itself was still produced.
	if result == nil || result.Output == "" {
		t.Error("output should survive a failed episode save")
	}
}

func TestMinimalConfigSkipsSafetyStages(t *testing.T) {
	cfg := Minimal()
	f := newFixture(t, fixtureOpts{cfg: &cfg})

	result, err := f.pipeline.Process(context.Background(), dialogue.TurnInput{
		Text: "hello", SessionID: "sess_t",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Assessment != nil || result.Approval != nil {
		t.Error("minimal preset must skip risk and approval")
	}
	if result.Critique != nil {
		t.Error("minimal preset must skip critique")
	}
	if result.Output == "" {
		t.Error("output missing")
	}
}

type realizerFunc func(*construction.Construction, map[string]string) (string, error)

func (f realizerFunc) Realize(cons *construction.Construction, values map[string]string) (string, error) {
	return f(cons, values)
}

type generatorFunc func(context.Context, *dialogue.MessagePlan, *dialogue.SituationModel) (string, error)

func (f generatorFunc) Generate(ctx context.Context, plan *dialogue.MessagePlan, situation *dialogue.SituationModel) (string, error) {
	return f(ctx, plan, situation)
}
