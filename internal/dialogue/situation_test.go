package dialogue

import (
	"context"
	"testing"
)

func newTestBuilder() *SituationBuilder {
	return NewSituationBuilder(DefaultSituationBuilderConfig(), nil)
}

func TestBuildRejectsEmptyText(t *testing.T) {
	b := newTestBuilder()
	if _, err := b.Build(context.Background(), TurnInput{Text: "   "}); err == nil {
		t.Fatal("expected error for blank turn text")
	}
}

func TestBuildRespectsCancelledContext(t *testing.T) {
	b := newTestBuilder()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Build(ctx, TurnInput{Text: "hello"}); err == nil {
		t.Fatal("expected context error")
	}
}

func TestBuildGreeting(t *testing.T) {
	b := newTestBuilder()
	model, err := b.Build(context.Background(), TurnInput{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if model.PrimaryIntent() != "greeting" {
		t.Errorf("PrimaryIntent = %q, want greeting", model.PrimaryIntent())
	}
	if len(model.Actors) != 2 {
		t.Errorf("got %d actors, want user and assistant only", len(model.Actors))
	}
	if model.Temporal.TurnNumber != 1 {
		t.Errorf("TurnNumber = %d, want 1", model.Temporal.TurnNumber)
	}
	if model.ID == "" {
		t.Error("model must carry an id")
	}
}

func TestTurnNumberFromHistory(t *testing.T) {
	b := newTestBuilder()
	history := []HistoryTurn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "how are you"},
		{Role: "assistant", Content: "doing fine"},
	}
	model, err := b.Build(context.Background(), TurnInput{Text: "tell me more", History: history})
	if err != nil {
		t.Fatal(err)
	}
	if model.Temporal.TurnNumber != 3 {
		t.Errorf("TurnNumber = %d, want 3", model.Temporal.TurnNumber)
	}
}

func TestThirdPartyActorDetected(t *testing.T) {
	b := newTestBuilder()
	model, err := b.Build(context.Background(), TurnInput{Text: "my mom is upset with me"})
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range model.Actors {
		if a.Role == "third_party" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a third_party actor, got %+v", model.Actors)
	}
}

func TestDetectSafetyRisk(t *testing.T) {
	b := newTestBuilder()
	model, err := b.Build(context.Background(), TurnInput{Text: "i want to hurt myself"})
	if err != nil {
		t.Fatal(err)
	}
	highest := model.HighestRisk()
	if highest == nil {
		t.Fatal("expected a detected risk")
	}
	if highest.Category != "safety" {
		t.Errorf("Category = %q, want safety", highest.Category)
	}
	if highest.Level != 0.9 {
		t.Errorf("Level = %v, want 0.9", highest.Level)
	}
	if !model.HasHighRisk(0.8) {
		t.Error("HasHighRisk(0.8) = false, want true")
	}
	if highest.Mitigation == "" {
		t.Error("safety risk must carry a mitigation")
	}
}

func TestRiskDetectionCanBeDisabled(t *testing.T) {
	cfg := DefaultSituationBuilderConfig()
	cfg.EnableRiskDetection = false
	b := NewSituationBuilder(cfg, nil)

	model, err := b.Build(context.Background(), TurnInput{Text: "this feels hopeless"})
	if err != nil {
		t.Fatal(err)
	}
	if len(model.Risks) != 0 {
		t.Errorf("got %d risks with detection disabled", len(model.Risks))
	}
}

func TestApproximatedEmotionFromText(t *testing.T) {
	b := newTestBuilder()
	model, err := b.Build(context.Background(), TurnInput{Text: "i am so sad and angry today"})
	if err != nil {
		t.Fatal(err)
	}
	if model.Emotion == nil {
		t.Fatal("expected an approximated emotional state")
	}
	if model.Emotion.Valence >= 0 {
		t.Errorf("Valence = %v, want negative", model.Emotion.Valence)
	}
	if model.Emotion.PrimaryEmotion != "negative" {
		t.Errorf("PrimaryEmotion = %q, want negative", model.Emotion.PrimaryEmotion)
	}
	if model.Emotion.Confidence != 0.5 {
		t.Errorf("approximation confidence = %v, want fixed 0.5", model.Emotion.Confidence)
	}
}

func TestExternalEmotionTakesPrecedence(t *testing.T) {
	b := newTestBuilder()
	external := &EmotionalState{Valence: 0.8, PrimaryEmotion: "joy", Confidence: 0.95}

	model, err := b.Build(context.Background(), TurnInput{Text: "i am so sad today", Emotion: external})
	if err != nil {
		t.Fatal(err)
	}
	if model.Emotion != external {
		t.Error("external affect snapshot must be used verbatim")
	}
}

func TestTopicClassification(t *testing.T) {
	b := newTestBuilder()
	cases := []struct {
		text string
		want string
	}{
		{"my computer keeps crashing", "technology"},
		{"i went to the doctor yesterday", "health"},
		{"i have an exam and lots of work", "education"},
		{"my boss gave me a new job title", "work"},
		{"just wanted to say something", "general"},
	}
	for _, tc := range cases {
		model, err := b.Build(context.Background(), TurnInput{Text: tc.text})
		if err != nil {
			t.Fatal(err)
		}
		if model.TopicDomain != tc.want {
			t.Errorf("topic(%q) = %q, want %q", tc.text, model.TopicDomain, tc.want)
		}
	}
}

func TestUnderstandingScoreBounds(t *testing.T) {
	b := newTestBuilder()

	confident, err := b.Build(context.Background(), TurnInput{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	vague, err := b.Build(context.Background(), TurnInput{Text: "xylophone quartz"})
	if err != nil {
		t.Fatal(err)
	}
	if confident.UnderstandingScore <= vague.UnderstandingScore {
		t.Errorf("clear greeting %v should outscore gibberish %v",
			confident.UnderstandingScore, vague.UnderstandingScore)
	}
	for _, m := range []*SituationModel{confident, vague} {
		if m.UnderstandingScore <= 0 || m.UnderstandingScore > 1 {
			t.Errorf("UnderstandingScore = %v, want in (0, 1]", m.UnderstandingScore)
		}
	}
}

func TestContextSummaryUsesHistoryTail(t *testing.T) {
	b := newTestBuilder()

	alone, err := b.Build(context.Background(), TurnInput{Text: "hello"})
	if err != nil {
		t.Fatal(err)
	}
	if alone.ContextSummary != "user message: hello" {
		t.Errorf("ContextSummary = %q", alone.ContextSummary)
	}

	withHistory, err := b.Build(context.Background(), TurnInput{
		Text:    "and then what",
		History: []HistoryTurn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if withHistory.ContextSummary == "" || withHistory.ContextSummary == alone.ContextSummary {
		t.Errorf("history summary missing: %q", withHistory.ContextSummary)
	}
}
