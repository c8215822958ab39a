package learning

import (
	"math"
	"testing"

	"palaver/internal/dialogue"
	"palaver/internal/episode"
)

func example(id, text, intent, emotion string, acts ...dialogue.DialogueAct) Example {
	return Example{ID: id, Text: text, Intent: intent, Emotion: emotion, Acts: acts}
}

func TestComputeReflexive(t *testing.T) {
	s := NewSimilarity(DefaultSimilarityConfig())
	a := example("ep_a", "my computer keeps crashing", "request_help", "frustrated", dialogue.ActClarify)

	if got := s.Compute(a, a); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("self similarity = %v, want 1.0", got)
	}
}

func TestComputeSymmetric(t *testing.T) {
	s := NewSimilarity(DefaultSimilarityConfig())
	a := example("ep_a", "my computer keeps crashing", "request_help", "frustrated", dialogue.ActClarify)
	b := example("ep_b", "my laptop keeps freezing", "request_help", "angry", dialogue.ActClarify, dialogue.ActSuggest)

	ab, ba := s.Compute(a, b), s.Compute(b, a)
	if math.Abs(ab-ba) > 1e-9 {
		t.Errorf("similarity not symmetric: %v vs %v", ab, ba)
	}
}

func TestComputeDetailedComponents(t *testing.T) {
	s := NewSimilarity(DefaultSimilarityConfig())
	a := example("ep_a", "my computer keeps crashing", "request_help", "frustrated", dialogue.ActClarify)
	b := example("ep_b", "my computer keeps crashing", "request_action", "sad", dialogue.ActClarify)

	r := s.ComputeDetailed(a, b)
	if r.Text != 1.0 {
		t.Errorf("Text = %v, want 1.0 for identical text", r.Text)
	}
	if r.Intent != 0.7 {
		t.Errorf("Intent = %v, want 0.7 for same assistance category", r.Intent)
	}
	if r.Emotion != 1.0 {
		t.Errorf("Emotion = %v, want 1.0 for the same negative bucket", r.Emotion)
	}
	if r.Acts != 1.0 {
		t.Errorf("Acts = %v, want 1.0", r.Acts)
	}
	want := 1.0*0.30 + 0.7*0.25 + 1.0*0.20 + 1.0*0.25
	if math.Abs(r.Total-want) > 1e-9 {
		t.Errorf("Total = %v, want %v", r.Total, want)
	}
	if !r.IsSimilar || !r.IsClusterCandidate {
		t.Errorf("thresholds not applied: %+v", r)
	}
}

func TestUnrelatedExamplesScoreLow(t *testing.T) {
	s := NewSimilarity(DefaultSimilarityConfig())
	a := example("ep_a", "hello there", "greeting", "happy", dialogue.ActGreet)
	b := example("ep_b", "my exam went badly", "emotional_share", "sad", dialogue.ActEmpathize, dialogue.ActComfort)

	r := s.ComputeDetailed(a, b)
	if r.IsClusterCandidate {
		t.Errorf("unrelated examples clustered: %+v", r)
	}
	// Opposed valence buckets keep emotion similarity near the floor.
	if r.Emotion > 0.3 {
		t.Errorf("Emotion = %v, want 0.2 for positive vs negative", r.Emotion)
	}
}

func TestEmptyFieldsHandling(t *testing.T) {
	if got := intentSimilarity("", ""); got != 1 {
		t.Errorf("both empty intents = %v, want 1", got)
	}
	if got := intentSimilarity("greeting", ""); got != 0 {
		t.Errorf("one empty intent = %v, want 0", got)
	}
	if got := emotionSimilarity("", ""); got != 1 {
		t.Errorf("both empty emotions = %v, want 1", got)
	}
	if got := emotionSimilarity("", "sad"); got != 0 {
		t.Errorf("one empty emotion = %v, want 0", got)
	}
	if got := actSimilarity(nil, nil); got != 1 {
		t.Errorf("both empty act sets = %v, want 1", got)
	}
	if got := actSimilarity([]dialogue.DialogueAct{dialogue.ActGreet}, nil); got != 0 {
		t.Errorf("one empty act set = %v, want 0", got)
	}
}

func TestUnknownEmotionPairFallsBack(t *testing.T) {
	// Labels outside the valence table bucket as neutral.
	if got := emotionSimilarity("bewildered", "perplexed"); got != 1.0 {
		t.Errorf("two unknown labels = %v, want 1.0 via the neutral bucket", got)
	}
	if got := emotionSimilarity("bewildered", "happy"); math.Abs(got-0.7) > 1e-9 {
		t.Errorf("unknown vs positive = %v, want 0.7", got)
	}
}

func TestBatchSkipsSelfAndSorts(t *testing.T) {
	s := NewSimilarity(DefaultSimilarityConfig())
	ref := example("ep_ref", "my computer keeps crashing", "request_help", "frustrated", dialogue.ActClarify)
	candidates := []Example{
		ref,
		example("ep_close", "my computer keeps crashing", "request_help", "frustrated", dialogue.ActClarify),
		example("ep_far", "lovely weather today", "smalltalk", "happy", dialogue.ActAcknowledge),
	}

	matches := s.Batch(ref, candidates, 0)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2 (self skipped)", len(matches))
	}
	if matches[0].Example.ID != "ep_close" {
		t.Errorf("best match = %s, want ep_close", matches[0].Example.ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches not sorted high to low")
	}
}

func TestFindSimilarHonorsLimit(t *testing.T) {
	s := NewSimilarity(DefaultSimilarityConfig())
	ref := example("ep_ref", "thanks for the help", "thank", "grateful", dialogue.ActAcknowledge)
	var candidates []Example
	for _, id := range []string{"ep_1", "ep_2", "ep_3"} {
		candidates = append(candidates,
			example(id, "thanks for the help", "thank", "grateful", dialogue.ActAcknowledge))
	}

	matches := s.FindSimilar(ref, candidates, 2)
	if len(matches) != 2 {
		t.Errorf("got %d matches, want limit of 2", len(matches))
	}
}

func TestValidateWeights(t *testing.T) {
	if err := DefaultSimilarityConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
	bad := SimilarityConfig{TextWeight: 0.5, IntentWeight: 0.5, EmotionWeight: 0.5, ActWeight: 0.5}
	if err := bad.Validate(); err == nil {
		t.Error("weights summing to 2.0 accepted")
	}
}

func TestTokenizeDropsStopWords(t *testing.T) {
	words := Tokenize("I have a question about the weather, really!")
	for _, stop := range []string{"i", "have", "a", "the"} {
		if words[stop] {
			t.Errorf("stop word %q survived", stop)
		}
	}
	for _, keep := range []string{"question", "about", "weather", "really"} {
		if !words[keep] {
			t.Errorf("content word %q dropped", keep)
		}
	}
}

func TestLevenshteinDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
	}
	for _, tc := range cases {
		if got := LevenshteinDistance(tc.a, tc.b); got != tc.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
		if got := LevenshteinDistance(tc.b, tc.a); got != tc.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tc.b, tc.a, got, tc.want)
		}
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	if got := LevenshteinSimilarity("same", "same"); got != 1 {
		t.Errorf("identical = %v, want 1", got)
	}
	if got := LevenshteinSimilarity("", "abc"); got != 0 {
		t.Errorf("one empty = %v, want 0", got)
	}
	got := LevenshteinSimilarity("kitten", "sitting")
	want := 1 - 3.0/7.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("similarity = %v, want %v", got, want)
	}
}

func TestExampleFromEpisodeReadsEmotion(t *testing.T) {
	ep := &episode.EpisodeLog{
		ID:            "eplog_t",
		InputText:     "i'm worried about my exam",
		IntentPrimary: "emotional_share",
		Acts:          []dialogue.DialogueAct{dialogue.ActEmpathize},
		SituationJSON: `{"id":"sit_1","emotion":{"valence":-0.4,"primary_emotion":"worried"}}`,
	}

	ex := ExampleFromEpisode(ep)
	if ex.Emotion != "worried" {
		t.Errorf("Emotion = %q, want worried", ex.Emotion)
	}
	if ex.Intent != "emotional_share" || ex.Text != "i'm worried about my exam" {
		t.Errorf("projection wrong: %+v", ex)
	}

	ep.SituationJSON = "{not json"
	if got := ExampleFromEpisode(ep); got.Emotion != "" {
		t.Errorf("unparseable snapshot should leave emotion empty, got %q", got.Emotion)
	}
}
