package learning

import (
	"testing"

	"palaver/internal/construction"
	"palaver/internal/dialogue"
	"palaver/internal/episode"
)

func successfulEpisode(id, input, output string) *episode.EpisodeLog {
	return &episode.EpisodeLog{
		ID:            id,
		InputText:     input,
		IntentPrimary: "request_help",
		Acts:          []dialogue.DialogueAct{dialogue.ActSuggest},
		Tone:          dialogue.ToneCasual,
		Approval:      episode.StatusApproved,
		OutputText:    output,
	}
}

func TestGeneralizeTopic(t *testing.T) {
	cases := []struct {
		name      string
		text      string
		topic     string
		want      string
		wantSlots int
	}{
		{"no topic", "Happy to help.", "", "Happy to help.", 0},
		{"general topic", "Happy to help.", "general", "Happy to help.", 0},
		{"topic absent", "Happy to help.", "technology", "Happy to help.", 0},
		{"topic replaced", "Let's talk about technology then.", "technology", "Let's talk about {topic} then.", 1},
		{"case insensitive", "Technology is a big field.", "technology", "{topic} is a big field.", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, slots := generalizeTopic(tc.text, tc.topic)
			if got != tc.want {
				t.Errorf("generalizeTopic(%q, %q) = %q, want %q", tc.text, tc.topic, got, tc.want)
			}
			if len(slots) != tc.wantSlots {
				t.Errorf("slots = %v, want %d", slots, tc.wantSlots)
			}
		})
	}
}

func TestClusterSeparatesOutlier(t *testing.T) {
	p := NewPromoter(DefaultPromoterConfig(), nil, nil, nil)
	examples := []Example{
		example("ep_1", "can you help me fix my homework plan", "request_help", "", dialogue.ActSuggest),
		example("ep_2", "could you help me fix my reading plan", "request_help", "", dialogue.ActSuggest),
		example("ep_3", "please help me fix my homework plan", "request_help", "", dialogue.ActSuggest),
		example("ep_odd", "lovely weather today", "smalltalk", "", dialogue.ActAcknowledge),
	}

	clusters := p.cluster(examples)
	if len(clusters) != 1 {
		t.Fatalf("got %d clusters, want 1 (outlier below minimum size)", len(clusters))
	}
	if len(clusters[0]) != 3 {
		t.Errorf("cluster size = %d, want 3", len(clusters[0]))
	}
	for _, ex := range clusters[0] {
		if ex.ID == "ep_odd" {
			t.Error("outlier pulled into the cluster")
		}
	}
}

func TestDistillPrefersFrequentOutputThenShortest(t *testing.T) {
	p := NewPromoter(DefaultPromoterConfig(), nil, nil, nil)

	eligible := map[string]*episode.EpisodeLog{
		"e1": successfulEpisode("e1", "in one", "Thanks for sharing that."),
		"e2": successfulEpisode("e2", "in two", "Okay."),
		"e3": successfulEpisode("e3", "in three", "Thanks for sharing that."),
	}
	cluster := []Example{{ID: "e1"}, {ID: "e2"}, {ID: "e3"}}

	pat := p.distill(cluster, eligible)
	if pat == nil {
		t.Fatal("distill returned nil")
	}
	if pat.Content != "Thanks for sharing that." {
		t.Errorf("Content = %q, want the majority output", pat.Content)
	}
	if len(pat.Episodes) != 3 {
		t.Errorf("Episodes = %v, want all cluster ids", pat.Episodes)
	}

	// On a frequency tie the shorter output wins.
	tied := map[string]*episode.EpisodeLog{
		"e1": successfulEpisode("e1", "in one", "Sure, no problem at all."),
		"e2": successfulEpisode("e2", "in two", "Okay."),
	}
	pat = p.distill([]Example{{ID: "e1"}, {ID: "e2"}}, tied)
	if pat.Content != "Okay." {
		t.Errorf("Content = %q, want the shorter output on a tie", pat.Content)
	}

	if got := p.distill([]Example{{ID: "missing"}}, eligible); got != nil {
		t.Errorf("distill over unknown ids = %+v, want nil", got)
	}
}

func TestPromoteSkipsIneligibleEpisodes(t *testing.T) {
	p := NewPromoter(DefaultPromoterConfig(), nil, nil, nil)

	rejected := successfulEpisode("e1", "help me", "No.")
	rejected.Approval = episode.StatusRejected
	fallback := successfulEpisode("e2", "help me", "Let me think about that.")
	fallback.Meta.UsedFallback = true
	silent := successfulEpisode("e3", "help me", "")

	episodes := []*episode.EpisodeLog{
		rejected, fallback, silent,
		successfulEpisode("e4", "help me out here", "Happy to."),
	}
	if got := p.Promote(episodes, nil); got != nil {
		t.Errorf("one eligible episode cannot form a cluster, got %d candidates", len(got))
	}
}

func TestPromoteDistillsClusterTemplate(t *testing.T) {
	p := NewPromoter(DefaultPromoterConfig(), nil, nil, nil)

	episodes := []*episode.EpisodeLog{
		successfulEpisode("e1", "can you help me fix my homework plan", "Happy to help with your homework."),
		successfulEpisode("e2", "could you help me fix my reading plan", "Happy to help with your homework."),
		successfulEpisode("e3", "please help me fix my homework plan", "Happy to help with your homework."),
		successfulEpisode("e4", "help me fix my workout plan today", "Let's fix that plan."),
		successfulEpisode("e5", "help me fix my budget plan now", "Let's fix that plan."),
	}
	episodes[0].TopicDomain = "homework"
	episodes[3].IntentPrimary = "request_action"
	episodes[4].IntentPrimary = "request_action"

	candidates := p.Promote(episodes, nil)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	cand := candidates[0]
	if cand.Pattern.Content != "Happy to help with your {topic}." {
		t.Errorf("Content = %q, want the generalized majority output", cand.Pattern.Content)
	}
	if len(cand.Pattern.Slots) != 1 || cand.Pattern.Slots[0] != "topic" {
		t.Errorf("Slots = %v, want [topic]", cand.Pattern.Slots)
	}
	if cand.Pattern.Act != dialogue.ActSuggest {
		t.Errorf("Act = %v, want suggest", cand.Pattern.Act)
	}
	if cand.Pattern.Tone != dialogue.ToneCasual {
		t.Errorf("Tone = %v, want casual", cand.Pattern.Tone)
	}
	if len(cand.Cluster) != 5 || len(cand.Pattern.Episodes) != 5 {
		t.Errorf("cluster coverage = %d/%d, want 5/5", len(cand.Cluster), len(cand.Pattern.Episodes))
	}
	if cand.Score.EpisodeCount != 5 {
		t.Errorf("EpisodeCount = %d, want 5", cand.Score.EpisodeCount)
	}
	if cand.Score.IsRisky() {
		t.Errorf("benign template flagged risky: %+v", cand.Score)
	}
}

func TestToConstructionFromPattern(t *testing.T) {
	cand := Candidate{
		Pattern: &Pattern{
			ID:      "pat_test",
			Content: "Happy to help with your {topic}.",
			Slots:   []string{"topic"},
			Act:     dialogue.ActSuggest,
			Tone:    dialogue.ToneCasual,
		},
		Score: MDLScore{Final: 0.62},
	}

	cons := cand.ToConstruction()
	if cons.Source != construction.SourceLearned {
		t.Errorf("Source = %v, want learned", cons.Source)
	}
	if cons.Level != construction.LevelSurface {
		t.Errorf("Level = %v, want surface", cons.Level)
	}
	if cons.Form.Template != cand.Pattern.Content {
		t.Errorf("Template = %q", cons.Form.Template)
	}
	if len(cons.Form.Slots) != 1 {
		t.Fatalf("got %d slots, want 1", len(cons.Form.Slots))
	}
	slot := cons.Form.Slots[0]
	if slot.Name != "topic" || slot.Required || slot.Default != "that" {
		t.Errorf("slot = %+v, want optional topic defaulting to \"that\"", slot)
	}
	if len(cons.Meaning.Acts) != 1 || cons.Meaning.Acts[0] != dialogue.ActSuggest {
		t.Errorf("Acts = %v, want [suggest]", cons.Meaning.Acts)
	}
	if cons.Meaning.Tone != dialogue.ToneCasual {
		t.Errorf("Tone = %v, want casual", cons.Meaning.Tone)
	}
	if cons.Confidence != 0.62 {
		t.Errorf("Confidence = %v, want the MDL final score", cons.Confidence)
	}

	cand.Pattern.Act = ""
	if cons := cand.ToConstruction(); cons.Meaning.Acts[0] != dialogue.ActAcknowledge {
		t.Errorf("empty act should default to acknowledge, got %v", cons.Meaning.Acts)
	}
}
