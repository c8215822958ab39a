package construction

import (
	"os"
	"path/filepath"
	"testing"

	"palaver/internal/dialogue"
)

func TestNewCatalogCoversEveryAct(t *testing.T) {
	c := NewCatalog()
	for _, act := range dialogue.AllActs() {
		if len(c.ByAct(act)) == 0 {
			t.Errorf("no default construction for act %v", act)
		}
	}
}

func TestFallbackAlwaysPresent(t *testing.T) {
	c := NewCatalog()
	fb := c.Fallback()
	if fb == nil {
		t.Fatal("catalog has no fallback construction")
	}
	if fb.ID != FallbackID {
		t.Errorf("fallback id = %q, want %q", fb.ID, FallbackID)
	}
	if !fb.Meaning.MatchesAct(dialogue.ActLimit) {
		t.Error("fallback should perform a boundary act")
	}
}

func TestLoadCatalogMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `constructions:
  - id: cons_custom_hello
    level: surface
    form:
      template: "Hey, good to see you!"
    meaning:
      acts: [greet]
      tone: casual
    source: human
    confidence: 0.9
  - id: cons_greet_open
    level: surface
    form:
      template: "Replaced greeting."
    meaning:
      acts: [greet]
    source: human
    confidence: 0.8
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}

	custom, ok := c.Get("cons_custom_hello")
	if !ok {
		t.Fatal("custom construction not loaded")
	}
	if custom.Form.Template != "Hey, good to see you!" {
		t.Errorf("template = %q", custom.Form.Template)
	}

	replaced, _ := c.Get("cons_greet_open")
	if replaced.Form.Template != "Replaced greeting." {
		t.Errorf("default not replaced: %q", replaced.Form.Template)
	}
	if c.Len() != NewCatalog().Len()+1 {
		t.Errorf("Len = %d, want defaults plus one", c.Len())
	}
}

func TestLoadCatalogMissingFileKeepsDefaults(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != NewCatalog().Len() {
		t.Errorf("Len = %d, want default set", c.Len())
	}
}

func TestReloadKeepsLiveCounters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `constructions:
  - id: cons_reload_me
    form:
      template: "Before reload."
    meaning:
      acts: [inform]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	c.RecordOutcome("cons_reload_me", true)
	c.RecordOutcome("cons_reload_me", false)

	updated := `constructions:
  - id: cons_reload_me
    form:
      template: "After reload."
    meaning:
      acts: [inform]
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err != nil {
		t.Fatal(err)
	}

	cons, _ := c.Get("cons_reload_me")
	if cons.Form.Template != "After reload." {
		t.Errorf("template = %q, want reloaded text", cons.Form.Template)
	}
	if cons.SuccessCount != 1 || cons.FailureCount != 1 {
		t.Errorf("counters lost on reload: %d/%d", cons.SuccessCount, cons.FailureCount)
	}
}

func TestSaveRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")

	c := NewCatalog()
	id := c.Add(&Construction{
		Level:      LevelSurface,
		Form:       Form{Template: "A learned phrasing about {topic}.", Slots: []Slot{{Name: "topic", Type: "topic", Default: "that"}}},
		Meaning:    Meaning{Acts: []dialogue.DialogueAct{dialogue.ActInform}},
		Source:     SourceLearned,
		Confidence: 0.6,
	})
	if err := c.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	cons, ok := loaded.Get(id)
	if !ok {
		t.Fatalf("saved construction %s not found after reload", id)
	}
	if cons.Source != SourceLearned {
		t.Errorf("Source = %v, want learned", cons.Source)
	}
	if cons.Form.Template != "A learned phrasing about {topic}." {
		t.Errorf("template = %q", cons.Form.Template)
	}
}

func TestRecordOutcomeMovesConfidence(t *testing.T) {
	c := NewCatalog()
	cons, _ := c.Get("cons_inform_basic")
	before := cons.Confidence

	c.RecordOutcome("cons_inform_basic", true)
	if cons.Confidence <= before {
		t.Errorf("confidence %v should rise after success", cons.Confidence)
	}
	c.RecordOutcome("cons_inform_basic", false)
	c.RecordOutcome("cons_inform_basic", false)
	if cons.Confidence >= before {
		t.Errorf("confidence %v should fall below %v after two failures", cons.Confidence, before)
	}
	if cons.TotalUses() != 3 {
		t.Errorf("TotalUses = %d, want 3", cons.TotalUses())
	}

	// Unknown ids are ignored.
	c.RecordOutcome("cons_missing", true)
}

func TestRealizeFillsAndValidates(t *testing.T) {
	cons := &Construction{
		ID: "cons_t",
		Form: Form{
			Template: "About {topic}: {detail}",
			Slots: []Slot{
				{Name: "topic", Type: "topic", Default: "that"},
				{Name: "detail", Type: "text"},
			},
		},
	}

	out, err := cons.Realize(map[string]string{"topic": "routers", "detail": "check the cable"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "About routers: check the cable" {
		t.Errorf("Realize = %q", out)
	}

	// Missing value falls back to the slot default.
	out, err = cons.Realize(map[string]string{"detail": "check the cable"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "About that: check the cable" {
		t.Errorf("Realize with default = %q", out)
	}
}

func TestRealizeRejectsMissingRequiredSlot(t *testing.T) {
	cons := &Construction{
		ID: "cons_t",
		Form: Form{
			Template: "Hello {name}",
			Slots:    []Slot{{Name: "name", Type: "text", Required: true}},
		},
	}
	if _, err := cons.Realize(nil); err == nil {
		t.Error("expected error for missing required slot")
	}
}

func TestRealizeRejectsUnfilledPlaceholder(t *testing.T) {
	cons := &Construction{
		ID:   "cons_t",
		Form: Form{Template: "Hello {name}"},
	}
	if _, err := cons.Realize(nil); err == nil {
		t.Error("expected error for placeholder without a slot")
	}
}

func TestSlotValidateValue(t *testing.T) {
	slot := Slot{Name: "mood", Type: "text", MinLength: 3, MaxLength: 5, AllowedValues: []string{"calm", "tense"}}

	if err := slot.ValidateValue("calm"); err != nil {
		t.Errorf("calm rejected: %v", err)
	}
	if err := slot.ValidateValue("ok"); err == nil {
		t.Error("too-short value accepted")
	}
	if err := slot.ValidateValue("joyful"); err == nil {
		t.Error("too-long value accepted")
	}
	if err := slot.ValidateValue("angry"); err == nil {
		t.Error("value outside allowed set accepted")
	}
	if err := slot.ValidateValue(""); err != nil {
		t.Errorf("optional empty value rejected: %v", err)
	}
}
