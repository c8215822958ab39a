package construction

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"palaver/internal/dialogue"
)

// FallbackID is the reserved safe construction used when a turn is rejected
// or every revision attempt fails. It always exists in a catalog.
const FallbackID = "cons_fallback_safe"

// Catalog is the process-wide construction registry: read-mostly during live
// turns, with only the advisory usage counters mutated in place. Construct
// one per process and hand it to the orchestrator and aggregator explicitly.
type Catalog struct {
	mu         sync.RWMutex
	byID       map[string]*Construction
	sourcePath string
}

// NewCatalog returns a catalog seeded with the built-in defaults.
func NewCatalog() *Catalog {
	c := &Catalog{byID: make(map[string]*Construction)}
	for _, cons := range defaultConstructions() {
		c.byID[cons.ID] = cons
	}
	return c
}

// LoadCatalog reads additional constructions from a YAML file over the
// defaults. Entries with an id already present replace the default.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog()
	if path == "" {
		return c, nil
	}
	if err := c.mergeFile(path); err != nil {
		return nil, err
	}
	c.sourcePath = path
	return c, nil
}

type catalogFile struct {
	Constructions []*Construction `yaml:"constructions"`
}

func (c *Catalog) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading catalog %s: %w", path, err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing catalog %s: %w", path, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cons := range file.Constructions {
		if cons.ID == "" {
			cons.ID = NewID()
		}
		if cons.Level == "" {
			cons.Level = LevelSurface
		}
		if cons.Source == "" {
			cons.Source = SourceHuman
		}
		c.byID[cons.ID] = cons
	}
	return nil
}

// Reload re-reads the catalog's source file, keeping live counters for
// constructions whose id survives the reload.
func (c *Catalog) Reload() error {
	if c.sourcePath == "" {
		return nil
	}
	counters := make(map[string]*Construction)
	c.mu.RLock()
	for id, cons := range c.byID {
		counters[id] = cons
	}
	c.mu.RUnlock()

	if err := c.mergeFile(c.sourcePath); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cons := range c.byID {
		if old, ok := counters[id]; ok && old != cons {
			cons.SuccessCount = old.SuccessCount
			cons.FailureCount = old.FailureCount
			cons.LastUsed = old.LastUsed
		}
	}
	return nil
}

// Get returns the construction with the given id.
func (c *Catalog) Get(id string) (*Construction, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cons, ok := c.byID[id]
	return cons, ok
}

// Fallback returns the reserved safe construction.
func (c *Catalog) Fallback() *Construction {
	cons, _ := c.Get(FallbackID)
	return cons
}

// Add registers a construction, generating an id when absent. Used by the
// pattern promotion path for learned constructions.
func (c *Catalog) Add(cons *Construction) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cons.ID == "" {
		cons.ID = NewID()
	}
	c.byID[cons.ID] = cons
	return cons.ID
}

// Save writes the full catalog to a YAML file, built-in defaults included,
// so promoted constructions survive a restart.
func (c *Catalog) Save(path string) error {
	data, err := yaml.Marshal(catalogFile{Constructions: c.All()})
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing catalog %s: %w", path, err)
	}
	return nil
}

// ByAct returns every construction whose meaning includes the act, sorted by
// id for determinism.
func (c *Catalog) ByAct(act dialogue.DialogueAct) []*Construction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*Construction
	for _, cons := range c.byID {
		if cons.Meaning.MatchesAct(act) {
			out = append(out, cons)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every construction sorted by id.
func (c *Catalog) All() []*Construction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Construction, 0, len(c.byID))
	for _, cons := range c.byID {
		out = append(out, cons)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered constructions.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byID)
}

// RecordOutcome applies a realized outcome to a construction's live
// counters. Best-effort: the aggregator owns the authoritative statistics.
func (c *Catalog) RecordOutcome(id string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cons, ok := c.byID[id]
	if !ok {
		return
	}
	if success {
		cons.RecordSuccess()
	} else {
		cons.RecordFailure()
	}
}

// defaultConstructions is the hand-authored seed set: at least one surface
// construction per act plus the reserved safe fallback.
func defaultConstructions() []*Construction {
	topicSlot := Slot{Name: "topic", Type: "topic", Default: "that"}
	detailSlot := Slot{Name: "detail", Type: "text", Default: ""}

	mk := func(id string, level GrammarLevel, act dialogue.DialogueAct, tone dialogue.ToneType, template string, slots ...Slot) *Construction {
		return &Construction{
			ID:         id,
			Level:      level,
			Form:       Form{Template: template, Slots: slots},
			Meaning:    Meaning{Acts: []dialogue.DialogueAct{act}, Tone: tone},
			Source:     SourceHuman,
			Confidence: 0.7,
		}
	}

	return []*Construction{
		{
			ID:    FallbackID,
			Level: LevelSurface,
			Form:  Form{Template: "I want to be careful here, so I'd rather not go further with this. Is there something else I can help you with?"},
			Meaning: Meaning{
				Acts: []dialogue.DialogueAct{dialogue.ActLimit, dialogue.ActAcknowledge},
				Tone: dialogue.ToneCautious,
			},
			Source:     SourceHuman,
			Confidence: 1.0,
		},
		mk("cons_inform_basic", LevelSurface, dialogue.ActInform, dialogue.ToneNeutral,
			"Here's what I know about {topic}: {detail}", topicSlot, detailSlot),
		mk("cons_explain_steps", LevelMiddle, dialogue.ActExplain, dialogue.ToneNeutral,
			"Let me walk you through {topic}. {detail}", topicSlot, detailSlot),
		mk("cons_clarify_question", LevelSurface, dialogue.ActClarify, dialogue.ToneCasual,
			"Just to make sure I follow — could you say a bit more about {topic}?", topicSlot),
		mk("cons_ask_open", LevelSurface, dialogue.ActAsk, dialogue.ToneCasual,
			"What would you like to know about {topic}?", topicSlot),
		mk("cons_confirm_read", LevelSurface, dialogue.ActConfirm, dialogue.ToneNeutral,
			"So if I understand right, you mean {topic} — is that correct?", topicSlot),
		mk("cons_empathize_warm", LevelSurface, dialogue.ActEmpathize, dialogue.ToneEmpathic,
			"That sounds really hard. I can see why {topic} is weighing on you.", topicSlot),
		mk("cons_encourage_forward", LevelSurface, dialogue.ActEncourage, dialogue.ToneSupportive,
			"You've already taken a real step by talking about {topic}. You can work through this.", topicSlot),
		mk("cons_comfort_present", LevelSurface, dialogue.ActComfort, dialogue.ToneSupportive,
			"I'm here with you. It's okay to take {topic} one step at a time.", topicSlot),
		mk("cons_suggest_option", LevelSurface, dialogue.ActSuggest, dialogue.ToneCasual,
			"One thing you could try with {topic}: {detail}", topicSlot, detailSlot),
		mk("cons_warn_direct", LevelSurface, dialogue.ActWarn, dialogue.ToneSerious,
			"I want to be upfront: {topic} carries a real risk. {detail}", topicSlot, detailSlot),
		mk("cons_advise_measured", LevelMiddle, dialogue.ActAdvise, dialogue.ToneCautious,
			"If it were me, I'd approach {topic} carefully. {detail}", topicSlot, detailSlot),
		mk("cons_refuse_gentle", LevelSurface, dialogue.ActRefuse, dialogue.ToneFormal,
			"I'm not able to help with {topic}. {detail}", topicSlot, detailSlot),
		mk("cons_limit_scope", LevelSurface, dialogue.ActLimit, dialogue.ToneFormal,
			"There's a limit to what I can do with {topic}, but within that I'm glad to help.", topicSlot),
		mk("cons_deflect_redirect", LevelSurface, dialogue.ActDeflect, dialogue.ToneNeutral,
			"That's outside what I can speak to, but on {topic} I can offer this: {detail}", topicSlot, detailSlot),
		mk("cons_acknowledge_simple", LevelSurface, dialogue.ActAcknowledge, dialogue.ToneNeutral,
			"Got it — {topic}.", topicSlot),
		mk("cons_apologize_direct", LevelSurface, dialogue.ActApologize, dialogue.ToneFormal,
			"I'm sorry about {topic}. That shouldn't have happened.", topicSlot),
		mk("cons_thank_warm", LevelSurface, dialogue.ActThank, dialogue.ToneCasual,
			"Thanks for sharing that with me.", topicSlot),
		mk("cons_greet_open", LevelSurface, dialogue.ActGreet, dialogue.ToneCasual,
			"Hi! What's on your mind today?"),
		mk("cons_close_warm", LevelSurface, dialogue.ActCloseConversation, dialogue.ToneCasual,
			"Take care — I'm around whenever you want to pick this up again."),
	}
}
