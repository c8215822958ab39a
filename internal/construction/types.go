// Package construction holds the catalog of parameterized response
// templates, the feedback-weighted selector that ranks them for a message
// plan, and the realizer that renders a selected construction to text.
package construction

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"palaver/internal/dialogue"
)

// GrammarLevel places a construction in the three-layer template hierarchy.
// Deep constructions encode abstract communicative frames, surface ones are
// near-literal phrasings.
type GrammarLevel string

const (
	LevelDeep    GrammarLevel = "deep"
	LevelMiddle  GrammarLevel = "middle"
	LevelSurface GrammarLevel = "surface"
)

// Source records where a construction came from.
type Source string

const (
	SourceHuman     Source = "human"   // hand-authored default
	SourceLearned   Source = "learned" // promoted from episode patterns
	SourceAdapted   Source = "adapted" // human template adjusted by learning
	SourceGenerated Source = "generated"
)

// Slot is one fillable parameter of a construction template.
type Slot struct {
	Name          string   `json:"name" yaml:"name"`
	Type          string   `json:"type" yaml:"type"` // "text", "topic", "list"
	Required      bool     `json:"required" yaml:"required"`
	MinLength     int      `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength     int      `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty" yaml:"allowed_values,omitempty"`
	Default       string   `json:"default,omitempty" yaml:"default,omitempty"`
}

// ValidateValue checks a candidate slot value against the slot's rules.
func (s Slot) ValidateValue(value string) error {
	if value == "" {
		if s.Required && s.Default == "" {
			return fmt.Errorf("slot %q: required value missing", s.Name)
		}
		return nil
	}
	if s.MinLength > 0 && len(value) < s.MinLength {
		return fmt.Errorf("slot %q: value shorter than %d", s.Name, s.MinLength)
	}
	if s.MaxLength > 0 && len(value) > s.MaxLength {
		return fmt.Errorf("slot %q: value longer than %d", s.Name, s.MaxLength)
	}
	if len(s.AllowedValues) > 0 {
		for _, allowed := range s.AllowedValues {
			if value == allowed {
				return nil
			}
		}
		return fmt.Errorf("slot %q: value %q not in allowed set", s.Name, value)
	}
	return nil
}

// Form is the surface shape of a construction: a template with {name}
// placeholders and the ordered slots that fill them.
type Form struct {
	Template string `json:"template" yaml:"template"`
	Slots    []Slot `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// ValidateSlots checks a full slot-value map against the form, returning all
// violations rather than stopping at the first.
func (f Form) ValidateSlots(values map[string]string) []error {
	var errs []error
	for _, slot := range f.Slots {
		if err := slot.ValidateValue(values[slot.Name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Meaning ties a form to the communicative work it performs.
type Meaning struct {
	Acts          []dialogue.DialogueAct `json:"acts" yaml:"acts"`
	Tone          dialogue.ToneType      `json:"tone,omitempty" yaml:"tone,omitempty"`
	Preconditions []string               `json:"preconditions,omitempty" yaml:"preconditions,omitempty"`
	Effects       []string               `json:"effects,omitempty" yaml:"effects,omitempty"`
}

// MatchesAct reports whether the construction performs the given act.
func (m Meaning) MatchesAct(act dialogue.DialogueAct) bool {
	for _, a := range m.Acts {
		if a == act {
			return true
		}
	}
	return false
}

// Construction is one reusable response template with live usage counters.
// Identity is stable for the construction's lifetime; constructions are never
// deleted, only deprecated by falling in ranking. The counters are advisory
// caches corrected by the aggregator from the episode log.
type Construction struct {
	ID           string       `json:"id" yaml:"id"`
	Level        GrammarLevel `json:"level" yaml:"level"`
	Form         Form         `json:"form" yaml:"form"`
	Meaning      Meaning      `json:"meaning" yaml:"meaning"`
	Source       Source       `json:"source" yaml:"source"`
	SuccessCount int          `json:"success_count" yaml:"-"`
	FailureCount int          `json:"failure_count" yaml:"-"`
	Confidence   float64      `json:"confidence" yaml:"confidence"`
	LastUsed     time.Time    `json:"last_used,omitempty" yaml:"-"`
}

// TotalUses is the number of recorded outcomes of either kind.
func (c *Construction) TotalUses() int {
	return c.SuccessCount + c.FailureCount
}

// SuccessRate is the observed success share, 0.5 when unused.
func (c *Construction) SuccessRate() float64 {
	total := c.TotalUses()
	if total == 0 {
		return 0.5
	}
	return float64(c.SuccessCount) / float64(total)
}

// IsReliable reports whether the construction has enough history, and a good
// enough record, to be trusted in risk-sensitive contexts.
func (c *Construction) IsReliable() bool {
	return c.TotalUses() >= 3 && c.SuccessRate() >= 0.7
}

// RecordSuccess notes a successful realization and nudges confidence up.
func (c *Construction) RecordSuccess() {
	c.SuccessCount++
	c.Confidence = minf(1.0, c.Confidence+0.05)
	c.LastUsed = time.Now().UTC()
}

// RecordFailure notes a failed realization and pulls confidence down harder
// than a success pushes it up.
func (c *Construction) RecordFailure() {
	c.FailureCount++
	c.Confidence = maxf(0.0, c.Confidence-0.1)
	c.LastUsed = time.Now().UTC()
}

// Realize validates the slot values and fills the template. Placeholders
// with no value fall back to the slot default; a remaining unfilled
// placeholder is a validation error.
func (c *Construction) Realize(values map[string]string) (string, error) {
	if errs := c.Form.ValidateSlots(values); len(errs) > 0 {
		return "", fmt.Errorf("construction %s: %v", c.ID, errs[0])
	}
	out := c.Form.Template
	for _, slot := range c.Form.Slots {
		value := values[slot.Name]
		if value == "" {
			value = slot.Default
		}
		out = strings.ReplaceAll(out, "{"+slot.Name+"}", value)
	}
	if i := strings.IndexByte(out, '{'); i >= 0 && strings.IndexByte(out[i:], '}') > 0 {
		return "", fmt.Errorf("construction %s: unfilled placeholder near %q", c.ID, out[i:])
	}
	return out, nil
}

// NewID returns a fresh construction id.
func NewID() string {
	u := uuid.New()
	return "cons_" + hex.EncodeToString(u[:])[:12]
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
