package construction

import (
	"strings"

	"palaver/internal/dialogue"
)

// Realizer renders a construction with concrete slot values. The default
// implementation is the pure template filler; an external generator can be
// substituted behind the same interface.
type Realizer interface {
	Realize(cons *Construction, values map[string]string) (string, error)
}

// TemplateRealizer fills {name} placeholders from the slot-value map after
// validation. Pure; no I/O.
type TemplateRealizer struct{}

// NewTemplateRealizer returns the default realizer.
func NewTemplateRealizer() *TemplateRealizer { return &TemplateRealizer{} }

// Realize implements Realizer.
func (r *TemplateRealizer) Realize(cons *Construction, values map[string]string) (string, error) {
	return cons.Realize(values)
}

// SlotValues derives the standard slot-value map for a plan: the topic from
// the situation, the detail from the plan's highest-priority content points.
func SlotValues(plan *dialogue.MessagePlan, situation *dialogue.SituationModel) map[string]string {
	topic := situation.TopicDomain
	if len(situation.KeyEntities) > 0 {
		topic = situation.KeyEntities[0]
	}
	if topic == "" || topic == "general" {
		topic = "that"
	}

	var details []string
	for _, cp := range plan.ContentPoints {
		if cp.Required {
			details = append(details, cp.Value)
		}
		if len(details) >= 2 {
			break
		}
	}

	return map[string]string{
		"topic":  topic,
		"detail": strings.Join(details, " "),
	}
}
