// Package generate is the optional external text generator behind the
// template realizer. The pipeline only reaches for it when no catalog
// construction can serve a plan, and every failure degrades to the fixed
// fallback text rather than surfacing to the user.
package generate

import (
	"context"
	"errors"
	"strings"
	"time"

	"palaver/internal/dialogue"
)

// ErrGeneratorDisabled is returned by the no-op generator so callers can
// tell "not configured" from a real generation failure.
var ErrGeneratorDisabled = errors.New("external generator disabled")

// Generator produces free text for a plan when the catalog cannot.
type Generator interface {
	Generate(ctx context.Context, plan *dialogue.MessagePlan, situation *dialogue.SituationModel) (string, error)
}

// Options configure the external generator.
type Options struct {
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Disabled is the generator used when no API key is configured.
type Disabled struct{}

// Generate always fails with ErrGeneratorDisabled.
func (Disabled) Generate(context.Context, *dialogue.MessagePlan, *dialogue.SituationModel) (string, error) {
	return "", ErrGeneratorDisabled
}

// buildPrompt flattens a plan into generation instructions. Kept separate
// from the client so it can be tested without network.
func buildPrompt(plan *dialogue.MessagePlan, situation *dialogue.SituationModel) string {
	var b strings.Builder
	b.WriteString("Write a short conversational reply.\n")
	b.WriteString("Tone: " + string(plan.Tone) + "\n")
	b.WriteString("Goal: " + plan.PrimaryIntent + "\n")
	if situation != nil && situation.TopicDomain != "" {
		b.WriteString("Topic: " + situation.TopicDomain + "\n")
	}
	if len(plan.ContentPoints) > 0 {
		b.WriteString("Cover these points:\n")
		for _, cp := range plan.ContentPoints {
			b.WriteString("- " + cp.Value + "\n")
		}
	}
	for _, c := range plan.Constraints {
		if c.Severity == dialogue.SeverityHigh || c.Severity == dialogue.SeverityCritical {
			b.WriteString("Constraint: " + c.Description + "\n")
		}
	}
	b.WriteString("Reply with the message text only.")
	return b.String()
}
