package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"palaver/internal/dialogue"
)

// GeminiGenerator renders a plan through the Gemini API. Every call runs
// under a hard timeout; the pipeline treats any error as "use the fallback".
type GeminiGenerator struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGeminiGenerator builds the client. Fails fast when no key is set so the
// caller can fall back to Disabled at startup instead of at turn time.
func NewGeminiGenerator(ctx context.Context, opts Options, logger *zap.Logger) (*GeminiGenerator, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("gemini generator: %w", ErrGeneratorDisabled)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	model := opts.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &GeminiGenerator{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  logger.Named("gemini"),
	}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, plan *dialogue.MessagePlan, situation *dialogue.SituationModel) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := buildPrompt(plan, situation)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		g.logger.Warn("generation failed", zap.Error(err))
		return "", fmt.Errorf("generating for plan %s: %w", plan.ID, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("generating for plan %s: empty response", plan.ID)
	}
	g.logger.Debug("generated", zap.String("plan_id", plan.ID), zap.Int("chars", len(text)))
	return text, nil
}
