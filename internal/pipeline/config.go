// Package pipeline orchestrates the full response path for one turn:
// situation, acts, plan, risk, approval, construction, render, critique,
// episode. It owns no persistent state beyond what the stores it is handed
// persist.
package pipeline

import "palaver/internal/dialogue"

// CritiqueConfig controls the self-critique stage. The revision loop itself
// is bounded by Config.MaxRevisionAttempts; the critic only evaluates.
type CritiqueConfig struct {
	Enabled           bool
	MinScoreThreshold float64
	CheckToneMatch    bool
	CheckCoverage     bool
	CheckConstraints  bool
	AutoRevise        bool
}

// DefaultCritiqueConfig returns the tuned defaults: all checks on, pass at
// 0.6.
func DefaultCritiqueConfig() CritiqueConfig {
	return CritiqueConfig{
		Enabled:           true,
		MinScoreThreshold: 0.6,
		CheckToneMatch:    true,
		CheckCoverage:     true,
		CheckConstraints:  true,
		AutoRevise:        true,
	}
}

// Config is the orchestrator's configuration.
type Config struct {
	EnableRiskAssessment bool
	EnableApprovalCheck  bool
	EnableSelfCritique   bool
	MaxRevisionAttempts  int
	MaxOutputLength      int
	FallbackResponse     string
	DefaultTone          dialogue.ToneType
	Critique             CritiqueConfig
}

// Balanced is the default preset: every stage on with the tuned thresholds.
func Balanced() Config {
	return Config{
		EnableRiskAssessment: true,
		EnableApprovalCheck:  true,
		EnableSelfCritique:   true,
		MaxRevisionAttempts:  2,
		MaxOutputLength:      2000,
		FallbackResponse:     "I didn't quite catch that. Could you say it again?",
		DefaultTone:          dialogue.ToneNeutral,
		Critique:             DefaultCritiqueConfig(),
	}
}

// Minimal trades every safety stage for latency. Meant for benchmarks and
// offline tooling, not for user-facing sessions.
func Minimal() Config {
	cfg := Balanced()
	cfg.EnableRiskAssessment = false
	cfg.EnableApprovalCheck = false
	cfg.EnableSelfCritique = false
	cfg.MaxRevisionAttempts = 0
	cfg.Critique.Enabled = false
	return cfg
}

// Strict raises the critique bar and allows an extra revision round.
func Strict() Config {
	cfg := Balanced()
	cfg.MaxRevisionAttempts = 3
	cfg.Critique.MinScoreThreshold = 0.8
	return cfg
}
