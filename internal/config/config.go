// Package config loads and validates the agent configuration. Every
// hand-tuned constant in the decision pipeline and the learning loop lives
// here so deployments can adjust them without a rebuild.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Acts     ActsConfig     `yaml:"acts"`
	Risk     RiskConfig     `yaml:"risk"`
	Selector SelectorConfig `yaml:"selector"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Critique CritiqueConfig `yaml:"critique"`
	Learning LearningConfig `yaml:"learning"`
	Generate GenerateConfig `yaml:"generate"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PipelineConfig controls the per-turn orchestrator.
type PipelineConfig struct {
	MaxRevisionAttempts int    `yaml:"max_revision_attempts"`
	MaxOutputLength     int    `yaml:"max_output_length"`
	FeedbackWindowHours int    `yaml:"feedback_window_hours"` // explicit feedback attachment window
	CatalogPath         string `yaml:"catalog_path"`
	WatchCatalog        bool   `yaml:"watch_catalog"`
}

// ActsConfig controls dialogue act selection.
type ActsConfig struct {
	Strategy          string  `yaml:"strategy"` // conservative | balanced | expressive
	MaxPrimaryActs    int     `yaml:"max_primary_acts"`
	MaxSecondaryActs  int     `yaml:"max_secondary_acts"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"`
}

// RiskConfig holds category weights and level thresholds for the risk scorer.
// Thresholds must be strictly increasing so every score maps to exactly one
// level.
type RiskConfig struct {
	EthicalWeight    float64 `yaml:"ethical_weight"`
	TrustWeight      float64 `yaml:"trust_weight"`
	SafetyWeight     float64 `yaml:"safety_weight"`
	StructuralWeight float64 `yaml:"structural_weight"`

	MediumThreshold   float64 `yaml:"medium_threshold"`
	HighThreshold     float64 `yaml:"high_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`
}

// SelectorConfig controls construction selection.
type SelectorConfig struct {
	ActMatchWeight      float64 `yaml:"act_match_weight"`
	ToneMatchWeight     float64 `yaml:"tone_match_weight"`
	ConstraintFitWeight float64 `yaml:"constraint_fit_weight"`
	ConfidenceWeight    float64 `yaml:"confidence_weight"`
	MinScoreThreshold   float64 `yaml:"min_score_threshold"`
	MaxPerAct           int     `yaml:"max_per_act"`
}

// FeedbackConfig holds the Bayesian smoothing and cold-start constants used
// by the feedback scorer. The defaults are hand-tuned; treat them as a
// starting point, not ground truth.
type FeedbackConfig struct {
	ExplicitWinWeight  float64 `yaml:"explicit_win_weight"`
	ExplicitLossWeight float64 `yaml:"explicit_loss_weight"`
	ImplicitWinWeight  float64 `yaml:"implicit_win_weight"`
	ImplicitLossWeight float64 `yaml:"implicit_loss_weight"`
	PriorWins          float64 `yaml:"prior_wins"`   // Beta prior alpha
	PriorLosses        float64 `yaml:"prior_losses"` // Beta prior beta
	FullInfluenceUses  int     `yaml:"full_influence_uses"`
}

// CritiqueConfig controls the post-render self-critique pass.
type CritiqueConfig struct {
	Enabled           bool    `yaml:"enabled"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"`
	CheckTone         bool    `yaml:"check_tone"`
	CheckCoverage     bool    `yaml:"check_coverage"`
	CheckConstraints  bool    `yaml:"check_constraints"`
	AutoRevise        bool    `yaml:"auto_revise"`
}

// LearningConfig holds the similarity and MDL weights used by the offline
// learning loop.
type LearningConfig struct {
	TextWeight    float64 `yaml:"text_weight"`
	IntentWeight  float64 `yaml:"intent_weight"`
	EmotionWeight float64 `yaml:"emotion_weight"`
	ActsWeight    float64 `yaml:"acts_weight"`

	SimilarThreshold float64 `yaml:"similar_threshold"`
	ClusterThreshold float64 `yaml:"cluster_threshold"`

	CompressionWeight float64 `yaml:"compression_weight"`
	DiversityWeight   float64 `yaml:"diversity_weight"`
	RiskWeight        float64 `yaml:"risk_weight"`
}

// GenerateConfig configures the optional last-resort external generator.
// Disabled unless explicitly enabled and an API key is present.
type GenerateConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Model          string `yaml:"model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LoggingConfig controls the per-category debug file logs.
type LoggingConfig struct {
	FileLogging bool     `yaml:"file_logging"`
	Level       int      `yaml:"level"` // 0=error 1=warn 2=info 3=debug
	Categories  []string `yaml:"categories,omitempty"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Pipeline: PipelineConfig{
			MaxRevisionAttempts: 2,
			MaxOutputLength:     2000,
			FeedbackWindowHours: 24,
			WatchCatalog:        false,
		},
		Acts: ActsConfig{
			Strategy:          "balanced",
			MaxPrimaryActs:    3,
			MaxSecondaryActs:  2,
			MinScoreThreshold: 0.3,
		},
		Risk: RiskConfig{
			EthicalWeight:     0.35,
			TrustWeight:       0.25,
			SafetyWeight:      0.25,
			StructuralWeight:  0.15,
			MediumThreshold:   0.25,
			HighThreshold:     0.50,
			CriticalThreshold: 0.75,
		},
		Selector: SelectorConfig{
			ActMatchWeight:      0.40,
			ToneMatchWeight:     0.25,
			ConstraintFitWeight: 0.15,
			ConfidenceWeight:    0.20,
			MinScoreThreshold:   0.3,
			MaxPerAct:           3,
		},
		Feedback: FeedbackConfig{
			ExplicitWinWeight:  1.0,
			ExplicitLossWeight: 1.0,
			ImplicitWinWeight:  0.3,
			ImplicitLossWeight: 0.5,
			PriorWins:          1.0,
			PriorLosses:        1.0,
			FullInfluenceUses:  10,
		},
		Critique: CritiqueConfig{
			Enabled:           true,
			MinScoreThreshold: 0.6,
			CheckTone:         true,
			CheckCoverage:     true,
			CheckConstraints:  true,
			AutoRevise:        true,
		},
		Learning: LearningConfig{
			TextWeight:        0.30,
			IntentWeight:      0.25,
			EmotionWeight:     0.20,
			ActsWeight:        0.25,
			SimilarThreshold:  0.80,
			ClusterThreshold:  0.70,
			CompressionWeight: 0.5,
			DiversityWeight:   0.3,
			RiskWeight:        0.2,
		},
		Generate: GenerateConfig{
			Enabled:        false,
			Model:          "gemini-2.0-flash",
			APIKeyEnv:      "GEMINI_API_KEY",
			TimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			FileLogging: false,
			Level:       2,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".palaver"
	}
	return filepath.Join(home, ".palaver")
}

// Load reads a YAML config file layered over the defaults. A missing file is
// not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field invariants that yaml decoding cannot express.
func (c *Config) Validate() error {
	r := c.Risk
	if !(r.MediumThreshold < r.HighThreshold && r.HighThreshold < r.CriticalThreshold) {
		return fmt.Errorf("risk thresholds must be strictly increasing: %.2f, %.2f, %.2f",
			r.MediumThreshold, r.HighThreshold, r.CriticalThreshold)
	}
	sum := c.Learning.TextWeight + c.Learning.IntentWeight + c.Learning.EmotionWeight + c.Learning.ActsWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("learning similarity weights must sum to 1.0, got %.3f", sum)
	}
	if c.Feedback.FullInfluenceUses <= 0 {
		return fmt.Errorf("feedback full_influence_uses must be positive, got %d", c.Feedback.FullInfluenceUses)
	}
	if c.Pipeline.MaxRevisionAttempts < 0 {
		return fmt.Errorf("pipeline max_revision_attempts must not be negative")
	}
	if c.Pipeline.MaxOutputLength != 0 && c.Pipeline.MaxOutputLength < 20 {
		return fmt.Errorf("pipeline max_output_length must be 0 (default) or at least 20, got %d",
			c.Pipeline.MaxOutputLength)
	}
	switch c.Acts.Strategy {
	case "conservative", "balanced", "expressive":
	default:
		return fmt.Errorf("unknown act selection strategy %q", c.Acts.Strategy)
	}
	return nil
}

// Save writes the config as YAML, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
