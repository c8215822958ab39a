package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"palaver/internal/config"
	"palaver/internal/construction"
	"palaver/internal/dialogue"
	"palaver/internal/episode"
	"palaver/internal/feedback"
	"palaver/internal/generate"
	"palaver/internal/learning"
	"palaver/internal/pipeline"
	"palaver/internal/risk"
	"palaver/internal/store"
)

// app wires the whole system together from config. Commands build one,
// use what they need, and Close it.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db         *sql.DB
	episodes   *episode.Store
	stats      *feedback.StatsStore
	scorer     *feedback.Scorer
	aggregator *feedback.Aggregator
	catalog    *construction.Catalog
	watcher    *construction.Watcher
	pipeline   *pipeline.Pipeline
}

func newApp(ctx context.Context) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := store.Open(filepath.Join(cfg.DataDir, "palaver.db"))
	if err != nil {
		return nil, err
	}

	window := time.Duration(cfg.Pipeline.FeedbackWindowHours) * time.Hour
	episodes, err := episode.NewStore(db, window, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	stats, err := feedback.NewStatsStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	scorer := feedback.NewScorer(feedback.ScorerParams{
		ExplicitWinWeight:  cfg.Feedback.ExplicitWinWeight,
		ExplicitLossWeight: cfg.Feedback.ExplicitLossWeight,
		ImplicitWinWeight:  cfg.Feedback.ImplicitWinWeight,
		ImplicitLossWeight: cfg.Feedback.ImplicitLossWeight,
		PriorWins:          cfg.Feedback.PriorWins,
		PriorLosses:        cfg.Feedback.PriorLosses,
		FullInfluenceUses:  cfg.Feedback.FullInfluenceUses,
	})
	aggregator := feedback.NewAggregator(db, scorer, 0, logger)

	catalog, err := loadCatalog()
	if err != nil {
		db.Close()
		return nil, err
	}

	var watcher *construction.Watcher
	if cfg.Pipeline.WatchCatalog {
		watcher, err = construction.NewWatcher(catalog, logger)
		if err != nil {
			logger.Warn("catalog watcher unavailable", zap.Error(err))
		}
	}

	selector := construction.NewSelector(catalog, stats, scorer, construction.SelectorOptions{
		Weights: construction.SelectorWeights{
			ActMatch:      cfg.Selector.ActMatchWeight,
			ToneMatch:     cfg.Selector.ToneMatchWeight,
			ConstraintFit: cfg.Selector.ConstraintFitWeight,
			Confidence:    cfg.Selector.ConfidenceWeight,
		},
		MinScoreThreshold: cfg.Selector.MinScoreThreshold,
		MaxPerAct:         cfg.Selector.MaxPerAct,
	}, logger)

	generator := buildGenerator(ctx)

	pipe := pipeline.New(pipelineConfig(), pipeline.Deps{
		Situations: dialogue.NewSituationBuilder(dialogue.DefaultSituationBuilderConfig(), logger),
		Acts: dialogue.NewActSelector(dialogue.ActSelectorConfig{
			MaxPrimaryActs:    cfg.Acts.MaxPrimaryActs,
			MaxSecondaryActs:  cfg.Acts.MaxSecondaryActs,
			MinScoreThreshold: cfg.Acts.MinScoreThreshold,
			Strategy:          dialogue.SelectionStrategy(cfg.Acts.Strategy),
			EnableEthicsCheck: true,
			EnableAffect:      true,
		}, logger),
		Planner: dialogue.NewMessagePlanner(dialogue.DefaultMessagePlannerConfig(), logger),
		Risks: risk.NewScorer(risk.Weights{
			Ethical:    cfg.Risk.EthicalWeight,
			Trust:      cfg.Risk.TrustWeight,
			Safety:     cfg.Risk.SafetyWeight,
			Structural: cfg.Risk.StructuralWeight,
		}, risk.Thresholds{
			Medium:   cfg.Risk.MediumThreshold,
			High:     cfg.Risk.HighThreshold,
			Critical: cfg.Risk.CriticalThreshold,
		}, logger),
		Approver: risk.NewApprover(logger),
		Catalog:  catalog,
		Selector: selector,
		Realizer: construction.NewTemplateRealizer(),
		Critic: pipeline.NewCritic(pipeline.CritiqueConfig{
			Enabled:           cfg.Critique.Enabled,
			MinScoreThreshold: cfg.Critique.MinScoreThreshold,
			CheckToneMatch:    cfg.Critique.CheckTone,
			CheckCoverage:     cfg.Critique.CheckCoverage,
			CheckConstraints:  cfg.Critique.CheckConstraints,
			AutoRevise:        cfg.Critique.AutoRevise,
		}, logger),
		Episodes:  episodes,
		Generator: generator,
	}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		episodes:   episodes,
		stats:      stats,
		scorer:     scorer,
		aggregator: aggregator,
		catalog:    catalog,
		watcher:    watcher,
		pipeline:   pipe,
	}, nil
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// similarity and evaluator build the learning components from config.
func (a *app) similarity() *learning.Similarity {
	return learning.NewSimilarity(learning.SimilarityConfig{
		TextWeight:       a.cfg.Learning.TextWeight,
		IntentWeight:     a.cfg.Learning.IntentWeight,
		EmotionWeight:    a.cfg.Learning.EmotionWeight,
		ActWeight:        a.cfg.Learning.ActsWeight,
		SimilarThreshold: a.cfg.Learning.SimilarThreshold,
		ClusterThreshold: a.cfg.Learning.ClusterThreshold,
	})
}

func (a *app) evaluator() *learning.Evaluator {
	return learning.NewEvaluator(learning.MDLConfig{
		CompressionWeight:     a.cfg.Learning.CompressionWeight,
		DiversityWeight:       a.cfg.Learning.DiversityWeight,
		RiskWeight:            a.cfg.Learning.RiskWeight,
		MinEpisodes:           2,
		IntentDiversityBonus:  0.1,
		EmotionDiversityBonus: 0.1,
		UniquePatternBonus:    0.1,
	})
}

func pipelineConfig() pipeline.Config {
	pc := pipeline.Balanced()
	pc.MaxRevisionAttempts = cfg.Pipeline.MaxRevisionAttempts
	if cfg.Pipeline.MaxOutputLength > 0 {
		pc.MaxOutputLength = cfg.Pipeline.MaxOutputLength
	}
	pc.EnableSelfCritique = cfg.Critique.Enabled
	return pc
}

func loadCatalog() (*construction.Catalog, error) {
	if cfg.Pipeline.CatalogPath == "" {
		return construction.NewCatalog(), nil
	}
	return construction.LoadCatalog(cfg.Pipeline.CatalogPath)
}

func buildGenerator(ctx context.Context) generate.Generator {
	if !cfg.Generate.Enabled {
		return nil
	}
	apiKey := os.Getenv(cfg.Generate.APIKeyEnv)
	gen, err := generate.NewGeminiGenerator(ctx, generate.Options{
		Model:   cfg.Generate.Model,
		APIKey:  apiKey,
		Timeout: time.Duration(cfg.Generate.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Warn("external generator unavailable", zap.Error(err))
		return nil
	}
	return gen
}
