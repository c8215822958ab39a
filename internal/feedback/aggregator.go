package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"palaver/internal/episode"
	"palaver/internal/logging"
)

// ErrAggregationInProgress is returned when a second aggregation pass is
// requested while one is still running.
var ErrAggregationInProgress = errors.New("aggregation already in progress")

// Result summarizes one aggregation pass.
type Result struct {
	EpisodesConsumed     int   `json:"episodes_consumed"`
	ConstructionsUpdated int   `json:"constructions_updated"`
	Watermark            int64 `json:"watermark"`
}

// Aggregator folds unconsumed episodes into construction statistics. Each
// batch is applied, marked consumed, and watermarked inside one transaction,
// so re-running after a crash never double-counts an episode.
type Aggregator struct {
	db        *sql.DB
	scorer    *Scorer
	batchSize int
	logger    *zap.Logger
	running   atomic.Bool
}

// NewAggregator builds an aggregator over the shared database. batchSize
// bounds the episodes consumed per transaction; zero means 200.
func NewAggregator(db *sql.DB, scorer *Scorer, batchSize int, logger *zap.Logger) *Aggregator {
	if batchSize <= 0 {
		batchSize = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{db: db, scorer: scorer, batchSize: batchSize, logger: logger.Named("aggregator")}
}

// Aggregate consumes every pending episode. Concurrent calls fail fast with
// ErrAggregationInProgress rather than queueing.
func (a *Aggregator) Aggregate(ctx context.Context) (Result, error) {
	if !a.running.CompareAndSwap(false, true) {
		return Result{}, ErrAggregationInProgress
	}
	defer a.running.Store(false)
	defer logging.StartTimer(logging.CategoryFeedback, "aggregation pass").Stop()

	var total Result
	updated := make(map[string]bool)
	for {
		res, err := a.aggregateBatch(ctx, updated)
		if err != nil {
			return total, err
		}
		total.EpisodesConsumed += res.EpisodesConsumed
		total.Watermark = res.Watermark
		if res.EpisodesConsumed < a.batchSize {
			break
		}
	}
	total.ConstructionsUpdated = len(updated)
	a.logger.Info("aggregation complete",
		zap.Int("episodes", total.EpisodesConsumed),
		zap.Int("constructions", total.ConstructionsUpdated),
		zap.Int64("watermark", total.Watermark))
	return total, nil
}

func (a *Aggregator) aggregateBatch(ctx context.Context, updated map[string]bool) (Result, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("beginning aggregation tx: %w", err)
	}
	defer tx.Rollback()

	watermark, err := watermarkTx(ctx, tx)
	if err != nil {
		return Result{}, err
	}

	pending, err := episode.UnconsumedTx(ctx, tx, a.batchSize)
	if err != nil {
		return Result{}, err
	}
	if len(pending) == 0 {
		return Result{Watermark: watermark}, nil
	}

	// Touched stats are held in memory for the batch and flushed once, so an
	// episode burst for one construction costs one upsert.
	touched := make(map[string]*ConstructionStats)
	for _, stored := range pending {
		ep := stored.Episode
		if ep.ConstructionID == "" {
			continue
		}
		stats, ok := touched[ep.ConstructionID]
		if !ok {
			stats, err = getStatsTx(ctx, tx, ep.ConstructionID)
			if err != nil {
				return Result{}, err
			}
			touched[ep.ConstructionID] = stats
		}
		a.apply(stats, ep)
	}

	now := time.Now()
	for id, stats := range touched {
		stats.CachedScore = a.scorer.FeedbackMean(stats)
		stats.LastUpdated = now
		if err := upsertStatsTx(ctx, tx, stats); err != nil {
			return Result{}, err
		}
		updated[id] = true
	}

	if err := episode.MarkConsumedTx(ctx, tx, pending); err != nil {
		return Result{}, err
	}
	last := pending[len(pending)-1].Seq
	if err := advanceWatermarkTx(ctx, tx, last); err != nil {
		return Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("committing aggregation batch: %w", err)
	}
	return Result{EpisodesConsumed: len(pending), Watermark: last}, nil
}

// apply folds one episode into the stats, diffing against the episode's
// aggregation marks so a re-opened episode contributes only its new signals.
// The turn itself counts as one use, once, ever; a changed explicit rating
// retracts the previously counted one before tallying the new one. The
// updated marks are persisted alongside consumed_at by the caller.
func (a *Aggregator) apply(stats *ConstructionStats, ep *episode.EpisodeLog) {
	marks := &ep.Aggregated
	if !marks.UseCounted {
		stats.TotalUses++
		marks.UseCounted = true
	}

	explicit := 0
	if ep.ExplicitFeedback != nil {
		explicit = *ep.ExplicitFeedback
	}
	if explicit != marks.Explicit {
		switch {
		case marks.Explicit > 0:
			stats.ExplicitPos--
		case marks.Explicit < 0:
			stats.ExplicitNeg--
		}
		switch {
		case explicit > 0:
			stats.ExplicitPos++
		case explicit < 0:
			stats.ExplicitNeg++
		}
		marks.Explicit = explicit
	}

	tallySignal(&stats.ImplicitPos, marks.Implicit.UserThanked, ep.Implicit.UserThanked)
	tallySignal(&stats.ImplicitPos, marks.Implicit.ConversationContinued, ep.Implicit.ConversationContinued)
	tallySignal(&stats.ImplicitNeg, marks.Implicit.UserRephrased, ep.Implicit.UserRephrased)
	tallySignal(&stats.ImplicitNeg, marks.Implicit.UserComplained, ep.Implicit.UserComplained)
	tallySignal(&stats.ImplicitNeg, marks.Implicit.EndedAbruptly, ep.Implicit.EndedAbruptly)
	marks.Implicit = ep.Implicit
}

// tallySignal counts a boolean signal's transition: newly observed signals
// increment, withdrawn ones decrement, unchanged ones do nothing.
func tallySignal(counter *int, was, is bool) {
	switch {
	case is && !was:
		*counter++
	case was && !is:
		*counter--
	}
}

// RunPeriodic aggregates on a fixed interval until the context is cancelled.
// An in-progress pass makes the tick a no-op.
func (a *Aggregator) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Aggregate(ctx); err != nil && !errors.Is(err, ErrAggregationInProgress) {
				a.logger.Warn("periodic aggregation failed", zap.Error(err))
			}
		}
	}
}
