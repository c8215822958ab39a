package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const statsSchema = `
CREATE TABLE IF NOT EXISTS construction_stats (
	construction_id TEXT PRIMARY KEY,
	total_uses INTEGER NOT NULL DEFAULT 0,
	explicit_pos INTEGER NOT NULL DEFAULT 0,
	explicit_neg INTEGER NOT NULL DEFAULT 0,
	implicit_pos INTEGER NOT NULL DEFAULT 0,
	implicit_neg INTEGER NOT NULL DEFAULT 0,
	cached_score REAL NOT NULL DEFAULT 0.5,
	last_updated INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS aggregation_watermark (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	last_seq INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);
`

// StatsStore persists per-construction feedback statistics. The live pipeline
// reads through it (it satisfies the selector's StatsReader); only the
// aggregator writes, through the transactional helpers.
type StatsStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStatsStore initializes the statistics schema on an open database.
func NewStatsStore(db *sql.DB, logger *zap.Logger) (*StatsStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(statsSchema); err != nil {
		return nil, fmt.Errorf("initializing stats schema: %w", err)
	}
	return &StatsStore{db: db, logger: logger.Named("stats")}, nil
}

// GetStats returns the stats row for a construction, or a fresh neutral
// record when none has been aggregated yet.
func (s *StatsStore) GetStats(constructionID string) (*ConstructionStats, error) {
	row := s.db.QueryRow(`
		SELECT construction_id, total_uses, explicit_pos, explicit_neg,
		       implicit_pos, implicit_neg, cached_score, last_updated
		FROM construction_stats WHERE construction_id = ?`, constructionID)
	stats, err := scanStats(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return NewConstructionStats(constructionID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading stats for %s: %w", constructionID, err)
	}
	return stats, nil
}

// TopRated returns up to n stats rows ordered by cached score descending,
// id ascending on ties.
func (s *StatsStore) TopRated(ctx context.Context, n int) ([]*ConstructionStats, error) {
	return s.queryStats(ctx, `
		SELECT construction_id, total_uses, explicit_pos, explicit_neg,
		       implicit_pos, implicit_neg, cached_score, last_updated
		FROM construction_stats
		ORDER BY cached_score DESC, construction_id ASC LIMIT ?`, n)
}

// MostUsed returns up to n stats rows ordered by total uses descending.
func (s *StatsStore) MostUsed(ctx context.Context, n int) ([]*ConstructionStats, error) {
	return s.queryStats(ctx, `
		SELECT construction_id, total_uses, explicit_pos, explicit_neg,
		       implicit_pos, implicit_neg, cached_score, last_updated
		FROM construction_stats
		ORDER BY total_uses DESC, construction_id ASC LIMIT ?`, n)
}

// All returns every stats row, id ascending.
func (s *StatsStore) All(ctx context.Context) ([]*ConstructionStats, error) {
	return s.queryStats(ctx, `
		SELECT construction_id, total_uses, explicit_pos, explicit_neg,
		       implicit_pos, implicit_neg, cached_score, last_updated
		FROM construction_stats ORDER BY construction_id ASC`)
}

func (s *StatsStore) queryStats(ctx context.Context, q string, args ...any) ([]*ConstructionStats, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	var out []*ConstructionStats
	for rows.Next() {
		stats, err := scanStats(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

func scanStats(scan func(...any) error) (*ConstructionStats, error) {
	var stats ConstructionStats
	var updated int64
	err := scan(&stats.ConstructionID, &stats.TotalUses,
		&stats.ExplicitPos, &stats.ExplicitNeg,
		&stats.ImplicitPos, &stats.ImplicitNeg,
		&stats.CachedScore, &updated)
	if err != nil {
		return nil, err
	}
	stats.LastUpdated = time.UnixMilli(updated)
	return &stats, nil
}

// getStatsTx loads stats inside an aggregation transaction.
func getStatsTx(ctx context.Context, tx *sql.Tx, constructionID string) (*ConstructionStats, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT construction_id, total_uses, explicit_pos, explicit_neg,
		       implicit_pos, implicit_neg, cached_score, last_updated
		FROM construction_stats WHERE construction_id = ?`, constructionID)
	stats, err := scanStats(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return NewConstructionStats(constructionID), nil
	}
	return stats, err
}

// upsertStatsTx writes stats inside an aggregation transaction.
func upsertStatsTx(ctx context.Context, tx *sql.Tx, stats *ConstructionStats) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO construction_stats
			(construction_id, total_uses, explicit_pos, explicit_neg,
			 implicit_pos, implicit_neg, cached_score, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(construction_id) DO UPDATE SET
			total_uses = excluded.total_uses,
			explicit_pos = excluded.explicit_pos,
			explicit_neg = excluded.explicit_neg,
			implicit_pos = excluded.implicit_pos,
			implicit_neg = excluded.implicit_neg,
			cached_score = excluded.cached_score,
			last_updated = excluded.last_updated`,
		stats.ConstructionID, stats.TotalUses,
		stats.ExplicitPos, stats.ExplicitNeg,
		stats.ImplicitPos, stats.ImplicitNeg,
		stats.CachedScore, stats.LastUpdated.UnixMilli())
	if err != nil {
		return fmt.Errorf("upserting stats for %s: %w", stats.ConstructionID, err)
	}
	return nil
}

// watermarkTx reads the aggregation watermark inside a transaction; zero
// when aggregation has never run.
func watermarkTx(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx,
		`SELECT last_seq FROM aggregation_watermark WHERE id = 1`).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading watermark: %w", err)
	}
	return seq, nil
}

// advanceWatermarkTx moves the watermark forward inside the same transaction
// that consumed the episodes below it.
func advanceWatermarkTx(ctx context.Context, tx *sql.Tx, seq int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO aggregation_watermark (id, last_seq, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_seq = MAX(last_seq, excluded.last_seq),
			updated_at = excluded.updated_at`,
		seq, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}
	return nil
}
