package episode

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"palaver/internal/dialogue"
)

// Sentinel outcomes for the store's contract.
var (
	// ErrEpisodeNotFound is returned when no episode has the given id.
	ErrEpisodeNotFound = errors.New("episode not found")
	// ErrFeedbackWindowClosed is returned when feedback arrives after the
	// bounded correction window for the episode.
	ErrFeedbackWindowClosed = errors.New("feedback correction window closed")
)

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	intent TEXT NOT NULL DEFAULT '',
	act TEXT NOT NULL DEFAULT '',
	construction_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	consumed_at INTEGER,
	payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_session ON episodes(session_id);
CREATE INDEX IF NOT EXISTS idx_episodes_intent ON episodes(intent);
CREATE INDEX IF NOT EXISTS idx_episodes_act ON episodes(act);
CREATE INDEX IF NOT EXISTS idx_episodes_created ON episodes(created_at);
CREATE INDEX IF NOT EXISTS idx_episodes_unconsumed ON episodes(seq) WHERE consumed_at IS NULL;
`

// Store persists episodes append-only in sqlite. Each turn writes exactly
// one row; the only post-hoc mutation is the single-record feedback
// attachment inside the correction window.
type Store struct {
	db     *sql.DB
	window time.Duration
	logger *zap.Logger
}

// NewStore initializes the episode schema on an open database. window bounds
// post-hoc feedback attachment; zero means 24h.
func NewStore(db *sql.DB, window time.Duration, logger *zap.Logger) (*Store, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("initializing episode schema: %w", err)
	}
	return &Store{db: db, window: window, logger: logger.Named("episodes")}, nil
}

// Save appends one episode. The caller retries on failure; losing episodes
// silently would corrupt the learning loop.
func (s *Store) Save(ctx context.Context, ep *EpisodeLog) error {
	payload, err := json.Marshal(ep)
	if err != nil {
		return fmt.Errorf("marshaling episode %s: %w", ep.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO episodes (id, session_id, intent, act, construction_id, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.SessionID, ep.IntentPrimary, string(ep.PrimaryAct()),
		ep.ConstructionID, ep.Timestamp.UnixMilli(), string(payload))
	if err != nil {
		return fmt.Errorf("inserting episode %s: %w", ep.ID, err)
	}
	s.logger.Debug("episode saved", zap.String("id", ep.ID), zap.String("session", ep.SessionID))
	return nil
}

// GetByID returns the episode with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (*EpisodeLog, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM episodes WHERE id = ?`, id)
	return scanEpisode(row)
}

// GetRecent returns the newest n episodes, newest first.
func (s *Store) GetRecent(ctx context.Context, n int) ([]*EpisodeLog, error) {
	return s.query(ctx, `SELECT payload FROM episodes ORDER BY seq DESC LIMIT ?`, n)
}

// GetBySession returns a session's episodes in turn order.
func (s *Store) GetBySession(ctx context.Context, sessionID string) ([]*EpisodeLog, error) {
	return s.query(ctx, `SELECT payload FROM episodes WHERE session_id = ? ORDER BY seq ASC`, sessionID)
}

// GetByIntent returns episodes with the given recognized intent, newest first.
func (s *Store) GetByIntent(ctx context.Context, intent string) ([]*EpisodeLog, error) {
	return s.query(ctx, `SELECT payload FROM episodes WHERE intent = ? ORDER BY seq DESC`, intent)
}

// GetByAct returns episodes whose primary act matches, newest first.
func (s *Store) GetByAct(ctx context.Context, act dialogue.DialogueAct) ([]*EpisodeLog, error) {
	return s.query(ctx, `SELECT payload FROM episodes WHERE act = ? ORDER BY seq DESC`, string(act))
}

// Count returns the number of stored episodes.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting episodes: %w", err)
	}
	return n, nil
}

// AttachExplicitFeedback sets the explicit feedback of one recent episode.
// Single-record update by id, never a scan. Distinct outcomes: nil,
// ErrEpisodeNotFound, ErrFeedbackWindowClosed.
func (s *Store) AttachExplicitFeedback(ctx context.Context, id string, score int) error {
	if score < -1 || score > 1 {
		return fmt.Errorf("explicit feedback must be -1, 0 or +1, got %d", score)
	}
	return s.attach(ctx, id, func(ep *EpisodeLog) {
		ep.ExplicitFeedback = &score
	})
}

// AttachImplicitFeedback records post-turn behavioral signals on one episode,
// under the same correction window as explicit feedback.
func (s *Store) AttachImplicitFeedback(ctx context.Context, id string, implicit ImplicitFeedback) error {
	return s.attach(ctx, id, func(ep *EpisodeLog) {
		ep.Implicit = implicit
	})
}

func (s *Store) attach(ctx context.Context, id string, update func(*EpisodeLog)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning feedback tx: %w", err)
	}
	defer tx.Rollback()

	var createdAt int64
	var payload string
	err = tx.QueryRowContext(ctx,
		`SELECT created_at, payload FROM episodes WHERE id = ?`, id).Scan(&createdAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("episode %s: %w", id, ErrEpisodeNotFound)
	}
	if err != nil {
		return fmt.Errorf("loading episode %s: %w", id, err)
	}
	if time.Since(time.UnixMilli(createdAt)) > s.window {
		return fmt.Errorf("episode %s: %w", id, ErrFeedbackWindowClosed)
	}

	var ep EpisodeLog
	if err := json.Unmarshal([]byte(payload), &ep); err != nil {
		return fmt.Errorf("decoding episode %s: %w", id, err)
	}
	update(&ep)
	updated, err := json.Marshal(&ep)
	if err != nil {
		return fmt.Errorf("encoding episode %s: %w", id, err)
	}
	// Feedback re-opens the episode for aggregation; the aggregator diffs
	// against the stored marks, so only the new signal is counted.
	if _, err := tx.ExecContext(ctx,
		`UPDATE episodes SET payload = ?, consumed_at = NULL WHERE id = ?`, string(updated), id); err != nil {
		return fmt.Errorf("updating episode %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing feedback for %s: %w", id, err)
	}
	s.logger.Info("feedback attached", zap.String("id", id))
	return nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]*EpisodeLog, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying episodes: %w", err)
	}
	defer rows.Close()

	var out []*EpisodeLog
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning episode row: %w", err)
		}
		var ep EpisodeLog
		if err := json.Unmarshal([]byte(payload), &ep); err != nil {
			return nil, fmt.Errorf("decoding episode payload: %w", err)
		}
		out = append(out, &ep)
	}
	return out, rows.Err()
}

func scanEpisode(row *sql.Row) (*EpisodeLog, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEpisodeNotFound
		}
		return nil, fmt.Errorf("scanning episode: %w", err)
	}
	var ep EpisodeLog
	if err := json.Unmarshal([]byte(payload), &ep); err != nil {
		return nil, fmt.Errorf("decoding episode payload: %w", err)
	}
	return &ep, nil
}

// Stored pairs an episode with its storage sequence number, used by the
// aggregator's watermark.
type Stored struct {
	Seq     int64
	Episode *EpisodeLog
}

// UnconsumedTx reads up to limit unconsumed episodes inside an aggregation
// transaction, in insertion order.
func UnconsumedTx(ctx context.Context, tx *sql.Tx, limit int) ([]Stored, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT seq, payload FROM episodes WHERE consumed_at IS NULL ORDER BY seq ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unconsumed episodes: %w", err)
	}
	defer rows.Close()

	var out []Stored
	for rows.Next() {
		var seq int64
		var payload string
		if err := rows.Scan(&seq, &payload); err != nil {
			return nil, fmt.Errorf("scanning unconsumed row: %w", err)
		}
		var ep EpisodeLog
		if err := json.Unmarshal([]byte(payload), &ep); err != nil {
			return nil, fmt.Errorf("decoding unconsumed payload: %w", err)
		}
		out = append(out, Stored{Seq: seq, Episode: &ep})
	}
	return out, rows.Err()
}

// MarkConsumedTx writes back each episode's aggregation marks and stamps
// consumed_at inside the same transaction that applied the statistics, which
// is what makes aggregation idempotent even for re-opened episodes.
func MarkConsumedTx(ctx context.Context, tx *sql.Tx, batch []Stored) error {
	now := time.Now().UnixMilli()
	for _, st := range batch {
		payload, err := json.Marshal(st.Episode)
		if err != nil {
			return fmt.Errorf("encoding episode seq %d: %w", st.Seq, err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE episodes SET payload = ?, consumed_at = ? WHERE seq = ?`,
			string(payload), now, st.Seq); err != nil {
			return fmt.Errorf("marking episode seq %d consumed: %w", st.Seq, err)
		}
	}
	return nil
}
