package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/vozcards/pkg/progress"
	"github.com/MrWong99/vozcards/pkg/types"
)

// Compile-time interface check.
var _ progress.Store = (*Store)(nil)

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithMasteryThreshold sets the success count at which a card is mastered.
// Default: [progress.DefaultMasteryThreshold].
func WithMasteryThreshold(n int) Option {
	return func(s *Store) {
		s.threshold = n
	}
}

// WithClock overrides the time source written to last_attempt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the PostgreSQL-backed progress store. All operations are safe for
// concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	threshold int
	now       func() time.Time
}

// NewStore creates a connection pool to the database at dsn, verifies it with
// a ping and runs [Migrate].
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	s := &Store{
		pool:      pool,
		threshold: progress.DefaultMasteryThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.threshold < 1 {
		s.threshold = progress.DefaultMasteryThreshold
	}
	return s, nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ImportSet implements [progress.Store]. The set row and its cards are
// replaced inside one transaction; cards dropped from the set are deleted
// together with their progress.
func (s *Store) ImportSet(ctx context.Context, set types.CardSet) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const upsertSet = `
			INSERT INTO card_sets (id, name, level, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, level = EXCLUDED.level, updated_at = now()`
		if _, err := tx.Exec(ctx, upsertSet, set.ID, set.Name, set.Level); err != nil {
			return fmt.Errorf("upsert set: %w", err)
		}

		ids := make([]string, 0, len(set.Cards))
		for _, c := range set.Cards {
			ids = append(ids, c.ID)
		}
		const pruneProgress = `
			DELETE FROM card_progress
			WHERE card_id IN (SELECT id FROM flashcards WHERE set_id = $1 AND NOT (id = ANY($2::text[])))`
		if _, err := tx.Exec(ctx, pruneProgress, set.ID, ids); err != nil {
			return fmt.Errorf("prune progress: %w", err)
		}
		const pruneCards = `DELETE FROM flashcards WHERE set_id = $1 AND NOT (id = ANY($2::text[]))`
		if _, err := tx.Exec(ctx, pruneCards, set.ID, ids); err != nil {
			return fmt.Errorf("prune cards: %w", err)
		}

		const upsertCard = `
			INSERT INTO flashcards (id, set_id, position, source_text, target_text, difficulty, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE
			SET set_id = EXCLUDED.set_id,
			    position = EXCLUDED.position,
			    source_text = EXCLUDED.source_text,
			    target_text = EXCLUDED.target_text,
			    difficulty = EXCLUDED.difficulty,
			    image_url = EXCLUDED.image_url`
		batch := &pgx.Batch{}
		for i, c := range set.Cards {
			batch.Queue(upsertCard, c.ID, set.ID, i, c.SourceText, c.TargetText, c.Difficulty, c.ImageURL)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres store: import set %q: %w", set.ID, err)
	}
	return nil
}

// LoadCards implements [progress.CardSource].
func (s *Store) LoadCards(ctx context.Context, cardSetID string) ([]types.Flashcard, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM card_sets WHERE id = $1)`, cardSetID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("postgres store: load cards: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %q", progress.ErrCardSetNotFound, cardSetID)
	}

	const q = `
		SELECT id, source_text, target_text, difficulty, image_url
		FROM   flashcards
		WHERE  set_id = $1
		ORDER  BY position`
	rows, err := s.pool.Query(ctx, q, cardSetID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load cards: %w", err)
	}
	cards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Flashcard, error) {
		var c types.Flashcard
		err := row.Scan(&c.ID, &c.SourceText, &c.TargetText, &c.Difficulty, &c.ImageURL)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan cards: %w", err)
	}
	if cards == nil {
		cards = []types.Flashcard{}
	}
	return cards, nil
}

// LoadProgress implements [progress.Gateway].
func (s *Store) LoadProgress(ctx context.Context, studentID, cardSetID string) ([]types.ProgressRecord, error) {
	const q = `
		SELECT p.student_id, p.card_id, p.attempts, p.success_count, p.mastered, p.last_attempt
		FROM   card_progress p
		JOIN   flashcards f ON f.id = p.card_id
		WHERE  p.student_id = $1
		  AND  f.set_id     = $2`
	rows, err := s.pool.Query(ctx, q, studentID, cardSetID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: load progress: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan progress: %w", err)
	}
	if recs == nil {
		recs = []types.ProgressRecord{}
	}
	return recs, nil
}

// RecordAttempt implements [progress.Gateway]. The increment is a single
// upsert so concurrent attempts never lose an update.
func (s *Store) RecordAttempt(ctx context.Context, studentID, cardID string, success bool) (types.ProgressRecord, error) {
	const q = `
		INSERT INTO card_progress AS p (student_id, card_id, attempts, success_count, mastered, last_attempt)
		VALUES ($1, $2, 1, $3::int, $3::int >= $4::int, $5)
		ON CONFLICT (student_id, card_id) DO UPDATE
		SET attempts      = p.attempts + 1,
		    success_count = p.success_count + EXCLUDED.success_count,
		    mastered      = p.mastered OR (p.success_count + EXCLUDED.success_count) >= $4::int,
		    last_attempt  = EXCLUDED.last_attempt
		RETURNING student_id, card_id, attempts, success_count, mastered, last_attempt`

	inc := 0
	if success {
		inc = 1
	}
	rows, err := s.pool.Query(ctx, q, studentID, cardID, inc, s.threshold, s.now().UTC())
	if err != nil {
		return types.ProgressRecord{}, fmt.Errorf("postgres store: record attempt: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if err != nil {
		return types.ProgressRecord{}, fmt.Errorf("postgres store: record attempt: %w", err)
	}
	return rec, nil
}

func scanRecord(row pgx.CollectableRow) (types.ProgressRecord, error) {
	var r types.ProgressRecord
	err := row.Scan(&r.StudentID, &r.CardID, &r.Attempts, &r.SuccessCount, &r.Mastered, &r.LastAttempt)
	return r, err
}
