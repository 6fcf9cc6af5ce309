// Package sqlite provides a single-file SQLite implementation of
// [progress.Store], suited to running vozcards on one machine without a
// database server.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/MrWong99/vozcards/pkg/progress"
	"github.com/MrWong99/vozcards/pkg/types"
)

// Compile-time interface check.
var _ progress.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS card_sets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	level       INTEGER NOT NULL DEFAULT 0,
	updated_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS flashcards (
	id           TEXT PRIMARY KEY,
	set_id       TEXT NOT NULL REFERENCES card_sets (id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	source_text  TEXT NOT NULL,
	target_text  TEXT NOT NULL,
	difficulty   INTEGER NOT NULL DEFAULT 1,
	image_url    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_flashcards_set_position ON flashcards (set_id, position);

CREATE TABLE IF NOT EXISTS card_progress (
	student_id     TEXT NOT NULL,
	card_id        TEXT NOT NULL,
	attempts       INTEGER NOT NULL DEFAULT 0,
	success_count  INTEGER NOT NULL DEFAULT 0,
	mastered       BOOLEAN NOT NULL DEFAULT false,
	last_attempt   TIMESTAMP NOT NULL,
	PRIMARY KEY (student_id, card_id)
);
`

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithMasteryThreshold sets the success count at which a card is mastered.
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

// Store is the SQLite-backed progress store.
type Store struct {
	db        *sqlx.DB
	threshold int
	now       func() time.Time
}

// Open opens (creating if needed) the database file at path, enables foreign
// keys and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite store: create data dir: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: connect: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: enable foreign keys: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: apply schema: %w", err)
	}

	s := &Store{db: db, threshold: progress.DefaultMasteryThreshold, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if s.threshold < 1 {
		s.threshold = progress.DefaultMasteryThreshold
	}
	return s, nil
}

// Ping reports whether the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type cardRow struct {
	ID         string `db:"id"`
	SourceText string `db:"source_text"`
	TargetText string `db:"target_text"`
	Difficulty int    `db:"difficulty"`
	ImageURL   string `db:"image_url"`
}

type progressRow struct {
	StudentID    string    `db:"student_id"`
	CardID       string    `db:"card_id"`
	Attempts     int       `db:"attempts"`
	SuccessCount int       `db:"success_count"`
	Mastered     bool      `db:"mastered"`
	LastAttempt  time.Time `db:"last_attempt"`
}

func (r progressRow) record() types.ProgressRecord {
	return types.ProgressRecord{
		StudentID:    r.StudentID,
		CardID:       r.CardID,
		Attempts:     r.Attempts,
		SuccessCount: r.SuccessCount,
		Mastered:     r.Mastered,
		LastAttempt:  r.LastAttempt,
	}
}

// ImportSet implements [progress.Store].
func (s *Store) ImportSet(ctx context.Context, set types.CardSet) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite store: import set %q: begin: %w", set.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO card_sets (id, name, level, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, level = excluded.level, updated_at = CURRENT_TIMESTAMP`,
		set.ID, set.Name, set.Level)
	if err != nil {
		return fmt.Errorf("sqlite store: import set %q: upsert set: %w", set.ID, err)
	}

	if err = pruneCards(ctx, tx, set); err != nil {
		return fmt.Errorf("sqlite store: import set %q: %w", set.ID, err)
	}

	for i, c := range set.Cards {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO flashcards (id, set_id, position, source_text, target_text, difficulty, image_url)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				set_id = excluded.set_id,
				position = excluded.position,
				source_text = excluded.source_text,
				target_text = excluded.target_text,
				difficulty = excluded.difficulty,
				image_url = excluded.image_url`,
			c.ID, set.ID, i, c.SourceText, c.TargetText, c.Difficulty, c.ImageURL)
		if err != nil {
			return fmt.Errorf("sqlite store: import set %q: upsert card %q: %w", set.ID, c.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite store: import set %q: commit: %w", set.ID, err)
	}
	return nil
}

// pruneCards deletes cards (and their progress) that are no longer in set.
func pruneCards(ctx context.Context, tx *sqlx.Tx, set types.CardSet) error {
	ids := make([]string, 0, len(set.Cards))
	for _, c := range set.Cards {
		ids = append(ids, c.ID)
	}

	var stale []string
	if len(ids) == 0 {
		if err := tx.SelectContext(ctx, &stale, `SELECT id FROM flashcards WHERE set_id = ?`, set.ID); err != nil {
			return fmt.Errorf("list stale cards: %w", err)
		}
	} else {
		q, args, err := sqlx.In(`SELECT id FROM flashcards WHERE set_id = ? AND id NOT IN (?)`, set.ID, ids)
		if err != nil {
			return fmt.Errorf("build prune query: %w", err)
		}
		if err := tx.SelectContext(ctx, &stale, tx.Rebind(q), args...); err != nil {
			return fmt.Errorf("list stale cards: %w", err)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	for _, stmt := range []string{
		`DELETE FROM card_progress WHERE card_id IN (?)`,
		`DELETE FROM flashcards WHERE id IN (?)`,
	} {
		q, args, err := sqlx.In(stmt, stale)
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
			return fmt.Errorf("delete stale cards: %w", err)
		}
	}
	return nil
}

// LoadCards implements [progress.CardSource].
func (s *Store) LoadCards(ctx context.Context, cardSetID string) ([]types.Flashcard, error) {
	var id string
	err := s.db.GetContext(ctx, &id, `SELECT id FROM card_sets WHERE id = ?`, cardSetID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", progress.ErrCardSetNotFound, cardSetID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite store: load cards: %w", err)
	}

	var rows []cardRow
	err = s.db.SelectContext(ctx, &rows, `
		SELECT id, source_text, target_text, difficulty, image_url
		FROM flashcards WHERE set_id = ? ORDER BY position`, cardSetID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: load cards: %w", err)
	}

	cards := make([]types.Flashcard, 0, len(rows))
	for _, r := range rows {
		cards = append(cards, types.Flashcard{
			ID:         r.ID,
			SourceText: r.SourceText,
			TargetText: r.TargetText,
			Difficulty: r.Difficulty,
			ImageURL:   r.ImageURL,
		})
	}
	return cards, nil
}

// LoadProgress implements [progress.Gateway].
func (s *Store) LoadProgress(ctx context.Context, studentID, cardSetID string) ([]types.ProgressRecord, error) {
	var rows []progressRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.student_id, p.card_id, p.attempts, p.success_count, p.mastered, p.last_attempt
		FROM card_progress p
		JOIN flashcards f ON f.id = p.card_id
		WHERE p.student_id = ? AND f.set_id = ?`, studentID, cardSetID)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: load progress: %w", err)
	}

	recs := make([]types.ProgressRecord, 0, len(rows))
	for _, r := range rows {
		recs = append(recs, r.record())
	}
	return recs, nil
}

// RecordAttempt implements [progress.Gateway]. The upsert and the read-back
// run in one transaction.
func (s *Store) RecordAttempt(ctx context.Context, studentID, cardID string, success bool) (rec types.ProgressRecord, err error) {
	inc := 0
	if success {
		inc = 1
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return types.ProgressRecord{}, fmt.Errorf("sqlite store: record attempt: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO card_progress (student_id, card_id, attempts, success_count, mastered, last_attempt)
		VALUES (?, ?, 1, ?, ? >= ?, ?)
		ON CONFLICT (student_id, card_id) DO UPDATE SET
			attempts = card_progress.attempts + 1,
			success_count = card_progress.success_count + excluded.success_count,
			mastered = card_progress.mastered OR (card_progress.success_count + excluded.success_count) >= ?,
			last_attempt = excluded.last_attempt`,
		studentID, cardID, inc, inc, s.threshold, s.now().UTC(), s.threshold)
	if err != nil {
		return types.ProgressRecord{}, fmt.Errorf("sqlite store: record attempt: %w", err)
	}

	var row progressRow
	err = tx.GetContext(ctx, &row, `
		SELECT student_id, card_id, attempts, success_count, mastered, last_attempt
		FROM card_progress WHERE student_id = ? AND card_id = ?`, studentID, cardID)
	if err != nil {
		return types.ProgressRecord{}, fmt.Errorf("sqlite store: record attempt: read back: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return types.ProgressRecord{}, fmt.Errorf("sqlite store: record attempt: commit: %w", err)
	}
	return row.record(), nil
}
