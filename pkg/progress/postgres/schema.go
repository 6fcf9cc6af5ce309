// Package postgres provides a PostgreSQL-backed implementation of
// [progress.Store]: card sets, their ordered flashcards and per-learner
// progress records share a single [pgxpool.Pool].
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, postgres.WithMasteryThreshold(2))
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.ImportSet(ctx, set)
//	rec, _ := store.RecordAttempt(ctx, "student-1", "card-1", true)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCards = `
CREATE TABLE IF NOT EXISTS card_sets (
    id          TEXT         PRIMARY KEY,
    name        TEXT         NOT NULL DEFAULT '',
    level       INTEGER      NOT NULL DEFAULT 0,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS flashcards (
    id           TEXT     PRIMARY KEY,
    set_id       TEXT     NOT NULL REFERENCES card_sets (id) ON DELETE CASCADE,
    position     INTEGER  NOT NULL,
    source_text  TEXT     NOT NULL,
    target_text  TEXT     NOT NULL,
    difficulty   INTEGER  NOT NULL DEFAULT 1 CHECK (difficulty BETWEEN 1 AND 5),
    image_url    TEXT     NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_flashcards_set_position
    ON flashcards (set_id, position);
`

const ddlProgress = `
CREATE TABLE IF NOT EXISTS card_progress (
    student_id     TEXT         NOT NULL,
    card_id        TEXT         NOT NULL,
    attempts       INTEGER      NOT NULL DEFAULT 0 CHECK (attempts >= 0),
    success_count  INTEGER      NOT NULL DEFAULT 0 CHECK (success_count >= 0 AND success_count <= attempts),
    mastered       BOOLEAN      NOT NULL DEFAULT false,
    last_attempt   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (student_id, card_id)
);

CREATE INDEX IF NOT EXISTS idx_card_progress_card
    ON card_progress (card_id);
`

// Migrate creates the card and progress tables if they do not exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlCards, ddlProgress} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
