// Package progress defines the narrow persistence contract the practice
// session depends on: load a learner's history for a card set, and record the
// outcome of one attempt.
//
// The interfaces are public so that alternative storage backends (PostgreSQL,
// SQLite, in-memory, …) can be supplied without depending on vozcards
// internals. Every implementation must be safe for concurrent use.
//
// All backends apply the same mutation rule, [Apply], so mastery semantics do
// not drift between stores.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/MrWong99/vozcards/pkg/types"
)

// DefaultMasteryThreshold is the number of successful attempts after which a
// card counts as mastered.
const DefaultMasteryThreshold = 2

// ErrCardSetNotFound is returned by [CardSource.LoadCards] for an unknown set.
var ErrCardSetNotFound = errors.New("progress: card set not found")

// Gateway loads and records learner progress.
type Gateway interface {
	// LoadProgress returns every progress record studentID has for cards in
	// cardSetID. Cards the learner never attempted have no record. The order
	// of the returned slice is unspecified.
	LoadProgress(ctx context.Context, studentID, cardSetID string) ([]types.ProgressRecord, error)

	// RecordAttempt applies one attempt outcome to the (studentID, cardID)
	// record, creating it on first attempt, and returns the updated record.
	RecordAttempt(ctx context.Context, studentID, cardID string, success bool) (types.ProgressRecord, error)
}

// CardSource supplies the ordered cards of a set.
type CardSource interface {
	// LoadCards returns the cards of cardSetID in presentation order. An
	// existing but empty set yields an empty slice and no error.
	LoadCards(ctx context.Context, cardSetID string) ([]types.Flashcard, error)
}

// Apply returns rec updated by one attempt: Attempts grows by one,
// SuccessCount grows by one on success, and Mastered becomes true once
// SuccessCount reaches threshold. A threshold below 1 falls back to
// [DefaultMasteryThreshold].
func Apply(rec types.ProgressRecord, success bool, threshold int, now time.Time) types.ProgressRecord {
	if threshold < 1 {
		threshold = DefaultMasteryThreshold
	}
	rec.Attempts++
	if success {
		rec.SuccessCount++
	}
	rec.Mastered = rec.Mastered || rec.SuccessCount >= threshold
	rec.LastAttempt = now
	return rec
}

// Store is a complete storage backend: it records progress, serves card sets
// and accepts imported sets from deck files.
type Store interface {
	Gateway
	CardSource

	// ImportSet inserts or replaces set and its cards. Cards keep the order
	// of set.Cards. Progress for cards that remain in the set is preserved.
	ImportSet(ctx context.Context, set types.CardSet) error
}
