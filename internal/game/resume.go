package game

import (
	"github.com/samber/lo"

	"github.com/MrWong99/vozcards/pkg/types"
)

// Position is where a session picks up from stored progress.
type Position struct {
	// Index is the first card that is not yet mastered, or the last card
	// when every card is.
	Index int

	// Completed is true when every card is mastered.
	Completed bool

	// Score is the points already earned on cards of this set.
	Score int

	// Mastered counts cards whose record is mastered.
	Mastered int

	// Stale counts records for cards that are no longer in the set. They do
	// not count towards any of the fields above.
	Stale int
}

// Resume computes the starting position for cards given the learner's
// stored records. Records for cards that are no longer in the set are
// ignored and counted in [Position.Stale], so the index is always within
// cards. points is the score of one success.
func Resume(cards []types.Flashcard, recs []types.ProgressRecord, points int) Position {
	if len(cards) == 0 {
		return Position{}
	}

	inSet := lo.SliceToMap(cards, func(c types.Flashcard) (string, struct{}) {
		return c.ID, struct{}{}
	})
	valid := lo.Filter(recs, func(r types.ProgressRecord, _ int) bool {
		_, ok := inSet[r.CardID]
		return ok
	})
	byCard := lo.KeyBy(valid, func(r types.ProgressRecord) string { return r.CardID })

	pos := Position{
		Stale: len(recs) - len(valid),
		Score: lo.SumBy(valid, func(r types.ProgressRecord) int { return r.SuccessCount * points }),
		Mastered: lo.CountBy(cards, func(c types.Flashcard) bool {
			return byCard[c.ID].Mastered
		}),
	}

	_, idx, found := lo.FindIndexOf(cards, func(c types.Flashcard) bool {
		r, ok := byCard[c.ID]
		return !ok || !r.Mastered
	})
	if !found {
		pos.Index = len(cards) - 1
		pos.Completed = true
		return pos
	}
	pos.Index = idx
	return pos
}
