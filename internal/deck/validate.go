package deck

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Validate checks a deck for required fields.
//
// Rules:
//   - set.id must be non-empty.
//   - Every card needs a Spanish and an English word.
//   - Difficulty, when given, is between 1 and 5.
//   - Card IDs (explicit or derived) are unique within the deck.
//   - Variant keys and entries are non-empty.
func Validate(d *Deck) error {
	var errs []error

	if strings.TrimSpace(d.Set.ID) == "" {
		errs = append(errs, errors.New("set.id must not be empty"))
	}
	if d.Set.Level < 0 {
		errs = append(errs, fmt.Errorf("set.level must not be negative, got %d", d.Set.Level))
	}

	for i, c := range d.Cards {
		if strings.TrimSpace(c.Spanish) == "" {
			errs = append(errs, fmt.Errorf("cards[%d]: spanish must not be empty", i))
		}
		if strings.TrimSpace(c.English) == "" {
			errs = append(errs, fmt.Errorf("cards[%d]: english must not be empty", i))
		}
		if c.Difficulty != 0 && (c.Difficulty < 1 || c.Difficulty > 5) {
			errs = append(errs, fmt.Errorf("cards[%d]: difficulty must be between 1 and 5, got %d", i, c.Difficulty))
		}
	}

	ids := lo.Map(d.Cards, func(c CardDef, _ int) string { return cardID(d.Set.ID, c) })
	for _, dup := range lo.FindDuplicates(ids) {
		errs = append(errs, fmt.Errorf("card id %q is used more than once", dup))
	}

	for word, variants := range d.Variants {
		if strings.TrimSpace(word) == "" {
			errs = append(errs, errors.New("variants: word must not be empty"))
		}
		if lo.SomeBy(variants, func(v string) bool { return strings.TrimSpace(v) == "" }) {
			errs = append(errs, fmt.Errorf("variants[%q]: entries must not be empty", word))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("deck %q: %w", d.Set.ID, errors.Join(errs...))
}
