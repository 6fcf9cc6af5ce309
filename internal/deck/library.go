package deck

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/MrWong99/vozcards/pkg/progress"
	"github.com/MrWong99/vozcards/pkg/types"
)

// ErrNotFound is returned by Get for an unknown deck.
var ErrNotFound = errors.New("deck: not found")

// ErrDuplicateID is returned by Add when a deck with the same set ID exists.
var ErrDuplicateID = errors.New("deck: a deck with that set id already exists")

var _ progress.CardSource = (*Library)(nil)

// Library holds the loaded decks. It serves cards directly as a
// [progress.CardSource] and can copy every deck into a [progress.Store].
// The zero value is ready to use. It is safe for concurrent use.
type Library struct {
	mu    sync.RWMutex
	decks map[string]*Deck
}

// NewLibrary returns a library holding decks. Duplicate set IDs are an error.
func NewLibrary(decks ...*Deck) (*Library, error) {
	l := &Library{decks: make(map[string]*Deck, len(decks))}
	var errs []error
	for _, d := range decks {
		if err := l.Add(d); err != nil {
			errs = append(errs, err)
		}
	}
	return l, errors.Join(errs...)
}

// Add stores d. It returns [ErrDuplicateID] if its set ID is taken.
func (l *Library) Add(d *Deck) error {
	if d == nil {
		return errors.New("deck: nil deck")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.decks == nil {
		l.decks = make(map[string]*Deck)
	}
	if _, ok := l.decks[d.Set.ID]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateID, d.Set.ID)
	}
	l.decks[d.Set.ID] = d
	return nil
}

// Replace swaps the library contents for decks, keeping the last deck for a
// repeated set ID. Used when deck files are reloaded.
func (l *Library) Replace(decks []*Deck) {
	next := lo.SliceToMap(decks, func(d *Deck) (string, *Deck) { return d.Set.ID, d })
	l.mu.Lock()
	l.decks = next
	l.mu.Unlock()
}

// Get returns the deck with set ID id.
func (l *Library) Get(id string) (*Deck, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.decks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return d, nil
}

// List returns a summary of every deck ordered by level, then name.
func (l *Library) List() []Summary {
	l.mu.RLock()
	out := lo.MapToSlice(l.decks, func(_ string, d *Deck) Summary { return d.Summary() })
	l.mu.RUnlock()
	slices.SortFunc(out, func(a, b Summary) int {
		return cmp.Or(cmp.Compare(a.Level, b.Level), cmp.Compare(a.Name, b.Name), cmp.Compare(a.ID, b.ID))
	})
	return out
}

// Len returns the number of decks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.decks)
}

// LoadCards implements [progress.CardSource].
func (l *Library) LoadCards(_ context.Context, cardSetID string) ([]types.Flashcard, error) {
	d, err := l.Get(cardSetID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", progress.ErrCardSetNotFound, cardSetID)
	}
	return d.CardSet().Cards, nil
}

// Variants merges the pronunciation variants of every deck. Entries for the
// same word are concatenated without duplicates.
func (l *Library) Variants() map[string][]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string][]string)
	for _, id := range slices.Sorted(maps.Keys(l.decks)) {
		for word, vs := range l.decks[id].Variants {
			out[word] = lo.Uniq(append(out[word], vs...))
		}
	}
	return out
}

// Import writes every deck into store. It returns the number of sets
// imported; a failing set is logged and the rest are still attempted.
func (l *Library) Import(ctx context.Context, store progress.Store) (int, error) {
	l.mu.RLock()
	decks := slices.Collect(maps.Values(l.decks))
	l.mu.RUnlock()
	slices.SortFunc(decks, func(a, b *Deck) int { return cmp.Compare(a.Set.ID, b.Set.ID) })

	var (
		n    int
		errs []error
	)
	for _, d := range decks {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		set := d.CardSet()
		if err := store.ImportSet(ctx, set); err != nil {
			slog.Warn("deck: import failed", "set_id", set.ID, "err", err)
			errs = append(errs, fmt.Errorf("deck: import %q: %w", set.ID, err))
			continue
		}
		slog.Debug("deck: imported", "set_id", set.ID, "cards", len(set.Cards))
		n++
	}
	return n, errors.Join(errs...)
}
