package progress

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/vozcards/pkg/types"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemOption is a functional option for configuring a [MemStore].
type MemOption func(*MemStore)

// WithMasteryThreshold sets the success count at which a card is mastered.
func WithMasteryThreshold(n int) MemOption {
	return func(s *MemStore) {
		s.threshold = n
	}
}

// WithClock overrides the time source used for LastAttempt.
func WithClock(now func() time.Time) MemOption {
	return func(s *MemStore) {
		s.now = now
	}
}

type recordKey struct {
	student string
	card    string
}

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for single-process use and testing. Progress is lost on
// restart.
type MemStore struct {
	mu        sync.RWMutex
	sets      map[string]types.CardSet
	records   map[recordKey]types.ProgressRecord
	threshold int
	now       func() time.Time
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		sets:      make(map[string]types.CardSet),
		records:   make(map[recordKey]types.ProgressRecord),
		threshold: DefaultMasteryThreshold,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ImportSet implements [Store.ImportSet].
func (s *MemStore) ImportSet(_ context.Context, set types.CardSet) error {
	if set.ID == "" {
		return fmt.Errorf("progress: import set: empty set id")
	}
	set.Cards = slices.Clone(set.Cards)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[set.ID] = set
	return nil
}

// LoadCards implements [CardSource.LoadCards].
func (s *MemStore) LoadCards(_ context.Context, cardSetID string) ([]types.Flashcard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[cardSetID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrCardSetNotFound, cardSetID)
	}
	return slices.Clone(set.Cards), nil
}

// LoadProgress implements [Gateway.LoadProgress]. When cardSetID is unknown
// to the store, every record of studentID is returned.
func (s *MemStore) LoadProgress(_ context.Context, studentID, cardSetID string) ([]types.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, known := s.sets[cardSetID]
	out := []types.ProgressRecord{}
	for k, rec := range s.records {
		if k.student != studentID {
			continue
		}
		if known && !slices.ContainsFunc(set.Cards, func(c types.Flashcard) bool { return c.ID == k.card }) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// RecordAttempt implements [Gateway.RecordAttempt].
func (s *MemStore) RecordAttempt(_ context.Context, studentID, cardID string, success bool) (types.ProgressRecord, error) {
	if studentID == "" || cardID == "" {
		return types.ProgressRecord{}, fmt.Errorf("progress: record attempt: empty student or card id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := recordKey{student: studentID, card: cardID}
	rec, ok := s.records[k]
	if !ok {
		rec = types.ProgressRecord{StudentID: studentID, CardID: cardID}
	}
	rec = Apply(rec, success, s.threshold, s.now())
	s.records[k] = rec
	return rec, nil
}

// Seed stores rec verbatim, replacing any existing record for the same
// student and card. It is intended for fixtures and tests.
func (s *MemStore) Seed(recs ...types.ProgressRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		s.records[recordKey{student: rec.StudentID, card: rec.CardID}] = rec
	}
}
