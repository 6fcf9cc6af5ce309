package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/vozcards/pkg/progress"
	"github.com/MrWong99/vozcards/pkg/types"
)

// ProgressBreaker guards a [progress.Store] with a [CircuitBreaker]. While the
// breaker is open, calls fail fast with [ErrCircuitOpen] instead of waiting on
// an unreachable database; the practice session treats that like any other
// persistence failure and keeps going.
//
// An unknown card set or a cancelled context does not count as a failure.
type ProgressBreaker struct {
	store   progress.Store
	breaker *CircuitBreaker
}

// Compile-time interface assertion.
var _ progress.Store = (*ProgressBreaker)(nil)

// NewProgressBreaker wraps store.
func NewProgressBreaker(store progress.Store, cfg CircuitBreakerConfig) *ProgressBreaker {
	if cfg.Name == "" {
		cfg.Name = "progress"
	}
	return &ProgressBreaker{store: store, breaker: NewCircuitBreaker(cfg)}
}

// State returns the breaker state.
func (p *ProgressBreaker) State() State { return p.breaker.State() }

// guard runs fn through the breaker, letting caller errors pass without
// counting them.
func (p *ProgressBreaker) guard(op string, fn func() error) error {
	var callerErr error
	err := p.breaker.Execute(func() error {
		err := fn()
		if errors.Is(err, progress.ErrCardSetNotFound) ||
			errors.Is(err, context.Canceled) {
			callerErr = err
			return nil
		}
		return err
	})
	if callerErr != nil {
		return callerErr
	}
	if errors.Is(err, ErrCircuitOpen) {
		return fmt.Errorf("resilience: progress %s: %w", op, err)
	}
	return err
}

// LoadProgress implements [progress.Gateway].
func (p *ProgressBreaker) LoadProgress(ctx context.Context, studentID, cardSetID string) ([]types.ProgressRecord, error) {
	var recs []types.ProgressRecord
	err := p.guard("load", func() error {
		var err error
		recs, err = p.store.LoadProgress(ctx, studentID, cardSetID)
		return err
	})
	return recs, err
}

// RecordAttempt implements [progress.Gateway].
func (p *ProgressBreaker) RecordAttempt(ctx context.Context, studentID, cardID string, success bool) (types.ProgressRecord, error) {
	var rec types.ProgressRecord
	err := p.guard("record", func() error {
		var err error
		rec, err = p.store.RecordAttempt(ctx, studentID, cardID, success)
		return err
	})
	return rec, err
}

// LoadCards implements [progress.CardSource].
func (p *ProgressBreaker) LoadCards(ctx context.Context, cardSetID string) ([]types.Flashcard, error) {
	var cards []types.Flashcard
	err := p.guard("load cards", func() error {
		var err error
		cards, err = p.store.LoadCards(ctx, cardSetID)
		return err
	})
	return cards, err
}

// ImportSet implements [progress.Store].
func (p *ProgressBreaker) ImportSet(ctx context.Context, set types.CardSet) error {
	return p.guard("import", func() error {
		return p.store.ImportSet(ctx, set)
	})
}
