// Package mock provides test doubles for the progress package interfaces.
//
// Gateway records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent
// use.
//
// Typical usage:
//
//	gw := &mock.Gateway{}
//	gw.LoadProgressResult = []types.ProgressRecord{{CardID: "a", Mastered: true}}
//
//	// inject gw into the system under test …
//
//	if got := gw.CallCount("RecordAttempt"); got != 1 {
//	    t.Errorf("expected 1 RecordAttempt call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vozcards/pkg/progress"
	"github.com/MrWong99/vozcards/pkg/types"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Gateway is a configurable test double for [progress.Gateway] and
// [progress.CardSource].
type Gateway struct {
	mu sync.Mutex

	calls []Call

	// Cards is returned by [Gateway.LoadCards].
	Cards []types.Flashcard

	// LoadCardsErr is returned by [Gateway.LoadCards] when non-nil.
	LoadCardsErr error

	// LoadProgressResult is returned by [Gateway.LoadProgress].
	LoadProgressResult []types.ProgressRecord

	// LoadProgressErr is returned by [Gateway.LoadProgress] when non-nil.
	LoadProgressErr error

	// RecordAttemptErr is returned by [Gateway.RecordAttempt] when non-nil.
	RecordAttemptErr error

	// RecordAttemptHook, if set, runs inside RecordAttempt before it returns.
	// Tests use it to block or observe the write.
	RecordAttemptHook func(ctx context.Context)
}

// Calls returns a copy of all recorded method invocations.
func (m *Gateway) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Gateway) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LoadCards records the call and returns Cards, LoadCardsErr.
func (m *Gateway) LoadCards(_ context.Context, cardSetID string) ([]types.Flashcard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "LoadCards", Args: []any{cardSetID}})
	if m.LoadCardsErr != nil {
		return nil, m.LoadCardsErr
	}
	out := make([]types.Flashcard, len(m.Cards))
	copy(out, m.Cards)
	return out, nil
}

// LoadProgress records the call and returns LoadProgressResult, LoadProgressErr.
func (m *Gateway) LoadProgress(_ context.Context, studentID, cardSetID string) ([]types.ProgressRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "LoadProgress", Args: []any{studentID, cardSetID}})
	if m.LoadProgressErr != nil {
		return nil, m.LoadProgressErr
	}
	out := make([]types.ProgressRecord, len(m.LoadProgressResult))
	copy(out, m.LoadProgressResult)
	return out, nil
}

// RecordAttempt records the call and returns a record reflecting a single
// attempt, or RecordAttemptErr.
func (m *Gateway) RecordAttempt(ctx context.Context, studentID, cardID string, success bool) (types.ProgressRecord, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Method: "RecordAttempt", Args: []any{studentID, cardID, success}})
	hook := m.RecordAttemptHook
	err := m.RecordAttemptErr
	m.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return types.ProgressRecord{}, err
	}
	rec := types.ProgressRecord{StudentID: studentID, CardID: cardID, Attempts: 1}
	if success {
		rec.SuccessCount = 1
	}
	return rec, nil
}

// Attempts returns the (cardID, success) pairs passed to RecordAttempt, in
// call order.
func (m *Gateway) Attempts() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if c.Method == "RecordAttempt" {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears all recorded calls.
func (m *Gateway) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var (
	_ progress.Gateway    = (*Gateway)(nil)
	_ progress.CardSource = (*Gateway)(nil)
)
