package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when no backend of a [FallbackGroup] produced a
// result, either because each one failed or because its breaker was open.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig holds the breaker settings applied to every backend of a
// [FallbackGroup]. Each backend gets its own breaker named after it.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

type backend[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup is an ordered list of interchangeable speech backends, for
// example a cloud recogniser followed by a local whisper server. Calls go to
// the first backend whose breaker admits them; a failure moves on to the next.
// Safe for concurrent use.
type FallbackGroup[T any] struct {
	cfg FallbackConfig

	mu       sync.RWMutex
	backends []backend[T]
}

// NewFallbackGroup returns a group whose primary backend is primary.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends a backend that is tried after every backend added
// before it.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	bc := fg.cfg.CircuitBreaker
	bc.Name = name

	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.backends = append(fg.backends, backend[T]{name: name, value: fallback, breaker: NewCircuitBreaker(bc)})
}

func (fg *FallbackGroup[T]) snapshot() []backend[T] {
	fg.mu.RLock()
	defer fg.mu.RUnlock()
	return fg.backends
}

// Execute calls fn with each backend in order until one returns nil.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWithResult(fg, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a
// value. The error wraps [ErrAllFailed] and the error of the last backend
// tried.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, b := range fg.snapshot() {
		var out R
		err := b.breaker.Execute(func() error {
			var err error
			out, err = fn(b.value)
			return err
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: backend skipped, circuit open", "provider", b.name)
			continue
		}
		slog.Warn("resilience: backend failed, trying next", "provider", b.name, "err", err)
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// States returns the breaker state of every backend by name.
func (fg *FallbackGroup[T]) States() map[string]State {
	backends := fg.snapshot()
	out := make(map[string]State, len(backends))
	for _, b := range backends {
		out[b.name] = b.breaker.State()
	}
	return out
}

// Healthy reports whether any backend's breaker would admit a call.
func (fg *FallbackGroup[T]) Healthy() bool {
	for _, b := range fg.snapshot() {
		if b.breaker.State() != StateOpen {
			return true
		}
	}
	return false
}
