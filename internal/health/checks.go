package health

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/MrWong99/vozcards/internal/resilience"
)

// Pinger is implemented by the SQL-backed progress stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageCheck reports the store unready when Ping fails.
func StorageCheck(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// BreakerState is implemented by anything guarded by a single circuit
// breaker, such as [resilience.ProgressBreaker].
type BreakerState interface {
	State() resilience.State
}

// BreakerCheck fails while the breaker is open. Half-open counts as ready so
// probe traffic can close it again.
func BreakerCheck(name string, b BreakerState) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if s := b.State(); s == resilience.StateOpen {
			return fmt.Errorf("circuit %s", s)
		}
		return nil
	}}
}

// FallbackStates is implemented by the speech provider fallback groups.
type FallbackStates interface {
	Healthy() bool
	States() map[string]resilience.State
}

// ErrNoHealthyProvider is reported when every provider of a fallback group
// has an open circuit.
var ErrNoHealthyProvider = errors.New("no healthy provider")

// ProviderCheck fails when no provider in the group can take traffic. The
// error lists the open circuits.
func ProviderCheck(name string, f FallbackStates) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if f.Healthy() {
			return nil
		}
		states := f.States()
		var open []string
		for _, n := range slices.Sorted(maps.Keys(states)) {
			if states[n] == resilience.StateOpen {
				open = append(open, n)
			}
		}
		return fmt.Errorf("%w (open: %s)", ErrNoHealthyProvider, strings.Join(open, ", "))
	}}
}
