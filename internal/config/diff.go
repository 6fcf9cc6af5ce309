package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Hot fields apply to the running server; the rest need a restart and are
// only reported.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GameChanged is true if any scoring or pacing value changed. New
	// sessions pick it up; a running session keeps its policy.
	GameChanged bool

	// VariantsChanged is true if the variant table changed.
	VariantsChanged bool

	// DecksChanged is true if the list of deck paths changed.
	DecksChanged bool

	// RestartRequired lists sections that changed but are only read at start.
	RestartRequired []string
}

// Any reports whether anything changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.GameChanged || d.VariantsChanged || d.DecksChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.GameChanged = !reflect.DeepEqual(old.Game, new.Game)
	d.VariantsChanged = !maps.EqualFunc(old.Variants, new.Variants, slices.Equal[[]string])
	d.DecksChanged = !slices.Equal(old.Decks, new.Decks)

	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Storage != new.Storage {
		d.RestartRequired = append(d.RestartRequired, "storage")
	}

	return d
}
