package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/vozcards/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			STT: []config.ProviderEntry{{Name: "deepgram", APIKey: "k"}},
			TTS: []config.ProviderEntry{{Name: "elevenlabs", APIKey: "k"}},
		},
		Game:     config.GameConfig{MasteryThreshold: 2, StarEvery: 50},
		Storage:  config.StorageConfig{Driver: config.StorageMemory},
		Variants: map[string][]string{"cat": {"kat"}},
		Decks:    []string{"decks/"},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Any() {
		t.Errorf("expected no changes, got %+v", d)
	}
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		check  func(*testing.T, config.ConfigDiff)
	}{
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
					t.Errorf("log level: got changed=%v new=%q", d.LogLevelChanged, d.NewLogLevel)
				}
			},
		},
		{
			name:   "game",
			mutate: func(c *config.Config) { c.Game.StarEvery = 30 },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.GameChanged {
					t.Error("expected GameChanged")
				}
			},
		},
		{
			name:   "game voices",
			mutate: func(c *config.Config) { c.Game.Voices = map[string]string{"es": "elena"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.GameChanged {
					t.Error("expected GameChanged")
				}
			},
		},
		{
			name:   "variant added",
			mutate: func(c *config.Config) { c.Variants["dog"] = []string{"dug"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.VariantsChanged {
					t.Error("expected VariantsChanged")
				}
			},
		},
		{
			name:   "variant entries changed",
			mutate: func(c *config.Config) { c.Variants["cat"] = []string{"kat", "cad"} },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.VariantsChanged {
					t.Error("expected VariantsChanged")
				}
			},
		},
		{
			name:   "decks",
			mutate: func(c *config.Config) { c.Decks = append(c.Decks, "extra.yaml") },
			check: func(t *testing.T, d config.ConfigDiff) {
				if !d.DecksChanged {
					t.Error("expected DecksChanged")
				}
				if d.GameChanged || d.VariantsChanged || d.LogLevelChanged {
					t.Errorf("unexpected extra changes: %+v", d)
				}
			},
		},
		{
			name: "restart required",
			mutate: func(c *config.Config) {
				c.Server.ListenAddr = ":9090"
				c.Providers.STT[0].APIKey = "rotated"
				c.Storage = config.StorageConfig{Driver: config.StorageSQLite, DSN: "cards.db"}
			},
			check: func(t *testing.T, d config.ConfigDiff) {
				want := []string{"server", "providers", "storage"}
				if !slices.Equal(d.RestartRequired, want) {
					t.Errorf("RestartRequired: got %v, want %v", d.RestartRequired, want)
				}
				if !d.Any() {
					t.Error("Any() = false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, updated := baseConfig(), baseConfig()
			tt.mutate(updated)
			tt.check(t, config.Diff(old, updated))
		})
	}
}
