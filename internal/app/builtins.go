package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/vozcards/internal/config"
	"github.com/MrWong99/vozcards/pkg/progress"
	"github.com/MrWong99/vozcards/pkg/progress/postgres"
	"github.com/MrWong99/vozcards/pkg/progress/sqlite"
	"github.com/MrWong99/vozcards/pkg/provider/stt"
	"github.com/MrWong99/vozcards/pkg/provider/stt/deepgram"
	"github.com/MrWong99/vozcards/pkg/provider/stt/whisper"
	"github.com/MrWong99/vozcards/pkg/provider/tts"
	"github.com/MrWong99/vozcards/pkg/provider/tts/elevenlabs"
)

// RegisterBuiltins wires every storage driver and speech backend that ships
// with vozcards into reg.
func RegisterBuiltins(reg *config.Registry) {
	// ── Storage ───────────────────────────────────────────────────────────────

	reg.RegisterStorage(config.StorageMemory, func(_ context.Context, _ config.StorageConfig, threshold int) (progress.Store, error) {
		return progress.NewMemStore(progress.WithMasteryThreshold(threshold)), nil
	})

	reg.RegisterStorage(config.StoragePostgres, func(ctx context.Context, cfg config.StorageConfig, threshold int) (progress.Store, error) {
		s, err := postgres.NewStore(ctx, cfg.DSN, postgres.WithMasteryThreshold(threshold))
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	reg.RegisterStorage(config.StorageSQLite, func(_ context.Context, cfg config.StorageConfig, threshold int) (progress.Store, error) {
		s, err := sqlite.Open(cfg.DSN, sqlite.WithMasteryThreshold(threshold))
		if err != nil {
			return nil, err
		}
		return s, nil
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "flush_timeout"); d > 0 {
			opts = append(opts, deepgram.WithFlushTimeout(d))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	slog.Debug("registered builtin backends", "stt", reg.STTNames(), "tts", reg.TTSNames())
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration string from a provider Options map.
// Returns 0 when absent or unparsable.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
