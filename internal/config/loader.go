package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram", "whisper"},
	"tts": {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// ${VAR} references are replaced with environment values before decoding.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${VAR} in raw with the value of the environment
// variable VAR. Unset variables expand to the empty string and are logged.
// A bare $ is left alone so secrets containing one survive.
func ExpandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := string(envRef.FindSubmatch(m)[1])
		v, ok := os.LookupEnv(name)
		if !ok {
			slog.Warn("config: environment variable not set", "name", name)
		}
		return []byte(v)
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	errs = append(errs, validateEntries("stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntries("tts", cfg.Providers.TTS)...)
	if len(cfg.Providers.STT) == 0 {
		slog.Warn("no STT provider configured; learners will not be able to answer by voice")
	}
	if len(cfg.Providers.TTS) == 0 {
		slog.Warn("no TTS provider configured; cards will not be read aloud")
	}

	// Game
	g := cfg.Game
	if g.SimilarityThreshold < 0 || g.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("game.similarity_threshold %.2f is out of range [0, 1]", g.SimilarityThreshold))
	}
	for name, v := range map[string]int{
		"mastery_threshold": g.MasteryThreshold,
		"correct_points":    g.CorrectPoints,
		"star_every":        g.StarEvery,
	} {
		if v < 0 {
			errs = append(errs, fmt.Errorf("game.%s must not be negative, got %d", name, v))
		}
	}
	for name, d := range map[string]time.Duration{
		"advance_delay":     g.AdvanceDelay,
		"retry_delay":       g.RetryDelay,
		"error_delay":       g.ErrorDelay,
		"settle_delay":      g.SettleDelay,
		"no_speech_timeout": g.NoSpeechTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("game.%s must not be negative, got %s", name, d))
		}
	}
	for lang, id := range g.Voices {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, fmt.Errorf("game.voices[%q] must not be empty", lang))
		}
	}

	// Storage
	s := cfg.Storage
	if s.Driver != "" && !s.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("storage.driver %q is invalid; valid values: memory, postgres, sqlite", s.Driver))
	}
	if (s.Driver == StoragePostgres || s.Driver == StorageSQLite) && s.DSN == "" {
		errs = append(errs, fmt.Errorf("storage.dsn is required when driver is %s", s.Driver))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, errors.New("storage.write_timeout must not be negative"))
	}
	if s.Driver == "" || s.Driver == StorageMemory {
		slog.Debug("storage.driver is memory; progress is lost on restart")
	}

	// Variants
	for word, vs := range cfg.Variants {
		if strings.TrimSpace(word) == "" {
			errs = append(errs, errors.New("variants: word must not be empty"))
		}
		if slices.ContainsFunc(vs, func(v string) bool { return strings.TrimSpace(v) == "" }) {
			errs = append(errs, fmt.Errorf("variants[%q]: entries must not be empty", word))
		}
	}

	// Decks
	for i, d := range cfg.Decks {
		if strings.TrimSpace(d) == "" {
			errs = append(errs, fmt.Errorf("decks[%d] must not be empty", i))
		}
	}
	if len(cfg.Decks) == 0 {
		slog.Warn("no decks configured; only card sets already in storage can be practised")
	}

	return errors.Join(errs...)
}

func validateEntries(kind string, entries []ProviderEntry) []error {
	var errs []error
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		prefix := fmt.Sprintf("providers.%s[%d]", kind, i)
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := seen[e.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.%s[%d]", prefix, e.Name, kind, prev))
		}
		seen[e.Name] = i
		validateProviderName(kind, e.Name)
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
