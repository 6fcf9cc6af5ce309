// Package config provides the configuration schema, loader, watcher and
// backend registry for the vozcards practice server.
package config

import "time"

// LogLevel controls log verbosity for the vozcards server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StorageDriver selects the progress store backend.
type StorageDriver string

const (
	// StorageMemory keeps progress in process memory. Nothing survives a
	// restart.
	StorageMemory StorageDriver = "memory"

	// StoragePostgres stores progress in PostgreSQL.
	StoragePostgres StorageDriver = "postgres"

	// StorageSQLite stores progress in a local SQLite file.
	StorageSQLite StorageDriver = "sqlite"
)

// IsValid reports whether d is a recognised storage driver.
func (d StorageDriver) IsValid() bool {
	switch d {
	case StorageMemory, StoragePostgres, StorageSQLite:
		return true
	}
	return false
}

// Config is the root configuration structure for vozcards.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Game      GameConfig      `yaml:"game"`
	Storage   StorageConfig   `yaml:"storage"`

	// Variants lists accepted mis-hearings per English word, merged over
	// the built-in table.
	Variants map[string][]string `yaml:"variants"`

	// Decks lists deck YAML files or directories of them.
	Decks []string `yaml:"decks"`
}

// ServerConfig holds network and logging settings for the vozcards server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the speech backends. The first entry of each list
// is the primary; the rest are tried in order when it fails.
type ProvidersConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// GameConfig tunes scoring and pacing. Zero values keep the built-in
// defaults.
type GameConfig struct {
	// SimilarityThreshold is the minimum edit-distance similarity in [0, 1]
	// for an answer to count as similar.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// SoundAlike enables the Double Metaphone rung of the classifier.
	SoundAlike *bool `yaml:"sound_alike"`

	MasteryThreshold int `yaml:"mastery_threshold"`
	CorrectPoints    int `yaml:"correct_points"`
	StarEvery        int `yaml:"star_every"`

	AdvanceDelay    time.Duration `yaml:"advance_delay"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	ErrorDelay      time.Duration `yaml:"error_delay"`
	SettleDelay     time.Duration `yaml:"settle_delay"`
	NoSpeechTimeout time.Duration `yaml:"no_speech_timeout"`

	SourceLanguage string `yaml:"source_language"`
	TargetLanguage string `yaml:"target_language"`

	// Voices pins a TTS voice ID per primary language tag ("es", "en").
	// Unpinned languages use the preferred-voice search.
	Voices map[string]string `yaml:"voices"`
}

// StorageConfig selects where progress is kept.
type StorageConfig struct {
	// Driver defaults to memory.
	Driver StorageDriver `yaml:"driver"`

	// DSN is the PostgreSQL connection string or the SQLite file path.
	DSN string `yaml:"dsn"`

	// WriteTimeout bounds each background progress write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Journal is a JSON lines file that records every finished practice
	// session. Empty disables the journal.
	Journal string `yaml:"journal"`
}
