// Package types defines the shared data structures used across vozcards packages.
//
// These types are the lingua franca between the speech providers, the
// practice session, the progress stores and the HTTP surface. Each package
// defines its own domain types; cross-cutting data lives here to avoid
// circular imports.
package types

import "time"

// Flashcard is one vocabulary item: a Spanish prompt and its English answer.
// Cards are immutable once loaded and are presented in the order of their set.
type Flashcard struct {
	// ID uniquely identifies the card across all sets.
	ID string

	// SourceText is the Spanish prompt shown and spoken to the learner.
	SourceText string

	// TargetText is the English word the learner is expected to say.
	TargetText string

	// Difficulty ranges from 1 (easiest) to 5.
	Difficulty int

	// ImageURL optionally points at an illustration for the card.
	ImageURL string
}

// CardSet is an ordered, named collection of flashcards.
type CardSet struct {
	ID    string
	Name  string
	Level int
	Cards []Flashcard
}

// ProgressRecord tracks a single learner's history with a single card.
//
// SuccessCount never exceeds Attempts and never decreases. Mastered is true
// only when SuccessCount has reached the mastery threshold.
type ProgressRecord struct {
	StudentID    string
	CardID       string
	Attempts     int
	SuccessCount int
	Mastered     bool
	LastAttempt  time.Time
}

// Transcript is a speech-to-text result. Only final transcripts are scored.
type Transcript struct {
	// Text is the recognised utterance.
	Text string

	// IsFinal indicates an authoritative rather than interim result.
	IsFinal bool

	// Confidence is the provider confidence (0.0–1.0). Zero when unreported.
	Confidence float64
}

// VoiceProfile describes a synthesis voice and the prosody to apply to it.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name (e.g. "Elena").
	Name string

	// Provider identifies which TTS backend the voice belongs to.
	Provider string

	// Language is the BCP-47 tag the voice speaks (e.g. "es-ES").
	Language string

	// Local marks voices rendered on-device rather than by a remote service.
	Local bool

	// Rate is the speaking rate multiplier (1.0 = normal).
	Rate float64

	// Pitch is the pitch multiplier (1.0 = normal).
	Pitch float64

	// Volume is the output gain (0.0–1.0).
	Volume float64
}
