package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/vozcards/pkg/progress"
)

// Policy holds the scoring and pacing constants of a practice session.
type Policy struct {
	// CorrectPoints is added to the score for each correct answer.
	CorrectPoints int

	// StarEvery is the score interval at which a star is awarded.
	StarEvery int

	// MasteryThreshold is the success count at which a card counts as
	// mastered in [Summary]. Stores apply their own threshold when persisting.
	MasteryThreshold int

	// AdvanceDelay is how long correct-answer feedback stays up before the
	// next card.
	AdvanceDelay time.Duration

	// RetryDelay is how long the session stays locked after a wrong answer.
	RetryDelay time.Duration

	// ErrorDelay is how long the session stays locked after a capture that
	// produced no usable transcript.
	ErrorDelay time.Duration

	// SettleDelay is how long the session stays locked after moving to a new
	// card.
	SettleDelay time.Duration

	// WriteTimeout bounds each background progress write.
	WriteTimeout time.Duration

	// SourceLanguage is the BCP-47 tag of the prompt side (Spanish).
	SourceLanguage string

	// TargetLanguage is the BCP-47 tag the learner answers in (English).
	TargetLanguage string
}

// DefaultPolicy returns the standard pacing for young learners.
func DefaultPolicy() Policy {
	return Policy{
		CorrectPoints:    10,
		StarEvery:        50,
		MasteryThreshold: progress.DefaultMasteryThreshold,
		AdvanceDelay:     2 * time.Second,
		RetryDelay:       time.Second,
		ErrorDelay:       500 * time.Millisecond,
		SettleDelay:      500 * time.Millisecond,
		WriteTimeout:     5 * time.Second,
		SourceLanguage:   "es-ES",
		TargetLanguage:   "en-US",
	}
}

// Validate reports every invalid field.
func (p Policy) Validate() error {
	var errs []error
	if p.CorrectPoints <= 0 {
		errs = append(errs, fmt.Errorf("correct_points must be positive, got %d", p.CorrectPoints))
	}
	if p.StarEvery <= 0 {
		errs = append(errs, fmt.Errorf("star_every must be positive, got %d", p.StarEvery))
	}
	if p.MasteryThreshold <= 0 {
		errs = append(errs, fmt.Errorf("mastery_threshold must be positive, got %d", p.MasteryThreshold))
	}
	for name, d := range map[string]time.Duration{
		"advance_delay": p.AdvanceDelay,
		"retry_delay":   p.RetryDelay,
		"error_delay":   p.ErrorDelay,
		"settle_delay":  p.SettleDelay,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if p.WriteTimeout <= 0 {
		errs = append(errs, fmt.Errorf("write_timeout must be positive, got %s", p.WriteTimeout))
	}
	if p.SourceLanguage == "" || p.TargetLanguage == "" {
		errs = append(errs, errors.New("source_language and target_language are required"))
	}
	return errors.Join(errs...)
}
