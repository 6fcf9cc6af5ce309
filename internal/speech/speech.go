// Package speech is the capture and playback seam between a practice session
// and the speech providers.
//
// The session never talks to an STT or TTS backend directly. It asks a
// [Recognizer] for one capture at a time and receives exactly one terminal
// callback (result, error or no-speech) followed by OnEnd, and it asks a
// [Synthesizer] to say a word, which cancels whatever was still playing.
//
// [STTRecognizer] and [Speaker] implement the two interfaces over
// [stt.Provider], [tts.Provider] and the [audio] Mic/Sink pair. Both report
// themselves unavailable when constructed without a provider, which is how a
// deployment without speech keys degrades.
package speech

import (
	"context"
	"errors"

	"github.com/MrWong99/vozcards/pkg/types"
)

var (
	// ErrBusy is returned by StartCapture while a previous capture is running.
	ErrBusy = errors.New("speech: capture already in progress")

	// ErrUnavailable is returned by StartCapture when there is no recognition
	// backend.
	ErrUnavailable = errors.New("speech: recognition unavailable")
)

// ErrorKind classifies why a capture ended without a transcript.
type ErrorKind string

const (
	// ErrorNetwork means the recognition backend could not be reached or
	// dropped the stream.
	ErrorNetwork ErrorKind = "network"

	// ErrorAudio means the microphone failed mid-capture.
	ErrorAudio ErrorKind = "audio"

	// ErrorAborted means the capture was cancelled by its owner.
	ErrorAborted ErrorKind = "aborted"
)

// Callbacks receive the outcome of one capture. Exactly one of OnResult,
// OnError and OnNoSpeech is called, then OnEnd. Nil callbacks are skipped.
// Callbacks run on the capture's goroutine and must not block for long.
type Callbacks struct {
	OnResult   func(types.Transcript)
	OnError    func(ErrorKind)
	OnNoSpeech func()
	OnEnd      func()
}

// Capture is a running capture.
type Capture interface {
	// Abort stops the capture. If no terminal callback has fired yet,
	// OnError(ErrorAborted) and OnEnd follow. Abort never blocks on the
	// callbacks and is safe to call more than once.
	Abort()

	// Done is closed after OnEnd has returned.
	Done() <-chan struct{}
}

// Recognizer turns one utterance into a transcript.
type Recognizer interface {
	// StartCapture begins listening in the BCP-47 language lang. It returns
	// [ErrBusy] when a capture is already running and [ErrUnavailable] when
	// recognition is not configured.
	StartCapture(ctx context.Context, lang string, cb Callbacks, opts ...CaptureOption) (Capture, error)

	// Available reports whether captures can be started at all.
	Available() bool
}

// Synthesizer speaks short prompts.
type Synthesizer interface {
	// Speak cancels any playback in flight and starts saying text in lang.
	// It does not wait for playback and never fails; problems are logged.
	Speak(text, lang string)

	// Cancel stops the current playback, if any.
	Cancel()

	// Available reports whether playback is possible.
	Available() bool
}

// Availability is the result of [Probe].
type Availability struct {
	Synthesis   bool `json:"synthesis"`
	Recognition bool `json:"recognition"`
}

// Probe reports which speech capabilities are usable. Nil arguments count as
// unavailable.
func Probe(r Recognizer, s Synthesizer) Availability {
	return Availability{
		Synthesis:   s != nil && s.Available(),
		Recognition: r != nil && r.Available(),
	}
}

// CaptureOption tunes a single capture.
type CaptureOption func(*captureConfig)

type captureConfig struct {
	keywords []string
}

// WithKeywords passes recognition hints, usually the expected word, to the
// STT backend.
func WithKeywords(words ...string) CaptureOption {
	return func(c *captureConfig) {
		c.keywords = append(c.keywords, words...)
	}
}

// KeywordsOf returns the keywords requested by opts. Recognizer
// implementations outside this package use it to read the hints.
func KeywordsOf(opts ...CaptureOption) []string {
	var cfg captureConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg.keywords
}
