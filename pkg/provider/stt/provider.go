// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g. Deepgram or a local
// whisper.cpp server) and exposes a uniform streaming interface. Once opened, a
// session accepts raw 16-bit PCM audio and emits two streams of transcripts:
// low-latency partials and authoritative finals. Only finals are scored by the
// practice session.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/vozcards/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16000 is typical).
	SampleRate int

	// Channels is the number of interleaved audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 tag for recognition (e.g. "en-US").
	Language string

	// Keywords are vocabulary hints, typically the word the learner is
	// expected to say. Providers without hint support ignore them.
	Keywords []string
}

// SessionHandle is an open streaming recognition session.
//
// Callers must call Close when done. Calling Close flushes pending audio so
// that a final transcript for it may still be delivered before the Finals
// channel closes.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM audio matching the StreamConfig.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals emits committed transcripts. Closed when the session ends.
	Finals() <-chan types.Transcript

	// Close ends the session. Safe to call more than once.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new recognition session. The caller owns the
	// returned handle and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
