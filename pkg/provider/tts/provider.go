// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. ElevenLabs) and
// presents a uniform interface: Synthesize turns one short utterance into a
// stream of 16-bit mono PCM chunks at the provider's sample rate.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/vozcards/pkg/types"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with voice and returns a channel of PCM chunks.
	// The channel is closed when synthesis finishes, fails, or ctx is
	// cancelled; callers check ctx.Err() to tell cancellation from failure.
	// The caller must drain the channel.
	//
	// Returns a non-nil error only if synthesis cannot be started.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (<-chan []byte, error)

	// ListVoices returns the provider's voice catalogue, with Language set
	// where the provider reports it.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// SampleRate is the rate in Hz of the PCM emitted by Synthesize.
	SampleRate() int
}
