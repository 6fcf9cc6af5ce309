package resilience

import (
	"context"

	"github.com/MrWong99/vozcards/pkg/audio"
	"github.com/MrWong99/vozcards/pkg/provider/tts"
	"github.com/MrWong99/vozcards/pkg/types"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends. Each backend has its own circuit breaker. Audio from a
// fallback whose sample rate differs from the primary's is resampled, so
// [TTSFallback.SampleRate] holds whichever backend answers.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
	rate  int
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
		rate:  primary.SampleRate(),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text on the first healthy provider. Only stream setup is
// covered by failover; a stream that dies midway simply ends early.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (<-chan []byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (<-chan []byte, error) {
		ch, err := p.Synthesize(ctx, text, voice)
		if err != nil {
			return nil, err
		}
		if src := p.SampleRate(); src != f.rate {
			return resampled(ch, src, f.rate), nil
		}
		return ch, nil
	})
}

// resampled converts every chunk of in from src to dst Hz.
func resampled(in <-chan []byte, src, dst int) <-chan []byte {
	out := make(chan []byte, cap(in))
	go func() {
		defer close(out)
		for chunk := range in {
			out <- audio.ResampleMono16(chunk, src, dst)
		}
	}()
	return out
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// SampleRate returns the primary provider's sample rate.
func (f *TTSFallback) SampleRate() int { return f.rate }

// States reports the breaker state of every backend.
func (f *TTSFallback) States() map[string]State { return f.group.States() }

// Healthy reports whether any backend is accepting requests.
func (f *TTSFallback) Healthy() bool { return f.group.Healthy() }
