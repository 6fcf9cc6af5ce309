package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/vozcards/internal/observe"
	"github.com/MrWong99/vozcards/pkg/audio"
	"github.com/MrWong99/vozcards/pkg/provider/tts"
	"github.com/MrWong99/vozcards/pkg/types"
)

const (
	// defaultSpeakDelay separates a cancelled utterance from the next one.
	defaultSpeakDelay = 100 * time.Millisecond

	// defaultSpeakTimeout bounds synthesis plus playback of one prompt.
	defaultSpeakTimeout = 30 * time.Second
)

var _ Synthesizer = (*Speaker)(nil)

// SpeakerOption configures a [Speaker].
type SpeakerOption func(*Speaker)

// WithSpeakDelay overrides the pause before each utterance.
func WithSpeakDelay(d time.Duration) SpeakerOption {
	return func(s *Speaker) {
		s.delay = d
	}
}

// WithSpeakTimeout overrides the per-utterance deadline.
func WithSpeakTimeout(d time.Duration) SpeakerOption {
	return func(s *Speaker) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithSpeakerMetrics records utterance durations to m.
func WithSpeakerMetrics(m *observe.Metrics) SpeakerOption {
	return func(s *Speaker) {
		s.metrics = m
	}
}

// WithVoice pins the voice used for lang instead of picking one from the
// provider catalogue. Prosody for lang is still applied.
func WithVoice(lang string, v types.VoiceProfile) SpeakerOption {
	return func(s *Speaker) {
		p := ProsodyFor(lang)
		v.Language = lang
		v.Rate, v.Pitch, v.Volume = p.Rate, p.Pitch, p.Volume
		s.voices[lang] = v
	}
}

// Speaker synthesises prompts with a [tts.Provider] and plays them on an
// [audio.Sink]. At most one utterance plays at a time: each Speak cancels
// the previous one.
type Speaker struct {
	provider tts.Provider
	sink     audio.Sink
	delay    time.Duration
	timeout  time.Duration
	metrics  *observe.Metrics

	mu     sync.Mutex
	cancel context.CancelFunc
	voices map[string]types.VoiceProfile

	// playMu serialises playback so a cancelled utterance has left the sink
	// before the next one starts.
	playMu sync.Mutex
	wg     sync.WaitGroup
}

// NewSpeaker returns a Speaker. A nil provider or sink yields a Speaker that
// reports itself unavailable and skips every prompt.
func NewSpeaker(p tts.Provider, sink audio.Sink, opts ...SpeakerOption) *Speaker {
	s := &Speaker{
		provider: p,
		sink:     sink,
		delay:    defaultSpeakDelay,
		timeout:  defaultSpeakTimeout,
		voices:   make(map[string]types.VoiceProfile),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Available implements [Synthesizer].
func (s *Speaker) Available() bool {
	return s.provider != nil && s.sink != nil
}

// Speak implements [Synthesizer].
func (s *Speaker) Speak(text, lang string) {
	if !s.Available() {
		slog.Info("speech: synthesis unavailable, skipping prompt", "lang", lang)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		s.say(ctx, text, lang)
	}()
}

// Cancel implements [Synthesizer].
func (s *Speaker) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Wait blocks until every started utterance has finished or been cancelled.
func (s *Speaker) Wait() {
	s.wg.Wait()
}

func (s *Speaker) say(ctx context.Context, text, lang string) {
	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	voice := s.voiceFor(ctx, lang)
	pcm, err := s.provider.Synthesize(ctx, text, voice)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("speech: synthesis failed", "lang", lang, "err", err)
		}
		return
	}

	format := audio.Format{SampleRate: s.provider.SampleRate(), Channels: 1}
	err = s.sink.Play(ctx, pcm, format, voice.Volume)
	switch {
	case errors.Is(err, context.Canceled):
		slog.Debug("speech: playback cancelled", "lang", lang)
		return
	case err != nil:
		slog.Warn("speech: playback failed", "lang", lang, "err", err)
		return
	}
	if s.metrics != nil {
		s.metrics.TTSDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("lang", lang)))
	}
}

// voiceFor returns the cached voice for lang with its prosody applied. The
// catalogue is fetched once per language; when it cannot be fetched the
// provider's default voice is used with the language set.
func (s *Speaker) voiceFor(ctx context.Context, lang string) types.VoiceProfile {
	s.mu.Lock()
	v, ok := s.voices[lang]
	s.mu.Unlock()
	if ok {
		return v
	}

	prosody := ProsodyFor(lang)
	v = types.VoiceProfile{Language: lang}
	voices, err := s.provider.ListVoices(ctx)
	switch {
	case err != nil:
		slog.Warn("speech: list voices failed, using provider default", "lang", lang, "err", err)
	default:
		if picked, found := SelectVoice(voices, lang, prosody.Preferred); found {
			v = picked
			v.Language = lang
		}
	}
	v.Rate, v.Pitch, v.Volume = prosody.Rate, prosody.Pitch, prosody.Volume

	if err == nil {
		s.mu.Lock()
		s.voices[lang] = v
		s.mu.Unlock()
	}
	return v
}
