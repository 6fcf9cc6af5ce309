package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/vozcards/internal/observe"
	"github.com/MrWong99/vozcards/pkg/audio"
	"github.com/MrWong99/vozcards/pkg/provider/stt"
	"github.com/MrWong99/vozcards/pkg/types"
)

const (
	// DefaultNoSpeechTimeout ends a capture that produced no final transcript.
	DefaultNoSpeechTimeout = 8 * time.Second

	// chunkMs is the duration of each PCM chunk forwarded to the STT session.
	chunkMs = 20
)

var _ Recognizer = (*STTRecognizer)(nil)

// RecognizerOption configures an [STTRecognizer].
type RecognizerOption func(*STTRecognizer)

// WithNoSpeechTimeout overrides [DefaultNoSpeechTimeout].
func WithNoSpeechTimeout(d time.Duration) RecognizerOption {
	return func(r *STTRecognizer) {
		if d > 0 {
			r.noSpeech = d
		}
	}
}

// WithRecognizerMetrics records capture outcomes and durations to m.
func WithRecognizerMetrics(m *observe.Metrics) RecognizerOption {
	return func(r *STTRecognizer) {
		r.metrics = m
	}
}

// STTRecognizer captures audio from an [audio.Mic], converts it to
// [audio.SpeechFormat] and streams it to an [stt.Provider]. Only one capture
// runs at a time.
type STTRecognizer struct {
	mic      audio.Mic
	provider stt.Provider
	noSpeech time.Duration
	metrics  *observe.Metrics

	mu     sync.Mutex
	active bool
}

// NewSTTRecognizer returns a recognizer reading mic and transcribing with p.
// A nil mic or provider yields a recognizer that reports itself unavailable.
func NewSTTRecognizer(mic audio.Mic, p stt.Provider, opts ...RecognizerOption) *STTRecognizer {
	r := &STTRecognizer{
		mic:      mic,
		provider: p,
		noSpeech: DefaultNoSpeechTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Available implements [Recognizer].
func (r *STTRecognizer) Available() bool {
	return r.mic != nil && r.provider != nil
}

// Busy reports whether a capture is running.
func (r *STTRecognizer) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// StartCapture implements [Recognizer]. Errors opening the microphone or the
// STT stream are returned directly and no callbacks fire.
func (r *STTRecognizer) StartCapture(ctx context.Context, lang string, cb Callbacks, opts ...CaptureOption) (Capture, error) {
	if !r.Available() {
		r.record(ctx, "unavailable")
		return nil, ErrUnavailable
	}

	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		r.record(ctx, "busy")
		return nil, ErrBusy
	}
	r.active = true
	r.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	src, format, err := r.mic.Open(ctx)
	if err != nil {
		cancel()
		r.release()
		r.record(ctx, "error")
		return nil, fmt.Errorf("speech: open microphone: %w", err)
	}

	handle, err := r.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: audio.SpeechFormat.SampleRate,
		Channels:   audio.SpeechFormat.Channels,
		Language:   lang,
		Keywords:   KeywordsOf(opts...),
	})
	if err != nil {
		_ = src.Close()
		cancel()
		r.release()
		r.record(ctx, "error")
		return nil, fmt.Errorf("speech: start stream: %w", err)
	}

	c := &capture{
		rec:     r,
		ctx:     ctx,
		cancel:  cancel,
		src:     src,
		format:  format,
		handle:  handle,
		cb:      cb,
		start:   time.Now(),
		abortCh: make(chan struct{}),
		pumpErr: make(chan ErrorKind, 1),
		done:    make(chan struct{}),
	}
	go c.pump()
	go c.run()

	slog.Debug("speech: capture started", "lang", lang, "sample_rate", format.SampleRate, "channels", format.Channels)
	return c, nil
}

func (r *STTRecognizer) release() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}

func (r *STTRecognizer) record(ctx context.Context, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordCapture(context.WithoutCancel(ctx), outcome)
	}
}

// capture is one running recognition. pump moves audio into the STT session;
// run waits for the first terminal event and fires the callbacks.
type capture struct {
	rec    *STTRecognizer
	ctx    context.Context
	cancel context.CancelFunc
	src    io.ReadCloser
	format audio.Format
	handle stt.SessionHandle
	cb     Callbacks
	start  time.Time

	abortOnce sync.Once
	abortCh   chan struct{}
	pumpErr   chan ErrorKind
	done      chan struct{}
}

func (c *capture) Abort() {
	c.abortOnce.Do(func() { close(c.abortCh) })
}

func (c *capture) Done() <-chan struct{} { return c.done }

// pump reads the microphone until EOF and closes the STT session so it
// flushes the trailing audio.
func (c *capture) pump() {
	conv := audio.FormatConverter{Target: audio.SpeechFormat}
	buf := make([]byte, c.format.BytesPerMs()*chunkMs)
	for {
		n, err := io.ReadFull(c.src, buf)
		if n > 0 {
			frame := conv.Convert(audio.Frame{
				Data:       append([]byte(nil), buf[:n]...),
				SampleRate: c.format.SampleRate,
				Channels:   c.format.Channels,
			})
			if len(frame.Data) > 0 {
				if serr := c.handle.SendAudio(frame.Data); serr != nil {
					if !errors.Is(serr, stt.ErrSessionClosed) {
						slog.Warn("speech: send audio failed", "err", serr)
						c.pumpErr <- ErrorNetwork
					}
					return
				}
			}
		}
		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			_ = c.handle.Close()
			return
		case c.ctx.Err() != nil, errors.Is(err, io.ErrClosedPipe):
			return
		default:
			slog.Warn("speech: microphone read failed", "err", err)
			c.pumpErr <- ErrorAudio
			return
		}
	}
}

// outcome is the terminal event of a capture.
type outcome struct {
	transcript *types.Transcript
	kind       ErrorKind
	noSpeech   bool
}

func (c *capture) run() {
	timer := time.NewTimer(c.rec.noSpeech)
	defer timer.Stop()

	partials := c.handle.Partials()
	finals := c.handle.Finals()
	var out outcome

wait:
	for {
		select {
		case t, ok := <-finals:
			if !ok {
				out.noSpeech = true
				break wait
			}
			if !t.IsFinal || strings.TrimSpace(t.Text) == "" {
				continue
			}
			t.Text = strings.TrimSpace(t.Text)
			out.transcript = &t
			break wait
		case _, ok := <-partials:
			if !ok {
				partials = nil
			}
		case kind := <-c.pumpErr:
			out.kind = kind
			break wait
		case <-timer.C:
			out.noSpeech = true
			break wait
		case <-c.abortCh:
			out.kind = ErrorAborted
			break wait
		case <-c.ctx.Done():
			out.kind = ErrorAborted
			break wait
		}
	}

	c.cancel()
	_ = c.src.Close()
	_ = c.handle.Close()
	c.rec.release()
	c.finish(out)
}

func (c *capture) finish(out outcome) {
	defer close(c.done)
	ctx := context.WithoutCancel(c.ctx)
	if m := c.rec.metrics; m != nil {
		m.STTDuration.Record(ctx, time.Since(c.start).Seconds())
	}

	switch {
	case out.transcript != nil:
		c.rec.record(ctx, "result")
		slog.Debug("speech: capture result", "text", out.transcript.Text, "confidence", out.transcript.Confidence)
		if c.cb.OnResult != nil {
			c.cb.OnResult(*out.transcript)
		}
	case out.noSpeech:
		c.rec.record(ctx, "no_speech")
		if c.cb.OnNoSpeech != nil {
			c.cb.OnNoSpeech()
		}
	default:
		c.rec.record(ctx, "error")
		slog.Debug("speech: capture ended with error", "kind", string(out.kind))
		if c.cb.OnError != nil {
			c.cb.OnError(out.kind)
		}
	}
	if c.cb.OnEnd != nil {
		c.cb.OnEnd()
	}
}
