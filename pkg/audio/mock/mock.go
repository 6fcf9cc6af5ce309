// Package mock provides in-memory mock implementations of [audio.Mic] and
// [audio.Sink] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	mic := &mock.Mic{PCM: make([]byte, 3200), Format: audio.SpeechFormat}
//	sink := &mock.Sink{}
//	rec := speech.NewRecognizer(mic, sttProvider)
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/vozcards/pkg/audio"
)

// Compile-time interface checks.
var (
	_ audio.Mic  = (*Mic)(nil)
	_ audio.Sink = (*Sink)(nil)
)

// ─── Mic ──────────────────────────────────────────────────────────────────────

// Mic is a mock implementation of [audio.Mic].
type Mic struct {
	mu sync.Mutex

	// PCM is the audio every Open returns.
	PCM []byte

	// Format is returned alongside PCM. Defaults to [audio.SpeechFormat].
	Format audio.Format

	// OpenErr is returned by Open when non-nil.
	OpenErr error

	// Hold keeps the reader open after PCM is exhausted until it is closed,
	// like a microphone nobody speaks into.
	Hold bool

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// Closes records how many readers have been closed.
	Closes int
}

// Open implements [audio.Mic].
func (m *Mic) Open(_ context.Context) (io.ReadCloser, audio.Format, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCountOpen++
	if m.OpenErr != nil {
		return nil, audio.Format{}, m.OpenErr
	}
	f := m.Format
	if f.SampleRate == 0 {
		f = audio.SpeechFormat
	}
	return &reader{mic: m, r: bytes.NewReader(m.PCM), hold: m.Hold, closed: make(chan struct{})}, f, nil
}

// CloseCount returns how many readers have been closed.
func (m *Mic) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closes
}

type reader struct {
	mic    *Mic
	r      *bytes.Reader
	hold   bool
	once   sync.Once
	closed chan struct{}
}

func (r *reader) Read(p []byte) (int, error) {
	select {
	case <-r.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	n, err := r.r.Read(p)
	if err == io.EOF && r.hold {
		<-r.closed
		return 0, io.ErrClosedPipe
	}
	return n, err
}

func (r *reader) Close() error {
	r.once.Do(func() {
		close(r.closed)
		r.mic.mu.Lock()
		r.mic.Closes++
		r.mic.mu.Unlock()
	})
	return nil
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// PlayCall records a single completed or cancelled [Sink.Play] invocation.
type PlayCall struct {
	// Format is the PCM format passed to Play.
	Format audio.Format
	// Gain is the gain passed to Play.
	Gain float64
	// Bytes is the number of PCM bytes consumed.
	Bytes int
	// Cancelled is true when ctx ended the playback.
	Cancelled bool
}

// Sink is a mock implementation of [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// PlayErr is returned by Play after the stream is consumed.
	PlayErr error

	// Block, when non-nil, makes Play wait for it to close (or for ctx) after
	// consuming the stream, simulating a long utterance.
	Block <-chan struct{}

	// PlayCalls records all Play invocations in completion order.
	PlayCalls []PlayCall
}

// Play implements [audio.Sink].
func (s *Sink) Play(ctx context.Context, pcm <-chan []byte, f audio.Format, gain float64) error {
	call := PlayCall{Format: f, Gain: gain}
	defer func() {
		s.mu.Lock()
		s.PlayCalls = append(s.PlayCalls, call)
		s.mu.Unlock()
	}()

	for {
		select {
		case chunk, ok := <-pcm:
			if !ok {
				return s.wait(ctx, &call)
			}
			call.Bytes += len(chunk)
		case <-ctx.Done():
			call.Cancelled = true
			go audio.Drain(pcm)
			return ctx.Err()
		}
	}
}

func (s *Sink) wait(ctx context.Context, call *PlayCall) error {
	s.mu.Lock()
	block, err := s.Block, s.PlayErr
	s.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			call.Cancelled = true
			return ctx.Err()
		}
	}
	return err
}

// Calls returns a copy of the recorded plays.
func (s *Sink) Calls() []PlayCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PlayCall(nil), s.PlayCalls...)
}

// Reset clears recorded calls.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PlayCalls = nil
}
