// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled transcripts and inspect which
// audio chunks were delivered.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.EmitFinal("cat")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vozcards/pkg/provider/stt"
	"github.com/MrWong99/vozcards/pkg/types"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by StartStream. If nil, a fresh [NewSession] is
	// returned on each call.
	Session *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	// OnStart, if set, is called with every session handed out.
	OnStart func(*Session)
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		err := p.StartStreamErr
		p.mu.Unlock()
		return nil, err
	}
	sess := p.Session
	if sess == nil {
		sess = NewSession()
	}
	hook := p.OnStart
	p.mu.Unlock()

	if hook != nil {
		hook(sess)
	}
	return sess, nil
}

// CallCount returns the number of StartStream calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.StartStreamCalls)
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Transcripts are
// injected with Emit*; Close closes both channels.
type Session struct {
	mu sync.Mutex

	partials chan types.Transcript
	finals   chan types.Transcript
	closed   bool
	closing  bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// Chunks records a copy of every chunk passed to SendAudio.
	Chunks [][]byte

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	// OnClose, if set, runs on the first Close before the channels close.
	// Tests use it to emit a final transcript on flush.
	OnClose func(s *Session)
}

// NewSession returns a Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 16),
	}
}

// SendAudio records the chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return stt.ErrSessionClosed
	}
	s.Chunks = append(s.Chunks, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

// Partials implements stt.SessionHandle.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals implements stt.SessionHandle.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// EmitPartial delivers an interim transcript. No-op after Close.
func (s *Session) EmitPartial(text string) {
	s.emit(s.partials, types.Transcript{Text: text, Confidence: 0.5})
}

// EmitFinal delivers a final transcript. No-op after Close.
func (s *Session) EmitFinal(text string) {
	s.emit(s.finals, types.Transcript{Text: text, IsFinal: true, Confidence: 0.9})
}

func (s *Session) emit(ch chan types.Transcript, t types.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	ch <- t
}

// Close runs OnClose once, then closes both channels.
func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCallCount++
	if s.closed || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	hook := s.OnClose
	s.OnClose = nil
	s.mu.Unlock()

	if hook != nil {
		hook(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	close(s.partials)
	close(s.finals)
	return nil
}

// ChunkCount returns the number of SendAudio calls that were recorded.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Chunks)
}

// Closes returns CloseCallCount. Thread-safe.
func (s *Session) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.CloseCallCount
}

var _ stt.SessionHandle = (*Session)(nil)
