// Package mock provides test doubles for the speech package interfaces.
//
// Recognizer hands out Capture values whose outcome the test decides:
//
//	rec := &mock.Recognizer{}
//	done, _ := session.Listen(ctx)
//	rec.Last().Result("cat")
//	<-done
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/vozcards/internal/speech"
	"github.com/MrWong99/vozcards/pkg/types"
)

// StartCall records a single invocation of Recognizer.StartCapture.
type StartCall struct {
	Lang     string
	Keywords []string
}

// Recognizer is a mock implementation of speech.Recognizer.
type Recognizer struct {
	mu sync.Mutex

	// Unavailable makes Available return false and StartCapture fail with
	// speech.ErrUnavailable.
	Unavailable bool

	// StartErr, if non-nil, is returned by StartCapture.
	StartErr error

	// StartCalls records every successful or failed StartCapture call.
	StartCalls []StartCall

	captures []*Capture
}

// StartCapture records the call and returns a Capture driven by the test.
func (r *Recognizer) StartCapture(_ context.Context, lang string, cb speech.Callbacks, opts ...speech.CaptureOption) (speech.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StartCalls = append(r.StartCalls, StartCall{Lang: lang, Keywords: speech.KeywordsOf(opts...)})
	if r.Unavailable {
		return nil, speech.ErrUnavailable
	}
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	c := &Capture{cb: cb, done: make(chan struct{})}
	r.captures = append(r.captures, c)
	return c, nil
}

// Available implements speech.Recognizer.
func (r *Recognizer) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.Unavailable
}

// Last returns the most recent capture, or nil.
func (r *Recognizer) Last() *Capture {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.captures) == 0 {
		return nil
	}
	return r.captures[len(r.captures)-1]
}

// CallCount returns the number of StartCapture calls.
func (r *Recognizer) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.StartCalls)
}

var _ speech.Recognizer = (*Recognizer)(nil)

// Capture is a mock speech.Capture. Result, NoSpeech and Fail fire the
// matching terminal callback followed by OnEnd; only the first of them (or
// Abort) has any effect, like a real capture.
type Capture struct {
	mu      sync.Mutex
	cb      speech.Callbacks
	once    sync.Once
	done    chan struct{}
	aborted bool
}

// Result delivers a final transcript.
func (c *Capture) Result(text string) {
	c.finish(func() {
		if c.cb.OnResult != nil {
			c.cb.OnResult(types.Transcript{Text: text, IsFinal: true, Confidence: 0.9})
		}
	})
}

// Duplicate delivers a further final transcript on an already finished
// capture, the way some recognisers repeat their last event.
func (c *Capture) Duplicate(text string) {
	if c.cb.OnResult != nil {
		c.cb.OnResult(types.Transcript{Text: text, IsFinal: true, Confidence: 0.9})
	}
}

// Callbacks returns the callbacks the capture was started with, for
// delivering events outside the usual terminal-then-end order.
func (c *Capture) Callbacks() speech.Callbacks { return c.cb }

// NoSpeech ends the capture without a transcript.
func (c *Capture) NoSpeech() {
	c.finish(func() {
		if c.cb.OnNoSpeech != nil {
			c.cb.OnNoSpeech()
		}
	})
}

// Fail ends the capture with kind.
func (c *Capture) Fail(kind speech.ErrorKind) {
	c.finish(func() {
		if c.cb.OnError != nil {
			c.cb.OnError(kind)
		}
	})
}

// Abort implements speech.Capture. It fires OnError(aborted) and OnEnd
// asynchronously, as the real recognizer does.
func (c *Capture) Abort() {
	c.mu.Lock()
	c.aborted = true
	c.mu.Unlock()
	go c.Fail(speech.ErrorAborted)
}

// Aborted reports whether Abort was called.
func (c *Capture) Aborted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

// Done implements speech.Capture.
func (c *Capture) Done() <-chan struct{} { return c.done }

func (c *Capture) finish(terminal func()) {
	c.once.Do(func() {
		defer close(c.done)
		terminal()
		if c.cb.OnEnd != nil {
			c.cb.OnEnd()
		}
	})
}

var _ speech.Capture = (*Capture)(nil)

// Utterance records one Speak call.
type Utterance struct {
	Text string
	Lang string
}

// Synthesizer is a mock implementation of speech.Synthesizer.
type Synthesizer struct {
	mu sync.Mutex

	// Unavailable makes Available return false.
	Unavailable bool

	// Spoken records every Speak call.
	Spoken []Utterance

	// Cancels counts Cancel calls.
	Cancels int
}

// Speak records the utterance.
func (s *Synthesizer) Speak(text, lang string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Spoken = append(s.Spoken, Utterance{Text: text, Lang: lang})
}

// Cancel counts the call.
func (s *Synthesizer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Cancels++
}

// Available implements speech.Synthesizer.
func (s *Synthesizer) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.Unavailable
}

// Utterances returns a copy of Spoken.
func (s *Synthesizer) Utterances() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Utterance(nil), s.Spoken...)
}

// CancelCount returns Cancels.
func (s *Synthesizer) CancelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Cancels
}

var _ speech.Synthesizer = (*Synthesizer)(nil)
