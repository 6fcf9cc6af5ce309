// Package game implements the voice-driven practice loop: it presents the
// cards of one set in order, captures the learner's answer through a
// [speech.Recognizer], scores it with a [pronounce.Classifier], reports each
// attempt to a [progress.Gateway] and advances through the set.
//
// A [Session] is a small state machine:
//
//	Idle → Listening → Evaluating → Correct   → (advance) → Idle
//	                              → Incorrect → (unlock)  → Idle
//	Completed is terminal; Empty means the set has no cards.
//
// A single processing lock guards scoring. It is taken the instant a final
// transcript arrives and released only after the outcome is applied and a
// short settle delay has passed. Results that arrive while it is held are
// dropped, never queued: recognisers sometimes repeat or deliver late events
// and each answer must be scored once, against the card it was given for.
//
// All delayed transitions run on an injectable [Clock] and are cancelled by
// [Session.Close].
package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/vozcards/internal/observe"
	"github.com/MrWong99/vozcards/internal/pronounce"
	"github.com/MrWong99/vozcards/internal/speech"
	"github.com/MrWong99/vozcards/pkg/progress"
	"github.com/MrWong99/vozcards/pkg/types"
)

var (
	// ErrRecognitionUnavailable means no speech recognition is configured.
	ErrRecognitionUnavailable = errors.New("game: speech recognition unavailable")

	// ErrBusy means a capture or a previous answer is still being processed.
	ErrBusy = errors.New("game: still processing the previous answer")

	// ErrNoSpeech means a capture ended without a transcript.
	ErrNoSpeech = errors.New("game: no speech detected")

	// ErrRecognition means a capture could not be started or failed.
	ErrRecognition = errors.New("game: speech recognition failed")

	// ErrEmptyCardSet means the set has no cards to practise.
	ErrEmptyCardSet = errors.New("game: card set is empty")

	// ErrCompleted means every card of the set has been answered.
	ErrCompleted = errors.New("game: session completed")

	// ErrClosed means the session has been torn down.
	ErrClosed = errors.New("game: session closed")

	// ErrNotOpen means Open has not succeeded yet.
	ErrNotOpen = errors.New("game: session not open")
)

// Phase is the state of a [Session].
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseListening
	PhaseEvaluating
	PhaseCorrect
	PhaseIncorrect
	PhaseCompleted
	PhaseEmpty
)

// String returns the stable name used in logs and the HTTP API.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseListening:
		return "listening"
	case PhaseEvaluating:
		return "evaluating"
	case PhaseCorrect:
		return "correct"
	case PhaseIncorrect:
		return "incorrect"
	case PhaseCompleted:
		return "completed"
	case PhaseEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

// MarshalText encodes the phase as its name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Side selects which word of a card to speak.
type Side int

const (
	// SideSource is the Spanish prompt.
	SideSource Side = iota
	// SideTarget is the English answer.
	SideTarget
)

// Summary is the end-of-session result shown to the learner.
type Summary struct {
	Score     int  `json:"score"`
	Stars     int  `json:"stars"`
	Mastered  int  `json:"mastered"`
	Cards     int  `json:"cards"`
	Completed bool `json:"completed"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	StudentID  string          `json:"student_id"`
	CardSetID  string          `json:"card_set_id"`
	Phase      Phase           `json:"phase"`
	Index      int             `json:"index"`
	Count      int             `json:"count"`
	Card       types.Flashcard `json:"card"`
	Score      int             `json:"score"`
	Stars      int             `json:"stars"`
	Completed  bool            `json:"completed"`
	Feedback   Feedback        `json:"feedback"`
	MicEnabled bool            `json:"mic_enabled"`
	Busy       bool            `json:"busy"`
}

// Option is a functional option for configuring a [Session].
type Option func(*Session)

// WithRecognizer sets the speech recognizer. Without one, Listen returns
// [ErrRecognitionUnavailable].
func WithRecognizer(r speech.Recognizer) Option {
	return func(s *Session) { s.rec = r }
}

// WithSynthesizer sets the speech synthesizer. Without one, SpeakCard is a
// no-op.
func WithSynthesizer(syn speech.Synthesizer) Option {
	return func(s *Session) { s.syn = syn }
}

// WithClassifier overrides the default [pronounce.Classifier].
func WithClassifier(c *pronounce.Classifier) Option {
	return func(s *Session) { s.classifier = c }
}

// WithPolicy overrides [DefaultPolicy].
func WithPolicy(p Policy) Option {
	return func(s *Session) { s.policy = p }
}

// WithClock overrides the wall clock used for delayed transitions.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithListener registers l for session events.
func WithListener(l Listener) Option {
	return func(s *Session) { s.listener = l }
}

// WithMessages overrides [DefaultMessages].
func WithMessages(m *Messages) Option {
	return func(s *Session) { s.messages = m }
}

// WithMetrics records attempts, stars and completions to m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// Session is one learner practising one card set. Methods are safe for
// concurrent use.
type Session struct {
	studentID string
	cardSetID string

	source     progress.CardSource
	gateway    progress.Gateway
	rec        speech.Recognizer
	syn        speech.Synthesizer
	classifier *pronounce.Classifier
	policy     Policy
	clock      Clock
	listener   Listener
	messages   *Messages
	metrics    *observe.Metrics

	mu         sync.Mutex
	opened     bool
	closed     bool
	cards      []types.Flashcard
	successes  map[string]int
	index      int
	score      int
	stars      int
	completed  bool
	celebrated bool
	phase      Phase
	locked     bool
	feedback   Feedback
	lastErr    error

	capture    speech.Capture
	captureGen uint64
	timer      Timer
	timerGen   uint64

	// pending holds listener notifications queued under mu.
	pending []func(Listener)

	writes sync.WaitGroup
}

// New creates a session for studentID practising cardSetID. Call Open before
// anything else.
func New(studentID, cardSetID string, source progress.CardSource, gateway progress.Gateway, opts ...Option) *Session {
	s := &Session{
		studentID: studentID,
		cardSetID: cardSetID,
		source:    source,
		gateway:   gateway,
		policy:    DefaultPolicy(),
		clock:     realClock{},
		listener:  NopListener{},
		messages:  DefaultMessages(),
		successes: make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	if s.classifier == nil {
		s.classifier = pronounce.NewClassifier()
	}
	return s
}

// Open loads the cards and the learner's progress and positions the session
// on the first card that is not yet mastered. A failure to load progress is
// logged and the session starts from the first card.
func (s *Session) Open(ctx context.Context) error {
	cards, err := s.source.LoadCards(ctx, s.cardSetID)
	if err != nil {
		return fmt.Errorf("game: open %q: load cards: %w", s.cardSetID, err)
	}

	var recs []types.ProgressRecord
	if len(cards) > 0 {
		recs, err = s.gateway.LoadProgress(ctx, s.studentID, s.cardSetID)
		if err != nil {
			slog.Warn("game: load progress failed, starting from the first card",
				"student_id", s.studentID, "card_set_id", s.cardSetID, "err", err)
			recs = nil
		}
	}

	s.mu.Lock()
	defer s.notify()

	if s.closed {
		return ErrClosed
	}
	if s.opened {
		return fmt.Errorf("game: open %q: already open", s.cardSetID)
	}
	s.cards = cards
	s.opened = true
	if len(cards) == 0 {
		s.setPhase(PhaseEmpty)
		return ErrEmptyCardSet
	}

	pos := Resume(cards, recs, s.policy.CorrectPoints)
	if pos.Stale > 0 {
		slog.Warn("game: ignoring stored progress for cards no longer in the set",
			"student_id", s.studentID, "card_set_id", s.cardSetID, "records", pos.Stale)
	}
	s.index = pos.Index
	s.score = pos.Score
	s.stars = s.score / s.policy.StarEvery
	for _, r := range recs {
		s.successes[r.CardID] = r.SuccessCount
	}
	if pos.Completed {
		s.completed = true
		s.celebrated = true
		s.setPhase(PhaseCompleted)
	} else {
		s.setPhase(PhaseIdle)
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Add(ctx, 1)
	}

	slog.Info("game: session opened",
		"student_id", s.studentID,
		"card_set_id", s.cardSetID,
		"cards", len(cards),
		"index", s.index,
		"score", s.score,
		"mastered", pos.Mastered,
		"completed", s.completed,
	)
	return nil
}

// Listen starts capturing the learner's answer for the current card. The
// returned channel is closed once the capture has ended and its outcome has
// been applied.
func (s *Session) Listen(ctx context.Context) (<-chan struct{}, error) {
	s.mu.Lock()
	if err := s.listenable(); err != nil {
		s.notify()
		return nil, err
	}
	s.captureGen++
	gen := s.captureGen
	card := s.cards[s.index]
	rec := s.rec
	s.lastErr = nil
	s.setFeedback(Feedback{})
	s.setPhase(PhaseListening)
	s.notify()

	c, err := rec.StartCapture(context.WithoutCancel(ctx), s.policy.TargetLanguage, s.callbacks(gen),
		speech.WithKeywords(card.TargetText))

	s.mu.Lock()
	defer s.notify()
	if err != nil {
		if gen == s.captureGen && s.phase == PhaseListening {
			s.setPhase(PhaseIdle)
		}
		switch {
		case errors.Is(err, speech.ErrBusy):
			s.setFeedback(Feedback{Kind: FeedbackBusy, Message: s.messages.Busy})
			return nil, ErrBusy
		case errors.Is(err, speech.ErrUnavailable):
			s.setFeedback(Feedback{Kind: FeedbackUnsupported, Message: s.messages.Unsupported})
			return nil, ErrRecognitionUnavailable
		default:
			slog.Warn("game: start capture failed", "card_id", card.ID, "err", err)
			s.setFeedback(Feedback{Kind: FeedbackMicError, Message: s.messages.MicError})
			return nil, fmt.Errorf("%w: %w", ErrRecognition, err)
		}
	}
	if s.closed || gen != s.captureGen {
		c.Abort()
		if s.closed {
			return nil, ErrClosed
		}
		return c.Done(), nil
	}
	select {
	case <-c.Done():
	default:
		s.capture = c
	}
	return c.Done(), nil
}

// listenable reports why a capture may not start. Called with mu held.
func (s *Session) listenable() error {
	switch {
	case s.closed:
		return ErrClosed
	case !s.opened:
		return ErrNotOpen
	case s.phase == PhaseEmpty:
		return ErrEmptyCardSet
	case s.completed:
		return ErrCompleted
	case s.rec == nil || !s.rec.Available():
		s.setFeedback(Feedback{Kind: FeedbackUnsupported, Message: s.messages.Unsupported})
		return ErrRecognitionUnavailable
	case s.locked || s.phase == PhaseListening:
		s.setFeedback(Feedback{Kind: FeedbackBusy, Message: s.messages.Busy})
		return ErrBusy
	}
	return nil
}

// callbacks routes the outcome of capture gen into the session. A
// generation accepts one outcome: once it has been applied, or the session
// has moved on, every later callback of that capture is ignored.
func (s *Session) callbacks(gen uint64) speech.Callbacks {
	return speech.Callbacks{
		OnResult: func(t types.Transcript) {
			s.mu.Lock()
			defer s.notify()
			if gen != s.captureGen {
				slog.Debug("game: dropping result of finished capture", "text", t.Text, "final", t.IsFinal)
				return
			}
			if s.apply(t) {
				s.retireCapture()
			}
		},
		OnError: func(kind speech.ErrorKind) {
			s.mu.Lock()
			defer s.notify()
			if gen != s.captureGen {
				return
			}
			slog.Info("game: capture failed", "kind", string(kind))
			s.captureFailed(fmt.Errorf("%w: %s", ErrRecognition, kind))
			s.retireCapture()
		},
		OnNoSpeech: func() {
			s.mu.Lock()
			defer s.notify()
			if gen != s.captureGen {
				return
			}
			s.captureFailed(ErrNoSpeech)
			s.retireCapture()
		},
		OnEnd: func() {
			s.mu.Lock()
			defer s.notify()
			if gen != s.captureGen {
				return
			}
			if s.phase == PhaseListening {
				s.setPhase(PhaseIdle)
			}
			s.retireCapture()
		},
	}
}

// HandleResult scores t against the current card. It reports whether the
// result was applied: interim results, results arriving while the processing
// lock is held and results after completion or teardown are dropped.
func (s *Session) HandleResult(t types.Transcript) bool {
	s.mu.Lock()
	defer s.notify()
	return s.apply(t)
}

// apply is HandleResult with mu held.
func (s *Session) apply(t types.Transcript) bool {
	if !t.IsFinal || s.closed || !s.opened || s.completed || len(s.cards) == 0 {
		return false
	}
	if s.locked {
		slog.Debug("game: dropping result while processing", "text", t.Text)
		return false
	}
	s.locked = true
	s.lastErr = nil
	s.setPhase(PhaseEvaluating)

	card := s.cards[s.index]
	start := time.Now()
	res := s.classifier.Classify(t.Text, card.TargetText)
	if s.metrics != nil {
		ctx := context.Background()
		s.metrics.ClassifyDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("reason", res.Reason.String())))
		s.metrics.RecordAttempt(ctx, res.IsMatch, res.Reason.String())
	}
	slog.Info("game: answer classified",
		"card_id", card.ID,
		"expected", card.TargetText,
		"heard", t.Text,
		"match", res.IsMatch,
		"reason", res.Reason.String(),
		"similarity", res.Score,
	)

	s.persist(card.ID, res.IsMatch)

	if !res.IsMatch {
		s.setPhase(PhaseIncorrect)
		s.setFeedback(Feedback{Kind: FeedbackIncorrect, Message: s.messages.Nudge(card.TargetText)})
		s.schedule(s.policy.RetryDelay, s.unlock)
		return true
	}

	s.successes[card.ID]++
	s.score += s.policy.CorrectPoints
	if stars := s.score / s.policy.StarEvery; stars > s.stars {
		s.stars = stars
		s.queue(func(l Listener) { l.OnStar(stars) })
		if s.metrics != nil {
			s.metrics.Stars.Add(context.Background(), 1)
		}
	}
	s.setPhase(PhaseCorrect)
	s.setFeedback(Feedback{Kind: FeedbackCorrect, Correct: true, Message: s.messages.Encourage()})
	s.schedule(s.policy.AdvanceDelay, s.advance)
	return true
}

// captureFailed handles a capture without a usable transcript: nothing is
// recorded and the learner may retry after the error delay.
func (s *Session) captureFailed(err error) {
	if s.closed || s.completed || s.locked {
		return
	}
	s.lastErr = err
	s.locked = true
	s.capture = nil
	s.setPhase(PhaseIdle)
	s.setFeedback(Feedback{Kind: FeedbackRetry, Message: s.messages.Retry})
	s.schedule(s.policy.ErrorDelay, s.unlock)
}

// Next moves to the next card, or completes the session on the last one.
// A capture in progress is abandoned and a pending automatic advance is
// replaced.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.notify()
	switch {
	case s.closed:
		return ErrClosed
	case !s.opened:
		return ErrNotOpen
	case s.phase == PhaseEmpty:
		return ErrEmptyCardSet
	case s.completed:
		return ErrCompleted
	}
	s.dropCapture()
	s.locked = true
	s.advance()
	return nil
}

// advance moves past the current card. Called with mu held and the lock taken.
func (s *Session) advance() {
	s.stopTimer()
	s.dropCapture()
	s.setFeedback(Feedback{})
	if s.index < len(s.cards)-1 {
		s.index++
		idx, card := s.index, s.cards[s.index]
		s.setPhase(PhaseIdle)
		s.queue(func(l Listener) { l.OnAdvance(idx, card) })
	} else {
		s.complete()
	}
	s.schedule(s.policy.SettleDelay, s.unlock)
}

// complete marks the session finished. The celebration fires once per
// session.
func (s *Session) complete() {
	s.completed = true
	s.setPhase(PhaseCompleted)
	s.setFeedback(Feedback{Kind: FeedbackCompleted, Correct: true, Message: s.messages.Completed})
	if s.celebrated {
		return
	}
	s.celebrated = true
	sum := s.summary()
	s.queue(func(l Listener) { l.OnCelebrate(sum) })
	if s.metrics != nil {
		s.metrics.SessionsCompleted.Add(context.Background(), 1)
	}
	slog.Info("game: card set completed", "student_id", s.studentID, "card_set_id", s.cardSetID, "score", s.score, "stars", s.stars)
}

// unlock releases the processing lock. Called with mu held.
func (s *Session) unlock() {
	s.captureGen++
	s.locked = false
	if s.phase == PhaseIncorrect || s.phase == PhaseEvaluating || s.phase == PhaseCorrect {
		s.setPhase(PhaseIdle)
	}
}

// persist reports an attempt without waiting for the store. Failures are
// logged and never affect the in-memory score.
func (s *Session) persist(cardID string, success bool) {
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.policy.WriteTimeout)
		defer cancel()
		if _, err := s.gateway.RecordAttempt(ctx, s.studentID, cardID, success); err != nil {
			slog.Warn("game: record attempt failed",
				"student_id", s.studentID, "card_id", cardID, "success", success, "err", err)
			if s.metrics != nil {
				s.metrics.ProgressWriteErrors.Add(context.WithoutCancel(ctx), 1)
			}
		}
	}()
}

// schedule replaces the pending delayed transition with fn after d. fn runs
// with mu held and never after Close.
func (s *Session) schedule(d time.Duration, fn func()) {
	s.stopTimer()
	s.timerGen++
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		defer s.notify()
		if s.closed || gen != s.timerGen {
			return
		}
		s.timer = nil
		fn()
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

// retireCapture ends the current capture generation after its outcome has
// been handled. The capture itself has already finished.
func (s *Session) retireCapture() {
	s.captureGen++
	s.capture = nil
}

// dropCapture abandons the current capture generation, aborting the capture
// if it is still running.
func (s *Session) dropCapture() {
	s.captureGen++
	if s.capture != nil {
		s.capture.Abort()
		s.capture = nil
	}
}

// SpeakCard plays one word of the current card. Missing synthesis is not an
// error: the word is still shown.
func (s *Session) SpeakCard(side Side) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case !s.opened:
		s.mu.Unlock()
		return ErrNotOpen
	case len(s.cards) == 0:
		s.mu.Unlock()
		return ErrEmptyCardSet
	}
	card := s.cards[s.index]
	syn := s.syn
	text, lang := card.SourceText, s.policy.SourceLanguage
	if side == SideTarget {
		text, lang = card.TargetText, s.policy.TargetLanguage
	}
	s.mu.Unlock()

	if syn == nil || !syn.Available() {
		slog.Info("game: synthesis unavailable, not speaking card", "card_id", card.ID)
		return nil
	}
	syn.Speak(text, lang)
	return nil
}

// Close tears the session down: the capture is aborted, playback cancelled,
// pending transitions cancelled and the lock released. It waits for
// in-flight progress writes and returns the final summary. Safe to call more
// than once.
func (s *Session) Close() Summary {
	s.mu.Lock()
	if s.closed {
		sum := s.summary()
		s.mu.Unlock()
		return sum
	}
	s.closed = true
	s.dropCapture()
	s.stopTimer()
	s.locked = false
	syn := s.syn
	opened := s.opened && len(s.cards) > 0
	sum := s.summary()
	s.pending = nil
	s.mu.Unlock()

	if syn != nil {
		syn.Cancel()
	}
	s.writes.Wait()
	if opened && s.metrics != nil {
		s.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	slog.Info("game: session closed", "student_id", s.studentID, "card_set_id", s.cardSetID,
		"score", sum.Score, "stars", sum.Stars, "mastered", sum.Mastered)
	return sum
}

// LastError returns why the most recent capture produced nothing to score:
// [ErrNoSpeech] or an error wrapping [ErrRecognition]. It is nil after a
// scored answer.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Wait blocks until all background progress writes have finished.
func (s *Session) Wait() {
	s.writes.Wait()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		StudentID: s.studentID,
		CardSetID: s.cardSetID,
		Phase:     s.phase,
		Index:     s.index,
		Count:     len(s.cards),
		Score:     s.score,
		Stars:     s.stars,
		Completed: s.completed,
		Feedback:  s.feedback,
		Busy:      s.locked || s.phase == PhaseListening,
	}
	if len(s.cards) > 0 {
		snap.Card = s.cards[s.index]
	}
	snap.MicEnabled = s.opened && !s.closed && !s.completed && len(s.cards) > 0 &&
		!snap.Busy && s.rec != nil && s.rec.Available()
	return snap
}

// Summary returns the score, stars and mastery so far.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary()
}

func (s *Session) summary() Summary {
	mastered := 0
	for _, c := range s.cards {
		if s.successes[c.ID] >= s.policy.MasteryThreshold {
			mastered++
		}
	}
	return Summary{
		Score:     s.score,
		Stars:     s.stars,
		Mastered:  mastered,
		Cards:     len(s.cards),
		Completed: s.completed,
	}
}

// StudentID returns the learner this session belongs to.
func (s *Session) StudentID() string { return s.studentID }

// CardSetID returns the set being practised.
func (s *Session) CardSetID() string { return s.cardSetID }

// ---- notification plumbing ----

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.phase = p
	s.queue(func(l Listener) { l.OnPhase(p) })
}

func (s *Session) setFeedback(f Feedback) {
	s.feedback = f
	if f.Kind != FeedbackNone {
		s.queue(func(l Listener) { l.OnFeedback(f) })
	}
}

func (s *Session) queue(fn func(Listener)) {
	s.pending = append(s.pending, fn)
}

// notify unlocks mu and delivers queued events outside of it.
func (s *Session) notify() {
	events := s.pending
	s.pending = nil
	l := s.listener
	s.mu.Unlock()
	for _, e := range events {
		e(l)
	}
}
