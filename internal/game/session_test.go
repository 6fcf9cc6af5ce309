package game_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/vozcards/internal/game"
	"github.com/MrWong99/vozcards/internal/speech"
	speechmock "github.com/MrWong99/vozcards/internal/speech/mock"
	progressmock "github.com/MrWong99/vozcards/pkg/progress/mock"
	"github.com/MrWong99/vozcards/pkg/types"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

// events records every listener callback.
type events struct {
	mu         sync.Mutex
	phases     []game.Phase
	feedback   []game.Feedback
	stars      []int
	advances   []int
	celebrated []game.Summary
}

var _ game.Listener = (*events)(nil)

func (e *events) OnPhase(p game.Phase) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.phases = append(e.phases, p)
}

func (e *events) OnFeedback(f game.Feedback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.feedback = append(e.feedback, f)
}

func (e *events) OnStar(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stars = append(e.stars, n)
}

func (e *events) OnAdvance(i int, _ types.Flashcard) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advances = append(e.advances, i)
}

func (e *events) OnCelebrate(s game.Summary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.celebrated = append(e.celebrated, s)
}

func (e *events) Stars() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.stars)
}

func (e *events) Celebrations() []game.Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.celebrated)
}

func (e *events) Advances() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.advances)
}

type harness struct {
	s      *game.Session
	gw     *progressmock.Gateway
	rec    *speechmock.Recognizer
	syn    *speechmock.Synthesizer
	clock  *fakeClock
	events *events
	policy game.Policy
}

func animals(n int) []types.Flashcard {
	all := []types.Flashcard{
		{ID: "c1", SourceText: "gato", TargetText: "cat"},
		{ID: "c2", SourceText: "perro", TargetText: "dog"},
		{ID: "c3", SourceText: "sol", TargetText: "sun"},
		{ID: "c4", SourceText: "pez", TargetText: "fish"},
		{ID: "c5", SourceText: "pájaro", TargetText: "bird"},
		{ID: "c6", SourceText: "vaca", TargetText: "cow"},
		{ID: "c7", SourceText: "árbol", TargetText: "tree"},
		{ID: "c8", SourceText: "libro", TargetText: "book"},
		{ID: "c9", SourceText: "leche", TargetText: "milk"},
		{ID: "c10", SourceText: "manzana", TargetText: "apple"},
	}
	return all[:n]
}

// newHarness builds an unopened session over cards with mocks for every
// dependency.
func newHarness(t *testing.T, cards []types.Flashcard, opts ...game.Option) *harness {
	t.Helper()
	h := &harness{
		gw:     &progressmock.Gateway{Cards: cards},
		rec:    &speechmock.Recognizer{},
		syn:    &speechmock.Synthesizer{},
		clock:  &fakeClock{},
		events: &events{},
		policy: game.DefaultPolicy(),
	}
	base := []game.Option{
		game.WithRecognizer(h.rec),
		game.WithSynthesizer(h.syn),
		game.WithClock(h.clock),
		game.WithListener(h.events),
	}
	h.s = game.New("student-1", "animals", h.gw, h.gw, append(base, opts...)...)
	t.Cleanup(func() { h.s.Close() })
	return h
}

func (h *harness) open(t *testing.T) {
	t.Helper()
	if err := h.s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
}

// answer runs one full listen/answer cycle and lets every delayed
// transition fire.
func (h *harness) answer(t *testing.T, text string) {
	t.Helper()
	done, err := h.s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	h.rec.Last().Result(text)
	<-done
	h.clock.Advance(h.policy.AdvanceDelay)
	h.clock.Advance(h.policy.SettleDelay)
}

// ─── tests ───────────────────────────────────────────────────────────────────

func TestSession_CorrectAnswerAdvances(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(3))
	h.open(t)

	done, err := h.s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if got := h.s.Snapshot().Phase; got != game.PhaseListening {
		t.Errorf("phase while listening = %s, want listening", got)
	}
	call := h.rec.StartCalls[0]
	if call.Lang != "en-US" || !slices.Equal(call.Keywords, []string{"cat"}) {
		t.Errorf("StartCapture call = %+v, want en-US with keyword cat", call)
	}

	h.rec.Last().Result("Cat")
	<-done

	snap := h.s.Snapshot()
	if snap.Phase != game.PhaseCorrect || !snap.Feedback.Correct || snap.Feedback.Kind != game.FeedbackCorrect {
		t.Errorf("after correct answer: phase=%s feedback=%+v", snap.Phase, snap.Feedback)
	}
	if snap.Score != 10 {
		t.Errorf("score = %d, want 10", snap.Score)
	}
	if !snap.Busy || snap.MicEnabled {
		t.Errorf("busy=%v mic=%v while showing feedback, want busy and mic disabled", snap.Busy, snap.MicEnabled)
	}

	h.clock.Advance(h.policy.AdvanceDelay)
	snap = h.s.Snapshot()
	if snap.Index != 1 || snap.Card.TargetText != "dog" {
		t.Errorf("after advance: index=%d card=%q, want 1 dog", snap.Index, snap.Card.TargetText)
	}
	if snap.Feedback.Kind != game.FeedbackNone {
		t.Errorf("feedback after advance = %+v, want cleared", snap.Feedback)
	}
	if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrBusy) {
		t.Errorf("Listen during settle delay: err = %v, want ErrBusy", err)
	}

	h.clock.Advance(h.policy.SettleDelay)
	if snap := h.s.Snapshot(); !snap.MicEnabled || snap.Phase != game.PhaseIdle {
		t.Errorf("after settle: mic=%v phase=%s, want enabled idle", snap.MicEnabled, snap.Phase)
	}

	h.s.Wait()
	attempts := h.gw.Attempts()
	if len(attempts) != 1 {
		t.Fatalf("RecordAttempt calls = %d, want 1", len(attempts))
	}
	if got := attempts[0].Args; got[1] != "c1" || got[2] != true {
		t.Errorf("RecordAttempt args = %v, want c1 true", got)
	}
	if got := h.events.Advances(); !slices.Equal(got, []int{1}) {
		t.Errorf("advances = %v, want [1]", got)
	}
}

func TestSession_DuplicateResultsScoredOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(3))
	h.open(t)

	done, err := h.s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	c := h.rec.Last()
	c.Result("cat")
	<-done
	c.Duplicate("cat")
	c.Duplicate("cat")
	if h.s.HandleResult(types.Transcript{Text: "cat", IsFinal: true}) {
		t.Error("HandleResult while locked returned true")
	}

	h.clock.Advance(h.policy.AdvanceDelay)
	h.s.Wait()

	if got := h.gw.CallCount("RecordAttempt"); got != 1 {
		t.Errorf("RecordAttempt calls = %d, want 1", got)
	}
	snap := h.s.Snapshot()
	if snap.Score != 10 || snap.Index != 1 {
		t.Errorf("score=%d index=%d, want 10 and 1", snap.Score, snap.Index)
	}
}

func TestSession_LateEventsOfFinishedCapture(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		answer    string
		wait      func(game.Policy) time.Duration
		late      func(*speechmock.Capture)
		wantIndex int
		wantScore int
	}{
		{
			name:      "duplicate after advancing is not scored against the next card",
			answer:    "cat",
			wait:      func(p game.Policy) time.Duration { return p.AdvanceDelay + p.SettleDelay },
			late:      func(c *speechmock.Capture) { c.Duplicate("dog") },
			wantIndex: 1,
			wantScore: 10,
		},
		{
			name:      "duplicate after the retry delay is not recorded twice",
			answer:    "xyz",
			wait:      func(p game.Policy) time.Duration { return p.RetryDelay },
			late:      func(c *speechmock.Capture) { c.Duplicate("xyz") },
			wantIndex: 0,
			wantScore: 0,
		},
		{
			name:      "no-speech after advancing does not lock the session",
			answer:    "cat",
			wait:      func(p game.Policy) time.Duration { return p.AdvanceDelay + p.SettleDelay },
			late:      func(c *speechmock.Capture) { c.Callbacks().OnNoSpeech() },
			wantIndex: 1,
			wantScore: 10,
		},
		{
			name:      "error after the retry delay does not overwrite feedback",
			answer:    "xyz",
			wait:      func(p game.Policy) time.Duration { return p.RetryDelay },
			late:      func(c *speechmock.Capture) { c.Callbacks().OnError(speech.ErrorNetwork) },
			wantIndex: 0,
			wantScore: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, animals(3))
			h.open(t)

			done, err := h.s.Listen(context.Background())
			if err != nil {
				t.Fatalf("Listen: %v", err)
			}
			c := h.rec.Last()
			c.Result(tt.answer)
			<-done
			h.clock.Advance(tt.wait(h.policy))

			before := h.s.Snapshot()
			if before.Busy || !before.MicEnabled {
				t.Fatalf("session still busy before the late event: %+v", before)
			}
			tt.late(c)
			h.s.Wait()

			snap := h.s.Snapshot()
			if snap.Index != tt.wantIndex || snap.Score != tt.wantScore {
				t.Errorf("index=%d score=%d, want %d and %d", snap.Index, snap.Score, tt.wantIndex, tt.wantScore)
			}
			if snap.Busy || !snap.MicEnabled || snap.Feedback != before.Feedback {
				t.Errorf("late event changed the session: before=%+v after=%+v", before, snap)
			}
			if got := h.gw.CallCount("RecordAttempt"); got != 1 {
				t.Errorf("RecordAttempt calls = %d, want 1", got)
			}
			if _, err := h.s.Listen(context.Background()); err != nil {
				t.Errorf("Listen after the late event: %v", err)
			}
		})
	}
}

func TestSession_InterimResultsIgnored(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(2))
	h.open(t)

	if h.s.HandleResult(types.Transcript{Text: "cat", IsFinal: false}) {
		t.Error("HandleResult applied an interim transcript")
	}
	if got := h.s.Snapshot().Score; got != 0 {
		t.Errorf("score = %d, want 0", got)
	}
}

func TestSession_IncorrectThenRetry(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(2))
	h.open(t)

	for range 2 {
		done, err := h.s.Listen(context.Background())
		if err != nil {
			t.Fatalf("Listen: %v", err)
		}
		h.rec.Last().Result("elephant")
		<-done

		snap := h.s.Snapshot()
		if snap.Phase != game.PhaseIncorrect || snap.Feedback.Kind != game.FeedbackIncorrect {
			t.Fatalf("after wrong answer: phase=%s feedback=%+v", snap.Phase, snap.Feedback)
		}
		if snap.Index != 0 {
			t.Fatalf("index = %d after wrong answer, want 0", snap.Index)
		}
		if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrBusy) {
			t.Fatalf("Listen before retry delay: err = %v, want ErrBusy", err)
		}
		h.clock.Advance(h.policy.RetryDelay)
		if got := h.s.Snapshot().Phase; got != game.PhaseIdle {
			t.Fatalf("phase after retry delay = %s, want idle", got)
		}
	}

	h.answer(t, "cat")
	h.s.Wait()

	var got []bool
	for _, c := range h.gw.Attempts() {
		got = append(got, c.Args[2].(bool))
	}
	if want := []bool{false, false, true}; !slices.Equal(got, want) {
		t.Errorf("attempt outcomes = %v, want %v", got, want)
	}
	if snap := h.s.Snapshot(); snap.Score != 10 || snap.Index != 1 {
		t.Errorf("score=%d index=%d, want 10 and 1", snap.Score, snap.Index)
	}
}

func TestSession_StarsAndCompletion(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(10))
	h.open(t)

	cards := animals(10)
	for i, c := range cards[:5] {
		h.answer(t, c.TargetText)
		if i < 4 && len(h.events.Stars()) != 0 {
			t.Fatalf("star awarded after %d answers", i+1)
		}
	}
	if snap := h.s.Snapshot(); snap.Score != 50 || snap.Stars != 1 {
		t.Fatalf("after 5: score=%d stars=%d, want 50 and 1", snap.Score, snap.Stars)
	}

	for _, c := range cards[5:] {
		h.answer(t, c.TargetText)
	}
	snap := h.s.Snapshot()
	if snap.Score != 100 || snap.Stars != 2 {
		t.Errorf("after 10: score=%d stars=%d, want 100 and 2", snap.Score, snap.Stars)
	}
	if !snap.Completed || snap.Phase != game.PhaseCompleted || snap.Feedback.Kind != game.FeedbackCompleted {
		t.Errorf("after last card: completed=%v phase=%s feedback=%+v", snap.Completed, snap.Phase, snap.Feedback)
	}
	if snap.Index != 9 {
		t.Errorf("index = %d, want to stay on the last card", snap.Index)
	}
	if got := h.events.Stars(); !slices.Equal(got, []int{1, 2}) {
		t.Errorf("stars events = %v, want [1 2]", got)
	}
	if got := h.events.Celebrations(); len(got) != 1 || got[0].Score != 100 || !got[0].Completed {
		t.Errorf("celebrations = %+v, want one with score 100", got)
	}
	if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrCompleted) {
		t.Errorf("Listen after completion: err = %v, want ErrCompleted", err)
	}
	if err := h.s.Next(); !errors.Is(err, game.ErrCompleted) {
		t.Errorf("Next after completion: err = %v, want ErrCompleted", err)
	}
	if h.s.HandleResult(types.Transcript{Text: "apple", IsFinal: true}) {
		t.Error("HandleResult applied a result after completion")
	}
}

func TestSession_NextSkipsAndCelebratesOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(2))
	h.open(t)

	if err := h.s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := h.s.Snapshot().Index; got != 1 {
		t.Fatalf("index after Next = %d, want 1", got)
	}
	if err := h.s.Next(); err != nil {
		t.Fatalf("Next on last card: %v", err)
	}
	if !h.s.Snapshot().Completed {
		t.Fatal("session not completed after Next on the last card")
	}
	h.clock.Advance(time.Minute)
	if got := len(h.events.Celebrations()); got != 1 {
		t.Errorf("celebrations = %d, want 1", got)
	}
	if got := h.gw.CallCount("RecordAttempt"); got != 0 {
		t.Errorf("skipping recorded %d attempts, want 0", got)
	}
}

func TestSession_NextAbandonsCapture(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(3))
	h.open(t)

	if _, err := h.s.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	c := h.rec.Last()
	if err := h.s.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	<-c.Done()
	if !c.Aborted() {
		t.Error("capture was not aborted")
	}
	if err := h.s.LastError(); err != nil {
		t.Errorf("LastError = %v, want nil for an abandoned capture", err)
	}

	// A late transcript of the abandoned capture must not score the new card.
	c.Duplicate("dog")
	if got := h.s.Snapshot().Score; got != 0 {
		t.Errorf("score = %d, want 0", got)
	}
}

func TestSession_NoSpeech(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(2))
	h.open(t)

	done, err := h.s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	h.rec.Last().NoSpeech()
	<-done

	if err := h.s.LastError(); !errors.Is(err, game.ErrNoSpeech) {
		t.Errorf("LastError = %v, want ErrNoSpeech", err)
	}
	snap := h.s.Snapshot()
	if snap.Feedback.Kind != game.FeedbackRetry || snap.Feedback.Message != game.DefaultMessages().Retry {
		t.Errorf("feedback = %+v, want retry message", snap.Feedback)
	}
	if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrBusy) {
		t.Errorf("Listen before error delay: err = %v, want ErrBusy", err)
	}
	h.clock.Advance(h.policy.ErrorDelay)
	if _, err := h.s.Listen(context.Background()); err != nil {
		t.Errorf("Listen after error delay: %v", err)
	}

	h.s.Wait()
	if got := h.gw.CallCount("RecordAttempt"); got != 0 {
		t.Errorf("RecordAttempt calls = %d, want 0", got)
	}
}

func TestSession_RecognitionError(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(2))
	h.open(t)

	done, err := h.s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	h.rec.Last().Fail(speech.ErrorNetwork)
	<-done

	if err := h.s.LastError(); !errors.Is(err, game.ErrRecognition) {
		t.Errorf("LastError = %v, want ErrRecognition", err)
	}
	if got := h.s.Snapshot().Score; got != 0 {
		t.Errorf("score = %d, want 0", got)
	}
}

func TestSession_ListenRejected(t *testing.T) {
	t.Parallel()

	t.Run("already listening", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, animals(2))
		h.open(t)
		if _, err := h.s.Listen(context.Background()); err != nil {
			t.Fatalf("Listen: %v", err)
		}
		if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrBusy) {
			t.Errorf("second Listen: err = %v, want ErrBusy", err)
		}
		if got := h.s.Snapshot().Feedback.Kind; got != game.FeedbackBusy {
			t.Errorf("feedback = %q, want busy", got)
		}
		if got := h.rec.CallCount(); got != 1 {
			t.Errorf("StartCapture calls = %d, want 1", got)
		}
	})

	t.Run("no recognizer", func(t *testing.T) {
		t.Parallel()
		gw := &progressmock.Gateway{Cards: animals(2)}
		s := game.New("student-1", "animals", gw, gw, game.WithClock(&fakeClock{}))
		t.Cleanup(func() { s.Close() })
		if err := s.Open(context.Background()); err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, err := s.Listen(context.Background()); !errors.Is(err, game.ErrRecognitionUnavailable) {
			t.Errorf("Listen: err = %v, want ErrRecognitionUnavailable", err)
		}
		snap := s.Snapshot()
		if snap.MicEnabled || snap.Feedback.Kind != game.FeedbackUnsupported {
			t.Errorf("mic=%v feedback=%+v, want disabled and unsupported", snap.MicEnabled, snap.Feedback)
		}
	})

	t.Run("recognizer unavailable", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, animals(2))
		h.rec.Unavailable = true
		h.open(t)
		if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrRecognitionUnavailable) {
			t.Errorf("Listen: err = %v, want ErrRecognitionUnavailable", err)
		}
		if got := h.rec.CallCount(); got != 0 {
			t.Errorf("StartCapture calls = %d, want 0", got)
		}
	})

	t.Run("microphone failure", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, animals(2))
		h.rec.StartErr = errors.New("permission denied")
		h.open(t)
		_, err := h.s.Listen(context.Background())
		if !errors.Is(err, game.ErrRecognition) {
			t.Errorf("Listen: err = %v, want ErrRecognition", err)
		}
		snap := h.s.Snapshot()
		if snap.Phase != game.PhaseIdle || snap.Feedback.Kind != game.FeedbackMicError {
			t.Errorf("phase=%s feedback=%+v, want idle and mic_error", snap.Phase, snap.Feedback)
		}
		h.rec.StartErr = nil
		if _, err := h.s.Listen(context.Background()); err != nil {
			t.Errorf("Listen after failure: %v", err)
		}
	})

	t.Run("not open", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, animals(2))
		if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrNotOpen) {
			t.Errorf("Listen: err = %v, want ErrNotOpen", err)
		}
	})
}

func TestSession_EmptySet(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	if err := h.s.Open(context.Background()); !errors.Is(err, game.ErrEmptyCardSet) {
		t.Fatalf("Open: err = %v, want ErrEmptyCardSet", err)
	}
	snap := h.s.Snapshot()
	if snap.Phase != game.PhaseEmpty || snap.Count != 0 || snap.MicEnabled {
		t.Errorf("snapshot = %+v, want empty phase with mic disabled", snap)
	}
	if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrEmptyCardSet) {
		t.Errorf("Listen: err = %v, want ErrEmptyCardSet", err)
	}
	if err := h.s.Next(); !errors.Is(err, game.ErrEmptyCardSet) {
		t.Errorf("Next: err = %v, want ErrEmptyCardSet", err)
	}
	if got := h.gw.CallCount("LoadProgress"); got != 0 {
		t.Errorf("LoadProgress calls = %d, want 0 for an empty set", got)
	}
}

// Not parallel: replaces the default logger.
func TestSession_WarnsAboutStaleProgress(t *testing.T) {
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))
	t.Cleanup(func() { slog.SetDefault(orig) })

	h := newHarness(t, animals(2))
	h.gw.LoadProgressResult = []types.ProgressRecord{
		{CardID: "c1", SuccessCount: 1},
		{CardID: "removed", SuccessCount: 4, Mastered: true},
	}
	h.open(t)

	if snap := h.s.Snapshot(); snap.Index != 0 || snap.Score != 10 {
		t.Errorf("index=%d score=%d, want 0 and 10", snap.Index, snap.Score)
	}
	logged := buf.String()
	if !strings.Contains(logged, "no longer in the set") || !strings.Contains(logged, "records=1") {
		t.Errorf("missing stale progress warning, got: %s", logged)
	}
}

func TestSession_ResumesFromProgress(t *testing.T) {
	t.Parallel()

	t.Run("first unmastered card", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, animals(3))
		h.gw.LoadProgressResult = []types.ProgressRecord{
			{StudentID: "student-1", CardID: "c1", SuccessCount: 2, Mastered: true},
			{StudentID: "student-1", CardID: "c2", SuccessCount: 1},
			{StudentID: "student-1", CardID: "old", SuccessCount: 7, Mastered: true},
		}
		h.open(t)
		snap := h.s.Snapshot()
		if snap.Index != 1 || snap.Score != 30 || snap.Completed {
			t.Errorf("index=%d score=%d completed=%v, want 1 30 false", snap.Index, snap.Score, snap.Completed)
		}

		// One more success on c2 reaches the mastery threshold.
		h.answer(t, "dog")
		if got := h.s.Summary().Mastered; got != 2 {
			t.Errorf("mastered = %d, want 2", got)
		}
	})

	t.Run("all mastered", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, animals(2))
		h.gw.LoadProgressResult = []types.ProgressRecord{
			{CardID: "c1", SuccessCount: 2, Mastered: true},
			{CardID: "c2", SuccessCount: 3, Mastered: true},
		}
		h.open(t)
		snap := h.s.Snapshot()
		if !snap.Completed || snap.Index != 1 || snap.Phase != game.PhaseCompleted {
			t.Errorf("snapshot = %+v, want completed on the last card", snap)
		}
		if snap.Score != 50 || snap.Stars != 1 {
			t.Errorf("score=%d stars=%d, want 50 and 1", snap.Score, snap.Stars)
		}
		if got := len(h.events.Celebrations()); got != 0 {
			t.Errorf("celebrations on resume = %d, want 0", got)
		}
	})

	t.Run("progress unavailable", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, animals(2))
		h.gw.LoadProgressErr = errors.New("connection refused")
		h.open(t)
		if snap := h.s.Snapshot(); snap.Index != 0 || snap.Score != 0 {
			t.Errorf("index=%d score=%d, want a fresh start", snap.Index, snap.Score)
		}
	})

	t.Run("cards unavailable", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, animals(2))
		h.gw.LoadCardsErr = errors.New("no such set")
		if err := h.s.Open(context.Background()); err == nil {
			t.Error("Open succeeded without cards")
		}
	})
}

func TestSession_WriteFailureStillAdvances(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(2))
	h.gw.RecordAttemptErr = errors.New("database is locked")
	h.open(t)

	h.answer(t, "cat")
	h.s.Wait()

	snap := h.s.Snapshot()
	if snap.Index != 1 || snap.Score != 10 {
		t.Errorf("index=%d score=%d, want 1 and 10", snap.Index, snap.Score)
	}
	if got := h.gw.CallCount("RecordAttempt"); got != 1 {
		t.Errorf("RecordAttempt calls = %d, want 1", got)
	}
}

func TestSession_CloseCancelsPendingTransitions(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(3))
	h.open(t)

	done, err := h.s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	h.rec.Last().Result("cat")
	<-done

	sum := h.s.Close()
	if sum.Score != 10 || sum.Cards != 3 || sum.Completed {
		t.Errorf("summary = %+v", sum)
	}
	if got := h.clock.Pending(); got != 0 {
		t.Errorf("pending timers after Close = %d, want 0", got)
	}
	h.clock.Advance(time.Hour)
	if got := h.s.Snapshot().Index; got != 0 {
		t.Errorf("index after Close = %d, want 0", got)
	}
	if got := h.events.Advances(); len(got) != 0 {
		t.Errorf("advances after Close = %v, want none", got)
	}
	if got := h.syn.CancelCount(); got != 1 {
		t.Errorf("synthesizer cancels = %d, want 1", got)
	}
	if again := h.s.Close(); again != sum {
		t.Errorf("second Close = %+v, want %+v", again, sum)
	}
	if _, err := h.s.Listen(context.Background()); !errors.Is(err, game.ErrClosed) {
		t.Errorf("Listen after Close: err = %v, want ErrClosed", err)
	}
}

func TestSession_CloseAbortsCapture(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(2))
	h.open(t)

	if _, err := h.s.Listen(context.Background()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	c := h.rec.Last()
	h.s.Close()
	<-c.Done()
	if !c.Aborted() {
		t.Error("capture was not aborted by Close")
	}
	if snap := h.s.Snapshot(); snap.Busy {
		t.Error("session still busy after Close")
	}
}

func TestSession_CloseWaitsForWrites(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	var finished sync.WaitGroup
	finished.Add(1)

	h := newHarness(t, animals(2))
	h.gw.RecordAttemptHook = func(context.Context) {
		<-release
		finished.Done()
	}
	h.open(t)

	done, err := h.s.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	h.rec.Last().Result("cat")
	<-done

	closed := make(chan struct{})
	go func() {
		h.s.Close()
		close(closed)
	}()
	select {
	case <-closed:
		t.Fatal("Close returned before the pending write finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-closed
	finished.Wait()
}

func TestSession_SpeakCard(t *testing.T) {
	t.Parallel()
	h := newHarness(t, animals(2))
	h.open(t)

	if err := h.s.SpeakCard(game.SideSource); err != nil {
		t.Fatalf("SpeakCard(source): %v", err)
	}
	if err := h.s.SpeakCard(game.SideTarget); err != nil {
		t.Fatalf("SpeakCard(target): %v", err)
	}
	want := []speechmock.Utterance{
		{Text: "gato", Lang: "es-ES"},
		{Text: "cat", Lang: "en-US"},
	}
	if got := h.syn.Utterances(); !slices.Equal(got, want) {
		t.Errorf("utterances = %+v, want %+v", got, want)
	}

	h.syn.Unavailable = true
	if err := h.s.SpeakCard(game.SideSource); err != nil {
		t.Errorf("SpeakCard without synthesis: %v", err)
	}
	if got := len(h.syn.Utterances()); got != 2 {
		t.Errorf("utterances = %d, want 2", got)
	}
}

func TestPhase_String(t *testing.T) {
	t.Parallel()
	tests := []struct {
		p    game.Phase
		want string
	}{
		{game.PhaseIdle, "idle"},
		{game.PhaseListening, "listening"},
		{game.PhaseEvaluating, "evaluating"},
		{game.PhaseCorrect, "correct"},
		{game.PhaseIncorrect, "incorrect"},
		{game.PhaseCompleted, "completed"},
		{game.PhaseEmpty, "empty"},
		{game.Phase(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.p.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", int(tt.p), got, tt.want)
		}
		b, _ := tt.p.MarshalText()
		if string(b) != tt.want {
			t.Errorf("Phase(%d).MarshalText() = %q, want %q", int(tt.p), b, tt.want)
		}
	}
}
