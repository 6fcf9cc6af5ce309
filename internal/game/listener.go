package game

import "github.com/MrWong99/vozcards/pkg/types"

// FeedbackKind classifies the message currently shown to the learner.
type FeedbackKind string

const (
	FeedbackNone        FeedbackKind = ""
	FeedbackCorrect     FeedbackKind = "correct"
	FeedbackIncorrect   FeedbackKind = "incorrect"
	FeedbackRetry       FeedbackKind = "retry"
	FeedbackBusy        FeedbackKind = "busy"
	FeedbackUnsupported FeedbackKind = "unsupported"
	FeedbackMicError    FeedbackKind = "mic_error"
	FeedbackCompleted   FeedbackKind = "completed"
)

// Feedback is the message shown to the learner after an event.
type Feedback struct {
	Kind    FeedbackKind `json:"kind,omitempty"`
	Correct bool         `json:"correct"`
	Message string       `json:"message,omitempty"`
}

// Listener observes a session. Calls are made after the session's internal
// lock is released, so a listener may call back into the session.
type Listener interface {
	OnPhase(p Phase)
	OnFeedback(f Feedback)
	OnStar(stars int)
	OnAdvance(index int, card types.Flashcard)
	OnCelebrate(s Summary)
}

// NopListener ignores every event. Embed it to implement a subset.
type NopListener struct{}

func (NopListener) OnPhase(Phase) {}
func (NopListener) OnFeedback(Feedback) {}
func (NopListener) OnStar(int) {}
func (NopListener) OnAdvance(int, types.Flashcard) {}
func (NopListener) OnCelebrate(Summary) {}
