package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/vozcards/internal/game"
	"github.com/MrWong99/vozcards/internal/journal"
	"github.com/MrWong99/vozcards/internal/observe"
	"github.com/MrWong99/vozcards/internal/pronounce"
	"github.com/MrWong99/vozcards/internal/speech"
	"github.com/MrWong99/vozcards/pkg/progress"
)

var (
	// ErrSessionActive is returned by Start while another session runs.
	ErrSessionActive = errors.New("app: a practice session is already active")

	// ErrNoSession is returned when an operation needs a running session.
	ErrNoSession = errors.New("app: no active practice session")
)

// SessionInfo holds metadata about the active practice session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	CardSetID string    `json:"card_set_id"`
	StartedAt time.Time `json:"started_at"`
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Cards       progress.CardSource
	Progress    progress.Gateway
	Recognizer  speech.Recognizer
	Synthesizer speech.Synthesizer
	Metrics     *observe.Metrics
	Policy      game.Policy
	Classifier  *pronounce.Classifier

	// Messages is the learner-facing catalogue. Nil means the default.
	Messages *game.Messages

	// Clock drives session timers. Nil means the wall clock.
	Clock game.Clock

	// Listener receives events of every session. Nil means none.
	Listener game.Listener

	// NewID generates session IDs. Nil means random UUIDs.
	NewID func() string

	// Now stamps SessionInfo.StartedAt. Nil means time.Now.
	Now func() time.Time

	// Journal records every stopped session. Nil disables it.
	Journal Journal
}

// Journal is where finished sessions are recorded.
type Journal interface {
	Append(journal.Entry) error
}

// SessionManager runs one practice session at a time: a device is shared by
// one learner at a time. All exported methods are safe for concurrent use.
type SessionManager struct {
	mu         sync.Mutex
	active     *game.Session
	info       SessionInfo
	policy     game.Policy
	classifier *pronounce.Classifier
	messages   *game.Messages

	cards    progress.CardSource
	progress progress.Gateway
	rec      speech.Recognizer
	syn      speech.Synthesizer
	metrics  *observe.Metrics
	clock    game.Clock
	listener game.Listener
	journal  Journal
	newID    func() string
	now      func() time.Time
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	sm := &SessionManager{
		policy:     cfg.Policy,
		classifier: cfg.Classifier,
		messages:   cfg.Messages,
		cards:      cfg.Cards,
		progress:   cfg.Progress,
		rec:        cfg.Recognizer,
		syn:        cfg.Synthesizer,
		metrics:    cfg.Metrics,
		clock:      cfg.Clock,
		listener:   cfg.Listener,
		journal:    cfg.Journal,
		newID:      cfg.NewID,
		now:        cfg.Now,
	}
	if sm.newID == nil {
		sm.newID = uuid.NewString
	}
	if sm.now == nil {
		sm.now = time.Now
	}
	if sm.messages == nil {
		sm.messages = game.DefaultMessages()
	}
	return sm
}

// SetPolicy changes the policy used by sessions started from now on. A
// running session keeps the policy it was opened with.
func (sm *SessionManager) SetPolicy(p game.Policy) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.policy = p
}

// Policy returns the policy new sessions are started with.
func (sm *SessionManager) Policy() game.Policy {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.policy
}

// Messages returns the learner-facing catalogue.
func (sm *SessionManager) Messages() *game.Messages { return sm.messages }

// SetClassifier changes the classifier used by sessions started from now on.
func (sm *SessionManager) SetClassifier(c *pronounce.Classifier) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.classifier = c
}

// Start opens a session for studentID practising cardSetID. The session is
// positioned on the learner's first card that is not yet mastered.
//
// Returns [ErrSessionActive] while another session runs. A set without cards
// yields [game.ErrEmptyCardSet] and no session is kept.
func (sm *SessionManager) Start(ctx context.Context, studentID, cardSetID string) (SessionInfo, *game.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active != nil {
		return SessionInfo{}, nil, fmt.Errorf("%w (id=%s)", ErrSessionActive, sm.info.SessionID)
	}

	opts := []game.Option{
		game.WithPolicy(sm.policy),
		game.WithMetrics(sm.metrics),
		game.WithMessages(sm.messages),
	}
	if sm.rec != nil {
		opts = append(opts, game.WithRecognizer(sm.rec))
	}
	if sm.syn != nil {
		opts = append(opts, game.WithSynthesizer(sm.syn))
	}
	if sm.classifier != nil {
		opts = append(opts, game.WithClassifier(sm.classifier))
	}
	if sm.clock != nil {
		opts = append(opts, game.WithClock(sm.clock))
	}
	if sm.listener != nil {
		opts = append(opts, game.WithListener(sm.listener))
	}

	s := game.New(studentID, cardSetID, sm.cards, sm.progress, opts...)
	if err := s.Open(ctx); err != nil {
		s.Close()
		return SessionInfo{}, nil, fmt.Errorf("app: start session: %w", err)
	}

	sm.active = s
	sm.info = SessionInfo{
		SessionID: sm.newID(),
		StudentID: studentID,
		CardSetID: cardSetID,
		StartedAt: sm.now().UTC(),
	}

	slog.Info("practice session started",
		"session_id", sm.info.SessionID,
		"student_id", studentID,
		"card_set_id", cardSetID,
	)
	return sm.info, s, nil
}

// Stop ends the active session and returns its summary. It waits for the
// session's progress writes to finish.
func (sm *SessionManager) Stop() (SessionInfo, game.Summary, error) {
	sm.mu.Lock()
	s, info := sm.active, sm.info
	sm.active = nil
	sm.info = SessionInfo{}
	sm.mu.Unlock()

	if s == nil {
		return SessionInfo{}, game.Summary{}, ErrNoSession
	}
	sum := s.Close()
	slog.Info("practice session stopped",
		"session_id", info.SessionID,
		"score", sum.Score,
		"stars", sum.Stars,
		"mastered", sum.Mastered,
		"completed", sum.Completed,
	)
	if sm.journal != nil {
		err := sm.journal.Append(journal.Entry{
			SessionID: info.SessionID,
			StudentID: info.StudentID,
			CardSetID: info.CardSetID,
			StartedAt: info.StartedAt,
			EndedAt:   sm.now().UTC(),
			Score:     sum.Score,
			Stars:     sum.Stars,
			Mastered:  sum.Mastered,
			Cards:     sum.Cards,
			Completed: sum.Completed,
		})
		if err != nil {
			slog.Warn("practice session not journaled", "session_id", info.SessionID, "err", err)
		}
	}
	return info, sum, nil
}

// Active returns the running session, or [ErrNoSession].
func (sm *SessionManager) Active() (SessionInfo, *game.Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.active == nil {
		return SessionInfo{}, nil, ErrNoSession
	}
	return sm.info, sm.active, nil
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active != nil
}

// Info returns metadata about the active session, or the zero value.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}
