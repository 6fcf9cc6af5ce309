package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/vozcards/internal/deck"
	"github.com/MrWong99/vozcards/internal/game"
	"github.com/MrWong99/vozcards/internal/observe"
	"github.com/MrWong99/vozcards/internal/speech"
	"github.com/MrWong99/vozcards/pkg/audio"
	"github.com/MrWong99/vozcards/pkg/progress"
)

const (
	// maxClipBytes caps an uploaded answer: 60s of 48 kHz stereo PCM.
	maxClipBytes = 60 * 48000 * 2 * 2

	// maxSheetBytes caps an uploaded deck spreadsheet.
	maxSheetBytes = 8 << 20
)

// registerAPI adds the practice and deck routes to mux.
func (a *App) registerAPI(mux *http.ServeMux) {
	mux.HandleFunc("POST /practice/sessions", a.handleStart)
	mux.HandleFunc("GET /practice/session", a.handleState)
	mux.HandleFunc("POST /practice/session/listen", a.handleListen)
	mux.HandleFunc("POST /practice/session/next", a.handleNext)
	mux.HandleFunc("POST /practice/session/speak", a.handleSpeak)
	mux.HandleFunc("GET /practice/session/audio", a.handleAudio)
	mux.HandleFunc("DELETE /practice/session", a.handleStop)
	mux.HandleFunc("GET /students/{id}/sessions", a.handleHistory)
	mux.HandleFunc("GET /decks", a.handleDecks)
	mux.HandleFunc("POST /decks/import", a.handleImport)
}

// ─── Payloads ────────────────────────────────────────────────────────────────

type startRequest struct {
	StudentID string `json:"student_id"`
	CardSetID string `json:"card_set_id"`
}

// stateResponse is the body of every practice endpoint that returns the
// session state.
type stateResponse struct {
	Session SessionInfo         `json:"session"`
	State   game.Snapshot       `json:"state"`
	Speech  speech.Availability `json:"speech"`

	// Result is set by listen when the capture produced nothing to score.
	Result string `json:"result,omitempty"`
}

type stopResponse struct {
	Session SessionInfo  `json:"session"`
	Summary game.Summary `json:"summary"`
}

type speakResponse struct {
	Spoken bool   `json:"spoken"`
	Clip   uint64 `json:"clip,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err), "")
		return
	}
	if req.StudentID == "" || req.CardSetID == "" {
		writeError(w, http.StatusBadRequest, errors.New("student_id and card_set_id are required"), "")
		return
	}

	info, s, err := a.sessions.Start(r.Context(), req.StudentID, req.CardSetID)
	switch {
	case errors.Is(err, ErrSessionActive):
		writeError(w, http.StatusConflict, err, "")
		return
	case errors.Is(err, progress.ErrCardSetNotFound):
		writeError(w, http.StatusNotFound, err, "")
		return
	case errors.Is(err, game.ErrEmptyCardSet):
		writeError(w, http.StatusUnprocessableEntity, err, a.sessions.Messages().EmptySet)
		return
	case err != nil:
		observe.Logger(r.Context()).Error("start practice session failed",
			"student_id", req.StudentID, "card_set_id", req.CardSetID, "err", err)
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, a.state(info, s, ""))
}

func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	info, s, err := a.sessions.Active()
	if err != nil {
		writeError(w, http.StatusNotFound, err, "")
		return
	}
	writeJSON(w, http.StatusOK, a.state(info, s, ""))
}

// handleListen feeds the uploaded answer to the recognizer and responds once
// the outcome has been applied. The body is 16-bit PCM (audio/l16, with rate
// and channels parameters) or a WAV file.
func (a *App) handleListen(w http.ResponseWriter, r *http.Request) {
	info, s, err := a.sessions.Active()
	if err != nil {
		writeError(w, http.StatusNotFound, err, "")
		return
	}
	ctx, span := observe.StartSpan(observe.WithPractice(r.Context(), info.SessionID, info.StudentID), "practice.listen",
		trace.WithAttributes(observe.CardIDKey.String(s.Snapshot().Card.ID)))
	defer span.End()

	pcm, format, err := readClip(w, r)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, err, "")
			return
		}
		writeError(w, http.StatusUnsupportedMediaType, err, "")
		return
	}
	a.mic.Put(pcm, format)

	done, err := s.Listen(ctx)
	if err != nil {
		span.RecordError(err)
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, game.ErrBusy), errors.Is(err, game.ErrCompleted):
			status = http.StatusConflict
		case errors.Is(err, game.ErrRecognitionUnavailable):
			status = http.StatusServiceUnavailable
		case errors.Is(err, game.ErrRecognition):
			status = http.StatusBadGateway
		case errors.Is(err, game.ErrClosed), errors.Is(err, game.ErrNotOpen), errors.Is(err, game.ErrEmptyCardSet):
			status = http.StatusGone
		}
		writeError(w, status, err, s.Snapshot().Feedback.Message)
		return
	}

	select {
	case <-done:
	case <-ctx.Done():
		return
	}

	var result string
	switch err := s.LastError(); {
	case errors.Is(err, game.ErrNoSpeech):
		result = "no_speech"
	case err != nil:
		result = "recognition_error"
		observe.Logger(ctx).Warn("answer not recognised", "err", err)
	}
	writeJSON(w, http.StatusOK, a.state(info, s, result))
}

func (a *App) handleNext(w http.ResponseWriter, _ *http.Request) {
	info, s, err := a.sessions.Active()
	if err != nil {
		writeError(w, http.StatusNotFound, err, "")
		return
	}
	if err := s.Next(); err != nil {
		status := http.StatusConflict
		if errors.Is(err, game.ErrClosed) {
			status = http.StatusGone
		}
		writeError(w, status, err, s.Snapshot().Feedback.Message)
		return
	}
	writeJSON(w, http.StatusOK, a.state(info, s, ""))
}

// handleSpeak plays one side of the current card into the clip sink and
// waits for the clip to be rendered.
func (a *App) handleSpeak(w http.ResponseWriter, r *http.Request) {
	_, s, err := a.sessions.Active()
	if err != nil {
		writeError(w, http.StatusNotFound, err, "")
		return
	}

	side := game.SideSource
	switch r.URL.Query().Get("side") {
	case "", "source":
	case "target":
		side = game.SideTarget
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("side must be source or target"), "")
		return
	}

	if !a.speaker.Available() {
		writeJSON(w, http.StatusOK, speakResponse{Spoken: false})
		return
	}
	_, before, _ := a.sink.Last()
	if err := s.SpeakCard(side); err != nil {
		writeError(w, http.StatusGone, err, "")
		return
	}
	a.speaker.Wait()

	_, seq, ok := a.sink.Last()
	writeJSON(w, http.StatusOK, speakResponse{Spoken: ok && seq != before, Clip: seq})
}

func (a *App) handleAudio(w http.ResponseWriter, _ *http.Request) {
	wav, seq, ok := a.sink.Last()
	if !ok {
		writeError(w, http.StatusNotFound, audio.ErrNoAudio, "")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.Header().Set("X-Clip-Sequence", strconv.FormatUint(seq, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

func (a *App) handleStop(w http.ResponseWriter, _ *http.Request) {
	info, sum, err := a.sessions.Stop()
	if err != nil {
		writeError(w, http.StatusNotFound, err, "")
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{Session: info, Summary: sum})
}

// handleHistory lists the journaled sessions of one learner, newest first.
// The optional limit query parameter caps the number of entries.
func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		writeError(w, http.StatusNotFound, errors.New("session journal is disabled"), "")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit %q is not a non-negative number", v), "")
			return
		}
		limit = n
	}
	entries, err := a.journal.History(r.PathValue("id"), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("read session journal failed", "err", err)
		writeError(w, http.StatusInternalServerError, err, "")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *App) handleDecks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.library.List())
}

// handleImport adds a deck from an uploaded spreadsheet. The query carries
// the set id, name and level; the body is the CSV or XLSX file.
func (a *App) handleImport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := sheetFormat(r)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err, "")
		return
	}
	level := 0
	if v := q.Get("level"); v != "" {
		if level, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("level %q is not a number", v), "")
			return
		}
	}

	d, err := deck.ParseSheet(http.MaxBytesReader(w, r.Body, maxSheetBytes), format, deck.SheetOptions{
		Set:   deck.SetMeta{ID: q.Get("set"), Name: q.Get("name"), Level: level},
		Sheet: q.Get("sheet"),
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err, "")
		return
	}
	if err := a.library.Add(d); err != nil {
		writeError(w, http.StatusConflict, err, "")
		return
	}
	if err := a.store.ImportSet(r.Context(), d.CardSet()); err != nil {
		observe.Logger(r.Context()).Warn("imported deck not persisted", "set", d.Set.ID, "err", err)
	}
	a.sessions.SetClassifier(classifierFrom(a.cfg, a.library))

	slog.Info("deck imported from sheet", "set", d.Set.ID, "cards", len(d.Cards))
	writeJSON(w, http.StatusCreated, d.Summary())
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (a *App) state(info SessionInfo, s *game.Session, result string) stateResponse {
	return stateResponse{
		Session: info,
		State:   s.Snapshot(),
		Speech:  speech.Probe(a.recognizer, a.speaker),
		Result:  result,
	}
}

// readClip decodes the request body into PCM and its format.
func readClip(w http.ResponseWriter, r *http.Request) ([]byte, audio.Format, error) {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("content type: %w", err)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxClipBytes))
	if err != nil {
		return nil, audio.Format{}, err
	}

	switch mediaType {
	case "audio/wav", "audio/wave", "audio/x-wav":
		return audio.DecodeWAV(body)
	case "audio/l16":
		f := audio.SpeechFormat
		if v, ok := params["rate"]; ok {
			if f.SampleRate, err = strconv.Atoi(v); err != nil || f.SampleRate <= 0 {
				return nil, audio.Format{}, fmt.Errorf("invalid rate %q", v)
			}
		}
		if v, ok := params["channels"]; ok {
			if f.Channels, err = strconv.Atoi(v); err != nil || f.Channels < 1 || f.Channels > 2 {
				return nil, audio.Format{}, fmt.Errorf("invalid channels %q", v)
			}
		}
		if len(body) == 0 || len(body)%(2*f.Channels) != 0 {
			return nil, audio.Format{}, fmt.Errorf("pcm body of %d bytes is not whole frames", len(body))
		}
		// audio/l16 is big-endian on the wire.
		le := make([]byte, len(body))
		for i := 0; i+1 < len(body); i += 2 {
			le[i], le[i+1] = body[i+1], body[i]
		}
		return le, f, nil
	default:
		return nil, audio.Format{}, fmt.Errorf("unsupported content type %q; use audio/l16 or audio/wav", mediaType)
	}
}

// sheetFormat picks the spreadsheet format from the format query parameter
// or the content type.
func sheetFormat(r *http.Request) (deck.SheetFormat, error) {
	if v := r.URL.Query().Get("format"); v != "" {
		return deck.FormatOf("upload." + v)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "text/csv":
		return deck.FormatCSV, nil
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return deck.FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported content type %q; use text/csv or xlsx", mediaType)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "err", err)
	}
}

// writeError reports err; message is the learner-facing text, if any.
func writeError(w http.ResponseWriter, status int, err error, message string) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Message: message})
}
