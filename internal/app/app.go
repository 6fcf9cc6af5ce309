// Package app wires all vozcards subsystems into a running practice server.
//
// The App struct owns the full lifecycle: New opens storage, loads the decks,
// builds the speech stack and the HTTP API, Run serves until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithSTT,
// WithTTS, ...). When an option is not provided, New creates the real
// implementation from the config through the [config.Registry].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/vozcards/internal/config"
	"github.com/MrWong99/vozcards/internal/deck"
	"github.com/MrWong99/vozcards/internal/game"
	"github.com/MrWong99/vozcards/internal/health"
	"github.com/MrWong99/vozcards/internal/journal"
	"github.com/MrWong99/vozcards/internal/observe"
	"github.com/MrWong99/vozcards/internal/resilience"
	"github.com/MrWong99/vozcards/internal/speech"
	"github.com/MrWong99/vozcards/pkg/audio"
	"github.com/MrWong99/vozcards/pkg/progress"
	"github.com/MrWong99/vozcards/pkg/provider/stt"
	"github.com/MrWong99/vozcards/pkg/provider/tts"
	"github.com/MrWong99/vozcards/pkg/types"
)

// App owns all subsystem lifetimes of the practice server.
type App struct {
	cfg     *config.Config
	reg     *config.Registry
	level   *slog.LevelVar
	metrics *observe.Metrics
	scrape  http.Handler
	clock   game.Clock

	// Subsystems, initialised in New and torn down in Shutdown.
	rawStore   progress.Store
	store      *resilience.ProgressBreaker
	library    *deck.Library
	cards      progress.CardSource
	stt        stt.Provider
	tts        tts.Provider
	mic        *audio.ClipMic
	sink       *audio.ClipSink
	recognizer *speech.STTRecognizer
	speaker    *speech.Speaker
	sessions   *SessionManager
	journal    *journal.FileStore
	health     *health.Handler
	handler    http.Handler
	server     *http.Server

	// reloadMu serialises config reloads.
	reloadMu sync.Mutex

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry uses reg instead of a registry with the builtin backends.
func WithRegistry(reg *config.Registry) Option {
	return func(a *App) { a.reg = reg }
}

// WithStore injects a progress store instead of opening the configured one.
// The caller keeps ownership; Shutdown does not close it.
func WithStore(s progress.Store) Option {
	return func(a *App) { a.rawStore = s }
}

// WithSTT injects the speech-to-text backend instead of building the
// configured fallback chain.
func WithSTT(p stt.Provider) Option {
	return func(a *App) { a.stt = p }
}

// WithTTS injects the text-to-speech backend.
func WithTTS(p tts.Provider) Option {
	return func(a *App) { a.tts = p }
}

// WithMetrics records to m instead of the process-wide default instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics instead of the default Prometheus
// registry.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.scrape = h }
}

// WithLogLevel lets config reloads adjust the level of the default logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithClock drives practice session timers from c.
func WithClock(c game.Clock) Option {
	return func(a *App) { a.clock = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any backend.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:    cfg,
		mic:    &audio.ClipMic{},
		sink:   &audio.ClipSink{},
		health: health.New(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.reg == nil {
		a.reg = config.NewRegistry()
		RegisterBuiltins(a.reg)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.scrape == nil {
		a.scrape = promhttp.Handler()
	}
	policy := policyFrom(cfg)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("app: game policy: %w", err)
	}

	// ── 1. Progress storage ──────────────────────────────────────────────
	if err := a.initStorage(ctx, policy.MasteryThreshold); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Decks ─────────────────────────────────────────────────────────
	if err := a.initDecks(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init decks: %w", err)
	}

	// ── 3. Speech ────────────────────────────────────────────────────────
	if err := a.initSpeech(policy); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init speech: %w", err)
	}

	// ── 4. Practice sessions ─────────────────────────────────────────────
	var j Journal
	if path := cfg.Storage.Journal; path != "" {
		a.journal = journal.NewFileStore(path)
		j = a.journal
		slog.Info("session journal enabled", "path", path)
	}
	a.sessions = NewSessionManager(SessionManagerConfig{
		Cards:       a.cards,
		Progress:    a.store,
		Recognizer:  a.recognizer,
		Synthesizer: a.speaker,
		Metrics:     a.metrics,
		Policy:      policy,
		Classifier:  classifierFrom(cfg, a.library),
		Clock:       a.clock,
		Journal:     j,
	})

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", a.scrape)
	a.registerAPI(mux)
	a.handler = observe.Middleware(a.metrics)(mux)
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage opens the configured store, unless one was injected, and puts
// it behind a circuit breaker.
func (a *App) initStorage(ctx context.Context, masteryThreshold int) error {
	if a.rawStore == nil {
		s, err := a.reg.CreateStorage(ctx, a.cfg.Storage, masteryThreshold)
		if err != nil {
			return err
		}
		a.rawStore = s
		switch c := s.(type) {
		case interface{ Close() error }:
			a.closers = append(a.closers, c.Close)
		case interface{ Close() }:
			a.closers = append(a.closers, func() error { c.Close(); return nil })
		}
		driver := a.cfg.Storage.Driver
		if driver == "" {
			driver = config.StorageMemory
		}
		slog.Info("progress storage opened", "driver", driver)
	}

	if p, ok := a.rawStore.(health.Pinger); ok {
		a.health.Add(health.StorageCheck("storage", p))
	}
	a.store = resilience.NewProgressBreaker(a.rawStore, resilience.CircuitBreakerConfig{
		Name:          "progress",
		OnStateChange: a.breakerChanged,
	})
	a.health.Add(health.BreakerCheck("progress", a.store))
	return nil
}

// initDecks loads the configured deck files and imports them into storage.
// Sessions read cards from the library first and fall back to storage for
// sets that were imported earlier.
func (a *App) initDecks(ctx context.Context) error {
	a.library = &deck.Library{}
	decks, err := deck.LoadPaths(a.cfg.Decks)
	if err != nil {
		return err
	}
	a.library.Replace(decks)
	a.importDecks(ctx)
	a.cards = cardChain{a.library, a.store}
	return nil
}

// importDecks copies the library into storage. Failures are logged: the
// library still serves the cards.
func (a *App) importDecks(ctx context.Context) {
	n, err := a.library.Import(ctx, a.store)
	if err != nil {
		slog.Warn("some decks could not be imported into storage", "imported", n, "err", err)
		return
	}
	slog.Info("decks loaded", "count", n)
}

// initSpeech builds the recognizer and the speaker. Each configured provider
// list becomes a fallback chain; an empty list leaves that side unavailable.
func (a *App) initSpeech(policy game.Policy) error {
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{OnStateChange: a.breakerChanged},
	}

	if a.stt == nil && len(a.cfg.Providers.STT) > 0 {
		var group *resilience.STTFallback
		for i, entry := range a.cfg.Providers.STT {
			p, err := a.reg.CreateSTT(entry)
			if err != nil {
				return fmt.Errorf("create stt provider %q: %w", entry.Name, err)
			}
			if i == 0 {
				group = resilience.NewSTTFallback(p, entry.Name, fbCfg)
			} else {
				group.AddFallback(entry.Name, p)
			}
			slog.Info("provider created", "kind", "stt", "name", entry.Name, "primary", i == 0)
		}
		a.stt = group
		a.health.Add(health.ProviderCheck("stt", group))
	}

	if a.tts == nil && len(a.cfg.Providers.TTS) > 0 {
		var group *resilience.TTSFallback
		for i, entry := range a.cfg.Providers.TTS {
			p, err := a.reg.CreateTTS(entry)
			if err != nil {
				return fmt.Errorf("create tts provider %q: %w", entry.Name, err)
			}
			if i == 0 {
				group = resilience.NewTTSFallback(p, entry.Name, fbCfg)
			} else {
				group.AddFallback(entry.Name, p)
			}
			slog.Info("provider created", "kind", "tts", "name", entry.Name, "primary", i == 0)
		}
		a.tts = group
		a.health.Add(health.ProviderCheck("tts", group))
	}

	recOpts := []speech.RecognizerOption{speech.WithRecognizerMetrics(a.metrics)}
	if d := a.cfg.Game.NoSpeechTimeout; d > 0 {
		recOpts = append(recOpts, speech.WithNoSpeechTimeout(d))
	}
	a.recognizer = speech.NewSTTRecognizer(a.mic, a.stt, recOpts...)

	spOpts := []speech.SpeakerOption{speech.WithSpeakerMetrics(a.metrics)}
	for lang, v := range pinnedVoices(a.cfg, policy) {
		spOpts = append(spOpts, speech.WithVoice(lang, v))
	}
	a.speaker = speech.NewSpeaker(a.tts, a.sink, spOpts...)

	avail := speech.Probe(a.recognizer, a.speaker)
	if !avail.Recognition {
		slog.Warn("speech recognition unavailable; learners cannot answer by voice")
	}
	if !avail.Synthesis {
		slog.Warn("speech synthesis unavailable; cards are shown but not spoken")
	}
	return nil
}

// breakerChanged logs and counts circuit breaker transitions.
func (a *App) breakerChanged(name string, from, to resilience.State) {
	log := slog.Info
	if to == resilience.StateOpen {
		log = slog.Warn
	}
	log("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	a.metrics.RecordBreakerTransition(context.Background(), name, to.String())
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. When ctx is done, Run returns ctx.Err().
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Handler returns the HTTP handler serving the API, probes and metrics.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the practice session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of updated. It is meant to be
// passed to [config.NewWatcher]. Game changes affect sessions started after
// the reload; sections that need a restart are only logged.
func (a *App) ApplyConfig(old, updated *config.Config) {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	d := config.Diff(old, updated)
	if !d.Any() {
		return
	}
	a.cfg = updated

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.DecksChanged {
		decks, err := deck.LoadPaths(updated.Decks)
		if err != nil {
			slog.Warn("deck reload failed, keeping the loaded decks", "err", err)
		} else {
			a.library.Replace(decks)
			a.importDecks(context.Background())
		}
	}

	if d.GameChanged {
		p := policyFrom(updated)
		if err := p.Validate(); err != nil {
			slog.Warn("game config rejected, keeping the previous policy", "err", err)
		} else {
			a.sessions.SetPolicy(p)
			slog.Info("game policy updated for new sessions")
		}
	}
	if d.GameChanged || d.VariantsChanged || d.DecksChanged {
		a.sessions.SetClassifier(classifierFrom(updated, a.library))
	}

	for _, section := range d.RestartRequired {
		slog.Warn("config section changed; restart to apply", "section", section)
	}
}

// slogLevel converts a config log level to a slog level.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown ends the active practice session, stops the HTTP server and closes
// storage. If ctx expires before all closers finish, the remaining closers
// are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if _, sum, err := a.sessions.Stop(); err == nil {
			slog.Info("active practice session ended by shutdown", "score", sum.Score)
		}
		a.speaker.Cancel()
		a.speaker.Wait()

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// closeAll releases what New opened before it failed.
func (a *App) closeAll() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// cardChain serves a card set from the first source that knows it.
type cardChain []progress.CardSource

var _ progress.CardSource = cardChain(nil)

// LoadCards implements [progress.CardSource].
func (c cardChain) LoadCards(ctx context.Context, cardSetID string) ([]types.Flashcard, error) {
	for _, src := range c {
		cards, err := src.LoadCards(ctx, cardSetID)
		if !errors.Is(err, progress.ErrCardSetNotFound) {
			return cards, err
		}
	}
	return nil, fmt.Errorf("%w: %q", progress.ErrCardSetNotFound, cardSetID)
}
