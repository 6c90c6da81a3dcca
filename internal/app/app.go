// Package app wires the signbridge subsystems into a running server.
//
// [New] builds the room registry, the interpretation collaborators, the hub,
// and the HTTP surface from a validated config and a set of providers. [App.Run]
// serves until its context is cancelled and then shuts down in order: stop
// accepting, end live sessions, wait for their clean-up.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/signbridge/internal/config"
	"github.com/MrWong99/signbridge/internal/health"
	"github.com/MrWong99/signbridge/internal/hub"
	"github.com/MrWong99/signbridge/internal/observe"
	"github.com/MrWong99/signbridge/internal/room"
	"github.com/MrWong99/signbridge/internal/speech"
	"github.com/MrWong99/signbridge/internal/transcript"
	"github.com/MrWong99/signbridge/internal/transcript/llmcorrect"
	"github.com/MrWong99/signbridge/internal/transport"
)

const (
	defaultShutdownTimeout   = 15 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
)

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetrics sets the metric instruments. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h on /metrics. Without it the route is absent.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets config reloads change the log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithShutdownTimeout bounds graceful shutdown. Default: 15s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// App owns the server and everything it serves.
type App struct {
	cfg            *config.Config
	log            *slog.Logger
	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar

	shutdownTimeout time.Duration

	registry  *room.Registry
	corrector *transcript.Corrector
	codec     *speech.Codec
	hub       *hub.Hub
	ws        *transport.Handler
	health    *health.Handler
}

// New wires an App. providers may have nil stages; the hub then drops the
// messages that stage would interpret.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:             cfg,
		log:             slog.Default(),
		shutdownTimeout: defaultShutdownTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	a.registry = room.NewRegistry(room.WithPolicy(cfg.Pairing.Policy))

	in := cfg.Interpretation
	if len(in.Vocabulary) > 0 || (in.CorrectSentences && providers.LLM != nil) {
		copts := []transcript.Option{transcript.WithVocabulary(in.Vocabulary)}
		if in.CorrectSentences && providers.LLM != nil {
			copts = append(copts, transcript.WithLLM(llmcorrect.New(providers.LLM)))
		}
		a.corrector = transcript.New(copts...)
	}

	if providers.STT != nil || providers.TTS != nil {
		sopts := []speech.Option{speech.WithLanguage(in.Language)}
		if providers.STT != nil {
			sopts = append(sopts, speech.WithSTT(providers.STT))
		}
		if providers.TTS != nil {
			sopts = append(sopts, speech.WithTTS(providers.TTS, providers.Voice))
		}
		if a.corrector != nil {
			sopts = append(sopts, speech.WithKeywords(a.corrector.Vocabulary))
		}
		a.codec = speech.New(sopts...)
	}

	hopts := []hub.Option{
		hub.WithLogger(a.log),
		hub.WithMetrics(a.metrics),
		hub.WithInterpretTimeout(in.Timeout),
		hub.WithSendTimeout(cfg.Relay.WriteTimeout),
		hub.WithStableFrames(in.StableFrames),
		hub.WithSpaceToken(in.SpaceToken),
	}
	if providers.Sign != nil {
		hopts = append(hopts, hub.WithPredictor(providers.Sign))
	}
	if a.codec != nil {
		hopts = append(hopts, hub.WithSpeechCodec(a.codec))
	}
	if a.corrector != nil {
		hopts = append(hopts, hub.WithCorrector(a.corrector))
	}
	a.hub = hub.New(a.registry, hopts...)

	a.ws = transport.NewHandler(
		a.serveConn,
		transport.WithReadLimit(cfg.Relay.ReadLimitBytes),
		transport.WithPingInterval(cfg.Relay.PingInterval),
		transport.WithAllowedOrigins(cfg.Relay.AllowedOrigins...),
		transport.WithLogger(a.log),
	)

	a.health = health.New(a.healthOptions(providers)...)

	a.log.Info("application wired",
		"policy", cfg.Pairing.Policy,
		"sign", providers.Sign != nil,
		"stt", providers.STT != nil,
		"tts", providers.TTS != nil,
		"corrector", a.corrector != nil,
	)
	return a, nil
}

func (a *App) healthOptions(ps *Providers) []health.Option {
	opts := []health.Option{
		health.WithStats(func() any {
			s := a.registry.Stats()
			return map[string]int{"rooms": s.Rooms, "members": s.Members, "full_rooms": s.Full}
		}),
		health.WithChecker(health.Checker{Name: "rooms", Check: func(ctx context.Context) error {
			done := make(chan struct{})
			go func() {
				a.registry.Stats()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("room registry unresponsive: %w", ctx.Err())
			}
		}}),
	}
	for name, p := range map[string]any{"sign": ps.Sign, "stt": ps.STT, "tts": ps.TTS, "llm": ps.LLM} {
		if g, ok := p.(health.BreakerGroup); ok {
			opts = append(opts, health.WithChecker(health.BreakerChecker(name, g)))
		}
	}
	return opts
}

// serveConn runs one WebSocket session. Join rejections were already reported
// to the client and logged by the hub, so they do not count as failures.
func (a *App) serveConn(ctx context.Context, c *transport.Conn) error {
	err := a.hub.Serve(ctx, c)
	if errors.Is(err, hub.ErrJoinRejected) {
		return nil
	}
	return err
}

// Hub returns the message dispatcher.
func (a *App) Hub() *hub.Hub { return a.hub }

// Registry returns the room registry.
func (a *App) Registry() *room.Registry { return a.registry }

// Handler returns the HTTP surface: /ws, /healthz, /readyz and, when
// configured, /metrics, wrapped in the observability middleware.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", a.ws)
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	return observe.Middleware(a.metrics)(mux)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully. It
// returns nil after a clean shutdown.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	// Sessions outlive the request that upgraded them, so they hang off a
	// context that is cancelled only during shutdown.
	sessCtx, endSessions := context.WithCancel(context.WithoutCancel(ctx))
	defer endSessions()

	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return sessCtx },
		ErrorLog:          slog.NewLogLogger(a.log.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down", "timeout", a.shutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		endSessions()

		done := make(chan struct{})
		go func() {
			a.ws.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			a.log.Warn("sessions still open at shutdown deadline")
			err = errors.Join(err, shutdownCtx.Err())
		}
		a.log.Info("shutdown complete")
		return err
	})
	return g.Wait()
}

// ApplyConfig applies the hot-reloadable difference between old and new.
// Settings that need a restart are logged.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(LogLevel(d.NewLogLevel))
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.StableFramesChanged {
		a.hub.SetStableFrames(d.NewStableFrames)
		a.log.Info("stable frames changed", "stable_frames", d.NewStableFrames)
	}
	if d.VocabularyChanged {
		if a.corrector != nil {
			a.corrector.SetVocabulary(d.NewVocabulary)
			a.log.Info("vocabulary changed", "words", len(d.NewVocabulary))
		} else {
			a.log.Warn("vocabulary changed but spelling correction was disabled at startup; restart to enable")
		}
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
}

// LogLevel maps a config level to an slog level. Unknown values map to info.
func LogLevel(l config.LogLevel) slog.Level {
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
