// Package server exposes the application over HTTP.
//
// Plays are created with a JSON POST and then driven over websockets: one
// connection streams the writing loop, another streams the audio render.
// Finished scripts and audio are fetched with plain GETs. Health checks and
// the Prometheus exposition are mounted on the same router.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/app"
	"github.com/MrWong99/curtaincall/internal/health"
	"github.com/MrWong99/curtaincall/internal/observe"
	"github.com/MrWong99/curtaincall/internal/render"
)

const (
	maxBodyBytes = 64 << 10
	writeTimeout = 10 * time.Second
)

// Server routes API requests to an [app.App].
type Server struct {
	app     *app.App
	health  *health.Handler
	metrics *observe.Metrics
	prom    http.Handler
	origins []string
	log     *slog.Logger
	router  chi.Router
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts h on /healthz and /readyz.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.prom = h }
}

// WithMetrics sets the instruments used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithOriginPatterns allows websocket upgrades from the given host patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds the router for a.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{app: a}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.health == nil {
		s.health = health.New()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observe.Middleware(s.metrics))
	r.Use(middleware.Recoverer)

	s.health.Register(r)
	if s.prom != nil {
		r.Method(http.MethodGet, "/metrics", s.prom)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/voices", s.listVoices)
		r.Route("/plays", func(r chi.Router) {
			r.Post("/", s.createPlay)
			r.Get("/", s.listPlays)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getPlay)
				r.Delete("/", s.deletePlay)
				r.Get("/events", s.playEvents)
				r.Get("/script", s.getScript)
				r.Get("/audio/events", s.audioEvents)
				r.Get("/audio.wav", s.getAudio)
			})
		})
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// HTTPServer returns an [http.Server] serving the router on addr.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
}

func (s *Server) createPlay(w http.ResponseWriter, r *http.Request) {
	var req app.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	req, err := req.Normalize(s.app.Config().Play)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess := s.app.Sessions().Create(req)
	s.log.Info("play created", "session", sess.ID, "mode", req.Mode, "language", req.Language)

	w.Header().Set("Location", "/v1/plays/"+sess.ID)
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID})
}

func (s *Server) listPlays(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plays": s.app.Sessions().List()})
}

func (s *Server) getPlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (s *Server) deletePlay(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Sessions().Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getScript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	text, done := sess.Script()
	if !done {
		writeError(w, http.StatusNotFound, app.ErrNotWritten)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, text)
}

func (s *Server) getAudio(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	res, err := sess.Audio()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.WAV)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.wav"`, sess.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.WAV)
}

// voiceInfo is the wire form of a catalogue entry.
type voiceInfo struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Provider string            `json:"provider"`
	Gender   string            `json:"gender,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) listVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := s.app.TTS().ListVoices(r.Context())
	if err != nil {
		s.log.Warn("list voices failed", "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	casting := s.app.TTS().Casting()
	out := make([]voiceInfo, len(voices))
	for i, v := range voices {
		out[i] = voiceInfo{ID: v.ID, Name: v.Name, Provider: v.Provider, Gender: v.Gender, Metadata: v.Metadata}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"voices":     out,
		"narrator":   casting.Narrator,
		"characters": casting.Characters,
		"soloists":   casting.Soloists,
	})
}

// playEvents runs the writing loop for a session and streams its events over
// a websocket. The loop starts only once the upgrade has succeeded and stops
// when the client disconnects.
func (s *Server) playEvents(w http.ResponseWriter, r *http.Request) {
	if !isUpgrade(w, r) {
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.CheckWrite(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	stream(s, w, r, sess.ID, func(ctx context.Context) (<-chan agent.Event, error) {
		return s.app.Write(ctx, sess)
	}, "play finished")
}

// audioEvents renders the session's script and streams progress over a
// websocket. Query parameters: performer=solo|ensemble, voice, rewrite.
func (s *Server) audioEvents(w http.ResponseWriter, r *http.Request) {
	if !isUpgrade(w, r) {
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	opts, err := audioOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := sess.CheckRender(); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	stream(s, w, r, sess.ID, func(ctx context.Context) (<-chan render.Event, error) {
		return s.app.Render(ctx, sess, opts)
	}, "audio finished")
}

func audioOptions(r *http.Request) (app.AudioOptions, error) {
	q := r.URL.Query()
	var opts app.AudioOptions
	switch p := q.Get("performer"); p {
	case "", "ensemble":
	case "solo":
		opts.Solo = true
	default:
		return opts, fmt.Errorf("performer %q is invalid; valid values: ensemble, solo", p)
	}
	opts.Voice = q.Get("voice")
	if v := q.Get("rewrite"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("rewrite %q is not a boolean", v)
		}
		opts.Rewrite = b
	}
	return opts, nil
}

// stream upgrades the connection, then calls start and writes every event it
// produces as a JSON text message. Nothing is started when the upgrade fails.
// The stream returned by start must be closed by its producer once ctx is
// cancelled.
func stream[E any](s *Server, w http.ResponseWriter, r *http.Request, id string, start func(context.Context) (<-chan E, error), reason string) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.Warn("websocket accept failed", "session", id, "err", err)
		return
	}
	defer ws.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := start(ctx)
	if err != nil {
		// Lost a race with another client between the check and the upgrade.
		_ = ws.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	// Leave nothing blocked on an abandoned stream.
	defer func() {
		cancel()
		for range events {
		}
	}()

	// The client never sends; CloseRead handles its close frame and cancels
	// the stream when the connection goes away.
	context.AfterFunc(ws.CloseRead(ctx), cancel)

	for ev := range events {
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, ws, ev)
		wcancel()
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				s.log.Debug("websocket write failed", "session", id, "err", err)
			}
			return
		}
	}
	if err := ws.Close(websocket.StatusNormalClosure, reason); err != nil {
		s.log.Debug("websocket close failed", "session", id, "err", err)
	}
}

// isUpgrade rejects plain requests before any work is started for them.
func isUpgrade(w http.ResponseWriter, r *http.Request) bool {
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return true
	}
	w.Header().Set("Upgrade", "websocket")
	writeError(w, http.StatusUpgradeRequired, errors.New("websocket upgrade required"))
	return false
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*app.Session, bool) {
	sess, err := s.app.Sessions().Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return nil, false
	}
	return sess, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, app.ErrSessionNotFound), errors.Is(err, app.ErrNoAudio):
		return http.StatusNotFound
	case errors.Is(err, app.ErrAlreadyWritten), errors.Is(err, app.ErrNotWritten), errors.Is(err, app.ErrRenderBusy):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
