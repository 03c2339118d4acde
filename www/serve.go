// Package www serves read-only snapshots of the running session, plus
// start and stop, for dashboards and scripts on the same machine.
package www

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"podium/feedback"
	"podium/metrics"
	"podium/session"
	"podium/transcript"
)

// Controller is the part of session.Controller the server needs.
type Controller interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Active() bool
	SessionID() string
	Mode() session.Mode
	Transcript() transcript.Snapshot
	FeedbackNewest() []feedback.Event
	FeedbackSince(id uint64) []feedback.Event
	Metrics() *metrics.Metrics
}

type Server struct {
	ctrl   Controller
	base   context.Context
	log    *log.Logger
	router *chi.Mux
}

// NewServer builds the router. Sessions started over HTTP live as long
// as base.
func NewServer(base context.Context, ctrl Controller, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Server{ctrl: ctrl, base: base, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", s.routes)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Get("/transcript", s.transcript)
	r.Get("/feedback", s.feedback)
	r.Method(http.MethodGet, "/metrics", ctrl.Metrics().Handler())
	r.Post("/session", s.start)
	r.Delete("/session", s.stop)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Serve listens on addr until ctx ends.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("http", "url", fmt.Sprintf("http://%s", displayAddr(addr)))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug(
			"http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) routes(w http.ResponseWriter, r *http.Request) {
	var lines []string
	chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		lines = append(lines, method+" "+route)
		return nil
	})
	slices.Sort(lines)

	if strings.Contains(r.Header.Get("Accept"), "text/plain") {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte(strings.Join(lines, "\n") + "\n"))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RoutesList(lines).Render(r.Context(), w); err != nil {
		s.log.Error("render routes", "error", err)
		http.Error(w, "Failed to render routes list", http.StatusInternalServerError)
	}
}

type transcriptResponse struct {
	SessionID string    `json:"session_id,omitempty"`
	Mode      string    `json:"mode"`
	State     string    `json:"state"`
	Text      string    `json:"text"`
	Partial   string    `json:"partial"`
	Display   string    `json:"display"`
	Finals    int       `json:"finals"`
	Failed    bool      `json:"failed"`
	Updated   time.Time `json:"updated"`
}

func (s *Server) transcript(w http.ResponseWriter, r *http.Request) {
	snap := s.ctrl.Transcript()
	writeJSON(w, http.StatusOK, transcriptResponse{
		SessionID: s.ctrl.SessionID(),
		Mode:      s.ctrl.Mode().String(),
		State:     snap.State.String(),
		Text:      snap.Text,
		Partial:   snap.Partial,
		Display:   snap.Display(),
		Finals:    snap.Finals,
		Failed:    snap.Failed,
		Updated:   snap.Updated,
	})
}

// feedback lists events oldest first. ?order=newest reverses that and
// ?since=<id> keeps only events after id.
func (s *Server) feedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var since uint64
	if v := q.Get("since"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("since: %w", err))
			return
		}
		since = id
	}

	var events []feedback.Event
	switch q.Get("order") {
	case "", "oldest":
		events = s.ctrl.FeedbackSince(since)
	case "newest":
		events = s.ctrl.FeedbackNewest()
		// Newest first, so everything from the first old id on goes.
		if i := slices.IndexFunc(events, func(e feedback.Event) bool { return e.ID <= since }); i >= 0 {
			events = events[:i]
		}
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("order must be oldest or newest"))
		return
	}

	if events == nil {
		events = []feedback.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	err := s.ctrl.Start(s.base)
	switch {
	case errors.Is(err, session.ErrSessionActive):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": s.ctrl.SessionID()})
	}
}

func (s *Server) stop(w http.ResponseWriter, r *http.Request) {
	if !s.ctrl.Active() {
		writeError(w, http.StatusNotFound, session.ErrNoSession)
		return
	}
	if err := s.ctrl.Stop(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	s.transcript(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
