package web

import (
	"context"
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/csm-companion/internal/logging"
	"github.com/hpungsan/csm-companion/internal/overlay"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// shutdownGrace bounds how long in-flight requests may finish after a signal.
const shutdownGrace = 5 * time.Second

// NewServer builds the preview server around an overlay session.
func NewServer(session *overlay.Session, version, bind string, port int, log *logging.Logger) (*http.Server, error) {
	if log == nil {
		log = logging.Nop()
	}
	handler, err := newHandler(session, version, log)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              net.JoinHostPort(bind, fmt.Sprint(port)),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// newHandler wires the routes and middleware for a session.
func newHandler(session *overlay.Session, version string, log *logging.Logger) (http.Handler, error) {
	pages, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	renderer, err := NewRenderer(pages, version, log)
	if err != nil {
		return nil, err
	}
	h := &Handlers{session: session, renderer: renderer, log: log}
	return accessLog(log, securityHeaders(routes(h, assets))), nil
}

func routes(h *Handlers, assets fs.FS) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/widget", http.StatusFound)
	})
	mux.HandleFunc("GET /widget", h.HandleWidget)
	mux.HandleFunc("GET /widget/insights", h.HandleInsights)
	mux.HandleFunc("POST /events/case-updated", h.HandleCaseUpdated)
	mux.HandleFunc("POST /prefs/position", h.HandlePosition)
	mux.HandleFunc("DELETE /prefs/position", h.HandleResetPosition)
	mux.HandleFunc("POST /prefs/mode", h.HandleMode)
	mux.HandleFunc("GET /api/view", h.HandleView)
	mux.HandleFunc("GET /api/subscription", h.HandleSubscription)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(assets)))

	return mux
}

// securityHeaders locks the page to its own origin. Inline styles are refused,
// so widget offsets travel in data attributes.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		if !strings.HasPrefix(r.URL.Path, "/static/") {
			h.Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// accessLog writes one debug line per request.
func accessLog(log *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}

// Run serves srv until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully. A clean shutdown returns nil.
func Run(ctx context.Context, srv *http.Server, name string, log *logging.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen: %w", name, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	log.Info(name+" running", "addr", "http://"+ln.Addr().String())
	if host, _, err := net.SplitHostPort(ln.Addr().String()); err == nil && net.ParseIP(host).IsUnspecified() {
		log.Warn("server is binding to all interfaces and may be accessible from the network", "addr", srv.Addr)
	}

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("shutting down", "server", name)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
