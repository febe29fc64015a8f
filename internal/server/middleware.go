package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/leadwatch/internal/handlers"
)

type middleware func(http.Handler) http.Handler

// chain wraps h so that the first middleware sees the request first
func chain(h http.Handler, mws ...middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// bridgeHandler routes /ws around request observation: a hijacked upgrade
// has no status or duration worth recording
func (s *Server) bridgeHandler(router http.Handler) http.Handler {
	api := chain(router, s.observe, allowLocalClients, s.recoverPanics)
	ws := chain(router, allowLocalClients)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			ws.ServeHTTP(w, r)
			return
		}
		api.ServeHTTP(w, r)
	})
}

// observe logs each request once it completes and records it in metrics
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		route := routeLabel(r.URL.Path)
		s.app.Metrics.ObserveRequest(r.Method, route, strconv.Itoa(rec.status), elapsed.Seconds())

		event := s.app.Logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			event = s.app.Logger.Warn()
		}
		event = event.
			Str("method", r.Method).
			Str("route", route).
			Int("status", rec.status).
			Str("duration", elapsed.String())
		if r.URL.RawQuery != "" {
			event = event.Str("query", r.URL.RawQuery)
		}
		event.Msg("HTTP request")
	})
}

// allowLocalClients answers preflight requests; the bridge binds to a local address
func allowLocalClients(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics turns a handler panic into a JSON 500
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}
				s.app.Logger.Error().
					Str("panic", fmt.Sprint(p)).
					Str("path", r.URL.Path).
					Str("stack", string(debug.Stack())).
					Msg("Handler panic recovered")
				_ = handlers.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder keeps the response status for observe
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rec.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	return hijacker.Hijack()
}

// routeLabel keeps the metrics route label bounded: job ids are collapsed
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/api/jobs/") && strings.HasSuffix(path, "/cancel"):
		return "/api/jobs/{id}/cancel"
	case strings.HasPrefix(path, "/api/jobs/"):
		return "/api/jobs/{id}"
	case path == "/api/jobs", path == "/api/status", path == "/api/version", path == "/api/health", path == "/metrics":
		return path
	default:
		return "other"
	}
}
