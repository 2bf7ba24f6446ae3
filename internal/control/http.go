package control

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"rmsched/internal/logging"
	"rmsched/internal/sched"
)

// maxRequestBytes caps one request line, like the fixed write buffer of a
// proc file.
const maxRequestBytes = 512

// truncatedHeader is set on a status read that did not fit the requested size.
const truncatedHeader = "X-Status-Truncated"

type server struct {
	a            *Adapter
	statusBuffer int
	logger       *slog.Logger
}

// NewHandler exposes the adapter over HTTP:
//
//	POST /status   body is one request line
//	GET  /status   status snapshot; ?size=N sets the read capacity
//	GET  /healthz
func NewHandler(a *Adapter, statusBuffer int, logger *slog.Logger) http.Handler {
	srv := &server{a: a, statusBuffer: statusBuffer, logger: logging.Component(logger, "http")}

	r := chi.NewRouter()

	// Global middlewares. No request timeout: a yield blocks until the
	// task is dispatched again.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Get("/status", srv.read)
	r.Post("/status", srv.write)

	return r
}

func (s *server) read(w http.ResponseWriter, r *http.Request) {
	size := s.statusBuffer
	if q := r.URL.Query().Get("size"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			http.Error(w, "size must be a non-negative integer", http.StatusBadRequest)
			return
		}
		size = n
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	out, err := s.a.Read(size)
	if errors.Is(err, ErrShortBuffer) {
		w.Header().Set(truncatedHeader, "true")
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write(out)
}

func (s *server) write(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.a.Write(r.Context(), string(body))
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if errors.Is(err, context.Canceled) {
		// client went away while blocked in yield
		return
	}
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMalformedRequest):
		return http.StatusBadRequest
	case errors.Is(err, sched.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, sched.ErrTaskRemoved):
		return http.StatusGone
	case errors.Is(err, sched.ErrResourceExhausted), errors.Is(err, sched.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
