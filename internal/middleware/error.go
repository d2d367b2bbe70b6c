package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	logpkg "github.com/propcrm/realty-agent/internal/logger"
	"github.com/propcrm/realty-agent/internal/metrics"
	"github.com/propcrm/realty-agent/internal/request"
)

// ErrorResponse is the body written for a recovered panic
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler turns a handler panic into a JSON 500. A panic after the
// handler already started its response only gets logged, and
// http.ErrAbortHandler keeps its net/http meaning.
func ErrorHandler(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tracked := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				route := routeTemplate(r)
				metrics.RecordPanic(route)
				logger.Error("panic_recovered",
					zap.Any("error", rec),
					zap.String("request_id", request.RequestID(r.Context())),
					zap.String("route", route),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("method", r.Method),
					zap.Bool("response_started", tracked.wroteHeader),
					zap.Stack("stack"),
				)
				if tracked.wroteHeader {
					return
				}
				writePanicResponse(w, r, logger)
			}()

			next.ServeHTTP(tracked, r)
		})
	}
}

func writePanicResponse(w http.ResponseWriter, r *http.Request, logger *zap.Logger) {
	body, err := json.Marshal(ErrorResponse{
		Error:     http.StatusText(http.StatusInternalServerError),
		Message:   "An unexpected error occurred",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Path:      logpkg.SanitizePath(r.URL.Path),
		RequestID: request.RequestID(r.Context()),
	})
	if err != nil {
		logger.Error("failed_to_encode_error_response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write(body)
}
