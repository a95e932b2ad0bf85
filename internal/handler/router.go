// Package handler is the HTTP inspection and control surface of the
// sandbox. It is a thin consumer of the environment and runner; the
// core never depends on it.
package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/tradesandbox/internal/sandbox"
	"github.com/efreitasn/tradesandbox/internal/service"
)

// NewRouter creates a chi router with all routes registered, request logging,
// and Content-Type validation middleware.
func NewRouter(env *sandbox.Environment, runner *service.Runner, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	// Create handlers.
	balanceH := NewBalanceHandler(env)
	orderH := NewOrderHandler(env)
	marketH := NewMarketHandler(env)
	simH := NewSimulationHandler(env, runner)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Balance routes.
	r.Get("/balances", balanceH.List)
	r.Get("/balances/{asset}", balanceH.Get)

	// Order routes.
	r.Post("/orders", orderH.PlaceOrder)
	r.Get("/orders", orderH.ListOpen)
	r.Get("/orders/{order_id}", orderH.GetOrder)
	r.Delete("/orders/{order_id}", orderH.CancelOrder)

	// Market routes.
	r.Get("/markets", marketH.ListPairs)
	r.Get("/markets/{pair}/book", marketH.GetBook)
	r.Get("/markets/{pair}/price", marketH.GetPrice)

	// Simulation control routes.
	r.Post("/simulation/run", simH.Run)
	r.Post("/simulation/step", simH.Step)
	r.Post("/simulation/stop", simH.Stop)
	r.Post("/simulation/reset", simH.Reset)
	r.Get("/simulation/metrics", simH.Metrics)
	r.Get("/simulation/statistics", simH.Statistics)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests with a body. If the Content-Type header doesn't start with
// "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasBody := r.ContentLength != 0
		if hasBody && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
