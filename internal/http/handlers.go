// Package http serves the scrape endpoint: Basic auth, content negotiation,
// the concurrent provider fan-out and the exposition response, plus the
// middleware around it.
package http

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/weathermen/prometheus-weathermen/internal/auth"
	"github.com/weathermen/prometheus-weathermen/internal/config"
	"github.com/weathermen/prometheus-weathermen/internal/exposition"
	"github.com/weathermen/prometheus-weathermen/internal/version"
)

// plainContentType is used for every non-metrics response body.
const plainContentType = "text/plain; charset=utf-8; version=0.0.4"

// Handler serves the exporter's two routes.
type Handler struct {
	tasks   []config.Task
	auth    *auth.Authenticator
	version string
	logger  *zap.Logger
}

// NewHandler wires the scrape handler. version appears as the version label
// on every sample.
func NewHandler(tasks []config.Task, authenticator *auth.Authenticator, version string, logger *zap.Logger) *Handler {
	return &Handler{
		tasks:   tasks,
		auth:    authenticator,
		version: version,
		logger:  logger,
	}
}

// NewRouter builds the route table with the standard middleware chain.
func NewRouter(h *Handler, cfg config.HTTP, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(ScrapeIDMiddleware(logger))
	router.Use(ServerIdentMiddleware(cfg.Ident))
	router.Use(LoggingMiddleware(logger))
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst < 1 {
			burst = 1
		}
		router.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)))
	}

	router.HandleFunc("/metrics", h.Metrics).Methods(http.MethodGet)
	router.PathPrefix("/").HandlerFunc(h.NotFound)
	return router
}

// Metrics is the scrape endpoint.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	logger := loggerFromContext(r.Context(), h.logger)

	if !h.authenticate(w, r, logger) {
		return
	}

	format := exposition.Negotiate(r.Header.Get("Accept"))
	records := fetchAll(r.Context(), h.tasks, logger)

	var buf bytes.Buffer
	if err := exposition.Encode(&buf, records, h.version, format); err != nil {
		logger.Error("encoding metrics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error while fetching weather data. Check the logs")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// NotFound answers every path except /metrics. Auth applies here too so the
// exporter leaks nothing to unauthenticated probes.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	if !h.authenticate(w, r, loggerFromContext(r.Context(), h.logger)) {
		return
	}
	writeError(w, http.StatusNotFound, "Check /metrics")
}

// authenticate enforces HTTP Basic auth when credentials are configured.
// Missing credentials get 401 with a challenge, wrong ones get 403.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	if !h.auth.Enabled() {
		return true
	}

	username, password, ok := r.BasicAuth()
	if !ok {
		w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q, charset=%q", version.Name, "UTF-8"))
		writeError(w, http.StatusUnauthorized, "Authentication required. No credentials provided")
		return false
	}
	if !h.auth.Verify(username, password) {
		logger.Warn("access denied", zap.String("username", username))
		writeError(w, http.StatusForbidden, "Access denied. Invalid credentials")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", plainContentType)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message))
}
