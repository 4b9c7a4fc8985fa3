package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/couchcryptid/citypulse/internal/domain"
	"github.com/couchcryptid/citypulse/internal/forecast"
	"github.com/couchcryptid/citypulse/internal/store"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultHours        = 24
	maxHours            = 24 * 365 * 100
	historyLimit        = 500
	defaultAnomalyLimit = 50
	nodeAnomalyLimit    = 20
	maxIngestBody       = 1 << 20
)

// Ingester runs one reading through the pipeline and reports readiness.
type Ingester interface {
	Ingest(ctx context.Context, raw domain.RawReading) (domain.Reading, error)
	CheckReadiness(ctx context.Context) error
}

// ReadingStore answers the read-side queries.
type ReadingStore interface {
	LatestPerNode(ctx context.Context) ([]domain.Reading, error)
	QueryRange(ctx context.Context, q store.Query) ([]domain.Reading, error)
	QueryAnomalies(ctx context.Context, q store.Query) ([]domain.AnomalyRecord, error)
}

// Forecaster proxies forecast requests.
type Forecaster interface {
	Get(ctx context.Context, nodeID string, horizonMinutes int) (json.RawMessage, error)
}

// NodeCatalog resolves node metadata.
type NodeCatalog interface {
	All() []domain.Node
	Lookup(id string) (domain.Node, bool)
}

// Deps are the collaborators behind the HTTP surface. Live may be nil when
// the WebSocket stream is disabled.
type Deps struct {
	Ingester  Ingester
	Store     ReadingStore
	Forecasts Forecaster
	Nodes     NodeCatalog
	Live      http.Handler
}

// Server exposes the REST API, the live stream, health, readiness and metrics.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with the /api routes plus /ws, /health,
// /healthz, /readyz and /metrics.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	r.Get("/health", s.handleHealth)
	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(deps.Ingester))
	r.Handle("/metrics", promhttp.Handler())
	if deps.Live != nil {
		r.Handle("/ws", deps.Live)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", s.handleIngest)
		r.Get("/live", s.handleLive)
		r.Get("/history", s.handleHistory)
		r.Get("/nodes", s.handleNodes)
		r.Get("/anomalies", s.handleAnomalies)
		r.Get("/anomalies/{nodeId}", s.handleNodeAnomalies)
		r.Get("/forecast", s.handleForecast)
		r.Get("/forecast/{nodeId}", s.handleForecast)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "citypulse-backend"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	raw, err := domain.DecodeRawReading(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	reading, err := s.deps.Ingester.Ingest(r.Context(), raw)
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "node_id required")
		return
	case err != nil:
		s.logger.Error("ingest failed", "node_id", raw.NodeID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to ingest data")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": reading})
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	latest, err := s.deps.Store.LatestPerNode(r.Context())
	if err != nil {
		s.logger.Error("live query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch live data")
		return
	}
	writeJSON(w, http.StatusOK, newLiveNodes(latest, s.deps.Nodes))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := store.Query{
		NodeID: r.URL.Query().Get("node_id"),
		Since:  hoursParam(r),
		Limit:  historyLimit,
	}
	readings, err := s.deps.Store.QueryRange(r.Context(), q)
	if err != nil {
		s.logger.Error("history query failed", "node_id", q.NodeID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	writeJSON(w, http.StatusOK, newHistoryRows(readings))
}

func (s *Server) handleNodes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Nodes.All())
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	q := store.Query{
		Since: hoursParam(r),
		Limit: intParam(r, "limit", defaultAnomalyLimit),
	}
	s.writeAnomalies(w, r, q, "Failed to fetch anomalies")
}

func (s *Server) handleNodeAnomalies(w http.ResponseWriter, r *http.Request) {
	q := store.Query{
		NodeID: chi.URLParam(r, "nodeId"),
		Since:  hoursParam(r),
		Limit:  nodeAnomalyLimit,
	}
	s.writeAnomalies(w, r, q, "Failed to fetch node anomalies")
}

func (s *Server) writeAnomalies(w http.ResponseWriter, r *http.Request, q store.Query, failure string) {
	records, err := s.deps.Store.QueryAnomalies(r.Context(), q)
	if err != nil {
		s.logger.Error("anomaly query failed", "node_id", q.NodeID, "error", err)
		writeError(w, http.StatusInternalServerError, failure)
		return
	}
	writeJSON(w, http.StatusOK, newAnomalyRows(records, s.deps.Nodes))
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeId")
	horizon := intParam(r, "horizon", forecast.DefaultHorizon)

	payload, err := s.deps.Forecasts.Get(r.Context(), nodeID, horizon)
	switch {
	case errors.Is(err, forecast.ErrNoForecast):
		writeError(w, http.StatusNotFound, "Forecast not found")
		return
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, "ML service unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload) //nolint:errcheck // client may have gone away
}

// hoursParam reads ?hours as a look-back window, defaulting to 24 hours and
// capped at a century so the duration cannot overflow.
func hoursParam(r *http.Request) time.Duration {
	return time.Duration(min(intParam(r, "hours", defaultHours), maxHours)) * time.Hour
}

// intParam parses a positive integer query parameter, falling back to def
// when absent or invalid.
func intParam(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
