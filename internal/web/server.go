package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/elys-network/curate/internal/analyzer"
	"github.com/elys-network/curate/internal/curator"
	"github.com/elys-network/curate/internal/logger"
	"github.com/elys-network/curate/internal/state"
	"github.com/elys-network/curate/internal/types"
	"github.com/gorilla/mux"
)

var webLogger = logger.GetForComponent("web_server")

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxRequestBytes  = 1 << 20
)

// Engine is the part of the curator the HTTP API serves.
type Engine interface {
	Catalog() ([]types.PoolSnapshot, time.Time)
	Parameters() types.EngineParameters
	ParamsID() int64
	ComputeRisk(pool types.PoolSnapshot) (types.RiskResult, error)
	OptimizePortfolio(ctx context.Context, req types.OptimizeRequest) (types.PortfolioResult, error)
	SavePortfolio(ctx context.Context, req types.OptimizeRequest, result types.PortfolioResult, label string) (types.PortfolioSnapshot, error)
	RecentPortfolios(ctx context.Context, limit int) ([]types.PortfolioSnapshot, error)
	Portfolio(ctx context.Context, snapshotID int64) (*types.PortfolioSnapshot, error)
	AnalyzeSnapshot(ctx context.Context, snapshotID int64) (types.AnalysisRecord, error)
	Analyses(ctx context.Context, snapshotID int64, limit int) ([]types.AnalysisRecord, error)
	LastRunNumber(ctx context.Context) (int64, error)
	DetectRebalance(ctx context.Context, allocations []types.Allocation, tolerance types.RiskTolerance) (types.RebalanceAnalysis, error)
}

// WebServer handles HTTP requests for risk scoring, portfolio optimization and rebalance checks
type WebServer struct {
	router  *mux.Router
	port    string
	engine  Engine
	dbCheck func() error
	started time.Time
}

// NewWebServer creates a new web server instance. dbCheck reports database health, nil skips the check.
func NewWebServer(port string, engine Engine, dbCheck func() error) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		engine:  engine,
		dbCheck: dbCheck,
		started: time.Now(),
	}

	server.setupRoutes()
	return server
}

// Handler returns the router wrapped in the CORS middleware. CORS sits outside the router so
// preflight requests are answered before method matching.
func (ws *WebServer) Handler() http.Handler {
	return ws.corsMiddleware(ws.router)
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/catalog", ws.handleGetCatalog).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/risk", ws.handleComputeRisk).Methods("POST")
	api.HandleFunc("/portfolios", ws.handleGetPortfolios).Methods("GET")
	api.HandleFunc("/portfolios/optimize", ws.handleOptimize).Methods("POST")
	api.HandleFunc("/portfolios/{id:[0-9]+}", ws.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{id:[0-9]+}/analyze", ws.handleAnalyzePortfolio).Methods("POST")
	api.HandleFunc("/portfolios/{id:[0-9]+}/analyses", ws.handleGetAnalyses).Methods("GET")
	api.HandleFunc("/rebalance/analyze", ws.handleDetectRebalance).Methods("POST")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth reports database and catalog status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbHealthy := true
	if ws.dbCheck != nil {
		if err := ws.dbCheck(); err != nil {
			webLogger.Warn().Err(err).Msg("Database health check failed")
			dbHealthy = false
		}
	}

	pools, updatedAt := ws.engine.Catalog()
	catalogLoaded := !updatedAt.IsZero()
	catalogInfo := map[string]interface{}{
		"loaded":     catalogLoaded,
		"pool_count": len(pools),
		"updated_at": nil,
	}
	if catalogLoaded {
		catalogInfo["updated_at"] = updatedAt
		catalogInfo["age_seconds"] = int64(time.Since(updatedAt).Seconds())
	}

	// Unknown while the database is down
	var lastRun interface{}
	if dbHealthy {
		if run, err := ws.engine.LastRunNumber(r.Context()); err != nil {
			webLogger.Warn().Err(err).Msg("Failed to read run counter")
		} else {
			lastRun = run
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !dbHealthy || !catalogLoaded {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "curate-risk-engine",
			"version": "1.0.0",
		},
		"engine_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"catalog":          catalogInfo,
			"params_id":        ws.engine.ParamsID(),
			"last_run":         lastRun,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetCatalog returns the scored catalog
func (ws *WebServer) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	pools, updatedAt := ws.engine.Catalog()
	if updatedAt.IsZero() {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, curator.ErrCatalogNotReady.Error())
		return
	}

	response := map[string]interface{}{
		"pools":     pools,
		"count":     len(pools),
		"updatedAt": updatedAt,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetParameters returns the engine parameters in effect
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"parameters": ws.engine.Parameters(),
		"paramsId":   ws.engine.ParamsID(),
		"timestamp":  time.Now().UTC(),
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleComputeRisk scores the pool in the request body
func (ws *WebServer) handleComputeRisk(w http.ResponseWriter, r *http.Request) {
	var pool types.PoolSnapshot
	if !ws.decodeBody(w, r, &pool) {
		return
	}

	result, err := ws.engine.ComputeRisk(pool)
	if err != nil {
		ws.writeEngineError(w, err, "Failed to compute risk")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, result)
}

type optimizeRequest struct {
	types.OptimizeRequest
	Save  bool   `json:"save"`
	Label string `json:"label"`
}

// handleOptimize builds a portfolio and optionally stores it
func (ws *WebServer) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req optimizeRequest
	if !ws.decodeBody(w, r, &req) {
		return
	}

	result, err := ws.engine.OptimizePortfolio(r.Context(), req.OptimizeRequest)
	if err != nil {
		ws.writeEngineError(w, err, "Failed to optimize portfolio")
		return
	}

	response := map[string]interface{}{
		"portfolio": result,
	}
	if req.Save {
		snapshot, err := ws.engine.SavePortfolio(r.Context(), req.OptimizeRequest, result, req.Label)
		if err != nil {
			ws.writeEngineError(w, err, "Failed to save portfolio")
			return
		}
		response["snapshotId"] = snapshot.SnapshotID
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPortfolios returns recent stored portfolios
func (ws *WebServer) handleGetPortfolios(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)

	portfolios, err := ws.engine.RecentPortfolios(r.Context(), limit)
	if err != nil {
		ws.writeEngineError(w, err, "Failed to retrieve portfolios")
		return
	}

	response := map[string]interface{}{
		"portfolios": portfolios,
		"count":      len(portfolios),
		"limit":      limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPortfolio returns a stored portfolio by ID
func (ws *WebServer) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.pathID(w, r)
	if !ok {
		return
	}

	portfolio, err := ws.engine.Portfolio(r.Context(), id)
	if err != nil {
		ws.writeEngineError(w, err, "Failed to retrieve portfolio")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, portfolio)
}

// handleAnalyzePortfolio re-checks a stored portfolio against the current catalog
func (ws *WebServer) handleAnalyzePortfolio(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.pathID(w, r)
	if !ok {
		return
	}

	record, err := ws.engine.AnalyzeSnapshot(r.Context(), id)
	if err != nil {
		ws.writeEngineError(w, err, "Failed to analyze portfolio")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, record)
}

// handleGetAnalyses returns the stored analyses of a portfolio
func (ws *WebServer) handleGetAnalyses(w http.ResponseWriter, r *http.Request) {
	id, ok := ws.pathID(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r)

	analyses, err := ws.engine.Analyses(r.Context(), id, limit)
	if err != nil {
		ws.writeEngineError(w, err, "Failed to retrieve analyses")
		return
	}

	response := map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
		"limit":    limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

type rebalanceRequest struct {
	Allocations   []types.Allocation  `json:"allocations"`
	RiskTolerance types.RiskTolerance `json:"riskTolerance"`
}

// handleDetectRebalance checks caller-supplied allocations without storing anything
func (ws *WebServer) handleDetectRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if !ws.decodeBody(w, r, &req) {
		return
	}

	analysis, err := ws.engine.DetectRebalance(r.Context(), req.Allocations, req.RiskTolerance)
	if err != nil {
		ws.writeEngineError(w, err, "Failed to analyze allocations")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, analysis)
}

func (ws *WebServer) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (ws *WebServer) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid portfolio ID")
		return 0, false
	}
	return id, true
}

func parseLimit(r *http.Request) int {
	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= maxListLimit {
			limit = parsedLimit
		}
	}
	return limit
}

// writeEngineError maps engine and store errors onto HTTP status codes
func (ws *WebServer) writeEngineError(w http.ResponseWriter, err error, fallback string) {
	var shortfall *analyzer.InsufficientCandidatesError
	switch {
	case errors.As(err, &shortfall):
		ws.writeJSONResponse(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":   true,
			"message": err.Error(),
			"details": map[string]interface{}{
				"riskTolerance":   shortfall.RiskTolerance,
				"diversification": shortfall.Diversification,
				"riskCeiling":     shortfall.Ceiling,
				"targetPools":     shortfall.Target,
				"available":       shortfall.Available,
			},
			"timestamp": time.Now().UTC(),
		})
	case errors.Is(err, analyzer.ErrInvalidInput), errors.Is(err, analyzer.ErrInvalidPoolData):
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, state.ErrNotFound):
		ws.writeErrorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, curator.ErrCatalogNotReady):
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, err.Error())
	default:
		webLogger.Error().Err(err).Msg(fallback)
		ws.writeErrorResponse(w, http.StatusInternalServerError, fallback)
	}
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
