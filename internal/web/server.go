package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/elys-network/dpool/internal/host"
	"github.com/elys-network/dpool/internal/logger"
	"github.com/elys-network/dpool/internal/metrics"
	"github.com/elys-network/dpool/internal/node"
	"github.com/elys-network/dpool/internal/state"
	"github.com/elys-network/dpool/internal/types"
)

const maxBodyBytes = 1 << 20

// WebServer exposes a node over HTTP
type WebServer struct {
	logger  zerolog.Logger
	router  *mux.Router
	node    *node.Node
	metrics *metrics.Metrics
	port    string
}

// NewWebServer creates a new web server instance. m may be nil.
func NewWebServer(port string, n *node.Node, m *metrics.Metrics) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		logger:  logger.GetForComponent("web_server"),
		router:  mux.NewRouter(),
		node:    n,
		metrics: m,
		port:    port,
	}

	server.setupRoutes()
	return server
}

// Handler returns the routed handler with its middleware. CORS wraps the router so preflight
// requests are answered even for routes that only accept POST.
func (ws *WebServer) Handler() http.Handler {
	return ws.corsMiddleware(ws.router)
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")
	if ws.metrics != nil {
		ws.router.Handle("/metrics", ws.metrics.Handler()).Methods("GET")
	}

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/config", ws.handleGetConfig).Methods("GET")
	api.HandleFunc("/deposits", ws.handleGetTotalDeposits).Methods("GET")
	api.HandleFunc("/deposits/{owner}", ws.handleGetDeposit).Methods("GET")
	api.HandleFunc("/claimable-reward", ws.handleGetClaimableReward).Methods("GET")
	api.HandleFunc("/query", ws.handleQuery).Methods("POST")
	api.HandleFunc("/execute", ws.handleExecute).Methods("POST")
	api.HandleFunc("/receipts", ws.handleGetReceipts).Methods("GET")
	api.HandleFunc("/receipts/summary", ws.handleGetReceiptSummary).Methods("GET")
	api.HandleFunc("/receipts/{id}", ws.handleGetReceipt).Methods("GET")

	sandbox := api.PathPrefix("/sandbox").Subrouter()
	sandbox.HandleFunc("/fund", ws.handleFund).Methods("POST")
	sandbox.HandleFunc("/rates", ws.handleSetRates).Methods("POST")
	sandbox.HandleFunc("/block-time", ws.handleSetBlockTime).Methods("POST")
	sandbox.HandleFunc("/migrate", ws.handleMigrate).Methods("POST")
	sandbox.HandleFunc("/balances/{address}", ws.handleGetBalances).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns the node status along with runtime figures
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	status, err := ws.node.Status(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to read node status")
		hasErrors = true
	}

	dbHealthy := true
	if status.History {
		if err := state.TestDBConnection(); err != nil {
			dbHealthy = false
			hasErrors = true
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	var uptimeSeconds int64
	if !status.StartedAt.IsZero() {
		uptimeSeconds = int64(time.Since(status.StartedAt).Seconds())
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   uptimeSeconds,
		},
		"component": map[string]interface{}{
			"name":    "dpool-node",
			"version": "1.0.0",
		},
		"node": map[string]interface{}{
			"mode":             status.Mode,
			"pool":             status.Pool,
			"block":            status.Block,
			"history_enabled":  status.History,
			"database_healthy": dbHealthy,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

func (ws *WebServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := ws.node.PoolConfig(r.Context())
	if err != nil {
		ws.writeNodeError(w, err, "Failed to read pool config")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cfg)
}

func (ws *WebServer) handleGetTotalDeposits(w http.ResponseWriter, r *http.Request) {
	ws.forwardQuery(w, r, []byte(`{"total_deposit_amount":{}}`))
}

func (ws *WebServer) handleGetDeposit(w http.ResponseWriter, r *http.Request) {
	msg, err := json.Marshal(types.QueryMsg{DepositAmountOf: &types.DepositAmountOfQuery{Owner: mux.Vars(r)["owner"]}})
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to build query")
		return
	}
	ws.forwardQuery(w, r, msg)
}

func (ws *WebServer) handleGetClaimableReward(w http.ResponseWriter, r *http.Request) {
	ws.forwardQuery(w, r, []byte(`{"claimable_reward":{}}`))
}

// handleQuery forwards a raw pool query message
func (ws *WebServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Query message is required")
		return
	}
	ws.forwardQuery(w, r, body)
}

func (ws *WebServer) forwardQuery(w http.ResponseWriter, r *http.Request, msg []byte) {
	res, err := ws.node.Query(r.Context(), msg)
	if err != nil {
		ws.writeNodeError(w, err, "Query failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to write query response")
	}
}

// handleExecute runs an execute message and returns its receipt
func (ws *WebServer) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req node.ExecuteRequest
	if err := ws.decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := ws.node.Execute(r.Context(), req)
	ws.writeReceipt(w, receipt, err, "Execution rejected")
}

type migrateRequest struct {
	Sender string `json:"sender"`
}

// handleMigrate runs the pool's migrate entry point on a sandbox node
func (ws *WebServer) handleMigrate(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := ws.decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := ws.node.Migrate(r.Context(), req.Sender)
	ws.writeReceipt(w, receipt, err, "Migration rejected")
}

// writeReceipt answers with the receipt of a committed execution, or with the error and the
// receipt of a failed one.
func (ws *WebServer) writeReceipt(w http.ResponseWriter, receipt *types.ExecutionReceipt, err error, rejected string) {
	if err != nil {
		if receipt == nil {
			ws.writeNodeError(w, err, rejected)
			return
		}
		ws.writeJSONResponse(w, statusFor(err), map[string]interface{}{
			"error":     true,
			"message":   err.Error(),
			"receipt":   receipt,
			"timestamp": time.Now().UTC(),
		})
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

// handleGetReceipts returns the most recent execution receipts
func (ws *WebServer) handleGetReceipts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsedLimit
	}
	limit = state.NormalizeLimit(limit)

	receipts, err := ws.node.Receipts(limit)
	if err != nil {
		ws.writeNodeError(w, err, "Failed to retrieve receipts")
		return
	}

	response := map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetReceipt returns a specific receipt by execution id
func (ws *WebServer) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	receipt, err := ws.node.Receipt(id)
	if err != nil {
		ws.writeNodeError(w, err, "Failed to retrieve receipt")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleGetReceiptSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := ws.node.ReceiptSummary()
	if err != nil {
		ws.writeNodeError(w, err, "Failed to retrieve receipt summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

type fundRequest struct {
	Address string    `json:"address"`
	Coins   sdk.Coins `json:"coins"`
}

func (ws *WebServer) handleFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if err := ws.decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.Coins.Empty() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "address and coins are required")
		return
	}

	err := ws.node.Sandbox(func(c node.SandboxControl) error {
		return c.Fund(req.Address, req.Coins)
	})
	if err != nil {
		ws.writeNodeError(w, err, "Failed to fund account")
		return
	}

	ws.logger.Info().Str("address", req.Address).Str("coins", req.Coins.String()).Msg("Funded sandbox account")
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address": req.Address,
		"funded":  req.Coins,
	})
}

type ratesRequest struct {
	MarketRate  string `json:"market_rate,omitempty"`
	VirtualRate string `json:"virtual_rate,omitempty"`
}

func (ws *WebServer) handleSetRates(w http.ResponseWriter, r *http.Request) {
	var req ratesRequest
	if err := ws.decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MarketRate == "" && req.VirtualRate == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "market_rate or virtual_rate is required")
		return
	}

	var market, virtual *sdkmath.LegacyDec
	for _, in := range []struct {
		name  string
		value string
		out   **sdkmath.LegacyDec
	}{
		{"market_rate", req.MarketRate, &market},
		{"virtual_rate", req.VirtualRate, &virtual},
	} {
		if in.value == "" {
			continue
		}
		rate, err := sdkmath.LegacyNewDecFromStr(in.value)
		if err != nil || !rate.IsPositive() {
			ws.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive decimal", in.name))
			return
		}
		*in.out = &rate
	}

	err := ws.node.Sandbox(func(c node.SandboxControl) error {
		if market != nil {
			c.SetMarketRate(*market)
		}
		if virtual != nil {
			c.SetVirtualRate(*virtual)
		}
		return nil
	})
	if err != nil {
		ws.writeNodeError(w, err, "Failed to set rates")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, req)
}

type blockTimeRequest struct {
	Time time.Time `json:"time"`
}

func (ws *WebServer) handleSetBlockTime(w http.ResponseWriter, r *http.Request) {
	var req blockTimeRequest
	if err := ws.decodeBody(r, &req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Time.IsZero() {
		ws.writeErrorResponse(w, http.StatusBadRequest, "time is required")
		return
	}

	err := ws.node.Sandbox(func(c node.SandboxControl) error {
		c.SetBlockTime(req.Time)
		return nil
	})
	if err != nil {
		ws.writeNodeError(w, err, "Failed to set block time")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, req)
}

// handleGetBalances returns a sandbox account's native balance and, when token is given, its
// cw20 balance.
func (ws *WebServer) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	denom := r.URL.Query().Get("denom")
	token := r.URL.Query().Get("token")
	if denom == "" && token == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "denom or token is required")
		return
	}

	response := map[string]interface{}{"address": address}
	err := ws.node.Sandbox(func(c node.SandboxControl) error {
		if denom != "" {
			response["native"] = sdk.NewCoin(denom, c.Balance(address, denom))
		}
		if token != "" {
			response["token"] = map[string]string{
				"contract": token,
				"balance":  c.TokenBalance(token, address).String(),
			}
		}
		return nil
	})
	if err != nil {
		ws.writeNodeError(w, err, "Failed to read balances")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

func (ws *WebServer) decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps node, host and contract errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, node.ErrInvalidRequest),
		errors.Is(err, types.ErrMalformedRequest),
		errors.Is(err, types.ErrUnknownVariant),
		errors.Is(err, types.ErrInvalidAddress),
		errors.Is(err, host.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrUnauthorized),
		errors.Is(err, host.ErrUnauthorizedSender):
		return http.StatusForbidden
	case errors.Is(err, state.ErrReceiptNotFound),
		errors.Is(err, host.ErrUnknownContract):
		return http.StatusNotFound
	case errors.Is(err, host.ErrReadOnly),
		errors.Is(err, node.ErrSandboxOnly):
		return http.StatusMethodNotAllowed
	case errors.Is(err, types.ErrInvalidDeposit),
		errors.Is(err, types.ErrUnsupportedAsset),
		errors.Is(err, types.ErrTokenNotRegistered),
		errors.Is(err, types.ErrArithmetic),
		errors.Is(err, types.ErrInvalidConfig),
		errors.Is(err, host.ErrInsufficientFunds),
		errors.Is(err, host.ErrDepthExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrQueryFailed):
		return http.StatusBadGateway
	case errors.Is(err, node.ErrHistoryUnavailable),
		errors.Is(err, state.ErrDBNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeNodeError(w http.ResponseWriter, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		ws.logger.Error().Err(err).Msg(msg)
	}
	ws.writeErrorResponse(w, status, fmt.Sprintf("%s: %v", msg, err))
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
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

// loggingMiddleware logs HTTP requests and counts them by route template
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		ws.metrics.ObserveHTTP(route, wrapper.statusCode)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
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
