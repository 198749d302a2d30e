package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/router-providers/internal/config"
	"github.com/yourorg/router-providers/internal/fetch"
	"github.com/yourorg/router-providers/internal/registry"
	"github.com/yourorg/router-providers/internal/types"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Server exposes the provider bundles over HTTP
type Server struct {
	config   config.Config
	bundles  registry.Bundles
	gatherer prometheus.Gatherer
	metrics  *serverMetrics
	server   *http.Server
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func registerMetrics(reg prometheus.Registerer) *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_providers_requests_total",
				Help: "Total number of HTTP requests processed",
			},
			[]string{"path", "code"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "router_providers_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
	}
	reg.MustRegister(m.requestCounter, m.requestDuration)
	return m
}

// NewServer creates a server for bundles. reg receives the server's own metrics
// and is served on /metrics.
func NewServer(cfg config.Config, bundles registry.Bundles, reg *prometheus.Registry) *Server {
	s := &Server{
		config:   cfg,
		bundles:  bundles,
		gatherer: reg,
		metrics:  registerMetrics(reg),
	}

	logrus.WithFields(logrus.Fields{
		"port":     cfg.Port,
		"networks": bundles.Networks(),
		"timeout":  cfg.RequestTimeout,
	}).Info("Server initialized")
	return s
}

// Handler returns the routed and instrumented HTTP handler
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/status", s.handleStatus)
	r.Get("/gas", s.instrument("/gas", s.handleGas))
	r.Get("/token", s.instrument("/token", s.handleToken))
	return r
}

// Run serves until ctx is done and then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("Server starting on port %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logrus.Info("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logrus.Info("Server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request counts and latency and bounds the request with the configured timeout
func (s *Server) instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.config.RequestTimeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
			defer cancel()
			r = r.WithContext(ctx)
		}

		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)

		s.metrics.requestCounter.WithLabelValues(path, strconv.Itoa(rec.code)).Inc()
		s.metrics.requestDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus reports per-network cache sizes and breaker state
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	networks := make(map[string]interface{}, len(s.bundles))
	for _, n := range s.bundles.Networks() {
		b := s.bundles[n]
		entry := map[string]interface{}{
			"chain_id":    uint64(n),
			"caches":      b.Caches.Sizes(),
			"list_tokens": b.TokenList.Len(),
			"multicall":   b.Contracts.Multicall.Hex(),
		}
		if state, ok := b.BreakerState(); ok {
			entry["circuit_state"] = state.String()
		}
		networks[n.String()] = entry
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "operational",
		"uptime":   time.Since(startTime).String(),
		"networks": networks,
	})
}

// bundleFor resolves the network query parameter
func (s *Server) bundleFor(r *http.Request) (*registry.Bundle, error) {
	raw := r.URL.Query().Get("network")
	if raw == "" {
		raw = types.Mainnet.String()
	}
	n, err := types.ParseNetwork(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", registry.ErrNetworkNotConfigured, err)
	}
	return s.bundles.Get(n)
}

// handleGas returns the current gas price of a network
func (s *Server) handleGas(w http.ResponseWriter, r *http.Request) {
	b, err := s.bundleFor(r)
	if err != nil {
		errorResponse(w, err)
		return
	}
	price, err := b.GasPriceProvider.Fetch(r.Context(), fetch.LatestGasPrice)
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"network":  b.Network.String(),
		"gasPrice": price,
	})
}

// handleToken resolves token metadata by address, or by symbol from the token list
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	b, err := s.bundleFor(r)
	if err != nil {
		errorResponse(w, err)
		return
	}

	q := r.URL.Query()
	var address common.Address
	switch {
	case q.Get("address") != "":
		if !common.IsHexAddress(q.Get("address")) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "invalid address"})
			return
		}
		address = common.HexToAddress(q.Get("address"))
	case q.Get("symbol") != "":
		tok, ok := b.TokenList.BySymbol(q.Get("symbol"))
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "error", "error": "unknown symbol"})
			return
		}
		address = tok.Address
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "address or symbol is required"})
		return
	}

	tok, err := b.TokenProvider.Fetch(r.Context(), address)
	if err != nil {
		errorResponse(w, err)
		return
	}
	blocked, err := b.IsBlocked(r.Context(), address)
	if err != nil {
		errorResponse(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"network": b.Network.String(),
		"token":   tok,
		"blocked": blocked,
	})
}
