package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"txstatus/internal/domain"
)

type StatusResolver interface {
	Resolve(ctx context.Context, hash domain.TransactionHash) (domain.TransactionStatus, error)
}

type LedgerStatus interface {
	Ping(ctx context.Context) error
}

type GatewayStatus interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

type ServerConfig struct {
	// BatchLimit caps the number of calls in one JSON-RPC batch.
	BatchLimit int
	// BatchConcurrency caps how many calls of one batch resolve at once.
	BatchConcurrency int
}

type Server struct {
	resolver  StatusResolver
	ledger    LedgerStatus
	gateway   GatewayStatus
	metrics   *Metrics
	cfg       ServerConfig
	buildInfo BuildInfo
}

func NewServer(resolver StatusResolver, ledger LedgerStatus, gateway GatewayStatus, metrics *Metrics, cfg ServerConfig, buildInfo BuildInfo) (*Server, error) {
	if resolver == nil || ledger == nil || gateway == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 8
	}
	return &Server{resolver: resolver, ledger: ledger, gateway: gateway, metrics: metrics, cfg: cfg, buildInfo: buildInfo}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rpc", s.handleRPC)
	mux.HandleFunc("GET /transactions/status", s.handleTransactionStatus)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("http server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ledger.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "ledger not ready")
		return
	}
	if _, err := s.gateway.LatestBlockNumber(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "gateway not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func (s *Server) handleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("transaction_hash")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "transaction_hash is required")
		return
	}
	hash, err := domain.ParseTransactionHash(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid transaction_hash: "+err.Error())
		return
	}
	status, err := s.resolver.Resolve(r.Context(), hash)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]domain.TransactionStatus{"status": status})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// ServeMetrics exposes only /metrics, for binaries without an RPC surface.
func ServeMetrics(ctx context.Context, addr string, metrics *Metrics) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
