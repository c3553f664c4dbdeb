package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/repeatbot/internal/middleware"
)

// GatewayStatus reports whether the platform connection is live.
type GatewayStatus interface {
	Connected() bool
}

type Config struct {
	// Interactions serves POST /interactions. The route is only mounted when
	// PublicKey is also set.
	Interactions http.Handler
	PublicKey    *middleware.PublicKey

	InteractionRate  float64
	InteractionBurst int

	Gateway  GatewayStatus
	Gatherer prometheus.Gatherer
}

type Server struct {
	cfg         Config
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Server {
	return &Server{
		cfg:         cfg,
		rateLimiter: middleware.NewRateLimiter(cfg.InteractionRate, cfg.InteractionBurst, 10*time.Minute),
		logger:      logger,
	}
}

// RunCleanup drops idle rate limiter entries every interval until ctx is done.
func (s *Server) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.rateLimiter.Cleanup()
		}
	}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	if s.cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if s.cfg.Interactions != nil && s.cfg.PublicKey != nil {
		h := middleware.VerifySignature(*s.cfg.PublicKey)(s.cfg.Interactions)
		h = middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h)
		mux.Handle("POST /interactions", h)
	} else {
		s.logger.Warn("interactions endpoint disabled, no public key configured")
	}

	return middleware.RequestLogger(s.logger.With("component", "http"), "/health", "/metrics")(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.cfg.Gateway != nil && !s.cfg.Gateway.Connected() {
		status, code = "gateway disconnected", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
