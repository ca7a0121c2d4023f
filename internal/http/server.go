// Package http serves the sensor API: current readings shaped for a Home
// Assistant REST integration, balance history from SQLite, health checks
// and a manual refresh hook.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"monarch/internal/cache"
	"monarch/internal/core"
	"monarch/internal/coordinator"
	"monarch/internal/log"
	"monarch/internal/storage"
)

// Poller is the coordinator surface the handlers read from.
type Poller interface {
	Snapshot() (core.Snapshot, bool)
	Available(now time.Time) bool
	Refresh(ctx context.Context) error
	Status() coordinator.Status
}

// Historian serves balance history queries. Optional; without it the
// history endpoint answers 503.
type Historian interface {
	NetWorthHistory(ctx context.Context, days int) ([]storage.HistoryPoint, error)
	TypeHistory(ctx context.Context, typeKey string, days int) ([]storage.HistoryPoint, error)
}

type Server struct {
	http.Server

	poller      Poller
	history     Historian
	logger      *log.Logger
	rateLimiter *rateLimiter

	// historyCache fronts the SQLite history queries; invalidated when a
	// fresh snapshot lands, swept in the background for expired entries.
	historyCache *cache.Store[[]storage.HistoryPoint]
	janitorStop  context.CancelFunc

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. history may be nil when SQLite is disabled.
func NewServer(addr string, poller Poller, history Historian, logger *log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		poller:       poller,
		history:      history,
		logger:       logger.WithComponent(log.ComponentHTTP),
		rateLimiter:  newRateLimiter(),
		historyCache: cache.New[[]storage.HistoryPoint](200, 5*time.Minute),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/sensors", s.withMiddleware(s.handleSensors))
	mux.HandleFunc("GET /api/sensors/{id}", s.withMiddleware(s.handleSensorByID))
	mux.HandleFunc("GET /api/accounts", s.withMiddleware(s.handleAccounts))
	mux.HandleFunc("GET /api/networth", s.withMiddleware(s.handleNetWorth))
	mux.HandleFunc("GET /api/cashflow", s.withMiddleware(s.handleCashflow))
	mux.HandleFunc("GET /api/history/{id}", s.withMiddleware(s.handleHistory))
	mux.HandleFunc("POST /api/refresh", s.withMiddleware(s.handleRefresh))

	janitor := cache.NewJanitor()
	janitor.Register(s.historyCache)
	janitorCtx, stop := context.WithCancel(context.Background())
	s.janitorStop = stop
	go janitor.Run(janitorCtx, time.Minute)

	return s
}

// InvalidateCaches drops cached history responses. Wired to the
// coordinator's snapshot hook.
func (s *Server) InvalidateCaches() {
	s.historyCache.Invalidate()
}

// Shutdown stops the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		s.janitorStop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withMiddleware adds security headers, rate limiting on mutating requests,
// and request logging.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)
		requestID := generateRequestID()

		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		if r.Method == http.MethodPost && !s.rateLimiter.allow(ip) {
			s.logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, ip,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldClientIP, ip)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady answers 200 once the first poll has succeeded.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if _, ok := s.poller.Snapshot(); !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("waiting for first snapshot"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
