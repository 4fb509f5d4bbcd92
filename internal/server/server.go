package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dibas-borborah-interface/mobile-core-v1/internal/api"
	"github.com/dibas-borborah-interface/mobile-core-v1/internal/observability/metrics"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr      string
	TLS       TLSConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Security  SecurityConfig
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	metrics     *metrics.Recorder
	rateLimiter *rateLimiter
	tlsCertFile string
	tlsKeyFile  string
}

// New assembles the route table and middleware chain around the API handler.
// Requests pass through logging, request IDs, security headers, CORS,
// metrics, and rate limiting before authentication and routing.
func New(handler *api.Handler, cfg Config) (*Server, error) {
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.Handle("/metrics", recorder.Handler())
	mux.HandleFunc("/api/login", handler.Login)
	mux.HandleFunc("/api/register", handler.Register)
	mux.HandleFunc("/api/image-upload", handler.ImageUpload)
	mux.HandleFunc("/api/video-upload", handler.VideoUpload)
	mux.HandleFunc("/", handler.Root)

	corsPolicy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}

	rl := newRateLimiter(cfg.RateLimit)
	handlerChain := http.Handler(mux)
	handlerChain = authMiddleware(handler, recorder, handlerChain)
	handlerChain = rateLimitMiddleware(rl, recorder, cfg.Logger, handlerChain)
	handlerChain = metricsMiddleware(recorder, handlerChain)
	handlerChain = corsMiddleware(corsPolicy, cfg.Logger, handlerChain)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = requestIDMiddleware(cfg.Logger, handlerChain)
	handlerChain = loggingMiddleware(cfg.Logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		metrics:     recorder,
		rateLimiter: rl,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

// Handler exposes the assembled middleware chain for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	if s.httpServer == nil {
		return fmt.Errorf("http server is not configured")
	}
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		return s.httpServer.ListenAndServeTLS(s.tlsCertFile, s.tlsKeyFile)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.rateLimiter.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)
		requestLogger := loggerWithRequestContext(r.Context(), logger)
		requestLogger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", duration.Milliseconds(),
			"remote_ip", extractClientIP(r))
	})
}

func metricsMiddleware(recorder *metrics.Recorder, next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(sr, r)
		recorder.ObserveRequest(r.Method, r.URL.Path, sr.status, time.Since(start))
	})
}

// routeClass maps a request onto its rate-limit budget. Everything shares
// the global window; the three POST endpoints carry their own ceilings.
func routeClass(r *http.Request) string {
	if r.Method != http.MethodPost {
		return ""
	}
	switch r.URL.Path {
	case "/api/login":
		return "login"
	case "/api/register":
		return "register"
	case "/api/image-upload", "/api/video-upload":
		return "upload"
	}
	return ""
}

func classLimitMessage(class string) string {
	switch class {
	case "login":
		return "Too many login attempts. Please try again later."
	case "register":
		return "Too many registration attempts. Please try again later."
	case "upload":
		return "Too many upload attempts. Please try again later."
	default:
		return "Too many requests. Please try again later."
	}
}

func rateLimitMiddleware(rl *rateLimiter, recorder *metrics.Recorder, logger *slog.Logger, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	if recorder == nil {
		recorder = metrics.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowRequest() {
			recorder.ObserveRateLimited("global")
			writeLimitExceeded(w, classLimitMessage("global"), 0)
			return
		}
		ip := extractClientIP(r)
		checks := []string{"global"}
		if class := routeClass(r); class != "" {
			checks = append(checks, class)
		}
		for _, class := range checks {
			allowed, retryAfter, err := rl.Allow(class, ip)
			if err != nil {
				if logger != nil {
					loggerWithRequestContext(r.Context(), logger).Error("rate limiter failure", "class", class, "error", err)
				}
				api.WriteError(w, http.StatusServiceUnavailable, errors.New("Rate limiter unavailable"))
				return
			}
			if !allowed {
				recorder.ObserveRateLimited(class)
				writeLimitExceeded(w, classLimitMessage(class), retryAfter)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeLimitExceeded(w http.ResponseWriter, message string, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
	}
	api.WriteError(w, http.StatusTooManyRequests, errors.New(message))
}

// authMiddleware guards the upload endpoints. Login, register, health,
// metrics, and the greeting stay public.
func authMiddleware(handler *api.Handler, recorder *metrics.Recorder, next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requiresAuth(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if api.ExtractToken(r) == "" {
			recorder.ObserveAuthFailure("missing_token")
			api.WriteError(w, http.StatusUnauthorized, errors.New("Authentication required"))
			return
		}
		account, err := handler.AuthenticateRequest(r)
		if err != nil {
			if errors.Is(err, api.ErrAuthRequired) || errors.Is(err, api.ErrInvalidToken) {
				recorder.ObserveAuthFailure("invalid_token")
				api.WriteError(w, http.StatusUnauthorized, err)
				return
			}
			api.WriteError(w, http.StatusInternalServerError, errors.New("Internal server error"))
			return
		}
		ctx := api.ContextWithAccount(r.Context(), account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requiresAuth(path string) bool {
	switch path {
	case "/api/image-upload", "/api/video-upload":
		return true
	}
	return false
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
