// Package middleware provides the HTTP middleware chain of the reconnode API:
// request IDs and logging, metrics, panic recovery, API key authentication,
// per-client rate limiting and content type checks.
package middleware

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/anstrom/reconnode/internal/auth"
	"github.com/anstrom/reconnode/internal/metrics"
)

// ContextKey represents a context key type.
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey ContextKey = "request_id"
	// RequestIDHeader carries the request ID in both directions.
	RequestIDHeader = "X-Request-ID"
	// APIKeyHeader carries the client API key.
	APIKeyHeader = "X-API-Key"

	httpErrorThreshold = 400
)

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/api/v1/liveness": true,
	"/api/v1/health":   true,
	"/api/v1/version":  true,
}

// RateLimiter is a sliding-window limiter keyed by client IP.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
	now      func() time.Time

	lastCleanup time.Time
}

// NewRateLimiter allows limit requests per window for each client.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow records a request from ip and reports whether it is within the limit.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastCleanup) > rl.window {
		rl.cleanupLocked(now)
	}

	recent := prune(rl.requests[ip], now.Add(-rl.window))
	if len(recent) >= rl.limit {
		rl.requests[ip] = recent
		return false
	}
	rl.requests[ip] = append(recent, now)
	return true
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.requests)
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	cutoff := now.Add(-rl.window)
	for ip, times := range rl.requests {
		if recent := prune(times, cutoff); len(recent) > 0 {
			rl.requests[ip] = recent
		} else {
			delete(rl.requests, ip)
		}
	}
	rl.lastCleanup = now
}

// prune drops timestamps at or before cutoff. times is ascending.
func prune(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	return times[i:]
}

// Logging assigns a request ID and logs each completed request.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = generateRequestID()
			}
			r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID))
			w.Header().Set(RequestIDHeader, requestID)

			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r)

			logger.Info("HTTP request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", wrapped.statusCode,
				"response_size", wrapped.size,
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", getClientIP(r))
		})
	}
}

// Metrics records request counts, latency and response size per route.
func Metrics(registry metrics.MetricsRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrap(w)

			next.ServeHTTP(wrapped, r)

			if registry == nil {
				return
			}
			labels := metrics.Labels{
				metrics.LabelMethod: r.Method,
				metrics.LabelPath:   routeTemplate(r),
				metrics.LabelStatus: strconv.Itoa(wrapped.statusCode),
			}
			registry.Counter(metrics.MetricHTTPRequests, labels)
			registry.Histogram(metrics.MetricHTTPDuration, time.Since(start).Seconds(), labels)
			registry.Histogram(metrics.MetricHTTPResponseSize, float64(wrapped.size), labels)
			if wrapped.statusCode >= httpErrorThreshold {
				registry.Counter(metrics.MetricHTTPErrors, labels)
			}
		})
	}
}

// routeTemplate labels by mux route so path variables do not explode cardinality.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// Recovery turns a handler panic into a 500 response.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("HTTP request panic recovered",
						"request_id", GetRequestID(r),
						"method", r.Method,
						"path", r.URL.Path,
						"panic", err,
						"stack", string(debug.Stack()))

					writeError(w, r, http.StatusInternalServerError, "Internal server error", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Authentication requires a configured API key in X-API-Key or as a bearer
// token, except on the health endpoints. Entries in apiKeys may be bcrypt
// hashes.
func Authentication(apiKeys []string, logger *slog.Logger) func(http.Handler) http.Handler {
	keyring := auth.NewKeyring(apiKeys)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get(APIKeyHeader)
			if apiKey == "" {
				if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
					apiKey = strings.TrimPrefix(authz, "Bearer ")
				}
			}

			switch {
			case apiKey == "":
				logger.Warn("API request without authentication",
					"request_id", GetRequestID(r),
					"path", r.URL.Path,
					"remote_addr", getClientIP(r))
				writeError(w, r, http.StatusUnauthorized, "Authentication required",
					"Provide API key in X-API-Key header or Authorization: Bearer <key>")
			case !keyring.Valid(apiKey):
				logger.Warn("API request with invalid key",
					"request_id", GetRequestID(r),
					"path", r.URL.Path,
					"remote_addr", getClientIP(r))
				writeError(w, r, http.StatusUnauthorized, "Authentication failed: Invalid API key", "")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// RateLimit rejects clients exceeding requests per window with 429.
func RateLimit(limiter *RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.limit))
			w.Header().Set("X-RateLimit-Window", limiter.window.String())

			clientIP := getClientIP(r)
			if !limiter.Allow(clientIP) {
				logger.Warn("Rate limit exceeded",
					"request_id", GetRequestID(r),
					"client_ip", clientIP,
					"path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.window.Seconds())))
				writeError(w, r, http.StatusTooManyRequests, "Rate limit exceeded",
					fmt.Sprintf("Maximum %d requests per %s", limiter.limit, limiter.window))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ContentType rejects POST and PUT bodies that are declared as anything but JSON.
func ContentType() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost || r.Method == http.MethodPut {
				contentType := r.Header.Get("Content-Type")
				if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
					writeError(w, r, http.StatusUnsupportedMediaType, "Unsupported media type",
						"Content-Type must be application/json")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders adds common security headers.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg, detail string) {
	response := map[string]interface{}{
		"error":      msg,
		"request_id": GetRequestID(r),
		"timestamp":  time.Now().UTC(),
	}
	if detail != "" {
		response["message"] = detail
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response)
}

// responseWriter captures the status code and body size. It forwards
// Hijack so websocket upgrades pass through the chain.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func wrap(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Hijack exposes the underlying connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// Flush forwards to the underlying writer when supported.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(b)
}

// GetRequestID extracts the request ID from the request context.
func GetRequestID(r *http.Request) string {
	if requestID, ok := r.Context().Value(RequestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}

// getClientIP prefers proxy headers over the socket address.
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
