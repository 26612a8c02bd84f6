package api

import (
	"net"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/Shugur-Network/aisbridge/internal/errors"
	"github.com/Shugur-Network/aisbridge/internal/limiter"
	"github.com/Shugur-Network/aisbridge/internal/metrics"
)

// SecurityHeaders defines the headers applied to every admin API response.
type SecurityHeaders struct {
	CSP                 string
	XContentTypeOptions string
	CacheControl        string
}

// APISecurityHeaders returns headers for JSON-only endpoints.
func APISecurityHeaders() *SecurityHeaders {
	return &SecurityHeaders{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		XContentTypeOptions: "nosniff",
		CacheControl:        "no-store",
	}
}

// Apply applies the security headers directly to a ResponseWriter
func (sh *SecurityHeaders) Apply(w http.ResponseWriter) {
	if sh.CSP != "" {
		w.Header().Set("Content-Security-Policy", sh.CSP)
	}
	if sh.XContentTypeOptions != "" {
		w.Header().Set("X-Content-Type-Options", sh.XContentTypeOptions)
	}
	if sh.CacheControl != "" {
		w.Header().Set("Cache-Control", sh.CacheControl)
	}
}

// SecurityMiddleware wraps an http.Handler with security headers
func SecurityMiddleware(headers *SecurityHeaders) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			headers.Apply(w)
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware counts requests by status class and observes latency.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(strconv.Itoa(rec.status/100) + "xx").Inc()
		metrics.HTTPRequestDuration.Observe(time.Since(start).Seconds())
	})
}

// RateLimitMiddleware answers 429 to clients over their request budget.
// Health probes are never limited.
func RateLimitMiddleware(rl *limiter.RateLimiter, em *apperrors.ErrorMiddleware) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}
			if d := rl.Allow(clientIP(r)); d != limiter.Allowed {
				metrics.APIRateLimited.WithLabelValues(d.String()).Inc()
				w.Header().Set("Retry-After", "1")
				em.HandleError(w, r, apperrors.RateLimitedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
