package mw

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/config"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/principal"
	"github.com/Zenieverse/OmniGuide-AI/pkg/gateway/ratelimit"
)

// RateLimit applies the per-client token bucket to plain HTTP requests.
// Channel upgrades are limited by the live handler instead.
func RateLimit(cfg config.Config, limiter *ratelimit.Limiter, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Health and scrape endpoints must remain cheap and reliable.
		switch r.URL.Path {
		case "/healthz", "/readyz", "/api/health", "/metrics", "/v1/live":
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		client := principal.Resolve(r, cfg.TrustProxyHeaders)
		dec := limiter.AcquireRequest(client.Key, time.Now())
		if !dec.Allowed {
			reqID, _ := RequestIDFrom(r.Context())
			w.Header().Set("Retry-After", strconv.Itoa(dec.RetryAfter))
			ce := core.NewRateLimitError("rate limit exceeded", dec.RetryAfter)
			ce.RequestID = reqID
			writeJSONError(w, http.StatusTooManyRequests, ce)
			return
		}
		next.ServeHTTP(w, r)
	})
}
