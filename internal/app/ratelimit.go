package app

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"jobtrack/api/internal/ratelimit"
)

// withRateLimit throttles requests accepted by applies, per subject. A
// limiter failure lets the request through.
func withRateLimit(limiter ratelimit.Limiter, metrics *Metrics, logger *zap.Logger, applies func(*http.Request) bool, subject func(*http.Request) string, next http.Handler) http.Handler {
	if limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !applies(r) {
			next.ServeHTTP(w, r)
			return
		}

		key := subject(r) + ":" + routeLabel(r.URL.Path)
		decision, err := limiter.Allow(r.Context(), key)
		if err != nil {
			logger.Warn("rate limiter check failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		metrics.observeRateLimited(routeLabel(r.URL.Path))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "rate limit exceeded",
		})
	})
}
