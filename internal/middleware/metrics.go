package middleware

import "github.com/tingzhh2025/aisecurityvision/internal/metrics"

// RecordRateLimit tags a rate limit decision by scope (ip, user, endpoint,
// login) and result (allowed, denied).
func RecordRateLimit(scope string, result string) {
	metrics.RateLimitDecisionsTotal.WithLabelValues(scope, result).Inc()
}

func RecordRedisError() {
	metrics.RateLimitRedisErrorsTotal.Inc()
}
