package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RateLimitDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_decisions_total",
		Help: "Total number of rate limit decisions",
	}, []string{"scope", "result"}) // scope: ip, user, endpoint, login; result: allowed, denied

	RateLimitRedisErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_redis_errors_total",
		Help: "Total number of Redis errors encountered while checking rate limits",
	})
)
