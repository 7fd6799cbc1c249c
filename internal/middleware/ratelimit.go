package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/tingzhh2025/aisecurityvision/internal/ratelimit"
	"github.com/tingzhh2025/aisecurityvision/internal/tokens"
)

// Internal Service Key for Bypass (In prod, use secret manager)
var InternalServiceKey = os.Getenv("INTERNAL_SERVICE_KEY")

type RateLimitMiddleware struct {
	limiter         *ratelimit.Limiter
	tokens          TokenValidator // Reused from JWTAuth
	config          *Config
	endpointsLimits map[string]ratelimit.LimitConfig
}

type Config struct {
	GlobalIP  ratelimit.LimitConfig            `yaml:"global_ip"`
	User      ratelimit.LimitConfig            `yaml:"user"`
	Login     ratelimit.LimitConfig            `yaml:"login"`
	Endpoints map[string]ratelimit.LimitConfig `yaml:"endpoints"`
}

func NewRateLimitMiddleware(l *ratelimit.Limiter, t TokenValidator, c Config, epLimits map[string]ratelimit.LimitConfig) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:         l,
		tokens:          t,
		config:          &c,
		endpointsLimits: epLimits,
	}
}

// Internal Bypass Check
func (m *RateLimitMiddleware) isInternalService(r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	if InternalServiceKey == "" {
		return false
	}

	mgr := tokens.NewManager(InternalServiceKey)
	claims, err := mgr.ValidateToken(tokenString)
	if err != nil {
		return false
	}

	return claims.TokenType == tokens.Service
}

func (m *RateLimitMiddleware) GlobalLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Internal Bypass
		if m.isInternalService(r) {
			// Log Bypass
			log.Println("RateLimit Bypass: Internal Service")
			// Add Header for debugging?
			next.ServeHTTP(w, r)
			return
		}

		// 2. Global IP Limit
		ip := strings.Split(r.RemoteAddr, ":")[0] // Simplistic IP extraction
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ip = strings.Split(xff, ",")[0]
		}

		ipHash := m.limiter.HashIP(ip)
		key := fmt.Sprintf("rl:ip:%s", ipHash)

		decision, err := m.limiter.CheckRateLimit(r.Context(), key, m.config.GlobalIP)

		if err == ratelimit.ErrRedisUnavailable {
			RecordRedisError()
			// Auth endpoints fail closed, everything else fails open.
			if strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
				log.Printf("RateLimit Redis Error (Auth, Fail Closed): %v", err)
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}

			log.Printf("RateLimit Redis Error (API, Fail Open): %v", err)
			next.ServeHTTP(w, r)
			return
		} else if err != nil {
			log.Printf("RateLimit Error: %v", err)
			next.ServeHTTP(w, r) // Fail open on unknown error
			return
		}

		if !decision.Allowed {
			RecordRateLimit("ip", "denied")
			m.writeRateLimitHeaders(w, decision)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		RecordRateLimit("ip", "allowed")

		// 3. User Limit (if authenticated)
		ac, ok := GetAuthContext(r.Context())
		if ok {
			userKey := fmt.Sprintf("rl:user:%s:%s", ac.TenantID, ac.UserID)
			uDecision, err := m.limiter.CheckRateLimit(r.Context(), userKey, m.config.User)
			if err == nil && !uDecision.Allowed {
				m.writeRateLimitHeaders(w, uDecision)
				http.Error(w, "User rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		// 4. Endpoint specific, keyed by IP hash + path.
		path := r.URL.Path
		if limitConfig, found := m.endpointsLimits[path]; found {
			epKey := fmt.Sprintf("rl:ep:%s:%s", ipHash, path)

			epDecision, err := m.limiter.CheckRateLimit(r.Context(), epKey, limitConfig)
			if err == nil && !epDecision.Allowed {
				RecordRateLimit("endpoint", "denied")
				m.writeRateLimitHeaders(w, epDecision)
				http.Error(w, "Endpoint rate limit exceeded", http.StatusTooManyRequests)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// loginLimitBody mirrors the fields LoginLimiter needs out of the request
// body without depending on the auth package (would import-cycle back here).
type loginLimitBody struct {
	Email    string `json:"email"`
	TenantID string `json:"tenant_id"`
}

// LoginLimiter enforces the tenant+ip+email scoped login limit ahead of
// credential validation. It reads and restores the request body so the
// wrapped handler still sees the original payload.
func (m *RateLimitMiddleware) LoginLimiter(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		r.Body.Close()
		r.Body = io.NopCloser(strings.NewReader(string(body)))

		var lb loginLimitBody
		_ = json.Unmarshal(body, &lb)

		ip := strings.Split(r.RemoteAddr, ":")[0]
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ip = strings.Split(xff, ",")[0]
		}
		emailHash := sha256.Sum256([]byte(strings.ToLower(lb.Email)))
		key := fmt.Sprintf("rl:login:%s:%s:%s", lb.TenantID, m.limiter.HashIP(ip), hex.EncodeToString(emailHash[:8]))

		decision, err := m.limiter.CheckRateLimit(r.Context(), key, m.config.Login)
		if err == ratelimit.ErrRedisUnavailable {
			RecordRedisError()
			log.Printf("RateLimit Redis Error (Login, Fail Closed): %v", err)
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		if err == nil && !decision.Allowed {
			RecordRateLimit("login", "denied")
			m.writeRateLimitHeaders(w, decision)
			http.Error(w, "Too many login attempts", http.StatusTooManyRequests)
			return
		}
		RecordRateLimit("login", "allowed")

		next.ServeHTTP(w, r)
	}
}

func (m *RateLimitMiddleware) writeRateLimitHeaders(w http.ResponseWriter, d *ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))
	if !d.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
	}
}
