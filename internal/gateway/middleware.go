package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/DeBounty-Network/escrow_layer/internal/errors"
	"github.com/DeBounty-Network/escrow_layer/pkg/logger"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal returns the authenticated account address for a request.
func Principal(ctx context.Context) string {
	if v, ok := ctx.Value(principalKey).(string); ok {
		return v
	}
	return ""
}

// Authenticator resolves bearer tokens to account addresses. When no tokens
// are configured it runs in open mode and trusts the X-Caller-Account
// header, which is only suitable for local development.
type Authenticator struct {
	tokens    map[string]string
	skipPaths map[string]bool
	log       *logger.Logger
}

// NewAuthenticator creates an authenticator from a token-to-account map.
func NewAuthenticator(tokens map[string]string, skipPaths []string, log *logger.Logger) *Authenticator {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}
	if log == nil {
		log = logger.NewDefault("gateway")
	}
	return &Authenticator{tokens: tokens, skipPaths: skip, log: log}
}

// Handler returns the authentication middleware.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		account, err := a.resolve(r)
		if err != nil {
			a.log.WithError(err).
				WithField("path", r.URL.Path).
				WithField("method", r.Method).
				Warn("authentication failed")
			writeError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) resolve(r *http.Request) (string, error) {
	if len(a.tokens) == 0 {
		account := strings.TrimSpace(r.Header.Get("X-Caller-Account"))
		if account == "" {
			return "", errors.Unauthorized("X-Caller-Account header is required")
		}
		return account, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.Unauthorized("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.Unauthorized("invalid Authorization header format")
	}
	account, ok := a.tokens[parts[1]]
	if !ok {
		return "", errors.Unauthorized("unknown token")
	}
	return account, nil
}

// RateLimiter throttles requests per principal, falling back to the remote
// address for unauthenticated paths.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewRateLimiter creates a per-caller rate limiter.
func NewRateLimiter(requestsPerSecond, burst int, log *logger.Logger) *RateLimiter {
	if log == nil {
		log = logger.NewDefault("gateway")
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
		log:      log,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		// Bound the map so abandoned callers cannot grow it forever.
		if len(rl.limiters) > 10000 {
			rl.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler returns the rate limiting middleware.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := Principal(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}

		if !rl.getLimiter(key).Allow() {
			rl.log.WithField("key", key).WithField("path", r.URL.Path).Warn("rate limit exceeded")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
