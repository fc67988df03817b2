package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/mailflow-engine/internal/api/handler"
	"github.com/cuongbtq/mailflow-engine/shared/redis"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		attrs := []any{
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
			slog.Int("body_size", c.Writer.Size()),
		}
		if tenant := c.GetString(handler.ContextUserID); tenant != "" {
			attrs = append(attrs, slog.String("user_id", tenant))
		}
		logger.Info("HTTP Request", attrs...)

		for _, e := range c.Errors {
			logger.Error("Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Webhook-Secret")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// JWTMiddleware authenticates tenants with an HS256 bearer token whose
// subject is the tenant's user id.
func JWTMiddleware(secret []byte, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		tokenString := ""
		if parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2); len(parts) == 2 && parts[0] == "Bearer" {
			tokenString = parts[1]
		}
		if tokenString == "" {
			handler.Problem(c, http.StatusUnauthorized, "unauthorized", "authorization header missing")
			return
		}

		claims := &jwt.RegisteredClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			handler.Problem(c, http.StatusUnauthorized, "unauthorized", "invalid access token")
			return
		}

		c.Set(handler.ContextUserID, claims.Subject)
		c.Next()
	}
}

// RateLimiter takes one token from a shared bucket.
type RateLimiter interface {
	Take(ctx context.Context, key string, perSecond float64, burst int) (redis.Decision, error)
}

// RateLimitMiddleware limits each tenant, or each client IP before
// authentication, using the shared bucket when available. When the bucket
// errors the request is judged by a per-process limiter instead.
func RateLimitMiddleware(logger *slog.Logger, bucket RateLimiter, perSecond float64, burst int) gin.HandlerFunc {
	if perSecond <= 0 {
		perSecond = 5
	}
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	local := newLocalLimiters(rate.Limit(perSecond), burst)
	limit := fmt.Sprintf("%d", burst)

	return func(c *gin.Context) {
		key := c.GetString(handler.ContextUserID)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		c.Header("X-RateLimit-Limit", limit)

		if bucket != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 100*time.Millisecond)
			decision, err := bucket.Take(ctx, key, perSecond, burst)
			cancel()
			if err == nil {
				c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
				c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(decision.ResetAfter).Unix()))
				if !decision.Allowed {
					handler.Problem(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
					return
				}
				c.Next()
				return
			}
			logger.Warn("Redis rate limit failed, using local limiter",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}

		limiter := local.get(key)
		if !limiter.Allow() {
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", "1")
			handler.Problem(c, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int(limiter.Tokens())))
		c.Next()
	}
}

const localLimiterIdle = 10 * time.Minute

type localLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type localLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*localLimiter
	lastSweep time.Time
}

func newLocalLimiters(limit rate.Limit, burst int) *localLimiters {
	return &localLimiters{
		limit:     limit,
		burst:     burst,
		entries:   make(map[string]*localLimiter),
		lastSweep: time.Now(),
	}
}

func (l *localLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > localLimiterIdle {
		for k, e := range l.entries {
			if now.Sub(e.lastSeen) > localLimiterIdle {
				delete(l.entries, k)
			}
		}
		l.lastSweep = now
	}

	e, ok := l.entries[key]
	if !ok {
		e = &localLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	return e.limiter
}
