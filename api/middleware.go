package api

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/auth"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	HeaderRequestID = "X-Request-ID"

	ctxKeyRequestID = "request_id"
	ctxKeyLogger    = "logger"
	ctxKeyClaims    = "claims"
)

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, rid)
		c.Writer.Header().Set(HeaderRequestID, rid)
		c.Next()
	}
}

// Logger stores a request-scoped logger and logs every finished request.
func Logger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		entry := logger.WithField("request_id", c.GetString(ctxKeyRequestID))
		c.Set(ctxKeyLogger, entry)

		c.Next()

		status := c.Writer.Status()
		fields := entry.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  status,
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			fields.Error("request completed")
		case status >= http.StatusBadRequest:
			fields.Warn("request completed")
		default:
			fields.Info("request completed")
		}
	}
}

func Recovery(logger logrus.FieldLogger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithField("panic", recovered).Error("recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: errorDetail{Kind: apperr.Internal, Message: "internal error"}})
	})
}

// RateLimit applies a token bucket per client IP.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)
	limiterFor := func(ip string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[ip]
		if !ok {
			l = rate.NewLimiter(rate.Limit(rps), burst)
			limiters[ip] = l
		}
		return l
	}

	return func(c *gin.Context) {
		if !limiterFor(c.ClientIP()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorDetail{Kind: "rate_limited", Message: "rate limit exceeded"}})
			return
		}
		c.Next()
	}
}

// OptionalAuth reads a bearer token when one is sent. A malformed or
// expired token is rejected; a missing one is not.
func OptionalAuth(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			writeError(c, apperr.New(apperr.Unauthorized, "expected Authorization: Bearer <token>"))
			return
		}

		claims, err := parser.Parse(strings.TrimSpace(token))
		if err != nil {
			loggerFrom(c).WithError(err).Debug("rejected bearer token")
			writeError(c, apperr.New(apperr.Unauthorized, "invalid or expired token"))
			return
		}
		c.Set(ctxKeyClaims, claims)
		c.Next()
	}
}

// RequireRole must run after OptionalAuth.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFrom(c)
		if claims == nil {
			writeError(c, apperr.New(apperr.Unauthorized, "authentication required"))
			return
		}
		if claims.Role != role {
			writeError(c, apperr.New(apperr.Forbidden, "%s role required", role))
			return
		}
		c.Next()
	}
}

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if claimsFrom(c) == nil {
			writeError(c, apperr.New(apperr.Unauthorized, "authentication required"))
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(ctxKeyClaims); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

func isStaff(c *gin.Context) bool {
	claims := claimsFrom(c)
	return claims != nil && claims.IsStaff()
}
