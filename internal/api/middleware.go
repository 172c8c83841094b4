package api

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"

	"datahub/internal/apperr"
	"datahub/internal/auth"
	"datahub/internal/identity"
	"datahub/internal/model"
)

const (
	headerRequestID = "X-Request-ID"
	requestIDKey    = "request_id"
	loggerKey       = "logger"
)

// RequestID берёт X-Request-ID клиента или выдаёт новый ULID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string { return c.GetString(requestIDKey) }

// AccessLog пишет одну строку на запрос.
func AccessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(loggerKey, log.With("request_id", requestID(c)))
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		log.Log(c.Request.Context(), level, "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", time.Since(start),
			"ip", c.ClientIP(),
			"request_id", requestID(c),
		)
	}
}

// Recovery отвечает 500 в общем формате ошибок.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, rec any) {
		logger(c).ErrorContext(c.Request.Context(), "panic recovered", "panic", rec, "path", c.Request.URL.Path)
		writeError(c, apperr.Internal(nil))
	})
}

// Timeout ограничивает время обработки через контекст запроса.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions, http.MethodPatch},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Origin", "Accept", "X-Requested-With", headerRequestID},
		ExposeHeaders:    []string{"Authorization", headerRequestID, headerTotalCount},
		AllowCredentials: true,
		MaxAge:           time.Hour,
	}
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		// с credentials "*" запрещён, поэтому отражаем Origin
		cfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// Authenticate привязывает principal из Bearer-токена к контексту запроса.
func Authenticate(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := svc.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Request = c.Request.WithContext(identity.With(c.Request.Context(), p))
		c.Next()
	}
}

// RequireAdmin пропускает только ADMIN; ставится после Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := identity.Current(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		if !p.IsAdmin() {
			writeError(c, apperr.Forbidden("%s role required", model.RoleAdmin))
			return
		}
		c.Next()
	}
}

// RateLimit: perMinute запросов с одного IP; 0 отключает.
func RateLimit(perMinute int) gin.HandlerFunc {
	if perMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	l := newLimiter(perMinute)
	return func(c *gin.Context) {
		ok, wait := l.allow(c.ClientIP(), time.Now())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Timestamp: time.Now().UTC(),
				Status:    http.StatusTooManyRequests,
				Error:     "TOO_MANY_REQUESTS",
				Message:   "too many login attempts, retry later",
				Path:      c.Request.URL.Path,
			})
			return
		}
		c.Next()
	}
}
